package worldchat

import (
	"errors"
	"strings"
)

// Affiliation is the faction a participant belongs to.
type Affiliation uint8

const (
	Alliance Affiliation = iota
	Horde
)

func (a Affiliation) String() string {
	if a == Horde {
		return "horde"
	}
	return "alliance"
}

// ParseAffiliation accepts "alliance"/"a" and "horde"/"h" (any case).
func ParseAffiliation(s string) (Affiliation, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "alliance", "a":
		return Alliance, true
	case "horde", "h":
		return Horde, true
	default:
		return Alliance, false
	}
}

// Class is cosmetic only: it picks the color of the sender's name.
type Class uint8

const (
	ClassUnknown Class = iota
	Warrior
	Paladin
	Hunter
	Rogue
	Priest
	DeathKnight
	Shaman
	Mage
	Warlock
	Druid
)

var classNames = map[Class]string{
	Warrior:     "warrior",
	Paladin:     "paladin",
	Hunter:      "hunter",
	Rogue:       "rogue",
	Priest:      "priest",
	DeathKnight: "deathknight",
	Shaman:      "shaman",
	Mage:        "mage",
	Warlock:     "warlock",
	Druid:       "druid",
}

func (c Class) String() string {
	if n, ok := classNames[c]; ok {
		return n
	}
	return "unknown"
}

// ParseClass maps a class name to Class. Unknown names yield ClassUnknown.
func ParseClass(s string) Class {
	k := strings.ToLower(strings.TrimSpace(s))
	k = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(k)
	for c, n := range classNames {
		if n == k {
			return c
		}
	}
	return ClassUnknown
}

// Participant is owned by the host. The core only reads it for the duration
// of one call and never keeps a reference.
type Participant interface {
	ID() string
	Affiliation() Affiliation
	DisplayName() string
	Class() Class
	// Present reports whether the participant currently has a live session.
	Present() bool
	// Notify hands a line to the participant's session. It must not block.
	Notify(line string) error
}

// Directory is the host's registry of connected participants.
type Directory interface {
	// Each calls fn for every participant in a snapshot of the directory
	// until fn returns false.
	Each(fn func(Participant) bool)
	Find(id string) (Participant, bool)
}

// Reasons reported in Outcome. None of them is fatal.
var (
	ErrDisabled             = errors.New("world chat disabled")
	ErrNoSender             = errors.New("no sender or sender not in world")
	ErrEmptyMessage         = errors.New("empty message")
	ErrRecipientUnreachable = errors.New("recipient unreachable")
)
