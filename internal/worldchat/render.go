package worldchat

import (
	"regexp"
	"strings"
)

// Color escapes understood by the game client: |cAARRGGBB opens, |r resets.
const (
	colorReset   = "|r"
	colorChannel = "|cffffd000"
	colorAlly    = "|cff3399FF"
	colorHorde   = "|cffff0000"
	colorDefault = "|cffffffff"
)

var classColors = map[Class]string{
	Warrior:     "|cffC79C6E",
	Paladin:     "|cffF58CBA",
	Hunter:      "|cffABD473",
	Rogue:       "|cffFFF569",
	Priest:      "|cffFFFFFF",
	DeathKnight: "|cffC41E3A",
	Shaman:      "|cff0070DE",
	Mage:        "|cff69CCF0",
	Warlock:     "|cff9482C9",
	Druid:       "|cffFF7D0A",
}

// Rendered holds both renderings of one broadcast. It is never stored.
type Rendered struct {
	Display string
	Log     string
}

// Render builds the colored display line and the plain log line.
func Render(sender Participant, text string, s Settings) Rendered {
	text = strings.TrimSpace(text)
	aff := sender.Affiliation()
	name := sender.DisplayName()

	var d strings.Builder
	d.Grow(len(text) + len(name) + len(s.ChannelLabel) + 64)
	d.WriteString(colorChannel)
	d.WriteString("[")
	d.WriteString(s.ChannelLabel)
	d.WriteString("]")
	d.WriteString(colorReset)
	d.WriteString(" ")
	d.WriteString(affiliationColor(aff))
	d.WriteString(affiliationTag(aff))
	d.WriteString(colorReset)
	d.WriteString(" ")
	d.WriteString(ClassColor(sender.Class()))
	d.WriteString(name)
	d.WriteString(colorReset)
	d.WriteString(": ")
	d.WriteString(affiliationColor(aff))
	d.WriteString(text)
	d.WriteString(colorReset)

	return Rendered{
		Display: d.String(),
		Log:     "[" + s.ChannelLabel + "] " + affiliationTag(aff) + " " + name + ": " + text,
	}
}

func affiliationTag(a Affiliation) string {
	if a == Horde {
		return "[H]"
	}
	return "[A]"
}

func affiliationColor(a Affiliation) string {
	if a == Horde {
		return colorHorde
	}
	return colorAlly
}

// ClassColor returns the color escape for c; unknown classes are white.
func ClassColor(c Class) string {
	if col, ok := classColors[c]; ok {
		return col
	}
	return colorDefault
}

var markupRe = regexp.MustCompile(`\|c[0-9A-Fa-f]{8}|\|r`)

// StripMarkup removes color escapes, for hosts that can only show plain text.
func StripMarkup(line string) string {
	return markupRe.ReplaceAllString(line, "")
}
