package worldchat

import (
	"strings"
	"sync/atomic"
)

const DefaultChannelLabel = "Global"

// Settings is an immutable snapshot of the world chat options.
type Settings struct {
	Enabled          bool
	ChannelLabel     string
	CrossAffiliation bool
	AnnounceOnJoin   bool
}

func DefaultSettings() Settings {
	return Settings{
		Enabled:          true,
		ChannelLabel:     DefaultChannelLabel,
		CrossAffiliation: true,
		AnnounceOnJoin:   true,
	}
}

// MatchesChannel reports whether name is the configured channel (case-insensitive).
func (s Settings) MatchesChannel(name string) bool {
	if s.ChannelLabel == "" {
		return false
	}
	return strings.EqualFold(name, s.ChannelLabel)
}

// SettingsStore publishes Settings snapshots. Readers always observe a whole
// snapshot; Store replaces it in one step.
type SettingsStore struct {
	p atomic.Pointer[Settings]
}

func NewSettingsStore(s Settings) *SettingsStore {
	st := &SettingsStore{}
	st.Store(s)
	return st
}

func (st *SettingsStore) Load() Settings {
	if p := st.p.Load(); p != nil {
		return *p
	}
	return DefaultSettings()
}

func (st *SettingsStore) Store(s Settings) {
	cp := s
	st.p.Store(&cp)
}

// OnConfigLoad lets the store be registered as a config listener.
func (st *SettingsStore) OnConfigLoad(s Settings) { st.Store(s) }
