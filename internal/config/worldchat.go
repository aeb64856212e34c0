package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"worldchat/internal/worldchat"
)

// WorldChatConfig is the "world_chat" block.
//
// Unlike the rest of the file it is decoded leniently: a malformed value
// falls back to its default and is reported in Warnings instead of failing
// the whole load.
type WorldChatConfig struct {
	Enable        bool   `json:"enable"`
	ChannelName   string `json:"channel_name"`
	CrossFactions bool   `json:"cross_factions"`
	Announce      bool   `json:"announce"`

	Warnings []string `json:"-"`
}

func DefaultWorldChat() WorldChatConfig {
	d := worldchat.DefaultSettings()
	return WorldChatConfig{
		Enable:        d.Enabled,
		ChannelName:   d.ChannelLabel,
		CrossFactions: d.CrossAffiliation,
		Announce:      d.AnnounceOnJoin,
	}
}

func (w WorldChatConfig) Settings() worldchat.Settings {
	return worldchat.Settings{
		Enabled:          w.Enable,
		ChannelLabel:     w.ChannelName,
		CrossAffiliation: w.CrossFactions,
		AnnounceOnJoin:   w.Announce,
	}
}

func (w *WorldChatConfig) UnmarshalJSON(b []byte) error {
	*w = DefaultWorldChat()

	var raw map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		w.Warnings = append(w.Warnings, "world_chat: not an object; using defaults")
		return nil
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := raw[k]
		switch strings.ToLower(k) {
		case "enable", "enabled":
			w.Enable = w.lenientBool(k, v, w.Enable)
		case "cross_factions", "crossfactions":
			w.CrossFactions = w.lenientBool(k, v, w.CrossFactions)
		case "announce":
			w.Announce = w.lenientBool(k, v, w.Announce)
		case "channel_name", "channelname":
			var s string
			if err := json.Unmarshal(v, &s); err != nil || strings.TrimSpace(s) == "" {
				w.warn(k, v)
				continue
			}
			w.ChannelName = strings.TrimSpace(s)
		default:
			w.Warnings = append(w.Warnings, fmt.Sprintf("world_chat.%s: unknown key ignored", k))
		}
	}
	return nil
}

func (w *WorldChatConfig) lenientBool(key string, v json.RawMessage, def bool) bool {
	var b bool
	if err := json.Unmarshal(v, &b); err == nil {
		return b
	}
	var s string
	if err := json.Unmarshal(v, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "1", "true", "yes", "on":
			return true
		case "0", "false", "no", "off":
			return false
		}
	}
	if n, err := strconv.ParseFloat(string(v), 64); err == nil {
		return n != 0
	}
	w.warn(key, v)
	return def
}

func (w *WorldChatConfig) warn(key string, v json.RawMessage) {
	w.Warnings = append(w.Warnings, fmt.Sprintf("world_chat.%s: invalid value %s; using default", key, string(v)))
}
