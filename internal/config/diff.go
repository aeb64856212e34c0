package config

import (
	"reflect"
	"strings"

	logx "worldchat/pkg/logx"
)

// SummarizeConfigChange returns a compact list of changed sections and safe
// structured fields for logging. Secrets (telegram token) are never included.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	fields := make([]logx.Field, 0, 16)

	if oldCfg.WorldChat.Settings() != newCfg.WorldChat.Settings() {
		s := newCfg.WorldChat.Settings()
		changed = append(changed, "world_chat")
		fields = append(fields,
			logx.Bool("world_chat.enable", s.Enabled),
			logx.String("world_chat.channel_name", s.ChannelLabel),
			logx.Bool("world_chat.cross_factions", s.CrossAffiliation),
			logx.Bool("world_chat.announce", s.AnnounceOnJoin),
		)
	}

	if oldCfg.Announce != newCfg.Announce {
		changed = append(changed, "announce")
		fields = append(fields,
			logx.String("announce.delay", strings.TrimSpace(newCfg.Announce.Delay)),
			logx.String("announce.tick", strings.TrimSpace(newCfg.Announce.Tick)),
			logx.Bool("announce.custom_message", strings.TrimSpace(newCfg.Announce.Message) != ""),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Telegram.Enabled != newCfg.Telegram.Enabled ||
		strings.TrimSpace(oldCfg.Telegram.PollTimeout) != strings.TrimSpace(newCfg.Telegram.PollTimeout) ||
		oldCfg.Telegram.Token != newCfg.Telegram.Token {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Bool("telegram.enabled", newCfg.Telegram.Enabled),
			logx.Bool("telegram.token_set", strings.TrimSpace(newCfg.Telegram.Token) != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.WebSocket, newCfg.WebSocket) {
		changed = append(changed, "websocket")
		fields = append(fields,
			logx.Bool("websocket.enabled", newCfg.WebSocket.Enabled),
			logx.String("websocket.addr", newCfg.WebSocket.Addr),
		)
	}

	if oldCfg.Outbox != newCfg.Outbox {
		changed = append(changed, "outbox")
		fields = append(fields, logx.Int("outbox.rate_per_sec", newCfg.Outbox.RatePerSec))
	}

	if !reflect.DeepEqual(oldCfg.Storage, newCfg.Storage) {
		changed = append(changed, "storage")
	}
	return changed, fields
}

// RestartRequired lists changed sections that only take effect after a
// restart (listeners, bot token, storage backend).
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "telegram", "websocket", "storage":
			out = append(out, c)
		}
	}
	return out
}
