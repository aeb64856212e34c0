package config

import (
	"strings"
	"time"

	"worldchat/internal/announce"
	"worldchat/internal/worldchat"
)

type Config struct {
	WorldChat WorldChatConfig `json:"world_chat"`
	Announce  AnnounceConfig  `json:"announce"`
	Logging   LoggingConfig   `json:"logging"`
	Telegram  TelegramConfig  `json:"telegram"`
	WebSocket WebSocketConfig `json:"websocket"`
	Outbox    OutboxConfig    `json:"outbox"`
	Storage   *StorageConfig  `json:"storage,omitempty"`
}

// Default returns the configuration used for every omitted key.
func Default() *Config {
	return &Config{
		WorldChat: DefaultWorldChat(),
		Announce: AnnounceConfig{
			Delay: "10s",
			Tick:  announce.DefaultTickSpec,
		},
		Logging: LoggingConfig{Level: "info", Console: true},
		Telegram: TelegramConfig{
			PollTimeout: "10s",
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
			Addr:    "127.0.0.1:8089",
			Path:    "/ws",
		},
		Outbox: OutboxConfig{Workers: 2, QueueSize: 1024, RatePerSec: 25},
	}
}

// AnnounceConfig controls the delayed login reminder.
//
// All durations are Go duration strings (e.g. "500ms", "10s").
// Tick is a cron spec; "@every 1s" by default.
type AnnounceConfig struct {
	Delay   string `json:"delay,omitempty"`
	Tick    string `json:"tick,omitempty"`
	Message string `json:"message,omitempty"`
}

// DelayDuration returns the parsed delay, falling back to 10s.
func (a AnnounceConfig) DelayDuration() time.Duration {
	d, err := ParseDuration("announce.delay", a.Delay, announce.DefaultDelay)
	if err != nil {
		return announce.DefaultDelay
	}
	return d
}

// Reminder returns the configured reminder or the one derived from label.
func (a AnnounceConfig) Reminder(label string) string {
	if m := strings.TrimSpace(a.Message); m != "" {
		return m
	}
	return announce.DefaultReminder(label)
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type TelegramConfig struct {
	Enabled bool   `json:"enabled"`
	Token   string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout"`
}

// WebSocketConfig controls the WebSocket host.
//
// AllowedOrigins empty means same-origin only (gorilla's default check).
type WebSocketConfig struct {
	Enabled        bool     `json:"enabled"`
	Addr           string   `json:"addr"`
	Path           string   `json:"path"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// OutboxConfig controls asynchronous delivery to transports.
type OutboxConfig struct {
	Workers    int `json:"workers"`
	QueueSize  int `json:"queue_size"`
	RatePerSec int `json:"rate_per_sec"`
}

// StorageConfig controls profile persistence.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/worldchat.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
}

// Settings returns the core snapshot for this config.
func (c *Config) Settings() worldchat.Settings {
	if c == nil {
		return worldchat.DefaultSettings()
	}
	return c.WorldChat.Settings()
}
