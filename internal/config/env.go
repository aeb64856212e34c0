package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// envOverrides are applied on top of the file on every load, so secrets can
// stay out of the config file.
type envOverrides struct {
	TelegramToken string `env:"WORLDCHAT_TELEGRAM_TOKEN"`
	WSAddr        string `env:"WORLDCHAT_WS_ADDR"`
	LogLevel      string `env:"WORLDCHAT_LOG_LEVEL"`
	ChannelName   string `env:"WORLDCHAT_CHANNEL_NAME"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment.
// A missing file is not an error; existing variables are not overwritten.
func LoadDotEnv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays environment overrides onto cfg. environ is optional and
// replaces the process environment (tests).
func ApplyEnv(cfg *Config, environ map[string]string) error {
	var o envOverrides
	opts := env.Options{}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&o, opts); err != nil {
		return fmt.Errorf("env overrides: %w", err)
	}
	if o.TelegramToken != "" {
		cfg.Telegram.Token = o.TelegramToken
	}
	if o.WSAddr != "" {
		cfg.WebSocket.Addr = o.WSAddr
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if strings.TrimSpace(o.ChannelName) != "" {
		cfg.WorldChat.ChannelName = strings.TrimSpace(o.ChannelName)
	}
	return nil
}
