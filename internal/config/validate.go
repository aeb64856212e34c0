package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"worldchat/internal/announce"
)

// Validate rejects configs that cannot be applied. The world_chat block is
// never rejected; it falls back to defaults on its own.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	if _, err := ParseDuration("announce.delay", cfg.Announce.Delay, 0); err != nil {
		errs = append(errs, err)
	}
	if err := announce.ValidateSpec(cfg.Announce.Tick); err != nil {
		errs = append(errs, err)
	}
	if _, err := ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 0); err != nil {
		errs = append(errs, err)
	}
	if cfg.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.Token) == "" {
		errs = append(errs, errors.New("telegram.token is required when telegram.enabled"))
	}
	if cfg.WebSocket.Enabled && strings.TrimSpace(cfg.WebSocket.Addr) == "" {
		errs = append(errs, errors.New("websocket.addr is required when websocket.enabled"))
	}
	if p := strings.TrimSpace(cfg.WebSocket.Path); p != "" && !strings.HasPrefix(p, "/") {
		errs = append(errs, fmt.Errorf("websocket.path must start with '/': %q", p))
	}
	if cfg.Outbox.Workers < 0 || cfg.Outbox.QueueSize < 0 || cfg.Outbox.RatePerSec < 0 {
		errs = append(errs, errors.New("outbox values must be >= 0"))
	}
	if cfg.Storage != nil {
		if _, err := ParseDuration("storage.busy_timeout", cfg.Storage.BusyTimeout, 0); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ParseDuration reads a duration field such as "10s". Blank or zero means
// def; negative values are rejected. field names the key in errors.
func ParseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	switch {
	case err != nil:
		return 0, fmt.Errorf("%s: %q is not a duration: %w", field, raw, err)
	case d < 0:
		return 0, fmt.Errorf("%s: must not be negative, got %s", field, d)
	case d == 0:
		return def, nil
	}
	return d, nil
}
