package app

import (
	"fmt"
	"strings"
	"time"

	"worldchat/internal/config"
	"worldchat/internal/outbox"
	"worldchat/internal/storage"
	"worldchat/internal/transport/ws"
	logx "worldchat/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapOutboxConfig(cfg *config.Config) outbox.Config {
	return outbox.Config{
		Workers:    cfg.Outbox.Workers,
		QueueSize:  cfg.Outbox.QueueSize,
		RatePerSec: cfg.Outbox.RatePerSec,
	}
}

func mapWebSocketConfig(cfg *config.Config) ws.Config {
	return ws.Config{
		Addr:           strings.TrimSpace(cfg.WebSocket.Addr),
		Path:           strings.TrimSpace(cfg.WebSocket.Path),
		AllowedOrigins: cfg.WebSocket.AllowedOrigins,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg == nil || cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(sc.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDuration("storage.busy_timeout", sc.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: driver, Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", sc.Driver)
	}
}
