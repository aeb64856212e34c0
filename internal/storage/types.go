package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrNotFound = errors.New("profile not found")
)

// Config configures storage.
//
// Driver values:
//   - "file": JSON snapshot file
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Profile is what a participant chose when joining.
type Profile struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Affiliation string    `json:"affiliation"`
	Class       string    `json:"class"`
	UpdatedAt   time.Time `json:"updated_at"`
}
