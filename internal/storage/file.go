package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "worldchat/pkg/logx"
)

// fileStore keeps all profiles in memory and rewrites <prefix>.profiles.json
// on every change (write to temp file, then rename).
type fileStore struct {
	log  logx.Logger
	path string

	mu       sync.Mutex
	profiles map[string]Profile
	closed   bool
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		log:      log,
		path:     filepath.Join(dir, base+".profiles.json"),
		profiles: map[string]Profile{},
	}
	b, err := os.ReadFile(s.path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		var list []Profile
		if err := json.Unmarshal(b, &list); err != nil {
			return nil, fmt.Errorf("storage: decode %s: %w", s.path, err)
		}
		for _, p := range list {
			s.profiles[p.ID] = p
		}
	}
	log.Debug("profiles loaded", logx.String("path", s.path), logx.Int("count", len(s.profiles)))
	return s, nil
}

func (s *fileStore) GetProfile(ctx context.Context, id string) (Profile, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Profile{}, ErrDisabled
	}
	p, ok := s.profiles[id]
	if !ok {
		return Profile{}, ErrNotFound
	}
	return p, nil
}

func (s *fileStore) PutProfile(ctx context.Context, p Profile) error {
	_ = ctx
	if p.ID == "" {
		return errors.New("profile id is required")
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	s.profiles[p.ID] = p
	return s.flushLocked()
}

func (s *fileStore) DeleteProfile(ctx context.Context, id string) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrDisabled
	}
	if _, ok := s.profiles[id]; !ok {
		return nil
	}
	delete(s.profiles, id)
	return s.flushLocked()
}

func (s *fileStore) flushLocked() error {
	list := make([]Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		list = append(list, p)
	}
	b, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
