// Package presence keeps the set of participants currently logged in.
package presence

import (
	"errors"
	"sort"
	"sync"
	"sync/atomic"

	"worldchat/internal/worldchat"
)

var ErrSessionClosed = errors.New("session closed")

// DeliverFunc hands a line to the transport that owns the session.
// Implementations must not block.
type DeliverFunc func(line string) error

// Session is one logged-in participant.
type Session struct {
	id      string
	name    string
	aff     worldchat.Affiliation
	class   worldchat.Class
	deliver DeliverFunc

	closed atomic.Bool
}

func NewSession(id, name string, aff worldchat.Affiliation, class worldchat.Class, deliver DeliverFunc) *Session {
	return &Session{id: id, name: name, aff: aff, class: class, deliver: deliver}
}

func (s *Session) ID() string                         { return s.id }
func (s *Session) DisplayName() string                { return s.name }
func (s *Session) Affiliation() worldchat.Affiliation { return s.aff }
func (s *Session) Class() worldchat.Class             { return s.class }
func (s *Session) Present() bool                      { return !s.closed.Load() }

func (s *Session) Notify(line string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	if s.deliver == nil {
		return nil
	}
	return s.deliver(line)
}

// Close marks the session gone. Further Notify calls fail.
func (s *Session) Close() { s.closed.Store(true) }

// Registry is a worldchat.Directory backed by a map of sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Join registers s. A previous session with the same id is closed and
// returned.
func (r *Registry) Join(s *Session) *Session {
	r.mu.Lock()
	prev := r.sessions[s.id]
	r.sessions[s.id] = s
	r.mu.Unlock()
	if prev != nil && prev != s {
		prev.Close()
		return prev
	}
	return nil
}

// Leave removes id and closes its session.
func (r *Registry) Leave(id string) (*Session, bool) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		s.Close()
	}
	return s, ok
}

// LeaveSession removes s only if it is still the registered session for its
// id, so a stale disconnect cannot evict a newer login.
func (r *Registry) LeaveSession(s *Session) bool {
	r.mu.Lock()
	cur, ok := r.sessions[s.id]
	if ok && cur == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()
	s.Close()
	return ok && cur == s
}

func (r *Registry) Find(id string) (worldchat.Participant, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return s, true
}

// Session returns the concrete session for id.
func (r *Registry) Session(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Each iterates over a snapshot, so fn may call back into the registry.
func (r *Registry) Each(fn func(worldchat.Participant) bool) {
	for _, s := range r.Snapshot() {
		if !fn(s) {
			return
		}
	}
}

// Snapshot returns the current sessions ordered by id.
func (r *Registry) Snapshot() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
