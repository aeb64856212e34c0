package announce

import (
	"fmt"
	"sync"
	"time"

	"worldchat/internal/worldchat"
	logx "worldchat/pkg/logx"
)

// DefaultDelay is how long after login the reminder fires.
const DefaultDelay = 10 * time.Second

// DefaultReminder is the reminder line for a channel label.
func DefaultReminder(label string) string {
	if label == "" {
		label = worldchat.DefaultChannelLabel
	}
	return fmt.Sprintf("[%s Chat] Type \"/join %s\" to talk to all players on the server regardless of faction.", label, label)
}

// Scheduler owns one pending reminder per participant id.
//
// Arm, Cancel and Advance hold the same mutex, so at most one entry per id
// exists at any time. Reminders are delivered after the mutex is released.
type Scheduler struct {
	dir worldchat.Directory
	log logx.Logger

	mu       sync.Mutex
	pending  map[string]time.Duration
	delay    time.Duration
	reminder string
}

func NewScheduler(dir worldchat.Directory, log logx.Logger) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Scheduler{
		dir:      dir,
		log:      log,
		pending:  map[string]time.Duration{},
		delay:    DefaultDelay,
		reminder: DefaultReminder(worldchat.DefaultChannelLabel),
	}
}

// Configure sets the delay used by future Arm calls and the reminder text.
// Already armed entries keep their remaining time.
func (s *Scheduler) Configure(delay time.Duration, reminder string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if delay > 0 {
		s.delay = delay
	}
	if reminder != "" {
		s.reminder = reminder
	}
}

// Arm schedules (or restarts) the reminder for id.
func (s *Scheduler) Arm(id string) {
	if id == "" {
		return
	}
	s.mu.Lock()
	s.pending[id] = s.delay
	s.mu.Unlock()
}

// Cancel drops the reminder for id. Unknown ids are ignored.
func (s *Scheduler) Cancel(id string) {
	s.mu.Lock()
	delete(s.pending, id)
	s.mu.Unlock()
}

// Advance moves every pending reminder forward by elapsed. Reminders that
// run out are removed and sent to their participant if still present.
// It returns the number of reminders delivered.
func (s *Scheduler) Advance(elapsed time.Duration) int {
	if elapsed < 0 {
		elapsed = 0
	}

	s.mu.Lock()
	if len(s.pending) == 0 {
		s.mu.Unlock()
		return 0
	}
	var due []string
	for id, remain := range s.pending {
		if remain <= elapsed {
			due = append(due, id)
			delete(s.pending, id)
			continue
		}
		s.pending[id] = remain - elapsed
	}
	line := s.reminder
	s.mu.Unlock()

	sent := 0
	for _, id := range due {
		if s.dir == nil {
			break
		}
		p, ok := s.dir.Find(id)
		if !ok || p == nil || !p.Present() {
			s.log.Debug("reminder dropped; participant gone", logx.String("participant", id))
			continue
		}
		if err := p.Notify(line); err != nil {
			s.log.Debug("reminder not delivered", logx.String("participant", id), logx.Err(err))
			continue
		}
		sent++
	}
	return sent
}

// OnTick lets the scheduler be registered as a ticker.
func (s *Scheduler) OnTick(elapsed time.Duration) { s.Advance(elapsed) }

// Remaining reports the time left for id.
func (s *Scheduler) Remaining(id string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.pending[id]
	return d, ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Clear drops every pending reminder without sending anything.
func (s *Scheduler) Clear() {
	s.mu.Lock()
	s.pending = map[string]time.Duration{}
	s.mu.Unlock()
}
