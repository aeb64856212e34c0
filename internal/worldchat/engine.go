package worldchat

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	logx "worldchat/pkg/logx"
)

// Outcome describes what one Send call did. Reason is set when nothing was
// broadcast and is informational only.
type Outcome struct {
	Consumed    bool
	Delivered   int
	Unreachable int
	Reason      error
}

// Engine fans a message out to every eligible participant of a directory.
type Engine struct {
	settings *SettingsStore
	dir      Directory
	log      logx.Logger
}

func NewEngine(settings *SettingsStore, dir Directory, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	if settings == nil {
		settings = NewSettingsStore(DefaultSettings())
	}
	return &Engine{settings: settings, dir: dir, log: log}
}

// Settings returns the snapshot currently in effect.
func (e *Engine) Settings() Settings { return e.settings.Load() }

// Send broadcasts raw from sender. It never fails loudly: when nothing is
// sent the Outcome carries the reason and Consumed is false.
func (e *Engine) Send(sender Participant, raw string) Outcome {
	s := e.settings.Load()
	if !s.Enabled {
		return Outcome{Reason: ErrDisabled}
	}
	if sender == nil || !sender.Present() {
		return Outcome{Reason: ErrNoSender}
	}
	text := strings.TrimSpace(raw)
	if text == "" {
		return Outcome{Reason: ErrEmptyMessage}
	}

	r := Render(sender, text, s)
	id := uuid.NewString()

	out := Outcome{Consumed: true}
	if e.dir != nil {
		e.dir.Each(func(recv Participant) bool {
			if recv == nil || !recv.Present() {
				return true
			}
			if !ShouldDeliver(sender, recv, s) {
				return true
			}
			if err := recv.Notify(r.Display); err != nil {
				out.Unreachable++
				e.log.Debug("recipient skipped",
					logx.String("broadcast_id", id),
					logx.String("recipient", recv.ID()),
					logx.Err(fmt.Errorf("%w: %v", ErrRecipientUnreachable, err)),
				)
				return true
			}
			out.Delivered++
			return true
		})
	}

	e.log.Info("world chat",
		logx.String("line", r.Log),
		logx.String("broadcast_id", id),
		logx.String("sender", sender.ID()),
		logx.Int("delivered", out.Delivered),
	)
	return out
}
