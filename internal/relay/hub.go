package relay

import (
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"worldchat/internal/worldchat"
)

// Hub is the registration shim between hosts and listeners.
type Hub struct {
	mu        sync.RWMutex
	configs   []ConfigListener
	commands  map[string]CommandHandler
	observers []ChannelObserver
	sessions  []SessionLifecycleListener
	tickers   []Ticker
}

func NewHub() *Hub {
	return &Hub{commands: map[string]CommandHandler{}}
}

// Register adds v under every contract it implements.
func (h *Hub) Register(vs ...any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, v := range vs {
		if l, ok := v.(ConfigListener); ok {
			h.configs = append(h.configs, l)
		}
		if c, ok := v.(CommandHandler); ok {
			h.commands[strings.ToLower(c.Command())] = c
		}
		if o, ok := v.(ChannelObserver); ok {
			h.observers = append(h.observers, o)
		}
		if s, ok := v.(SessionLifecycleListener); ok {
			h.sessions = append(h.sessions, s)
		}
		if t, ok := v.(Ticker); ok {
			h.tickers = append(h.tickers, t)
		}
	}
}

func (h *Hub) LoadConfig(s worldchat.Settings) {
	h.mu.RLock()
	ls := append([]ConfigListener(nil), h.configs...)
	h.mu.RUnlock()
	for _, l := range ls {
		l.OnConfigLoad(s)
	}
}

// Dispatch runs a command. It reports false for unknown commands.
func (h *Hub) Dispatch(name string, invoker worldchat.Participant, tail string) bool {
	h.mu.RLock()
	c, ok := h.commands[strings.ToLower(strings.TrimSpace(name))]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	c.Handle(invoker, tail)
	return true
}

// HasCommand reports whether a handler is registered under name.
func (h *Hub) HasCommand(name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.commands[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// ObserveChannel shows msg to every observer and reports whether any of them
// asked to suppress it.
func (h *Hub) ObserveChannel(sender worldchat.Participant, msg ChannelMessage) bool {
	h.mu.RLock()
	obs := append([]ChannelObserver(nil), h.observers...)
	h.mu.RUnlock()
	suppress := false
	for _, o := range obs {
		if o.OnChannelMessage(sender, msg) {
			suppress = true
		}
	}
	return suppress
}

func (h *Hub) Login(p worldchat.Participant) {
	for _, s := range h.sessionListeners() {
		s.OnLogin(p)
	}
}

func (h *Hub) Logout(p worldchat.Participant) {
	for _, s := range h.sessionListeners() {
		s.OnLogout(p)
	}
}

func (h *Hub) sessionListeners() []SessionLifecycleListener {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]SessionLifecycleListener(nil), h.sessions...)
}

// OnTick forwards to every ticker, so the Hub itself can be driven.
func (h *Hub) OnTick(elapsed time.Duration) {
	h.mu.RLock()
	ts := append([]Ticker(nil), h.tickers...)
	h.mu.RUnlock()
	for _, t := range ts {
		t.OnTick(elapsed)
	}
}

// ParseCommand splits ".chat hello" or "/chat hello" into ("chat", "hello").
// ok is false when line is not a command.
func ParseCommand(line string) (name, tail string, ok bool) {
	line = strings.TrimLeft(line, " \t")
	if line == "" || (line[0] != '.' && line[0] != '/') {
		return "", "", false
	}
	line = line[1:]
	name = line
	if i := strings.IndexFunc(line, unicode.IsSpace); i >= 0 {
		_, size := utf8.DecodeRuneInString(line[i:])
		name, tail = line[:i], line[i+size:]
	}
	// Telegram appends the bot name: /chat@my_bot
	name, _, _ = strings.Cut(name, "@")
	if name == "" {
		return "", "", false
	}
	return strings.ToLower(name), tail, true
}
