package telegram

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"worldchat/internal/outbox"
	"worldchat/internal/presence"
	"worldchat/internal/relay"
	"worldchat/internal/storage"
	"worldchat/internal/worldchat"
	logx "worldchat/pkg/logx"
	"worldchat/pkg/tgui"
)

type sent struct {
	to   string
	text string
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sent
	deleted []string
}

func (f *fakeMessenger) Send(to tele.Recipient, what interface{}, _ ...interface{}) (*tele.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, _ := what.(string)
	f.sent = append(f.sent, sent{to: to.Recipient(), text: text})
	return &tele.Message{}, nil
}

func (f *fakeMessenger) Delete(msg tele.Editable) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, _ := msg.MessageSig()
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeMessenger) textsTo(chat string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, s := range f.sent {
		if s.to == chat {
			out = append(out, s.text)
		}
	}
	return out
}

func (f *fakeMessenger) deletes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func hasText(texts []string, sub string) bool {
	for _, s := range texts {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func newTestHost(t *testing.T, store storage.Store) (*Host, *fakeMessenger, *presence.Registry) {
	t.Helper()
	dir := presence.NewRegistry()
	settings := worldchat.NewSettingsStore(worldchat.DefaultSettings())
	engine := worldchat.NewEngine(settings, dir, logx.Nop())
	hub := relay.NewHub()
	hub.Register(settings, relay.NewChatCommand(engine, nil), relay.NewChannelRelay(engine, logx.Nop()))

	q := outbox.New(outbox.Config{Workers: 1, QueueSize: 64, RatePerSec: 1000}, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	t.Cleanup(func() {
		stopCtx, stop := context.WithTimeout(context.Background(), time.Second)
		defer stop()
		q.Stop(stopCtx)
		cancel()
	})

	m := &fakeMessenger{}
	return newHost(hub, dir, q, store, m, logx.Nop()), m, dir
}

func private(user int64, text string) Incoming {
	return Incoming{ChatID: user, Private: true, UserID: user, Text: text}
}

func TestJoinChatAndLeave(t *testing.T) {
	h, m, dir := newTestHost(t, nil)
	ctx := context.Background()

	h.HandleText(ctx, private(1, "/join horde warrior Grom"))
	h.HandleText(ctx, private(2, "/join alliance Jaina Proudmoore"))
	if dir.Len() != 2 {
		t.Fatalf("expected 2 sessions, got %d", dir.Len())
	}
	waitFor(t, "join confirmation", func() bool { return hasText(m.textsTo("1"), "Joined world chat as <b>Grom</b> (horde)") })

	h.HandleText(ctx, private(1, "/chat lok tar"))
	for _, chat := range []string{"1", "2"} {
		chat := chat
		waitFor(t, "broadcast to "+chat, func() bool { return hasText(m.textsTo(chat), "Grom: lok tar") })
	}
	for _, s := range m.textsTo("2") {
		if strings.Contains(s, "|c") {
			t.Fatalf("markup should be stripped for telegram: %q", s)
		}
	}

	h.HandleText(ctx, private(1, "/leave"))
	if dir.Len() != 1 {
		t.Fatalf("leave should remove the session")
	}
	waitFor(t, "leave reply", func() bool { return hasText(m.textsTo("1"), LeftMsg) })
}

func TestCommandBeforeJoin(t *testing.T) {
	h, m, _ := newTestHost(t, nil)
	h.HandleText(context.Background(), private(7, "/chat hi"))
	waitFor(t, "not joined reply", func() bool { return hasText(m.textsTo("7"), tgui.Esc(NotJoinedMsg).String()) })
}

func TestGroupChannelLineIsRelayedAndDeleted(t *testing.T) {
	h, m, _ := newTestHost(t, nil)
	ctx := context.Background()
	h.HandleText(ctx, private(1, "/join alliance mage Jaina"))

	h.HandleText(ctx, Incoming{MessageID: 10, ChatID: -100, ChatTitle: "global", UserID: 1, Text: "for the alliance"})
	waitFor(t, "relay", func() bool { return hasText(m.textsTo("1"), "Jaina: for the alliance") })
	if m.deletes() != 1 {
		t.Fatalf("relayed group line should be deleted, deletes=%d", m.deletes())
	}

	h.HandleText(ctx, Incoming{MessageID: 11, ChatID: -200, ChatTitle: "Trade", UserID: 1, Text: "wts"})
	if m.deletes() != 1 {
		t.Fatalf("other groups must be left alone")
	}
}

func TestGroupLinesWithCommandPrefixAreChannelText(t *testing.T) {
	h, m, _ := newTestHost(t, nil)
	ctx := context.Background()
	h.HandleText(ctx, private(1, "/join alliance mage Jaina"))

	h.HandleText(ctx, Incoming{MessageID: 20, ChatID: -100, ChatTitle: "Global", UserID: 1, Text: "...for the alliance"})
	waitFor(t, "dot line relay", func() bool { return hasText(m.textsTo("1"), "Jaina: ...for the alliance") })
	h.HandleText(ctx, Incoming{MessageID: 21, ChatID: -100, ChatTitle: "Global", UserID: 1, Text: "/shrug"})
	waitFor(t, "slash line relay", func() bool { return hasText(m.textsTo("1"), "Jaina: /shrug") })
	if m.deletes() != 2 {
		t.Fatalf("both relayed lines should be deleted, deletes=%d", m.deletes())
	}

	// Registered commands still work from a group.
	h.HandleText(ctx, Incoming{MessageID: 22, ChatID: -100, ChatTitle: "Global", UserID: 1, Text: "/chat@worldchat_bot hello"})
	waitFor(t, "group command", func() bool { return hasText(m.textsTo("1"), "Jaina: hello") })
	if m.deletes() != 2 {
		t.Fatalf("commands are not channel lines, deletes=%d", m.deletes())
	}
}

func TestMultiLineChatCommand(t *testing.T) {
	h, m, _ := newTestHost(t, nil)
	ctx := context.Background()
	h.HandleText(ctx, private(1, "/join horde Grom"))
	h.HandleText(ctx, private(1, "/chat\nlok tar"))
	waitFor(t, "multi-line chat", func() bool { return hasText(m.textsTo("1"), "Grom: lok tar") })

	h.HandleText(ctx, private(1, "/who"))
	waitFor(t, "unknown command reply", func() bool { return hasText(m.textsTo("1"), "Unknown command <code>/who</code>") })
}

func TestLeaveForgetDropsProfile(t *testing.T) {
	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "wc")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h, m, dir := newTestHost(t, store)
	ctx := context.Background()
	h.HandleText(ctx, private(5, "/join alliance Varian"))
	h.HandleText(ctx, private(5, "/leave forget"))
	if dir.Len() != 0 {
		t.Fatalf("leave forget should also leave")
	}
	waitFor(t, "forget reply", func() bool { return hasText(m.textsTo("5"), "<i>Saved profile removed.</i>") })
	if _, err := store.GetProfile(ctx, "tg:5"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("profile should be gone, got %v", err)
	}

	h.HandleText(ctx, private(5, "/start"))
	if dir.Len() != 0 {
		t.Fatalf("start must not rejoin a forgotten profile")
	}
}

func TestStartRejoinsFromStoredProfile(t *testing.T) {
	store, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "wc")}, logx.Nop())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h, m, dir := newTestHost(t, store)
	ctx := context.Background()
	h.HandleText(ctx, private(3, "/join horde shaman Thrall"))
	h.HandleText(ctx, private(3, "/leave"))
	if dir.Len() != 0 {
		t.Fatalf("expected empty registry")
	}

	h.HandleText(ctx, private(3, "/start"))
	p, ok := dir.Find("tg:3")
	if !ok {
		t.Fatalf("start should rejoin from profile")
	}
	if p.DisplayName() != "Thrall" || p.Affiliation() != worldchat.Horde || p.Class() != worldchat.Shaman {
		t.Fatalf("profile not restored: %s %s %s", p.DisplayName(), p.Affiliation(), p.Class())
	}

	h.HandleText(ctx, private(4, "/start"))
	waitFor(t, "usage for unknown user", func() bool { return hasText(m.textsTo("4"), tgui.Esc(JoinUsage).String()) })
}

func TestParseJoinArgs(t *testing.T) {
	cases := []struct {
		in    string
		aff   worldchat.Affiliation
		class worldchat.Class
		name  string
		err   bool
	}{
		{in: "horde", aff: worldchat.Horde},
		{in: "a death_knight Arthas", aff: worldchat.Alliance, class: worldchat.DeathKnight, name: "Arthas"},
		{in: "alliance Jaina Proudmoore", aff: worldchat.Alliance, name: "Jaina Proudmoore"},
		{in: "", err: true},
		{in: "scourge lich", err: true},
	}
	for _, tc := range cases {
		aff, class, name, err := ParseJoinArgs(tc.in)
		if tc.err {
			if err == nil {
				t.Fatalf("%q: expected error", tc.in)
			}
			continue
		}
		if err != nil || aff != tc.aff || class != tc.class || name != tc.name {
			t.Fatalf("%q: got %v %v %q %v", tc.in, aff, class, name, err)
		}
	}
}
