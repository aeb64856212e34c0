package ws

import (
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"worldchat/internal/presence"
	"worldchat/internal/relay"
	"worldchat/internal/worldchat"
	logx "worldchat/pkg/logx"
)

func newTestServer(t *testing.T, s worldchat.Settings) (*httptest.Server, *presence.Registry) {
	t.Helper()
	dir := presence.NewRegistry()
	settings := worldchat.NewSettingsStore(s)
	engine := worldchat.NewEngine(settings, dir, logx.Nop())
	hub := relay.NewHub()
	hub.Register(settings, relay.NewChatCommand(engine, nil), relay.NewChannelRelay(engine, logx.Nop()))

	srv := New(Config{Path: "/ws"}, hub, dir, logx.Nop())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, dir
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var f Frame
	if err := conn.ReadJSON(&f); err != nil || f.Type != "welcome" {
		t.Fatalf("expected welcome, got %+v (%v)", f, err)
	}
	return conn
}

func readFrame(t *testing.T, c *websocket.Conn) Frame {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(2 * time.Second))
	var f Frame
	if err := c.ReadJSON(&f); err != nil {
		t.Fatalf("read: %v", err)
	}
	return f
}

func expectSilence(t *testing.T, c *websocket.Conn) {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	var f Frame
	if err := c.ReadJSON(&f); err == nil {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestChatCommandReachesBothSidesWhenCrossEnabled(t *testing.T) {
	ts, _ := newTestServer(t, worldchat.DefaultSettings())
	alice := dial(t, ts, "id=alice&name=Alice&side=alliance&class=mage")
	hugo := dial(t, ts, "id=hugo&name=Hugo&side=horde&class=warrior")

	if err := alice.WriteJSON(Frame{Type: "command", Command: "chat", Args: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, c := range []*websocket.Conn{alice, hugo} {
		f := readFrame(t, c)
		if f.Type != "system" || !strings.Contains(f.Text, "Alice") || !strings.Contains(f.Text, "hello") {
			t.Fatalf("unexpected frame %+v", f)
		}
	}
}

func TestChatCommandStaysOnSenderSideWhenCrossDisabled(t *testing.T) {
	s := worldchat.DefaultSettings()
	s.CrossAffiliation = false
	ts, _ := newTestServer(t, s)
	alice := dial(t, ts, "id=alice&name=Alice&side=alliance")
	hugo := dial(t, ts, "id=hugo&name=Hugo&side=horde")

	if err := alice.WriteJSON(Frame{Type: "command", Command: "chat", Args: "hello"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, alice); f.Type != "system" {
		t.Fatalf("sender should get own line, got %+v", f)
	}
	expectSilence(t, hugo)
}

func TestChannelMessageSuppressedOnlyForWorldChannel(t *testing.T) {
	ts, _ := newTestServer(t, worldchat.DefaultSettings())
	alice := dial(t, ts, "id=alice&name=Alice&side=alliance")

	if err := alice.WriteJSON(Frame{Type: "chat", Channel: "global", Text: "hi all"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, alice); f.Type != "system" {
		t.Fatalf("world channel message should be relayed, got %+v", f)
	}

	if err := alice.WriteJSON(Frame{Type: "chat", Channel: "Trade", Text: "wts"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, alice); f.Type != "channel" || f.Channel != "Trade" {
		t.Fatalf("other channel should echo untouched, got %+v", f)
	}
}

func TestEmptyChatShowsUsage(t *testing.T) {
	ts, _ := newTestServer(t, worldchat.DefaultSettings())
	alice := dial(t, ts, "id=alice&side=alliance")
	if err := alice.WriteJSON(Frame{Type: "command", Command: "chat", Args: "   "}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, alice); f.Text != relay.ChatUsage {
		t.Fatalf("expected usage, got %+v", f)
	}
}

func TestDisconnectLeavesRegistry(t *testing.T) {
	ts, dir := newTestServer(t, worldchat.DefaultSettings())
	alice := dial(t, ts, "id=alice&side=alliance")
	if dir.Len() != 1 {
		t.Fatalf("expected 1 session, got %d", dir.Len())
	}
	_ = alice.Close()

	deadline := time.Now().Add(2 * time.Second)
	for dir.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("session not removed after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestReloginClosesReplacedConnection(t *testing.T) {
	ts, dir := newTestServer(t, worldchat.DefaultSettings())
	first := dial(t, ts, "id=alice&name=Alice&side=alliance")
	second := dial(t, ts, "id=alice&name=Alice&side=alliance")

	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var f Frame
		err := first.ReadJSON(&f)
		if err == nil {
			continue
		}
		var ne net.Error
		if errors.As(err, &ne) && ne.Timeout() {
			t.Fatalf("replaced connection was left open")
		}
		break
	}
	if dir.Len() != 1 {
		t.Fatalf("expected one live session, got %d", dir.Len())
	}
	if _, ok := dir.Find("alice"); !ok {
		t.Fatalf("the newer login must stay registered")
	}

	if err := second.WriteJSON(Frame{Type: "command", Command: "chat", Args: "still here"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if f := readFrame(t, second); !strings.Contains(f.Text, "still here") {
		t.Fatalf("unexpected frame %+v", f)
	}
}

func TestRejectsBadSide(t *testing.T) {
	ts, _ := newTestServer(t, worldchat.DefaultSettings())
	resp, err := http.Get(ts.URL + "/ws?id=x&side=scourge")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestOriginAllowed(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Origin", "https://chat.example.org")
	if !originAllowed(r, []string{"chat.example.org"}) {
		t.Fatalf("host match should be allowed")
	}
	if originAllowed(r, []string{"other.example.org"}) {
		t.Fatalf("foreign origin should be rejected")
	}
}
