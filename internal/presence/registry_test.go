package presence

import (
	"errors"
	"testing"

	"worldchat/internal/worldchat"
)

func TestJoinReplacesAndClosesPrevious(t *testing.T) {
	r := NewRegistry()
	var got []string
	first := NewSession("u1", "Jaina", worldchat.Alliance, worldchat.Mage, func(line string) error {
		got = append(got, "first:"+line)
		return nil
	})
	second := NewSession("u1", "Jaina", worldchat.Alliance, worldchat.Mage, func(line string) error {
		got = append(got, "second:"+line)
		return nil
	})

	if prev := r.Join(first); prev != nil {
		t.Fatalf("unexpected previous session")
	}
	if prev := r.Join(second); prev != first {
		t.Fatalf("expected first session to be returned")
	}
	if first.Present() {
		t.Fatalf("replaced session should be closed")
	}
	if err := first.Notify("x"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("closed session Notify err = %v", err)
	}
	if r.Len() != 1 {
		t.Fatalf("expected one session, got %d", r.Len())
	}

	if r.LeaveSession(first) {
		t.Fatalf("stale session must not evict the current one")
	}
	p, ok := r.Find("u1")
	if !ok || p.Notify("y") != nil {
		t.Fatalf("current session should still be reachable")
	}
	if len(got) != 1 || got[0] != "second:y" {
		t.Fatalf("got %q", got)
	}
}

func TestLeaveAndEach(t *testing.T) {
	r := NewRegistry()
	for _, id := range []string{"c", "a", "b"} {
		r.Join(NewSession(id, id, worldchat.Horde, worldchat.Druid, nil))
	}
	var ids []string
	r.Each(func(p worldchat.Participant) bool {
		ids = append(ids, p.ID())
		return true
	})
	if len(ids) != 3 || ids[0] != "a" || ids[2] != "c" {
		t.Fatalf("Each order: %v", ids)
	}

	s, ok := r.Leave("b")
	if !ok || s.Present() {
		t.Fatalf("Leave should close the session")
	}
	if _, ok := r.Leave("b"); ok {
		t.Fatalf("second Leave should report false")
	}
	if _, ok := r.Find("b"); ok {
		t.Fatalf("b should be gone")
	}

	n := 0
	r.Each(func(worldchat.Participant) bool {
		n++
		return false
	})
	if n != 1 {
		t.Fatalf("Each should stop when fn returns false")
	}
}
