package outbox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	logx "worldchat/pkg/logx"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestQueueDeliversAndCounts(t *testing.T) {
	q := New(Config{Workers: 2, QueueSize: 16, RatePerSec: 1000}, logx.Nop())
	q.Start(context.Background())
	defer q.Stop(context.Background())

	var n atomic.Int64
	for i := 0; i < 5; i++ {
		if err := q.Enqueue("u", func(context.Context) error {
			n.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	_ = q.Enqueue("bad", func(context.Context) error { return errors.New("nope") })

	waitFor(t, func() bool { st := q.Stats(); return st.Sent == 5 && st.Failed == 1 })
	if n.Load() != 5 {
		t.Fatalf("expected 5 sends, got %d", n.Load())
	}
}

func TestQueueRejectsWhenStopped(t *testing.T) {
	q := New(Config{}, logx.Nop())
	if err := q.Enqueue("u", func(context.Context) error { return nil }); !errors.Is(err, ErrNotRunning) {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
	if q.Stats().Dropped != 1 {
		t.Fatalf("drop not counted")
	}
}

func TestQueueFullDrops(t *testing.T) {
	q := New(Config{Workers: 1, QueueSize: 1, RatePerSec: 1000}, logx.Nop())
	q.Start(context.Background())
	defer q.Stop(context.Background())

	block := make(chan struct{})
	started := make(chan struct{})
	_ = q.Enqueue("first", func(context.Context) error {
		close(started)
		<-block
		return nil
	})
	<-started
	_ = q.Enqueue("second", func(context.Context) error { return nil })
	err := q.Enqueue("third", func(context.Context) error { return nil })
	close(block)
	if !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
