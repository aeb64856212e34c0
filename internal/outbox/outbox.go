// Package outbox delivers lines to transports asynchronously so the chat
// core never waits on network I/O.
package outbox

import (
	"context"
	"errors"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	logx "worldchat/pkg/logx"
)

var (
	ErrQueueFull  = errors.New("outbox queue full")
	ErrNotRunning = errors.New("outbox not running")
)

type Config struct {
	Workers    int
	QueueSize  int
	RatePerSec int
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.RatePerSec <= 0 {
		c.RatePerSec = 25
	}
	return c
}

// SendFunc performs one delivery.
type SendFunc func(ctx context.Context) error

type item struct {
	to   string
	send SendFunc
}

// Stats are best-effort counters for logs and tests.
type Stats struct {
	Sent    uint64
	Failed  uint64
	Dropped uint64
}

type Queue struct {
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter
	queue   chan item
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	sent    atomic.Uint64
	failed  atomic.Uint64
	dropped atomic.Uint64
}

func New(cfg Config, log logx.Logger) *Queue {
	if log.IsZero() {
		log = logx.Nop()
	}
	cfg = cfg.withDefaults()
	return &Queue{
		cfg:     cfg,
		log:     log,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:   make(chan item, cfg.QueueSize),
	}
}

// Apply updates the send rate. Worker count and queue size apply on the next Start.
func (q *Queue) Apply(cfg Config) {
	cfg = cfg.withDefaults()
	q.mu.Lock()
	defer q.mu.Unlock()
	q.cfg = cfg
	q.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	q.limiter.SetBurst(cfg.RatePerSec)
}

// Enqueue schedules a delivery to "to" (used only for logging). It never blocks.
func (q *Queue) Enqueue(to string, send SendFunc) error {
	q.mu.Lock()
	running := q.cancel != nil
	ch := q.queue
	q.mu.Unlock()
	if !running {
		q.dropped.Add(1)
		return ErrNotRunning
	}
	select {
	case ch <- item{to: to, send: send}:
		return nil
	default:
		q.dropped.Add(1)
		q.log.Warn("outbox full; dropping delivery", logx.String("to", to), logx.Int("queue_cap", cap(ch)))
		return ErrQueueFull
	}
}

func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.cancel != nil {
		return
	}
	if cap(q.queue) != q.cfg.QueueSize {
		q.queue = make(chan item, q.cfg.QueueSize)
	}
	runCtx, cancel := context.WithCancel(ctx)
	q.cancel = cancel
	queue := q.queue

	q.wg.Add(q.cfg.Workers)
	for i := 0; i < q.cfg.Workers; i++ {
		idx := i
		go func() {
			defer q.wg.Done()
			defer func() {
				if r := recover(); r != nil {
					q.log.Error("panic in outbox worker", logx.Int("worker", idx), logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
				}
			}()
			q.worker(runCtx, queue)
		}()
	}
	q.log.Info("outbox started", logx.Int("workers", q.cfg.Workers), logx.Int("rps", q.cfg.RatePerSec))
}

// Stop cancels workers and waits for them or ctx. Pending items are dropped.
func (q *Queue) Stop(ctx context.Context) {
	start := time.Now()
	q.mu.Lock()
	cancel := q.cancel
	q.cancel = nil
	q.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	st := q.Stats()
	q.log.Info("outbox stopped",
		logx.Duration("took", time.Since(start)),
		logx.Int64("sent", int64(st.Sent)),
		logx.Int64("failed", int64(st.Failed)),
		logx.Int64("dropped", int64(st.Dropped)),
	)
}

func (q *Queue) worker(ctx context.Context, queue <-chan item) {
	for {
		select {
		case <-ctx.Done():
			return
		case it := <-queue:
			q.deliver(ctx, it)
		}
	}
}

func (q *Queue) deliver(ctx context.Context, it item) {
	q.mu.Lock()
	lim := q.limiter
	q.mu.Unlock()
	if err := lim.Wait(ctx); err != nil {
		q.dropped.Add(1)
		return
	}
	if err := it.send(ctx); err != nil {
		q.failed.Add(1)
		q.log.Debug("delivery failed", logx.String("to", it.to), logx.Err(err))
		return
	}
	q.sent.Add(1)
}

func (q *Queue) Stats() Stats {
	return Stats{Sent: q.sent.Load(), Failed: q.failed.Load(), Dropped: q.dropped.Load()}
}
