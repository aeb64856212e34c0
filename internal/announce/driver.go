package announce

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "worldchat/pkg/logx"
)

// DefaultTickSpec drives the scheduler once per second.
const DefaultTickSpec = "@every 1s"

// Ticker receives the wall time elapsed since the previous tick.
type Ticker interface {
	OnTick(elapsed time.Duration)
}

// SecondOptional allows both 5-field and 6-field (with seconds) specs.
var parser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSpec reports whether spec is a usable tick schedule.
func ValidateSpec(spec string) error {
	if _, err := parser.Parse(normalizeSpec(spec)); err != nil {
		return fmt.Errorf("announce.tick: invalid schedule %q: %w", spec, err)
	}
	return nil
}

func normalizeSpec(spec string) string {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return DefaultTickSpec
	}
	return spec
}

// Driver calls a Ticker on a cron schedule with the measured elapsed time.
type Driver struct {
	ticker Ticker
	log    logx.Logger
	now    func() time.Time

	mu      sync.Mutex
	spec    string
	c       *cron.Cron
	entryID cron.EntryID
	last    time.Time
}

func NewDriver(t Ticker, spec string, log logx.Logger) *Driver {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Driver{ticker: t, log: log, now: time.Now, spec: normalizeSpec(spec)}
}

// Start begins ticking. Calling Start on a running driver is a no-op.
func (d *Driver) Start(ctx context.Context) error {
	_ = ctx

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return nil
	}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithChain(cron.Recover(cronLogger{d.log}), cron.SkipIfStillRunning(cronLogger{d.log})),
	)
	id, err := c.AddFunc(d.spec, d.tick)
	if err != nil {
		return fmt.Errorf("announce driver: %w", err)
	}
	d.c = c
	d.entryID = id
	d.last = d.now()
	c.Start()
	d.log.Info("tick driver started", logx.String("spec", d.spec))
	return nil
}

// Apply switches to a new schedule; a running driver is rescheduled in place.
func (d *Driver) Apply(spec string) error {
	spec = normalizeSpec(spec)
	if err := ValidateSpec(spec); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if spec == d.spec {
		return nil
	}
	d.spec = spec
	if d.c == nil {
		return nil
	}
	d.c.Remove(d.entryID)
	id, err := d.c.AddFunc(spec, d.tick)
	if err != nil {
		return fmt.Errorf("announce driver: %w", err)
	}
	d.entryID = id
	d.log.Info("tick driver rescheduled", logx.String("spec", spec))
	return nil
}

// Stop halts ticking and waits for an in-flight tick or ctx.
func (d *Driver) Stop(ctx context.Context) {
	d.mu.Lock()
	c := d.c
	d.c = nil
	d.mu.Unlock()
	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	d.log.Info("tick driver stopped")
}

func (d *Driver) tick() {
	now := d.now()
	d.mu.Lock()
	elapsed := now.Sub(d.last)
	d.last = now
	d.mu.Unlock()
	if elapsed < 0 {
		elapsed = 0
	}
	d.ticker.OnTick(elapsed)
}

// cronLogger routes cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug("cron: "+msg, logx.Any("kv", keysAndValues))
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error("cron: "+msg, logx.Err(err), logx.Any("kv", keysAndValues))
}
