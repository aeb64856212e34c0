package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"worldchat/internal/announce"
	"worldchat/internal/config"
	"worldchat/internal/outbox"
	"worldchat/internal/presence"
	"worldchat/internal/relay"
	rtsup "worldchat/internal/runtime/supervisor"
	"worldchat/internal/storage"
	"worldchat/internal/transport/telegram"
	"worldchat/internal/transport/ws"
	"worldchat/internal/worldchat"
	logx "worldchat/pkg/logx"
)

type App struct {
	cfgm    *config.Manager
	built   *config.Config
	sup     *rtsup.Supervisor
	stopped atomic.Bool

	log   logx.Logger
	logs  *logx.Service
	store storage.Store

	settings *worldchat.SettingsStore
	dir      *presence.Registry
	engine   *worldchat.Engine
	sched    *announce.Scheduler
	driver   *announce.Driver
	hub      *relay.Hub
	out      *outbox.Queue

	ws *ws.Server
	tg *telegram.Host
}

type options struct {
	environ map[string]string
}

type Option func(*options)

// WithEnviron replaces the process environment used for config overrides.
func WithEnviron(environ map[string]string) Option {
	return func(o *options) { o.environ = environ }
}

func New(cfgPath string, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	cfgm := config.NewManager(cfgPath)
	if o.environ != nil {
		cfgm.SetEnviron(o.environ)
	}
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(mapLogConfig(cfg))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))
	log = log.With(logx.String("comp", "app"))

	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		_ = logSvc.Close()
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			_ = logSvc.Close()
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	settings := worldchat.NewSettingsStore(cfg.Settings())
	dir := presence.NewRegistry()
	engine := worldchat.NewEngine(settings, dir, log.With(logx.String("comp", "worldchat")))

	sched := announce.NewScheduler(dir, log.With(logx.String("comp", "announce")))
	sched.Configure(cfg.Announce.DelayDuration(), cfg.Announce.Reminder(cfg.Settings().ChannelLabel))

	hub := relay.NewHub()
	hub.Register(
		settings,
		relay.NewChatCommand(engine, nil),
		relay.NewChannelRelay(engine, log.With(logx.String("comp", "relay"))),
		relay.NewLoginAnnouncer(settings, sched),
		sched,
	)
	driver := announce.NewDriver(hub, cfg.Announce.Tick, log.With(logx.String("comp", "announce.driver")))

	out := outbox.New(mapOutboxConfig(cfg), log.With(logx.String("comp", "outbox")))

	a := &App{
		cfgm:     cfgm,
		built:    cfg,
		log:      log,
		logs:     logSvc,
		store:    store,
		settings: settings,
		dir:      dir,
		engine:   engine,
		sched:    sched,
		driver:   driver,
		hub:      hub,
		out:      out,
	}

	if cfg.WebSocket.Enabled {
		a.ws = ws.New(mapWebSocketConfig(cfg), hub, dir, log.With(logx.String("comp", "websocket")))
	}
	if cfg.Telegram.Enabled {
		pollTimeout, err := config.ParseDuration("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
		if err != nil {
			a.closeEarly()
			return nil, err
		}
		tg, err := telegram.New(telegram.Config{
			Token:       cfg.Telegram.Token,
			PollTimeout: pollTimeout,
		}, hub, dir, out, store, log.With(logx.String("comp", "telegram")))
		if err != nil {
			a.closeEarly()
			return nil, err
		}
		a.tg = tg
	}
	if a.ws == nil && a.tg == nil {
		log.Warn("no transport enabled; nobody can join")
	}
	return a, nil
}

func (a *App) closeEarly() {
	if a.store != nil {
		_ = a.store.Close()
	}
	_ = a.logs.Close()
}

// Hub exposes the hook registry so extra listeners can be registered before Start.
func (a *App) Hub() *relay.Hub { return a.hub }

func (a *App) Registry() *presence.Registry { return a.dir }

func (a *App) Settings() worldchat.Settings { return a.settings.Load() }

// WebSocketAddr is the bound listener address, empty when the host is off.
func (a *App) WebSocketAddr() string {
	if a.ws == nil {
		return ""
	}
	return a.ws.Addr()
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	c := a.sup.Context()

	a.out.Start(c)
	if err := a.driver.Start(c); err != nil {
		return err
	}
	if a.ws != nil {
		if err := a.ws.Start(c); err != nil {
			return fmt.Errorf("websocket: %w", err)
		}
	}
	if a.tg != nil {
		if err := a.tg.Start(c); err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
	}

	// lastApplied is what the components were built from. A reload that
	// committed before Subscribe is caught up on right away.
	lastApplied := a.built
	sub := a.cfgm.Subscribe(8)
	if cur := a.cfgm.Get(); cur != lastApplied {
		a.applyConfig(lastApplied, cur)
		lastApplied = cur
	}
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})

	a.sup.GoRestart("config.watch", a.cfgm.Watch, time.Second, 30*time.Second)

	s := a.settings.Load()
	a.log.Info("app started",
		logx.Bool("enabled", s.Enabled),
		logx.String("channel", s.ChannelLabel),
		logx.Bool("cross_factions", s.CrossAffiliation),
		logx.Bool("announce", s.AnnounceOnJoin),
		logx.Bool("websocket", a.ws != nil),
		logx.Bool("telegram", a.tg != nil),
	)
	return nil
}

// applyConfig pushes a reloaded config to every live component. Listener,
// token and storage changes are only reported.
func (a *App) applyConfig(prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Debug("config reload received, but no effective changes detected")
		return
	}

	a.logs.Apply(mapLogConfig(next))

	s := next.Settings()
	a.hub.LoadConfig(s)
	a.sched.Configure(next.Announce.DelayDuration(), next.Announce.Reminder(s.ChannelLabel))
	if err := a.driver.Apply(next.Announce.Tick); err != nil {
		a.log.Warn("invalid announce.tick; keeping previous", logx.Err(err))
	}
	a.out.Apply(mapOutboxConfig(next))

	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config changed; restart required for changes to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config applied", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil || a.stopped.Swap(true) {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))

	// Cancel first so background loops start unwinding immediately.
	a.sup.Cancel()

	// Transports go first so no new logins arm reminders after the clear.
	a.step(ctx, "websocket", 2*time.Second, func(c context.Context) error {
		if a.ws != nil {
			a.ws.Stop(c)
		}
		return nil
	})
	a.step(ctx, "telegram", 2*time.Second, func(c context.Context) error {
		if a.tg != nil {
			a.tg.Stop(c)
		}
		return nil
	})
	a.step(ctx, "announce", time.Second, func(c context.Context) error {
		a.driver.Stop(c)
		if n := a.sched.Len(); n > 0 {
			a.log.Debug("dropping pending reminders", logx.Int("count", n))
		}
		a.sched.Clear()
		return nil
	})
	a.step(ctx, "outbox", 2*time.Second, func(c context.Context) error { a.out.Stop(c); return nil })
	a.step(ctx, "storage", time.Second, func(c context.Context) error {
		if a.store != nil {
			return a.store.Close()
		}
		return nil
	})
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error {
		err := a.sup.Wait(c)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound so one component can't
// stall the whole stop.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	a.log.Debug("stop step begin", logx.String("name", name), logx.Duration("max", max))

	// respect the caller's deadline; never extend it
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (no time left)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}
