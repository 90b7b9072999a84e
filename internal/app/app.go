package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"remindbot/internal/config"
	"remindbot/internal/eventbus"
	"remindbot/internal/lifecycle"
	"remindbot/internal/notifier"
	"remindbot/internal/observability/metrics"
	"remindbot/internal/observability/ops"
	"remindbot/internal/runtime/supervisor"
	"remindbot/internal/selection"
	"remindbot/internal/storage"
	"remindbot/internal/task/scheduler"
	kit "remindbot/internal/transport"
	telegram "remindbot/internal/transport/telegram/adapter"
	"remindbot/internal/transport/telegram/router"
	logx "remindbot/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store storage.Store

	adapter  *telegram.Adapter
	engine   *scheduler.Engine
	reg      *scheduler.Registry
	notif    *notifier.Service
	rem      *lifecycle.Manager
	sessions *selection.Sessions
	router   *router.Router
	metrics  *metrics.Collector
	ops      *ops.Service

	updates chan kit.Update
	started time.Time
}

// New loads the config and builds every component. Nothing runs until Start.
func New(ctx context.Context, cfgPath string) (*App, error) {
	if err := config.LoadDotEnv(); err != nil {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	bootLog := logx.NewConsole(cfg.Logging.Level).With(logx.String("comp", "telegram"))
	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: config.DurationOr(cfg.Telegram.PollTimeout, defaultPollTimeout),
	}, bootLog)
	if err != nil {
		return nil, err
	}

	// The adapter doubles as the Telegram log sink.
	logSvc, log := logx.New(mapLogConfig(cfg), ad)
	appLog := log.With(logx.String("comp", "app"))
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	store, err := storage.Open(ctx, mapStorageConfig(cfg), log)
	if errors.Is(err, storage.ErrDisabled) {
		appLog.Warn("storage disabled; reminders live in memory and are lost on restart")
		store, err = storage.NewMemory(), nil
	}
	if err != nil {
		_ = logSvc.Close()
		return nil, fmt.Errorf("open storage: %w", err)
	}
	appLog.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	bus := eventbus.New()

	schedCfg, err := mapSchedulerConfig(cfg)
	if err != nil {
		_ = store.Close()
		_ = logSvc.Close()
		return nil, err
	}
	engine := scheduler.NewEngine(schedCfg, scheduler.SystemClock(), log.With(logx.String("comp", "scheduler")), bus)
	reg := scheduler.NewRegistry()

	notif := notifier.New(mapNotifierConfig(cfg), ad, log.With(logx.String("comp", "notifier")), bus, store)
	rem := lifecycle.New(mapLifecycleConfig(cfg), store, engine, reg, delivery{notif: notif, direct: ad}, log, bus)
	sessions := selection.NewSessions(mapSessionTTL(cfg))

	a := &App{
		cfgm:     cfgm,
		log:      appLog,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		engine:   engine,
		reg:      reg,
		notif:    notif,
		rem:      rem,
		sessions: sessions,
		metrics:  metrics.New(reg.Len),
		updates:  make(chan kit.Update, 256),
	}
	a.router = router.New(router.Config{
		Workers: cfg.Telegram.Workers,
		Owners:  cfg.Telegram.OwnerUserIDs,
	}, ad, rem, sessions, a.statusText, log.With(logx.String("comp", "router")))
	a.ops = ops.New(mapOpsConfig(cfg), ops.Probes{
		Ready:   rem.Ready,
		Status:  func() any { return a.status() },
		Metrics: a.metrics.Handler(),
	}, log.With(logx.String("comp", "ops")))
	return a, nil
}

// Done is closed when the app supervisor context is canceled.
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start arms every stored reminder, then opens the Telegram side.
func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.started = time.Now()
	run := a.sup.Context()
	cfg := a.cfgm.Get()

	a.sup.Go0("metrics.collect", func(c context.Context) { a.metrics.Run(c, a.bus) })
	a.sup.Go0("eventbus.log", a.logEvents)

	if a.ops.Enabled() {
		a.ops.Start(run)
	}

	rep, err := a.rem.Reload(ctx)
	if err != nil {
		return fmt.Errorf("initial reload: %w", err)
	}
	a.log.Info("reminders loaded", logx.Int("armed", rep.Armed), logx.Int("skipped", rep.Skipped), logx.Int("failed", rep.Failed))
	if err := a.rem.StartResync(strings.TrimSpace(cfg.Scheduler.Resync)); err != nil {
		a.log.Warn("resync not armed", logx.Err(err))
	}

	a.notif.Start(run)
	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})
	a.sup.Go0("router.menu", func(c context.Context) {
		if err := a.router.PublishMenu(c); err != nil {
			a.log.Warn("publish command menu failed", logx.Err(err))
		}
	})
	a.sup.Go0("sessions.sweep", a.sweepSessions)

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) { a.reloadLoop(c, sub) })
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.notifySystemd()
	a.log.Info("app started", logx.String("timezone", a.engine.Location().String()))
	return nil
}

func (a *App) logEvents(c context.Context) {
	events, unsub := a.bus.Subscribe(128)
	defer unsub()
	for {
		select {
		case <-c.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
		}
	}
}

func (a *App) sweepSessions(c context.Context) {
	t := time.NewTicker(time.Minute)
	defer t.Stop()
	for {
		select {
		case <-c.Done():
			return
		case <-t.C:
			if n := a.sessions.Sweep(); n > 0 {
				a.log.Debug("expired dialogues dropped", logx.Int("count", n))
			}
		}
	}
}

// notifySystemd reports readiness and feeds the watchdog when run under a
// systemd unit with WatchdogSec set. Outside systemd both are no-ops.
func (a *App) notifySystemd() {
	if ok, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if ok {
		a.log.Debug("sd_notify ready sent")
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-c.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	})
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	a.sup.Cancel()

	// Intake first, then timers, then the outbound queue, then storage.
	a.step(ctx, "adapter", 2*time.Second, func(c context.Context) error { return a.adapter.Stop(c) })
	a.step(ctx, "reminders", time.Second, func(context.Context) error { a.rem.Stop(); return nil })
	a.step(ctx, "scheduler", time.Second, func(context.Context) error { a.engine.Stop(); return nil })
	a.step(ctx, "notifier", 3*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "supervisor", 2*time.Second, func(c context.Context) error { return a.sup.Wait(c) })
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}

// step runs one shutdown step bounded by max and the caller's deadline.
// A step that overruns is logged and left to finish in the background.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped: no time left", logx.String("name", name))
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
		if took := time.Since(start); took >= 500*time.Millisecond {
			a.log.Info("stop step end", logx.String("name", name), logx.Duration("took", took))
		}
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)", logx.String("name", name), logx.Duration("elapsed", time.Since(start)))
		go func() {
			if err := <-done; err != nil {
				a.log.Warn("stop step finished after deadline", logx.String("name", name), logx.Err(err))
			}
		}()
	}
}
