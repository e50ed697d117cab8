// Package app wires the medbot components together and owns their
// lifecycle: start order, config hot reload and bounded shutdown.
package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"medbot/internal/bot"
	"medbot/internal/config"
	"medbot/internal/eventbus"
	"medbot/internal/intake"
	"medbot/internal/notifier"
	"medbot/internal/observability/metrics"
	"medbot/internal/observability/ops"
	"medbot/internal/reminder"
	rtsup "medbot/internal/runtime/supervisor"
	"medbot/internal/storage"
	"medbot/internal/task/scheduler"
	kit "medbot/internal/transport"
	telegram "medbot/internal/transport/telegram/adapter"
	"medbot/internal/transport/telegram/router"
	logx "medbot/pkg/logx"
)

const (
	jobSweep  = "intake.sweep"
	jobDigest = "digest"
)

type App struct {
	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus
	loc  *time.Location

	store   storage.Store
	adapter *telegram.Adapter
	router  *router.Router
	notif   *notifier.Service
	bot     *bot.Bot
	disp    *reminder.Dispatcher
	sched   *scheduler.Service
	metrics *metrics.Collector
	ops     *ops.Server

	updates chan kit.Update
}

// NewApp loads the config and builds every component. Invalid config is
// returned as *domain.ConfigError.
func NewApp(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Reminder.Location()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg))
	log := root.With(logx.String("comp", "app"))
	comp := func(name string) logx.Logger { return root.With(logx.String("comp", name)) }

	ad, err := telegram.New(mapAdapterConfig(cfg), comp("telegram"))
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	logSvc.SetSender(func(ctx context.Context, chatID int64, threadID int, text string) error {
		_, err := ad.SendText(ctx, kit.ChatTarget{ChatID: chatID, ThreadID: threadID}, text, nil)
		return err
	})

	store, err := storage.Open(ctx, mapStorageConfig(cfg), comp("storage"))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	log.Info("storage ready", logx.String("driver", cfg.Storage.Driver))

	bus := eventbus.New()
	notif := notifier.New(mapNotifierConfig(cfg), ad, bot.ReminderMessage, comp("notifier"), bus)

	front := bot.New(store, ad, loc,
		bot.WithLogger(comp("bot")),
		bot.WithSender(notif),
		bot.WithMachineOptions(
			intake.WithStore(intake.NewMemoryStore()),
			intake.WithTTL(cfg.Intake.TTL()),
			intake.WithBus(bus),
		),
	)

	disp := reminder.NewDispatcher(mapReminderConfig(cfg, loc), store, store, notif,
		reminder.WithLogger(comp("reminder")),
		reminder.WithBus(bus),
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &App{
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		loc:     loc,
		store:   store,
		adapter: ad,
		router:  router.New(comp("telegram.router"), ad),
		notif:   notif,
		bot:     front,
		disp:    disp,
		sched:   scheduler.New(loc, comp("scheduler")),
		metrics: metrics.New(reg),
		ops:     ops.New(mapOpsConfig(cfg), store, reg, comp("ops")),
		updates: make(chan kit.Update, 256),
	}, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error, if any.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	run := a.sup.Context()
	cfg := a.cfgm.Get()

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))

	// metrics first so no early event is missed
	a.sup.Go("metrics", func(c context.Context) error { return a.metrics.Run(c, a.bus) })

	if err := a.adapter.Start(run, a.updates); err != nil {
		return err
	}
	a.router.SetRegistry(run, a.bot.Registry())
	a.sup.Go("router", func(c context.Context) error { return a.router.Run(c, a.updates) })

	a.disp.Start(run)

	if err := a.scheduleJobs(cfg); err != nil {
		return err
	}
	a.sched.Start(run)

	a.ops.Reconfigure(run, mapOpsConfig(cfg))

	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Trace("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})

	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(c, last, next)
				last = next
			}
		}
	})
	a.sup.Go("config.watch", a.cfgm.Watch)

	a.log.Info("app started",
		logx.String("tz", a.loc.String()),
		logx.String("dedup_window", cfg.Reminder.Window().String()),
		logx.String("ack_match", cfg.Reminder.AckMatch),
	)
	return nil
}

// scheduleJobs (re)registers housekeeping jobs for cfg. Re-adding a name
// replaces the previous schedule.
func (a *App) scheduleJobs(cfg *config.Config) error {
	if err := a.sched.AddSchedule(jobSweep, cfg.Intake.Sweep().String(), 30*time.Second, a.bot.SweepSessions); err != nil {
		return fmt.Errorf("schedule %s: %w", jobSweep, err)
	}
	if !cfg.Digest.Enabled {
		a.sched.Remove(jobDigest)
		return nil
	}
	if err := a.sched.AddDaily(jobDigest, cfg.Digest.At, 5*time.Minute, a.bot.Digest); err != nil {
		return fmt.Errorf("schedule %s: %w", jobDigest, err)
	}
	return nil
}

// applyConfig pushes a committed reload into the live components.
func (a *App) applyConfig(ctx context.Context, prev, next *config.Config) {
	sections, attrs := config.SummarizeConfigChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	if restart := config.RestartRequired(sections); len(restart) > 0 {
		a.log.Warn("config change needs a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}

	a.logs.Apply(mapLogConfig(next))
	a.notif.Apply(mapNotifierConfig(next))
	a.disp.Apply(mapReminderConfig(next, a.loc))
	a.bot.Machine().SetTTL(next.Intake.TTL())
	if err := a.scheduleJobs(next); err != nil {
		a.log.Warn("reschedule failed; keeping previous jobs", logx.Err(err))
	}
	a.ops.Reconfigure(ctx, mapOpsConfig(next))

	eventbus.Emit(a.bus, eventbus.ConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
}

func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	a.sup.Cancel()

	a.step(ctx, "scheduler", 2*time.Second, func(c context.Context) error { a.sched.Stop(c); return nil })
	a.step(ctx, "dispatcher", 2*time.Second, a.disp.Stop)
	a.step(ctx, "ops", time.Second, func(c context.Context) error { a.ops.Stop(c); return nil })
	a.step(ctx, "adapter", 2*time.Second, a.adapter.Stop)
	// router lanes and the config goroutines exit with the app context
	a.step(ctx, "supervisor", 4*time.Second, a.sup.Wait)
	a.step(ctx, "storage", time.Second, func(context.Context) error { return a.store.Close() })

	a.log.Info("stopped")
	return a.logs.Close()
}

// step runs fn bounded by limit (never beyond the ctx deadline). A step that
// overruns is logged and left behind.
func (a *App) step(ctx context.Context, name string, limit time.Duration, fn func(context.Context) error) {
	start := time.Now()
	stepCtx, cancel := context.WithTimeout(ctx, limit)
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
		if err != nil && stepCtx.Err() == nil {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
		go func() {
			err := <-done
			a.log.Info("stop step finished after deadline", logx.String("name", name), logx.Err(err), logx.Duration("took", time.Since(start)))
		}()
	}
}
