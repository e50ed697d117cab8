package reminder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"medbot/internal/domain"
	"medbot/internal/eventbus"
	rtsup "medbot/internal/runtime/supervisor"
	logx "medbot/pkg/logx"
)

const (
	DefaultFallbackSleep = 60 * time.Second
	minSleep             = time.Second
)

// EventSource lists scheduled events; a nil userID lists every user's events.
type EventSource interface {
	ListEvents(ctx context.Context, userID *int64) ([]domain.ScheduledEvent, error)
}

type AckLookup interface {
	RecentAcknowledgement(ctx context.Context, q domain.AckQuery) (bool, error)
}

// Notifier delivers one reminder. Errors are per recipient.
type Notifier interface {
	Notify(ctx context.Context, e domain.ScheduledEvent) error
}

type State int32

const (
	Idle State = iota
	Scanning
)

func (s State) String() string {
	if s == Scanning {
		return "scanning"
	}
	return "idle"
}

// Config is the live-tunable part of the dispatcher.
type Config struct {
	Location      *time.Location
	Window        time.Duration
	AckMatch      domain.AckMatch
	FallbackSleep time.Duration
}

// TickReport summarizes one scan.
type TickReport struct {
	Minute     time.Time
	Skipped    bool
	Events     int
	Matched    int
	Sent       int
	Suppressed int
	Failed     int
	Err        error
}

// Dispatcher is the minute-aligned reminder loop.
type Dispatcher struct {
	events   EventSource
	acks     AckLookup
	notifier Notifier
	clock    clockwork.Clock
	log      logx.Logger
	bus      eventbus.Publisher

	mu       sync.Mutex
	cfg      Config
	guard    Guard
	lastTick time.Time
	sup      *rtsup.Supervisor

	state atomic.Int32
}

type Option func(*Dispatcher)

func WithClock(c clockwork.Clock) Option  { return func(d *Dispatcher) { d.clock = c } }
func WithLogger(l logx.Logger) Option     { return func(d *Dispatcher) { d.log = l } }
func WithBus(b eventbus.Publisher) Option { return func(d *Dispatcher) { d.bus = b } }

func NewDispatcher(cfg Config, events EventSource, acks AckLookup, n Notifier, opts ...Option) *Dispatcher {
	d := &Dispatcher{events: events, acks: acks, notifier: n}
	for _, o := range opts {
		o(d)
	}
	if d.clock == nil {
		d.clock = clockwork.NewRealClock()
	}
	d.applyLocked(cfg)
	return d
}

// Apply swaps the live configuration; the next tick uses it.
func (d *Dispatcher) Apply(cfg Config) {
	d.mu.Lock()
	d.applyLocked(cfg)
	d.mu.Unlock()
}

func (d *Dispatcher) applyLocked(cfg Config) {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if cfg.FallbackSleep <= 0 {
		cfg.FallbackSleep = DefaultFallbackSleep
	}
	d.guard = NewGuard(cfg.Window, cfg.AckMatch)
	cfg.Window = d.guard.Window
	cfg.AckMatch = d.guard.Match
	d.cfg = cfg
}

func (d *Dispatcher) State() State { return State(d.state.Load()) }

// Start launches the loop under its own supervisor. Start is idempotent.
func (d *Dispatcher) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sup != nil {
		return
	}
	d.sup = rtsup.NewSupervisor(ctx, rtsup.WithLogger(d.log), rtsup.WithCancelOnError(false))
	d.sup.GoRestart("reminder.dispatch", d.Run, rtsup.WithPublishFirstError(true))
}

// Stop cancels the loop and waits for the current tick to finish.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	sup := d.sup
	d.sup = nil
	d.mu.Unlock()
	if sup == nil {
		return nil
	}
	return sup.Stop(ctx)
}

// Run loops until ctx is cancelled: tick, then sleep to the next minute boundary.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("reminder loop started")
	defer d.log.Info("reminder loop stopped")
	for {
		if ctx.Err() != nil {
			return nil
		}
		rep := d.Tick(ctx, d.clock.Now())
		var delay time.Duration
		if rep.Err != nil && !errors.Is(rep.Err, context.Canceled) {
			delay = d.fallbackSleep()
		} else {
			delay = NextDelay(d.clock.Now())
		}
		select {
		case <-ctx.Done():
			return nil
		case <-d.clock.After(delay):
		}
	}
}

// NextDelay is the sleep until the next minute boundary, never below one second.
func NextDelay(now time.Time) time.Duration {
	next := now.Truncate(time.Minute).Add(time.Minute)
	delay := next.Sub(now)
	if delay < minSleep {
		delay = minSleep
	}
	return delay
}

func (d *Dispatcher) fallbackSleep() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg.FallbackSleep
}

// Tick scans every event once for the minute containing now. A minute is
// scanned at most once; a repeated call for the same minute is skipped.
func (d *Dispatcher) Tick(ctx context.Context, now time.Time) (rep TickReport) {
	d.mu.Lock()
	loc := d.cfg.Location
	guard := d.guard
	minute := now.In(loc).Truncate(time.Minute)
	if !d.lastTick.IsZero() && minute.Equal(d.lastTick) {
		d.mu.Unlock()
		return TickReport{Minute: minute, Skipped: true}
	}
	d.mu.Unlock()

	d.state.Store(int32(Scanning))
	defer d.state.Store(int32(Idle))

	started := d.clock.Now()
	rep.Minute = minute
	defer func() { d.publishTick(rep, d.clock.Since(started)) }()

	events, err := d.events.ListEvents(ctx, nil)
	if err != nil {
		rep.Err = err
		d.log.Error("reminder tick: list events failed", logx.Err(err), logx.String("minute", minute.Format("15:04")))
		return rep
	}

	d.mu.Lock()
	d.lastTick = minute
	d.mu.Unlock()

	rep.Events = len(events)
	for _, e := range events {
		if ctx.Err() != nil {
			rep.Err = ctx.Err()
			return rep
		}
		if !Matches(e.Times, minute) {
			continue
		}
		rep.Matched++
		switch d.dispatchOne(ctx, guard, e, now) {
		case outcomeSent:
			rep.Sent++
		case outcomeSuppressed:
			rep.Suppressed++
		case outcomeFailed:
			rep.Failed++
		}
	}
	if rep.Matched > 0 {
		d.log.Info("reminder tick",
			logx.String("minute", minute.Format("15:04")),
			logx.Int("matched", rep.Matched),
			logx.Int("sent", rep.Sent),
			logx.Int("suppressed", rep.Suppressed),
			logx.Int("failed", rep.Failed),
		)
	}
	return rep
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeSuppressed
	outcomeFailed
)

// dispatchOne handles a single matched event; nothing it does can abort the scan.
func (d *Dispatcher) dispatchOne(ctx context.Context, g Guard, e domain.ScheduledEvent, now time.Time) (out outcome) {
	log := d.log.With(logx.Int64("user_id", e.UserID), logx.Int64("event_id", e.ID))
	info := eventbus.ReminderInfo{UserID: e.UserID, EventID: e.ID, Name: e.Name}

	defer func() {
		if r := recover(); r != nil {
			log.Error("reminder delivery panicked", logx.Any("panic", r))
			info.Err = fmt.Sprint(r)
			eventbus.Emit(d.bus, eventbus.ReminderFailed, info)
			out = outcomeFailed
		}
	}()

	acked, err := d.acks.RecentAcknowledgement(ctx, g.Query(e, now))
	if err != nil {
		// A missed dose is worse than a duplicate reminder.
		log.Warn("ack lookup failed, notifying anyway", logx.Err(err))
	}
	if acked {
		eventbus.Emit(d.bus, eventbus.ReminderSuppressed, info)
		log.Debug("reminder suppressed by recent acknowledgement")
		return outcomeSuppressed
	}

	if err := d.notifier.Notify(ctx, e); err != nil {
		var de *domain.DeliveryError
		if !errors.As(err, &de) {
			err = &domain.DeliveryError{UserID: e.UserID, EventID: e.ID, Err: err}
		}
		log.Warn("reminder delivery failed", logx.Err(err))
		info.Err = err.Error()
		eventbus.Emit(d.bus, eventbus.ReminderFailed, info)
		return outcomeFailed
	}
	eventbus.Emit(d.bus, eventbus.ReminderSent, info)
	return outcomeSent
}

func (d *Dispatcher) publishTick(rep TickReport, took time.Duration) {
	info := eventbus.TickInfo{
		Events:     rep.Events,
		Matched:    rep.Matched,
		Sent:       rep.Sent,
		Suppressed: rep.Suppressed,
		Failed:     rep.Failed,
		Seconds:    took.Seconds(),
	}
	if rep.Err != nil {
		info.Err = rep.Err.Error()
	}
	eventbus.Emit(d.bus, eventbus.DispatchTick, info)
}
