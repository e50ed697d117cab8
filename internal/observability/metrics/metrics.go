// Package metrics turns event bus traffic into Prometheus series.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"medbot/internal/eventbus"
)

const namespace = "medbot"

type Collector struct {
	sent        prometheus.Counter
	failed      prometheus.Counter
	suppressed  prometheus.Counter
	retries     prometheus.Counter
	ticks       prometheus.Counter
	tickErrors  prometheus.Counter
	tickSeconds prometheus.Histogram
	intake      *prometheus.CounterVec
}

// New registers the medbot series on reg.
func New(reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		sent: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_sent_total",
			Help: "Reminders delivered.",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_failed_total",
			Help: "Reminders that failed after retries.",
		}),
		suppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "reminders_suppressed_total",
			Help: "Matched reminders skipped because of a recent acknowledgement.",
		}),
		retries: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifier_retries_total",
			Help: "Send attempts retried by the notifier.",
		}),
		ticks: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_ticks_total",
			Help: "Dispatch loop scans.",
		}),
		tickErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "dispatch_tick_errors_total",
			Help: "Scans aborted by an event listing error.",
		}),
		tickSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "dispatch_tick_seconds",
			Help:    "Duration of one dispatch scan.",
			Buckets: []float64{.005, .01, .05, .1, .5, 1, 5, 15, 30},
		}),
		intake: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "intake_events_total",
			Help: "Intake session transitions by flow and outcome.",
		}, []string{"flow", "outcome"}),
	}
}

var intakeOutcome = map[string]string{
	eventbus.IntakeStarted:   "started",
	eventbus.IntakeCompleted: "completed",
	eventbus.IntakeRejected:  "rejected",
	eventbus.IntakeCancelled: "cancelled",
	eventbus.IntakeExpired:   "expired",
}

// Observe updates series for one event; unknown topics are ignored.
func (c *Collector) Observe(e eventbus.Event) {
	switch e.Type {
	case eventbus.ReminderSent:
		c.sent.Inc()
	case eventbus.ReminderFailed:
		c.failed.Inc()
	case eventbus.ReminderSuppressed:
		c.suppressed.Inc()
	case eventbus.NotifyRetried:
		c.retries.Inc()
	case eventbus.DispatchTick:
		c.ticks.Inc()
		if info, ok := e.Data.(eventbus.TickInfo); ok {
			c.tickSeconds.Observe(info.Seconds)
			if info.Err != "" {
				c.tickErrors.Inc()
			}
		}
	default:
		outcome, ok := intakeOutcome[e.Type]
		if !ok {
			return
		}
		flow := "unknown"
		if info, ok := e.Data.(eventbus.IntakeInfo); ok && info.Flow != "" {
			flow = info.Flow
		}
		c.intake.WithLabelValues(flow, outcome).Inc()
	}
}

// Run consumes bus until ctx ends.
func (c *Collector) Run(ctx context.Context, bus eventbus.Bus) error {
	ch, unsub := bus.Subscribe(256)
	defer unsub()
	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			c.Observe(e)
		}
	}
}
