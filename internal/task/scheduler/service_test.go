package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	logx "medbot/pkg/logx"
)

func TestAddDailySnapshotNext(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())
	if err := s.AddDaily("digest", "21:30", time.Minute, func(context.Context) error { return nil }); err != nil {
		t.Fatalf("AddDaily: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot len = %d, want 1", len(snap))
	}
	next := snap[0].Next.UTC()
	if next.IsZero() {
		t.Fatal("next run not computed")
	}
	if next.Hour() != 21 || next.Minute() != 30 {
		t.Fatalf("next = %v, want 21:30 UTC", next)
	}
}

func TestAddValidation(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())
	noop := func(context.Context) error { return nil }
	if err := s.AddDaily("x", "25:00", 0, noop); err == nil {
		t.Fatal("expected error for bad time")
	}
	if err := s.AddSchedule("", "1m", 0, noop); err == nil {
		t.Fatal("expected error for empty name")
	}
	if err := s.AddSchedule("x", "1m", 0, nil); err == nil {
		t.Fatal("expected error for nil job")
	}
	if err := s.AddSchedule("x", "* * *", 0, noop); err == nil {
		t.Fatal("expected error for bad cron")
	}
	if err := s.AddSchedule("x", "@every soon", 0, noop); err == nil {
		t.Fatal("expected error for bad interval")
	}
}

func TestReplaceAndRemove(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())
	noop := func(context.Context) error { return nil }
	_ = s.AddSchedule("sweep", "1m", 0, noop)
	_ = s.AddSchedule("sweep", "2m", 0, noop)
	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Spec != "@every 2m0s" {
		t.Fatalf("snapshot = %+v", snap)
	}
	if !s.Remove("sweep") {
		t.Fatal("Remove returned false")
	}
	if s.Remove("sweep") {
		t.Fatal("second Remove returned true")
	}
}

func TestTriggerSkipsOverlap(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	started := make(chan struct{})
	var calls atomic.Int32
	def := scheduleDef{
		name: "slow",
		job: func(context.Context) error {
			calls.Add(1)
			close(started)
			<-release
			return nil
		},
		running: &atomic.Bool{},
		stats:   &runStats{},
	}

	done := make(chan struct{})
	go func() {
		s.trigger(ctx, def)
		close(done)
	}()
	<-started
	s.trigger(ctx, def)
	close(release)
	<-done

	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
	if def.stats.skipped != 1 || def.stats.runs != 1 {
		t.Fatalf("runs=%d skipped=%d", def.stats.runs, def.stats.skipped)
	}
}

func TestRunRecoversPanicAndAppliesTimeout(t *testing.T) {
	t.Parallel()
	s := New(time.UTC, logx.Nop())
	def := scheduleDef{
		name:    "boom",
		job:     func(context.Context) error { panic("boom") },
		running: &atomic.Bool{},
		stats:   &runStats{},
	}
	if err := s.run(context.Background(), def); err == nil {
		t.Fatal("expected panic error")
	}
	if def.stats.lastErr == "" {
		t.Fatal("lastErr not recorded")
	}

	def.timeout = 10 * time.Millisecond
	def.job = func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := s.run(context.Background(), def); err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestIntervalSpreadFirstRun(t *testing.T) {
	t.Parallel()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	sched, jitter := intervalWithSpread(time.Minute, now)
	if jitter < 0 || jitter >= 30*time.Second {
		t.Fatalf("jitter = %v", jitter)
	}
	first := sched.Next(now)
	if want := now.Add(time.Minute + jitter); !first.Equal(want) {
		t.Fatalf("first = %v, want %v", first, want)
	}
	// cron.Every truncates to whole seconds.
	if gap := sched.Next(first).Sub(first); gap <= 59*time.Second || gap > time.Minute {
		t.Fatalf("interval after first run = %v", gap)
	}
}
