package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "medbot/pkg/logx"
)

// AddSchedule registers job under name, replacing a schedule of the same
// name. Accepted forms are those of ParseSchedule.
func (s *Service) AddSchedule(name, schedule string, timeout time.Duration, job Job) error {
	ps, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	spec := ps.Cron
	if ps.Kind == SpecInterval {
		spec = "@every " + ps.Every.String()
	}
	return s.add(name, spec, timeout, job)
}

// AddDaily runs job every day at HH:MM in the scheduler timezone.
func (s *Service) AddDaily(name, atHHMM string, timeout time.Duration, job Job) error {
	h, m, err := parseHHMM(atHHMM)
	if err != nil {
		return err
	}
	return s.add(name, fmt.Sprintf("%d %d * * *", m, h), timeout, job)
}

func (s *Service) add(name, spec string, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("schedule name required")
	}
	if job == nil {
		return errors.New("schedule job required")
	}
	if every, ok := strings.CutPrefix(spec, "@every"); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(every)); err != nil || d <= 0 {
			return fmt.Errorf("invalid interval %q", spec)
		}
	} else if _, err := s.parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeLocked(name)
	s.defs = append(s.defs, scheduleDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		running: &atomic.Bool{},
		stats:   &runStats{},
	})
	if s.c != nil {
		if err := s.addCronLocked(&s.defs[len(s.defs)-1]); err != nil {
			s.defs = s.defs[:len(s.defs)-1]
			return err
		}
	}
	s.log.Debug("schedule added", logx.String("name", name), logx.String("spec", spec))
	return nil
}

// Remove unschedules name. It reports whether something was removed.
func (s *Service) Remove(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(strings.TrimSpace(name))
}

func (s *Service) removeLocked(name string) bool {
	n := 0
	removed := false
	for _, d := range s.defs {
		if d.name == name {
			if s.c != nil && d.entryID != 0 {
				s.c.Remove(d.entryID)
			}
			removed = true
			continue
		}
		s.defs[n] = d
		n++
	}
	s.defs = s.defs[:n]
	return removed
}

// Snapshot lists schedules sorted by registration order.
func (s *Service) Snapshot() []ScheduleInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduleInfo, 0, len(s.defs))
	for _, d := range s.defs {
		it := ScheduleInfo{Name: d.name, Spec: d.spec, Timeout: d.timeout}
		if s.c != nil && d.entryID != 0 {
			e := s.c.Entry(d.entryID)
			it.Next, it.Prev = e.Next, e.Prev
		}
		d.stats.mu.Lock()
		it.Runs, it.Skipped, it.LastErr = d.stats.runs, d.stats.skipped, d.stats.lastErr
		it.LastRun, it.LastDur = d.stats.lastRun, d.stats.lastDur
		d.stats.mu.Unlock()
		out = append(out, it)
	}
	return out
}

func (s *Service) addCronLocked(d *scheduleDef) error {
	def, base := *d, s.base
	job := cron.FuncJob(func() { s.trigger(base, def) })

	// Intervals get a random first-run delay so they do not all fire at once.
	if every, ok := strings.CutPrefix(d.spec, "@every"); ok {
		dur, err := time.ParseDuration(strings.TrimSpace(every))
		if err != nil || dur <= 0 {
			return fmt.Errorf("invalid interval %q", d.spec)
		}
		sched, _ := intervalWithSpread(dur, time.Now().In(s.loc))
		d.entryID = s.c.Schedule(sched, job)
		return nil
	}
	id, err := s.c.AddJob(d.spec, job)
	if err != nil {
		return err
	}
	d.entryID = id
	return nil
}

// trigger runs def unless its previous run is still in flight.
func (s *Service) trigger(base context.Context, def scheduleDef) {
	if !def.running.CompareAndSwap(false, true) {
		def.stats.mu.Lock()
		def.stats.skipped++
		def.stats.mu.Unlock()
		s.log.Debug("run skipped, previous still running", logx.String("name", def.name))
		return
	}
	if base == nil || base.Err() != nil {
		def.running.Store(false)
		return
	}

	s.wg.Add(1)
	defer s.wg.Done()
	defer def.running.Store(false)

	err := s.run(base, def)
	if err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn("job failed", logx.String("name", def.name), logx.Err(err))
	}
}

func (s *Service) run(parent context.Context, def scheduleDef) (err error) {
	ctx := parent
	if def.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, def.timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("job panicked", logx.String("name", def.name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
		def.stats.mu.Lock()
		def.stats.runs++
		def.stats.lastRun = start
		def.stats.lastDur = time.Since(start)
		def.stats.lastErr = ""
		if err != nil {
			def.stats.lastErr = err.Error()
		}
		def.stats.mu.Unlock()
	}()
	return def.job(ctx)
}

func parseHHMM(s string) (hour int, minute int, err error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h, m, nil
}
