package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	logx "medbot/pkg/logx"
)

// Job is one scheduled unit of work. The context carries the run timeout.
type Job func(ctx context.Context) error

type scheduleDef struct {
	name    string
	spec    string // cron expression or "@every <dur>"
	timeout time.Duration
	job     Job
	entryID cron.EntryID

	running *atomic.Bool
	stats   *runStats
}

type runStats struct {
	mu      sync.Mutex
	runs    uint64
	skipped uint64
	lastErr string
	lastRun time.Time
	lastDur time.Duration
}

type Service struct {
	mu sync.Mutex

	log    logx.Logger
	loc    *time.Location
	parser cron.Parser
	c      *cron.Cron
	defs   []scheduleDef

	// base is the parent of every run context; cancelled by Stop.
	base   context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type ScheduleInfo struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Next    time.Time
	Prev    time.Time
	Runs    uint64
	Skipped uint64
	LastErr string
	LastRun time.Time
	LastDur time.Duration
}
