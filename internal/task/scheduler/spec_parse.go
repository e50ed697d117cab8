package scheduler

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

// ParsedSpec is a normalized schedule string.
//
// Accepted:
//   - cron: "*/5 * * * *", "0 30 21 * * *", "@daily", "@every 1m"
//   - Go duration interval: "1m", "2h30m"
//   - HH:MM interval: "00:15" (every 15 minutes)
//
// "cron:" forces cron, "interval:" or "every:" force an interval.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // cron, duration or hhmm
}

var reInterval = regexp.MustCompile(`^(\d{1,3}):([0-5]\d)$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, errors.New("schedule required")
	}
	prefix, rest, hasPrefix := strings.Cut(s, ":")
	if hasPrefix {
		switch strings.ToLower(prefix) {
		case "cron":
			expr := strings.TrimSpace(rest)
			if expr == "" {
				return ParsedSpec{}, errors.New("cron expression required after cron:")
			}
			return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
		case "interval", "every":
			return intervalSpec(rest)
		}
	}
	if s[0] == '@' || strings.ContainsAny(s, " \t") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	ps, err := intervalSpec(s)
	if err != nil {
		return ParsedSpec{}, fmt.Errorf("invalid schedule %q: use cron like '*/5 * * * *', HH:MM like '00:15' or a duration like '1m'", raw)
	}
	return ps, nil
}

func intervalSpec(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	var (
		d   time.Duration
		src string
	)
	if m := reInterval.FindStringSubmatch(v); m != nil {
		hh, _ := strconv.Atoi(m[1])
		mm, _ := strconv.Atoi(m[2])
		d, src = time.Duration(hh)*time.Hour+time.Duration(mm)*time.Minute, "hhmm"
	} else {
		pd, err := time.ParseDuration(v)
		if err != nil {
			return ParsedSpec{}, fmt.Errorf("invalid interval %q", v)
		}
		d, src = pd, "duration"
	}
	if d <= 0 {
		return ParsedSpec{}, errors.New("interval must be > 0")
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}
