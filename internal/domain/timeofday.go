package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a wall-clock minute within a day.
type TimeOfDay struct {
	Hour   int
	Minute int
}

var timePattern = regexp.MustCompile(`(\d{1,2}):(\d{2})`)

// String renders the canonical zero-padded HH:MM form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) Valid() bool {
	return t.Hour >= 0 && t.Hour <= 23 && t.Minute >= 0 && t.Minute <= 59
}

// At reports whether tm falls on this minute.
func (t TimeOfDay) At(tm time.Time) bool {
	return tm.Hour() == t.Hour && tm.Minute() == t.Minute
}

// TimeOf returns the minute of the day tm falls on.
func TimeOf(tm time.Time) TimeOfDay {
	return TimeOfDay{Hour: tm.Hour(), Minute: tm.Minute()}
}

// ParseTimes extracts every H:MM / HH:MM occurrence from free text.
// Fragments that do not match, or name an impossible clock time, are skipped;
// the caller rejects an empty result. Order is first-seen, duplicates collapse.
func ParseTimes(text string) []TimeOfDay {
	matches := timePattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[TimeOfDay]struct{}, len(matches))
	out := make([]TimeOfDay, 0, len(matches))
	for _, m := range matches {
		h, err1 := strconv.Atoi(m[1])
		mm, err2 := strconv.Atoi(m[2])
		if err1 != nil || err2 != nil {
			continue
		}
		t := TimeOfDay{Hour: h, Minute: mm}
		if !t.Valid() {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// JoinTimes renders the comma-joined storage form ("08:00,20:00").
func JoinTimes(times []TimeOfDay) string {
	parts := make([]string, 0, len(times))
	for _, t := range times {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, ",")
}

// SplitTimes parses the storage form. Unknown fragments are dropped.
func SplitTimes(s string) []TimeOfDay {
	return ParseTimes(s)
}
