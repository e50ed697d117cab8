// Package scheduler runs housekeeping jobs (session sweep, daily digest) on
// cron or interval schedules in the configured timezone.
//
// A job never overlaps itself: a trigger that fires while the previous run
// is still going is skipped.
package scheduler
