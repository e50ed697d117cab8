package reminder

import (
	"time"

	"medbot/internal/domain"
)

// Matches reports whether now falls exactly on one of the configured minutes.
// now must already be in the reminder timezone.
func Matches(times []domain.TimeOfDay, now time.Time) bool {
	for _, t := range times {
		if t.At(now) {
			return true
		}
	}
	return false
}
