package reminder

import (
	"time"

	"medbot/internal/domain"
)

// DefaultWindow is the trailing span during which an acknowledgement
// suppresses a reminder for the same event.
const DefaultWindow = 15 * time.Minute

// Guard decides whether an occurrence is already acknowledged.
type Guard struct {
	Window time.Duration
	Match  domain.AckMatch
}

func NewGuard(window time.Duration, match domain.AckMatch) Guard {
	if window <= 0 {
		window = DefaultWindow
	}
	if !match.Valid() {
		match = domain.AckByEventID
	}
	return Guard{Window: window, Match: match}
}

// Query builds the acknowledgement lookup for e at now: acknowledgements in
// (now-Window, now].
func (g Guard) Query(e domain.ScheduledEvent, now time.Time) domain.AckQuery {
	q := domain.AckQuery{
		UserID: e.UserID,
		Since:  now.Add(-g.Window),
		Until:  now,
	}
	if g.Match == domain.AckByNamePrefix {
		q.NamePrefix = e.Name
	} else {
		q.EventID = e.ID
	}
	return q
}

// Allow reports whether e may be notified at now given the acknowledgement log.
func (g Guard) Allow(acks []domain.Acknowledgement, e domain.ScheduledEvent, now time.Time) bool {
	q := g.Query(e, now)
	for _, a := range acks {
		if q.Matches(a) {
			return false
		}
	}
	return true
}
