package domain

import (
	"strings"
	"time"
)

// User is a registered person. ID is the chat-platform identifier.
type User struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// ScheduledEvent is a recurring medication reminder.
type ScheduledEvent struct {
	ID        int64
	UserID    int64
	Name      string
	Dose      string
	Times     []TimeOfDay
	CreatedAt time.Time
}

// Label is the human-readable identity used in acknowledgements: "name dose".
func (e ScheduledEvent) Label() string {
	return strings.TrimSpace(e.Name + " " + e.Dose)
}

// Acknowledgement records that a user confirmed an intake.
type Acknowledgement struct {
	ID        int64
	UserID    int64
	EventID   int64
	EventName string
	At        time.Time
}

type ReadingKind string

const (
	ReadingGlucose  ReadingKind = "glucose"
	ReadingPressure ReadingKind = "pressure"
)

func (k ReadingKind) Valid() bool {
	return k == ReadingGlucose || k == ReadingPressure
}

// Reading is a health measurement. For glucose Primary is mmol/L and Secondary
// mg/dL; for pressure they are systolic and diastolic.
type Reading struct {
	ID        int64
	UserID    int64
	Kind      ReadingKind
	Primary   float64
	Secondary float64
	At        time.Time
}

// AckMatch selects how acknowledgements are tied to events.
type AckMatch string

const (
	// AckByEventID matches acknowledgements carrying the event id.
	AckByEventID AckMatch = "event_id"
	// AckByNamePrefix matches acknowledgements whose label starts with the
	// event name. Two events sharing a name suppress each other.
	AckByNamePrefix AckMatch = "name_prefix"
)

func (m AckMatch) Valid() bool { return m == AckByEventID || m == AckByNamePrefix }

// AckQuery selects acknowledgements of one user recorded in (Since, Until].
// A zero Until leaves the upper bound open. EventID wins over NamePrefix.
type AckQuery struct {
	UserID     int64
	EventID    int64
	NamePrefix string
	Since      time.Time
	Until      time.Time
}

// Matches reports whether a satisfies q.
func (q AckQuery) Matches(a Acknowledgement) bool {
	if a.UserID != q.UserID {
		return false
	}
	if q.EventID != 0 {
		if a.EventID != q.EventID {
			return false
		}
	} else if !strings.HasPrefix(a.EventName, q.NamePrefix) {
		return false
	}
	if !a.At.After(q.Since) {
		return false
	}
	return q.Until.IsZero() || !a.At.After(q.Until)
}
