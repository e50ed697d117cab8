package storage

import (
	"context"
	"errors"
	"time"

	"medbot/internal/domain"
)

var (
	ErrDisabled   = errors.New("storage disabled")
	ErrConflict   = errors.New("storage: conflicting record")
	ErrForeignKey = errors.New("storage: referenced record missing")
	ErrCheck      = errors.New("storage: constraint violated")
)

// Config configures storage.
//
// Driver values:
//   - "memory": process-local maps, lost on restart
//   - "sqlite": SQLite database file (Path)
//   - "postgres": PostgreSQL server (DSN)
type Config struct {
	Driver       string
	Path         string
	DSN          string
	BusyTimeout  time.Duration // sqlite only; 0 means default
	MaxOpenConns int           // postgres only
}

// Store is the record store shared by the intake front-end and the reminder loop.
// Failures are returned as *domain.StoreError.
type Store interface {
	GetUser(ctx context.Context, id int64) (domain.User, bool, error)
	UpsertUser(ctx context.Context, id int64, name string) error

	// ListEvents returns every user's events when userID is nil.
	ListEvents(ctx context.Context, userID *int64) ([]domain.ScheduledEvent, error)
	GetEvent(ctx context.Context, eventID, userID int64) (domain.ScheduledEvent, bool, error)
	CreateEvent(ctx context.Context, userID int64, name, dose string, times []domain.TimeOfDay) (int64, error)
	// DeleteEvent removes eventID only if it belongs to userID.
	DeleteEvent(ctx context.Context, eventID, userID int64) (bool, error)
	ListUserIDsWithEvents(ctx context.Context) ([]int64, error)

	RecordAcknowledgement(ctx context.Context, a domain.Acknowledgement) (int64, error)
	RecentAcknowledgement(ctx context.Context, q domain.AckQuery) (bool, error)
	// AcknowledgementsBetween lists a user's acknowledgements in [from, to).
	AcknowledgementsBetween(ctx context.Context, userID int64, from, to time.Time) ([]domain.Acknowledgement, error)

	RecordReading(ctx context.Context, r domain.Reading) (int64, error)
	RecentReadings(ctx context.Context, kind domain.ReadingKind, userID int64, limit int) ([]domain.Reading, error)

	Ping(ctx context.Context) error
	Close() error
}

func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &domain.StoreError{Op: op, Err: err}
}

func validateEvent(name string, times []domain.TimeOfDay) error {
	if name == "" {
		return domain.Invalid("name", "must not be empty")
	}
	if len(times) == 0 {
		return domain.Invalid("times", "at least one time of day is required")
	}
	for _, t := range times {
		if !t.Valid() {
			return domain.Invalid("times", "invalid time of day "+t.String())
		}
	}
	return nil
}
