package bot

import (
	"context"
	"errors"
	"time"

	"medbot/internal/domain"
	"medbot/internal/intake"
	logx "medbot/pkg/logx"
)

// collectStats loads the statistics screen for userID; "today" is the local
// calendar day.
func (b *Bot) collectStats(ctx context.Context, userID int64) (statsData, error) {
	var d statsData
	var err error
	if d.Glucose, err = b.store.RecentReadings(ctx, domain.ReadingGlucose, userID, statsLimit); err != nil {
		return d, err
	}
	if d.Pressure, err = b.store.RecentReadings(ctx, domain.ReadingPressure, userID, statsLimit); err != nil {
		return d, err
	}
	from, to := dayBounds(b.now())
	if d.Today, err = b.store.AcknowledgementsBetween(ctx, userID, from, to); err != nil {
		return d, err
	}
	return d, nil
}

func dayBounds(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	from := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	return from, from.AddDate(0, 0, 1)
}

// Digest sends today's statistics to every user with at least one event.
// One user's failure does not stop the others.
func (b *Bot) Digest(ctx context.Context) error {
	ids, err := b.store.ListUserIDsWithEvents(ctx)
	if err != nil {
		return err
	}
	var errs []error
	sent := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}
		d, err := b.collectStats(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := b.sender.Send(ctx, id, statsView("Daily summary", d, b.loc, nil)); err != nil {
			b.log.Warn("digest delivery failed", logx.Int64("user_id", id), logx.Err(err))
			errs = append(errs, &domain.DeliveryError{UserID: id, Err: err})
			continue
		}
		sent++
	}
	b.log.Info("digest sent", logx.Int("users", len(ids)), logx.Int("sent", sent))
	return errors.Join(errs...)
}

// SweepSessions expires idle forms and tells their owners.
func (b *Bot) SweepSessions(ctx context.Context) error {
	expired, err := b.machine.Sweep(ctx)
	for _, s := range expired {
		if _, serr := b.sender.Send(ctx, s.UserID, expiredView(s.Flow)); serr != nil {
			b.log.Debug("expiry notice failed", logx.Int64("user_id", s.UserID), logx.Err(serr))
		}
	}
	if len(expired) > 0 {
		b.log.Debug("sessions expired", logx.Int("count", len(expired)))
	}
	return err
}

var _ intake.Committer = (*Bot)(nil)
