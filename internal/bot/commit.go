package bot

import (
	"context"
	"fmt"

	"medbot/internal/domain"
	"medbot/internal/intake"
	logx "medbot/pkg/logx"
)

// Commit persists a completed intake form. It implements intake.Committer;
// on error the machine keeps the session so the user can resend.
func (b *Bot) Commit(ctx context.Context, c intake.Completion) error {
	log := b.log.With(logx.Int64("user_id", c.UserID), logx.String("flow", c.Flow.String()), logx.String("session", c.SessionID))

	switch c.Flow {
	case intake.FlowOnboarding:
		if err := b.store.UpsertUser(ctx, c.UserID, c.Fields.String(intake.FieldName)); err != nil {
			return err
		}
		log.Info("user registered")

	case intake.FlowAddEvent:
		id, err := b.store.CreateEvent(ctx, c.UserID,
			c.Fields.String(intake.FieldName),
			c.Fields.String(intake.FieldDose),
			c.Fields.Times(intake.FieldTimes),
		)
		if err != nil {
			return err
		}
		log.Info("event created", logx.Int64("event_id", id))

	case intake.FlowGlucose:
		g, ok := c.Fields.Glucose(intake.FieldGlucose)
		if !ok {
			return fmt.Errorf("glucose form without value")
		}
		r := domain.Reading{UserID: c.UserID, Kind: domain.ReadingGlucose, Primary: g.Mmol, Secondary: g.Mg, At: b.clock.Now()}
		if _, err := b.store.RecordReading(ctx, r); err != nil {
			return err
		}

	case intake.FlowPressure:
		p, ok := c.Fields.Pressure(intake.FieldPressure)
		if !ok {
			return fmt.Errorf("pressure form without value")
		}
		r := domain.Reading{UserID: c.UserID, Kind: domain.ReadingPressure, Primary: float64(p.Systolic), Secondary: float64(p.Diastolic), At: b.clock.Now()}
		if _, err := b.store.RecordReading(ctx, r); err != nil {
			return err
		}

	default:
		return fmt.Errorf("commit: unsupported flow %s", c.Flow)
	}
	return nil
}
