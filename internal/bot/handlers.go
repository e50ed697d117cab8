package bot

import (
	"context"
	"errors"
	"strconv"

	"medbot/internal/domain"
	"medbot/internal/intake"
	"medbot/internal/transport/telegram/router"
	logx "medbot/pkg/logx"
	"medbot/pkg/tgui"
)

func (b *Bot) cmdStart(ctx context.Context, req *router.Request) error {
	u, ok, err := b.registered(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, "get_user", err)
	}
	if ok {
		if _, err := b.machine.Cancel(ctx, req.FromID); err != nil {
			return b.fail(ctx, req, "cancel", err)
		}
		return b.reply(ctx, req, menuView("👋 Welcome back, "+u.Name+"!"))
	}
	prompt, err := b.machine.Start(ctx, req.FromID, intake.FlowOnboarding)
	if err != nil {
		return b.fail(ctx, req, "start_onboarding", err)
	}
	return b.reply(ctx, req, tgui.New().Title("💊", "MedBot").Line(prompt).Build())
}

func (b *Bot) cmdMenu(ctx context.Context, req *router.Request) error {
	return b.reply(ctx, req, menuView("Main menu:"))
}

func (b *Bot) cmdCancel(ctx context.Context, req *router.Request) error {
	cancelled, err := b.machine.Cancel(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, "cancel", err)
	}
	if !cancelled {
		return b.reply(ctx, req, menuView("Nothing to cancel."))
	}
	return b.reply(ctx, req, menuView("Cancelled."))
}

func (b *Bot) cmdStats(ctx context.Context, req *router.Request) error {
	d, err := b.collectStats(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, "stats", err)
	}
	return b.reply(ctx, req, statsView("Statistics", d, b.loc, backMenu()))
}

func (b *Bot) cmdHelp(ctx context.Context, req *router.Request) error {
	return b.reply(ctx, req, helpView())
}

func (b *Bot) cmdUnknown(ctx context.Context, req *router.Request) error {
	return b.replyText(ctx, req, "Unknown command. Try /help.")
}

// onText feeds free text into the user's form.
func (b *Bot) onText(ctx context.Context, req *router.Request) error {
	res, err := b.machine.Submit(ctx, req.FromID, req.Text)
	switch {
	case errors.Is(err, domain.ErrNoActiveSession):
		return b.replyText(ctx, req, "Use /menu to choose what to do.")
	case domain.IsValidation(err):
		req.Logger.Debug("input rejected", logx.Err(err))
		return b.reply(ctx, req, tgui.New().Line("❌ "+err.Error()).Line(res.Prompt).Build())
	case err != nil:
		return b.fail(ctx, req, "submit", err)
	}

	if res.Kind == intake.Advanced {
		return b.replyText(ctx, req, res.Prompt)
	}
	return b.reply(ctx, req, completedView(res))
}

func completedView(res intake.Result) tgui.Message {
	switch res.Flow {
	case intake.FlowOnboarding:
		return menuView("Nice to meet you, " + res.Fields.String(intake.FieldName) + " 🙂")
	case intake.FlowAddEvent:
		return menuView("💊 " + res.Fields.String(intake.FieldName) + " added!")
	case intake.FlowGlucose:
		g, _ := res.Fields.Glucose(intake.FieldGlucose)
		return glucoseView(g)
	case intake.FlowPressure:
		p, _ := res.Fields.Pressure(intake.FieldPressure)
		return pressureView(p)
	default:
		return menuView("Saved.")
	}
}

func (b *Bot) cbMenu(ctx context.Context, req *router.Request) error {
	return menuView("Main menu:").Edit(ctx, b.adapter, req.Ref())
}

// cbStartFlow starts kind, or onboarding first for users without a profile.
func (b *Bot) cbStartFlow(kind intake.FlowKind) router.HandlerFunc {
	return func(ctx context.Context, req *router.Request) error {
		_, ok, err := b.registered(ctx, req.FromID)
		if err != nil {
			return b.fail(ctx, req, "get_user", err)
		}
		flow, header := kind, ""
		if !ok {
			flow, header = intake.FlowOnboarding, "Let's get acquainted first."
		}
		prompt, err := b.machine.Start(ctx, req.FromID, flow)
		if err != nil {
			return b.fail(ctx, req, "start_"+flow.String(), err)
		}
		mb := tgui.New()
		if header != "" {
			mb.Line(header)
		}
		return b.reply(ctx, req, mb.Line(prompt).Build())
	}
}

func (b *Bot) cbList(ctx context.Context, req *router.Request) error {
	uid := req.FromID
	events, err := b.store.ListEvents(ctx, &uid)
	if err != nil {
		return b.fail(ctx, req, "list_events", err)
	}
	return listView(events).Edit(ctx, b.adapter, req.Ref())
}

func (b *Bot) cbDelete(ctx context.Context, req *router.Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		req.Answer("Medication not found")
		return nil
	}
	e, ok, err := b.store.GetEvent(ctx, id, req.FromID)
	if err != nil {
		return b.fail(ctx, req, "get_event", err)
	}
	if ok {
		deleted, err := b.store.DeleteEvent(ctx, id, req.FromID)
		if err != nil {
			return b.fail(ctx, req, "delete_event", err)
		}
		if deleted {
			req.Logger.Info("event deleted", logx.Int64("event_id", id))
			req.Answer("🗑 " + e.Name + " deleted")
		}
	} else {
		req.Answer("Medication not found")
	}
	return b.cbList(ctx, req)
}

// cbTaken records an acknowledgement for the reminder's event and rewrites
// the reminder message.
func (b *Bot) cbTaken(ctx context.Context, req *router.Request) error {
	id, err := strconv.ParseInt(req.Payload, 10, 64)
	if err != nil {
		req.Answer("Medication not found")
		return nil
	}
	e, ok, err := b.store.GetEvent(ctx, id, req.FromID)
	if err != nil {
		return b.fail(ctx, req, "get_event", err)
	}
	if !ok {
		req.Answer("Medication not found")
		return nil
	}
	now := b.now()
	ack := domain.Acknowledgement{UserID: req.FromID, EventID: e.ID, EventName: e.Label(), At: now}
	if _, err := b.store.RecordAcknowledgement(ctx, ack); err != nil {
		return b.fail(ctx, req, "record_ack", err)
	}
	req.Answer("✅ Marked!")
	return takenView(e, now).Edit(ctx, b.adapter, req.Ref())
}

func (b *Bot) cbStats(ctx context.Context, req *router.Request) error {
	d, err := b.collectStats(ctx, req.FromID)
	if err != nil {
		return b.fail(ctx, req, "stats", err)
	}
	return statsView("Statistics", d, b.loc, backMenu()).Edit(ctx, b.adapter, req.Ref())
}
