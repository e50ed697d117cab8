// Package bot is the conversational front-end: it maps commands, button
// presses and free-text replies onto the intake machine and the record
// store, and renders the screens users see.
package bot

import (
	"context"
	"errors"
	"time"

	"github.com/jonboulle/clockwork"

	"medbot/internal/domain"
	"medbot/internal/intake"
	"medbot/internal/storage"
	kit "medbot/internal/transport"
	"medbot/internal/transport/telegram/router"
	logx "medbot/pkg/logx"
	"medbot/pkg/tgui"
)

// Sender delivers proactive messages (digests, expiry notices).
type Sender interface {
	Send(ctx context.Context, chatID int64, msg tgui.Message) (kit.MessageRef, error)
}

const genericFailure = "Something went wrong, please try again."

type Bot struct {
	store   storage.Store
	adapter kit.Adapter
	sender  Sender
	machine *intake.Machine
	clock   clockwork.Clock
	loc     *time.Location
	log     logx.Logger

	machineOpts []intake.Option
}

type Option func(*Bot)

func WithClock(c clockwork.Clock) Option { return func(b *Bot) { b.clock = c } }
func WithLogger(l logx.Logger) Option    { return func(b *Bot) { b.log = l } }
func WithSender(s Sender) Option         { return func(b *Bot) { b.sender = s } }

// WithMachineOptions configures the intake machine the bot owns.
func WithMachineOptions(opts ...intake.Option) Option {
	return func(b *Bot) { b.machineOpts = append(b.machineOpts, opts...) }
}

// New builds the front-end and its intake machine. Completed forms are
// persisted through store by Commit. loc decides local time for
// acknowledgements and statistics.
func New(store storage.Store, adapter kit.Adapter, loc *time.Location, opts ...Option) *Bot {
	b := &Bot{store: store, adapter: adapter, loc: loc, clock: clockwork.NewRealClock()}
	for _, o := range opts {
		o(b)
	}
	if b.log.IsZero() {
		b.log = logx.Nop()
	}
	if b.loc == nil {
		b.loc = time.Local
	}
	if b.sender == nil {
		b.sender = adapterSender{ad: adapter}
	}
	mopts := append([]intake.Option{intake.WithClock(b.clock), intake.WithLogger(b.log.With(logx.String("comp", "intake")))}, b.machineOpts...)
	b.machine = intake.NewMachine(b, mopts...)
	return b
}

func (b *Bot) Machine() *intake.Machine { return b.machine }

// Registry is the router handler set for the bot.
func (b *Bot) Registry() router.Registry {
	return router.Registry{
		Commands: []router.Command{
			{Name: "start", Description: "Start or resume", Handle: b.cmdStart},
			{Name: "menu", Description: "Main menu", Handle: b.cmdMenu},
			{Name: "cancel", Description: "Cancel the current form", Handle: b.cmdCancel},
			{Name: "stats", Description: "Readings and today's intakes", Handle: b.cmdStats},
			{Name: "help", Aliases: []string{"h"}, Description: "What I can do", Handle: b.cmdHelp},
		},
		Callbacks: []router.CallbackRoute{
			{Action: actMenu, Handle: b.cbMenu},
			{Action: actAdd, Handle: b.cbStartFlow(intake.FlowAddEvent)},
			{Action: actGlucose, Handle: b.cbStartFlow(intake.FlowGlucose)},
			{Action: actPressure, Handle: b.cbStartFlow(intake.FlowPressure)},
			{Action: actList, Handle: b.cbList},
			{Action: actDelete, Handle: b.cbDelete},
			{Action: actTaken, Handle: b.cbTaken},
			{Action: actStats, Handle: b.cbStats},
		},
		Text:    b.onText,
		Unknown: b.cmdUnknown,
	}
}

func (b *Bot) now() time.Time { return b.clock.Now().In(b.loc) }

func (b *Bot) reply(ctx context.Context, req *router.Request, msg tgui.Message) error {
	_, err := msg.Send(ctx, b.adapter, req.Chat)
	return err
}

func (b *Bot) replyText(ctx context.Context, req *router.Request, text string) error {
	return b.reply(ctx, req, tgui.New().Line(text).Build())
}

// fail logs err with the request context and shows the generic message.
// Validation errors never reach here.
func (b *Bot) fail(ctx context.Context, req *router.Request, op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	req.Logger.Error("request failed", logx.String("op", op), logx.Err(err))
	if req.Update.Callback != nil {
		req.Answer(genericFailure)
		return err
	}
	_ = b.replyText(ctx, req, genericFailure)
	return err
}

// registered reports whether userID completed onboarding.
func (b *Bot) registered(ctx context.Context, userID int64) (domain.User, bool, error) {
	return b.store.GetUser(ctx, userID)
}

type adapterSender struct{ ad kit.Adapter }

func (s adapterSender) Send(ctx context.Context, chatID int64, msg tgui.Message) (kit.MessageRef, error) {
	return msg.Send(ctx, s.ad, kit.ChatTarget{ChatID: chatID})
}
