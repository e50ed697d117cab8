package bot

import (
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"medbot/internal/domain"
	"medbot/internal/intake"
	"medbot/pkg/tgui"
)

const (
	actMenu     = "menu"
	actAdd      = "add"
	actList     = "list"
	actDelete   = "del"
	actTaken    = "taken"
	actGlucose  = "glucose"
	actPressure = "pressure"
	actStats    = "stats"
)

const statsLimit = 5

func mainMenu() *tgui.Inline {
	return tgui.NewInline().
		Row(tgui.Btn("➕ Add medication", tgui.Data(actAdd, ""))).
		Row(tgui.Btn("📋 My medications", tgui.Data(actList, ""))).
		Row(tgui.Btn("🩸 Glucose", tgui.Data(actGlucose, ""))).
		Row(tgui.Btn("❤️ Pressure", tgui.Data(actPressure, ""))).
		Row(tgui.Btn("📊 Statistics", tgui.Data(actStats, "")))
}

func backMenu() *tgui.Inline {
	return tgui.NewInline().Row(tgui.Btn("◀️ Main menu", tgui.Data(actMenu, "")))
}

func menuView(header string) tgui.Message {
	return tgui.New().Line(header).Inline(mainMenu()).Build()
}

// ReminderMessage is the message sent when one of e's times comes up.
func ReminderMessage(e domain.ScheduledEvent) tgui.Message {
	kb := tgui.NewInline().
		Row(tgui.Btn("✅ Taken", tgui.Data(actTaken, strconv.FormatInt(e.ID, 10)))).
		Row(tgui.Btn("🩸 Glucose", tgui.Data(actGlucose, ""))).
		Row(tgui.Btn("❤️ Pressure", tgui.Data(actPressure, "")))
	return tgui.New().
		RawLine(tgui.JoinH(" ", tgui.Esc("⏰"), tgui.B(e.Name), tgui.Esc(e.Dose))).
		Inline(kb).
		Build()
}

func takenView(e domain.ScheduledEvent, at time.Time) tgui.Message {
	return tgui.New().
		RawLine(tgui.JoinH(" ", tgui.Esc("✅"), tgui.B(e.Name), tgui.Esc("taken at "+at.Format("15:04")))).
		Build()
}

func listView(events []domain.ScheduledEvent) tgui.Message {
	if len(events) == 0 {
		return menuView("You have no medications yet.")
	}
	b := tgui.New().Title("📋", "Your medications").Blank()
	buttons := make([]tele.Btn, 0, len(events))
	for _, e := range events {
		b.RawLine(tgui.JoinH(" ", tgui.Esc("💊"), tgui.B(e.Name)))
		b.Line("   " + strings.TrimSpace(e.Dose+" at "+domain.JoinTimes(e.Times)))
		label := "🗑 " + e.Name
		if e.Dose != "" {
			label += " (" + e.Dose + ")"
		}
		buttons = append(buttons, tgui.Btn(tgui.TruncRunes(label, 40), tgui.Data(actDelete, strconv.FormatInt(e.ID, 10))))
	}
	kb := tgui.NewInline()
	for _, btn := range buttons {
		kb.Row(btn)
	}
	kb.Row(tgui.Btn("◀️ Back", tgui.Data(actMenu, "")))
	return b.Inline(kb).Build()
}

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func glucoseLine(g domain.Glucose) string {
	return formatFloat(g.Mmol) + " mmol/L (~" + formatFloat(g.Mg) + " mg/dL)"
}

func pressureLine(p domain.Pressure) string {
	return strconv.Itoa(p.Systolic) + "/" + strconv.Itoa(p.Diastolic) + " mmHg"
}

func glucoseView(g domain.Glucose) tgui.Message {
	b := tgui.New().Line("🩸 " + glucoseLine(g))
	switch domain.ClassifyGlucose(g) {
	case domain.LevelLow:
		b.Blank().RawLine(tgui.B("⚠️ Low level!"))
	case domain.LevelHigh:
		b.Blank().RawLine(tgui.B("⚠️ High level!"))
	}
	return b.Inline(mainMenu()).Build()
}

func pressureView(p domain.Pressure) tgui.Message {
	b := tgui.New().Line("❤️ " + pressureLine(p))
	switch domain.ClassifyPressure(p) {
	case domain.LevelHigh:
		b.Blank().RawLine(tgui.B("⚠️ High blood pressure"))
	case domain.LevelLow:
		b.Blank().RawLine(tgui.B("⚠️ Low blood pressure"))
	}
	return b.Inline(mainMenu()).Build()
}

// statsData is what the statistics screen and the daily digest show.
type statsData struct {
	Glucose  []domain.Reading
	Pressure []domain.Reading
	Today    []domain.Acknowledgement
}

func statsView(title string, d statsData, loc *time.Location, kb *tgui.Inline) tgui.Message {
	b := tgui.New().Title("📊", title).Blank()

	b.RawLine(tgui.B("🩸 Glucose:"))
	if len(d.Glucose) == 0 {
		b.Line("No data")
	}
	for _, r := range d.Glucose {
		if g, ok := r.Glucose(); ok {
			b.Line("• " + glucoseLine(g) + " · " + r.At.In(loc).Format("02.01 15:04"))
		}
	}

	b.Blank().RawLine(tgui.B("❤️ Pressure:"))
	if len(d.Pressure) == 0 {
		b.Line("No data")
	}
	for _, r := range d.Pressure {
		if p, ok := r.Pressure(); ok {
			b.Line("• " + pressureLine(p) + " · " + r.At.In(loc).Format("02.01 15:04"))
		}
	}

	b.Blank().RawLine(tgui.B("💊 Taken today (" + strconv.Itoa(len(d.Today)) + "):"))
	if len(d.Today) == 0 {
		b.Line("No data")
	}
	for _, a := range d.Today {
		b.Line("• " + a.EventName + " at " + a.At.In(loc).Format("15:04"))
	}
	return b.Inline(kb).Build()
}

func helpView() tgui.Message {
	return tgui.New().
		Title("💊", "MedBot").
		Line("I remind you to take your medications and keep a log of glucose and blood pressure.").
		Blank().
		Bullets(
			"/start - register or resume",
			"/menu - main menu",
			"/stats - recent readings and today's intakes",
			"/cancel - abandon the form in progress",
			"/help - this message",
		).
		Build()
}

func flowTitle(k intake.FlowKind) string {
	switch k {
	case intake.FlowOnboarding:
		return "introduction"
	case intake.FlowAddEvent:
		return "new medication"
	case intake.FlowGlucose:
		return "glucose"
	case intake.FlowPressure:
		return "pressure"
	default:
		return k.String()
	}
}

func expiredView(k intake.FlowKind) tgui.Message {
	return tgui.New().Line("⌛ The " + flowTitle(k) + " form expired. Use /menu to start again.").Build()
}
