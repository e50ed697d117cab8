package intake

import (
	"html"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	"medbot/internal/domain"
)

// FlowKind enumerates the multi-step forms.
type FlowKind int

const (
	FlowOnboarding FlowKind = iota + 1
	FlowAddEvent
	FlowGlucose
	FlowPressure
)

func (k FlowKind) String() string {
	switch k {
	case FlowOnboarding:
		return "onboarding"
	case FlowAddEvent:
		return "add_event"
	case FlowGlucose:
		return "glucose"
	case FlowPressure:
		return "pressure"
	default:
		return "unknown"
	}
}

// Field names captured by the flows.
const (
	FieldName     = "name"
	FieldDose     = "dose"
	FieldTimes    = "times"
	FieldGlucose  = "glucose"
	FieldPressure = "pressure"
)

const (
	maxUserName  = 50
	maxEventName = 100
	maxDose      = 50
)

// Step is one prompt of a flow. Parse validates the raw reply and returns the
// value stored under Field.
type Step struct {
	Field  string
	Prompt string
	Parse  func(text string) (any, error)
}

type Flow struct {
	Kind  FlowKind
	Steps []Step
}

var flows = map[FlowKind]Flow{
	FlowOnboarding: {Kind: FlowOnboarding, Steps: []Step{
		{Field: FieldName, Prompt: "👋 Hi! What should I call you?", Parse: textField(FieldName, maxUserName)},
	}},
	FlowAddEvent: {Kind: FlowAddEvent, Steps: []Step{
		{Field: FieldName, Prompt: "💊 Medication name?", Parse: textField(FieldName, maxEventName)},
		{Field: FieldDose, Prompt: "Dose? (e.g. 100 mg)", Parse: textField(FieldDose, maxDose)},
		{Field: FieldTimes, Prompt: "Reminder times, comma separated (e.g. 08:00, 20:00)", Parse: parseTimes},
	}},
	FlowGlucose: {Kind: FlowGlucose, Steps: []Step{
		{Field: FieldGlucose, Prompt: "🩸 Glucose value? (e.g. 5.6 or 100 mg)", Parse: parseGlucose},
	}},
	FlowPressure: {Kind: FlowPressure, Steps: []Step{
		{Field: FieldPressure, Prompt: "❤️ Blood pressure? (e.g. 120/80)", Parse: parsePressure},
	}},
}

// FlowFor returns the definition of kind.
func FlowFor(kind FlowKind) (Flow, bool) {
	f, ok := flows[kind]
	return f, ok
}

var stripMarkup = bluemonday.StrictPolicy()

// cleanText trims and strips markup, keeping literal characters like "&".
func cleanText(s string) string {
	return strings.TrimSpace(html.UnescapeString(stripMarkup.Sanitize(strings.TrimSpace(s))))
}

func textField(field string, maxRunes int) func(string) (any, error) {
	return func(text string) (any, error) {
		v := cleanText(text)
		if v == "" {
			return nil, domain.Invalid(field, "must not be empty")
		}
		if utf8.RuneCountInString(v) > maxRunes {
			return nil, domain.Invalid(field, "exceeds "+strconv.Itoa(maxRunes)+" characters")
		}
		return v, nil
	}
}

func parseTimes(text string) (any, error) {
	times := domain.ParseTimes(text)
	if len(times) == 0 {
		return nil, domain.Invalid(FieldTimes, "not a recognized time format, use HH:MM")
	}
	return times, nil
}

func parseGlucose(text string) (any, error) {
	g, err := domain.ParseGlucose(text)
	if err != nil {
		return nil, err
	}
	return g, nil
}

func parsePressure(text string) (any, error) {
	p, err := domain.ParsePressure(text)
	if err != nil {
		return nil, err
	}
	return p, nil
}
