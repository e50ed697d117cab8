package domain

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

const (
	// mg/dL per mmol/L for glucose.
	glucoseFactor = 18.0

	GlucoseMax = 50.0

	glucoseLow  = 3.9
	glucoseHigh = 13.9

	SystolicMin  = 50
	SystolicMax  = 250
	DiastolicMin = 30
	DiastolicMax = 150
)

var (
	glucosePattern  = regexp.MustCompile(`^\s*(\d+(?:[.,]\d+)?)\s*(mmol|mg)?`)
	pressurePattern = regexp.MustCompile(`(\d{2,3})\s*/\s*(\d{2,3})`)
)

// Level classifies a reading against reference ranges.
type Level int

const (
	LevelNormal Level = iota
	LevelLow
	LevelHigh
)

func (l Level) String() string {
	switch l {
	case LevelLow:
		return "low"
	case LevelHigh:
		return "high"
	default:
		return "normal"
	}
}

// Glucose holds one blood sugar measurement in both units.
type Glucose struct {
	Mmol float64
	Mg   float64
}

// ParseGlucose accepts a leading decimal ("5.4", "5,4") with an optional unit
// ("100 mg", "5.6 mmol"). Without a unit the value is mmol/L. The accepted
// range [0,50] applies to the mmol/L value.
func ParseGlucose(text string) (Glucose, error) {
	m := glucosePattern.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return Glucose{}, Invalid("value", "not a number")
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return Glucose{}, Invalid("value", "not a number")
	}
	mmol := v
	if m[2] == "mg" {
		mmol = v / glucoseFactor
	}
	// range applies to the unrounded value
	if mmol < 0 || mmol > GlucoseMax {
		return Glucose{}, Invalid("value", "value out of accepted range [0, 50] mmol/L")
	}
	if m[2] == "mg" {
		return Glucose{Mmol: round1(mmol), Mg: round1(v)}, nil
	}
	return Glucose{Mmol: round1(v), Mg: math.Round(v * glucoseFactor)}, nil
}

func ClassifyGlucose(g Glucose) Level {
	switch {
	case g.Mmol < glucoseLow:
		return LevelLow
	case g.Mmol > glucoseHigh:
		return LevelHigh
	default:
		return LevelNormal
	}
}

// Pressure holds one blood pressure measurement in mmHg.
type Pressure struct {
	Systolic  int
	Diastolic int
}

// ParsePressure extracts the first "sys/dia" pair of 2-3 digit integers.
func ParsePressure(text string) (Pressure, error) {
	m := pressurePattern.FindStringSubmatch(text)
	if m == nil {
		return Pressure{}, Invalid("value", "expected systolic/diastolic, e.g. 120/80")
	}
	sys, _ := strconv.Atoi(m[1])
	dia, _ := strconv.Atoi(m[2])
	if sys < SystolicMin || sys > SystolicMax {
		return Pressure{}, Invalid("systolic", "value out of accepted range [50, 250]")
	}
	if dia < DiastolicMin || dia > DiastolicMax {
		return Pressure{}, Invalid("diastolic", "value out of accepted range [30, 150]")
	}
	return Pressure{Systolic: sys, Diastolic: dia}, nil
}

func ClassifyPressure(p Pressure) Level {
	switch {
	case p.Systolic >= 140 || p.Diastolic >= 90:
		return LevelHigh
	case p.Systolic < 90 || p.Diastolic < 60:
		return LevelLow
	default:
		return LevelNormal
	}
}

// Glucose converts a stored reading back. ok is false for other kinds.
func (r Reading) Glucose() (Glucose, bool) {
	if r.Kind != ReadingGlucose {
		return Glucose{}, false
	}
	return Glucose{Mmol: r.Primary, Mg: r.Secondary}, true
}

func (r Reading) Pressure() (Pressure, bool) {
	if r.Kind != ReadingPressure {
		return Pressure{}, false
	}
	return Pressure{Systolic: int(r.Primary), Diastolic: int(r.Secondary)}, true
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
