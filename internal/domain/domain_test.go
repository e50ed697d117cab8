package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestParseTimes(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want string
	}{
		{"08:00, 20:00", "08:00,20:00"},
		{"8:00", "08:00"},
		{"8:00 and 08:00", "08:00"},
		{"9:30,xx,21:05", "09:30,21:05"},
		{"25:00, 7:15", "07:15"},
		{"12:61", ""},
		{"noon", ""},
		{"", ""},
	}
	for _, tc := range cases {
		got := JoinTimes(ParseTimes(tc.in))
		if got != tc.want {
			t.Fatalf("ParseTimes(%q)=%q want %q", tc.in, got, tc.want)
		}
	}
}

func TestSplitTimesRoundTrip(t *testing.T) {
	t.Parallel()

	in := []TimeOfDay{{8, 0}, {20, 0}}
	got := SplitTimes(JoinTimes(in))
	if len(got) != 2 || got[0] != in[0] || got[1] != in[1] {
		t.Fatalf("unexpected times: %v", got)
	}
}

func TestTimeOfDayAt(t *testing.T) {
	t.Parallel()

	tm := time.Date(2024, 3, 1, 8, 0, 42, 0, time.UTC)
	if !(TimeOfDay{8, 0}).At(tm) {
		t.Fatalf("08:00 should match %v", tm)
	}
	if (TimeOfDay{8, 1}).At(tm) {
		t.Fatalf("08:01 should not match %v", tm)
	}
}

func TestParseGlucose(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in      string
		mmol    float64
		mg      float64
		wantErr bool
	}{
		{in: "5.4", mmol: 5.4, mg: 97},
		{in: "5,4", mmol: 5.4, mg: 97},
		{in: "100 mg", mmol: 5.6, mg: 100},
		{in: "6.1 mmol/L", mmol: 6.1, mg: 110},
		{in: "0", mmol: 0, mg: 0},
		{in: "50", mmol: 50, mg: 900},
		{in: "55", wantErr: true},
		{in: "50.04", wantErr: true},
		{in: "900.5 mg", wantErr: true},
		{in: "900 mg", mmol: 50, mg: 900},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tc := range cases {
		g, err := ParseGlucose(tc.in)
		if tc.wantErr {
			if !IsValidation(err) {
				t.Fatalf("ParseGlucose(%q) err=%v want ValidationError", tc.in, err)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseGlucose(%q): %v", tc.in, err)
		}
		if g.Mmol != tc.mmol || g.Mg != tc.mg {
			t.Fatalf("ParseGlucose(%q)=%+v want mmol=%v mg=%v", tc.in, g, tc.mmol, tc.mg)
		}
	}
}

func TestParsePressure(t *testing.T) {
	t.Parallel()

	p, err := ParsePressure("120/80")
	if err != nil || p.Systolic != 120 || p.Diastolic != 80 {
		t.Fatalf("ParsePressure(120/80)=%+v, %v", p, err)
	}
	p, err = ParsePressure(" 135 / 85 ")
	if err != nil || p.Systolic != 135 || p.Diastolic != 85 {
		t.Fatalf("ParsePressure spaced=%+v, %v", p, err)
	}
	for _, in := range []string{"300/80", "120/20", "120/160", "120", "1/2"} {
		if _, err := ParsePressure(in); !IsValidation(err) {
			t.Fatalf("ParsePressure(%q) err=%v want ValidationError", in, err)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	if ClassifyGlucose(Glucose{Mmol: 3.5}) != LevelLow {
		t.Fatalf("3.5 mmol should be low")
	}
	if ClassifyGlucose(Glucose{Mmol: 14.2}) != LevelHigh {
		t.Fatalf("14.2 mmol should be high")
	}
	if ClassifyGlucose(Glucose{Mmol: 5.5}) != LevelNormal {
		t.Fatalf("5.5 mmol should be normal")
	}
	if ClassifyPressure(Pressure{140, 80}) != LevelHigh {
		t.Fatalf("140/80 should be high")
	}
	if ClassifyPressure(Pressure{85, 70}) != LevelLow {
		t.Fatalf("85/70 should be low")
	}
	if ClassifyPressure(Pressure{120, 80}) != LevelNormal {
		t.Fatalf("120/80 should be normal")
	}
}

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	base := errors.New("disk full")
	se := fmt.Errorf("create event: %w", &StoreError{Op: "create_event", Err: base})
	if !IsStore(se) || !errors.Is(se, base) {
		t.Fatalf("store error not detected through wrapping: %v", se)
	}
	de := &DeliveryError{UserID: 1, EventID: 2, Err: base}
	if !IsDelivery(de) || IsStore(de) {
		t.Fatalf("delivery error misclassified")
	}
	if !IsConfig(&ConfigError{Field: "reminder.timezone", Err: base}) {
		t.Fatalf("config error not detected")
	}
	if IsValidation(ErrNoActiveSession) {
		t.Fatalf("no-session is not a validation error")
	}
}

func TestEventLabel(t *testing.T) {
	t.Parallel()

	e := ScheduledEvent{Name: "Aspirin", Dose: "100 mg"}
	if e.Label() != "Aspirin 100 mg" {
		t.Fatalf("label=%q", e.Label())
	}
	if (ScheduledEvent{Name: "Aspirin"}).Label() != "Aspirin" {
		t.Fatalf("label without dose should be the name")
	}
}
