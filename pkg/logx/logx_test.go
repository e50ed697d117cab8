package logx

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

func TestZeroLoggerIsNoop(t *testing.T) {
	t.Parallel()

	var l Logger
	if !l.IsZero() {
		t.Fatalf("zero logger should report IsZero")
	}
	l.Info("dropped", String("k", "v"))
	if l.With(Int("n", 1)).IsZero() {
		t.Fatalf("logger with fields is not zero")
	}
}

func TestWithFieldsAndLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	l := Logger{base: zerolog.New(&buf).Level(zerolog.InfoLevel), hasBase: true}
	child := l.With(String("comp", "reminder"))

	child.Debug("hidden")
	child.Info("tick", Int("matched", 2), Err(nil))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug entry should be filtered: %s", out)
	}
	for _, want := range []string{`"comp":"reminder"`, `"matched":2`, `"message":"tick"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %s", want, out)
		}
	}
	if strings.Contains(out, `"err"`) {
		t.Fatalf("nil error must not be logged: %s", out)
	}
	if !child.Enabled(LevelWarn) || child.Enabled(LevelDebug) {
		t.Fatalf("Enabled does not follow level")
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]Level{
		"debug":   LevelDebug,
		" WARN ":  LevelWarn,
		"warning": LevelWarn,
		"ERROR":   LevelError,
		"bogus":   LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in, LevelInfo); got != want {
			t.Fatalf("ParseLevel(%q)=%v want %v", in, got, want)
		}
	}
}

func TestFormatChatEntry(t *testing.T) {
	t.Parallel()

	got := formatChatEntry([]byte(`{"level":"warn","message":"delivery failed","user_id":7,"comp":"notifier","time":"x"}`))
	want := "[WARN] delivery failed\n- comp=notifier\n- user_id=7"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if got := formatChatEntry([]byte("plain text\n")); got != "plain text" {
		t.Fatalf("non-JSON line: %q", got)
	}
}

func TestChatSinkFiltersAndSends(t *testing.T) {
	t.Parallel()

	var (
		mu   sync.Mutex
		sent []string
		done = make(chan struct{}, 4)
	)
	c := newChatSink()
	defer c.close()
	c.setSender(func(_ context.Context, chatID int64, _ int, text string) error {
		mu.Lock()
		sent = append(sent, text)
		mu.Unlock()
		done <- struct{}{}
		return nil
	})
	c.configure(-100, 0, LevelWarn, rate.NewLimiter(rate.Inf, 1))

	_, _ = c.WriteLevel(LevelInfo, []byte(`{"level":"info","message":"ignored"}`))
	_, _ = c.WriteLevel(LevelError, []byte(`{"level":"error","message":"store down"}`))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("error entry was not forwarded")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(sent) != 1 || sent[0] != "[ERROR] store down" {
		t.Fatalf("unexpected forwarded entries %q", sent)
	}
}
