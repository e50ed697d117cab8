package config

import (
	"bytes"
	"slices"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	old := validConfig()
	next := validConfig()
	next.Telegram.Token = "rotated"
	next.Storage.DSN = "postgres://user:pw@db/medbot"
	next.Reminder.Timezone = "Asia/Tokyo"
	next.Notifier.RatePerSec = 5
	next.Ops.Token = "secret"

	changed, attrs := SummarizeConfigChange(old, next)
	want := []string{SectionTelegram, SectionStorage, SectionTimezone, SectionNotifier, SectionOps}
	if !slices.Equal(changed, want) {
		t.Fatalf("changed = %v, want %v", changed, want)
	}
	if got := RestartRequired(changed); !slices.Equal(got, []string{SectionTelegram, SectionStorage, SectionTimezone}) {
		t.Fatalf("restart required = %v", got)
	}
	if len(attrs) == 0 {
		t.Fatal("no attrs")
	}

	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	ev := logger.Info()
	for _, f := range attrs {
		f(ev)
	}
	ev.Msg("config changed")
	out := buf.String()
	for _, secret := range []string{"rotated", "secret", "user:pw"} {
		if strings.Contains(out, secret) {
			t.Fatalf("secret %q leaked: %s", secret, out)
		}
	}
	if !strings.Contains(out, `"ops.token_set":true`) || !strings.Contains(out, `"storage.dsn_set":true`) {
		t.Fatalf("missing set flags: %s", out)
	}
}

func TestSummarizeNoChange(t *testing.T) {
	t.Parallel()
	changed, attrs := SummarizeConfigChange(validConfig(), validConfig())
	if len(changed) != 0 || len(attrs) != 0 {
		t.Fatalf("changed=%v attrs=%d", changed, len(attrs))
	}
}
