package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"medbot/internal/domain"
)

const minimalYAML = `
telegram:
  token: "123:abc"
storage:
  driver: memory
reminder:
  timezone: "Europe/Moscow"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write %s: %v", p, err)
	}
	return p
}

func TestLoadYAMLAppliesDefaults(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", minimalYAML)

	cfg, err := NewConfigManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" || cfg.Storage.Driver != "memory" {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
	if cfg.Reminder.Window() != 15*time.Minute {
		t.Fatalf("dedup window = %v", cfg.Reminder.Window())
	}
	if cfg.Intake.TTL() != 15*time.Minute || cfg.Intake.Sweep() != time.Minute {
		t.Fatalf("intake = %+v", cfg.Intake)
	}
	if cfg.Notifier.RetryMax != DefaultRetryMax {
		t.Fatalf("retry_max = %d, want %d", cfg.Notifier.RetryMax, DefaultRetryMax)
	}
	if cfg.Reminder.AckMatch != "event_id" || cfg.Digest.At != "21:30" || cfg.Ops.Addr != DefaultOpsAddr {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
	loc, err := cfg.Reminder.Location()
	if err != nil || loc.String() != "Europe/Moscow" {
		t.Fatalf("location = %v, %v", loc, err)
	}
}

func TestLoadJSON(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.json", `{"telegram":{"token":"t"},"storage":{"driver":"sqlite","path":"x.db"},"notifier":{"retry_max":0}}`)
	cfg, err := NewConfigManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "x.db" || cfg.Notifier.RetryMax != 0 || cfg.Notifier.RatePerSec != 20 {
		t.Fatalf("unexpected cfg: %+v", cfg)
	}
}

func TestParseStrict(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name, file, body string
	}{
		{"unknown field json", "c.json", `{"telegram":{"token":"t","owner":1}}`},
		{"unknown field yaml", "c.yaml", "telegram:\n  token: t\nplugins: {}\n"},
		{"trailing data", "c.json", `{"telegram":{"token":"t"}} {}`},
		{"bad yaml", "c.yaml", "telegram: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			p := writeFile(t, t.TempDir(), tt.file, tt.body)
			if _, err := NewConfigManager(p).Parse(); err == nil {
				t.Fatal("expected parse error")
			}
		})
	}
}

func TestLoadInvalidIsConfigError(t *testing.T) {
	t.Parallel()
	p := writeFile(t, t.TempDir(), "config.yaml", "storage:\n  driver: memory\n")
	_, err := NewConfigManager(p).Load()
	if !domain.IsConfig(err) {
		t.Fatalf("err = %v, want ConfigError", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MEDBOT_TELEGRAM_TOKEN", "from-env")
	t.Setenv("MEDBOT_STORAGE_DRIVER", "postgres")
	t.Setenv("MEDBOT_STORAGE_DSN", "postgres://u@h/db")
	t.Setenv("MEDBOT_TIMEZONE", "Asia/Tokyo")
	t.Setenv("MEDBOT_LOG_LEVEL", "DEBUG")
	t.Setenv("MEDBOT_OPS_TOKEN", "secret")

	p := writeFile(t, t.TempDir(), "config.yaml", minimalYAML)
	cfg, err := NewConfigManager(p).Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" || cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://u@h/db" {
		t.Fatalf("env not applied: %+v", cfg)
	}
	if cfg.Reminder.Timezone != "Asia/Tokyo" || cfg.Logging.Level != "DEBUG" || cfg.Ops.Token != "secret" {
		t.Fatalf("env not applied: %+v", cfg)
	}
}

func TestWatchPublishesValidReload(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := writeFile(t, dir, "config.yaml", minimalYAML)
	m := NewConfigManager(p)
	if _, err := m.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	// let the watcher register before writing
	time.Sleep(200 * time.Millisecond)

	// invalid content is rejected and not published
	writeFile(t, dir, "config.yaml", minimalYAML+"intake:\n  session_ttl: \"-1m\"\n")
	select {
	case cfg := <-sub:
		t.Fatalf("invalid config published: %+v", cfg.Intake)
	case <-time.After(time.Second):
	}

	writeFile(t, dir, "config.yaml", minimalYAML+"reminder_unused: 1\n")
	writeFile(t, dir, "config.yaml", minimalYAML+"intake:\n  session_ttl: \"5m\"\n")
	select {
	case cfg := <-sub:
		if cfg.Intake.TTL() != 5*time.Minute {
			t.Fatalf("ttl = %v", cfg.Intake.TTL())
		}
	case <-time.After(5 * time.Second):
		t.Fatal("reload not published")
	}
	if got := m.Get().Intake.SessionTTL; got != "5m" {
		t.Fatalf("Get().Intake.SessionTTL = %q", got)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watch: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Watch did not return")
	}
}

func TestPublishKeepsNewest(t *testing.T) {
	t.Parallel()
	m := NewConfigManager("unused.yaml")
	ch := m.Subscribe(1)
	a, b := &Config{}, &Config{}
	m.publish(a)
	m.publish(b)
	if got := <-ch; got != b {
		t.Fatal("subscriber did not receive newest config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel not closed after Unsubscribe")
	}
}
