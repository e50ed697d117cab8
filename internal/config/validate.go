package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"medbot/internal/domain"
)

// MaxDedupWindow bounds reminder.dedup_window; a window this large would
// swallow the next occurrence of most schedules.
const MaxDedupWindow = 12 * time.Hour

// Validate checks cfg after defaults and env overrides have been applied.
// The first problem is returned as *domain.ConfigError.
func Validate(cfg *Config) error {
	if cfg == nil {
		return &domain.ConfigError{Err: errors.New("config is nil")}
	}
	bad := func(field string, err error) error { return &domain.ConfigError{Field: field, Err: err} }

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		return bad("telegram.token", errors.New("required (or set MEDBOT_TELEGRAM_TOKEN)"))
	}
	if _, err := cfg.Telegram.OpsChatID(); err != nil {
		return bad("telegram.ops_chat", err)
	}
	if cfg.Logging.Telegram.Enabled && strings.TrimSpace(cfg.Telegram.OpsChat) == "" {
		return bad("logging.telegram", errors.New("enabled without telegram.ops_chat"))
	}

	switch cfg.Storage.Driver {
	case "memory":
	case "sqlite":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			return bad("storage.path", errors.New("required for sqlite"))
		}
	case "postgres":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			return bad("storage.dsn", errors.New("required for postgres (or set MEDBOT_STORAGE_DSN)"))
		}
	default:
		return bad("storage.driver", fmt.Errorf("unknown driver %q (memory, sqlite, postgres)", cfg.Storage.Driver))
	}

	if _, err := cfg.Reminder.Location(); err != nil {
		return bad("reminder.timezone", err)
	}
	win, err := ParseDurationField("reminder.dedup_window", cfg.Reminder.DedupWindow)
	if err != nil {
		return bad("reminder.dedup_window", err)
	}
	if win <= 0 || win >= MaxDedupWindow {
		return bad("reminder.dedup_window", fmt.Errorf("must be > 0 and < %s", MaxDedupWindow))
	}
	if !domain.AckMatch(cfg.Reminder.AckMatch).Valid() {
		return bad("reminder.ack_match", fmt.Errorf("unknown mode %q (event_id, name_prefix)", cfg.Reminder.AckMatch))
	}

	if _, err := ParseDurationField("intake.session_ttl", cfg.Intake.SessionTTL); err != nil {
		return bad("intake.session_ttl", err)
	}
	if _, err := ParseDurationField("intake.sweep_every", cfg.Intake.SweepEvery); err != nil {
		return bad("intake.sweep_every", err)
	}

	if cfg.Notifier.RetryMax < 0 {
		return bad("notifier.retry_max", errors.New("must be >= 0"))
	}
	for field, raw := range map[string]string{
		"telegram.poll_timeout":    cfg.Telegram.PollTimeout,
		"storage.busy_timeout":     cfg.Storage.BusyTimeout,
		"reminder.fallback_sleep":  cfg.Reminder.FallbackSleep,
		"notifier.retry_base":      cfg.Notifier.RetryBase,
		"notifier.retry_max_delay": cfg.Notifier.RetryMaxDelay,
		"notifier.send_timeout":    cfg.Notifier.SendTimeout,
	} {
		if _, err := ParseDurationField(field, raw); err != nil {
			return bad(field, err)
		}
	}

	if err := validateHHMM(cfg.Digest.At); err != nil {
		return bad("digest.at", err)
	}

	if cfg.Ops.Enabled && strings.TrimSpace(cfg.Ops.Token) == "" && !isLoopback(cfg.Ops.Addr) {
		return bad("ops.token", fmt.Errorf("required when binding non-loopback address %q", cfg.Ops.Addr))
	}
	return nil
}

func validateHHMM(s string) error {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err1 := strconv.Atoi(hh)
	m, err2 := strconv.Atoi(mm)
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	return nil
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(strings.TrimSpace(addr))
	if err != nil {
		return false
	}
	if strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
