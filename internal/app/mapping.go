package app

import (
	"time"

	"medbot/internal/config"
	"medbot/internal/domain"
	"medbot/internal/notifier"
	"medbot/internal/observability/ops"
	"medbot/internal/reminder"
	"medbot/internal/storage"
	telegram "medbot/internal/transport/telegram/adapter"
	logx "medbot/pkg/logx"
)

// The map* helpers translate a validated config into component configs.

func mapLogConfig(cfg *config.Config) logx.Config {
	chatID, _ := cfg.Telegram.OpsChatID()
	l := cfg.Logging
	return logx.Config{
		Level:   l.Level,
		Console: l.Console,
		File:    logx.FileConfig{Enabled: l.File.Enabled, Path: l.File.Path},
		Telegram: logx.TelegramConfig{
			Enabled:    l.Telegram.Enabled && chatID != 0,
			ChatID:     chatID,
			ThreadID:   l.Telegram.ThreadID,
			MinLevel:   l.Telegram.MinLevel,
			RatePerSec: l.Telegram.RatePerSec,
		},
	}
}

func mapAdapterConfig(cfg *config.Config) telegram.Config {
	return telegram.Config{Token: cfg.Telegram.Token, PollTimeout: cfg.Telegram.Poll()}
}

func mapStorageConfig(cfg *config.Config) storage.Config {
	s := cfg.Storage
	return storage.Config{
		Driver:       s.Driver,
		Path:         s.Path,
		DSN:          s.DSN,
		BusyTimeout:  s.Busy(),
		MaxOpenConns: s.MaxOpenConns,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		RatePerSec:    n.RatePerSec,
		RetryMax:      n.RetryMax,
		RetryBase:     n.Base(),
		RetryMaxDelay: n.MaxDelay(),
		SendTimeout:   n.Timeout(),
	}
}

// mapReminderConfig keeps loc: the timezone only changes on restart.
func mapReminderConfig(cfg *config.Config, loc *time.Location) reminder.Config {
	return reminder.Config{
		Location:      loc,
		Window:        cfg.Reminder.Window(),
		AckMatch:      domain.AckMatch(cfg.Reminder.AckMatch),
		FallbackSleep: cfg.Reminder.Fallback(),
	}
}

func mapOpsConfig(cfg *config.Config) ops.Config {
	return ops.Config{
		Enabled: cfg.Ops.Enabled,
		Addr:    cfg.Ops.Addr,
		Token:   cfg.Ops.Token,
		Pprof:   cfg.Ops.Pprof,
	}
}
