package config

import (
	"strings"

	logx "medbot/pkg/logx"
)

// Section names reported by SummarizeConfigChange.
const (
	SectionTelegram = "telegram"
	SectionLogging  = "logging"
	SectionStorage  = "storage"
	SectionTimezone = "reminder.timezone"
	SectionReminder = "reminder"
	SectionIntake   = "intake"
	SectionNotifier = "notifier"
	SectionDigest   = "digest"
	SectionOps      = "ops"
)

// SummarizeConfigChange lists the changed sections and safe log attributes
// for them. Tokens and the DSN are reported only as set/unset.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		attrs   []logx.Field
	)
	add := func(section string, fields ...logx.Field) {
		changed = append(changed, section)
		attrs = append(attrs, fields...)
	}
	set := func(s string) bool { return strings.TrimSpace(s) != "" }

	o, n := oldCfg.Telegram, newCfg.Telegram
	if o.Token != n.Token || o.PollTimeout != n.PollTimeout || o.OpsChat != n.OpsChat {
		add(SectionTelegram,
			logx.Bool("telegram.token_changed", o.Token != n.Token),
			logx.String("telegram.poll_timeout", n.PollTimeout),
			logx.Bool("telegram.ops_chat_set", set(n.OpsChat)),
		)
	}

	if oldCfg.Logging != newCfg.Logging {
		l := newCfg.Logging
		add(SectionLogging,
			logx.String("logging.level", l.Level),
			logx.Bool("logging.console", l.Console),
			logx.Bool("logging.file_enabled", l.File.Enabled),
			logx.Bool("logging.telegram_enabled", l.Telegram.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		s := newCfg.Storage
		add(SectionStorage,
			logx.String("storage.driver", s.Driver),
			logx.String("storage.path", s.Path),
			logx.Bool("storage.dsn_set", set(s.DSN)),
		)
	}

	or, nr := oldCfg.Reminder, newCfg.Reminder
	if or.Timezone != nr.Timezone {
		add(SectionTimezone, logx.String("reminder.timezone", nr.Timezone))
	}
	if or.DedupWindow != nr.DedupWindow || or.FallbackSleep != nr.FallbackSleep || or.AckMatch != nr.AckMatch {
		add(SectionReminder,
			logx.String("reminder.dedup_window", nr.DedupWindow),
			logx.String("reminder.fallback_sleep", nr.FallbackSleep),
			logx.String("reminder.ack_match", nr.AckMatch),
		)
	}

	if oldCfg.Intake != newCfg.Intake {
		add(SectionIntake,
			logx.String("intake.session_ttl", newCfg.Intake.SessionTTL),
			logx.String("intake.sweep_every", newCfg.Intake.SweepEvery),
		)
	}

	if oldCfg.Notifier != newCfg.Notifier {
		nt := newCfg.Notifier
		add(SectionNotifier,
			logx.Int("notifier.rate_per_sec", nt.RatePerSec),
			logx.Int("notifier.retry_max", nt.RetryMax),
			logx.String("notifier.send_timeout", nt.SendTimeout),
		)
	}

	if oldCfg.Digest != newCfg.Digest {
		add(SectionDigest,
			logx.Bool("digest.enabled", newCfg.Digest.Enabled),
			logx.String("digest.at", newCfg.Digest.At),
		)
	}

	if oldCfg.Ops != newCfg.Ops {
		op := newCfg.Ops
		add(SectionOps,
			logx.Bool("ops.enabled", op.Enabled),
			logx.String("ops.addr", op.Addr),
			logx.Bool("ops.token_set", set(op.Token)),
			logx.Bool("ops.pprof", op.Pprof),
		)
	}
	return changed, attrs
}

// RestartRequired filters sections that cannot be applied live.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		switch s {
		case SectionTelegram, SectionStorage, SectionTimezone:
			out = append(out, s)
		}
	}
	return out
}
