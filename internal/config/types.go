package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the whole file. Durations are Go duration strings ("15m", "500ms").
// Fields tagged env can be overridden from the environment.
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Reminder ReminderConfig `json:"reminder"`
	Intake   IntakeConfig   `json:"intake"`
	Notifier NotifierConfig `json:"notifier"`
	Digest   DigestConfig   `json:"digest"`
	Ops      OpsConfig      `json:"ops"`
}

type TelegramConfig struct {
	Token       string `json:"token" env:"MEDBOT_TELEGRAM_TOKEN" env-description:"Telegram bot token"`
	PollTimeout string `json:"poll_timeout,omitempty"`
	// OpsChat receives WARN+ log lines when logging.telegram is enabled.
	OpsChat string `json:"ops_chat,omitempty"`
}

// OpsChatID parses OpsChat; zero means unset.
func (t TelegramConfig) OpsChatID() (int64, error) {
	s := strings.TrimSpace(t.OpsChat)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q", t.OpsChat)
	}
	return id, nil
}

type LoggingConfig struct {
	Level    string          `json:"level" env:"MEDBOT_LOG_LEVEL" env-description:"log level (TRACE..ERROR)"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id,omitempty"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// StorageConfig selects the record store.
//
//	storage: { driver: sqlite, path: ./data/medbot.db }
//	storage: { driver: postgres, dsn: postgres://medbot@db/medbot }
type StorageConfig struct {
	Driver       string `json:"driver" env:"MEDBOT_STORAGE_DRIVER" env-description:"storage driver: memory, sqlite, postgres"`
	Path         string `json:"path,omitempty"`
	DSN          string `json:"dsn,omitempty" env:"MEDBOT_STORAGE_DSN" env-description:"postgres DSN"`
	BusyTimeout  string `json:"busy_timeout,omitempty"`
	MaxOpenConns int    `json:"max_open_conns,omitempty"`
}

type ReminderConfig struct {
	Timezone      string `json:"timezone" env:"MEDBOT_TIMEZONE" env-description:"IANA timezone for reminder times"`
	DedupWindow   string `json:"dedup_window,omitempty"`
	FallbackSleep string `json:"fallback_sleep,omitempty"`
	// AckMatch is event_id or name_prefix.
	AckMatch string `json:"ack_match,omitempty"`
}

type IntakeConfig struct {
	SessionTTL string `json:"session_ttl,omitempty"`
	SweepEvery string `json:"sweep_every,omitempty"`
}

type NotifierConfig struct {
	RatePerSec    int    `json:"rate_per_sec,omitempty"`
	// RetryMax defaults to 2 when omitted; 0 disables retries.
	RetryMax      int    `json:"retry_max"`
	RetryBase     string `json:"retry_base,omitempty"`
	RetryMaxDelay string `json:"retry_max_delay,omitempty"`
	SendTimeout   string `json:"send_timeout,omitempty"`
}

type DigestConfig struct {
	Enabled bool   `json:"enabled"`
	At      string `json:"at,omitempty"`
}

// OpsConfig controls the health/metrics HTTP server.
//
// A non-loopback Addr requires a Token.
type OpsConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty" env:"MEDBOT_OPS_TOKEN" env-description:"bearer token for the ops server"`
	Pprof   bool   `json:"pprof"`
}

const (
	DefaultTimezone    = "UTC"
	DefaultDedupWindow = 15 * time.Minute
	DefaultSessionTTL  = 15 * time.Minute
	DefaultSweepEvery  = time.Minute
	DefaultDigestAt    = "21:30"
	DefaultOpsAddr     = "127.0.0.1:9090"
	DefaultRetryMax    = 2
)

// applyDefaults fills omitted fields in place.
func applyDefaults(c *Config) {
	def := func(p *string, v string) {
		if strings.TrimSpace(*p) == "" {
			*p = v
		}
	}
	def(&c.Telegram.PollTimeout, "10s")
	def(&c.Logging.Level, "INFO")
	def(&c.Logging.File.Path, "./medbot.log")
	def(&c.Logging.Telegram.MinLevel, "WARN")
	if c.Logging.Telegram.RatePerSec <= 0 {
		c.Logging.Telegram.RatePerSec = 1
	}
	def(&c.Storage.Driver, "sqlite")
	if c.Storage.Driver == "sqlite" {
		def(&c.Storage.Path, "./data/medbot.db")
	}
	def(&c.Storage.BusyTimeout, "1s")
	if c.Storage.MaxOpenConns <= 0 {
		c.Storage.MaxOpenConns = 10
	}
	def(&c.Reminder.Timezone, DefaultTimezone)
	def(&c.Reminder.DedupWindow, DefaultDedupWindow.String())
	def(&c.Reminder.FallbackSleep, "60s")
	def(&c.Reminder.AckMatch, "event_id")
	def(&c.Intake.SessionTTL, DefaultSessionTTL.String())
	def(&c.Intake.SweepEvery, DefaultSweepEvery.String())
	if c.Notifier.RatePerSec <= 0 {
		c.Notifier.RatePerSec = 20
	}
	def(&c.Notifier.RetryBase, "500ms")
	def(&c.Notifier.RetryMaxDelay, "5s")
	def(&c.Notifier.SendTimeout, "10s")
	def(&c.Digest.At, DefaultDigestAt)
	def(&c.Ops.Addr, DefaultOpsAddr)
}
