package config

import (
	"time"
	_ "time/tzdata"
)

// Typed views over validated config. Bad values fall back to the defaults;
// Validate reports them before they get here.

func (r ReminderConfig) Location() (*time.Location, error) {
	return time.LoadLocation(r.Timezone)
}

func (r ReminderConfig) Window() time.Duration {
	return mustDuration(r.DedupWindow, DefaultDedupWindow)
}

func (r ReminderConfig) Fallback() time.Duration {
	return mustDuration(r.FallbackSleep, time.Minute)
}

func (i IntakeConfig) TTL() time.Duration {
	d, err := ParseDurationField("", i.SessionTTL)
	if err != nil {
		return DefaultSessionTTL
	}
	// zero disables expiry
	return d
}

func (i IntakeConfig) Sweep() time.Duration {
	return mustDuration(i.SweepEvery, DefaultSweepEvery)
}

func (t TelegramConfig) Poll() time.Duration {
	return mustDuration(t.PollTimeout, 10*time.Second)
}

func (s StorageConfig) Busy() time.Duration {
	return mustDuration(s.BusyTimeout, time.Second)
}

func (n NotifierConfig) Base() time.Duration {
	return mustDuration(n.RetryBase, 500*time.Millisecond)
}

func (n NotifierConfig) MaxDelay() time.Duration {
	return mustDuration(n.RetryMaxDelay, 5*time.Second)
}

func (n NotifierConfig) Timeout() time.Duration {
	return mustDuration(n.SendTimeout, 10*time.Second)
}
