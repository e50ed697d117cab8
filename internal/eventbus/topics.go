package eventbus

// Topics published by the reminder pipeline and the intake machine.
const (
	ReminderSent       = "reminder.sent"
	ReminderFailed     = "reminder.failed"
	ReminderSuppressed = "reminder.suppressed"
	DispatchTick       = "dispatch.tick"
	NotifyRetried      = "notifier.retried"

	IntakeStarted   = "intake.started"
	IntakeCompleted = "intake.completed"
	IntakeRejected  = "intake.rejected"
	IntakeCancelled = "intake.cancelled"
	IntakeExpired   = "intake.expired"

	ConfigReloaded = "config.reloaded"
)

// ReminderInfo is the payload of reminder.* topics.
type ReminderInfo struct {
	UserID  int64
	EventID int64
	Name    string
	Err     string
}

// TickInfo is the payload of dispatch.tick.
type TickInfo struct {
	Events     int
	Matched    int
	Sent       int
	Suppressed int
	Failed     int
	Err        string
	Seconds    float64
}

// RetryInfo is the payload of notifier.retried.
type RetryInfo struct {
	ChatID  int64
	Attempt int
	Err     string
}

// IntakeInfo is the payload of intake.* topics.
type IntakeInfo struct {
	UserID int64
	Flow   string
}
