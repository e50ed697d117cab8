// Package systemd sends sd_notify state updates when running under a
// Type=notify unit. Every call is a no-op outside systemd.
package systemd

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "medbot/pkg/logx"
)

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent {
		log.Debug("sd_notify", logx.String("state", state))
	}
}

func Ready(log logx.Logger)    { notify(log, daemon.SdNotifyReady) }
func Stopping(log logx.Logger) { notify(log, daemon.SdNotifyStopping) }

// Reloading brackets a config reload; call the returned func when done.
func Reloading(log logx.Logger) func() {
	notify(log, daemon.SdNotifyReloading)
	return func() { notify(log, daemon.SdNotifyReady) }
}

// Status sets the free-form unit status line shown by systemctl status.
func Status(log logx.Logger, text string) { notify(log, "STATUS="+text) }

// Watchdog pings the watchdog at half the configured interval until ctx ends.
// It returns immediately when WatchdogSec is not set for the unit.
func Watchdog(ctx context.Context, log logx.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}
