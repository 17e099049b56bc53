// Package systemd reports service state to systemd through sd_notify.
// Every call is a no-op when the process was not started by systemd.
package systemd

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "backupd/pkg/logx"
)

// Notifier sends one sd_notify state.
type Notifier func(state string) (bool, error)

func notify(state string) (bool, error) { return daemon.SdNotify(false, state) }

// Ready tells systemd that startup finished (Type=notify units).
func Ready() (bool, error) { return notify(daemon.SdNotifyReady) }

// Stopping tells systemd that shutdown started.
func Stopping() (bool, error) { return notify(daemon.SdNotifyStopping) }

// Status sets the free-form STATUS= line shown by systemctl status.
func Status(format string, args ...any) (bool, error) {
	return notify("STATUS=" + fmt.Sprintf(format, args...))
}

// Watchdog pings systemd at half the configured WatchdogSec until ctx is done.
// It returns immediately when the watchdog is not enabled for this process.
func Watchdog(ctx context.Context, log logx.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return fmt.Errorf("systemd watchdog: %w", err)
	}
	if interval <= 0 {
		return nil
	}
	return pingLoop(ctx, interval/2, notify, log)
}

func pingLoop(ctx context.Context, every time.Duration, n Notifier, log logx.Logger) error {
	log.Debug("systemd watchdog enabled", logx.Duration("ping_every", every))
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if _, err := n(daemon.SdNotifyWatchdog); err != nil {
				log.Warn("systemd watchdog ping failed", logx.Err(err))
			}
		}
	}
}
