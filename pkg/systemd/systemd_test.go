package systemd

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "backupd/pkg/logx"
)

func TestNotifyWithoutSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready()
	if err != nil || sent {
		t.Fatalf("Ready() = %v, %v; want false, nil", sent, err)
	}
	if sent, err := Stopping(); err != nil || sent {
		t.Fatalf("Stopping() = %v, %v; want false, nil", sent, err)
	}
}

func TestWatchdogDisabled(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	done := make(chan error, 1)
	go func() { done <- Watchdog(context.Background(), logx.Nop()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Watchdog: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Watchdog blocked although disabled")
	}
}

func TestPingLoopSendsWatchdog(t *testing.T) {
	t.Parallel()
	var pings atomic.Int32
	n := func(state string) (bool, error) {
		if state != daemon.SdNotifyWatchdog {
			t.Errorf("state = %q", state)
		}
		pings.Add(1)
		return true, nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- pingLoop(ctx, 10*time.Millisecond, n, logx.Nop()) }()

	deadline := time.Now().Add(2 * time.Second)
	for pings.Load() < 3 {
		if time.Now().After(deadline) {
			t.Fatalf("only %d pings", pings.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("pingLoop: %v", err)
	}
}
