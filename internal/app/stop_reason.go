package app

import (
	"context"
	"errors"
	"os"
	"syscall"
)

// StopReason is the cancellation cause attached to the daemon context. It is
// what the shutdown log line reports.
type StopReason string

const (
	StopUnknown    StopReason = "unknown"
	StopSIGINT     StopReason = "SIGINT"
	StopSIGTERM    StopReason = "SIGTERM"
	StopFatalError StopReason = "fatal error"
)

func (r StopReason) Error() string { return string(r) }

// StopReasonFromSignal maps a received signal to a StopReason.
func StopReasonFromSignal(sig os.Signal) StopReason {
	switch sig {
	case os.Interrupt:
		return StopSIGINT
	case syscall.SIGTERM:
		return StopSIGTERM
	default:
		return StopUnknown
	}
}

// StopReasonOf extracts the StopReason from a canceled context.
func StopReasonOf(ctx context.Context) StopReason {
	var r StopReason
	if errors.As(context.Cause(ctx), &r) {
		return r
	}
	return StopUnknown
}
