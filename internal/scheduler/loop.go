package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/juju/clock"

	"backupd/internal/backup"
	logx "backupd/pkg/logx"
)

const (
	DefaultExecutionTimeout = 5 * time.Minute
	DefaultCrashBackoff     = time.Minute
)

type Config struct {
	Schedule Schedule
	// ExecutionTimeout bounds one attempt (wall clock). Default 5m.
	ExecutionTimeout time.Duration
	// CrashBackoff is slept after a fault in the loop itself. Default 1m.
	CrashBackoff time.Duration
	// OnOutcome, when set, sees every attempt outcome after it is logged.
	OnOutcome func(backup.Outcome)
}

// Loop owns the attempt cadence. It never runs two attempts at once and keeps
// no state between iterations beyond its immutable Config.
type Loop struct {
	cfg   Config
	exec  backup.Executor
	clock clock.Clock
	log   logx.Logger

	attempts atomic.Uint64
	failed   atomic.Uint64
	faults   atomic.Uint64
}

// New builds a loop. A nil clk means the wall clock.
func New(cfg Config, exec backup.Executor, clk clock.Clock, log logx.Logger) (*Loop, error) {
	if cfg.Schedule == nil {
		return nil, fmt.Errorf("%w: schedule required", ErrSchedule)
	}
	if exec == nil {
		return nil, errors.New("scheduler: executor required")
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultExecutionTimeout
	}
	if cfg.CrashBackoff <= 0 {
		cfg.CrashBackoff = DefaultCrashBackoff
	}
	if clk == nil {
		clk = clock.WallClock
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Loop{cfg: cfg, exec: exec, clock: clk, log: log}, nil
}

func (l *Loop) Config() Config { return l.cfg }

// Stats are monotonic counters since the loop was built.
type Stats struct {
	Attempts uint64
	Failed   uint64
	Faults   uint64
}

func (l *Loop) Stats() Stats {
	return Stats{Attempts: l.attempts.Load(), Failed: l.failed.Load(), Faults: l.faults.Load()}
}

// Run performs the initial attempt and then one attempt per schedule
// activation until ctx is done. It only returns on cancellation, with nil.
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("running initial backup")
	l.RunAttempt(ctx)

	for ctx.Err() == nil {
		err := l.iterate(ctx)
		if err == nil || ctx.Err() != nil {
			continue
		}
		l.faults.Add(1)
		l.log.Error("unexpected error in backup service",
			logx.Err(err),
			logx.Duration("retry_in", l.cfg.CrashBackoff),
		)
		l.sleep(ctx, l.cfg.CrashBackoff)
	}
	l.log.Info("backup service stopped", logx.String("reason", causeText(ctx)))
	return nil
}

// iterate is one Sleeping -> RunningAttempt pass. Panics are returned as
// ErrLoopPanic so the caller can back off.
func (l *Loop) iterate(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrLoopPanic, r)
			l.log.Debug("loop panic stack", logx.Stack(string(debug.Stack())))
		}
	}()

	now := l.clock.Now()
	delay, err := l.cfg.Schedule.Delay(now)
	if err != nil {
		return err
	}
	l.log.Info("sleeping until next backup",
		logx.Duration("delay", delay),
		logx.Time("next_run", now.Add(delay)),
	)
	if !l.sleep(ctx, delay) {
		return nil
	}

	if !l.RunAttempt(ctx) && ctx.Err() == nil {
		l.log.Warn("backup failed, will retry at next interval")
	}
	return nil
}

// sleep blocks for d on the loop clock; false when ctx ended first.
func (l *Loop) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := l.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.Chan():
		return true
	}
}

// RunAttempt executes one bounded attempt, logs its outcome and reports
// whether it succeeded. Executor failures, including panics, stop here.
func (l *Loop) RunAttempt(ctx context.Context) bool {
	l.attempts.Add(1)
	l.log.Info("starting scheduled backup")

	actx, cancel := context.WithTimeoutCause(ctx, l.cfg.ExecutionTimeout, backup.ErrTimedOut)
	defer cancel()

	out := l.execute(actx)
	l.report(out)
	if l.cfg.OnOutcome != nil {
		l.cfg.OnOutcome(out)
	}
	if !out.OK() {
		l.failed.Add(1)
	}
	return out.OK()
}

func (l *Loop) execute(ctx context.Context) (out backup.Outcome) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			out = backup.Unexpected(fmt.Errorf("executor panic: %v", r))
			out.Took = time.Since(start)
		}
	}()
	return l.exec.Execute(ctx)
}

func (l *Loop) report(out backup.Outcome) {
	took := logx.Duration("took", out.Took)
	switch out.Kind {
	case backup.KindSuccess:
		l.log.Info("backup completed successfully", took, logx.String("output", strings.TrimSpace(out.Stdout)))
	case backup.KindFailure:
		l.log.Error("backup failed",
			logx.Int("exit_code", out.ExitCode),
			logx.String("stderr", strings.TrimSpace(out.Stderr)),
			took,
		)
	case backup.KindTimedOut:
		l.log.Error("backup timed out",
			logx.Duration("timeout", l.cfg.ExecutionTimeout),
			logx.String("stderr", strings.TrimSpace(out.Stderr)),
		)
	case backup.KindCanceled:
		l.log.Info("backup interrupted by shutdown", logx.Err(out.Err), took)
	default:
		l.log.Error("unexpected error during backup", logx.Err(out.Err), took)
	}
}

func causeText(ctx context.Context) string {
	if c := context.Cause(ctx); c != nil {
		return c.Error()
	}
	return "stopped"
}
