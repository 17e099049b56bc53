package scheduler

import "errors"

var (
	// ErrLoopPanic wraps a panic recovered from one loop iteration.
	ErrLoopPanic = errors.New("scheduler loop panic")
	// ErrNoNextRun is returned by a schedule that will never fire again.
	ErrNoNextRun = errors.New("schedule has no next activation")
	ErrSchedule  = errors.New("invalid schedule")
)
