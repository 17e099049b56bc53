package backup

import (
	"errors"
	"fmt"
	"time"
)

// ErrTimedOut is the cancellation cause the caller attaches to an attempt
// context whose deadline bounds the attempt (context.WithTimeoutCause).
var ErrTimedOut = errors.New("backup attempt timed out")

// Kind classifies one attempt.
type Kind int

const (
	KindSuccess Kind = iota
	KindFailure
	KindTimedOut
	KindUnexpected
	// KindCanceled is an attempt aborted because the daemon is shutting down.
	KindCanceled
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindFailure:
		return "failure"
	case KindTimedOut:
		return "timed_out"
	case KindUnexpected:
		return "unexpected_error"
	case KindCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Outcome is the result of one executor invocation. It lives for a single
// loop iteration.
type Outcome struct {
	Kind Kind

	// ExitCode is set for KindSuccess (0) and KindFailure.
	ExitCode int
	Stdout   string
	Stderr   string

	// Err explains KindUnexpected, KindTimedOut and KindCanceled.
	Err error

	Took time.Duration
}

func (o Outcome) OK() bool { return o.Kind == KindSuccess }

func Success(stdout, stderr string) Outcome {
	return Outcome{Kind: KindSuccess, Stdout: stdout, Stderr: stderr}
}

func Failure(code int, stdout, stderr string) Outcome {
	return Outcome{Kind: KindFailure, ExitCode: code, Stdout: stdout, Stderr: stderr}
}

func TimedOut(stdout, stderr string) Outcome {
	return Outcome{Kind: KindTimedOut, Stdout: stdout, Stderr: stderr, Err: ErrTimedOut}
}

func Unexpected(err error) Outcome {
	return Outcome{Kind: KindUnexpected, Err: err}
}

func Canceled(err error) Outcome {
	return Outcome{Kind: KindCanceled, Err: err}
}
