package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	logx "backupd/pkg/logx"
)

// Executor performs one backup attempt. Implementations must return once ctx
// is done and must not leak the resources of an abandoned attempt.
type Executor interface {
	Execute(ctx context.Context) Outcome
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context) Outcome

func (f ExecutorFunc) Execute(ctx context.Context) Outcome { return f(ctx) }

const defaultWaitDelay = 5 * time.Second

type ScriptConfig struct {
	// Path is the executable, invoked without arguments.
	Path string
	// Env, when non-nil, replaces the inherited environment.
	Env []string
	// WaitDelay bounds how long output pipes may stay open after the process
	// is gone (e.g. held by an orphaned grandchild). Default 5s.
	WaitDelay time.Duration
}

// Script runs an external executable as one attempt.
//
// The process gets its own process group; when ctx is done the whole group is
// killed and reaped before Execute returns. stdout and stderr are buffered in
// full.
type Script struct {
	cfg ScriptConfig
	log logx.Logger
}

var _ Executor = (*Script)(nil)

func NewScript(cfg ScriptConfig, log logx.Logger) *Script {
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Script{cfg: cfg, log: log}
}

func (s *Script) Execute(ctx context.Context) Outcome {
	start := time.Now()
	out := s.run(ctx)
	out.Took = time.Since(start)
	return out
}

func (s *Script) run(ctx context.Context) Outcome {
	if strings.TrimSpace(s.cfg.Path) == "" {
		return Unexpected(errors.New("backup script path is empty"))
	}
	if ctx.Err() != nil {
		return classify(ctx, ctx.Err(), "", "")
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.cfg.Path)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.Env = s.cfg.Env
	cmd.WaitDelay = s.cfg.WaitDelay
	isolateProcessGroup(cmd)

	err := cmd.Run()
	if cmd.Process != nil {
		s.log.Debug("backup process reaped", logx.Int("pid", cmd.Process.Pid), logx.Err(err))
	}
	if errors.Is(err, exec.ErrWaitDelay) {
		// exited 0, but something kept the output pipes open
		s.log.Warn("backup output pipes closed forcibly", logx.String("script", s.cfg.Path))
		err = nil
	}
	return classify(ctx, err, stdout.String(), stderr.String())
}

func classify(ctx context.Context, err error, stdout, stderr string) Outcome {
	if err == nil {
		return Success(stdout, stderr)
	}
	if ctx.Err() != nil {
		cause := context.Cause(ctx)
		if errors.Is(cause, ErrTimedOut) || errors.Is(cause, context.DeadlineExceeded) {
			return TimedOut(stdout, stderr)
		}
		out := Canceled(cause)
		out.Stdout, out.Stderr = stdout, stderr
		return out
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		// ExitCode is -1 when the process was killed by a signal.
		return Failure(ee.ExitCode(), stdout, stderr)
	}
	out := Unexpected(fmt.Errorf("run backup script: %w", err))
	out.Stdout, out.Stderr = stdout, stderr
	return out
}
