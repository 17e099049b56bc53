package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/juju/clock/testclock"

	"backupd/internal/backup"
	"backupd/internal/config"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func env(m map[string]string) config.LookupFunc {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func validEnv() map[string]string {
	return map[string]string{
		config.EnvProject:       "proj",
		config.EnvBucket:        "bucket",
		config.EnvIntervalHours: "1",
	}
}

// writeConfig points the file sink into a temp dir and silences the console.
func writeConfig(t *testing.T, level string) (cfgPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "logs", "nested", "backup_service.log")
	cfgPath = filepath.Join(dir, "backupd.yaml")
	content := "logging:\n  level: " + level + "\n  console: false\n  file:\n    path: " + logPath + "\n"
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath, logPath
}

func countingExecutor(out backup.Outcome) (backup.Executor, *atomic.Int32, <-chan struct{}) {
	var n atomic.Int32
	calls := make(chan struct{}, 16)
	return backup.ExecutorFunc(func(context.Context) backup.Outcome {
		n.Add(1)
		calls <- struct{}{}
		return out
	}), &n, calls
}

func TestNewMissingEnvMakesNoAttempt(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{name: "project", env: map[string]string{config.EnvBucket: "b"}, want: config.EnvProject},
		{name: "bucket", env: map[string]string{config.EnvProject: "p"}, want: config.EnvBucket},
		{name: "both", env: map[string]string{}, want: config.EnvProject + "," + config.EnvBucket},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var console syncBuffer
			exec, n, _ := countingExecutor(backup.Success("", ""))
			a, err := New(Options{LookupEnv: env(tt.env), Executor: exec, Console: &console})
			if !errors.Is(err, config.ErrMissingEnv) {
				t.Fatalf("err = %v, want ErrMissingEnv", err)
			}
			if a != nil {
				t.Fatal("app built despite missing env")
			}
			if n.Load() != 0 {
				t.Fatalf("%d attempts made", n.Load())
			}
			out := console.String()
			if !strings.Contains(out, "- ERROR - missing required environment variables") || !strings.Contains(out, tt.want) {
				t.Fatalf("unexpected console output:\n%s", out)
			}
		})
	}
}

func TestNewRejectsBadIntervalAndSchedule(t *testing.T) {
	t.Parallel()
	cfgPath, _ := writeConfig(t, "info")

	e := validEnv()
	e[config.EnvIntervalHours] = "1.5"
	if _, err := New(Options{ConfigPath: cfgPath, LookupEnv: env(e), Console: &syncBuffer{}}); !errors.Is(err, config.ErrInvalidInterval) {
		t.Fatalf("err = %v, want ErrInvalidInterval", err)
	}

	e = validEnv()
	e[config.EnvSchedule] = "whenever"
	if _, err := New(Options{ConfigPath: cfgPath, LookupEnv: env(e), Console: &syncBuffer{}}); !errors.Is(err, config.ErrInvalidSchedule) {
		t.Fatalf("err = %v, want ErrInvalidSchedule", err)
	}
}

func TestNewScheduleOverride(t *testing.T) {
	t.Parallel()
	cfgPath, _ := writeConfig(t, "info")
	e := validEnv()
	e[config.EnvSchedule] = "0 3 * * *"
	a, err := New(Options{ConfigPath: cfgPath, LookupEnv: env(e), Console: &syncBuffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.logs.Close()
	if got := a.Schedule().String(); got != "cron 0 3 * * *" {
		t.Fatalf("schedule = %q", got)
	}
}

func TestEnsureDirIdempotent(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "app", "logs")
	for i := 0; i < 2; i++ {
		if err := EnsureDir(dir); err != nil {
			t.Fatalf("EnsureDir #%d: %v", i+1, err)
		}
	}
	if st, err := os.Stat(dir); err != nil || !st.IsDir() {
		t.Fatalf("dir not created: %v", err)
	}
	if err := EnsureDir(""); err != nil {
		t.Fatalf("EnsureDir(\"\"): %v", err)
	}
}

func TestRunInitialAttemptThenShutdown(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, "info")
	exec, n, calls := countingExecutor(backup.Success("done", ""))
	clk := testclock.NewClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	a, err := New(Options{ConfigPath: cfgPath, LookupEnv: env(validEnv()), Executor: exec, Clock: clk, Console: &syncBuffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancelCause(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no initial attempt")
	}
	if err := clk.WaitAdvance(time.Hour, 5*time.Second, 1); err != nil {
		t.Fatal(err)
	}
	select {
	case <-calls:
	case <-time.After(5 * time.Second):
		t.Fatal("no scheduled attempt after one hour")
	}

	cancel(StopReasonFromSignal(syscall.SIGTERM))
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run = %v, want nil", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if n.Load() != 2 {
		t.Fatalf("attempts = %d, want 2", n.Load())
	}

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	logs := string(raw)
	for _, want := range []string{
		"- INFO - backup service configured",
		"- INFO - running initial backup",
		"- INFO - backup completed successfully",
		"- INFO - backup service stopped",
		"reason=SIGTERM",
	} {
		if !strings.Contains(logs, want) {
			t.Fatalf("log file missing %q:\n%s", want, logs)
		}
	}
}

func TestRunOnce(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, "info")
	exec, _, _ := countingExecutor(backup.Failure(2, "", "bucket not found"))
	a, err := New(Options{ConfigPath: cfgPath, LookupEnv: env(validEnv()), Executor: exec, Console: &syncBuffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.RunOnce(context.Background()) {
		t.Fatal("RunOnce = true for a failing script")
	}
	raw, _ := os.ReadFile(logPath)
	if !strings.Contains(string(raw), "- ERROR - backup failed") {
		t.Fatalf("log file:\n%s", raw)
	}
}

func TestApplyConfigSwapsLevel(t *testing.T) {
	t.Parallel()
	cfgPath, logPath := writeConfig(t, "info")
	a, err := New(Options{ConfigPath: cfgPath, LookupEnv: env(validEnv()), Console: &syncBuffer{}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.logs.Close()

	next := *a.started
	next.Logging.Level = "error"
	next.Backup.Script = "/opt/other.sh"
	a.applyConfig(&next)

	a.log.Info("should be filtered")
	a.log.Error("should be written")

	raw, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatal(err)
	}
	logs := string(raw)
	if strings.Contains(logs, "should be filtered") || !strings.Contains(logs, "should be written") {
		t.Fatalf("level not applied:\n%s", logs)
	}
}

func TestStatusLine(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC)
	if got := statusLine(backup.Success("", ""), at); got != "last backup success at 2026-03-01T04:00:00Z" {
		t.Fatalf("success status = %q", got)
	}
	if got := statusLine(backup.Failure(2, "", ""), at); got != "last backup failure at 2026-03-01T04:00:00Z (exit 2)" {
		t.Fatalf("failure status = %q", got)
	}
}

func TestStopReason(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancelCause(context.Background())
	cancel(StopReasonFromSignal(os.Interrupt))
	if got := StopReasonOf(ctx); got != StopSIGINT {
		t.Fatalf("reason = %q", got)
	}
	if got := StopReasonOf(context.Background()); got != StopUnknown {
		t.Fatalf("reason = %q", got)
	}
}
