package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/juju/clock"

	"backupd/internal/backup"
	"backupd/internal/config"
	"backupd/internal/runtime/supervisor"
	"backupd/internal/scheduler"
	"backupd/internal/transport"
	"backupd/internal/transport/telegram"
	logx "backupd/pkg/logx"
	"backupd/pkg/systemd"
)

const stopTimeout = 15 * time.Second

// ErrLoopExited means the scheduler loop returned while the daemon was still
// supposed to run.
var ErrLoopExited = errors.New("scheduler loop exited unexpectedly")

type Options struct {
	// ConfigPath is the optional JSON/YAML config file.
	ConfigPath string
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv config.LookupFunc
	// Executor replaces the script executor built from backup.script.
	Executor backup.Executor
	// Clock drives interval sleeps; defaults to the wall clock.
	Clock clock.Clock
	// Console receives startup lines written before the log service exists.
	Console io.Writer
}

type App struct {
	cfgm    *config.ConfigManager
	started *config.Config

	logs   *logx.Service
	log    logx.Logger
	sender transport.Sender

	sched scheduler.Schedule
	loop  *scheduler.Loop
	sup   *supervisor.Supervisor
}

// New runs the startup contract: environment validation, config file, log
// directory, log sinks and schedule. Any error here is a fatal
// configuration error and no attempt has been made.
func New(opts Options) (*App, error) {
	console := opts.Console
	if console == nil {
		console = logx.Stdout()
	}
	boot := logx.NewWriter(console, "INFO")
	boot.Info("starting backup service")

	settings, err := config.LoadSettings(opts.LookupEnv)
	if err != nil {
		var me *config.MissingEnvError
		if errors.As(err, &me) {
			boot.Error("missing required environment variables", logx.String("vars", strings.Join(me.Names, ",")))
		} else {
			boot.Error("invalid environment", logx.Err(err))
		}
		return nil, err
	}

	cfgm := config.NewConfigManager(opts.ConfigPath)
	cfg, err := cfgm.Load()
	if err != nil {
		boot.Error("failed to load config", logx.String("path", opts.ConfigPath), logx.Err(err))
		return nil, err
	}

	lc := cfg.LogConfig()
	if lc.File.Enabled {
		if err := EnsureDir(filepath.Dir(lc.File.Path)); err != nil {
			boot.Error("failed to create log directory", logx.String("path", lc.File.Path), logx.Err(err))
			return nil, fmt.Errorf("create log directory: %w", err)
		}
	}

	sender, target := newAlertSender(cfg, settings, boot)

	// The Telegram target must be set before the sink is enabled, or Apply
	// warns about a missing chat.
	bootCfg := lc
	bootCfg.Telegram.Enabled = false
	logs, root := logx.New(bootCfg, sender)
	if sender != nil {
		logs.SetTelegramTarget(target)
		logs.Apply(lc)
	}
	log := root.With(logx.String("comp", "app"))

	sched, err := resolveSchedule(settings)
	if err != nil {
		log.Error("invalid schedule", logx.String("value", settings.Schedule), logx.Err(err))
		_ = logs.Close()
		return nil, err
	}

	exec := opts.Executor
	if exec == nil {
		exec = backup.NewScript(backup.ScriptConfig{Path: cfg.Backup.Script}, root.With(logx.String("comp", "backup")))
	}
	loop, err := scheduler.New(scheduler.Config{
		Schedule:         sched,
		ExecutionTimeout: scheduler.DefaultExecutionTimeout,
		CrashBackoff:     scheduler.DefaultCrashBackoff,
		OnOutcome:        publishStatus,
	}, exec, opts.Clock, root.With(logx.String("comp", "scheduler")))
	if err != nil {
		_ = logs.Close()
		return nil, err
	}

	cfgm.SetLogger(root.With(logx.String("comp", "config")))
	log.Info("backup service configured",
		logx.String("schedule", sched.String()),
		logx.Int("interval_hours", settings.IntervalHours),
		logx.String("script", cfg.Backup.Script),
		logx.Bool("alerts", sender != nil),
	)

	return &App{
		cfgm:    cfgm,
		started: cfg,
		logs:    logs,
		log:     log,
		sender:  sender,
		sched:   sched,
		loop:    loop,
	}, nil
}

// publishStatus mirrors the last attempt into systemctl status.
func publishStatus(out backup.Outcome) {
	_, _ = systemd.Status("%s", statusLine(out, time.Now()))
}

func statusLine(out backup.Outcome, at time.Time) string {
	line := "last backup " + out.Kind.String() + " at " + at.Format(time.RFC3339)
	if out.Kind == backup.KindFailure {
		line += fmt.Sprintf(" (exit %d)", out.ExitCode)
	}
	return line
}

func resolveSchedule(s config.Settings) (scheduler.Schedule, error) {
	if s.Schedule == "" {
		return scheduler.Interval{Every: s.Interval}, nil
	}
	sched, err := scheduler.Compile(s.Schedule, time.Local)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", config.ErrInvalidSchedule, config.EnvSchedule, err)
	}
	return sched, nil
}

// newAlertSender builds the Telegram sender when alerts are enabled and fully
// addressed. A broken bot setup only disables alerts.
func newAlertSender(cfg *config.Config, s config.Settings, log logx.Logger) (transport.Sender, transport.ChatTarget) {
	if !cfg.Logging.Telegram.Enabled {
		return nil, transport.ChatTarget{}
	}
	token := strings.TrimSpace(cfg.Telegram.Token)
	if token == "" {
		token = s.TelegramToken
	}
	if token == "" || cfg.Telegram.ChatID == 0 {
		log.Warn("telegram alerts enabled without token or telegram.chat_id; alerts disabled")
		return nil, transport.ChatTarget{}
	}
	snd, err := telegram.New(telegram.Config{Token: token}, log.With(logx.String("comp", "telegram")))
	if err != nil {
		log.Warn("telegram alerts unavailable", logx.Err(err))
		return nil, transport.ChatTarget{}
	}
	return snd, transport.ChatTarget{ChatID: cfg.Telegram.ChatID, ThreadID: cfg.Telegram.ThreadID}
}

func (a *App) Schedule() scheduler.Schedule { return a.sched }

// Run performs the initial attempt and the periodic loop until ctx is
// canceled. It returns nil on a normal shutdown.
func (a *App) Run(ctx context.Context) error {
	defer a.logs.Close()

	a.sup = supervisor.NewSupervisor(ctx, supervisor.WithLogger(a.log.With(logx.String("comp", "supervisor"))))

	updates := a.cfgm.Subscribe(4)
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.sup.Go0("config.apply", func(c context.Context) { a.applyLoop(c, updates) })
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		if err := systemd.Watchdog(c, a.log); err != nil {
			a.log.Warn("systemd watchdog disabled", logx.Err(err))
		}
	})

	loopDone := make(chan struct{})
	a.sup.Go("scheduler", func(c context.Context) error {
		defer close(loopDone)
		return a.loop.Run(c)
	})
	if _, err := systemd.Ready(); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-loopDone:
		if ctx.Err() == nil {
			runErr = ErrLoopExited
			a.log.Error("scheduler loop exited; shutting down", logx.Err(a.sup.Err()))
		}
	}

	_, _ = systemd.Stopping()
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()
	if err := a.sup.Stop(stopCtx); err != nil && runErr == nil {
		a.log.Warn("shutdown incomplete", logx.Err(err))
	}
	a.log.Info("shutdown complete", logx.String("reason", string(StopReasonOf(ctx))))
	return runErr
}

// RunOnce performs a single bounded attempt and reports whether it succeeded.
func (a *App) RunOnce(ctx context.Context) bool {
	defer a.logs.Close()
	return a.loop.RunAttempt(ctx)
}

func (a *App) applyLoop(ctx context.Context, updates <-chan *config.Config) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-updates:
			if !ok {
				return
			}
			a.applyConfig(cfg)
		}
	}
}

// applyConfig re-applies the logging section. Everything else is fixed for
// the life of the process.
func (a *App) applyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	lc := cfg.LogConfig()
	if a.sender == nil {
		lc.Telegram.Enabled = false
	}
	if lc.File.Enabled {
		if err := EnsureDir(filepath.Dir(lc.File.Path)); err != nil {
			a.log.Warn("log directory unavailable", logx.String("path", lc.File.Path), logx.Err(err))
		}
	}
	a.logs.Apply(lc)

	var fixed []string
	if !reflect.DeepEqual(cfg.Backup, a.started.Backup) {
		fixed = append(fixed, "backup")
	}
	if !reflect.DeepEqual(cfg.Telegram, a.started.Telegram) ||
		cfg.Logging.Telegram.Enabled != a.started.Logging.Telegram.Enabled {
		fixed = append(fixed, "telegram")
	}
	if len(fixed) > 0 {
		a.log.Warn("config change requires restart", logx.String("sections", strings.Join(fixed, ",")))
	}
	a.log.Info("logging config applied", logx.String("level", lc.Level))
}
