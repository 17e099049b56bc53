package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"backupd/internal/app"
	"backupd/internal/config"
)

type rootOptions struct {
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "backupd",
		Short: "Periodic backup scheduler",
		Long: `backupd runs the backup script once at startup and then every
BACKUP_INTERVAL_HOURS (default 24), bounding each attempt to five minutes.
Failed attempts are logged and retried at the next interval.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd, opts)
		},
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "optional JSON or YAML config file")
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "optional dotenv file; existing variables win")
	cmd.AddCommand(newOnceCmd(opts))
	return cmd
}

// newApp runs the startup contract shared by every command.
func newApp(cmd *cobra.Command, opts *rootOptions) (*app.App, error) {
	if err := config.LoadDotenv(opts.envFile); err != nil {
		return nil, withExit(ExitConfig, err, false)
	}
	a, err := app.New(app.Options{
		ConfigPath: opts.configPath,
		Console:    cmd.OutOrStdout(),
	})
	if err != nil {
		return nil, withExit(ExitConfig, err, true)
	}
	return a, nil
}

func runDaemon(cmd *cobra.Command, opts *rootOptions) error {
	a, err := newApp(cmd, opts)
	if err != nil {
		return err
	}
	ctx, stop := signalContext(cmd.Context())
	defer stop()
	if err := a.Run(ctx); err != nil {
		return withExit(ExitConfig, err, true)
	}
	return nil
}

// signalContext is canceled by SIGINT or SIGTERM, with the signal recorded
// as an app.StopReason cause.
func signalContext(parent context.Context) (context.Context, func()) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancelCause(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-ch:
			cancel(app.StopReasonFromSignal(sig))
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel(context.Canceled)
	}
}
