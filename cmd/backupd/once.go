package main

import (
	"errors"

	"github.com/spf13/cobra"
)

var errAttemptFailed = errors.New("backup attempt failed")

func newOnceCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Validate the environment and run a single backup attempt",
		Long: `once performs the same startup checks as the daemon, runs one bounded
attempt and exits 0 on success or 2 on failure.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			ctx, stop := signalContext(cmd.Context())
			defer stop()
			if !a.RunOnce(ctx) {
				return withExit(ExitBackupFailed, errAttemptFailed, true)
			}
			return nil
		},
	}
}
