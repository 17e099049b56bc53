package main

import (
	"errors"
	"strconv"
)

// Process exit codes.
const (
	ExitOK           = 0 // clean shutdown or successful single attempt
	ExitConfig       = 1 // startup configuration error, or the loop died
	ExitBackupFailed = 2 // "once": the attempt did not succeed
)

// exitError carries a process exit code through cobra.
type exitError struct {
	code int
	err  error
	// reported is set when the error was already logged.
	reported bool
}

func (e *exitError) Error() string {
	if e.err == nil {
		return "exit status " + strconv.Itoa(e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func withExit(code int, err error, reported bool) error {
	return &exitError{code: code, err: err, reported: reported}
}

func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return ExitConfig
}

func isReported(err error) bool {
	var ee *exitError
	return errors.As(err, &ee) && ee.reported
}
