package config

import (
	"errors"
	"strings"
)

var (
	// ErrMissingEnv marks a required environment variable that is unset or empty.
	ErrMissingEnv = errors.New("missing required environment variables")
	// ErrInvalidInterval marks a BACKUP_INTERVAL_HOURS value that is not a positive integer.
	ErrInvalidInterval = errors.New("invalid backup interval")
	// ErrInvalidSchedule marks a BACKUP_SCHEDULE value that cannot be parsed.
	ErrInvalidSchedule = errors.New("invalid backup schedule")
	// ErrInvalidConfig marks a config file that parsed but failed validation.
	ErrInvalidConfig = errors.New("invalid config")
)

// MissingEnvError lists every required variable that was absent.
type MissingEnvError struct {
	Names []string
}

func (e *MissingEnvError) Error() string {
	return ErrMissingEnv.Error() + ": " + strings.Join(e.Names, ", ")
}

func (e *MissingEnvError) Is(target error) bool { return target == ErrMissingEnv }
