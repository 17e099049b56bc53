package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProject       = "GOOGLE_CLOUD_PROJECT"
	EnvBucket        = "GOOGLE_CLOUD_STORAGE_BUCKET"
	EnvIntervalHours = "BACKUP_INTERVAL_HOURS"
	EnvSchedule      = "BACKUP_SCHEDULE"
	EnvTelegramToken = "TELEGRAM_BOT_TOKEN"

	DefaultIntervalHours = 24
)

// maxIntervalHours keeps hours*time.Hour inside time.Duration.
const maxIntervalHours = math.MaxInt64 / int64(time.Hour)

// Settings is the environment-derived part of the configuration.
// It is read once at startup and never changes afterwards.
type Settings struct {
	Project string
	Bucket  string

	IntervalHours int
	Interval      time.Duration

	// Schedule is the raw BACKUP_SCHEDULE value; empty means "use Interval".
	Schedule string

	TelegramToken string
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// LoadSettings reads and validates the environment.
//
// Missing required variables are reported together in a *MissingEnvError.
// A BACKUP_INTERVAL_HOURS that is set but is not a positive integer (blank
// included) fails with ErrInvalidInterval instead of falling back to the
// default.
func LoadSettings(lookup LookupFunc) (Settings, error) {
	if lookup == nil {
		lookup = os.LookupEnv
	}
	get := func(k string) string {
		v, _ := lookup(k)
		return strings.TrimSpace(v)
	}

	s := Settings{
		Project:       get(EnvProject),
		Bucket:        get(EnvBucket),
		Schedule:      get(EnvSchedule),
		TelegramToken: get(EnvTelegramToken),
	}

	var missing []string
	if s.Project == "" {
		missing = append(missing, EnvProject)
	}
	if s.Bucket == "" {
		missing = append(missing, EnvBucket)
	}
	if len(missing) > 0 {
		return Settings{}, &MissingEnvError{Names: missing}
	}

	raw, set := lookup(EnvIntervalHours)
	hours, err := parseIntervalHours(strings.TrimSpace(raw), set)
	if err != nil {
		return Settings{}, err
	}
	s.IntervalHours = hours
	s.Interval = time.Duration(hours) * time.Hour
	return s, nil
}

// parseIntervalHours falls back to the default only when the variable is
// unset. A set but blank value is rejected like any other non-integer.
func parseIntervalHours(raw string, set bool) (int, error) {
	if !set {
		return DefaultIntervalHours, nil
	}
	if raw == "" {
		return 0, fmt.Errorf("%w: %s is set but empty", ErrInvalidInterval, EnvIntervalHours)
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidInterval, EnvIntervalHours, raw)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%w: %s must be > 0, got %d", ErrInvalidInterval, EnvIntervalHours, n)
	}
	if n > maxIntervalHours {
		return 0, fmt.Errorf("%w: %s=%d is too large", ErrInvalidInterval, EnvIntervalHours, n)
	}
	return int(n), nil
}

// LoadDotenv loads KEY=VALUE pairs from path into the process environment.
// Variables already present in the environment win.
func LoadDotenv(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %q: %w", path, err)
	}
	return nil
}
