package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// SpecKind is the normalized kind of a schedule string.
type SpecKind int

const (
	SpecCron SpecKind = iota
	SpecInterval
)

func (k SpecKind) String() string {
	if k == SpecCron {
		return "cron"
	}
	return "interval"
}

// ParsedSpec is a schedule string split into its kind.
//
// Supported forms:
//   - cron: "0 3 * * *", "0 */30 * * * *" (seconds), "@daily", "@every 6h",
//     "CRON_TZ=Europe/Berlin 0 3 * * *"
//   - Go duration: "6h", "90m"
//   - HH:MM duration: "06:00" (6 hours), "00:45" (45 minutes)
//
// "cron:" forces cron parsing; "interval:" or "every:" force interval parsing.
type ParsedSpec struct {
	Kind   SpecKind
	Cron   string
	Every  time.Duration
	Source string // "cron" | "duration" | "hhmm"
}

var reHHMM = regexp.MustCompile(`^\s*(\d{1,3}):(\d{2})\s*$`)

func ParseSchedule(raw string) (ParsedSpec, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ParsedSpec{}, fmt.Errorf("%w: empty", ErrSchedule)
	}

	low := strings.ToLower(s)
	switch {
	case strings.HasPrefix(low, "cron:"):
		expr := strings.TrimSpace(s[len("cron:"):])
		if expr == "" {
			return ParsedSpec{}, fmt.Errorf("%w: cron expression required after 'cron:'", ErrSchedule)
		}
		return ParsedSpec{Kind: SpecCron, Cron: expr, Source: "cron"}, nil
	case strings.HasPrefix(low, "interval:"):
		return parseIntervalSpec(s[len("interval:"):])
	case strings.HasPrefix(low, "every:"):
		return parseIntervalSpec(s[len("every:"):])
	}

	// whitespace, '@' descriptors and TZ prefixes are cron
	if strings.ContainsAny(s, " \t\n\r") || strings.HasPrefix(s, "@") {
		return ParsedSpec{Kind: SpecCron, Cron: s, Source: "cron"}, nil
	}
	if reHHMM.MatchString(s) || isDuration(s) {
		return parseIntervalSpec(s)
	}
	return ParsedSpec{}, fmt.Errorf(
		"%w: %q (use cron like '0 3 * * *', HH:MM like '06:00', or a duration like '6h')",
		ErrSchedule, raw,
	)
}

func isDuration(s string) bool {
	_, err := time.ParseDuration(s)
	return err == nil
}

func parseIntervalSpec(v string) (ParsedSpec, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return ParsedSpec{}, fmt.Errorf("%w: interval required", ErrSchedule)
	}
	src := "duration"
	var d time.Duration
	if reHHMM.MatchString(v) {
		var err error
		if d, err = parseHHMMDuration(v); err != nil {
			return ParsedSpec{}, err
		}
		src = "hhmm"
	} else {
		var err error
		if d, err = time.ParseDuration(v); err != nil {
			return ParsedSpec{}, fmt.Errorf("%w: invalid interval %q", ErrSchedule, v)
		}
	}
	if d <= 0 {
		return ParsedSpec{}, fmt.Errorf("%w: interval must be > 0", ErrSchedule)
	}
	return ParsedSpec{Kind: SpecInterval, Every: d, Source: src}, nil
}

// parseHHMMDuration reads "HHH:MM" as a duration; hours up to 999.
func parseHHMMDuration(v string) (time.Duration, error) {
	m := reHHMM.FindStringSubmatch(v)
	if len(m) != 3 {
		return 0, fmt.Errorf("%w: invalid HH:MM %q", ErrSchedule, v)
	}
	hh, _ := strconv.Atoi(m[1])
	mm, _ := strconv.Atoi(m[2])
	if mm > 59 {
		return 0, fmt.Errorf("%w: invalid minutes in %q", ErrSchedule, v)
	}
	return time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute, nil
}
