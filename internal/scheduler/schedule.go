package scheduler

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule decides how long the loop sleeps before the next attempt.
type Schedule interface {
	Delay(now time.Time) (time.Duration, error)
	String() string
}

// Interval is a fixed sleep measured from the end of one attempt, so the gap
// between attempt starts is Every plus the attempt's run time. Attempt
// outcomes never change it.
type Interval struct {
	Every time.Duration
}

func (i Interval) Delay(time.Time) (time.Duration, error) {
	if i.Every <= 0 {
		return 0, fmt.Errorf("%w: interval must be > 0, got %v", ErrSchedule, i.Every)
	}
	return i.Every, nil
}

func (i Interval) String() string { return "every " + i.Every.String() }

// SecondOptional allows both 5-field and 6-field (with seconds) expressions.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Cron fires at the activations of a cron expression, evaluated in loc unless
// the expression carries its own CRON_TZ= / TZ= prefix.
type Cron struct {
	expr  string
	sched cron.Schedule
	loc   *time.Location
}

func NewCron(expr string, loc *time.Location) (*Cron, error) {
	expr = strings.TrimSpace(expr)
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrSchedule, expr, err)
	}
	if loc == nil {
		loc = time.Local
	}
	return &Cron{expr: expr, sched: s, loc: loc}, nil
}

func (c *Cron) Delay(now time.Time) (time.Duration, error) {
	next := c.sched.Next(now.In(c.loc))
	if next.IsZero() {
		return 0, fmt.Errorf("%w: %q", ErrNoNextRun, c.expr)
	}
	return max(next.Sub(now), 0), nil
}

func (c *Cron) String() string { return "cron " + c.expr }

// Compile turns a schedule string into a Schedule. Interval forms become an
// Interval; everything else goes through the cron parser.
func Compile(raw string, loc *time.Location) (Schedule, error) {
	spec, err := ParseSchedule(raw)
	if err != nil {
		return nil, err
	}
	if spec.Kind == SpecInterval {
		return Interval{Every: spec.Every}, nil
	}
	return NewCron(spec.Cron, loc)
}
