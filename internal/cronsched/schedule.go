// Package cronsched implements the durable cron scheduler: jobs fire on an
// at/every/cron schedule, execution is protected by a filesystem lease so at
// most one scheduler process runs a given tick at a time, and execution
// history with retry-with-backoff is recorded for each run.
package cronsched

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(
	cron.SecondOptional |
		cron.Minute |
		cron.Hour |
		cron.Dom |
		cron.Month |
		cron.Dow |
		cron.Descriptor,
)

// ScheduleKind tags which of the three schedule shapes a Schedule holds.
type ScheduleKind string

const (
	KindAt    ScheduleKind = "at"
	KindEvery ScheduleKind = "every"
	KindCron  ScheduleKind = "cron"
)

// Schedule is a tagged union over the three schedule kinds the spec names:
// a one-shot timestamp, a fixed interval, and a cron expression with
// optional timezone.
type Schedule struct {
	Kind ScheduleKind

	At time.Time // KindAt

	Every time.Duration // KindEvery

	CronExpr string // KindCron
	Timezone string // KindCron, optional
}

// NewAtSchedule builds a one-shot schedule firing at t.
func NewAtSchedule(t time.Time) Schedule {
	return Schedule{Kind: KindAt, At: t}
}

// NewEverySchedule builds a fixed-interval schedule.
func NewEverySchedule(d time.Duration) (Schedule, error) {
	if d <= 0 {
		return Schedule{}, fmt.Errorf("cronsched: every schedule requires a positive duration")
	}
	return Schedule{Kind: KindEvery, Every: d}, nil
}

// NewCronSchedule parses expr (5- or 6-field, or a descriptor like
// "@hourly") and validates it immediately so a malformed expression is
// rejected at registration time, not at first tick.
func NewCronSchedule(expr, timezone string) (Schedule, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Schedule{}, fmt.Errorf("cronsched: cron schedule requires an expression")
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return Schedule{}, fmt.Errorf("cronsched: invalid cron expression %q: %w", expr, err)
	}
	return Schedule{Kind: KindCron, CronExpr: expr, Timezone: strings.TrimSpace(timezone)}, nil
}

// Next returns the next fire time strictly after now, and false if the
// schedule has no further occurrences (a KindAt schedule once its timestamp
// has passed).
func (s Schedule) Next(now time.Time) (time.Time, bool, error) {
	switch s.Kind {
	case KindAt:
		if s.At.IsZero() {
			return time.Time{}, false, fmt.Errorf("cronsched: at schedule missing timestamp")
		}
		if !now.Before(s.At) {
			return time.Time{}, false, nil
		}
		return s.At, true, nil

	case KindEvery:
		if s.Every <= 0 {
			return time.Time{}, false, fmt.Errorf("cronsched: every schedule missing duration")
		}
		return now.Add(s.Every), true, nil

	case KindCron:
		if s.CronExpr == "" {
			return time.Time{}, false, fmt.Errorf("cronsched: cron schedule missing expression")
		}
		loc := now.Location()
		if s.Timezone != "" {
			if tz, err := time.LoadLocation(s.Timezone); err == nil {
				loc = tz
			}
		}
		parsed, err := cronParser.Parse(s.CronExpr)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("cronsched: parse cron expression: %w", err)
		}
		next := parsed.Next(now.In(loc))
		return next, !next.IsZero(), nil

	default:
		return time.Time{}, false, fmt.Errorf("cronsched: unknown schedule kind %q", s.Kind)
	}
}
