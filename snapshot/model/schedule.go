package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	// DefaultCron is the schedule of models which declare none.
	DefaultCron = "@daily"

	minFloorWindow = time.Minute
	maxFloorWindow = 4 * 366 * 24 * time.Hour
)

// Schedule evaluates a cron expression in UTC.
type Schedule struct {
	expr string
	spec *cron.SpecSchedule
}

// ParseSchedule parses a standard five-field cron expression or a descriptor like "@hourly".
// "@every" descriptors are rejected because they have no fixed boundaries.
func ParseSchedule(expr string) (Schedule, error) {
	if expr == "" {
		expr = DefaultCron
	}

	parsed, err := cron.ParseStandard(expr)
	if err != nil {
		return Schedule{}, errors.Join(ErrInvalidCron, fmt.Errorf("%q: %w", expr, err))
	}

	spec, ok := parsed.(*cron.SpecSchedule)
	if !ok {
		return Schedule{}, fmt.Errorf("%w: %q has no fixed boundaries", ErrInvalidCron, expr)
	}

	spec.Location = time.UTC

	return Schedule{expr: expr, spec: spec}, nil
}

// MustParseSchedule is like ParseSchedule but panics on error.
func MustParseSchedule(expr string) Schedule {
	schedule, err := ParseSchedule(expr)
	if err != nil {
		panic(err)
	}

	return schedule
}

func (s Schedule) String() string {
	return s.expr
}

// Next returns the first boundary strictly after t.
func (s Schedule) Next(t time.Time) time.Time {
	return s.spec.Next(t.UTC())
}

// Floor returns the latest boundary at or before t.
//
// The search window doubles until it contains a boundary. If there is none within four years, t is returned.
func (s Schedule) Floor(t time.Time) time.Time {
	t = t.UTC()

	for window := minFloorWindow; window <= maxFloorWindow; window *= 2 {
		var floor time.Time

		for next := s.spec.Next(t.Add(-window - time.Second)); !next.IsZero() && !next.After(t); next = s.spec.Next(next) {
			floor = next
		}

		if !floor.IsZero() {
			return floor
		}
	}

	return t
}
