package scheduler

import (
	"fmt"
	"strings"
	"time"
)

// oneShotLayout is the bare local-time format accepted for one-shot
// triggers; RFC3339 with an explicit offset also works.
const oneShotLayout = "2006-01-02T15:04:05"

// ParseOneShotTime parses a one-shot trigger value into an absolute time.
func ParseOneShotTime(value string) (time.Time, error) {
	if t, err := time.ParseInLocation(oneShotLayout, value, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid datetime %q. Use ISO 8601 format e.g. '2026-03-05T12:00:00'", value)
}

// ParseOneShotDelay parses a one-shot trigger value and returns the delay
// until it fires. Past or present timestamps are rejected.
func ParseOneShotDelay(value string, now time.Time) (time.Duration, error) {
	t, err := ParseOneShotTime(value)
	if err != nil {
		return 0, err
	}
	if !t.After(now) {
		return 0, fmt.Errorf("that time has already passed (%s). Please provide a future datetime", value)
	}
	return t.Sub(now), nil
}

// ValidateCronExpr checks a recurring trigger value: exactly six
// whitespace-separated fields (sec min hour day month weekday) that the
// cron parser accepts.
func ValidateCronExpr(expr string) error {
	fields := strings.Fields(expr)
	if len(fields) != 6 {
		return fmt.Errorf("cron expression must have 6 fields (sec min hour day month weekday), got %d: %q", len(fields), expr)
	}
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}
