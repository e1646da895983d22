// Package schedule runs background jobs on fixed intervals or at a daily wall-clock time.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Every calls fn every interval until ctx is canceled.
// When immediate is true fn also runs once before the first tick.
// Calls never overlap: a slow fn delays the following tick.
func Every(ctx context.Context, interval time.Duration, immediate bool, fn func(context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("schedule every: non-positive interval %s", interval)
	}
	if fn == nil {
		return fmt.Errorf("schedule every: nil job")
	}

	if immediate {
		if ctx.Err() != nil {
			return nil
		}
		fn(ctx)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// TimeOfDay is a wall-clock time in UTC.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(value string) (TimeOfDay, error) {
	hourPart, minutePart, found := strings.Cut(strings.TrimSpace(value), ":")
	if !found {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: want HH:MM", value)
	}
	hour, err := strconv.Atoi(hourPart)
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: invalid hour", value)
	}
	minute, err := strconv.Atoi(minutePart)
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("parse time of day %q: invalid minute", value)
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

// String renders "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Next returns the first instant strictly after now that falls on t in UTC.
func (t TimeOfDay) Next(now time.Time) time.Time {
	now = now.UTC()
	candidate := time.Date(now.Year(), now.Month(), now.Day(), t.Hour, t.Minute, 0, 0, time.UTC)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 1)
	}

	return candidate
}

// Daily calls fn once a day at t until ctx is canceled.
func Daily(ctx context.Context, t TimeOfDay, fn func(context.Context)) error {
	if fn == nil {
		return fmt.Errorf("schedule daily: nil job")
	}

	for {
		wait := time.Until(t.Next(time.Now()))
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
			fn(ctx)
		}
	}
}
