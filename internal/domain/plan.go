package domain

import (
	"fmt"
	"time"
)

// ResetInterval enumerates how often a plan's usage window restarts.
type ResetInterval string

const (
	IntervalHourly   ResetInterval = "hourly"
	IntervalDaily    ResetInterval = "daily"
	IntervalMonthly  ResetInterval = "monthly"
	IntervalYearly   ResetInterval = "yearly"
	IntervalLifetime ResetInterval = "lifetime"
)

// Valid reports whether the interval is one of the supported values.
func (i ResetInterval) Valid() bool {
	switch i {
	case IntervalHourly, IntervalDaily, IntervalMonthly, IntervalYearly, IntervalLifetime:
		return true
	}
	return false
}

// Plan is an immutable catalog entry describing a usage budget.
type Plan struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name" yaml:"name"`
	Limit      *int          `json:"limit" yaml:"limit"`
	Interval   ResetInterval `json:"interval" yaml:"interval"`
	Currency   string        `json:"currency" yaml:"currency"`
	PriceCents int64         `json:"price_cents" yaml:"price_cents"`
}

// Unlimited reports whether the plan carries no usage limit.
func (p Plan) Unlimited() bool {
	return p.Limit == nil
}

// Validate checks the plan for internally consistent values.
func (p Plan) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("plan id is required")
	}
	if !p.Interval.Valid() {
		return fmt.Errorf("plan %s: unsupported interval %q", p.ID, p.Interval)
	}
	if p.Limit != nil && *p.Limit < 0 {
		return fmt.Errorf("plan %s: limit must not be negative", p.ID)
	}
	return nil
}

// NextReset returns the end of a window that starts at now. Lifetime plans
// never reset and return nil.
func (p Plan) NextReset(now time.Time) *time.Time {
	var next time.Time
	switch p.Interval {
	case IntervalHourly:
		next = now.Add(time.Hour)
	case IntervalDaily:
		next = now.AddDate(0, 0, 1)
	case IntervalMonthly:
		next = addCalendarMonths(now, 1)
	case IntervalYearly:
		next = addCalendarMonths(now, 12)
	default:
		return nil
	}
	return &next
}

// addCalendarMonths moves t forward n months, clamping the day to the last
// day of the target month (Jan 31 + 1 month = Feb 28/29).
func addCalendarMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// IntPtr is a small helper for optional limits.
func IntPtr(v int) *int {
	return &v
}
