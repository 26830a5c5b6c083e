// Package services provides the orchestration layer of the envelope
// engine: jar ledger operations, budget aggregation and recurring
// expense scheduling on top of the storage repository.
//
// This file implements the cadence rules for recurring templates. Each
// frequency has its own rule that computes the next occurrence strictly
// after a reference date; the registry keeps the dispatch open for new
// cadences without touching the callers.
package services

import (
	"fmt"
	"time"

	"envelope/internal/core"
)

// ScheduleRule computes the next occurrence of a template's cadence
// strictly after the given date, ignoring the template's end date.
type ScheduleRule interface {
	NextAfter(tpl core.RecurringExpense, after core.Date) core.Date
}

// MonthlyRule targets a fixed day of the month, clamped to the last
// day of months that are too short (day 31 in February lands on the
// 28th or 29th).
type MonthlyRule struct{}

func (MonthlyRule) NextAfter(tpl core.RecurringExpense, after core.Date) core.Date {
	day := 1
	if tpl.DayOfMonth != nil {
		day = *tpl.DayOfMonth
	}
	year, month := after.Year(), after.Month()
	candidate := clampedDate(year, month, day)
	if candidate.After(after) {
		return candidate
	}
	year, month = nextMonth(year, month)
	return clampedDate(year, month, day)
}

// WeeklyRule targets a fixed weekday, Monday=0 .. Sunday=6.
type WeeklyRule struct{}

func (WeeklyRule) NextAfter(tpl core.RecurringExpense, after core.Date) core.Date {
	target := 0
	if tpl.DayOfWeek != nil {
		target = *tpl.DayOfWeek
	}
	delta := (target - after.WeekdayMon() + 7) % 7
	if delta == 0 {
		delta = 7
	}
	return after.AddDays(delta)
}

// YearlyRule targets the anniversary of the start date. A February 29
// anchor clamps to February 28 in non-leap years.
type YearlyRule struct{}

func (YearlyRule) NextAfter(tpl core.RecurringExpense, after core.Date) core.Date {
	month, day := tpl.StartDate.Month(), tpl.StartDate.Day()
	candidate := clampedDate(after.Year(), month, day)
	if candidate.After(after) {
		return candidate
	}
	return clampedDate(after.Year()+1, month, day)
}

// scheduleRules maps frequencies to their cadence rules.
var scheduleRules = map[core.Frequency]ScheduleRule{
	core.Monthly: MonthlyRule{},
	core.Weekly:  WeeklyRule{},
	core.Yearly:  YearlyRule{},
}

// GetScheduleRule returns the cadence rule for a frequency.
func GetScheduleRule(freq core.Frequency) (ScheduleRule, error) {
	rule, ok := scheduleRules[freq]
	if !ok {
		return nil, fmt.Errorf("%w: unknown frequency %q", core.ErrInvalidFrequency, freq)
	}
	return rule, nil
}

// NextDueDate computes the template's next due date strictly after
// from, applying the end-date cutoff: a zero Date means the template
// has ended and will never be due again.
func NextDueDate(tpl core.RecurringExpense, from core.Date) (core.Date, error) {
	rule, err := GetScheduleRule(tpl.Frequency)
	if err != nil {
		return core.Date{}, err
	}
	next := rule.NextAfter(tpl, from)
	if !tpl.EndDate.IsZero() && next.After(tpl.EndDate) {
		return core.Date{}, nil
	}
	return next, nil
}

// InitialDueDate seeds a freshly created template: the first
// occurrence on or after the start date.
func InitialDueDate(tpl core.RecurringExpense) (core.Date, error) {
	return NextDueDate(tpl, tpl.StartDate.AddDays(-1))
}

// IsDue reports whether the template has a pending occurrence on or
// before today.
func IsDue(tpl core.RecurringExpense, today core.Date) bool {
	return tpl.IsActive && !tpl.NextDue.IsZero() && !tpl.NextDue.After(today)
}

// clampedDate builds a date clamping the day to the month's length.
func clampedDate(year int, month time.Month, day int) core.Date {
	last := lastDayOfMonth(year, month)
	if day > last {
		day = last
	}
	return core.NewDate(year, month, day)
}

func lastDayOfMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func nextMonth(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}
