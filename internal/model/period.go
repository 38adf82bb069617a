package model

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout formats period keys.
const DateLayout = "2006-01-02"

// Period selects the window a leaderboard covers.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
	PeriodOverall Period = "overall"
)

// ParsePeriod accepts a period name, case-insensitively. Empty means weekly.
func ParsePeriod(raw string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(raw))); p {
	case "":
		return PeriodWeekly, nil
	case PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodOverall:
		return p, nil
	default:
		return "", fmt.Errorf("%w: unknown period %q", ErrInvalidArgument, raw)
	}
}

// GoalKind selects which goal a user is changing.
type GoalKind string

const (
	GoalDaily  GoalKind = "daily"
	GoalWeekly GoalKind = "weekly"
)

// ParseGoalKind accepts "daily" or "weekly".
func ParseGoalKind(raw string) (GoalKind, error) {
	switch k := GoalKind(strings.ToLower(strings.TrimSpace(raw))); k {
	case GoalDaily, GoalWeekly:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown goal kind %q", ErrInvalidArgument, raw)
	}
}

// DayStart truncates t to midnight in its own location.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WeekStart returns midnight of the Monday on or before t.
func WeekStart(t time.Time) time.Time {
	day := DayStart(t)
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

// MonthStart returns midnight of the first day of t's month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// PeriodKey formats a period start as stored in rollup tables.
func PeriodKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParsePeriodKey reads a YYYY-MM-DD key in loc.
func ParsePeriodKey(key string, loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, strings.TrimSpace(key), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: bad date %q, expected YYYY-MM-DD", ErrInvalidArgument, key)
	}
	return t, nil
}
