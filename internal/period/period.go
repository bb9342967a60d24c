// Package period provides calendar helpers for month-granular budgeting.
// All values are UTC dates at midnight so they compare and persist identically
// across databases.
package period

import (
	"fmt"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// Date truncates t to midnight UTC of its calendar day. The calendar day is
// taken from t's own location.
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of t's month.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// NextMonthStart returns the first day of the month after t's month.
func NextMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, 1, 0)
}

// PreviousMonthStart returns the first day of the month before t's month.
func PreviousMonthStart(t time.Time) time.Time {
	return MonthStart(t).AddDate(0, -1, 0)
}

// MonthEnd returns the last calendar day of t's month.
func MonthEnd(t time.Time) time.Time {
	return NextMonthStart(t).AddDate(0, 0, -1)
}

// DaysIn returns the number of days in t's month.
func DaysIn(t time.Time) int {
	return MonthEnd(t).Day()
}

// Format renders a date as YYYY-MM-DD.
func Format(t time.Time) string {
	return t.Format(dateLayout)
}

// ParseDate parses YYYY-MM-DD or an RFC 3339 timestamp into a UTC date.
func ParseDate(s string) (time.Time, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return Date(t), nil
}

// ParseMonth parses YYYY-MM, YYYY-MM-DD or RFC 3339 and returns the month start.
func ParseMonth(s string) (time.Time, error) {
	if t, err := time.Parse(monthLayout, s); err == nil {
		return t, nil
	}
	t, err := ParseDate(s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid month %q: expected YYYY-MM or YYYY-MM-DD", s)
	}
	return MonthStart(t), nil
}

// OrToday parses an optional date query value, defaulting to today.
func OrToday(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return Date(now), nil
	}
	return ParseDate(raw)
}
