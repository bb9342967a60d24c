package period

import (
	"testing"
	"time"
)

func d(y int, m time.Month, day int) time.Time {
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}

func TestMonthBoundaries(t *testing.T) {
	tests := []struct {
		name      string
		in        time.Time
		start     time.Time
		end       time.Time
		prevStart time.Time
		nextStart time.Time
	}{
		{"mid month", time.Date(2025, 3, 17, 15, 4, 5, 0, time.UTC), d(2025, 3, 1), d(2025, 3, 31), d(2025, 2, 1), d(2025, 4, 1)},
		{"january wraps back", d(2025, 1, 9), d(2025, 1, 1), d(2025, 1, 31), d(2024, 12, 1), d(2025, 2, 1)},
		{"december wraps forward", d(2024, 12, 31), d(2024, 12, 1), d(2024, 12, 31), d(2024, 11, 1), d(2025, 1, 1)},
		{"leap february", d(2024, 2, 10), d(2024, 2, 1), d(2024, 2, 29), d(2024, 1, 1), d(2024, 3, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MonthStart(tt.in); !got.Equal(tt.start) {
				t.Errorf("MonthStart = %s, want %s", got, tt.start)
			}
			if got := MonthEnd(tt.in); !got.Equal(tt.end) {
				t.Errorf("MonthEnd = %s, want %s", got, tt.end)
			}
			if got := PreviousMonthStart(tt.in); !got.Equal(tt.prevStart) {
				t.Errorf("PreviousMonthStart = %s, want %s", got, tt.prevStart)
			}
			if got := NextMonthStart(tt.in); !got.Equal(tt.nextStart) {
				t.Errorf("NextMonthStart = %s, want %s", got, tt.nextStart)
			}
		})
	}
}

func TestDateKeepsLocalCalendarDay(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	in := time.Date(2025, 6, 1, 2, 0, 0, 0, loc) // still May 31 in UTC
	if got := Date(in); !got.Equal(d(2025, 6, 1)) {
		t.Errorf("Date = %s, want 2025-06-01", got)
	}
}

func TestDaysIn(t *testing.T) {
	if got := DaysIn(d(2025, 2, 14)); got != 28 {
		t.Errorf("DaysIn(Feb 2025) = %d", got)
	}
	if got := DaysIn(d(2025, 4, 1)); got != 30 {
		t.Errorf("DaysIn(Apr 2025) = %d", got)
	}
}

func TestParse(t *testing.T) {
	got, err := ParseDate("2025-05-20")
	if err != nil || !got.Equal(d(2025, 5, 20)) {
		t.Errorf("ParseDate = %s, %v", got, err)
	}

	got, err = ParseDate("2025-05-20T23:10:00Z")
	if err != nil || !got.Equal(d(2025, 5, 20)) {
		t.Errorf("ParseDate(RFC3339) = %s, %v", got, err)
	}

	if _, err := ParseDate("20/05/2025"); err == nil {
		t.Error("expected error for non ISO date")
	}

	got, err = ParseMonth("2025-05")
	if err != nil || !got.Equal(d(2025, 5, 1)) {
		t.Errorf("ParseMonth = %s, %v", got, err)
	}

	got, err = ParseMonth("2025-05-20")
	if err != nil || !got.Equal(d(2025, 5, 1)) {
		t.Errorf("ParseMonth(date) = %s, %v", got, err)
	}
}

func TestOrToday(t *testing.T) {
	now := time.Date(2025, 8, 3, 18, 0, 0, 0, time.UTC)
	got, err := OrToday("", now)
	if err != nil || !got.Equal(d(2025, 8, 3)) {
		t.Errorf("OrToday(empty) = %s, %v", got, err)
	}
}
