package period

import (
	"fmt"
	"time"
)

// Clock reads the current wall time in the location calendar days are kept
// in. A nil Clock reads UTC.
type Clock func() time.Time

// ClockIn returns a Clock for loc.
func ClockIn(loc *time.Location) Clock {
	return func() time.Time { return time.Now().In(loc) }
}

// LoadClock resolves an IANA zone name such as "Asia/Tokyo" into a Clock.
// An empty name means UTC.
func LoadClock(name string) (Clock, error) {
	if name == "" {
		return ClockIn(time.UTC), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}
	return ClockIn(loc), nil
}

// Now returns the current time.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}

// Today returns the current calendar day as a UTC date.
func (c Clock) Today() time.Time {
	return Date(c.Now())
}

// Location returns the clock's location.
func (c Clock) Location() *time.Location {
	return c.Now().Location()
}
