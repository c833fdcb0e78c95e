// Package biztime centralizes access to the current time.
// All storage and transport use UTC.
package biztime

import "time"

// Clock returns the current time. Components that enforce time boundaries
// accept a Clock so the boundary can be pinned in tests.
type Clock func() time.Time

// NowUTC returns current time in UTC.
func NowUTC() time.Time {
	return time.Now().UTC()
}

// Fixed returns a Clock that always reports t in UTC.
func Fixed(t time.Time) Clock {
	utc := t.UTC()
	return func() time.Time { return utc }
}

// OrDefault returns c, or NowUTC when c is nil.
func OrDefault(c Clock) Clock {
	if c == nil {
		return NowUTC
	}
	return c
}
