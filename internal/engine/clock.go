package engine

import "time"

// Clock supplies wall-clock time for created_at, expires_at and sweeps.
// Production uses SystemClock; tests inject testutil.FakeClock.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the system time in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
