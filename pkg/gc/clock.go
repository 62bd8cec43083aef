package gc

import "time"

// Clock abstracts the wall clock used by the session-expiry timer so
// tests can drive it with virtual time. The reference timestamps used by
// the phase state machine come from the runtime, not from this clock.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that delivers the time after d has elapsed.
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time {
	return time.Now()
}

func (SystemClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
