package gc

import (
	"errors"
	"sync"
	"time"
)

// ErrSessionExpired is passed to the runtime's Close when the session
// expiry timer fires.
var ErrSessionExpired = errors.New("session expired")

// SessionExpiryTimer closes the hosting session once the session-expiry
// duration has elapsed, independent of GC runs. Bounding session length
// is what makes the sweep timeout a safe upper bound on reachability
// staleness: after expiry no further edits (and no new references) can
// originate from this session.
//
// The timer is the only wall-clock dependent piece of the collector; it
// takes a substitutable Clock so tests can drive it with virtual time.
type SessionExpiryTimer struct {
	clock    Clock
	duration time.Duration
	closeFn  func(error)

	mu        sync.Mutex
	started   bool
	running   bool
	stopped   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// NewSessionExpiryTimer creates a timer that calls closeFn(ErrSessionExpired)
// after duration. A non-positive duration disables the timer.
func NewSessionExpiryTimer(clock Clock, duration time.Duration, closeFn func(error)) *SessionExpiryTimer {
	return &SessionExpiryTimer{
		clock:     clock,
		duration:  duration,
		closeFn:   closeFn,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start arms the timer. Calling Start more than once has no effect.
func (t *SessionExpiryTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started || t.duration <= 0 {
		return
	}
	t.started = true
	t.running = true

	go func() {
		defer close(t.stoppedCh)

		select {
		case <-t.clock.After(t.duration):
			t.closeFn(ErrSessionExpired)
		case <-t.stopCh:
		}
	}()
}

// Stop disarms the timer and waits for its goroutine to exit. Safe to
// call from multiple goroutines, whether or not the timer fired.
func (t *SessionExpiryTimer) Stop() {
	t.mu.Lock()
	t.started = true // prevent a later Start
	if !t.stopped {
		t.stopped = true
		close(t.stopCh)
	}
	running := t.running
	t.mu.Unlock()

	if running {
		<-t.stoppedCh
	}
}
