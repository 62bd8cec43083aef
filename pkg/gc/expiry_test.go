package gc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// manualClock delivers time only when the test fires it.
type manualClock struct {
	ch chan time.Time
}

func newManualClock() *manualClock {
	return &manualClock{ch: make(chan time.Time, 1)}
}

func (m *manualClock) Now() time.Time {
	return time.Now()
}

func (m *manualClock) After(d time.Duration) <-chan time.Time {
	return m.ch
}

func (m *manualClock) fire() {
	m.ch <- time.Now()
}

func TestSessionExpiryClosesRuntime(t *testing.T) {
	rt := newFakeRuntime()
	clock := newManualClock()

	cfg := testConfig()
	cfg.SweepEnabled = true
	c := New(rt, &fakeReclaimer{}, cfg, WithClock(clock))
	defer c.Close()

	clock.fire()

	select {
	case <-rt.closedCh:
	case <-time.After(5 * time.Second):
		t.Fatal("runtime was not closed on session expiry")
	}
	if !errors.Is(rt.closeErr, ErrSessionExpired) {
		t.Errorf("close error = %v, want ErrSessionExpired", rt.closeErr)
	}
}

func TestSessionTimerNotArmedWithoutSweep(t *testing.T) {
	rt := newFakeRuntime()
	clock := newManualClock()

	c := New(rt, &fakeReclaimer{}, testConfig(), WithClock(clock)) // sweep disabled
	defer c.Close()

	select {
	case clock.ch <- time.Now():
		// Nobody is listening; the buffered send must not close anything.
	default:
	}

	select {
	case <-rt.closedCh:
		t.Fatal("runtime closed although sweep is disabled")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestStopDisarmsTimer(t *testing.T) {
	clock := newManualClock()
	fired := make(chan struct{})

	timer := NewSessionExpiryTimer(clock, time.Minute, func(error) { close(fired) })
	timer.Start()
	timer.Stop()

	select {
	case clock.ch <- time.Now():
	default:
	}

	select {
	case <-fired:
		t.Fatal("stopped timer still fired")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConcurrentStop(t *testing.T) {
	clock := newManualClock()
	timer := NewSessionExpiryTimer(clock, time.Minute, func(error) {})
	timer.Start()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			timer.Stop()
		}()
	}
	wg.Wait()
}

func TestStopBeforeStartThenStopAgain(t *testing.T) {
	timer := NewSessionExpiryTimer(newManualClock(), time.Minute, func(error) {
		t.Error("never-started timer must not fire")
	})
	timer.Stop()
	timer.Stop()
	timer.Start() // no-op after Stop
}

func TestDisabledTimerNeverStarts(t *testing.T) {
	timer := NewSessionExpiryTimer(SystemClock{}, 0, func(error) {
		t.Error("disabled timer must not fire")
	})
	timer.Start()
	timer.Stop()
}

func TestCloseStopsExpiryTimer(t *testing.T) {
	rt := newFakeRuntime()
	clock := newManualClock()

	cfg := testConfig()
	cfg.SweepEnabled = true
	c := New(rt, &fakeReclaimer{}, cfg, WithClock(clock))
	if err := c.InitializeBaseState(context.Background(), nil); err != nil {
		t.Fatalf("init failed: %v", err)
	}

	c.Close()

	select {
	case clock.ch <- time.Now():
	default:
	}

	select {
	case <-rt.closedCh:
		t.Fatal("closed collector's timer still fired")
	case <-time.After(50 * time.Millisecond):
	}
}
