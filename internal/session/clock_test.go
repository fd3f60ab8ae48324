package session

import (
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func testLog() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met within %v", timeout)
}

func TestClock_TicksAtRate(t *testing.T) {
	var ticks atomic.Int64
	var lastMs atomic.Int64
	c := NewClock(200, func(timestampMs int64) error {
		ticks.Add(1)
		lastMs.Store(timestampMs)
		return nil
	}, testLog())

	c.Start()
	defer c.Stop()

	waitFor(t, 2*time.Second, func() bool { return ticks.Load() >= 5 })
	if lastMs.Load() == 0 {
		t.Fatalf("tick timestamp never set")
	}
}

func TestClock_TickErrorDoesNotKillLoop(t *testing.T) {
	var ticks atomic.Int64
	c := NewClock(200, func(int64) error {
		ticks.Add(1)
		return errors.New("tick failed")
	}, testLog())

	c.Start()
	defer c.Stop()
	waitFor(t, 2*time.Second, func() bool { return ticks.Load() >= 3 })
}

func TestClock_TickPanicDoesNotKillLoop(t *testing.T) {
	var ticks atomic.Int64
	c := NewClock(200, func(int64) error {
		ticks.Add(1)
		panic("tick blew up")
	}, testLog())

	c.Start()
	defer c.Stop()
	waitFor(t, 2*time.Second, func() bool { return ticks.Load() >= 3 })
}

func TestClock_StopIsIdempotentAndIrrevocable(t *testing.T) {
	var ticks atomic.Int64
	c := NewClock(200, func(int64) error {
		ticks.Add(1)
		return nil
	}, testLog())

	c.Start()
	waitFor(t, 2*time.Second, func() bool { return ticks.Load() >= 1 })
	c.Stop()
	c.Stop()

	settled := ticks.Load()
	time.Sleep(50 * time.Millisecond)
	if got := ticks.Load(); got > settled+1 {
		t.Fatalf("ticks after stop: %d -> %d", settled, got)
	}

	// Start after Stop must not revive the loop.
	c.Start()
	time.Sleep(50 * time.Millisecond)
	if got := ticks.Load(); got > settled+1 {
		t.Fatalf("stopped clock restarted: %d -> %d", settled, got)
	}
}

func TestClock_ZeroRateFallsBackToDefault(t *testing.T) {
	c := NewClock(0, func(int64) error { return nil }, testLog())
	if c.interval != time.Second/DefaultTickRateHz {
		t.Fatalf("interval: %v", c.interval)
	}
}
