// Package session drives the connection lifecycle and the fixed-rate
// simulation clock around it.
package session

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/logx"
)

const DefaultTickRateHz = 50

// TickFunc advances the local simulation by one step.
type TickFunc func(timestampMs int64) error

// Clock runs a self-correcting fixed-rate loop. Each iteration measures the
// time the tick took and sleeps only the remainder of the interval, so the
// rate resists drift. One bad tick never kills the loop. Stopping is
// idempotent and irrevocable for the instance.
type Clock struct {
	interval time.Duration
	tick     TickFunc
	log      *logrus.Entry
	limiter  logx.Limiter

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
}

func NewClock(hz int, tick TickFunc, log *logrus.Entry) *Clock {
	if hz <= 0 {
		hz = DefaultTickRateHz
	}
	return &Clock{
		interval: time.Second / time.Duration(hz),
		tick:     tick,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

func (c *Clock) Start() {
	c.mu.Lock()
	if c.started || c.stopped {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()
	go c.loop()
}

func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopped {
		return
	}
	c.stopped = true
	close(c.stopCh)
}

func (c *Clock) loop() {
	for {
		select {
		case <-c.stopCh:
			return
		default:
		}

		start := time.Now()
		c.runTick(start.UnixMilli())

		delay := c.interval - time.Since(start)
		if delay < 0 {
			delay = 0
		}
		select {
		case <-c.stopCh:
			return
		case <-time.After(delay):
		}
	}
}

// runTick contains one simulation step; recoverable failures are logged at a
// capped rate and the loop carries on.
func (c *Clock) runTick(nowMs int64) {
	defer func() {
		if rec := recover(); rec != nil {
			if ok, suppressed := c.limiter.Allow(); ok {
				c.log.WithFields(logrus.Fields{"panic": rec, "suppressed": suppressed}).Error("simulation tick panicked")
			}
		}
	}()
	if err := c.tick(nowMs); err != nil {
		if ok, suppressed := c.limiter.Allow(); ok {
			c.log.WithError(err).WithField("suppressed", suppressed).Warn("simulation tick failed")
		}
	}
}
