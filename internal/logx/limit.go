// Package logx holds small logging helpers shared by the tick-driven
// components.
package logx

import (
	"sync"
	"time"
)

// Limiter suppresses repeats of a noisy log line. Tick paths that can fail
// every iteration (pose reads, simulation steps) log through one of these so
// a persistent fault produces one line per window, not fifty per second.
type Limiter struct {
	Window time.Duration

	mu         sync.Mutex
	last       time.Time
	suppressed int
}

// Allow reports whether the caller should log now. suppressed is the number
// of occurrences swallowed since the last allowed line.
func (l *Limiter) Allow() (ok bool, suppressed int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	window := l.Window
	if window <= 0 {
		window = 5 * time.Second
	}
	if l.last.IsZero() || now.Sub(l.last) >= window {
		n := l.suppressed
		l.last = now
		l.suppressed = 0
		return true, n
	}
	l.suppressed++
	return false, 0
}
