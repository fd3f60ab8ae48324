package session

import (
	"time"

	"worldpilot.ai/internal/control"
	"worldpilot.ai/internal/persistence/sessionlog"
)

func msToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// The public control surface the action/provider adapters call. Every method
// requires a live session; outside one the mutating calls return
// ErrNotConnected and the reads report the inert value.

func (m *Manager) NavigateTo(x, z float64) error {
	m.mu.Lock()
	nav, slog := m.nav, m.slog
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || nav == nil {
		return ErrNotConnected
	}
	nav.NavigateTo(x, z)
	_ = slog.Write(sessionlog.KindNavLeg, map[string]float64{"x": x, "z": z})
	return nil
}

func (m *Manager) StopNavigation() error {
	m.mu.Lock()
	nav := m.nav
	m.mu.Unlock()
	if nav == nil {
		return ErrNotConnected
	}
	nav.StopNavigation(control.StopUser)
	return nil
}

func (m *Manager) IsNavigating() bool {
	m.mu.Lock()
	nav := m.nav
	m.mu.Unlock()
	return nav != nil && nav.IsNavigating()
}

// StartRandomWalk restarts the walk with the given knobs; interval <= 0 and
// maxDistance < 0 select the configured defaults.
func (m *Manager) StartRandomWalk(interval, maxDistance float64) error {
	m.mu.Lock()
	walker := m.walker
	cfg := m.cfg
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || walker == nil {
		return ErrNotConnected
	}
	iv := cfg.WalkInterval()
	if interval > 0 {
		iv = msToDuration(interval)
	}
	dist := cfg.RandomWalk.MaxDistance
	if maxDistance >= 0 {
		dist = maxDistance
	}
	walker.Start(iv, dist)
	return nil
}

func (m *Manager) StopRandomWalk() error {
	m.mu.Lock()
	walker := m.walker
	m.mu.Unlock()
	if walker == nil {
		return ErrNotConnected
	}
	walker.Stop(control.StopUser)
	return nil
}

func (m *Manager) IsWalkingRandomly() bool {
	m.mu.Lock()
	walker := m.walker
	m.mu.Unlock()
	return walker != nil && walker.IsWalking()
}

// Jump reports whether the jump was accepted; a rejection (cooldown, already
// airborne) is a quiet false, not an error.
func (m *Manager) Jump() (bool, error) {
	m.mu.Lock()
	motion := m.motion
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || motion == nil {
		return false, ErrNotConnected
	}
	return motion.Jump(), nil
}

func (m *Manager) ToggleCrouch() error {
	m.mu.Lock()
	motion := m.motion
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || motion == nil {
		return ErrNotConnected
	}
	return motion.ToggleCrouch()
}

func (m *Manager) IsJumping() bool {
	m.mu.Lock()
	motion := m.motion
	m.mu.Unlock()
	return motion != nil && motion.IsJumping()
}

func (m *Manager) IsCrouching() bool {
	m.mu.Lock()
	motion := m.motion
	m.mu.Unlock()
	return motion != nil && motion.IsCrouching()
}

// SetKey drives a raw control directly, bypassing navigation.
func (m *Manager) SetKey(name string, down bool) error {
	m.mu.Lock()
	buttons := m.buttons
	connected := m.state == StateConnected
	m.mu.Unlock()
	if !connected || buttons == nil {
		return ErrNotConnected
	}
	buttons.Set(name, down)
	return nil
}
