package control

import (
	"errors"
	"testing"
	"time"

	"worldpilot.ai/internal/world"
)

func newTestMotion(c *fakeClient, r *Registry) *Motion {
	return NewMotion(MotionConfig{
		JumpCooldown: time.Hour,
		JumpFlight:   time.Hour,
	}, c, r, testLog())
}

func TestMotion_JumpNativeCapability(t *testing.T) {
	c := newFakeClient()
	c.caps[world.CapNativeJump] = true
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	if !m.Jump() {
		t.Fatalf("first jump refused")
	}
	if !m.IsJumping() {
		t.Fatalf("not in flight after jump")
	}
	if b := r.Get(ControlJump); !b.Down {
		t.Fatalf("jump key not held")
	}
	if c.eventCount() != 0 {
		t.Fatalf("native jump should not emit a network event")
	}
}

func TestMotion_JumpImpulseFallback(t *testing.T) {
	c := newFakeClient()
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	if !m.Jump() {
		t.Fatalf("jump refused")
	}
	if c.eventCount() != 1 {
		t.Fatalf("events: got %d want 1", c.eventCount())
	}
	c.mu.Lock()
	ev := c.events[0]
	c.mu.Unlock()
	if ev.event != "jump_impulse" {
		t.Fatalf("event: %q", ev.event)
	}
	if b := r.Get(ControlJump); b.Down {
		t.Fatalf("fallback jump must not hold the jump key")
	}
}

func TestMotion_JumpRejectedInFlightAndCoolingDown(t *testing.T) {
	c := newFakeClient()
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	if !m.Jump() {
		t.Fatalf("first jump refused")
	}
	if m.Jump() {
		t.Fatalf("second jump accepted while in flight")
	}

	// Land, but stay inside the cooldown window.
	m.endFlight(m.gen)
	if m.IsJumping() {
		t.Fatalf("still in flight after landing")
	}
	if m.Jump() {
		t.Fatalf("jump accepted during cooldown")
	}

	// Cooldown elapsed.
	m.mu.Lock()
	m.lastJump = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()
	if !m.Jump() {
		t.Fatalf("jump refused after cooldown elapsed")
	}
}

func TestMotion_StaleFlightTimerIsNoOp(t *testing.T) {
	c := newFakeClient()
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	m.Jump()
	stale := m.gen
	m.mu.Lock()
	m.lastJump = time.Now().Add(-2 * time.Hour)
	m.mu.Unlock()
	m.endFlight(stale)
	m.Jump()

	// The first flight's timer fires late; the second flight must survive.
	m.endFlight(stale)
	if !m.IsJumping() {
		t.Fatalf("stale flight timer ended the live jump")
	}
}

func TestMotion_CrouchToggle(t *testing.T) {
	c := newFakeClient()
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	if err := m.ToggleCrouch(); err != nil {
		t.Fatalf("crouch: %v", err)
	}
	if !m.IsCrouching() {
		t.Fatalf("not crouching after toggle")
	}
	if b := r.Get(ControlCrouch); !b.Down {
		t.Fatalf("crouch key not held")
	}

	if err := m.ToggleCrouch(); err != nil {
		t.Fatalf("crouch: %v", err)
	}
	if m.IsCrouching() {
		t.Fatalf("still crouching after second toggle")
	}
	if b := r.Get(ControlCrouch); b.Down {
		t.Fatalf("crouch key still held")
	}
}

func TestMotion_CrouchNeedsReadablePose(t *testing.T) {
	c := newFakeClient()
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	c.setPoseErr(errors.New("no pose yet"))
	if err := m.ToggleCrouch(); err == nil {
		t.Fatalf("crouch accepted without a pose")
	}
	if m.IsCrouching() {
		t.Fatalf("crouch state changed despite error")
	}
}

func TestMotion_JumpCancelsCrouch(t *testing.T) {
	c := newFakeClient()
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	if err := m.ToggleCrouch(); err != nil {
		t.Fatalf("crouch: %v", err)
	}
	if !m.Jump() {
		t.Fatalf("jump refused")
	}
	if m.IsCrouching() {
		t.Fatalf("crouch survived the jump")
	}
	if b := r.Get(ControlCrouch); b.Down {
		t.Fatalf("crouch key still held during jump")
	}
}

func TestMotion_CrouchRefusedWhileAirborne(t *testing.T) {
	c := newFakeClient()
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	m.Jump()
	if err := m.ToggleCrouch(); err != nil {
		t.Fatalf("airborne crouch must be a quiet no-op, got %v", err)
	}
	if m.IsCrouching() {
		t.Fatalf("crouch engaged while airborne")
	}
}

func TestMotion_CloseClearsState(t *testing.T) {
	c := newFakeClient()
	c.caps[world.CapNativeJump] = true
	r := NewRegistry(nil)
	m := newTestMotion(c, r)

	m.Jump()
	m.Close()
	if m.IsJumping() || m.IsCrouching() {
		t.Fatalf("state survived Close")
	}
	if b := r.Get(ControlJump); b.Down {
		t.Fatalf("jump key still held after Close")
	}
}
