package control

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/world"
)

const (
	DefaultJumpCooldown = time.Second
	DefaultJumpFlight   = 800 * time.Millisecond
	defaultJumpImpulse  = 5.0
)

// MotionConfig tunes the one-shot actions.
type MotionConfig struct {
	JumpCooldown time.Duration
	JumpFlight   time.Duration
	JumpImpulse  float64
}

func (c MotionConfig) withDefaults() MotionConfig {
	if c.JumpCooldown <= 0 {
		c.JumpCooldown = DefaultJumpCooldown
	}
	if c.JumpFlight <= 0 {
		c.JumpFlight = DefaultJumpFlight
	}
	if c.JumpImpulse <= 0 {
		c.JumpImpulse = defaultJumpImpulse
	}
	return c
}

// Motion owns the jump and crouch actions. At most one jump is in flight and
// a cooldown gates re-entry; crouch cannot persist while a jump is airborne.
type Motion struct {
	cfg     MotionConfig
	client  world.Client
	buttons *Registry
	log     *logrus.Entry

	mu        sync.Mutex
	jumping   bool
	crouching bool
	lastJump  time.Time
	gen       uint64
	timer     *time.Timer
}

func NewMotion(cfg MotionConfig, client world.Client, buttons *Registry, log *logrus.Entry) *Motion {
	return &Motion{
		cfg:     cfg.withDefaults(),
		client:  client,
		buttons: buttons,
		log:     log,
	}
}

// Jump fires a single jump. It reports false, without side effects, while a
// jump is already in flight or the cooldown has not elapsed. The in-flight
// window clears after the configured flight duration regardless of what the
// remote simulation did with the impulse.
func (m *Motion) Jump() bool {
	m.mu.Lock()
	now := time.Now()
	if m.jumping {
		m.mu.Unlock()
		m.log.Debug("jump rejected: already in flight")
		return false
	}
	if !m.lastJump.IsZero() && now.Sub(m.lastJump) < m.cfg.JumpCooldown {
		m.mu.Unlock()
		m.log.Debug("jump rejected: cooling down")
		return false
	}
	m.jumping = true
	m.lastJump = now
	if m.crouching {
		// Jump wins over crouch.
		m.crouching = false
		m.buttons.Set(ControlCrouch, false)
	}
	m.gen++
	gen := m.gen
	m.timer = time.AfterFunc(m.cfg.JumpFlight, func() { m.endFlight(gen) })
	m.mu.Unlock()

	if m.client.Supports(world.CapNativeJump) {
		m.buttons.Set(ControlJump, true)
	} else if err := m.client.SendNetworkEvent("jump_impulse", map[string]float64{"y": m.cfg.JumpImpulse}); err != nil {
		m.log.WithError(err).Warn("jump impulse send failed")
	}
	return true
}

func (m *Motion) endFlight(gen uint64) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	m.jumping = false
	m.timer = nil
	m.mu.Unlock()
	m.buttons.Set(ControlJump, false)
}

// ToggleCrouch flips the crouch state. It needs a readable pose and refuses
// (as a no-op, not an error) while a jump is in flight.
func (m *Motion) ToggleCrouch() error {
	pose, err := m.client.EmbodimentPose()
	if err != nil {
		return fmt.Errorf("crouch: %w", err)
	}
	if !pose.Finite() {
		return fmt.Errorf("crouch: non-finite pose")
	}

	m.mu.Lock()
	if m.jumping {
		m.mu.Unlock()
		m.log.Debug("crouch rejected: jump in flight")
		return nil
	}
	m.crouching = !m.crouching
	down := m.crouching
	m.mu.Unlock()

	m.buttons.Set(ControlCrouch, down)
	return nil
}

func (m *Motion) IsJumping() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jumping
}

func (m *Motion) IsCrouching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.crouching
}

// Close cancels the pending flight reset and clears motion state. The jump
// cooldown is time-based only and needs no cancellation.
func (m *Motion) Close() {
	m.mu.Lock()
	m.gen++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	m.jumping = false
	m.crouching = false
	m.mu.Unlock()
	m.buttons.Set(ControlJump, false)
	m.buttons.Set(ControlCrouch, false)
}
