package control

import (
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/logx"
	"worldpilot.ai/internal/world"
)

// NavigationConfig tunes the steering loop. Zero values fall back to the
// defaults below.
type NavigationConfig struct {
	TickInterval  time.Duration
	StopDistance  float64
	TurnThreshold float64 // radians; beyond this, turn in place
	SteerDeadband float64 // radians; within this, no strafing
}

const (
	DefaultNavTickInterval = 100 * time.Millisecond
	DefaultStopDistance    = 1.0
)

func (c NavigationConfig) withDefaults() NavigationConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultNavTickInterval
	}
	if c.StopDistance <= 0 {
		c.StopDistance = DefaultStopDistance
	}
	if c.TurnThreshold <= 0 {
		c.TurnThreshold = 45 * math.Pi / 180
	}
	if c.SteerDeadband <= 0 {
		c.SteerDeadband = 10 * math.Pi / 180
	}
	return c
}

// Target is a planar destination; height is the simulation's business.
type Target struct {
	X, Z float64
}

type navKeys struct {
	forward, backward, left, right bool
}

type navOrigin int

const (
	originUser navOrigin = iota
	originWalker
)

// Navigator steers the embodiment toward a single target by toggling the
// movement buttons each tick. It is the only authority over locomotion state:
// the random walker feeds it targets, never buttons.
type Navigator struct {
	cfg     NavigationConfig
	client  world.Client
	buttons *Registry
	log     *logrus.Entry
	degen   logx.Limiter

	mu         sync.Mutex
	navigating bool
	target     Target
	gen        uint64
	timer      *time.Timer
	lastKeys   navKeys
	onStop     func(StopReason)
	onTakeover func()
}

func NewNavigator(cfg NavigationConfig, client world.Client, buttons *Registry, log *logrus.Entry) *Navigator {
	return &Navigator{
		cfg:     cfg.withDefaults(),
		client:  client,
		buttons: buttons,
		log:     log,
	}
}

// SetStopHook registers the observer called after every genuine stop with the
// reason. The random walker uses this to notice legs ending; it must be set
// before navigation starts.
func (n *Navigator) SetStopHook(fn func(StopReason)) {
	n.mu.Lock()
	n.onStop = fn
	n.mu.Unlock()
}

// SetTakeoverHook registers the observer called whenever a user-issued target
// takes over locomotion, even between walk legs when nothing is navigating
// and no stop fires.
func (n *Navigator) SetTakeoverHook(fn func()) {
	n.mu.Lock()
	n.onTakeover = fn
	n.mu.Unlock()
}

// NavigateTo begins steering toward (x, z), replacing any prior target. An
// active random walk is cancelled through the stop hook.
func (n *Navigator) NavigateTo(x, z float64) {
	n.start(Target{X: x, Z: z}, originUser)
}

// StartLeg is NavigateTo for the random walker: the previous leg is replaced
// without tearing the walk itself down.
func (n *Navigator) StartLeg(x, z float64) {
	n.start(Target{X: x, Z: z}, originWalker)
}

func (n *Navigator) start(t Target, by navOrigin) {
	reason := StopUser
	if by == originWalker {
		reason = StopWalker
	}

	n.mu.Lock()
	hook := n.stopLocked(reason)
	takeover := n.onTakeover
	n.navigating = true
	n.target = t
	n.gen++
	n.armLocked()
	n.mu.Unlock()

	if hook != nil {
		hook(reason)
	}
	if by == originUser && takeover != nil {
		takeover()
	}
	n.log.WithFields(logrus.Fields{"x": t.X, "z": t.Z}).Debug("navigation started")
}

// StopNavigation ends the current leg. Calling it while stopped is a no-op;
// the movement buttons are released exactly once per stop.
func (n *Navigator) StopNavigation(reason StopReason) {
	n.mu.Lock()
	hook := n.stopLocked(reason)
	n.mu.Unlock()
	if hook != nil {
		n.log.WithField("reason", reason.String()).Debug("navigation stopped")
		hook(reason)
	}
}

// stopLocked cancels the tick timer, releases the movement keys and returns
// the stop hook to fire (nil when already stopped). Callers invoke the hook
// after unlocking so the walker can call back in without deadlocking.
func (n *Navigator) stopLocked(reason StopReason) func(StopReason) {
	if !n.navigating {
		return nil
	}
	n.navigating = false
	n.gen++
	if n.timer != nil {
		n.timer.Stop()
		n.timer = nil
	}
	n.releaseKeysLocked()
	hook := n.onStop
	if hook == nil {
		return func(StopReason) {}
	}
	return hook
}

func (n *Navigator) releaseKeysLocked() {
	n.lastKeys = navKeys{}
	n.buttons.Set(ControlForward, false)
	n.buttons.Set(ControlBackward, false)
	n.buttons.Set(ControlLeft, false)
	n.buttons.Set(ControlRight, false)
	n.buttons.Set(ControlRun, false)
}

func (n *Navigator) IsNavigating() bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.navigating
}

// CurrentTarget returns the active target, if any.
func (n *Navigator) CurrentTarget() (Target, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.target, n.navigating
}

func (n *Navigator) armLocked() {
	gen := n.gen
	n.timer = time.AfterFunc(n.cfg.TickInterval, func() { n.onTimer(gen) })
}

// onTimer is the scheduled tick wrapper. A stale generation means the leg it
// was armed for is gone; the fire is then a guaranteed no-op.
func (n *Navigator) onTimer(gen uint64) {
	defer func() {
		if rec := recover(); rec != nil {
			n.log.WithField("panic", rec).Error("navigation tick failed")
			n.StopNavigation(StopError)
		}
	}()

	n.mu.Lock()
	live := n.navigating && gen == n.gen
	n.mu.Unlock()
	if !live {
		return
	}

	if !n.step() {
		return
	}

	n.mu.Lock()
	if n.navigating && gen == n.gen {
		n.armLocked()
	}
	n.mu.Unlock()
}

// step runs one steering evaluation and reports whether the tick should stay
// armed. Split from the timer wrapper so tests can drive it synchronously.
func (n *Navigator) step() bool {
	n.mu.Lock()
	if !n.navigating {
		n.mu.Unlock()
		return false
	}
	target := n.target
	n.mu.Unlock()

	pose, err := n.client.EmbodimentPose()
	if err != nil {
		// Pose unavailable: hold the current button state rather than crash
		// or thrash; the next tick retries.
		if ok, suppressed := n.degen.Allow(); ok {
			n.log.WithError(err).WithField("suppressed", suppressed).Warn("navigation: pose unavailable, holding")
		}
		return true
	}
	if !pose.Finite() {
		if ok, suppressed := n.degen.Allow(); ok {
			n.log.WithField("suppressed", suppressed).Warn("navigation: non-finite pose, holding")
		}
		return true
	}

	if world.PlanarDistance(pose.Position, world.Vec3{X: target.X, Z: target.Z}) <= n.cfg.StopDistance {
		n.StopNavigation(StopTargetReached)
		return false
	}

	dir, okDir := world.PlanarNormalize(world.Vec3{
		X: target.X - pose.Position.X,
		Z: target.Z - pose.Position.Z,
	})
	fwd, okFwd := world.PlanarNormalize(pose.Orientation.Forward())
	if !okDir || !okFwd {
		// Degenerate geometry: release the movement keys and skip this tick.
		n.applyKeys(navKeys{})
		if ok, suppressed := n.degen.Allow(); ok {
			n.log.WithField("suppressed", suppressed).Warn("navigation: degenerate heading, holding position")
		}
		return true
	}

	angle := world.SignedHeadingAngle(fwd, dir)

	var keys navKeys
	if math.Abs(angle) > n.cfg.TurnThreshold {
		// Way off heading: rotate in place, no forward motion.
		if angle > 0 {
			keys.left = true
		} else {
			keys.right = true
		}
	} else {
		keys.forward = true
		if angle > n.cfg.SteerDeadband {
			keys.left = true
		} else if angle < -n.cfg.SteerDeadband {
			keys.right = true
		}
	}
	n.applyKeys(keys)
	return true
}

// applyKeys writes only the buttons that differ from the last applied set.
// The run modifier is always driven up in this mode.
func (n *Navigator) applyKeys(keys navKeys) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.navigating {
		// Stopped between step and apply; the stop already released keys.
		return
	}
	last := n.lastKeys
	if keys.forward != last.forward {
		n.buttons.Set(ControlForward, keys.forward)
	}
	if keys.backward != last.backward {
		n.buttons.Set(ControlBackward, keys.backward)
	}
	if keys.left != last.left {
		n.buttons.Set(ControlLeft, keys.left)
	}
	if keys.right != last.right {
		n.buttons.Set(ControlRight, keys.right)
	}
	n.buttons.Set(ControlRun, false)
	n.lastKeys = keys
}
