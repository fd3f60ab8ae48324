package control

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/world"
)

const (
	DefaultWalkInterval    = 5 * time.Second
	DefaultWalkMaxDistance = 7.0

	// The first leg fires shortly after start rather than a full interval
	// later, so a fresh walk visibly begins moving.
	firstLegDelay = 500 * time.Millisecond
)

// RandomWalkConfig is mutable only through a restart.
type RandomWalkConfig struct {
	Interval    time.Duration
	MaxDistance float64
}

// RandomWalker periodically picks a nearby point and hands it to the
// navigator. It is a pure upstream driver: it never touches buttons and
// never stops navigation except through the navigator's own entry points.
type RandomWalker struct {
	nav           *Navigator
	client        world.Client
	log           *logrus.Entry
	defaultOrigin world.Vec3

	mu      sync.Mutex
	cfg     RandomWalkConfig
	running bool
	gen     uint64
	timer   *time.Timer
	rng     *rand.Rand
}

func NewRandomWalker(nav *Navigator, client world.Client, log *logrus.Entry) *RandomWalker {
	w := &RandomWalker{
		nav:    nav,
		client: client,
		log:    log,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	nav.SetStopHook(w.HandleNavigationStop)
	nav.SetTakeoverHook(w.HandleUserTakeover)
	return w
}

// Start schedules random legs. A running walk is stopped first, so a restart
// is always clean. interval <= 0 and maxDistance < 0 select the defaults;
// maxDistance == 0 is honored and degenerates every target to the current
// position.
func (w *RandomWalker) Start(interval time.Duration, maxDistance float64) {
	w.Stop(StopWalker)

	if interval <= 0 {
		interval = DefaultWalkInterval
	}
	if maxDistance < 0 {
		maxDistance = DefaultWalkMaxDistance
	}

	w.mu.Lock()
	w.cfg = RandomWalkConfig{Interval: interval, MaxDistance: maxDistance}
	w.running = true
	w.gen++
	w.armLocked(firstLegDelay)
	w.mu.Unlock()

	w.log.WithFields(logrus.Fields{
		"interval":     interval,
		"max_distance": maxDistance,
	}).Info("random walk started")
}

// Stop cancels the schedule and the in-flight leg. Idempotent. The leg is
// stopped with StopWalker, which the stop hook recognizes as already handled,
// breaking the walker<->navigator stop cycle.
func (w *RandomWalker) Stop(reason StopReason) {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.stopScheduleLocked()
	w.mu.Unlock()

	w.log.WithField("reason", reason.String()).Info("random walk stopped")
	w.nav.StopNavigation(StopWalker)
}

// HandleNavigationStop observes every navigation stop. Walker-issued stops
// and ordinary leg completions keep the walk alive; anything else (user,
// error, shutdown) cancels the schedule without calling back into the
// navigator.
func (w *RandomWalker) HandleNavigationStop(reason StopReason) {
	if reason == StopWalker || reason == StopTargetReached {
		return
	}
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.stopScheduleLocked()
	w.mu.Unlock()
	w.log.WithField("reason", reason.String()).Info("random walk cancelled by navigation stop")
}

// HandleUserTakeover cancels the schedule when a user-issued target takes
// over locomotion. This also covers the window between legs, where no
// navigation is in flight and no stop fires.
func (w *RandomWalker) HandleUserTakeover() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.stopScheduleLocked()
	w.mu.Unlock()
	w.log.Info("random walk cancelled by user navigation")
}

func (w *RandomWalker) IsWalking() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *RandomWalker) stopScheduleLocked() {
	w.running = false
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *RandomWalker) armLocked(d time.Duration) {
	gen := w.gen
	w.timer = time.AfterFunc(d, func() { w.onTimer(gen) })
}

func (w *RandomWalker) onTimer(gen uint64) {
	w.mu.Lock()
	live := w.running && gen == w.gen
	interval := w.cfg.Interval
	w.mu.Unlock()
	if !live {
		return
	}

	w.leg()

	w.mu.Lock()
	if w.running && gen == w.gen {
		w.armLocked(interval)
	}
	w.mu.Unlock()
}

// leg picks one random target around the current position and delegates to
// the navigator. An unreadable pose is a degraded mode, not an error: the
// walk continues around the default origin.
func (w *RandomWalker) leg() {
	origin := w.defaultOrigin
	if pose, err := w.client.EmbodimentPose(); err == nil && pose.Position.Finite() {
		origin = pose.Position
	} else {
		w.log.Debug("random walk: pose unavailable, using default origin")
	}

	w.mu.Lock()
	angle := w.rng.Float64() * 2 * math.Pi
	dist := w.rng.Float64() * w.cfg.MaxDistance
	w.mu.Unlock()

	x := origin.X + math.Cos(angle)*dist
	z := origin.Z + math.Sin(angle)*dist
	w.nav.StartLeg(x, z)
}
