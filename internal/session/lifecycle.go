package session

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/config"
	"worldpilot.ai/internal/control"
	"worldpilot.ai/internal/logx"
	"worldpilot.ai/internal/persistence/chatdb"
	"worldpilot.ai/internal/persistence/sessionlog"
	"worldpilot.ai/internal/protocol"
	"worldpilot.ai/internal/state"
	"worldpilot.ai/internal/world"
)

// ErrNotConnected is returned by the control surface outside a live session.
var ErrNotConnected = errors.New("not connected")

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// Session identifies one connect/disconnect cycle. ConnectedAt is the chat
// replay horizon: nothing created at or before it is ever dispatched.
type Session struct {
	ID          string
	WorldID     string
	AgentID     string
	WSURL       string
	ConnectedAt time.Time
}

// Manager orchestrates construction and teardown of every component around a
// connect/disconnect cycle. All component state is created on connect and
// destroyed on disconnect; nothing survives a reconnect.
type Manager struct {
	cfg         config.Config
	dial        world.DialFunc
	chatHandler state.ChatHandler
	log         *logrus.Entry

	keyErr  logx.Limiter
	pollErr logx.Limiter

	mu       sync.Mutex
	state    State
	sess     Session
	conn     world.Conn
	buttons  *control.Registry
	nav      *control.Navigator
	walker   *control.RandomWalker
	motion   *control.Motion
	cache    *state.Cache
	chat     *state.ChatDeduper
	clock    *Clock
	slog     *sessionlog.Writer
	archive  *chatdb.Store
	pollGen  uint64
	pollTick *time.Timer
}

// NewManager wires a lifecycle around a dialer. chatHandler receives each
// deduplicated chat message; nil is allowed.
func NewManager(cfg config.Config, dial world.DialFunc, chatHandler state.ChatHandler, log *logrus.Entry) *Manager {
	return &Manager{
		cfg:         cfg,
		dial:        dial,
		chatHandler: chatHandler,
		log:         log,
	}
}

// Connect establishes a session. An already-active session is forcibly
// disconnected first; there are never two live sessions. Any failure on the
// way up triggers a full teardown before the error is returned, so no
// partially-initialized state is left live.
func (m *Manager) Connect() error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		m.log.Warn("connect requested with active session, disconnecting first")
		m.teardown("reconnect")
		m.mu.Lock()
	}
	m.state = StateConnecting
	m.mu.Unlock()

	if err := m.connect(); err != nil {
		m.teardown("connect failed")
		return fmt.Errorf("connect: %w", err)
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// The remote hung up while we were still wiring up.
		m.mu.Unlock()
		return errors.New("connect: connection lost during setup")
	}
	m.state = StateConnected
	sess := m.sess
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": sess.ID,
		"world_id":   sess.WorldID,
		"agent_id":   sess.AgentID,
	}).Info("connected")
	return nil
}

func (m *Manager) connect() error {
	sessionID := uuid.NewString()
	connectedAt := time.Now()

	slog := sessionlog.New(m.cfg.SessionLogDir, sessionID)

	var archive *chatdb.Store
	if m.cfg.ChatDBPath != "" {
		a, err := chatdb.Open(m.cfg.ChatDBPath, sessionID)
		if err != nil {
			// The archive is a backstop, not a dependency; run without it.
			m.log.WithError(err).Warn("chat archive unavailable")
		} else {
			archive = a
		}
	}

	cache := state.NewCache(nil, m.log.WithField("component", "cache"))
	var archiver state.ChatArchiver
	if archive != nil {
		archiver = archive
	}
	handler := m.chatHandler
	chatHandler := func(msg protocol.ChatMessage) {
		_ = slog.Write(sessionlog.KindChat, map[string]interface{}{
			"id": msg.ID, "from": msg.From, "body": msg.Body,
		})
		if handler != nil {
			handler(msg)
		}
	}
	chat := state.NewChatDeduper(connectedAt.UnixMilli(), chatHandler, archiver, m.log.WithField("component", "chat"))

	m.mu.Lock()
	m.sess = Session{ID: sessionID, WSURL: m.cfg.WSURL, ConnectedAt: connectedAt}
	m.cache = cache
	m.chat = chat
	m.slog = slog
	m.archive = archive
	m.mu.Unlock()

	ev := world.Events{
		EntityAdded:    cache.OnEntityAdded,
		EntityModified: cache.OnEntityModified,
		EntityRemoved:  cache.OnEntityRemoved,
		ChatBatch:      chat.OnBatch,
		Disconnected:   m.handleRemoteDisconnect,
	}
	conn, info, err := m.dial(m.cfg.WSURL, m.cfg.AgentName, sessionID, ev)
	if err != nil {
		return fmt.Errorf("dial %s: %w", m.cfg.WSURL, err)
	}

	buttons := control.NewRegistry(func(name string, down bool) {
		if err := conn.SetInputKey(name, down); err != nil {
			if ok, suppressed := m.keyErr.Allow(); ok {
				m.log.WithError(err).WithField("suppressed", suppressed).Warn("input key write failed")
			}
		}
	})
	navLog := m.log.WithField("component", "nav")
	nav := control.NewNavigator(control.NavigationConfig{
		TickInterval:  m.cfg.NavTickInterval(),
		StopDistance:  m.cfg.Navigation.StopDistance,
		TurnThreshold: degToRad(m.cfg.Navigation.TurnThresholdDeg),
		SteerDeadband: degToRad(m.cfg.Navigation.SteerDeadbandDeg),
	}, conn, buttons, navLog)
	walker := control.NewRandomWalker(nav, conn, m.log.WithField("component", "walk"))
	motion := control.NewMotion(control.MotionConfig{
		JumpCooldown: m.cfg.JumpCooldown(),
		JumpFlight:   m.cfg.JumpFlight(),
		JumpImpulse:  m.cfg.Motion.JumpImpulse,
	}, conn, buttons, m.log.WithField("component", "motion"))

	clock := NewClock(m.cfg.TickRateHz, func(ts int64) error {
		err := conn.AdvanceSimulation(ts)
		// One clearing pass per logical frame, regardless of who wrote keys.
		buttons.ClearFrame()
		return err
	}, m.log.WithField("component", "clock"))

	m.mu.Lock()
	if m.state != StateConnecting {
		// The remote hung up while we were still wiring up; teardown already
		// ran against the nulled fields, so reap the components built since.
		m.mu.Unlock()
		walker.Stop(control.StopShutdown)
		nav.StopNavigation(control.StopShutdown)
		motion.Close()
		clock.Stop()
		buttons.ReleaseAll()
		_ = conn.Close()
		return errors.New("connection lost during setup")
	}
	m.sess.WorldID = info.WorldID
	m.sess.AgentID = info.AgentID
	m.conn = conn
	m.buttons = buttons
	m.nav = nav
	m.walker = walker
	m.motion = motion
	m.clock = clock
	m.mu.Unlock()

	// Capability-gated initial sync: ask for the full entity state when the
	// server supports it. Failure here is a failed connect.
	if conn.Supports(world.CapInitialSnapshot) {
		if err := conn.SendNetworkEvent("state_request", nil); err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
	}

	m.mu.Lock()
	if m.state != StateConnecting {
		// Teardown raced in after the components were stored; it already
		// reaped them, and Stop keeps the clock from ever starting.
		m.mu.Unlock()
		return errors.New("connection lost during setup")
	}
	clock.Start()
	m.pollGen++
	m.armPollLocked()
	m.mu.Unlock()

	_ = slog.Write(sessionlog.KindLifecycle, map[string]string{
		"state":    "connected",
		"world_id": info.WorldID,
		"agent_id": info.AgentID,
	})
	return nil
}

// Disconnect tears the session down. Safe to call repeatedly and to
// interleave with a remote disconnect.
func (m *Manager) Disconnect() {
	m.teardown("requested")
}

func (m *Manager) handleRemoteDisconnect(reason string) {
	m.teardown("remote: " + reason)
}

// teardown stops every timer, releases every key, clears every cache and
// nulls every reference. Each step is a safe no-op when already done.
func (m *Manager) teardown(reason string) {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return
	}
	m.state = StateDisconnecting
	conn, walker, nav := m.conn, m.walker, m.nav
	motion, clock, buttons := m.motion, m.clock, m.buttons
	cache, slog, archive := m.cache, m.slog, m.archive
	m.pollGen++
	if m.pollTick != nil {
		m.pollTick.Stop()
		m.pollTick = nil
	}
	m.conn, m.walker, m.nav = nil, nil, nil
	m.motion, m.clock, m.buttons = nil, nil, nil
	m.cache, m.chat, m.slog, m.archive = nil, nil, nil, nil
	m.sess = Session{}
	m.state = StateDisconnected
	m.mu.Unlock()

	if walker != nil {
		walker.Stop(control.StopShutdown)
	}
	if nav != nil {
		nav.StopNavigation(control.StopShutdown)
	}
	if motion != nil {
		motion.Close()
	}
	if clock != nil {
		clock.Stop()
	}
	if buttons != nil {
		buttons.ReleaseAll()
	}
	if conn != nil {
		_ = conn.Close()
	}
	if cache != nil {
		cache.Clear()
	}
	if slog != nil {
		_ = slog.Write(sessionlog.KindSummary, map[string]string{"state": "disconnected", "reason": reason})
		_ = slog.Close()
	}
	if archive != nil {
		_ = archive.Close()
	}
	m.log.WithField("reason", reason).Info("disconnected")
}

// Periodic identity/appearance poller. Cancellation is the generation
// counter: a fire after teardown is a guaranteed no-op.
func (m *Manager) armPollLocked() {
	gen := m.pollGen
	m.pollTick = time.AfterFunc(m.cfg.PollInterval(), func() { m.pollOnce(gen) })
}

func (m *Manager) pollOnce(gen uint64) {
	m.mu.Lock()
	if m.state != StateConnected || gen != m.pollGen {
		m.mu.Unlock()
		return
	}
	conn := m.conn
	m.mu.Unlock()

	if err := conn.SendNetworkEvent("profile_sync", nil); err != nil {
		if ok, suppressed := m.pollErr.Allow(); ok {
			m.log.WithError(err).WithField("suppressed", suppressed).Warn("profile poll failed")
		}
	}

	m.mu.Lock()
	if m.state == StateConnected && gen == m.pollGen {
		m.armPollLocked()
	}
	m.mu.Unlock()
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentSession returns the live session, if any.
func (m *Manager) CurrentSession() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sess, m.state == StateConnected
}

// Cache exposes the live entity mirror, nil outside a session.
func (m *Manager) Cache() *state.Cache {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cache
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180
}
