// Package ws implements the world collaborator over a websocket: it dials,
// performs the HELLO/WELCOME handshake, decodes the inbound event stream into
// callbacks and coalesces outbound input per simulation tick.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/protocol"
	"worldpilot.ai/internal/world"
)

const (
	writeWait     = 5 * time.Second
	readWait      = 60 * time.Second
	dialAttempts  = 12
	dialRetryWait = 180 * time.Millisecond
	outQueueSize  = 64
)

var errClosed = errors.New("connection closed")

// Client is a live connection implementing world.Conn.
type Client struct {
	conn    *websocket.Conn
	log     *logrus.Entry
	ev      world.Events
	agentID string
	worldID string
	caps    protocol.ServerCapabilities

	out        chan []byte
	done       chan struct{}
	closeOnce  sync.Once
	notifyOnce sync.Once

	mu       sync.Mutex
	closed   bool
	pose     world.Pose
	havePose bool
	pending  map[string]bool
}

// Dial connects, handshakes and starts the reader/writer goroutines. Event
// callbacks fire on the reader goroutine, sequentially.
func Dial(ctx context.Context, url, agentName, sessionID string, ev world.Events, log *logrus.Entry) (*Client, world.ConnInfo, error) {
	conn, err := dialWithRetry(ctx, url)
	if err != nil {
		return nil, world.ConnInfo{}, err
	}

	welcome, err := handshake(conn, agentName, sessionID)
	if err != nil {
		_ = conn.Close()
		return nil, world.ConnInfo{}, err
	}

	c := &Client{
		conn:    conn,
		log:     log,
		ev:      ev,
		agentID: welcome.AgentID,
		worldID: welcome.WorldID,
		caps:    welcome.ServerCapabilities,
		out:     make(chan []byte, outQueueSize),
		done:    make(chan struct{}),
		pending: make(map[string]bool),
	}
	go c.writeLoop()
	go c.readLoop()

	return c, world.ConnInfo{AgentID: welcome.AgentID, WorldID: welcome.WorldID}, nil
}

func dialWithRetry(ctx context.Context, url string) (*websocket.Conn, error) {
	if !strings.HasPrefix(url, "ws://") && !strings.HasPrefix(url, "wss://") {
		return nil, fmt.Errorf("invalid ws url: %s", url)
	}
	var lastErr error
	for attempt := 0; attempt < dialAttempts; attempt++ {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err == nil {
			return conn, nil
		}
		lastErr = err
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(dialRetryWait):
		}
	}
	return nil, lastErr
}

func handshake(conn *websocket.Conn, agentName, sessionID string) (protocol.WelcomeMsg, error) {
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		AgentName:       agentName,
		SessionID:       sessionID,
		Capabilities: protocol.HelloCapabilities{
			ChatBatch: true,
			MaxQueue:  outQueueSize,
		},
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("send HELLO: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(writeWait))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("await WELCOME: %w", err)
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeWelcome {
		return protocol.WelcomeMsg{}, fmt.Errorf("expected WELCOME, got %q", base.Type)
	}
	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(msg, &welcome); err != nil {
		return protocol.WelcomeMsg{}, fmt.Errorf("decode WELCOME: %w", err)
	}
	if welcome.ProtocolVersion != protocol.Version {
		return protocol.WelcomeMsg{}, fmt.Errorf("protocol version mismatch: %s", welcome.ProtocolVersion)
	}
	return welcome, nil
}

func (c *Client) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case b := <-c.out:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				c.notifyDisconnected("write: " + err.Error())
				return
			}
		}
	}
}

func (c *Client) readLoop() {
	for {
		_ = c.conn.SetReadDeadline(time.Now().Add(readWait))
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			c.notifyDisconnected("read: " + err.Error())
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeEntityAdded:
			var m protocol.EntityAddedMsg
			if json.Unmarshal(msg, &m) != nil {
				continue
			}
			c.trackSelf(m.Entity.ID, protocol.EntityPatch{}, &m.Entity)
			if c.ev.EntityAdded != nil {
				c.ev.EntityAdded(m.Entity)
			}
		case protocol.TypeEntityModified:
			var m protocol.EntityModifiedMsg
			if json.Unmarshal(msg, &m) != nil {
				continue
			}
			c.trackSelf(m.ID, m.Patch, m.Entity)
			if c.ev.EntityModified != nil {
				c.ev.EntityModified(m.ID, m.Patch, m.Entity)
			}
		case protocol.TypeEntityRemoved:
			var m protocol.EntityRemovedMsg
			if json.Unmarshal(msg, &m) != nil {
				continue
			}
			if c.ev.EntityRemoved != nil {
				c.ev.EntityRemoved(m.ID)
			}
		case protocol.TypeChatBatch:
			var m protocol.ChatBatchMsg
			if json.Unmarshal(msg, &m) != nil {
				continue
			}
			if c.ev.ChatBatch != nil {
				c.ev.ChatBatch(m.Messages)
			}
		case protocol.TypeDisconnect:
			var m protocol.DisconnectMsg
			_ = json.Unmarshal(msg, &m)
			c.notifyDisconnected(m.Reason)
			return
		}
	}
}

// trackSelf mirrors the server's view of our own embodiment so pose reads
// are local and cheap.
func (c *Client) trackSelf(id string, patch protocol.EntityPatch, full *protocol.Entity) {
	if id != c.agentID {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.havePose {
		c.pose.Orientation = world.Quat{W: 1}
	}
	if full != nil {
		if full.Position != nil {
			c.pose.Position = world.Vec3{X: full.Position[0], Y: full.Position[1], Z: full.Position[2]}
			c.havePose = true
		}
		if full.Rotation != nil {
			c.pose.Orientation = world.Quat{X: full.Rotation[0], Y: full.Rotation[1], Z: full.Rotation[2], W: full.Rotation[3]}
		}
		return
	}
	if patch.Position != nil {
		c.pose.Position = world.Vec3{X: patch.Position[0], Y: patch.Position[1], Z: patch.Position[2]}
		c.havePose = true
	}
	if patch.Rotation != nil {
		c.pose.Orientation = world.Quat{X: patch.Rotation[0], Y: patch.Rotation[1], Z: patch.Rotation[2], W: patch.Rotation[3]}
	}
}

// SetInputKey records the desired key state; the coalesced set goes out with
// the next AdvanceSimulation.
func (c *Client) SetInputKey(name string, down bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errClosed
	}
	c.pending[name] = down
	return nil
}

func (c *Client) EmbodimentPose() (world.Pose, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.havePose {
		return world.Pose{}, errors.New("embodiment pose not yet known")
	}
	return c.pose, nil
}

func (c *Client) SendNetworkEvent(event string, payload interface{}) error {
	msg := protocol.NetEventMsg{
		Type:            protocol.TypeNetEvent,
		ProtocolVersion: protocol.Version,
		AgentID:         c.agentID,
		Event:           event,
		Payload:         payload,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

// AdvanceSimulation flushes the pending input state as one INPUT message.
// Nothing is sent on ticks where no key changed.
func (c *Client) AdvanceSimulation(timestampMs int64) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return errClosed
	}
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return nil
	}
	keys := c.pending
	c.pending = make(map[string]bool)
	c.mu.Unlock()

	msg := protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		AgentID:         c.agentID,
		TimestampMs:     timestampMs,
		Keys:            keys,
	}
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.enqueue(b)
}

func (c *Client) Supports(cap world.Capability) bool {
	switch cap {
	case world.CapNativeJump:
		return c.caps.NativeJump
	case world.CapChat:
		return c.caps.Chat
	case world.CapInitialSnapshot:
		return c.caps.InitialSnapshot
	default:
		return false
	}
}

func (c *Client) enqueue(b []byte) error {
	select {
	case <-c.done:
		return errClosed
	case c.out <- b:
		return nil
	default:
		return errors.New("send queue full")
	}
}

func (c *Client) notifyDisconnected(reason string) {
	c.notifyOnce.Do(func() {
		c.mu.Lock()
		closed := c.closed
		c.mu.Unlock()
		_ = c.Close()
		if closed {
			// Locally initiated; the lifecycle already knows.
			return
		}
		c.log.WithField("reason", reason).Warn("connection lost")
		if c.ev.Disconnected != nil {
			c.ev.Disconnected(reason)
		}
	})
}

// Close is idempotent and safe to interleave with a remote close.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
	return nil
}
