// Package world defines the seam between the embodiment controllers and the
// remote world. Controllers only ever talk to a Client; the websocket
// transport is one implementation, test fakes are another.
package world

import "worldpilot.ai/internal/protocol"

// Capability names an optional collaborator feature. Controllers ask
// Supports explicitly instead of probing for methods.
type Capability string

const (
	CapNativeJump      Capability = "native_jump"
	CapChat            Capability = "chat"
	CapInitialSnapshot Capability = "initial_snapshot"
)

// Client is the outbound surface of the world collaborator.
type Client interface {
	// SetInputKey records the desired down state for a named control. The
	// remote simulation consumes the coalesced state on the next tick.
	SetInputKey(name string, down bool) error

	// EmbodimentPose returns the last known pose of the agent's own
	// embodiment. It fails until the server has announced one.
	EmbodimentPose() (Pose, error)

	// SendNetworkEvent emits a one-shot application event.
	SendNetworkEvent(event string, payload interface{}) error

	// AdvanceSimulation steps the local side of the simulation: pending
	// input is flushed and per-tick bookkeeping runs.
	AdvanceSimulation(timestampMs int64) error

	Supports(c Capability) bool
}

// Conn is a Client bound to a live connection.
type Conn interface {
	Client
	Close() error
}

// ConnInfo describes the session the server granted.
type ConnInfo struct {
	AgentID string
	WorldID string
}

// Events are the inbound callbacks a connection invokes from its reader
// goroutine. Callbacks run sequentially; in-batch order is preserved.
type Events struct {
	EntityAdded    func(e protocol.Entity)
	EntityModified func(id string, patch protocol.EntityPatch, full *protocol.Entity)
	EntityRemoved  func(id string)
	ChatBatch      func(msgs []protocol.ChatMessage)
	Disconnected   func(reason string)
}

// DialFunc opens a connection to a world. The lifecycle depends on this,
// not on a concrete transport.
type DialFunc func(url, agentName, sessionID string, ev Events) (Conn, ConnInfo, error)
