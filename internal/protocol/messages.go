package protocol

// HELLO (client -> server)
type HelloMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	AgentName       string            `json:"agent_name"`
	SessionID       string            `json:"session_id,omitempty"`
	Capabilities    HelloCapabilities `json:"capabilities"`
	Auth            *HelloAuth        `json:"auth,omitempty"`
}

type HelloCapabilities struct {
	ChatBatch bool `json:"chat_batch,omitempty"`
	MaxQueue  int  `json:"max_queue,omitempty"`
}

type HelloAuth struct {
	Token string `json:"token,omitempty"`
}

// WELCOME (server -> client)
type WelcomeMsg struct {
	Type               string             `json:"type"`
	ProtocolVersion    string             `json:"protocol_version"`
	AgentID            string             `json:"agent_id"`
	WorldID            string             `json:"world_id"`
	ServerCapabilities ServerCapabilities `json:"server_capabilities,omitempty"`
	WorldParams        WorldParams        `json:"world_params"`
}

type ServerCapabilities struct {
	NativeJump      bool `json:"native_jump,omitempty"`
	Chat            bool `json:"chat,omitempty"`
	InitialSnapshot bool `json:"initial_snapshot,omitempty"`
}

type WorldParams struct {
	TickRateHz int     `json:"tick_rate_hz"`
	MoveSpeed  float64 `json:"move_speed,omitempty"`
	Seed       int64   `json:"seed,omitempty"`
}

// INPUT (client -> server): the coalesced key state for one simulation tick.
// Only the keys whose state changed since the previous INPUT are listed.
type InputMsg struct {
	Type            string          `json:"type"`
	ProtocolVersion string          `json:"protocol_version"`
	AgentID         string          `json:"agent_id"`
	TimestampMs     int64           `json:"timestamp_ms"`
	Keys            map[string]bool `json:"keys"`
}

// NET_EVENT (client -> server): a one-shot application event, e.g. a jump
// impulse or a state snapshot request.
type NetEventMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	AgentID         string      `json:"agent_id"`
	Event           string      `json:"event"`
	Payload         interface{} `json:"payload,omitempty"`
}

// DISCONNECT (server -> client)
type DisconnectMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Reason          string `json:"reason,omitempty"`
}
