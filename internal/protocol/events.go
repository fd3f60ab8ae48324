package protocol

// Entity kinds the server may announce. Only players feed the display-name
// registry; everything else is cached as-is.
const (
	EntityKindPlayer = "player"
	EntityKindApp    = "app"
	EntityKindItem   = "item"
)

// Entity is the full wire form of one remote entity. Position and Rotation
// are optional: apps without a transform omit them.
type Entity struct {
	ID       string      `json:"id"`
	Kind     string      `json:"kind"`
	Name     string      `json:"name,omitempty"`
	Position *[3]float64 `json:"position,omitempty"`
	Rotation *[4]float64 `json:"rotation,omitempty"`
}

// EntityPatch carries only the fields that changed. Nil means "not touched".
type EntityPatch struct {
	Kind     *string     `json:"kind,omitempty"`
	Name     *string     `json:"name,omitempty"`
	Position *[3]float64 `json:"position,omitempty"`
	Rotation *[4]float64 `json:"rotation,omitempty"`
}

// ENTITY_ADDED (server -> client)
type EntityAddedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Entity          Entity `json:"entity"`
}

// ENTITY_MODIFIED (server -> client). Servers that track full state send
// Entity alongside the patch; the patch alone is a degraded fallback.
type EntityModifiedMsg struct {
	Type            string      `json:"type"`
	ProtocolVersion string      `json:"protocol_version"`
	ID              string      `json:"id"`
	Patch           EntityPatch `json:"patch"`
	Entity          *Entity     `json:"entity,omitempty"`
}

// ENTITY_REMOVED (server -> client)
type EntityRemovedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ID              string `json:"id"`
}

// ChatMessage is one chat line. CreatedAtMs is the server-side creation time;
// batches may replay the full visible history, so consumers dedup by ID.
type ChatMessage struct {
	ID          string `json:"id"`
	FromID      string `json:"from_id,omitempty"`
	From        string `json:"from,omitempty"`
	Body        string `json:"body"`
	CreatedAtMs int64  `json:"created_at_ms"`
}

// CHAT_BATCH (server -> client)
type ChatBatchMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	Messages        []ChatMessage `json:"messages"`
}
