package state

import (
	"sync"

	"github.com/sirupsen/logrus"

	"worldpilot.ai/internal/protocol"
)

// ChatHandler consumes one deduplicated message. A panic in the handler is
// contained to that message.
type ChatHandler func(msg protocol.ChatMessage)

// ChatArchiver persists dispatched messages. Failures are logged, never
// propagated into dispatch.
type ChatArchiver interface {
	Archive(msg protocol.ChatMessage)
}

// ChatDeduper guarantees each inbound message is handled exactly once even
// though the server may re-deliver the full visible history in every batch.
// It lives for one connection session; reconnects build a fresh one.
type ChatDeduper struct {
	connectedAtMs int64
	handler       ChatHandler
	archive       ChatArchiver
	log           *logrus.Entry

	mu        sync.Mutex
	processed map[string]struct{}
}

// NewChatDeduper scopes deduplication to a session that connected at
// connectedAtMs. Messages created at or before that instant are suppressed
// forever. archive may be nil.
func NewChatDeduper(connectedAtMs int64, handler ChatHandler, archive ChatArchiver, log *logrus.Entry) *ChatDeduper {
	return &ChatDeduper{
		connectedAtMs: connectedAtMs,
		handler:       handler,
		archive:       archive,
		log:           log,
		processed:     make(map[string]struct{}),
	}
}

// OnBatch ingests one message batch, preserving in-batch order. An id is
// marked processed before its dispatch runs, so an overlapping replay of the
// same batch cannot double-dispatch.
func (d *ChatDeduper) OnBatch(msgs []protocol.ChatMessage) {
	for _, m := range msgs {
		d.mu.Lock()
		if _, seen := d.processed[m.ID]; seen {
			d.mu.Unlock()
			continue
		}
		d.processed[m.ID] = struct{}{}
		d.mu.Unlock()

		if m.CreatedAtMs <= d.connectedAtMs {
			// Pre-connect history: marked processed above so later batches
			// spanning the connect boundary skip it cheaply, never dispatched.
			continue
		}
		d.dispatch(m)
	}
}

func (d *ChatDeduper) dispatch(m protocol.ChatMessage) {
	defer func() {
		if rec := recover(); rec != nil {
			d.log.WithFields(logrus.Fields{"id": m.ID, "panic": rec}).Error("chat handler failed")
		}
	}()
	if d.archive != nil {
		d.archive.Archive(m)
	}
	if d.handler != nil {
		d.handler(m)
	}
}

// Seen reports whether an id has already been processed.
func (d *ChatDeduper) Seen(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.processed[id]
	return ok
}

// Len is the number of processed ids.
func (d *ChatDeduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.processed)
}
