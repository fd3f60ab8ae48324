package state

import (
	"testing"

	"worldpilot.ai/internal/protocol"
)

type recordingArchive struct {
	ids []string
}

func (a *recordingArchive) Archive(m protocol.ChatMessage) { a.ids = append(a.ids, m.ID) }

func chatMsg(id string, createdAtMs int64) protocol.ChatMessage {
	return protocol.ChatMessage{ID: id, Body: "b-" + id, CreatedAtMs: createdAtMs}
}

func TestChatDeduper_OverlappingBatchesDispatchOnce(t *testing.T) {
	var got []string
	d := NewChatDeduper(1000, func(m protocol.ChatMessage) { got = append(got, m.ID) }, nil, testLog())

	// Five batches, each replaying the full history plus one new message.
	history := []protocol.ChatMessage{}
	for i := 1; i <= 5; i++ {
		history = append(history, chatMsg(string(rune('a'+i-1)), int64(1000+i)))
		batch := make([]protocol.ChatMessage, len(history))
		copy(batch, history)
		d.OnBatch(batch)
	}

	if len(got) != 5 {
		t.Fatalf("dispatched %d messages, want 5: %v", len(got), got)
	}
	for i, id := range []string{"a", "b", "c", "d", "e"} {
		if got[i] != id {
			t.Fatalf("order: got %v", got)
		}
	}
}

func TestChatDeduper_PreConnectHistoryNeverDispatched(t *testing.T) {
	var got []string
	d := NewChatDeduper(1000, func(m protocol.ChatMessage) { got = append(got, m.ID) }, nil, testLog())

	d.OnBatch([]protocol.ChatMessage{
		chatMsg("old", 500),
		chatMsg("boundary", 1000),
		chatMsg("new", 1001),
	})
	if len(got) != 1 || got[0] != "new" {
		t.Fatalf("dispatched: %v", got)
	}

	// The suppressed ids are remembered, so a replay stays cheap and silent.
	if !d.Seen("old") || !d.Seen("boundary") {
		t.Fatalf("pre-connect ids not marked processed")
	}
	d.OnBatch([]protocol.ChatMessage{chatMsg("old", 500)})
	if len(got) != 1 {
		t.Fatalf("pre-connect replay dispatched: %v", got)
	}
}

func TestChatDeduper_InBatchOrderPreserved(t *testing.T) {
	var got []string
	d := NewChatDeduper(0, func(m protocol.ChatMessage) { got = append(got, m.ID) }, nil, testLog())

	d.OnBatch([]protocol.ChatMessage{
		chatMsg("z", 30), chatMsg("a", 10), chatMsg("m", 20),
	})
	if len(got) != 3 || got[0] != "z" || got[1] != "a" || got[2] != "m" {
		t.Fatalf("order: %v", got)
	}
}

func TestChatDeduper_HandlerPanicIsolated(t *testing.T) {
	var got []string
	d := NewChatDeduper(0, func(m protocol.ChatMessage) {
		if m.ID == "bad" {
			panic("boom")
		}
		got = append(got, m.ID)
	}, nil, testLog())

	d.OnBatch([]protocol.ChatMessage{
		chatMsg("one", 1), chatMsg("bad", 2), chatMsg("two", 3),
	})
	if len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Fatalf("dispatched: %v", got)
	}
	// The poisoned id still counts as processed.
	if !d.Seen("bad") {
		t.Fatalf("panicking message not marked processed")
	}
	d.OnBatch([]protocol.ChatMessage{chatMsg("bad", 2)})
	if len(got) != 2 {
		t.Fatalf("replayed poisoned message dispatched")
	}
}

func TestChatDeduper_ArchiveBeforeHandler(t *testing.T) {
	archive := &recordingArchive{}
	var handled []string
	d := NewChatDeduper(0, func(m protocol.ChatMessage) {
		if len(archive.ids) != len(handled)+1 {
			t.Fatalf("handler ran before archive for %s", m.ID)
		}
		handled = append(handled, m.ID)
	}, archive, testLog())

	d.OnBatch([]protocol.ChatMessage{chatMsg("one", 1), chatMsg("two", 2)})
	if len(archive.ids) != 2 || len(handled) != 2 {
		t.Fatalf("archive=%v handled=%v", archive.ids, handled)
	}
}

func TestChatDeduper_NilHandlerAndArchive(t *testing.T) {
	d := NewChatDeduper(0, nil, nil, testLog())
	d.OnBatch([]protocol.ChatMessage{chatMsg("one", 1)})
	if d.Len() != 1 {
		t.Fatalf("len: %d", d.Len())
	}
}
