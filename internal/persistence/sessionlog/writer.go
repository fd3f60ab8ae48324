// Package sessionlog records session telemetry as zstd-compressed JSONL:
// lifecycle transitions, navigation legs and dispatched chat, one entry per
// line, rotated hourly.
package sessionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Entry kinds.
const (
	KindLifecycle = "lifecycle"
	KindNavLeg    = "nav_leg"
	KindChat      = "chat"
	KindSummary   = "summary"
)

// Entry is the envelope around every record.
type Entry struct {
	Kind      string      `json:"kind"`
	SessionID string      `json:"session_id"`
	At        string      `json:"at"`
	Data      interface{} `json:"data,omitempty"`
}

// Writer appends entries for one session. Safe for concurrent use; a nil
// *Writer discards everything, so callers never branch on "logging enabled".
type Writer struct {
	baseDir   string
	sessionID string

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func New(baseDir, sessionID string) *Writer {
	if baseDir == "" {
		return nil
	}
	return &Writer{baseDir: baseDir, sessionID: sessionID}
}

func (w *Writer) Write(kind string, data interface{}) error {
	if w == nil {
		return nil
	}
	entry := Entry{
		Kind:      kind,
		SessionID: w.sessionID,
		At:        time.Now().UTC().Format(time.RFC3339Nano),
		Data:      data,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathForHour(hour)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	// A write after close reopens the hour's file in append mode instead of
	// hitting a dead buffer.
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("session-%s-%s.jsonl.zst", w.sessionID, hour))
}
