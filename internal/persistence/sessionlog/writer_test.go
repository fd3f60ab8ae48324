package sessionlog

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
)

func readEntries(t *testing.T, path string) []Entry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		t.Fatalf("zstd reader: %v", err)
	}
	defer dec.Close()

	var out []Entry
	sc := bufio.NewScanner(dec)
	for sc.Scan() {
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("unmarshal %q: %v", sc.Text(), err)
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		t.Fatalf("scan: %v", err)
	}
	return out
}

func TestWriter_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	w := New(dir, "s-1")

	if err := w.Write(KindLifecycle, map[string]string{"state": "connected"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Write(KindNavLeg, map[string]float64{"x": 1, "z": 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, err := filepath.Glob(filepath.Join(dir, "session-s-1-*.jsonl.zst"))
	if err != nil || len(matches) != 1 {
		t.Fatalf("files: %v err=%v", matches, err)
	}

	entries := readEntries(t, matches[0])
	if len(entries) != 2 {
		t.Fatalf("entries: %d", len(entries))
	}
	if entries[0].Kind != KindLifecycle || entries[0].SessionID != "s-1" || entries[0].At == "" {
		t.Fatalf("entry: %+v", entries[0])
	}
	if entries[1].Kind != KindNavLeg {
		t.Fatalf("entry: %+v", entries[1])
	}
	data, ok := entries[1].Data.(map[string]interface{})
	if !ok || data["x"].(float64) != 1 {
		t.Fatalf("data: %+v", entries[1].Data)
	}
}

func TestWriter_AppendAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	w := New(dir, "s-1")
	if err := w.Write(KindChat, map[string]string{"id": "m1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Same session id within the same hour reuses the file in append mode.
	w2 := New(dir, "s-1")
	if err := w2.Write(KindChat, map[string]string{"id": "m2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w2.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(dir, "session-s-1-*.jsonl.zst"))
	if len(matches) != 1 {
		t.Fatalf("files: %v", matches)
	}
	entries := readEntries(t, matches[0])
	if len(entries) != 2 {
		t.Fatalf("entries after append: %d", len(entries))
	}
}

func TestWriter_NilDiscardsEverything(t *testing.T) {
	w := New("", "s-1")
	if w != nil {
		t.Fatalf("empty dir should yield nil writer")
	}
	if err := w.Write(KindSummary, nil); err != nil {
		t.Fatalf("nil write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("nil close: %v", err)
	}
}

func TestWriter_CreatesBaseDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "logs")
	w := New(dir, "s-1")
	if err := w.Write(KindLifecycle, nil); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	matches, _ := filepath.Glob(filepath.Join(dir, "*.jsonl.zst"))
	if len(matches) != 1 {
		t.Fatalf("files: %v", matches)
	}
}
