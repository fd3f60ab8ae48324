// Package chatdb archives dispatched chat messages in SQLite. Writes go
// through a single writer goroutine with a bounded queue so a slow disk can
// never stall chat dispatch; the primary-key constraint doubles as a
// dedup backstop across sessions.
package chatdb

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"worldpilot.ai/internal/protocol"
)

type Store struct {
	db        *sql.DB
	sessionID string

	ch   chan protocol.ChatMessage
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Int64
}

// Open creates or opens the archive at path and binds writes to sessionID.
func Open(path, sessionID string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db:        db,
		sessionID: sessionID,
		ch:        make(chan protocol.ChatMessage, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			from_id TEXT,
			from_name TEXT,
			body TEXT NOT NULL,
			created_at_ms INTEGER NOT NULL,
			archived_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_session_created ON chat_messages(session_id, created_at_ms);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// Archive enqueues one message. Non-blocking: if the writer falls behind the
// message is counted as dropped, never blocks dispatch.
func (s *Store) Archive(msg protocol.ChatMessage) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- msg:
	default:
		s.dropped.Add(1)
	}
}

// Dropped is the number of messages the bounded queue discarded.
func (s *Store) Dropped() int64 {
	if s == nil {
		return 0
	}
	return s.dropped.Load()
}

func (s *Store) loop() {
	for msg := range s.ch {
		s.insert(msg)
	}
}

func (s *Store) insert(msg protocol.ChatMessage) {
	// INSERT OR IGNORE: a replayed id is a no-op, matching the deduper.
	_, _ = s.db.Exec(
		`INSERT OR IGNORE INTO chat_messages (id, session_id, from_id, from_name, body, created_at_ms, archived_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, s.sessionID, msg.FromID, msg.From, msg.Body, msg.CreatedAtMs,
		time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// Recent returns the newest messages archived for a session, oldest first.
func (s *Store) Recent(sessionID string, limit int) ([]protocol.ChatMessage, error) {
	if s == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(
		`SELECT id, from_id, from_name, body, created_at_ms
		 FROM chat_messages WHERE session_id = ?
		 ORDER BY created_at_ms DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.ChatMessage
	for rows.Next() {
		var m protocol.ChatMessage
		if err := rows.Scan(&m.ID, &m.FromID, &m.From, &m.Body, &m.CreatedAtMs); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// Reverse to oldest-first.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Close drains the queue and closes the database. Idempotent.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
