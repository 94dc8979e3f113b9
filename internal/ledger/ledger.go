// Package ledger records build attempts in SQLite.
package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Entry is one finished build attempt.
type Entry struct {
	ID        string        `json:"id"`
	Hash      string        `json:"hash"`
	Name      string        `json:"name"`
	Outcome   string        `json:"outcome"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
	Size      int           `json:"size"`
	Error     string        `json:"error,omitempty"`
}

// Store persists entries. Use ":memory:" for a throwaway database.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens or creates the ledger database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// A single connection keeps ":memory:" databases shared and serializes writers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		name TEXT NOT NULL,
		outcome TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ns INTEGER NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_builds_hash ON builds(hash);
	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record inserts e.
func (s *Store) Record(ctx context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (id, hash, name, outcome, started_at, duration_ns, size, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		e.ID, e.Hash, e.Name, e.Outcome, e.StartedAt.UnixNano(), int64(e.Duration), e.Size, nullString(e.Error),
	)
	if err != nil {
		return fmt.Errorf("insert build: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, hash, name, outcome, started_at, duration_ns, size, error FROM builds ORDER BY started_at DESC, rowid DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// ByHash returns every attempt for hash, oldest first.
func (s *Store) ByHash(ctx context.Context, hash string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, hash, name, outcome, started_at, duration_ns, size, error FROM builds WHERE hash = ? ORDER BY started_at, rowid",
		hash,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		var (
			e         Entry
			startedAt int64
			duration  int64
			errText   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.Hash, &e.Name, &e.Outcome, &startedAt, &duration, &e.Size, &errText); err != nil {
			return nil, fmt.Errorf("scan build: %w", err)
		}
		e.StartedAt = time.Unix(0, startedAt).UTC()
		e.Duration = time.Duration(duration)
		e.Error = errText.String
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
