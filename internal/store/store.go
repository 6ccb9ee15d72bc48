// Package store persists a local record of sessions this client has
// spawned or joined, so tools can offer recent sessions as re-join targets
// after the process restarts.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a bookmark does not exist.
var ErrNotFound = errors.New("session bookmark not found")

// Bookmark records one session a client attached to.
type Bookmark struct {
	Endpoint  string
	SessionID string
	Kind      string
	Shell     string
	Label     string
	LastSeen  time.Time
}

// Store is a SQLite-backed bookmark store.
type Store struct {
	db *sql.DB
}

const schema = `
	CREATE TABLE IF NOT EXISTS bookmarks (
		endpoint   TEXT NOT NULL,
		session_id TEXT NOT NULL,
		kind       TEXT NOT NULL DEFAULT 'local',
		shell      TEXT,
		label      TEXT,
		last_seen  DATETIME NOT NULL,
		PRIMARY KEY (endpoint, session_id)
	);
	CREATE INDEX IF NOT EXISTS idx_bookmarks_last_seen ON bookmarks(last_seen DESC);
`

// Open opens (creating if needed) the store at path and runs schema
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open bookmark store: %w", err)
	}

	// WAL keeps concurrent CLI invocations from blocking each other.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate bookmark store: %w", err)
	}

	return &Store{db: db}, nil
}

// Record upserts a bookmark, refreshing last_seen for an already known
// session.
func (s *Store) Record(ctx context.Context, b Bookmark) error {
	if b.LastSeen.IsZero() {
		b.LastSeen = time.Now()
	}

	query := `
		INSERT INTO bookmarks (endpoint, session_id, kind, shell, label, last_seen)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (endpoint, session_id) DO UPDATE SET
			kind = excluded.kind,
			shell = excluded.shell,
			label = excluded.label,
			last_seen = excluded.last_seen
	`

	_, err := s.db.ExecContext(ctx, query,
		b.Endpoint, b.SessionID, b.Kind, b.Shell, b.Label, b.LastSeen)
	if err != nil {
		return fmt.Errorf("record bookmark: %w", err)
	}
	return nil
}

// Get retrieves a bookmark by endpoint and session id.
func (s *Store) Get(ctx context.Context, endpoint, sessionID string) (*Bookmark, error) {
	query := `
		SELECT endpoint, session_id, kind, shell, label, last_seen
		FROM bookmarks
		WHERE endpoint = ? AND session_id = ?
	`

	b := &Bookmark{}
	var shell, label sql.NullString
	err := s.db.QueryRowContext(ctx, query, endpoint, sessionID).Scan(
		&b.Endpoint, &b.SessionID, &b.Kind, &shell, &label, &b.LastSeen)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get bookmark: %w", err)
	}

	b.Shell = shell.String
	b.Label = label.String
	return b, nil
}

// Recent returns the most recently seen bookmarks, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Bookmark, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `
		SELECT endpoint, session_id, kind, shell, label, last_seen
		FROM bookmarks
		ORDER BY last_seen DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var shell, label sql.NullString
		if err := rows.Scan(&b.Endpoint, &b.SessionID, &b.Kind, &shell, &label, &b.LastSeen); err != nil {
			return nil, fmt.Errorf("scan bookmark: %w", err)
		}
		b.Shell = shell.String
		b.Label = label.String
		out = append(out, b)
	}
	return out, rows.Err()
}

// Forget removes a bookmark. Removing a missing bookmark is not an error.
func (s *Store) Forget(ctx context.Context, endpoint, sessionID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM bookmarks WHERE endpoint = ? AND session_id = ?`,
		endpoint, sessionID)
	if err != nil {
		return fmt.Errorf("forget bookmark: %w", err)
	}
	return nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
