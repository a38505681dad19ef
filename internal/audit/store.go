// Package audit provides a PostgreSQL-backed append-only log of session flag
// mutations. Every change recorded through the debug API lands here with who
// triggered it, so "when did this flag flip" stops being a grep through
// worker logs. The trail is optional: without a database URL the service runs
// without it, and a failed insert never blocks the session write path.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// connectTimeout bounds the startup ping.
const connectTimeout = 5 * time.Second

// Entry is one recorded flag mutation.
type Entry struct {
	ID        int64
	SessionID string
	Flag      string
	Value     string
	Source    string // "api", "ctl", ...
	ChangedAt time.Time
}

// Store manages the flag change trail in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection. Schema setup is a
// separate step (Migrate) so operators can run it explicitly.
func Open(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one flag mutation.
func (s *Store) Record(ctx context.Context, e Entry) error {
	const query = `
		INSERT INTO flag_changes (session_id, flag, value, source)
		VALUES ($1, $2, $3, $4)`

	if _, err := s.db.ExecContext(ctx, query, e.SessionID, e.Flag, e.Value, e.Source); err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// List returns entries for one session (or all sessions when sessionID is
// empty) changed at or after since, newest first, capped at limit.
func (s *Store) List(ctx context.Context, sessionID string, since time.Time, limit int) ([]Entry, error) {
	const query = `
		SELECT id, session_id, flag, value, source, changed_at
		FROM flag_changes
		WHERE ($1 = '' OR session_id = $1)
		  AND changed_at >= $2
		ORDER BY changed_at DESC
		LIMIT $3`

	rows, err := s.db.QueryContext(ctx, query, sessionID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: query: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Flag, &e.Value, &e.Source, &e.ChangedAt); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return entries, nil
}

// Close closes the database handle.
func (s *Store) Close() error { return s.db.Close() }
