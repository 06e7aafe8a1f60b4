// Package journal persists relay lifecycle events to SQLite. The relay core
// only knows the Recorder interface; persistence stays at the edge.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

// Recorder receives relay lifecycle events. Implementations must not block
// message handling; recording is best-effort.
type Recorder interface {
	Record(identity, event, detail string)
}

// Nop is a Recorder that drops every event. Used by tests and when the
// journal is disabled.
type Nop struct{}

// Record implements Recorder.
func (Nop) Record(identity, event, detail string) {}

// Event names recorded by the relay.
const (
	EventEndpointConnected    = "endpoint_connected"
	EventEndpointDisconnected = "endpoint_disconnected"
	EventSessionCreated       = "session_created"
	EventSessionRemoved       = "session_removed"
	EventBroadcastStarted     = "broadcast_started"
	EventBroadcastStopped     = "broadcast_stopped"
	EventBroadcastCompleted   = "broadcast_completed"
)

// Entry is one recorded relay event.
type Entry struct {
	ID        int64
	Identity  string
	Event     string
	Detail    string
	CreatedAt time.Time
}

// Store is a SQLite-backed Recorder.
type Store struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens (creating if needed) the journal database at path and runs the
// schema migration.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	// WAL mode for concurrent readers while the relay appends
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS relay_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		identity TEXT NOT NULL,
		event TEXT NOT NULL,
		detail TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_relay_events_identity ON relay_events(identity);
	`
	_, err := db.Exec(schema)
	return err
}

// Record implements Recorder. Failures are logged, never surfaced: a broken
// journal must not take the relay down.
func (s *Store) Record(identity, event, detail string) {
	query := `INSERT INTO relay_events (identity, event, detail, created_at) VALUES (?, ?, ?, ?)`
	if _, err := s.db.ExecContext(context.Background(), query, identity, event, detail, time.Now()); err != nil {
		s.log.Error().Err(err).
			Str("identity", identity).
			Str("event", event).
			Msg("journal record failed")
	}
}

// ListByIdentity returns the recorded events for one identity, oldest first.
func (s *Store) ListByIdentity(ctx context.Context, identity string) ([]Entry, error) {
	query := `
		SELECT id, identity, event, detail, created_at
		FROM relay_events
		WHERE identity = ?
		ORDER BY id ASC
	`
	rows, err := s.db.QueryContext(ctx, query, identity)
	if err != nil {
		return nil, fmt.Errorf("list journal events: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var detail sql.NullString
		if err := rows.Scan(&e.ID, &e.Identity, &e.Event, &detail, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan journal event: %w", err)
		}
		e.Detail = detail.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
