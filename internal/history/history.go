// Package history provides an optional local SQLite sink for recording
// daemonshepherd child lifecycle transitions and hailerter flow status
// notifications, for post-mortem inspection. It is adapted from the
// teacher's store/history subsystem, trimmed to the single embedded
// backend this spec's scope calls for (see DESIGN.md).
package history

import (
	"context"
	"database/sql"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// Event is one recorded occurrence. Kind and Detail are caller-defined
// (e.g. "daemon_start", "daemon_stop", "flow_notify"); Detail is stored as
// opaque JSON so each caller can evolve its own payload shape.
type Event struct {
	Kind      string
	Subject   string // daemon name, or "aspect|location" flow key
	Detail    []byte // JSON payload
	OccurredAt time.Time
}

// Sink persists Events. A nil *Sink is valid and Send on it is a no-op, so
// callers can unconditionally hold a *Sink field without a presence check
// at every call site.
type Sink struct {
	db *sql.DB
}

// Open creates/opens a SQLite database at path and ensures its schema.
// An empty path disables history entirely (Open returns (nil, nil)).
func Open(path string) (*Sink, error) {
	if path == "" {
		return nil, nil
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Sink{db: db}, nil
}

func ensureSchema(db *sql.DB) error {
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	subject TEXT NOT NULL,
	detail TEXT NOT NULL,
	occurred_at INTEGER NOT NULL
)`)
	return err
}

// Send records one event. It is safe to call on a nil *Sink.
func (s *Sink) Send(ctx context.Context, e Event) error {
	if s == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (kind, subject, detail, occurred_at) VALUES (?, ?, ?, ?)`,
		e.Kind, e.Subject, string(e.Detail), e.OccurredAt.Unix())
	return err
}

// Close closes the underlying database. Safe to call on a nil *Sink.
func (s *Sink) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

// Recent returns the most recent n events for subject (any kind), newest
// first. Used by tests; not part of the control protocol.
func (s *Sink) Recent(ctx context.Context, subject string, n int) ([]Event, error) {
	if s == nil {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT kind, subject, detail, occurred_at FROM events WHERE subject = ? ORDER BY id DESC LIMIT ?`,
		subject, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var e Event
		var ts int64
		if err := rows.Scan(&e.Kind, &e.Subject, &e.Detail, &ts); err != nil {
			return nil, err
		}
		e.OccurredAt = time.Unix(ts, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
