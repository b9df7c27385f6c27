// Package history keeps a local audit trail of invocation outcomes in a
// SQLite database. Recording is best-effort: a nil *Store is a valid no-op
// receiver, so callers never fail an invocation over a broken audit log.
package history

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome values recorded per event.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Event is one recorded invocation.
type Event struct {
	OccurredAt time.Time `json:"occurred_at"`
	Flow       string    `json:"flow"`
	Outcome    string    `json:"outcome"`
	PID        int       `json:"pid"`
	Detail     string    `json:"detail,omitempty"`
}

// Store writes and reads events from a SQLite database file.
type Store struct {
	db *sql.DB
}

// Open creates the database and schema when absent.
// DSN format:
//   - "/path/to/file.db"
//   - ":memory:" (in-memory database)
func Open(dsn string) (*Store, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty history DSN")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	st := &Store{db: db}
	if err := st.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	// Append-only audit table, no primary key. Timestamps are unix seconds
	// so reads do not depend on driver time formatting.
	stmt := `CREATE TABLE IF NOT EXISTS invocation_history(
		occurred_at INTEGER NOT NULL,
		flow TEXT NOT NULL,
		outcome TEXT NOT NULL,
		pid INTEGER NOT NULL,
		detail TEXT NOT NULL DEFAULT ''
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

// Append records one event. A zero OccurredAt means now.
func (s *Store) Append(ctx context.Context, e Event) error {
	if s == nil {
		return nil
	}
	when := e.OccurredAt
	if when.IsZero() {
		when = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invocation_history(occurred_at, flow, outcome, pid, detail)
		VALUES(?, ?, ?, ?, ?);`,
		when.Unix(), e.Flow, e.Outcome, e.PID, e.Detail)
	return err
}

// Last returns the most recent event, reporting false when none exists.
func (s *Store) Last(ctx context.Context) (Event, bool, error) {
	if s == nil {
		return Event{}, false, nil
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT occurred_at, flow, outcome, pid, detail
		FROM invocation_history ORDER BY rowid DESC LIMIT 1;`)
	var unix int64
	var e Event
	err := row.Scan(&unix, &e.Flow, &e.Outcome, &e.PID, &e.Detail)
	if errors.Is(err, sql.ErrNoRows) {
		return Event{}, false, nil
	}
	if err != nil {
		return Event{}, false, err
	}
	e.OccurredAt = time.Unix(unix, 0)
	return e, true, nil
}

// Recent returns up to limit events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Event, error) {
	if s == nil || limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at, flow, outcome, pid, detail
		FROM invocation_history ORDER BY rowid DESC LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []Event
	for rows.Next() {
		var unix int64
		var e Event
		if err := rows.Scan(&unix, &e.Flow, &e.Outcome, &e.PID, &e.Detail); err != nil {
			return nil, err
		}
		e.OccurredAt = time.Unix(unix, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
