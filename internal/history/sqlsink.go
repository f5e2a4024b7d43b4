package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Table is the relational audit table shared by the SQL sinks.
const Table = "playback_history"

// Dialect selects placeholder and type syntax.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// SQLSink appends events to Table. It is only a log; nothing reads it back
// to restore playback.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLSink wraps an open database and creates the table if missing.
// The sink owns db and closes it on Close.
func NewSQLSink(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLSink, error) {
	s := &SQLSink{db: db, dialect: dialect}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("create %s: %w", Table, err)
	}
	return s, nil
}

func (s *SQLSink) ensureSchema(ctx context.Context) error {
	ts, num := "TIMESTAMP", "REAL"
	if s.dialect == DialectPostgres {
		ts, num = "TIMESTAMPTZ", "DOUBLE PRECISION"
	}
	stmt := `CREATE TABLE IF NOT EXISTS ` + Table + `(
		id TEXT NOT NULL,
		occurred_at ` + ts + ` NOT NULL,
		type TEXT NOT NULL,
		session TEXT NOT NULL,
		scheduler TEXT NOT NULL,
		state TEXT NOT NULL,
		virtual_time_ms ` + num + ` NOT NULL,
		total_duration_ms ` + num + ` NOT NULL,
		speed ` + num + ` NOT NULL,
		progress ` + num + ` NOT NULL,
		detail TEXT
	);`
	_, err := s.db.ExecContext(ctx, stmt)
	return err
}

func (s *SQLSink) placeholders() string {
	if s.dialect == DialectPostgres {
		return "$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11"
	}
	return "?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?"
}

// Name labels the sink in logs and metrics.
func (s *SQLSink) Name() string { return string(s.dialect) }

func (s *SQLSink) Send(ctx context.Context, e Event) error {
	r := e.Record
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO `+Table+`(id, occurred_at, type, session, scheduler, state,
			virtual_time_ms, total_duration_ms, speed, progress, detail)
		VALUES(`+s.placeholders()+`);`,
		e.ID, e.OccurredAt.UTC(), string(e.Type), r.Session, r.Scheduler, r.State,
		r.VirtualTimeMS, r.TotalDurationMS, r.Speed, r.Progress, r.Detail)
	return err
}

// Recent returns up to limit events, newest first.
func (s *SQLSink) Recent(ctx context.Context, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT id, occurred_at, type, session, scheduler, state,
			virtual_time_ms, total_duration_ms, speed, progress, COALESCE(detail, '')
		FROM ` + Table + ` ORDER BY occurred_at DESC LIMIT ?`
	if s.dialect == DialectPostgres {
		q = q[:len(q)-1] + "$1"
	}
	rows, err := s.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Event
	for rows.Next() {
		var (
			e   Event
			typ string
			at  time.Time
		)
		if err := rows.Scan(&e.ID, &at, &typ, &e.Record.Session, &e.Record.Scheduler, &e.Record.State,
			&e.Record.VirtualTimeMS, &e.Record.TotalDurationMS, &e.Record.Speed, &e.Record.Progress, &e.Record.Detail); err != nil {
			return nil, err
		}
		e.Type = EventType(typ)
		e.OccurredAt = at.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLSink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
