package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/loykin/routeplay/internal/history"
)

const DefaultTable = "playback_history"

// Options locates the ClickHouse server and target table.
type Options struct {
	Addr     string // host:port of the native protocol, default localhost:9000
	Database string
	Username string
	Password string
	Table    string
}

// Sink sends events to ClickHouse using the official ClickHouse Go client.
type Sink struct {
	conn  driver.Conn
	table string
}

func New(o Options) (*Sink, error) {
	if o.Addr == "" {
		o.Addr = "localhost:9000"
	}
	if o.Database == "" {
		o.Database = "default"
	}
	if o.Username == "" {
		o.Username = "default"
	}
	if o.Table == "" {
		o.Table = DefaultTable
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{o.Addr},
		Auth: clickhouse.Auth{
			Database: o.Database,
			Username: o.Username,
			Password: o.Password,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	s := &Sink{conn: conn, table: o.Table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to create %s: %w", o.Table, err)
	}
	return s, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	return s.conn.Exec(ctx, `CREATE TABLE IF NOT EXISTS `+s.table+` (
		id String,
		occurred_at DateTime64(6),
		type LowCardinality(String),
		session String,
		scheduler String,
		state LowCardinality(String),
		virtual_time_ms Float64,
		total_duration_ms Float64,
		speed Float64,
		progress Float64,
		detail String
	) ENGINE = MergeTree()
	ORDER BY (session, occurred_at)`)
}

func (s *Sink) Name() string { return "clickhouse" }

func (s *Sink) Send(ctx context.Context, e history.Event) error {
	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO "+s.table)
	if err != nil {
		return fmt.Errorf("failed to prepare ClickHouse batch: %w", err)
	}
	r := e.Record
	if err := batch.Append(
		e.ID,
		e.OccurredAt.UTC(),
		string(e.Type),
		r.Session,
		r.Scheduler,
		r.State,
		r.VirtualTimeMS,
		r.TotalDurationMS,
		r.Speed,
		r.Progress,
		r.Detail,
	); err != nil {
		_ = batch.Abort()
		return fmt.Errorf("failed to append event: %w", err)
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to insert event into ClickHouse: %w", err)
	}
	return nil
}

// Count returns stored rows for a session.
func (s *Sink) Count(ctx context.Context, session string) (uint64, error) {
	var n uint64
	err := s.conn.QueryRow(ctx, "SELECT count() FROM "+s.table+" WHERE session = ?", session).Scan(&n)
	return n, err
}

func (s *Sink) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
