// Package postgres stores crawl reports in a Postgres table.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/JakeFAU/brokenlinks/internal/crawler"
	"github.com/JakeFAU/brokenlinks/internal/report"
)

// DefaultTable receives report rows when no table is configured.
const DefaultTable = "broken_resources"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

var columns = []string{"session_id", "page_url", "resource_url", "error_code", "recorded_at"}

// Config controls the Postgres connection pool used for report rows.
type Config struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Close()
}

// Sink bulk-loads error records into Postgres.
type Sink struct {
	pool   pool
	table  string
	now    func() time.Time
	logger *zap.Logger
}

var _ report.Sink = (*Sink)(nil)

// NewSink connects to Postgres using cfg.
func NewSink(ctx context.Context, cfg Config, logger *zap.Logger) (*Sink, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("report.postgres.dsn is required")
	}
	table, err := tableName(cfg.Table)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return newSink(p, table, logger), nil
}

// NewSinkWithPool constructs a sink from an existing pool (primarily for testing).
func NewSinkWithPool(p pool, table string, logger *zap.Logger) (*Sink, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	name, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return newSink(p, name, logger), nil
}

func newSink(p pool, table string, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		pool:   p,
		table:  table,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger,
	}
}

func tableName(table string) (string, error) {
	if table == "" {
		table = DefaultTable
	}
	if !validTableName.MatchString(table) {
		return "", fmt.Errorf("invalid table name %q", table)
	}
	return table, nil
}

// EnsureSchema creates the report table when it does not exist.
func (s *Sink) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	session_id   TEXT        NOT NULL,
	page_url     TEXT        NOT NULL,
	resource_url TEXT        NOT NULL,
	error_code   INTEGER     NOT NULL,
	recorded_at  TIMESTAMPTZ NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Write copies records into the table. recorded_at is the session finish
// time, or the current time when unknown.
func (s *Sink) Write(ctx context.Context, meta report.Meta, records []crawler.ErrorRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("postgres sink is not configured")
	}
	if len(records) == 0 {
		return nil
	}
	if meta.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	at := meta.FinishedAt
	if at.IsZero() {
		at = s.now()
	}
	rows := make([][]any, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []any{meta.SessionID, rec.PageURL, rec.ResourceURL, rec.ErrorCode, at})
	}
	n, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", s.table, err)
	}
	s.logger.Info("error report stored",
		zap.String("session_id", meta.SessionID),
		zap.String("table", s.table),
		zap.Int64("rows", n),
	)
	return nil
}

// Close releases the underlying pool resources.
func (s *Sink) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}
