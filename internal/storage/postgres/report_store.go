// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/opinion-crawler/internal/crawler"
)

// DefaultTable receives session reports unless configured otherwise.
const DefaultTable = "session_reports"

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ReportStoreConfig controls the Postgres connection pool used for reports.
type ReportStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ReportStore upserts one row per session into Postgres.
type ReportStore struct {
	pool  execCloser
	table string
}

// NewReportStore connects a pool and ensures the report table exists.
func NewReportStore(ctx context.Context, cfg ReportStoreConfig) (*ReportStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("reports.dsn is required")
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
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store := &ReportStore{pool: pool, table: table}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewReportStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReportStoreWithPool(pool execCloser, table string) (*ReportStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := tableName(table)
	if err != nil {
		return nil, err
	}
	return &ReportStore{pool: pool, table: table}, nil
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

// Close releases the underlying pool resources.
func (s *ReportStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the report table when missing.
func (s *ReportStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	session_id     TEXT PRIMARY KEY,
	run_id         TEXT NOT NULL,
	target         TEXT NOT NULL,
	build          TEXT NOT NULL,
	status         TEXT NOT NULL,
	error_text     TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ NOT NULL,
	rows           JSONB NOT NULL,
	repeated_words JSONB NOT NULL
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	return nil
}

// SaveReport upserts the report keyed by session ID.
func (s *ReportStore) SaveReport(ctx context.Context, report crawler.SessionReport) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("report store is not configured")
	}
	if report.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	rows := report.Rows
	if rows == nil {
		rows = []crawler.ReportRow{}
	}
	rowsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal rows: %w", err)
	}
	words := report.RepeatedWords
	if words == nil {
		words = map[string]int{}
	}
	wordsJSON, err := json.Marshal(words)
	if err != nil {
		return fmt.Errorf("marshal repeated words: %w", err)
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	session_id,
	run_id,
	target,
	build,
	status,
	error_text,
	started_at,
	finished_at,
	rows,
	repeated_words
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (session_id) DO UPDATE SET
	status = EXCLUDED.status,
	error_text = EXCLUDED.error_text,
	finished_at = EXCLUDED.finished_at,
	rows = EXCLUDED.rows,
	repeated_words = EXCLUDED.repeated_words`, s.table)

	args := []any{
		report.SessionID,
		report.RunID,
		report.Target.Label(),
		report.Target.BuildName,
		string(report.Status),
		report.ErrorText,
		report.Started,
		report.Finished,
		rowsJSON,
		wordsJSON,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert session report: %w", err)
	}
	return nil
}
