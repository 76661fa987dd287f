// Package postgres records pipeline runs in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/storage"
)

const defaultTable = "report_runs"

// RunStoreConfig controls the Postgres connection pool used for run rows.
type RunStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// RunStore writes run rows into Postgres.
type RunStore struct {
	pool  execCloser
	table string
}

// NewRunStore creates a Postgres-backed RunStore using the provided config.
func NewRunStore(ctx context.Context, cfg RunStoreConfig) (*RunStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := storage.TableName(cfg.Table, defaultTable)
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
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &RunStore{pool: pool, table: table}, nil
}

// NewRunStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewRunStoreWithPool(pool execCloser, table string) (*RunStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	table, err := storage.TableName(table, defaultTable)
	if err != nil {
		return nil, err
	}
	return &RunStore{pool: pool, table: table}, nil
}

// EnsureSchema creates the run table when it does not exist.
func (s *RunStore) EnsureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	template_name TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	sections      JSONB NOT NULL DEFAULT '[]',
	degradations  JSONB NOT NULL DEFAULT '[]',
	error_text    TEXT NOT NULL DEFAULT '',
	bytes         INTEGER NOT NULL DEFAULT 0,
	pages         INTEGER NOT NULL DEFAULT 0,
	digest        TEXT NOT NULL DEFAULT '',
	started_at    TIMESTAMPTZ NOT NULL,
	duration_ms   BIGINT NOT NULL DEFAULT 0
)`, s.table)
	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("create run table: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *RunStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// RecordRun inserts a run row into Postgres.
func (s *RunStore) RecordRun(ctx context.Context, record report.RunRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("run store is not configured")
	}
	if record.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	sections, degradations, err := encodeLists(record)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	task_id,
	user_id,
	template_name,
	status,
	sections,
	degradations,
	error_text,
	bytes,
	pages,
	digest,
	started_at,
	duration_ms
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
)`, s.table)

	args := []any{
		record.RunID,
		record.TaskID,
		record.UserID,
		record.TemplateName,
		string(record.Status),
		sections,
		degradations,
		record.ErrorText,
		record.Bytes,
		record.Pages,
		record.Digest,
		record.StartedAt,
		record.DurationMs,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func encodeLists(record report.RunRecord) ([]byte, []byte, error) {
	sections := record.Sections
	if sections == nil {
		sections = []string{}
	}
	degradations := record.Degradations
	if degradations == nil {
		degradations = []string{}
	}
	s, err := json.Marshal(sections)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal sections: %w", err)
	}
	d, err := json.Marshal(degradations)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal degradations: %w", err)
	}
	return s, d, nil
}
