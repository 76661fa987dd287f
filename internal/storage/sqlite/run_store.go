// Package sqlite records pipeline runs in an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	// Registers the pure-Go "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/JakeFAU/pdfworker/internal/report"
	"github.com/JakeFAU/pdfworker/internal/storage"
)

const defaultTable = "report_runs"

// RunStore writes run rows into SQLite.
type RunStore struct {
	db    *sql.DB
	table string
}

// Open connects to dsn, applies pragmas and creates the run table.
// dsn example: "file:runs.db?mode=rwc" or ":memory:".
func Open(ctx context.Context, dsn, table string) (*RunStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("ledger.dsn is required")
	}
	table, err := storage.TableName(table, defaultTable)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps ":memory:"
	// databases alive across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("set pragma %s: %w", p, err)
		}
	}

	s := &RunStore{db: db, table: table}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *RunStore) ensureSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT PRIMARY KEY,
	task_id       TEXT NOT NULL,
	user_id       TEXT NOT NULL,
	template_name TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	sections      TEXT NOT NULL DEFAULT '[]',
	degradations  TEXT NOT NULL DEFAULT '[]',
	error_text    TEXT NOT NULL DEFAULT '',
	bytes         INTEGER NOT NULL DEFAULT 0,
	pages         INTEGER NOT NULL DEFAULT 0,
	digest        TEXT NOT NULL DEFAULT '',
	started_at    TEXT NOT NULL,
	duration_ms   INTEGER NOT NULL DEFAULT 0
)`, s.table)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create run table: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *RunStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}
	return nil
}

// RecordRun inserts a run row.
func (s *RunStore) RecordRun(ctx context.Context, record report.RunRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	sections, err := json.Marshal(nonNil(record.Sections))
	if err != nil {
		return fmt.Errorf("marshal sections: %w", err)
	}
	degradations, err := json.Marshal(nonNil(record.Degradations))
	if err != nil {
		return fmt.Errorf("marshal degradations: %w", err)
	}
	query := fmt.Sprintf(`INSERT INTO %s (
	run_id, task_id, user_id, template_name, status, sections, degradations,
	error_text, bytes, pages, digest, started_at, duration_ms
) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`, s.table)
	_, err = s.db.ExecContext(ctx, query,
		record.RunID,
		record.TaskID,
		record.UserID,
		record.TemplateName,
		string(record.Status),
		string(sections),
		string(degradations),
		record.ErrorText,
		record.Bytes,
		record.Pages,
		record.Digest,
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		record.DurationMs,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// Get loads a run by id.
func (s *RunStore) Get(ctx context.Context, runID string) (report.RunRecord, error) {
	query := fmt.Sprintf(`SELECT run_id, task_id, user_id, template_name, status, sections,
	degradations, error_text, bytes, pages, digest, started_at, duration_ms FROM %s WHERE run_id = ?`, s.table)
	var (
		rec                    report.RunRecord
		status                 string
		sections, degradations string
		started                string
	)
	err := s.db.QueryRowContext(ctx, query, runID).Scan(
		&rec.RunID, &rec.TaskID, &rec.UserID, &rec.TemplateName, &status, &sections,
		&degradations, &rec.ErrorText, &rec.Bytes, &rec.Pages, &rec.Digest, &started, &rec.DurationMs,
	)
	if err != nil {
		return report.RunRecord{}, fmt.Errorf("select run: %w", err)
	}
	rec.Status = report.RunStatus(status)
	if err := json.Unmarshal([]byte(sections), &rec.Sections); err != nil {
		return report.RunRecord{}, fmt.Errorf("decode sections: %w", err)
	}
	if err := json.Unmarshal([]byte(degradations), &rec.Degradations); err != nil {
		return report.RunRecord{}, fmt.Errorf("decode degradations: %w", err)
	}
	if rec.StartedAt, err = time.Parse(time.RFC3339Nano, started); err != nil {
		return report.RunRecord{}, fmt.Errorf("decode started_at: %w", err)
	}
	return rec, nil
}

func nonNil(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}
