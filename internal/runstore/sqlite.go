package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"fedflow/pkg/contracts/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS run_records (
	run_id       TEXT PRIMARY KEY,
	mode         TEXT NOT NULL,
	window_start TEXT NOT NULL,
	window_end   TEXT NOT NULL,
	status       TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	finished_at  TEXT,
	record       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_run_records_started_at ON run_records(started_at);
CREATE INDEX IF NOT EXISTS idx_run_records_status ON run_records(status);
`

// SQLiteStore persists run records in a single-file SQLite database. The
// full record travels as a JSON column; the indexed columns exist for
// operator queries over history.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (creating if absent) the database at path and ensures the
// schema.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open run database: %w", err)
	}
	// modernc/sqlite serializes writes itself; a single connection avoids
	// SQLITE_BUSY on concurrent saves.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure run schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Save(ctx context.Context, record domain.RunRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("save run record: empty run id")
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	var finished interface{}
	if record.FinishedAt != nil {
		finished = record.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO run_records (run_id, mode, window_start, window_end, status, started_at, finished_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			status = excluded.status,
			finished_at = excluded.finished_at,
			record = excluded.record`,
		record.RunID,
		string(record.Mode),
		record.Window.Start.Format(domain.DateLayout),
		record.Window.End.Format(domain.DateLayout),
		string(record.Status),
		record.StartedAt.UTC().Format(time.RFC3339Nano),
		finished,
		string(data),
	)
	if err != nil {
		return fmt.Errorf("save run record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, runID string) (domain.RunRecord, error) {
	var (
		record domain.RunRecord
		data   string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM run_records WHERE run_id = ?`, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return record, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return record, fmt.Errorf("query run record: %w", err)
	}
	if err := json.Unmarshal([]byte(data), &record); err != nil {
		return record, fmt.Errorf("parse run record %s: %w", runID, err)
	}
	return record, nil
}

func (s *SQLiteStore) List(ctx context.Context, limit int) ([]domain.RunRecord, error) {
	query := `SELECT record FROM run_records ORDER BY started_at DESC, run_id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query run records: %w", err)
	}
	defer rows.Close()

	var records []domain.RunRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("scan run record: %w", err)
		}
		var record domain.RunRecord
		if err := json.Unmarshal([]byte(data), &record); err != nil {
			continue
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run records: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) Delete(ctx context.Context, runID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM run_records WHERE run_id = ?`, runID)
	if err != nil {
		return fmt.Errorf("delete run record: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}
