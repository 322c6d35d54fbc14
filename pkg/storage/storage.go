package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "modernc.org/sqlite"
)

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS runs (
  id                INTEGER PRIMARY KEY,
  run_uuid          TEXT NOT NULL UNIQUE,
  started_at        DATETIME NOT NULL,
  finished_at       DATETIME NOT NULL,
  plan_path         TEXT NOT NULL,
  satellite         TEXT NOT NULL,
  product_id        TEXT NOT NULL,
  sat_position      TEXT NOT NULL,
  date_julian       TEXT NOT NULL,
  backend           TEXT NOT NULL,
  workers           INTEGER NOT NULL,
  overwrite         INTEGER NOT NULL CHECK (overwrite IN (0,1)),
  canceled          INTEGER NOT NULL CHECK (canceled IN (0,1)),
  expected          INTEGER NOT NULL,
  remote_objects    INTEGER NOT NULL,
  succeeded         INTEGER NOT NULL,
  skipped           INTEGER NOT NULL,
  failed            INTEGER NOT NULL,
  not_found         INTEGER NOT NULL,
  interrupted       INTEGER NOT NULL,
  local_present     INTEGER NOT NULL,
  bytes_transferred INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_time ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_runs_plan ON runs(product_id, date_julian, sat_position);
CREATE TABLE IF NOT EXISTS receipts (
  id          INTEGER PRIMARY KEY,
  run_id      INTEGER NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
  occurred_at DATETIME NOT NULL,
  slot_key    TEXT NOT NULL,
  object_key  TEXT,
  status      TEXT NOT NULL CHECK (status IN ('downloaded','skipped','failed','not_found','canceled')),
  bytes       INTEGER NOT NULL DEFAULT 0,
  duration_ms INTEGER NOT NULL DEFAULT 0,
  error       TEXT
);
CREATE INDEX IF NOT EXISTS idx_receipts_run ON receipts(run_id);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// RecordRun stores a run and its receipts in one transaction and returns
// the run id.
func (d *DB) RecordRun(ctx context.Context, r Run, receipts []Receipt) (id int64, err error) {
	if r.RunUUID == "" || r.PlanPath == "" {
		return 0, errors.New("invalid run identifiers")
	}

	tx, err := d.sql.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `INSERT INTO runs(run_uuid, started_at, finished_at, plan_path, satellite, product_id, sat_position, date_julian, backend, workers, overwrite, canceled, expected, remote_objects, succeeded, skipped, failed, not_found, interrupted, local_present, bytes_transferred) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		r.RunUUID, r.StartedAt.UTC().Format(timeLayout), r.FinishedAt.UTC().Format(timeLayout), r.PlanPath, r.Satellite, r.ProductID, r.Position, r.DateJulian,
		r.Backend, r.Workers, boolToInt(r.Overwrite), boolToInt(r.Canceled),
		r.Expected, r.RemoteObjects, r.Succeeded, r.Skipped, r.Failed, r.NotFound, r.Interrupted, r.LocalPresent, r.BytesTransferred)
	if err != nil {
		return 0, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, rc := range receipts {
		at := rc.OccurredAt
		if at.IsZero() {
			at = r.FinishedAt
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO receipts(run_id, occurred_at, slot_key, object_key, status, bytes, duration_ms, error) VALUES(?,?,?,?,?,?,?,?)`,
			id, at.UTC().Format(timeLayout), rc.SlotKey, nullIfEmpty(rc.ObjectKey), rc.Status, rc.Bytes, rc.Duration.Milliseconds(), nullIfEmpty(rc.Error))
		if err != nil {
			return 0, err
		}
	}

	if err = tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// ListRuns returns the most recent N runs.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT id, run_uuid, started_at, finished_at, plan_path, satellite, product_id, sat_position, date_julian, backend, workers, overwrite, canceled, expected, remote_objects, succeeded, skipped, failed, not_found, interrupted, local_present, bytes_transferred FROM runs ORDER BY started_at DESC, id DESC LIMIT ?`
	rows, err := d.sql.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		var started, finished string
		var overwrite, canceled int
		if err := rows.Scan(&r.ID, &r.RunUUID, &started, &finished, &r.PlanPath, &r.Satellite, &r.ProductID, &r.Position, &r.DateJulian,
			&r.Backend, &r.Workers, &overwrite, &canceled,
			&r.Expected, &r.RemoteObjects, &r.Succeeded, &r.Skipped, &r.Failed, &r.NotFound, &r.Interrupted, &r.LocalPresent, &r.BytesTransferred); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		r.Overwrite = overwrite == 1
		r.Canceled = canceled == 1
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}

// ListReceipts returns the receipts of one run in slot order.
func (d *DB) ListReceipts(ctx context.Context, runID int64) ([]Receipt, error) {
	rows, err := d.sql.QueryContext(ctx, "SELECT occurred_at, slot_key, object_key, status, bytes, duration_ms, error FROM receipts WHERE run_id = ? ORDER BY slot_key", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Receipt
	for rows.Next() {
		var rc Receipt
		var at string
		var ms int64
		var key, msg sql.NullString
		if err := rows.Scan(&at, &rc.SlotKey, &key, &rc.Status, &rc.Bytes, &ms, &msg); err != nil {
			return nil, err
		}
		rc.OccurredAt = parseTime(at)
		rc.Duration = time.Duration(ms) * time.Millisecond
		rc.ObjectKey = key.String
		rc.Error = msg.String
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// PruneRuns deletes runs that started before cutoff, with their receipts.
func (d *DB) PruneRuns(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := d.sql.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", cutoff.UTC().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *DB) GetStats(ctx context.Context) ([]ProductStats, error) {
	query := `
		SELECT
			product_id,
			COUNT(*),
			COALESCE(SUM(succeeded), 0),
			COALESCE(SUM(failed), 0),
			COALESCE(SUM(bytes_transferred), 0)
		FROM
			runs
		GROUP BY
			product_id
		ORDER BY
			product_id;
	`
	rows, err := d.sql.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []ProductStats
	for rows.Next() {
		var s ProductStats
		if err := rows.Scan(&s.ProductID, &s.RunCount, &s.FilesDownloaded, &s.FilesFailed, &s.BytesTransferred); err != nil {
			return nil, err
		}
		stats = append(stats, s)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return stats, nil
}
