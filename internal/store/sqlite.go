package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/soil-explorer/internal/enrich"
	"github.com/sells-group/soil-explorer/internal/grid"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	lon1       REAL NOT NULL,
	lat1       REAL NOT NULL,
	lon2       REAL NOT NULL,
	lat2       REAL NOT NULL,
	resolution REAL NOT NULL,
	workers    INTEGER NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	cells      INTEGER NOT NULL DEFAULT 0,
	populated  INTEGER NOT NULL DEFAULT 0,
	failed     INTEGER NOT NULL DEFAULT 0,
	error      TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_cells (
	run_id     TEXT NOT NULL REFERENCES runs(id),
	cell_index INTEGER NOT NULL,
	lon1       REAL NOT NULL,
	lat1       REAL NOT NULL,
	lon2       REAL NOT NULL,
	lat2       REAL NOT NULL,
	soil_type  TEXT,
	PRIMARY KEY (run_id, cell_index)
);

CREATE TABLE IF NOT EXISTS lookup_cache (
	bbox       TEXT PRIMARY KEY,
	raw        TEXT NOT NULL,
	fetched_at DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_lookup_cache_expires_at ON lookup_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const runColumns = `id, name, lon1, lat1, lon2, lat2, resolution, workers, status, cells, populated, failed, error, created_at, updated_at`

func (s *SQLiteStore) CreateRun(ctx context.Context, spec RunSpec) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, name, lon1, lat1, lon2, lat2, resolution, workers, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, spec.Name, spec.AOI.Lon1, spec.AOI.Lat1, spec.AOI.Lon2, spec.AOI.Lat2,
		spec.Resolution, spec.Workers, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:        id,
		RunSpec:   spec,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, report *enrich.Report) error {
	if report == nil {
		return eris.New("sqlite: complete run requires a report")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, cells = ?, populated = ?, failed = ?, updated_at = ? WHERE id = ?`,
		string(StatusFor(report)), report.Total, report.Populated, report.Failed(), time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		string(RunStatusFailed), msg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

// SaveCells replaces the stored cells of a run in one transaction.
func (s *SQLiteStore) SaveCells(ctx context.Context, runID string, cells []grid.Cell) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save cells")
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_cells WHERE run_id = ?`, runID); err != nil {
		return eris.Wrapf(err, "sqlite: clear cells for run %s", runID)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO run_cells (run_id, cell_index, lon1, lat1, lon2, lat2, soil_type) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare insert cell")
	}
	defer stmt.Close()

	for i, c := range cells {
		var attr sql.NullString
		if c.HasAttribute {
			attr = sql.NullString{String: c.Attribute, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID, i, c.Lon1, c.Lat1, c.Lon2, c.Lat2, attr); err != nil {
			return eris.Wrapf(err, "sqlite: insert cell %d for run %s", i, runID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit cells")
}

// GetCells returns the stored cells of a run in index order.
func (s *SQLiteStore) GetCells(ctx context.Context, runID string) ([]grid.Cell, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT lon1, lat1, lon2, lat2, soil_type FROM run_cells WHERE run_id = ? ORDER BY cell_index`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cells for run %s", runID)
	}
	defer rows.Close()

	var cells []grid.Cell
	for rows.Next() {
		var c grid.Cell
		var attr sql.NullString
		if err := rows.Scan(&c.Lon1, &c.Lat1, &c.Lon2, &c.Lat2, &attr); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cell")
		}
		c.Attribute, c.HasAttribute = attr.String, attr.Valid
		cells = append(cells, c)
	}
	return cells, eris.Wrap(rows.Err(), "sqlite: get cells iterate")
}

func (s *SQLiteStore) GetCachedLookup(ctx context.Context, key string) (string, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT raw FROM lookup_cache WHERE bbox = ? AND expires_at > ?`,
		key, time.Now().UTC(),
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, eris.Wrap(err, "sqlite: get cached lookup")
	}
	return raw, true, nil
}

func (s *SQLiteStore) SetCachedLookup(ctx context.Context, key, raw string, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (bbox, raw, fetched_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(bbox) DO UPDATE SET raw = excluded.raw, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		key, raw, now, now.Add(ttl),
	)
	return eris.Wrap(err, "sqlite: set cached lookup")
}

func (s *SQLiteStore) DeleteExpiredLookups(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lookup_cache WHERE expires_at <= ?`, time.Now().UTC(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired lookups")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var r Run
	err := row.Scan(&r.ID, &r.Name, &r.AOI.Lon1, &r.AOI.Lat1, &r.AOI.Lon2, &r.AOI.Lat2,
		&r.Resolution, &r.Workers, &r.Status, &r.Cells, &r.Populated, &r.Failed, &r.Error,
		&r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "run")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	return &r, nil
}
