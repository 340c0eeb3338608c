package db

import (
	"context"
	"database/sql"

	"github.com/hpungsan/adsift/internal/errors"
)

// Run statuses.
const (
	RunOK     = "ok"
	RunFailed = "failed"
)

// Run is one recorded keyword set build.
type Run struct {
	ID         string      `json:"id"`
	Mode       string      `json:"mode"`
	Status     string      `json:"status"`
	Keywords   int         `json:"keywords"`
	Error      *string     `json:"error,omitempty"`
	StartedAt  int64       `json:"started_at"`
	DurationMS int64       `json:"duration_ms"`
	Sources    []RunSource `json:"sources,omitempty"`
}

// RunSource is one candidate location within a run.
type RunSource struct {
	Position   int     `json:"position"`
	Source     string  `json:"source"`
	Status     string  `json:"status"`
	Keywords   int     `json:"keywords"`
	Error      *string `json:"error,omitempty"`
	DurationMS int64   `json:"duration_ms"`
}

// InsertRun stores a run and its sources in one transaction.
func InsertRun(ctx context.Context, db *sql.DB, r *Run) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO fetch_runs (id, mode, status, keywords, error, started_at, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Mode, r.Status, r.Keywords, toNullString(r.Error), r.StartedAt, r.DurationMS)
	if err != nil {
		return errors.NewInternal(err)
	}

	for _, s := range r.Sources {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO fetch_sources (run_id, position, source, status, keywords, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, r.ID, s.Position, s.Source, s.Status, s.Keywords, toNullString(s.Error), s.DurationMS)
		if err != nil {
			return errors.NewInternal(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// GetRun retrieves a run with its sources by ULID.
func GetRun(ctx context.Context, db *sql.DB, id string) (*Run, error) {
	row := db.QueryRowContext(ctx, `
		SELECT id, mode, status, keywords, error, started_at, duration_ms
		FROM fetch_runs
		WHERE id = ?
	`, id)
	r, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound(id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT position, source, status, keywords, error, duration_ms
		FROM fetch_sources
		WHERE run_id = ?
		ORDER BY position
	`, id)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			s      RunSource
			errMsg sql.NullString
		)
		if err := rows.Scan(&s.Position, &s.Source, &s.Status, &s.Keywords, &errMsg, &s.DurationMS); err != nil {
			return nil, errors.NewInternal(err)
		}
		s.Error = fromNullString(errMsg)
		r.Sources = append(r.Sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}

	return r, nil
}

// LatestRun returns the most recent run with its sources.
func LatestRun(ctx context.Context, db *sql.DB) (*Run, error) {
	var id string
	err := db.QueryRowContext(ctx, `
		SELECT id FROM fetch_runs ORDER BY started_at DESC, id DESC LIMIT 1
	`).Scan(&id)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("latest")
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return GetRun(ctx, db, id)
}

// ListRuns returns runs newest first, without sources. status filters when non-empty.
// Returns the page and the total number of matching runs.
func ListRuns(ctx context.Context, db *sql.DB, status string, limit, offset int) ([]Run, int, error) {
	where := ""
	args := []any{}
	if status != "" {
		where = " WHERE status = ?"
		args = append(args, status)
	}

	var total int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fetch_runs"+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := `
		SELECT id, mode, status, keywords, error, started_at, duration_ms
		FROM fetch_runs` + where + `
		ORDER BY started_at DESC, id DESC
		LIMIT ? OFFSET ?
	`
	rows, err := db.QueryContext(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	return runs, total, nil
}

// PurgeRuns deletes runs started before the given unix time, sources included.
// Returns the number of runs removed.
func PurgeRuns(ctx context.Context, db *sql.DB, before int64) (int, error) {
	res, err := db.ExecContext(ctx, "DELETE FROM fetch_runs WHERE started_at < ?", before)
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.NewInternal(err)
	}
	return int(n), nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun scans a single fetch_runs row.
func scanRun(row scanner) (*Run, error) {
	var (
		r      Run
		errMsg sql.NullString
	)
	if err := row.Scan(&r.ID, &r.Mode, &r.Status, &r.Keywords, &errMsg, &r.StartedAt, &r.DurationMS); err != nil {
		return nil, err
	}
	r.Error = fromNullString(errMsg)
	return &r, nil
}

// toNullString converts a *string to sql.NullString.
func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

// fromNullString converts a sql.NullString to *string.
func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
