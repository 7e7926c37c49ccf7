package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

type sqliteRunRepo struct {
	db *sql.DB
}

func (r *sqliteRunRepo) Create(ctx context.Context, run *models.ComputationRun) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO runs (id, tenant_id, status, baseline_start, baseline_end,
			current_start, current_end, started_at, summary)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, run.ID, run.TenantID, run.Status,
		run.BaselineStart, run.BaselineEnd, run.CurrentStart, run.CurrentEnd,
		run.StartedAt, nullString(run.Summary))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

func (r *sqliteRunRepo) Finalize(ctx context.Context, id string, status models.RunStatus, summary string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, summary = ?
		WHERE id = ? AND status = ?
	`, status, time.Now().UTC(), nullString(summary), id, models.RunRunning)
	if err != nil {
		return fmt.Errorf("finalize run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finalize run rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRunRepo) GetByID(ctx context.Context, id string) (*models.ComputationRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, tenant_id, status, baseline_start, baseline_end,
			current_start, current_end, started_at, finished_at, summary
		FROM runs WHERE id = ?
	`, id)
	return scanRun(row)
}

func (r *sqliteRunRepo) List(ctx context.Context, tenantID string, limit int) ([]*models.ComputationRun, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, status, baseline_start, baseline_end,
			current_start, current_end, started_at, finished_at, summary
		FROM runs WHERE tenant_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []*models.ComputationRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*models.ComputationRun, error) {
	var run models.ComputationRun
	var finishedAt sql.NullTime
	var summary sql.NullString
	err := row.Scan(&run.ID, &run.TenantID, &run.Status,
		&run.BaselineStart, &run.BaselineEnd, &run.CurrentStart, &run.CurrentEnd,
		&run.StartedAt, &finishedAt, &summary)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	run.Summary = summary.String
	return &run, nil
}
