package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

type sqliteSignalRepo struct {
	db *sql.DB
}

// Create inserts the signal; on a dedup conflict the insert is a no-op and
// the existing row is loaded and returned instead. The uniqueness constraint,
// not any caller-side check, is what guarantees at most one signal per
// (tenant, run, key, type) under concurrent workers.
func (r *sqliteSignalRepo) Create(ctx context.Context, sig *models.DriftSignal) (*models.DriftSignal, bool, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO signals (id, tenant_id, run_id, payer, procedure_group,
			signal_type, trend, baseline_value, current_value, delta,
			severity, confidence, baseline_n, current_n, p_value,
			revenue_impact, summary, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, run_id, payer, procedure_group, signal_type) DO NOTHING
	`, sig.ID, sig.TenantID, sig.RunID, sig.Key.Payer, sig.Key.ProcedureGroup,
		sig.Type, sig.Trend, sig.BaselineValue, sig.CurrentValue, sig.Delta,
		sig.Severity, sig.Confidence, sig.BaselineN, sig.CurrentN, sig.PValue,
		sig.RevenueImpact, nullString(sig.Summary), sig.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert signal: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert signal rows affected: %w", err)
	}
	if n > 0 {
		return sig, true, nil
	}

	existing, err := r.getByDedupKey(ctx, sig)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *sqliteSignalRepo) getByDedupKey(ctx context.Context, sig *models.DriftSignal) (*models.DriftSignal, error) {
	row := r.db.QueryRowContext(ctx, signalSelect+`
		WHERE tenant_id = ? AND run_id = ? AND payer = ? AND procedure_group = ? AND signal_type = ?
	`, sig.TenantID, sig.RunID, sig.Key.Payer, sig.Key.ProcedureGroup, sig.Type)
	return scanSignal(row)
}

func (r *sqliteSignalRepo) GetByID(ctx context.Context, id string) (*models.DriftSignal, error) {
	row := r.db.QueryRowContext(ctx, signalSelect+` WHERE id = ?`, id)
	return scanSignal(row)
}

func (r *sqliteSignalRepo) ListByRun(ctx context.Context, tenantID, runID string) ([]*models.DriftSignal, error) {
	rows, err := r.db.QueryContext(ctx, signalSelect+`
		WHERE tenant_id = ? AND run_id = ?
		ORDER BY severity DESC, payer, procedure_group
	`, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("list signals: %w", err)
	}
	defer rows.Close()

	var signals []*models.DriftSignal
	for rows.Next() {
		sig, err := scanSignal(rows)
		if err != nil {
			return nil, err
		}
		signals = append(signals, sig)
	}
	return signals, rows.Err()
}

func (r *sqliteSignalRepo) DeleteByRun(ctx context.Context, runID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM signals WHERE run_id = ?`, runID)
	if err != nil {
		return 0, fmt.Errorf("delete signals by run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete signals rows affected: %w", err)
	}
	return n, nil
}

const signalSelect = `
	SELECT id, tenant_id, run_id, payer, procedure_group, signal_type, trend,
		baseline_value, current_value, delta, severity, confidence,
		baseline_n, current_n, p_value, revenue_impact, summary, created_at
	FROM signals
`

func scanSignal(row rowScanner) (*models.DriftSignal, error) {
	var sig models.DriftSignal
	var summary sql.NullString
	err := row.Scan(&sig.ID, &sig.TenantID, &sig.RunID,
		&sig.Key.Payer, &sig.Key.ProcedureGroup, &sig.Type, &sig.Trend,
		&sig.BaselineValue, &sig.CurrentValue, &sig.Delta,
		&sig.Severity, &sig.Confidence, &sig.BaselineN, &sig.CurrentN,
		&sig.PValue, &sig.RevenueImpact, &summary, &sig.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan signal: %w", err)
	}
	sig.Summary = summary.String
	return &sig, nil
}

// sqliteCrossTenantSignals is the only query path that ignores tenant scoping.
type sqliteCrossTenantSignals struct {
	db *sql.DB
}

func (r *sqliteCrossTenantSignals) PayerSignalGroups(ctx context.Context, since time.Time) ([]PayerSignalGroup, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT payer, signal_type, COUNT(DISTINCT tenant_id) AS tenants
		FROM signals
		WHERE trend = ? AND created_at >= ?
		GROUP BY payer, signal_type
		ORDER BY tenants DESC, payer, signal_type
	`, models.TrendDegrading, since)
	if err != nil {
		return nil, fmt.Errorf("query payer signal groups: %w", err)
	}
	defer rows.Close()

	var groups []PayerSignalGroup
	for rows.Next() {
		var g PayerSignalGroup
		if err := rows.Scan(&g.Payer, &g.Type, &g.TenantCount); err != nil {
			return nil, fmt.Errorf("scan payer signal group: %w", err)
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}
