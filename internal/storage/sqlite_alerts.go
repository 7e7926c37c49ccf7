package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

type sqliteAlertRepo struct {
	db *sql.DB
}

// Create inserts the candidate; on a (signal, rule) conflict the existing
// candidate is loaded and returned so re-evaluation is idempotent.
func (r *sqliteAlertRepo) Create(ctx context.Context, alert *models.CandidateAlert) (*models.CandidateAlert, bool, error) {
	payload, err := json.Marshal(alert.Payload)
	if err != nil {
		return nil, false, fmt.Errorf("marshal alert payload: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO candidate_alerts (id, tenant_id, rule_id, signal_id,
			status, fingerprint, payload_json, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (signal_id, rule_id) DO NOTHING
	`, alert.ID, alert.TenantID, alert.RuleID, alert.SignalID,
		alert.Status, alert.Fingerprint, string(payload),
		nullString(alert.Reason), alert.CreatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("insert candidate alert: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("insert candidate alert rows affected: %w", err)
	}
	if n > 0 {
		return alert, true, nil
	}

	row := r.db.QueryRowContext(ctx, alertSelect+` WHERE signal_id = ? AND rule_id = ?`,
		alert.SignalID, alert.RuleID)
	existing, err := scanAlert(row)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *sqliteAlertRepo) GetByID(ctx context.Context, id string) (*models.CandidateAlert, error) {
	row := r.db.QueryRowContext(ctx, alertSelect+` WHERE id = ?`, id)
	return scanAlert(row)
}

func (r *sqliteAlertRepo) List(ctx context.Context, tenantID string, limit int) ([]*models.CandidateAlert, error) {
	rows, err := r.db.QueryContext(ctx, alertSelect+`
		WHERE tenant_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list candidate alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.CandidateAlert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (r *sqliteAlertRepo) MarkSuppressed(ctx context.Context, id, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE candidate_alerts SET status = ?, reason = ?
		WHERE id = ? AND status = ?
	`, models.AlertSuppressed, reason, id, models.AlertPending)
	if err != nil {
		return fmt.Errorf("mark alert suppressed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert suppressed rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteAlertRepo) MarkDispatched(ctx context.Context, id string, status models.AlertStatus, at time.Time) error {
	if status != models.AlertSent && status != models.AlertFailed {
		return fmt.Errorf("invalid dispatch status %q", status)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE candidate_alerts SET status = ?, dispatched_at = ?
		WHERE id = ? AND status = ?
	`, status, at, id, models.AlertPending)
	if err != nil {
		return fmt.Errorf("mark alert dispatched: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark alert dispatched rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteAlertRepo) LastDispatch(ctx context.Context, tenantID, fingerprint string) (time.Time, bool, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT MAX(dispatched_at) FROM candidate_alerts
		WHERE tenant_id = ? AND fingerprint = ? AND status = ?
	`, tenantID, fingerprint, models.AlertSent).Scan(&at)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("query last dispatch: %w", err)
	}
	if !at.Valid {
		return time.Time{}, false, nil
	}
	return at.Time, true, nil
}

const alertSelect = `
	SELECT id, tenant_id, rule_id, signal_id, status, fingerprint,
		payload_json, reason, created_at, dispatched_at
	FROM candidate_alerts
`

func scanAlert(row rowScanner) (*models.CandidateAlert, error) {
	var alert models.CandidateAlert
	var payload string
	var reason sql.NullString
	var dispatchedAt sql.NullTime
	err := row.Scan(&alert.ID, &alert.TenantID, &alert.RuleID, &alert.SignalID,
		&alert.Status, &alert.Fingerprint, &payload, &reason,
		&alert.CreatedAt, &dispatchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan candidate alert: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &alert.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal alert payload: %w", err)
	}
	alert.Reason = reason.String
	if dispatchedAt.Valid {
		alert.DispatchedAt = dispatchedAt.Time
	}
	return &alert, nil
}

type sqliteJudgmentRepo struct {
	db *sql.DB
}

func (r *sqliteJudgmentRepo) Create(ctx context.Context, j *models.OperatorJudgment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO judgments (id, tenant_id, alert_id, fingerprint, verdict, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, j.ID, j.TenantID, j.AlertID, j.Fingerprint, j.Verdict, j.RecordedAt)
	if err != nil {
		return fmt.Errorf("insert judgment: %w", err)
	}
	return nil
}

func (r *sqliteJudgmentRepo) RecentByFingerprint(ctx context.Context, tenantID, fingerprint string, limit int) ([]*models.OperatorJudgment, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, alert_id, fingerprint, verdict, recorded_at
		FROM judgments
		WHERE tenant_id = ? AND fingerprint = ?
		ORDER BY recorded_at DESC
		LIMIT ?
	`, tenantID, fingerprint, limit)
	if err != nil {
		return nil, fmt.Errorf("list judgments: %w", err)
	}
	defer rows.Close()

	var judgments []*models.OperatorJudgment
	for rows.Next() {
		var j models.OperatorJudgment
		if err := rows.Scan(&j.ID, &j.TenantID, &j.AlertID, &j.Fingerprint,
			&j.Verdict, &j.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan judgment: %w", err)
		}
		judgments = append(judgments, &j)
	}
	return judgments, rows.Err()
}
