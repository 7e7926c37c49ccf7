package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

type sqliteRuleRepo struct {
	db *sql.DB
}

func (r *sqliteRuleRepo) Upsert(ctx context.Context, rule *models.AlertRule) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO alert_rules (id, tenant_id, name, metric, operator,
			threshold, severity_label, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, name) DO UPDATE SET
			metric = excluded.metric,
			operator = excluded.operator,
			threshold = excluded.threshold,
			severity_label = excluded.severity_label,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`, rule.ID, rule.TenantID, rule.Name, rule.Metric, rule.Operator,
		rule.Threshold, nullString(rule.SeverityLabel), boolToInt(rule.Enabled),
		rule.CreatedAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert rule: %w", err)
	}
	return nil
}

func (r *sqliteRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	row := r.db.QueryRowContext(ctx, ruleSelect+` WHERE id = ?`, id)
	return scanRule(row)
}

func (r *sqliteRuleRepo) List(ctx context.Context, tenantID string) ([]*models.AlertRule, error) {
	return r.list(ctx, ruleSelect+` WHERE tenant_id = ? ORDER BY name`, tenantID)
}

func (r *sqliteRuleRepo) ListEnabled(ctx context.Context, tenantID string) ([]*models.AlertRule, error) {
	return r.list(ctx, ruleSelect+` WHERE tenant_id = ? AND enabled = 1 ORDER BY name`, tenantID)
}

func (r *sqliteRuleRepo) list(ctx context.Context, query string, args ...any) ([]*models.AlertRule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var rules []*models.AlertRule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

func (r *sqliteRuleRepo) SetEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE alert_rules SET enabled = ?, updated_at = ? WHERE id = ?
	`, boolToInt(enabled), time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("set rule enabled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set rule enabled rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRuleRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete rule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete rule rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

const ruleSelect = `
	SELECT id, tenant_id, name, metric, operator, threshold, severity_label,
		enabled, created_at, updated_at
	FROM alert_rules
`

func scanRule(row rowScanner) (*models.AlertRule, error) {
	var rule models.AlertRule
	var severityLabel sql.NullString
	var enabled int
	err := row.Scan(&rule.ID, &rule.TenantID, &rule.Name, &rule.Metric,
		&rule.Operator, &rule.Threshold, &severityLabel, &enabled,
		&rule.CreatedAt, &rule.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan rule: %w", err)
	}
	rule.SeverityLabel = severityLabel.String
	rule.Enabled = enabled != 0
	return &rule, nil
}
