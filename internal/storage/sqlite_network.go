package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

type sqliteNetworkAlertRepo struct {
	db *sql.DB
}

func (r *sqliteNetworkAlertRepo) Create(ctx context.Context, alert *models.NetworkAlert) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO network_alerts (id, payer, signal_type, tenant_count,
			window_start, window_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, alert.ID, alert.Payer, alert.Type, alert.TenantCount,
		alert.WindowStart, alert.WindowEnd, alert.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert network alert: %w", err)
	}
	return nil
}

func (r *sqliteNetworkAlertRepo) HasOpenAlert(ctx context.Context, payer string, typ models.SignalType, since time.Time) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM network_alerts
		WHERE payer = ? AND signal_type = ? AND created_at >= ?
	`, payer, typ, since).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("query open network alerts: %w", err)
	}
	return count > 0, nil
}

func (r *sqliteNetworkAlertRepo) List(ctx context.Context, limit int) ([]*models.NetworkAlert, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, payer, signal_type, tenant_count, window_start, window_end, created_at
		FROM network_alerts
		ORDER BY created_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list network alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.NetworkAlert
	for rows.Next() {
		var a models.NetworkAlert
		if err := rows.Scan(&a.ID, &a.Payer, &a.Type, &a.TenantCount,
			&a.WindowStart, &a.WindowEnd, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan network alert: %w", err)
		}
		alerts = append(alerts, &a)
	}
	return alerts, rows.Err()
}
