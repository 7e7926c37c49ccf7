// Package network detects payer-wide drift patterns recurring across tenants.
package network

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/storage"
)

// MinTenants is how many distinct tenants must show the same degrading
// pattern before it counts as payer-wide.
const MinTenants = 3

// DefaultLookback is how far back stored signals are considered.
const DefaultLookback = 7 * 24 * time.Hour

// scanLockName fences concurrent network scans; the scan is system-wide, so
// the lock has no tenant component.
const scanLockName = "network-scan"

const scanLockTTL = 10 * time.Minute

// Detector scans stored per-tenant signals for (payer, signal type) patterns
// that recur across tenants. It reads aggregate pattern counts through the
// one elevated reader in the system and emits payer-scoped alerts that carry
// no tenant identities.
type Detector struct {
	signals  storage.CrossTenantSignalReader
	alerts   storage.NetworkAlertRepository
	locks    storage.LockManager
	lookback time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewDetector creates a network pattern detector with the default lookback.
func NewDetector(signals storage.CrossTenantSignalReader, alerts storage.NetworkAlertRepository, locks storage.LockManager, logger *zap.Logger) *Detector {
	return &Detector{
		signals:  signals,
		alerts:   alerts,
		locks:    locks,
		lookback: DefaultLookback,
		logger:   logger,
		now:      time.Now,
	}
}

// SetLookback overrides the scan window.
func (d *Detector) SetLookback(lookback time.Duration) {
	d.lookback = lookback
}

// Scan finds qualifying patterns and records one network alert per pattern
// per window. Returns the alerts created by this scan. A scan already in
// progress elsewhere yields storage.ErrLockHeld; that is retryable and
// leaves no state behind.
func (d *Detector) Scan(ctx context.Context) ([]*models.NetworkAlert, error) {
	holder := uuid.New().String()
	if err := d.locks.Acquire(ctx, scanLockName, holder, scanLockTTL); err != nil {
		if errors.Is(err, storage.ErrLockHeld) {
			return nil, fmt.Errorf("network scan: %w", err)
		}
		return nil, fmt.Errorf("acquire scan lock: %w", err)
	}
	defer func() {
		if err := d.locks.Release(context.Background(), scanLockName, holder); err != nil {
			d.logger.Warn("release scan lock", zap.Error(err))
		}
	}()

	now := d.now().UTC()
	since := now.Add(-d.lookback)

	groups, err := d.signals.PayerSignalGroups(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("scan signal groups: %w", err)
	}

	var created []*models.NetworkAlert
	for _, g := range groups {
		if g.TenantCount < MinTenants {
			continue
		}

		open, err := d.alerts.HasOpenAlert(ctx, g.Payer, g.Type, since)
		if err != nil {
			return created, fmt.Errorf("check open alert for %s/%s: %w", g.Payer, g.Type, err)
		}
		if open {
			continue
		}

		alert := models.NewNetworkAlert(g.Payer, g.Type, g.TenantCount)
		alert.WindowStart = since
		alert.WindowEnd = now
		if err := d.alerts.Create(ctx, alert); err != nil {
			return created, fmt.Errorf("create network alert for %s/%s: %w", g.Payer, g.Type, err)
		}
		created = append(created, alert)

		d.logger.Info("network pattern detected",
			zap.String("payer", g.Payer),
			zap.String("signal_type", string(g.Type)),
			zap.Int("tenant_count", g.TenantCount))
	}
	return created, nil
}
