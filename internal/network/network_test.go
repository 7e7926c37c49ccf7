package network

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/storage"
)

type fakeSignalReader struct {
	groups []storage.PayerSignalGroup
}

func (f *fakeSignalReader) PayerSignalGroups(ctx context.Context, since time.Time) ([]storage.PayerSignalGroup, error) {
	return f.groups, nil
}

type fakeNetworkAlertRepo struct {
	existing map[string]bool // keyed payer|type
	created  []*models.NetworkAlert
}

func (f *fakeNetworkAlertRepo) Create(ctx context.Context, alert *models.NetworkAlert) error {
	f.created = append(f.created, alert)
	return nil
}

func (f *fakeNetworkAlertRepo) HasOpenAlert(ctx context.Context, payer string, typ models.SignalType, since time.Time) (bool, error) {
	return f.existing[payer+"|"+string(typ)], nil
}

func (f *fakeNetworkAlertRepo) List(ctx context.Context, limit int) ([]*models.NetworkAlert, error) {
	return f.created, nil
}

type fakeLockManager struct {
	held map[string]string
}

func newFakeLockManager() *fakeLockManager {
	return &fakeLockManager{held: map[string]string{}}
}

func (f *fakeLockManager) Acquire(ctx context.Context, name, holder string, ttl time.Duration) error {
	if h, ok := f.held[name]; ok && h != holder {
		return storage.ErrLockHeld
	}
	f.held[name] = holder
	return nil
}

func (f *fakeLockManager) Release(ctx context.Context, name, holder string) error {
	if f.held[name] == holder {
		delete(f.held, name)
	}
	return nil
}

func TestScanTenantThreshold(t *testing.T) {
	reader := &fakeSignalReader{groups: []storage.PayerSignalGroup{
		{Payer: "acme-health", Type: models.SignalDenialRate, TenantCount: 3},
		{Payer: "beta-care", Type: models.SignalDenialRate, TenantCount: 2},
	}}
	repo := &fakeNetworkAlertRepo{}
	d := NewDetector(reader, repo, newFakeLockManager(), zap.NewNop())

	created, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 1 {
		t.Fatalf("got %d alerts, want 1", len(created))
	}
	a := created[0]
	if a.Payer != "acme-health" || a.Type != models.SignalDenialRate || a.TenantCount != 3 {
		t.Errorf("alert = %+v", a)
	}
	if a.WindowEnd.Sub(a.WindowStart) != DefaultLookback {
		t.Errorf("window span = %v, want %v", a.WindowEnd.Sub(a.WindowStart), DefaultLookback)
	}
}

func TestScanDedupsOpenPatterns(t *testing.T) {
	reader := &fakeSignalReader{groups: []storage.PayerSignalGroup{
		{Payer: "acme-health", Type: models.SignalDenialRate, TenantCount: 5},
	}}
	repo := &fakeNetworkAlertRepo{existing: map[string]bool{"acme-health|denial_rate": true}}
	d := NewDetector(reader, repo, newFakeLockManager(), zap.NewNop())

	created, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("got %d alerts for already-open pattern, want 0", len(created))
	}
}

func TestScanLockContention(t *testing.T) {
	reader := &fakeSignalReader{groups: []storage.PayerSignalGroup{
		{Payer: "acme-health", Type: models.SignalDenialRate, TenantCount: 5},
	}}
	repo := &fakeNetworkAlertRepo{}
	locks := newFakeLockManager()
	d := NewDetector(reader, repo, locks, zap.NewNop())

	// Another scheduler holds the scan lock.
	if err := locks.Acquire(context.Background(), "network-scan", "other-worker", time.Minute); err != nil {
		t.Fatalf("pre-acquire lock: %v", err)
	}

	created, err := d.Scan(context.Background())
	if !errors.Is(err, storage.ErrLockHeld) {
		t.Fatalf("scan error = %v, want ErrLockHeld", err)
	}
	if len(created) != 0 || len(repo.created) != 0 {
		t.Errorf("contended scan created %d alerts, want 0", len(repo.created))
	}
}

func TestScanReleasesLock(t *testing.T) {
	reader := &fakeSignalReader{}
	d := NewDetector(reader, &fakeNetworkAlertRepo{}, newFakeLockManager(), zap.NewNop())

	if _, err := d.Scan(context.Background()); err != nil {
		t.Fatalf("first scan: %v", err)
	}
	// Lock released: a second scan proceeds immediately.
	if _, err := d.Scan(context.Background()); err != nil {
		t.Fatalf("second scan: %v", err)
	}
}

func TestScanDistinctPatternsAreIndependent(t *testing.T) {
	// Same payer with two qualifying signal types is two patterns.
	reader := &fakeSignalReader{groups: []storage.PayerSignalGroup{
		{Payer: "acme-health", Type: models.SignalDenialRate, TenantCount: 4},
		{Payer: "acme-health", Type: models.SignalPaymentDelay, TenantCount: 3},
	}}
	repo := &fakeNetworkAlertRepo{}
	d := NewDetector(reader, repo, newFakeLockManager(), zap.NewNop())

	created, err := d.Scan(context.Background())
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(created) != 2 {
		t.Errorf("got %d alerts, want 2", len(created))
	}
}
