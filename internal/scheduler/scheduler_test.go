package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/engine"
	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/storage"
)

type fakeRunner struct {
	mu   sync.Mutex
	runs []string
	errs map[string]error
}

func (f *fakeRunner) Run(ctx context.Context, tenantID string) (*engine.RunResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, tenantID)
	if err := f.errs[tenantID]; err != nil {
		return nil, err
	}
	return &engine.RunResult{Run: models.NewComputationRun(tenantID)}, nil
}

type fakeScanner struct {
	mu    sync.Mutex
	scans int
}

func (f *fakeScanner) Scan(ctx context.Context) ([]*models.NetworkAlert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scans++
	return nil, nil
}

type fakeRuleRepo struct {
	mu       sync.Mutex
	upserted []*models.AlertRule
}

func (f *fakeRuleRepo) Upsert(ctx context.Context, rule *models.AlertRule) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserted = append(f.upserted, rule)
	return nil
}

func (f *fakeRuleRepo) GetByID(ctx context.Context, id string) (*models.AlertRule, error) {
	return nil, storage.ErrNotFound
}
func (f *fakeRuleRepo) List(ctx context.Context, tenantID string) ([]*models.AlertRule, error) {
	return nil, nil
}
func (f *fakeRuleRepo) ListEnabled(ctx context.Context, tenantID string) ([]*models.AlertRule, error) {
	return nil, nil
}
func (f *fakeRuleRepo) SetEnabled(ctx context.Context, id string, enabled bool) error { return nil }
func (f *fakeRuleRepo) Delete(ctx context.Context, id string) error                   { return nil }

func TestSweepRunsAllTenantsAndScans(t *testing.T) {
	runner := &fakeRunner{}
	scanner := &fakeScanner{}
	s := New(Config{Tenants: []string{"t1", "t2", "t3"}}, runner, scanner, &fakeRuleRepo{}, zap.NewNop())

	s.Sweep(context.Background())

	if len(runner.runs) != 3 {
		t.Errorf("ran %d tenants, want 3", len(runner.runs))
	}
	if scanner.scans != 1 {
		t.Errorf("scans = %d, want 1", scanner.scans)
	}
}

func TestSweepContinuesPastFailures(t *testing.T) {
	runner := &fakeRunner{errs: map[string]error{
		"t1": storage.ErrLockHeld,
		"t2": errors.New("boom"),
	}}
	scanner := &fakeScanner{}
	s := New(Config{Tenants: []string{"t1", "t2", "t3"}}, runner, scanner, &fakeRuleRepo{}, zap.NewNop())

	s.Sweep(context.Background())

	// All tenants attempted despite lock contention and a hard failure.
	if len(runner.runs) != 3 {
		t.Errorf("ran %d tenants, want 3", len(runner.runs))
	}
	if scanner.scans != 1 {
		t.Errorf("scans = %d, want 1", scanner.scans)
	}
}

func TestReloadRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	rulesYAML := `
rules:
  - tenant_id: tenant-a
    name: high-severity
    metric: severity
    operator: gte
    threshold: 0.7
    enabled: true
`
	if err := os.WriteFile(path, []byte(rulesYAML), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	repo := &fakeRuleRepo{}
	s := New(Config{RulesPath: path}, &fakeRunner{}, &fakeScanner{}, repo, zap.NewNop())

	if err := s.ReloadRules(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if len(repo.upserted) != 1 {
		t.Fatalf("upserted %d rules, want 1", len(repo.upserted))
	}
	if repo.upserted[0].Name != "high-severity" {
		t.Errorf("rule name = %q", repo.upserted[0].Name)
	}
}

func TestReloadRulesRejectsBrokenFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	if err := os.WriteFile(path, []byte("rules:\n  - {name: broken}"), 0o644); err != nil {
		t.Fatalf("write rules: %v", err)
	}

	repo := &fakeRuleRepo{}
	s := New(Config{RulesPath: path}, &fakeRunner{}, &fakeScanner{}, repo, zap.NewNop())

	if err := s.ReloadRules(context.Background()); err == nil {
		t.Fatal("expected error for broken rules file")
	}
	if len(repo.upserted) != 0 {
		t.Errorf("broken file upserted %d rules", len(repo.upserted))
	}
}

func TestStartTicksAndStops(t *testing.T) {
	runner := &fakeRunner{}
	scanner := &fakeScanner{}
	s := New(Config{Interval: 10 * time.Millisecond, Tenants: []string{"t1"}}, runner, scanner, &fakeRuleRepo{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("start returned %v", err)
	}

	runner.mu.Lock()
	ran := len(runner.runs)
	runner.mu.Unlock()
	if ran == 0 {
		t.Error("no sweeps ran before cancellation")
	}
}
