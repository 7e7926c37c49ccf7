package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/clearclaim/driftwatch/internal/audit"
	"github.com/clearclaim/driftwatch/internal/claims"
	"github.com/clearclaim/driftwatch/internal/detector"
	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/notifier"
	"github.com/clearclaim/driftwatch/internal/storage"
)

type recordingDispatcher struct {
	sent []*models.CandidateAlert
	err  error
}

func (d *recordingDispatcher) Dispatch(ctx context.Context, alert *models.CandidateAlert) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, alert)
	return nil
}

type recordingRecorder struct {
	mu     sync.Mutex
	events []audit.Event
}

func (r *recordingRecorder) Record(ev audit.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recordingRecorder) actions() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]int{}
	for _, ev := range r.events {
		out[ev.Action]++
	}
	return out
}

// rateLimitedOnceDispatcher rejects the first dispatch as rate limited and
// accepts everything after.
type rateLimitedOnceDispatcher struct {
	calls int
	sent  []*models.CandidateAlert
}

func (d *rateLimitedOnceDispatcher) Dispatch(ctx context.Context, alert *models.CandidateAlert) error {
	d.calls++
	if d.calls == 1 {
		return notifier.ErrRateLimited
	}
	d.sent = append(d.sent, alert)
	return nil
}

type failingReader struct{}

func (failingReader) ListClaims(ctx context.Context, tenantID string, key models.GroupingKey, start, end time.Time, basis claims.DateBasis) ([]*models.Claim, error) {
	return nil, errors.New("warehouse unavailable")
}

func (failingReader) GroupingKeys(ctx context.Context, tenantID string, start, end time.Time) ([]models.GroupingKey, error) {
	return nil, errors.New("warehouse unavailable")
}

func setupStore(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	store := storage.NewSQLiteStorage(filepath.Join(t.TempDir(), "test.db"))
	if err := store.Open(); err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// addClaims adds count decided claims spread across the window, denied of
// them denied and the rest paid.
func addClaims(store *claims.MemoryStore, tenantID, payer, group string, start, end time.Time, count, denied int) {
	span := end.Sub(start)
	for i := 0; i < count; i++ {
		decided := start.Add(time.Duration(i) * span / time.Duration(count))
		outcome := models.OutcomePaid
		if i < denied {
			outcome = models.OutcomeDenied
		}
		store.Add(&models.Claim{
			ID:             fmt.Sprintf("%s-%s-%d", payer, start.Format("0102"), i),
			TenantID:       tenantID,
			Payer:          payer,
			ProcedureGroup: group,
			Outcome:        outcome,
			SubmittedDate:  decided.AddDate(0, 0, -10),
			DecidedDate:    decided,
			AllowedAmount:  150,
		})
	}
}

func newTestEngine(store *storage.SQLiteStorage, reader claims.Reader, d Dispatcher) *Engine {
	return New(store, reader, detector.DefaultConfig(), DefaultConfig(), d, audit.NopRecorder{}, zap.NewNop())
}

func TestRunEndToEnd(t *testing.T) {
	store := setupStore(t)
	reader := claims.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	ctx := context.Background()

	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -7)
	baselineStart := currentStart.AddDate(0, 0, -90)

	// Baseline 10% denial, current ~35%: well past the denial-rate threshold.
	addClaims(reader, "tenant-a", "acme-health", "cardiology", baselineStart, currentStart, 400, 40)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", currentStart, now, 200, 70)
	// A stable key that must produce nothing.
	addClaims(reader, "tenant-a", "beta-care", "oncology", baselineStart, currentStart, 300, 30)
	addClaims(reader, "tenant-a", "beta-care", "oncology", currentStart, now, 100, 10)

	rule := models.NewAlertRule("tenant-a", "high-severity", models.MetricSeverity, models.OpGTE, 0.5)
	if err := store.Rules().Upsert(ctx, rule); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}

	eng := newTestEngine(store, reader, dispatcher)
	res, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if res.Run.Status != models.RunSuccess {
		t.Errorf("run status = %s, want success", res.Run.Status)
	}
	if res.KeysProcessed != 2 {
		t.Errorf("keys processed = %d, want 2", res.KeysProcessed)
	}
	if res.Signals == 0 {
		t.Fatal("no signals produced for drifting key")
	}

	signals, err := store.Signals().ListByRun(ctx, "tenant-a", res.Run.ID)
	if err != nil {
		t.Fatalf("list signals: %v", err)
	}
	var denialSig *models.DriftSignal
	for _, s := range signals {
		if s.Key.Payer == "beta-care" {
			t.Errorf("stable key produced signal %s", s.Type)
		}
		if s.Type == models.SignalDenialRate {
			denialSig = s
		}
	}
	if denialSig == nil {
		t.Fatal("no denial_rate signal for drifting key")
	}
	if denialSig.Trend != models.TrendDegrading {
		t.Errorf("trend = %s, want degrading", denialSig.Trend)
	}
	if denialSig.Severity < 0.5 {
		t.Errorf("severity = %v, want >= 0.5", denialSig.Severity)
	}

	if len(dispatcher.sent) == 0 {
		t.Fatal("no alerts dispatched")
	}
	if res.AlertsSent != len(dispatcher.sent) {
		t.Errorf("AlertsSent = %d, dispatcher saw %d", res.AlertsSent, len(dispatcher.sent))
	}
}

func TestRunLockContention(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	// Another worker holds the tenant's run lock.
	if err := store.Locks().Acquire(ctx, "run:tenant-a", "other-worker", time.Minute); err != nil {
		t.Fatalf("pre-acquire lock: %v", err)
	}

	eng := newTestEngine(store, claims.NewMemoryStore(), &recordingDispatcher{})
	_, err := eng.Run(ctx, "tenant-a")
	if !errors.Is(err, storage.ErrLockHeld) {
		t.Fatalf("run error = %v, want ErrLockHeld", err)
	}

	// Retryable: nothing was created.
	runs, err := store.Runs().List(ctx, "tenant-a", 10)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("got %d runs after lock contention, want 0", len(runs))
	}
}

func TestRunReleasesLock(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	eng := newTestEngine(store, claims.NewMemoryStore(), &recordingDispatcher{})
	if _, err := eng.Run(ctx, "tenant-a"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	// Lock released: a second run proceeds immediately.
	if _, err := eng.Run(ctx, "tenant-a"); err != nil {
		t.Fatalf("second run: %v", err)
	}
}

func TestRunFailureRollsBack(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	eng := newTestEngine(store, failingReader{}, &recordingDispatcher{})
	res, err := eng.Run(ctx, "tenant-a")
	if err == nil {
		t.Fatal("expected run failure")
	}

	run, getErr := store.Runs().GetByID(ctx, res.Run.ID)
	if getErr != nil {
		t.Fatalf("get run: %v", getErr)
	}
	if run.Status != models.RunFailed {
		t.Errorf("run status = %s, want failed", run.Status)
	}
	signals, listErr := store.Signals().ListByRun(ctx, "tenant-a", res.Run.ID)
	if listErr != nil {
		t.Fatalf("list signals: %v", listErr)
	}
	if len(signals) != 0 {
		t.Errorf("failed run kept %d signals, want 0", len(signals))
	}
}

func TestRunSuppressesLearnedNoise(t *testing.T) {
	store := setupStore(t)
	reader := claims.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	ctx := context.Background()

	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -7)
	baselineStart := currentStart.AddDate(0, 0, -90)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", baselineStart, currentStart, 400, 40)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", currentStart, now, 200, 70)

	rule := models.NewAlertRule("tenant-a", "high-severity", models.MetricSeverity, models.OpGTE, 0.5)
	if err := store.Rules().Upsert(ctx, rule); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}

	eng := newTestEngine(store, reader, dispatcher)

	// First run to discover the fingerprint the alerts will carry.
	res, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if len(dispatcher.sent) == 0 {
		t.Fatal("first run dispatched nothing")
	}
	fingerprint := dispatcher.sent[0].Fingerprint

	// Operator marks the pattern noise three times.
	for i := 0; i < 3; i++ {
		j := models.NewOperatorJudgment("tenant-a", dispatcher.sent[0].ID, fingerprint, models.VerdictNoise)
		if err := store.Judgments().Create(ctx, j); err != nil {
			t.Fatalf("create judgment: %v", err)
		}
	}
	_ = res

	// Disable cooldown so only noise learning is in play.
	eng.Suppressor().SetCooldown(0)
	dispatcher.sent = nil

	res2, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res2.AlertsSuppressed == 0 {
		t.Error("no alerts suppressed after three noise judgments")
	}
	for _, a := range dispatcher.sent {
		if a.Fingerprint == fingerprint {
			t.Error("learned-noise fingerprint was dispatched")
		}
	}

	alerts, err := store.Alerts().List(ctx, "tenant-a", 50)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	foundSuppressed := false
	for _, a := range alerts {
		if a.Status == models.AlertSuppressed && a.Reason == "learned_noise" {
			foundSuppressed = true
		}
	}
	if !foundSuppressed {
		t.Error("no alert recorded as suppressed with learned_noise reason")
	}
}

func TestRunCooldownSuppression(t *testing.T) {
	store := setupStore(t)
	reader := claims.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	ctx := context.Background()

	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -7)
	baselineStart := currentStart.AddDate(0, 0, -90)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", baselineStart, currentStart, 400, 40)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", currentStart, now, 200, 70)

	rule := models.NewAlertRule("tenant-a", "high-severity", models.MetricSeverity, models.OpGTE, 0.5)
	if err := store.Rules().Upsert(ctx, rule); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}

	eng := newTestEngine(store, reader, dispatcher)
	if _, err := eng.Run(ctx, "tenant-a"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	firstSent := len(dispatcher.sent)
	if firstSent == 0 {
		t.Fatal("first run dispatched nothing")
	}

	// Second run minutes later: same conditions, new run id, so new signals
	// and candidates are created, but the 4h cooldown suppresses dispatch.
	dispatcher.sent = nil
	res, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(dispatcher.sent) != 0 {
		t.Errorf("second run dispatched %d alerts within cooldown", len(dispatcher.sent))
	}
	if res.AlertsSuppressed == 0 {
		t.Error("second run suppressed nothing")
	}
}

func TestRunNoRulesNoAlerts(t *testing.T) {
	store := setupStore(t)
	reader := claims.NewMemoryStore()
	dispatcher := &recordingDispatcher{}
	ctx := context.Background()

	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -7)
	baselineStart := currentStart.AddDate(0, 0, -90)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", baselineStart, currentStart, 400, 40)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", currentStart, now, 200, 70)

	eng := newTestEngine(store, reader, dispatcher)
	res, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	// Signals are stored and queryable, but nothing is announced.
	if res.Signals == 0 {
		t.Error("no signals stored")
	}
	if res.AlertsCreated != 0 || len(dispatcher.sent) != 0 {
		t.Errorf("alerts created=%d sent=%d without any rules", res.AlertsCreated, len(dispatcher.sent))
	}
}

func TestRunEmitsAuditTrail(t *testing.T) {
	store := setupStore(t)
	reader := claims.NewMemoryStore()
	recorder := &recordingRecorder{}
	ctx := context.Background()

	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -7)
	baselineStart := currentStart.AddDate(0, 0, -90)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", baselineStart, currentStart, 400, 40)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", currentStart, now, 200, 70)

	rule := models.NewAlertRule("tenant-a", "high-severity", models.MetricSeverity, models.OpGTE, 0.5)
	if err := store.Rules().Upsert(ctx, rule); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}

	eng := New(store, reader, detector.DefaultConfig(), DefaultConfig(),
		&recordingDispatcher{}, recorder, zap.NewNop())
	res, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	actions := recorder.actions()
	if actions["signal.create"] != res.Signals {
		t.Errorf("signal.create events = %d, want %d", actions["signal.create"], res.Signals)
	}
	if actions["alert.create"] != res.AlertsCreated {
		t.Errorf("alert.create events = %d, want %d", actions["alert.create"], res.AlertsCreated)
	}
	if actions["alert.dispatch"] != res.AlertsSent {
		t.Errorf("alert.dispatch events = %d, want %d", actions["alert.dispatch"], res.AlertsSent)
	}
	if actions["run.finalize"] != 1 {
		t.Errorf("run.finalize events = %d, want 1", actions["run.finalize"])
	}
}

func TestRunAuditsFailedDispatch(t *testing.T) {
	store := setupStore(t)
	reader := claims.NewMemoryStore()
	recorder := &recordingRecorder{}
	ctx := context.Background()

	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -7)
	baselineStart := currentStart.AddDate(0, 0, -90)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", baselineStart, currentStart, 400, 40)
	addClaims(reader, "tenant-a", "acme-health", "cardiology", currentStart, now, 200, 70)

	rule := models.NewAlertRule("tenant-a", "high-severity", models.MetricSeverity, models.OpGTE, 0.5)
	if err := store.Rules().Upsert(ctx, rule); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}

	eng := New(store, reader, detector.DefaultConfig(), DefaultConfig(),
		&recordingDispatcher{err: errors.New("webhook down")}, recorder, zap.NewNop())
	res, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.AlertsFailed == 0 {
		t.Fatal("no failed dispatches")
	}

	failed := 0
	recorder.mu.Lock()
	for _, ev := range recorder.events {
		if ev.Action == "alert.dispatch" && ev.Metadata["status"] == string(models.AlertFailed) {
			failed++
		}
	}
	recorder.mu.Unlock()
	if failed != res.AlertsFailed {
		t.Errorf("failed-dispatch audit events = %d, want %d", failed, res.AlertsFailed)
	}
}

func TestPendingCandidateRetriedAfterRateLimit(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	run := models.NewComputationRun("tenant-a")
	if err := store.Runs().Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	key := models.GroupingKey{Payer: "acme-health", ProcedureGroup: "cardiology"}
	sig, _, err := store.Signals().Create(ctx, models.NewDriftSignal("tenant-a", run.ID, key, models.SignalDenialRate))
	if err != nil {
		t.Fatalf("create signal: %v", err)
	}
	rule := models.NewAlertRule("tenant-a", "high-severity", models.MetricSeverity, models.OpGTE, 0.5)
	if err := store.Rules().Upsert(ctx, rule); err != nil {
		t.Fatalf("upsert rule: %v", err)
	}

	dispatcher := &rateLimitedOnceDispatcher{}
	eng := newTestEngine(store, claims.NewMemoryStore(), dispatcher)
	payload := models.AlertPayload{SignalType: sig.Type, EntityLabel: key.Label()}
	var mu sync.Mutex

	// First evaluation is rate limited; the candidate stays pending.
	res := &RunResult{}
	cand := models.NewCandidateAlert("tenant-a", rule.ID, sig.ID, "fp-1", payload)
	if err := eng.decideAlert(ctx, "tenant-a", cand, res, &mu); err != nil {
		t.Fatalf("first decide: %v", err)
	}
	if res.AlertsRateLimited != 1 {
		t.Errorf("AlertsRateLimited = %d, want 1", res.AlertsRateLimited)
	}
	got, err := store.Alerts().GetByID(ctx, cand.ID)
	if err != nil {
		t.Fatalf("get alert: %v", err)
	}
	if got.Status != models.AlertPending {
		t.Fatalf("status after rate limit = %s, want pending", got.Status)
	}

	// Re-evaluating the same (signal, rule) picks up the pending candidate
	// and retries dispatch.
	res2 := &RunResult{}
	retry := models.NewCandidateAlert("tenant-a", rule.ID, sig.ID, "fp-1", payload)
	if err := eng.decideAlert(ctx, "tenant-a", retry, res2, &mu); err != nil {
		t.Fatalf("second decide: %v", err)
	}
	if res2.AlertsCreated != 0 {
		t.Errorf("retry counted %d new candidates, want 0", res2.AlertsCreated)
	}
	if res2.AlertsSent != 1 {
		t.Errorf("retry AlertsSent = %d, want 1", res2.AlertsSent)
	}
	if len(dispatcher.sent) != 1 {
		t.Fatalf("dispatcher saw %d alerts, want 1", len(dispatcher.sent))
	}
	got, err = store.Alerts().GetByID(ctx, cand.ID)
	if err != nil {
		t.Fatalf("get alert after retry: %v", err)
	}
	if got.Status != models.AlertSent {
		t.Errorf("status after retry = %s, want sent", got.Status)
	}
}

func TestRunTenantIsolation(t *testing.T) {
	store := setupStore(t)
	reader := claims.NewMemoryStore()
	ctx := context.Background()

	now := time.Now().UTC()
	currentStart := now.AddDate(0, 0, -7)
	baselineStart := currentStart.AddDate(0, 0, -90)
	// Only tenant-b has claims.
	addClaims(reader, "tenant-b", "acme-health", "cardiology", baselineStart, currentStart, 400, 40)
	addClaims(reader, "tenant-b", "acme-health", "cardiology", currentStart, now, 200, 70)

	eng := newTestEngine(store, reader, &recordingDispatcher{})
	res, err := eng.Run(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.KeysProcessed != 0 || res.Signals != 0 {
		t.Errorf("tenant-a saw tenant-b data: keys=%d signals=%d", res.KeysProcessed, res.Signals)
	}
}
