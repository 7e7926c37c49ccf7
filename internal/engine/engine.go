// Package engine orchestrates a full drift computation run: windowing,
// aggregation, detection, scoring, persistence, alert evaluation, and
// suppression-aware dispatch.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/clearclaim/driftwatch/internal/alerting"
	"github.com/clearclaim/driftwatch/internal/audit"
	"github.com/clearclaim/driftwatch/internal/claims"
	"github.com/clearclaim/driftwatch/internal/detector"
	"github.com/clearclaim/driftwatch/internal/metrics"
	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/notifier"
	"github.com/clearclaim/driftwatch/internal/stats"
	"github.com/clearclaim/driftwatch/internal/storage"
)

// Config holds run orchestration settings.
type Config struct {
	BaselineDays int           `yaml:"baseline_days"`
	CurrentDays  int           `yaml:"current_days"`
	Parallelism  int           `yaml:"parallelism"`
	LockTTL      time.Duration `yaml:"lock_ttl"`
	ProductName  string        `yaml:"product_name"`
}

// DefaultConfig returns the production run settings.
func DefaultConfig() Config {
	return Config{
		BaselineDays: 90,
		CurrentDays:  7,
		Parallelism:  4,
		LockTTL:      10 * time.Minute,
		ProductName:  "driftwatch",
	}
}

// Dispatcher is the outbound alert surface the engine depends on.
type Dispatcher interface {
	Dispatch(ctx context.Context, alert *models.CandidateAlert) error
}

// Engine runs the per-tenant drift pipeline.
type Engine struct {
	store      storage.Storage
	reader     claims.Reader
	agg        *stats.Aggregator
	detectors  []detector.Detector
	prediction *detector.Prediction
	evaluator  *alerting.Evaluator
	suppressor *alerting.Suppressor
	dispatcher Dispatcher
	audit      audit.Recorder
	logger     *zap.Logger
	cfg        Config
	now        func() time.Time
}

// New creates an engine.
func New(store storage.Storage, reader claims.Reader, detCfg detector.Config, cfg Config,
	dispatcher Dispatcher, auditRec audit.Recorder, logger *zap.Logger) *Engine {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	return &Engine{
		store:      store,
		reader:     reader,
		agg:        stats.NewAggregator(reader),
		detectors:  detector.StandardSet(detCfg),
		prediction: detector.NewPrediction(detCfg),
		evaluator:  alerting.NewEvaluator(cfg.ProductName),
		suppressor: alerting.NewSuppressor(store.Alerts(), store.Judgments()),
		dispatcher: dispatcher,
		audit:      auditRec,
		logger:     logger,
		cfg:        cfg,
		now:        time.Now,
	}
}

// Suppressor exposes the engine's suppressor for configuration.
func (e *Engine) Suppressor() *alerting.Suppressor {
	return e.suppressor
}

// RunResult summarizes one computation run.
type RunResult struct {
	Run               *models.ComputationRun
	KeysProcessed     int
	Signals           int
	SignalsDeduped    int
	AlertsCreated     int
	AlertsSuppressed  int
	AlertsSent        int
	AlertsFailed      int
	AlertsRateLimited int
	KeyErrors         []string
}

// Run executes the full pipeline for one tenant. Returns
// storage.ErrLockHeld (wrapped) when another run holds the tenant's lock;
// that is retryable and leaves no state behind. Per-key errors do not fail
// the run; they are folded into the run summary. Infrastructure failures
// roll back the run's signals and finalize it as failed.
func (e *Engine) Run(ctx context.Context, tenantID string) (*RunResult, error) {
	holder := uuid.New().String()
	lockName := "run:" + tenantID

	if err := e.store.Locks().Acquire(ctx, lockName, holder, e.cfg.LockTTL); err != nil {
		if errors.Is(err, storage.ErrLockHeld) {
			metrics.RunsTotal.WithLabelValues("lock_contention").Inc()
			return nil, fmt.Errorf("tenant %s: %w", tenantID, err)
		}
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	defer func() {
		if err := e.store.Locks().Release(context.Background(), lockName, holder); err != nil {
			e.logger.Warn("release run lock", zap.String("tenant_id", tenantID), zap.Error(err))
		}
	}()

	started := e.now().UTC()
	currentWin := stats.NewWindow(started, e.cfg.CurrentDays)
	baselineWin := stats.NewWindow(currentWin.Start, e.cfg.BaselineDays)

	run := models.NewComputationRun(tenantID)
	run.BaselineStart = baselineWin.Start
	run.BaselineEnd = baselineWin.End
	run.CurrentStart = currentWin.Start
	run.CurrentEnd = currentWin.End
	if err := e.store.Runs().Create(ctx, run); err != nil {
		return nil, fmt.Errorf("create run: %w", err)
	}

	res := &RunResult{Run: run}

	rules, err := e.store.Rules().ListEnabled(ctx, tenantID)
	if err != nil {
		return res, e.failRun(ctx, run, fmt.Errorf("load alert rules: %w", err))
	}

	keys, err := e.reader.GroupingKeys(ctx, tenantID, baselineWin.Start, currentWin.End)
	if err != nil {
		return res, e.failRun(ctx, run, fmt.Errorf("enumerate grouping keys: %w", err))
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Parallelism)

	for _, key := range keys {
		key := key
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			err := e.processKey(gctx, tenantID, run, key, baselineWin, currentWin, rules, res, &mu)
			if err != nil {
				// One bad key must not sink the run; record and move on.
				mu.Lock()
				res.KeyErrors = append(res.KeyErrors, fmt.Sprintf("%s: %v", key.Label(), err))
				mu.Unlock()
				e.logger.Warn("grouping key failed",
					zap.String("tenant_id", tenantID),
					zap.String("key", key.Label()),
					zap.Error(err))
			}
			mu.Lock()
			res.KeysProcessed++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, e.failRun(ctx, run, err)
	}
	if err := ctx.Err(); err != nil {
		return res, e.failRun(ctx, run, err)
	}

	summary := fmt.Sprintf("%d keys, %d signals, %d alerts sent, %d suppressed, %d key errors",
		res.KeysProcessed, res.Signals, res.AlertsSent, res.AlertsSuppressed, len(res.KeyErrors))
	if err := e.store.Runs().Finalize(ctx, run.ID, models.RunSuccess, summary); err != nil {
		return res, e.failRun(ctx, run, fmt.Errorf("finalize run: %w", err))
	}
	run.Status = models.RunSuccess
	run.Summary = summary

	metrics.RunsTotal.WithLabelValues(string(models.RunSuccess)).Inc()
	metrics.RunDuration.Observe(e.now().Sub(started).Seconds())
	metrics.RunKeysProcessed.Observe(float64(res.KeysProcessed))

	e.audit.Record(audit.Event{
		Action:     "run.finalize",
		EntityType: "run",
		EntityID:   run.ID,
		TenantID:   tenantID,
		Metadata:   map[string]string{"status": string(models.RunSuccess), "summary": summary},
	})
	e.logger.Info("run complete",
		zap.String("tenant_id", tenantID),
		zap.String("run_id", run.ID),
		zap.String("summary", summary))

	return res, nil
}

// failRun rolls back the run's signals and finalizes it as failed, so a
// failed run never leaves partial results queryable.
func (e *Engine) failRun(ctx context.Context, run *models.ComputationRun, cause error) error {
	// Use a fresh context: the cause may be the caller's cancellation.
	cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if n, err := e.store.Signals().DeleteByRun(cleanupCtx, run.ID); err != nil {
		e.logger.Error("rollback signals", zap.String("run_id", run.ID), zap.Error(err))
	} else if n > 0 {
		e.logger.Info("rolled back signals", zap.String("run_id", run.ID), zap.Int64("count", n))
	}
	if err := e.store.Runs().Finalize(cleanupCtx, run.ID, models.RunFailed, cause.Error()); err != nil {
		e.logger.Error("finalize failed run", zap.String("run_id", run.ID), zap.Error(err))
	}
	run.Status = models.RunFailed

	metrics.RunsTotal.WithLabelValues(string(models.RunFailed)).Inc()
	e.audit.Record(audit.Event{
		Action:     "run.finalize",
		EntityType: "run",
		EntityID:   run.ID,
		TenantID:   run.TenantID,
		Metadata:   map[string]string{"status": string(models.RunFailed), "error": cause.Error()},
	})
	return fmt.Errorf("run %s failed: %w", run.ID, cause)
}

// processKey runs every detector for one grouping key and pushes any
// resulting signals through alert evaluation.
func (e *Engine) processKey(ctx context.Context, tenantID string, run *models.ComputationRun,
	key models.GroupingKey, baselineWin, currentWin stats.Window,
	rules []*models.AlertRule, res *RunResult, mu *sync.Mutex) error {

	baseline, err := e.agg.Aggregate(ctx, tenantID, key, baselineWin, claims.BasisDecided)
	if err != nil {
		return err
	}
	current, err := e.agg.Aggregate(ctx, tenantID, key, currentWin, claims.BasisDecided)
	if err != nil {
		return err
	}

	// Processing-time windows select by submission date so slow decisions
	// still land in the window they were submitted in.
	subBaseline, err := e.agg.Aggregate(ctx, tenantID, key, baselineWin, claims.BasisSubmitted)
	if err != nil {
		return err
	}
	subCurrent, err := e.agg.Aggregate(ctx, tenantID, key, currentWin, claims.BasisSubmitted)
	if err != nil {
		return err
	}

	for _, d := range e.detectors {
		b, c := baseline, current
		if d.Type() == models.SignalProcessingTime {
			b, c = subBaseline, subCurrent
		}

		detectStart := e.now()
		cand := d.Detect(key, b, c)
		metrics.DetectorDuration.WithLabelValues(string(d.Type())).Observe(e.now().Sub(detectStart).Seconds())

		if cand == nil {
			continue
		}
		if err := e.storeAndEvaluate(ctx, tenantID, run, key, cand, rules, res, mu); err != nil {
			return err
		}
	}

	// The prediction detector consumes its own short windows anchored at the
	// run start.
	predBaseline, err := e.agg.Aggregate(ctx, tenantID, key,
		stats.NewWindow(run.CurrentEnd, detector.PredictionBaselineDays), claims.BasisDecided)
	if err != nil {
		return err
	}
	predCurrent, err := e.agg.Aggregate(ctx, tenantID, key,
		stats.NewWindow(run.CurrentEnd, detector.PredictionCurrentDays), claims.BasisDecided)
	if err != nil {
		return err
	}

	detectStart := e.now()
	cand := e.prediction.Detect(key, predBaseline, predCurrent)
	metrics.DetectorDuration.WithLabelValues(string(e.prediction.Type())).Observe(e.now().Sub(detectStart).Seconds())

	if cand != nil {
		if err := e.storeAndEvaluate(ctx, tenantID, run, key, cand, rules, res, mu); err != nil {
			return err
		}
	}
	return nil
}

// storeAndEvaluate scores and persists one candidate signal, then evaluates
// it against the tenant's rules. A dedup conflict is a no-op success: the
// previously stored signal continues into evaluation.
func (e *Engine) storeAndEvaluate(ctx context.Context, tenantID string, run *models.ComputationRun,
	key models.GroupingKey, cand *detector.Candidate,
	rules []*models.AlertRule, res *RunResult, mu *sync.Mutex) error {

	sig := models.NewDriftSignal(tenantID, run.ID, key, cand.Type)
	sig.Trend = cand.Trend
	sig.BaselineValue = cand.BaselineValue
	sig.CurrentValue = cand.CurrentValue
	sig.Delta = cand.Delta
	sig.BaselineN = cand.BaselineN
	sig.CurrentN = cand.CurrentN
	sig.PValue = cand.PValue
	sig.RevenueImpact = cand.RevenueImpact
	sig.Summary = cand.Summary
	sig.Severity, sig.Confidence = detector.Score(cand)

	stored, created, err := e.store.Signals().Create(ctx, sig)
	if err != nil {
		return fmt.Errorf("store signal %s/%s: %w", key.Label(), cand.Type, err)
	}
	mu.Lock()
	if created {
		res.Signals++
	} else {
		res.SignalsDeduped++
	}
	mu.Unlock()
	if created {
		metrics.SignalsTotal.WithLabelValues(string(stored.Type)).Inc()
		e.audit.Record(audit.Event{
			Action:     "signal.create",
			EntityType: "signal",
			EntityID:   stored.ID,
			TenantID:   tenantID,
			Metadata:   map[string]string{"signal_type": string(stored.Type), "key": key.Label()},
		})
	} else {
		metrics.SignalsDeduped.Inc()
	}

	metrics.AlertsEvaluated.Inc()
	for _, candAlert := range e.evaluator.Evaluate(stored, rules) {
		if err := e.decideAlert(ctx, tenantID, candAlert, res, mu); err != nil {
			return err
		}
	}
	return nil
}

// decideAlert persists the candidate and routes it to suppression or
// dispatch.
func (e *Engine) decideAlert(ctx context.Context, tenantID string, cand *models.CandidateAlert,
	res *RunResult, mu *sync.Mutex) error {

	stored, created, err := e.store.Alerts().Create(ctx, cand)
	if err != nil {
		return fmt.Errorf("store candidate alert: %w", err)
	}
	if created {
		mu.Lock()
		res.AlertsCreated++
		mu.Unlock()
		e.audit.Record(audit.Event{
			Action:     "alert.create",
			EntityType: "alert",
			EntityID:   stored.ID,
			TenantID:   tenantID,
			Metadata:   map[string]string{"rule_id": stored.RuleID, "fingerprint": stored.Fingerprint},
		})
	}
	if stored.Status != models.AlertPending {
		// Already decided by an earlier evaluation. A pre-existing pending
		// candidate (rate-limited dispatch) falls through and is retried.
		return nil
	}

	decision, err := e.suppressor.Check(ctx, tenantID, stored.Fingerprint)
	if err != nil {
		return fmt.Errorf("suppression check: %w", err)
	}
	if decision.Suppress {
		if err := e.store.Alerts().MarkSuppressed(ctx, stored.ID, decision.Reason); err != nil {
			return fmt.Errorf("mark suppressed: %w", err)
		}
		mu.Lock()
		res.AlertsSuppressed++
		mu.Unlock()
		metrics.AlertsSuppressed.WithLabelValues(decision.Reason).Inc()
		e.audit.Record(audit.Event{
			Action:     "alert.suppress",
			EntityType: "alert",
			EntityID:   stored.ID,
			TenantID:   tenantID,
			Metadata:   map[string]string{"reason": decision.Reason, "fingerprint": stored.Fingerprint},
		})
		return nil
	}

	err = e.dispatcher.Dispatch(ctx, stored)
	switch {
	case errors.Is(err, notifier.ErrRateLimited):
		// Leave pending; a later pass will pick it up.
		mu.Lock()
		res.AlertsRateLimited++
		mu.Unlock()
		return nil
	case err != nil:
		if markErr := e.store.Alerts().MarkDispatched(ctx, stored.ID, models.AlertFailed, e.now().UTC()); markErr != nil {
			return fmt.Errorf("mark dispatch failed: %w", markErr)
		}
		mu.Lock()
		res.AlertsFailed++
		mu.Unlock()
		metrics.AlertsDispatched.WithLabelValues(string(models.AlertFailed)).Inc()
		e.audit.Record(audit.Event{
			Action:     "alert.dispatch",
			EntityType: "alert",
			EntityID:   stored.ID,
			TenantID:   tenantID,
			Metadata:   map[string]string{"status": string(models.AlertFailed), "error": err.Error()},
		})
		e.logger.Warn("alert dispatch failed",
			zap.String("alert_id", stored.ID),
			zap.String("tenant_id", tenantID),
			zap.Error(err))
		return nil
	}

	if err := e.store.Alerts().MarkDispatched(ctx, stored.ID, models.AlertSent, e.now().UTC()); err != nil {
		return fmt.Errorf("mark dispatched: %w", err)
	}
	mu.Lock()
	res.AlertsSent++
	mu.Unlock()
	metrics.AlertsDispatched.WithLabelValues(string(models.AlertSent)).Inc()
	e.audit.Record(audit.Event{
		Action:     "alert.dispatch",
		EntityType: "alert",
		EntityID:   stored.ID,
		TenantID:   tenantID,
		Metadata:   map[string]string{"status": string(models.AlertSent), "fingerprint": stored.Fingerprint},
	})
	return nil
}
