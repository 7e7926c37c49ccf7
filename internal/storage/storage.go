// Package storage provides the driftwatch state store: computation runs,
// drift signals, alert rules, candidate alerts, operator judgments, network
// alerts, and advisory locks.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// ErrLockHeld is returned when an advisory lock is already held. It is
// retryable: the caller may reschedule the run; no work was attempted.
var ErrLockHeld = errors.New("advisory lock held")

// Storage is the main interface for state store operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Runs() RunRepository
	Signals() SignalRepository
	Rules() AlertRuleRepository
	Alerts() CandidateAlertRepository
	Judgments() JudgmentRepository
	NetworkAlerts() NetworkAlertRepository
	Locks() LockManager

	// CrossTenantSignals returns the elevated reader used only by the
	// network-pattern detector.
	CrossTenantSignals() CrossTenantSignalReader
}

// RunRepository manages computation run lifecycle.
type RunRepository interface {
	Create(ctx context.Context, run *models.ComputationRun) error
	// Finalize transitions a run out of the running state exactly once.
	Finalize(ctx context.Context, id string, status models.RunStatus, summary string) error
	GetByID(ctx context.Context, id string) (*models.ComputationRun, error)
	List(ctx context.Context, tenantID string, limit int) ([]*models.ComputationRun, error)
}

// SignalRepository persists drift signals. Signals are append-only.
type SignalRepository interface {
	// Create inserts a signal guarded by the uniqueness constraint on
	// (tenant, run, key, signal type). On conflict it is a no-op success:
	// created is false and the previously stored signal is returned, so the
	// caller can continue to alert evaluation.
	Create(ctx context.Context, sig *models.DriftSignal) (stored *models.DriftSignal, created bool, err error)
	GetByID(ctx context.Context, id string) (*models.DriftSignal, error)
	ListByRun(ctx context.Context, tenantID, runID string) ([]*models.DriftSignal, error)
	// DeleteByRun removes every signal of a run. Used only when a run fails,
	// so failed runs retain no partial state.
	DeleteByRun(ctx context.Context, runID string) (int64, error)
}

// PayerSignalGroup is one (payer, signal type) pattern seen across tenants.
type PayerSignalGroup struct {
	Payer       string
	Type        models.SignalType
	TenantCount int
}

// CrossTenantSignalReader reads stored signals across tenant boundaries.
// This is the only elevated interface in the system; everything else is
// tenant-scoped by method signature. Only the network-pattern detector may
// hold one.
type CrossTenantSignalReader interface {
	// PayerSignalGroups returns (payer, signal type) pairs with the count of
	// distinct tenants that stored a degrading signal since the given time.
	PayerSignalGroups(ctx context.Context, since time.Time) ([]PayerSignalGroup, error)
}

// AlertRuleRepository manages tenant-configured alert rules.
type AlertRuleRepository interface {
	// Upsert inserts a rule or, when a rule with the same (tenant, name)
	// exists, updates its threshold configuration in place.
	Upsert(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	List(ctx context.Context, tenantID string) ([]*models.AlertRule, error)
	ListEnabled(ctx context.Context, tenantID string) ([]*models.AlertRule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	Delete(ctx context.Context, id string) error
}

// CandidateAlertRepository manages candidate alerts and their terminal states.
type CandidateAlertRepository interface {
	// Create inserts a candidate guarded by the uniqueness constraint on
	// (signal, rule). On conflict the existing candidate is returned and
	// created is false.
	Create(ctx context.Context, alert *models.CandidateAlert) (stored *models.CandidateAlert, created bool, err error)
	GetByID(ctx context.Context, id string) (*models.CandidateAlert, error)
	List(ctx context.Context, tenantID string, limit int) ([]*models.CandidateAlert, error)
	// MarkSuppressed moves a pending candidate to the suppressed terminal
	// state with an explicit reason. Suppressed alerts stay visible.
	MarkSuppressed(ctx context.Context, id, reason string) error
	// MarkDispatched records the outcome of a dispatch attempt (sent or
	// failed) and its timestamp.
	MarkDispatched(ctx context.Context, id string, status models.AlertStatus, at time.Time) error
	// LastDispatch returns the most recent successful dispatch time for a
	// (tenant, fingerprint). ok is false when none exists.
	LastDispatch(ctx context.Context, tenantID, fingerprint string) (time.Time, bool, error)
}

// JudgmentRepository stores append-only operator feedback.
type JudgmentRepository interface {
	Create(ctx context.Context, j *models.OperatorJudgment) error
	// RecentByFingerprint returns up to limit judgments for a tenant and
	// fingerprint, most recent first.
	RecentByFingerprint(ctx context.Context, tenantID, fingerprint string, limit int) ([]*models.OperatorJudgment, error)
}

// NetworkAlertRepository stores payer-wide network alerts.
type NetworkAlertRepository interface {
	Create(ctx context.Context, alert *models.NetworkAlert) error
	// HasOpenAlert reports whether an alert for (payer, type) was created
	// since the given time, to keep one alert per pattern per window.
	HasOpenAlert(ctx context.Context, payer string, typ models.SignalType, since time.Time) (bool, error)
	List(ctx context.Context, limit int) ([]*models.NetworkAlert, error)
}

// LockManager provides advisory locks for run scheduling. Locks are
// best-effort fences against double-processing, not correctness guards; the
// signal uniqueness constraint remains the final arbiter.
type LockManager interface {
	// Acquire takes the named lock for holder. Returns ErrLockHeld when the
	// lock is held by someone else and not stale.
	Acquire(ctx context.Context, name, holder string, ttl time.Duration) error
	// Release drops the named lock if held by holder.
	Release(ctx context.Context, name, holder string) error
}
