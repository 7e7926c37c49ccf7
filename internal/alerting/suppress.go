package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/storage"
)

// Suppression reasons recorded on suppressed candidates.
const (
	ReasonCooldown     = "cooldown"
	ReasonLearnedNoise = "learned_noise"
)

// DefaultCooldown is the minimum gap between dispatches of the same
// fingerprint for one tenant.
const DefaultCooldown = 4 * time.Hour

// NoiseJudgmentCount is how many consecutive most-recent noise verdicts mark
// a fingerprint as a chronic false positive.
const NoiseJudgmentCount = 3

// Decision is the outcome of a suppression check.
type Decision struct {
	Suppress bool
	Reason   string
}

// Suppressor decides whether a pending candidate alert may be dispatched.
// Both checks are tenant-scoped through the fingerprint lookups; the same
// payer at another tenant never influences the decision.
type Suppressor struct {
	alerts    storage.CandidateAlertRepository
	judgments storage.JudgmentRepository
	cooldown  time.Duration
	now       func() time.Time
}

// NewSuppressor creates a suppressor with the default cooldown.
func NewSuppressor(alerts storage.CandidateAlertRepository, judgments storage.JudgmentRepository) *Suppressor {
	return &Suppressor{
		alerts:    alerts,
		judgments: judgments,
		cooldown:  DefaultCooldown,
		now:       time.Now,
	}
}

// SetCooldown overrides the cooldown duration.
func (s *Suppressor) SetCooldown(d time.Duration) {
	s.cooldown = d
}

// Check runs the suppression checks for a candidate. Cooldown is checked
// first so a fingerprint that is both cooling down and learned noise reports
// the cooldown reason.
func (s *Suppressor) Check(ctx context.Context, tenantID, fingerprint string) (Decision, error) {
	last, ok, err := s.alerts.LastDispatch(ctx, tenantID, fingerprint)
	if err != nil {
		return Decision{}, fmt.Errorf("check cooldown: %w", err)
	}
	if ok && s.now().Sub(last) < s.cooldown {
		return Decision{Suppress: true, Reason: ReasonCooldown}, nil
	}

	noise, err := s.isLearnedNoise(ctx, tenantID, fingerprint)
	if err != nil {
		return Decision{}, err
	}
	if noise {
		return Decision{Suppress: true, Reason: ReasonLearnedNoise}, nil
	}

	return Decision{}, nil
}

// isLearnedNoise reports whether the most recent judgments for the
// fingerprint are unanimous noise. Fewer than NoiseJudgmentCount judgments,
// or any recent "real" verdict, keeps the fingerprint alive.
func (s *Suppressor) isLearnedNoise(ctx context.Context, tenantID, fingerprint string) (bool, error) {
	recent, err := s.judgments.RecentByFingerprint(ctx, tenantID, fingerprint, NoiseJudgmentCount)
	if err != nil {
		return false, fmt.Errorf("check learned noise: %w", err)
	}
	if len(recent) < NoiseJudgmentCount {
		return false, nil
	}
	for _, j := range recent {
		if j.Verdict != models.VerdictNoise {
			return false, nil
		}
	}
	return true, nil
}
