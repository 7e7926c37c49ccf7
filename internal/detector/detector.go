// Package detector implements the drift detector family. Each detector
// compares one metric between a baseline and a current window for a single
// (tenant, payer, procedure group) and emits at most one candidate per key.
package detector

import (
	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/stats"
)

// Candidate is a detector's raw output before scoring and persistence.
type Candidate struct {
	Type          models.SignalType
	Trend         models.TrendDirection
	BaselineValue float64
	CurrentValue  float64
	Delta         float64
	BaselineN     int64
	CurrentN      int64
	// PValue is 1.0 when no significance test was applicable.
	PValue        float64
	TestAvailable bool
	// Threshold is the detector's emit threshold, used by the severity curve.
	Threshold float64
	// RevenueImpact is a prioritization estimate only, never a gate.
	RevenueImpact float64
	Summary       string
}

// Detector compares baseline and current window stats for one grouping key.
// A nil candidate means no drift worth reporting (including insufficient
// data, which is not an error).
type Detector interface {
	Type() models.SignalType
	Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate
}

// Config holds every detector threshold. Thresholds are absolute deltas in
// the metric's own unit (rate points, days, or fractional change).
type Config struct {
	DenialRateDelta     float64 `yaml:"denial_rate_delta"`
	DenialMinSamples    int64   `yaml:"denial_min_samples"`
	UnderpaymentPct     float64 `yaml:"underpayment_pct"`
	AmountMinSamples    int64   `yaml:"amount_min_samples"`
	PaymentDelayDays    float64 `yaml:"payment_delay_days"`
	PaymentMinSamples   int64   `yaml:"payment_min_samples"`
	AuthFailureDelta    float64 `yaml:"auth_failure_delta"`
	AuthMinSamples      int64   `yaml:"auth_min_samples"`
	ApprovalRateDelta   float64 `yaml:"approval_rate_delta"`
	ApprovalMinSamples  int64   `yaml:"approval_min_samples"`
	ProcessingTimeDays  float64 `yaml:"processing_time_days"`
	DecisionMinSamples  int64   `yaml:"decision_min_samples"`
	PredictionRateDelta float64 `yaml:"prediction_rate_delta"`
	PredictionMinN      int64   `yaml:"prediction_min_samples"`
	PredictionAlpha     float64 `yaml:"prediction_alpha"`
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		DenialRateDelta:     0.05,
		DenialMinSamples:    20,
		UnderpaymentPct:     0.05,
		AmountMinSamples:    10,
		PaymentDelayDays:    7,
		PaymentMinSamples:   10,
		AuthFailureDelta:    0.10,
		AuthMinSamples:      15,
		ApprovalRateDelta:   0.05,
		ApprovalMinSamples:  20,
		ProcessingTimeDays:  5,
		DecisionMinSamples:  15,
		PredictionRateDelta: 0.05,
		PredictionMinN:      10,
		PredictionAlpha:     0.05,
	}
}

// StandardSet returns the six detectors that run on the standard
// baseline/current windows. The behavioral-prediction detector is separate
// because it consumes its own short windows; the network detector lives in
// its own package because it crosses tenants.
func StandardSet(cfg Config) []Detector {
	return []Detector{
		&DenialRate{cfg: cfg},
		&Underpayment{cfg: cfg},
		&PaymentDelay{cfg: cfg},
		&AuthFailure{cfg: cfg},
		&ApprovalRate{cfg: cfg},
		&ProcessingTime{cfg: cfg},
	}
}

// trendFor classifies a delta where positive means degrading.
func trendFor(degradingDelta float64) models.TrendDirection {
	if degradingDelta > 0 {
		return models.TrendDegrading
	}
	return models.TrendImproving
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
