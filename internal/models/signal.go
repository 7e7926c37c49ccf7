package models

import (
	"time"

	"github.com/google/uuid"
)

// SignalType identifies the detector family that produced a drift signal.
type SignalType string

const (
	SignalDenialRate         SignalType = "denial_rate"
	SignalUnderpayment       SignalType = "underpayment"
	SignalPaymentDelay       SignalType = "payment_delay"
	SignalAuthFailure        SignalType = "auth_failure"
	SignalApprovalRate       SignalType = "approval_rate"
	SignalProcessingTime     SignalType = "processing_time"
	SignalBehaviorPrediction SignalType = "behavior_prediction"
)

// SignalTypes lists every per-tenant signal type in stable order.
func SignalTypes() []SignalType {
	return []SignalType{
		SignalDenialRate,
		SignalUnderpayment,
		SignalPaymentDelay,
		SignalAuthFailure,
		SignalApprovalRate,
		SignalProcessingTime,
		SignalBehaviorPrediction,
	}
}

// TrendDirection classifies which way a metric moved relative to the payer's
// own baseline.
type TrendDirection string

const (
	TrendDegrading TrendDirection = "degrading"
	TrendImproving TrendDirection = "improving"
)

// DriftSignal is an append-only record of detected behavioral drift for one
// (tenant, run, grouping key, signal type). Unique on that quadruple; the
// constraint is enforced at insert time so concurrent workers cannot produce
// duplicates.
type DriftSignal struct {
	ID             string         `json:"id"`
	TenantID       string         `json:"tenant_id"`
	RunID          string         `json:"run_id"`
	Key            GroupingKey    `json:"key"`
	Type           SignalType     `json:"signal_type"`
	Trend          TrendDirection `json:"trend_direction"`
	BaselineValue  float64        `json:"baseline_value"`
	CurrentValue   float64        `json:"current_value"`
	Delta          float64        `json:"delta"`
	Severity       float64        `json:"severity"`
	Confidence     float64        `json:"confidence"`
	BaselineN      int64          `json:"baseline_sample_size"`
	CurrentN       int64          `json:"current_sample_size"`
	PValue         float64        `json:"p_value"` // 1.0 when no test was applicable
	RevenueImpact  float64        `json:"revenue_impact"`
	Summary        string         `json:"summary"`
	CreatedAt      time.Time      `json:"created_at"`
}

// NewDriftSignal creates a signal with a fresh id and timestamp.
func NewDriftSignal(tenantID, runID string, key GroupingKey, typ SignalType) *DriftSignal {
	return &DriftSignal{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		RunID:     runID,
		Key:       key,
		Type:      typ,
		PValue:    1.0,
		CreatedAt: time.Now().UTC(),
	}
}
