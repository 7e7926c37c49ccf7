package models

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// RuleMetric names a numeric field of a DriftSignal that an alert rule can
// threshold on.
type RuleMetric string

const (
	MetricSeverity      RuleMetric = "severity"
	MetricConfidence    RuleMetric = "confidence"
	MetricDelta         RuleMetric = "delta"
	MetricCurrentValue  RuleMetric = "current_value"
	MetricRevenueImpact RuleMetric = "revenue_impact"
)

// RuleOperator is the comparison applied between a signal metric and a rule
// threshold.
type RuleOperator string

const (
	OpGT  RuleOperator = "gt"
	OpGTE RuleOperator = "gte"
	OpLT  RuleOperator = "lt"
	OpLTE RuleOperator = "lte"
	OpEQ  RuleOperator = "eq"
)

// ruleEpsilon is the tolerance for float64 equality comparison,
// avoiding unreliable direct == on floating-point values.
const ruleEpsilon = 1e-9

// Compare applies the operator to (value, threshold).
func (op RuleOperator) Compare(value, threshold float64) bool {
	switch op {
	case OpGT:
		return value > threshold
	case OpGTE:
		return value >= threshold
	case OpLT:
		return value < threshold
	case OpLTE:
		return value <= threshold
	case OpEQ:
		diff := value - threshold
		if diff < 0 {
			diff = -diff
		}
		return diff < ruleEpsilon
	default:
		return false
	}
}

// AlertRule is a tenant-configured threshold on drift signals. Rules are
// created and edited outside the core; the evaluator treats them as read-only
// input.
type AlertRule struct {
	ID            string       `json:"id" yaml:"-"`
	TenantID      string       `json:"tenant_id" yaml:"tenant_id"`
	Name          string       `json:"name" yaml:"name"`
	Metric        RuleMetric   `json:"metric" yaml:"metric"`
	Operator      RuleOperator `json:"operator" yaml:"operator"`
	Threshold     float64      `json:"threshold" yaml:"threshold"`
	SeverityLabel string       `json:"severity_label" yaml:"severity_label"`
	Enabled       bool         `json:"enabled" yaml:"enabled"`
	CreatedAt     time.Time    `json:"created_at" yaml:"-"`
	UpdatedAt     time.Time    `json:"updated_at" yaml:"-"`
}

// NewAlertRule creates an enabled rule with initialized timestamps.
func NewAlertRule(tenantID, name string, metric RuleMetric, op RuleOperator, threshold float64) *AlertRule {
	now := time.Now().UTC()
	return &AlertRule{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Name:      name,
		Metric:    metric,
		Operator:  op,
		Threshold: threshold,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Validate checks the rule configuration.
func (r *AlertRule) Validate() error {
	if r.TenantID == "" {
		return fmt.Errorf("rule tenant_id is required")
	}
	if r.Name == "" {
		return fmt.Errorf("rule name is required")
	}
	switch r.Metric {
	case MetricSeverity, MetricConfidence, MetricDelta, MetricCurrentValue, MetricRevenueImpact:
	default:
		return fmt.Errorf("invalid metric %q for rule %q", r.Metric, r.Name)
	}
	switch r.Operator {
	case OpGT, OpGTE, OpLT, OpLTE, OpEQ:
	default:
		return fmt.Errorf("invalid operator %q for rule %q", r.Operator, r.Name)
	}
	return nil
}

// MetricValue extracts the rule's metric from a signal.
func (r *AlertRule) MetricValue(sig *DriftSignal) (float64, bool) {
	switch r.Metric {
	case MetricSeverity:
		return sig.Severity, true
	case MetricConfidence:
		return sig.Confidence, true
	case MetricDelta:
		return sig.Delta, true
	case MetricCurrentValue:
		return sig.CurrentValue, true
	case MetricRevenueImpact:
		return sig.RevenueImpact, true
	default:
		return 0, false
	}
}

// AlertStatus is the lifecycle state of a candidate alert. The three terminal
// states never transition further; a later identical condition produces a new
// candidate, not a reopening.
type AlertStatus string

const (
	AlertPending    AlertStatus = "pending"
	AlertSuppressed AlertStatus = "suppressed"
	AlertSent       AlertStatus = "sent"
	AlertFailed     AlertStatus = "failed"
)

// AlertPayload is the flat key-value structure handed to the notification
// collaborator. Field naming is stable across signal types because the
// suppression fingerprint hashes over it.
type AlertPayload struct {
	ProductName   string            `json:"product_name"`
	SignalType    SignalType        `json:"signal_type"`
	EntityLabel   string            `json:"entity_label"`
	Severity      float64           `json:"severity"`
	Confidence    float64           `json:"confidence"`
	Delta         float64           `json:"delta"`
	RevenueImpact float64           `json:"revenue_impact"`
	Summary       string            `json:"summary"`
	Extra         map[string]string `json:"extra,omitempty"`
}

// Flatten returns the payload as a flat string map for transports that cannot
// carry typed values.
func (p *AlertPayload) Flatten() map[string]string {
	out := map[string]string{
		"product_name":   p.ProductName,
		"signal_type":    string(p.SignalType),
		"entity_label":   p.EntityLabel,
		"severity":       strconv.FormatFloat(p.Severity, 'f', 4, 64),
		"confidence":     strconv.FormatFloat(p.Confidence, 'f', 4, 64),
		"delta":          strconv.FormatFloat(p.Delta, 'f', 4, 64),
		"revenue_impact": strconv.FormatFloat(p.RevenueImpact, 'f', 2, 64),
		"summary":        p.Summary,
	}
	for k, v := range p.Extra {
		out[k] = v
	}
	return out
}

// CandidateAlert is a (signal, rule) match awaiting a fire-or-suppress
// decision. Unique on (signal_id, rule_id): re-evaluating the same signal
// against the same rule returns the existing candidate.
type CandidateAlert struct {
	ID           string       `json:"id"`
	TenantID     string       `json:"tenant_id"`
	RuleID       string       `json:"rule_id"`
	SignalID     string       `json:"signal_id"`
	Status       AlertStatus  `json:"status"`
	Fingerprint  string       `json:"fingerprint"`
	Payload      AlertPayload `json:"payload"`
	Reason       string       `json:"reason,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	DispatchedAt time.Time    `json:"dispatched_at,omitempty"`
}

// NewCandidateAlert creates a pending candidate alert.
func NewCandidateAlert(tenantID, ruleID, signalID, fingerprint string, payload AlertPayload) *CandidateAlert {
	return &CandidateAlert{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		RuleID:      ruleID,
		SignalID:    signalID,
		Status:      AlertPending,
		Fingerprint: fingerprint,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}
}

// Verdict is an operator's judgment of a dispatched or suppressed alert.
type Verdict string

const (
	VerdictReal  Verdict = "real"
	VerdictNoise Verdict = "noise"
)

// ParseVerdict converts a string to Verdict.
func ParseVerdict(s string) (Verdict, error) {
	switch s {
	case "real":
		return VerdictReal, nil
	case "noise":
		return VerdictNoise, nil
	default:
		return "", fmt.Errorf("invalid verdict %q: must be \"real\" or \"noise\"", s)
	}
}

// OperatorJudgment is append-only human feedback on a candidate alert. The
// suppression engine reads recent judgments per fingerprint to learn chronic
// false positives. Judgments are tenant-scoped; the same payer name at a
// different tenant never counts.
type OperatorJudgment struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	AlertID     string    `json:"alert_id"`
	Fingerprint string    `json:"fingerprint"`
	Verdict     Verdict   `json:"verdict"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// NewOperatorJudgment records a verdict for an alert.
func NewOperatorJudgment(tenantID, alertID, fingerprint string, verdict Verdict) *OperatorJudgment {
	return &OperatorJudgment{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		AlertID:     alertID,
		Fingerprint: fingerprint,
		Verdict:     verdict,
		RecordedAt:  time.Now().UTC(),
	}
}
