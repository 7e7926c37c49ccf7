package alerting

import (
	"fmt"
	"strconv"

	"github.com/clearclaim/driftwatch/internal/models"
)

// Evaluator matches drift signals against a tenant's alert rules. Rules are
// read-only input; the evaluator never mutates them.
type Evaluator struct {
	productName string
}

// NewEvaluator creates an evaluator. productName becomes part of every alert
// payload and fingerprint.
func NewEvaluator(productName string) *Evaluator {
	return &Evaluator{productName: productName}
}

// Evaluate returns one pending candidate alert per rule the signal matches.
// A signal matching no rules produces nothing; it stays queryable but is
// never announced.
func (e *Evaluator) Evaluate(sig *models.DriftSignal, rules []*models.AlertRule) []*models.CandidateAlert {
	var candidates []*models.CandidateAlert
	for _, rule := range rules {
		if !rule.Enabled || rule.TenantID != sig.TenantID {
			continue
		}
		value, ok := rule.MetricValue(sig)
		if !ok {
			continue
		}
		if !rule.Operator.Compare(value, rule.Threshold) {
			continue
		}

		payload := e.BuildPayload(sig)
		fp := Fingerprint(e.productName, sig.Type, sig.Key.Label())
		candidates = append(candidates, models.NewCandidateAlert(sig.TenantID, rule.ID, sig.ID, fp, payload))
	}
	return candidates
}

// BuildPayload assembles the flat notification payload for a signal. Field
// naming is identical across signal types.
func (e *Evaluator) BuildPayload(sig *models.DriftSignal) models.AlertPayload {
	return models.AlertPayload{
		ProductName:   e.productName,
		SignalType:    sig.Type,
		EntityLabel:   sig.Key.Label(),
		Severity:      sig.Severity,
		Confidence:    sig.Confidence,
		Delta:         sig.Delta,
		RevenueImpact: sig.RevenueImpact,
		Summary:       sig.Summary,
		Extra: map[string]string{
			"trend":          string(sig.Trend),
			"baseline_value": strconv.FormatFloat(sig.BaselineValue, 'f', 4, 64),
			"current_value":  strconv.FormatFloat(sig.CurrentValue, 'f', 4, 64),
			"baseline_n":     strconv.FormatInt(sig.BaselineN, 10),
			"current_n":      strconv.FormatInt(sig.CurrentN, 10),
			"p_value":        strconv.FormatFloat(sig.PValue, 'f', 6, 64),
			"run_id":         sig.RunID,
		},
	}
}

// DescribeMatch renders a one-line explanation of why a rule matched, for
// audit logging.
func DescribeMatch(rule *models.AlertRule, sig *models.DriftSignal) string {
	value, _ := rule.MetricValue(sig)
	return fmt.Sprintf("rule %q: %s %s %g (actual %g)",
		rule.Name, rule.Metric, rule.Operator, rule.Threshold, value)
}
