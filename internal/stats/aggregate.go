package stats

import (
	"context"
	"fmt"
	"math"

	"github.com/clearclaim/driftwatch/internal/claims"
	"github.com/clearclaim/driftwatch/internal/models"
)

// Aggregator computes WindowStats from raw claims. It is read-only: it never
// mutates the claims store and holds no state between calls.
type Aggregator struct {
	reader claims.Reader
}

// NewAggregator creates an aggregator over the given claims reader.
func NewAggregator(reader claims.Reader) *Aggregator {
	return &Aggregator{reader: reader}
}

// Aggregate computes the full stats bundle for one (tenant, key, window).
// Claims are selected by the basis date. A window with no matching claims
// yields Count == 0 and zeroed derived fields; callers treat that as
// insufficient data rather than an error.
func (a *Aggregator) Aggregate(ctx context.Context, tenantID string, key models.GroupingKey, window Window, basis claims.DateBasis) (WindowStats, error) {
	rows, err := a.reader.ListClaims(ctx, tenantID, key, window.Start, window.End, basis)
	if err != nil {
		return WindowStats{}, fmt.Errorf("list claims %s %s: %w", key.Label(), window, err)
	}
	return Compute(window, rows), nil
}

// Compute derives WindowStats from an already-fetched claim slice. Split out
// from Aggregate so detectors can be tested without a reader.
func Compute(window Window, rows []*models.Claim) WindowStats {
	s := WindowStats{Window: window}

	var amountSum, amountSumSq float64
	var paymentDays, decisionDays float64

	for _, c := range rows {
		s.Count++

		switch c.Outcome {
		case models.OutcomeDenied:
			s.Denied++
		case models.OutcomePaid:
			s.Paid++
		case models.OutcomePartial:
			s.Partial++
		}

		if c.AuthRequired {
			s.AuthRequired++
			if c.Outcome == models.OutcomeDenied {
				s.AuthDenied++
			}
		}

		if (c.Outcome == models.OutcomePaid || c.Outcome == models.OutcomePartial) && c.AllowedAmount > 0 {
			s.AmountSamples++
			amountSum += c.AllowedAmount
			amountSumSq += c.AllowedAmount * c.AllowedAmount
		}

		if c.Outcome == models.OutcomePaid && !c.PaymentDate.IsZero() && !c.SubmittedDate.IsZero() {
			s.PaymentSamples++
			paymentDays += c.PaymentDate.Sub(c.SubmittedDate).Hours() / 24
		}

		if c.Decided() && !c.DecidedDate.IsZero() && !c.SubmittedDate.IsZero() {
			s.DecisionSamples++
			decisionDays += c.DecidedDate.Sub(c.SubmittedDate).Hours() / 24
		}
	}

	if s.AmountSamples > 0 {
		n := float64(s.AmountSamples)
		s.MeanAllowed = amountSum / n
		variance := amountSumSq/n - s.MeanAllowed*s.MeanAllowed
		if variance > 0 {
			s.StddevAllowed = math.Sqrt(variance)
		}
	}
	if s.PaymentSamples > 0 {
		s.MeanDaysToPayment = paymentDays / float64(s.PaymentSamples)
	}
	if s.DecisionSamples > 0 {
		s.MeanDaysToDecision = decisionDays / float64(s.DecisionSamples)
	}

	s.sanitize()
	return s
}
