package detector

import (
	"fmt"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/stats"
)

// Underpayment detects a drop in mean allowed amount between windows,
// expressed as a fractional change against the baseline mean.
type Underpayment struct {
	cfg Config
}

func (d *Underpayment) Type() models.SignalType { return models.SignalUnderpayment }

func (d *Underpayment) Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate {
	if baseline.AmountSamples < d.cfg.AmountMinSamples || current.AmountSamples < d.cfg.AmountMinSamples {
		return nil
	}
	if baseline.MeanAllowed <= 0 {
		return nil
	}
	pct := (current.MeanAllowed - baseline.MeanAllowed) / baseline.MeanAllowed
	if abs(pct) < d.cfg.UnderpaymentPct {
		return nil
	}

	return &Candidate{
		Type:          models.SignalUnderpayment,
		Trend:         trendFor(-pct), // shrinking payments are the degrading direction
		BaselineValue: baseline.MeanAllowed,
		CurrentValue:  current.MeanAllowed,
		Delta:         pct,
		BaselineN:     baseline.AmountSamples,
		CurrentN:      current.AmountSamples,
		PValue:        stats.TestUnavailableP,
		Threshold:     d.cfg.UnderpaymentPct,
		RevenueImpact: abs(current.MeanAllowed-baseline.MeanAllowed) * float64(current.AmountSamples),
		Summary: fmt.Sprintf("%s mean allowed amount moved from $%.2f to $%.2f (%+.1f%%)",
			key.Label(), baseline.MeanAllowed, current.MeanAllowed, pct*100),
	}
}

// PaymentDelay detects growth in mean days from submission to payment.
type PaymentDelay struct {
	cfg Config
}

func (d *PaymentDelay) Type() models.SignalType { return models.SignalPaymentDelay }

func (d *PaymentDelay) Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate {
	if baseline.PaymentSamples < d.cfg.PaymentMinSamples || current.PaymentSamples < d.cfg.PaymentMinSamples {
		return nil
	}
	delta := current.MeanDaysToPayment - baseline.MeanDaysToPayment
	if abs(delta) < d.cfg.PaymentDelayDays {
		return nil
	}

	return &Candidate{
		Type:          models.SignalPaymentDelay,
		Trend:         trendFor(delta),
		BaselineValue: baseline.MeanDaysToPayment,
		CurrentValue:  current.MeanDaysToPayment,
		Delta:         delta,
		BaselineN:     baseline.PaymentSamples,
		CurrentN:      current.PaymentSamples,
		PValue:        stats.TestUnavailableP,
		Threshold:     d.cfg.PaymentDelayDays,
		RevenueImpact: baseline.MeanAllowed * float64(current.PaymentSamples) * abs(delta) / 365,
		Summary: fmt.Sprintf("%s mean days to payment moved from %.1f to %.1f (%+.1f days)",
			key.Label(), baseline.MeanDaysToPayment, current.MeanDaysToPayment, delta),
	}
}

// ProcessingTime detects growth in mean days from submission to decision.
// Windows for this detector are built on the submission-date basis so
// slow-deciding payers cannot hide by pushing decisions past the window.
type ProcessingTime struct {
	cfg Config
}

func (d *ProcessingTime) Type() models.SignalType { return models.SignalProcessingTime }

func (d *ProcessingTime) Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate {
	if baseline.DecisionSamples < d.cfg.DecisionMinSamples || current.DecisionSamples < d.cfg.DecisionMinSamples {
		return nil
	}
	delta := current.MeanDaysToDecision - baseline.MeanDaysToDecision
	if abs(delta) < d.cfg.ProcessingTimeDays {
		return nil
	}

	return &Candidate{
		Type:          models.SignalProcessingTime,
		Trend:         trendFor(delta),
		BaselineValue: baseline.MeanDaysToDecision,
		CurrentValue:  current.MeanDaysToDecision,
		Delta:         delta,
		BaselineN:     baseline.DecisionSamples,
		CurrentN:      current.DecisionSamples,
		PValue:        stats.TestUnavailableP,
		Threshold:     d.cfg.ProcessingTimeDays,
		Summary: fmt.Sprintf("%s mean days to decision moved from %.1f to %.1f (%+.1f days)",
			key.Label(), baseline.MeanDaysToDecision, current.MeanDaysToDecision, delta),
	}
}
