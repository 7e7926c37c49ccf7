package detector

import (
	"fmt"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/stats"
)

// DenialRate detects drift in denied/total between windows.
type DenialRate struct {
	cfg Config
}

func (d *DenialRate) Type() models.SignalType { return models.SignalDenialRate }

func (d *DenialRate) Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate {
	if baseline.Count < d.cfg.DenialMinSamples || current.Count < d.cfg.DenialMinSamples {
		return nil
	}
	baseRate, _ := baseline.DenialRate()
	curRate, _ := current.DenialRate()
	delta := curRate - baseRate
	if abs(delta) < d.cfg.DenialRateDelta {
		return nil
	}

	_, p, ok := stats.TwoProportionZTest(baseline.Denied, baseline.Count, current.Denied, current.Count)

	return &Candidate{
		Type:          models.SignalDenialRate,
		Trend:         trendFor(delta),
		BaselineValue: baseRate,
		CurrentValue:  curRate,
		Delta:         delta,
		BaselineN:     baseline.Count,
		CurrentN:      current.Count,
		PValue:        p,
		TestAvailable: ok,
		Threshold:     d.cfg.DenialRateDelta,
		RevenueImpact: abs(delta) * float64(current.Count) * baseline.MeanAllowed,
		Summary: fmt.Sprintf("%s denial rate moved from %.1f%% to %.1f%% (%+.1f pts)",
			key.Label(), baseRate*100, curRate*100, delta*100),
	}
}

// ApprovalRate detects a decline in paid/total between windows.
type ApprovalRate struct {
	cfg Config
}

func (d *ApprovalRate) Type() models.SignalType { return models.SignalApprovalRate }

func (d *ApprovalRate) Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate {
	if baseline.Count < d.cfg.ApprovalMinSamples || current.Count < d.cfg.ApprovalMinSamples {
		return nil
	}
	baseRate, _ := baseline.ApprovalRate()
	curRate, _ := current.ApprovalRate()
	delta := curRate - baseRate
	if abs(delta) < d.cfg.ApprovalRateDelta {
		return nil
	}

	_, p, ok := stats.TwoProportionZTest(baseline.Paid, baseline.Count, current.Paid, current.Count)

	return &Candidate{
		Type:          models.SignalApprovalRate,
		Trend:         trendFor(-delta), // an approval decline is the degrading direction
		BaselineValue: baseRate,
		CurrentValue:  curRate,
		Delta:         delta,
		BaselineN:     baseline.Count,
		CurrentN:      current.Count,
		PValue:        p,
		TestAvailable: ok,
		Threshold:     d.cfg.ApprovalRateDelta,
		RevenueImpact: abs(delta) * float64(current.Count) * baseline.MeanAllowed,
		Summary: fmt.Sprintf("%s approval rate moved from %.1f%% to %.1f%% (%+.1f pts)",
			key.Label(), baseRate*100, curRate*100, delta*100),
	}
}

// AuthFailure detects a spike in authorization denials over auth-required
// claims.
type AuthFailure struct {
	cfg Config
}

func (d *AuthFailure) Type() models.SignalType { return models.SignalAuthFailure }

func (d *AuthFailure) Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate {
	if baseline.AuthRequired < d.cfg.AuthMinSamples || current.AuthRequired < d.cfg.AuthMinSamples {
		return nil
	}
	baseRate, _ := baseline.AuthFailureRate()
	curRate, _ := current.AuthFailureRate()
	delta := curRate - baseRate
	if abs(delta) < d.cfg.AuthFailureDelta {
		return nil
	}

	_, p, ok := stats.TwoProportionZTest(baseline.AuthDenied, baseline.AuthRequired, current.AuthDenied, current.AuthRequired)

	return &Candidate{
		Type:          models.SignalAuthFailure,
		Trend:         trendFor(delta),
		BaselineValue: baseRate,
		CurrentValue:  curRate,
		Delta:         delta,
		BaselineN:     baseline.AuthRequired,
		CurrentN:      current.AuthRequired,
		PValue:        p,
		TestAvailable: ok,
		Threshold:     d.cfg.AuthFailureDelta,
		Summary: fmt.Sprintf("%s auth failure rate moved from %.1f%% to %.1f%% (%+.1f pts)",
			key.Label(), baseRate*100, curRate*100, delta*100),
	}
}
