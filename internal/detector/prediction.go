package detector

import (
	"fmt"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/stats"
)

// Prediction is the early-warning detector. It compares a very short current
// window (3 days) against a short baseline (14 days) on denial rate, catching
// drift weeks before the monthly comparison would. Because the windows are so
// thin it gates on BOTH a chi-square significance test and an absolute rate
// change; either alone is not enough to emit.
type Prediction struct {
	cfg Config
}

// NewPrediction creates the behavioral-prediction detector.
func NewPrediction(cfg Config) *Prediction {
	return &Prediction{cfg: cfg}
}

// BaselineDays and CurrentDays are the fixed short-window lengths.
const (
	PredictionBaselineDays = 14
	PredictionCurrentDays  = 3
)

func (d *Prediction) Type() models.SignalType { return models.SignalBehaviorPrediction }

func (d *Prediction) Detect(key models.GroupingKey, baseline, current stats.WindowStats) *Candidate {
	if baseline.Count < d.cfg.PredictionMinN || current.Count < d.cfg.PredictionMinN {
		return nil
	}
	baseRate, _ := baseline.DenialRate()
	curRate, _ := current.DenialRate()
	delta := curRate - baseRate

	// Two-condition AND: a significant test with a trivial rate change is
	// ignored, and a big rate change without significance is ignored.
	if abs(delta) < d.cfg.PredictionRateDelta {
		return nil
	}
	_, p, ok := stats.ChiSquare2x2(
		current.Denied, current.Count-current.Denied,
		baseline.Denied, baseline.Count-baseline.Denied,
	)
	if !ok || p >= d.cfg.PredictionAlpha {
		return nil
	}

	return &Candidate{
		Type:          models.SignalBehaviorPrediction,
		Trend:         trendFor(delta),
		BaselineValue: baseRate,
		CurrentValue:  curRate,
		Delta:         delta,
		BaselineN:     baseline.Count,
		CurrentN:      current.Count,
		PValue:        p,
		TestAvailable: true,
		Threshold:     d.cfg.PredictionRateDelta,
		RevenueImpact: abs(delta) * float64(current.Count) * baseline.MeanAllowed,
		Summary: fmt.Sprintf("%s early warning: %dd denial rate %.1f%% vs %dd baseline %.1f%% (p=%.4f)",
			key.Label(), PredictionCurrentDays, curRate*100, PredictionBaselineDays, baseRate*100, p),
	}
}
