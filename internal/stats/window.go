// Package stats provides windowed aggregation over claims and the closed-form
// statistical tests used by the drift detectors.
package stats

import (
	"fmt"
	"math"
	"time"
)

// Window is a half-open date range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// NewWindow builds a window ending at end and spanning days backwards.
func NewWindow(end time.Time, days int) Window {
	return Window{Start: end.AddDate(0, 0, -days), End: end}
}

// Contains reports whether t falls inside the half-open range.
func (w Window) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Days returns the window length in whole days.
func (w Window) Days() int {
	return int(w.End.Sub(w.Start).Hours() / 24)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format("2006-01-02"), w.End.Format("2006-01-02"))
}

// WindowStats holds every fact the detectors compare between a baseline and a
// current window for one (tenant, grouping key). It is computed fresh each run,
// never updated incrementally. All derived accessors are safe on empty windows:
// they report ok=false instead of dividing by zero.
type WindowStats struct {
	Window Window `json:"window"`

	// Claim counts.
	Count   int64 `json:"count"`
	Denied  int64 `json:"denied"`
	Paid    int64 `json:"paid"`
	Partial int64 `json:"partial"`

	// Authorization counts.
	AuthRequired int64 `json:"auth_required"`
	AuthDenied   int64 `json:"auth_denied"`

	// Allowed-amount distribution over paid and partial claims.
	AmountSamples int64   `json:"amount_samples"`
	MeanAllowed   float64 `json:"mean_allowed"`
	StddevAllowed float64 `json:"stddev_allowed"`

	// Timing means in days.
	PaymentSamples     int64   `json:"payment_samples"`
	MeanDaysToPayment  float64 `json:"mean_days_to_payment"`
	DecisionSamples    int64   `json:"decision_samples"`
	MeanDaysToDecision float64 `json:"mean_days_to_decision"`
}

// DenialRate returns denied/total. ok is false for empty windows.
func (s WindowStats) DenialRate() (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}
	return float64(s.Denied) / float64(s.Count), true
}

// ApprovalRate returns paid/total. ok is false for empty windows.
func (s WindowStats) ApprovalRate() (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}
	return float64(s.Paid) / float64(s.Count), true
}

// AuthFailureRate returns auth denials over auth-required claims. ok is false
// when no claims required authorization.
func (s WindowStats) AuthFailureRate() (float64, bool) {
	if s.AuthRequired == 0 {
		return 0, false
	}
	return float64(s.AuthDenied) / float64(s.AuthRequired), true
}

// sanitize replaces any NaN or Inf produced by degenerate input with zero so
// the struct is safe to persist and compare.
func (s *WindowStats) sanitize() {
	for _, f := range []*float64{&s.MeanAllowed, &s.StddevAllowed, &s.MeanDaysToPayment, &s.MeanDaysToDecision} {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
}
