package detector

import (
	"math"
	"testing"
)

func TestSeverityCurve(t *testing.T) {
	const threshold = 0.05

	tests := []struct {
		name  string
		delta float64
		want  float64
	}{
		{"zero delta", 0, 0},
		{"half threshold", 0.025, 0.25},
		{"at threshold", 0.05, 0.5},
		{"saturated at 3x threshold", 0.15, 1.0},
		{"beyond saturation", 0.50, 1.0},
		{"negative delta uses magnitude", -0.05, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Severity(tt.delta, threshold)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Severity(%v, %v) = %v, want %v", tt.delta, threshold, got, tt.want)
			}
		})
	}
}

func TestSeverityMonotonic(t *testing.T) {
	const threshold = 0.05
	prev := -1.0
	for d := 0.0; d <= 0.3; d += 0.001 {
		s := Severity(d, threshold)
		if s < prev {
			t.Fatalf("severity decreased at delta=%v: %v < %v", d, s, prev)
		}
		if s < 0 || s > 1 {
			t.Fatalf("severity out of range at delta=%v: %v", d, s)
		}
		prev = s
	}
}

func TestSeverityDegenerateThreshold(t *testing.T) {
	if s := Severity(0.5, 0); s != 0 {
		t.Errorf("Severity with zero threshold = %v, want 0", s)
	}
}

func TestConfidenceMonotonicInSamples(t *testing.T) {
	prev := -1.0
	for n := int64(0); n <= 500; n += 10 {
		c := Confidence(n, n, 1.0, false)
		if c < prev {
			t.Fatalf("confidence decreased at n=%d: %v < %v", n, c, prev)
		}
		prev = c
	}
}

func TestConfidenceSignificanceBoost(t *testing.T) {
	base := Confidence(100, 100, 1.0, false)
	withTest := Confidence(100, 100, 0.20, true)
	significant := Confidence(100, 100, 0.001, true)

	if !(significant > withTest && withTest > base) {
		t.Errorf("want significant (%v) > available (%v) > none (%v)", significant, withTest, base)
	}
}

func TestConfidenceBounds(t *testing.T) {
	if c := Confidence(-5, -5, 0.001, true); c < 0 || c > 1 {
		t.Errorf("confidence out of range for degenerate input: %v", c)
	}
	if c := Confidence(1 << 40, 1 << 40, 0.001, true); c > 1 {
		t.Errorf("confidence exceeds 1: %v", c)
	}
}
