package detector

// Severity maps an observed delta onto [0, 1] against the detector's emit
// threshold. Below the threshold it rises linearly to 0.5; above it the curve
// keeps rising with diminishing returns and saturates at 1.0 once the excess
// reaches twice the threshold. Crossing the line is rewarded
// disproportionately: a signal just over the threshold scores ~0.5.
func Severity(delta, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	d := delta
	if d < 0 {
		d = -d
	}
	if d <= threshold {
		return 0.5 * d / threshold
	}
	r := (d - threshold) / (2 * threshold)
	if r > 1 {
		r = 1
	}
	return clamp01(0.5 + 0.5*r*(2-r))
}

// Confidence maps sample sizes and an optional significance test onto [0, 1].
// The size component scales with the combined sample count and caps at 0.7;
// a significant test (p < 0.05) adds the remaining 0.3, an available but
// non-significant test adds half of it.
func Confidence(baselineN, currentN int64, pValue float64, testAvailable bool) float64 {
	combined := baselineN + currentN
	if combined < 0 {
		combined = 0
	}

	const sizeCap = 200.0
	size := float64(combined) / sizeCap
	if size > 1 {
		size = 1
	}
	conf := 0.7 * size

	if testAvailable {
		if pValue < 0.05 {
			conf += 0.3
		} else {
			conf += 0.15 * (1 - pValue)
		}
	}
	return clamp01(conf)
}

// Score fills a candidate's derived severity and confidence.
func Score(c *Candidate) (severity, confidence float64) {
	return Severity(c.Delta, c.Threshold), Confidence(c.BaselineN, c.CurrentN, c.PValue, c.TestAvailable)
}

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
