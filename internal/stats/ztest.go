package stats

import "math"

// TestUnavailableP is the p-value reported when a significance test cannot be
// run on the given inputs. It is deliberately 1.0 (not significant) so that a
// failed test can never promote a signal.
const TestUnavailableP = 1.0

// TwoProportionZTest compares two observed proportions x1/n1 and x2/n2 using
// the pooled two-proportion z-test. Returns the z statistic and the two-sided
// p-value. ok is false for degenerate inputs (empty samples, or a pooled
// proportion of exactly 0 or 1, where the test statistic is undefined).
func TwoProportionZTest(x1, n1, x2, n2 int64) (z, p float64, ok bool) {
	if n1 <= 0 || n2 <= 0 {
		return 0, TestUnavailableP, false
	}
	p1 := float64(x1) / float64(n1)
	p2 := float64(x2) / float64(n2)
	pooled := float64(x1+x2) / float64(n1+n2)
	if pooled <= 0 || pooled >= 1 {
		return 0, TestUnavailableP, false
	}
	se := math.Sqrt(pooled * (1 - pooled) * (1/float64(n1) + 1/float64(n2)))
	if se == 0 {
		return 0, TestUnavailableP, false
	}
	z = (p2 - p1) / se
	return z, twoSidedP(z), true
}

// ChiSquare2x2 runs Pearson's chi-square test on a 2x2 contingency table
//
//	            success  failure
//	  group A      a        b
//	  group B      c        d
//
// Returns the chi-square statistic and p-value (1 degree of freedom). ok is
// false when any row or column margin is zero, where the table carries no
// information.
func ChiSquare2x2(a, b, c, d int64) (chi2, p float64, ok bool) {
	rowA := a + b
	rowB := c + d
	colS := a + c
	colF := b + d
	n := rowA + rowB
	if rowA == 0 || rowB == 0 || colS == 0 || colF == 0 {
		return 0, TestUnavailableP, false
	}
	diff := float64(a*d - b*c)
	chi2 = float64(n) * diff * diff / (float64(rowA) * float64(rowB) * float64(colS) * float64(colF))
	// For df=1, P(X > chi2) = erfc(sqrt(chi2/2)).
	return chi2, math.Erfc(math.Sqrt(chi2 / 2)), true
}

// twoSidedP converts a z statistic to a two-sided p-value using the
// complementary error function.
func twoSidedP(z float64) float64 {
	return math.Erfc(math.Abs(z) / math.Sqrt2)
}
