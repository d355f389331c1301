package bootstrap

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

const (
	MethodLinear    = "linear"
	MethodEmpirical = "empirical"
)

// Percentile returns the p-quantile (0 <= p <= 1) of sorted values, which may
// end in +Inf entries. "linear" interpolates between neighbours (R type 7);
// an interpolation touching +Inf is +Inf. "empirical" returns an element.
func Percentile(sorted []float64, p float64, method string) (float64, error) {
	n := len(sorted)
	if n == 0 {
		return 0, fmt.Errorf("percentile of empty distribution")
	}
	if p < 0 || p > 1 {
		return 0, fmt.Errorf("percentile %v out of [0, 1]", p)
	}
	switch method {
	case MethodLinear, "":
		h := float64(n-1) * p
		lo := int(math.Floor(h))
		frac := h - float64(lo)
		if lo >= n-1 {
			return sorted[n-1], nil
		}
		a, b := sorted[lo], sorted[lo+1]
		if frac == 0 {
			return a, nil
		}
		if math.IsInf(a, 1) || math.IsInf(b, 1) {
			return math.Inf(1), nil
		}
		return a + frac*(b-a), nil
	case MethodEmpirical:
		return stat.Quantile(p, stat.Empirical, sorted, nil), nil
	}
	return 0, fmt.Errorf("unknown percentile method %q", method)
}
