package bootstrap

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Metric reduces one resampled pool to a number
type Metric func(values []float64) float64

// Mean is the default metric
func Mean(values []float64) float64 {
	return stat.Mean(values, nil)
}

// Ratio is the observed recovery ratio of a three-period design
type Ratio struct {
	Delta12 float64
	Delta23 float64
	Ratio   float64
}

// Degenerate reports whether the first transition was too small to divide by
func (r Ratio) Degenerate() bool {
	return math.IsInf(r.Ratio, 1)
}

// ratioOf is |d23| / |d12|, or +Inf when |d12| < eps
func ratioOf(d12, d23, eps float64) float64 {
	if math.Abs(d12) < eps {
		return math.Inf(1)
	}
	return math.Abs(d23) / math.Abs(d12)
}

// ComputeRatio compares the P1->P2 shift with the P2->P3 shift of one group
func ComputeRatio(p1, p2, p3 []float64, metric Metric, eps float64) Ratio {
	m1, m2, m3 := metric(p1), metric(p2), metric(p3)
	d12, d23 := m2-m1, m3-m2
	return Ratio{Delta12: d12, Delta23: d23, Ratio: ratioOf(d12, d23, eps)}
}

// ComputeDiDRatio nets each transition against a control group first
func ComputeDiDRatio(t1, t2, t3, c1, c2, c3 []float64, metric Metric, eps float64) Ratio {
	d12 := (metric(t2) - metric(t1)) - (metric(c2) - metric(c1))
	d23 := (metric(t3) - metric(t2)) - (metric(c3) - metric(c2))
	return Ratio{Delta12: d12, Delta23: d23, Ratio: ratioOf(d12, d23, eps)}
}
