// Package effect converts DiD estimates into standardized effect sizes.
package effect

import (
	"errors"
	"fmt"
	"math"

	"github.com/ppiankov/ratchet/internal/model"
)

// Epsilon is the smallest |pre mean| for which a percentage change is defined
const Epsilon = 1e-9

var (
	ErrUndefinedPercentageChange = errors.New("percentage change undefined: pre-period mean is zero")
	ErrInvalidPooledSD           = errors.New("pooled standard deviation is not positive")
)

// PooledSD is sqrt(((n1-1)sd1^2 + (n2-1)sd2^2) / (n1+n2-2))
func PooledSD(sd1 float64, n1 int, sd2 float64, n2 int) (float64, error) {
	if n1+n2 <= 2 {
		return 0, fmt.Errorf("%w: need more than 2 observations, have %d", ErrInvalidPooledSD, n1+n2)
	}
	num := float64(n1-1)*sd1*sd1 + float64(n2-1)*sd2*sd2
	v := math.Sqrt(num / float64(n1+n2-2))
	if !(v > 0) || math.IsInf(v, 0) {
		return 0, ErrInvalidPooledSD
	}
	return v, nil
}

// CohensD is the estimate in pooled standard deviation units
func CohensD(did, pooledSD float64) (float64, error) {
	if !(pooledSD > 0) {
		return 0, ErrInvalidPooledSD
	}
	return did / pooledSD, nil
}

// ScaleNormalizedPct expresses the estimate as a percentage of the scale width
func ScaleNormalizedPct(did, scaleRange float64) (float64, error) {
	if !(scaleRange > 0) {
		return 0, fmt.Errorf("scale range must be positive, got %v", scaleRange)
	}
	return did / scaleRange * 100, nil
}

// PercentageChange is (post - pre) / |pre| * 100
func PercentageChange(pre, post float64) (float64, error) {
	if math.Abs(pre) < Epsilon || math.IsNaN(pre) {
		return 0, ErrUndefinedPercentageChange
	}
	return (post - pre) / math.Abs(pre) * 100, nil
}

// Interpret maps |d| to a conventional band
func Interpret(d float64) string {
	switch a := math.Abs(d); {
	case a < 0.2:
		return "negligible"
	case a < 0.5:
		return "small"
	case a < 0.8:
		return "medium"
	case a < 1.2:
		return "large"
	default:
		return "very large"
	}
}

// Inputs carries what Calculate needs from the panel
type Inputs struct {
	DiD        float64
	Horizon    int // multiply per-bucket slopes by this many buckets; 0 or 1 for level effects
	TreatSD    float64
	TreatN     int
	ControlSD  float64
	ControlN   int
	ScaleRange float64
	PreMean    float64
	PostMean   float64
}

// Calculate builds the full EffectSize record. A zero pre-period mean leaves
// PercentageChange nil rather than failing the whole calculation.
func Calculate(in Inputs) (model.EffectSize, error) {
	did := in.DiD
	if in.Horizon > 1 {
		did *= float64(in.Horizon)
	}
	sd, err := PooledSD(in.TreatSD, in.TreatN, in.ControlSD, in.ControlN)
	if err != nil {
		return model.EffectSize{}, err
	}
	d, err := CohensD(did, sd)
	if err != nil {
		return model.EffectSize{}, err
	}
	pct, err := ScaleNormalizedPct(did, in.ScaleRange)
	if err != nil {
		return model.EffectSize{}, err
	}
	out := model.EffectSize{
		DiD:                did,
		PooledSD:           sd,
		CohensD:            d,
		Interpretation:     Interpret(d),
		ScaleNormalizedPct: pct,
		Horizon:            in.Horizon,
	}
	if pc, err := PercentageChange(in.PreMean, in.PostMean); err == nil {
		out.PercentageChange = &pc
	}
	return out, nil
}
