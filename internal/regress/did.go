package regress

import (
	"math"

	"github.com/ppiankov/ratchet/internal/model"
)

// Estimate checks cell coverage, builds the design and fits it
func Estimate(obs []Obs, spec Spec, opts Options) (*Fit, error) {
	if err := spec.CheckCoverage(obs); err != nil {
		return nil, err
	}
	d, err := spec.Design(obs)
	if err != nil {
		return nil, err
	}
	return OLS(d, opts)
}

// EstimateDiD fits spec and returns the inference for its target term
func EstimateDiD(obs []Obs, spec Spec, opts Options) (model.DiDResult, *Fit, error) {
	fit, err := Estimate(obs, spec, opts)
	if err != nil {
		return model.DiDResult{}, nil, err
	}
	res, err := fit.DiD(spec.Target)
	if err != nil {
		return model.DiDResult{}, fit, err
	}
	return res, fit, nil
}

// Cumulative scales a per-bucket slope effect to a horizon of h buckets.
// The estimate and standard error scale together, so the statistic and
// p-value are those of the per-bucket estimate.
func Cumulative(res model.DiDResult, horizon int) model.CumulativeEffect {
	h := float64(horizon)
	lo, hi := res.CILower*h, res.CIUpper*h
	if h < 0 {
		lo, hi = hi, lo
	}
	return model.CumulativeEffect{
		Horizon:       horizon,
		Effect:        res.Coefficient * h,
		StandardError: res.StandardError * math.Abs(h),
		Statistic:     res.Statistic * math.Copysign(1, h),
		PValue:        res.PValue,
		CILower:       lo,
		CIUpper:       hi,
	}
}

// Decompose splits a slope fit into per-group pre and post trends.
// The slope spec has no time:post term, so the control trend is the same in
// both segments.
func Decompose(fit *Fit) (model.SlopeDecomposition, error) {
	get := func(term string) (float64, error) {
		c, err := fit.Coefficient(term)
		return c.Estimate, err
	}
	tm, err := get("time")
	if err != nil {
		return model.SlopeDecomposition{}, err
	}
	tt, err := get("treat:time")
	if err != nil {
		return model.SlopeDecomposition{}, err
	}
	ttp, err := get("treat:time:post")
	if err != nil {
		return model.SlopeDecomposition{}, err
	}
	return model.SlopeDecomposition{
		ControlPre:    tm,
		ControlPost:   tm,
		TreatmentPre:  tm + tt,
		TreatmentPost: tm + tt + ttp,
		DiffPre:       tt,
		DiffPost:      tt + ttp,
		DiffChange:    ttp,
	}, nil
}
