package regress

import (
	"fmt"

	"github.com/ppiankov/ratchet/internal/model"
)

// ITS fits y ~ time + post + time_after on a single group's series.
// time is 1-based and time_after counts buckets since the first post bucket.
func ITS(group string, obs []Obs, opts Options) (model.ITSResult, error) {
	series := make([]Obs, len(obs))
	first := -1.0
	for i, o := range obs {
		o.Time = o.Time + 1
		series[i] = o
		if o.Post != 0 && (first < 0 || o.Time < first) {
			first = o.Time
		}
	}
	if first < 0 {
		return model.ITSResult{}, &InsufficientCoverageError{Spec: ITSSpec.Name, Cell: "post=1"}
	}
	for i := range series {
		if series[i].Post != 0 {
			series[i].TimeAfter = series[i].Time - first
		}
	}

	fit, err := Estimate(series, ITSSpec, opts)
	if err != nil {
		return model.ITSResult{}, err
	}
	level, _ := fit.Coefficient("post")
	slope, _ := fit.Coefficient("time_after")
	pre, _ := fit.Coefficient("time")
	b0 := fit.Params[fit.Index(Intercept)]

	var actual, counterfactual float64
	var nPost int
	for _, o := range series {
		if o.Post == 0 {
			continue
		}
		actual += o.Y
		counterfactual += b0 + pre.Estimate*o.Time
		nPost++
	}
	if nPost == 0 {
		return model.ITSResult{}, fmt.Errorf("its: no post observations for %s", group)
	}
	actual /= float64(nPost)
	counterfactual /= float64(nPost)

	return model.ITSResult{
		Group:          group,
		LevelChange:    level,
		SlopeChange:    slope,
		PreSlope:       pre,
		Counterfactual: counterfactual,
		ActualPost:     actual,
		CausalEffect:   actual - counterfactual,
		RSquared:       fit.RSquared,
		NObs:           fit.NObs,
		Covariance:     string(fit.CovType),
		Warnings:       append([]string(nil), fit.Warnings...),
	}, nil
}
