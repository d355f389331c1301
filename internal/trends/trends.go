// Package trends tests the parallel-trends assumption on pre-intervention data.
package trends

import (
	"errors"
	"fmt"
	"math"

	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/regress"
)

var ErrInsufficientData = errors.New("insufficient pre-period observations for a trends test")

// Caveat accompanies every verdict in user-facing output
const Caveat = "A non-significant treat:time interaction is a failure to detect diverging " +
	"pre-trends, not evidence that the trends are parallel."

// Validator fits y ~ treat + time + treat:time on pre-period rows and passes
// when the interaction p-value is strictly greater than Threshold.
type Validator struct {
	Threshold float64
	MinObs    int
	Options   regress.Options
}

// New returns a Validator with the given threshold and the default minimum of 10 rows
func New(threshold float64, opts regress.Options) *Validator {
	return &Validator{Threshold: threshold, MinObs: 10, Options: opts}
}

// Decide applies the decision rule. p == threshold fails.
func Decide(p, threshold float64) model.Verdict {
	if math.IsNaN(p) {
		return model.VerdictInsufficientData
	}
	if p > threshold {
		return model.VerdictPass
	}
	return model.VerdictFail
}

// Test restricts obs to buckets strictly before cutoff and runs the check
func (v *Validator) Test(obs []regress.Obs, cutoff string) (model.TrendsTestResult, error) {
	return v.TestWindow("pre", obs, "", cutoff)
}

// TestWindow restricts obs to buckets in [from, to) and runs the check.
// Empty bounds are open. Time is re-based to the first bucket
// of the window.
func (v *Validator) TestWindow(window string, obs []regress.Obs, from, to string) (model.TrendsTestResult, error) {
	res := model.TrendsTestResult{
		Window:    window,
		Threshold: v.Threshold,
		Caveat:    Caveat,
	}

	var rows []regress.Obs
	t0 := math.Inf(1)
	for _, o := range obs {
		if (from != "" && o.Bucket < from) || (to != "" && o.Bucket >= to) {
			continue
		}
		rows = append(rows, o)
		t0 = math.Min(t0, o.Time)
	}
	res.NObs = len(rows)
	if len(rows) < v.MinObs {
		res.Verdict = model.VerdictInsufficientData
		return res, fmt.Errorf("%w: window %s has %d rows, need %d", ErrInsufficientData, window, len(rows), v.MinObs)
	}
	for i := range rows {
		rows[i].Time -= t0
		rows[i].Post = 0
	}

	fit, err := regress.Estimate(rows, regress.PreTrendSpec, v.Options)
	if err != nil {
		return res, fmt.Errorf("trends window %s: %w", window, err)
	}
	res.Covariance = string(fit.CovType)
	res.Warnings = append([]string(nil), fit.Warnings...)
	c, err := fit.Coefficient(regress.PreTrendSpec.Target)
	if err != nil {
		return res, err
	}
	timeCoef, err := fit.Coefficient("time")
	if err != nil {
		return res, err
	}
	if !(c.StandardError > 0) {
		return res, fmt.Errorf("trends window %s: %w", window, regress.ErrDegenerateFit)
	}

	res.Coefficient = c.Estimate
	res.StandardError = c.StandardError
	res.PValue = c.PValue
	res.ControlSlope = timeCoef.Estimate
	res.TreatmentSlope = timeCoef.Estimate + c.Estimate
	res.Verdict = Decide(c.PValue, v.Threshold)
	return res, nil
}
