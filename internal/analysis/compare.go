package analysis

import (
	"context"
	"errors"
	"fmt"

	"github.com/ppiankov/ratchet/internal/bucket"
	"github.com/ppiankov/ratchet/internal/effect"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/regress"
	"github.com/ppiankov/ratchet/internal/trends"
)

// Compare runs every estimate for one control group
func (e *Engine) Compare(ctx context.Context, ds *Dataset, control string) model.ComparisonResult {
	out := model.ComparisonResult{Treatment: e.cfg.Treatment, Control: control}
	fail := func(step string, err error) {
		out.Errors = append(out.Errors, e.stepError(step, control, err))
	}

	obs, err := ds.Panel.Pair(e.cfg.Treatment, control, ds.Intervention)
	if err != nil {
		fail("panel", err)
		return out
	}

	if level, _, err := regress.EstimateDiD(obs, regress.LevelSpec, e.opts); err != nil {
		fail(regress.LevelSpec.Name, err)
	} else {
		out.Level = &level
		if es, err := e.effectSize(ds, control, level.Coefficient, 0); err != nil {
			fail("level_effect", err)
		} else {
			out.LevelEffect = &es
		}
	}

	if slope, fit, err := regress.EstimateDiD(obs, regress.SlopeSpec, e.opts); err != nil {
		fail(regress.SlopeSpec.Name, err)
	} else {
		out.Slope = &slope
		cum := regress.Cumulative(slope, e.cfg.HorizonMonths)
		out.Cumulative = &cum
		if dec, err := regress.Decompose(fit); err == nil {
			out.Slopes = &dec
		}
		if es, err := e.effectSize(ds, control, slope.Coefficient, e.cfg.HorizonMonths); err != nil {
			fail("slope_effect", err)
		} else {
			out.SlopeEffect = &es
		}
	}

	for _, label := range e.trendWindows() {
		res, err := e.trendsWindow(ds, obs, label)
		switch {
		case errors.Is(err, trends.ErrInsufficientData):
			e.logger.Warn("parallel trends not testable", "control", control, "window", label, "n_obs", res.NObs)
			out.Trends = append(out.Trends, res)
		case err != nil:
			fail("trends_"+label, err)
		default:
			out.Trends = append(out.Trends, res)
		}
	}

	if e.cfg.EventStudy.Enabled {
		if es, err := e.eventStudy(ds, obs); err != nil {
			fail("event_study", err)
		} else {
			out.EventStudy = &es
		}
	}

	for _, tr := range e.transitionPairs() {
		pt, err := e.Transition(ds, control, tr[0], tr[1])
		if err != nil {
			fail(fmt.Sprintf("transition_%s_%s", tr[0], tr[1]), err)
			continue
		}
		out.Transitions = append(out.Transitions, pt)
	}

	if ctx.Err() != nil {
		return out
	}
	if r, err := e.Bootstrap(ctx, ds, control); err != nil {
		if ctx.Err() == nil {
			fail("ratchet", err)
		}
	} else {
		out.Ratchet = &r
	}
	return out
}

// DiD fits one specification for one control
func (e *Engine) DiD(ds *Dataset, control string, spec regress.Spec) (model.DiDResult, *regress.Fit, error) {
	obs, err := ds.Panel.Pair(e.cfg.Treatment, control, ds.Intervention)
	if err != nil {
		return model.DiDResult{}, nil, err
	}
	return regress.EstimateDiD(obs, spec, e.opts)
}

// Trends runs the parallel-trends check on the named period's buckets.
// "pre" selects every bucket before the intervention.
func (e *Engine) Trends(ds *Dataset, control, window string) (model.TrendsTestResult, error) {
	obs, err := ds.Panel.Pair(e.cfg.Treatment, control, ds.Intervention)
	if err != nil {
		return model.TrendsTestResult{}, err
	}
	return e.trendsWindow(ds, obs, window)
}

func (e *Engine) trendsWindow(ds *Dataset, obs []regress.Obs, window string) (model.TrendsTestResult, error) {
	if window == "pre" {
		return e.trends.TestWindow(window, obs, "", ds.Intervention)
	}
	from, to, err := e.periodBounds(ds, window)
	if err != nil {
		return model.TrendsTestResult{}, err
	}
	return e.trends.TestWindow(window, obs, from, to)
}

// trendWindows is every period except the last: each is the pre-period of
// the event that closes it. A single-period config falls back to "pre".
func (e *Engine) trendWindows() []string {
	labels := e.assigner.Cutoffs.Labels()
	if len(labels) < 2 {
		return []string{"pre"}
	}
	return labels[:len(labels)-1]
}

// periodBounds returns the [from, to) bucket keys covering a period. An empty
// to means the period runs to the end of the panel.
func (e *Engine) periodBounds(ds *Dataset, label string) (string, string, error) {
	if _, ok := e.assigner.Cutoffs.Lookup(label); !ok {
		return "", "", fmt.Errorf("unknown period %q", label)
	}
	from, to := "", ""
	for _, b := range ds.Panel.Buckets {
		p, ok := bucket.BucketPeriod(b, e.assigner.Resolution, e.assigner.Cutoffs)
		switch {
		case ok && p == label && from == "":
			from = b
		case from != "" && (!ok || p != label):
			to = b
		}
		if to != "" {
			break
		}
	}
	if from == "" {
		return "", "", fmt.Errorf("period %s has no buckets in the panel range", label)
	}
	return from, to, nil
}

func (e *Engine) inPeriod(label string) func(b string) bool {
	return func(b string) bool {
		p, ok := bucket.BucketPeriod(b, e.assigner.Resolution, e.assigner.Cutoffs)
		return ok && p == label
	}
}

func (e *Engine) eventStudy(ds *Dataset, obs []regress.Obs) (model.EventStudyResult, error) {
	t0 := ds.Panel.TimeOf(ds.Intervention)
	if t0 < 0 {
		return model.EventStudyResult{}, fmt.Errorf("intervention bucket %s outside panel range", ds.Intervention)
	}
	opts := e.opts
	opts.Cov = regress.HC1
	return regress.EventStudy(obs, float64(t0), e.cfg.EventStudy.Reference, e.cfg.EventStudy.MaxViolations, opts)
}

// effectSize standardizes an estimate by the pre-intervention spread of the
// two groups' bucket means.
func (e *Engine) effectSize(ds *Dataset, control string, did float64, horizon int) (model.EffectSize, error) {
	pre := func(b string) bool { return !bucket.IsPost(b, ds.Intervention) }
	post := func(b string) bool { return bucket.IsPost(b, ds.Intervention) }
	return e.effectBetween(ds, control, did, horizon, pre, post)
}

func (e *Engine) effectBetween(ds *Dataset, control string, did float64, horizon int, pre, post func(string) bool) (model.EffectSize, error) {
	t := ds.Panel.Summarize(e.cfg.Treatment, pre)
	c := ds.Panel.Summarize(control, pre)
	tPost := ds.Panel.Summarize(e.cfg.Treatment, post)
	return effect.Calculate(effect.Inputs{
		DiD:        did,
		Horizon:    horizon,
		TreatSD:    t.SD,
		TreatN:     t.N,
		ControlSD:  c.SD,
		ControlN:   c.N,
		ScaleRange: e.cfg.OutcomeRange(),
		PreMean:    t.Mean,
		PostMean:   tPost.Mean,
	})
}

// transitionPairs lists consecutive period pairs plus first to last
func (e *Engine) transitionPairs() [][2]string {
	labels := e.assigner.Cutoffs.Labels()
	var out [][2]string
	for i := 0; i+1 < len(labels); i++ {
		out = append(out, [2]string{labels[i], labels[i+1]})
	}
	if len(labels) > 2 {
		out = append(out, [2]string{labels[0], labels[len(labels)-1]})
	}
	return out
}

// Transition is a level DiD restricted to the buckets of two periods, with
// the cell-mean arithmetic reported next to the regression.
func (e *Engine) Transition(ds *Dataset, control, from, to string) (model.PeriodTransition, error) {
	inFrom, inTo := e.inPeriod(from), e.inPeriod(to)
	obs, err := ds.Panel.PairWhere(e.cfg.Treatment, control, func(b string) (bool, bool) {
		switch {
		case inTo(b):
			return true, true
		case inFrom(b):
			return false, true
		}
		return false, false
	})
	if err != nil {
		return model.PeriodTransition{}, err
	}

	tPre := ds.Panel.Summarize(e.cfg.Treatment, inFrom)
	tPost := ds.Panel.Summarize(e.cfg.Treatment, inTo)
	cPre := ds.Panel.Summarize(control, inFrom)
	cPost := ds.Panel.Summarize(control, inTo)

	out := model.PeriodTransition{
		From:          from,
		To:            to,
		ManualDiD:     (tPost.Mean - tPre.Mean) - (cPost.Mean - cPre.Mean),
		TreatmentPre:  tPre.Mean,
		TreatmentPost: tPost.Mean,
		ControlPre:    cPre.Mean,
		ControlPost:   cPost.Mean,
	}

	res, _, err := regress.EstimateDiD(obs, regress.LevelSpec, e.opts)
	if err != nil {
		return model.PeriodTransition{}, err
	}
	out.Regression = &res
	out.Significant = res.Significant(e.cfg.Significance.Alpha)
	if es, err := e.effectBetween(ds, control, res.Coefficient, 0, inFrom, inTo); err == nil {
		out.Effect = &es
	}
	return out, nil
}

// ITS fits the interrupted time series of the treatment group
func (e *Engine) ITS(ds *Dataset) (model.ITSResult, error) {
	obs, err := ds.Panel.Single(e.cfg.Treatment, ds.Intervention)
	if err != nil {
		return model.ITSResult{}, err
	}
	return regress.ITS(e.cfg.Treatment, obs, e.opts)
}

// Bootstrap estimates the recovery ratio over the first three periods.
// An empty control gives the treatment group's own ratio; otherwise the
// period deltas are netted against control.
func (e *Engine) Bootstrap(ctx context.Context, ds *Dataset, control string) (model.BootstrapRatioResult, error) {
	labels := e.assigner.Cutoffs.Labels()
	if len(labels) < 3 {
		return model.BootstrapRatioResult{}, fmt.Errorf("%w, have %d", ErrTooFewPeriods, len(labels))
	}
	treat := poolsOf(ds, e.cfg.Treatment, labels)
	if control == "" {
		res, err := e.boot.Ratio(ctx, treat[0], treat[1], treat[2])
		if err != nil {
			return res, err
		}
		res.Group = e.cfg.Treatment
		return res, nil
	}
	res, err := e.boot.DiDRatio(ctx, treat, poolsOf(ds, control, labels))
	if err != nil {
		return res, err
	}
	res.Group = e.cfg.Treatment
	res.Control = control
	return res, nil
}

func poolsOf(ds *Dataset, group string, labels []string) [3][]float64 {
	var out [3][]float64
	for i := 0; i < 3; i++ {
		out[i] = ds.Pools[group][labels[i]]
	}
	return out
}
