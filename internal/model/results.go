package model

import (
	"encoding/json"
	"math"
)

// Verdict is the outcome of a parallel-trends test
type Verdict string

const (
	VerdictPass             Verdict = "PASS"
	VerdictFail             Verdict = "FAIL"
	VerdictInsufficientData Verdict = "INSUFFICIENT_DATA"
)

// Coefficient is one row of a fitted model's coefficient table
type Coefficient struct {
	Term          string  `json:"term"`
	Estimate      float64 `json:"estimate"`
	StandardError float64 `json:"std_error"`
	Statistic     float64 `json:"statistic"`
	PValue        float64 `json:"p_value"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
}

type coefficientJSON struct {
	Term          string   `json:"term"`
	Estimate      float64  `json:"estimate"`
	StandardError float64  `json:"std_error"`
	Statistic     *float64 `json:"statistic"`
	PValue        *float64 `json:"p_value"`
	CILower       float64  `json:"ci_lower"`
	CIUpper       float64  `json:"ci_upper"`
}

// MarshalJSON writes an undefined statistic (zero standard error) as null
func (c Coefficient) MarshalJSON() ([]byte, error) {
	return json.Marshal(coefficientJSON{
		Term:          c.Term,
		Estimate:      c.Estimate,
		StandardError: c.StandardError,
		Statistic:     finiteOrNil(c.Statistic),
		PValue:        finiteOrNil(c.PValue),
		CILower:       c.CILower,
		CIUpper:       c.CIUpper,
	})
}

// UnmarshalJSON restores null statistics as NaN
func (c *Coefficient) UnmarshalJSON(data []byte) error {
	var raw coefficientJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Coefficient{
		Term:          raw.Term,
		Estimate:      raw.Estimate,
		StandardError: raw.StandardError,
		Statistic:     nilToNaN(raw.Statistic),
		PValue:        nilToNaN(raw.PValue),
		CILower:       raw.CILower,
		CIUpper:       raw.CIUpper,
	}
	return nil
}

// DiDResult is the inference for the target interaction term of a DiD model.
// All numeric fields are finite; degenerate fits are reported as errors instead.
type DiDResult struct {
	Spec          string        `json:"spec"` // "level" or "slope"
	Term          string        `json:"term"`
	Coefficient   float64       `json:"coefficient"`
	StandardError float64       `json:"std_error"`
	Statistic     float64       `json:"statistic"`
	PValue        float64       `json:"p_value"`
	CILower       float64       `json:"ci_lower"`
	CIUpper       float64       `json:"ci_upper"`
	RSquared      float64       `json:"r_squared"`
	NObs          int           `json:"n_obs"`
	DFResid       int           `json:"df_resid"`
	Covariance    string        `json:"covariance"`
	NClusters     int           `json:"n_clusters,omitempty"`
	Distribution  string        `json:"distribution"` // "t" or "normal"
	Coefficients  []Coefficient `json:"coefficients,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
}

// Significant reports whether p < alpha
func (r DiDResult) Significant(alpha float64) bool {
	return r.PValue < alpha
}

// CumulativeEffect is a slope interaction scaled to a horizon of h buckets
type CumulativeEffect struct {
	Horizon       int     `json:"horizon"`
	Effect        float64 `json:"effect"`
	StandardError float64 `json:"std_error"`
	Statistic     float64 `json:"statistic"`
	PValue        float64 `json:"p_value"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
}

// SlopeDecomposition splits group slopes into pre and post segments
type SlopeDecomposition struct {
	ControlPre    float64 `json:"control_pre"`
	ControlPost   float64 `json:"control_post"`
	TreatmentPre  float64 `json:"treatment_pre"`
	TreatmentPost float64 `json:"treatment_post"`
	DiffPre       float64 `json:"diff_pre"`
	DiffPost      float64 `json:"diff_post"`
	DiffChange    float64 `json:"diff_change"`
}

// TrendsTestResult is the outcome of a pre-period parallel-trends test
type TrendsTestResult struct {
	Window         string  `json:"window"`
	Coefficient    float64 `json:"coefficient"`
	StandardError  float64 `json:"std_error"`
	PValue         float64 `json:"p_value"`
	Threshold      float64 `json:"threshold"`
	Verdict        Verdict `json:"verdict"`
	TreatmentSlope float64 `json:"treatment_slope"`
	ControlSlope   float64 `json:"control_slope"`
	NObs           int     `json:"n_obs"`
	// Covariance is the estimator actually used, after any auto fallback
	Covariance string   `json:"covariance,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	Caveat     string   `json:"caveat,omitempty"`
}

// Passed is true only for a PASS verdict
func (r TrendsTestResult) Passed() bool {
	return r.Verdict == VerdictPass
}

// EventStudyPoint is one relative-time coefficient of an event study
type EventStudyPoint struct {
	RelTime       int     `json:"rel_time"`
	Coefficient   float64 `json:"coefficient"`
	StandardError float64 `json:"std_error"`
	PValue        float64 `json:"p_value"`
	CILower       float64 `json:"ci_lower"`
	CIUpper       float64 `json:"ci_upper"`
}

type eventStudyPointJSON struct {
	RelTime       int      `json:"rel_time"`
	Coefficient   float64  `json:"coefficient"`
	StandardError float64  `json:"std_error"`
	PValue        *float64 `json:"p_value"`
	CILower       float64  `json:"ci_lower"`
	CIUpper       float64  `json:"ci_upper"`
}

func (p EventStudyPoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(eventStudyPointJSON{
		RelTime:       p.RelTime,
		Coefficient:   p.Coefficient,
		StandardError: p.StandardError,
		PValue:        finiteOrNil(p.PValue),
		CILower:       p.CILower,
		CIUpper:       p.CIUpper,
	})
}

func (p *EventStudyPoint) UnmarshalJSON(data []byte) error {
	var raw eventStudyPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = EventStudyPoint{
		RelTime:       raw.RelTime,
		Coefficient:   raw.Coefficient,
		StandardError: raw.StandardError,
		PValue:        nilToNaN(raw.PValue),
		CILower:       raw.CILower,
		CIUpper:       raw.CIUpper,
	}
	return nil
}

// EventStudyResult summarizes pre-period lead coefficients
type EventStudyResult struct {
	Reference  int               `json:"reference"`
	Points     []EventStudyPoint `json:"points"`
	Violations int               `json:"pre_violations"`
	PreLeads   int               `json:"pre_leads"`
	Verdict    Verdict           `json:"verdict"`
}

// ITSResult is a single-group interrupted time series fit
type ITSResult struct {
	Group          string      `json:"group"`
	LevelChange    Coefficient `json:"level_change"`
	SlopeChange    Coefficient `json:"slope_change"`
	PreSlope       Coefficient `json:"pre_slope"`
	Counterfactual float64     `json:"counterfactual_post_mean"`
	ActualPost     float64     `json:"actual_post_mean"`
	CausalEffect   float64     `json:"causal_effect"`
	RSquared       float64     `json:"r_squared"`
	NObs           int         `json:"n_obs"`
	Covariance     string      `json:"covariance"`
	Warnings       []string    `json:"warnings,omitempty"`
}

// EffectSize expresses a DiD estimate in standardized units
type EffectSize struct {
	DiD                float64  `json:"did"`
	PooledSD           float64  `json:"pooled_sd"`
	CohensD            float64  `json:"cohens_d"`
	Interpretation     string   `json:"interpretation"`
	ScaleNormalizedPct float64  `json:"scale_normalized_pct"`
	PercentageChange   *float64 `json:"percentage_change"`
	Horizon            int      `json:"horizon,omitempty"`
}

// BootstrapRatioResult is a percentile bootstrap CI for a recovery ratio.
// Degenerate draws are +Inf; they are counted, not discarded.
type BootstrapRatioResult struct {
	Observed         float64 `json:"-"`
	CILower          float64 `json:"-"`
	CIUpper          float64 `json:"-"`
	MeanRatio        float64 `json:"-"`
	InfiniteCount    int     `json:"-"`
	Iterations       int     `json:"-"`
	ConfidenceLevel  float64 `json:"-"`
	ProbRatioGEOne   float64 `json:"-"`
	RatchetSupported bool    `json:"-"`
	Seed             uint64  `json:"-"`
	Method           string  `json:"-"`
	Group            string  `json:"-"`
	Control          string  `json:"-"`
}

type bootstrapJSON struct {
	Group            string   `json:"group,omitempty"`
	Control          string   `json:"control,omitempty"`
	Observed         *float64 `json:"observed_ratio"`
	ObservedInfinite bool     `json:"observed_infinite,omitempty"`
	CILower          *float64 `json:"ci_lower"`
	CILowerInfinite  bool     `json:"ci_lower_infinite,omitempty"`
	CIUpper          *float64 `json:"ci_upper"`
	CIUpperInfinite  bool     `json:"ci_upper_infinite,omitempty"`
	MeanRatio        *float64 `json:"mean_ratio"`
	InfiniteCount    int      `json:"infinite_count"`
	Iterations       int      `json:"iterations"`
	ConfidenceLevel  float64  `json:"confidence_level"`
	ProbRatioGEOne   float64  `json:"p_ratio_ge_1"`
	RatchetSupported bool     `json:"ratchet_supported"`
	Seed             uint64   `json:"seed"`
	Method           string   `json:"method"`
}

// MarshalJSON writes infinite bounds as null with an explicit flag
func (r BootstrapRatioResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(bootstrapJSON{
		Group:            r.Group,
		Control:          r.Control,
		Observed:         finiteOrNil(r.Observed),
		ObservedInfinite: math.IsInf(r.Observed, 1),
		CILower:          finiteOrNil(r.CILower),
		CILowerInfinite:  math.IsInf(r.CILower, 1),
		CIUpper:          finiteOrNil(r.CIUpper),
		CIUpperInfinite:  math.IsInf(r.CIUpper, 1),
		MeanRatio:        finiteOrNil(r.MeanRatio),
		InfiniteCount:    r.InfiniteCount,
		Iterations:       r.Iterations,
		ConfidenceLevel:  r.ConfidenceLevel,
		ProbRatioGEOne:   r.ProbRatioGEOne,
		RatchetSupported: r.RatchetSupported,
		Seed:             r.Seed,
		Method:           r.Method,
	})
}

// UnmarshalJSON restores flagged bounds as +Inf
func (r *BootstrapRatioResult) UnmarshalJSON(data []byte) error {
	var raw bootstrapJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	restore := func(v *float64, inf bool) float64 {
		if inf {
			return math.Inf(1)
		}
		return nilToNaN(v)
	}
	*r = BootstrapRatioResult{
		Observed:         restore(raw.Observed, raw.ObservedInfinite),
		CILower:          restore(raw.CILower, raw.CILowerInfinite),
		CIUpper:          restore(raw.CIUpper, raw.CIUpperInfinite),
		MeanRatio:        nilToNaN(raw.MeanRatio),
		InfiniteCount:    raw.InfiniteCount,
		Iterations:       raw.Iterations,
		ConfidenceLevel:  raw.ConfidenceLevel,
		ProbRatioGEOne:   raw.ProbRatioGEOne,
		RatchetSupported: raw.RatchetSupported,
		Seed:             raw.Seed,
		Method:           raw.Method,
		Group:            raw.Group,
		Control:          raw.Control,
	}
	return nil
}
