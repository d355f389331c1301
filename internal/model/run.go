package model

import "time"

// DropReport counts items excluded during aggregation, by reason
type DropReport struct {
	Total               int            `json:"total"`
	Kept                int            `json:"kept"`
	MalformedTimestamps int            `json:"malformed_timestamps"`
	OutsideRange        int            `json:"outside_range"`
	MissingOutcome      int            `json:"missing_outcome"`
	UnknownGroup        int            `json:"unknown_group"`
	PeriodOnly          int            `json:"period_only"`
	LowConfidence       int            `json:"low_confidence"`
	ByReason            map[string]int `json:"by_reason,omitempty"`
}

// Dropped is the number of items that did not reach the panel
func (d DropReport) Dropped() int {
	return d.Total - d.Kept
}

// StepError records a comparison step that could not be computed.
// A failed step never aborts the other comparisons of a run.
type StepError struct {
	Step    string `json:"step"`
	Control string `json:"control,omitempty"`
	Error   string `json:"error"`
}

// PeriodTransition is a level DiD between two named periods
type PeriodTransition struct {
	From          string      `json:"from"`
	To            string      `json:"to"`
	ManualDiD     float64     `json:"manual_did"`
	Regression    *DiDResult  `json:"regression,omitempty"`
	Effect        *EffectSize `json:"effect,omitempty"`
	Significant   bool        `json:"significant"`
	TreatmentPre  float64     `json:"treatment_pre_mean"`
	TreatmentPost float64     `json:"treatment_post_mean"`
	ControlPre    float64     `json:"control_pre_mean"`
	ControlPost   float64     `json:"control_post_mean"`
}

// ComparisonResult holds every estimate for one treatment/control pair
type ComparisonResult struct {
	Treatment   string                `json:"treatment"`
	Control     string                `json:"control"`
	Level       *DiDResult            `json:"level,omitempty"`
	Slope       *DiDResult            `json:"slope,omitempty"`
	Cumulative  *CumulativeEffect     `json:"cumulative,omitempty"`
	Slopes      *SlopeDecomposition   `json:"slope_decomposition,omitempty"`
	LevelEffect *EffectSize           `json:"level_effect,omitempty"`
	SlopeEffect *EffectSize           `json:"slope_effect,omitempty"`
	Trends      []TrendsTestResult    `json:"parallel_trends,omitempty"`
	EventStudy  *EventStudyResult     `json:"event_study,omitempty"`
	Transitions []PeriodTransition    `json:"transitions,omitempty"`
	Ratchet     *BootstrapRatioResult `json:"ratchet,omitempty"`
	Errors      []StepError           `json:"errors,omitempty"`
}

// Run is the complete output of one analysis
type Run struct {
	ID          string                `json:"id"`
	CreatedAt   time.Time             `json:"created_at"`
	ConfigHash  string                `json:"config_hash"`
	Treatment   string                `json:"treatment"`
	Outcome     string                `json:"outcome"`
	Scale       string                `json:"scale"`
	Drops       DropReport            `json:"drops"`
	Comparisons []ComparisonResult    `json:"comparisons"`
	ITS         *ITSResult            `json:"its,omitempty"`
	Ratchet     *BootstrapRatioResult `json:"ratchet,omitempty"`
	Warnings    []string              `json:"warnings,omitempty"`
	Errors      []StepError           `json:"errors,omitempty"`
	Duration    time.Duration         `json:"duration_ns"`
}

// RunSummary is the listing form of a stored run
type RunSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	ConfigHash  string    `json:"config_hash"`
	Treatment   string    `json:"treatment"`
	Comparisons int       `json:"comparisons"`
	Failures    int       `json:"failures"`
}
