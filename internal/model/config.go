package model

import "time"

// Config is the analysis configuration record. One Config describes every
// comparison of a run: the treatment group against each control in turn.
type Config struct {
	Treatment     string             `mapstructure:"treatment" yaml:"treatment" json:"treatment" validate:"required"`
	Controls      []string           `mapstructure:"controls" yaml:"controls" json:"controls" validate:"required,min=1,dive,required"`
	Outcome       OutcomeConfig      `mapstructure:"outcome" yaml:"outcome" json:"outcome"`
	Scale         OutcomeScale       `mapstructure:"scale" yaml:"scale" json:"scale"`
	Periods       []PeriodConfig     `mapstructure:"periods" yaml:"periods" json:"periods" validate:"required,min=2,dive"`
	Intervention  string             `mapstructure:"intervention" yaml:"intervention" json:"intervention" validate:"required,datetime=2006-01-02"`
	Resolution    string             `mapstructure:"resolution" yaml:"resolution" json:"resolution" validate:"oneof=month week"`
	Range         RangeConfig        `mapstructure:"range" yaml:"range" json:"range"`
	Significance  SignificanceConfig `mapstructure:"significance" yaml:"significance" json:"significance"`
	Covariance    string             `mapstructure:"covariance" yaml:"covariance" json:"covariance" validate:"oneof=nonrobust hc1 hc3 cluster auto"`
	MinClusters   int                `mapstructure:"min_clusters" yaml:"min_clusters" json:"min_clusters" validate:"gte=2"`
	MinTrendObs   int                `mapstructure:"min_trend_obs" yaml:"min_trend_obs" json:"min_trend_obs" validate:"gte=4"`
	HorizonMonths int                `mapstructure:"horizon_months" yaml:"horizon_months" json:"horizon_months" validate:"gte=1"`
	EventStudy    EventStudyConfig   `mapstructure:"event_study" yaml:"event_study" json:"event_study"`
	Bootstrap     BootstrapConfig    `mapstructure:"bootstrap" yaml:"bootstrap" json:"bootstrap"`
	Input         InputConfig        `mapstructure:"input" yaml:"input" json:"input"`
	LLM           LLMConfig          `mapstructure:"llm" yaml:"llm" json:"llm"`
	Storage       StorageConfig      `mapstructure:"storage" yaml:"storage" json:"storage"`
	Logging       LoggingConfig      `mapstructure:"logging" yaml:"logging" json:"logging"`
}

// OutcomeConfig selects which item field becomes the regression outcome.
// Kind "scale" maps labels through Config.Scale, "share" is the indicator of
// ShareLabel, "continuous" uses the raw score.
type OutcomeConfig struct {
	Kind       string  `mapstructure:"kind" yaml:"kind" json:"kind" validate:"oneof=scale share continuous"`
	ShareLabel string  `mapstructure:"share_label" yaml:"share_label,omitempty" json:"share_label,omitempty" validate:"required_if=Kind share"`
	Range      float64 `mapstructure:"range" yaml:"range,omitempty" json:"range,omitempty" validate:"gte=0"`

	// MinConfidence drops items whose classifier confidence is below it; 0 keeps all
	MinConfidence float64 `mapstructure:"min_confidence" yaml:"min_confidence,omitempty" json:"min_confidence,omitempty" validate:"gte=0,lte=1"`
}

// PeriodConfig is one named [start, end) date range
type PeriodConfig struct {
	Label string `mapstructure:"label" yaml:"label" json:"label" validate:"required"`
	Start string `mapstructure:"start" yaml:"start" json:"start" validate:"required,datetime=2006-01-02"`
	End   string `mapstructure:"end" yaml:"end" json:"end" validate:"required,datetime=2006-01-02"`
}

// RangeConfig bounds the calendar buckets of the panel (both dates inclusive)
type RangeConfig struct {
	Start string `mapstructure:"start" yaml:"start" json:"start" validate:"required,datetime=2006-01-02"`
	End   string `mapstructure:"end" yaml:"end" json:"end" validate:"required,datetime=2006-01-02"`
}

type SignificanceConfig struct {
	ParallelTrends float64 `mapstructure:"parallel_trends" yaml:"parallel_trends" json:"parallel_trends" validate:"gt=0,lt=1"`
	Alpha          float64 `mapstructure:"alpha" yaml:"alpha" json:"alpha" validate:"gt=0,lt=1"`
}

type EventStudyConfig struct {
	Enabled       bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`
	Reference     int  `mapstructure:"reference" yaml:"reference" json:"reference"`
	MaxViolations int  `mapstructure:"max_violations" yaml:"max_violations" json:"max_violations" validate:"gte=0"`
}

type BootstrapConfig struct {
	Iterations      int     `mapstructure:"iterations" yaml:"iterations" json:"iterations" validate:"gte=1"`
	Seed            uint64  `mapstructure:"seed" yaml:"seed" json:"seed"`
	Workers         int     `mapstructure:"workers" yaml:"workers" json:"workers" validate:"gte=0"`
	Epsilon         float64 `mapstructure:"epsilon" yaml:"epsilon" json:"epsilon" validate:"gt=0"`
	Method          string  `mapstructure:"method" yaml:"method" json:"method" validate:"oneof=linear empirical"`
	ConfidenceLevel float64 `mapstructure:"confidence_level" yaml:"confidence_level" json:"confidence_level" validate:"gt=0,lt=1"`
}

// InputConfig maps item fields to source columns
type InputConfig struct {
	Format  string        `mapstructure:"format" yaml:"format" json:"format" validate:"omitempty,oneof=csv xlsx"`
	Sheet   string        `mapstructure:"sheet" yaml:"sheet,omitempty" json:"sheet,omitempty"`
	Columns ColumnMapping `mapstructure:"columns" yaml:"columns" json:"columns"`
}

type ColumnMapping struct {
	ID        string `mapstructure:"id" yaml:"id" json:"id" validate:"required"`
	Timestamp string `mapstructure:"timestamp" yaml:"timestamp" json:"timestamp" validate:"required"`
	Group     string `mapstructure:"group" yaml:"group" json:"group" validate:"required"`
	Label     string `mapstructure:"label" yaml:"label" json:"label"`
	Score     string `mapstructure:"score" yaml:"score" json:"score"`
	Period    string `mapstructure:"period" yaml:"period" json:"period"`
	Text      string `mapstructure:"text" yaml:"text" json:"text"`

	Confidence string `mapstructure:"confidence" yaml:"confidence" json:"confidence"`
}

type LLMConfig struct {
	Model             string        `mapstructure:"model" yaml:"model" json:"model"`
	BaseURL           string        `mapstructure:"base_url" yaml:"base_url" json:"base_url"`
	APIKey            string        `mapstructure:"api_key" yaml:"api_key" json:"-"`
	Timeout           time.Duration `mapstructure:"timeout" yaml:"timeout" json:"timeout"`
	Proxy             string        `mapstructure:"proxy" yaml:"proxy,omitempty" json:"proxy,omitempty"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second" validate:"gte=0"`
	Burst             int           `mapstructure:"burst" yaml:"burst" json:"burst" validate:"gte=0"`
	Concurrency       int           `mapstructure:"concurrency" yaml:"concurrency" json:"concurrency" validate:"gte=1"`
	CacheDir          string        `mapstructure:"cache_dir" yaml:"cache_dir" json:"cache_dir"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl" yaml:"cache_ttl" json:"cache_ttl"`
}

type StorageConfig struct {
	DBPath string `mapstructure:"db_path" yaml:"db_path" json:"db_path"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" yaml:"format" json:"format" validate:"oneof=console json"`
}

// DefaultConfig returns the NK framing study: NK against China, Iran and Russia
// across the Singapore summit (2018-06-12) and the Hanoi summit (2019-02-28).
func DefaultConfig() Config {
	return Config{
		Treatment: "NK",
		Controls:  []string{"CHINA", "IRAN", "RUSSIA"},
		Outcome:   OutcomeConfig{Kind: "scale"},
		Scale:     DefaultFramingScale(),
		Periods: []PeriodConfig{
			{Label: "P1", Start: "2017-01-01", End: "2018-06-12"},
			{Label: "P2", Start: "2018-06-12", End: "2019-02-28"},
			{Label: "P3", Start: "2019-02-28", End: "2019-07-01"},
		},
		Intervention:  "2018-06-12",
		Resolution:    "month",
		Range:         RangeConfig{Start: "2017-01-01", End: "2019-06-30"},
		Significance:  SignificanceConfig{ParallelTrends: 0.10, Alpha: 0.05},
		Covariance:    "auto",
		MinClusters:   15,
		MinTrendObs:   10,
		HorizonMonths: 15,
		EventStudy:    EventStudyConfig{Enabled: true, Reference: -1, MaxViolations: 2},
		Bootstrap: BootstrapConfig{
			Iterations:      1000,
			Seed:            42,
			Workers:         0,
			Epsilon:         1e-6,
			Method:          "linear",
			ConfidenceLevel: 0.95,
		},
		Input: InputConfig{
			Columns: ColumnMapping{
				ID:        "id",
				Timestamp: "created_utc",
				Group:     "country",
				Label:     "frame",
				Score:     "sentiment_score",
				Period:    "period",
				Text:      "text",

				Confidence: "confidence",
			},
		},
		LLM: LLMConfig{
			Model:             "gpt-4o-mini",
			BaseURL:           "https://api.openai.com/v1",
			Timeout:           60 * time.Second,
			RequestsPerSecond: 2,
			Burst:             2,
			Concurrency:       4,
			CacheDir:          "~/.ratchet/cache",
			CacheTTL:          30 * 24 * time.Hour,
		},
		Storage: StorageConfig{DBPath: "~/.ratchet/runs.db"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// OutcomeRange is the width used for scale-normalized percentages
func (c Config) OutcomeRange() float64 {
	switch c.Outcome.Kind {
	case "scale":
		return c.Scale.Range
	case "share":
		return 1.0
	}
	if c.Outcome.Range > 0 {
		return c.Outcome.Range
	}
	return 2.0
}
