// Package config loads and validates the analysis configuration.
//
// Hierarchy (highest to lowest priority): CLI flags, RATCHET_* environment
// variables, the config file, built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/ppiankov/ratchet/internal/model"
)

// EnvPrefix is the environment variable prefix
const EnvPrefix = "RATCHET"

// DefaultDir is the per-user configuration directory, relative to $HOME
const DefaultDir = ".ratchet"

// New returns a viper instance carrying the defaults and env binding
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads path (or the default search locations when path is empty),
// applies env overrides and validates the result.
func Load(path string) (model.Config, error) {
	v := New()
	if err := ReadFile(v, path); err != nil {
		return model.Config{}, err
	}
	return FromViper(v)
}

// ReadFile points v at a config file. A missing file is only an error when
// path was given explicitly.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, DefaultDir))
	}
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// FromViper decodes, normalizes and validates the configuration held by v
func FromViper(v *viper.Viper) (model.Config, error) {
	var cfg model.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	normalize(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// normalize fixes case and paths that viper or users leave inconsistent
func normalize(cfg *model.Config) {
	// item groups are upper-cased on load
	cfg.Treatment = strings.ToUpper(strings.TrimSpace(cfg.Treatment))
	for i, c := range cfg.Controls {
		cfg.Controls[i] = strings.ToUpper(strings.TrimSpace(c))
	}
	cfg.Resolution = strings.ToLower(cfg.Resolution)
	cfg.Covariance = strings.ToLower(cfg.Covariance)

	// viper lower-cases map keys
	if len(cfg.Scale.Values) > 0 {
		values := make(map[string]float64, len(cfg.Scale.Values))
		for k, val := range cfg.Scale.Values {
			values[strings.ToUpper(k)] = val
		}
		cfg.Scale.Values = values
	}
	cfg.Outcome.ShareLabel = strings.ToUpper(cfg.Outcome.ShareLabel)

	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	cfg.LLM.CacheDir = ExpandPath(cfg.LLM.CacheDir)
	cfg.Storage.DBPath = ExpandPath(cfg.Storage.DBPath)
}

// ExpandPath expands a leading ~ and environment variables
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") || path == "~" {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return os.ExpandEnv(path)
}

// SetDefaults registers every key of model.DefaultConfig so that env
// variables and partial files resolve against a complete configuration.
func SetDefaults(v *viper.Viper) {
	d := model.DefaultConfig()

	v.SetDefault("treatment", d.Treatment)
	v.SetDefault("controls", d.Controls)
	v.SetDefault("outcome.kind", d.Outcome.Kind)
	v.SetDefault("outcome.share_label", d.Outcome.ShareLabel)
	v.SetDefault("outcome.range", d.Outcome.Range)
	v.SetDefault("outcome.min_confidence", d.Outcome.MinConfidence)
	v.SetDefault("scale.values", d.Scale.Values)
	v.SetDefault("scale.range", d.Scale.Range)
	v.SetDefault("scale.default", d.Scale.Default)

	periods := make([]map[string]any, len(d.Periods))
	for i, p := range d.Periods {
		periods[i] = map[string]any{"label": p.Label, "start": p.Start, "end": p.End}
	}
	v.SetDefault("periods", periods)
	v.SetDefault("intervention", d.Intervention)
	v.SetDefault("resolution", d.Resolution)
	v.SetDefault("range.start", d.Range.Start)
	v.SetDefault("range.end", d.Range.End)

	v.SetDefault("significance.parallel_trends", d.Significance.ParallelTrends)
	v.SetDefault("significance.alpha", d.Significance.Alpha)
	v.SetDefault("covariance", d.Covariance)
	v.SetDefault("min_clusters", d.MinClusters)
	v.SetDefault("min_trend_obs", d.MinTrendObs)
	v.SetDefault("horizon_months", d.HorizonMonths)

	v.SetDefault("event_study.enabled", d.EventStudy.Enabled)
	v.SetDefault("event_study.reference", d.EventStudy.Reference)
	v.SetDefault("event_study.max_violations", d.EventStudy.MaxViolations)

	v.SetDefault("bootstrap.iterations", d.Bootstrap.Iterations)
	v.SetDefault("bootstrap.seed", d.Bootstrap.Seed)
	v.SetDefault("bootstrap.workers", d.Bootstrap.Workers)
	v.SetDefault("bootstrap.epsilon", d.Bootstrap.Epsilon)
	v.SetDefault("bootstrap.method", d.Bootstrap.Method)
	v.SetDefault("bootstrap.confidence_level", d.Bootstrap.ConfidenceLevel)

	v.SetDefault("input.format", d.Input.Format)
	v.SetDefault("input.sheet", d.Input.Sheet)
	v.SetDefault("input.columns.id", d.Input.Columns.ID)
	v.SetDefault("input.columns.timestamp", d.Input.Columns.Timestamp)
	v.SetDefault("input.columns.group", d.Input.Columns.Group)
	v.SetDefault("input.columns.label", d.Input.Columns.Label)
	v.SetDefault("input.columns.score", d.Input.Columns.Score)
	v.SetDefault("input.columns.period", d.Input.Columns.Period)
	v.SetDefault("input.columns.text", d.Input.Columns.Text)
	v.SetDefault("input.columns.confidence", d.Input.Columns.Confidence)

	v.SetDefault("llm.model", d.LLM.Model)
	v.SetDefault("llm.base_url", d.LLM.BaseURL)
	v.SetDefault("llm.api_key", d.LLM.APIKey)
	v.SetDefault("llm.timeout", d.LLM.Timeout)
	v.SetDefault("llm.proxy", d.LLM.Proxy)
	v.SetDefault("llm.requests_per_second", d.LLM.RequestsPerSecond)
	v.SetDefault("llm.burst", d.LLM.Burst)
	v.SetDefault("llm.concurrency", d.LLM.Concurrency)
	v.SetDefault("llm.cache_dir", d.LLM.CacheDir)
	v.SetDefault("llm.cache_ttl", d.LLM.CacheTTL)

	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}
