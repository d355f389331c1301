package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ratchet/internal/model"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	require.NoError(t, Validate(model.DefaultConfig()))
}

func TestLoadDefaultsFromEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)

	d := model.DefaultConfig()
	assert.Equal(t, d.Treatment, cfg.Treatment)
	assert.Equal(t, d.Controls, cfg.Controls)
	assert.Equal(t, d.Periods, cfg.Periods)
	assert.Equal(t, d.Significance, cfg.Significance)
	assert.Equal(t, d.Bootstrap, cfg.Bootstrap)
	assert.Equal(t, 60*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 2.0, cfg.Scale.Values["DIPLOMACY"])
	assert.Equal(t, -2.0, cfg.Scale.Values["THREAT"])
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
treatment: IRAN
controls: [NK, CHINA]
outcome:
  kind: share
  share_label: diplomacy
covariance: HC3
bootstrap:
  iterations: 500
  seed: 7
llm:
  timeout: 5s
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "IRAN", cfg.Treatment)
	assert.Equal(t, []string{"NK", "CHINA"}, cfg.Controls)
	assert.Equal(t, "DIPLOMACY", cfg.Outcome.ShareLabel)
	assert.Equal(t, "hc3", cfg.Covariance)
	assert.Equal(t, 500, cfg.Bootstrap.Iterations)
	assert.Equal(t, uint64(7), cfg.Bootstrap.Seed)
	assert.Equal(t, 5*time.Second, cfg.LLM.Timeout)
	// untouched keys keep their defaults
	assert.Equal(t, 0.10, cfg.Significance.ParallelTrends)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("RATCHET_TREATMENT", "UKRAINE")
	t.Setenv("RATCHET_SIGNIFICANCE_PARALLEL_TRENDS", "0.05")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg, err := Load(writeConfig(t, "{}\n"))
	require.NoError(t, err)
	assert.Equal(t, "UKRAINE", cfg.Treatment)
	assert.Equal(t, 0.05, cfg.Significance.ParallelTrends)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadUpperCasesGroups(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
treatment: " Nk "
controls: [China, iran]
`))
	require.NoError(t, err)
	assert.Equal(t, "NK", cfg.Treatment)
	assert.Equal(t, []string{"CHINA", "IRAN"}, cfg.Controls)
}

func TestLoadRejectsTreatmentAsControlAnyCase(t *testing.T) {
	_, err := Load(writeConfig(t, `
treatment: nk
controls: [NK, CHINA]
`))
	assert.ErrorContains(t, err, "cannot be its own control")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*model.Config)
		field  string
	}{
		{"no controls", func(c *model.Config) { c.Controls = nil }, "controls"},
		{"self control", func(c *model.Config) { c.Controls = []string{"NK"} }, "controls"},
		{"duplicate control", func(c *model.Config) { c.Controls = []string{"IRAN", "IRAN"} }, "controls"},
		{"threshold out of range", func(c *model.Config) { c.Significance.ParallelTrends = 1.5 }, "significance.parallel_trends"},
		{"bad covariance", func(c *model.Config) { c.Covariance = "robust" }, "covariance"},
		{"bad date", func(c *model.Config) { c.Intervention = "June 2018" }, "intervention"},
		{"overlapping periods", func(c *model.Config) { c.Periods[1].Start = "2018-01-01" }, "periods"},
		{"intervention outside range", func(c *model.Config) { c.Intervention = "2020-01-01" }, "intervention"},
		{"range reversed", func(c *model.Config) { c.Range.End = "2016-01-01" }, "range"},
		{"share without label", func(c *model.Config) { c.Outcome.Kind = "share" }, "outcome.share_label"},
		{"unknown scale label", func(c *model.Config) { c.Scale.Values["WAR"] = -3 }, "scale.values"},
		{"confidence above one", func(c *model.Config) { c.Outcome.MinConfidence = 1.2 }, "outcome.min_confidence"},
		{"bad method", func(c *model.Config) { c.Bootstrap.Method = "bca" }, "bootstrap.method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := model.DefaultConfig()
			tt.mutate(&cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidConfig))

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			fields := make([]string, len(verr.Fields))
			for i, f := range verr.Fields {
				fields[i] = f.Field
			}
			assert.Contains(t, fields, tt.field)
		})
	}
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".ratchet", "runs.db"), ExpandPath("~/.ratchet/runs.db"))

	t.Setenv("RATCHET_TEST_DIR", "/tmp/x")
	assert.Equal(t, "/tmp/x/cache", ExpandPath("$RATCHET_TEST_DIR/cache"))
	assert.Equal(t, "", ExpandPath(""))
}
