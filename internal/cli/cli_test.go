package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/ratchet/internal/dataset"
	"github.com/ppiankov/ratchet/internal/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(append(args, "--no-progress"))
	err := rootCmd.ExecuteContext(context.Background())
	return buf.String(), err
}

// studyFixture writes a three-period study config and a matching item table
func studyFixture(t *testing.T) (cfgPath, itemsPath, dbPath string) {
	t.Helper()
	dir := t.TempDir()

	cfg := model.DefaultConfig()
	cfg.Controls = []string{"CHINA", "IRAN"}
	cfg.Periods = []model.PeriodConfig{
		{Label: "P1", Start: "2017-01-01", End: "2017-07-01"},
		{Label: "P2", Start: "2017-07-01", End: "2018-01-01"},
		{Label: "P3", Start: "2018-01-01", End: "2018-07-01"},
	}
	cfg.Intervention = "2017-07-01"
	cfg.Range = model.RangeConfig{Start: "2017-01-01", End: "2018-06-30"}
	cfg.Bootstrap.Iterations = 50
	cfg.LLM.CacheDir = filepath.Join(dir, "cache")
	cfg.Storage.DBPath = filepath.Join(dir, "runs.db")

	data, err := yaml.Marshal(cfg)
	require.NoError(t, err)
	cfgPath = filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, data, 0644))

	frames := []model.Frame{model.FrameThreat, model.FrameNeutral, model.FrameDiplomacy}
	var items []model.Item
	for gi, g := range []string{"NK", "CHINA", "IRAN"} {
		for m := 0; m < 18; m++ {
			ts := time.Date(2017+m/12, time.Month(m%12+1), 10, 0, 0, 0, 0, time.UTC)
			for k := 0; k < 4; k++ {
				label := frames[(m+k+gi)%len(frames)]
				if g == "NK" && m >= 6 && m < 12 && k < 2 {
					label = model.FrameDiplomacy
				}
				items = append(items, model.Item{
					ID:        fmt.Sprintf("%s-%d-%d", g, m, k),
					Group:     g,
					Timestamp: strconv.FormatInt(ts.Add(time.Duration(k)*time.Hour).Unix(), 10),
					Label:     label,
				})
			}
		}
	}
	itemsPath = filepath.Join(dir, "items.csv")
	require.NoError(t, dataset.Save(itemsPath, items, cfg.Input.Columns))
	return cfgPath, itemsPath, cfg.Storage.DBPath
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "ratchet "+Version)
}

func TestConfigInitAndShow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Created default configuration: "+path)

	_, err = execute(t, "config", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "treatment: NK")
	assert.Contains(t, out, "parallel_trends: 0.1")
}

func TestAnalyzeStoreAndRuns(t *testing.T) {
	cfgPath, items, dbPath := studyFixture(t)
	jsonPath := filepath.Join(t.TempDir(), "run.json")

	out, err := execute(t, "analyze", "--config", cfgPath, "--items", items,
		"--json", jsonPath, "--store", "--db", dbPath, "--seed", "7")
	require.NoError(t, err)
	assert.Contains(t, out, "NK vs CHINA")

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var run model.Run
	require.NoError(t, json.Unmarshal(data, &run))
	require.NotEmpty(t, run.ID)
	require.NotNil(t, run.Ratchet)
	assert.Equal(t, uint64(7), run.Ratchet.Seed)

	out, err = execute(t, "runs", "list", "--config", cfgPath, "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, run.ID)

	out, err = execute(t, "runs", "show", run.ID, "--config", cfgPath, "--db", dbPath, "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, run.ConfigHash)

	_, err = execute(t, "runs", "delete", run.ID, "--config", cfgPath, "--db", dbPath)
	require.NoError(t, err)
	_, err = execute(t, "runs", "show", run.ID, "--config", cfgPath, "--db", dbPath, "--format", "json")
	assert.ErrorContains(t, err, "run not found")
}

func TestSingleStepCommands(t *testing.T) {
	cfgPath, items, _ := studyFixture(t)

	out, err := execute(t, "did", "--config", cfgPath, "--items", items,
		"--control", "CHINA", "--spec", "slope", "--cov", "HC3", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "slope DiD")
	assert.Contains(t, out, "cumulative x15")

	out, err = execute(t, "trends", "--config", cfgPath, "--items", items,
		"--control", "iran", "--window", "P1", "--format", "json")
	require.NoError(t, err)
	var tr model.TrendsTestResult
	require.NoError(t, json.Unmarshal([]byte(out), &tr))
	assert.Equal(t, "P1", tr.Window)

	out, err = execute(t, "bootstrap", "--config", cfgPath, "--items", items,
		"--control", "CHINA", "--iterations", "40", "--format", "text")
	require.NoError(t, err)
	assert.Contains(t, out, "Ratchet ratio NK vs CHINA")
	assert.Contains(t, out, "/40")

	_, err = execute(t, "did", "--config", cfgPath, "--items", items,
		"--control", "CUBA", "--spec", "level", "--format", "text")
	assert.ErrorContains(t, err, "unknown control")

	_, err = execute(t, "did", "--config", cfgPath, "--items", items,
		"--control", "CHINA", "--spec", "quadratic", "--format", "text")
	assert.Error(t, err)
}
