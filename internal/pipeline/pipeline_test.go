package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ratchet/internal/dataset"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/report"
	"github.com/ppiankov/ratchet/internal/store"
)

type fakeClassifier struct {
	calls atomic.Int32
}

func (f *fakeClassifier) Classify(_ context.Context, text string) (*model.Classification, error) {
	f.calls.Add(1)
	switch {
	case strings.Contains(text, "boom"):
		return nil, errors.New("upstream exploded")
	case strings.Contains(text, "summit"):
		return &model.Classification{Label: model.FrameDiplomacy, Confidence: 0.9}, nil
	}
	return &model.Classification{Label: model.FrameThreat, Confidence: 0.8}, nil
}

func testConfig() model.Config {
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
	cfg.Bootstrap.Workers = 2
	cfg.LLM.Concurrency = 2
	return cfg
}

// labelledItems gives four items per group and month. The last item of each
// month carries only text when textOnly is set.
func labelledItems(textOnly bool) []model.Item {
	frames := []model.Frame{model.FrameThreat, model.FrameNeutral, model.FrameDiplomacy}
	var items []model.Item
	for gi, g := range []string{"NK", "CHINA", "IRAN"} {
		for m := 0; m < 18; m++ {
			ts := time.Date(2017+m/12, time.Month(m%12+1), 10, 0, 0, 0, 0, time.UTC)
			for k := 0; k < 4; k++ {
				it := model.Item{
					ID:        fmt.Sprintf("%s-%d-%d", g, m, k),
					Group:     g,
					Timestamp: strconv.FormatInt(ts.Add(time.Duration(k)*time.Hour).Unix(), 10),
					Label:     frames[(m+k+gi)%len(frames)],
				}
				if g == "NK" && m >= 6 && k == 0 {
					it.Label = model.FrameDiplomacy
				}
				if textOnly && k == 3 {
					it.Label = ""
					it.Text = "news about the summit"
					if g == "IRAN" {
						it.Text = "sanctions"
					}
				}
				items = append(items, it)
			}
		}
	}
	return items
}

func writeItems(t *testing.T, items []model.Item) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "items.csv")
	require.NoError(t, dataset.Save(path, items, model.DefaultConfig().Input.Columns))
	return path
}

func newTestPipeline(t *testing.T, cfg model.Config) (*Pipeline, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	p, err := NewPipeline(cfg, report.NewRenderer(&out), nil)
	require.NoError(t, err)
	return p, &out
}

func TestAnalyzeClassifiesAndPersists(t *testing.T) {
	ctx := context.Background()
	items := labelledItems(true)
	path := writeItems(t, items)

	s, err := store.Open(ctx, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	fake := &fakeClassifier{}
	p, _ := newTestPipeline(t, testConfig())
	p.WithClassifier(fake).WithStore(s)

	var lastDone, lastTotal int
	run, err := p.Analyze(ctx, path, AnalyzeOptions{
		Classify:         true,
		ClassifyProgress: func(done, total int) { lastDone, lastTotal = done, total },
	})
	require.NoError(t, err)

	pending := len(items) / 4
	assert.Equal(t, int32(pending), fake.calls.Load())
	assert.Equal(t, pending, lastDone)
	assert.Equal(t, pending, lastTotal)

	assert.Equal(t, len(items), run.Drops.Total)
	assert.Equal(t, 0, run.Drops.MissingOutcome)
	require.Len(t, run.Comparisons, 2)
	assert.Equal(t, "CHINA", run.Comparisons[0].Control)

	stored, err := s.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, run.ConfigHash, stored.ConfigHash)
}

func TestAnalyzeWithoutClassifyDropsUnlabelled(t *testing.T) {
	items := labelledItems(true)
	path := writeItems(t, items)

	fake := &fakeClassifier{}
	p, _ := newTestPipeline(t, testConfig())
	p.WithClassifier(fake)

	run, err := p.Analyze(context.Background(), path, AnalyzeOptions{})
	require.NoError(t, err)
	assert.Zero(t, fake.calls.Load())
	assert.Equal(t, len(items)/4, run.Drops.MissingOutcome)
}

func TestClassifyKeepsFailuresUnlabelled(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	p.WithClassifier(&fakeClassifier{})

	items := []model.Item{
		{ID: "a", Group: "NK", Text: "summit in Singapore"},
		{ID: "b", Group: "NK", Text: "boom"},
		{ID: "c", Group: "NK", Label: model.FrameNeutral, Text: "already done"},
		{ID: "d", Group: "NK"},
	}
	out, stats, err := p.Classify(context.Background(), items, nil)
	require.NoError(t, err)

	assert.Equal(t, ClassifyStats{Pending: 2, Labelled: 1, Failed: 1}, stats)
	assert.Equal(t, model.FrameDiplomacy, out[0].Label)
	assert.Empty(t, out[1].Label)
	assert.Equal(t, model.FrameNeutral, out[2].Label)
	assert.Empty(t, items[0].Label, "input must not be modified")
}

func TestNeedsClassification(t *testing.T) {
	cfg := testConfig()
	p, _ := newTestPipeline(t, cfg)
	pending := []model.Item{{ID: "a", Text: "hello"}}

	assert.True(t, p.NeedsClassification(pending))
	assert.False(t, p.NeedsClassification([]model.Item{{ID: "a", Label: model.FrameThreat, Text: "x"}}))

	cfg.Outcome = model.OutcomeConfig{Kind: "continuous", Range: 2}
	p, _ = newTestPipeline(t, cfg)
	assert.False(t, p.NeedsClassification(pending))
}

func TestRenderReport(t *testing.T) {
	p, out := newTestPipeline(t, testConfig())
	run, err := p.Engine().Run(context.Background(), labelledItems(false))
	require.NoError(t, err)

	dir := t.TempDir()
	outputs := Outputs{
		JSON:     filepath.Join(dir, "run.json"),
		XLSX:     filepath.Join(dir, "run.xlsx"),
		Markdown: filepath.Join(dir, "run.md"),
	}
	require.NoError(t, p.RenderReport(run, outputs, true))

	for _, f := range []string{outputs.JSON, outputs.XLSX, outputs.Markdown} {
		info, err := os.Stat(f)
		require.NoError(t, err)
		assert.Positive(t, info.Size())
	}
	assert.Contains(t, out.String(), "✓ Wrote JSON: "+outputs.JSON)
	assert.Contains(t, out.String(), "✓ Wrote Markdown: "+outputs.Markdown)
	assert.Contains(t, out.String(), "CHINA")
}

func TestSaveWithoutStore(t *testing.T) {
	p, _ := newTestPipeline(t, testConfig())
	err := p.Save(context.Background(), &model.Run{ID: "x"})
	assert.Error(t, err)
}

func TestNewPipelineRejectsBadCovariance(t *testing.T) {
	cfg := testConfig()
	cfg.Covariance = "sandwich"
	_, err := NewPipeline(cfg, nil, nil)
	assert.Error(t, err)
}
