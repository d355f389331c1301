package analysis

import (
	"context"
	"fmt"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ratchet/internal/model"
)

func testConfig() model.Config {
	cfg := model.DefaultConfig()
	cfg.Treatment = "NK"
	cfg.Controls = []string{"CHINA", "IRAN"}
	cfg.Outcome = model.OutcomeConfig{Kind: "continuous", Range: 2}
	cfg.Periods = []model.PeriodConfig{
		{Label: "P1", Start: "2017-01-01", End: "2017-07-01"},
		{Label: "P2", Start: "2017-07-01", End: "2018-01-01"},
		{Label: "P3", Start: "2018-01-01", End: "2018-07-01"},
	}
	cfg.Intervention = "2017-07-01"
	cfg.Range = model.RangeConfig{Start: "2017-01-01", End: "2018-06-30"}
	cfg.Bootstrap.Iterations = 200
	cfg.Bootstrap.Workers = 2
	return cfg
}

func base(group string, m int) float64 {
	switch group {
	case "NK":
		switch {
		case m < 6:
			return 0.01 * float64(m)
		case m < 12:
			return 1.0
		default:
			return 0.6
		}
	case "CHINA":
		return 0.01 * float64(m)
	default:
		return 0.02*float64(m) - 0.1
	}
}

// syntheticItems gives three scored items per group and month from 2017-01
// through 2018-06.
func syntheticItems(groups ...string) []model.Item {
	var items []model.Item
	for gi, g := range groups {
		for m := 0; m < 18; m++ {
			month := time.Month(m%12 + 1)
			year := 2017 + m/12
			for k, day := range []int{5, 12, 20} {
				noise := float64((m*7+k*3+gi*5)%5-2) * 0.05
				items = append(items, model.Item{
					ID:        fmt.Sprintf("%s-%d-%d", g, m, k),
					Group:     g,
					Timestamp: strconv.FormatInt(time.Date(year, month, day, 12, 0, 0, 0, time.UTC).Unix(), 10),
					Score:     base(g, m) + noise,
					HasScore:  true,
				})
			}
		}
	}
	return items
}

func TestPrepare(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)

	items := append(syntheticItems("NK", "CHINA", "IRAN"),
		model.Item{ID: "bad", Group: "NK", Timestamp: "yesterday", Score: 1, HasScore: true},
		model.Item{ID: "stranger", Group: "CUBA", Timestamp: "1500000000", Score: 1, HasScore: true},
	)
	ds, err := e.Prepare(items)
	require.NoError(t, err)

	assert.Equal(t, "2017-07", ds.Intervention)
	assert.Len(t, ds.Panel.Buckets, 18)
	assert.Len(t, ds.Panel.Rows, 3*18)
	assert.Equal(t, 1, ds.Drops.MalformedTimestamps)
	assert.Equal(t, 1, ds.Drops.UnknownGroup)
	assert.Equal(t, 3*18*3, ds.Drops.Kept)

	assert.Len(t, ds.Pools["NK"]["P1"], 18)
	assert.Len(t, ds.Pools["NK"]["P2"], 18)
	assert.Len(t, ds.Pools["CHINA"]["P3"], 18)
	assert.NotContains(t, ds.Pools, "CUBA")
}

func TestPrepareMinConfidence(t *testing.T) {
	cfg := testConfig()
	cfg.Outcome.MinConfidence = 0.9
	e, err := New(cfg, nil)
	require.NoError(t, err)

	items := syntheticItems("NK", "CHINA", "IRAN")
	lowNK := 0
	for i := range items {
		items[i].Confidence, items[i].HasConfidence = 0.95, true
		if items[i].Group == "NK" && items[i].ID[len(items[i].ID)-2:] == "-0" {
			items[i].Confidence = 0.5
			lowNK++
		}
	}
	require.Equal(t, 18, lowNK)
	items = append(items, model.Item{ID: "unrated", Group: "CHINA", Timestamp: items[0].Timestamp, Score: 1, HasScore: true})

	ds, err := e.Prepare(items)
	require.NoError(t, err)
	assert.Equal(t, lowNK+1, ds.Drops.LowConfidence)
	assert.Equal(t, lowNK+1, ds.Drops.ByReason["low_confidence"])
	assert.Equal(t, 3*18*3-lowNK, ds.Drops.Kept)
	assert.Len(t, ds.Pools["NK"]["P1"], 12, "pools apply the same filter")
	assert.Len(t, ds.Pools["CHINA"]["P1"], 18)

	row, ok := ds.Panel.Row("NK", "2017-03")
	require.True(t, ok)
	assert.Equal(t, 2, row.Count)
}

func TestPreparePeriodOnly(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)

	items := append(syntheticItems("NK", "CHINA"),
		model.Item{ID: "tagged", Group: "NK", Period: "P2", Score: 1, HasScore: true},
	)
	ds, err := e.Prepare(items)
	require.NoError(t, err)
	assert.Equal(t, 1, ds.Drops.PeriodOnly)
	assert.Equal(t, 0, ds.Drops.MalformedTimestamps)
	assert.Len(t, ds.Pools["NK"]["P2"], 19, "period-only items still reach their period pool")
}

func TestPeriodBounds(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)
	ds, err := e.Prepare(syntheticItems("NK", "CHINA"))
	require.NoError(t, err)

	from, to, err := e.periodBounds(ds, "P2")
	require.NoError(t, err)
	assert.Equal(t, "2017-07", from)
	assert.Equal(t, "2018-01", to)

	from, to, err = e.periodBounds(ds, "P3")
	require.NoError(t, err)
	assert.Equal(t, "2018-01", from)
	assert.Equal(t, "", to)

	_, _, err = e.periodBounds(ds, "P9")
	assert.Error(t, err)

	assert.Equal(t, []string{"P1", "P2"}, e.trendWindows())

	single := testConfig()
	single.Periods = single.Periods[:1]
	one, err := New(single, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"pre"}, one.trendWindows())
	assert.Equal(t, [][2]string{{"P1", "P2"}, {"P2", "P3"}, {"P1", "P3"}}, e.transitionPairs())
}

func TestRun(t *testing.T) {
	cfg := testConfig()
	cfg.Controls = []string{"CHINA", "IRAN", "RUSSIA"}
	e, err := New(cfg, nil)
	require.NoError(t, err)

	run, err := e.Run(context.Background(), syntheticItems("NK", "CHINA", "IRAN"))
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, ConfigHash(cfg), run.ConfigHash)
	assert.Equal(t, "continuous", run.Outcome)
	require.Len(t, run.Comparisons, 3)

	for _, c := range run.Comparisons[:2] {
		require.NotNil(t, c.Level, c.Control)
		assert.Greater(t, c.Level.Coefficient, 0.4, c.Control)
		assert.Equal(t, "cluster", c.Level.Covariance)
		require.NotNil(t, c.Slope, c.Control)
		require.NotNil(t, c.Cumulative, c.Control)
		assert.Equal(t, 15, c.Cumulative.Horizon)
		assert.InDelta(t, c.Slope.PValue, c.Cumulative.PValue, 1e-12)
		require.NotNil(t, c.LevelEffect, c.Control)
		assert.NotEmpty(t, c.LevelEffect.Interpretation)

		require.Len(t, c.Trends, 2, c.Control)
		assert.Equal(t, "P1", c.Trends[0].Window)
		assert.Equal(t, 12, c.Trends[0].NObs)
		assert.Contains(t, []model.Verdict{model.VerdictPass, model.VerdictFail}, c.Trends[0].Verdict)

		require.Len(t, c.Transitions, 3, c.Control)
		for _, tr := range c.Transitions {
			require.NotNil(t, tr.Regression)
			// a saturated 2x2 design reproduces the cell-mean arithmetic
			assert.InDelta(t, tr.ManualDiD, tr.Regression.Coefficient, 1e-9, "%s->%s", tr.From, tr.To)
		}

		require.NotNil(t, c.Ratchet, c.Control)
		assert.Equal(t, "NK", c.Ratchet.Group)
		assert.Equal(t, c.Control, c.Ratchet.Control)
		assert.Equal(t, 200, c.Ratchet.Iterations)
	}

	// a control without data fails on its own without affecting the others
	russia := run.Comparisons[2]
	assert.Equal(t, "RUSSIA", russia.Control)
	assert.Nil(t, russia.Level)
	assert.NotEmpty(t, russia.Errors)

	require.NotNil(t, run.ITS)
	assert.Equal(t, "NK", run.ITS.Group)
	require.NotNil(t, run.Ratchet)
	assert.Equal(t, "NK", run.Ratchet.Group)
	assert.Empty(t, run.Ratchet.Control)
	assert.Empty(t, run.Errors)
}

func TestRunIsReproducible(t *testing.T) {
	items := syntheticItems("NK", "CHINA", "IRAN")
	e, err := New(testConfig(), nil)
	require.NoError(t, err)

	a, err := e.Run(context.Background(), items)
	require.NoError(t, err)
	b, err := e.Run(context.Background(), items)
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	for i := range a.Comparisons {
		assert.Equal(t, a.Comparisons[i].Ratchet.CILower, b.Comparisons[i].Ratchet.CILower)
		assert.Equal(t, a.Comparisons[i].Ratchet.CIUpper, b.Comparisons[i].Ratchet.CIUpper)
	}
}

func TestRunCancelled(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Run(ctx, syntheticItems("NK", "CHINA", "IRAN"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBootstrapNeedsThreePeriods(t *testing.T) {
	cfg := testConfig()
	cfg.Periods = cfg.Periods[:2]
	e, err := New(cfg, nil)
	require.NoError(t, err)
	ds, err := e.Prepare(syntheticItems("NK", "CHINA"))
	require.NoError(t, err)

	_, err = e.Bootstrap(context.Background(), ds, "CHINA")
	assert.ErrorIs(t, err, ErrTooFewPeriods)
}

func TestBootstrapProgress(t *testing.T) {
	e, err := New(testConfig(), nil)
	require.NoError(t, err)
	ds, err := e.Prepare(syntheticItems("NK", "CHINA"))
	require.NoError(t, err)

	var done int64
	ch := make(chan int, 1024)
	e.SetProgress(func(d int) { ch <- d })
	_, err = e.Bootstrap(context.Background(), ds, "")
	require.NoError(t, err)
	close(ch)
	for d := range ch {
		done += int64(d)
	}
	assert.Equal(t, int64(e.BootstrapIterations()), done)
}

func TestConfigHash(t *testing.T) {
	a := testConfig()
	b := testConfig()
	b.LLM.Model = "other"
	assert.Equal(t, ConfigHash(a), ConfigHash(b))

	b.Treatment = "IRAN"
	assert.NotEqual(t, ConfigHash(a), ConfigHash(b))
	assert.Len(t, ConfigHash(a), 16)
}
