package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/ratchet/internal/model"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRun(id string, created time.Time) *model.Run {
	return &model.Run{
		ID:         id,
		CreatedAt:  created,
		ConfigHash: "abc123",
		Treatment:  "NK",
		Outcome:    "scale",
		Drops:      model.DropReport{Total: 10, Kept: 9, MalformedTimestamps: 1},
		Comparisons: []model.ComparisonResult{
			{
				Treatment: "NK",
				Control:   "CHINA",
				Level:     &model.DiDResult{Spec: "level", Term: "treat:post", Coefficient: 1.5, StandardError: 0.5, PValue: 0.04},
				Trends:    []model.TrendsTestResult{{Window: "P1", Verdict: model.VerdictPass, PValue: 0.4}},
				Ratchet: &model.BootstrapRatioResult{
					Observed: 0.4, CILower: 0.2, CIUpper: math.Inf(1), Iterations: 100, InfiniteCount: 5,
				},
			},
			{
				Treatment: "NK",
				Control:   "RUSSIA",
				Errors:    []model.StepError{{Step: "level", Control: "RUSSIA", Error: "insufficient coverage"}},
			},
		},
	}
}

func TestOpenMigrates(t *testing.T) {
	s := createTestStore(t)

	var version int
	require.NoError(t, s.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, ExpectedSchemaVersion, version)

	// migrating again is a no-op
	require.NoError(t, s.Migrate(context.Background()))
}

func TestSaveAndGetRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRun("run-1", created)))

	got, err := s.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "NK", got.Treatment)
	assert.Equal(t, 1, got.Drops.MalformedTimestamps)
	require.Len(t, got.Comparisons, 2)
	assert.Equal(t, 1.5, got.Comparisons[0].Level.Coefficient)
	assert.True(t, math.IsInf(got.Comparisons[0].Ratchet.CIUpper, 1))
	assert.Equal(t, 5, got.Comparisons[0].Ratchet.InfiniteCount)
	assert.True(t, created.Equal(got.CreatedAt))

	var verdict string
	var ciUpper *float64
	require.NoError(t, s.db.QueryRow(
		`SELECT trends_verdict, ratio_ci_upper FROM comparisons WHERE run_id = ? AND control = ?`,
		"run-1", "CHINA").Scan(&verdict, &ciUpper))
	assert.Equal(t, "PASS", verdict)
	assert.Nil(t, ciUpper)
}

func TestGetRunNotFound(t *testing.T) {
	s := createTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestListRuns(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	require.NoError(t, s.SaveRun(ctx, testRun("old", base)))
	require.NoError(t, s.SaveRun(ctx, testRun("new", base.Add(time.Hour))))

	runs, err := s.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "new", runs[0].ID)
	assert.Equal(t, 2, runs[0].Comparisons)
	assert.Equal(t, 1, runs[0].Failures)

	runs, err = s.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestSaveRunDuplicateID(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	run := testRun("dup", time.Now())
	require.NoError(t, s.SaveRun(ctx, run))
	assert.Error(t, s.SaveRun(ctx, run))
}

func TestDeleteRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SaveRun(ctx, testRun("gone", time.Now())))

	require.NoError(t, s.DeleteRun(ctx, "gone"))
	_, err := s.GetRun(ctx, "gone")
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, s.DeleteRun(ctx, "gone"), ErrRunNotFound)

	var n int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM comparisons`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}
