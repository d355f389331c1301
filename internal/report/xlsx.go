package report

import (
	"fmt"
	"math"

	"github.com/xuri/excelize/v2"

	"github.com/ppiankov/ratchet/internal/model"
)

// Sheet names of the workbook, one per result family
const (
	SheetSummary     = "Summary"
	SheetEstimates   = "DiD"
	SheetTrends      = "ParallelTrends"
	SheetEventStudy  = "EventStudy"
	SheetTransitions = "Transitions"
	SheetBootstrap   = "Bootstrap"
	SheetErrors      = "Errors"
)

type table struct {
	name   string
	header []any
	rows   [][]any
}

// cell keeps non-finite values out of numeric cells
func cell(v float64) any {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return ""
	}
	return v
}

// RenderXLSX writes the run as a workbook
func (r *Renderer) RenderXLSX(run *model.Run, path string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("create style: %w", err)
	}

	for i, t := range workbookTables(run) {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(t.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", t.name, err)
		}
		if err := writeTable(f, t, bold); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

func writeTable(f *excelize.File, t table, headerStyle int) error {
	rows := append([][]any{t.header}, t.rows...)
	for i, row := range rows {
		ref, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(t.name, ref, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", t.name, i+1, err)
		}
	}
	last, err := excelize.CoordinatesToCellName(len(t.header), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(t.name, "A1", last, headerStyle); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(t.header))
	if err != nil {
		return err
	}
	return f.SetColWidth(t.name, "A", lastCol, 16)
}

func workbookTables(run *model.Run) []table {
	summary := table{
		name:   SheetSummary,
		header: []any{"Field", "Value"},
		rows: [][]any{
			{"run_id", run.ID},
			{"created_at", run.CreatedAt.Format("2006-01-02 15:04:05")},
			{"config_hash", run.ConfigHash},
			{"treatment", run.Treatment},
			{"outcome", run.Outcome},
			{"scale", run.Scale},
			{"items_total", run.Drops.Total},
			{"items_kept", run.Drops.Kept},
			{"malformed_timestamps", run.Drops.MalformedTimestamps},
			{"outside_range", run.Drops.OutsideRange},
			{"missing_outcome", run.Drops.MissingOutcome},
			{"unknown_group", run.Drops.UnknownGroup},
			{"period_only", run.Drops.PeriodOnly},
			{"low_confidence", run.Drops.LowConfidence},
		},
	}
	if its := run.ITS; its != nil {
		summary.rows = append(summary.rows,
			[]any{"its_level_change", cell(its.LevelChange.Estimate)},
			[]any{"its_level_change_p", cell(its.LevelChange.PValue)},
			[]any{"its_slope_change", cell(its.SlopeChange.Estimate)},
			[]any{"its_slope_change_p", cell(its.SlopeChange.PValue)},
			[]any{"its_counterfactual_post_mean", cell(its.Counterfactual)},
			[]any{"its_actual_post_mean", cell(its.ActualPost)},
			[]any{"its_causal_effect", cell(its.CausalEffect)},
		)
	}
	for _, w := range run.Warnings {
		summary.rows = append(summary.rows, []any{"warning", w})
	}

	est := table{
		name: SheetEstimates,
		header: []any{"control", "spec", "term", "coefficient", "std_error", "statistic", "p_value",
			"ci_lower", "ci_upper", "r_squared", "n_obs", "covariance", "n_clusters", "cohens_d", "scale_pct"},
	}
	trendsT := table{
		name:   SheetTrends,
		header: []any{"control", "window", "coefficient", "std_error", "p_value", "threshold", "verdict", "treatment_slope", "control_slope", "n_obs"},
	}
	eventT := table{
		name:   SheetEventStudy,
		header: []any{"control", "rel_time", "coefficient", "std_error", "p_value", "ci_lower", "ci_upper"},
	}
	transT := table{
		name:   SheetTransitions,
		header: []any{"control", "from", "to", "manual_did", "regression_did", "p_value", "significant", "cohens_d", "treatment_pre", "treatment_post", "control_pre", "control_post"},
	}
	bootT := table{
		name:   SheetBootstrap,
		header: []any{"group", "control", "observed", "ci_lower", "ci_upper", "mean_ratio", "p_ratio_ge_1", "infinite_count", "iterations", "seed", "method", "ratchet_supported"},
	}
	errT := table{
		name:   SheetErrors,
		header: []any{"control", "step", "error"},
	}

	addBoot := func(r *model.BootstrapRatioResult) {
		if r == nil {
			return
		}
		bootT.rows = append(bootT.rows, []any{r.Group, r.Control, cell(r.Observed), cell(r.CILower), cell(r.CIUpper),
			cell(r.MeanRatio), r.ProbRatioGEOne, r.InfiniteCount, r.Iterations, r.Seed, r.Method, r.RatchetSupported})
	}
	addBoot(run.Ratchet)

	for _, c := range run.Comparisons {
		addDiD := func(res *model.DiDResult, es *model.EffectSize) {
			if res == nil {
				return
			}
			d, pct := any(""), any("")
			if es != nil {
				d, pct = cell(es.CohensD), cell(es.ScaleNormalizedPct)
			}
			est.rows = append(est.rows, []any{c.Control, res.Spec, res.Term, res.Coefficient, res.StandardError,
				res.Statistic, res.PValue, res.CILower, res.CIUpper, res.RSquared, res.NObs, res.Covariance,
				res.NClusters, d, pct})
		}
		addDiD(c.Level, c.LevelEffect)
		addDiD(c.Slope, c.SlopeEffect)
		if cum := c.Cumulative; cum != nil {
			est.rows = append(est.rows, []any{c.Control, fmt.Sprintf("slope_x%d", cum.Horizon), "cumulative",
				cum.Effect, cum.StandardError, cum.Statistic, cum.PValue, cum.CILower, cum.CIUpper, "", "", "", "", "", ""})
		}

		for _, t := range c.Trends {
			trendsT.rows = append(trendsT.rows, []any{c.Control, t.Window, cell(t.Coefficient), cell(t.StandardError),
				cell(t.PValue), t.Threshold, string(t.Verdict), cell(t.TreatmentSlope), cell(t.ControlSlope), t.NObs})
		}
		if es := c.EventStudy; es != nil {
			for _, p := range es.Points {
				eventT.rows = append(eventT.rows, []any{c.Control, p.RelTime, cell(p.Coefficient), cell(p.StandardError),
					cell(p.PValue), cell(p.CILower), cell(p.CIUpper)})
			}
		}
		for _, t := range c.Transitions {
			reg, p, d := any(""), any(""), any("")
			if t.Regression != nil {
				reg, p = t.Regression.Coefficient, t.Regression.PValue
			}
			if t.Effect != nil {
				d = cell(t.Effect.CohensD)
			}
			transT.rows = append(transT.rows, []any{c.Control, t.From, t.To, cell(t.ManualDiD), reg, p, t.Significant, d,
				cell(t.TreatmentPre), cell(t.TreatmentPost), cell(t.ControlPre), cell(t.ControlPost)})
		}
		addBoot(c.Ratchet)
	}

	for _, e := range allErrors(run) {
		errT.rows = append(errT.rows, []any{e.Control, e.Step, e.Error})
	}

	return []table{summary, est, trendsT, eventT, transT, bootT, errT}
}
