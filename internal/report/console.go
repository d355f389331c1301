package report

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/ratchet/internal/model"
)

var (
	AccentColor  = lipgloss.Color("#FF6B6B")
	PassColor    = lipgloss.Color("#4ECDC4")
	WarnColor    = lipgloss.Color("#FFE66D")
	SubtleColor  = lipgloss.Color("#666666")
	TitleStyle   = lipgloss.NewStyle().Bold(true).Foreground(AccentColor)
	HeadingStyle = lipgloss.NewStyle().Bold(true)
	PassStyle    = lipgloss.NewStyle().Foreground(PassColor)
	FailStyle    = lipgloss.NewStyle().Foreground(AccentColor)
	WarnStyle    = lipgloss.NewStyle().Foreground(WarnColor)
	SubtleStyle  = lipgloss.NewStyle().Foreground(SubtleColor)
	BoxStyle     = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(0, 1)
)

// VerdictStyle colors a parallel-trends verdict
func VerdictStyle(v model.Verdict) lipgloss.Style {
	switch v {
	case model.VerdictPass:
		return PassStyle
	case model.VerdictFail:
		return FailStyle
	}
	return WarnStyle
}

// RenderSummary prints a compact overview of a run to Out
func (r *Renderer) RenderSummary(run *model.Run, alpha float64) {
	fmt.Fprintln(r.Out, Summary(run, alpha))
}

// Summary formats a run for the terminal
func Summary(run *model.Run, alpha float64) string {
	var blocks []string

	head := []string{
		TitleStyle.Render(fmt.Sprintf("Ratchet analysis: %s (%s)", run.Treatment, run.Outcome)),
		SubtleStyle.Render(fmt.Sprintf("run %s  config %s", run.ID, run.ConfigHash)),
		fmt.Sprintf("Items: %d kept of %d", run.Drops.Kept, run.Drops.Total),
	}
	if n := run.Drops.Dropped(); n > 0 {
		line := fmt.Sprintf("Dropped: %d (malformed %d, outside range %d, missing outcome %d, unknown group %d",
			n, run.Drops.MalformedTimestamps, run.Drops.OutsideRange, run.Drops.MissingOutcome, run.Drops.UnknownGroup)
		if run.Drops.PeriodOnly > 0 {
			line += fmt.Sprintf(", period only %d", run.Drops.PeriodOnly)
		}
		if run.Drops.LowConfidence > 0 {
			line += fmt.Sprintf(", low confidence %d", run.Drops.LowConfidence)
		}
		head = append(head, WarnStyle.Render(line+")"))
	}
	blocks = append(blocks, strings.Join(head, "\n"))

	for _, c := range run.Comparisons {
		blocks = append(blocks, BoxStyle.Render(comparisonBlock(c, alpha)))
	}

	var tail []string
	if its := run.ITS; its != nil {
		tail = append(tail, HeadingStyle.Render("Interrupted time series ("+its.Group+")"),
			fmt.Sprintf("  level %s (p %s)  slope %s (p %s)  effect vs counterfactual %s",
				num(its.LevelChange.Estimate, 4), pval(its.LevelChange.PValue),
				num(its.SlopeChange.Estimate, 4), pval(its.SlopeChange.PValue),
				num(its.CausalEffect, 4)))
		for _, w := range its.Warnings {
			tail = append(tail, WarnStyle.Render("  ! "+w))
		}
	}
	if run.Ratchet != nil {
		tail = append(tail, HeadingStyle.Render("Ratchet ratio ("+run.Treatment+")"), "  "+ratioLine(run.Ratchet))
	}
	for _, e := range run.Errors {
		tail = append(tail, FailStyle.Render("✗ "+e.Step+": "+e.Error))
	}
	if len(tail) > 0 {
		blocks = append(blocks, strings.Join(tail, "\n"))
	}

	return lipgloss.JoinVertical(lipgloss.Left, blocks...)
}

func comparisonBlock(c model.ComparisonResult, alpha float64) string {
	lines := []string{HeadingStyle.Render(c.Treatment + " vs " + c.Control)}

	did := func(label string, res *model.DiDResult) {
		if res == nil {
			return
		}
		line := fmt.Sprintf("  %-7s %s%s  se %s  p %s  [%s, %s]  %s",
			label, num(res.Coefficient, 4), stars(res.PValue, alpha), num(res.StandardError, 4),
			pval(res.PValue), num(res.CILower, 4), num(res.CIUpper, 4), res.Covariance)
		if res.Significant(alpha) {
			line = PassStyle.Render(line)
		}
		lines = append(lines, line)
		for _, w := range res.Warnings {
			lines = append(lines, WarnStyle.Render("    ! "+w))
		}
	}
	did("level", c.Level)
	did("slope", c.Slope)
	if cum := c.Cumulative; cum != nil {
		lines = append(lines, fmt.Sprintf("  x%-6d %s  se %s  p %s", cum.Horizon,
			num(cum.Effect, 4), num(cum.StandardError, 4), pval(cum.PValue)))
	}
	if es := c.LevelEffect; es != nil {
		lines = append(lines, SubtleStyle.Render(fmt.Sprintf("  d = %s (%s), %s%% of scale",
			num(es.CohensD, 3), es.Interpretation, num(es.ScaleNormalizedPct, 1))))
	}

	for _, t := range c.Trends {
		lines = append(lines, fmt.Sprintf("  trends %-4s %s  p %s  n %d  %s",
			t.Window, VerdictStyle(t.Verdict).Render(string(t.Verdict)), pval(t.PValue), t.NObs, t.Covariance))
		for _, w := range t.Warnings {
			lines = append(lines, WarnStyle.Render("    ! "+w))
		}
	}
	if es := c.EventStudy; es != nil {
		lines = append(lines, fmt.Sprintf("  event study %s  %d of %d leads off zero",
			VerdictStyle(es.Verdict).Render(string(es.Verdict)), es.Violations, es.PreLeads))
	}
	for _, t := range c.Transitions {
		sig := ""
		if t.Significant {
			sig = " *"
		}
		lines = append(lines, fmt.Sprintf("  %s->%s  did %s%s", t.From, t.To, num(t.ManualDiD, 4), sig))
	}
	if c.Ratchet != nil {
		lines = append(lines, "  ratio "+ratioLine(c.Ratchet))
	}
	for _, e := range c.Errors {
		lines = append(lines, FailStyle.Render("  ✗ "+e.Step+": "+e.Error))
	}
	return strings.Join(lines, "\n")
}

func ratioLine(r *model.BootstrapRatioResult) string {
	line := fmt.Sprintf("%s  CI [%s, %s]  P(>=1) %s  inf %d/%d",
		num(r.Observed, 3), num(r.CILower, 3), num(r.CIUpper, 3),
		num(r.ProbRatioGEOne, 3), r.InfiniteCount, r.Iterations)
	if r.RatchetSupported {
		return PassStyle.Render(line + "  ratchet supported")
	}
	return line
}

// DiDDetail formats one DiD fit with its full coefficient table
func DiDDetail(res model.DiDResult, alpha float64) string {
	lines := []string{
		HeadingStyle.Render(fmt.Sprintf("%s DiD (%s)", res.Spec, res.Term)),
		fmt.Sprintf("  estimate %s%s  se %s  p %s  [%s, %s]",
			num(res.Coefficient, 4), stars(res.PValue, alpha), num(res.StandardError, 4),
			pval(res.PValue), num(res.CILower, 4), num(res.CIUpper, 4)),
		SubtleStyle.Render(fmt.Sprintf("  n %d  df %d  R² %s  cov %s  %s", res.NObs, res.DFResid,
			num(res.RSquared, 3), res.Covariance, res.Distribution)),
	}
	if res.NClusters > 0 {
		lines = append(lines, SubtleStyle.Render(fmt.Sprintf("  clusters %d", res.NClusters)))
	}
	if len(res.Coefficients) > 0 {
		lines = append(lines, fmt.Sprintf("  %-18s %10s %10s %8s", "term", "estimate", "se", "p"))
		for _, c := range res.Coefficients {
			lines = append(lines, fmt.Sprintf("  %-18s %10s %10s %8s",
				c.Term, num(c.Estimate, 4), num(c.StandardError, 4), pval(c.PValue)))
		}
	}
	for _, w := range res.Warnings {
		lines = append(lines, WarnStyle.Render("  ! "+w))
	}
	return strings.Join(lines, "\n")
}

// TrendsDetail formats a parallel-trends verdict with both group slopes
func TrendsDetail(t model.TrendsTestResult) string {
	lines := []string{
		HeadingStyle.Render("Parallel trends " + t.Window),
		fmt.Sprintf("  %s  diff %s  se %s  p %s  threshold %s  n %d",
			VerdictStyle(t.Verdict).Render(string(t.Verdict)),
			num(t.Coefficient, 4), num(t.StandardError, 4), pval(t.PValue), num(t.Threshold, 2), t.NObs),
		fmt.Sprintf("  slopes: treatment %s  control %s", num(t.TreatmentSlope, 4), num(t.ControlSlope, 4)),
	}
	if t.Covariance != "" {
		lines = append(lines, SubtleStyle.Render("  covariance "+t.Covariance))
	}
	for _, w := range t.Warnings {
		lines = append(lines, WarnStyle.Render("  ! "+w))
	}
	if t.Caveat != "" {
		lines = append(lines, SubtleStyle.Render("  "+t.Caveat))
	}
	return strings.Join(lines, "\n")
}

// RatioDetail formats a bootstrap ratio result
func RatioDetail(r model.BootstrapRatioResult) string {
	title := "Ratchet ratio " + r.Group
	if r.Control != "" {
		title += " vs " + r.Control
	}
	return strings.Join([]string{
		HeadingStyle.Render(title),
		"  " + ratioLine(&r),
		SubtleStyle.Render(fmt.Sprintf("  %s percentile, level %s, seed %d, mean finite ratio %s",
			r.Method, num(r.ConfidenceLevel, 2), r.Seed, num(r.MeanRatio, 3))),
	}, "\n")
}

// RunList formats stored run summaries, newest first
func RunList(runs []model.RunSummary) string {
	if len(runs) == 0 {
		return SubtleStyle.Render("no stored runs")
	}
	lines := []string{HeadingStyle.Render(fmt.Sprintf("%-36s  %-20s  %-16s  %-8s  %s",
		"ID", "CREATED", "CONFIG", "GROUP", "COMPARISONS"))}
	for _, r := range runs {
		line := fmt.Sprintf("%-36s  %-20s  %-16s  %-8s  %d",
			r.ID, r.CreatedAt.UTC().Format("2006-01-02 15:04:05"), r.ConfigHash, r.Treatment, r.Comparisons)
		if r.Failures > 0 {
			line += FailStyle.Render(fmt.Sprintf(" (%d failed)", r.Failures))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
