package report

import (
	"fmt"
	"strings"

	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/trends"
)

// RenderMarkdown writes the Markdown report to path
func (r *Renderer) RenderMarkdown(run *model.Run, alpha float64, path string) error {
	return writeFile(path, []byte(Markdown(run, alpha)))
}

// Markdown formats a run as a Markdown document
func Markdown(run *model.Run, alpha float64) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Difference-in-differences: %s\n\n", run.Treatment)
	fmt.Fprintf(&b, "- Run: `%s`\n", run.ID)
	fmt.Fprintf(&b, "- Created: %s\n", run.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Config: `%s`\n", run.ConfigHash)
	fmt.Fprintf(&b, "- Outcome: %s\n", run.Outcome)
	if run.Scale != "" {
		fmt.Fprintf(&b, "- Scale: %s\n", run.Scale)
	}
	fmt.Fprintf(&b, "- Items: %d kept of %d (%d dropped)\n", run.Drops.Kept, run.Drops.Total, run.Drops.Dropped())
	if run.Drops.LowConfidence > 0 {
		fmt.Fprintf(&b, "- Below confidence threshold: %d\n", run.Drops.LowConfidence)
	}
	b.WriteString("\n")

	b.WriteString("## Estimates\n\n")
	b.WriteString("| Control | Spec | Coefficient | SE | p | 95% CI | Cov |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	for _, c := range run.Comparisons {
		for _, res := range []*model.DiDResult{c.Level, c.Slope} {
			if res == nil {
				continue
			}
			fmt.Fprintf(&b, "| %s | %s | %s%s | %s | %s | [%s, %s] | %s |\n",
				c.Control, res.Spec, num(res.Coefficient, 4), stars(res.PValue, alpha),
				num(res.StandardError, 4), pval(res.PValue),
				num(res.CILower, 4), num(res.CIUpper, 4), res.Covariance)
		}
		if c.Cumulative != nil {
			fmt.Fprintf(&b, "| %s | slope x %d | %s | %s | %s | [%s, %s] | |\n",
				c.Control, c.Cumulative.Horizon, num(c.Cumulative.Effect, 4),
				num(c.Cumulative.StandardError, 4), pval(c.Cumulative.PValue),
				num(c.Cumulative.CILower, 4), num(c.Cumulative.CIUpper, 4))
		}
	}
	b.WriteString("\n")

	b.WriteString("## Parallel trends\n\n")
	b.WriteString("| Control | Window | treat:time | p | Verdict | n | Covariance |\n")
	b.WriteString("|---|---|---|---|---|---|---|\n")
	var notes []string
	for _, c := range run.Comparisons {
		for _, t := range c.Trends {
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %d | %s |\n",
				c.Control, t.Window, num(t.Coefficient, 4), pval(t.PValue), t.Verdict, t.NObs, t.Covariance)
			for _, w := range t.Warnings {
				notes = append(notes, fmt.Sprintf("- %s / %s: %s", c.Control, t.Window, w))
			}
		}
		if es := c.EventStudy; es != nil {
			fmt.Fprintf(&b, "| %s | event study | | | %s | %d/%d leads | |\n",
				c.Control, es.Verdict, es.Violations, es.PreLeads)
		}
	}
	if len(notes) > 0 {
		b.WriteString("\n" + strings.Join(notes, "\n") + "\n")
	}
	fmt.Fprintf(&b, "\n> %s\n\n", trends.Caveat)

	if hasTransitions(run) {
		b.WriteString("## Period transitions\n\n")
		b.WriteString("| Control | From | To | Manual DiD | Regression DiD | p | Cohen's d |\n")
		b.WriteString("|---|---|---|---|---|---|---|\n")
		for _, c := range run.Comparisons {
			for _, t := range c.Transitions {
				reg, p, d := "", "", ""
				if t.Regression != nil {
					reg = num(t.Regression.Coefficient, 4) + stars(t.Regression.PValue, alpha)
					p = pval(t.Regression.PValue)
				}
				if t.Effect != nil {
					d = num(t.Effect.CohensD, 3)
				}
				fmt.Fprintf(&b, "| %s | %s | %s | %s | %s | %s | %s |\n",
					c.Control, t.From, t.To, num(t.ManualDiD, 4), reg, p, d)
			}
		}
		b.WriteString("\n")
	}

	b.WriteString("## Ratchet ratio\n\n")
	b.WriteString("| Comparison | Observed | CI | P(ratio >= 1) | Infinite draws | Supported |\n")
	b.WriteString("|---|---|---|---|---|---|\n")
	writeRatio := func(name string, r *model.BootstrapRatioResult) {
		if r == nil {
			return
		}
		fmt.Fprintf(&b, "| %s | %s | [%s, %s] | %s | %d/%d | %t |\n",
			name, num(r.Observed, 3), num(r.CILower, 3), num(r.CIUpper, 3),
			num(r.ProbRatioGEOne, 3), r.InfiniteCount, r.Iterations, r.RatchetSupported)
	}
	writeRatio(run.Treatment, run.Ratchet)
	for _, c := range run.Comparisons {
		writeRatio(c.Treatment+" vs "+c.Control, c.Ratchet)
	}
	b.WriteString("\n")

	if its := run.ITS; its != nil {
		b.WriteString("## Interrupted time series\n\n")
		fmt.Fprintf(&b, "- Level change: %s (p = %s)\n", num(its.LevelChange.Estimate, 4), pval(its.LevelChange.PValue))
		fmt.Fprintf(&b, "- Slope change: %s (p = %s)\n", num(its.SlopeChange.Estimate, 4), pval(its.SlopeChange.PValue))
		fmt.Fprintf(&b, "- Post mean %s against counterfactual %s: effect %s\n\n",
			num(its.ActualPost, 4), num(its.Counterfactual, 4), num(its.CausalEffect, 4))
		for _, w := range its.Warnings {
			fmt.Fprintf(&b, "- Note: %s\n", w)
		}
		if len(its.Warnings) > 0 {
			b.WriteString("\n")
		}
	}

	errs := allErrors(run)
	if len(errs) > 0 {
		b.WriteString("## Failed steps\n\n")
		for _, e := range errs {
			if e.Control != "" {
				fmt.Fprintf(&b, "- %s / %s: %s\n", e.Control, e.Step, e.Error)
			} else {
				fmt.Fprintf(&b, "- %s: %s\n", e.Step, e.Error)
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

func hasTransitions(run *model.Run) bool {
	for _, c := range run.Comparisons {
		if len(c.Transitions) > 0 {
			return true
		}
	}
	return false
}

func allErrors(run *model.Run) []model.StepError {
	out := append([]model.StepError(nil), run.Errors...)
	for _, c := range run.Comparisons {
		out = append(out, c.Errors...)
	}
	return out
}
