package regress

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/ppiankov/ratchet/internal/model"
)

// EventStudy fits y ~ treat + time + sum_k treat x rel_k with rel = time - t0
// and one reference period left out. Pre-period leads whose interval excludes
// zero count as violations; the verdict passes with at most maxViolations.
//
// A common linear trend stands in for per-bucket fixed effects: with one row
// per group and bucket the fixed-effect design would be saturated.
func EventStudy(obs []Obs, t0 float64, reference, maxViolations int, opts Options) (model.EventStudyResult, error) {
	relSet := make(map[int]bool)
	for _, o := range obs {
		relSet[int(math.Round(o.Time-t0))] = true
	}
	if !relSet[reference] {
		return model.EventStudyResult{}, &InsufficientCoverageError{Spec: "event_study", Cell: fmt.Sprintf("rel=%d", reference)}
	}
	rels := make([]int, 0, len(relSet))
	for r := range relSet {
		if r != reference {
			rels = append(rels, r)
		}
	}
	sort.Ints(rels)

	names := []string{Intercept, "treat", "time"}
	col := make(map[int]int, len(rels))
	for _, r := range rels {
		col[r] = len(names)
		names = append(names, fmt.Sprintf("treat:rel[%d]", r))
	}

	x := mat.NewDense(len(obs), len(names), nil)
	y := make([]float64, len(obs))
	clusters := make([]string, len(obs))
	var hasTreat, hasControl bool
	for i, o := range obs {
		x.Set(i, 0, 1)
		x.Set(i, 1, o.Treat)
		x.Set(i, 2, o.Time)
		if o.Treat != 0 {
			hasTreat = true
			if j, ok := col[int(math.Round(o.Time-t0))]; ok {
				x.Set(i, j, 1)
			}
		} else {
			hasControl = true
		}
		y[i] = o.Y
		clusters[i] = o.Bucket
	}
	if !hasTreat {
		return model.EventStudyResult{}, &InsufficientCoverageError{Spec: "event_study", Cell: "treat=1"}
	}
	if !hasControl {
		return model.EventStudyResult{}, &InsufficientCoverageError{Spec: "event_study", Cell: "treat=0"}
	}

	fit, err := OLS(&Design{Spec: "event_study", Names: names, X: x, Y: y, Clusters: clusters}, opts)
	if err != nil {
		return model.EventStudyResult{}, err
	}

	res := model.EventStudyResult{Reference: reference}
	for _, r := range rels {
		c, _ := fit.Coefficient(names[col[r]])
		res.Points = append(res.Points, model.EventStudyPoint{
			RelTime:       r,
			Coefficient:   c.Estimate,
			StandardError: c.StandardError,
			PValue:        c.PValue,
			CILower:       c.CILower,
			CIUpper:       c.CIUpper,
		})
		if r < 0 {
			res.PreLeads++
			if c.StandardError > 0 && (c.CILower > 0 || c.CIUpper < 0) {
				res.Violations++
			}
		}
	}
	res.Verdict = model.VerdictPass
	if res.Violations > maxViolations {
		res.Verdict = model.VerdictFail
	}
	return res, nil
}
