package regress

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"
)

// Obs is one panel observation ready for regression
type Obs struct {
	Group     string
	Bucket    string
	Treat     float64
	Post      float64
	Time      float64
	TimeAfter float64
	Y         float64
}

// Var returns a base variable by name
func (o Obs) Var(name string) (float64, bool) {
	switch name {
	case "treat":
		return o.Treat, true
	case "post":
		return o.Post, true
	case "time":
		return o.Time, true
	case "time_after":
		return o.TimeAfter, true
	}
	return 0, false
}

// Spec is a linear model y ~ Intercept + Terms. A term is a product of base
// variables joined by ":" (e.g. "treat:time:post").
type Spec struct {
	Name   string
	Terms  []string
	Target string
}

const Intercept = "Intercept"

var (
	// LevelSpec: immediate mean shift at the intervention
	LevelSpec = Spec{
		Name:   "level",
		Terms:  []string{"treat", "post", "treat:post"},
		Target: "treat:post",
	}
	// SlopeSpec: change in the per-bucket trend after the intervention
	SlopeSpec = Spec{
		Name:   "slope",
		Terms:  []string{"treat", "time", "post", "treat:time", "treat:post", "treat:time:post"},
		Target: "treat:time:post",
	}
	// PreTrendSpec: differential trend on pre-intervention rows only
	PreTrendSpec = Spec{
		Name:   "pretrend",
		Terms:  []string{"treat", "time", "treat:time"},
		Target: "treat:time",
	}
	// ITSSpec: single-group interrupted time series
	ITSSpec = Spec{
		Name:   "its",
		Terms:  []string{"time", "post", "time_after"},
		Target: "post",
	}
)

// DiDSpec resolves the name of a DiD specification ("level" or "slope")
func DiDSpec(name string) (Spec, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case LevelSpec.Name, "":
		return LevelSpec, nil
	case SlopeSpec.Name:
		return SlopeSpec, nil
	}
	return Spec{}, fmt.Errorf("unknown DiD spec %q (want level or slope)", name)
}

// Names returns the column names including the intercept
func (s Spec) Names() []string {
	return append([]string{Intercept}, s.Terms...)
}

func (s Spec) uses(v string) bool {
	for _, t := range s.Terms {
		for _, f := range strings.Split(t, ":") {
			if f == v {
				return true
			}
		}
	}
	return false
}

// Design is a dense regression problem with optional cluster keys
type Design struct {
	Spec     string
	Names    []string
	X        *mat.Dense
	Y        []float64
	Clusters []string
}

// Design evaluates the spec's terms on obs, clustering by bucket
func (s Spec) Design(obs []Obs) (*Design, error) {
	names := s.Names()
	k := len(names)
	x := mat.NewDense(len(obs), k, nil)
	y := make([]float64, len(obs))
	clusters := make([]string, len(obs))
	for i, o := range obs {
		x.Set(i, 0, 1)
		for j, term := range s.Terms {
			v := 1.0
			for _, f := range strings.Split(term, ":") {
				fv, ok := o.Var(f)
				if !ok {
					return nil, fmt.Errorf("%w %q in %s", ErrUnknownTerm, f, s.Name)
				}
				v *= fv
			}
			x.Set(i, j+1, v)
		}
		y[i] = o.Y
		clusters[i] = o.Bucket
	}
	return &Design{Spec: s.Name, Names: names, X: x, Y: y, Clusters: clusters}, nil
}

// CheckCoverage requires every treat x post cell the spec depends on to be populated
func (s Spec) CheckCoverage(obs []Obs) error {
	useTreat, usePost := s.uses("treat"), s.uses("post")
	if !useTreat && !usePost {
		return nil
	}
	var counts [2][2]int
	for _, o := range obs {
		t, p := 0, 0
		if useTreat && o.Treat != 0 {
			t = 1
		}
		if usePost && o.Post != 0 {
			p = 1
		}
		counts[t][p]++
	}
	for t := 0; t <= 1; t++ {
		if !useTreat && t == 1 {
			continue
		}
		for p := 0; p <= 1; p++ {
			if !usePost && p == 1 {
				continue
			}
			if counts[t][p] > 0 {
				continue
			}
			var cell []string
			if useTreat {
				cell = append(cell, fmt.Sprintf("treat=%d", t))
			}
			if usePost {
				cell = append(cell, fmt.Sprintf("post=%d", p))
			}
			return &InsufficientCoverageError{Spec: s.Name, Cell: strings.Join(cell, ",")}
		}
	}
	return nil
}
