package regress

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/ppiankov/ratchet/internal/model"
)

// CovType selects the coefficient covariance estimator
type CovType string

const (
	NonRobust CovType = "nonrobust"
	HC1       CovType = "hc1"
	HC3       CovType = "hc3"
	Cluster   CovType = "cluster"
	Auto      CovType = "auto"
)

// maxCondition bounds cond(X); anything above is treated as collinear
const maxCondition = 1e10

// ParseCovType accepts the config spelling of a covariance mode
func ParseCovType(s string) (CovType, error) {
	switch c := CovType(strings.ToLower(strings.TrimSpace(s))); c {
	case NonRobust, HC1, HC3, Cluster, Auto:
		return c, nil
	case "":
		return Auto, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCovariance, s)
}

// Options controls inference for a fit
type Options struct {
	Cov         CovType
	MinClusters int     // auto switches to cluster-robust at or above this many clusters
	Level       float64 // confidence level for intervals
}

// DefaultOptions is auto covariance with 15 clusters and 95% intervals
func DefaultOptions() Options {
	return Options{Cov: Auto, MinClusters: 15, Level: 0.95}
}

// Fit is a fitted OLS model with its coefficient covariance
type Fit struct {
	Spec         string
	Names        []string
	Params       []float64
	SE           []float64
	Cov          *mat.SymDense
	Resid        []float64
	RSquared     float64
	AdjRSquared  float64
	NObs         int
	DFResid      int
	NClusters    int
	CovType      CovType
	Distribution string
	Level        float64
	Warnings     []string
}

// OLS fits y = X b by least squares and estimates Cov(b) as requested
func OLS(d *Design, opts Options) (*Fit, error) {
	n, k := d.X.Dims()
	if n <= k {
		return nil, fmt.Errorf("%s: %w (n=%d, k=%d)", d.Spec, ErrTooFewObservations, n, k)
	}
	if opts.Level <= 0 || opts.Level >= 1 {
		opts.Level = 0.95
	}

	var svd mat.SVD
	if !svd.Factorize(d.X, mat.SVDNone) {
		return nil, &SingularDesignError{Spec: d.Spec, Condition: math.Inf(1)}
	}
	sv := svd.Values(nil)
	if cond := sv[0] / sv[len(sv)-1]; sv[len(sv)-1] == 0 || cond > maxCondition {
		return nil, &SingularDesignError{Spec: d.Spec, Condition: cond}
	}

	var xtx mat.SymDense
	xtx.SymOuterK(1, d.X.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, &SingularDesignError{Spec: d.Spec, Condition: math.Inf(1)}
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return nil, &SingularDesignError{Spec: d.Spec, Condition: math.Inf(1)}
	}

	y := mat.NewVecDense(n, d.Y)
	var xty mat.VecDense
	xty.MulVec(d.X.T(), y)
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, &SingularDesignError{Spec: d.Spec, Condition: math.Inf(1)}
	}

	var fitted mat.VecDense
	fitted.MulVec(d.X, &beta)
	resid := make([]float64, n)
	var ybar float64
	for i := 0; i < n; i++ {
		resid[i] = d.Y[i] - fitted.AtVec(i)
		ybar += d.Y[i]
	}
	ybar /= float64(n)
	var rss, tss float64
	for i := 0; i < n; i++ {
		rss += resid[i] * resid[i]
		dy := d.Y[i] - ybar
		tss += dy * dy
	}

	f := &Fit{
		Spec:         d.Spec,
		Names:        d.Names,
		Params:       mat.Col(nil, 0, &beta),
		Resid:        resid,
		NObs:         n,
		DFResid:      n - k,
		Level:        opts.Level,
		Distribution: "normal",
	}
	if tss > 0 {
		f.RSquared = 1 - rss/tss
		f.AdjRSquared = 1 - (1-f.RSquared)*float64(n-1)/float64(n-k)
	}

	cov := opts.Cov
	if cov == "" {
		cov = Auto
	}
	if cov == Auto {
		g := countClusters(d.Clusters)
		if g >= opts.MinClusters {
			cov = Cluster
		} else {
			cov = HC1
			f.Warnings = append(f.Warnings, fmt.Sprintf(
				"only %d time clusters (minimum %d): using HC1 robust errors instead of cluster-robust", g, opts.MinClusters))
		}
	}
	f.CovType = cov

	var v *mat.SymDense
	var err error
	switch cov {
	case NonRobust:
		s2 := rss / float64(n-k)
		v = mat.NewSymDense(k, nil)
		v.ScaleSym(s2, &inv)
		f.Distribution = "t"
	case HC1:
		v = sandwich(&inv, hcMeat(d.X, resid, nil))
		v.ScaleSym(float64(n)/float64(n-k), v)
	case HC3:
		var lev []float64
		lev, err = leverage(d.X, &inv)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", d.Spec, err)
		}
		v = sandwich(&inv, hcMeat(d.X, resid, lev))
	case Cluster:
		g := countClusters(d.Clusters)
		if g < 2 {
			return nil, fmt.Errorf("%s: %w: cluster-robust errors need at least 2 clusters, have %d", d.Spec, ErrDegenerateFit, g)
		}
		v = sandwich(&inv, clusterMeat(d.X, resid, d.Clusters))
		adj := float64(g) / float64(g-1) * float64(n-1) / float64(n-k)
		v.ScaleSym(adj, v)
		f.NClusters = g
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCovariance, cov)
	}

	f.Cov = v
	f.SE = make([]float64, k)
	for j := 0; j < k; j++ {
		f.SE[j] = math.Sqrt(math.Max(v.At(j, j), 0))
	}
	return f, nil
}

// hcMeat is sum_i w_i e_i^2 x_i x_i', with w_i = 1/(1-h_ii)^2 when leverage is given
func hcMeat(x *mat.Dense, resid, lev []float64) *mat.SymDense {
	_, k := x.Dims()
	meat := mat.NewSymDense(k, nil)
	for i, e := range resid {
		w := e * e
		if lev != nil {
			w /= (1 - lev[i]) * (1 - lev[i])
		}
		if w == 0 {
			continue
		}
		meat.SymRankOne(meat, w, x.RowView(i))
	}
	return meat
}

// clusterMeat is sum_g u_g u_g' with u_g = sum_{i in g} x_i e_i
func clusterMeat(x *mat.Dense, resid []float64, clusters []string) *mat.SymDense {
	_, k := x.Dims()
	scores := make(map[string]*mat.VecDense)
	var order []string
	for i, e := range resid {
		u, ok := scores[clusters[i]]
		if !ok {
			u = mat.NewVecDense(k, nil)
			scores[clusters[i]] = u
			order = append(order, clusters[i])
		}
		u.AddScaledVec(u, e, x.RowView(i))
	}
	meat := mat.NewSymDense(k, nil)
	for _, key := range order {
		meat.SymRankOne(meat, 1, scores[key])
	}
	return meat
}

// sandwich returns bread * meat * bread
func sandwich(bread, meat *mat.SymDense) *mat.SymDense {
	k := bread.SymmetricDim()
	var tmp, full mat.Dense
	tmp.Mul(bread, meat)
	full.Mul(&tmp, bread)
	out := mat.NewSymDense(k, nil)
	for i := 0; i < k; i++ {
		for j := i; j < k; j++ {
			out.SetSym(i, j, (full.At(i, j)+full.At(j, i))/2)
		}
	}
	return out
}

func leverage(x *mat.Dense, inv *mat.SymDense) ([]float64, error) {
	n, _ := x.Dims()
	lev := make([]float64, n)
	for i := 0; i < n; i++ {
		row := x.RowView(i)
		h := mat.Inner(row, inv, row)
		if h >= 1-1e-10 {
			return nil, fmt.Errorf("%w: observation %d has leverage 1, HC3 undefined", ErrDegenerateFit, i)
		}
		lev[i] = h
	}
	return lev, nil
}

func countClusters(keys []string) int {
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		seen[k] = struct{}{}
	}
	return len(seen)
}

// Index returns the column of a term, or -1
func (f *Fit) Index(term string) int {
	for i, n := range f.Names {
		if n == term {
			return i
		}
	}
	return -1
}

func (f *Fit) critical() float64 {
	q := 1 - (1-f.Level)/2
	if f.Distribution == "t" {
		return distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(f.DFResid)}.Quantile(q)
	}
	return distuv.UnitNormal.Quantile(q)
}

// PValue is the two-sided p-value of a test statistic under the fit's reference distribution
func (f *Fit) PValue(stat float64) float64 {
	if math.IsNaN(stat) {
		return math.NaN()
	}
	a := math.Abs(stat)
	if f.Distribution == "t" {
		return 2 * distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(f.DFResid)}.Survival(a)
	}
	return 2 * distuv.UnitNormal.Survival(a)
}

// Coefficient returns one row of the coefficient table
func (f *Fit) Coefficient(term string) (model.Coefficient, error) {
	j := f.Index(term)
	if j < 0 {
		return model.Coefficient{}, fmt.Errorf("%w %q in %s", ErrUnknownTerm, term, f.Spec)
	}
	return f.linear(term, f.Params[j], f.SE[j]), nil
}

// Table returns every coefficient in column order
func (f *Fit) Table() []model.Coefficient {
	out := make([]model.Coefficient, len(f.Names))
	for j, n := range f.Names {
		out[j] = f.linear(n, f.Params[j], f.SE[j])
	}
	return out
}

// Combine estimates sum_j w_j b_j with variance w' V w
func (f *Fit) Combine(label string, weights map[string]float64) (model.Coefficient, error) {
	k := len(f.Names)
	w := mat.NewVecDense(k, nil)
	for term, wt := range weights {
		j := f.Index(term)
		if j < 0 {
			return model.Coefficient{}, fmt.Errorf("%w %q in %s", ErrUnknownTerm, term, f.Spec)
		}
		w.SetVec(j, wt)
	}
	est := mat.Dot(w, mat.NewVecDense(k, f.Params))
	variance := mat.Inner(w, f.Cov, w)
	return f.linear(label, est, math.Sqrt(math.Max(variance, 0))), nil
}

func (f *Fit) linear(term string, est, se float64) model.Coefficient {
	c := model.Coefficient{Term: term, Estimate: est, StandardError: se}
	if se > 0 {
		c.Statistic = est / se
		c.PValue = f.PValue(c.Statistic)
	} else {
		c.Statistic = math.NaN()
		c.PValue = math.NaN()
	}
	crit := f.critical()
	c.CILower = est - crit*se
	c.CIUpper = est + crit*se
	return c
}

// DiD projects the fit onto a target term. A zero or non-finite standard
// error is an error so that returned results are always finite.
func (f *Fit) DiD(term string) (model.DiDResult, error) {
	c, err := f.Coefficient(term)
	if err != nil {
		return model.DiDResult{}, err
	}
	if !(c.StandardError > 0) || math.IsInf(c.StandardError, 0) || math.IsNaN(c.Estimate) {
		return model.DiDResult{}, fmt.Errorf("%s: %w: standard error of %s is %v", f.Spec, ErrDegenerateFit, term, c.StandardError)
	}
	return model.DiDResult{
		Spec:          f.Spec,
		Term:          term,
		Coefficient:   c.Estimate,
		StandardError: c.StandardError,
		Statistic:     c.Statistic,
		PValue:        c.PValue,
		CILower:       c.CILower,
		CIUpper:       c.CIUpper,
		RSquared:      f.RSquared,
		NObs:          f.NObs,
		DFResid:       f.DFResid,
		Covariance:    string(f.CovType),
		NClusters:     f.NClusters,
		Distribution:  f.Distribution,
		Coefficients:  f.Table(),
		Warnings:      append([]string(nil), f.Warnings...),
	}, nil
}
