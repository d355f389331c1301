// Package bootstrap estimates confidence intervals for the three-period
// recovery ratio |delta23| / |delta12| by resampling item pools.
//
// Iteration i draws from its own generator seeded with (Seed, i), so the
// distribution is identical whatever the number of workers.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/worker"
)

var ErrEmptyPool = errors.New("empty item pool")

// Bootstrapper holds resampling settings. The zero value is not usable; see New.
type Bootstrapper struct {
	Iterations int
	Seed       uint64
	Workers    int
	Epsilon    float64
	Method     string
	Level      float64
	Metric     Metric
	// Progress, when set, is called once per finished iteration from worker goroutines
	Progress func(delta int)
}

// New applies the configured settings, falling back to 1000 iterations,
// seed 42, epsilon 1e-6 and 95% intervals for unset fields.
func New(cfg model.BootstrapConfig) *Bootstrapper {
	b := &Bootstrapper{
		Iterations: cfg.Iterations,
		Seed:       cfg.Seed,
		Workers:    cfg.Workers,
		Epsilon:    cfg.Epsilon,
		Method:     cfg.Method,
		Level:      cfg.ConfidenceLevel,
		Metric:     Mean,
	}
	if b.Iterations <= 0 {
		b.Iterations = 1000
	}
	if b.Epsilon <= 0 {
		b.Epsilon = 1e-6
	}
	if b.Method == "" {
		b.Method = MethodLinear
	}
	if b.Level <= 0 || b.Level >= 1 {
		b.Level = 0.95
	}
	return b
}

// Ratio bootstraps the single-group ratio over three period pools
func (b *Bootstrapper) Ratio(ctx context.Context, p1, p2, p3 []float64) (model.BootstrapRatioResult, error) {
	pools := [][]float64{p1, p2, p3}
	if err := checkPools(pools); err != nil {
		return model.BootstrapRatioResult{}, err
	}
	observed := ComputeRatio(p1, p2, p3, b.Metric, b.Epsilon)
	return b.run(ctx, pools, observed.Ratio, func(s [][]float64) float64 {
		return ComputeRatio(s[0], s[1], s[2], b.Metric, b.Epsilon).Ratio
	})
}

// DiDRatio bootstraps the control-netted ratio over six pools
func (b *Bootstrapper) DiDRatio(ctx context.Context, treat, control [3][]float64) (model.BootstrapRatioResult, error) {
	pools := [][]float64{treat[0], treat[1], treat[2], control[0], control[1], control[2]}
	if err := checkPools(pools); err != nil {
		return model.BootstrapRatioResult{}, err
	}
	observed := ComputeDiDRatio(treat[0], treat[1], treat[2], control[0], control[1], control[2], b.Metric, b.Epsilon)
	return b.run(ctx, pools, observed.Ratio, func(s [][]float64) float64 {
		return ComputeDiDRatio(s[0], s[1], s[2], s[3], s[4], s[5], b.Metric, b.Epsilon).Ratio
	})
}

func checkPools(pools [][]float64) error {
	for i, p := range pools {
		if len(p) == 0 {
			return fmt.Errorf("%w: pool %d", ErrEmptyPool, i)
		}
	}
	return nil
}

// Distribution returns the raw bootstrap ratios in iteration order
func (b *Bootstrapper) Distribution(ctx context.Context, pools [][]float64, statistic func([][]float64) float64) ([]float64, error) {
	if err := checkPools(pools); err != nil {
		return nil, err
	}
	ratios := make([]float64, b.Iterations)

	chunks := b.Workers * 4
	if chunks <= 0 {
		chunks = 16
	}
	if chunks > b.Iterations {
		chunks = b.Iterations
	}
	size := (b.Iterations + chunks - 1) / chunks

	type span struct{ lo, hi int }
	var spans []span
	for lo := 0; lo < b.Iterations; lo += size {
		spans = append(spans, span{lo, min(lo+size, b.Iterations)})
	}

	err := worker.All(ctx, worker.NewPool(b.Workers), len(spans), func(ctx context.Context, k int) error {
		return b.resample(ctx, spans[k].lo, spans[k].hi, pools, statistic, ratios)
	})
	if err != nil {
		return nil, err
	}
	return ratios, nil
}

func (b *Bootstrapper) run(ctx context.Context, pools [][]float64, observed float64, statistic func([][]float64) float64) (model.BootstrapRatioResult, error) {
	ratios, err := b.Distribution(ctx, pools, statistic)
	if err != nil {
		return model.BootstrapRatioResult{}, err
	}
	return b.Summarize(ratios, observed)
}

// Summarize turns a ratio distribution into the interval and its companions
func (b *Bootstrapper) Summarize(ratios []float64, observed float64) (model.BootstrapRatioResult, error) {
	sorted := append([]float64(nil), ratios...)
	sort.Float64s(sorted)

	alpha := 1 - b.Level
	lo, err := Percentile(sorted, alpha/2, b.Method)
	if err != nil {
		return model.BootstrapRatioResult{}, err
	}
	hi, err := Percentile(sorted, 1-alpha/2, b.Method)
	if err != nil {
		return model.BootstrapRatioResult{}, err
	}

	var sum float64
	var finite, inf, geOne int
	for _, r := range sorted {
		if math.IsInf(r, 1) {
			inf++
		} else {
			sum += r
			finite++
		}
		if r >= 1 {
			geOne++
		}
	}
	mean := math.NaN()
	if finite > 0 {
		mean = sum / float64(finite)
	}

	return model.BootstrapRatioResult{
		Observed:         observed,
		CILower:          lo,
		CIUpper:          hi,
		MeanRatio:        mean,
		InfiniteCount:    inf,
		Iterations:       len(sorted),
		ConfidenceLevel:  b.Level,
		ProbRatioGEOne:   float64(geOne) / float64(len(sorted)),
		RatchetSupported: hi < 1,
		Seed:             b.Seed,
		Method:           b.Method,
	}, nil
}

// resample runs iterations [lo, hi) and writes each ratio at its own index
func (b *Bootstrapper) resample(ctx context.Context, lo, hi int, pools [][]float64, statistic func([][]float64) float64, out []float64) error {
	samples := make([][]float64, len(pools))
	for k, p := range pools {
		samples[k] = make([]float64, len(p))
	}
	for i := lo; i < hi; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng := rand.New(rand.NewPCG(b.Seed, uint64(i)))
		for k, p := range pools {
			s := samples[k]
			for m := range s {
				s[m] = p[rng.IntN(len(p))]
			}
		}
		out[i] = statistic(samples)
		if b.Progress != nil {
			b.Progress(1)
		}
	}
	return nil
}
