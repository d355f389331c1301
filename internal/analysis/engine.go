// Package analysis runs every comparison described by one model.Config:
// the treatment group against each control, plus the single-group fits.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/ratchet/internal/bootstrap"
	"github.com/ppiankov/ratchet/internal/bucket"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/panel"
	"github.com/ppiankov/ratchet/internal/regress"
	"github.com/ppiankov/ratchet/internal/trends"
)

var ErrTooFewPeriods = errors.New("ratchet ratio needs three periods")

// Engine holds everything derived from the configuration once
type Engine struct {
	cfg      model.Config
	assigner *bucket.Assigner
	outcome  panel.OutcomeFunc
	opts     regress.Options
	trends   *trends.Validator
	boot     *bootstrap.Bootstrapper
	logger   *slog.Logger
}

// New validates the parts of cfg the engine depends on
func New(cfg model.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	assigner, err := bucket.NewAssigner(cfg)
	if err != nil {
		return nil, fmt.Errorf("periods: %w", err)
	}
	outcome, err := panel.NewOutcome(cfg.Outcome, cfg.Scale)
	if err != nil {
		return nil, err
	}
	cov, err := regress.ParseCovType(cfg.Covariance)
	if err != nil {
		return nil, err
	}
	opts := regress.Options{Cov: cov, MinClusters: cfg.MinClusters, Level: 1 - cfg.Significance.Alpha}
	if opts.MinClusters <= 0 {
		opts.MinClusters = regress.DefaultOptions().MinClusters
	}
	if !(opts.Level > 0 && opts.Level < 1) {
		opts.Level = regress.DefaultOptions().Level
	}

	v := trends.New(cfg.Significance.ParallelTrends, opts)
	if cfg.MinTrendObs > 0 {
		v.MinObs = cfg.MinTrendObs
	}

	return &Engine{
		cfg:      cfg,
		assigner: assigner,
		outcome:  outcome,
		opts:     opts,
		trends:   v,
		boot:     bootstrap.New(cfg.Bootstrap),
		logger:   logger,
	}, nil
}

// Config returns the configuration the engine was built with
func (e *Engine) Config() model.Config {
	return e.cfg
}

// SetProgress installs a callback receiving finished bootstrap iterations
func (e *Engine) SetProgress(fn func(delta int)) {
	e.boot.Progress = fn
}

// BootstrapIterations is the number of iterations one bootstrap run performs
func (e *Engine) BootstrapIterations() int {
	return e.boot.Iterations
}

// Dataset is the aggregated input shared read-only by all comparisons
type Dataset struct {
	Panel        *panel.Panel
	Drops        model.DropReport
	Intervention string
	// Pools holds per-item outcomes by group and period label
	Pools map[string]map[string][]float64
}

func (e *Engine) groups() []string {
	return append([]string{e.cfg.Treatment}, e.cfg.Controls...)
}

// Prepare builds the panel and the period pools. Items that cannot be
// placed are dropped, logged with their id and counted.
func (e *Engine) Prepare(items []model.Item) (*Dataset, error) {
	buckets, err := e.assigner.Buckets(e.cfg.Range.Start, e.cfg.Range.End)
	if err != nil {
		return nil, err
	}
	iv, err := e.assigner.InterventionBucket(e.cfg.Intervention)
	if err != nil {
		return nil, err
	}

	groupOf := func(it model.Item) string { return strings.TrimSpace(it.Group) }
	p, drops, err := panel.Build(items, groupOf, e.assigner.Bucket, e.outcome, panel.Options{
		Groups:        e.groups(),
		Buckets:       buckets,
		MinConfidence: e.cfg.Outcome.MinConfidence,
		OnDrop: func(it model.Item, reason string, err error) {
			switch reason {
			case panel.ReasonPeriodOnly, panel.ReasonLowConfidence:
				e.logger.Debug("item dropped", "item_id", it.ID, "reason", reason, "error", err)
			default:
				e.logger.Warn("item dropped", "item_id", it.ID, "reason", reason, "error", err)
			}
		},
	})
	if err != nil {
		return nil, err
	}

	pools := make(map[string]map[string][]float64)
	for _, g := range e.groups() {
		pools[g] = make(map[string][]float64)
	}
	for _, it := range items {
		byPeriod, ok := pools[groupOf(it)]
		if !ok || !panel.Confident(it, e.cfg.Outcome.MinConfidence) {
			continue
		}
		y, err := e.outcome(it)
		if err != nil {
			continue
		}
		label, err := e.assigner.Period(it)
		if err != nil {
			continue
		}
		byPeriod[label] = append(byPeriod[label], y)
	}

	if drops.Dropped() > 0 {
		e.logger.Info("aggregation finished", "items", drops.Total, "kept", drops.Kept, "dropped", drops.Dropped())
	}
	return &Dataset{Panel: p, Drops: drops, Intervention: iv, Pools: pools}, nil
}

// Run prepares items and runs every comparison. Controls run concurrently;
// a failing step is recorded on its comparison and never stops the others.
// Only cancellation aborts a run.
func (e *Engine) Run(ctx context.Context, items []model.Item) (*model.Run, error) {
	start := time.Now()
	ds, err := e.Prepare(items)
	if err != nil {
		return nil, err
	}

	run := &model.Run{
		ID:          uuid.NewString(),
		CreatedAt:   start.UTC(),
		ConfigHash:  ConfigHash(e.cfg),
		Treatment:   e.cfg.Treatment,
		Outcome:     describeOutcome(e.cfg.Outcome),
		Scale:       e.cfg.Scale.Describe(),
		Drops:       ds.Drops,
		Comparisons: make([]model.ComparisonResult, len(e.cfg.Controls)),
	}
	if n := ds.Drops.Dropped(); n > 0 {
		run.Warnings = append(run.Warnings, fmt.Sprintf("%d of %d items dropped during aggregation", n, ds.Drops.Total))
	}

	var (
		mu      sync.Mutex
		its     *model.ITSResult
		ratchet *model.BootstrapRatioResult
		runErrs []model.StepError
	)
	record := func(se model.StepError) {
		mu.Lock()
		runErrs = append(runErrs, se)
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, control := range e.cfg.Controls {
		g.Go(func() error {
			run.Comparisons[i] = e.Compare(gctx, ds, control)
			return gctx.Err()
		})
	}
	g.Go(func() error {
		res, err := e.ITS(ds)
		if err != nil {
			record(e.stepError("its", "", err))
			return nil
		}
		its = &res
		return nil
	})
	g.Go(func() error {
		res, err := e.Bootstrap(gctx, ds, "")
		if err != nil {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			record(e.stepError("ratchet", "", err))
			return nil
		}
		ratchet = &res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	run.ITS = its
	run.Ratchet = ratchet
	run.Errors = runErrs
	run.Duration = time.Since(start)

	failed := 0
	for _, c := range run.Comparisons {
		if len(c.Errors) > 0 {
			failed++
		}
	}
	e.logger.Info("analysis finished",
		"run_id", run.ID,
		"comparisons", len(run.Comparisons),
		"with_errors", failed,
		"duration", run.Duration)
	return run, nil
}

func (e *Engine) stepError(step, control string, err error) model.StepError {
	e.logger.Error("comparison step failed",
		"treatment", e.cfg.Treatment,
		"control", control,
		"spec", step,
		"error", err)
	return model.StepError{Step: step, Control: control, Error: err.Error()}
}

// ConfigHash identifies the analysis settings of a run
func ConfigHash(cfg model.Config) string {
	cfg.LLM = model.LLMConfig{}
	cfg.Logging = model.LoggingConfig{}
	cfg.Storage = model.StorageConfig{}
	data, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

func describeOutcome(o model.OutcomeConfig) string {
	if o.Kind == "share" {
		return "share:" + strings.ToUpper(o.ShareLabel)
	}
	if o.Kind == "" {
		return "scale"
	}
	return o.Kind
}
