// Package pipeline ties loading, classification, analysis, persistence and
// rendering into the steps the CLI runs.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ppiankov/ratchet/internal/analysis"
	"github.com/ppiankov/ratchet/internal/cache"
	"github.com/ppiankov/ratchet/internal/dataset"
	"github.com/ppiankov/ratchet/internal/llm"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/report"
	"github.com/ppiankov/ratchet/internal/store"
	"github.com/ppiankov/ratchet/internal/worker"
)

// Pipeline orchestrates a complete analysis
type Pipeline struct {
	config     model.Config
	engine     *analysis.Engine
	renderer   *report.Renderer
	classifier model.Classifier // built on first use unless injected
	store      *store.Store     // optional; runs are persisted when set
	logger     *slog.Logger
}

// NewPipeline creates a pipeline for cfg. Console output goes to renderer.
func NewPipeline(cfg model.Config, renderer *report.Renderer, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if renderer == nil {
		renderer = report.NewRenderer(nil)
	}
	engine, err := analysis.New(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("build engine: %w", err)
	}
	return &Pipeline{
		config:   cfg,
		engine:   engine,
		renderer: renderer,
		logger:   logger,
	}, nil
}

// WithClassifier replaces the configured LLM classifier
func (p *Pipeline) WithClassifier(c model.Classifier) *Pipeline {
	p.classifier = c
	return p
}

// WithStore makes Analyze persist every finished run
func (p *Pipeline) WithStore(s *store.Store) *Pipeline {
	p.store = s
	return p
}

func (p *Pipeline) Engine() *analysis.Engine {
	return p.engine
}

func (p *Pipeline) Renderer() *report.Renderer {
	return p.renderer
}

// LoadItems reads the item table with the configured column mapping
func (p *Pipeline) LoadItems(path string) ([]model.Item, error) {
	items, err := dataset.Load(path, p.config.Input)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	p.logger.Debug("items loaded", "path", path, "count", len(items))
	return items, nil
}

// ClassifyStats summarizes one classification pass
type ClassifyStats struct {
	Pending  int
	Labelled int
	Failed   int
	// CacheHits counts labels served without calling the model
	CacheHits int64
}

type cacheReporter interface {
	CacheStats() cache.Stats
}

func (p *Pipeline) cacheHits() int64 {
	if r, ok := p.classifier.(cacheReporter); ok {
		return r.CacheStats().Hits
	}
	return 0
}

// Classify labels items that carry text but no label. Failed items keep an
// empty label and are dropped later as missing outcomes.
func (p *Pipeline) Classify(ctx context.Context, items []model.Item, progress func(done, total int)) ([]model.Item, ClassifyStats, error) {
	if p.classifier == nil {
		c, err := llm.NewClassifier(p.config.LLM)
		if err != nil {
			return nil, ClassifyStats{}, fmt.Errorf("init classifier: %w", err)
		}
		p.classifier = c
	}

	hitsBefore := p.cacheHits()
	processor := worker.NewBatchProcessor(p.classifier, p.config.LLM.Concurrency, progress)
	results, err := processor.ClassifyItems(ctx, items)
	if err != nil {
		return nil, ClassifyStats{}, err
	}

	stats := ClassifyStats{Pending: len(results), CacheHits: p.cacheHits() - hitsBefore}
	for _, r := range results {
		if r.Error != nil {
			stats.Failed++
			p.logger.Warn("classification failed", "item_id", r.ItemID, "error", r.Error)
			continue
		}
		stats.Labelled++
	}
	return worker.Apply(items, results), stats, nil
}

// NeedsClassification reports whether any item has text but no label while
// the outcome is derived from labels.
func (p *Pipeline) NeedsClassification(items []model.Item) bool {
	if p.config.Outcome.Kind == "continuous" {
		return false
	}
	for _, it := range items {
		if it.Label == "" && it.Text != "" {
			return true
		}
	}
	return false
}

// AnalyzeOptions controls the optional steps of Analyze
type AnalyzeOptions struct {
	Classify         bool
	ClassifyProgress func(done, total int)
}

// Analyze loads path, optionally classifies unlabelled items, runs every
// comparison and persists the run when a store is attached.
func (p *Pipeline) Analyze(ctx context.Context, path string, opts AnalyzeOptions) (*model.Run, error) {
	// Step 1: Load items
	items, err := p.LoadItems(path)
	if err != nil {
		return nil, err
	}

	// Step 2: Classify unlabelled items (optional)
	if opts.Classify && p.NeedsClassification(items) {
		labelled, stats, err := p.Classify(ctx, items, opts.ClassifyProgress)
		if err != nil {
			return nil, err
		}
		items = labelled
		p.logger.Info("classification finished",
			"pending", stats.Pending,
			"labelled", stats.Labelled,
			"failed", stats.Failed)
	}

	// Step 3: Run comparisons
	run, err := p.engine.Run(ctx, items)
	if err != nil {
		return nil, fmt.Errorf("analysis: %w", err)
	}

	// Step 4: Persist (optional)
	if p.store != nil {
		if err := p.Save(ctx, run); err != nil {
			return nil, err
		}
	}
	return run, nil
}

// Save stores run in the attached run store
func (p *Pipeline) Save(ctx context.Context, run *model.Run) error {
	if p.store == nil {
		return fmt.Errorf("no run store configured")
	}
	if err := p.store.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	p.logger.Debug("run saved", "run_id", run.ID, "db", p.store.Path())
	return nil
}

// Outputs names the report files to write; empty paths are skipped
type Outputs struct {
	JSON     string
	XLSX     string
	Markdown string
}

// RenderReport writes the requested report files and prints the summary
func (p *Pipeline) RenderReport(run *model.Run, out Outputs, verbose bool) error {
	alpha := p.config.Significance.Alpha

	if out.JSON != "" {
		if err := p.renderer.RenderJSON(run, out.JSON); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(p.renderer.Out, "✓ Wrote JSON: %s\n", out.JSON)
		}
	}

	if out.XLSX != "" {
		if err := p.renderer.RenderXLSX(run, out.XLSX); err != nil {
			return fmt.Errorf("render workbook: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(p.renderer.Out, "✓ Wrote workbook: %s\n", out.XLSX)
		}
	}

	if out.Markdown != "" {
		if err := p.renderer.RenderMarkdown(run, alpha, out.Markdown); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			_, _ = fmt.Fprintf(p.renderer.Out, "✓ Wrote Markdown: %s\n", out.Markdown)
		}
	}

	p.renderer.RenderSummary(run, alpha)
	return nil
}
