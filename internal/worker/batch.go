package worker

import (
	"context"
	"fmt"

	"github.com/ppiankov/ratchet/internal/model"
)

// ClassifyResult is the outcome for one item
type ClassifyResult struct {
	Index          int
	ItemID         string
	Classification *model.Classification
	Error          error
}

// classifyOne runs the classifier and checks the label against the closed set
func classifyOne(ctx context.Context, c model.Classifier, it model.Item) (*model.Classification, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := c.Classify(ctx, it.Text)
	if err != nil {
		return nil, fmt.Errorf("item %s: %w", it.ID, err)
	}
	if _, err := model.ParseFrame(string(out.Label)); err != nil {
		return nil, fmt.Errorf("item %s: %w", it.ID, err)
	}
	return out, nil
}

// BatchProcessor classifies many items concurrently
type BatchProcessor struct {
	classifier  model.Classifier
	concurrency int
	progress    func(done, total int)
}

// NewBatchProcessor creates a processor; progress may be nil
func NewBatchProcessor(classifier model.Classifier, concurrency int, progress func(done, total int)) *BatchProcessor {
	return &BatchProcessor{
		classifier:  classifier,
		concurrency: concurrency,
		progress:    progress,
	}
}

// ClassifyItems labels every item that has text and no label yet.
// Results follow input order. Items already labelled or without text have
// no entry. On cancellation the returned slice is complete and items that
// never ran carry the context error.
func (b *BatchProcessor) ClassifyItems(ctx context.Context, items []model.Item) ([]*ClassifyResult, error) {
	var pending []int
	for i, it := range items {
		if it.Label == "" && it.Text != "" {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return []*ClassifyResult{}, nil
	}

	pool := NewPool(b.concurrency).OnProgress(b.progress)
	outcomes, err := Map(ctx, pool, len(pending), func(ctx context.Context, k int) (*model.Classification, error) {
		return classifyOne(ctx, b.classifier, items[pending[k]])
	})

	out := make([]*ClassifyResult, len(outcomes))
	for k, o := range outcomes {
		idx := pending[k]
		out[k] = &ClassifyResult{Index: idx, ItemID: items[idx].ID, Classification: o.Value, Error: o.Err}
	}
	return out, err
}

// Apply writes successful classifications back onto a copy of items
func Apply(items []model.Item, results []*ClassifyResult) []model.Item {
	out := append([]model.Item(nil), items...)
	for _, r := range results {
		if r.Error == nil && r.Classification != nil {
			out[r.Index].Label = r.Classification.Label
			out[r.Index].Confidence = r.Classification.Confidence
			out[r.Index].HasConfidence = true
		}
	}
	return out
}
