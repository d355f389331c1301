package worker

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

// mockClassifier labels texts containing "talks" as DIPLOMACY and "missile" as THREAT
type mockClassifier struct {
	calls int32
	label model.Frame
	err   error
}

func (m *mockClassifier) Classify(ctx context.Context, text string) (*model.Classification, error) {
	atomic.AddInt32(&m.calls, 1)
	time.Sleep(time.Millisecond)
	if m.err != nil {
		return nil, m.err
	}
	if m.label != "" {
		return &model.Classification{Label: m.label}, nil
	}
	switch {
	case strings.Contains(text, "talks"):
		return &model.Classification{Label: model.FrameDiplomacy, Confidence: 0.9}, nil
	case strings.Contains(text, "missile"):
		return &model.Classification{Label: model.FrameThreat, Confidence: 0.8}, nil
	}
	return &model.Classification{Label: model.FrameNeutral, Confidence: 0.5}, nil
}

func TestBatchProcessor_ClassifyItems(t *testing.T) {
	items := []model.Item{
		{ID: "a", Text: "peace talks in Singapore"},
		{ID: "b", Text: "missile launch over Japan"},
		{ID: "c", Text: "already labelled", Label: model.FrameEconomic},
		{ID: "d", Text: ""},
		{ID: "e", Text: "weather report"},
	}
	clf := &mockClassifier{}

	var lastDone int
	processor := NewBatchProcessor(clf, 2, func(done, total int) {
		lastDone = done
		if total != 3 {
			t.Errorf("expected total 3, got %d", total)
		}
	})

	results, err := processor.ClassifyItems(context.Background(), items)
	if err != nil {
		t.Fatalf("ClassifyItems failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if lastDone != 3 {
		t.Errorf("expected progress to reach 3, got %d", lastDone)
	}
	if atomic.LoadInt32(&clf.calls) != 3 {
		t.Errorf("expected 3 classifier calls, got %d", clf.calls)
	}

	wantOrder := []string{"a", "b", "e"}
	for i, r := range results {
		if r.ItemID != wantOrder[i] {
			t.Errorf("result %d: expected item %s, got %s", i, wantOrder[i], r.ItemID)
		}
	}

	labelled := Apply(items, results)
	if labelled[0].Label != model.FrameDiplomacy || labelled[1].Label != model.FrameThreat {
		t.Errorf("unexpected labels: %s, %s", labelled[0].Label, labelled[1].Label)
	}
	if labelled[2].Label != model.FrameEconomic {
		t.Errorf("existing label overwritten: %s", labelled[2].Label)
	}
	if !labelled[0].HasConfidence || labelled[0].Confidence != 0.9 {
		t.Errorf("expected confidence 0.9 on a, got %v (%v)", labelled[0].Confidence, labelled[0].HasConfidence)
	}
	if labelled[2].HasConfidence {
		t.Error("unclassified item must not gain a confidence")
	}
	if items[0].Label != "" {
		t.Error("Apply must not modify its input")
	}
}

func TestBatchProcessor_RejectsUnknownLabel(t *testing.T) {
	processor := NewBatchProcessor(&mockClassifier{label: "SARCASM"}, 1, nil)

	results, err := processor.ClassifyItems(context.Background(), []model.Item{{ID: "x", Text: "hmm"}})
	if err != nil {
		t.Fatalf("ClassifyItems failed: %v", err)
	}
	if len(results) != 1 || results[0].Error == nil {
		t.Fatal("expected a label validation error")
	}
}

func TestBatchProcessor_ClassifierError(t *testing.T) {
	expected := errors.New("api down")
	processor := NewBatchProcessor(&mockClassifier{err: expected}, 2, nil)

	results, err := processor.ClassifyItems(context.Background(), []model.Item{{ID: "x", Text: "talks"}})
	if err != nil {
		t.Fatalf("ClassifyItems failed: %v", err)
	}
	if !errors.Is(results[0].Error, expected) {
		t.Errorf("expected wrapped %v, got %v", expected, results[0].Error)
	}
	if Apply([]model.Item{{ID: "x"}}, results)[0].Label != "" {
		t.Error("failed classification must not set a label")
	}
}

func TestBatchProcessor_Empty(t *testing.T) {
	processor := NewBatchProcessor(&mockClassifier{}, 2, nil)

	results, err := processor.ClassifyItems(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("expected 0 results, got %d", len(results))
	}
}

func TestBatchProcessor_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	items := []model.Item{{ID: "x", Text: "talks"}, {ID: "y", Text: "missile"}}
	results, err := NewBatchProcessor(&mockClassifier{}, 1, nil).ClassifyItems(ctx, items)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("expected an entry per pending item, got %d", len(results))
	}
	for _, r := range results {
		if r.Error == nil {
			t.Errorf("item %s: expected an error", r.ItemID)
		}
	}
	if labelled := Apply(items, results); labelled[0].Label != "" || labelled[1].Label != "" {
		t.Error("cancelled items must stay unlabelled")
	}
}
