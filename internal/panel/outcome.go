package panel

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/ratchet/internal/model"
)

var ErrMissingOutcome = errors.New("item has no outcome")

// OutcomeFunc maps an item to its numeric outcome
type OutcomeFunc func(model.Item) (float64, error)

// NewOutcome returns the outcome mapping for a configured kind:
// "scale" maps labels through the scale, "share" is 1 for shareLabel and 0
// for any other label, "continuous" is the raw score.
func NewOutcome(cfg model.OutcomeConfig, scale model.OutcomeScale) (OutcomeFunc, error) {
	switch cfg.Kind {
	case "scale", "":
		return func(it model.Item) (float64, error) {
			if it.Label == "" {
				return 0, fmt.Errorf("item %s: %w", it.ID, ErrMissingOutcome)
			}
			return scale.Value(it.Label)
		}, nil
	case "share":
		target, err := model.ParseFrame(cfg.ShareLabel)
		if err != nil {
			return nil, fmt.Errorf("share outcome: %w", err)
		}
		return func(it model.Item) (float64, error) {
			if it.Label == "" {
				return 0, fmt.Errorf("item %s: %w", it.ID, ErrMissingOutcome)
			}
			if strings.EqualFold(string(it.Label), string(target)) {
				return 1, nil
			}
			return 0, nil
		}, nil
	case "continuous":
		return func(it model.Item) (float64, error) {
			if !it.HasScore {
				return 0, fmt.Errorf("item %s: %w", it.ID, ErrMissingOutcome)
			}
			return it.Score, nil
		}, nil
	}
	return nil, fmt.Errorf("unknown outcome kind %q", cfg.Kind)
}
