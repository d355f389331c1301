package model

import (
	"fmt"
	"sort"
	"strings"
)

// Item is one classified unit of discourse (a post or a comment).
// Items are immutable once loaded; aggregation always produces new values.
type Item struct {
	ID        string  `json:"id"`
	Group     string  `json:"group"`            // treatment or control group, e.g. "NK", "CHINA"
	Timestamp string  `json:"timestamp"`        // raw Unix epoch seconds as read from the source
	Label     Frame   `json:"label,omitempty"`  // categorical outcome (framing)
	Score     float64 `json:"score,omitempty"`  // continuous outcome (sentiment)
	HasScore  bool    `json:"has_score"`        // false when the score column was empty or unparseable
	Period    string  `json:"period,omitempty"` // explicit period for pre-partitioned tables
	Text      string  `json:"text,omitempty"`

	// Confidence is the classifier's self-reported certainty in [0, 1]
	Confidence    float64 `json:"confidence,omitempty"`
	HasConfidence bool    `json:"has_confidence,omitempty"`
}

// Frame is a framing category produced by the classifier
type Frame string

const (
	FrameThreat       Frame = "THREAT"
	FrameDiplomacy    Frame = "DIPLOMACY"
	FrameNeutral      Frame = "NEUTRAL"
	FrameEconomic     Frame = "ECONOMIC"
	FrameHumanitarian Frame = "HUMANITARIAN"
)

// Frames is the closed set of labels the classifier may return
var Frames = []Frame{FrameThreat, FrameDiplomacy, FrameNeutral, FrameEconomic, FrameHumanitarian}

// ParseFrame normalizes a raw label and checks it against the closed set
func ParseFrame(raw string) (Frame, error) {
	f := Frame(strings.ToUpper(strings.TrimSpace(raw)))
	for _, known := range Frames {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown frame %q", raw)
}

// OutcomeScale maps categorical labels to signed numeric values.
// It must stay fixed for an analysis; changing it breaks comparability across runs.
type OutcomeScale struct {
	Values map[string]float64 `mapstructure:"values" yaml:"values" json:"values"`
	// Range is the full width of the numeric range (4.0 for [-2,2], 2.0 for [-1,1])
	Range float64 `mapstructure:"range" yaml:"range" json:"range" validate:"gt=0"`
	// Default applies to labels in the closed set that are absent from Values
	Default float64 `mapstructure:"default" yaml:"default" json:"default"`
}

// DefaultFramingScale is the diplomacy scale: DIPLOMACY=+2, THREAT=-2, everything else 0
func DefaultFramingScale() OutcomeScale {
	return OutcomeScale{
		Values: map[string]float64{
			string(FrameDiplomacy): 2.0,
			string(FrameThreat):    -2.0,
		},
		Range:   4.0,
		Default: 0.0,
	}
}

// Value returns the numeric value for a label
func (s OutcomeScale) Value(label Frame) (float64, error) {
	if label == "" {
		return 0, fmt.Errorf("empty label")
	}
	if v, ok := s.Values[string(label)]; ok {
		return v, nil
	}
	for k, v := range s.Values {
		if strings.EqualFold(k, string(label)) {
			return v, nil
		}
	}
	if _, err := ParseFrame(string(label)); err != nil {
		return 0, err
	}
	return s.Default, nil
}

// Describe renders the mapping in a stable order for reports
func (s OutcomeScale) Describe() string {
	keys := make([]string, 0, len(s.Values))
	for k := range s.Values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%+g", k, s.Values[k]))
	}
	parts = append(parts, fmt.Sprintf("others=%+g", s.Default))
	return strings.Join(parts, ", ")
}
