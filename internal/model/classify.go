package model

import "context"

// Classification is the result of labelling one text
type Classification struct {
	Label      Frame   `json:"label"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Classifier assigns a framing label from the closed Frames set to a text
type Classifier interface {
	Classify(ctx context.Context, text string) (*Classification, error)
}
