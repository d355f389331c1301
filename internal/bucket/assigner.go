package bucket

import (
	"fmt"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

// Assigner applies one set of cutoffs and one resolution to items
type Assigner struct {
	Cutoffs    Cutoffs
	Resolution Resolution
}

// NewAssigner builds an Assigner from the analysis configuration
func NewAssigner(cfg model.Config) (*Assigner, error) {
	cutoffs, err := CutoffsFromConfig(cfg.Periods)
	if err != nil {
		return nil, err
	}
	res, err := ParseResolution(cfg.Resolution)
	if err != nil {
		return nil, err
	}
	return &Assigner{Cutoffs: cutoffs, Resolution: res}, nil
}

// Time parses the item's timestamp, naming the item on failure
func (a *Assigner) Time(item model.Item) (time.Time, error) {
	t, err := ParseTimestamp(item.Timestamp)
	if err != nil {
		return time.Time{}, &MalformedTimestampError{ItemID: item.ID, Raw: item.Timestamp, Err: err}
	}
	return t, nil
}

// Bucket returns the calendar bucket key of an item
func (a *Assigner) Bucket(item model.Item) (string, error) {
	t, err := a.Time(item)
	if err != nil {
		return "", err
	}
	return AssignCalendarBucket(t, a.Resolution), nil
}

// Period returns the period label of an item. An explicit Period field wins
// over the timestamp; it must name one of the configured ranges.
func (a *Assigner) Period(item model.Item) (string, error) {
	if item.Period != "" {
		if _, ok := a.Cutoffs.Lookup(item.Period); !ok {
			return "", fmt.Errorf("item %s: unknown period %q", item.ID, item.Period)
		}
		return item.Period, nil
	}
	t, err := a.Time(item)
	if err != nil {
		return "", err
	}
	label, ok := AssignPeriod(t, a.Cutoffs)
	if !ok {
		return "", ErrExcluded
	}
	return label, nil
}

// Buckets enumerates the full bucket range between two YYYY-MM-DD dates
func (a *Assigner) Buckets(start, end string) ([]string, error) {
	s, err := ParseDate(start)
	if err != nil {
		return nil, fmt.Errorf("range start: %w", err)
	}
	e, err := ParseDate(end)
	if err != nil {
		return nil, fmt.Errorf("range end: %w", err)
	}
	if e.Before(s) {
		return nil, fmt.Errorf("range end %s before start %s", end, start)
	}
	return BucketRange(s, e, a.Resolution), nil
}

// InterventionBucket is the first post-intervention bucket key
func (a *Assigner) InterventionBucket(date string) (string, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", fmt.Errorf("intervention: %w", err)
	}
	return AssignCalendarBucket(t, a.Resolution), nil
}
