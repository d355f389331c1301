package bucket

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedTimestamp matches any MalformedTimestampError via errors.Is
	ErrMalformedTimestamp = errors.New("malformed timestamp")
	// ErrExcluded means the timestamp falls in a gap between periods or outside all of them
	ErrExcluded = errors.New("timestamp excluded from period analysis")
	// ErrOverlappingPeriods is returned for period ranges that overlap or are out of order
	ErrOverlappingPeriods = errors.New("period ranges overlap")
	// ErrUnknownResolution is returned for anything other than month or week
	ErrUnknownResolution = errors.New("unknown bucket resolution")
)

// MalformedTimestampError identifies the item whose timestamp could not be parsed
type MalformedTimestampError struct {
	ItemID string
	Raw    string
	Err    error
}

func (e *MalformedTimestampError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("item %s: malformed timestamp %q: %v", e.ItemID, e.Raw, e.Err)
	}
	return fmt.Sprintf("item %s: malformed timestamp %q", e.ItemID, e.Raw)
}

func (e *MalformedTimestampError) Unwrap() error {
	return e.Err
}

func (e *MalformedTimestampError) Is(target error) bool {
	return target == ErrMalformedTimestamp
}
