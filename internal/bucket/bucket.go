// Package bucket maps raw item timestamps to named periods and to sortable
// calendar buckets (YYYY-MM or ISO YYYY-Www).
//
// Period ranges are half-open: a range [Start, End) contains Start and
// excludes End. Gaps between ranges are legal and mean "excluded".
package bucket

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/ratchet/internal/model"
)

// Resolution is the calendar granularity of a panel
type Resolution string

const (
	Month Resolution = "month"
	Week  Resolution = "week"
)

const dateLayout = "2006-01-02"

// ParseResolution accepts "month" or "week" (case-insensitive)
func ParseResolution(s string) (Resolution, error) {
	switch Resolution(strings.ToLower(strings.TrimSpace(s))) {
	case Month:
		return Month, nil
	case Week:
		return Week, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownResolution, s)
}

// Range is one named period [Start, End)
type Range struct {
	Label string
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls in [Start, End)
func (r Range) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Cutoffs is an ordered, non-overlapping list of period ranges
type Cutoffs []Range

// NewCutoffs validates ordering and overlap. Ranges must be given in time order.
func NewCutoffs(ranges []Range) (Cutoffs, error) {
	seen := make(map[string]bool, len(ranges))
	for i, r := range ranges {
		if !r.Start.Before(r.End) {
			return nil, fmt.Errorf("period %s: start %s is not before end %s",
				r.Label, r.Start.Format(dateLayout), r.End.Format(dateLayout))
		}
		if seen[r.Label] {
			return nil, fmt.Errorf("duplicate period label %q", r.Label)
		}
		seen[r.Label] = true
		if i > 0 && r.Start.Before(ranges[i-1].End) {
			return nil, fmt.Errorf("%w: %s starts before %s ends", ErrOverlappingPeriods, r.Label, ranges[i-1].Label)
		}
	}
	return Cutoffs(ranges), nil
}

// CutoffsFromConfig parses YYYY-MM-DD period boundaries as UTC midnight
func CutoffsFromConfig(periods []model.PeriodConfig) (Cutoffs, error) {
	ranges := make([]Range, 0, len(periods))
	for _, p := range periods {
		start, err := ParseDate(p.Start)
		if err != nil {
			return nil, fmt.Errorf("period %s start: %w", p.Label, err)
		}
		end, err := ParseDate(p.End)
		if err != nil {
			return nil, fmt.Errorf("period %s end: %w", p.Label, err)
		}
		ranges = append(ranges, Range{Label: p.Label, Start: start, End: end})
	}
	return NewCutoffs(ranges)
}

// Labels returns the period labels in order
func (c Cutoffs) Labels() []string {
	labels := make([]string, len(c))
	for i, r := range c {
		labels[i] = r.Label
	}
	return labels
}

// Lookup finds a range by label
func (c Cutoffs) Lookup(label string) (Range, bool) {
	for _, r := range c {
		if r.Label == label {
			return r, true
		}
	}
	return Range{}, false
}

// ParseDate parses a YYYY-MM-DD date as UTC midnight
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, strings.TrimSpace(s), time.UTC)
}

// maxEpoch bounds accepted epoch seconds; larger values are usually
// milliseconds written into a seconds column
const maxEpoch = 1e11

// ParseTimestamp parses Unix epoch seconds. Fractional seconds are accepted
// since exported tables often carry created_utc as a float.
func ParseTimestamp(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 || n > maxEpoch {
			return time.Time{}, fmt.Errorf("timestamp %d out of range", n)
		}
		return time.Unix(n, 0).UTC(), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > maxEpoch {
		return time.Time{}, fmt.Errorf("timestamp %v out of range", f)
	}
	sec, frac := math.Modf(f)
	return time.Unix(int64(sec), int64(frac*1e9)).UTC(), nil
}

// AssignPeriod returns the label of the range containing t.
// ok is false when t falls in a gap or outside every range.
func AssignPeriod(t time.Time, cutoffs Cutoffs) (label string, ok bool) {
	for _, r := range cutoffs {
		if r.Contains(t) {
			return r.Label, true
		}
	}
	return "", false
}

// AssignCalendarBucket returns the sortable bucket key for t
func AssignCalendarBucket(t time.Time, res Resolution) string {
	t = t.UTC()
	if res == Week {
		year, week := t.ISOWeek()
		return fmt.Sprintf("%04d-W%02d", year, week)
	}
	return t.Format("2006-01")
}

// BucketStart returns the first instant of a bucket key
func BucketStart(key string, res Resolution) (time.Time, error) {
	if res == Week {
		ys, ws, found := strings.Cut(key, "-W")
		year, yerr := strconv.Atoi(ys)
		week, werr := strconv.Atoi(ws)
		if !found || yerr != nil || werr != nil || week < 1 || week > 53 {
			return time.Time{}, fmt.Errorf("bad week key %q", key)
		}
		// Jan 4th is always in ISO week 1
		jan4 := time.Date(year, time.January, 4, 0, 0, 0, 0, time.UTC)
		monday := jan4.AddDate(0, 0, -isoWeekday(jan4)+1)
		return monday.AddDate(0, 0, (week-1)*7), nil
	}
	t, err := time.ParseInLocation("2006-01", key, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("bad month key %q: %w", key, err)
	}
	return t, nil
}

// BucketEnd returns the first instant after a bucket key
func BucketEnd(key string, res Resolution) (time.Time, error) {
	start, err := BucketStart(key, res)
	if err != nil {
		return time.Time{}, err
	}
	if res == Week {
		return start.AddDate(0, 0, 7), nil
	}
	return start.AddDate(0, 1, 0), nil
}

// BucketRange enumerates every bucket key from the bucket containing start
// through the bucket containing end, so panels stay rectangular.
func BucketRange(start, end time.Time, res Resolution) []string {
	if end.Before(start) {
		return nil
	}
	var keys []string
	last := AssignCalendarBucket(end, res)
	cur := truncate(start.UTC(), res)
	for {
		key := AssignCalendarBucket(cur, res)
		keys = append(keys, key)
		if key == last {
			return keys
		}
		if res == Week {
			cur = cur.AddDate(0, 0, 7)
		} else {
			cur = cur.AddDate(0, 1, 0)
		}
	}
}

// BucketPeriod assigns a whole bucket to the period containing its midpoint.
// A month split by a cutoff belongs to whichever period holds most of it.
func BucketPeriod(key string, res Resolution, cutoffs Cutoffs) (string, bool) {
	start, err := BucketStart(key, res)
	if err != nil {
		return "", false
	}
	end, _ := BucketEnd(key, res)
	mid := start.Add(end.Sub(start) / 2)
	return AssignPeriod(mid, cutoffs)
}

// IsPost reports whether bucket is at or after the intervention bucket
func IsPost(key, interventionKey string) bool {
	return key >= interventionKey
}

// Index returns the position of key in an ordered bucket list, or -1
func Index(keys []string, key string) int {
	i := sort.SearchStrings(keys, key)
	if i < len(keys) && keys[i] == key {
		return i
	}
	return -1
}

func truncate(t time.Time, res Resolution) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	if res == Week {
		return day.AddDate(0, 0, -isoWeekday(day)+1)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// isoWeekday is 1 for Monday through 7 for Sunday
func isoWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
