// Package panel aggregates items into a rectangular (group, bucket) panel.
//
// Every requested group gets a row for every requested bucket. Buckets with
// no items carry NaN outcomes and a zero count; they are dropped, never
// zero-filled, when a regression design is built.
package panel

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/ppiankov/ratchet/internal/bucket"
	"github.com/ppiankov/ratchet/internal/model"
	"github.com/ppiankov/ratchet/internal/regress"
)

var (
	ErrNoBuckets    = errors.New("panel needs at least one bucket")
	ErrUnknownGroup = errors.New("group not in panel")
)

// Drop reasons passed to Options.OnDrop
const (
	ReasonMalformedTimestamp = "malformed_timestamp"
	ReasonOutsideRange       = "outside_range"
	ReasonMissingOutcome     = "missing_outcome"
	ReasonUnknownGroup       = "unknown_group"
	ReasonPeriodOnly         = "period_only"
	ReasonLowConfidence      = "low_confidence"
)

// Options fixes the panel's shape. Groups may be empty, in which case the
// groups observed in the items are used in sorted order.
type Options struct {
	Groups  []string
	Buckets []string
	OnDrop  func(item model.Item, reason string, err error)

	// MinConfidence drops items below this classifier confidence, and items
	// with no confidence at all. Zero disables the filter.
	MinConfidence float64
}

// Confident reports whether an item passes a MinConfidence filter
func Confident(it model.Item, minConfidence float64) bool {
	if minConfidence <= 0 {
		return true
	}
	return it.HasConfidence && it.Confidence >= minConfidence
}

// periodOnly reports an item that carries an explicit period but no
// timestamp. It can join period pools but has no calendar bucket.
func periodOnly(it model.Item) bool {
	return it.Period != "" && strings.TrimSpace(it.Timestamp) == ""
}

// Panel is the long-format aggregate, ordered group-major then by bucket
type Panel struct {
	Groups  []string
	Buckets []string
	Rows    []model.PanelRow
	index   map[string]int
}

// Build aggregates items into one row per (group, bucket). Items are never
// modified. The DropReport counts every item that did not reach a row.
func Build(
	items []model.Item,
	groupOf func(model.Item) string,
	bucketOf func(model.Item) (string, error),
	outcomeOf func(model.Item) (float64, error),
	opts Options,
) (*Panel, model.DropReport, error) {
	report := model.DropReport{Total: len(items), ByReason: map[string]int{}}
	if len(opts.Buckets) == 0 {
		return nil, report, ErrNoBuckets
	}

	buckets := append([]string(nil), opts.Buckets...)
	sort.Strings(buckets)
	groups := append([]string(nil), opts.Groups...)
	if len(groups) == 0 {
		seen := map[string]bool{}
		for _, it := range items {
			if g := groupOf(it); g != "" && !seen[g] {
				seen[g] = true
				groups = append(groups, g)
			}
		}
		sort.Strings(groups)
	}
	groupSet := make(map[string]bool, len(groups))
	for _, g := range groups {
		groupSet[g] = true
	}

	drop := func(it model.Item, reason string, err error) {
		report.ByReason[reason]++
		switch reason {
		case ReasonMalformedTimestamp:
			report.MalformedTimestamps++
		case ReasonOutsideRange:
			report.OutsideRange++
		case ReasonMissingOutcome:
			report.MissingOutcome++
		case ReasonUnknownGroup:
			report.UnknownGroup++
		case ReasonPeriodOnly:
			report.PeriodOnly++
		case ReasonLowConfidence:
			report.LowConfidence++
		}
		if opts.OnDrop != nil {
			opts.OnDrop(it, reason, err)
		}
	}

	values := make(map[string][]float64)
	for _, it := range items {
		g := groupOf(it)
		if !groupSet[g] {
			drop(it, ReasonUnknownGroup, fmt.Errorf("%w: %q", ErrUnknownGroup, g))
			continue
		}
		if !Confident(it, opts.MinConfidence) {
			drop(it, ReasonLowConfidence, fmt.Errorf("confidence %.2f below %.2f", it.Confidence, opts.MinConfidence))
			continue
		}
		b, err := bucketOf(it)
		if err != nil {
			switch {
			case periodOnly(it):
				drop(it, ReasonPeriodOnly, err)
			case errors.Is(err, bucket.ErrMalformedTimestamp):
				drop(it, ReasonMalformedTimestamp, err)
			default:
				drop(it, ReasonOutsideRange, err)
			}
			continue
		}
		if bucket.Index(buckets, b) < 0 {
			drop(it, ReasonOutsideRange, fmt.Errorf("bucket %s outside panel range", b))
			continue
		}
		y, err := outcomeOf(it)
		if err != nil || math.IsNaN(y) || math.IsInf(y, 0) {
			drop(it, ReasonMissingOutcome, err)
			continue
		}
		key := cellKey(g, b)
		values[key] = append(values[key], y)
		report.Kept++
	}

	p := &Panel{
		Groups:  groups,
		Buckets: buckets,
		Rows:    make([]model.PanelRow, 0, len(groups)*len(buckets)),
		index:   make(map[string]int, len(groups)*len(buckets)),
	}
	for _, g := range groups {
		for _, b := range buckets {
			row := model.PanelRow{Group: g, Bucket: b, Mean: math.NaN(), Std: math.NaN()}
			if xs := values[cellKey(g, b)]; len(xs) > 0 {
				row.Count = len(xs)
				if len(xs) == 1 {
					row.Mean = xs[0]
				} else {
					row.Mean, row.Std = stat.MeanStdDev(xs, nil)
				}
			}
			p.index[cellKey(g, b)] = len(p.Rows)
			p.Rows = append(p.Rows, row)
		}
	}
	return p, report, nil
}

func cellKey(group, bucket string) string {
	return group + "\x00" + bucket
}

// Row returns the row for (group, bucket)
func (p *Panel) Row(group, bucket string) (model.PanelRow, bool) {
	i, ok := p.index[cellKey(group, bucket)]
	if !ok {
		return model.PanelRow{}, false
	}
	return p.Rows[i], true
}

// Series returns one group's rows in bucket order
func (p *Panel) Series(group string) []model.PanelRow {
	out := make([]model.PanelRow, 0, len(p.Buckets))
	for _, b := range p.Buckets {
		if r, ok := p.Row(group, b); ok {
			out = append(out, r)
		}
	}
	return out
}

// HasGroup reports whether group is part of the panel
func (p *Panel) HasGroup(group string) bool {
	for _, g := range p.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// Pair builds the regression observations for one treatment/control
// comparison. Rows with a missing outcome are dropped. Time is the bucket's
// position in the panel range and post marks buckets at or after
// interventionBucket.
func (p *Panel) Pair(treatment, control, interventionBucket string) ([]regress.Obs, error) {
	return p.PairWhere(treatment, control, func(b string) (bool, bool) {
		return bucket.IsPost(b, interventionBucket), true
	})
}

// PairWhere is Pair with a caller-defined split: classify returns whether a
// bucket is post and whether it belongs in the comparison at all.
func (p *Panel) PairWhere(treatment, control string, classify func(bucket string) (post, keep bool)) ([]regress.Obs, error) {
	if !p.HasGroup(treatment) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, treatment)
	}
	if !p.HasGroup(control) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, control)
	}
	obs := make([]regress.Obs, 0, 2*len(p.Buckets))
	obs = p.appendGroup(obs, treatment, 1, classify)
	obs = p.appendGroup(obs, control, 0, classify)
	return obs, nil
}

// Single builds observations for one group (used by interrupted time series)
func (p *Panel) Single(group, interventionBucket string) ([]regress.Obs, error) {
	if !p.HasGroup(group) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownGroup, group)
	}
	return p.appendGroup(nil, group, 0, func(b string) (bool, bool) {
		return bucket.IsPost(b, interventionBucket), true
	}), nil
}

func (p *Panel) appendGroup(obs []regress.Obs, group string, treat float64, classify func(string) (bool, bool)) []regress.Obs {
	for i, b := range p.Buckets {
		r, _ := p.Row(group, b)
		if r.Missing() {
			continue
		}
		isPost, keep := classify(b)
		if !keep {
			continue
		}
		post := 0.0
		if isPost {
			post = 1
		}
		obs = append(obs, regress.Obs{
			Group:  group,
			Bucket: b,
			Treat:  treat,
			Post:   post,
			Time:   float64(i),
			Y:      r.Mean,
		})
	}
	return obs
}

// TimeOf returns the time index of a bucket, or -1
func (p *Panel) TimeOf(b string) int {
	return bucket.Index(p.Buckets, b)
}

// Summary is the sample mean, sample standard deviation and count of a
// group's non-missing bucket means within the selected buckets.
type Summary struct {
	Mean float64
	SD   float64
	N    int
}

// Summarize computes a Summary over buckets accepted by keep
func (p *Panel) Summarize(group string, keep func(bucket string) bool) Summary {
	var xs []float64
	for _, r := range p.Series(group) {
		if r.Missing() || (keep != nil && !keep(r.Bucket)) {
			continue
		}
		xs = append(xs, r.Mean)
	}
	s := Summary{N: len(xs), Mean: math.NaN(), SD: math.NaN()}
	switch len(xs) {
	case 0:
	case 1:
		s.Mean = xs[0]
	default:
		s.Mean, s.SD = stat.MeanStdDev(xs, nil)
	}
	return s
}
