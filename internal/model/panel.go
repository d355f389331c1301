package model

import (
	"encoding/json"
	"math"
)

// PanelRow is one aggregated (group, time bucket) observation.
// Mean and Std are NaN when the bucket had no items; they are never zero-filled.
type PanelRow struct {
	Group  string  `json:"group"`
	Bucket string  `json:"bucket"`
	Mean   float64 `json:"-"`
	Std    float64 `json:"-"`
	Count  int     `json:"item_count"`
}

// Missing reports whether the row has no usable outcome
func (r PanelRow) Missing() bool {
	return r.Count == 0 || math.IsNaN(r.Mean)
}

type panelRowJSON struct {
	Group  string   `json:"group"`
	Bucket string   `json:"bucket"`
	Mean   *float64 `json:"mean_outcome"`
	Std    *float64 `json:"std_outcome"`
	Count  int      `json:"item_count"`
}

// MarshalJSON writes missing outcome fields as null
func (r PanelRow) MarshalJSON() ([]byte, error) {
	return json.Marshal(panelRowJSON{
		Group:  r.Group,
		Bucket: r.Bucket,
		Mean:   finiteOrNil(r.Mean),
		Std:    finiteOrNil(r.Std),
		Count:  r.Count,
	})
}

// UnmarshalJSON restores null outcome fields as NaN
func (r *PanelRow) UnmarshalJSON(data []byte) error {
	var raw panelRowJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Group = raw.Group
	r.Bucket = raw.Bucket
	r.Count = raw.Count
	r.Mean = nilToNaN(raw.Mean)
	r.Std = nilToNaN(raw.Std)
	return nil
}

func finiteOrNil(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func nilToNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
