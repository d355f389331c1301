package model

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestParseFrame(t *testing.T) {
	tests := []struct {
		raw     string
		want    Frame
		wantErr bool
	}{
		{"THREAT", FrameThreat, false},
		{" diplomacy ", FrameDiplomacy, false},
		{"Humanitarian", FrameHumanitarian, false},
		{"SATIRE", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFrame(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFrame(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseFrame(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestOutcomeScaleValue(t *testing.T) {
	s := DefaultFramingScale()

	if v, err := s.Value(FrameDiplomacy); err != nil || v != 2 {
		t.Errorf("DIPLOMACY = %v, %v; want 2", v, err)
	}
	if v, err := s.Value(FrameEconomic); err != nil || v != 0 {
		t.Errorf("ECONOMIC = %v, %v; want default 0", v, err)
	}
	if _, err := s.Value(""); err == nil {
		t.Error("expected error for empty label")
	}
	if _, err := s.Value("SATIRE"); err == nil {
		t.Error("expected error for label outside the closed set")
	}

	// viper lower-cases map keys read from config files
	lower := OutcomeScale{Values: map[string]float64{"threat": -1}, Range: 2}
	if v, err := lower.Value(FrameThreat); err != nil || v != -1 {
		t.Errorf("THREAT via lower-case key = %v, %v; want -1", v, err)
	}
}

func TestOutcomeScaleDescribe(t *testing.T) {
	got := DefaultFramingScale().Describe()
	for _, part := range []string{"DIPLOMACY=+2", "THREAT=-2", "others=+0"} {
		if !strings.Contains(got, part) {
			t.Errorf("description %q lacks %q", got, part)
		}
	}
	if strings.Index(got, "DIPLOMACY") > strings.Index(got, "THREAT") {
		t.Errorf("description %q is not sorted", got)
	}
}

func TestOutcomeRange(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.OutcomeRange(); got != 4 {
		t.Errorf("scale range = %v, want 4", got)
	}
	cfg.Outcome = OutcomeConfig{Kind: "share", ShareLabel: "DIPLOMACY"}
	if got := cfg.OutcomeRange(); got != 1 {
		t.Errorf("share range = %v, want 1", got)
	}
	cfg.Outcome = OutcomeConfig{Kind: "continuous"}
	if got := cfg.OutcomeRange(); got != 2 {
		t.Errorf("continuous default range = %v, want 2", got)
	}
}

func TestDropReportDropped(t *testing.T) {
	d := DropReport{Total: 10, Kept: 7}
	if d.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", d.Dropped())
	}
}

func TestPanelRowJSONMissing(t *testing.T) {
	row := PanelRow{Group: "NK", Bucket: "2018-06", Mean: math.NaN(), Std: math.NaN()}
	data, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"mean_outcome":null`) {
		t.Errorf("missing mean not encoded as null: %s", data)
	}

	var back PanelRow
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !back.Missing() || !math.IsNaN(back.Mean) {
		t.Errorf("expected missing row after decode, got %+v", back)
	}
}

func TestBootstrapRatioJSONInfinite(t *testing.T) {
	r := BootstrapRatioResult{Observed: 0.5, CILower: 0.1, CIUpper: math.Inf(1), MeanRatio: 0.4, Iterations: 100, InfiniteCount: 4}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, `"ci_upper":null`) || !strings.Contains(s, `"ci_upper_infinite":true`) {
		t.Errorf("infinite bound not flagged: %s", s)
	}

	var back BootstrapRatioResult
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !math.IsInf(back.CIUpper, 1) || back.CILower != 0.1 || back.InfiniteCount != 4 {
		t.Errorf("decoded result differs: %+v", back)
	}
}

func TestEventStudyPointJSONNaN(t *testing.T) {
	data, err := json.Marshal(EventStudyPoint{RelTime: -1, PValue: math.NaN()})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(data), `"p_value":null`) {
		t.Errorf("NaN p-value not encoded as null: %s", data)
	}
}
