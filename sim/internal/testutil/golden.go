// Package testutil provides shared test infrastructure: the golden dataset of
// hand-computed concentration and exposure values, and float assertions used
// by sim/ and its sub-packages.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// GoldenDataset represents the structure of testdata/goldendataset.json.
type GoldenDataset struct {
	Cases []GoldenCase `json:"cases"`
}

// GoldenCase is one parameter set and regimen with its reference values.
type GoldenCase struct {
	Name       string         `json:"name"`
	CL         float64        `json:"cl"`
	V          float64        `json:"v"`
	Regimen    GoldenRegimen  `json:"regimen"`
	StepMin    float64        `json:"dt_min"`
	QueryTimes []float64      `json:"query_times"`
	Expected   GoldenExpected `json:"expected"`
}

// GoldenRegimen is the repeated dose under test.
type GoldenRegimen struct {
	Dose     float64 `json:"dose_mg"`
	Interval float64 `json:"interval_hr"`
	Infusion float64 `json:"infusion_hr"`
}

// GoldenExpected holds reference outputs.
type GoldenExpected struct {
	// Superposed concentrations at QueryTimes for the regimen over 0-48 h.
	Concentrations []float64 `json:"concentrations"`

	// Simulated-curve metrics on the StepMin grid
	AUC24Sim  float64 `json:"auc24_sim"`
	PeakSim   float64 `json:"peak_sim"`
	TroughSim float64 `json:"trough_sim"`

	// Closed-form steady state
	AUC24SS  float64 `json:"auc24_ss"`
	PeakSS   float64 `json:"peak_ss"`
	TroughSS float64 `json:"trough_ss"`
}

// LoadGoldenDataset loads the golden dataset from the testdata directory.
// The path is resolved relative to this source file: sim/internal/testutil/ → testdata/.
func LoadGoldenDataset(t *testing.T) *GoldenDataset {
	t.Helper()

	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	path := filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", "goldendataset.json")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read golden dataset: %v", err)
	}

	var dataset GoldenDataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		t.Fatalf("Failed to parse golden dataset: %v", err)
	}
	if len(dataset.Cases) == 0 {
		t.Fatal("golden dataset has no cases")
	}
	return &dataset
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}

// AssertSliceFloat64Equal applies AssertFloat64Equal element-wise.
func AssertSliceFloat64Equal(t *testing.T, name string, want, got []float64, relTol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("%s: length %d, want %d", name, len(got), len(want))
	}
	for i := range want {
		AssertFloat64Equal(t, name, want[i], got[i], relTol)
	}
}
