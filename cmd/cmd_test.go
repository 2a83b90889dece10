package cmd

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/bayes"
	"github.com/pk-sim/pk-sim/sim/casefile"
	"github.com/pk-sim/pk-sim/sim/regimen"
	"github.com/pk-sim/pk-sim/sim/trace"
)

// Levels generated from CL 4 L/h, V 50 L after two 1000 mg doses.
const testCase = `
version: "1"
patient: {weight_kg: 70, crcl_ml_min: 100, serious: true}
regimen: {dose_mg: 1000, interval_hr: 12, infusion_hr: 1}
dose_history:
  - {dose_mg: 1000, start_hr: 0, infusion_hr: 1}
  - {dose_mg: 1000, start_hr: 12, infusion_hr: 1}
levels:
  - {time_hr: 2, concentration_mg_l: 17.74313935510611}
  - {time_hr: 10, concentration_mg_l: 9.355822960687515}
`

func writeCase(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "case.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func parseCase(t *testing.T, content string) *casefile.Case {
	t.Helper()
	path := writeCase(t, content)
	c, err := casefile.Load(path)
	require.NoError(t, err)
	require.NoError(t, c.Validate())
	return c
}

func defaultBundle() *sim.Bundle {
	b := sim.DefaultBundle()
	return &b
}

func TestRunSimulate_QueryTimesAndRegimen(t *testing.T) {
	c := parseCase(t, testCase+"query_times_hr: [0, 1, 13]\n")

	res, err := runSimulate(c, sim.SteadyStateHorizon, 10)
	require.NoError(t, err)

	assert.Equal(t, []float64{0, 1, 13}, res.Times)
	require.Len(t, res.Concentrations, 3)
	assert.Equal(t, 0.0, res.Concentrations[0])
	require.NotNil(t, res.Regimen)
	assert.Greater(t, res.Regimen.AUC24, 0.0)
	assert.InDelta(t, 49.0, res.Params.V, 1e-9, "population volume for 70 kg")
	assert.InDelta(t, math.Ln2*49.0/res.Params.CL, res.HalfLife, 1e-9)
}

func TestRunSimulate_NoDoses(t *testing.T) {
	c := parseCase(t, "patient: {weight_kg: 70, crcl_ml_min: 100}\n")
	_, err := runSimulate(c, 48, 10)
	assert.True(t, errors.Is(err, errNoDoses))
}

func TestRunMetrics_UsesRegimenInterval(t *testing.T) {
	c := parseCase(t, testCase+"params: {cl_l_hr: 4, v_l: 50}\n")

	res, err := runMetrics(c, 0, 24, 0, 48, 10)
	require.NoError(t, err)

	assert.Equal(t, 12.0, res.Interval)
	assert.Greater(t, res.Peak, res.Trough)
	assert.Greater(t, res.AUC, 0.0)

	inverted, err := runMetrics(c, 24, 0, 12, 48, 10)
	require.NoError(t, err)
	assert.Equal(t, 0.0, inverted.AUC)
}

func TestRunFit_RecoversParamsAndBand(t *testing.T) {
	c := parseCase(t, testCase)
	dt := trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})

	res, err := runFit(c, defaultBundle(), fitSettings{samples: 100, band: true, dtMinutes: 30}, dt)
	require.NoError(t, err)

	est := res.Estimate
	assert.InDelta(t, 4.0, est.CL, 1.0)
	assert.InDelta(t, 50.0, est.V, 12.5)
	assert.Len(t, est.Samples, 100)
	require.NotNil(t, res.Band)
	assert.Len(t, res.Band.Lower, len(res.Band.Times))
	require.Len(t, res.AUC24Interval, 2)
	assert.LessOrEqual(t, res.AUC24Interval[0], res.AUC24Interval[1])
	assert.NotEmpty(t, dt.Refinements)
}

func TestRunFit_Errors(t *testing.T) {
	noLevels := parseCase(t, `
patient: {weight_kg: 70, crcl_ml_min: 100}
dose_history: [{dose_mg: 1000, start_hr: 0, infusion_hr: 1}]
`)
	_, err := runFit(noLevels, defaultBundle(), fitSettings{samples: -1}, nil)
	assert.True(t, errors.Is(err, bayes.ErrNoSamples))

	res, err := runFit(noLevels, defaultBundle(), fitSettings{samples: -1, allowPriorOnly: true}, nil)
	require.NoError(t, err)
	assert.True(t, res.Estimate.PriorOnly)

	_, err = runFit(noLevels, defaultBundle(), fitSettings{samples: 0, band: true, allowPriorOnly: true}, nil)
	assert.True(t, errors.Is(err, errBandNeedsRegimen))

	// GIVEN levels and a regimen but no recorded doses
	noHistory := parseCase(t, `
patient: {weight_kg: 70, crcl_ml_min: 100}
regimen: {dose_mg: 1000, interval_hr: 12, infusion_hr: 1}
levels: [{time_hr: 2, concentration_mg_l: 17.7}]
`)
	// THEN the fit refuses instead of expanding the regimen
	_, err = runFit(noHistory, defaultBundle(), fitSettings{samples: -1}, nil)
	assert.True(t, errors.Is(err, bayes.ErrNoDoseHistory))

	noWeight := parseCase(t, "levels: [{time_hr: 2, concentration_mg_l: 10}]\n")
	_, err = runFit(noWeight, defaultBundle(), fitSettings{samples: -1}, nil)
	assert.Error(t, err, "lognormal prior needs a positive population mean")
}

func TestRunFit_SeedDeterminism(t *testing.T) {
	c := parseCase(t, testCase)
	b1, b2 := defaultBundle(), defaultBundle()
	b2.Estimator.Seed = 99

	r1, err := runFit(c, b1, fitSettings{samples: 20}, nil)
	require.NoError(t, err)
	r1again, err := runFit(c, b1, fitSettings{samples: 20}, nil)
	require.NoError(t, err)
	r2, err := runFit(c, b2, fitSettings{samples: 20}, nil)
	require.NoError(t, err)

	assert.Equal(t, r1.Estimate.Samples, r1again.Estimate.Samples)
	assert.NotEqual(t, r1.Estimate.Samples, r2.Estimate.Samples)
	assert.Equal(t, r1.Estimate.CL, r2.Estimate.CL, "the MAP does not depend on the seed")
}

func TestRunRecommend(t *testing.T) {
	c := parseCase(t, testCase)

	res, err := runRecommend(c, defaultBundle(), false, 10, 5, nil)
	require.NoError(t, err)
	assert.Equal(t, 1750.0, res.LoadingDose)
	assert.Len(t, res.Search.Candidates, 5)
	assert.Equal(t, res.Search.Best, res.Search.Candidates[0])
	assert.Nil(t, res.Fit)
	assert.Greater(t, res.Simulated.AUC24, 0.0)

	fitted, err := runRecommend(c, defaultBundle(), true, 10, 0, nil)
	require.NoError(t, err)
	require.NotNil(t, fitted.Fit)
	assert.Equal(t, fitted.Fit.CL, fitted.Search.Params.CL)
}

func TestRunRecommend_Infeasible(t *testing.T) {
	c := parseCase(t, testCase)
	b := defaultBundle()
	b.Guardrails.MaxDailyDose = 50

	_, err := runRecommend(c, b, false, 10, 0, nil)

	var inf *regimen.InfeasibleError
	assert.True(t, errors.As(err, &inf))
}

func TestWriteReport_Envelope(t *testing.T) {
	var buf bytes.Buffer
	dt := trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	require.NoError(t, writeReport(&buf, "loading-dose", 42, LoadingDoseResult{LoadingDose: 1750}, dt))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	_, err := uuid.Parse(got["run_id"].(string))
	assert.NoError(t, err)
	assert.Equal(t, "loading-dose", got["command"])
	assert.Equal(t, 42.0, got["seed"])
	assert.Contains(t, got, "trace")
}

func TestRootCommand_LoadingDose(t *testing.T) {
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"loading-dose", "--weight", "80", "--serious"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var report struct {
		Result LoadingDoseResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, 2000.0, report.Result.LoadingDose)
}

func TestRootCommand_FitFromCaseFile(t *testing.T) {
	path := writeCase(t, testCase)
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"fit", "--case", path, "--samples", "10", "--seed", "7"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute())

	var report struct {
		Seed   int64     `json:"seed"`
		Result FitResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &report))
	assert.Equal(t, int64(7), report.Seed)
	assert.Len(t, report.Result.Estimate.Samples, 10)
}

func TestRootCommand_RejectsBadLogLevel(t *testing.T) {
	rootCmd.SetArgs([]string{"loading-dose", "--log", "loud"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		logLevel = "warn"
	})
	assert.Error(t, rootCmd.Execute())
}

func TestLoadCase_RequiresPath(t *testing.T) {
	old := casePath
	casePath = ""
	t.Cleanup(func() { casePath = old })

	_, err := loadCase()
	assert.True(t, errors.Is(err, errNoCase))
}
