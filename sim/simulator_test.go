package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pk-sim/pk-sim/sim/internal/testutil"
)

func TestEventConcentration_ZeroBeforeAndAtStart(t *testing.T) {
	ev := DoseEvent{Dose: 1000, Start: 5, Infusion: 1}
	for _, tt := range []float64{0, 4.999, 5} {
		assert.Equal(t, 0.0, EventConcentration(tt, ev, 4, 50), "t=%g", tt)
	}
	assert.Greater(t, EventConcentration(5.1, ev, 4, 50), 0.0)
}

func TestEventConcentration_EndOfInfusionClosedForm(t *testing.T) {
	// GIVEN 1000 mg over 1 h with CL 4 L/h and V 50 L
	ev := DoseEvent{Dose: 1000, Start: 0, Infusion: 1}

	// WHEN evaluated at the end of the infusion
	got := EventConcentration(1, ev, 4, 50)

	// THEN it equals (R/CL)(1 - exp(-k Tin)) = 250 (1 - exp(-0.08))
	want := 250 * (1 - math.Exp(-0.08))
	assert.InDelta(t, want, got, 1e-6)
}

func TestEventConcentration_ContinuousAtInfusionEnd(t *testing.T) {
	tests := []struct {
		name string
		ev   DoseEvent
		cl   float64
		v    float64
	}{
		{"reference", DoseEvent{Dose: 1000, Start: 0, Infusion: 1}, 4, 50},
		{"long infusion", DoseEvent{Dose: 2000, Start: 12, Infusion: 2}, 6, 70},
		{"fast elimination", DoseEvent{Dose: 500, Start: 3, Infusion: 0.5}, 30, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			end := tt.ev.Start + tt.ev.Infusion
			atEnd := EventConcentration(end, tt.ev, tt.cl, tt.v)

			// after-infusion branch evaluated at the boundary
			k := tt.cl / tt.v
			after := tt.ev.Rate() / tt.cl * (1 - math.Exp(-k*tt.ev.Infusion))

			testutil.AssertFloat64Equal(t, "boundary", after, atEnd, 1e-12)
			testutil.AssertFloat64Equal(t, "just after", atEnd, EventConcentration(end+1e-9, tt.ev, tt.cl, tt.v), 1e-6)
		})
	}
}

func TestConcentrations_Superposition(t *testing.T) {
	a := DoseEvent{Dose: 1000, Start: 0, Infusion: 1}
	b := DoseEvent{Dose: 750, Start: 8, Infusion: 1.5}
	times := []float64{0, 1, 8, 9, 12, 24}

	both := Concentrations(times, []DoseEvent{a, b}, 4, 50)
	onlyA := Concentrations(times, []DoseEvent{a}, 4, 50)
	onlyB := Concentrations(times, []DoseEvent{b}, 4, 50)

	require.Len(t, both, len(times))
	for i := range times {
		assert.InDelta(t, onlyA[i]+onlyB[i], both[i], 1e-12)
		assert.GreaterOrEqual(t, both[i], 0.0)
	}
}

func TestConcentrations_ClampsNonPositiveParams(t *testing.T) {
	events := []DoseEvent{{Dose: 1000, Start: 0, Infusion: 0}}
	got := Concentrations([]float64{0.5, 1, 2}, events, 0, -5)
	for _, c := range got {
		assert.False(t, math.IsNaN(c))
		assert.False(t, math.IsInf(c, 0))
		assert.GreaterOrEqual(t, c, 0.0)
	}
}

func TestConcentrations_NoEvents(t *testing.T) {
	assert.Equal(t, []float64{0, 0}, Concentrations([]float64{1, 2}, nil, 4, 50))
}

func TestRepeatedEvents(t *testing.T) {
	tests := []struct {
		name      string
		interval  float64
		horizon   float64
		start     float64
		wantCount int
		wantLast  float64
	}{
		{"q12h over 48h includes the 48h dose", 12, 48, 0, 5, 48},
		{"q12h over 47h", 12, 47, 0, 4, 36},
		{"offset start", 12, 48, 6, 4, 42},
		{"q48h", 48, 48, 0, 2, 48},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := RepeatedEvents(1000, tt.interval, 1, tt.horizon, tt.start)
			require.Len(t, events, tt.wantCount)
			assert.Equal(t, tt.start, events[0].Start)
			assert.Equal(t, tt.wantLast, events[len(events)-1].Start)
		})
	}

	assert.Nil(t, RepeatedEvents(1000, 0, 1, 48, 0))
	assert.Nil(t, RepeatedEvents(1000, -6, 1, 48, 0))
	assert.Nil(t, RepeatedEvents(1000, 12, 1, 0, 10))
}

func TestTimeGrid(t *testing.T) {
	g := TimeGrid(48, 10)
	require.Len(t, g, 289)
	assert.Equal(t, 0.0, g[0])
	assert.Equal(t, 48.0, g[288])
	assert.InDelta(t, 24.0, g[144], 1e-12)

	assert.Equal(t, []float64{0, 1}, TimeGrid(1, 60))
	assert.Equal(t, []float64{0}, TimeGrid(0.01, 10))
	assert.Len(t, TimeGrid(48, 0), 289, "non-positive step falls back to the default")
}

func TestSimulateRegimen_MatchesGoldenDataset(t *testing.T) {
	dataset := testutil.LoadGoldenDataset(t)
	for _, tc := range dataset.Cases {
		t.Run(tc.Name, func(t *testing.T) {
			r := Regimen{Dose: tc.Regimen.Dose, Interval: tc.Regimen.Interval, Infusion: tc.Regimen.Infusion}
			events := r.Events(SteadyStateHorizon, 0)
			got := Concentrations(tc.QueryTimes, events, tc.CL, tc.V)
			testutil.AssertSliceFloat64Equal(t, "concentrations", tc.Expected.Concentrations, got, 1e-9)

			curve := SimulateRegimen(Params{CL: tc.CL, V: tc.V}, r, tc.StepMin)
			assert.Equal(t, 0.0, curve.Concentrations[0])
			assert.Equal(t, SteadyStateHorizon, curve.Times[len(curve.Times)-1])
		})
	}
}

func TestParams_Derived(t *testing.T) {
	p := Params{CL: 4, V: 50}
	assert.InDelta(t, 0.08, p.K(), 1e-15)
	assert.InDelta(t, math.Ln2/0.08, p.HalfLife(), 1e-12)
	assert.Equal(t, Params{CL: MinParam, V: MinParam}, Params{CL: -1, V: math.NaN()}.Clamped())
}

func TestRegimen_DailyDose(t *testing.T) {
	assert.Equal(t, 2000.0, Regimen{Dose: 1000, Interval: 12}.DailyDose())
	assert.Equal(t, 0.0, Regimen{Dose: 1000}.DailyDose())
}
