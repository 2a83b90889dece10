package bayes

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pk-sim/pk-sim/sim"
)

func TestPrior_LogPDF_MatchesClosedForm(t *testing.T) {
	tests := []struct {
		name  string
		prior Prior
		x     float64
		want  float64
	}{
		{
			name:  "lognormal at mean",
			prior: Prior{Mean: 4, Variance: 0.0625, Kind: LogNormal},
			x:     4,
			want:  -math.Log(4 * 0.25 * math.Sqrt(2*math.Pi)),
		},
		{
			name:  "normal one sd off",
			prior: Prior{Mean: 50, Variance: 25, Kind: Normal},
			x:     55,
			want:  -math.Log(5*math.Sqrt(2*math.Pi)) - 0.5,
		},
		{
			name:  "bias corrected lognormal at location",
			prior: Prior{Mean: 4, Variance: 0.0625, Kind: LogNormal, BiasCorrect: true},
			x:     math.Exp(math.Log(4) - 0.03125),
			want:  -math.Log(math.Exp(math.Log(4)-0.03125) * 0.25 * math.Sqrt(2*math.Pi)),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, tt.prior.LogPDF(tt.x), 1e-12)
		})
	}
}

func TestPrior_Bounds(t *testing.T) {
	ln := Prior{Mean: 4, Variance: 0.0625, Kind: LogNormal}
	lo, hi := ln.Bounds(3)
	assert.InDelta(t, 4*math.Exp(-0.75), lo, 1e-12)
	assert.InDelta(t, 4*math.Exp(0.75), hi, 1e-12)

	// GIVEN a wide normal prior whose lower tail crosses zero
	n := Prior{Mean: 4, Variance: 9, Kind: Normal}
	lo, hi = n.Bounds(3)

	// THEN the lower bound is floored at the minimum parameter
	assert.Equal(t, sim.MinParam, lo)
	assert.InDelta(t, 13.0, hi, 1e-12)
}

func TestPrior_LogVarianceAndSD(t *testing.T) {
	ln := Prior{Mean: 4, Variance: 0.0625, Kind: LogNormal}
	assert.Equal(t, 0.0625, ln.LogVariance())
	assert.InDelta(t, 4*math.Exp(0.03125)*math.Sqrt(math.Expm1(0.0625)), ln.SD(), 1e-12)

	n := Prior{Mean: 50, Variance: 100, Kind: Normal}
	assert.InDelta(t, math.Log1p(100.0/2500.0), n.LogVariance(), 1e-12)
	assert.InDelta(t, 10.0, n.SD(), 1e-12)
}

func TestPriorFromConfig(t *testing.T) {
	mean := 6.0
	tests := []struct {
		name     string
		cfg      sim.PriorConfig
		fallback float64
		want     Prior
		wantErr  bool
	}{
		{
			name:     "fallback mean",
			cfg:      sim.PriorConfig{Kind: "lognormal", Variance: 0.1},
			fallback: 4,
			want:     Prior{Mean: 4, Variance: 0.1, Kind: LogNormal},
		},
		{
			name:     "explicit mean wins",
			cfg:      sim.PriorConfig{Kind: "normal", Mean: &mean, Variance: 1, BiasCorrect: true},
			fallback: 4,
			want:     Prior{Mean: 6, Variance: 1, Kind: Normal, BiasCorrect: true},
		},
		{name: "unknown kind", cfg: sim.PriorConfig{Kind: "gamma", Variance: 1}, fallback: 4, wantErr: true},
		{name: "zero variance", cfg: sim.PriorConfig{Kind: "normal"}, fallback: 4, wantErr: true},
		{name: "lognormal non-positive mean", cfg: sim.PriorConfig{Kind: "lognormal", Variance: 1}, fallback: 0, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := PriorFromConfig(tt.cfg, tt.fallback)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("normal")
	require.NoError(t, err)
	assert.Equal(t, Normal, k)
	assert.Equal(t, "normal", k.String())
	assert.Equal(t, "lognormal", LogNormal.String())

	_, err = ParseKind("Normal")
	assert.Error(t, err)
}

func TestErrorModel_Sigma(t *testing.T) {
	e := ErrorModel{SigmaAdd: 1.5, SigmaProp: 0.15}
	assert.InDelta(t, 1.5, e.Sigma(0), 1e-12)
	assert.InDelta(t, math.Sqrt(1.5*1.5+3*3), e.Sigma(20), 1e-12)

	// pure additive and the floor
	assert.Equal(t, 2.0, ErrorModel{SigmaAdd: 2}.Sigma(100))
	assert.Equal(t, 1e-6, ErrorModel{}.Sigma(0))
}

func TestErrorModel_LogLikelihood_PerfectFit(t *testing.T) {
	e := ErrorModel{SigmaAdd: 1}
	obs := []float64{10, 20}
	got := e.LogLikelihood(obs, obs)
	assert.InDelta(t, -math.Log(2*math.Pi), got, 1e-12)
	assert.Less(t, e.LogLikelihood(obs, []float64{11, 21}), got)
}
