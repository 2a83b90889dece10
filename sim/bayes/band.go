package bayes

import (
	"math"
	"math/rand"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/pk-sim/pk-sim/sim"
)

// Default credible-band percentiles.
const (
	BandLow  = 2.5
	BandHigh = 97.5
)

// Band simulates every sample at times and returns the lo-th and hi-th
// percentiles of the concentrations at each time. Both slices are nil when
// samples is empty.
func Band(times []float64, events []sim.DoseEvent, samples []sim.Params, lo, hi float64) (lower, upper []float64) {
	if len(samples) == 0 {
		return nil, nil
	}
	curves := simulateAll(times, events, samples)

	lower = make([]float64, len(times))
	upper = make([]float64, len(times))
	column := make([]float64, len(samples))
	for j := range times {
		for i, c := range curves {
			column[i] = c[j]
		}
		lower[j] = sim.PercentileUnsorted(column, lo)
		upper[j] = sim.PercentileUnsorted(column, hi)
	}
	return lower, upper
}

// AUCInterval integrates each sample's curve over [start, end] on a dt-minute
// grid and returns the lo-th and hi-th percentiles of those AUCs.
func AUCInterval(events []sim.DoseEvent, samples []sim.Params, start, end, dtMinutes, lo, hi float64) (lower, upper float64) {
	if len(samples) == 0 || end <= start {
		return 0, 0
	}
	times := sim.TimeGrid(end, dtMinutes)
	curves := simulateAll(times, events, samples)
	aucs := make([]float64, len(curves))
	for i, c := range curves {
		aucs[i] = sim.AUC(times, c, start, end)
	}
	return sim.PercentileUnsorted(aucs, lo), sim.PercentileUnsorted(aucs, hi)
}

// CurveBand is a regimen curve at the MAP point with its credible band.
type CurveBand struct {
	Times  []float64 `json:"times_hr"`
	Median []float64 `json:"map_mg_l"`
	Lower  []float64 `json:"lower_mg_l"`
	Upper  []float64 `json:"upper_mg_l"`
}

// RegimenBand simulates r over the steady-state horizon at the MAP estimate and
// attaches the 2.5/97.5 band from est.Samples. Without samples the band equals
// the MAP curve.
func RegimenBand(r sim.Regimen, est *Estimate, dtMinutes float64) CurveBand {
	curve := sim.SimulateRegimen(est.Params(), r, dtMinutes)
	out := CurveBand{Times: curve.Times, Median: curve.Concentrations}
	events := r.Events(sim.SteadyStateHorizon, 0)
	out.Lower, out.Upper = Band(curve.Times, events, est.Samples, BandLow, BandHigh)
	if out.Lower == nil {
		out.Lower = append([]float64(nil), curve.Concentrations...)
		out.Upper = append([]float64(nil), curve.Concentrations...)
	}
	return out
}

// PriorBand draws n parameter sets around p with the given log-scale SDs and
// returns the regimen band they produce. It serves the case with no measured
// levels, where only population uncertainty is available.
func PriorBand(p sim.Params, r sim.Regimen, sigmaLogCL, sigmaLogV float64, n int, rng *rand.Rand, dtMinutes float64) CurveBand {
	samples := make([]sim.Params, n)
	for i := range samples {
		samples[i] = sim.Params{
			CL: p.CL * math.Exp(sigmaLogCL*rng.NormFloat64()),
			V:  p.V * math.Exp(sigmaLogV*rng.NormFloat64()),
		}
	}
	return RegimenBand(r, &Estimate{CL: p.CL, V: p.V, Samples: samples}, dtMinutes)
}

// simulateAll evaluates every sample at times in parallel. Output order follows
// samples.
func simulateAll(times []float64, events []sim.DoseEvent, samples []sim.Params) [][]float64 {
	curves := make([][]float64, len(samples))
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, s := range samples {
		i, s := i, s
		g.Go(func() error {
			curves[i] = sim.Concentrations(times, events, s.CL, s.V)
			return nil
		})
	}
	// closures never fail; the group only bounds concurrency
	_ = g.Wait()
	return curves
}
