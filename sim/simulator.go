package sim

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
)

// SteadyStateHorizon is the simulated span (hours) used as a steady-state stand-in
// when evaluating a repeated regimen.
const SteadyStateHorizon = 48.0

// DefaultStepMinutes is the sampling step used for simulated curves.
const DefaultStepMinutes = 10.0

// Curve is a sampled concentration-time profile (hours, mg/L).
type Curve struct {
	Times          []float64 `json:"t_hr"`
	Concentrations []float64 `json:"conc_mg_l"`
}

// EventConcentration returns the contribution of a single infusion at time t.
//
//	during infusion (0 <= u <= Tin): C = (R/CL)(1 - exp(-k u))
//	after infusion  (u > Tin):       C = (R/CL)(1 - exp(-k Tin)) exp(-k (u - Tin))
//
// with u = t - Start, k = CL/V and R = Dose/Tin. Zero before the event starts.
func EventConcentration(t float64, ev DoseEvent, cl, v float64) float64 {
	u := t - ev.Start
	if u < 0 {
		return 0
	}
	cl = clampParam(cl)
	v = clampParam(v)
	k := cl / v
	tin := clampParam(ev.Infusion)
	plateau := ev.Dose / tin / cl

	if u <= tin {
		return plateau * -math.Expm1(-k*u)
	}
	return plateau * -math.Expm1(-k*tin) * math.Exp(-k*(u-tin))
}

// Concentrations sums event contributions at every query time (linear superposition).
// The result has one entry per query time and is never negative.
func Concentrations(times []float64, events []DoseEvent, cl, v float64) []float64 {
	if cl < MinParam || v < MinParam {
		logrus.Debugf("clamping parameters cl=%g v=%g to floor %g", cl, v, MinParam)
	}
	out := make([]float64, len(times))
	for i, t := range times {
		total := 0.0
		for _, ev := range events {
			total += EventConcentration(t, ev, cl, v)
		}
		out[i] = total
	}
	return out
}

// TimeGrid returns 0, dt, 2dt, ... up to and including horizon (dt given in minutes).
func TimeGrid(horizon, dtMinutes float64) []float64 {
	if dtMinutes <= 0 {
		dtMinutes = DefaultStepMinutes
	}
	dt := dtMinutes / 60.0
	n := int(math.Floor(horizon/dt+1e-9)) + 1
	if n < 2 {
		return []float64{0}
	}
	last := float64(n-1) * dt
	return floats.Span(make([]float64, n), 0, last)
}

// Simulate evaluates the events on a uniform grid from 0 to horizon.
func Simulate(events []DoseEvent, p Params, horizon, dtMinutes float64) Curve {
	times := TimeGrid(horizon, dtMinutes)
	return Curve{
		Times:          times,
		Concentrations: Concentrations(times, events, p.CL, p.V),
	}
}

// SimulateRegimen simulates a repeated regimen over SteadyStateHorizon hours.
func SimulateRegimen(p Params, r Regimen, dtMinutes float64) Curve {
	events := r.Events(SteadyStateHorizon, 0)
	return Simulate(events, p, SteadyStateHorizon, dtMinutes)
}
