// Curve metrics: trapezoidal AUC, peak/trough over the last dosing window, and
// regimen evaluation from a simulated curve.

package sim

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
)

// AUC integrates the samples with start <= t <= end using the trapezoidal rule.
// Returns exactly 0 when end <= start or fewer than two samples fall in the window.
// times must be ascending.
func AUC(times, conc []float64, start, end float64) float64 {
	if end <= start {
		return 0
	}
	tt, cc := window(times, conc, start, end)
	if len(tt) < 2 {
		return 0
	}
	return integrate.Trapezoidal(tt, cc)
}

// PeakTrough reports the max and min concentration over the last interval-long
// window of the curve, [max(0, end-interval), end]. It is a steady-state stand-in
// when the curve is long enough. Returns (0, 0) when interval <= 0 or the window
// holds no samples.
func PeakTrough(times, conc []float64, interval float64) (peak, trough float64) {
	if interval <= 0 || len(times) == 0 {
		return 0, 0
	}
	end := floats.Max(times)
	start := math.Max(0, end-interval)
	_, cc := window(times, conc, start, end)
	if len(cc) == 0 {
		return 0, 0
	}
	return floats.Max(cc), floats.Min(cc)
}

// RegimenMetrics is the deterministic exposure summary of a repeated regimen.
type RegimenMetrics struct {
	AUC24      float64 `json:"auc24"`
	Peak       float64 `json:"peak"`
	Trough     float64 `json:"trough"`
	PeakTime   float64 `json:"peak_time_hr"`
	TroughTime float64 `json:"trough_time_hr"`
	Horizon    float64 `json:"horizon_hr"`
	StepMin    float64 `json:"dt_min"`
	Curve      Curve   `json:"-"`
}

// EvaluateRegimen simulates 0-48 h and reads AUC over 0-24 h from the curve.
// Peak and trough are interpolated at the end of the last infusion and at the
// end of the last interval respectively.
func EvaluateRegimen(p Params, r Regimen, dtMinutes float64) RegimenMetrics {
	if dtMinutes <= 0 {
		dtMinutes = DefaultStepMinutes
	}
	curve := SimulateRegimen(p, r, dtMinutes)
	horizon := curve.Times[len(curve.Times)-1]
	lastStart := math.Max(0, horizon-r.Interval)
	peakTime := lastStart + r.Infusion
	troughTime := lastStart + r.Interval

	return RegimenMetrics{
		AUC24:      AUC(curve.Times, curve.Concentrations, 0, 24),
		Peak:       Interpolate(curve.Times, curve.Concentrations, peakTime),
		Trough:     Interpolate(curve.Times, curve.Concentrations, troughTime),
		PeakTime:   peakTime,
		TroughTime: troughTime,
		Horizon:    horizon,
		StepMin:    dtMinutes,
		Curve:      curve,
	}
}

// Interpolate linearly interpolates the curve at t, holding the end values
// outside the sampled range. times must be ascending and non-empty.
func Interpolate(times, conc []float64, t float64) float64 {
	n := len(times)
	if t <= times[0] {
		return conc[0]
	}
	if t >= times[n-1] {
		return conc[n-1]
	}
	// bisect keeping times[lo] <= t < times[hi]
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if times[mid] <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	span := times[hi] - times[lo]
	if span == 0 {
		return conc[lo]
	}
	frac := (t - times[lo]) / span
	return conc[lo] + frac*(conc[hi]-conc[lo])
}

// windowTol absorbs grid drift so that a sample meant to sit on a window edge stays in.
const windowTol = 1e-9

func window(times, conc []float64, start, end float64) ([]float64, []float64) {
	var tt, cc []float64
	for i, t := range times {
		if t >= start-windowTol && t <= end+windowTol {
			tt = append(tt, t)
			cc = append(cc, conc[i])
		}
	}
	return tt, cc
}
