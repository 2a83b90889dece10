package regimen

import (
	"math"

	"github.com/pk-sim/pk-sim/sim"
)

// minTime floors interval and infusion durations in the closed forms.
const minTime = 0.1

// Patient carries the covariates used by the population heuristic.
type Patient struct {
	WeightKg float64 `json:"weight_kg"`
	CrCl     float64 `json:"crcl_ml_min"`
}

// PopulationParams estimates CL and V from creatinine clearance and weight:
// ke = 0.00083*CrCl + 0.0044 per hour, V = 0.7 L/kg, CL = ke*V.
func PopulationParams(p Patient) sim.Params {
	ke := 0.00083*math.Max(p.CrCl, 0) + 0.0044
	v := 0.7 * math.Max(p.WeightKg, 0)
	return sim.Params{CL: ke * v, V: v}
}

// SteadyState returns AUC over 24 h, peak and trough for a repeated infusion at
// steady state:
//
//	peak   = (R/CL)(1-e^{-k Tin}) / (1-e^{-k tau})
//	trough = peak * e^{-k(tau-Tin)}
//	auc24  = dose * (24/tau) / CL
func SteadyState(p sim.Params, dose, interval, infusion float64) (auc24, peak, trough float64) {
	p = p.Clamped()
	tau := math.Max(interval, minTime)
	tin := math.Min(math.Max(infusion, minTime), tau)
	k := p.K()

	rate := dose / tin
	accumulation := -math.Expm1(-k * tau)
	peak = (rate / p.CL) * -math.Expm1(-k*tin) / accumulation
	trough = peak * math.Exp(-k*(tau-tin))
	auc24 = dose * (24 / tau) / p.CL
	return auc24, peak, trough
}
