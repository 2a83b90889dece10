package regimen

import (
	"math"
	"sort"

	"github.com/pk-sim/pk-sim/sim"
)

// InfusionStep maps doses at or above MinDose to an infusion duration in hours.
type InfusionStep struct {
	MinDose float64
	Hours   float64
}

// Guardrails are the hard limits the search never crosses.
type Guardrails struct {
	MaxSingleDose     float64
	MaxDailyDose      float64
	MaxDailyDosePerKg float64 // ignored when <= 0
	DoseIncrement     float64

	Intervals []float64
	// IntervalPreference lists intervals from most to least preferred.
	// Intervals not listed rank after all listed ones.
	IntervalPreference []float64

	InfusionSteps   []InfusionStep
	DefaultInfusion float64

	LoadingDosePerKg float64
	MaxLoadingDose   float64
}

// DefaultGuardrails returns the reference limits.
func DefaultGuardrails() Guardrails {
	return GuardrailsFromConfig(sim.DefaultBundle().Guardrails)
}

// GuardrailsFromConfig converts the bundle representation.
func GuardrailsFromConfig(c sim.GuardrailsConfig) Guardrails {
	g := Guardrails{
		MaxSingleDose:      c.MaxSingleDose,
		MaxDailyDose:       c.MaxDailyDose,
		MaxDailyDosePerKg:  c.MaxDailyDosePerKg,
		DoseIncrement:      c.DoseIncrement,
		Intervals:          append([]float64(nil), c.Intervals...),
		IntervalPreference: append([]float64(nil), c.IntervalPreference...),
		DefaultInfusion:    c.DefaultInfusion,
		LoadingDosePerKg:   c.LoadingDosePerKg,
		MaxLoadingDose:     c.MaxLoadingDose,
	}
	for _, s := range c.InfusionSteps {
		g.InfusionSteps = append(g.InfusionSteps, InfusionStep{MinDose: s.MinDose, Hours: s.Hours})
	}
	return g
}

// InfusionFor returns the infusion duration for dose: the step with the
// largest MinDose not above dose, else DefaultInfusion.
func (g Guardrails) InfusionFor(dose float64) float64 {
	steps := append([]InfusionStep(nil), g.InfusionSteps...)
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].MinDose > steps[j].MinDose })
	for _, s := range steps {
		if dose >= s.MinDose {
			return s.Hours
		}
	}
	return g.DefaultInfusion
}

// DailyCap is min(MaxDailyDose, MaxDailyDosePerKg*weight). The per-kg term
// applies only when both it and the weight are positive.
func (g Guardrails) DailyCap(weightKg float64) float64 {
	limit := g.MaxDailyDose
	if g.MaxDailyDosePerKg > 0 && weightKg > 0 {
		limit = math.Min(limit, g.MaxDailyDosePerKg*weightKg)
	}
	return limit
}

// IntervalRank is the position of interval in IntervalPreference, or
// len(IntervalPreference) when it is not listed.
func (g Guardrails) IntervalRank(interval float64) int {
	for i, p := range g.IntervalPreference {
		if p == interval {
			return i
		}
	}
	return len(g.IntervalPreference)
}

// Doses enumerates increment, 2*increment, ... up to MaxSingleDose.
func (g Guardrails) Doses() []float64 {
	if g.DoseIncrement <= 0 {
		return nil
	}
	n := int(math.Floor(g.MaxSingleDose/g.DoseIncrement + 1e-9))
	doses := make([]float64, 0, n)
	for i := 1; i <= n; i++ {
		doses = append(doses, float64(i)*g.DoseIncrement)
	}
	return doses
}

// Target is the AUC24 window in mg*h/L.
type Target struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// DefaultTarget is 400-600 mg*h/L.
func DefaultTarget() Target {
	return Target{Low: 400, High: 600}
}

func (t Target) Mid() float64 { return (t.Low + t.High) / 2 }

func (t Target) Contains(auc float64) bool {
	return auc >= t.Low && auc <= t.High
}

// Distance is |auc-mid| inside the window and the distance to the nearer
// bound outside it.
func (t Target) Distance(auc float64) float64 {
	if t.Contains(auc) {
		return math.Abs(auc - t.Mid())
	}
	return math.Min(math.Abs(auc-t.Low), math.Abs(auc-t.High))
}
