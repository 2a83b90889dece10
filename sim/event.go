package sim

import "math"

// MinParam is the floor applied to clearance, volume and infusion duration
// before they enter any division. Values at or below zero are clamped here
// rather than rejected so that a curve can always be produced.
const MinParam = 1e-6

// DoseEvent is a single zero-order infusion.
// Dose is in mg, Start and Infusion are in hours relative to the first dose.
type DoseEvent struct {
	Dose     float64 `json:"dose_mg" yaml:"dose_mg"`
	Start    float64 `json:"start_hr" yaml:"start_hr"`
	Infusion float64 `json:"infusion_hr" yaml:"infusion_hr"`
}

// Rate returns the infusion rate in mg/h.
func (e DoseEvent) Rate() float64 {
	return e.Dose / clampParam(e.Infusion)
}

// End returns the time the infusion stops.
func (e DoseEvent) End() float64 {
	return e.Start + clampParam(e.Infusion)
}

// Params holds one-compartment parameters: clearance (L/h) and volume (L).
type Params struct {
	CL float64 `json:"cl_l_hr" yaml:"cl_l_hr"`
	V  float64 `json:"v_l" yaml:"v_l"`
}

// Clamped returns a copy with CL and V floored at MinParam.
func (p Params) Clamped() Params {
	return Params{CL: clampParam(p.CL), V: clampParam(p.V)}
}

// K returns the elimination rate constant CL/V (1/h) after clamping.
func (p Params) K() float64 {
	c := p.Clamped()
	return c.CL / c.V
}

// HalfLife returns ln(2)/k in hours.
func (p Params) HalfLife() float64 {
	return math.Ln2 / p.K()
}

// Regimen is a fixed repeated dose: Dose mg every Interval hours infused over Infusion hours.
type Regimen struct {
	Dose     float64 `json:"dose_mg" yaml:"dose_mg"`
	Interval float64 `json:"interval_hr" yaml:"interval_hr"`
	Infusion float64 `json:"infusion_hr" yaml:"infusion_hr"`
}

// DailyDose returns the implied mg/day. Zero for a non-positive interval.
func (r Regimen) DailyDose() float64 {
	if r.Interval <= 0 {
		return 0
	}
	return r.Dose * 24.0 / r.Interval
}

// Events expands the regimen into repeated doses covering [start, horizon].
func (r Regimen) Events(horizon, start float64) []DoseEvent {
	return RepeatedEvents(r.Dose, r.Interval, r.Infusion, horizon, start)
}

// RepeatedEvents returns floor((horizon-start)/interval)+1 identical infusions
// starting at start and spaced interval apart. Returns nil when interval <= 0.
func RepeatedEvents(dose, interval, infusion, horizon, start float64) []DoseEvent {
	if interval <= 0 {
		return nil
	}
	n := int(math.Floor((horizon-start)/interval)) + 1
	if n <= 0 {
		return nil
	}
	events := make([]DoseEvent, n)
	for i := range events {
		events[i] = DoseEvent{
			Dose:     dose,
			Start:    start + float64(i)*interval,
			Infusion: infusion,
		}
	}
	return events
}

func clampParam(x float64) float64 {
	if math.IsNaN(x) || x < MinParam {
		return MinParam
	}
	return x
}
