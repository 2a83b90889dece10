package regimen

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/trace"
)

// Safety thresholds reported alongside the chosen regimen.
const (
	SafetyMaxAUC    = 600.0
	SafetyMaxTrough = 20.0
	SafetyMaxPeak   = 40.0
)

// Rejection reasons recorded in the decision trace.
const (
	ReasonDailyCap = "daily_cap"
)

// Candidate is one enumerated regimen with its steady-state exposure.
type Candidate struct {
	Dose      float64 `json:"dose_mg"`
	Interval  float64 `json:"interval_hr"`
	Infusion  float64 `json:"infusion_hr"`
	AUC24     float64 `json:"auc24"`
	Peak      float64 `json:"peak_mg_l"`
	Trough    float64 `json:"trough_mg_l"`
	DailyDose float64 `json:"daily_dose_mg"`
}

// Regimen returns the dose/interval/infusion triple.
func (c Candidate) Regimen() sim.Regimen {
	return sim.Regimen{Dose: c.Dose, Interval: c.Interval, Infusion: c.Infusion}
}

// Request describes one search. Params overrides the population estimate
// derived from Patient when set.
type Request struct {
	Patient    Patient
	Params     *sim.Params
	Target     Target
	Guardrails Guardrails
	Trace      *trace.DecisionTrace
}

// Result is the ranked outcome of a search. Candidates is sorted best first.
type Result struct {
	Params     sim.Params  `json:"params"`
	Best       Candidate   `json:"best"`
	Candidates []Candidate `json:"candidates"`
	DailyCap   float64     `json:"daily_cap_mg"`
	Warnings   []string    `json:"warnings"`
}

// InfeasibleError reports that no candidate fits under the daily-dose cap.
type InfeasibleError struct {
	DailyCap float64
	// ClosestAUC is the AUC24 of the rejected candidate with the smallest daily dose.
	ClosestAUC float64
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("no regimen within guardrails: daily cap %.0f mg, closest AUC24 %.0f mg*h/L", e.DailyCap, e.ClosestAUC)
}

// ErrNoParams is returned when neither explicit parameters nor a usable
// patient weight is available.
var ErrNoParams = errors.New("regimen: no PK parameters and no patient weight")

type scored struct {
	c            Candidate
	outOfTarget  int
	distance     float64
	intervalRank int
}

func less(a, b scored) bool {
	switch {
	case a.outOfTarget != b.outOfTarget:
		return a.outOfTarget < b.outOfTarget
	case a.distance != b.distance:
		return a.distance < b.distance
	case a.intervalRank != b.intervalRank:
		return a.intervalRank < b.intervalRank
	case a.c.DailyDose != b.c.DailyDose:
		return a.c.DailyDose < b.c.DailyDose
	case a.c.Trough != b.c.Trough:
		return a.c.Trough < b.c.Trough
	case a.c.Interval != b.c.Interval:
		return a.c.Interval < b.c.Interval
	default:
		return a.c.Dose < b.c.Dose
	}
}

// Search enumerates every interval and dose step, drops candidates above the
// daily cap and ranks the rest by (out of target, distance, interval
// preference, daily dose, trough). The ordering is total, so the result does
// not depend on the order of Guardrails.Intervals.
func Search(req Request) (*Result, error) {
	params, err := resolveParams(req)
	if err != nil {
		return nil, err
	}
	g := req.Guardrails
	target := req.Target
	dailyCap := g.DailyCap(req.Patient.WeightKg)

	var admitted []scored
	closest := math.NaN()
	closestDaily := math.Inf(1)
	for _, interval := range g.Intervals {
		for _, dose := range g.Doses() {
			infusion := g.InfusionFor(dose)
			daily := dose * 24 / interval
			auc, peak, trough := SteadyState(params, dose, interval, infusion)
			rec := trace.CandidateRecord{
				Dose:      dose,
				Interval:  interval,
				Infusion:  infusion,
				DailyDose: daily,
				AUC24:     auc,
			}
			if daily > dailyCap {
				if daily < closestDaily {
					closestDaily, closest = daily, auc
				}
				rec.Reason = ReasonDailyCap
				req.Trace.RecordCandidate(rec)
				continue
			}
			rec.Admitted = true
			req.Trace.RecordCandidate(rec)

			c := Candidate{
				Dose:      dose,
				Interval:  interval,
				Infusion:  infusion,
				AUC24:     auc,
				Peak:      peak,
				Trough:    trough,
				DailyDose: daily,
			}
			out := 0
			if !target.Contains(auc) {
				out = 1
			}
			admitted = append(admitted, scored{
				c:            c,
				outOfTarget:  out,
				distance:     target.Distance(auc),
				intervalRank: g.IntervalRank(interval),
			})
		}
	}

	if len(admitted) == 0 {
		if math.IsNaN(closest) {
			closest = 0
		}
		return nil, &InfeasibleError{DailyCap: dailyCap, ClosestAUC: closest}
	}

	sort.SliceStable(admitted, func(i, j int) bool { return less(admitted[i], admitted[j]) })

	res := &Result{
		Params:     params,
		DailyCap:   dailyCap,
		Candidates: make([]Candidate, len(admitted)),
	}
	for i, s := range admitted {
		res.Candidates[i] = s.c
	}
	res.Best = res.Candidates[0]
	if !target.Contains(res.Best.AUC24) {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"unable to reach %.0f-%.0f mg*h/L within guardrails; closest is %.0f",
			target.Low, target.High, res.Best.AUC24))
	}
	res.Warnings = append(res.Warnings, SafetyWarnings(res.Best)...)

	logrus.Debugf("regimen search: %d admitted, best %.0f mg q%gh (AUC24 %.1f)",
		len(admitted), res.Best.Dose, res.Best.Interval, res.Best.AUC24)
	return res, nil
}

func resolveParams(req Request) (sim.Params, error) {
	if req.Params != nil {
		return *req.Params, nil
	}
	if req.Patient.WeightKg <= 0 {
		return sim.Params{}, ErrNoParams
	}
	return PopulationParams(req.Patient), nil
}

// SafetyWarnings flags exposures above the nephrotoxicity and peak limits.
func SafetyWarnings(c Candidate) []string {
	var w []string
	if c.AUC24 > SafetyMaxAUC {
		w = append(w, fmt.Sprintf("AUC24 %.0f mg*h/L exceeds %.0f; nephrotoxicity risk", c.AUC24, SafetyMaxAUC))
	}
	if c.Trough > SafetyMaxTrough {
		w = append(w, fmt.Sprintf("predicted trough %.1f mg/L exceeds %.0f; consider dose reduction", c.Trough, SafetyMaxTrough))
	}
	if c.Peak > SafetyMaxPeak {
		w = append(w, fmt.Sprintf("predicted peak %.1f mg/L exceeds %.0f; consider longer infusion", c.Peak, SafetyMaxPeak))
	}
	return w
}

// LoadingDose is perKg*weight rounded to the nearest dose increment and capped
// at MaxLoadingDose, or 0 when the infection is not serious.
func LoadingDose(weightKg float64, serious bool, g Guardrails) float64 {
	if !serious || weightKg <= 0 {
		return 0
	}
	inc := g.DoseIncrement
	if inc <= 0 {
		inc = 250
	}
	dose := math.Round(g.LoadingDosePerKg*weightKg/inc) * inc
	if g.MaxLoadingDose > 0 {
		dose = math.Min(dose, g.MaxLoadingDose)
	}
	return dose
}
