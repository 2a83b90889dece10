package bayes

import (
	"math"

	"github.com/pk-sim/pk-sim/sim"
)

// Sample is one measured drug level.
type Sample struct {
	Time          float64 `json:"time_hr" yaml:"time_hr"`
	Concentration float64 `json:"concentration_mg_l" yaml:"concentration_mg_l"`
}

// ErrorModel is the Gaussian residual model with variance
// SigmaAdd^2 + (SigmaProp*pred)^2. SigmaProp = 0 gives a purely additive model.
type ErrorModel struct {
	SigmaAdd  float64
	SigmaProp float64
}

// Sigma returns the residual standard deviation at a predicted concentration,
// floored at 1e-6.
func (e ErrorModel) Sigma(pred float64) float64 {
	sp := e.SigmaProp * pred
	return math.Max(math.Sqrt(e.SigmaAdd*e.SigmaAdd+sp*sp), 1e-6)
}

// LogLikelihood returns sum over samples of log N(obs | pred, sigma(pred)^2).
func (e ErrorModel) LogLikelihood(obs, pred []float64) float64 {
	ll := 0.0
	for i := range obs {
		s := e.Sigma(pred[i])
		r := (obs[i] - pred[i]) / s
		ll += r*r + math.Log(2*math.Pi*s*s)
	}
	return -0.5 * ll
}

// Problem is everything the posterior depends on.
type Problem struct {
	Events  []sim.DoseEvent
	Samples []Sample
	PriorCL Prior
	PriorV  Prior
	Error   ErrorModel
}

// NegLogPosterior evaluates -(log prior + log likelihood) at (cl, v).
func (p Problem) NegLogPosterior(cl, v float64) float64 {
	return newObjective(p).nlp(cl, v)
}

// objective caches the sample vectors so repeated evaluation does not rebuild them.
type objective struct {
	problem Problem
	times   []float64
	obs     []float64
}

func newObjective(p Problem) *objective {
	o := &objective{
		problem: p,
		times:   make([]float64, len(p.Samples)),
		obs:     make([]float64, len(p.Samples)),
	}
	for i, s := range p.Samples {
		o.times[i] = s.Time
		o.obs[i] = s.Concentration
	}
	return o
}

func (o *objective) nlp(cl, v float64) float64 {
	lp := o.problem.PriorCL.LogPDF(cl) + o.problem.PriorV.LogPDF(v)
	pred := sim.Concentrations(o.times, o.problem.Events, cl, v)
	ll := o.problem.Error.LogLikelihood(o.obs, pred)
	return -(lp + ll)
}

// nlpLog evaluates the objective at (exp(theta0), exp(theta1)).
func (o *objective) nlpLog(theta0, theta1 float64) float64 {
	return o.nlp(math.Exp(theta0), math.Exp(theta1))
}
