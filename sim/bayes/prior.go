// Package bayes estimates individual clearance and volume from observed
// concentrations by maximum a posteriori search, with a Laplace approximation
// for uncertainty.
//
// The posterior is searched in three stages: a coarse CL x V grid bounded by
// the priors, a zeroth-order coordinate refinement from the best cell, and a
// numerical Hessian in log-parameter space at the optimum. The Hessian's
// inverse is the Gaussian covariance used for draws and bands.
package bayes

import (
	"fmt"
	"math"

	"github.com/pk-sim/pk-sim/sim"
)

// Kind is the prior distribution family.
type Kind int

const (
	LogNormal Kind = iota
	Normal
)

func (k Kind) String() string {
	switch k {
	case Normal:
		return sim.PriorKindNormal
	default:
		return sim.PriorKindLogNormal
	}
}

// ParseKind maps a bundle kind name onto a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case sim.PriorKindLogNormal:
		return LogNormal, nil
	case sim.PriorKindNormal:
		return Normal, nil
	default:
		return LogNormal, fmt.Errorf("unknown prior kind %q", s)
	}
}

// Prior is the distribution over one positive parameter.
// For LogNormal, Variance is the variance of ln(x) and the location is ln(Mean),
// shifted by -Variance/2 when BiasCorrect is set so that E[x] equals Mean.
type Prior struct {
	Mean        float64
	Variance    float64
	Kind        Kind
	BiasCorrect bool
}

// Location returns mu: ln-space location for LogNormal, Mean for Normal.
func (p Prior) Location() float64 {
	if p.Kind == Normal {
		return p.Mean
	}
	mu := math.Log(math.Max(p.Mean, 1e-9))
	if p.BiasCorrect {
		mu -= p.Variance / 2
	}
	return mu
}

func (p Prior) scale() float64 {
	return math.Max(math.Sqrt(p.Variance), 1e-6)
}

// LogPDF returns the log density at x.
//
//	lognormal: -log(x*s*sqrt(2*pi)) - (ln x - mu)^2 / (2 s^2)
//	normal:    -log(s*sqrt(2*pi))   - (x - mu)^2 / (2 s^2)
func (p Prior) LogPDF(x float64) float64 {
	s := p.scale()
	mu := p.Location()
	if p.Kind == Normal {
		d := x - mu
		return -math.Log(s*math.Sqrt(2*math.Pi)) - d*d/(2*s*s)
	}
	x = math.Max(x, 1e-9)
	d := math.Log(x) - mu
	return -math.Log(x*s*math.Sqrt(2*math.Pi)) - d*d/(2*s*s)
}

// Bounds returns the grid span mu +/- n standard deviations, taken in log space
// for LogNormal and linear space for Normal. The lower bound never drops below
// sim.MinParam.
func (p Prior) Bounds(n float64) (lo, hi float64) {
	s := p.scale()
	mu := p.Location()
	if p.Kind == Normal {
		lo, hi = mu-n*s, mu+n*s
	} else {
		lo, hi = math.Exp(mu-n*s), math.Exp(mu+n*s)
	}
	if lo < sim.MinParam {
		lo = sim.MinParam
	}
	if hi <= lo {
		hi = lo * 2
	}
	return lo, hi
}

// LogVariance returns the variance of ln(x) implied by the prior. For Normal
// priors it is the moment-matched lognormal value ln(1 + var/mean^2).
func (p Prior) LogVariance() float64 {
	if p.Kind == Normal {
		m := math.Max(p.Mean, 1e-9)
		return math.Log1p(p.Variance / (m * m))
	}
	return p.Variance
}

// SD returns the natural-scale standard deviation of the prior.
func (p Prior) SD() float64 {
	if p.Kind == Normal {
		return math.Sqrt(p.Variance)
	}
	mu := p.Location()
	return math.Exp(mu+p.Variance/2) * math.Sqrt(math.Expm1(p.Variance))
}

// PriorFromConfig builds a Prior from a bundle entry. fallbackMean is used when
// the entry leaves the mean unset.
func PriorFromConfig(c sim.PriorConfig, fallbackMean float64) (Prior, error) {
	kind, err := ParseKind(c.Kind)
	if err != nil {
		return Prior{}, err
	}
	mean := fallbackMean
	if c.Mean != nil {
		mean = *c.Mean
	}
	if c.Variance <= 0 {
		return Prior{}, fmt.Errorf("prior variance must be positive, got %g", c.Variance)
	}
	if kind == LogNormal && mean <= 0 {
		return Prior{}, fmt.Errorf("lognormal prior mean must be positive, got %g", mean)
	}
	return Prior{Mean: mean, Variance: c.Variance, Kind: kind, BiasCorrect: c.BiasCorrect}, nil
}
