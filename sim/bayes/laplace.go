package bayes

import (
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"

	"github.com/pk-sim/pk-sim/sim"
)

const (
	// hessianStep is the finite-difference step in log-parameter space.
	hessianStep = 1e-3
	// maxCondition rejects Hessians too ill-conditioned to invert reliably.
	maxCondition = 1e12
)

// logHessian returns the Hessian of the objective in (ln CL, ln V) at the given
// point using central second differences on the diagonal and the four-point
// stencil for the cross term.
func logHessian(obj *objective, cl, v float64) [2][2]float64 {
	t0, t1 := math.Log(cl), math.Log(v)
	e := hessianStep
	f0 := obj.nlpLog(t0, t1)

	h00 := (obj.nlpLog(t0+e, t1) - 2*f0 + obj.nlpLog(t0-e, t1)) / (e * e)
	h11 := (obj.nlpLog(t0, t1+e) - 2*f0 + obj.nlpLog(t0, t1-e)) / (e * e)
	fpp := obj.nlpLog(t0+e, t1+e)
	fpm := obj.nlpLog(t0+e, t1-e)
	fmp := obj.nlpLog(t0-e, t1+e)
	fmm := obj.nlpLog(t0-e, t1-e)
	h01 := (fpp - fpm - fmp + fmm) / (4 * e * e)

	return [2][2]float64{{h00, h01}, {h01, h11}}
}

// laplaceCovariance inverts the log-space Hessian at the MAP point. It reports
// false when the Hessian is non-finite, not positive definite or too
// ill-conditioned.
func laplaceCovariance(obj *objective, cl, v float64) ([2][2]float64, bool) {
	h := logHessian(obj, cl, v)
	return invertSPD(h)
}

func invertSPD(h [2][2]float64) ([2][2]float64, bool) {
	for _, row := range h {
		for _, x := range row {
			if math.IsNaN(x) || math.IsInf(x, 0) {
				return [2][2]float64{}, false
			}
		}
	}
	sym := mat.NewSymDense(2, []float64{h[0][0], h[0][1], h[1][0], h[1][1]})
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return [2][2]float64{}, false
	}
	if chol.Cond() > maxCondition {
		return [2][2]float64{}, false
	}
	var inv mat.SymDense
	if err := chol.InverseTo(&inv); err != nil {
		return [2][2]float64{}, false
	}
	cov := [2][2]float64{
		{inv.At(0, 0), inv.At(0, 1)},
		{inv.At(1, 0), inv.At(1, 1)},
	}
	if cov[0][0] <= 0 || cov[1][1] <= 0 {
		return [2][2]float64{}, false
	}
	return cov, true
}

// drawSamples draws n points from N([ln cl, ln v], cov) and exponentiates them.
func drawSamples(cl, v float64, cov [2][2]float64, n int, rng *rand.Rand) []sim.Params {
	l := choleskyLower(cov)
	mu0, mu1 := math.Log(cl), math.Log(v)

	out := make([]sim.Params, n)
	for i := range out {
		z0 := rng.NormFloat64()
		z1 := rng.NormFloat64()
		out[i] = sim.Params{
			CL: math.Exp(mu0 + l[0][0]*z0),
			V:  math.Exp(mu1 + l[1][0]*z0 + l[1][1]*z1),
		}
	}
	return out
}

// choleskyLower returns L with L*L^T = cov, falling back to the square root of
// the diagonal when cov cannot be factorized.
func choleskyLower(cov [2][2]float64) [2][2]float64 {
	sym := mat.NewSymDense(2, []float64{cov[0][0], cov[0][1], cov[1][0], cov[1][1]})
	var chol mat.Cholesky
	if ok := chol.Factorize(sym); !ok {
		return [2][2]float64{
			{math.Sqrt(math.Max(cov[0][0], 0)), 0},
			{0, math.Sqrt(math.Max(cov[1][1], 0))},
		}
	}
	var l mat.TriDense
	chol.LTo(&l)
	return [2][2]float64{
		{l.At(0, 0), 0},
		{l.At(1, 0), l.At(1, 1)},
	}
}
