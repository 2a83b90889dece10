package bayes

import (
	"math"
	"math/rand"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/trace"
)

// gridSpanSD is the half-width of the coarse grid in prior standard deviations.
const gridSpanSD = 3.0

// Options tunes the estimator. Zero values select the defaults noted per field.
type Options struct {
	GridPoints    int     // per axis, default 48
	MaxIterations int     // refinement cap, default 30
	Shrink        float64 // step factor when no neighbour improves, default 0.6
	MinStepCL     float64 // stop threshold for the CL step, default 0.05
	MinStepV      float64 // stop threshold for the V step, default 0.5

	// SampleCount is the number of Laplace posterior draws; 0 skips sampling.
	SampleCount int
	// RNG drives the posterior draws. Nil uses the posterior stream of sim.DefaultSeed.
	RNG *rand.Rand

	// AllowPriorOnly returns the prior instead of ErrNoSamples when no levels are given.
	AllowPriorOnly bool

	// Workers bounds the goroutines used for the grid scan, default GOMAXPROCS.
	Workers int

	Trace *trace.DecisionTrace
}

// OptionsFromConfig maps bundle estimator settings onto Options.
func OptionsFromConfig(c sim.EstimatorConfig) Options {
	return Options{
		GridPoints:    c.GridPoints,
		MaxIterations: c.MaxIterations,
		Shrink:        c.Shrink,
		SampleCount:   c.SampleCount,
		RNG:           sim.NewPartitionedRNG(sim.NewSimulationKey(c.Seed)).ForSubsystem(sim.SubsystemPosterior),
	}
}

func (o Options) withDefaults() Options {
	if o.GridPoints < 2 {
		o.GridPoints = 48
	}
	if o.MaxIterations <= 0 {
		o.MaxIterations = 30
	}
	if o.Shrink <= 0 || o.Shrink >= 1 {
		o.Shrink = 0.6
	}
	if o.MinStepCL <= 0 {
		o.MinStepCL = 0.05
	}
	if o.MinStepV <= 0 {
		o.MinStepV = 0.5
	}
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.RNG == nil && o.SampleCount > 0 {
		o.RNG = sim.NewPartitionedRNG(sim.NewSimulationKey(sim.DefaultSeed)).ForSubsystem(sim.SubsystemPosterior)
	}
	return o
}

// Estimate is the posterior summary of one fit.
type Estimate struct {
	CL   float64 `json:"cl_l_hr"`
	V    float64 `json:"v_l"`
	CLSD float64 `json:"cl_sd"`
	VSD  float64 `json:"v_sd"`

	// Covariance is the Laplace covariance of (ln CL, ln V).
	Covariance [2][2]float64 `json:"log_covariance"`
	// Degenerate is set when the Hessian could not be inverted and the prior
	// log-variances were used instead.
	Degenerate bool `json:"degenerate"`

	Samples []sim.Params `json:"samples,omitempty"`

	NegLogPosterior float64   `json:"neg_log_posterior"`
	Iterations      int       `json:"iterations"`
	Predictions     []float64 `json:"predictions,omitempty"`
	RMSE            float64   `json:"rmse_mg_l"`
	PriorOnly       bool      `json:"prior_only"`
}

// Params returns the MAP point.
func (e *Estimate) Params() sim.Params {
	return sim.Params{CL: e.CL, V: e.V}
}

// Fit runs grid scan, coordinate refinement and the Laplace approximation.
// It is a pure function of p and opts (and the state of opts.RNG).
func Fit(p Problem, opts Options) (*Estimate, error) {
	if len(p.Events) == 0 {
		return nil, ErrNoDoseHistory
	}
	if len(p.Samples) == 0 {
		if opts.AllowPriorOnly {
			logrus.Debug("no levels supplied; returning prior")
			return priorEstimate(p), nil
		}
		return nil, ErrNoSamples
	}
	opts = opts.withDefaults()
	obj := newObjective(p)

	clLo, clHi := p.PriorCL.Bounds(gridSpanSD)
	vLo, vHi := p.PriorV.Bounds(gridSpanSD)
	start := gridScan(obj, clLo, clHi, vLo, vHi, opts.GridPoints, opts.Workers)
	if math.IsInf(start.nlp, 1) {
		// no finite cell; refine from the prior centre
		start = gridPoint{cl: p.PriorCL.Mean, v: p.PriorV.Mean}
		start.nlp = obj.nlp(start.cl, start.v)
	}
	logrus.Debugf("grid minimum cl=%.4g v=%.4g nlp=%.6g", start.cl, start.v, start.nlp)

	best, iters := refine(obj, start, p.PriorCL.Mean, p.PriorV.Mean, opts)
	logrus.Debugf("refined to cl=%.4g v=%.4g nlp=%.6g after %d iterations", best.cl, best.v, best.nlp, iters)

	est := &Estimate{
		CL:              best.cl,
		V:               best.v,
		NegLogPosterior: best.nlp,
		Iterations:      iters,
	}

	cov, ok := laplaceCovariance(obj, best.cl, best.v)
	if !ok {
		logrus.Warnf("hessian at MAP (cl=%.4g, v=%.4g) is not invertible; using prior log-variances", best.cl, best.v)
		cov = [2][2]float64{
			{p.PriorCL.LogVariance(), 0},
			{0, p.PriorV.LogVariance()},
		}
		est.Degenerate = true
	}
	est.Covariance = cov
	est.CLSD = best.cl * math.Sqrt(cov[0][0])
	est.VSD = best.v * math.Sqrt(cov[1][1])

	if opts.SampleCount > 0 {
		est.Samples = drawSamples(best.cl, best.v, cov, opts.SampleCount, opts.RNG)
	}

	est.Predictions = sim.Concentrations(obj.times, p.Events, best.cl, best.v)
	est.RMSE = sim.RMSE(obj.obs, est.Predictions)
	return est, nil
}

func priorEstimate(p Problem) *Estimate {
	return &Estimate{
		CL:   p.PriorCL.Mean,
		V:    p.PriorV.Mean,
		CLSD: p.PriorCL.SD(),
		VSD:  p.PriorV.SD(),
		Covariance: [2][2]float64{
			{p.PriorCL.LogVariance(), 0},
			{0, p.PriorV.LogVariance()},
		},
		PriorOnly: true,
	}
}

type gridPoint struct {
	cl, v, nlp float64
}

// gridScan evaluates the objective on an n x n grid. Rows (fixed CL) are
// evaluated concurrently; the reduction walks rows in order and keeps the first
// strict minimum, so the result equals a sequential row-major scan.
func gridScan(obj *objective, clLo, clHi, vLo, vHi float64, n, workers int) gridPoint {
	clGrid := floats.Span(make([]float64, n), clLo, clHi)
	vGrid := floats.Span(make([]float64, n), vLo, vHi)
	rows := make([]gridPoint, n)

	var g errgroup.Group
	g.SetLimit(workers)
	for i := range clGrid {
		i := i
		g.Go(func() error {
			best := gridPoint{nlp: math.Inf(1)}
			cl := clGrid[i]
			for _, v := range vGrid {
				if val := obj.nlp(cl, v); val < best.nlp {
					best = gridPoint{cl: cl, v: v, nlp: val}
				}
			}
			rows[i] = best
			return nil
		})
	}
	// closures never fail; the group only bounds concurrency
	_ = g.Wait()

	best := gridPoint{nlp: math.Inf(1)}
	for _, r := range rows {
		if r.nlp < best.nlp {
			best = r
		}
	}
	return best
}

// refine runs coordinate descent from start. Each iteration tests the four
// neighbours of the iteration's start point in order +CL, -CL, +V, -V and moves
// to any that beats the best value seen so far. Without improvement both steps
// shrink; the loop ends once both steps are below their thresholds.
func refine(obj *objective, start gridPoint, meanCL, meanV float64, opts Options) (gridPoint, int) {
	stepCL := math.Max(meanCL*0.05, 0.2)
	stepV := math.Max(meanV*0.05, 2.0)
	cur := start

	iters := 0
	for iters < opts.MaxIterations {
		iters++
		cl, v := cur.cl, cur.v
		neighbours := [4][2]float64{
			{cl + stepCL, v},
			{math.Max(sim.MinParam, cl-stepCL), v},
			{cl, v + stepV},
			{cl, math.Max(sim.MinParam, v-stepV)},
		}
		improved := false
		for _, nb := range neighbours {
			if val := obj.nlp(nb[0], nb[1]); val < cur.nlp {
				cur = gridPoint{cl: nb[0], v: nb[1], nlp: val}
				improved = true
			}
		}

		opts.Trace.RecordRefinement(trace.RefinementRecord{
			Iteration: iters - 1,
			CL:        cur.cl,
			V:         cur.v,
			StepCL:    stepCL,
			StepV:     stepV,
			NLP:       cur.nlp,
			Improved:  improved,
		})

		if !improved {
			stepCL *= opts.Shrink
			stepV *= opts.Shrink
			if stepCL < opts.MinStepCL && stepV < opts.MinStepV {
				break
			}
		}
	}
	return cur, iters
}
