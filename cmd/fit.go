package cmd

import (
	"errors"
	"fmt"
	"math"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/bayes"
	"github.com/pk-sim/pk-sim/sim/casefile"
	"github.com/pk-sim/pk-sim/sim/trace"
)

var (
	fitSamples        int     // Posterior draws; -1 keeps the bundle value
	fitBand           bool    // Attach a regimen credible band
	fitAllowPriorOnly bool    // Return the prior when the case has no levels
	fitDt             float64 // Band grid step in minutes
)

var errBandNeedsRegimen = errors.New("--band requires a regimen in the case file")

// FitResult is the output of the fit command.
type FitResult struct {
	Estimate      *bayes.Estimate  `json:"estimate"`
	Band          *bayes.CurveBand `json:"band,omitempty"`
	AUC24Interval []float64        `json:"auc24_interval,omitempty"`
}

type fitSettings struct {
	samples        int
	band           bool
	allowPriorOnly bool
	dtMinutes      float64
}

var fitCmd = &cobra.Command{
	Use:   "fit",
	Short: "Estimate individual CL and V from measured levels",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundle(cmd)
		if err != nil {
			return err
		}
		c, err := loadCase()
		if err != nil {
			return err
		}
		dt := newTrace()
		res, err := runFit(c, b, fitSettings{
			samples:        fitSamples,
			band:           fitBand,
			allowPriorOnly: fitAllowPriorOnly,
			dtMinutes:      fitDt,
		}, dt)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), "fit", b.Estimator.Seed, res, dt)
	},
}

func runFit(c *casefile.Case, b *sim.Bundle, s fitSettings, dt *trace.DecisionTrace) (*FitResult, error) {
	p, err := buildProblem(c, b)
	if err != nil {
		return nil, err
	}
	rngs := sim.NewPartitionedRNG(sim.NewSimulationKey(b.Estimator.Seed))
	opts := bayes.OptionsFromConfig(b.Estimator)
	opts.RNG = rngs.ForSubsystem(sim.SubsystemPosterior)
	opts.AllowPriorOnly = s.allowPriorOnly
	opts.Trace = dt
	if s.samples >= 0 {
		opts.SampleCount = s.samples
	}

	est, err := bayes.Fit(p, opts)
	if err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	logrus.Infof("MAP CL=%.3f L/h (sd %.3f), V=%.2f L (sd %.2f)", est.CL, est.CLSD, est.V, est.VSD)

	res := &FitResult{Estimate: est}
	if !s.band {
		return res, nil
	}
	if c.Regimen == nil {
		return nil, errBandNeedsRegimen
	}
	r := *c.Regimen
	if est.PriorOnly {
		band := bayes.PriorBand(est.Params(), r,
			math.Sqrt(est.Covariance[0][0]), math.Sqrt(est.Covariance[1][1]),
			opts.SampleCount, rngs.ForSubsystem(sim.SubsystemBand), s.dtMinutes)
		res.Band = &band
		return res, nil
	}
	band := bayes.RegimenBand(r, est, s.dtMinutes)
	res.Band = &band
	if len(est.Samples) > 0 {
		lo, hi := bayes.AUCInterval(r.Events(sim.SteadyStateHorizon, 0), est.Samples, 0, 24, s.dtMinutes, bayes.BandLow, bayes.BandHigh)
		res.AUC24Interval = []float64{lo, hi}
	}
	return res, nil
}

func init() {
	addCaseFlag(fitCmd)
	fitCmd.Flags().IntVar(&fitSamples, "samples", -1, "Posterior draws (-1 uses the bundle's sample_count)")
	fitCmd.Flags().BoolVar(&fitBand, "band", false, "Attach the 2.5-97.5% concentration band for the case regimen")
	fitCmd.Flags().BoolVar(&fitAllowPriorOnly, "allow-prior-only", false, "Return the prior instead of failing when the case has no levels")
	fitCmd.Flags().Float64Var(&fitDt, "dt", sim.DefaultStepMinutes, "Band grid step in minutes")
}
