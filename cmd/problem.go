package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/bayes"
	"github.com/pk-sim/pk-sim/sim/casefile"
	"github.com/pk-sim/pk-sim/sim/regimen"
)

var errNoCase = errors.New("--case is required")

func addCaseFlag(cmd *cobra.Command) {
	cmd.Flags().StringVar(&casePath, "case", "", "Case file (YAML) with patient, dose history, levels and regimen")
}

func loadCase() (*casefile.Case, error) {
	if casePath == "" {
		return nil, errNoCase
	}
	c, err := casefile.Load(casePath)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid case %s: %w", casePath, err)
	}
	return c, nil
}

// buildProblem assembles the estimation problem. Prior means left unset in the
// bundle come from the case's population estimate. Only recorded doses are
// fitted; the case regimen is never expanded into a history here.
func buildProblem(c *casefile.Case, b *sim.Bundle) (bayes.Problem, error) {
	pop := c.PopulationParams()
	priorCL, err := bayes.PriorFromConfig(b.Priors.CL, pop.CL)
	if err != nil {
		return bayes.Problem{}, fmt.Errorf("CL prior: %w", err)
	}
	priorV, err := bayes.PriorFromConfig(b.Priors.V, pop.V)
	if err != nil {
		return bayes.Problem{}, fmt.Errorf("V prior: %w", err)
	}
	return bayes.Problem{
		Events:  c.DoseHistory,
		Samples: c.Samples(),
		PriorCL: priorCL,
		PriorV:  priorV,
		Error: bayes.ErrorModel{
			SigmaAdd:  b.ErrorModel.SigmaAdd,
			SigmaProp: b.ErrorModel.SigmaProp,
		},
	}, nil
}

func targetFromBundle(b *sim.Bundle) regimen.Target {
	return regimen.Target{Low: b.Target.Low, High: b.Target.High}
}
