package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/bayes"
	"github.com/pk-sim/pk-sim/sim/casefile"
	"github.com/pk-sim/pk-sim/sim/regimen"
	"github.com/pk-sim/pk-sim/sim/trace"
)

var (
	recommendUseFit bool    // Search with the MAP estimate instead of population parameters
	recommendDt     float64 // Grid step for the simulated check of the best regimen
	recommendTop    int     // Candidates to report; 0 reports all
)

// RecommendResult is the output of the recommend command.
type RecommendResult struct {
	Search      *regimen.Result    `json:"search"`
	LoadingDose float64            `json:"loading_dose_mg"`
	Simulated   sim.RegimenMetrics `json:"simulated_best"`
	Fit         *bayes.Estimate    `json:"fit,omitempty"`
}

var recommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Search dose/interval/infusion candidates against the AUC target",
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
		res, err := runRecommend(c, b, recommendUseFit, recommendDt, recommendTop, dt)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), "recommend", b.Estimator.Seed, res, dt)
	},
}

func runRecommend(c *casefile.Case, b *sim.Bundle, useFit bool, dtMinutes float64, top int, dt *trace.DecisionTrace) (*RecommendResult, error) {
	out := &RecommendResult{}
	req := regimen.Request{
		Patient:    c.RegimenPatient(),
		Params:     c.Params,
		Target:     targetFromBundle(b),
		Guardrails: regimen.GuardrailsFromConfig(b.Guardrails),
		Trace:      dt,
	}
	if useFit {
		p, err := buildProblem(c, b)
		if err != nil {
			return nil, err
		}
		opts := bayes.OptionsFromConfig(b.Estimator)
		opts.SampleCount = 0
		opts.Trace = dt
		est, err := bayes.Fit(p, opts)
		if err != nil {
			return nil, fmt.Errorf("fit: %w", err)
		}
		params := est.Params()
		req.Params = &params
		out.Fit = est
	}

	res, err := regimen.Search(req)
	if err != nil {
		return nil, err
	}
	if top > 0 && len(res.Candidates) > top {
		res.Candidates = res.Candidates[:top]
	}
	out.Search = res
	out.LoadingDose = regimen.LoadingDose(c.Patient.WeightKg, c.Patient.Serious, req.Guardrails)
	out.Simulated = sim.EvaluateRegimen(res.Params, res.Best.Regimen(), dtMinutes)
	return out, nil
}

func init() {
	addCaseFlag(recommendCmd)
	recommendCmd.Flags().BoolVar(&recommendUseFit, "use-fit", false, "Fit the case levels first and search with the MAP estimate")
	recommendCmd.Flags().Float64Var(&recommendDt, "dt", sim.DefaultStepMinutes, "Grid step in minutes for the simulated check")
	recommendCmd.Flags().IntVar(&recommendTop, "top", 10, "Number of ranked candidates to report (0 for all)")
}
