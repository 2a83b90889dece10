package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/casefile"
)

var (
	simulateDt      float64 // Grid step in minutes
	simulateHorizon float64 // Curve length in hours
)

var errNoDoses = errors.New("case has neither dose_history nor regimen")

// SimulateResult is the output of the simulate command.
type SimulateResult struct {
	Params         sim.Params          `json:"params"`
	HalfLife       float64             `json:"half_life_hr"`
	Times          []float64           `json:"times_hr"`
	Concentrations []float64           `json:"concentrations_mg_l"`
	Regimen        *sim.RegimenMetrics `json:"regimen,omitempty"`
}

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Simulate concentrations for a case's dose history or regimen",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := loadCase()
		if err != nil {
			return err
		}
		res, err := runSimulate(c, simulateHorizon, simulateDt)
		if err != nil {
			return err
		}
		return writeReport(cmd.OutOrStdout(), "simulate", 0, res, nil)
	},
}

// runSimulate evaluates the case at its query times, or on a uniform grid
// over [0, horizon] when none are given. A regimen also gets its 0-48 h metrics.
func runSimulate(c *casefile.Case, horizon, dtMinutes float64) (*SimulateResult, error) {
	events := c.Events(horizon)
	if len(events) == 0 {
		return nil, errNoDoses
	}
	p := c.PopulationParams()
	res := &SimulateResult{Params: p, HalfLife: p.HalfLife()}
	if len(c.QueryTimes) > 0 {
		res.Times = c.QueryTimes
		res.Concentrations = sim.Concentrations(c.QueryTimes, events, p.CL, p.V)
	} else {
		curve := sim.Simulate(events, p, horizon, dtMinutes)
		res.Times, res.Concentrations = curve.Times, curve.Concentrations
	}
	if c.Regimen != nil {
		m := sim.EvaluateRegimen(p, *c.Regimen, dtMinutes)
		res.Regimen = &m
	}
	return res, nil
}

func init() {
	addCaseFlag(simulateCmd)
	simulateCmd.Flags().Float64Var(&simulateDt, "dt", sim.DefaultStepMinutes, "Grid step in minutes")
	simulateCmd.Flags().Float64Var(&simulateHorizon, "horizon", sim.SteadyStateHorizon, "Curve length in hours")
}
