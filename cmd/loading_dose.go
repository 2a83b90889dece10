package cmd

import (
	"github.com/spf13/cobra"

	"github.com/pk-sim/pk-sim/sim/regimen"
)

var (
	loadingWeight  float64
	loadingSerious bool
)

// LoadingDoseResult is the output of the loading-dose command.
type LoadingDoseResult struct {
	WeightKg    float64 `json:"weight_kg"`
	Serious     bool    `json:"serious"`
	LoadingDose float64 `json:"loading_dose_mg"`
}

var loadingDoseCmd = &cobra.Command{
	Use:   "loading-dose",
	Short: "Weight-based loading dose for serious infections",
	RunE: func(cmd *cobra.Command, args []string) error {
		b, err := loadBundle(cmd)
		if err != nil {
			return err
		}
		g := regimen.GuardrailsFromConfig(b.Guardrails)
		res := LoadingDoseResult{
			WeightKg:    loadingWeight,
			Serious:     loadingSerious,
			LoadingDose: regimen.LoadingDose(loadingWeight, loadingSerious, g),
		}
		return writeReport(cmd.OutOrStdout(), "loading-dose", 0, res, nil)
	},
}

func init() {
	loadingDoseCmd.Flags().Float64Var(&loadingWeight, "weight", 0, "Patient weight (kg)")
	loadingDoseCmd.Flags().BoolVar(&loadingSerious, "serious", false, "Serious infection")
}
