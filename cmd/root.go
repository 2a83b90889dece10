package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/trace"
)

// envPrefix namespaces environment overrides, e.g. PKSIM_LOG=debug.
const envPrefix = "PKSIM"

var (
	// Persistent flags shared by every subcommand
	logLevel   string // Log verbosity level
	bundlePath string // Optional YAML/TOML bundle with priors, error model and guardrails
	seed       int64  // Seed for posterior draws and bands
	traceLevel string // Decision trace verbosity
	casePath   string // Case file for the subcommands that read one

	cfg = viper.New()
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:           "pk-sim",
	Short:         "Individualized infusion PK simulation, Bayesian estimation and regimen search",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
}

// setup loads .env, binds flags to PKSIM_* environment variables and configures logging.
// Flags set on the command line win over the environment.
func setup(cmd *cobra.Command) error {
	_ = godotenv.Load()

	cfg.SetEnvPrefix(envPrefix)
	cfg.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	cfg.AutomaticEnv()
	if err := cfg.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if !f.Changed && cfg.IsSet(f.Name) {
			_ = cmd.Flags().Set(f.Name, cfg.GetString(f.Name))
		}
	})

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logrus.SetLevel(level)
	logrus.SetOutput(os.Stderr)

	if !trace.IsValidTraceLevel(traceLevel) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions", traceLevel)
	}
	return nil
}

// loadBundle returns the validated bundle from --config, or the defaults.
// An explicit --seed overrides the bundle's estimator seed.
func loadBundle(cmd *cobra.Command) (*sim.Bundle, error) {
	b := sim.DefaultBundle()
	if bundlePath != "" {
		loaded, err := sim.LoadBundle(bundlePath)
		if err != nil {
			return nil, err
		}
		b = *loaded
		logrus.Infof("loaded bundle from %s", bundlePath)
	}
	if cmd.Flags().Changed("seed") {
		b.Estimator.Seed = seed
	}
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("invalid bundle: %w", err)
	}
	return &b, nil
}

func newTrace() *trace.DecisionTrace {
	if trace.TraceLevel(traceLevel) != trace.TraceLevelDecisions {
		return nil
	}
	return trace.NewDecisionTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
}

// Report is the JSON envelope written to stdout by every subcommand.
type Report struct {
	RunID   string              `json:"run_id"`
	Command string              `json:"command"`
	Seed    int64               `json:"seed,omitempty"`
	Result  any                 `json:"result"`
	Trace   *trace.TraceSummary `json:"trace,omitempty"`
}

func writeReport(w io.Writer, command string, seed int64, result any, dt *trace.DecisionTrace) error {
	r := Report{
		RunID:   uuid.NewString(),
		Command: command,
		Seed:    seed,
		Result:  result,
	}
	if dt.Enabled() {
		r.Trace = trace.Summarize(dt)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

// init sets up persistent flags and subcommands
func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log", "warn", "Log level (trace, debug, info, warn, error, fatal, panic)")
	rootCmd.PersistentFlags().StringVar(&bundlePath, "config", "", "Bundle file (.yaml or .toml) with priors, error model, target and guardrails")
	rootCmd.PersistentFlags().Int64Var(&seed, "seed", sim.DefaultSeed, "Seed for posterior draws and bands")
	rootCmd.PersistentFlags().StringVar(&traceLevel, "trace", "none", "Decision trace level (none, decisions)")

	rootCmd.AddCommand(simulateCmd, metricsCmd, fitCmd, recommendCmd, loadingDoseCmd)
}
