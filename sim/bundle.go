package sim

import (
	"bytes"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Bundle holds the tunable configuration shared by the estimator and the regimen
// search, loadable from a YAML or TOML file. Fields missing from the file keep
// the values from DefaultBundle.
type Bundle struct {
	Priors     PriorsConfig     `yaml:"priors" toml:"priors"`
	ErrorModel ErrorModelConfig `yaml:"error_model" toml:"error_model"`
	Target     TargetConfig     `yaml:"target" toml:"target"`
	Guardrails GuardrailsConfig `yaml:"guardrails" toml:"guardrails"`
	Estimator  EstimatorConfig  `yaml:"estimator" toml:"estimator"`
}

// PriorsConfig holds the CL and V prior settings.
type PriorsConfig struct {
	CL PriorConfig `yaml:"cl" toml:"cl"`
	V  PriorConfig `yaml:"v" toml:"v"`
}

// PriorConfig describes one parameter prior.
// Mean is optional: nil means "take it from the patient's population estimate".
// For lognormal priors Variance is the variance of ln(x).
type PriorConfig struct {
	Kind        string   `yaml:"kind" toml:"kind"`
	Mean        *float64 `yaml:"mean" toml:"mean"`
	Variance    float64  `yaml:"variance" toml:"variance"`
	BiasCorrect bool     `yaml:"bias_correct" toml:"bias_correct"`
}

// ErrorModelConfig holds the residual error model: sigma^2 = add^2 + (prop*pred)^2.
type ErrorModelConfig struct {
	SigmaAdd  float64 `yaml:"sigma_add" toml:"sigma_add"`
	SigmaProp float64 `yaml:"sigma_prop" toml:"sigma_prop"`
}

// TargetConfig is the AUC24 window in mg*h/L.
type TargetConfig struct {
	Low  float64 `yaml:"low" toml:"low"`
	High float64 `yaml:"high" toml:"high"`
}

// InfusionStepConfig maps doses at or above MinDose to an infusion duration.
type InfusionStepConfig struct {
	MinDose float64 `yaml:"min_dose_mg" toml:"min_dose_mg"`
	Hours   float64 `yaml:"hours" toml:"hours"`
}

// GuardrailsConfig holds the hard limits applied by the regimen search.
type GuardrailsConfig struct {
	MaxSingleDose      float64              `yaml:"max_single_dose_mg" toml:"max_single_dose_mg"`
	MaxDailyDose       float64              `yaml:"max_daily_dose_mg" toml:"max_daily_dose_mg"`
	MaxDailyDosePerKg  float64              `yaml:"max_daily_dose_mg_per_kg" toml:"max_daily_dose_mg_per_kg"`
	DoseIncrement      float64              `yaml:"dose_increment_mg" toml:"dose_increment_mg"`
	Intervals          []float64            `yaml:"intervals_hr" toml:"intervals_hr"`
	IntervalPreference []float64            `yaml:"interval_preference_hr" toml:"interval_preference_hr"`
	InfusionSteps      []InfusionStepConfig `yaml:"infusion_steps" toml:"infusion_steps"`
	DefaultInfusion    float64              `yaml:"default_infusion_hr" toml:"default_infusion_hr"`
	LoadingDosePerKg   float64              `yaml:"loading_dose_mg_per_kg" toml:"loading_dose_mg_per_kg"`
	MaxLoadingDose     float64              `yaml:"max_loading_dose_mg" toml:"max_loading_dose_mg"`
}

// EstimatorConfig holds the numerical settings of the posterior estimator.
type EstimatorConfig struct {
	GridPoints    int     `yaml:"grid_points" toml:"grid_points"`
	MaxIterations int     `yaml:"max_iterations" toml:"max_iterations"`
	Shrink        float64 `yaml:"shrink" toml:"shrink"`
	SampleCount   int     `yaml:"sample_count" toml:"sample_count"`
	Seed          int64   `yaml:"seed" toml:"seed"`
}

// Valid prior kinds.
const (
	PriorKindNormal    = "normal"
	PriorKindLogNormal = "lognormal"
)

// ValidPriorKinds is the set of recognized prior distribution names.
var ValidPriorKinds = map[string]bool{PriorKindNormal: true, PriorKindLogNormal: true}

// DefaultBundle returns the reference configuration: lognormal priors with
// log-SD 0.25, additive 1.5 mg/L plus 15% proportional error, AUC 400-600.
func DefaultBundle() Bundle {
	return Bundle{
		Priors: PriorsConfig{
			CL: PriorConfig{Kind: PriorKindLogNormal, Variance: 0.25 * 0.25},
			V:  PriorConfig{Kind: PriorKindLogNormal, Variance: 0.25 * 0.25},
		},
		ErrorModel: ErrorModelConfig{SigmaAdd: 1.5, SigmaProp: 0.15},
		Target:     TargetConfig{Low: 400, High: 600},
		Guardrails: GuardrailsConfig{
			MaxSingleDose:      2000,
			MaxDailyDose:       4500,
			MaxDailyDosePerKg:  100,
			DoseIncrement:      250,
			Intervals:          []float64{6, 8, 12, 24, 48},
			IntervalPreference: []float64{12, 24, 8, 6, 48},
			InfusionSteps: []InfusionStepConfig{
				{MinDose: 2000, Hours: 2.0},
				{MinDose: 1500, Hours: 1.5},
			},
			DefaultInfusion:  1.0,
			LoadingDosePerKg: 25,
			MaxLoadingDose:   3000,
		},
		Estimator: EstimatorConfig{
			GridPoints:    48,
			MaxIterations: 30,
			Shrink:        0.6,
			SampleCount:   200,
			Seed:          DefaultSeed,
		},
	}
}

// LoadBundle reads a YAML (.yaml/.yml) or TOML (.toml) bundle on top of DefaultBundle.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func LoadBundle(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading bundle: %w", err)
	}
	bundle := DefaultBundle()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&bundle); err != nil {
			return nil, fmt.Errorf("parsing bundle: %w", err)
		}
	default:
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&bundle); err != nil {
			return nil, fmt.Errorf("parsing bundle: %w", err)
		}
	}
	return &bundle, nil
}

// Validate checks kinds and numeric ranges.
func (b *Bundle) Validate() error {
	if err := b.Priors.CL.validate("priors.cl"); err != nil {
		return err
	}
	if err := b.Priors.V.validate("priors.v"); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("error_model.sigma_add", b.ErrorModel.SigmaAdd); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("error_model.sigma_prop", b.ErrorModel.SigmaProp); err != nil {
		return err
	}
	if b.ErrorModel.SigmaAdd == 0 && b.ErrorModel.SigmaProp == 0 {
		return fmt.Errorf("error_model: sigma_add and sigma_prop cannot both be zero")
	}
	if err := validateFinitePositive("target.low", b.Target.Low); err != nil {
		return err
	}
	if b.Target.High <= b.Target.Low {
		return fmt.Errorf("target.high (%g) must exceed target.low (%g)", b.Target.High, b.Target.Low)
	}
	if err := b.Guardrails.validate(); err != nil {
		return err
	}
	e := b.Estimator
	if e.GridPoints < 2 {
		return fmt.Errorf("estimator.grid_points must be >= 2, got %d", e.GridPoints)
	}
	if e.MaxIterations < 0 {
		return fmt.Errorf("estimator.max_iterations must be non-negative, got %d", e.MaxIterations)
	}
	if e.Shrink <= 0 || e.Shrink >= 1 {
		return fmt.Errorf("estimator.shrink must be in (0, 1), got %g", e.Shrink)
	}
	if e.SampleCount < 0 {
		return fmt.Errorf("estimator.sample_count must be non-negative, got %d", e.SampleCount)
	}
	return nil
}

func (p PriorConfig) validate(prefix string) error {
	if !ValidPriorKinds[p.Kind] {
		return fmt.Errorf("%s: unknown kind %q; valid: normal, lognormal", prefix, p.Kind)
	}
	if err := validateFinitePositive(prefix+".variance", p.Variance); err != nil {
		return err
	}
	if p.Mean != nil {
		if math.IsNaN(*p.Mean) || math.IsInf(*p.Mean, 0) {
			return fmt.Errorf("%s.mean must be a finite number, got %f", prefix, *p.Mean)
		}
		if p.Kind == PriorKindLogNormal && *p.Mean <= 0 {
			return fmt.Errorf("%s.mean must be positive for a lognormal prior, got %f", prefix, *p.Mean)
		}
	}
	return nil
}

func (g GuardrailsConfig) validate() error {
	checks := []struct {
		name string
		val  float64
	}{
		{"guardrails.max_single_dose_mg", g.MaxSingleDose},
		{"guardrails.max_daily_dose_mg", g.MaxDailyDose},
		{"guardrails.dose_increment_mg", g.DoseIncrement},
		{"guardrails.default_infusion_hr", g.DefaultInfusion},
	}
	for _, c := range checks {
		if err := validateFinitePositive(c.name, c.val); err != nil {
			return err
		}
	}
	if err := validateFiniteNonNegative("guardrails.max_daily_dose_mg_per_kg", g.MaxDailyDosePerKg); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("guardrails.loading_dose_mg_per_kg", g.LoadingDosePerKg); err != nil {
		return err
	}
	if err := validateFiniteNonNegative("guardrails.max_loading_dose_mg", g.MaxLoadingDose); err != nil {
		return err
	}
	if len(g.Intervals) == 0 {
		return fmt.Errorf("guardrails.intervals_hr must not be empty")
	}
	for i, iv := range g.Intervals {
		if err := validateFinitePositive(fmt.Sprintf("guardrails.intervals_hr[%d]", i), iv); err != nil {
			return err
		}
	}
	for i, s := range g.InfusionSteps {
		if err := validateFinitePositive(fmt.Sprintf("guardrails.infusion_steps[%d].hours", i), s.Hours); err != nil {
			return err
		}
	}
	return nil
}

func validateFinitePositive(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, val)
	}
	return nil
}

func validateFiniteNonNegative(name string, val float64) error {
	if math.IsNaN(val) || math.IsInf(val, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, val)
	}
	if val < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, val)
	}
	return nil
}
