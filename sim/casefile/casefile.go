// Package casefile reads patient case files: covariates, dose history,
// measured levels and an optional regimen to evaluate.
package casefile

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/pk-sim/pk-sim/sim"
	"github.com/pk-sim/pk-sim/sim/bayes"
	"github.com/pk-sim/pk-sim/sim/regimen"
)

// CurrentVersion is the case-file format version written by this package.
const CurrentVersion = "1"

// Case is one patient's dosing record.
type Case struct {
	Version     string          `yaml:"version"`
	Patient     Patient         `yaml:"patient"`
	Params      *sim.Params     `yaml:"params,omitempty"`
	Regimen     *sim.Regimen    `yaml:"regimen,omitempty"`
	DoseHistory []sim.DoseEvent `yaml:"dose_history,omitempty"`
	Levels      []bayes.Sample  `yaml:"levels,omitempty"`
	QueryTimes  []float64       `yaml:"query_times_hr,omitempty"`
}

// Patient holds the covariates used for population estimates and dose caps.
type Patient struct {
	WeightKg float64 `yaml:"weight_kg"`
	CrCl     float64 `yaml:"crcl_ml_min"`
	Serious  bool    `yaml:"serious"`
}

// Load reads and strictly decodes a case file. Unknown keys are rejected.
func Load(path string) (*Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading case file: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a case from r.
func Parse(r io.Reader) (*Case, error) {
	var c Case
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing case file: %w", err)
	}
	if c.Version == "" {
		logrus.Debugf("case file has no version; assuming %q", CurrentVersion)
		c.Version = CurrentVersion
	}
	return &c, nil
}

// Validate checks that every number is finite and in range.
func (c *Case) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported case version %q; supported: %s", c.Version, CurrentVersion)
	}
	if err := nonNegative("patient.weight_kg", c.Patient.WeightKg); err != nil {
		return err
	}
	if err := nonNegative("patient.crcl_ml_min", c.Patient.CrCl); err != nil {
		return err
	}
	if c.Params != nil {
		if err := positive("params.cl_l_hr", c.Params.CL); err != nil {
			return err
		}
		if err := positive("params.v_l", c.Params.V); err != nil {
			return err
		}
	}
	if r := c.Regimen; r != nil {
		if err := positive("regimen.dose_mg", r.Dose); err != nil {
			return err
		}
		if err := positive("regimen.interval_hr", r.Interval); err != nil {
			return err
		}
		if err := positive("regimen.infusion_hr", r.Infusion); err != nil {
			return err
		}
		if r.Infusion > r.Interval {
			return fmt.Errorf("regimen.infusion_hr (%g) must not exceed interval_hr (%g)", r.Infusion, r.Interval)
		}
	}
	for i, ev := range c.DoseHistory {
		prefix := fmt.Sprintf("dose_history[%d]", i)
		if err := positive(prefix+".dose_mg", ev.Dose); err != nil {
			return err
		}
		if err := nonNegative(prefix+".start_hr", ev.Start); err != nil {
			return err
		}
		if err := positive(prefix+".infusion_hr", ev.Infusion); err != nil {
			return err
		}
	}
	for i, l := range c.Levels {
		prefix := fmt.Sprintf("levels[%d]", i)
		if err := nonNegative(prefix+".time_hr", l.Time); err != nil {
			return err
		}
		if err := nonNegative(prefix+".concentration_mg_l", l.Concentration); err != nil {
			return err
		}
	}
	for i, t := range c.QueryTimes {
		if err := nonNegative(fmt.Sprintf("query_times_hr[%d]", i), t); err != nil {
			return err
		}
	}
	return nil
}

// Events returns the dose history, or the regimen expanded over [0, horizon]
// when no history is recorded.
func (c *Case) Events(horizon float64) []sim.DoseEvent {
	if len(c.DoseHistory) > 0 {
		return c.DoseHistory
	}
	if c.Regimen != nil {
		return c.Regimen.Events(horizon, 0)
	}
	return nil
}

// Samples returns the measured levels.
func (c *Case) Samples() []bayes.Sample {
	return c.Levels
}

// PopulationParams returns explicit params when given, else the CrCl/weight
// population estimate.
func (c *Case) PopulationParams() sim.Params {
	if c.Params != nil {
		return *c.Params
	}
	return regimen.PopulationParams(c.RegimenPatient())
}

// RegimenPatient converts the covariates for the regimen search.
func (c *Case) RegimenPatient() regimen.Patient {
	return regimen.Patient{WeightKg: c.Patient.WeightKg, CrCl: c.Patient.CrCl}
}

func positive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, v)
	}
	if v <= 0 {
		return fmt.Errorf("%s must be positive, got %f", name, v)
	}
	return nil
}

func nonNegative(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("%s must be a finite number, got %f", name, v)
	}
	if v < 0 {
		return fmt.Errorf("%s must be non-negative, got %f", name, v)
	}
	return nil
}
