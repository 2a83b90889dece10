package bayes

import "errors"

var (
	// ErrNoDoseHistory is returned when no dose events are supplied; no likelihood is computable.
	ErrNoDoseHistory = errors.New("dose history is required")
	// ErrNoSamples is returned when a data-driven fit is requested without concentration samples.
	ErrNoSamples = errors.New("at least one concentration sample is required")
)
