// Package sim provides the deterministic core of the pharmacokinetic simulator:
// one-compartment zero-order infusions with first-order elimination, summed by
// linear superposition.
//
// # Reading Guide
//
//   - event.go: DoseEvent, Params and Regimen value types and dose expansion
//   - simulator.go: per-event closed form, superposition and time grids
//   - metrics.go: trapezoidal AUC, peak/trough windows and regimen evaluation
//   - bundle.go: YAML/TOML configuration of priors, error model and guardrails
//   - rng.go: seeded, partitioned random streams for reproducible sampling
//
// # Architecture
//
// sim holds value types and pure functions; the stateful parts live in
// sub-packages:
//   - sim/bayes/: MAP estimation of CL and V with Laplace uncertainty and bands
//   - sim/regimen/: steady-state regimen search under dose guardrails
//   - sim/casefile/: strict YAML patient case files
//   - sim/trace/: decision trace recording for refinement and search
//
// Every function here is safe for concurrent use. Non-positive CL, V or
// infusion durations are floored at MinParam rather than rejected.
package sim
