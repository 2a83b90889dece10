// Package regimen searches fixed dose/interval/infusion combinations for the
// one that brings steady-state AUC24 closest to a target window without
// breaking dose guardrails.
//
// Exposure for each candidate comes from closed-form steady-state equations,
// so a full search costs a few dozen exponentials. The ranking is a total
// order over (target membership, distance, interval preference, daily dose,
// trough, interval, dose), which makes the result independent of enumeration
// order.
package regimen
