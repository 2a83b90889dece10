package trace

// TraceSummary aggregates statistics from a DecisionTrace.
type TraceSummary struct {
	Iterations       int            `json:"iterations"`
	ImprovingSteps   int            `json:"improving_steps"`
	Shrinks          int            `json:"shrinks"`
	FinalNLP         float64        `json:"final_nlp"`
	AdmittedCount    int            `json:"admitted_candidates"`
	RejectedCount    int            `json:"rejected_candidates"`
	RejectionReasons map[string]int `json:"rejection_reasons"`
}

// Summarize computes aggregate statistics from a DecisionTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(dt *DecisionTrace) *TraceSummary {
	summary := &TraceSummary{
		RejectionReasons: make(map[string]int),
	}
	if dt == nil {
		return summary
	}

	summary.Iterations = len(dt.Refinements)
	for _, r := range dt.Refinements {
		if r.Improved {
			summary.ImprovingSteps++
		} else {
			summary.Shrinks++
		}
	}
	if n := len(dt.Refinements); n > 0 {
		summary.FinalNLP = dt.Refinements[n-1].NLP
	}

	for _, c := range dt.Candidates {
		if c.Admitted {
			summary.AdmittedCount++
		} else {
			summary.RejectedCount++
			summary.RejectionReasons[c.Reason]++
		}
	}

	return summary
}
