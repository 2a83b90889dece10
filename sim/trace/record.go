// Package trace provides decision-trace recording for the posterior refinement
// loop and the regimen candidate search.
// It has no dependencies on sim and stores plain data types only.
package trace

// RefinementRecord captures one coordinate-descent iteration.
type RefinementRecord struct {
	Iteration int     `json:"iteration"`
	CL        float64 `json:"cl"`
	V         float64 `json:"v"`
	StepCL    float64 `json:"step_cl"`
	StepV     float64 `json:"step_v"`
	NLP       float64 `json:"nlp"`      // negative log posterior at (CL, V) after the iteration
	Improved  bool    `json:"improved"` // false means the steps were shrunk
}

// CandidateRecord captures one enumerated dose/interval combination.
type CandidateRecord struct {
	Dose      float64 `json:"dose_mg"`
	Interval  float64 `json:"interval_hr"`
	Infusion  float64 `json:"infusion_hr"`
	DailyDose float64 `json:"daily_dose_mg"`
	AUC24     float64 `json:"auc24"`
	Admitted  bool    `json:"admitted"`
	Reason    string  `json:"reason,omitempty"`
}
