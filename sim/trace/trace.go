package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures refinement moves and candidate admissions.
	TraceLevelDecisions TraceLevel = "decisions"
)

// validTraceLevels maps accepted trace level strings.
var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// DecisionTrace collects decision records from one estimation or search call.
// All Record methods are safe on a nil receiver, which records nothing.
type DecisionTrace struct {
	Config      TraceConfig
	Refinements []RefinementRecord
	Candidates  []CandidateRecord
}

// NewDecisionTrace creates a DecisionTrace ready for recording.
func NewDecisionTrace(config TraceConfig) *DecisionTrace {
	return &DecisionTrace{
		Config:      config,
		Refinements: make([]RefinementRecord, 0),
		Candidates:  make([]CandidateRecord, 0),
	}
}

// Enabled reports whether records will be kept.
func (dt *DecisionTrace) Enabled() bool {
	return dt != nil && dt.Config.Level == TraceLevelDecisions
}

// RecordRefinement appends a refinement iteration record.
func (dt *DecisionTrace) RecordRefinement(record RefinementRecord) {
	if !dt.Enabled() {
		return
	}
	dt.Refinements = append(dt.Refinements, record)
}

// RecordCandidate appends a candidate admission record.
func (dt *DecisionTrace) RecordCandidate(record CandidateRecord) {
	if !dt.Enabled() {
		return
	}
	dt.Candidates = append(dt.Candidates, record)
}
