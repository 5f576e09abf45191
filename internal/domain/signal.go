package domain

import "time"

// Core signal catalogue. Decision types may add extension signal types via
// the expectation table; the core six are generated for every case.
const (
	SignalSubmissionPresent      = "submission_present"
	SignalSubmissionCompleteness = "submission_completeness"
	SignalEvidencePresent        = "evidence_present"
	SignalRequestInfoOpen        = "request_info_open"
	SignalSubmitterResponded     = "submitter_responded"
	SignalExplainabilityAvail    = "explainability_available"
)

// Signal source categories, used for bias diversity analysis.
const (
	SourceSubmissionLink  = "submission_link"
	SourceSubmissionForm  = "submission_form"
	SourceEvidenceStorage = "evidence_storage"
	SourceCaseStatus      = "case_status"
	SourceCaseEvents      = "case_events"
	SourceDecisionTrace   = "decision_trace"
)

// Signal is one derived observation about a case. Signals are regenerated
// wholesale on every recompute; they are never patched incrementally.
type Signal struct {
	CaseID     string `json:"caseId"`
	SignalType string `json:"signalType"`
	SourceType string `json:"sourceType"`

	// Complete reports whether the signal's underlying data is present.
	// For request_info_open the polarity is inverted: the signal is
	// incomplete while an information request is outstanding.
	Complete bool `json:"complete"`

	// Strength is the confidence the signal itself deserves, in [0,1].
	Strength float64 `json:"strength"`

	// Timestamp is when the underlying fact was observed.
	Timestamp time.Time `json:"timestamp"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ExpectedSignal describes one entry of the static expectation table for a
// decision type.
type ExpectedSignal struct {
	SignalType string `json:"signalType"`

	// Weight is the signal's contribution to the base score.
	Weight float64 `json:"weight"`

	// Required marks signals whose absence is a high-severity gap.
	Required bool `json:"required"`

	// MinStrength below which a present, complete signal is a weak gap.
	MinStrength float64 `json:"minStrength"`

	// MaxAgeHours beyond which a present, complete signal is a stale gap.
	MaxAgeHours float64 `json:"maxAgeHours"`
}

// ExtensionSpec declares a decision-type-specific extension signal computed
// from a CEL expression over the case state.
type ExtensionSpec struct {
	SignalType string `json:"signalType"`
	SourceType string `json:"sourceType"`

	// Expression must evaluate to bool (complete, strength 1/0) or
	// double in [0,1] (strength; complete iff >= 0.5).
	Expression string `json:"expression"`
}
