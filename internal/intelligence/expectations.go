// Package intelligence implements the decision-intelligence scoring
// pipeline: expectation lookup, gap detection, bias detection, confidence
// scoring, and the throttled recompute service.
package intelligence

import (
	"github.com/opensource-compliance/kestrel/internal/domain"
)

// DefaultDecisionType is the guaranteed fallback expectation entry, used
// when a decision type is unrecognized.
const DefaultDecisionType = "default"

// ContradictionRule declares a decision-type-specific pairing of signals
// expected to move together: it fires when the driver signal is strong
// while the anchor signal is present but incomplete.
type ContradictionRule struct {
	DriverSignal   string
	DriverStrength float64
	AnchorSignal   string
}

// Expectation is the static per-decision-type entry: which signals are
// expected with what weight, which form fields count toward submission
// completeness, and any extension signals.
type Expectation struct {
	DecisionType   string
	Expected       []domain.ExpectedSignal
	ExpectedFields []string
	Extensions     []domain.ExtensionSpec
	Contradictions []ContradictionRule
}

// coreContradictions apply to every decision type.
var coreContradictions = []ContradictionRule{
	{DriverSignal: domain.SignalSubmissionCompleteness, DriverStrength: 0.5, AnchorSignal: domain.SignalSubmissionPresent},
	{DriverSignal: domain.SignalExplainabilityAvail, DriverStrength: 0.5, AnchorSignal: domain.SignalSubmissionPresent},
}

// expectationTable is built once at package init and never mutated.
// Lookups fall back to the default entry; the table is read-only
// configuration, not state.
var expectationTable = buildTable()

func buildTable() map[string]Expectation {
	standard := Expectation{
		DecisionType: "standard_review",
		Expected: []domain.ExpectedSignal{
			{SignalType: domain.SignalSubmissionPresent, Weight: 0.25, Required: true, MinStrength: 0.5, MaxAgeHours: 720},
			{SignalType: domain.SignalSubmissionCompleteness, Weight: 0.20, Required: true, MinStrength: 0.4, MaxAgeHours: 720},
			{SignalType: domain.SignalEvidencePresent, Weight: 0.20, Required: true, MinStrength: 0.3, MaxAgeHours: 336},
			{SignalType: domain.SignalRequestInfoOpen, Weight: 0.15, Required: false, MinStrength: 0.5, MaxAgeHours: 720},
			{SignalType: domain.SignalSubmitterResponded, Weight: 0.10, Required: false, MinStrength: 0.5, MaxAgeHours: 336},
			{SignalType: domain.SignalExplainabilityAvail, Weight: 0.10, Required: false, MinStrength: 0.5, MaxAgeHours: 2160},
		},
		ExpectedFields: []string{"applicant_name", "applicant_id", "jurisdiction", "declaration", "contact_email"},
		Contradictions: coreContradictions,
	}

	expedited := Expectation{
		DecisionType: "expedited_review",
		Expected: []domain.ExpectedSignal{
			{SignalType: domain.SignalSubmissionPresent, Weight: 0.30, Required: true, MinStrength: 0.5, MaxAgeHours: 168},
			{SignalType: domain.SignalSubmissionCompleteness, Weight: 0.25, Required: true, MinStrength: 0.5, MaxAgeHours: 168},
			{SignalType: domain.SignalEvidencePresent, Weight: 0.20, Required: false, MinStrength: 0.3, MaxAgeHours: 168},
			{SignalType: domain.SignalRequestInfoOpen, Weight: 0.15, Required: false, MinStrength: 0.5, MaxAgeHours: 168},
			{SignalType: "recent_activity", Weight: 0.10, Required: false, MinStrength: 0.5, MaxAgeHours: 48},
		},
		ExpectedFields: []string{"applicant_name", "applicant_id", "urgency_basis"},
		Extensions: []domain.ExtensionSpec{
			{SignalType: "recent_activity", SourceType: domain.SourceCaseEvents, Expression: "recent_events >= 1"},
		},
		Contradictions: coreContradictions,
	}

	renewal := Expectation{
		DecisionType: "renewal",
		Expected: []domain.ExpectedSignal{
			{SignalType: domain.SignalSubmissionPresent, Weight: 0.25, Required: true, MinStrength: 0.5, MaxAgeHours: 720},
			{SignalType: domain.SignalSubmissionCompleteness, Weight: 0.20, Required: true, MinStrength: 0.4, MaxAgeHours: 720},
			{SignalType: domain.SignalEvidencePresent, Weight: 0.15, Required: false, MinStrength: 0.3, MaxAgeHours: 720},
			{SignalType: domain.SignalExplainabilityAvail, Weight: 0.15, Required: false, MinStrength: 0.5, MaxAgeHours: 4320},
			{SignalType: "prior_reference_linked", Weight: 0.25, Required: true, MinStrength: 0.5, MaxAgeHours: 4320},
		},
		ExpectedFields: []string{"applicant_name", "applicant_id", "prior_reference", "renewal_period"},
		Extensions: []domain.ExtensionSpec{
			{SignalType: "prior_reference_linked", SourceType: domain.SourceSubmissionForm, Expression: `"prior_reference" in fields`},
		},
		Contradictions: coreContradictions,
	}

	// Fallback entry: minimal signal set with two required signals.
	fallback := Expectation{
		DecisionType: DefaultDecisionType,
		Expected: []domain.ExpectedSignal{
			{SignalType: domain.SignalSubmissionPresent, Weight: 0.30, Required: true, MinStrength: 0.5, MaxAgeHours: 720},
			{SignalType: domain.SignalSubmissionCompleteness, Weight: 0.25, Required: true, MinStrength: 0.4, MaxAgeHours: 720},
			{SignalType: domain.SignalEvidencePresent, Weight: 0.25, Required: false, MinStrength: 0.3, MaxAgeHours: 336},
			{SignalType: domain.SignalRequestInfoOpen, Weight: 0.20, Required: false, MinStrength: 0.5, MaxAgeHours: 720},
		},
		ExpectedFields: []string{"applicant_name", "applicant_id"},
		Contradictions: coreContradictions,
	}

	return map[string]Expectation{
		standard.DecisionType:  standard,
		expedited.DecisionType: expedited,
		renewal.DecisionType:   renewal,
		fallback.DecisionType:  fallback,
	}
}

// LookupExpectation resolves the expectation entry for a decision type,
// falling back to the default entry for unrecognized types. The second
// return reports whether the fallback was used.
func LookupExpectation(decisionType string) (Expectation, bool) {
	if exp, ok := expectationTable[decisionType]; ok {
		return exp, false
	}
	return expectationTable[DefaultDecisionType], true
}

// AllExtensions returns every extension spec declared by the table, for
// compile-at-startup.
func AllExtensions() []domain.ExtensionSpec {
	var specs []domain.ExtensionSpec
	for _, exp := range expectationTable {
		specs = append(specs, exp.Extensions...)
	}
	return specs
}

// totalWeight sums the weights of all expected signals.
func (e Expectation) totalWeight() float64 {
	var total float64
	for _, es := range e.Expected {
		total += es.Weight
	}
	return total
}
