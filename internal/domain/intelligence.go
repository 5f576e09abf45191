package domain

import "time"

// Gap classifications, in tie-break priority order. A signal type yields at
// most one gap; missing beats partial beats weak beats stale.
const (
	GapMissing = "missing"
	GapPartial = "partial"
	GapWeak    = "weak"
	GapStale   = "stale"
)

// Severity levels shared by gaps and bias flags.
const (
	SeverityHigh   = "high"
	SeverityMedium = "medium"
	SeverityLow    = "low"
)

// Bias flag types.
const (
	BiasSingleSource = "single_source_reliance"
	BiasLowDiversity = "low_diversity"
	BiasContradiction = "contradiction"
	BiasStaleSignals = "stale_signals"
)

// Confidence bands.
const (
	BandHigh   = "high"
	BandMedium = "medium"
	BandLow    = "low"
)

// BandForScore maps a confidence score to its band.
// high >= 75, medium 50-74, low < 50.
func BandForScore(score float64) string {
	switch {
	case score >= 75:
		return BandHigh
	case score >= 50:
		return BandMedium
	default:
		return BandLow
	}
}

// Gap is a deficiency in the expected signal set for a case.
type Gap struct {
	GapType    string `json:"gapType"`
	Severity   string `json:"severity"`
	SignalType string `json:"signalType"`
	Message    string `json:"message"`
}

// BiasFlag indicates that the available signals are skewed.
type BiasFlag struct {
	FlagType        string `json:"flagType"`
	Severity        string `json:"severity"`
	Message         string `json:"message"`
	SuggestedAction string `json:"suggestedAction,omitempty"`
}

// ExplanationFactor is one term contributing to the final confidence score.
// The impacts of all factors sum to the confidence score, so the number is
// always auditable back to its inputs.
type ExplanationFactor struct {
	Factor string  `json:"factor"`
	Impact float64 `json:"impact"`
	Detail string  `json:"detail,omitempty"`
}

// DecisionIntelligence is the persisted, queryable scoring result for a
// case. It is upserted on each recompute and never deleted while the case
// exists.
type DecisionIntelligence struct {
	CaseID       string `json:"caseId"`
	TenantID     string `json:"tenantId"`
	DecisionType string `json:"decisionType"`

	// CompletenessScore is the fraction of generated signals that are
	// complete, on a 0-100 scale.
	CompletenessScore float64 `json:"completenessScore"`

	// ConfidenceScore is the weighted, penalized aggregate in [0,100].
	ConfidenceScore float64 `json:"confidenceScore"`
	ConfidenceBand  string  `json:"confidenceBand"`

	Signals            []Signal            `json:"signals"`
	Gaps               []Gap               `json:"gaps"`
	BiasFlags          []BiasFlag          `json:"biasFlags"`
	ExplanationFactors []ExplanationFactor `json:"explanationFactors"`

	// GapSeverityScore aggregates gap weight on a 0-100 scale.
	GapSeverityScore float64 `json:"gapSeverityScore"`

	ComputedAt time.Time `json:"computedAt"`
}

// IntelligenceNotification is the payload appended to the case event log
// and published on the bus after a successful recompute.
type IntelligenceNotification struct {
	CaseID          string    `json:"caseId"`
	DecisionType    string    `json:"decisionType"`
	ConfidenceScore float64   `json:"confidenceScore"`
	ConfidenceBand  string    `json:"confidenceBand"`
	GapCount        int       `json:"gapCount"`
	BiasFlagCount   int       `json:"biasFlagCount"`
	ComputedAt      time.Time `json:"computedAt"`
	Actor           string    `json:"actor,omitempty"`
	Reason          string    `json:"reason,omitempty"`
}

// RecomputeRequest is the API request payload for POST recompute.
type RecomputeRequest struct {
	DecisionType string `json:"decisionType,omitempty"`
	Actor        string `json:"actor"`
	Reason       string `json:"reason,omitempty"`
}
