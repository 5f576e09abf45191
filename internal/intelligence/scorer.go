package intelligence

import (
	"fmt"
	"math"
	"strings"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Penalty points per gap type. The missing penalty is scaled by a severity
// multiplier; the others are flat.
const (
	penaltyMissing = 15
	penaltyPartial = 10
	penaltyWeak    = 5
	penaltyStale   = 3
)

// missingSeverityMultiplier scales the missing-gap penalty.
var missingSeverityMultiplier = map[string]float64{
	domain.SeverityHigh:   1.0,
	domain.SeverityMedium: 0.5,
	domain.SeverityLow:    0.25,
}

// biasPenalty points per bias flag severity.
var biasPenalty = map[string]float64{
	domain.SeverityHigh:   15,
	domain.SeverityMedium: 10,
	domain.SeverityLow:    5,
}

// ScoreResult is the scorer's output: the bounded confidence score, its
// band, and the ordered explanation factors that reconstruct it.
type ScoreResult struct {
	ConfidenceScore float64
	ConfidenceBand  string
	Factors         []domain.ExplanationFactor
}

// Score combines weighted signal strengths with gap and bias penalties.
// base = sum(weight * strength * complete) over expected signals present in
// the set, normalized to 0-100 by the total expected weight. Every term
// that moved the number appears as an explanation factor, and factor
// impacts sum to the final score: no opaque score is ever returned.
func Score(signals []domain.Signal, gaps []domain.Gap, flags []domain.BiasFlag, exp Expectation) ScoreResult {
	byType := make(map[string]domain.Signal, len(signals))
	for _, s := range signals {
		byType[s.SignalType] = s
	}

	totalWeight := exp.totalWeight()
	var base float64
	var contributing []string
	for _, es := range exp.Expected {
		sig, ok := byType[es.SignalType]
		if !ok || !sig.Complete {
			continue
		}
		base += es.Weight * sig.Strength
		contributing = append(contributing, es.SignalType)
	}
	if totalWeight > 0 {
		base = base / totalWeight * 100
	}
	base = round2(base)

	factors := []domain.ExplanationFactor{{
		Factor: "base_score",
		Impact: base,
		Detail: fmt.Sprintf("weighted strength of %d contributing signals: %s", len(contributing), strings.Join(contributing, ", ")),
	}}

	// Aggregate gap penalties per gap type so each category reads as one
	// auditable term.
	gapImpact := map[string]float64{}
	gapSignals := map[string][]string{}
	for _, g := range gaps {
		var p float64
		switch g.GapType {
		case domain.GapMissing:
			p = penaltyMissing * missingSeverityMultiplier[g.Severity]
		case domain.GapPartial:
			p = penaltyPartial
		case domain.GapWeak:
			p = penaltyWeak
		case domain.GapStale:
			p = penaltyStale
		}
		gapImpact[g.GapType] += p
		gapSignals[g.GapType] = append(gapSignals[g.GapType], g.SignalType)
	}

	for _, gapType := range []string{domain.GapMissing, domain.GapPartial, domain.GapWeak, domain.GapStale} {
		if p, ok := gapImpact[gapType]; ok {
			factors = append(factors, domain.ExplanationFactor{
				Factor: gapType + "_signal_penalty",
				Impact: round2(-p),
				Detail: strings.Join(gapSignals[gapType], ", "),
			})
		}
	}

	biasImpact := map[string]float64{}
	biasTypes := map[string][]string{}
	for _, f := range flags {
		biasImpact[f.Severity] += biasPenalty[f.Severity]
		biasTypes[f.Severity] = append(biasTypes[f.Severity], f.FlagType)
	}
	for _, severity := range []string{domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow} {
		if p, ok := biasImpact[severity]; ok {
			factors = append(factors, domain.ExplanationFactor{
				Factor: "bias_penalty_" + severity,
				Impact: round2(-p),
				Detail: strings.Join(biasTypes[severity], ", "),
			})
		}
	}

	var final float64
	for _, f := range factors {
		final += f.Impact
	}

	// Clamp to [0,100]; the adjustment is itself a factor so the sum of
	// impacts still reconstructs the reported score.
	clamped := final
	if clamped < 0 {
		clamped = 0
	}
	if clamped > 100 {
		clamped = 100
	}
	if clamped != final {
		factors = append(factors, domain.ExplanationFactor{
			Factor: "clamp_adjustment",
			Impact: round2(clamped - final),
			Detail: fmt.Sprintf("raw score %.2f clamped to bounds", final),
		})
	}
	clamped = round2(clamped)

	return ScoreResult{
		ConfidenceScore: clamped,
		ConfidenceBand:  domain.BandForScore(clamped),
		Factors:         factors,
	}
}

// CompletenessScore is the fraction of generated signals that are
// complete, on a 0-100 scale.
func CompletenessScore(signals []domain.Signal) float64 {
	if len(signals) == 0 {
		return 0
	}
	complete := 0
	for _, s := range signals {
		if s.Complete {
			complete++
		}
	}
	return round2(float64(complete) / float64(len(signals)) * 100)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
