package intelligence

import (
	"fmt"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Gap weights for the aggregate severity score.
var gapSeverityWeight = map[string]float64{
	domain.SeverityHigh:   3,
	domain.SeverityMedium: 2,
	domain.SeverityLow:    1,
}

// DetectGaps compares the generated signal set against the expectation
// table entry. Each expected signal yields at most one gap, tie-broken
// missing > partial > weak > stale: a signal absent from the set is
// reported missing and never also stale.
func DetectGaps(signals []domain.Signal, exp Expectation, now time.Time) []domain.Gap {
	byType := make(map[string]domain.Signal, len(signals))
	for _, s := range signals {
		byType[s.SignalType] = s
	}

	var gaps []domain.Gap
	for _, es := range exp.Expected {
		sig, present := byType[es.SignalType]

		switch {
		case !present:
			severity := domain.SeverityMedium
			if es.Required {
				severity = domain.SeverityHigh
			}
			gaps = append(gaps, domain.Gap{
				GapType:    domain.GapMissing,
				Severity:   severity,
				SignalType: es.SignalType,
				Message:    fmt.Sprintf("expected signal %s was not observed", es.SignalType),
			})

		case !sig.Complete:
			gaps = append(gaps, domain.Gap{
				GapType:    domain.GapPartial,
				Severity:   domain.SeverityMedium,
				SignalType: es.SignalType,
				Message:    fmt.Sprintf("signal %s is present but incomplete", es.SignalType),
			})

		case sig.Strength < es.MinStrength:
			gaps = append(gaps, domain.Gap{
				GapType:    domain.GapWeak,
				Severity:   domain.SeverityLow,
				SignalType: es.SignalType,
				Message:    fmt.Sprintf("signal %s strength %.2f is below the %.2f minimum", es.SignalType, sig.Strength, es.MinStrength),
			})

		case es.MaxAgeHours > 0 && now.Sub(sig.Timestamp) > time.Duration(es.MaxAgeHours)*time.Hour:
			gaps = append(gaps, domain.Gap{
				GapType:    domain.GapStale,
				Severity:   domain.SeverityLow,
				SignalType: es.SignalType,
				Message:    fmt.Sprintf("signal %s is older than %.0f hours", es.SignalType, es.MaxAgeHours),
			})
		}
	}

	return gaps
}

// GapSeverityScore aggregates gap weight on a 0-100 scale, normalized
// against the maximum possible gap weight for the decision type (every
// expected signal missing at high severity).
func GapSeverityScore(gaps []domain.Gap, exp Expectation) float64 {
	if len(exp.Expected) == 0 {
		return 0
	}

	var total float64
	for _, g := range gaps {
		total += gapSeverityWeight[g.Severity]
	}

	max := gapSeverityWeight[domain.SeverityHigh] * float64(len(exp.Expected))
	score := total / max * 100
	if score > 100 {
		score = 100
	}
	return score
}
