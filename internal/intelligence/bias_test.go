package intelligence

import (
	"strings"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

func flagFor(flags []domain.BiasFlag, flagType string) (domain.BiasFlag, bool) {
	for _, f := range flags {
		if f.FlagType == flagType {
			return f, true
		}
	}
	return domain.BiasFlag{}, false
}

func TestBiasDetector(t *testing.T) {
	detector := NewBiasDetector(domain.DefaultIntelligenceConfig())
	exp, _ := LookupExpectation("standard_review")
	now := time.Now().UTC()

	t.Run("NoFlagsForDiverseFreshSignals", func(t *testing.T) {
		flags := detector.Detect(healthySignals(now), exp, now)
		if len(flags) != 0 {
			t.Errorf("expected no flags, got %d: %+v", len(flags), flags)
		}
	})

	t.Run("SingleSourceReliance", func(t *testing.T) {
		signals := []domain.Signal{
			sig("a", domain.SourceSubmissionForm, true, 1, now),
			sig("b", domain.SourceSubmissionForm, true, 1, now),
			sig("c", domain.SourceSubmissionForm, true, 1, now),
			sig("d", domain.SourceEvidenceStorage, true, 1, now),
		}

		flags := detector.Detect(signals, Expectation{}, now)

		f, ok := flagFor(flags, domain.BiasSingleSource)
		if !ok {
			t.Fatal("expected single_source_reliance at 75% from one source")
		}
		if f.Severity != domain.SeverityMedium {
			t.Errorf("expected medium severity, got %s", f.Severity)
		}
	})

	t.Run("SingleSourceThresholdExclusive", func(t *testing.T) {
		// Exactly 70% from one source does not exceed the threshold.
		signals := []domain.Signal{
			sig("a", domain.SourceSubmissionForm, true, 1, now),
			sig("b", domain.SourceSubmissionForm, true, 1, now),
			sig("c", domain.SourceSubmissionForm, true, 1, now),
			sig("d", domain.SourceSubmissionForm, true, 1, now),
			sig("e", domain.SourceSubmissionForm, true, 1, now),
			sig("f", domain.SourceSubmissionForm, true, 1, now),
			sig("g", domain.SourceSubmissionForm, true, 1, now),
			sig("h", domain.SourceEvidenceStorage, true, 1, now),
			sig("i", domain.SourceCaseEvents, true, 1, now),
			sig("j", domain.SourceCaseStatus, true, 1, now),
		}

		flags := detector.Detect(signals, Expectation{}, now)
		if _, ok := flagFor(flags, domain.BiasSingleSource); ok {
			t.Error("exactly at threshold should not fire")
		}
	})

	t.Run("IncompleteSignalsExcludedFromSourceChecks", func(t *testing.T) {
		signals := []domain.Signal{
			sig("a", domain.SourceSubmissionForm, false, 0, now),
			sig("b", domain.SourceSubmissionForm, false, 0, now),
			sig("c", domain.SourceEvidenceStorage, true, 1, now),
			sig("d", domain.SourceCaseEvents, true, 1, now),
			sig("e", domain.SourceCaseStatus, true, 1, now),
		}

		flags := detector.Detect(signals, Expectation{}, now)
		if _, ok := flagFor(flags, domain.BiasSingleSource); ok {
			t.Error("incomplete signals should not count toward source reliance")
		}
	})

	t.Run("LowDiversity", func(t *testing.T) {
		signals := []domain.Signal{
			sig("a", domain.SourceSubmissionForm, true, 1, now),
			sig("b", domain.SourceEvidenceStorage, true, 1, now),
		}

		flags := detector.Detect(signals, Expectation{}, now)

		f, ok := flagFor(flags, domain.BiasLowDiversity)
		if !ok {
			t.Fatal("expected low_diversity with 2 of 3 required sources")
		}
		if f.Severity != domain.SeverityMedium {
			t.Errorf("expected medium severity, got %s", f.Severity)
		}
	})

	t.Run("NoDiversityFlagWithoutCompleteSignals", func(t *testing.T) {
		signals := []domain.Signal{
			sig("a", domain.SourceSubmissionForm, false, 0, now),
		}

		flags := detector.Detect(signals, Expectation{}, now)
		if _, ok := flagFor(flags, domain.BiasLowDiversity); ok {
			t.Error("no complete signals means diversity is unjudgeable, not low")
		}
	})

	t.Run("Contradiction", func(t *testing.T) {
		signals := healthySignals(now)
		// Completeness reads strong while submission_present reads incomplete.
		signals[0] = sig(domain.SignalSubmissionPresent, domain.SourceSubmissionLink, false, 0, now)

		flags := detector.Detect(signals, exp, now)

		f, ok := flagFor(flags, domain.BiasContradiction)
		if !ok {
			t.Fatal("expected contradiction flag")
		}
		if f.Severity != domain.SeverityHigh {
			t.Errorf("contradiction should be high severity, got %s", f.Severity)
		}
	})

	t.Run("NoContradictionWhenDriverWeak", func(t *testing.T) {
		signals := []domain.Signal{
			sig(domain.SignalSubmissionPresent, domain.SourceSubmissionLink, false, 0, now),
			sig(domain.SignalSubmissionCompleteness, domain.SourceSubmissionForm, true, 0.3, now),
			sig(domain.SignalEvidencePresent, domain.SourceEvidenceStorage, true, 1, now),
			sig(domain.SignalSubmitterResponded, domain.SourceCaseEvents, true, 1, now),
		}

		flags := detector.Detect(signals, exp, now)
		if _, ok := flagFor(flags, domain.BiasContradiction); ok {
			t.Error("weak driver should not fire contradiction")
		}
	})

	t.Run("StaleSignalsAggregated", func(t *testing.T) {
		old := now.Add(-100 * time.Hour)
		signals := []domain.Signal{
			sig(domain.SignalSubmissionPresent, domain.SourceSubmissionLink, true, 1, old),
			sig(domain.SignalEvidencePresent, domain.SourceEvidenceStorage, true, 1, old),
			sig(domain.SignalSubmitterResponded, domain.SourceCaseEvents, true, 1, now),
		}

		flags := detector.Detect(signals, Expectation{}, now)

		staleCount := 0
		var staleFlag domain.BiasFlag
		for _, f := range flags {
			if f.FlagType == domain.BiasStaleSignals {
				staleCount++
				staleFlag = f
			}
		}
		if staleCount != 1 {
			t.Fatalf("expected exactly one aggregated stale flag, got %d", staleCount)
		}
		if staleFlag.Severity != domain.SeverityLow {
			t.Errorf("expected low severity, got %s", staleFlag.Severity)
		}
		if !strings.Contains(staleFlag.Message, domain.SignalSubmissionPresent) ||
			!strings.Contains(staleFlag.Message, domain.SignalEvidencePresent) {
			t.Errorf("stale flag should name both stale signals: %s", staleFlag.Message)
		}
		if strings.Contains(staleFlag.Message, domain.SignalSubmitterResponded) {
			t.Errorf("fresh signal should not be listed: %s", staleFlag.Message)
		}
	})

	t.Run("EmptySignalSet", func(t *testing.T) {
		flags := detector.Detect(nil, exp, now)
		if len(flags) != 0 {
			t.Errorf("expected no flags for empty signal set, got %d", len(flags))
		}
	})
}
