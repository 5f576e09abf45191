package intelligence

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// BiasDetector analyzes signal source diversity and timing. The four
// checks are independent; any subset may fire.
type BiasDetector struct {
	// SingleSourceThreshold is the fraction of complete signals one
	// source may account for before single_source_reliance fires.
	SingleSourceThreshold float64

	// MinDistinctSources below which low_diversity fires.
	MinDistinctSources int

	// MaxSignalAge beyond which complete signals count as stale.
	MaxSignalAge time.Duration
}

// NewBiasDetector creates a detector from the pipeline configuration.
func NewBiasDetector(cfg domain.IntelligenceConfig) *BiasDetector {
	return &BiasDetector{
		SingleSourceThreshold: cfg.SingleSourceThreshold,
		MinDistinctSources:    cfg.MinDistinctSources,
		MaxSignalAge:          cfg.MaxSignalAge,
	}
}

// Detect runs all four bias checks against the generated signal set.
func (d *BiasDetector) Detect(signals []domain.Signal, exp Expectation, now time.Time) []domain.BiasFlag {
	var flags []domain.BiasFlag

	complete := make([]domain.Signal, 0, len(signals))
	for _, s := range signals {
		if s.Complete {
			complete = append(complete, s)
		}
	}

	if f := d.checkSingleSource(complete); f != nil {
		flags = append(flags, *f)
	}
	if f := d.checkLowDiversity(complete); f != nil {
		flags = append(flags, *f)
	}
	flags = append(flags, d.checkContradictions(signals, exp)...)
	if f := d.checkStaleSignals(complete, now); f != nil {
		flags = append(flags, *f)
	}

	return flags
}

func (d *BiasDetector) checkSingleSource(complete []domain.Signal) *domain.BiasFlag {
	if len(complete) == 0 {
		return nil
	}

	counts := make(map[string]int)
	for _, s := range complete {
		counts[s.SourceType]++
	}

	for source, n := range counts {
		fraction := float64(n) / float64(len(complete))
		if fraction > d.SingleSourceThreshold {
			return &domain.BiasFlag{
				FlagType:        domain.BiasSingleSource,
				Severity:        domain.SeverityMedium,
				Message:         fmt.Sprintf("source %s accounts for %.0f%% of complete signals", source, fraction*100),
				SuggestedAction: "collect corroborating signals from additional sources",
			}
		}
	}
	return nil
}

func (d *BiasDetector) checkLowDiversity(complete []domain.Signal) *domain.BiasFlag {
	if len(complete) == 0 {
		return nil
	}

	sources := make(map[string]struct{})
	for _, s := range complete {
		sources[s.SourceType] = struct{}{}
	}

	if len(sources) < d.MinDistinctSources {
		return &domain.BiasFlag{
			FlagType:        domain.BiasLowDiversity,
			Severity:        domain.SeverityMedium,
			Message:         fmt.Sprintf("only %d distinct signal sources, %d expected", len(sources), d.MinDistinctSources),
			SuggestedAction: "broaden the evidence base before relying on this score",
		}
	}
	return nil
}

// checkContradictions fires when two signals expected to move together
// disagree: the driver is strong while the anchor is present but
// incomplete.
func (d *BiasDetector) checkContradictions(signals []domain.Signal, exp Expectation) []domain.BiasFlag {
	byType := make(map[string]domain.Signal, len(signals))
	for _, s := range signals {
		byType[s.SignalType] = s
	}

	var flags []domain.BiasFlag
	for _, rule := range exp.Contradictions {
		driver, ok := byType[rule.DriverSignal]
		if !ok || driver.Strength < rule.DriverStrength {
			continue
		}
		anchor, ok := byType[rule.AnchorSignal]
		if !ok || anchor.Complete {
			continue
		}
		flags = append(flags, domain.BiasFlag{
			FlagType:        domain.BiasContradiction,
			Severity:        domain.SeverityHigh,
			Message:         fmt.Sprintf("signal %s is strong while %s reads incomplete", rule.DriverSignal, rule.AnchorSignal),
			SuggestedAction: "re-verify the underlying case artifacts",
		})
	}
	return flags
}

// checkStaleSignals emits a single flag aggregating all stale complete
// signals, never one flag per signal.
func (d *BiasDetector) checkStaleSignals(complete []domain.Signal, now time.Time) *domain.BiasFlag {
	var stale []string
	for _, s := range complete {
		if now.Sub(s.Timestamp) > d.MaxSignalAge {
			stale = append(stale, s.SignalType)
		}
	}
	if len(stale) == 0 {
		return nil
	}

	sort.Strings(stale)
	return &domain.BiasFlag{
		FlagType:        domain.BiasStaleSignals,
		Severity:        domain.SeverityLow,
		Message:         fmt.Sprintf("%d signals exceed the %s age limit: %s", len(stale), d.MaxSignalAge, strings.Join(stale, ", ")),
		SuggestedAction: "refresh the case artifacts and recompute",
	}
}
