package intelligence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-compliance/kestrel/internal/activity"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/signals"
)

// activityWindow is the lookback for the recent_events extension variable.
const activityWindow = 24 * time.Hour

// Service owns the recompute state machine: throttle check, signal
// generation, gap/bias detection, scoring, persistence, notification.
type Service struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	gen      *signals.Generator
	detector *BiasDetector
	counter  activity.Counter
	cfg      domain.IntelligenceConfig

	// Per-case locks so concurrent triggers within the cooldown window
	// cannot double-write. The persisted computedAt is the throttle
	// source of truth, so it survives restarts; the lock only serializes
	// in-process racers.
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService wires the pipeline. cache and bus may be nil in tests.
func NewService(repo domain.Repository, cache domain.Cache, bus domain.EventBus, gen *signals.Generator, counter activity.Counter, cfg domain.IntelligenceConfig) *Service {
	if cfg.RecomputeCooldown <= 0 {
		cfg.RecomputeCooldown = 2 * time.Second
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 20
	}
	return &Service{
		repo:     repo,
		cache:    cache,
		bus:      bus,
		gen:      gen,
		detector: NewBiasDetector(cfg),
		counter:  counter,
		cfg:      cfg,
		locks:    make(map[string]*sync.Mutex),
	}
}

// Get returns the last persisted intelligence record for a case,
// computing it on first access. Readers never block an in-flight
// recompute: a GET racing a recompute returns the previous record.
func (s *Service) Get(ctx context.Context, tenantID, caseID, decisionType string) (*domain.DecisionIntelligence, error) {
	if s.cache != nil {
		if intel, err := s.cache.GetIntelligence(ctx, tenantID, caseID); err == nil && intel != nil {
			return intel, nil
		}
	}

	intel, err := s.repo.GetIntelligence(ctx, tenantID, caseID)
	if err == nil {
		s.cacheResult(ctx, tenantID, intel)
		return intel, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	// First access computes implicitly rather than returning an error.
	return s.Recompute(ctx, tenantID, caseID, decisionType, "system", "first_access")
}

// History returns the bounded recompute history for a case, newest first.
func (s *Service) History(ctx context.Context, tenantID, caseID string, limit int) ([]*domain.DecisionIntelligence, error) {
	if limit <= 0 || limit > s.cfg.HistoryLimit {
		limit = s.cfg.HistoryLimit
	}
	return s.repo.ListIntelligenceHistory(ctx, tenantID, caseID, limit)
}

// Recompute runs the full pipeline for a case. Triggers arriving within
// the cooldown window of the last computation are suppressed and the
// existing record is returned unchanged: no new computation, no new event.
func (s *Service) Recompute(ctx context.Context, tenantID, caseID, decisionType, actor, reason string) (*domain.DecisionIntelligence, error) {
	lock := s.caseLock(tenantID, caseID)
	lock.Lock()
	defer lock.Unlock()

	existing, err := s.repo.GetIntelligence(ctx, tenantID, caseID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if existing != nil && time.Since(existing.ComputedAt) < s.cfg.RecomputeCooldown {
		s.countSuppressed(ctx, tenantID, caseID)
		slog.Debug("recompute throttled",
			"tenant_id", tenantID,
			"case_id", caseID,
			"computed_at", existing.ComputedAt,
		)
		return existing, nil
	}

	state, err := s.repo.GetCaseState(ctx, tenantID, caseID)
	if err != nil {
		return nil, err
	}

	if decisionType == "" {
		decisionType = state.Case.DecisionType
	}
	exp, fellBack := LookupExpectation(decisionType)
	if fellBack {
		slog.Debug("unknown decision type, using default expectations",
			"case_id", caseID,
			"decision_type", decisionType,
		)
	}

	// Recent activity is advisory input for extension signals; a counting
	// failure degrades to zero rather than failing the recompute.
	var recentEvents int64
	if s.counter != nil {
		if n, err := s.counter(ctx, tenantID, caseID, activityWindow); err == nil {
			recentEvents = n
		}
	}

	now := time.Now().UTC()
	profile := signals.Profile{
		DecisionType:   decisionType,
		ExpectedFields: exp.ExpectedFields,
		Extensions:     exp.Extensions,
	}

	sigs := s.gen.Generate(state, profile, recentEvents)
	gaps := DetectGaps(sigs, exp, now)
	flags := s.detector.Detect(sigs, exp, now)
	result := Score(sigs, gaps, flags, exp)

	intel := &domain.DecisionIntelligence{
		CaseID:             caseID,
		TenantID:           tenantID,
		DecisionType:       decisionType,
		CompletenessScore:  CompletenessScore(sigs),
		ConfidenceScore:    result.ConfidenceScore,
		ConfidenceBand:     result.ConfidenceBand,
		Signals:            sigs,
		Gaps:               gaps,
		BiasFlags:          flags,
		ExplanationFactors: result.Factors,
		GapSeverityScore:   GapSeverityScore(gaps, exp),
		ComputedAt:         now,
	}

	if err := s.persist(ctx, tenantID, intel); err != nil {
		return nil, err
	}

	s.cacheResult(ctx, tenantID, intel)
	s.notify(ctx, tenantID, intel, actor, reason)

	slog.Info("decision intelligence recomputed",
		"tenant_id", tenantID,
		"case_id", caseID,
		"decision_type", decisionType,
		"confidence_score", intel.ConfidenceScore,
		"confidence_band", intel.ConfidenceBand,
		"gaps", len(gaps),
		"bias_flags", len(flags),
	)

	return intel, nil
}

// persist upserts the record, retrying once on a transient failure. A
// computed result is never silently dropped.
func (s *Service) persist(ctx context.Context, tenantID string, intel *domain.DecisionIntelligence) error {
	err := s.repo.UpsertIntelligence(ctx, tenantID, intel, s.cfg.HistoryLimit)
	if err == nil {
		return nil
	}

	slog.Warn("intelligence persist failed, retrying once",
		"case_id", intel.CaseID,
		"error", err,
	)
	if err = s.repo.UpsertIntelligence(ctx, tenantID, intel, s.cfg.HistoryLimit); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStorage, err)
	}
	return nil
}

// notify appends the change notification to the case event log and
// publishes it on the bus. Both are fire-and-forget from the pipeline's
// perspective: failures are logged, never surfaced.
func (s *Service) notify(ctx context.Context, tenantID string, intel *domain.DecisionIntelligence, actor, reason string) {
	note := domain.IntelligenceNotification{
		CaseID:          intel.CaseID,
		DecisionType:    intel.DecisionType,
		ConfidenceScore: intel.ConfidenceScore,
		ConfidenceBand:  intel.ConfidenceBand,
		GapCount:        len(intel.Gaps),
		BiasFlagCount:   len(intel.BiasFlags),
		ComputedAt:      intel.ComputedAt,
		Actor:           actor,
		Reason:          reason,
	}

	ev := &domain.CaseEvent{
		TenantID:  tenantID,
		CaseID:    intel.CaseID,
		EventType: domain.EventIntelligenceUpdated,
		Actor:     actor,
		Payload: map[string]interface{}{
			"confidenceScore": note.ConfidenceScore,
			"confidenceBand":  note.ConfidenceBand,
			"gapCount":        note.GapCount,
			"biasFlagCount":   note.BiasFlagCount,
			"reason":          reason,
		},
		OccurredAt: intel.ComputedAt,
	}
	if err := s.repo.AppendCaseEvent(ctx, tenantID, ev); err != nil {
		slog.Error("failed to append intelligence event", "case_id", intel.CaseID, "error", err)
	}

	if s.bus != nil {
		payload, _ := json.Marshal(note)
		if err := s.bus.Publish(ctx, tenantID, domain.TopicIntelligenceUpdated, payload); err != nil {
			slog.Error("failed to publish intelligence notification", "case_id", intel.CaseID, "error", err)
		}
	}
}

func (s *Service) cacheResult(ctx context.Context, tenantID string, intel *domain.DecisionIntelligence) {
	if s.cache == nil {
		return
	}
	_ = s.cache.SetIntelligence(ctx, tenantID, intel.CaseID, intel, 5*time.Minute)
}

// countSuppressed tracks throttled triggers per case for burst visibility.
func (s *Service) countSuppressed(ctx context.Context, tenantID, caseID string) {
	if s.cache == nil {
		return
	}
	n, err := s.cache.IncrementCounter(ctx, tenantID, "intel:suppressed:"+caseID, s.cfg.RecomputeCooldown)
	if err == nil && n > 1 {
		slog.Debug("recompute burst suppressed", "case_id", caseID, "suppressed_count", n)
	}
}

func (s *Service) caseLock(tenantID, caseID string) *sync.Mutex {
	key := tenantID + ":" + caseID
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}
