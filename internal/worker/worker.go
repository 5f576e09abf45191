// Package worker provides async recompute processing for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/intelligence"
)

// mutationTopics are the case artifact changes that trigger recomputation.
var mutationTopics = []string{
	domain.TopicCaseCreated,
	domain.TopicSubmissionReceived,
	domain.TopicAttachmentUploaded,
	domain.TopicCaseEventAppended,
}

// Worker recomputes decision intelligence asynchronously from the EventBus.
// Bursts of mutations within the cooldown window collapse into a single
// computation because the service throttles on the persisted timestamp.
type Worker struct {
	bus domain.EventBus
	svc *intelligence.Service

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to process (empty = all via wildcard if supported)
	TenantIDs []string
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, svc *intelligence.Service) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:    bus,
		svc:    svc,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start begins processing mutations for the given tenants.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		return w.startGlobalWorker()
	}

	for _, tenantID := range cfg.TenantIDs {
		if err := w.startTenantWorker(tenantID); err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
	}

	slog.Info("workers started",
		"tenant_count", len(cfg.TenantIDs),
	)

	return nil
}

// startGlobalWorker starts a worker that processes all tenants (for testing/dev).
func (w *Worker) startGlobalWorker() error {
	// Subscribe using a special "global" tenant ID
	// In production, you'd want to subscribe with wildcards or JetStream
	for _, topic := range mutationTopics {
		sub, err := w.bus.Subscribe(w.ctx, "_global", topic, w.handleMessage)
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("global worker started")
	return nil
}

// startTenantWorker starts workers for a specific tenant.
func (w *Worker) startTenantWorker(tenantID string) error {
	for _, topic := range mutationTopics {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, topic, func(ctx context.Context, msg *domain.Message) error {
			return w.processMutation(ctx, tenantID, msg)
		})
		if err != nil {
			return err
		}
		w.subscriptions = append(w.subscriptions, sub)
	}

	slog.Info("tenant worker started",
		"tenant_id", tenantID,
		"topics", len(mutationTopics),
	)

	return nil
}

// handleMessage handles messages from global subscription.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	return w.processMutation(ctx, msg.TenantID, msg)
}

// mutationMessage mirrors the payload published by the API on case change.
type mutationMessage struct {
	CaseID       string `json:"caseId"`
	DecisionType string `json:"decisionType,omitempty"`
	Change       string `json:"change,omitempty"`
}

// processMutation recomputes intelligence for the changed case.
func (w *Worker) processMutation(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var m mutationMessage
	if err := json.Unmarshal(msg.Payload, &m); err != nil {
		slog.Error("failed to parse case mutation message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if m.CaseID == "" {
		slog.Warn("case mutation without caseId dropped", "message_id", msg.ID)
		return nil
	}

	reason := m.Change
	if reason == "" {
		reason = msg.Topic
	}

	intel, err := w.svc.Recompute(ctx, tenantID, m.CaseID, m.DecisionType, "worker", reason)
	if err != nil {
		slog.Error("async recompute failed",
			"case_id", m.CaseID,
			"tenant_id", tenantID,
			"error", err,
		)
		return err
	}

	slog.Debug("case mutation processed",
		"case_id", m.CaseID,
		"tenant_id", tenantID,
		"change", reason,
		"confidence_score", intel.ConfidenceScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return nil
}

// Stop gracefully stops all workers.
func (w *Worker) Stop() error {
	w.cancel()

	// Unsubscribe all
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	w.wg.Wait()

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
	}
}
