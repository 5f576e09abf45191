package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/intelligence"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	svc     *intelligence.Service
	version string
}

// NewHandler creates a new API handler.
func NewHandler(repo domain.Repository, cache domain.Cache, bus domain.EventBus, svc *intelligence.Service, version string) *Handler {
	return &Handler{
		repo:    repo,
		cache:   cache,
		bus:     bus,
		svc:     svc,
		version: version,
	}
}

// CaseMutation is the bus payload published after any case artifact change.
// The recompute worker consumes these to trigger recomputation.
type CaseMutation struct {
	CaseID       string `json:"caseId"`
	DecisionType string `json:"decisionType,omitempty"`
	Change       string `json:"change"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	// Check repository health
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	// Check cache health
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// CreateCase handles POST /cases.
func (h *Handler) CreateCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)

	var req domain.CaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}

	if req.DecisionType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "decisionType is required",
		})
		return
	}

	c := req.ToCase(tenantID)
	c.ID = uuid.New().String()

	if err := h.repo.SaveCase(ctx, tenantID, c); err != nil {
		slog.Error("failed to save case", "error", err)
		writeError(w, err)
		return
	}

	h.appendEvent(ctx, tenantID, &domain.CaseEvent{
		TenantID:   tenantID,
		CaseID:     c.ID,
		EventType:  domain.EventCaseCreated,
		Actor:      "api",
		OccurredAt: c.CreatedAt,
	})
	h.publishMutation(ctx, tenantID, domain.TopicCaseCreated, c, "case_created")

	writeJSON(w, http.StatusCreated, c)
}

// GetCase retrieves a case by ID.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, c)
}

// SubmissionRequest is the request body for POST /cases/{id}/submission.
type SubmissionRequest struct {
	Fields map[string]interface{} `json:"fields"`
}

// SaveSubmission handles POST /cases/{id}/submission.
// Re-submitting replaces the current submission for the case.
func (h *Handler) SaveSubmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req SubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if len(req.Fields) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "fields must not be empty",
		})
		return
	}

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	now := time.Now().UTC()
	sub := &domain.Submission{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		CaseID:      caseID,
		Fields:      req.Fields,
		SubmittedAt: now,
		UpdatedAt:   now,
	}

	if err := h.repo.SaveSubmission(ctx, tenantID, sub); err != nil {
		slog.Error("failed to save submission", "case_id", caseID, "error", err)
		writeError(w, err)
		return
	}

	if c.Status == domain.CaseStatusDraft {
		if err := h.repo.UpdateCaseStatus(ctx, tenantID, caseID, domain.CaseStatusSubmitted); err != nil {
			slog.Error("failed to update case status", "case_id", caseID, "error", err)
		}
	}

	h.appendEvent(ctx, tenantID, &domain.CaseEvent{
		TenantID:  tenantID,
		CaseID:    caseID,
		EventType: domain.EventSubmissionReceived,
		Actor:     "api",
		Payload: map[string]interface{}{
			"submissionId": sub.ID,
			"fieldCount":   len(sub.Fields),
		},
		OccurredAt: now,
	})
	h.publishMutation(ctx, tenantID, domain.TopicSubmissionReceived, c, "submission_received")

	writeJSON(w, http.StatusCreated, sub)
}

// AttachmentRequest is the request body for POST /cases/{id}/attachments.
type AttachmentRequest struct {
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`
}

// UploadAttachment handles POST /cases/{id}/attachments.
func (h *Handler) UploadAttachment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req AttachmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.FileName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "fileName is required",
		})
		return
	}

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	att := &domain.Attachment{
		ID:          uuid.New().String(),
		TenantID:    tenantID,
		CaseID:      caseID,
		FileName:    req.FileName,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
		UploadedAt:  time.Now().UTC(),
	}

	if err := h.repo.SaveAttachment(ctx, tenantID, att); err != nil {
		slog.Error("failed to save attachment", "case_id", caseID, "error", err)
		writeError(w, err)
		return
	}

	h.appendEvent(ctx, tenantID, &domain.CaseEvent{
		TenantID:  tenantID,
		CaseID:    caseID,
		EventType: domain.EventAttachmentUploaded,
		Actor:     "api",
		Payload: map[string]interface{}{
			"attachmentId": att.ID,
			"fileName":     att.FileName,
		},
		OccurredAt: att.UploadedAt,
	})
	h.publishMutation(ctx, tenantID, domain.TopicAttachmentUploaded, c, "attachment_uploaded")

	writeJSON(w, http.StatusCreated, att)
}

// EventRequest is the request body for POST /cases/{id}/events.
type EventRequest struct {
	EventType string                 `json:"eventType"`
	Actor     string                 `json:"actor,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// AppendEvent handles POST /cases/{id}/events. Events drive case status:
// a request_info event moves the case to needs_info, a submitter_response
// moves it back to in_review, and status_changed applies payload.status.
func (h *Handler) AppendEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req EventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "invalid JSON request body",
		})
		return
	}
	if req.EventType == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "eventType is required",
		})
		return
	}

	c, err := h.repo.GetCase(ctx, tenantID, caseID)
	if err != nil {
		writeError(w, err)
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = "api"
	}

	ev := &domain.CaseEvent{
		ID:         uuid.New().String(),
		TenantID:   tenantID,
		CaseID:     caseID,
		EventType:  req.EventType,
		Actor:      actor,
		Payload:    req.Payload,
		OccurredAt: time.Now().UTC(),
	}

	if err := h.repo.AppendCaseEvent(ctx, tenantID, ev); err != nil {
		slog.Error("failed to append case event", "case_id", caseID, "error", err)
		writeError(w, err)
		return
	}

	if status := statusForEvent(req.EventType, req.Payload, c.Status); status != "" && status != c.Status {
		if err := h.repo.UpdateCaseStatus(ctx, tenantID, caseID, status); err != nil {
			slog.Error("failed to update case status", "case_id", caseID, "error", err)
		}
	}

	h.publishMutation(ctx, tenantID, domain.TopicCaseEventAppended, c, req.EventType)

	writeJSON(w, http.StatusCreated, ev)
}

// statusForEvent maps an appended event to the resulting case status.
// Returns empty when the event does not change status.
func statusForEvent(eventType string, payload map[string]interface{}, current string) string {
	switch eventType {
	case domain.EventRequestInfo:
		return domain.CaseStatusNeedsInfo
	case domain.EventSubmitterResponse:
		if current == domain.CaseStatusNeedsInfo {
			return domain.CaseStatusInReview
		}
	case domain.EventStatusChanged:
		if s, ok := payload["status"].(string); ok {
			return s
		}
	}
	return ""
}

// GetIntelligence handles GET /cases/{id}/intelligence.
// First access computes the record rather than returning 404.
func (h *Handler) GetIntelligence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	intel, err := h.svc.Get(ctx, tenantID, caseID, "")
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, intel)
}

// RecomputeIntelligence handles POST /cases/{id}/intelligence/recompute.
// Triggers within the cooldown window return the existing record unchanged.
func (h *Handler) RecomputeIntelligence(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	var req domain.RecomputeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{
				"error": "invalid JSON request body",
			})
			return
		}
	}
	if req.Actor == "" {
		req.Actor = "api"
	}
	if req.Reason == "" {
		req.Reason = "manual"
	}

	intel, err := h.svc.Recompute(ctx, tenantID, caseID, req.DecisionType, req.Actor, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, intel)
}

// IntelligenceHistory handles GET /cases/{id}/intelligence/history.
func (h *Handler) IntelligenceHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	caseID := chi.URLParam(r, "id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}

	history, err := h.svc.History(ctx, tenantID, caseID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"caseId":  caseID,
		"history": history,
		"count":   len(history),
	})
}

// appendEvent appends a lifecycle event, logging failures without failing
// the request. The artifact write already succeeded.
func (h *Handler) appendEvent(ctx context.Context, tenantID string, ev *domain.CaseEvent) {
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if err := h.repo.AppendCaseEvent(ctx, tenantID, ev); err != nil {
		slog.Error("failed to append case event",
			"case_id", ev.CaseID,
			"event_type", ev.EventType,
			"error", err,
		)
	}
}

// publishMutation notifies the recompute worker of a case artifact change.
func (h *Handler) publishMutation(ctx context.Context, tenantID, topic string, c *domain.Case, change string) {
	if h.bus == nil {
		return
	}
	payload, _ := json.Marshal(CaseMutation{
		CaseID:       c.ID,
		DecisionType: c.DecisionType,
		Change:       change,
	})
	if err := h.bus.Publish(ctx, tenantID, topic, payload); err != nil {
		slog.Error("failed to publish case mutation",
			"case_id", c.ID,
			"topic", topic,
			"error", err,
		)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, domain.ErrInvalidInput):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
