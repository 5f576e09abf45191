package domain

import (
	"time"
)

// Case statuses as recorded in the case store.
const (
	CaseStatusDraft     = "draft"
	CaseStatusSubmitted = "submitted"
	CaseStatusNeedsInfo = "needs_info"
	CaseStatusInReview  = "in_review"
	CaseStatusDecided   = "decided"
)

// Case event types recorded in the append-only event log.
const (
	EventCaseCreated         = "case_created"
	EventSubmissionReceived  = "submission_received"
	EventAttachmentUploaded  = "attachment_uploaded"
	EventRequestInfo         = "request_info"
	EventSubmitterResponse   = "submitter_response"
	EventStatusChanged       = "status_changed"
	EventIntelligenceUpdated = "decision_intelligence_updated"
)

// Case represents a compliance case record.
type Case struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// DecisionType drives which signals are expected for this case.
	DecisionType string `json:"decisionType"`

	Status string `json:"status"`

	// SubmissionID links the current submission, empty if none yet.
	SubmissionID string `json:"submissionId,omitempty"`

	// DecisionTraceID is set once an explainability trace exists.
	DecisionTraceID string `json:"decisionTraceId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// Submission holds the form payload attached to a case.
type Submission struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	CaseID   string `json:"caseId"`

	// Fields is the raw form field map. Completeness is judged against
	// the expected field list for the case's decision type.
	Fields map[string]interface{} `json:"fields"`

	SubmittedAt time.Time `json:"submittedAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Attachment is an evidence file reference linked to a case.
type Attachment struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	CaseID   string `json:"caseId"`

	FileName    string `json:"fileName"`
	ContentType string `json:"contentType,omitempty"`
	SizeBytes   int64  `json:"sizeBytes,omitempty"`

	Deleted  bool `json:"deleted"`
	Redacted bool `json:"redacted"`

	UploadedAt time.Time `json:"uploadedAt"`
}

// CaseEvent is one entry in a case's append-only event log.
// Events are never updated or deleted.
type CaseEvent struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
	CaseID   string `json:"caseId"`

	EventType string `json:"eventType"`
	Actor     string `json:"actor,omitempty"`

	Payload map[string]interface{} `json:"payload,omitempty"`

	OccurredAt time.Time `json:"occurredAt"`
}

// CaseState is the full persisted state of a case as loaded for signal
// generation. Optional artifacts may be nil or empty; only the Case itself
// is mandatory.
type CaseState struct {
	Case        *Case
	Submission  *Submission
	Attachments []*Attachment
	Events      []*CaseEvent
}

// LiveAttachments returns attachments that are neither deleted nor redacted.
func (s *CaseState) LiveAttachments() []*Attachment {
	var live []*Attachment
	for _, a := range s.Attachments {
		if !a.Deleted && !a.Redacted {
			live = append(live, a)
		}
	}
	return live
}

// CaseRequest is the API request payload for creating a case.
type CaseRequest struct {
	DecisionType string                 `json:"decisionType"`
	Status       string                 `json:"status,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ToCase converts a request to a Case domain object.
func (r *CaseRequest) ToCase(tenantID string) *Case {
	now := time.Now().UTC()
	status := r.Status
	if status == "" {
		status = CaseStatusDraft
	}
	return &Case{
		TenantID:     tenantID,
		DecisionType: r.DecisionType,
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
		Metadata:     r.Metadata,
	}
}
