// Package domain defines the core interfaces and types for Kestrel.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
// The case event log is append-only: no update or delete methods exist.
type Repository interface {
	// Case operations
	SaveCase(ctx context.Context, tenantID string, c *Case) error
	GetCase(ctx context.Context, tenantID string, caseID string) (*Case, error)
	UpdateCaseStatus(ctx context.Context, tenantID string, caseID string, status string) error

	// Submission operations
	SaveSubmission(ctx context.Context, tenantID string, sub *Submission) error
	GetSubmissionByCase(ctx context.Context, tenantID string, caseID string) (*Submission, error)

	// Attachment operations
	SaveAttachment(ctx context.Context, tenantID string, att *Attachment) error
	ListAttachments(ctx context.Context, tenantID string, caseID string) ([]*Attachment, error)

	// Event log (append-only)
	AppendCaseEvent(ctx context.Context, tenantID string, ev *CaseEvent) error
	ListCaseEvents(ctx context.Context, tenantID string, caseID string) ([]*CaseEvent, error)
	CountCaseEventsSince(ctx context.Context, tenantID string, caseID string, since time.Time) (int64, error)

	// GetCaseState loads everything the signal generator needs in one call.
	GetCaseState(ctx context.Context, tenantID string, caseID string) (*CaseState, error)

	// Intelligence results: upsert by caseID (last-writer-wins) plus a
	// bounded per-case history for diffing.
	UpsertIntelligence(ctx context.Context, tenantID string, intel *DecisionIntelligence, historyLimit int) error
	GetIntelligence(ctx context.Context, tenantID string, caseID string) (*DecisionIntelligence, error)
	ListIntelligenceHistory(ctx context.Context, tenantID string, caseID string, limit int) ([]*DecisionIntelligence, error)

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
