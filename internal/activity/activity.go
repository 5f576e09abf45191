// Package activity measures recent case activity for extension signals.
package activity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// Counter is a function that returns the event count for a case in a
// time window. The signal pipeline consumes it without knowing the source.
type Counter func(ctx context.Context, tenantID, caseID string, window time.Duration) (int64, error)

// Service counts case events over a window, backed by the repository.
type Service struct {
	repo domain.Repository
}

// NewService creates a new activity service.
func NewService(repo domain.Repository) *Service {
	return &Service{repo: repo}
}

// CountRecentEvents returns the number of events logged for a case within
// the window ending now.
func (s *Service) CountRecentEvents(ctx context.Context, tenantID, caseID string, window time.Duration) (int64, error) {
	if tenantID == "" || caseID == "" {
		return 0, fmt.Errorf("%w: tenantID and caseID are required", domain.ErrInvalidInput)
	}
	if s.repo == nil {
		return 0, fmt.Errorf("no data source available")
	}

	since := time.Now().Add(-window)
	return s.repo.CountCaseEventsSince(ctx, tenantID, caseID, since)
}

// GetCounter returns a Counter bound to this service.
func (s *Service) GetCounter() Counter {
	return s.CountRecentEvents
}
