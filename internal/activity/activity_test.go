package activity

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
	"github.com/opensource-compliance/kestrel/internal/repository"
)

func newTestRepo(t *testing.T) domain.Repository {
	t.Helper()

	tmpFile, err := os.CreateTemp("", "kestrel-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	return repo
}

func seedEvents(t *testing.T, repo domain.Repository, tenantID, caseID string, ages ...time.Duration) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	c := &domain.Case{
		ID:           caseID,
		DecisionType: "standard_review",
		Status:       domain.CaseStatusInReview,
		CreatedAt:    now.Add(-24 * time.Hour),
		UpdatedAt:    now,
	}
	if err := repo.SaveCase(ctx, tenantID, c); err != nil {
		t.Fatalf("failed to save case: %v", err)
	}

	for _, age := range ages {
		ev := &domain.CaseEvent{
			CaseID:     caseID,
			EventType:  domain.EventStatusChanged,
			Actor:      "analyst-1",
			OccurredAt: now.Add(-age),
		}
		if err := repo.AppendCaseEvent(ctx, tenantID, ev); err != nil {
			t.Fatalf("failed to append event: %v", err)
		}
	}
}

func TestCountRecentEvents(t *testing.T) {
	repo := newTestRepo(t)
	svc := NewService(repo)
	ctx := context.Background()
	tenantID := "tenant-001"

	seedEvents(t, repo, tenantID, "case-001",
		10*time.Minute,
		2*time.Hour,
		80*time.Hour,
	)

	t.Run("WindowFiltersOldEvents", func(t *testing.T) {
		count, err := svc.CountRecentEvents(ctx, tenantID, "case-001", 24*time.Hour)
		if err != nil {
			t.Fatalf("CountRecentEvents failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 events within 24h, got %d", count)
		}
	})

	t.Run("WideWindowSeesAll", func(t *testing.T) {
		count, err := svc.CountRecentEvents(ctx, tenantID, "case-001", 30*24*time.Hour)
		if err != nil {
			t.Fatalf("CountRecentEvents failed: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 events, got %d", count)
		}
	})

	t.Run("NoEventsForUnknownCase", func(t *testing.T) {
		count, err := svc.CountRecentEvents(ctx, tenantID, "case-void", 24*time.Hour)
		if err != nil {
			t.Fatalf("CountRecentEvents failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0, got %d", count)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		count, err := svc.CountRecentEvents(ctx, "tenant-002", "case-001", 24*time.Hour)
		if err != nil {
			t.Fatalf("CountRecentEvents failed: %v", err)
		}
		if count != 0 {
			t.Errorf("expected 0 for other tenant, got %d", count)
		}
	})

	t.Run("RequiresIdentifiers", func(t *testing.T) {
		_, err := svc.CountRecentEvents(ctx, "", "case-001", time.Hour)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty tenantID, got %v", err)
		}
		_, err = svc.CountRecentEvents(ctx, tenantID, "", time.Hour)
		if !errors.Is(err, domain.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput for empty caseID, got %v", err)
		}
	})

	t.Run("GetCounter", func(t *testing.T) {
		counter := svc.GetCounter()
		count, err := counter(ctx, tenantID, "case-001", 24*time.Hour)
		if err != nil {
			t.Fatalf("counter failed: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2, got %d", count)
		}
	})
}
