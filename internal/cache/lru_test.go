package cache

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		c := NewLRUCache(10)
		if err := c.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := c.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected value1, got %s", val)
		}
	})

	t.Run("MissReturnsNil", func(t *testing.T) {
		c := NewLRUCache(10)
		val, err := c.Get(ctx, tenantID, "absent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil on miss, got %s", val)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		c := NewLRUCache(10)
		c.Set(ctx, "tenant-a", "shared-key", []byte("a-value"), time.Minute)
		c.Set(ctx, "tenant-b", "shared-key", []byte("b-value"), time.Minute)

		val, _ := c.Get(ctx, "tenant-a", "shared-key")
		if string(val) != "a-value" {
			t.Errorf("tenant-a should see its own value, got %s", val)
		}
		val, _ = c.Get(ctx, "tenant-b", "shared-key")
		if string(val) != "b-value" {
			t.Errorf("tenant-b should see its own value, got %s", val)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		c := NewLRUCache(10)
		if err := c.Set(ctx, "", "key", []byte("v"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID on Set")
		}
		if _, err := c.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID on Get")
		}
	})

	t.Run("TTLExpiry", func(t *testing.T) {
		c := NewLRUCache(10)
		c.Set(ctx, tenantID, "ephemeral", []byte("v"), 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		val, err := c.Get(ctx, tenantID, "ephemeral")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Error("expired entry should read as a miss")
		}
	})

	t.Run("EvictsOldest", func(t *testing.T) {
		c := NewLRUCache(3)
		for i := 0; i < 3; i++ {
			c.Set(ctx, tenantID, fmt.Sprintf("key%d", i), []byte("v"), time.Minute)
		}

		// Touch key0 so key1 becomes the eviction candidate.
		c.Get(ctx, tenantID, "key0")
		c.Set(ctx, tenantID, "key3", []byte("v"), time.Minute)

		if val, _ := c.Get(ctx, tenantID, "key1"); val != nil {
			t.Error("key1 should have been evicted")
		}
		if val, _ := c.Get(ctx, tenantID, "key0"); val == nil {
			t.Error("recently used key0 should survive eviction")
		}

		size, capacity := c.Stats()
		if size != 3 || capacity != 3 {
			t.Errorf("expected size 3 of 3, got %d of %d", size, capacity)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		c := NewLRUCache(10)
		c.Set(ctx, tenantID, "key1", []byte("v"), time.Minute)

		if err := c.Delete(ctx, tenantID, "key1"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := c.Get(ctx, tenantID, "key1"); val != nil {
			t.Error("deleted key should read as a miss")
		}
	})

	t.Run("IntelligenceRoundTrip", func(t *testing.T) {
		c := NewLRUCache(10)
		now := time.Now().UTC()
		intel := &domain.DecisionIntelligence{
			CaseID:          "case-001",
			TenantID:        tenantID,
			DecisionType:    "standard_review",
			ConfidenceScore: 82.5,
			ConfidenceBand:  domain.BandHigh,
			Signals: []domain.Signal{
				{CaseID: "case-001", SignalType: domain.SignalSubmissionPresent, Complete: true, Strength: 1, Timestamp: now},
			},
			ComputedAt: now,
		}

		if err := c.SetIntelligence(ctx, tenantID, "case-001", intel, time.Minute); err != nil {
			t.Fatalf("SetIntelligence failed: %v", err)
		}

		got, err := c.GetIntelligence(ctx, tenantID, "case-001")
		if err != nil {
			t.Fatalf("GetIntelligence failed: %v", err)
		}
		if got == nil {
			t.Fatal("expected cached record")
		}
		if got.ConfidenceScore != 82.5 || got.ConfidenceBand != domain.BandHigh {
			t.Errorf("record not round-tripped: %.2f/%s", got.ConfidenceScore, got.ConfidenceBand)
		}
		if len(got.Signals) != 1 {
			t.Errorf("expected 1 signal, got %d", len(got.Signals))
		}
	})

	t.Run("IntelligenceMiss", func(t *testing.T) {
		c := NewLRUCache(10)
		got, err := c.GetIntelligence(ctx, tenantID, "case-void")
		if err != nil {
			t.Fatalf("GetIntelligence failed: %v", err)
		}
		if got != nil {
			t.Error("expected nil on miss")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		c := NewLRUCache(10)

		for want := int64(1); want <= 3; want++ {
			got, err := c.IncrementCounter(ctx, tenantID, "recompute:case-001", time.Minute)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}

		// Separate tenants keep separate counters.
		got, _ := c.IncrementCounter(ctx, "tenant-other", "recompute:case-001", time.Minute)
		if got != 1 {
			t.Errorf("expected fresh counter for other tenant, got %d", got)
		}
	})

	t.Run("CounterWindowResets", func(t *testing.T) {
		c := NewLRUCache(10)

		c.IncrementCounter(ctx, tenantID, "burst", 5*time.Millisecond)
		c.IncrementCounter(ctx, tenantID, "burst", 5*time.Millisecond)
		time.Sleep(20 * time.Millisecond)

		got, err := c.IncrementCounter(ctx, tenantID, "burst", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 1 {
			t.Errorf("expired window should restart at 1, got %d", got)
		}
	})
}
