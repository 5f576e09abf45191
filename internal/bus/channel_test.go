package bus

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/opensource-compliance/kestrel/internal/domain"
)

// collector accumulates delivered messages behind a mutex.
type collector struct {
	mu   sync.Mutex
	msgs []*domain.Message
}

func (c *collector) handler(ctx context.Context, msg *domain.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.msgs = append(c.msgs, msg)
	return nil
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func (c *collector) first() *domain.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return nil
	}
	return c.msgs[0]
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestChannelBus(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishSubscribe", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		var c collector
		sub, err := b.Subscribe(ctx, tenantID, domain.TopicCaseCreated, c.handler)
		if err != nil {
			t.Fatalf("Subscribe failed: %v", err)
		}
		defer sub.Unsubscribe()

		if err := b.Publish(ctx, tenantID, domain.TopicCaseCreated, []byte(`{"caseId":"case-001"}`)); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}

		waitFor(t, func() bool { return c.count() == 1 })

		msg := c.first()
		if msg.Topic != domain.TopicCaseCreated {
			t.Errorf("expected topic %s, got %s", domain.TopicCaseCreated, msg.Topic)
		}
		if msg.TenantID != tenantID {
			t.Errorf("expected tenant %s, got %s", tenantID, msg.TenantID)
		}
		if msg.ID == "" || msg.Timestamp == 0 {
			t.Error("message should carry an ID and timestamp")
		}
		if string(msg.Payload) != `{"caseId":"case-001"}` {
			t.Errorf("payload not delivered intact: %s", msg.Payload)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		var a, other collector
		b.Subscribe(ctx, "tenant-a", domain.TopicCaseEventAppended, a.handler)
		b.Subscribe(ctx, "tenant-b", domain.TopicCaseEventAppended, other.handler)

		b.Publish(ctx, "tenant-a", domain.TopicCaseEventAppended, []byte("x"))

		waitFor(t, func() bool { return a.count() == 1 })
		if other.count() != 0 {
			t.Error("tenant-b should not receive tenant-a messages")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		var c collector
		b.Subscribe(ctx, tenantID, domain.TopicSubmissionReceived, c.handler)

		b.Publish(ctx, tenantID, domain.TopicAttachmentUploaded, []byte("x"))
		b.Publish(ctx, tenantID, domain.TopicSubmissionReceived, []byte("y"))

		waitFor(t, func() bool { return c.count() == 1 })
		if string(c.first().Payload) != "y" {
			t.Errorf("expected only the subscribed topic, got %s", c.first().Payload)
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		var c1, c2 collector
		b.Subscribe(ctx, tenantID, domain.TopicIntelligenceUpdated, c1.handler)
		b.Subscribe(ctx, tenantID, domain.TopicIntelligenceUpdated, c2.handler)

		b.Publish(ctx, tenantID, domain.TopicIntelligenceUpdated, []byte("x"))

		waitFor(t, func() bool { return c1.count() == 1 && c2.count() == 1 })
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		var c collector
		sub, _ := b.Subscribe(ctx, tenantID, domain.TopicCaseCreated, c.handler)
		sub.Unsubscribe()

		b.Publish(ctx, tenantID, domain.TopicCaseCreated, []byte("x"))
		time.Sleep(50 * time.Millisecond)

		if c.count() != 0 {
			t.Errorf("unsubscribed handler should not receive messages, got %d", c.count())
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		if err := b.Publish(ctx, "", domain.TopicCaseCreated, []byte("x")); err == nil {
			t.Error("expected error for empty tenantID on Publish")
		}
		if _, err := b.Subscribe(ctx, "", domain.TopicCaseCreated, func(context.Context, *domain.Message) error { return nil }); err == nil {
			t.Error("expected error for empty tenantID on Subscribe")
		}
	})

	t.Run("RequestTimesOutWithoutResponder", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		reqCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()

		_, err := b.Request(reqCtx, tenantID, "kestrel.echo", []byte("ping"))
		if err == nil {
			t.Error("expected timeout error with no responder")
		}
	})

	t.Run("ClosedBusRejectsOperations", func(t *testing.T) {
		b := NewChannelBus(10)
		b.Close()

		if err := b.Publish(ctx, tenantID, domain.TopicCaseCreated, []byte("x")); err == nil {
			t.Error("expected error publishing to closed bus")
		}
		if _, err := b.Subscribe(ctx, tenantID, domain.TopicCaseCreated, func(context.Context, *domain.Message) error { return nil }); err == nil {
			t.Error("expected error subscribing to closed bus")
		}
		if err := b.Ping(ctx); err == nil {
			t.Error("expected ping failure on closed bus")
		}
		if err := b.Close(); err != nil {
			t.Errorf("second Close should be a no-op, got %v", err)
		}
	})

	t.Run("Topic", func(t *testing.T) {
		b := NewChannelBus(10)
		defer b.Close()

		sub, _ := b.Subscribe(ctx, tenantID, domain.TopicCaseCreated, func(context.Context, *domain.Message) error { return nil })
		if sub.Topic() != domain.TopicCaseCreated {
			t.Errorf("expected %s, got %s", domain.TopicCaseCreated, sub.Topic())
		}
	})
}
