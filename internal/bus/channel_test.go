package bus

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestChannelBusPublishSubscribe(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var received atomic.Int64
	var lastPayload atomic.Value

	sub, err := b.Subscribe(ctx, "tenant1", domain.TopicTransactionIngested, func(_ context.Context, msg *domain.Message) error {
		received.Add(1)
		lastPayload.Store(string(msg.Payload))
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()

	if err := b.Publish(ctx, "tenant1", domain.TopicTransactionIngested, []byte(`{"amount":100}`)); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(50 * time.Millisecond)

	if received.Load() != 1 {
		t.Errorf("expected 1 message, got %d", received.Load())
	}
	if lastPayload.Load() != `{"amount":100}` {
		t.Errorf("unexpected payload: %v", lastPayload.Load())
	}
	if sub.Topic() != domain.TopicTransactionIngested {
		t.Errorf("unexpected topic %s", sub.Topic())
	}
}

func TestChannelBusTenantIsolation(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var t1Count, t2Count atomic.Int64

	b.Subscribe(ctx, "tenant1", domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		t1Count.Add(1)
		return nil
	})
	b.Subscribe(ctx, "tenant2", domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		t2Count.Add(1)
		return nil
	})

	b.Publish(ctx, "tenant1", domain.TopicAlert, []byte("a"))
	b.Publish(ctx, "tenant1", domain.TopicAlert, []byte("b"))
	b.Publish(ctx, "tenant2", domain.TopicAlert, []byte("c"))

	time.Sleep(50 * time.Millisecond)

	if t1Count.Load() != 2 {
		t.Errorf("tenant1 expected 2 messages, got %d", t1Count.Load())
	}
	if t2Count.Load() != 1 {
		t.Errorf("tenant2 expected 1 message, got %d", t2Count.Load())
	}
}

func TestChannelBusTopicIsolation(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	b.Subscribe(ctx, "tenant1", domain.TopicDecision, func(_ context.Context, _ *domain.Message) error {
		count.Add(1)
		return nil
	})

	b.Publish(ctx, "tenant1", domain.TopicTransactionIngested, []byte("x"))
	b.Publish(ctx, "tenant1", domain.TopicDecision, []byte("y"))

	time.Sleep(50 * time.Millisecond)

	if count.Load() != 1 {
		t.Errorf("expected only the decision topic message, got %d", count.Load())
	}
}

func TestChannelBusRequiresTenant(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	if err := b.Publish(ctx, "", domain.TopicAlert, []byte("x")); err == nil {
		t.Error("Publish without tenant should fail")
	}
	if _, err := b.Subscribe(ctx, "", domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("Subscribe without tenant should fail")
	}
}

func TestChannelBusMultipleSubscribers(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var a, c atomic.Int64
	b.Subscribe(ctx, "tenant1", domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		a.Add(1)
		return nil
	})
	b.Subscribe(ctx, "tenant1", domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		c.Add(1)
		return nil
	})

	b.Publish(ctx, "tenant1", domain.TopicAlert, []byte("x"))

	time.Sleep(50 * time.Millisecond)

	if a.Load() != 1 || c.Load() != 1 {
		t.Errorf("both subscribers should receive the message: %d / %d", a.Load(), c.Load())
	}
}

func TestChannelBusUnsubscribe(t *testing.T) {
	b := NewChannelBus(100)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	sub, err := b.Subscribe(ctx, "tenant1", domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		count.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	b.Publish(ctx, "tenant1", domain.TopicAlert, []byte("before"))
	time.Sleep(50 * time.Millisecond)

	if err := sub.Unsubscribe(); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	b.Publish(ctx, "tenant1", domain.TopicAlert, []byte("after"))
	time.Sleep(50 * time.Millisecond)

	if count.Load() != 1 {
		t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
	}
}

func TestChannelBusClose(t *testing.T) {
	b := NewChannelBus(100)
	ctx := context.Background()

	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping failed on open bus: %v", err)
	}

	if err := b.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := b.Ping(ctx); err == nil {
		t.Error("Ping should fail on closed bus")
	}
	if err := b.Publish(ctx, "tenant1", domain.TopicAlert, []byte("x")); err == nil {
		t.Error("Publish should fail on closed bus")
	}
	if _, err := b.Subscribe(ctx, "tenant1", domain.TopicAlert, func(_ context.Context, _ *domain.Message) error {
		return nil
	}); err == nil {
		t.Error("Subscribe should fail on closed bus")
	}

	// Idempotent close.
	if err := b.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestChannelBusHighLoad(t *testing.T) {
	b := NewChannelBus(2000)
	defer b.Close()
	ctx := context.Background()

	var count atomic.Int64
	b.Subscribe(ctx, "tenant1", domain.TopicTransactionIngested, func(_ context.Context, _ *domain.Message) error {
		count.Add(1)
		return nil
	})

	const n = 1000
	for i := 0; i < n; i++ {
		if err := b.Publish(ctx, "tenant1", domain.TopicTransactionIngested, []byte("x")); err != nil {
			t.Fatalf("Publish failed at %d: %v", i, err)
		}
	}

	deadline := time.After(2 * time.Second)
	for count.Load() < n {
		select {
		case <-deadline:
			t.Fatalf("only %d of %d messages delivered", count.Load(), n)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestNewFactory(t *testing.T) {
	t.Run("Channel", func(t *testing.T) {
		b, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer b.Close()

		if _, ok := b.(*ChannelBus); !ok {
			t.Errorf("expected *ChannelBus, got %T", b)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported bus type")
		}
	})
}
