package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/scoring"
)

func newTestManager(t *testing.T) *alerts.Manager {
	t.Helper()

	engine, err := rules.NewEngine(10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(engine.Close)
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	scorer := scoring.NewRuleScorer(features.NewExtractor(), engine)
	return alerts.NewManager(scorer, nil, nil, nil)
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met before timeout")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestWorkerProcessesIngestedTransactions(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	manager := newTestManager(t)
	w := NewWorker(eventBus, manager)
	defer w.Stop()

	if err := w.Start(Config{TenantIDs: []string{"tenant1"}, WorkerCount: 1}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Capture the decision the worker fans out.
	var decisions atomic.Int64
	var lastResult atomic.Value
	_, err := eventBus.Subscribe(ctx, "tenant1", domain.TopicDecision, func(_ context.Context, msg *domain.Message) error {
		var result domain.AnalysisResult
		if err := json.Unmarshal(msg.Payload, &result); err != nil {
			return err
		}
		lastResult.Store(&result)
		decisions.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	hour := 3
	req := domain.TransactionRequest{
		ID:              "tx-async-1",
		UserID:          "USR-1",
		Amount:          15000,
		Hour:            &hour,
		IsInternational: true,
	}
	payload, _ := json.Marshal(&req)

	if err := eventBus.Publish(ctx, "tenant1", domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return decisions.Load() == 1 })

	result := lastResult.Load().(*domain.AnalysisResult)
	if result.TransactionID != "tx-async-1" {
		t.Errorf("unexpected transaction id %s", result.TransactionID)
	}
	if result.RiskScore != 90 {
		t.Errorf("expected score 90, got %d", result.RiskScore)
	}
	if result.AlertID == "" {
		t.Error("expected an alert for a high-risk transaction")
	}
	if manager.Count() != 1 {
		t.Errorf("expected 1 stored alert, got %d", manager.Count())
	}
}

func TestWorkerIgnoresOtherTenants(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	manager := newTestManager(t)
	w := NewWorker(eventBus, manager)
	defer w.Stop()

	if err := w.Start(Config{TenantIDs: []string{"tenant1"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	hour := 3
	req := domain.TransactionRequest{ID: "tx-1", Amount: 15000, Hour: &hour, IsInternational: true}
	payload, _ := json.Marshal(&req)

	if err := eventBus.Publish(ctx, "tenant2", domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if manager.Count() != 0 {
		t.Errorf("worker processed a foreign tenant's transaction: %d alerts", manager.Count())
	}
}

func TestWorkerMalformedPayload(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()
	ctx := context.Background()

	manager := newTestManager(t)
	w := NewWorker(eventBus, manager)
	defer w.Stop()

	if err := w.Start(Config{TenantIDs: []string{"tenant1"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := eventBus.Publish(ctx, "tenant1", domain.TopicTransactionIngested, []byte("{not json")); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	// A bad message is dropped, not fatal: the worker keeps consuming.
	hour := 3
	req := domain.TransactionRequest{ID: "tx-ok", Amount: 15000, Hour: &hour, IsInternational: true}
	payload, _ := json.Marshal(&req)
	if err := eventBus.Publish(ctx, "tenant1", domain.TopicTransactionIngested, payload); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool { return manager.Count() == 1 })
}

func TestWorkerStats(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, newTestManager(t))

	if err := w.Start(Config{TenantIDs: []string{"tenant1", "tenant2"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("expected 2 subscriptions, got %d", stats.SubscriptionCount)
	}
	for _, topic := range stats.Topics {
		if topic != domain.TopicTransactionIngested {
			t.Errorf("unexpected topic %s", topic)
		}
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if w.GetStats().SubscriptionCount != 0 {
		t.Error("expected no subscriptions after Stop")
	}
}

// captiveBus hands the subscribed handler back to the test and blocks
// decision publishes until released, keeping a handler in flight.
type captiveBus struct {
	handler    domain.MessageHandler
	publishing chan struct{}
	release    chan struct{}
}

func (b *captiveBus) Publish(ctx context.Context, tenantID, topic string, payload []byte) error {
	if topic == domain.TopicDecision {
		b.publishing <- struct{}{}
		<-b.release
	}
	return nil
}

func (b *captiveBus) Subscribe(ctx context.Context, tenantID, topic string, handler domain.MessageHandler) (domain.Subscription, error) {
	b.handler = handler
	return &captiveSub{topic: topic}, nil
}

func (b *captiveBus) Ping(ctx context.Context) error { return nil }
func (b *captiveBus) Close() error                   { return nil }

type captiveSub struct{ topic string }

func (s *captiveSub) Unsubscribe() error { return nil }
func (s *captiveSub) Topic() string      { return s.topic }

func TestStopWaitsForInFlightHandlers(t *testing.T) {
	b := &captiveBus{
		publishing: make(chan struct{}),
		release:    make(chan struct{}),
	}
	w := NewWorker(b, newTestManager(t))

	if err := w.Start(Config{TenantIDs: []string{"tenant1"}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	payload, _ := json.Marshal(domain.TransactionRequest{
		ID:        "tx-drain-1",
		UserID:    "USR-1",
		AccountID: "ACC-1",
		Amount:    25,
	})
	go b.handler(context.Background(), &domain.Message{
		ID:       "msg-drain-1",
		TenantID: "tenant1",
		Payload:  payload,
	})

	// Handler is now mid-flight, parked on the decision publish.
	<-b.publishing

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatal("Stop returned while a handler was still in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(b.release)

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return after the handler finished")
	}
}
