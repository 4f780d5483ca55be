package worker

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/bus"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/risk"
	"github.com/opensource-finance/shrike/internal/scoring"
)

func newTestAssessor() *risk.Assessor {
	cfg := domain.DefaultScoringConfig()
	extractor := features.NewExtractor(domain.DefaultListsConfig())
	scorer := scoring.NewScorer(scoring.NewDefaultSnapshot(cfg.ModelWeights, cfg.TierThresholds))
	return risk.NewAssessor(cfg, extractor, scorer, nil, nil, nil)
}

func publishEvent(t *testing.T, eventBus domain.EventBus, tenantID string, event *domain.Event) {
	t.Helper()
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}
	if err := eventBus.Publish(context.Background(), tenantID, domain.TopicEventIngested, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
}

func waitFor(t *testing.T, check func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestWorkerScoresIngestedEvents(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	var decisions atomic.Int32
	var lastAssessment atomic.Pointer[domain.RiskAssessment]

	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		var a domain.RiskAssessment
		if err := json.Unmarshal(msg.Payload, &a); err != nil {
			return err
		}
		lastAssessment.Store(&a)
		decisions.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	w := NewWorker(eventBus, nil, newTestAssessor())
	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	time.Sleep(10 * time.Millisecond)

	publishEvent(t, eventBus, tenantID, &domain.Event{
		ID:         "evt-1",
		Amount:     120,
		Currency:   "USD",
		CustomerID: "cust-1",
		Email:      "alice@example.com",
		IPAddress:  "8.8.8.8",
	})

	waitFor(t, func() bool { return decisions.Load() == 1 }, "decision not published")

	a := lastAssessment.Load()
	if a.EventID != "evt-1" || a.TenantID != tenantID {
		t.Errorf("assessment identity wrong: %+v", a)
	}
	if a.Decision == "" || a.Tier == "" {
		t.Errorf("assessment incomplete: %+v", a)
	}
}

func TestWorkerRaisesAlertOnDecline(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	var alerts atomic.Int32
	_, err := eventBus.Subscribe(ctx, tenantID, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts.Add(1)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	w := NewWorker(eventBus, nil, newTestAssessor())
	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(10 * time.Millisecond)

	// VPN address plus unknown customer plus a six-figure amount scores
	// into DECLINE on the fallback path, which must raise an alert.
	publishEvent(t, eventBus, tenantID, &domain.Event{
		ID:         "evt-hot",
		Amount:     120000,
		Currency:   "USD",
		CustomerID: "cust-x",
		Email:      "x@mailinator.com",
		IPAddress:  "45.142.120.8",
	})

	waitFor(t, func() bool { return alerts.Load() == 1 }, "alert not raised for declined event")
}

func TestWorkerNoAlertOnApprove(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	var alerts atomic.Int32
	eventBus.Subscribe(ctx, tenantID, domain.TopicAlert, func(ctx context.Context, msg *domain.Message) error {
		alerts.Add(1)
		return nil
	})

	var decisions atomic.Int32
	eventBus.Subscribe(ctx, tenantID, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions.Add(1)
		return nil
	})

	w := NewWorker(eventBus, nil, newTestAssessor())
	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(10 * time.Millisecond)

	publishEvent(t, eventBus, tenantID, &domain.Event{
		ID:         "evt-ok",
		Amount:     40,
		Currency:   "USD",
		CustomerID: "cust-1",
		Email:      "alice@example.com",
		IPAddress:  "8.8.8.8",
	})

	waitFor(t, func() bool { return decisions.Load() == 1 }, "decision not published")

	if alerts.Load() != 0 {
		t.Errorf("alert raised for a benign event")
	}
}

func TestWorkerSkipsMalformedPayload(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	var decisions atomic.Int32
	eventBus.Subscribe(ctx, tenantID, domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions.Add(1)
		return nil
	})

	w := NewWorker(eventBus, nil, newTestAssessor())
	if err := w.Start(Config{TenantIDs: []string{tenantID}}); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(10 * time.Millisecond)

	eventBus.Publish(ctx, tenantID, domain.TopicEventIngested, []byte("{not json"))
	publishEvent(t, eventBus, tenantID, &domain.Event{
		ID:         "evt-after",
		Amount:     50,
		Currency:   "USD",
		CustomerID: "cust-1",
		Email:      "alice@example.com",
		IPAddress:  "8.8.8.8",
	})

	// The malformed message is dropped, the valid one still flows.
	waitFor(t, func() bool { return decisions.Load() == 1 }, "valid event not processed after malformed one")
}

func TestWorkerStats(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	w := NewWorker(eventBus, nil, newTestAssessor())
	if err := w.Start(Config{TenantIDs: []string{"t1", "t2"}}); err != nil {
		t.Fatal(err)
	}

	stats := w.GetStats()
	if stats.SubscriptionCount != 2 {
		t.Errorf("SubscriptionCount = %d, want 2", stats.SubscriptionCount)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if got := w.GetStats().SubscriptionCount; got != 0 {
		t.Errorf("SubscriptionCount after Stop = %d, want 0", got)
	}
}

func TestWorkerGlobalSubscription(t *testing.T) {
	eventBus := bus.NewChannelBus(100)
	defer eventBus.Close()

	ctx := context.Background()

	// Events published under the global tenant carry their own tenant in
	// the payload; decisions come back on that tenant's subject.
	var decisions atomic.Int32
	eventBus.Subscribe(ctx, "acme", domain.TopicDecision, func(ctx context.Context, msg *domain.Message) error {
		decisions.Add(1)
		return nil
	})

	w := NewWorker(eventBus, nil, newTestAssessor())
	if err := w.Start(Config{}); err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	time.Sleep(10 * time.Millisecond)

	publishEvent(t, eventBus, "_global", &domain.Event{
		ID:         "evt-g",
		TenantID:   "acme",
		Amount:     75,
		Currency:   "USD",
		CustomerID: "cust-g",
		Email:      "g@example.com",
		IPAddress:  "8.8.8.8",
	})

	waitFor(t, func() bool { return decisions.Load() == 1 }, "global worker did not route by payload tenant")
}
