// Package worker scores ingested events off the bus, decoupled from the
// HTTP request path.
package worker

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/risk"
)

// Worker consumes ingested events, runs them through the assessor, and
// publishes decisions and alerts back on the bus.
type Worker struct {
	bus      domain.EventBus
	repo     domain.Repository
	assessor *risk.Assessor

	subs   []domain.Subscription
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// Config lists the tenants to consume. An empty list means one global
// subscription that routes on the event's own tenant.
type Config struct {
	TenantIDs []string
}

// NewWorker creates an unstarted worker.
func NewWorker(bus domain.EventBus, repo domain.Repository, assessor *risk.Assessor) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      bus,
		repo:     repo,
		assessor: assessor,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to the ingest topic for each configured tenant. A
// failed tenant subscription is logged and skipped, not fatal.
func (w *Worker) Start(cfg Config) error {
	if len(cfg.TenantIDs) == 0 {
		sub, err := w.bus.Subscribe(w.ctx, "_global", domain.TopicEventIngested, func(ctx context.Context, msg *domain.Message) error {
			return w.score(ctx, msg.TenantID, msg)
		})
		if err != nil {
			return err
		}
		w.subs = append(w.subs, sub)
		slog.Info("global worker started")
		return nil
	}

	for _, tenantID := range cfg.TenantIDs {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicEventIngested, func(ctx context.Context, msg *domain.Message) error {
			return w.score(ctx, tenantID, msg)
		})
		if err != nil {
			slog.Error("worker subscription failed", "tenant_id", tenantID, "error", err)
			continue
		}
		w.subs = append(w.subs, sub)
		slog.Info("tenant worker started", "tenant_id", tenantID, "topic", domain.TopicEventIngested)
	}

	slog.Info("workers started", "tenant_count", len(cfg.TenantIDs))
	return nil
}

// score runs one ingested event through the full assessment pipeline.
// Persistence is best-effort once scoring succeeded; only parse and
// scoring failures are returned.
func (w *Worker) score(ctx context.Context, tenantID string, msg *domain.Message) error {
	start := time.Now()

	var event domain.Event
	if err := json.Unmarshal(msg.Payload, &event); err != nil {
		slog.Error("dropping unparseable event message", "message_id", msg.ID, "error", err)
		return err
	}

	// The event's own tenant wins over the subscription tenant; a global
	// subscription relies on it.
	if event.TenantID != "" {
		tenantID = event.TenantID
	}
	event.TenantID = tenantID

	assessment, err := w.assessor.Assess(ctx, &event)
	if err != nil {
		slog.Error("assessment failed", "event_id", event.ID, "tenant_id", tenantID, "error", err)
		return err
	}

	if w.repo != nil {
		if err := w.repo.SaveEvent(ctx, tenantID, &event); err != nil {
			slog.Error("event persist failed", "event_id", event.ID, "error", err)
		}
		if err := w.repo.SaveAssessment(ctx, tenantID, assessment); err != nil {
			slog.Error("assessment persist failed", "event_id", event.ID, "error", err)
		}
	}

	result, _ := json.Marshal(assessment)
	if err := w.bus.Publish(ctx, tenantID, domain.TopicDecision, result); err != nil {
		slog.Error("decision publish failed", "event_id", event.ID, "error", err)
	}
	if assessment.Decision == domain.DecisionDecline || assessment.Tier == domain.TierCritical {
		if err := w.bus.Publish(ctx, tenantID, domain.TopicAlert, result); err != nil {
			slog.Error("alert publish failed", "event_id", event.ID, "error", err)
		}
	}

	slog.Info("event scored",
		"event_id", event.ID,
		"tenant_id", tenantID,
		"decision", assessment.Decision,
		"tier", assessment.Tier,
		"risk_score", assessment.RiskScore,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop detaches all subscriptions and waits for in-flight work.
func (w *Worker) Stop() error {
	w.cancel()
	for _, sub := range w.subs {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("unsubscribe failed", "topic", sub.Topic(), "error", err)
		}
	}
	w.subs = nil
	w.wg.Wait()
	slog.Info("workers stopped")
	return nil
}

// Stats describes the worker's active subscriptions.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
}

// GetStats reports the current subscription set.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subs))
	for i, sub := range w.subs {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subs),
		Topics:            topics,
	}
}
