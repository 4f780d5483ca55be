// Package velocity provides trailing-window activity counts for customers.
package velocity

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Window boundaries for velocity features.
const (
	windowHour = time.Hour
	windowDay  = 24 * time.Hour
	windowWeek = 7 * 24 * time.Hour
)

// Service calculates transaction velocity over the stored event stream.
// Absent history is the conservative non-signal: every failure path yields
// zero counts, never an error that would fail the assessment.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new velocity service.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Counts returns the customer's trailing 1h/24h/7d activity.
func (s *Service) Counts(ctx context.Context, tenantID, customerID string) (*domain.VelocityCounts, error) {
	counts := &domain.VelocityCounts{}
	if s.repo == nil || tenantID == "" || customerID == "" {
		return counts, nil
	}

	now := time.Now()
	hourAgo := now.Add(-windowHour)
	dayAgo := now.Add(-windowDay)
	weekAgo := now.Add(-windowWeek)

	counts.TxLastHour = s.count(ctx, tenantID, customerID, hourAgo)
	counts.TxLastDay = s.count(ctx, tenantID, customerID, dayAgo)
	counts.TxLastWeek = s.count(ctx, tenantID, customerID, weekAgo)

	counts.AmountLastHour = s.sum(ctx, tenantID, customerID, hourAgo)
	counts.AmountLastDay = s.sum(ctx, tenantID, customerID, dayAgo)
	counts.AmountLastWeek = s.sum(ctx, tenantID, customerID, weekAgo)

	counts.UniqueCardsDay = s.distinct(ctx, tenantID, customerID, "device_fingerprint", dayAgo)
	counts.UniqueIPsDay = s.distinct(ctx, tenantID, customerID, "ip_address", dayAgo)
	counts.UniqueDevicesWeek = s.distinct(ctx, tenantID, customerID, "device_fingerprint", weekAgo)

	return counts, nil
}

// Record bumps the short-window cache counter for a customer. The counter
// is advisory; authoritative counts come from the repository.
func (s *Service) Record(ctx context.Context, tenantID, customerID string) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.IncrementCounter(ctx, tenantID, "velocity:"+customerID, windowHour); err != nil {
		slog.Debug("velocity counter increment failed", "error", err)
	}
}

func (s *Service) count(ctx context.Context, tenantID, customerID string, since time.Time) float64 {
	n, err := s.repo.CountEventsSince(ctx, tenantID, customerID, since)
	if err != nil {
		slog.Debug("velocity count query failed", "error", err)
		return 0
	}
	return float64(n)
}

func (s *Service) sum(ctx context.Context, tenantID, customerID string, since time.Time) float64 {
	total, err := s.repo.SumAmountSince(ctx, tenantID, customerID, since)
	if err != nil {
		slog.Debug("velocity sum query failed", "error", err)
		return 0
	}
	return total
}

func (s *Service) distinct(ctx context.Context, tenantID, customerID, column string, since time.Time) float64 {
	n, err := s.repo.CountDistinctSince(ctx, tenantID, customerID, column, since)
	if err != nil {
		slog.Debug("velocity distinct query failed", "error", err)
		return 0
	}
	return float64(n)
}
