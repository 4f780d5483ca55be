// Package customer provides customer history lookup for feature extraction.
package customer

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// contextTTL bounds how stale a cached customer snapshot may be.
const contextTTL = 5 * time.Minute

// Service resolves customer history snapshots. Lookup failures never fail
// an assessment: the unknown-new-customer default is returned instead.
type Service struct {
	repo  domain.Repository
	cache domain.Cache
}

// NewService creates a new customer context provider.
func NewService(repo domain.Repository, cache domain.Cache) *Service {
	return &Service{
		repo:  repo,
		cache: cache,
	}
}

// Context returns the customer's history snapshot, from cache when fresh.
// An unknown customer or an unavailable source yields the default profile,
// never an error for the caller to handle mid-assessment.
func (s *Service) Context(ctx context.Context, tenantID, customerID string) (*domain.CustomerContext, error) {
	if customerID == "" {
		return domain.DefaultCustomerContext(customerID), nil
	}

	if s.cache != nil {
		cc, err := s.cache.GetCustomerContext(ctx, tenantID, customerID)
		if err == nil && cc != nil {
			return cc, nil
		}
	}

	if s.repo == nil {
		return domain.DefaultCustomerContext(customerID), nil
	}

	cc, err := s.repo.GetCustomerStats(ctx, tenantID, customerID)
	if err != nil {
		slog.Debug("customer stats lookup failed, using default profile",
			"customer_id", customerID,
			"error", err,
		)
		return domain.DefaultCustomerContext(customerID), nil
	}

	if s.cache != nil {
		if err := s.cache.SetCustomerContext(ctx, tenantID, customerID, cc, contextTTL); err != nil {
			slog.Debug("failed to cache customer context", "error", err)
		}
	}
	return cc, nil
}

// Invalidate drops the cached snapshot, forcing the next lookup through
// the repository. Called after history-changing writes.
func (s *Service) Invalidate(ctx context.Context, tenantID, customerID string) {
	if s.cache == nil {
		return
	}
	_ = s.cache.Delete(ctx, tenantID, "customer:"+customerID)
}
