package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// New builds the configured cache. "memory" yields the local LRU;
// "redis" yields Redis, wrapped in a TwoPhaseCache when two-phase mode
// is enabled.
func New(cfg domain.CacheConfig) (domain.Cache, error) {
	switch cfg.Type {
	case "memory":
		return NewLRUCache(cfg.LocalMaxSize), nil
	case "redis":
		if cfg.EnableTwoPhase {
			return NewTwoPhaseCache(cfg)
		}
		return NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.Type)
	}
}

// TwoPhaseCache layers a local LRU over Redis: reads try the LRU first
// and backfill it on a Redis hit, writes go to both with a shorter local
// TTL. Counters bypass the local layer so that velocity counts stay
// accurate across nodes.
type TwoPhaseCache struct {
	local  *LRUCache
	remote *RedisCache
	l1TTL  time.Duration
}

// NewTwoPhaseCache builds the layered cache from one config.
func NewTwoPhaseCache(cfg domain.CacheConfig) (*TwoPhaseCache, error) {
	remote, err := NewRedisCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		return nil, fmt.Errorf("two-phase remote layer: %w", err)
	}

	l1TTL := cfg.LocalTTL
	if l1TTL == 0 {
		l1TTL = 5 * time.Minute
	}

	return &TwoPhaseCache{
		local:  NewLRUCache(cfg.LocalMaxSize),
		remote: remote,
		l1TTL:  l1TTL,
	}, nil
}

// localTTL caps the local layer's TTL at the requested one.
func (c *TwoPhaseCache) localTTL(ttl time.Duration) time.Duration {
	if ttl < c.l1TTL {
		return ttl
	}
	return c.l1TTL
}

// Get reads through the layers, backfilling the local one on a remote
// hit.
func (c *TwoPhaseCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	val, err := c.local.Get(ctx, tenantID, key)
	if err != nil || val != nil {
		return val, err
	}

	val, err = c.remote.Get(ctx, tenantID, key)
	if err != nil {
		return nil, err
	}
	if val != nil {
		_ = c.local.Set(ctx, tenantID, key, val, c.l1TTL)
	}
	return val, nil
}

// Set writes to both layers.
func (c *TwoPhaseCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, tenantID, key, value, c.localTTL(ttl)); err != nil {
		return err
	}
	return c.remote.Set(ctx, tenantID, key, value, ttl)
}

// Delete removes the key from both layers.
func (c *TwoPhaseCache) Delete(ctx context.Context, tenantID string, key string) error {
	if err := c.local.Delete(ctx, tenantID, key); err != nil {
		return err
	}
	return c.remote.Delete(ctx, tenantID, key)
}

// GetCustomerContext reads a customer snapshot through the layers.
func (c *TwoPhaseCache) GetCustomerContext(ctx context.Context, tenantID string, customerID string) (*domain.CustomerContext, error) {
	cc, err := c.local.GetCustomerContext(ctx, tenantID, customerID)
	if err != nil || cc != nil {
		return cc, err
	}

	cc, err = c.remote.GetCustomerContext(ctx, tenantID, customerID)
	if err != nil {
		return nil, err
	}
	if cc != nil {
		_ = c.local.SetCustomerContext(ctx, tenantID, customerID, cc, c.l1TTL)
	}
	return cc, nil
}

// SetCustomerContext writes a customer snapshot to both layers.
func (c *TwoPhaseCache) SetCustomerContext(ctx context.Context, tenantID string, customerID string, cc *domain.CustomerContext, ttl time.Duration) error {
	if err := c.local.SetCustomerContext(ctx, tenantID, customerID, cc, c.localTTL(ttl)); err != nil {
		return err
	}
	return c.remote.SetCustomerContext(ctx, tenantID, customerID, cc, ttl)
}

// IncrementCounter always goes to Redis; a local counter would double
// count when multiple nodes serve the same tenant.
func (c *TwoPhaseCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	return c.remote.IncrementCounter(ctx, tenantID, key, window)
}

// Ping checks both layers.
func (c *TwoPhaseCache) Ping(ctx context.Context) error {
	if err := c.local.Ping(ctx); err != nil {
		return fmt.Errorf("local layer: %w", err)
	}
	if err := c.remote.Ping(ctx); err != nil {
		return fmt.Errorf("remote layer: %w", err)
	}
	return nil
}

// Close closes both layers.
func (c *TwoPhaseCache) Close() error {
	_ = c.local.Close()
	return c.remote.Close()
}

// Stats reports the local layer's occupancy.
func (c *TwoPhaseCache) Stats() (size int, capacity int) {
	return c.local.Stats()
}
