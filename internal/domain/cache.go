package domain

import (
	"context"
	"time"
)

// Cache is tenant-partitioned key-value storage with TTLs. Every method
// takes a tenant ID; implementations must never let keys collide across
// tenants. Backed by an in-process LRU, Redis, or both layered.
type Cache interface {
	// Get returns the stored value, or nil with no error on a miss.
	Get(ctx context.Context, tenantID string, key string) ([]byte, error)

	// Set stores a value that expires after ttl.
	Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error

	// Delete drops a key. Deleting an absent key is not an error.
	Delete(ctx context.Context, tenantID string, key string) error

	// GetCustomerContext retrieves a cached customer history snapshot.
	GetCustomerContext(ctx context.Context, tenantID string, customerID string) (*CustomerContext, error)

	// SetCustomerContext caches a customer history snapshot.
	SetCustomerContext(ctx context.Context, tenantID string, customerID string, cc *CustomerContext, ttl time.Duration) error

	// IncrementCounter bumps a windowed counter and returns the new
	// count. Velocity tracking relies on the increment and the window
	// reset being atomic.
	IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error)

	Ping(ctx context.Context) error
	Close() error
}

// CacheConfig selects and tunes the cache backend.
type CacheConfig struct {
	// Type picks the backend: "memory" or "redis".
	Type string `json:"type" yaml:"type"`

	// In-process LRU layer.
	LocalMaxSize int           `json:"localMaxSize" yaml:"local_max_size"`
	LocalTTL     time.Duration `json:"localTtl" yaml:"local_ttl"`

	// Redis layer.
	RedisAddr     string `json:"redisAddr" yaml:"redis_addr"`
	RedisPassword string `json:"redisPassword" yaml:"redis_password"`
	RedisDB       int    `json:"redisDb" yaml:"redis_db"`

	// EnableTwoPhase layers the LRU in front of Redis.
	EnableTwoPhase bool `json:"enableTwoPhase" yaml:"enable_two_phase"`
}
