package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/redis/go-redis/v9"
)

// counterScript increments a window counter and arms its TTL only on the
// first increment, keeping the window fixed across concurrent writers.
var counterScript = redis.NewScript(`
	local current = redis.call('INCR', KEYS[1])
	if current == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	return current
`)

// RedisCache is the shared cache for multi-node deployments, and the
// L2 layer under TwoPhaseCache. Keys carry a "shrike:<tenant>:" prefix.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache connects to Redis and verifies the connection before
// returning.
func NewRedisCache(addr, password string, db int) (*RedisCache, error) {
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis unreachable: %w", err)
	}

	return &RedisCache{client: client}, nil
}

func (c *RedisCache) key(tenantID, key string) string {
	return "shrike:" + tenantID + ":" + key
}

// Get returns the cached value, or nil, nil on a miss.
func (c *RedisCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}
	val, err := c.client.Get(ctx, c.key(tenantID, key)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

// Set stores a value with the given TTL.
func (c *RedisCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Set(ctx, c.key(tenantID, key), value, ttl).Err()
}

// Delete removes the tenant's key.
func (c *RedisCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	return c.client.Del(ctx, c.key(tenantID, key)).Err()
}

// GetCustomerContext returns the cached customer history snapshot, or
// nil, nil when none is cached.
func (c *RedisCache) GetCustomerContext(ctx context.Context, tenantID string, customerID string) (*domain.CustomerContext, error) {
	data, err := c.Get(ctx, tenantID, "customer:"+customerID)
	if err != nil || data == nil {
		return nil, err
	}
	var cc domain.CustomerContext
	if err := json.Unmarshal(data, &cc); err != nil {
		return nil, err
	}
	return &cc, nil
}

// SetCustomerContext caches a customer history snapshot.
func (c *RedisCache) SetCustomerContext(ctx context.Context, tenantID string, customerID string, cc *domain.CustomerContext, ttl time.Duration) error {
	data, err := json.Marshal(cc)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "customer:"+customerID, data, ttl)
}

// IncrementCounter bumps a fixed-window counter atomically and returns
// the new count.
func (c *RedisCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}
	k := c.key(tenantID, "counter:"+key)
	return counterScript.Run(ctx, c.client, []string{k}, window.Milliseconds()).Int64()
}

// Ping checks Redis connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
