// Package cache provides the caching implementations for Shrike.
package cache

import (
	"container/list"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// LRUCache is an in-memory cache with per-entry TTL and least-recently-
// used eviction. It serves single-node deployments directly and acts as
// the L1 layer under TwoPhaseCache. Keys are namespaced by tenant, so
// entries never cross tenants.
type LRUCache struct {
	mu       sync.RWMutex
	capacity int
	index    map[string]*list.Element
	recency  *list.List
	windows  map[string]*windowCounter
}

type lruEntry struct {
	key      string
	value    []byte
	deadline time.Time
}

// windowCounter is a fixed-window counter: the count resets when the
// window elapses, not a sliding decay.
type windowCounter struct {
	n        int64
	deadline time.Time
}

// NewLRUCache creates a cache holding at most maxSize entries.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize <= 0 {
		maxSize = 10000
	}
	return &LRUCache{
		capacity: maxSize,
		index:    make(map[string]*list.Element),
		recency:  list.New(),
		windows:  make(map[string]*windowCounter),
	}
}

func tenantKey(tenantID, key string) string {
	return tenantID + ":" + key
}

// Get returns the cached value, or nil, nil on a miss or expired entry.
func (c *LRUCache) Get(ctx context.Context, tenantID string, key string) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.index[tenantKey(tenantID, key)]
	if !ok {
		return nil, nil
	}
	entry := elem.Value.(*lruEntry)
	if time.Now().After(entry.deadline) {
		c.evict(elem)
		return nil, nil
	}

	c.recency.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value under the tenant's key, evicting the least recently
// used entries when over capacity.
func (c *LRUCache) Set(ctx context.Context, tenantID string, key string, value []byte, ttl time.Duration) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}
	k := tenantKey(tenantID, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[k]; ok {
		c.recency.MoveToFront(elem)
		entry := elem.Value.(*lruEntry)
		entry.value = value
		entry.deadline = time.Now().Add(ttl)
		return nil
	}

	elem := c.recency.PushFront(&lruEntry{
		key:      k,
		value:    value,
		deadline: time.Now().Add(ttl),
	})
	c.index[k] = elem

	for c.recency.Len() > c.capacity {
		if oldest := c.recency.Back(); oldest != nil {
			c.evict(oldest)
		}
	}
	return nil
}

// Delete removes the tenant's key if present.
func (c *LRUCache) Delete(ctx context.Context, tenantID string, key string) error {
	if tenantID == "" {
		return fmt.Errorf("tenantID is required")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.index[tenantKey(tenantID, key)]; ok {
		c.evict(elem)
	}
	return nil
}

// GetCustomerContext returns the cached customer history snapshot, or
// nil, nil when none is cached.
func (c *LRUCache) GetCustomerContext(ctx context.Context, tenantID string, customerID string) (*domain.CustomerContext, error) {
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
func (c *LRUCache) SetCustomerContext(ctx context.Context, tenantID string, customerID string, cc *domain.CustomerContext, ttl time.Duration) error {
	data, err := json.Marshal(cc)
	if err != nil {
		return err
	}
	return c.Set(ctx, tenantID, "customer:"+customerID, data, ttl)
}

// IncrementCounter bumps a fixed-window counter and returns the new
// count. An elapsed window starts over at 1.
func (c *LRUCache) IncrementCounter(ctx context.Context, tenantID string, key string, window time.Duration) (int64, error) {
	if tenantID == "" {
		return 0, fmt.Errorf("tenantID is required")
	}
	k := tenantKey(tenantID, "counter:"+key)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	w, ok := c.windows[k]
	if !ok || now.After(w.deadline) {
		c.windows[k] = &windowCounter{n: 1, deadline: now.Add(window)}
		return 1, nil
	}
	w.n++
	return w.n, nil
}

// Ping always succeeds; the in-memory cache has no remote dependency.
func (c *LRUCache) Ping(ctx context.Context) error {
	return nil
}

// Close drops all entries and counters.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = make(map[string]*list.Element)
	c.recency = list.New()
	c.windows = make(map[string]*windowCounter)
	return nil
}

// Stats returns the current entry count and the configured capacity.
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.recency.Len(), c.capacity
}

// evict removes an element; callers hold the write lock.
func (c *LRUCache) evict(elem *list.Element) {
	c.recency.Remove(elem)
	delete(c.index, elem.Value.(*lruEntry).key)
}
