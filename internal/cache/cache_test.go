package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

func TestLRUCacheBasics(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(100)
	const tenant = "acme"

	t.Run("RoundTrip", func(t *testing.T) {
		if err := c.Set(ctx, tenant, "greeting", []byte("hello"), time.Minute); err != nil {
			t.Fatalf("Set: %v", err)
		}
		got, err := c.Get(ctx, tenant, "greeting")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if string(got) != "hello" {
			t.Errorf("Get = %q, want %q", got, "hello")
		}
	})

	t.Run("MissIsNilNotError", func(t *testing.T) {
		got, err := c.Get(ctx, tenant, "never-written")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != nil {
			t.Errorf("Get on miss = %q, want nil", got)
		}
	})

	t.Run("DeleteRemoves", func(t *testing.T) {
		_ = c.Set(ctx, tenant, "doomed", []byte("x"), time.Minute)
		if err := c.Delete(ctx, tenant, "doomed"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
		if got, _ := c.Get(ctx, tenant, "doomed"); got != nil {
			t.Errorf("Get after Delete = %q, want nil", got)
		}
	})

	t.Run("EntriesExpire", func(t *testing.T) {
		_ = c.Set(ctx, tenant, "short-lived", []byte("x"), 10*time.Millisecond)
		if got, _ := c.Get(ctx, tenant, "short-lived"); got == nil {
			t.Fatal("entry missing before its TTL elapsed")
		}
		time.Sleep(25 * time.Millisecond)
		if got, _ := c.Get(ctx, tenant, "short-lived"); got != nil {
			t.Errorf("Get after TTL = %q, want nil", got)
		}
	})

	t.Run("EmptyTenantRejected", func(t *testing.T) {
		if err := c.Set(ctx, "", "k", []byte("v"), time.Minute); err == nil {
			t.Error("Set with empty tenant succeeded")
		}
		if _, err := c.Get(ctx, "", "k"); err == nil {
			t.Error("Get with empty tenant succeeded")
		}
	})

	t.Run("PingAlwaysHealthy", func(t *testing.T) {
		if err := c.Ping(ctx); err != nil {
			t.Errorf("Ping: %v", err)
		}
	})
}

func TestLRUCacheEviction(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(3)
	const tenant = "acme"

	for _, k := range []string{"a", "b", "c"} {
		_ = c.Set(ctx, tenant, k, []byte(k), time.Minute)
	}

	// Touch "a" so "b" becomes the coldest entry, then overflow.
	_, _ = c.Get(ctx, tenant, "a")
	_ = c.Set(ctx, tenant, "d", []byte("d"), time.Minute)

	if got, _ := c.Get(ctx, tenant, "b"); got != nil {
		t.Error("coldest entry survived eviction")
	}
	if got, _ := c.Get(ctx, tenant, "a"); got == nil {
		t.Error("recently used entry was evicted")
	}

	if size, capacity := c.Stats(); size != 3 || capacity != 3 {
		t.Errorf("Stats = (%d, %d), want (3, 3)", size, capacity)
	}
}

func TestLRUCacheTenantIsolation(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(100)

	_ = c.Set(ctx, "acme", "plan", []byte("acme-plan"), time.Minute)
	_ = c.Set(ctx, "globex", "plan", []byte("globex-plan"), time.Minute)

	for tenant, want := range map[string]string{"acme": "acme-plan", "globex": "globex-plan"} {
		got, _ := c.Get(ctx, tenant, "plan")
		if string(got) != want {
			t.Errorf("tenant %s: Get = %q, want %q", tenant, got, want)
		}
	}
}

func TestLRUCacheCounters(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(100)
	window := 100 * time.Millisecond

	for want := int64(1); want <= 3; want++ {
		n, err := c.IncrementCounter(ctx, "acme", "tx-rate", window)
		if err != nil {
			t.Fatalf("IncrementCounter: %v", err)
		}
		if n != want {
			t.Errorf("IncrementCounter = %d, want %d", n, want)
		}
	}

	time.Sleep(150 * time.Millisecond)

	if n, _ := c.IncrementCounter(ctx, "acme", "tx-rate", window); n != 1 {
		t.Errorf("IncrementCounter after window rollover = %d, want 1", n)
	}
}

func TestLRUCacheCustomerContext(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(100)
	const tenant = "acme"

	profile := &domain.CustomerContext{
		CustomerID:    "cust-88",
		AgeDays:       730,
		TotalOrders:   31,
		AvgOrderValue: 87.25,
		RiskScore:     14,
	}

	if err := c.SetCustomerContext(ctx, tenant, profile.CustomerID, profile, time.Minute); err != nil {
		t.Fatalf("SetCustomerContext: %v", err)
	}

	got, err := c.GetCustomerContext(ctx, tenant, profile.CustomerID)
	if err != nil {
		t.Fatalf("GetCustomerContext: %v", err)
	}
	if got.CustomerID != profile.CustomerID || got.AvgOrderValue != profile.AvgOrderValue {
		t.Errorf("GetCustomerContext = %+v, want %+v", got, profile)
	}

	missed, err := c.GetCustomerContext(ctx, tenant, "stranger")
	if err != nil {
		t.Fatalf("GetCustomerContext miss: %v", err)
	}
	if missed != nil {
		t.Errorf("GetCustomerContext miss = %+v, want nil", missed)
	}
}

func TestLRUCacheClose(t *testing.T) {
	ctx := context.Background()
	c := NewLRUCache(10)
	_ = c.Set(ctx, "acme", "k", []byte("v"), time.Minute)

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if got, _ := c.Get(ctx, "acme", "k"); got != nil {
		t.Error("entry survived Close")
	}
}

func TestCacheFactory(t *testing.T) {
	t.Run("Memory", func(t *testing.T) {
		c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		defer c.Close()

		if _, ok := c.(*LRUCache); !ok {
			t.Errorf("New(memory) = %T, want *LRUCache", c)
		}
	})

	t.Run("UnknownType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("New accepted an unknown cache type")
		}
	})
}
