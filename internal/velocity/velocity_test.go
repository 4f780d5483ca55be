package velocity

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/cache"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/repository"
)

func TestVelocityService(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "velocity-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	lruCache := cache.NewLRUCache(100)
	t.Cleanup(func() { lruCache.Close() })

	svc := NewService(repo, lruCache)

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("EmptyHistory", func(t *testing.T) {
		counts, err := svc.Counts(ctx, tenantID, "cust-001")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts.TxLastHour != 0 || counts.TxLastWeek != 0 {
			t.Errorf("expected zero counts, got %+v", counts)
		}
	})

	t.Run("WithEvents", func(t *testing.T) {
		now := time.Now()
		events := []struct {
			id     string
			amount float64
			ip     string
			device string
			age    time.Duration
		}{
			{"evt-v1", 100, "203.0.113.1", "fp-a", 10 * time.Minute},
			{"evt-v2", 200, "203.0.113.1", "fp-a", 30 * time.Minute},
			{"evt-v3", 300, "203.0.113.2", "fp-b", 6 * time.Hour},
			{"evt-v4", 400, "203.0.113.3", "fp-c", 3 * 24 * time.Hour},
			{"evt-v5", 500, "203.0.113.4", "fp-d", 30 * 24 * time.Hour}, // outside every window
		}
		for _, e := range events {
			event := &domain.Event{
				ID:                e.id,
				TenantID:          tenantID,
				Amount:            e.amount,
				Currency:          "USD",
				CustomerID:        "cust-002",
				Email:             "velocity@example.com",
				IPAddress:         e.ip,
				DeviceFingerprint: e.device,
				Timestamp:         now.Add(-e.age),
			}
			if err := repo.SaveEvent(ctx, tenantID, event); err != nil {
				t.Fatalf("failed to save event %s: %v", e.id, err)
			}
		}

		counts, err := svc.Counts(ctx, tenantID, "cust-002")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts.TxLastHour != 2 {
			t.Errorf("expected 2 tx in last hour, got %v", counts.TxLastHour)
		}
		if counts.TxLastDay != 3 {
			t.Errorf("expected 3 tx in last day, got %v", counts.TxLastDay)
		}
		if counts.TxLastWeek != 4 {
			t.Errorf("expected 4 tx in last week, got %v", counts.TxLastWeek)
		}
		if counts.AmountLastHour != 300 {
			t.Errorf("expected 300 spent in last hour, got %v", counts.AmountLastHour)
		}
		if counts.AmountLastDay != 600 {
			t.Errorf("expected 600 spent in last day, got %v", counts.AmountLastDay)
		}
		if counts.AmountLastWeek != 1000 {
			t.Errorf("expected 1000 spent in last week, got %v", counts.AmountLastWeek)
		}
		if counts.UniqueIPsDay != 2 {
			t.Errorf("expected 2 unique IPs in last day, got %v", counts.UniqueIPsDay)
		}
		if counts.UniqueCardsDay != 2 {
			t.Errorf("expected 2 unique instruments in last day, got %v", counts.UniqueCardsDay)
		}
		if counts.UniqueDevicesWeek != 3 {
			t.Errorf("expected 3 unique devices in last week, got %v", counts.UniqueDevicesWeek)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		counts, err := svc.Counts(ctx, "tenant-other", "cust-002")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts.TxLastWeek != 0 {
			t.Errorf("expected zero counts for other tenant, got %v", counts.TxLastWeek)
		}
	})

	t.Run("EmptyCustomerID", func(t *testing.T) {
		counts, err := svc.Counts(ctx, tenantID, "")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if counts.TxLastHour != 0 {
			t.Errorf("expected zero counts without a customer, got %v", counts.TxLastHour)
		}
	})

	t.Run("Record", func(t *testing.T) {
		svc.Record(ctx, tenantID, "cust-003")
		svc.Record(ctx, tenantID, "cust-003")

		// A third increment observes the two recorded above.
		n, err := lruCache.IncrementCounter(ctx, tenantID, "velocity:cust-003", time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 3 {
			t.Errorf("expected counter at 3, got %d", n)
		}
	})
}

func TestVelocityNoDataSource(t *testing.T) {
	svc := NewService(nil, nil)
	ctx := context.Background()

	counts, err := svc.Counts(ctx, "tenant-001", "cust-001")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts == nil {
		t.Fatal("expected zero-valued counts, got nil")
	}
	if counts.TxLastHour != 0 || counts.AmountLastWeek != 0 || counts.UniqueIPsDay != 0 {
		t.Errorf("expected all-zero counts, got %+v", counts)
	}

	// Record without a cache is a no-op, not a panic.
	svc.Record(ctx, "tenant-001", "cust-001")
}

func TestVelocityManyCustomers(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "velocity-many-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	t.Cleanup(func() { os.Remove(tmpPath) })

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	svc := NewService(repo, nil)
	ctx := context.Background()
	tenantID := "tenant-001"

	// Each customer gets their own event; counts must not bleed across.
	for i := 0; i < 5; i++ {
		event := &domain.Event{
			ID:         fmt.Sprintf("evt-m%d", i),
			TenantID:   tenantID,
			Amount:     50,
			Currency:   "USD",
			CustomerID: fmt.Sprintf("cust-m%d", i),
			Email:      "many@example.com",
			IPAddress:  "203.0.113.9",
			Timestamp:  time.Now().Add(-time.Minute),
		}
		if err := repo.SaveEvent(ctx, tenantID, event); err != nil {
			t.Fatalf("failed to save event: %v", err)
		}
	}

	counts, err := svc.Counts(ctx, tenantID, "cust-m2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if counts.TxLastHour != 1 {
		t.Errorf("expected 1 tx for cust-m2, got %v", counts.TxLastHour)
	}
}
