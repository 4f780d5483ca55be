package features

import (
	"math"
	"testing"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

func testExtractor() *Extractor {
	return NewExtractor(domain.DefaultListsConfig())
}

func wantFeature(t *testing.T, fv domain.FeatureVector, name string, want float64) {
	t.Helper()
	got, ok := fv[name]
	if !ok {
		t.Fatalf("feature %q missing from vector", name)
	}
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("feature %q = %v, want %v", name, got, want)
	}
}

func TestExtractAmountFeatures(t *testing.T) {
	e := testExtractor()

	event := &domain.Event{
		Amount: 250,
		Items: []domain.LineItem{
			{SKU: "sku-1", Price: 100, Quantity: 1},
			{SKU: "sku-2", Price: 50, Quantity: 2},
			{SKU: "sku-3", Price: 150, Quantity: 1},
		},
	}

	fv := e.Extract(event, nil, nil)

	wantFeature(t, fv, "amount", 250)
	wantFeature(t, fv, "amount_log", math.Log1p(250))
	wantFeature(t, fv, "amount_sqrt", math.Sqrt(250))
	wantFeature(t, fv, "has_items", 1)
	wantFeature(t, fv, "items_count", 3)
	wantFeature(t, fv, "max_item_price", 150)
	wantFeature(t, fv, "min_item_price", 50)
	wantFeature(t, fv, "avg_item_price", 100)
	wantFeature(t, fv, "items_total_value", 300)

	// Population stddev of {100, 50, 150}.
	wantFeature(t, fv, "std_item_price", math.Sqrt(5000.0/3.0))
}

func TestExtractNoItems(t *testing.T) {
	e := testExtractor()
	fv := e.Extract(&domain.Event{Amount: 10}, nil, nil)

	wantFeature(t, fv, "has_items", 0)
	wantFeature(t, fv, "items_count", 0)
	wantFeature(t, fv, "avg_item_price", 0)
	wantFeature(t, fv, "items_total_value", 0)
}

func TestExtractCustomerDefaults(t *testing.T) {
	e := testExtractor()

	// Missing customer context degrades to the neutral profile instead of
	// failing extraction.
	fv := e.Extract(&domain.Event{Amount: 100}, nil, nil)

	wantFeature(t, fv, "customer_is_new", 1)
	wantFeature(t, fv, "customer_is_returning", 0)
	wantFeature(t, fv, "customer_total_orders", 0)
	wantFeature(t, fv, "customer_days_since_last_order", 999)
	wantFeature(t, fv, "customer_risk_score", 50)
}

func TestExtractCustomerFeatures(t *testing.T) {
	e := testExtractor()

	cc := &domain.CustomerContext{
		CustomerID:         "cust-1",
		AgeDays:            400,
		TotalOrders:        20,
		TotalSpent:         4000,
		AvgOrderValue:      200,
		ReturnRate:         0.05,
		ChargebackCount:    1,
		DaysSinceLastOrder: 7,
		OrderFrequency:     0.05,
		LifetimeValue:      3800,
		RiskScore:          30,
	}

	fv := e.Extract(&domain.Event{Amount: 180}, cc, nil)

	wantFeature(t, fv, "customer_is_new", 0)
	wantFeature(t, fv, "customer_is_returning", 1)
	wantFeature(t, fv, "customer_age_days", 400)
	wantFeature(t, fv, "customer_total_orders", 20)
	wantFeature(t, fv, "customer_total_spent", 4000)
	wantFeature(t, fv, "customer_avg_order_value", 200)
	wantFeature(t, fv, "customer_return_rate", 0.05)
	wantFeature(t, fv, "customer_chargeback_count", 1)
	wantFeature(t, fv, "customer_risk_score", 30)
}

func TestExtractTemporalFeatures(t *testing.T) {
	e := testExtractor()

	t.Run("weekday business hours", func(t *testing.T) {
		// Monday 2026-03-02 10:30 UTC.
		ts := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
		fv := e.Extract(&domain.Event{Amount: 10, Timestamp: ts}, nil, nil)

		wantFeature(t, fv, "hour_of_day", 10)
		wantFeature(t, fv, "day_of_week", 0)
		wantFeature(t, fv, "day_of_month", 2)
		wantFeature(t, fv, "is_weekend", 0)
		wantFeature(t, fv, "is_night", 0)
		wantFeature(t, fv, "is_business_hours", 1)
		wantFeature(t, fv, "minutes_since_midnight", 630)
	})

	t.Run("weekend night", func(t *testing.T) {
		// Saturday 2026-03-07 03:00 UTC.
		ts := time.Date(2026, 3, 7, 3, 0, 0, 0, time.UTC)
		fv := e.Extract(&domain.Event{Amount: 10, Timestamp: ts}, nil, nil)

		wantFeature(t, fv, "day_of_week", 5)
		wantFeature(t, fv, "is_weekend", 1)
		wantFeature(t, fv, "is_night", 1)
		wantFeature(t, fv, "is_business_hours", 0)
	})

	t.Run("zero timestamp falls back to clock", func(t *testing.T) {
		ext := testExtractor()
		ext.now = func() time.Time {
			return time.Date(2026, 3, 3, 23, 15, 0, 0, time.UTC)
		}
		fv := ext.Extract(&domain.Event{Amount: 10}, nil, nil)

		wantFeature(t, fv, "hour_of_day", 23)
		wantFeature(t, fv, "day_of_week", 1)
		wantFeature(t, fv, "is_night", 1)
	})
}

func TestExtractIPFeatures(t *testing.T) {
	e := testExtractor()

	tests := []struct {
		name string
		ip   string
		want map[string]float64
	}{
		{
			name: "vpn range",
			ip:   "45.142.120.17",
			want: map[string]float64{"has_ip": 1, "ip_is_vpn": 1, "ip_is_tor": 0, "ip_risk_score": 75},
		},
		{
			name: "tor range",
			ip:   "185.220.101.42",
			want: map[string]float64{"has_ip": 1, "ip_is_vpn": 0, "ip_is_tor": 1, "ip_risk_score": 90},
		},
		{
			name: "private address",
			ip:   "192.168.1.50",
			want: map[string]float64{"has_ip": 1, "ip_is_private": 1, "ip_risk_score": 0},
		},
		{
			name: "clean public address",
			ip:   "8.8.8.8",
			want: map[string]float64{"has_ip": 1, "ip_is_private": 0, "ip_is_vpn": 0, "ip_is_tor": 0, "ip_risk_score": 0},
		},
		{
			name: "unparseable address",
			ip:   "not-an-ip",
			want: map[string]float64{"has_ip": 1, "ip_risk_score": 50},
		},
		{
			name: "missing address",
			ip:   "",
			want: map[string]float64{"has_ip": 0, "ip_risk_score": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := e.Extract(&domain.Event{Amount: 10, IPAddress: tt.ip}, nil, nil)
			for name, want := range tt.want {
				wantFeature(t, fv, name, want)
			}
		})
	}
}

func TestExtractEmailFeatures(t *testing.T) {
	e := testExtractor()

	tests := []struct {
		name  string
		email string
		want  map[string]float64
	}{
		{
			name:  "normal address",
			email: "alice@example.com",
			want: map[string]float64{
				"has_email":           1,
				"email_is_valid":      1,
				"email_is_disposable": 0,
				"email_has_plus":      0,
				"email_domain_risk":   0,
				"email_length":        17,
			},
		},
		{
			name:  "disposable domain",
			email: "bob@mailinator.com",
			want: map[string]float64{
				"email_is_valid":      1,
				"email_is_disposable": 1,
				"email_domain_risk":   90,
			},
		},
		{
			name:  "plus modifier",
			email: "carol+shop@example.com",
			want: map[string]float64{
				"email_is_valid":    1,
				"email_has_plus":    1,
				"email_domain_risk": 20,
			},
		},
		{
			name:  "high risk tld",
			email: "dave@cheapstore.tk",
			want: map[string]float64{
				"email_is_valid":    1,
				"email_domain_risk": 70,
			},
		},
		{
			name:  "digits in address",
			email: "user1987@example.com",
			want: map[string]float64{
				"email_is_valid":      1,
				"email_numbers_count": 4,
			},
		},
		{
			name:  "malformed address",
			email: "not-an-email",
			want: map[string]float64{
				"has_email":         1,
				"email_is_valid":    0,
				"email_domain_risk": 0,
				"email_length":      12,
			},
		},
		{
			name:  "missing address",
			email: "",
			want:  map[string]float64{"has_email": 0, "email_length": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := e.Extract(&domain.Event{Amount: 10, Email: tt.email}, nil, nil)
			for name, want := range tt.want {
				wantFeature(t, fv, name, want)
			}
		})
	}
}

func TestExtractAddressFeatures(t *testing.T) {
	e := testExtractor()

	base := domain.Address{Line1: "1 Main St", City: "Austin", PostalCode: "78701", Country: "US"}

	t.Run("matching addresses", func(t *testing.T) {
		billing := base
		fv := e.Extract(&domain.Event{Amount: 10, ShippingAddress: &base, BillingAddress: &billing}, nil, nil)

		wantFeature(t, fv, "has_shipping_address", 1)
		wantFeature(t, fv, "has_billing_address", 1)
		wantFeature(t, fv, "addresses_match", 1)
		wantFeature(t, fv, "address_distance_km", 0)
	})

	t.Run("different country", func(t *testing.T) {
		billing := base
		billing.Country = "GB"
		fv := e.Extract(&domain.Event{Amount: 10, ShippingAddress: &base, BillingAddress: &billing}, nil, nil)

		wantFeature(t, fv, "addresses_match", 0)
		wantFeature(t, fv, "address_distance_km", 1000)
	})

	t.Run("different city", func(t *testing.T) {
		billing := base
		billing.City = "Dallas"
		fv := e.Extract(&domain.Event{Amount: 10, ShippingAddress: &base, BillingAddress: &billing}, nil, nil)

		wantFeature(t, fv, "address_distance_km", 100)
	})

	t.Run("different postal code", func(t *testing.T) {
		billing := base
		billing.PostalCode = "78702"
		fv := e.Extract(&domain.Event{Amount: 10, ShippingAddress: &base, BillingAddress: &billing}, nil, nil)

		wantFeature(t, fv, "address_distance_km", 10)
	})

	t.Run("high risk shipping country", func(t *testing.T) {
		shipping := base
		shipping.Country = "NG"
		fv := e.Extract(&domain.Event{Amount: 10, ShippingAddress: &shipping}, nil, nil)

		wantFeature(t, fv, "shipping_country_risk", 80)
		wantFeature(t, fv, "billing_country_risk", 0)
		wantFeature(t, fv, "has_billing_address", 0)
		wantFeature(t, fv, "addresses_match", 0)
	})
}

func TestExtractDeviceFeatures(t *testing.T) {
	e := testExtractor()

	t.Run("desktop chrome", func(t *testing.T) {
		event := &domain.Event{
			Amount:            10,
			DeviceFingerprint: "fp-abc123",
			UserAgent:         "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0",
		}
		fv := e.Extract(event, nil, nil)

		wantFeature(t, fv, "has_device_fingerprint", 1)
		wantFeature(t, fv, "device_fingerprint_length", 9)
		wantFeature(t, fv, "has_user_agent", 1)
		wantFeature(t, fv, "ua_is_chrome", 1)
		wantFeature(t, fv, "ua_is_mobile", 0)
		wantFeature(t, fv, "ua_os_windows", 1)
	})

	t.Run("mobile safari", func(t *testing.T) {
		event := &domain.Event{
			Amount:    10,
			UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) Mobile Safari/604.1",
		}
		fv := e.Extract(event, nil, nil)

		wantFeature(t, fv, "ua_is_mobile", 1)
		wantFeature(t, fv, "ua_is_safari", 1)
		wantFeature(t, fv, "ua_is_chrome", 0)
		wantFeature(t, fv, "ua_os_ios", 1)
	})

	t.Run("missing device signals", func(t *testing.T) {
		fv := e.Extract(&domain.Event{Amount: 10}, nil, nil)

		wantFeature(t, fv, "has_device_fingerprint", 0)
		wantFeature(t, fv, "has_user_agent", 0)
		wantFeature(t, fv, "ua_is_bot", 0)
	})
}

func TestExtractVelocityFeatures(t *testing.T) {
	e := testExtractor()

	vel := &domain.VelocityCounts{
		TxLastHour:        3,
		TxLastDay:         8,
		TxLastWeek:        15,
		AmountLastHour:    450,
		AmountLastDay:     1200,
		AmountLastWeek:    3000,
		UniqueCardsDay:    2,
		UniqueIPsDay:      4,
		UniqueDevicesWeek: 3,
	}

	fv := e.Extract(&domain.Event{Amount: 10}, nil, vel)

	wantFeature(t, fv, "transactions_last_hour", 3)
	wantFeature(t, fv, "transactions_last_day", 8)
	wantFeature(t, fv, "transactions_last_week", 15)
	wantFeature(t, fv, "amount_velocity_1h", 450)
	wantFeature(t, fv, "amount_velocity_24h", 1200)
	wantFeature(t, fv, "amount_velocity_7d", 3000)
	wantFeature(t, fv, "unique_cards_last_day", 2)
	wantFeature(t, fv, "unique_ips_last_day", 4)
	wantFeature(t, fv, "unique_devices_last_week", 3)
}

func TestExtractBehavioralFeatures(t *testing.T) {
	e := testExtractor()

	t.Run("large deviation flags unusual amount", func(t *testing.T) {
		cc := &domain.CustomerContext{TotalOrders: 10, AvgOrderValue: 100}
		fv := e.Extract(&domain.Event{Amount: 500}, cc, nil)

		wantFeature(t, fv, "amount_deviation_from_avg", 400.0/101.0)
		wantFeature(t, fv, "unusual_amount", 1)
	})

	t.Run("typical amount", func(t *testing.T) {
		cc := &domain.CustomerContext{TotalOrders: 10, AvgOrderValue: 100}
		fv := e.Extract(&domain.Event{Amount: 110}, cc, nil)

		wantFeature(t, fv, "unusual_amount", 0)
	})

	t.Run("no history means no deviation signal", func(t *testing.T) {
		fv := e.Extract(&domain.Event{Amount: 500}, nil, nil)

		wantFeature(t, fv, "amount_deviation_from_avg", 0)
		wantFeature(t, fv, "unusual_amount", 0)
	})
}

func TestExtractCrossFeatures(t *testing.T) {
	e := testExtractor()

	cc := &domain.CustomerContext{
		AgeDays:     100,
		TotalOrders: 10,
		RiskScore:   40,
	}
	fv := e.Extract(&domain.Event{Amount: 200}, cc, nil)

	wantFeature(t, fv, "amount_x_risk", 200*40)
	wantFeature(t, fv, "new_customer_high_amount", 0)
	wantFeature(t, fv, "amount_per_order_ratio", 20)
	wantFeature(t, fv, "orders_per_day", 0.1)
}

func TestExtractCrossFeaturesNewCustomer(t *testing.T) {
	e := testExtractor()

	event := &domain.Event{
		Amount:    1000,
		Email:     "new+user@mailinator.com",
		IPAddress: "45.142.120.5",
	}
	fv := e.Extract(event, nil, nil)

	wantFeature(t, fv, "new_customer_high_amount", 1000)
	wantFeature(t, fv, "vpn_new_customer", 1)
	wantFeature(t, fv, "disposable_email_high_amount", 1000)
}

func TestNewExtractorSkipsMalformedRanges(t *testing.T) {
	lists := domain.DefaultListsConfig()
	lists.VPNRanges = append(lists.VPNRanges, "not-a-cidr")

	e := NewExtractor(lists)

	// The valid ranges still match after the malformed entry is dropped.
	fv := e.Extract(&domain.Event{Amount: 10, IPAddress: "45.142.120.5"}, nil, nil)
	wantFeature(t, fv, "ip_is_vpn", 1)
}
