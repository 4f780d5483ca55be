// Package features turns a raw event plus looked-up customer context into
// the fixed set of named numeric features consumed by the ensemble scorer.
package features

import (
	"log/slog"
	"math"
	"net/netip"
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Extractor maps events to feature vectors. It holds only parsed reference
// lists; extraction itself is stateless and safe for concurrent use.
type Extractor struct {
	vpnRanges   []netip.Prefix
	torRanges   []netip.Prefix
	disposable  map[string]bool
	riskCountry map[string]bool
	tldRisk     map[string]float64

	now func() time.Time
}

// NewExtractor builds an extractor from the configured reference lists.
// Malformed CIDR entries are logged and skipped rather than failing startup.
func NewExtractor(lists domain.ListsConfig) *Extractor {
	e := &Extractor{
		disposable:  make(map[string]bool, len(lists.DisposableDomains)),
		riskCountry: make(map[string]bool, len(lists.HighRiskCountries)),
		tldRisk:     make(map[string]float64, len(lists.HighRiskTLDs)),
		now:         time.Now,
	}

	e.vpnRanges = parsePrefixes(lists.VPNRanges, "vpn")
	e.torRanges = parsePrefixes(lists.TorRanges, "tor")

	for _, d := range lists.DisposableDomains {
		e.disposable[d] = true
	}
	for _, c := range lists.HighRiskCountries {
		e.riskCountry[c] = true
	}
	for tld, risk := range lists.HighRiskTLDs {
		e.tldRisk[tld] = risk
	}

	return e
}

func parsePrefixes(cidrs []string, kind string) []netip.Prefix {
	out := make([]netip.Prefix, 0, len(cidrs))
	for _, c := range cidrs {
		p, err := netip.ParsePrefix(c)
		if err != nil {
			slog.Warn("skipping malformed network range",
				"kind", kind,
				"cidr", c,
				"error", err,
			)
			continue
		}
		out = append(out, p)
	}
	return out
}

// Extract builds the full feature vector for an event. Missing optional
// signals degrade to their documented neutral defaults and never fail the
// call. A nil customer context means "unknown new customer"; nil velocity
// counts mean zero activity.
func (e *Extractor) Extract(event *domain.Event, cc *domain.CustomerContext, vel *domain.VelocityCounts) domain.FeatureVector {
	fv := make(domain.FeatureVector, 64)

	e.amountFeatures(fv, event)
	e.customerFeatures(fv, cc)
	e.deviceFeatures(fv, event)
	e.ipFeatures(fv, event.IPAddress)
	e.emailFeatures(fv, event.Email)
	e.addressFeatures(fv, event.ShippingAddress, event.BillingAddress)
	e.temporalFeatures(fv, event.Timestamp)
	e.velocityFeatures(fv, vel)
	e.behavioralFeatures(fv, event, cc)

	// Cross features reference other values by name, so they come last.
	e.crossFeatures(fv)

	return fv
}

func (e *Extractor) amountFeatures(fv domain.FeatureVector, event *domain.Event) {
	fv["amount"] = event.Amount
	fv["amount_log"] = math.Log1p(event.Amount)
	fv["amount_sqrt"] = math.Sqrt(event.Amount)

	fv["has_items"] = boolFeature(len(event.Items) > 0)
	fv["items_count"] = float64(len(event.Items))
	fv["max_item_price"] = 0
	fv["min_item_price"] = 0
	fv["avg_item_price"] = 0
	fv["std_item_price"] = 0
	fv["items_total_value"] = 0

	if len(event.Items) == 0 {
		return
	}

	maxP := event.Items[0].Price
	minP := event.Items[0].Price
	var sum float64
	for _, item := range event.Items {
		if item.Price > maxP {
			maxP = item.Price
		}
		if item.Price < minP {
			minP = item.Price
		}
		sum += item.Price
	}
	mean := sum / float64(len(event.Items))

	var variance float64
	for _, item := range event.Items {
		d := item.Price - mean
		variance += d * d
	}
	variance /= float64(len(event.Items))

	fv["max_item_price"] = maxP
	fv["min_item_price"] = minP
	fv["avg_item_price"] = mean
	fv["std_item_price"] = math.Sqrt(variance)
	fv["items_total_value"] = sum
}

func (e *Extractor) customerFeatures(fv domain.FeatureVector, cc *domain.CustomerContext) {
	if cc == nil {
		cc = domain.DefaultCustomerContext("")
	}

	fv["customer_age_days"] = cc.AgeDays
	fv["customer_total_orders"] = cc.TotalOrders
	fv["customer_total_spent"] = cc.TotalSpent
	fv["customer_avg_order_value"] = cc.AvgOrderValue
	fv["customer_return_rate"] = cc.ReturnRate
	fv["customer_chargeback_count"] = cc.ChargebackCount
	fv["customer_days_since_last_order"] = cc.DaysSinceLastOrder
	fv["customer_order_frequency"] = cc.OrderFrequency
	fv["customer_lifetime_value"] = cc.LifetimeValue
	fv["customer_risk_score"] = cc.RiskScore
	fv["customer_is_new"] = boolFeature(cc.TotalOrders == 0)
	fv["customer_is_returning"] = boolFeature(cc.TotalOrders > 0)
}

func (e *Extractor) temporalFeatures(fv domain.FeatureVector, ts time.Time) {
	if ts.IsZero() {
		ts = e.now()
	}
	ts = ts.UTC()

	hour := float64(ts.Hour())
	// Weekday normalized to Monday=0 to keep the week-wrap encoding stable.
	weekday := float64((int(ts.Weekday()) + 6) % 7)

	fv["hour_of_day"] = hour
	fv["day_of_week"] = weekday
	fv["day_of_month"] = float64(ts.Day())
	fv["is_weekend"] = boolFeature(weekday >= 5)
	fv["is_night"] = boolFeature(hour < 6 || hour > 22)
	fv["is_business_hours"] = boolFeature(hour >= 9 && hour <= 18 && weekday < 5)
	fv["minutes_since_midnight"] = hour*60 + float64(ts.Minute())

	// Cyclical encodings avoid a discontinuity at midnight and week wrap.
	fv["hour_sin"] = math.Sin(2 * math.Pi * hour / 24)
	fv["hour_cos"] = math.Cos(2 * math.Pi * hour / 24)
	fv["day_sin"] = math.Sin(2 * math.Pi * weekday / 7)
	fv["day_cos"] = math.Cos(2 * math.Pi * weekday / 7)
}

func (e *Extractor) velocityFeatures(fv domain.FeatureVector, vel *domain.VelocityCounts) {
	if vel == nil {
		vel = &domain.VelocityCounts{}
	}

	fv["transactions_last_hour"] = vel.TxLastHour
	fv["transactions_last_day"] = vel.TxLastDay
	fv["transactions_last_week"] = vel.TxLastWeek
	fv["amount_velocity_1h"] = vel.AmountLastHour
	fv["amount_velocity_24h"] = vel.AmountLastDay
	fv["amount_velocity_7d"] = vel.AmountLastWeek
	fv["unique_cards_last_day"] = vel.UniqueCardsDay
	fv["unique_ips_last_day"] = vel.UniqueIPsDay
	fv["unique_devices_last_week"] = vel.UniqueDevicesWeek
}

func (e *Extractor) behavioralFeatures(fv domain.FeatureVector, event *domain.Event, cc *domain.CustomerContext) {
	fv["amount_deviation_from_avg"] = 0
	fv["unusual_amount"] = 0

	if cc == nil || cc.AvgOrderValue == 0 {
		return
	}

	// Normalized by avg+1 so a zero average cannot divide by zero.
	deviation := math.Abs(event.Amount-cc.AvgOrderValue) / (cc.AvgOrderValue + 1)
	fv["amount_deviation_from_avg"] = deviation
	fv["unusual_amount"] = boolFeature(deviation > 3)
}

func (e *Extractor) crossFeatures(fv domain.FeatureVector) {
	fv["amount_x_risk"] = fv["amount"] * fv["customer_risk_score"]
	fv["new_customer_high_amount"] = fv["customer_is_new"] * fv["amount"]
	fv["vpn_new_customer"] = fv["ip_is_vpn"] * fv["customer_is_new"]
	fv["disposable_email_high_amount"] = fv["email_is_disposable"] * fv["amount"]

	fv["amount_per_order_ratio"] = 0
	if fv["customer_total_orders"] > 0 {
		fv["amount_per_order_ratio"] = fv["amount"] / fv["customer_total_orders"]
	}

	fv["orders_per_day"] = 0
	if fv["customer_age_days"] > 0 {
		fv["orders_per_day"] = fv["customer_total_orders"] / fv["customer_age_days"]
	}
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
