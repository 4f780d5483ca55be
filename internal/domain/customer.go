package domain

import "context"

// CustomerContext is a read-only snapshot of a customer's history, supplied
// by the customer provider. The engine never mutates it.
type CustomerContext struct {
	CustomerID         string  `json:"customerId"`
	AgeDays            float64 `json:"ageDays"`
	TotalOrders        float64 `json:"totalOrders"`
	TotalSpent         float64 `json:"totalSpent"`
	AvgOrderValue      float64 `json:"avgOrderValue"`
	ReturnRate         float64 `json:"returnRate"`
	ChargebackCount    float64 `json:"chargebackCount"`
	DaysSinceLastOrder float64 `json:"daysSinceLastOrder"`
	OrderFrequency     float64 `json:"orderFrequency"`
	LifetimeValue      float64 `json:"lifetimeValue"`
	RiskScore          float64 `json:"riskScore"` // prior risk, 0-100
}

// DefaultCustomerContext returns the "unknown new customer" profile used
// when no context source is available. Prior risk sits at the midpoint
// because an unknown customer is neither trusted nor suspect.
func DefaultCustomerContext(customerID string) *CustomerContext {
	return &CustomerContext{
		CustomerID:         customerID,
		DaysSinceLastOrder: 999,
		RiskScore:          50,
	}
}

// VelocityCounts holds trailing-window activity counts for a customer.
// Zero values are the conservative non-signal when history is unavailable.
type VelocityCounts struct {
	TxLastHour        float64 `json:"txLastHour"`
	TxLastDay         float64 `json:"txLastDay"`
	TxLastWeek        float64 `json:"txLastWeek"`
	AmountLastHour    float64 `json:"amountLastHour"`
	AmountLastDay     float64 `json:"amountLastDay"`
	AmountLastWeek    float64 `json:"amountLastWeek"`
	UniqueCardsDay    float64 `json:"uniqueCardsDay"`
	UniqueIPsDay      float64 `json:"uniqueIPsDay"`
	UniqueDevicesWeek float64 `json:"uniqueDevicesWeek"`
}

// CustomerProvider looks up customer history. Implementations must not fail
// the assessment when a customer is unknown; they return the default profile.
type CustomerProvider interface {
	Context(ctx context.Context, tenantID, customerID string) (*CustomerContext, error)
}

// VelocityProvider looks up trailing-window counts. Absence of history is
// non-fatal; implementations return zero counts.
type VelocityProvider interface {
	Counts(ctx context.Context, tenantID, customerID string) (*VelocityCounts, error)
}
