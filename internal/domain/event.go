// Package domain defines the core interfaces and types for Shrike.
package domain

import (
	"errors"
	"fmt"
	"time"
)

// Event is the raw transaction-like input to the risk engine.
// Immutable once received; optional fields degrade to neutral defaults
// during feature extraction.
type Event struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`

	// Required signals
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	CustomerID string  `json:"customerId"`
	Email      string  `json:"email"`
	IPAddress  string  `json:"ipAddress"`

	// Optional signals
	DeviceFingerprint string     `json:"deviceFingerprint,omitempty"`
	UserAgent         string     `json:"userAgent,omitempty"`
	ShippingAddress   *Address   `json:"shippingAddress,omitempty"`
	BillingAddress    *Address   `json:"billingAddress,omitempty"`
	Items             []LineItem `json:"items,omitempty"`

	Timestamp time.Time `json:"timestamp"`
	CreatedAt time.Time `json:"createdAt"`
}

// Address is a shipping or billing address record.
type Address struct {
	Line1      string `json:"line1,omitempty"`
	City       string `json:"city"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"` // ISO 3166-1 alpha-2
}

// Equal reports whether two addresses match exactly.
func (a *Address) Equal(b *Address) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Line1 == b.Line1 && a.City == b.City &&
		a.PostalCode == b.PostalCode && a.Country == b.Country
}

// LineItem is a single order line.
type LineItem struct {
	SKU      string  `json:"sku,omitempty"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

// Validation errors for required event fields. Optional-field defects are
// never errors; they degrade to neutral defaults in extraction.
var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrMissingCustomerID = errors.New("customerId is required")
	ErrMissingEmail      = errors.New("email is required")
	ErrMissingIP         = errors.New("ipAddress is required")
)

// Validate rejects events missing required inputs before extraction begins.
func (e *Event) Validate() error {
	if e.Amount <= 0 {
		return fmt.Errorf("%w: got %v", ErrInvalidAmount, e.Amount)
	}
	if e.CustomerID == "" {
		return ErrMissingCustomerID
	}
	if e.Email == "" {
		return ErrMissingEmail
	}
	if e.IPAddress == "" {
		return ErrMissingIP
	}
	return nil
}

// AssessRequest is the API request payload for risk assessment.
type AssessRequest struct {
	TransactionID     string     `json:"transactionId,omitempty"`
	Amount            float64    `json:"amount"`
	Currency          string     `json:"currency"`
	CustomerID        string     `json:"customerId"`
	Email             string     `json:"email"`
	IPAddress         string     `json:"ipAddress"`
	DeviceFingerprint string     `json:"deviceFingerprint,omitempty"`
	UserAgent         string     `json:"userAgent,omitempty"`
	ShippingAddress   *Address   `json:"shippingAddress,omitempty"`
	BillingAddress    *Address   `json:"billingAddress,omitempty"`
	Items             []LineItem `json:"items,omitempty"`
}

// ToEvent converts a request to an Event domain object.
func (r *AssessRequest) ToEvent(tenantID string) *Event {
	now := time.Now().UTC()
	return &Event{
		ID:                r.TransactionID,
		TenantID:          tenantID,
		Amount:            r.Amount,
		Currency:          r.Currency,
		CustomerID:        r.CustomerID,
		Email:             r.Email,
		IPAddress:         r.IPAddress,
		DeviceFingerprint: r.DeviceFingerprint,
		UserAgent:         r.UserAgent,
		ShippingAddress:   r.ShippingAddress,
		BillingAddress:    r.BillingAddress,
		Items:             r.Items,
		Timestamp:         now,
		CreatedAt:         now,
	}
}
