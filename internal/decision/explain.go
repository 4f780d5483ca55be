package decision

import (
	"sort"
	"strings"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Explainer derives ranked risk factors, recommended actions, and a textual
// explanation from the feature map. Its checks run in a fixed order,
// independently of which sub-models fired.
type Explainer struct {
	// HighAmount is the exposure above which a first order is suspicious.
	HighAmount float64

	// VelocityLimit is the hourly transaction count treated as a spike.
	VelocityLimit float64
}

// NewExplainer returns an explainer with the default check parameters.
func NewExplainer() *Explainer {
	return &Explainer{
		HighAmount:    50000,
		VelocityLimit: 3,
	}
}

type factorCheck struct {
	match       func(fv domain.FeatureVector) bool
	factor      string
	severity    string
	description string
	impact      float64
}

func (e *Explainer) checks() []factorCheck {
	return []factorCheck{
		{
			match:       func(fv domain.FeatureVector) bool { return fv["ip_is_vpn"] > 0 },
			factor:      domain.FactorVPNDetected,
			severity:    domain.SeverityHigh,
			description: "Transaction routed through a VPN or proxy",
			impact:      0.3,
		},
		{
			match:       func(fv domain.FeatureVector) bool { return fv["email_is_disposable"] > 0 },
			factor:      domain.FactorDisposableEmail,
			severity:    domain.SeverityHigh,
			description: "Disposable email address used",
			impact:      0.25,
		},
		{
			match: func(fv domain.FeatureVector) bool {
				return fv["customer_is_new"] > 0 && fv["amount"] > e.HighAmount
			},
			factor:      domain.FactorNewCustomerHighAmount,
			severity:    domain.SeverityMedium,
			description: "New customer placing a high-value order",
			impact:      0.2,
		},
		{
			match: func(fv domain.FeatureVector) bool {
				return fv["has_shipping_address"] > 0 && fv["has_billing_address"] > 0 && fv["addresses_match"] == 0
			},
			factor:      domain.FactorAddressMismatch,
			severity:    domain.SeverityMedium,
			description: "Shipping address does not match billing address",
			impact:      0.15,
		},
		{
			match:       func(fv domain.FeatureVector) bool { return fv["shipping_country_risk"] > 70 },
			factor:      domain.FactorHighRiskCountry,
			severity:    domain.SeverityHigh,
			description: "Shipping to a high-risk country",
			impact:      0.25,
		},
		{
			match: func(fv domain.FeatureVector) bool {
				return fv["transactions_last_hour"] > e.VelocityLimit
			},
			factor:      domain.FactorVelocitySpike,
			severity:    domain.SeverityMedium,
			description: "Unusually high transaction frequency",
			impact:      0.15,
		},
	}
}

// Factors evaluates the fixed check set and returns the matched risk
// factors sorted by impact descending. The sort is stable, so ties keep
// check-evaluation order.
func (e *Explainer) Factors(fv domain.FeatureVector) []domain.RiskFactor {
	var factors []domain.RiskFactor
	for _, check := range e.checks() {
		if check.match(fv) {
			factors = append(factors, domain.RiskFactor{
				Factor:      check.factor,
				Severity:    check.severity,
				Description: check.description,
				Impact:      check.impact,
			})
		}
	}

	sort.SliceStable(factors, func(i, j int) bool {
		return factors[i].Impact > factors[j].Impact
	})
	return factors
}

// Actions returns the tier-driven baseline recommendations unioned with
// factor-specific follow-ups, de-duplicated.
func (e *Explainer) Actions(tier string, factors []domain.RiskFactor) []string {
	var actions []string

	switch tier {
	case domain.TierLow:
		actions = append(actions, "Approve automatically")
	case domain.TierMedium:
		actions = append(actions,
			"Manual review recommended",
			"Request additional verification",
		)
	case domain.TierHigh:
		actions = append(actions,
			"Manual review required",
			"Contact the customer for confirmation",
			"Verify identity documents",
		)
	default: // CRITICAL
		actions = append(actions,
			"Block the transaction immediately",
			"Add to watchlist for investigation",
			"Escalate to the fraud team",
		)
	}

	for _, factor := range factors {
		switch factor.Factor {
		case domain.FactorVPNDetected:
			actions = append(actions, "Request confirmation of the customer's real location")
		case domain.FactorDisposableEmail:
			actions = append(actions, "Request an alternative contact email")
		case domain.FactorNewCustomerHighAmount:
			actions = append(actions, "Verify payment details with the issuing bank")
		}
	}

	return dedupe(actions)
}

// Explanation concatenates the tier-level sentence with the top three
// ranked factor descriptions.
func (e *Explainer) Explanation(tier string, factors []domain.RiskFactor) string {
	var base string
	switch tier {
	case domain.TierLow:
		base = "Transaction looks safe. Risk factors are minimal."
	case domain.TierMedium:
		base = "Minor risk factors detected. Additional verification is recommended."
	case domain.TierHigh:
		base = "Serious indicators of potential fraud detected."
	default:
		base = "Extremely high fraud probability. Multiple critical risk factors."
	}

	if len(factors) == 0 {
		return base
	}

	top := factors
	if len(top) > 3 {
		top = top[:3]
	}
	descriptions := make([]string, len(top))
	for i, f := range top {
		descriptions[i] = f.Description
	}
	return base + " Main factors: " + strings.Join(descriptions, ", ") + "."
}

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, item := range items {
		if !seen[item] {
			seen[item] = true
			out = append(out, item)
		}
	}
	return out
}
