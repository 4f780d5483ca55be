package domain

// RiskRule is a tenant-configurable check evaluated over the extracted
// feature map, on top of the built-in explainer checks. A triggered rule
// contributes one RiskFactor and may escalate (never relax) the decision.
type RiskRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// Expression is a CEL expression over the feature map; it must return
	// bool (triggered) or a number (triggered when >= 1).
	Expression string `json:"expression"`

	// Factor metadata attached when the rule triggers.
	Factor   string  `json:"factor"`
	Severity string  `json:"severity"`
	Impact   float64 `json:"impact"`

	// ForceDecision optionally escalates the policy decision
	// ("REVIEW" or "DECLINE"); empty means explanatory only.
	ForceDecision string `json:"forceDecision,omitempty"`

	// Whether rule is active
	Enabled bool `json:"enabled"`
}

// RuleHit is the outcome of one triggered risk rule.
type RuleHit struct {
	RuleID        string     `json:"ruleId"`
	Factor        RiskFactor `json:"factor"`
	ForceDecision string     `json:"forceDecision,omitempty"`
	ProcessMs     int64      `json:"processMs"`
}
