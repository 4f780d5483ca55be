package domain

import "time"

// FeatureVector maps feature names to values. It is built by the extractor
// and reconciled against the model snapshot's canonical name order at scoring
// time; map iteration order is never load-bearing.
type FeatureVector map[string]float64

// ModelPrediction maps sub-model name to a fraud probability in [0,1].
// Only models that actually produced output appear as keys.
type ModelPrediction map[string]float64

// Risk tiers, ordered from least to most severe.
const (
	TierLow      = "LOW"
	TierMedium   = "MEDIUM"
	TierHigh     = "HIGH"
	TierCritical = "CRITICAL"
)

// Decisions, ordered from least to most strict.
const (
	DecisionApprove = "APPROVE"
	DecisionReview  = "REVIEW"
	DecisionDecline = "DECLINE"
)

// Risk factor severities.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// Well-known risk factor codes.
const (
	FactorVPNDetected           = "VPN_DETECTED"
	FactorDisposableEmail       = "DISPOSABLE_EMAIL"
	FactorNewCustomerHighAmount = "NEW_CUSTOMER_HIGH_AMOUNT"
	FactorAddressMismatch       = "ADDRESS_MISMATCH"
	FactorHighRiskCountry       = "HIGH_RISK_COUNTRY"
	FactorVelocitySpike         = "VELOCITY_SPIKE"
)

// RiskFactor is one contributing signal in an assessment explanation.
type RiskFactor struct {
	Factor      string  `json:"factor"`
	Severity    string  `json:"severity"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact"` // used only for ranking
}

// RiskAssessment is the output of one Assess call. Never mutated after
// creation; persistence is the repository's job.
type RiskAssessment struct {
	ID         string `json:"id"`
	TenantID   string `json:"tenantId"`
	EventID    string `json:"eventId"`
	CustomerID string `json:"customerId"`

	RiskScore    int     `json:"riskScore"` // round(probability * 1000), in [0,1000]
	Probability  float64 `json:"probability"`
	Tier         string  `json:"tier"`
	Decision     string  `json:"decision"`
	Confidence   float64 `json:"confidence"`
	ExpectedLoss float64 `json:"expectedLoss"`
	Currency     string  `json:"currency"`

	Factors     []RiskFactor    `json:"factors"`
	Actions     []string        `json:"actions"`
	Explanation string          `json:"explanation"`
	ModelScores ModelPrediction `json:"modelScores,omitempty"`

	Timestamp time.Time          `json:"timestamp"`
	Metadata  AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID         string `json:"traceId"`
	ExtractMs       int64  `json:"extractMs"`
	ScoreMs         int64  `json:"scoreMs"`
	TotalMs         int64  `json:"totalMs"`
	ModelsUsed      int    `json:"modelsUsed"`
	RulesEvaluated  int    `json:"rulesEvaluated"`
	SnapshotVersion string `json:"snapshotVersion"`
	EngineVersion   string `json:"engineVersion"`
}

// StricterDecision returns the stricter of two decisions. Used when the
// configurable rule overlay escalates the policy decision; an overlay can
// never relax a decision.
func StricterDecision(a, b string) string {
	if decisionRank(b) > decisionRank(a) {
		return b
	}
	return a
}

func decisionRank(d string) int {
	switch d {
	case DecisionDecline:
		return 2
	case DecisionReview:
		return 1
	default:
		return 0
	}
}
