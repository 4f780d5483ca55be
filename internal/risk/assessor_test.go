package risk

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/scoring"
)

func newTestAssessor(t *testing.T, engine *rules.Engine, customers domain.CustomerProvider, velocity domain.VelocityProvider) *Assessor {
	t.Helper()
	cfg := domain.DefaultScoringConfig()
	extractor := features.NewExtractor(domain.DefaultListsConfig())
	scorer := scoring.NewScorer(scoring.NewDefaultSnapshot(cfg.ModelWeights, cfg.TierThresholds))
	return NewAssessor(cfg, extractor, scorer, engine, customers, velocity)
}

func validEvent() *domain.Event {
	return &domain.Event{
		ID:         "evt-1",
		TenantID:   "acme",
		Amount:     250,
		Currency:   "USD",
		CustomerID: "cust-1",
		Email:      "alice@example.com",
		IPAddress:  "8.8.8.8",
	}
}

type stubCustomers struct {
	cc  *domain.CustomerContext
	err error
}

func (s *stubCustomers) Context(_ context.Context, _, _ string) (*domain.CustomerContext, error) {
	return s.cc, s.err
}

type stubVelocity struct {
	counts *domain.VelocityCounts
	err    error
}

func (s *stubVelocity) Counts(_ context.Context, _, _ string) (*domain.VelocityCounts, error) {
	return s.counts, s.err
}

func TestAssessRejectsInvalidEvent(t *testing.T) {
	a := newTestAssessor(t, nil, nil, nil)

	tests := []struct {
		name  string
		event *domain.Event
	}{
		{"zero amount", &domain.Event{CustomerID: "c", Email: "a@b.com", IPAddress: "1.2.3.4"}},
		{"missing customer", &domain.Event{Amount: 10, Email: "a@b.com", IPAddress: "1.2.3.4"}},
		{"missing email", &domain.Event{Amount: 10, CustomerID: "c", IPAddress: "1.2.3.4"}},
		{"missing ip", &domain.Event{Amount: 10, CustomerID: "c", Email: "a@b.com"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := a.Assess(context.Background(), tt.event); err == nil {
				t.Error("Assess() should reject the event")
			}
		})
	}
}

func TestAssessWithoutProviders(t *testing.T) {
	a := newTestAssessor(t, nil, nil, nil)

	assessment, err := a.Assess(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("Assess() error: %v", err)
	}

	if assessment.ID == "" {
		t.Error("assessment should get a generated ID")
	}
	if assessment.TenantID != "acme" || assessment.EventID != "evt-1" || assessment.CustomerID != "cust-1" {
		t.Errorf("event identity not carried: %+v", assessment)
	}
	if assessment.Probability < 0 || assessment.Probability > 1 {
		t.Errorf("probability out of range: %v", assessment.Probability)
	}
	if assessment.RiskScore < 0 || assessment.RiskScore > 1000 {
		t.Errorf("risk score out of range: %d", assessment.RiskScore)
	}
	if assessment.Tier == "" || assessment.Decision == "" {
		t.Errorf("missing tier/decision: %q / %q", assessment.Tier, assessment.Decision)
	}
	if assessment.Metadata.EngineVersion != EngineVersion {
		t.Errorf("engine version = %q", assessment.Metadata.EngineVersion)
	}

	// Untrained scorer means fallback: confidence pinned, no models used.
	if assessment.Confidence != 0.5 {
		t.Errorf("fallback confidence = %v, want 0.5", assessment.Confidence)
	}
	if assessment.Metadata.ModelsUsed != 0 {
		t.Errorf("fallback ModelsUsed = %d, want 0", assessment.Metadata.ModelsUsed)
	}
	if assessment.Metadata.SnapshotVersion != "untrained" {
		t.Errorf("snapshot version = %q", assessment.Metadata.SnapshotVersion)
	}
}

func TestAssessDeterministic(t *testing.T) {
	a := newTestAssessor(t, nil, nil, nil)

	first, err := a.Assess(context.Background(), validEvent())
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Assess(context.Background(), validEvent())
	if err != nil {
		t.Fatal(err)
	}

	if first.Probability != second.Probability {
		t.Errorf("same event scored %v then %v", first.Probability, second.Probability)
	}
	if first.Decision != second.Decision || first.Tier != second.Tier {
		t.Error("same event produced different outcomes")
	}
}

func TestAssessDegradesOnProviderFailure(t *testing.T) {
	failing := &stubCustomers{err: errors.New("store down")}
	failingVel := &stubVelocity{err: errors.New("store down")}
	a := newTestAssessor(t, nil, failing, failingVel)

	assessment, err := a.Assess(context.Background(), validEvent())
	if err != nil {
		t.Fatalf("provider failure must not fail the assessment: %v", err)
	}

	b := newTestAssessor(t, nil, nil, nil)
	baseline, err := b.Assess(context.Background(), validEvent())
	if err != nil {
		t.Fatal(err)
	}

	// Failed lookups behave exactly like absent providers.
	if assessment.Probability != baseline.Probability {
		t.Errorf("degraded probability %v differs from baseline %v",
			assessment.Probability, baseline.Probability)
	}
}

func TestAssessUsesCustomerContext(t *testing.T) {
	trusted := &stubCustomers{cc: &domain.CustomerContext{
		CustomerID:    "cust-1",
		AgeDays:       900,
		TotalOrders:   50,
		AvgOrderValue: 240,
		RiskScore:     5,
	}}
	a := newTestAssessor(t, nil, trusted, nil)

	withHistory, err := a.Assess(context.Background(), validEvent())
	if err != nil {
		t.Fatal(err)
	}

	b := newTestAssessor(t, nil, nil, nil)
	unknown, err := b.Assess(context.Background(), validEvent())
	if err != nil {
		t.Fatal(err)
	}

	// The fallback scorer adds risk for unknown customers, so history
	// must not score higher.
	if withHistory.Probability > unknown.Probability {
		t.Errorf("returning customer scored %v, unknown scored %v",
			withHistory.Probability, unknown.Probability)
	}
}

func TestAssessRuleEscalation(t *testing.T) {
	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	err = engine.LoadRule(&domain.RiskRule{
		ID:            "block-currency",
		TenantID:      "*",
		Name:          "block currency",
		Description:   "Currency is on the block list",
		Expression:    `currency == "XYZ"`,
		Factor:        "blocked_currency",
		Severity:      domain.SeverityHigh,
		Impact:        0.9,
		ForceDecision: domain.DecisionDecline,
		Enabled:       true,
	})
	if err != nil {
		t.Fatal(err)
	}

	a := newTestAssessor(t, engine, nil, nil)

	event := validEvent()
	event.Currency = "XYZ"

	assessment, err := a.Assess(context.Background(), event)
	if err != nil {
		t.Fatal(err)
	}

	if assessment.Decision != domain.DecisionDecline {
		t.Errorf("Decision = %q, want DECLINE forced by rule", assessment.Decision)
	}
	if assessment.Metadata.RulesEvaluated != 1 {
		t.Errorf("RulesEvaluated = %d, want 1", assessment.Metadata.RulesEvaluated)
	}

	// The rule's factor ranks first because its impact beats the
	// built-in checks.
	if len(assessment.Factors) == 0 || assessment.Factors[0].Factor != "blocked_currency" {
		t.Errorf("factors = %+v, want blocked_currency first", assessment.Factors)
	}
}

func TestAssessRuleNeverRelaxes(t *testing.T) {
	engine, err := rules.NewEngine(4)
	if err != nil {
		t.Fatal(err)
	}
	defer engine.Close()

	err = engine.LoadRule(&domain.RiskRule{
		ID:            "flag-all",
		TenantID:      "*",
		Expression:    `true`,
		Factor:        "flag_all",
		Severity:      domain.SeverityLow,
		Impact:        0.01,
		ForceDecision: domain.DecisionReview,
		Enabled:       true,
	})
	if err != nil {
		t.Fatal(err)
	}

	a := newTestAssessor(t, engine, nil, nil)

	// VPN plus new customer plus high amount pushes the fallback score
	// into DECLINE territory; a REVIEW rule must not soften it.
	event := validEvent()
	event.Amount = 120000
	event.IPAddress = "45.142.120.9"

	assessment, err := a.Assess(context.Background(), event)
	if err != nil {
		t.Fatal(err)
	}
	if assessment.Decision != domain.DecisionDecline {
		t.Errorf("Decision = %q, want DECLINE kept despite REVIEW rule", assessment.Decision)
	}
}
