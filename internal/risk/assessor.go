// Package risk composes extraction, scoring, decisioning, and explanation
// into one assessment call.
package risk

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/shrike/internal/decision"
	"github.com/opensource-finance/shrike/internal/domain"
	"github.com/opensource-finance/shrike/internal/features"
	"github.com/opensource-finance/shrike/internal/rules"
	"github.com/opensource-finance/shrike/internal/scoring"
)

// EngineVersion identifies the scoring pipeline in assessment metadata.
const EngineVersion = "shrike-1.0"

// Assessor runs the full scoring path: extract features, score against the
// active model snapshot, decide, explain, estimate loss. It is stateless
// apart from the scorer's atomically swapped snapshot, so any number of
// Assess calls may run concurrently.
type Assessor struct {
	extractor *features.Extractor
	scorer    *scoring.Scorer
	policy    *decision.Policy
	explainer *decision.Explainer
	loss      *decision.LossEstimator
	rules     *rules.Engine

	customers domain.CustomerProvider
	velocity  domain.VelocityProvider
}

// NewAssessor wires the assessment pipeline. The rule engine, customer,
// and velocity providers may be nil; the pipeline degrades to defaults.
func NewAssessor(
	cfg domain.ScoringConfig,
	extractor *features.Extractor,
	scorer *scoring.Scorer,
	ruleEngine *rules.Engine,
	customers domain.CustomerProvider,
	velocity domain.VelocityProvider,
) *Assessor {
	return &Assessor{
		extractor: extractor,
		scorer:    scorer,
		policy:    decision.NewPolicy(cfg),
		explainer: decision.NewExplainer(),
		loss:      decision.NewLossEstimator(cfg.LossGivenFraud),
		rules:     ruleEngine,
		customers: customers,
		velocity:  velocity,
	}
}

// Assess scores one event. Invalid required input is rejected before
// extraction; missing optional signals and collaborator failures degrade
// to neutral defaults inside the pipeline.
func (a *Assessor) Assess(ctx context.Context, event *domain.Event) (*domain.RiskAssessment, error) {
	start := time.Now()

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("invalid event: %w", err)
	}

	// Collaborator lookups: non-fatal by contract.
	cc := a.lookupCustomer(ctx, event)
	vel := a.lookupVelocity(ctx, event)

	extractStart := time.Now()
	fv := a.extractor.Extract(event, cc, vel)
	extractMs := time.Since(extractStart).Milliseconds()

	scoreStart := time.Now()
	predictions, snap := a.scorer.Score(fv)
	probability := scoring.Combine(predictions, snap.Weights)
	confidence := scoring.Confidence(predictions)
	scoreMs := time.Since(scoreStart).Milliseconds()

	tier, verdict := a.policy.Decide(probability, event.Amount)

	factors := a.explainer.Factors(fv)

	// Tenant-configured rules add factors and may escalate, never relax.
	var hits []domain.RuleHit
	if a.rules != nil {
		hits = a.rules.EvaluateAll(ctx, event, fv)
		for _, hit := range hits {
			factors = append(factors, hit.Factor)
			if hit.ForceDecision != "" {
				verdict = domain.StricterDecision(verdict, hit.ForceDecision)
			}
		}
		sort.SliceStable(factors, func(i, j int) bool {
			return factors[i].Impact > factors[j].Impact
		})
	}

	actions := a.explainer.Actions(tier, factors)
	explanation := a.explainer.Explanation(tier, factors)

	modelsUsed := len(predictions)
	if scoring.IsFallback(predictions) {
		modelsUsed = 0
	}

	return &domain.RiskAssessment{
		ID:           uuid.New().String(),
		TenantID:     event.TenantID,
		EventID:      event.ID,
		CustomerID:   event.CustomerID,
		RiskScore:    int(math.Round(probability * 1000)),
		Probability:  probability,
		Tier:         tier,
		Decision:     verdict,
		Confidence:   confidence,
		ExpectedLoss: a.loss.ExpectedLoss(event.Amount, probability),
		Currency:     event.Currency,
		Factors:      factors,
		Actions:      actions,
		Explanation:  explanation,
		ModelScores:  predictions,
		Timestamp:    time.Now().UTC(),
		Metadata: domain.AssessmentMetadata{
			ExtractMs:       extractMs,
			ScoreMs:         scoreMs,
			TotalMs:         time.Since(start).Milliseconds(),
			ModelsUsed:      modelsUsed,
			RulesEvaluated:  len(hits),
			SnapshotVersion: snap.Version,
			EngineVersion:   EngineVersion,
		},
	}, nil
}

func (a *Assessor) lookupCustomer(ctx context.Context, event *domain.Event) *domain.CustomerContext {
	if a.customers == nil {
		return domain.DefaultCustomerContext(event.CustomerID)
	}
	cc, err := a.customers.Context(ctx, event.TenantID, event.CustomerID)
	if err != nil || cc == nil {
		return domain.DefaultCustomerContext(event.CustomerID)
	}
	return cc
}

func (a *Assessor) lookupVelocity(ctx context.Context, event *domain.Event) *domain.VelocityCounts {
	if a.velocity == nil {
		return &domain.VelocityCounts{}
	}
	vel, err := a.velocity.Counts(ctx, event.TenantID, event.CustomerID)
	if err != nil || vel == nil {
		return &domain.VelocityCounts{}
	}
	return vel
}
