// Package decision maps a combined fraud probability and exposure amount to
// a risk tier, an actionable decision, ranked risk factors, and an expected
// monetary loss.
package decision

import (
	"sort"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Policy converts probability and amount into tier and decision. Tier is
// informational and purely threshold-based; the decision is additionally
// shaped by exposure through amount bands. The two scales deliberately do
// not share boundaries.
type Policy struct {
	thresholds   domain.TierThresholds
	bands        []domain.AmountBand
	reviewAmount float64
}

// NewPolicy builds a policy from scoring configuration. Amount bands are
// checked highest-exposure first.
func NewPolicy(cfg domain.ScoringConfig) *Policy {
	bands := make([]domain.AmountBand, len(cfg.AmountBands))
	copy(bands, cfg.AmountBands)
	sort.Slice(bands, func(i, j int) bool {
		return bands[i].MinAmount > bands[j].MinAmount
	})
	return &Policy{
		thresholds:   cfg.TierThresholds,
		bands:        bands,
		reviewAmount: cfg.ReviewAmount,
	}
}

// Tier assigns the coarse risk classification for a probability.
func (p *Policy) Tier(probability float64) string {
	switch {
	case probability < p.thresholds.Low:
		return domain.TierLow
	case probability < p.thresholds.Medium:
		return domain.TierMedium
	case probability < p.thresholds.High:
		return domain.TierHigh
	default:
		return domain.TierCritical
	}
}

// Decide returns (tier, decision). Above an amount band's floor, the band's
// stricter probability cut points override the tier-based rules entirely.
func (p *Policy) Decide(probability, amount float64) (string, string) {
	tier := p.Tier(probability)

	for _, band := range p.bands {
		if amount > band.MinAmount {
			switch {
			case probability < band.Approve:
				return tier, domain.DecisionApprove
			case probability < band.Review:
				return tier, domain.DecisionReview
			default:
				return tier, domain.DecisionDecline
			}
		}
	}

	switch tier {
	case domain.TierLow:
		return tier, domain.DecisionApprove
	case domain.TierMedium:
		if amount > p.reviewAmount {
			return tier, domain.DecisionReview
		}
		return tier, domain.DecisionApprove
	case domain.TierHigh:
		return tier, domain.DecisionReview
	default: // CRITICAL
		return tier, domain.DecisionDecline
	}
}
