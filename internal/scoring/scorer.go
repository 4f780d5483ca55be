package scoring

import (
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Scorer owns the active model snapshot. Any number of Score calls may run
// concurrently against the same snapshot; training builds a new snapshot and
// swaps the pointer atomically, so in-flight calls keep the state they
// captured. The training mutex serializes writers only.
type Scorer struct {
	snapshot atomic.Pointer[Snapshot]
	trainMu  sync.Mutex
}

// NewScorer creates a scorer publishing the given snapshot.
func NewScorer(snap *Snapshot) *Scorer {
	s := &Scorer{}
	s.snapshot.Store(snap)
	return s
}

// Snapshot returns the currently published snapshot.
func (s *Scorer) Snapshot() *Snapshot {
	return s.snapshot.Load()
}

// Score produces per-model fraud probabilities for a feature map, plus the
// snapshot the call was evaluated against.
func (s *Scorer) Score(fv domain.FeatureVector) (domain.ModelPrediction, *Snapshot) {
	snap := s.snapshot.Load()
	return scoreAgainst(snap, fv), snap
}

// scoreAgainst evaluates one captured snapshot, never touching the live
// pointer again: a concurrent swap cannot mix states within a call.
func scoreAgainst(snap *Snapshot, fv domain.FeatureVector) domain.ModelPrediction {
	if !snap.Trained() || len(snap.FeatureNames) == 0 {
		return RuleBasedPrediction(fv)
	}

	x := snap.Vectorize(fv)
	if snap.Scaler != nil {
		x = snap.Scaler.Transform(x)
	}

	predictions := make(domain.ModelPrediction, 4)
	for _, model := range snap.Models() {
		p, err := model.PredictProbability(x)
		if err != nil {
			// A failing sub-model is excluded from the ensemble, never
			// replaced with an invented score.
			slog.Warn("sub-model inference failed",
				"model", model.Name(),
				"error", err,
			)
			continue
		}
		predictions[model.Name()] = clip01(p)
	}

	if len(predictions) == 0 {
		return RuleBasedPrediction(fv)
	}
	return predictions
}

// RuleBasedPrediction is the deterministic fallback used when no trained
// sub-model can produce output. Same features in, same score out.
func RuleBasedPrediction(fv domain.FeatureVector) domain.ModelPrediction {
	score := 0.5
	if fv["amount"] > 50000 {
		score += 0.2
	}
	if fv["ip_is_vpn"] > 0 {
		score += 0.3
	}
	if fv["customer_is_new"] > 0 {
		score += 0.1
	}
	if score > 0.99 {
		score = 0.99
	}
	return domain.ModelPrediction{ModelRuleBased: score}
}

// IsFallback reports whether a prediction came from the rule-based fallback.
func IsFallback(pred domain.ModelPrediction) bool {
	_, ok := pred[ModelRuleBased]
	return ok && len(pred) == 1
}

// Combine reduces per-model probabilities to one calibrated probability:
// a weighted arithmetic mean with weights renormalized over the models that
// actually produced output. Zero total weight degrades to a plain mean.
func Combine(pred domain.ModelPrediction, weights map[string]float64) float64 {
	if len(pred) == 0 {
		return 0.5
	}

	var weightedSum, totalWeight float64
	for name, score := range pred {
		w, ok := weights[name]
		if !ok {
			w = 1.0 / float64(len(pred))
		}
		weightedSum += score * w
		totalWeight += w
	}

	var combined float64
	if totalWeight > 0 {
		combined = weightedSum / totalWeight
	} else {
		var sum float64
		for _, score := range pred {
			sum += score
		}
		combined = sum / float64(len(pred))
	}

	return clip01(combined)
}

// Confidence measures ensemble agreement: models in lockstep mean high
// confidence, dispersion means low. The fallback prediction is pinned to
// 0.5 because a single heuristic has no agreement to measure.
func Confidence(pred domain.ModelPrediction) float64 {
	if len(pred) == 0 || IsFallback(pred) {
		return 0.5
	}

	var sum float64
	for _, score := range pred {
		sum += score
	}
	mean := sum / float64(len(pred))

	var variance float64
	for _, score := range pred {
		d := score - mean
		variance += d * d
	}
	stddev := math.Sqrt(variance / float64(len(pred)))

	return clip01(1 - 2*stddev)
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
