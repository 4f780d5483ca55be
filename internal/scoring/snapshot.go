package scoring

import (
	"time"

	"github.com/opensource-finance/shrike/internal/domain"
)

// Snapshot is the trained state read by every scoring call: the sub-models,
// the scaling transform, the canonical feature-name order, tier thresholds,
// and the ensemble weight table. A snapshot is immutable after publication;
// retraining builds a new one and swaps the pointer.
type Snapshot struct {
	Version   string    `json:"version"`
	TrainedAt time.Time `json:"trainedAt"`

	// FeatureNames fixes the feature order the models were trained with.
	// Vectors are always rebuilt from this list, never from map order.
	FeatureNames []string `json:"featureNames"`

	Scaler *StandardScaler `json:"scaler,omitempty"`

	// Fixed-arity sub-model set; nil means the model is not part of this
	// snapshot (failed or skipped at training time).
	Logistic *LogisticModel `json:"logistic,omitempty"`
	Bayes    *BayesModel    `json:"bayes,omitempty"`
	Centroid *CentroidModel `json:"centroid,omitempty"`
	Anomaly  *AnomalyModel  `json:"anomaly,omitempty"`

	Weights    map[string]float64    `json:"weights"`
	Thresholds domain.TierThresholds `json:"thresholds"`
}

// NewDefaultSnapshot returns an untrained snapshot carrying only
// configuration. Scoring against it uses the deterministic rule-based
// fallback.
func NewDefaultSnapshot(weights map[string]float64, thresholds domain.TierThresholds) *Snapshot {
	w := make(map[string]float64, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Snapshot{
		Version:    "untrained",
		TrainedAt:  time.Time{},
		Weights:    w,
		Thresholds: thresholds,
	}
}

// Trained reports whether the snapshot carries at least one fitted model.
func (s *Snapshot) Trained() bool {
	return s.Logistic != nil || s.Bayes != nil || s.Centroid != nil || s.Anomaly != nil
}

// Models returns the active sub-models in fixed order.
func (s *Snapshot) Models() []SubModel {
	models := make([]SubModel, 0, 4)
	if s.Logistic != nil {
		models = append(models, s.Logistic)
	}
	if s.Bayes != nil {
		models = append(models, s.Bayes)
	}
	if s.Centroid != nil {
		models = append(models, s.Centroid)
	}
	if s.Anomaly != nil {
		models = append(models, s.Anomaly)
	}
	return models
}

// Vectorize reconciles a feature map against the snapshot's canonical
// feature order. Names the models never saw are ignored; names the map is
// missing are zero-filled.
func (s *Snapshot) Vectorize(fv domain.FeatureVector) []float64 {
	x := make([]float64, len(s.FeatureNames))
	for i, name := range s.FeatureNames {
		x[i] = fv[name]
	}
	return x
}

// Info is snapshot metadata exposed over the API.
type Info struct {
	Version      string    `json:"version"`
	TrainedAt    time.Time `json:"trainedAt,omitempty"`
	Trained      bool      `json:"trained"`
	FeatureCount int       `json:"featureCount"`
	ActiveModels []string  `json:"activeModels"`
}

// Info returns API-facing metadata about the snapshot.
func (s *Snapshot) Info() Info {
	names := make([]string, 0, 4)
	for _, m := range s.Models() {
		names = append(names, m.Name())
	}
	return Info{
		Version:      s.Version,
		TrainedAt:    s.TrainedAt,
		Trained:      s.Trained(),
		FeatureCount: len(s.FeatureNames),
		ActiveModels: names,
	}
}
