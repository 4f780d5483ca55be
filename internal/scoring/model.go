// Package scoring implements the ensemble fraud scorer: a fixed set of
// sub-model kinds combined by weighted averaging over one immutable,
// atomically swappable model snapshot.
package scoring

import (
	"errors"
	"fmt"
	"math"
)

// ErrDimension is returned when an input vector does not match the shape a
// model was trained with.
var ErrDimension = errors.New("feature vector dimension mismatch")

// Sub-model names, also the keys of the ensemble weight table.
const (
	ModelLogistic = "logistic"
	ModelBayes    = "bayes"
	ModelCentroid = "centroid"
	ModelAnomaly  = "anomaly"

	// ModelRuleBased marks the deterministic fallback used when no trained
	// sub-model produces output.
	ModelRuleBased = "rule_based"
)

// SubModel is the single capability every sub-model kind exposes: a fraud
// probability estimate for a scaled feature vector.
type SubModel interface {
	Name() string
	PredictProbability(x []float64) (float64, error)
}

// LogisticModel is a logistic regression classifier.
type LogisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func (m *LogisticModel) Name() string { return ModelLogistic }

func (m *LogisticModel) PredictProbability(x []float64) (float64, error) {
	if len(x) != len(m.Weights) {
		return 0, fmt.Errorf("%w: logistic expects %d, got %d", ErrDimension, len(m.Weights), len(x))
	}
	z := m.Bias
	for i, w := range m.Weights {
		z += w * x[i]
	}
	return sigmoid(z), nil
}

// BayesModel is a gaussian naive Bayes classifier over two classes,
// index 0 = legitimate, index 1 = fraud.
type BayesModel struct {
	Priors [2]float64   `json:"priors"`
	Means  [2][]float64 `json:"means"`
	Vars   [2][]float64 `json:"vars"`
}

func (m *BayesModel) Name() string { return ModelBayes }

func (m *BayesModel) PredictProbability(x []float64) (float64, error) {
	if len(x) != len(m.Means[0]) || len(x) != len(m.Means[1]) {
		return 0, fmt.Errorf("%w: bayes expects %d, got %d", ErrDimension, len(m.Means[0]), len(x))
	}

	var logp [2]float64
	for class := 0; class < 2; class++ {
		lp := math.Log(m.Priors[class] + 1e-12)
		for i, v := range x {
			variance := m.Vars[class][i]
			d := v - m.Means[class][i]
			lp -= 0.5 * (math.Log(2*math.Pi*variance) + d*d/variance)
		}
		logp[class] = lp
	}

	// Posterior of the fraud class via the log-sum-exp trick.
	maxLp := math.Max(logp[0], logp[1])
	p0 := math.Exp(logp[0] - maxLp)
	p1 := math.Exp(logp[1] - maxLp)
	return p1 / (p0 + p1), nil
}

// CentroidModel classifies by distance to the per-class centroids. The
// fraud probability is the share of the legitimate-class distance in the
// total, so sitting on the fraud centroid yields probability near 1.
type CentroidModel struct {
	Legit []float64 `json:"legit"`
	Fraud []float64 `json:"fraud"`
}

func (m *CentroidModel) Name() string { return ModelCentroid }

func (m *CentroidModel) PredictProbability(x []float64) (float64, error) {
	if len(x) != len(m.Legit) || len(x) != len(m.Fraud) {
		return 0, fmt.Errorf("%w: centroid expects %d, got %d", ErrDimension, len(m.Legit), len(x))
	}
	d0 := euclidean(x, m.Legit)
	d1 := euclidean(x, m.Fraud)
	return d0 / (d0 + d1 + 1e-9), nil
}

// AnomalyModel is an unsupervised detector fit only on non-fraud samples.
// Its raw score is Margin minus the mean absolute z-distance from the
// non-fraud profile: positive for ordinary inputs, negative for outliers.
// The logistic transform 1/(1+exp(score)) maps that onto a probability
// comparable with the supervised models.
type AnomalyModel struct {
	Means  []float64 `json:"means"`
	Stds   []float64 `json:"stds"`
	Margin float64   `json:"margin"`
}

func (m *AnomalyModel) Name() string { return ModelAnomaly }

func (m *AnomalyModel) PredictProbability(x []float64) (float64, error) {
	if len(x) != len(m.Means) {
		return 0, fmt.Errorf("%w: anomaly expects %d, got %d", ErrDimension, len(m.Means), len(x))
	}
	raw := m.Margin - m.meanAbsZ(x)
	return 1 / (1 + math.Exp(raw)), nil
}

func (m *AnomalyModel) meanAbsZ(x []float64) float64 {
	if len(x) == 0 {
		return 0
	}
	var total float64
	for i, v := range x {
		std := m.Stds[i]
		if std < 1e-9 {
			std = 1e-9
		}
		total += math.Abs(v-m.Means[i]) / std
	}
	return total / float64(len(x))
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}
