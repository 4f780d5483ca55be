package scoring

import (
	"fmt"
	"math"
)

// StandardScaler standardizes features to zero mean and unit variance.
// Fit once at training time; Transform is read-only afterwards.
type StandardScaler struct {
	Means []float64 `json:"means"`
	Stds  []float64 `json:"stds"`
}

// Fit computes per-column mean and standard deviation.
func (s *StandardScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return fmt.Errorf("scaler: no rows to fit")
	}
	dim := len(rows[0])
	s.Means = make([]float64, dim)
	s.Stds = make([]float64, dim)

	for _, row := range rows {
		if len(row) != dim {
			return fmt.Errorf("scaler: ragged row, want %d columns got %d", dim, len(row))
		}
		for i, v := range row {
			s.Means[i] += v
		}
	}
	n := float64(len(rows))
	for i := range s.Means {
		s.Means[i] /= n
	}

	for _, row := range rows {
		for i, v := range row {
			d := v - s.Means[i]
			s.Stds[i] += d * d
		}
	}
	for i := range s.Stds {
		s.Stds[i] = math.Sqrt(s.Stds[i] / n)
		// Constant columns pass through unscaled.
		if s.Stds[i] < 1e-9 {
			s.Stds[i] = 1
		}
	}
	return nil
}

// Transform standardizes one vector. An unfit scaler is the identity.
func (s *StandardScaler) Transform(x []float64) []float64 {
	if len(s.Means) == 0 {
		return x
	}
	out := make([]float64, len(x))
	for i, v := range x {
		if i < len(s.Means) {
			out[i] = (v - s.Means[i]) / s.Stds[i]
		} else {
			out[i] = v
		}
	}
	return out
}
