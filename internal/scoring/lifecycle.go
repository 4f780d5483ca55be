package scoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// ErrEmptyTrainingSet is returned when Train receives no samples.
var ErrEmptyTrainingSet = errors.New("training set is empty")

// TrainingSample is one labeled observation.
type TrainingSample struct {
	Features map[string]float64 `json:"features"`
	Fraud    bool               `json:"fraud"`
}

// Train fits a brand-new snapshot from the labeled set and publishes it
// atomically. Only one training run may execute at a time; a concurrent
// call queues on the training mutex. In-flight Score calls keep reading
// the snapshot they captured.
func (s *Scorer) Train(ctx context.Context, samples []TrainingSample) error {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	if len(samples) == 0 {
		return ErrEmptyTrainingSet
	}

	// The feature-name order fixed here is the snapshot's canonical order;
	// sorted so the same training set always yields the same layout.
	nameSet := make(map[string]bool)
	for _, sample := range samples {
		for name := range sample.Features {
			nameSet[name] = true
		}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]float64, len(samples))
	labels := make([]float64, len(samples))
	for i, sample := range samples {
		row := make([]float64, len(names))
		for j, name := range names {
			row[j] = sample.Features[name]
		}
		rows[i] = row
		if sample.Fraud {
			labels[i] = 1
		}
	}

	scaler := &StandardScaler{}
	if err := scaler.Fit(rows); err != nil {
		return fmt.Errorf("failed to fit scaler: %w", err)
	}
	scaled := make([][]float64, len(rows))
	for i, row := range rows {
		scaled[i] = scaler.Transform(row)
	}

	prev := s.snapshot.Load()
	next := &Snapshot{
		Version:      time.Now().UTC().Format("20060102T150405Z"),
		TrainedAt:    time.Now().UTC(),
		FeatureNames: names,
		Scaler:       scaler,
		Weights:      prev.Weights,
		Thresholds:   prev.Thresholds,
	}

	// A sub-model that fails to fit is omitted from the snapshot's active
	// set; the run continues with the rest.
	fits := []struct {
		name string
		fit  func() error
	}{
		{ModelLogistic, func() (err error) { next.Logistic, err = fitLogistic(scaled, labels); return }},
		{ModelBayes, func() (err error) { next.Bayes, err = fitBayes(scaled, labels); return }},
		{ModelCentroid, func() (err error) { next.Centroid, err = fitCentroid(scaled, labels); return }},
		{ModelAnomaly, func() (err error) { next.Anomaly, err = fitAnomaly(scaled, labels); return }},
	}
	for _, f := range fits {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := f.fit(); err != nil {
			slog.Warn("sub-model training failed, omitting from snapshot",
				"model", f.name,
				"error", err,
			)
		}
	}

	if !next.Trained() {
		return fmt.Errorf("no sub-model could be trained from %d samples", len(samples))
	}

	s.snapshot.Store(next)
	slog.Info("model snapshot published",
		"version", next.Version,
		"features", len(names),
		"samples", len(samples),
		"models", len(next.Models()),
	)
	return nil
}

// Save persists the current snapshot as JSON. The write goes through a
// temp file and rename so a crash cannot leave a torn snapshot on disk.
func (s *Scorer) Save(path string) error {
	snap := s.snapshot.Load()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "snapshot-*.json.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to publish snapshot file: %w", err)
	}
	return nil
}

// Load restores a snapshot from disk and publishes it.
func (s *Scorer) Load(path string) error {
	s.trainMu.Lock()
	defer s.trainMu.Unlock()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if snap.Trained() && len(snap.FeatureNames) == 0 {
		return fmt.Errorf("corrupt snapshot: trained models without feature names")
	}
	if len(snap.Weights) == 0 {
		snap.Weights = s.snapshot.Load().Weights
	}

	s.snapshot.Store(&snap)
	return nil
}

// LoadOrBootstrap tries to restore a snapshot from disk. A missing or
// corrupt file is not fatal: it logs, trains a fresh snapshot from the
// synthetic cold-start set, and saves it back.
func (s *Scorer) LoadOrBootstrap(ctx context.Context, path string) error {
	if err := s.Load(path); err == nil {
		slog.Info("model snapshot loaded", "path", path, "version", s.Snapshot().Version)
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		slog.Warn("snapshot load failed, bootstrapping default models",
			"path", path,
			"error", err,
		)
	}

	if err := s.Train(ctx, SyntheticTrainingSet()); err != nil {
		return fmt.Errorf("failed to bootstrap models: %w", err)
	}
	if err := s.Save(path); err != nil {
		slog.Warn("failed to persist bootstrap snapshot", "path", path, "error", err)
	}
	return nil
}

func fitLogistic(rows [][]float64, labels []float64) (*LogisticModel, error) {
	if len(rows) == 0 {
		return nil, ErrEmptyTrainingSet
	}
	dim := len(rows[0])
	weights := make([]float64, dim)
	var bias float64

	// Full-batch gradient descent; deterministic by construction.
	const (
		epochs = 300
		lr     = 0.1
	)
	n := float64(len(rows))
	for epoch := 0; epoch < epochs; epoch++ {
		grad := make([]float64, dim)
		var gradBias float64
		for i, row := range rows {
			z := bias
			for j, w := range weights {
				z += w * row[j]
			}
			err := sigmoid(z) - labels[i]
			for j, v := range row {
				grad[j] += err * v
			}
			gradBias += err
		}
		for j := range weights {
			weights[j] -= lr * grad[j] / n
		}
		bias -= lr * gradBias / n
	}

	return &LogisticModel{Weights: weights, Bias: bias}, nil
}

func fitBayes(rows [][]float64, labels []float64) (*BayesModel, error) {
	counts := classCounts(labels)
	if counts[0] == 0 || counts[1] == 0 {
		return nil, fmt.Errorf("bayes requires samples of both classes")
	}

	dim := len(rows[0])
	m := &BayesModel{}
	for class := 0; class < 2; class++ {
		m.Means[class] = make([]float64, dim)
		m.Vars[class] = make([]float64, dim)
		m.Priors[class] = float64(counts[class]) / float64(len(rows))
	}

	for i, row := range rows {
		class := int(labels[i])
		for j, v := range row {
			m.Means[class][j] += v
		}
	}
	for class := 0; class < 2; class++ {
		for j := range m.Means[class] {
			m.Means[class][j] /= float64(counts[class])
		}
	}

	for i, row := range rows {
		class := int(labels[i])
		for j, v := range row {
			d := v - m.Means[class][j]
			m.Vars[class][j] += d * d
		}
	}
	for class := 0; class < 2; class++ {
		for j := range m.Vars[class] {
			m.Vars[class][j] /= float64(counts[class])
			// Variance floor keeps degenerate columns finite.
			if m.Vars[class][j] < 1e-6 {
				m.Vars[class][j] = 1e-6
			}
		}
	}
	return m, nil
}

func fitCentroid(rows [][]float64, labels []float64) (*CentroidModel, error) {
	counts := classCounts(labels)
	if counts[0] == 0 || counts[1] == 0 {
		return nil, fmt.Errorf("centroid requires samples of both classes")
	}

	dim := len(rows[0])
	m := &CentroidModel{
		Legit: make([]float64, dim),
		Fraud: make([]float64, dim),
	}
	for i, row := range rows {
		target := m.Legit
		if labels[i] == 1 {
			target = m.Fraud
		}
		for j, v := range row {
			target[j] += v
		}
	}
	for j := range m.Legit {
		m.Legit[j] /= float64(counts[0])
		m.Fraud[j] /= float64(counts[1])
	}
	return m, nil
}

// fitAnomaly fits the detector on the non-fraud subset only. An empty
// subset is a training failure for this model alone.
func fitAnomaly(rows [][]float64, labels []float64) (*AnomalyModel, error) {
	normal := make([][]float64, 0, len(rows))
	for i, row := range rows {
		if labels[i] == 0 {
			normal = append(normal, row)
		}
	}
	if len(normal) == 0 {
		return nil, fmt.Errorf("anomaly detector requires non-fraud samples")
	}

	dim := len(normal[0])
	m := &AnomalyModel{
		Means:  make([]float64, dim),
		Stds:   make([]float64, dim),
		Margin: 2.0,
	}
	for _, row := range normal {
		for j, v := range row {
			m.Means[j] += v
		}
	}
	n := float64(len(normal))
	for j := range m.Means {
		m.Means[j] /= n
	}
	for _, row := range normal {
		for j, v := range row {
			d := v - m.Means[j]
			m.Stds[j] += d * d
		}
	}
	for j := range m.Stds {
		m.Stds[j] = math.Sqrt(m.Stds[j] / n)
	}
	return m, nil
}

func classCounts(labels []float64) [2]int {
	var counts [2]int
	for _, l := range labels {
		counts[int(l)]++
	}
	return counts
}
