// Package model loads trained classifier artifacts for online scoring.
//
// The offline training pipeline exports two files: a metadata JSON (feature
// names, decision threshold, feature importance, model version) and a weight
// vector for the calibrated linear scoring head. This package consumes those
// artifacts; training itself lives outside this repository.
package model

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// weights is the exported linear scoring head with its standardization
// parameters.
type weights struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	Means        []float64 `json:"means"`
	Scales       []float64 `json:"scales"`
}

// FileProvider implements domain.ModelProvider from artifacts on disk.
// Immutable after Load; safe for concurrent use.
type FileProvider struct {
	meta domain.ModelMetadata
	w    weights
}

// Load reads the metadata and weight artifacts. A missing artifact is an
// error here; callers treat it as "no model loaded" and run rule-based.
func Load(metadataPath, weightsPath string) (*FileProvider, error) {
	metaRaw, err := os.ReadFile(metadataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model metadata: %w", err)
	}

	var meta domain.ModelMetadata
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse model metadata: %w", err)
	}
	if len(meta.FeatureNames) == 0 {
		return nil, fmt.Errorf("model metadata has no feature names")
	}
	if meta.Threshold <= 0 || meta.Threshold >= 1 {
		return nil, fmt.Errorf("model metadata threshold out of range: %f", meta.Threshold)
	}

	weightsRaw, err := os.ReadFile(weightsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model weights: %w", err)
	}

	var w weights
	if err := json.Unmarshal(weightsRaw, &w); err != nil {
		return nil, fmt.Errorf("failed to parse model weights: %w", err)
	}

	n := len(meta.FeatureNames)
	if len(w.Coefficients) != n {
		return nil, fmt.Errorf("weight count %d does not match feature count %d", len(w.Coefficients), n)
	}
	if len(w.Means) != n || len(w.Scales) != n {
		return nil, fmt.Errorf("scaler parameters do not match feature count %d", n)
	}

	return &FileProvider{meta: meta, w: w}, nil
}

// Metadata returns the static model metadata.
func (p *FileProvider) Metadata() domain.ModelMetadata {
	return p.meta
}

// PredictProbability returns the fraud probability for a feature vector
// ordered per the metadata's feature names.
func (p *FileProvider) PredictProbability(features []float64) (float64, error) {
	if len(features) != len(p.w.Coefficients) {
		return 0, fmt.Errorf("feature vector length %d, want %d", len(features), len(p.w.Coefficients))
	}

	z := p.w.Intercept
	for i, v := range features {
		z += p.w.Coefficients[i] * p.standardize(i, v)
	}

	return sigmoid(z), nil
}

// Explain returns signed per-feature contributions, magnitude-ranked
// descending. Each contribution is the feature's standardized value times
// its coefficient.
func (p *FileProvider) Explain(features []float64) ([]domain.FeatureContribution, error) {
	if len(features) != len(p.w.Coefficients) {
		return nil, fmt.Errorf("%w: feature vector length %d, want %d",
			domain.ErrExplainability, len(features), len(p.w.Coefficients))
	}

	contributions := make([]domain.FeatureContribution, len(features))
	for i, v := range features {
		impact := p.w.Coefficients[i] * p.standardize(i, v)
		direction := "increases"
		if impact < 0 {
			direction = "decreases"
		}
		contributions[i] = domain.FeatureContribution{
			Feature:   p.meta.FeatureNames[i],
			Impact:    impact,
			Direction: direction,
		}
	}

	sort.SliceStable(contributions, func(i, j int) bool {
		return math.Abs(contributions[i].Impact) > math.Abs(contributions[j].Impact)
	})

	return contributions, nil
}

func (p *FileProvider) standardize(i int, v float64) float64 {
	scale := p.w.Scales[i]
	if scale == 0 {
		scale = 1
	}
	return (v - p.w.Means[i]) / scale
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
