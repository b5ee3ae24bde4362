package domain

import (
	"context"
)

// ModelProvider is the interface to a trained fraud classifier. The engine
// consumes only the online predict/explain surface and static metadata;
// training lives outside this repository. Absence of a loaded model is a
// valid state (triggers the rule-based fallback), not an error.
type ModelProvider interface {
	// PredictProbability returns the fraud probability in [0,1] for a
	// feature vector ordered per Metadata().FeatureNames.
	PredictProbability(features []float64) (float64, error)

	// Explain returns signed per-feature contributions for a feature
	// vector, magnitude-ranked descending. Optional: implementations may
	// return ErrExplainability.
	Explain(features []float64) ([]FeatureContribution, error)

	// Metadata returns the static model metadata captured at training time.
	Metadata() ModelMetadata
}

// ModelMetadata is produced by the offline training pipeline and loaded with
// the model artifact.
type ModelMetadata struct {
	ModelVersion string             `json:"model_version"`
	FeatureNames []string           `json:"feature_names"`
	Threshold    float64            `json:"threshold"`
	Importance   map[string]float64 `json:"feature_importance"`
	TrainedAt    string             `json:"trained_at"`
}

// GraphNode is a node in an entity-relationship graph. Positions are offsets
// from the investigated hub, which sits at the origin.
type GraphNode struct {
	ID        string  `json:"id"`
	Type      string  `json:"type"`
	Label     string  `json:"label"`
	RiskScore int     `json:"riskScore"`
	Critical  bool    `json:"critical"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`

	// Euclidean distance from the hub after layout, for downstream ranking.
	DistanceFromHub float64 `json:"distanceFromHub"`
}

// GraphEdge is an undirected link between two entities.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// EntityGraph is the investigation graph for one user. Built on demand, not
// persisted.
type EntityGraph struct {
	UserID string      `json:"userId"`
	Nodes  []GraphNode `json:"nodes"`
	Edges  []GraphEdge `json:"edges"`
}

// LinkageProvider supplies known entity links for a user. Optional; when
// absent the graph builder falls back to a fixed demonstration set.
type LinkageProvider interface {
	LinkedEntities(ctx context.Context, userID string) ([]GraphNode, []GraphEdge, error)
}
