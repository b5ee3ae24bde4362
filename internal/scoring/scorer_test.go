package scoring

import (
	"context"
	"errors"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// fakeProvider is a canned model for scorer tests.
type fakeProvider struct {
	prob       float64
	predictErr error
	explainErr error
	factors    []domain.FeatureContribution
	meta       domain.ModelMetadata
}

func (p *fakeProvider) PredictProbability(features []float64) (float64, error) {
	return p.prob, p.predictErr
}

func (p *fakeProvider) Explain(features []float64) ([]domain.FeatureContribution, error) {
	return p.factors, p.explainErr
}

func (p *fakeProvider) Metadata() domain.ModelMetadata {
	return p.meta
}

func testEngine(t *testing.T) *rules.Engine {
	t.Helper()
	engine, err := rules.NewEngine(10)
	if err != nil {
		t.Fatalf("NewEngine failed: %v", err)
	}
	t.Cleanup(engine.Close)
	if err := engine.LoadRules(rules.BuiltinRules()); err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}
	return engine
}

func TestRuleScorer(t *testing.T) {
	scorer := NewRuleScorer(features.NewExtractor(), testEngine(t))
	ctx := context.Background()

	t.Run("Mode", func(t *testing.T) {
		if scorer.Mode() != ModeRuleBased {
			t.Errorf("expected rule_based mode, got %s", scorer.Mode())
		}
		if scorer.ModelVersion() != RuleModelName {
			t.Errorf("expected model name %q, got %q", RuleModelName, scorer.ModelVersion())
		}
	})

	t.Run("BenignTransaction", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-1", Amount: 500, Hour: 14}
		a, err := scorer.Score(ctx, tx, domain.DefaultVelocityWindow())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}

		if a.RiskScore != 20 {
			t.Errorf("expected base score 20, got %d", a.RiskScore)
		}
		if a.IsFraud {
			t.Error("benign transaction flagged as fraud")
		}
		if a.Severity != domain.SeverityLow {
			t.Errorf("expected LOW, got %s", a.Severity)
		}
		if a.Confidence != RuleConfidence {
			t.Errorf("expected confidence %d, got %d", RuleConfidence, a.Confidence)
		}
		if a.Model != RuleModelName {
			t.Errorf("expected model %q, got %q", RuleModelName, a.Model)
		}
	})

	t.Run("HighRiskTransaction", func(t *testing.T) {
		// 20 + 30 + 25 + 15 = 90: CRITICAL, above rule fraud threshold
		tx := &domain.Transaction{
			ID:              "tx-2",
			Amount:          15000,
			Hour:            3,
			IsInternational: true,
		}
		a, err := scorer.Score(ctx, tx, domain.DefaultVelocityWindow())
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}

		if a.RiskScore != 90 {
			t.Errorf("expected score 90, got %d", a.RiskScore)
		}
		if !a.IsFraud {
			t.Error("expected fraud flag above rule threshold")
		}
		if a.Severity != domain.SeverityCritical {
			t.Errorf("expected CRITICAL, got %s", a.Severity)
		}
	})

	t.Run("InvalidAmount", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-3", Amount: 0}
		if _, err := scorer.Score(ctx, tx, domain.DefaultVelocityWindow()); !errors.Is(err, domain.ErrInvalidTransaction) {
			t.Errorf("expected ErrInvalidTransaction, got %v", err)
		}
	})

	t.Run("Idempotent", func(t *testing.T) {
		tx := &domain.Transaction{ID: "tx-4", Amount: 2500, Hour: 2, IsNewDevice: true}
		w := domain.DefaultVelocityWindow()

		first, err := scorer.Score(ctx, tx, w)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		for i := 0; i < 5; i++ {
			again, err := scorer.Score(ctx, tx, w)
			if err != nil {
				t.Fatalf("Score failed: %v", err)
			}
			if again.RiskScore != first.RiskScore || again.Severity != first.Severity {
				t.Fatalf("assessment changed across calls: %+v vs %+v", again, first)
			}
		}
	})
}

func TestModelScorer(t *testing.T) {
	ctx := context.Background()
	tx := &domain.Transaction{ID: "tx-1", Amount: 500, Hour: 14}
	w := domain.DefaultVelocityWindow()

	t.Run("ModelPath", func(t *testing.T) {
		provider := &fakeProvider{
			prob: 0.93,
			factors: []domain.FeatureContribution{
				{Feature: "amount", Impact: 1.2, Direction: "increases"},
				{Feature: "is_night", Impact: 0.8, Direction: "increases"},
			},
			meta: domain.ModelMetadata{ModelVersion: "fraud-v3", Threshold: 0.5},
		}
		scorer := NewModelScorer(provider, features.NewExtractor(), testEngine(t))

		a, err := scorer.Score(ctx, tx, w)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}

		if a.RiskScore != 93 {
			t.Errorf("expected score 93, got %d", a.RiskScore)
		}
		if !a.IsFraud {
			t.Error("expected fraud above threshold")
		}
		if a.Confidence != ModelConfidence {
			t.Errorf("expected confidence %d, got %d", ModelConfidence, a.Confidence)
		}
		if a.Model != "fraud-v3" {
			t.Errorf("expected model fraud-v3, got %s", a.Model)
		}
		if len(a.TopFactors) != 2 {
			t.Errorf("expected 2 factors, got %d", len(a.TopFactors))
		}
	})

	t.Run("NoAttributionBelowThreshold", func(t *testing.T) {
		provider := &fakeProvider{
			prob:    0.2,
			factors: []domain.FeatureContribution{{Feature: "amount"}},
			meta:    domain.ModelMetadata{ModelVersion: "fraud-v3", Threshold: 0.5},
		}
		scorer := NewModelScorer(provider, features.NewExtractor(), testEngine(t))

		a, err := scorer.Score(ctx, tx, w)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}

		if a.RiskScore != 20 {
			t.Errorf("expected score 20, got %d", a.RiskScore)
		}
		if len(a.TopFactors) != 0 {
			t.Errorf("expected no factors below explain threshold, got %d", len(a.TopFactors))
		}
	})

	t.Run("AttributionCappedAtFive", func(t *testing.T) {
		provider := &fakeProvider{
			prob: 0.8,
			factors: []domain.FeatureContribution{
				{Feature: "a"}, {Feature: "b"}, {Feature: "c"},
				{Feature: "d"}, {Feature: "e"}, {Feature: "f"}, {Feature: "g"},
			},
			meta: domain.ModelMetadata{ModelVersion: "fraud-v3", Threshold: 0.5},
		}
		scorer := NewModelScorer(provider, features.NewExtractor(), testEngine(t))

		a, err := scorer.Score(ctx, tx, w)
		if err != nil {
			t.Fatalf("Score failed: %v", err)
		}
		if len(a.TopFactors) != maxTopFactors {
			t.Errorf("expected %d factors, got %d", maxTopFactors, len(a.TopFactors))
		}
	})

	t.Run("AttributionFailureSwallowed", func(t *testing.T) {
		provider := &fakeProvider{
			prob:       0.8,
			explainErr: errors.New("matrix mismatch"),
			meta:       domain.ModelMetadata{ModelVersion: "fraud-v3", Threshold: 0.5},
		}
		scorer := NewModelScorer(provider, features.NewExtractor(), testEngine(t))

		a, err := scorer.Score(ctx, tx, w)
		if err != nil {
			t.Fatalf("Score should not fail on explain error: %v", err)
		}
		if len(a.TopFactors) != 0 {
			t.Errorf("expected no factors, got %d", len(a.TopFactors))
		}
	})

	t.Run("FallsBackToRulesOnModelError", func(t *testing.T) {
		provider := &fakeProvider{
			predictErr: errors.New("model artifact corrupt"),
			meta:       domain.ModelMetadata{ModelVersion: "fraud-v3", Threshold: 0.5},
		}
		scorer := NewModelScorer(provider, features.NewExtractor(), testEngine(t))

		a, err := scorer.Score(ctx, tx, w)
		if err != nil {
			t.Fatalf("expected rule fallback, got error: %v", err)
		}

		if a.Model != RuleModelName {
			t.Errorf("expected rule fallback assessment, got model %s", a.Model)
		}
		if a.Confidence != RuleConfidence {
			t.Errorf("expected rule confidence, got %d", a.Confidence)
		}
		if a.RiskScore != 20 {
			t.Errorf("expected rule score 20, got %d", a.RiskScore)
		}
	})
}
