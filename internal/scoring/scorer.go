// Package scoring implements the two-tier transaction risk scorer.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/features"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Mode selects the scoring strategy. Chosen once at construction, never
// re-probed per call.
type Mode string

const (
	// ModeModel scores through a loaded classifier with rule fallback on
	// per-call model failure.
	ModeModel Mode = "model"

	// ModeRuleBased scores through the deterministic point-rule engine.
	ModeRuleBased Mode = "rule_based"
)

// Fixed per-mode confidence. Reflects mode reliability, not a calibrated
// statistic.
const (
	ModelConfidence = 85
	RuleConfidence  = 60
)

// RuleFraudThreshold is the score above which the rule-based path flags
// fraud. The model path uses the trained decision threshold instead.
const RuleFraudThreshold = 70

// ExplainThreshold is the risk score at and above which model attributions
// are requested.
const ExplainThreshold = 50

// maxTopFactors caps the attribution list attached to an assessment.
const maxTopFactors = 5

// RuleModelName is reported as the model identifier on the rule-based path.
const RuleModelName = "rule_based"

// Scorer scores transactions for fraud risk. Stateless per call apart from
// read access to the immutable loaded model; safe for concurrent use.
type Scorer struct {
	mode      Mode
	provider  domain.ModelProvider
	extractor *features.Extractor
	engine    *rules.Engine
}

// NewModelScorer creates a scorer backed by a loaded classifier. The rule
// engine remains wired as the degradation path for per-call model failures.
func NewModelScorer(provider domain.ModelProvider, extractor *features.Extractor, engine *rules.Engine) *Scorer {
	return &Scorer{
		mode:      ModeModel,
		provider:  provider,
		extractor: extractor,
		engine:    engine,
	}
}

// NewRuleScorer creates a scorer that runs purely on the point-rule engine.
func NewRuleScorer(extractor *features.Extractor, engine *rules.Engine) *Scorer {
	return &Scorer{
		mode:      ModeRuleBased,
		extractor: extractor,
		engine:    engine,
	}
}

// Mode returns the configured scoring mode.
func (s *Scorer) Mode() Mode {
	return s.mode
}

// ModelVersion returns the identifier reported on assessments.
func (s *Scorer) ModelVersion() string {
	if s.mode == ModeModel {
		return s.provider.Metadata().ModelVersion
	}
	return RuleModelName
}

// Threshold returns the decision threshold in effect.
func (s *Scorer) Threshold() float64 {
	if s.mode == ModeModel {
		return s.provider.Metadata().Threshold
	}
	return RuleFraudThreshold
}

// FeatureCount returns the width of the extracted feature vector.
func (s *Scorer) FeatureCount() int {
	return len(s.extractor.Order())
}

// Score produces a RiskAssessment for the transaction and its velocity
// window. Idempotent for fixed input and model state. Only a missing or
// non-positive amount is a hard error; model failures downgrade to the
// rule-based path for that call.
func (s *Scorer) Score(ctx context.Context, tx *domain.Transaction, w domain.VelocityWindow) (*domain.RiskAssessment, error) {
	if tx == nil || tx.Amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidTransaction)
	}

	if s.mode == ModeModel {
		assessment, err := s.scoreModel(tx, w)
		if err == nil {
			metrics.TransactionsScored.Inc()
			return assessment, nil
		}

		// Model errors never abort scoring.
		slog.Warn("model scoring failed, falling back to rules",
			"tx_id", tx.ID,
			"error", err,
		)
		metrics.ModelFallbacks.Inc()
	}

	assessment := s.scoreRules(ctx, tx, w)
	metrics.TransactionsScored.Inc()
	return assessment, nil
}

func (s *Scorer) scoreModel(tx *domain.Transaction, w domain.VelocityWindow) (*domain.RiskAssessment, error) {
	vec, err := s.extractor.Extract(tx, w)
	if err != nil {
		return nil, err
	}

	prob, err := s.provider.PredictProbability(vec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrModelUnavailable, err)
	}

	meta := s.provider.Metadata()
	score := clampScore(int(math.Round(prob * 100)))

	assessment := &domain.RiskAssessment{
		RiskScore:   score,
		Probability: prob,
		IsFraud:     prob >= meta.Threshold,
		Severity:    domain.SeverityForScore(score),
		Confidence:  ModelConfidence,
		Model:       meta.ModelVersion,
	}

	if score >= ExplainThreshold {
		factors, err := s.provider.Explain(vec)
		if err != nil {
			// Attribution failures are swallowed; the alert still goes
			// out without explanations.
			slog.Debug("attribution unavailable",
				"tx_id", tx.ID,
				"error", fmt.Errorf("%w: %v", domain.ErrExplainability, err),
			)
		} else {
			if len(factors) > maxTopFactors {
				factors = factors[:maxTopFactors]
			}
			assessment.TopFactors = factors
		}
	}

	return assessment, nil
}

func (s *Scorer) scoreRules(ctx context.Context, tx *domain.Transaction, w domain.VelocityWindow) *domain.RiskAssessment {
	score, _ := s.engine.Score(ctx, tx, w)

	return &domain.RiskAssessment{
		RiskScore:  score,
		IsFraud:    score > RuleFraudThreshold,
		Severity:   domain.SeverityForScore(score),
		Confidence: RuleConfidence,
		Model:      RuleModelName,
	}
}

func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
