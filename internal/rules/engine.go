// Package rules provides the CEL-Go based point-rule engine backing the
// rule-based scoring path.
package rules

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// BaseScore is the floor every rule-based assessment starts from.
const BaseScore = 20

// Engine compiles point rules to CEL programs and evaluates them against a
// transaction plus its velocity window. Rule evaluation is deterministic for
// a fixed rule set and input.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.PointRule
	Program cel.Program
}

// NewEngine creates a new point-rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment with the transaction and velocity variables rules
	// may reference.
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("day_of_week", cel.IntType),
		cel.Variable("is_weekend", cel.BoolType),
		cel.Variable("is_international", cel.BoolType),
		cel.Variable("is_new_device", cel.BoolType),
		cel.Variable("is_new_location", cel.BoolType),
		cel.Variable("failed_attempts", cel.IntType),
		cel.Variable("distance_from_home", cel.DoubleType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("merchant_category", cel.StringType),
		cel.Variable("tx_count_1h", cel.IntType),
		cel.Variable("tx_count_24h", cel.IntType),
		cel.Variable("tx_count_7d", cel.IntType),
		cel.Variable("amount_sum_1h", cel.DoubleType),
		cel.Variable("amount_sum_24h", cel.DoubleType),
		cel.Variable("unique_merchants_24h", cel.IntType),
		cel.Variable("unique_devices_24h", cel.IntType),
		cel.Variable("time_since_last_tx", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(cfg *domain.PointRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.PointRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules, skipping disabled ones.
func (e *Engine) LoadRules(configs []*domain.PointRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the configs of all loaded rules, sorted by ID.
func (e *Engine) LoadedRules() []*domain.PointRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	configs := make([]*domain.PointRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		configs = append(configs, rule.Config)
	}
	sort.Slice(configs, func(i, j int) bool {
		return configs[i].ID < configs[j].ID
	})
	return configs
}

// Close releases engine resources.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
}

func (e *Engine) compileRule(cfg *domain.PointRule) (*CompiledRule, error) {
	if cfg.Expression == "" {
		return nil, fmt.Errorf("rule %s: expression is required", cfg.ID)
	}

	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("rule %s: compile failed: %w", cfg.ID, issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("rule %s: program creation failed: %w", cfg.ID, err)
	}

	return &CompiledRule{Config: cfg, Program: program}, nil
}

// Score evaluates all loaded rules against the transaction and returns the
// clamped additive score plus the rules that fired. A rule whose evaluation
// errors contributes nothing; malformed input never aborts scoring.
func (e *Engine) Score(ctx context.Context, tx *domain.Transaction, w domain.VelocityWindow) (int, []domain.RuleMatch) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	// Stable order so match lists are reproducible.
	sort.Slice(rules, func(i, j int) bool {
		return rules[i].Config.ID < rules[j].Config.ID
	})

	activation := map[string]any{
		"amount":               tx.Amount,
		"hour":                 int64(tx.Hour),
		"day_of_week":          int64(tx.DayOfWeek),
		"is_weekend":           tx.IsWeekend,
		"is_international":     tx.IsInternational,
		"is_new_device":        tx.IsNewDevice,
		"is_new_location":      tx.IsNewLocation,
		"failed_attempts":      int64(tx.FailedAttempts),
		"distance_from_home":   tx.DistanceFromHome,
		"tx_type":              tx.Type,
		"merchant_category":    tx.MerchantCategory,
		"tx_count_1h":          int64(w.TxCount1h),
		"tx_count_24h":         int64(w.TxCount24h),
		"tx_count_7d":          int64(w.TxCount7d),
		"amount_sum_1h":        w.AmountSum1h,
		"amount_sum_24h":       w.AmountSum24h,
		"unique_merchants_24h": int64(w.UniqueMerchants24h),
		"unique_devices_24h":   int64(w.UniqueDevices24h),
		"time_since_last_tx":   w.TimeSinceLastTx,
	}

	// Bounded parallel evaluation; each goroutine writes its own slot so
	// the match order stays stable.
	matched := make([]*domain.RuleMatch, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			out, _, err := r.Program.Eval(activation)
			if err != nil {
				return
			}
			if truthy(out) {
				matched[idx] = &domain.RuleMatch{
					RuleID: r.Config.ID,
					Name:   r.Config.Name,
					Points: r.Config.Points,
				}
			}
		}(i, rule)
	}
	wg.Wait()

	score := BaseScore
	matches := make([]domain.RuleMatch, 0, len(rules))
	for _, m := range matched {
		if m != nil {
			score += m.Points
			matches = append(matches, *m)
		}
	}

	return clamp(score), matches
}

// truthy converts a CEL result to a boolean match.
func truthy(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) > 0
	case types.Int:
		return int64(v) > 0
	default:
		return false
	}
}

func clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
