// Package rules provides the CEL-Go based configurable risk-rule overlay.
// Rules are tenant-defined checks over the extracted feature map that add
// risk factors and may escalate the policy decision.
package rules

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/shrike/internal/domain"
)

// Engine is the CEL-based risk rule engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  *domain.RiskRule
	Program cel.Program
}

// NewEngine creates a new risk rule engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment over the extracted feature map plus the raw event
	// fields a rule author most often needs.
	env, err := cel.NewEnv(
		cel.Variable("features", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("currency", cel.StringType),
		cel.Variable("customer_id", cel.StringType),
		cel.Variable("email", cel.StringType),
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

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (e *Engine) ValidateRule(cfg *domain.RiskRule) error {
	if cfg == nil {
		return fmt.Errorf("rule config is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(cfg)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(cfg *domain.RiskRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(cfg)
	if err != nil {
		return err
	}

	e.compiledRules[cfg.ID] = compiled
	return nil
}

// LoadRules compiles and loads multiple rules.
func (e *Engine) LoadRules(configs []*domain.RiskRule) error {
	for _, cfg := range configs {
		if cfg.Enabled {
			if err := e.LoadRule(cfg); err != nil {
				return err
			}
		}
	}
	return nil
}

// EvaluateAll evaluates all loaded rules against the feature map in
// parallel and returns the triggered hits. A rule that errors at eval time
// simply does not trigger; the assessment path never invents outcomes.
func (e *Engine) EvaluateAll(ctx context.Context, event *domain.Event, fv domain.FeatureVector) []domain.RuleHit {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"features":    map[string]float64(fv),
		"amount":      event.Amount,
		"currency":    event.Currency,
		"customer_id": event.CustomerID,
		"email":       event.Email,
	}

	// Parallel evaluation with a semaphore-bounded worker pool.
	hits := make([]*domain.RuleHit, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			hits[idx] = e.evaluateRule(r, activation)
		}(i, rule)
	}
	wg.Wait()

	out := make([]domain.RuleHit, 0, len(hits))
	for _, hit := range hits {
		if hit != nil {
			out = append(out, *hit)
		}
	}
	return out
}

// evaluateRule runs one rule and returns a hit when it triggers.
func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) *domain.RuleHit {
	start := time.Now()

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		return nil
	}
	if !triggered(out) {
		return nil
	}

	return &domain.RuleHit{
		RuleID: rule.Config.ID,
		Factor: domain.RiskFactor{
			Factor:      rule.Config.Factor,
			Severity:    rule.Config.Severity,
			Description: rule.Config.Description,
			Impact:      rule.Config.Impact,
		},
		ForceDecision: rule.Config.ForceDecision,
		ProcessMs:     time.Since(start).Milliseconds(),
	}
}

// triggered converts a CEL value to a trigger flag: true, or a number >= 1.
func triggered(val ref.Val) bool {
	switch v := val.(type) {
	case types.Bool:
		return bool(v)
	case types.Double:
		return float64(v) >= 1
	case types.Int:
		return int64(v) >= 1
	default:
		return false
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// ReloadRules clears all existing rules and loads new ones.
// This enables hot-reloading of rules from the database.
func (e *Engine) ReloadRules(configs []*domain.RiskRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, cfg := range configs {
		if !cfg.Enabled {
			continue
		}

		compiled, err := e.compileRule(cfg)
		if err != nil {
			return err
		}
		newRules[cfg.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// GetLoadedRules returns the currently loaded rule configurations.
func (e *Engine) GetLoadedRules() []*domain.RiskRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.RiskRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Config)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(cfg *domain.RiskRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(cfg.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", cfg.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", cfg.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", cfg.ID, err)
	}

	switch cfg.ForceDecision {
	case "", domain.DecisionReview, domain.DecisionDecline:
	default:
		return nil, fmt.Errorf("rule %s: forceDecision must be REVIEW or DECLINE, got %q", cfg.ID, cfg.ForceDecision)
	}

	return &CompiledRule{
		Config:  cfg,
		Program: program,
	}, nil
}
