// Package screening provides the CEL-Go based watchlist engine. Screening
// rules are advisory: a matching rule records its name as a flag on the
// assessment and nothing more. Flags never alter the score or the level.
package screening

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/mlinzi-tz/mlinzi/internal/domain"
)

// Engine compiles and evaluates screening rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*compiledRule
}

type compiledRule struct {
	rule    *domain.ScreeningRule
	program cel.Program
}

// NewEngine creates a new screening engine.
func NewEngine() (*Engine, error) {
	// Expose the transaction and the behavior profile to expressions.
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("platform", cel.StringType),
		cel.Variable("tx_type", cel.StringType),
		cel.Variable("hour", cel.IntType),
		cel.Variable("location", cel.StringType),
		cel.Variable("network", cel.StringType),
		cel.Variable("average_amount", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*compiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.ScreeningRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(rule)
	return err
}

// LoadRule compiles and loads a single rule into the engine.
func (e *Engine) LoadRule(rule *domain.ScreeningRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(rules []*domain.ScreeningRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces the loaded rule set atomically. Enables hot-reload
// from the database without dropping in-flight evaluations.
func (e *Engine) ReloadRules(rules []*domain.ScreeningRule) error {
	newRules := make(map[string]*compiledRule)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules
	return nil
}

// Screen evaluates every loaded rule against the transaction and returns
// the names of the rules that matched, sorted for deterministic output.
// A rule that errors at evaluation time simply does not match.
func (e *Engine) Screen(tx *domain.Transaction, p *domain.UserBehaviorProfile) []string {
	e.mu.RLock()
	rules := make([]*compiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}

	activation := map[string]any{
		"tx": map[string]any{
			"id":       tx.ID,
			"amount":   tx.AbsAmount(),
			"platform": string(tx.Platform),
			"type":     string(tx.Type),
			"hour":     tx.Hour(),
			"location": tx.Metadata.LocationLabel(),
			"network":  tx.Metadata.NetworkLabel(),
		},
		"amount":         tx.AbsAmount(),
		"platform":       string(tx.Platform),
		"tx_type":        string(tx.Type),
		"hour":           tx.Hour(),
		"location":       tx.Metadata.LocationLabel(),
		"network":        tx.Metadata.NetworkLabel(),
		"average_amount": 0.0,
	}
	if p != nil {
		activation["average_amount"] = p.AverageAmount
	}

	var flags []string
	for _, r := range rules {
		out, _, err := r.program.Eval(activation)
		if err != nil {
			continue
		}
		if matched, ok := out.(types.Bool); ok && bool(matched) {
			flags = append(flags, r.rule.Name)
		}
	}

	sort.Strings(flags)
	return flags
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// LoadedRules returns the currently loaded rule definitions.
func (e *Engine) LoadedRules() []*domain.ScreeningRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.ScreeningRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.rule)
	}
	return rules
}

// Close clears the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*compiledRule)
	return nil
}

func (e *Engine) compile(rule *domain.ScreeningRule) (*compiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &compiledRule{
		rule:    rule,
		program: program,
	}, nil
}
