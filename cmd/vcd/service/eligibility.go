package service

import (
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/vcdist/vcd/cmd/vcd/models"
)

// Identity is the authenticated caller as supplied by the gateway
type Identity struct {
	Username   string
	TrustLevel int
}

// RuleEvaluator compiles and caches campaign rule expressions.
// Expressions see `user.username`, `user.trust_level` and `ip`.
type RuleEvaluator struct {
	env   *cel.Env
	cache map[string]cel.Program
	mu    sync.RWMutex
}

// NewRuleEvaluator creates an evaluator with an empty program cache
func NewRuleEvaluator() (*RuleEvaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("user", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("ip", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	return &RuleEvaluator{
		env:   env,
		cache: make(map[string]cel.Program),
	}, nil
}

// Compile checks that expr is valid and yields a boolean
func (e *RuleEvaluator) Compile(expr string) error {
	_, err := e.program(expr)
	return err
}

// Evaluate runs expr against the caller
func (e *RuleEvaluator) Evaluate(expr string, user Identity, ip string) (bool, error) {
	prg, err := e.program(expr)
	if err != nil {
		return false, err
	}

	out, _, err := prg.Eval(map[string]interface{}{
		"user": map[string]interface{}{
			"username":    user.Username,
			"trust_level": int64(user.TrustLevel),
		},
		"ip": ip,
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation error: %w", err)
	}

	result, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean, got %T", out.Value())
	}
	return result, nil
}

// CacheSize returns the number of compiled expressions
func (e *RuleEvaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

func (e *RuleEvaluator) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL compilation error: %w", issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("CEL expression must return bool, got %s", out)
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	e.mu.Lock()
	e.cache[expr] = prg
	e.mu.Unlock()

	return prg, nil
}

// Guard evaluates a campaign's eligibility rules against a caller. It reads
// nothing but its arguments.
type Guard struct {
	rules         *RuleEvaluator
	creatorBypass bool
}

// NewGuard creates a guard. creatorBypass lets a campaign's creator claim
// regardless of tier, whitelist and rule.
func NewGuard(rules *RuleEvaluator, creatorBypass bool) *Guard {
	return &Guard{
		rules:         rules,
		creatorBypass: creatorBypass,
	}
}

// Check returns nil when user may claim from c, otherwise the violated rule
func (g *Guard) Check(c *models.Campaign, user Identity, ip string) error {
	if g.creatorBypass && user.Username == c.CreatedBy {
		return nil
	}

	if c.HasWhitelist() {
		if !c.IsWhitelisted(user.Username) {
			return ErrUserNotInWhitelist
		}
	} else if !c.AllowsTrustLevel(user.TrustLevel) {
		return ErrTrustLevelNotMatch
	}

	if c.RuleExpression == nil || *c.RuleExpression == "" {
		return nil
	}

	ok, err := g.rules.Evaluate(*c.RuleExpression, user, ip)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRuleNotMatch, err)
	}
	if !ok {
		return ErrRuleNotMatch
	}
	return nil
}
