// Package policy provides a CEL-based predicate evaluator over loaded
// account records, usable as the custom validator of a permission check.
// Expressions see the account as a set of flat variables, e.g.:
//
//	account.type == "oauth" && account.email_verified
//	account.status == "active" && !account.two_factor_enabled
package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/account-gate/accountgate/pkg/account"
)

// maxExpressionLength is the maximum allowed length for CEL expressions.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit to prevent cost-exhaustion.
const maxCostBudget = 100_000

// maxNestingDepth is the maximum allowed parenthesis/bracket nesting depth.
const maxNestingDepth = 50

// evalTimeout is the maximum time allowed for a single CEL evaluation.
const evalTimeout = 5 * time.Second

// interruptCheckFreq is how often (in comprehension iterations) context
// cancellation is checked.
const interruptCheckFreq = 100

// Evaluator compiles and evaluates CEL predicates over account records.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an evaluator whose environment exposes the account
// fields as variables under the "account" namespace.
func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("account", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create predicate environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Rule is a compiled account predicate.
type Rule struct {
	prg cel.Program
}

// Compile parses, checks, and hardens an expression, returning a reusable
// Rule. Compilation enforces the expression length and nesting limits.
func (e *Evaluator) Compile(expr string) (*Rule, error) {
	if expr == "" {
		return nil, errors.New("expression is empty")
	}
	if len(expr) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(expr), maxExpressionLength)
	}
	if err := validateNesting(expr); err != nil {
		return nil, err
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
		cel.InterruptCheckFrequency(interruptCheckFreq),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}

	return &Rule{prg: prg}, nil
}

// validateNesting checks that the expression does not exceed the maximum
// allowed nesting depth for parentheses, brackets, and braces.
func validateNesting(expr string) error {
	var depth, maxDepth int
	for _, ch := range expr {
		switch ch {
		case '(', '[', '{':
			depth++
			if depth > maxDepth {
				maxDepth = depth
			}
		case ')', ']', '}':
			depth--
		}
	}
	if maxDepth > maxNestingDepth {
		return fmt.Errorf("expression nesting too deep: %d levels (max %d)", maxDepth, maxNestingDepth)
	}
	return nil
}

// Eval runs the rule against an account. It returns an error if the
// expression does not produce a boolean or exceeds the evaluation timeout.
func (r *Rule) Eval(ctx context.Context, a *account.Account) (bool, error) {
	activation := map[string]any{
		"account": map[string]any{
			"id":                 a.ID,
			"type":               string(a.Type),
			"status":             string(a.Status),
			"name":               a.User.Name,
			"email":              a.User.Email,
			"email_verified":     a.User.EmailVerified,
			"two_factor_enabled": a.Security.TwoFactorEnabled,
			"auto_lock":          a.Security.AutoLock,
		},
	}

	ctx, cancel := context.WithTimeout(ctx, evalTimeout)
	defer cancel()

	result, _, err := r.prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	boolResult, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("expression did not return a boolean, got %T", result.Value())
	}
	return boolResult, nil
}

// Validator adapts the rule to the middleware permission validator shape.
func (r *Rule) Validator() func(ctx context.Context, a *account.Account) (bool, error) {
	return func(ctx context.Context, a *account.Account) (bool, error) {
		return r.Eval(ctx, a)
	}
}
