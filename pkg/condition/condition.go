// Package condition defines the pluggable expression-evaluation boundary used
// by the contract runtime. The engine never hardwires a particular evaluator;
// it consumes the Evaluator interface and treats any implementation error as
// infrastructure failure, distinct from an expression evaluating false.
package condition

import "context"

// Result is the verdict for one boolean expression.
type Result struct {
	Valid bool `json:"valid"`
	// Diagnostic explains why the expression is not valid (compile issue,
	// runtime failure, or non-boolean result). Empty when Valid.
	Diagnostic string `json:"diagnostic,omitempty"`
}

// Evaluator evaluates a boolean expression string against variable bindings.
// A non-nil error means the evaluator itself failed (process unreachable,
// transport fault); expression falsity or malformed expressions are reported
// through Result.
type Evaluator interface {
	Evaluate(ctx context.Context, expression string, bindings map[string]any) (Result, error)
}

// ValueEvaluator produces arbitrary (non-boolean) values from expressions.
// The engine requires it for metamorphic transformations, which map an
// original input to a transformed input.
type ValueEvaluator interface {
	EvaluateValue(ctx context.Context, expression string, bindings map[string]any) (any, error)
}

// Checker compile-checks an expression without evaluating it. Evaluators that
// implement it get deep expression validation at contract registration.
type Checker interface {
	Check(expression string) error
}
