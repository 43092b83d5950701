package condition

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// contractVars is the binding vocabulary the contract runtime uses. Every
// name is declared Dyn so expressions can navigate arbitrarily nested inputs.
var contractVars = []string{
	"input",
	"output",
	"error",
	"faultType",
	"originalInput",
	"originalOutput",
	"transformedInput",
	"transformedOutput",
	"metadata",
	"value",
}

// CELEvaluator is the in-process Evaluator backed by CEL. Compiled programs
// are cached per expression; the cache is safe for concurrent executions.
type CELEvaluator struct {
	env *cel.Env

	mu    sync.RWMutex
	cache map[string]cel.Program
}

// NewCELEvaluator builds a CEL environment declaring the contract binding
// vocabulary plus any extra variable names the caller needs.
func NewCELEvaluator(extraVars ...string) (*CELEvaluator, error) {
	opts := make([]cel.EnvOption, 0, len(contractVars)+len(extraVars))
	for _, name := range contractVars {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	for _, name := range extraVars {
		opts = append(opts, cel.Variable(name, cel.DynType))
	}
	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("condition: cel env: %w", err)
	}
	return &CELEvaluator{env: env, cache: make(map[string]cel.Program)}, nil
}

// Check compiles the expression and reports any issues without evaluating it.
func (e *CELEvaluator) Check(expression string) error {
	if _, err := e.program(expression); err != nil {
		return err
	}
	return nil
}

// Evaluate compiles (or reuses) the expression and evaluates it against the
// bindings. Compile issues, runtime failures, and non-boolean results are all
// invalid verdicts with a diagnostic; the returned error is always nil since
// an embedded evaluator has no transport to fail.
func (e *CELEvaluator) Evaluate(_ context.Context, expression string, bindings map[string]any) (Result, error) {
	prg, err := e.program(expression)
	if err != nil {
		return Result{Valid: false, Diagnostic: err.Error()}, nil
	}

	val, _, err := prg.Eval(activation(bindings))
	if err != nil {
		return Result{Valid: false, Diagnostic: err.Error()}, nil
	}

	b, ok := val.Value().(bool)
	if !ok {
		return Result{
			Valid:      false,
			Diagnostic: fmt.Sprintf("expression %q did not produce a boolean (got %s)", expression, val.Type().TypeName()),
		}, nil
	}
	if !b {
		return Result{Valid: false, Diagnostic: fmt.Sprintf("expression %q evaluated to false", expression)}, nil
	}
	return Result{Valid: true}, nil
}

// EvaluateValue evaluates the expression and returns its native value.
// Used for metamorphic transformations.
func (e *CELEvaluator) EvaluateValue(_ context.Context, expression string, bindings map[string]any) (any, error) {
	prg, err := e.program(expression)
	if err != nil {
		return nil, err
	}
	val, _, err := prg.Eval(activation(bindings))
	if err != nil {
		return nil, fmt.Errorf("condition: evaluate %q: %w", expression, err)
	}
	return nativeValue(val)
}

func (e *CELEvaluator) program(expression string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.cache[expression]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("condition: compile %q: %w", expression, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("condition: program %q: %w", expression, err)
	}

	e.mu.Lock()
	e.cache[expression] = prg
	e.mu.Unlock()
	return prg, nil
}

// activation fills the declared vocabulary so unreferenced names do not
// surface as missing-attribute errors mid-expression.
func activation(bindings map[string]any) map[string]any {
	act := make(map[string]any, len(contractVars))
	for _, name := range contractVars {
		act[name] = nil
	}
	for k, v := range bindings {
		act[k] = v
	}
	return act
}

// nativeValue converts a CEL value to plain Go types.
func nativeValue(val ref.Val) (any, error) {
	switch val.Type() {
	case types.MapType:
		out, err := val.ConvertToNative(reflect.TypeOf(map[string]any{}))
		if err != nil {
			return nil, fmt.Errorf("condition: convert map result: %w", err)
		}
		return out, nil
	case types.ListType:
		out, err := val.ConvertToNative(reflect.TypeOf([]any{}))
		if err != nil {
			return nil, fmt.Errorf("condition: convert list result: %w", err)
		}
		return out, nil
	default:
		return val.Value(), nil
	}
}
