package condition

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCELEvaluator_BooleanVerdicts(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)
	ctx := context.Background()

	res, err := ev.Evaluate(ctx, "input.value > 0", map[string]any{"input": map[string]any{"value": 5}})
	require.NoError(t, err)
	require.True(t, res.Valid)
	require.Empty(t, res.Diagnostic)

	res, err = ev.Evaluate(ctx, "input.value > 0", map[string]any{"input": map[string]any{"value": -1}})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Diagnostic, "evaluated to false")
}

func TestCELEvaluator_CompileFailureIsInvalid(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	res, err := ev.Evaluate(context.Background(), "input.value >>> 2", map[string]any{"input": map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Diagnostic)
}

func TestCELEvaluator_NonBooleanIsInvalid(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	res, err := ev.Evaluate(context.Background(), "input.value + 1", map[string]any{"input": map[string]any{"value": 1}})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.Contains(t, res.Diagnostic, "did not produce a boolean")
}

func TestCELEvaluator_RuntimeFailureIsInvalid(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	// input is bound but has no such key
	res, err := ev.Evaluate(context.Background(), "input.missing > 0", map[string]any{"input": map[string]any{}})
	require.NoError(t, err)
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Diagnostic)
}

func TestCELEvaluator_Check(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	require.NoError(t, ev.Check("input.value > 0 && output.total < 100"))
	require.Error(t, ev.Check("input..value"))
	require.Error(t, ev.Check("unknownVar > 0"))
}

func TestCELEvaluator_EvaluateValue(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)
	ctx := context.Background()

	v, err := ev.EvaluateValue(ctx, "{'value': input.value * 2}", map[string]any{"input": map[string]any{"value": 3}})
	require.NoError(t, err)
	m, ok := v.(map[string]any)
	require.True(t, ok, "expected map result, got %T", v)
	require.EqualValues(t, 6, m["value"])

	v, err = ev.EvaluateValue(ctx, "[1, 2, 3]", nil)
	require.NoError(t, err)
	require.IsType(t, []any{}, v)
}

func TestCELEvaluator_FaultVocabulary(t *testing.T) {
	ev, err := NewCELEvaluator()
	require.NoError(t, err)

	res, err := ev.Evaluate(context.Background(), "error.contains('timed out') && faultType == 'timeout'",
		map[string]any{"error": "operation timed out after 50ms", "faultType": "timeout"})
	require.NoError(t, err)
	require.True(t, res.Valid)
}
