package fault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/pkg/condition"
	"github.com/arbiterhq/arbiter/pkg/contracts"
)

func newInjector(t *testing.T, opts ...Option) *Injector {
	t.Helper()
	ev, err := condition.NewCELEvaluator()
	require.NoError(t, err)
	return NewInjector(ev, opts...)
}

func TestShouldInject_ConditionGating(t *testing.T) {
	inj := newInjector(t)
	scenario := contracts.FaultScenario{
		ID:             "fs-1",
		FaultType:      contracts.FaultTimeout,
		FaultCondition: "input.size > 1000",
	}
	ctx := context.Background()

	fire, err := inj.ShouldInject(ctx, scenario, map[string]any{"size": 2000})
	require.NoError(t, err)
	require.True(t, fire)

	fire, err = inj.ShouldInject(ctx, scenario, map[string]any{"size": 10})
	require.NoError(t, err)
	require.False(t, fire)
}

func TestWrap_TimeoutFault(t *testing.T) {
	inj := newInjector(t, WithTimeoutDelay(10*time.Millisecond))
	wrapped := inj.Wrap(contracts.FaultScenario{FaultType: contracts.FaultTimeout}, nil)

	out, err := wrapped(context.Background(), nil)
	require.Nil(t, out)
	require.ErrorContains(t, err, "timed out")
}

func TestWrap_NetworkAndFilesystemSkipAction(t *testing.T) {
	inj := newInjector(t)
	invoked := false
	action := func(ctx context.Context, input map[string]any) (any, error) {
		invoked = true
		return "ok", nil
	}

	for _, ft := range []contracts.FaultType{contracts.FaultNetwork, contracts.FaultFilesystem} {
		wrapped := inj.Wrap(contracts.FaultScenario{FaultType: ft}, action)
		_, err := wrapped(context.Background(), nil)
		require.Error(t, err)
	}
	require.False(t, invoked, "network and filesystem faults must not invoke the action")
}

func TestWrap_MemoryFaultRunsAction(t *testing.T) {
	inj := newInjector(t, WithMemoryBlockMB(1))
	wrapped := inj.Wrap(contracts.FaultScenario{FaultType: contracts.FaultMemory},
		func(ctx context.Context, input map[string]any) (any, error) {
			return "done", nil
		})

	out, err := wrapped(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, "done", out)
}

func TestWrap_CPUFaultRunsActionAfterSpin(t *testing.T) {
	inj := newInjector(t, WithCPUSpin(5*time.Millisecond))
	wrapped := inj.Wrap(contracts.FaultScenario{FaultType: contracts.FaultCPU},
		func(ctx context.Context, input map[string]any) (any, error) {
			return 42, nil
		})

	start := time.Now()
	out, err := wrapped(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 42, out)
	require.GreaterOrEqual(t, time.Since(start), 5*time.Millisecond)
}
