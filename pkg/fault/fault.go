// Package fault deterministically provokes failures during contract
// execution. One behavior per fault type, parameterized only by whether the
// scenario's condition evaluated true for this input.
package fault

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/arbiterhq/arbiter/pkg/condition"
	"github.com/arbiterhq/arbiter/pkg/contracts"
)

// Action mirrors the runtime engine's action signature so the injector can
// wrap invocations without depending on the engine package.
type Action func(ctx context.Context, input map[string]any) (any, error)

// Injector applies fault scenarios. Condition gating goes through the same
// evaluator the engine uses for contract expressions.
type Injector struct {
	eval         condition.Evaluator
	timeoutDelay time.Duration
	memBlockMB   int
	cpuSpin      time.Duration
	logger       *slog.Logger
}

// Option configures an Injector.
type Option func(*Injector)

// WithTimeoutDelay sets the bounded delay used by timeout faults.
func WithTimeoutDelay(d time.Duration) Option {
	return func(i *Injector) { i.timeoutDelay = d }
}

// WithMemoryBlockMB sets the size of the block held by memory faults.
func WithMemoryBlockMB(mb int) Option {
	return func(i *Injector) { i.memBlockMB = mb }
}

// WithCPUSpin sets the busy-loop duration used by cpu faults.
func WithCPUSpin(d time.Duration) Option {
	return func(i *Injector) { i.cpuSpin = d }
}

// NewInjector creates an Injector gated by eval.
func NewInjector(eval condition.Evaluator, opts ...Option) *Injector {
	i := &Injector{
		eval:         eval,
		timeoutDelay: 150 * time.Millisecond,
		memBlockMB:   64,
		cpuSpin:      50 * time.Millisecond,
		logger:       slog.Default().With("component", "fault"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// ShouldInject evaluates the scenario's fault condition against the input.
// The returned error is evaluator infrastructure failure only.
func (i *Injector) ShouldInject(ctx context.Context, s contracts.FaultScenario, input map[string]any) (bool, error) {
	res, err := i.eval.Evaluate(ctx, s.FaultCondition, map[string]any{"input": input})
	if err != nil {
		return false, fmt.Errorf("fault: condition %q: %w", s.FaultCondition, err)
	}
	return res.Valid, nil
}

// Wrap returns the action with the scenario's fault applied. Call only after
// ShouldInject reported true.
func (i *Injector) Wrap(s contracts.FaultScenario, action Action) Action {
	switch s.FaultType {
	case contracts.FaultTimeout:
		return func(ctx context.Context, input map[string]any) (any, error) {
			select {
			case <-time.After(i.timeoutDelay):
			case <-ctx.Done():
			}
			return nil, fmt.Errorf("fault injection: operation timed out after %s", i.timeoutDelay)
		}
	case contracts.FaultMemory:
		return func(ctx context.Context, input map[string]any) (any, error) {
			block := make([]byte, i.memBlockMB<<20)
			for p := 0; p < len(block); p += 4096 {
				block[p] = 1
			}
			defer func() {
				// release in the cleanup path regardless of the action's outcome
				block = nil
				_ = block
			}()
			return action(ctx, input)
		}
	case contracts.FaultNetwork:
		return func(ctx context.Context, input map[string]any) (any, error) {
			return nil, fmt.Errorf("fault injection: network unreachable")
		}
	case contracts.FaultFilesystem:
		return func(ctx context.Context, input map[string]any) (any, error) {
			return nil, fmt.Errorf("fault injection: filesystem I/O error")
		}
	case contracts.FaultCPU:
		return func(ctx context.Context, input map[string]any) (any, error) {
			deadline := time.Now().Add(i.cpuSpin)
			for time.Now().Before(deadline) {
				select {
				case <-ctx.Done():
					return nil, ctx.Err()
				default:
				}
			}
			return action(ctx, input)
		}
	default:
		i.logger.Warn("unknown fault type, passing through", "fault_type", s.FaultType)
		return action
	}
}
