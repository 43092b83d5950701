// Package engine implements the contract runtime: it registers contract
// definitions and runs actions under instrumentation, checking every
// contractual dimension of one execution (preconditions, resource budgets,
// postconditions, metamorphic laws, fault expectations) and assembling the
// violations into a ContractResult.
//
// Violations are the product of the engine, not exceptions: only malformed
// registration and an unhandled action error with no configured fault
// scenario propagate to the caller.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/pkg/condition"
	"github.com/arbiterhq/arbiter/pkg/contracts"
	"github.com/arbiterhq/arbiter/pkg/coverage"
	"github.com/arbiterhq/arbiter/pkg/fault"
	"github.com/arbiterhq/arbiter/pkg/history"
	"github.com/arbiterhq/arbiter/pkg/monitor"
	"github.com/arbiterhq/arbiter/pkg/observability"
)

// Action is the unit of behavior a contract attaches to.
type Action func(ctx context.Context, input map[string]any) (any, error)

// errBudgetTimeout marks the engine's own wall-clock budget rejection. It is
// reported as a resource violation, unlike an action's own failure.
var errBudgetTimeout = errors.New("wall-clock budget exceeded")

// ExecuteOptions configures one execution.
type ExecuteOptions struct {
	// FaultScenario selects one of the contract's fault scenarios by id.
	FaultScenario string
}

// Engine holds the contract registry and the append-only execution history.
// Construct one per isolated scope; there is no process-global state.
type Engine struct {
	eval     condition.Evaluator
	injector *fault.Injector
	monitor  *monitor.Monitor
	tracker  *coverage.Tracker
	store    history.Store
	obs      *observability.Provider
	logger   *slog.Logger

	mu       sync.RWMutex
	registry map[string]contracts.ContractDefinition

	histMu  sync.Mutex
	history []*contracts.ExecutionContext
}

// Option configures an Engine.
type Option func(*Engine)

// WithTracker replaces the coverage tracker.
func WithTracker(t *coverage.Tracker) Option {
	return func(e *Engine) { e.tracker = t }
}

// WithMonitor replaces the resource monitor factory.
func WithMonitor(m *monitor.Monitor) Option {
	return func(e *Engine) { e.monitor = m }
}

// WithInjector replaces the fault injector.
func WithInjector(i *fault.Injector) Option {
	return func(e *Engine) { e.injector = i }
}

// WithHistoryStore persists every result to the given store.
func WithHistoryStore(s history.Store) Option {
	return func(e *Engine) { e.store = s }
}

// WithObservability wires execution spans and RED metrics.
func WithObservability(p *observability.Provider) Option {
	return func(e *Engine) { e.obs = p }
}

// WithLogger replaces the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine around the given condition evaluator.
func New(eval condition.Evaluator, opts ...Option) *Engine {
	e := &Engine{
		eval:     eval,
		registry: make(map[string]contracts.ContractDefinition),
		logger:   slog.Default().With("component", "engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.tracker == nil {
		e.tracker = coverage.NewTracker()
	}
	if e.monitor == nil {
		e.monitor = monitor.New()
	}
	if e.injector == nil {
		e.injector = fault.NewInjector(eval)
	}
	return e
}

// RegisterContract validates the definition and stores it in the registry.
// Re-registration overwrites. Validation covers resource budgets and, when
// the evaluator supports compile checks, every precondition and
// postcondition expression.
func (e *Engine) RegisterContract(ctx context.Context, def contracts.ContractDefinition) error {
	if def.ID == "" {
		return &contracts.ValidationError{Field: "id", Reason: "must not be empty"}
	}
	if err := def.ResourceBudgets.Validate(); err != nil {
		var ve *contracts.ValidationError
		if errors.As(err, &ve) {
			ve.ContractID = def.ID
		}
		return err
	}

	exprs := make([]string, 0, len(def.Preconditions)+len(def.Postconditions))
	exprs = append(exprs, def.Preconditions...)
	exprs = append(exprs, def.Postconditions...)

	if checker, ok := e.eval.(condition.Checker); ok {
		for _, expr := range exprs {
			if err := checker.Check(expr); err != nil {
				return &contracts.ValidationError{ContractID: def.ID, Expression: expr, Reason: err.Error()}
			}
		}
	} else {
		// No compile check available: test-evaluate against empty contexts
		// and treat only evaluator infrastructure failure as invalid (a
		// runtime miss on an empty context is expected).
		empty := map[string]any{"input": map[string]any{}, "output": map[string]any{}}
		for _, expr := range exprs {
			if _, err := e.eval.Evaluate(ctx, expr, empty); err != nil {
				return &contracts.ValidationError{ContractID: def.ID, Expression: expr, Reason: err.Error()}
			}
		}
	}

	e.mu.Lock()
	e.registry[def.ID] = def
	e.mu.Unlock()

	e.logger.InfoContext(ctx, "contract registered",
		"contract_id", def.ID,
		"preconditions", len(def.Preconditions),
		"postconditions", len(def.Postconditions),
		"metamorphic_laws", len(def.MetamorphicLaws),
		"fault_scenarios", len(def.FaultScenarios),
	)
	return nil
}

// Contract returns a registered definition.
func (e *Engine) Contract(id string) (contracts.ContractDefinition, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	def, ok := e.registry[id]
	return def, ok
}

// ContractIDs lists registered contract ids, sorted.
func (e *Engine) ContractIDs() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.registry))
	for id := range e.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Coverage exposes the engine's coverage tracker.
func (e *Engine) Coverage() *coverage.Tracker {
	return e.tracker
}

// History returns a snapshot of the append-only execution history.
func (e *Engine) History() []*contracts.ExecutionContext {
	e.histMu.Lock()
	defer e.histMu.Unlock()
	out := make([]*contracts.ExecutionContext, len(e.history))
	copy(out, e.history)
	return out
}

// ExecuteWithContract runs one instrumented execution of action against the
// contract. It returns a ContractResult for every protocol outcome; the only
// error cases are an unknown contract id and an action failure with no fault
// scenario active, which is re-raised after being recorded (alongside the
// partial result).
func (e *Engine) ExecuteWithContract(ctx context.Context, contractID string, action Action, input map[string]any, opts *ExecuteOptions) (*contracts.ContractResult, error) {
	def, ok := e.Contract(contractID)
	if !ok {
		return nil, &contracts.NotFoundError{ContractID: contractID}
	}

	ctx, done := e.obs.TrackExecution(ctx, contractID)
	var trackErr error
	defer func() { done(trackErr) }()

	execCtx := &contracts.ExecutionContext{Input: input, Metadata: map[string]any{}}
	violations := make([]contracts.ContractViolation, 0, 4)

	// Evaluator infrastructure failure degrades the single check, never the run.
	infraViolation := func(stage string, err error) {
		e.logger.WarnContext(ctx, "condition evaluator failure", "contract_id", contractID, "stage", stage, "error", err)
		violations = append(violations, contracts.ContractViolation{
			Type:     contracts.ViolationPostcondition,
			Message:  fmt.Sprintf("condition evaluator failure during %s check: %v", stage, err),
			Details:  map[string]any{"stage": stage},
			Severity: contracts.SeverityError,
		})
	}

	// Step 1: preconditions over {input}.
	preconditionFailed := false
	for _, expr := range def.Preconditions {
		res, err := e.eval.Evaluate(ctx, expr, map[string]any{"input": input})
		if err != nil {
			infraViolation("precondition", err)
			continue
		}
		if !res.Valid {
			preconditionFailed = true
			violations = append(violations, contracts.ContractViolation{
				Type:     contracts.ViolationPrecondition,
				Message:  fmt.Sprintf("precondition %q not satisfied", expr),
				Details:  map[string]any{"expression": expr, "diagnostic": res.Diagnostic, "input": input},
				Severity: contracts.SeverityError,
			})
		}
	}

	// Step 2: start the resource monitor. Stop is idempotent; the deferred
	// call guarantees the sampler dies even if a later step panics.
	run := e.monitor.Start()
	defer run.Stop()

	// Resolve the requested fault scenario.
	var scenario *contracts.FaultScenario
	if opts != nil && opts.FaultScenario != "" {
		for i := range def.FaultScenarios {
			if def.FaultScenarios[i].ID == opts.FaultScenario {
				scenario = &def.FaultScenarios[i]
				break
			}
		}
		if scenario == nil {
			violations = append(violations, contracts.ContractViolation{
				Type:     contracts.ViolationFault,
				Message:  fmt.Sprintf("fault scenario %q not defined on contract %s", opts.FaultScenario, contractID),
				Details:  map[string]any{"fault_scenario": opts.FaultScenario},
				Severity: contracts.SeverityError,
			})
		}
	}

	// Step 3: invoke the action under the wall-clock budget, fault-wrapped
	// when the scenario condition fires. A failed precondition means the
	// action is never invoked.
	var output any
	var runErr error
	injected := false
	invoked := false
	if !preconditionFailed {
		act := action
		if scenario != nil {
			fire, err := e.injector.ShouldInject(ctx, *scenario, input)
			if err != nil {
				infraViolation("fault condition", err)
			} else if fire {
				act = Action(e.injector.Wrap(*scenario, fault.Action(action)))
				injected = true
			}
		}
		invoked = true
		output, runErr = e.invoke(monitor.ContextWithRun(ctx, run), act, input, def.ResourceBudgets.MaxWallTimeMs)
	}

	if runErr != nil {
		execCtx.Error = runErr.Error()
		if injected {
			// Advisory check of the caller's error handling against the
			// scenario's expectation; the fault itself is never the failure.
			res, err := e.eval.Evaluate(ctx, scenario.ExpectedBehavior, map[string]any{
				"error":     runErr.Error(),
				"faultType": string(scenario.FaultType),
			})
			if err != nil {
				infraViolation("fault expectation", err)
			} else if !res.Valid {
				violations = append(violations, contracts.ContractViolation{
					Type:    contracts.ViolationFault,
					Message: fmt.Sprintf("fault scenario %q expectation not met", scenario.ID),
					Details: map[string]any{
						"fault_scenario":    scenario.ID,
						"fault_type":        string(scenario.FaultType),
						"expected_behavior": scenario.ExpectedBehavior,
						"error":             runErr.Error(),
						"diagnostic":        res.Diagnostic,
					},
					Severity: contracts.SeverityError,
				})
			}
		}
	} else if invoked {
		execCtx.Output = output
	}

	// Step 4: stop the monitor and record measured usage.
	usage := run.Stop()
	execCtx.ResourceUsage = usage
	execCtx.ExecutionTimeMs = usage.WallTimeMs

	// Step 5: compare peak usage to the budgets. A budget timeout counts as
	// a wall-time breach even when millisecond truncation lands exactly on
	// the budget.
	timedOut := errors.Is(runErr, errBudgetTimeout)
	resourceViolated := false
	for _, check := range budgetChecks(def.ResourceBudgets, usage, timedOut) {
		if !check.exceeded {
			continue
		}
		resourceViolated = true
		violations = append(violations, contracts.ContractViolation{
			Type:     contracts.ViolationResource,
			Message:  fmt.Sprintf("%s budget exceeded: measured %v, budget %v", check.dimension, check.measured, check.budget),
			Details:  map[string]any{"dimension": check.dimension, "measured": check.measured, "budget": check.budget},
			Severity: contracts.SeverityError,
		})
	}

	// Step 6: postconditions over {input, output}.
	if invoked && runErr == nil {
		for _, expr := range def.Postconditions {
			res, err := e.eval.Evaluate(ctx, expr, map[string]any{"input": input, "output": output})
			if err != nil {
				infraViolation("postcondition", err)
				continue
			}
			if !res.Valid {
				violations = append(violations, contracts.ContractViolation{
					Type:     contracts.ViolationPostcondition,
					Message:  fmt.Sprintf("postcondition %q not satisfied", expr),
					Details:  map[string]any{"expression": expr, "diagnostic": res.Diagnostic},
					Severity: contracts.SeverityError,
				})
			}
		}

		// Step 7: metamorphic laws re-invoke the real action.
		for _, law := range def.MetamorphicLaws {
			violations = append(violations, e.checkMetamorphicLaw(ctx, law, action, input, output, def.ResourceBudgets.MaxWallTimeMs)...)
		}
	}

	// Step 8: record coverage, history, and assemble the result.
	faultID := ""
	if injected {
		faultID = scenario.ID
	}
	e.tracker.Record(contractID, input, runErr != nil, faultID, resourceViolated)

	result := &contracts.ContractResult{
		ContractID: contractID,
		Violations: violations,
		Coverage:   e.tracker.GetCoverage(contractID),
		Execution:  execCtx,
	}
	result.Passed = !result.HasErrorViolation()

	e.histMu.Lock()
	e.history = append(e.history, execCtx)
	e.histMu.Unlock()
	e.persist(ctx, result)

	e.logger.DebugContext(ctx, "contract executed",
		"contract_id", contractID,
		"passed", result.Passed,
		"violations", len(violations),
		"wall_time_ms", usage.WallTimeMs,
	)

	if runErr != nil && !injected && !timedOut {
		// No fault scenario absorbed the failure: re-raise after recording.
		trackErr = runErr
		return result, fmt.Errorf("engine: action failed: %w", runErr)
	}
	return result, nil
}

// invoke runs the action bounded by the contract's wall-clock budget. When
// the timeout fires the in-flight invocation is abandoned; its eventual
// completion, if any, is discarded.
func (e *Engine) invoke(ctx context.Context, act Action, input map[string]any, budgetMs int64) (any, error) {
	cctx, cancel := context.WithTimeout(ctx, time.Duration(budgetMs)*time.Millisecond)
	defer cancel()

	type outcome struct {
		out any
		err error
	}
	ch := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- outcome{err: fmt.Errorf("action panic: %v", r)}
			}
		}()
		out, err := act(cctx, input)
		ch <- outcome{out: out, err: err}
	}()

	select {
	case o := <-ch:
		return o.out, o.err
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("execution timed out after %dms: %w", budgetMs, errBudgetTimeout)
		}
		return nil, cctx.Err()
	}
}

func (e *Engine) checkMetamorphicLaw(ctx context.Context, law contracts.MetamorphicLaw, action Action, input map[string]any, output any, budgetMs int64) []contracts.ContractViolation {
	metamorphic := func(msg string, details map[string]any) []contracts.ContractViolation {
		details["law"] = law.ID
		return []contracts.ContractViolation{{
			Type:     contracts.ViolationMetamorphic,
			Message:  msg,
			Details:  details,
			Severity: contracts.SeverityError,
		}}
	}

	ve, ok := e.eval.(condition.ValueEvaluator)
	if !ok {
		return metamorphic(
			fmt.Sprintf("metamorphic law %q: evaluator does not support transformation expressions", law.ID),
			map[string]any{"transformation": law.Transformation})
	}

	tv, err := ve.EvaluateValue(ctx, law.Transformation, map[string]any{"input": input})
	if err != nil {
		return metamorphic(
			fmt.Sprintf("metamorphic law %q: transformation failed: %v", law.ID, err),
			map[string]any{"transformation": law.Transformation})
	}

	tinput, ok := tv.(map[string]any)
	if !ok {
		tinput = map[string]any{"value": tv}
	}

	toutput, err := e.invoke(ctx, action, tinput, budgetMs)
	if err != nil {
		return metamorphic(
			fmt.Sprintf("metamorphic law %q: action failed on transformed input: %v", law.ID, err),
			map[string]any{"transformed_input": tinput})
	}

	res, err := e.eval.Evaluate(ctx, law.RelationInvariant, map[string]any{
		"originalInput":     input,
		"originalOutput":    output,
		"transformedInput":  tinput,
		"transformedOutput": toutput,
	})
	if err != nil {
		return []contracts.ContractViolation{{
			Type:     contracts.ViolationPostcondition,
			Message:  fmt.Sprintf("condition evaluator failure during metamorphic check: %v", err),
			Details:  map[string]any{"stage": "metamorphic", "law": law.ID},
			Severity: contracts.SeverityError,
		}}
	}
	if !res.Valid {
		return metamorphic(
			fmt.Sprintf("metamorphic law %q violated", law.ID),
			map[string]any{
				"relation_invariant": law.RelationInvariant,
				"diagnostic":         res.Diagnostic,
				"transformed_input":  tinput,
			})
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, result *contracts.ContractResult) {
	if e.store == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		e.logger.WarnContext(ctx, "history: marshal result failed", "contract_id", result.ContractID, "error", err)
		return
	}
	rec := history.Record{
		ID:              uuid.New().String(),
		ContractID:      result.ContractID,
		Passed:          result.Passed,
		Violations:      len(result.Violations),
		ExecutionTimeMs: result.Execution.ExecutionTimeMs,
		Result:          payload,
		CreatedAt:       time.Now().UTC(),
	}
	if err := e.store.Append(ctx, rec); err != nil {
		// Persistence is advisory; an unreachable store must not fail the run.
		e.logger.WarnContext(ctx, "history: append failed", "contract_id", result.ContractID, "error", err)
	}
}

type budgetCheck struct {
	dimension string
	measured  any
	budget    any
	exceeded  bool
}

func budgetChecks(b contracts.ResourceBudgets, u contracts.ResourceUsage, timedOut bool) []budgetCheck {
	checks := []budgetCheck{
		{"cpu", u.CPUPercent, b.MaxCPUPercent, b.MaxCPUPercent > 0 && u.CPUPercent > b.MaxCPUPercent},
		{"memory", u.MemoryMB, b.MaxMemoryMB, b.MaxMemoryMB > 0 && u.MemoryMB > b.MaxMemoryMB},
		{"wall_time", u.WallTimeMs, b.MaxWallTimeMs, timedOut || u.WallTimeMs > b.MaxWallTimeMs},
	}
	if b.MaxFileSystemOps > 0 {
		checks = append(checks, budgetCheck{"file_system_ops", u.FileSystemOps, b.MaxFileSystemOps, u.FileSystemOps > b.MaxFileSystemOps})
	}
	if b.MaxNetworkRequests > 0 {
		checks = append(checks, budgetCheck{"network_requests", u.NetworkRequests, b.MaxNetworkRequests, u.NetworkRequests > b.MaxNetworkRequests})
	}
	return checks
}
