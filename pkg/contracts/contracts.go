// Package contracts defines the data model for design-by-contract execution:
// contract definitions, execution records, violations, coverage metrics, and
// quality-gate verdicts. Types here are plain data; behavior lives in the
// engine, coverage, and gate packages.
package contracts

import (
	"time"
)

// ContractDefinition is a formal contract attached to one unit of behavior.
// Immutable once registered; keyed by ID in the engine registry.
type ContractDefinition struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Description     string           `json:"description,omitempty"`
	Preconditions   []string         `json:"preconditions,omitempty"`
	Postconditions  []string         `json:"postconditions,omitempty"`
	MetamorphicLaws []MetamorphicLaw `json:"metamorphic_laws,omitempty"`
	ResourceBudgets ResourceBudgets  `json:"resource_budgets"`
	FaultScenarios  []FaultScenario  `json:"fault_scenarios,omitempty"`
}

// MetamorphicLaw relates the outputs of two related inputs. The law holds if,
// for the transformed input run through the same action, RelationInvariant
// evaluates true against {originalInput, originalOutput, transformedInput,
// transformedOutput}.
type MetamorphicLaw struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	// Transformation is an expression producing a transformed input from
	// the original input.
	Transformation    string `json:"transformation"`
	RelationInvariant string `json:"relation_invariant"`
}

// ResourceBudgets holds numeric ceilings for one execution.
// MaxWallTimeMs must be positive; it doubles as the hard execution timeout.
// MaxFileSystemOps and MaxNetworkRequests are optional (zero means unset);
// they are only enforced when the action reports counters through the
// monitor's instrumentation hooks.
type ResourceBudgets struct {
	MaxCPUPercent      float64 `json:"max_cpu_percent"`
	MaxMemoryMB        float64 `json:"max_memory_mb"`
	MaxWallTimeMs      int64   `json:"max_wall_time_ms"`
	MaxFileSystemOps   int64   `json:"max_file_system_ops,omitempty"`
	MaxNetworkRequests int64   `json:"max_network_requests,omitempty"`
}

// Validate checks budget invariants enforced at registration.
func (b ResourceBudgets) Validate() error {
	if b.MaxWallTimeMs <= 0 {
		return &ValidationError{Field: "resource_budgets.max_wall_time_ms", Reason: "must be positive"}
	}
	return nil
}

// FaultType identifies one of the deterministic fault behaviors.
type FaultType string

// Fault type catalog.
const (
	FaultNetwork    FaultType = "network"
	FaultFilesystem FaultType = "filesystem"
	FaultMemory     FaultType = "memory"
	FaultCPU        FaultType = "cpu"
	FaultTimeout    FaultType = "timeout"
)

// FaultCatalogSize is the number of distinct fault types above.
const FaultCatalogSize = 5

// FaultScenario is a deliberately injected failure used to verify graceful
// degradation. FaultCondition decides (over the input) whether to inject;
// ExpectedBehavior is evaluated over {error, faultType} when the fault fires.
type FaultScenario struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	FaultType        FaultType `json:"fault_type"`
	FaultCondition   string    `json:"fault_condition"`
	ExpectedBehavior string    `json:"expected_behavior"`
}

// ResourceUsage is the peak measured usage of one execution.
type ResourceUsage struct {
	CPUPercent      float64 `json:"cpu_percent"`
	MemoryMB        float64 `json:"memory_mb"`
	WallTimeMs      int64   `json:"wall_time_ms"`
	FileSystemOps   int64   `json:"file_system_ops"`
	NetworkRequests int64   `json:"network_requests"`
}

// ExecutionContext is the full record of one instrumented execution. It is
// owned exclusively by the runtime engine for the duration of one call and
// then appended read-only to the execution history.
type ExecutionContext struct {
	Input           map[string]any `json:"input"`
	Output          any            `json:"output,omitempty"`
	Error           string         `json:"error,omitempty"`
	ResourceUsage   ResourceUsage  `json:"resource_usage"`
	ExecutionTimeMs int64          `json:"execution_time_ms"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// ViolationType classifies a contract violation.
type ViolationType string

// Violation taxonomy.
const (
	ViolationPrecondition  ViolationType = "precondition"
	ViolationPostcondition ViolationType = "postcondition"
	ViolationMetamorphic   ViolationType = "metamorphic"
	ViolationResource      ViolationType = "resource"
	ViolationFault         ViolationType = "fault"
)

// Severity grades a violation. Only SeverityError fails a contract;
// SeverityWarning is recorded but never flips the passed flag.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// ContractViolation is the expected, recoverable product of verification.
// It is always returned as data, never raised.
type ContractViolation struct {
	Type     ViolationType  `json:"type"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Severity Severity       `json:"severity"`
}

// ContractResult is the outcome of one contract-checked execution.
type ContractResult struct {
	ContractID string              `json:"contract_id"`
	Passed     bool                `json:"passed"`
	Violations []ContractViolation `json:"violations"`
	Coverage   CoverageMetrics     `json:"coverage"`
	Execution  *ExecutionContext   `json:"execution"`
}

// HasErrorViolation reports whether any violation carries error severity.
func (r *ContractResult) HasErrorViolation() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityError {
			return true
		}
	}
	return false
}

// CoverageMetrics holds four derived ratios in [0,1]. They are recomputed on
// demand from the coverage tracker's counters, never stored independently.
type CoverageMetrics struct {
	ContractCoverage         float64 `json:"contract_coverage"`
	ScenarioCoverage         float64 `json:"scenario_coverage"`
	FaultCoverage            float64 `json:"fault_coverage"`
	ResourceBudgetCompliance float64 `json:"resource_budget_compliance"`
}

// TestType classifies a derived test case.
type TestType string

const (
	TestProperty TestType = "property"
	TestScenario TestType = "scenario"
	TestFault    TestType = "fault"
	TestResource TestType = "resource"
)

// TestCase is one derived (or hand-written) input for a contract.
type TestCase struct {
	ID             string         `json:"id"`
	Type           TestType       `json:"type"`
	Name           string         `json:"name,omitempty"`
	ContractID     string         `json:"contract_id"`
	Input          map[string]any `json:"input"`
	ExpectedOutput any            `json:"expected_output,omitempty"`
	FaultScenario  string         `json:"fault_scenario,omitempty"`
	// Generated is true for derived cases; reserved false for hand-written ones.
	Generated bool `json:"generated"`
}

// QualityGateRequirements are the configured gate thresholds.
type QualityGateRequirements struct {
	MinPassRate           float64 `json:"min_pass_rate" yaml:"min_pass_rate"`
	MinContractCoverage   float64 `json:"min_contract_coverage" yaml:"min_contract_coverage"`
	MinScenarioCoverage   float64 `json:"min_scenario_coverage" yaml:"min_scenario_coverage"`
	MinResourceCompliance float64 `json:"min_resource_compliance" yaml:"min_resource_compliance"`
	MaxErrors             int     `json:"max_errors" yaml:"max_errors"`
}

// Recommendation is the three-tier gate advice: a gate can fail outright on
// hard violations but still flag borderline-but-passing runs for a human.
type Recommendation string

const (
	RecommendMerge  Recommendation = "merge"
	RecommendReject Recommendation = "reject"
	RecommendReview Recommendation = "review"
)

// QualityGateResult is the aggregate verdict over a batch of ContractResults.
// Computed fresh from the batch; carries no independent lifecycle.
type QualityGateResult struct {
	Passed         bool                `json:"passed"`
	TotalTests     int                 `json:"total_tests"`
	PassedTests    int                 `json:"passed_tests"`
	FailedTests    int                 `json:"failed_tests"`
	PassRate       float64             `json:"pass_rate"`
	ErrorCount     int                 `json:"error_count"`
	Coverage       CoverageMetrics     `json:"coverage"`
	Violations     []ContractViolation `json:"violations"`
	Recommendation Recommendation      `json:"recommendation"`
	EvaluatedAt    time.Time           `json:"evaluated_at"`
}
