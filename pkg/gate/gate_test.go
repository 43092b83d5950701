package gate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/pkg/contracts"
)

func passingResult(contractID string, cov contracts.CoverageMetrics) *contracts.ContractResult {
	return &contracts.ContractResult{
		ContractID: contractID,
		Passed:     true,
		Coverage:   cov,
		Execution:  &contracts.ExecutionContext{ExecutionTimeMs: 12},
	}
}

func failingResult(contractID string, cov contracts.CoverageMetrics, violations ...contracts.ContractViolation) *contracts.ContractResult {
	return &contracts.ContractResult{
		ContractID: contractID,
		Passed:     false,
		Violations: violations,
		Coverage:   cov,
		Execution:  &contracts.ExecutionContext{ExecutionTimeMs: 30},
	}
}

func errorViolation(vt contracts.ViolationType, msg string) contracts.ContractViolation {
	return contracts.ContractViolation{
		Type:     vt,
		Message:  msg,
		Details:  map[string]any{"expression": "x > 0"},
		Severity: contracts.SeverityError,
	}
}

func fullCoverage() contracts.CoverageMetrics {
	return contracts.CoverageMetrics{
		ContractCoverage:         1,
		ScenarioCoverage:         1,
		FaultCoverage:            1,
		ResourceBudgetCompliance: 1,
	}
}

func TestDefaultRequirements(t *testing.T) {
	req := DefaultRequirements()
	assert.Equal(t, 0.95, req.MinPassRate)
	assert.Equal(t, 0.8, req.MinContractCoverage)
	assert.Equal(t, 0.6, req.MinScenarioCoverage)
	assert.Equal(t, 0.9, req.MinResourceCompliance)
	assert.Equal(t, 0, req.MaxErrors)
}

func TestEvaluate_PassRateExactlyAtThreshold(t *testing.T) {
	// 19 of 20 passed is exactly the default 0.95 floor; the failed result
	// carries one error violation so the error ceiling rejects it, but with a
	// relaxed ceiling the rate itself must pass.
	results := make([]*contracts.ContractResult, 0, 20)
	for i := 0; i < 19; i++ {
		results = append(results, passingResult("c", fullCoverage()))
	}
	results = append(results, failingResult("c", fullCoverage(),
		errorViolation(contracts.ViolationPostcondition, "postcondition not satisfied")))

	req := DefaultRequirements()
	req.MaxErrors = 1
	out := EvaluateQualityGates(results, req)

	assert.Equal(t, 0.95, out.PassRate)
	assert.True(t, out.Passed, "gate must pass exactly at threshold")
	assert.Equal(t, 1, out.ErrorCount)
	assert.Equal(t, contracts.RecommendReview, out.Recommendation,
		"errors within the ceiling still warrant review")
}

func TestEvaluate_DefaultMaxErrorsRejects(t *testing.T) {
	results := make([]*contracts.ContractResult, 0, 20)
	for i := 0; i < 19; i++ {
		results = append(results, passingResult("c", fullCoverage()))
	}
	results = append(results, failingResult("c", fullCoverage(),
		errorViolation(contracts.ViolationPostcondition, "boom")))

	out := EvaluateQualityGates(results, DefaultRequirements())
	assert.False(t, out.Passed)
	assert.Equal(t, contracts.RecommendReject, out.Recommendation)
}

func TestEvaluate_CleanBatchMerges(t *testing.T) {
	results := []*contracts.ContractResult{
		passingResult("a", fullCoverage()),
		passingResult("b", fullCoverage()),
	}
	out := EvaluateQualityGates(results, DefaultRequirements())

	assert.True(t, out.Passed)
	assert.Equal(t, contracts.RecommendMerge, out.Recommendation)
	assert.Equal(t, 2, out.PassedTests)
	assert.Zero(t, out.FailedTests)
	assert.Equal(t, 1.0, out.Coverage.ContractCoverage)
}

func TestEvaluate_LowContractCoverageFlagsReview(t *testing.T) {
	// Coverage above the 0.7 threshold floor but below the review floor.
	cov := fullCoverage()
	cov.ContractCoverage = 0.75
	req := DefaultRequirements()
	req.MinContractCoverage = 0.7

	out := EvaluateQualityGates([]*contracts.ContractResult{
		passingResult("a", cov),
		passingResult("b", cov),
	}, req)

	assert.True(t, out.Passed)
	assert.Equal(t, contracts.RecommendReview, out.Recommendation)
}

func TestEvaluate_RejectWheneverPassRateBelowMinimum(t *testing.T) {
	out := EvaluateQualityGates([]*contracts.ContractResult{
		passingResult("a", fullCoverage()),
		failingResult("a", fullCoverage(),
			errorViolation(contracts.ViolationResource, "wall_time budget exceeded")),
	}, DefaultRequirements())

	assert.False(t, out.Passed)
	assert.Equal(t, contracts.RecommendReject, out.Recommendation)
	assert.Equal(t, 0.5, out.PassRate)
}

func TestEvaluate_WarningSeverityDoesNotCountAsError(t *testing.T) {
	warned := &contracts.ContractResult{
		ContractID: "a",
		Passed:     true,
		Violations: []contracts.ContractViolation{{
			Type:     contracts.ViolationResource,
			Message:  "memory close to budget",
			Severity: contracts.SeverityWarning,
		}},
		Coverage:  fullCoverage(),
		Execution: &contracts.ExecutionContext{},
	}
	out := EvaluateQualityGates([]*contracts.ContractResult{warned}, DefaultRequirements())

	assert.True(t, out.Passed)
	assert.Zero(t, out.ErrorCount)
	assert.Len(t, out.Violations, 1, "warnings are still surfaced")
	assert.Equal(t, contracts.RecommendMerge, out.Recommendation)
}

func TestEvaluate_MeanCoverageAcrossResults(t *testing.T) {
	a := fullCoverage()
	b := contracts.CoverageMetrics{
		ContractCoverage:         0.5,
		ScenarioCoverage:         0.2,
		FaultCoverage:            0,
		ResourceBudgetCompliance: 0.8,
	}
	out := EvaluateQualityGates([]*contracts.ContractResult{
		passingResult("a", a),
		passingResult("b", b),
	}, DefaultRequirements())

	assert.InDelta(t, 0.75, out.Coverage.ContractCoverage, 1e-9)
	assert.InDelta(t, 0.6, out.Coverage.ScenarioCoverage, 1e-9)
	assert.InDelta(t, 0.5, out.Coverage.FaultCoverage, 1e-9)
	assert.InDelta(t, 0.9, out.Coverage.ResourceBudgetCompliance, 1e-9)
}

func TestEvaluate_EmptyBatch(t *testing.T) {
	out := EvaluateQualityGates(nil, DefaultRequirements())
	require.NotNil(t, out)
	assert.False(t, out.Passed)
	assert.Zero(t, out.TotalTests)
	assert.Equal(t, contracts.RecommendReject, out.Recommendation)
}
