// Package gate folds a batch of contract results into a single quality-gate
// verdict and renders the CI report artifacts. Evaluation is a pure,
// side-effect-free fold: the same batch and requirements always produce the
// same verdict.
package gate

import (
	"time"

	"github.com/arbiterhq/arbiter/pkg/contracts"
)

// reviewCoverageFloor is the contract-coverage level below which a passing
// gate is still flagged for human review instead of auto-merge.
const reviewCoverageFloor = 0.8

// DefaultRequirements returns the default gate thresholds.
func DefaultRequirements() contracts.QualityGateRequirements {
	return contracts.QualityGateRequirements{
		MinPassRate:           0.95,
		MinContractCoverage:   0.8,
		MinScenarioCoverage:   0.6,
		MinResourceCompliance: 0.9,
		MaxErrors:             0,
	}
}

// EvaluateQualityGates computes the gate verdict for a completed result
// batch. Coverage is the simple arithmetic mean per dimension across results,
// not weighted by contract size. Only error-severity violations count toward
// the error ceiling.
func EvaluateQualityGates(results []*contracts.ContractResult, req contracts.QualityGateRequirements) *contracts.QualityGateResult {
	out := &contracts.QualityGateResult{
		TotalTests:  len(results),
		EvaluatedAt: time.Now().UTC(),
	}

	var cov contracts.CoverageMetrics
	errorCount := 0
	for _, r := range results {
		if r.Passed {
			out.PassedTests++
		} else {
			out.FailedTests++
		}
		cov.ContractCoverage += r.Coverage.ContractCoverage
		cov.ScenarioCoverage += r.Coverage.ScenarioCoverage
		cov.FaultCoverage += r.Coverage.FaultCoverage
		cov.ResourceBudgetCompliance += r.Coverage.ResourceBudgetCompliance
		for _, v := range r.Violations {
			out.Violations = append(out.Violations, v)
			if v.Severity == contracts.SeverityError {
				errorCount++
			}
		}
	}

	passRate := 0.0
	if out.TotalTests > 0 {
		passRate = float64(out.PassedTests) / float64(out.TotalTests)
		n := float64(out.TotalTests)
		cov.ContractCoverage /= n
		cov.ScenarioCoverage /= n
		cov.FaultCoverage /= n
		cov.ResourceBudgetCompliance /= n
	}
	out.PassRate = passRate
	out.Coverage = cov
	out.ErrorCount = errorCount

	out.Passed = passRate >= req.MinPassRate &&
		cov.ContractCoverage >= req.MinContractCoverage &&
		cov.ScenarioCoverage >= req.MinScenarioCoverage &&
		cov.ResourceBudgetCompliance >= req.MinResourceCompliance &&
		errorCount <= req.MaxErrors

	switch {
	case !out.Passed:
		out.Recommendation = contracts.RecommendReject
	case errorCount > 0 || cov.ContractCoverage < reviewCoverageFloor:
		out.Recommendation = contracts.RecommendReview
	default:
		out.Recommendation = contracts.RecommendMerge
	}
	return out
}
