package gate

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/arbiterhq/arbiter/pkg/contracts"
	"github.com/arbiterhq/arbiter/pkg/coverage"
)

// Default artifact file names under the report directory.
const (
	JUnitReportFile    = "test_report.xml"
	CoverageReportFile = "coverage_report.json"
)

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr"`
	Cases     []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string         `xml:"name,attr"`
	ClassName string         `xml:"classname,attr"`
	Time      string         `xml:"time,attr"`
	Failures  []junitFailure `xml:"failure,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Body    string `xml:",chardata"`
}

// RenderJUnitReport renders the batch as a JUnit-style XML document: one
// testsuite, one testcase per contract result, one failure element per
// error-severity violation.
func RenderJUnitReport(suiteName string, results []*contracts.ContractResult) ([]byte, error) {
	suite := junitTestSuite{
		Name:      suiteName,
		Tests:     len(results),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	var totalMs int64
	for i, r := range results {
		tc := junitTestCase{
			Name:      fmt.Sprintf("%s #%d", r.ContractID, i+1),
			ClassName: r.ContractID,
		}
		if r.Execution != nil {
			tc.Time = fmt.Sprintf("%.3f", float64(r.Execution.ExecutionTimeMs)/1000)
			totalMs += r.Execution.ExecutionTimeMs
		} else {
			tc.Time = "0.000"
		}
		for _, v := range r.Violations {
			if v.Severity != contracts.SeverityError {
				continue
			}
			detail, err := json.Marshal(v.Details)
			if err != nil {
				detail = []byte("{}")
			}
			tc.Failures = append(tc.Failures, junitFailure{
				Message: v.Message,
				Type:    string(v.Type),
				Body:    string(detail),
			})
		}
		if len(tc.Failures) > 0 {
			suite.Failures++
		}
		suite.Cases = append(suite.Cases, tc)
	}
	suite.Time = fmt.Sprintf("%.3f", float64(totalMs)/1000)

	doc, err := xml.MarshalIndent(suite, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render junit report: %w", err)
	}
	return append([]byte(xml.Header), append(doc, '\n')...), nil
}

// CoverageReport is the JSON coverage artifact.
type CoverageReport struct {
	GeneratedAt time.Time                           `json:"generated_at"`
	Overall     contracts.CoverageMetrics           `json:"overall"`
	Contracts   map[string]contracts.CoverageMetrics `json:"contracts"`
	Summary     CoverageSummary                     `json:"summary"`
}

// CoverageSummary holds the coverage report's headline counts.
type CoverageSummary struct {
	TotalExecutions  int64 `json:"total_executions"`
	TotalViolations  int   `json:"total_violations"`
	ContractsTracked int   `json:"contracts_tracked"`
}

// RenderCoverageReport renders overall and per-contract coverage from the
// tracker plus violation counts from the batch.
func RenderCoverageReport(tracker *coverage.Tracker, results []*contracts.ContractResult) ([]byte, error) {
	perContract := tracker.Snapshot()
	totalViolations := 0
	for _, r := range results {
		totalViolations += len(r.Violations)
	}
	report := CoverageReport{
		GeneratedAt: time.Now().UTC(),
		Overall:     tracker.GetOverallCoverage(),
		Contracts:   perContract,
		Summary: CoverageSummary{
			TotalExecutions:  tracker.TotalExecutions(),
			TotalViolations:  totalViolations,
			ContractsTracked: len(perContract),
		},
	}
	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("render coverage report: %w", err)
	}
	return append(out, '\n'), nil
}

// WriteReports renders both artifacts into dir, creating it if needed.
func WriteReports(dir, suiteName string, results []*contracts.ContractResult, tracker *coverage.Tracker) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	junit, err := RenderJUnitReport(suiteName, results)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, JUnitReportFile), junit, 0o644); err != nil {
		return fmt.Errorf("write junit report: %w", err)
	}
	cov, err := RenderCoverageReport(tracker, results)
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, CoverageReportFile), cov, 0o644); err != nil {
		return fmt.Errorf("write coverage report: %w", err)
	}
	return nil
}
