package contracts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleContracts = `[
  {
    "id": "sort-contract",
    "name": "Sort preserves elements",
    "preconditions": ["input.value > 0"],
    "postconditions": ["output.value >= input.value"],
    "resource_budgets": {"max_cpu_percent": 80, "max_memory_mb": 128, "max_wall_time_ms": 500},
    "metamorphic_laws": [
      {"id": "law-1", "name": "double", "transformation": "{'value': input.value * 2}", "relation_invariant": "transformedOutput.value >= originalOutput.value"}
    ],
    "fault_scenarios": [
      {"id": "fs-1", "name": "slow path", "fault_type": "timeout", "fault_condition": "input.size > 1000", "expected_behavior": "error.contains('timed out')"}
    ]
  }
]`

func TestParseContracts(t *testing.T) {
	defs, err := ParseContracts([]byte(sampleContracts))
	require.NoError(t, err)
	require.Len(t, defs, 1)

	def := defs[0]
	require.Equal(t, "sort-contract", def.ID)
	require.Equal(t, []string{"input.value > 0"}, def.Preconditions)
	require.Len(t, def.MetamorphicLaws, 1)
	require.Len(t, def.FaultScenarios, 1)
	require.Equal(t, FaultTimeout, def.FaultScenarios[0].FaultType)
	require.Equal(t, int64(500), def.ResourceBudgets.MaxWallTimeMs)
}

func TestParseContracts_SchemaRejectsMissingID(t *testing.T) {
	_, err := ParseContracts([]byte(`[{"name": "no id", "resource_budgets": {"max_wall_time_ms": 100}}]`))
	require.Error(t, err)
	require.Contains(t, err.Error(), "schema validation")
}

func TestParseContracts_SchemaRejectsZeroWallTime(t *testing.T) {
	_, err := ParseContracts([]byte(`[{"id": "c", "name": "c", "resource_budgets": {"max_wall_time_ms": 0}}]`))
	require.Error(t, err)
}

func TestParseContracts_SchemaRejectsUnknownFaultType(t *testing.T) {
	_, err := ParseContracts([]byte(`[{"id": "c", "name": "c",
		"resource_budgets": {"max_wall_time_ms": 100},
		"fault_scenarios": [{"id": "f", "fault_type": "gamma-ray", "fault_condition": "true"}]}]`))
	require.Error(t, err)
}

func TestLoadContractsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "contracts.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleContracts), 0600))

	defs, err := LoadContractsFile(path)
	require.NoError(t, err)
	require.Len(t, defs, 1)

	_, err = LoadContractsFile(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}

func TestResourceBudgetsValidate(t *testing.T) {
	require.Error(t, ResourceBudgets{}.Validate())
	require.Error(t, ResourceBudgets{MaxWallTimeMs: -5}.Validate())
	require.NoError(t, ResourceBudgets{MaxWallTimeMs: 1}.Validate())
}

func TestHasErrorViolation(t *testing.T) {
	r := &ContractResult{Violations: []ContractViolation{
		{Type: ViolationResource, Severity: SeverityWarning},
	}}
	require.False(t, r.HasErrorViolation())

	r.Violations = append(r.Violations, ContractViolation{Type: ViolationPrecondition, Severity: SeverityError})
	require.True(t, r.HasErrorViolation())
}
