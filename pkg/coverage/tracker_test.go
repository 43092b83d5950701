package coverage

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetCoverage_ZeroExecutions(t *testing.T) {
	tr := NewTracker()
	m := tr.GetCoverage("unseen")

	require.Equal(t, 0.0, m.ContractCoverage)
	require.Equal(t, 0.0, m.ScenarioCoverage)
	require.Equal(t, 0.0, m.FaultCoverage)
	require.Equal(t, 1.0, m.ResourceBudgetCompliance)
}

func TestGetCoverage_SingleExecution(t *testing.T) {
	tr := NewTracker()
	tr.Record("c1", map[string]any{"value": 1}, false, "", false)

	m := tr.GetCoverage("c1")
	require.Equal(t, 1.0, m.ContractCoverage)
	require.InDelta(t, 0.1, m.ScenarioCoverage, 1e-9)
	require.Equal(t, 0.0, m.FaultCoverage)
	require.Equal(t, 1.0, m.ResourceBudgetCompliance)
}

func TestScenarioCoverage_CapsAtOne(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 25; i++ {
		tr.Record("c1", map[string]any{"value": i}, false, "", false)
	}
	require.Equal(t, 1.0, tr.GetCoverage("c1").ScenarioCoverage)
}

func TestScenarioKey_DistinguishesOutcome(t *testing.T) {
	input := map[string]any{"value": 1}
	require.NotEqual(t, ScenarioKey(input, false), ScenarioKey(input, true))
	// Same input and outcome collide by design.
	require.Equal(t, ScenarioKey(input, false), ScenarioKey(map[string]any{"value": 1}, false))
}

func TestScenarioKey_CanonicalOrdering(t *testing.T) {
	a := map[string]any{"a": 1, "b": 2}
	b := map[string]any{"b": 2, "a": 1}
	require.Equal(t, ScenarioKey(a, false), ScenarioKey(b, false))
}

func TestFaultCoverage(t *testing.T) {
	tr := NewTracker()
	for i := 0; i < 3; i++ {
		tr.Record("c1", map[string]any{"n": i}, true, fmt.Sprintf("fault-%d", i), false)
	}
	require.InDelta(t, 3.0/5.0, tr.GetCoverage("c1").FaultCoverage, 1e-9)
}

func TestResourceBudgetCompliance(t *testing.T) {
	tr := NewTracker()
	tr.Record("c1", map[string]any{"n": 1}, false, "", true)
	tr.Record("c1", map[string]any{"n": 2}, false, "", false)
	tr.Record("c1", map[string]any{"n": 3}, false, "", false)
	tr.Record("c1", map[string]any{"n": 4}, false, "", false)

	require.InDelta(t, 0.75, tr.GetCoverage("c1").ResourceBudgetCompliance, 1e-9)
}

func TestGetCoverage_Idempotent(t *testing.T) {
	tr := NewTracker()
	tr.Record("c1", map[string]any{"value": 1}, false, "f1", true)

	first := tr.GetCoverage("c1")
	second := tr.GetCoverage("c1")
	require.Equal(t, first, second)
}

func TestGetOverallCoverage(t *testing.T) {
	tr := NewTracker()
	require.Equal(t, 0.0, tr.GetOverallCoverage().ResourceBudgetCompliance)

	tr.Record("c1", map[string]any{"n": 1}, false, "", false)
	tr.Record("c2", map[string]any{"n": 1}, false, "", true)

	overall := tr.GetOverallCoverage()
	require.Equal(t, 1.0, overall.ContractCoverage)
	// c1 compliance 1.0, c2 compliance 0.0
	require.InDelta(t, 0.5, overall.ResourceBudgetCompliance, 1e-9)
}

func TestTracker_ConcurrentRecord(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tr.Record(fmt.Sprintf("c%d", g%4), map[string]any{"i": i}, false, "", false)
			}
		}(g)
	}
	wg.Wait()

	require.Equal(t, int64(800), tr.TotalExecutions())
	for g := 0; g < 4; g++ {
		require.Equal(t, 1.0, tr.GetCoverage(fmt.Sprintf("c%d", g)).ContractCoverage)
	}
}

func TestTrackerOptions(t *testing.T) {
	tr := NewTracker(WithScenarioTarget(2), WithFaultCatalogSize(1))
	tr.Record("c1", map[string]any{"n": 1}, false, "f1", false)
	tr.Record("c1", map[string]any{"n": 2}, false, "", false)

	m := tr.GetCoverage("c1")
	require.Equal(t, 1.0, m.ScenarioCoverage)
	require.Equal(t, 1.0, m.FaultCoverage)
}
