package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arbiterhq/arbiter/pkg/contracts"
)

type staticSource map[string]contracts.ContractDefinition

func (s staticSource) Contract(id string) (contracts.ContractDefinition, bool) {
	def, ok := s[id]
	return def, ok
}

func testSource() staticSource {
	return staticSource{
		"orders": {
			ID:   "orders",
			Name: "order submission",
			ResourceBudgets: contracts.ResourceBudgets{
				MaxWallTimeMs: 1000,
			},
			FaultScenarios: []contracts.FaultScenario{
				{ID: "fs-net", FaultType: contracts.FaultNetwork, FaultCondition: "true", ExpectedBehavior: "true"},
				{ID: "fs-timeout", FaultType: contracts.FaultTimeout, FaultCondition: "true", ExpectedBehavior: "true"},
			},
		},
	}
}

func TestGeneratePropertyTests(t *testing.T) {
	g := NewGenerator(testSource(), WithSeed(42))

	cases, err := g.GeneratePropertyTests("orders", 25)
	require.NoError(t, err)
	require.Len(t, cases, 25)

	seen := map[string]bool{}
	for _, tc := range cases {
		assert.Equal(t, contracts.TestProperty, tc.Type)
		assert.Equal(t, "orders", tc.ContractID)
		assert.True(t, tc.Generated)
		assert.Contains(t, tc.Input, "value")
		assert.False(t, seen[tc.ID], "ids must be unique")
		seen[tc.ID] = true
	}
}

func TestGeneratePropertyTests_SeedReproducible(t *testing.T) {
	a, err := NewGenerator(testSource(), WithSeed(7)).GeneratePropertyTests("orders", 10)
	require.NoError(t, err)
	b, err := NewGenerator(testSource(), WithSeed(7)).GeneratePropertyTests("orders", 10)
	require.NoError(t, err)

	require.Len(t, b, len(a))
	for i := range a {
		assert.Equal(t, a[i].Input, b[i].Input)
	}
}

func TestGenerateScenarioTests(t *testing.T) {
	g := NewGenerator(testSource())

	cases, err := g.GenerateScenarioTests("orders")
	require.NoError(t, err)
	require.NotEmpty(t, cases)

	names := make([]string, 0, len(cases))
	for _, tc := range cases {
		assert.Equal(t, contracts.TestScenario, tc.Type)
		assert.True(t, tc.Generated)
		names = append(names, tc.Name)
	}
	assert.Contains(t, names, "edge case: empty")
	assert.Contains(t, names, "edge case: null value")
	assert.Contains(t, names, "edge case: max int")
}

func TestGenerateFaultTests(t *testing.T) {
	g := NewGenerator(testSource())

	cases, err := g.GenerateFaultTests("orders")
	require.NoError(t, err)
	require.Len(t, cases, 2, "one case per declared fault scenario")

	ids := map[string]bool{}
	for _, tc := range cases {
		assert.Equal(t, contracts.TestFault, tc.Type)
		ids[tc.FaultScenario] = true
	}
	assert.True(t, ids["fs-net"])
	assert.True(t, ids["fs-timeout"])
}

func TestGenerateResourceTests(t *testing.T) {
	g := NewGenerator(testSource())

	cases, err := g.GenerateResourceTests("orders")
	require.NoError(t, err)
	require.NotEmpty(t, cases)
	for _, tc := range cases {
		assert.Equal(t, contracts.TestResource, tc.Type)
		assert.True(t, tc.Generated)
	}
}

func TestGenerateAll(t *testing.T) {
	g := NewGenerator(testSource(), WithSeed(1))

	all, err := g.GenerateAll("orders", 5)
	require.NoError(t, err)

	byType := map[contracts.TestType]int{}
	for _, tc := range all {
		byType[tc.Type]++
	}
	assert.Equal(t, 5, byType[contracts.TestProperty])
	assert.Equal(t, 2, byType[contracts.TestFault])
	assert.NotZero(t, byType[contracts.TestScenario])
	assert.NotZero(t, byType[contracts.TestResource])
}

func TestUnknownContract(t *testing.T) {
	g := NewGenerator(testSource())

	var nf *contracts.NotFoundError
	_, err := g.GeneratePropertyTests("ghost", 3)
	require.ErrorAs(t, err, &nf)
	_, err = g.GenerateScenarioTests("ghost")
	require.ErrorAs(t, err, &nf)
	_, err = g.GenerateFaultTests("ghost")
	require.ErrorAs(t, err, &nf)
	_, err = g.GenerateResourceTests("ghost")
	require.ErrorAs(t, err, &nf)
}
