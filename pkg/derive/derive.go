// Package derive generates test-case inputs from registered contract
// definitions. The generator is a pure consumer of the contract registry: it
// never executes anything and keeps no state beyond its random source.
package derive

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/arbiterhq/arbiter/pkg/contracts"
)

// ContractSource resolves contract definitions by id. *engine.Engine
// satisfies it.
type ContractSource interface {
	Contract(id string) (contracts.ContractDefinition, bool)
}

// Generator derives property, scenario, fault, and resource test cases for
// registered contracts.
type Generator struct {
	source ContractSource

	mu  sync.Mutex
	rng *rand.Rand
}

// Option configures a Generator.
type Option func(*Generator)

// WithSeed fixes the random source so derived property inputs are
// reproducible across runs.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.rng = rand.New(rand.NewSource(seed)) }
}

// NewGenerator creates a Generator over the given contract source.
func NewGenerator(source ContractSource, opts ...Option) *Generator {
	g := &Generator{source: source}
	for _, opt := range opts {
		opt(g)
	}
	if g.rng == nil {
		g.rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return g
}

// GeneratePropertyTests produces count pseudo-random inputs for the contract.
// Inputs are drawn uniformly over scalar shapes and deliberately ignore the
// contract's precondition structure: cases the preconditions reject are
// still valuable, they exercise the rejection path.
func (g *Generator) GeneratePropertyTests(contractID string, count int) ([]contracts.TestCase, error) {
	if _, ok := g.source.Contract(contractID); !ok {
		return nil, &contracts.NotFoundError{ContractID: contractID}
	}
	cases := make([]contracts.TestCase, 0, count)
	for i := 0; i < count; i++ {
		cases = append(cases, contracts.TestCase{
			ID:         uuid.New().String(),
			Type:       contracts.TestProperty,
			ContractID: contractID,
			Input:      g.randomInput(),
			Generated:  true,
		})
	}
	return cases, nil
}

// GenerateScenarioTests emits the fixed edge-case inputs every contract gets
// probed with: empty, null, zero, boundary numerics, and string extremes.
func (g *Generator) GenerateScenarioTests(contractID string) ([]contracts.TestCase, error) {
	if _, ok := g.source.Contract(contractID); !ok {
		return nil, &contracts.NotFoundError{ContractID: contractID}
	}
	edges := []struct {
		name  string
		input map[string]any
	}{
		{"empty", map[string]any{}},
		{"null value", map[string]any{"value": nil}},
		{"zero", map[string]any{"value": 0}},
		{"negative", map[string]any{"value": -1}},
		{"min int", map[string]any{"value": math.MinInt64}},
		{"max int", map[string]any{"value": math.MaxInt64}},
		{"empty string", map[string]any{"value": ""}},
		{"long string", map[string]any{"value": strings.Repeat("x", 10_000)}},
	}
	cases := make([]contracts.TestCase, 0, len(edges))
	for _, e := range edges {
		cases = append(cases, contracts.TestCase{
			ID:         uuid.New().String(),
			Type:       contracts.TestScenario,
			ContractID: contractID,
			Name:       fmt.Sprintf("edge case: %s", e.name),
			Input:      e.input,
			Generated:  true,
		})
	}
	return cases, nil
}

// GenerateFaultTests emits one test case per fault scenario declared on the
// contract, carrying an input that satisfies common size-gated fault
// conditions.
func (g *Generator) GenerateFaultTests(contractID string) ([]contracts.TestCase, error) {
	def, ok := g.source.Contract(contractID)
	if !ok {
		return nil, &contracts.NotFoundError{ContractID: contractID}
	}
	cases := make([]contracts.TestCase, 0, len(def.FaultScenarios))
	for _, fs := range def.FaultScenarios {
		cases = append(cases, contracts.TestCase{
			ID:            uuid.New().String(),
			Type:          contracts.TestFault,
			ContractID:    contractID,
			Name:          fmt.Sprintf("fault: %s (%s)", fs.ID, fs.FaultType),
			Input:         map[string]any{"value": 1, "size": 1 << 20},
			FaultScenario: fs.ID,
			Generated:     true,
		})
	}
	return cases, nil
}

// GenerateResourceTests emits the fixed resource-stress inputs used to probe
// budget ceilings.
func (g *Generator) GenerateResourceTests(contractID string) ([]contracts.TestCase, error) {
	if _, ok := g.source.Contract(contractID); !ok {
		return nil, &contracts.NotFoundError{ContractID: contractID}
	}
	stresses := []struct {
		name  string
		input map[string]any
	}{
		{"large payload", map[string]any{"value": 1, "payload": strings.Repeat("a", 1 << 16)}},
		{"high iteration count", map[string]any{"value": 1, "iterations": 1_000_000}},
		{"wide fanout", map[string]any{"value": 1, "fanout": 1024}},
	}
	cases := make([]contracts.TestCase, 0, len(stresses))
	for _, s := range stresses {
		cases = append(cases, contracts.TestCase{
			ID:         uuid.New().String(),
			Type:       contracts.TestResource,
			ContractID: contractID,
			Name:       fmt.Sprintf("resource stress: %s", s.name),
			Input:      s.input,
			Generated:  true,
		})
	}
	return cases, nil
}

// GenerateAll derives the full suite for one contract: scenario and resource
// edges, one case per fault scenario, and propertyCount random cases.
func (g *Generator) GenerateAll(contractID string, propertyCount int) ([]contracts.TestCase, error) {
	var all []contracts.TestCase
	for _, gen := range []func(string) ([]contracts.TestCase, error){
		g.GenerateScenarioTests,
		g.GenerateFaultTests,
		g.GenerateResourceTests,
	} {
		cases, err := gen(contractID)
		if err != nil {
			return nil, err
		}
		all = append(all, cases...)
	}
	props, err := g.GeneratePropertyTests(contractID, propertyCount)
	if err != nil {
		return nil, err
	}
	return append(all, props...), nil
}

func (g *Generator) randomInput() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()
	input := map[string]any{
		"value": g.rng.Int63n(2_000_001) - 1_000_000,
	}
	switch g.rng.Intn(4) {
	case 0:
		input["ratio"] = g.rng.Float64()
	case 1:
		input["flag"] = g.rng.Intn(2) == 0
	case 2:
		input["name"] = randomString(g.rng, 1+g.rng.Intn(32))
	case 3:
		input["size"] = g.rng.Int63n(1 << 21)
	}
	return input
}

const alphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomString(rng *rand.Rand, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphabet[rng.Intn(len(alphabet))])
	}
	return b.String()
}
