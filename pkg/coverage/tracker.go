// Package coverage maintains running per-contract coverage counters and
// derives the four coverage ratios on demand. Counters are sharded by
// contract id so concurrent executions do not contend on one lock.
package coverage

import (
	"encoding/json"
	"hash/fnv"
	"sync"

	"github.com/gowebpki/jcs"
	"golang.org/x/text/unicode/norm"

	"github.com/arbiterhq/arbiter/pkg/contracts"
)

// Fixed denominators inherited from the source system. Gate thresholds
// downstream are calibrated against them; override only deliberately via
// the tracker options.
const (
	// DefaultScenarioTarget is the assumed target scenario diversity per contract.
	DefaultScenarioTarget = 10
	// DefaultFaultCatalogSize is the assumed total fault-type catalog size.
	DefaultFaultCatalogSize = 5
)

// scenarioKeyLen bounds scenario keys. Collisions are acceptable: the key
// exists to bound scenario diversity, not to identify inputs.
const scenarioKeyLen = 64

const shardCount = 16

type record struct {
	executions         int64
	scenarioKeys       map[string]struct{}
	faultScenarios     map[string]struct{}
	resourceViolations int64
}

type shard struct {
	mu      sync.Mutex
	records map[string]*record
}

// Tracker accumulates execution outcomes per contract id.
type Tracker struct {
	scenarioTarget   int
	faultCatalogSize int
	shards           [shardCount]*shard
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithScenarioTarget overrides the scenario-diversity denominator.
func WithScenarioTarget(n int) Option {
	return func(t *Tracker) { t.scenarioTarget = n }
}

// WithFaultCatalogSize overrides the fault-catalog denominator.
func WithFaultCatalogSize(n int) Option {
	return func(t *Tracker) { t.faultCatalogSize = n }
}

// NewTracker creates a Tracker with the standard denominators.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{
		scenarioTarget:   DefaultScenarioTarget,
		faultCatalogSize: DefaultFaultCatalogSize,
	}
	for i := range t.shards {
		t.shards[i] = &shard{records: make(map[string]*record)}
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Tracker) shardFor(contractID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(contractID))
	return t.shards[h.Sum32()%shardCount]
}

// Record registers one execution outcome.
func (t *Tracker) Record(contractID string, input map[string]any, execFailed bool, faultScenarioID string, resourceViolated bool) {
	key := ScenarioKey(input, execFailed)

	s := t.shardFor(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[contractID]
	if !ok {
		rec = &record{
			scenarioKeys:   make(map[string]struct{}),
			faultScenarios: make(map[string]struct{}),
		}
		s.records[contractID] = rec
	}
	rec.executions++
	rec.scenarioKeys[key] = struct{}{}
	if faultScenarioID != "" {
		rec.faultScenarios[faultScenarioID] = struct{}{}
	}
	if resourceViolated {
		rec.resourceViolations++
	}
}

// GetCoverage derives the coverage ratios for one contract. Calling it twice
// without an intervening execution returns identical values.
func (t *Tracker) GetCoverage(contractID string) contracts.CoverageMetrics {
	s := t.shardFor(contractID)
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[contractID]
	if !ok || rec.executions == 0 {
		return contracts.CoverageMetrics{ResourceBudgetCompliance: 1}
	}
	return t.metricsLocked(rec)
}

func (t *Tracker) metricsLocked(rec *record) contracts.CoverageMetrics {
	m := contracts.CoverageMetrics{ContractCoverage: 1}
	m.ScenarioCoverage = capRatio(float64(len(rec.scenarioKeys)) / float64(t.scenarioTarget))
	m.FaultCoverage = capRatio(float64(len(rec.faultScenarios)) / float64(t.faultCatalogSize))
	m.ResourceBudgetCompliance = 1 - float64(rec.resourceViolations)/float64(rec.executions)
	return m
}

// GetOverallCoverage is the arithmetic mean of each ratio across all
// contracts with at least one execution. With no active contracts every
// dimension reads zero.
func (t *Tracker) GetOverallCoverage() contracts.CoverageMetrics {
	var sum contracts.CoverageMetrics
	active := 0

	for _, s := range t.shards {
		s.mu.Lock()
		for _, rec := range s.records {
			if rec.executions == 0 {
				continue
			}
			m := t.metricsLocked(rec)
			sum.ContractCoverage += m.ContractCoverage
			sum.ScenarioCoverage += m.ScenarioCoverage
			sum.FaultCoverage += m.FaultCoverage
			sum.ResourceBudgetCompliance += m.ResourceBudgetCompliance
			active++
		}
		s.mu.Unlock()
	}

	if active == 0 {
		return contracts.CoverageMetrics{}
	}
	n := float64(active)
	return contracts.CoverageMetrics{
		ContractCoverage:         sum.ContractCoverage / n,
		ScenarioCoverage:         sum.ScenarioCoverage / n,
		FaultCoverage:            sum.FaultCoverage / n,
		ResourceBudgetCompliance: sum.ResourceBudgetCompliance / n,
	}
}

// Snapshot returns per-contract coverage for every tracked contract.
func (t *Tracker) Snapshot() map[string]contracts.CoverageMetrics {
	out := make(map[string]contracts.CoverageMetrics)
	for _, s := range t.shards {
		s.mu.Lock()
		for id, rec := range s.records {
			if rec.executions == 0 {
				out[id] = contracts.CoverageMetrics{ResourceBudgetCompliance: 1}
				continue
			}
			out[id] = t.metricsLocked(rec)
		}
		s.mu.Unlock()
	}
	return out
}

// TotalExecutions returns the execution count across all contracts.
func (t *Tracker) TotalExecutions() int64 {
	var total int64
	for _, s := range t.shards {
		s.mu.Lock()
		for _, rec := range s.records {
			total += rec.executions
		}
		s.mu.Unlock()
	}
	return total
}

// ScenarioKey derives the bounded scenario key for an input: canonical JSON
// (RFC 8785), NFC-normalized, truncated, plus a success/error flag.
func ScenarioKey(input map[string]any, execFailed bool) string {
	raw, err := json.Marshal(input)
	if err != nil {
		raw = []byte("{}")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		canonical = raw
	}

	key := norm.NFC.String(string(canonical))
	if len(key) > scenarioKeyLen {
		key = key[:scenarioKeyLen]
	}
	if execFailed {
		return key + "|err"
	}
	return key + "|ok"
}

func capRatio(r float64) float64 {
	if r > 1 {
		return 1
	}
	return r
}
