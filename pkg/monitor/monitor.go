// Package monitor samples CPU, heap, and wall-time usage for one execution.
// A Run is a per-execution sampler: the engine starts one before invoking an
// action and stops it on every exit path, so a panicking action never leaves
// a sampler goroutine behind.
package monitor

import (
	"context"
	"runtime"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arbiterhq/arbiter/pkg/contracts"
)

// DefaultInterval is the fixed sampling cadence.
const DefaultInterval = 100 * time.Millisecond

const cpuMetric = "/cpu/classes/user:cpu-seconds"

// Monitor is a factory for per-execution sampling runs.
type Monitor struct {
	interval time.Duration
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the sampling cadence (tests use a tighter one).
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// New creates a Monitor.
func New(opts ...Option) *Monitor {
	m := &Monitor{interval: DefaultInterval}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run is one execution's sampler. Peak values are the max across all samples;
// wall time is computed from the start timestamp independently of sampling
// cadence, so very short executions still get an accurate reading even if no
// tick fired.
type Run struct {
	start    time.Time
	baseHeap uint64
	baseCPU  float64

	mu             sync.Mutex
	peakCPUPercent float64
	peakHeapMB     float64

	fsOps       atomic.Int64
	netRequests atomic.Int64

	stop chan struct{}
	done chan struct{}
	once sync.Once

	usage contracts.ResourceUsage
}

// Start begins a sampling run.
func (m *Monitor) Start() *Run {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	r := &Run{
		start:    time.Now(),
		baseHeap: ms.HeapAlloc,
		baseCPU:  cpuSeconds(),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.sample()
			case <-r.stop:
				return
			}
		}
	}()

	return r
}

// Stop cancels the sampler and returns peak usage. Idempotent: later calls
// return the same usage.
func (r *Run) Stop() contracts.ResourceUsage {
	r.once.Do(func() {
		close(r.stop)
		<-r.done
		r.sample() // final sample so sub-interval runs still get readings

		r.mu.Lock()
		defer r.mu.Unlock()
		r.usage = contracts.ResourceUsage{
			CPUPercent:      r.peakCPUPercent,
			MemoryMB:        r.peakHeapMB,
			WallTimeMs:      time.Since(r.start).Milliseconds(),
			FileSystemOps:   r.fsOps.Load(),
			NetworkRequests: r.netRequests.Load(),
		}
	})
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.usage
}

func (r *Run) sample() {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	heapMB := 0.0
	if ms.HeapAlloc > r.baseHeap {
		heapMB = float64(ms.HeapAlloc-r.baseHeap) / (1 << 20)
	}

	cpuPercent := 0.0
	if elapsed := time.Since(r.start).Seconds(); elapsed > 0 {
		if delta := cpuSeconds() - r.baseCPU; delta > 0 {
			cpuPercent = delta / elapsed * 100
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if heapMB > r.peakHeapMB {
		r.peakHeapMB = heapMB
	}
	if cpuPercent > r.peakCPUPercent {
		r.peakCPUPercent = cpuPercent
	}
}

// AddFileSystemOps records filesystem operations reported by instrumented
// actions. Absent instrumentation the counter reads zero; that is a known
// coverage gap, not a defect.
func (r *Run) AddFileSystemOps(n int64) { r.fsOps.Add(n) }

// AddNetworkRequests records network requests reported by instrumented actions.
func (r *Run) AddNetworkRequests(n int64) { r.netRequests.Add(n) }

func cpuSeconds() float64 {
	s := []metrics.Sample{{Name: cpuMetric}}
	metrics.Read(s)
	if s[0].Value.Kind() == metrics.KindFloat64 {
		return s[0].Value.Float64()
	}
	return 0
}

type runKey struct{}

// ContextWithRun attaches the sampling run to the context handed to actions.
func ContextWithRun(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, runKey{}, r)
}

// RecordFileSystemOps reports filesystem operations from inside an action.
// No-op when the context carries no sampling run.
func RecordFileSystemOps(ctx context.Context, n int64) {
	if r, ok := ctx.Value(runKey{}).(*Run); ok {
		r.AddFileSystemOps(n)
	}
}

// RecordNetworkRequests reports network requests from inside an action.
func RecordNetworkRequests(ctx context.Context, n int64) {
	if r, ok := ctx.Value(runKey{}).(*Run); ok {
		r.AddNetworkRequests(n)
	}
}
