// Package profiler records operation timings for benchmark runs: every call to
// the closure returned by StartOperation adds one sample, and Stats summarises
// the samples of an operation.
package profiler

import (
	"fmt"
	"io"
	"runtime"
	"sort"
	"sync"
	"time"
)

// DefaultMaxSamples is the number of samples kept per operation.
const DefaultMaxSamples = 10000

// Stats summarises the samples of one operation.
type Stats struct {
	Name  string        `json:"name" yaml:"name"`
	Count int64         `json:"count" yaml:"count"`
	Min   time.Duration `json:"min" yaml:"min"`
	Max   time.Duration `json:"max" yaml:"max"`
	Mean  time.Duration `json:"mean" yaml:"mean"`
	P50   time.Duration `json:"p50" yaml:"p50"`
	P95   time.Duration `json:"p95" yaml:"p95"`
}

// String implements fmt.Stringer.
func (s Stats) String() string {
	return fmt.Sprintf("%s: avg=%v, min=%v, max=%v, p50=%v, p95=%v, count=%d",
		s.Name,
		s.Mean.Truncate(time.Microsecond),
		s.Min.Truncate(time.Microsecond),
		s.Max.Truncate(time.Microsecond),
		s.P50.Truncate(time.Microsecond),
		s.P95.Truncate(time.Microsecond),
		s.Count)
}

// TimeTracker tracks operation timing statistics.
type TimeTracker struct {
	name      string
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// Profiler collects timings for named operations. It is safe for concurrent use.
type Profiler struct {
	mu         sync.RWMutex
	startTime  time.Time
	maxSamples int
	order      []string
	operations map[string]*TimeTracker
}

// New creates a profiler that keeps up to DefaultMaxSamples samples per operation.
func New() *Profiler {
	return NewWithLimit(DefaultMaxSamples)
}

// NewWithLimit creates a profiler keeping at most maxSamples samples per
// operation; older samples are dropped from the window but still counted.
//
// Arguments:
// - maxSamples: The sample window size. Values <= 0 use DefaultMaxSamples.
//
// Returns:
// - A configured Profiler instance
func NewWithLimit(maxSamples int) *Profiler {
	if maxSamples <= 0 {
		maxSamples = DefaultMaxSamples
	}
	return &Profiler{
		startTime:  time.Now(),
		maxSamples: maxSamples,
		operations: make(map[string]*TimeTracker),
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
func (p *Profiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		p.Record(name, time.Since(start))
	}
}

// Record adds one sample for name.
func (p *Profiler) Record(name string, duration time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tracker, exists := p.operations[name]
	if !exists {
		tracker = &TimeTracker{
			name:    name,
			minTime: duration,
			maxTime: duration,
		}
		p.operations[name] = tracker
		p.order = append(p.order, name)
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > p.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Stats returns the summary for name and whether any sample exists. Mean and
// percentiles cover the sample window; Min, Max and Count cover every sample.
func (p *Profiler) Stats(name string) (Stats, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	tracker, ok := p.operations[name]
	if !ok || len(tracker.durations) == 0 {
		return Stats{Name: name}, false
	}

	sorted := make([]time.Duration, len(tracker.durations))
	copy(sorted, tracker.durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	return Stats{
		Name:  name,
		Count: tracker.count,
		Min:   tracker.minTime,
		Max:   tracker.maxTime,
		Mean:  tracker.totalTime / time.Duration(len(sorted)),
		P50:   percentile(sorted, 50),
		P95:   percentile(sorted, 95),
	}, true
}

// Samples returns a copy of the sample window for name.
func (p *Profiler) Samples(name string) []time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	tracker, ok := p.operations[name]
	if !ok {
		return nil
	}
	out := make([]time.Duration, len(tracker.durations))
	copy(out, tracker.durations)
	return out
}

// percentile returns the nearest-rank percentile of sorted samples.
func percentile(sorted []time.Duration, pct int) time.Duration {
	rank := (pct*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}

// Report writes one line per operation, in first-recorded order, followed by
// memory usage.
func (p *Profiler) Report(w io.Writer) {
	p.mu.RLock()
	names := append([]string(nil), p.order...)
	uptime := time.Since(p.startTime)
	p.mu.RUnlock()

	fmt.Fprintf(w, "OPERATION TIMINGS (uptime %v):\n", uptime.Truncate(time.Millisecond))
	for _, name := range names {
		if s, ok := p.Stats(name); ok {
			fmt.Fprintf(w, "  %s\n", s)
		}
	}

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	fmt.Fprintf(w, "MEMORY USAGE:\n")
	fmt.Fprintf(w, "  Heap Alloc: %s\n", formatBytes(mem.HeapAlloc))
	fmt.Fprintf(w, "  Total Alloc: %s\n", formatBytes(mem.TotalAlloc))
	fmt.Fprintf(w, "  GC Cycles: %d\n", mem.NumGC)
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
