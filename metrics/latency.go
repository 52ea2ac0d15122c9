// Package metrics tracks per-stage latency for the voice pipeline and
// exposes it both as printable summaries and Prometheus series.
package metrics

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// StageStats is a point-in-time summary of one pipeline stage.
type StageStats struct {
	Stage string
	Count int
	Mean  time.Duration
	Min   time.Duration
	Max   time.Duration
	P50   time.Duration
	P95   time.Duration
	P99   time.Duration
}

// LatencyTracker accumulates latency samples per stage. Safe for concurrent
// use; the session records from several goroutines.
type LatencyTracker struct {
	mu      sync.Mutex
	stages  map[string][]time.Duration
	started map[string]time.Time
}

// NewLatencyTracker returns an empty tracker.
func NewLatencyTracker() *LatencyTracker {
	return &LatencyTracker{
		stages:  make(map[string][]time.Duration),
		started: make(map[string]time.Time),
	}
}

// Record adds one sample for a stage.
func (t *LatencyTracker) Record(stage string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages[stage] = append(t.stages[stage], d)
}

// Start begins timing a stage for the start/stop style of measurement.
func (t *LatencyTracker) Start(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.started[stage] = time.Now()
}

// Stop ends timing, records the sample, and returns it. Stopping a stage that
// was never started is an error.
func (t *LatencyTracker) Stop(stage string) (time.Duration, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	start, ok := t.started[stage]
	if !ok {
		return 0, fmt.Errorf("stage %q was not started", stage)
	}
	delete(t.started, stage)
	d := time.Since(start)
	t.stages[stage] = append(t.stages[stage], d)
	return d, nil
}

// Measure times fn and records the sample regardless of fn's error.
func (t *LatencyTracker) Measure(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	t.Record(stage, time.Since(start))
	return err
}

// Stats summarizes one stage. The zero value comes back for unknown stages.
func (t *LatencyTracker) Stats(stage string) StageStats {
	t.mu.Lock()
	samples := append([]time.Duration(nil), t.stages[stage]...)
	t.mu.Unlock()
	return summarize(stage, samples)
}

// All returns summaries for every stage, sorted by stage name.
func (t *LatencyTracker) All() []StageStats {
	t.mu.Lock()
	names := make([]string, 0, len(t.stages))
	for name := range t.stages {
		names = append(names, name)
	}
	copies := make(map[string][]time.Duration, len(t.stages))
	for name, s := range t.stages {
		copies[name] = append([]time.Duration(nil), s...)
	}
	t.mu.Unlock()

	sort.Strings(names)
	out := make([]StageStats, 0, len(names))
	for _, name := range names {
		out = append(out, summarize(name, copies[name]))
	}
	return out
}

// Reset drops all samples and open timers.
func (t *LatencyTracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stages = make(map[string][]time.Duration)
	t.started = make(map[string]time.Time)
}

// Summary renders a text table plus an overall grade based on the sum of
// stage p50s: under 300 ms reads as natural conversation, under 500 ms as
// acceptable, under 800 ms as noticeable delay.
func (t *LatencyTracker) Summary() string {
	all := t.All()

	var b strings.Builder
	fmt.Fprintf(&b, "%-14s %6s %8s %8s %8s %8s\n", "stage", "count", "mean", "p50", "p95", "p99")

	var totalP50 time.Duration
	for _, s := range all {
		fmt.Fprintf(&b, "%-14s %6d %8s %8s %8s %8s\n",
			s.Stage, s.Count, ms(s.Mean), ms(s.P50), ms(s.P95), ms(s.P99))
		totalP50 += s.P50
	}
	fmt.Fprintf(&b, "%-14s %6s %8s %8s\n", "total (p50)", "-", "-", ms(totalP50))

	switch {
	case totalP50 < 300*time.Millisecond:
		b.WriteString("status: excellent - natural conversation feel\n")
	case totalP50 < 500*time.Millisecond:
		b.WriteString("status: good - acceptable latency\n")
	case totalP50 < 800*time.Millisecond:
		b.WriteString("status: fair - noticeable delay\n")
	default:
		b.WriteString("status: poor - needs optimization\n")
	}
	return b.String()
}

func ms(d time.Duration) string {
	return fmt.Sprintf("%dms", d.Milliseconds())
}

func summarize(stage string, samples []time.Duration) StageStats {
	s := StageStats{Stage: stage, Count: len(samples)}
	if len(samples) == 0 {
		return s
	}

	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	s.Mean = sum / time.Duration(len(sorted))
	s.Min = sorted[0]
	s.Max = sorted[len(sorted)-1]
	s.P50 = percentile(sorted, 0.50)
	s.P95 = percentile(sorted, 0.95)
	s.P99 = percentile(sorted, 0.99)
	return s
}

// percentile indexes into the sorted samples the way the benchmark templates
// do: floor(n*p), clamped to the last element.
func percentile(sorted []time.Duration, p float64) time.Duration {
	idx := int(float64(len(sorted)) * p)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
