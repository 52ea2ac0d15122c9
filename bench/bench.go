// Package bench times pipeline stages in isolation so latency regressions
// show up before a caller hears them.
package bench

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/albertoelopez/voice-agent/config"
	"github.com/albertoelopez/voice-agent/metrics"
)

// Result is the outcome of benchmarking one stage.
type Result struct {
	Stage      string
	Iterations int
	Errors     int
	Stats      metrics.StageStats
	Target     time.Duration
}

// Passed reports whether the stage p95 met its target. A zero target always
// passes; it means no target was configured for the stage.
func (r Result) Passed() bool {
	return r.Target == 0 || r.Stats.P95 <= r.Target
}

// Run invokes fn repeatedly and summarizes the timings. Warm-up iterations
// run first and are discarded; connection setup and model load time would
// otherwise dominate the percentiles. Errors count against the stage but the
// run keeps going, a flaky provider is exactly what the numbers should show.
func Run(ctx context.Context, stage string, iterations, warmup int, target time.Duration, fn func(context.Context) error) (Result, error) {
	if iterations <= 0 {
		return Result{}, fmt.Errorf("iterations must be positive, got %d", iterations)
	}

	for i := 0; i < warmup; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		_ = fn(ctx)
	}

	tracker := metrics.NewLatencyTracker()
	res := Result{Stage: stage, Iterations: iterations, Target: target}
	for i := 0; i < iterations; i++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if err := tracker.Measure(stage, func() error { return fn(ctx) }); err != nil {
			res.Errors++
		}
	}

	res.Stats = tracker.Stats(stage)
	return res, nil
}

// TargetFor maps a stage name to its configured latency target.
func TargetFor(cfg *config.Config, stage string) time.Duration {
	switch stage {
	case "stt":
		return time.Duration(cfg.Pipeline.TargetSTTLatencyMs) * time.Millisecond
	case "llm":
		return time.Duration(cfg.Pipeline.TargetLLMLatencyMs) * time.Millisecond
	case "tts":
		return time.Duration(cfg.Pipeline.TargetTTSLatencyMs) * time.Millisecond
	case "total":
		return time.Duration(cfg.Pipeline.TargetTotalLatencyMs) * time.Millisecond
	default:
		return 0
	}
}

// Report renders one result as a human-readable block.
func Report(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "stage:      %s\n", r.Stage)
	fmt.Fprintf(&b, "iterations: %d (%d errors)\n", r.Iterations, r.Errors)
	fmt.Fprintf(&b, "mean:       %s\n", r.Stats.Mean.Round(time.Millisecond))
	fmt.Fprintf(&b, "min/max:    %s / %s\n",
		r.Stats.Min.Round(time.Millisecond), r.Stats.Max.Round(time.Millisecond))
	fmt.Fprintf(&b, "p50/p95/p99: %s / %s / %s\n",
		r.Stats.P50.Round(time.Millisecond),
		r.Stats.P95.Round(time.Millisecond),
		r.Stats.P99.Round(time.Millisecond))
	if r.Target > 0 {
		verdict := "PASS"
		if !r.Passed() {
			verdict = "FAIL"
		}
		fmt.Fprintf(&b, "target:     p95 <= %s [%s]\n", r.Target, verdict)
	}
	return b.String()
}
