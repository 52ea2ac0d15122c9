package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector exposes pipeline metrics to Prometheus. One instance serves the
// whole process.
type Collector struct {
	registry *prometheus.Registry

	stageLatency   *prometheus.HistogramVec
	fallbacksTotal *prometheus.CounterVec
	stageErrors    *prometheus.CounterVec
	bargeInsTotal  prometheus.Counter
	activeSessions prometheus.Gauge
}

// NewCollector registers all pipeline series on a private registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,
		stageLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "voiceagent",
			Name:      "stage_latency_seconds",
			Help:      "Latency of one pipeline stage invocation.",
			Buckets:   []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.5, 3, 6, 12},
		}, []string{"stage", "provider"}),
		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "fallbacks_total",
			Help:      "Times a stage fell back to its secondary provider.",
		}, []string{"stage"}),
		stageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "stage_errors_total",
			Help:      "Stage invocations where both providers failed.",
		}, []string{"stage"}),
		bargeInsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "voiceagent",
			Name:      "barge_ins_total",
			Help:      "Playback interruptions caused by caller speech.",
		}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "voiceagent",
			Name:      "active_sessions",
			Help:      "Currently connected call sessions.",
		}),
	}
}

// ObserveStage records one stage invocation latency.
func (c *Collector) ObserveStage(stage, provider string, d time.Duration) {
	c.stageLatency.WithLabelValues(stage, provider).Observe(d.Seconds())
}

// Fallback counts a primary failure that was served by the secondary.
func (c *Collector) Fallback(stage string) {
	c.fallbacksTotal.WithLabelValues(stage).Inc()
}

// StageError counts a stage invocation where both providers failed.
func (c *Collector) StageError(stage string) {
	c.stageErrors.WithLabelValues(stage).Inc()
}

// BargeIn counts one playback interruption.
func (c *Collector) BargeIn() {
	c.bargeInsTotal.Inc()
}

// SessionStarted and SessionEnded track the active-session gauge.
func (c *Collector) SessionStarted() { c.activeSessions.Inc() }
func (c *Collector) SessionEnded()   { c.activeSessions.Dec() }

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
