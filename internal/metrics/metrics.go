package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is the scrape-side counter set backing GET /metrics. The OTLP
// telemetry provider is push-side and optional; this registry is always on.
type Metrics struct {
	registry *prometheus.Registry

	Verdicts      *prometheus.CounterVec
	StageDuration *prometheus.HistogramVec
	Timeouts      *prometheus.CounterVec
	CacheHits     prometheus.Counter
	CacheMisses   prometheus.Counter
	SinkEvents    *prometheus.CounterVec
	SinkDropped   *prometheus.CounterVec
}

// New creates an isolated registry so tests never collide on the global one.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vanguard_verdicts_total",
			Help: "Verdicts emitted, by action, failure class and tier.",
		}, []string{"action", "class", "tier"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vanguard_stage_duration_seconds",
			Help:    "Wall-clock duration per pipeline stage.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 3, 5, 15},
		}, []string{"stage"}),
		Timeouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vanguard_stage_timeouts_total",
			Help: "Stage budget exhaustions, by stage.",
		}, []string{"stage"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vanguard_decision_cache_hits_total",
			Help: "Decision cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vanguard_decision_cache_misses_total",
			Help: "Decision cache misses.",
		}),
		SinkEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vanguard_sink_events_total",
			Help: "Verdict events per sink, by delivery result.",
		}, []string{"sink", "result"}),
		SinkDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vanguard_sink_dropped_total",
			Help: "Verdict events dropped because a sink queue was full.",
		}, []string{"sink"}),
	}

	reg.MustRegister(m.Verdicts, m.StageDuration, m.Timeouts, m.CacheHits, m.CacheMisses, m.SinkEvents, m.SinkDropped)
	return m
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
