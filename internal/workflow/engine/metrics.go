package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. Each engine registers on
// its own registry so several engines can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	builds        *prometheus.CounterVec
	buildDuration *prometheus.HistogramVec
	regenerations *prometheus.CounterVec
	fileEvents    *prometheus.CounterVec
	queueDepth    prometheus.Gauge
	activeBuilds  prometheus.Gauge
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		builds: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_builds_total",
			Help: "Completed builds by project and result",
		}, []string{"project", "result"}),
		buildDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "weft_build_duration_seconds",
			Help:    "Build duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"project"}),
		regenerations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_regenerations_total",
			Help: "Artifact regeneration runs by project and result",
		}, []string{"project", "result"}),
		fileEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "weft_file_events_total",
			Help: "File events accepted by the engine by kind",
		}, []string{"kind"}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weft_queue_depth",
			Help: "Projects waiting for a build slot",
		}),
		activeBuilds: factory.NewGauge(prometheus.GaugeOpts{
			Name: "weft_active_builds",
			Help: "Builds currently running",
		}),
	}
}

// Registry exposes the registry for HTTP handlers.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) buildFinished(project string, result BuildResult, d time.Duration) {
	m.builds.WithLabelValues(project, string(result)).Inc()
	if result != BuildAborted {
		m.buildDuration.WithLabelValues(project).Observe(d.Seconds())
	}
}

func (m *Metrics) regenerated(project string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.regenerations.WithLabelValues(project, result).Inc()
}
