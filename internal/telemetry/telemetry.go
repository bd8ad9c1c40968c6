// Package telemetry exposes prometheus instrumentation for the sweep and
// walk-forward harness.
package telemetry

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the harness metrics on a private registry so parallel
// tests never collide on duplicate registration.
type Collector struct {
	registry *prometheus.Registry

	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter
	ActiveRuns  prometheus.Gauge
}

// NewCollector creates and registers the harness metric set
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stratrun_runs_total",
			Help: "Backtest runs by terminal status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "stratrun_run_duration_seconds",
			Help:    "Wall time of individual backtest runs",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratrun_result_cache_hits_total",
			Help: "Sweep result cache hits",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stratrun_result_cache_misses_total",
			Help: "Sweep result cache misses",
		}),
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stratrun_active_runs",
			Help: "Backtest runs currently executing",
		}),
	}

	registry.MustRegister(c.RunsTotal, c.RunDuration, c.CacheHits, c.CacheMisses, c.ActiveRuns)
	return c
}

// Handler serves the collector's registry for a /metrics endpoint
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
