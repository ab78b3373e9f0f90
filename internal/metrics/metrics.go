// internal/metrics/metrics.go
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/websentry/scraperd/internal/model"
)

// Metrics bundles the worker's Prometheus collectors.
type Metrics struct {
	Registry        *prometheus.Registry
	TasksTotal      *prometheus.CounterVec
	TaskDuration    prometheus.Histogram
	ObfuscationHits prometheus.Counter
	ScriptsCaptured prometheus.Counter
}

// New constructs and registers all collectors on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	tasks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scraperd_tasks_total",
			Help: "Scrape tasks finished, by terminal status.",
		},
		[]string{"status"},
	)
	duration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "scraperd_task_duration_seconds",
			Help:    "Wall time of one scrape session.",
			Buckets: prometheus.DefBuckets,
		},
	)
	obfuscation := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraperd_obfuscation_hits_total",
			Help: "Sessions whose captured scripts tripped the obfuscation heuristic.",
		},
	)
	scripts := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "scraperd_scripts_captured_total",
			Help: "Script bodies captured across all sessions.",
		},
	)

	registry.MustRegister(tasks, duration, obfuscation, scripts)

	return &Metrics{
		Registry:        registry,
		TasksTotal:      tasks,
		TaskDuration:    duration,
		ObfuscationHits: obfuscation,
		ScriptsCaptured: scripts,
	}
}

// ObserveResult records one finished session.
func (m *Metrics) ObserveResult(res model.ScrapeResult, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.TasksTotal.WithLabelValues(string(res.StatusCode)).Inc()
	m.TaskDuration.Observe(elapsed.Seconds())
	m.ScriptsCaptured.Add(float64(len(res.ScriptPaths)))
	if res.Obfuscation {
		m.ObfuscationHits.Inc()
	}
}
