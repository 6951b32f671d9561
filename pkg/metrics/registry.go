// Package metrics exposes Prometheus metrics for the deployment orchestrator.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config tunes the metrics registry.
type Config struct {
	// Namespace prefixes every metric name.
	Namespace string
	// EnableRuntimeMetrics adds the Go runtime collector.
	EnableRuntimeMetrics bool
	// EnableProcessMetrics adds the process collector.
	EnableProcessMetrics bool
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() Config {
	return Config{
		Namespace:            "classdeploy",
		EnableRuntimeMetrics: true,
		EnableProcessMetrics: true,
	}
}

// Registry manages all Prometheus metrics for the orchestrator.
type Registry struct {
	config   Config
	registry *prometheus.Registry

	// Job metrics
	jobsTotal   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
	jobRetries  prometheus.Counter
	activeJobs  prometheus.Gauge
	waitingJobs prometheus.Gauge

	// Fleet metrics
	hostCount  prometheus.Gauge
	importRows *prometheus.CounterVec
}

// NewRegistry creates a new metrics registry with the given configuration.
func NewRegistry(config Config) *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		config:   config,
		registry: reg,
	}
	r.registerJobMetrics()
	r.registerFleetMetrics()

	if config.EnableProcessMetrics {
		reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	if config.EnableRuntimeMetrics {
		reg.MustRegister(collectors.NewGoCollector())
	}

	return r
}

func (r *Registry) registerJobMetrics() {
	ns := r.config.Namespace

	r.jobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "jobs",
			Name:      "total",
			Help:      "Terminal deployment jobs by action and status",
		},
		[]string{"action", "status"},
	)

	r.jobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: ns,
			Subsystem: "jobs",
			Name:      "duration_seconds",
			Help:      "Deployment job duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 180},
		},
		[]string{"action"},
	)

	r.jobRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "jobs",
			Name:      "retries_total",
			Help:      "Job attempts returned to the queue for retry",
		},
	)

	r.activeJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "queue",
			Name:      "active_jobs",
			Help:      "Jobs currently running",
		},
	)

	r.waitingJobs = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "queue",
			Name:      "waiting_jobs",
			Help:      "Jobs waiting in the FIFO",
		},
	)

	r.registry.MustRegister(r.jobsTotal, r.jobDuration, r.jobRetries, r.activeJobs, r.waitingJobs)
}

func (r *Registry) registerFleetMetrics() {
	ns := r.config.Namespace

	r.hostCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: ns,
			Subsystem: "fleet",
			Name:      "hosts",
			Help:      "Hosts currently in the registry",
		},
	)

	r.importRows = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: ns,
			Subsystem: "fleet",
			Name:      "import_rows_total",
			Help:      "Host import rows by outcome",
		},
		[]string{"outcome"},
	)

	r.registry.MustRegister(r.hostCount, r.importRows)
}

// ObserveJobTerminal records one terminal job outcome.
func (r *Registry) ObserveJobTerminal(action, status string, durationSeconds float64) {
	r.jobsTotal.WithLabelValues(action, status).Inc()
	if durationSeconds > 0 {
		r.jobDuration.WithLabelValues(action).Observe(durationSeconds)
	}
}

// ObserveJobRetried counts one retry.
func (r *Registry) ObserveJobRetried() {
	r.jobRetries.Inc()
}

// SetQueueGauges updates the active and waiting job gauges.
func (r *Registry) SetQueueGauges(active, waiting int) {
	r.activeJobs.Set(float64(active))
	r.waitingJobs.Set(float64(waiting))
}

// SetHostCount updates the fleet size gauge.
func (r *Registry) SetHostCount(n int) {
	r.hostCount.Set(float64(n))
}

// ObserveImport records one import run's row outcomes.
func (r *Registry) ObserveImport(added, updated, skipped int) {
	r.importRows.WithLabelValues("added").Add(float64(added))
	r.importRows.WithLabelValues("updated").Add(float64(updated))
	r.importRows.WithLabelValues("skipped").Add(float64(skipped))
}

// Handler returns the HTTP handler serving the metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// PrometheusRegistry returns the underlying Prometheus registry.
func (r *Registry) PrometheusRegistry() *prometheus.Registry {
	return r.registry
}
