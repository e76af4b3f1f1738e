// Package metrics provides Prometheus metrics for the render service.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the render service.
type Metrics struct {
	JobsTotal          *prometheus.CounterVec
	JobDuration        prometheus.Histogram
	JobsActive         prometheus.Gauge
	PreviewsTotal      *prometheus.CounterVec
	PreviewDuration    *prometheus.HistogramVec
	PreviewSessions    prometheus.Gauge
	CompileWarnings    prometheus.Counter
	SweptFilesTotal    *prometheus.CounterVec
	SweptBytesTotal    prometheus.Counter
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPRequestLatency *prometheus.HistogramVec

	registry *prometheus.Registry
}

// New creates and registers all metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_jobs_total",
				Help: "Export render jobs by terminal status.",
			},
			[]string{"status"},
		),
		JobDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "render_job_duration_seconds",
				Help:    "Wall time of export renders from admission to terminal state.",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		),
		JobsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "render_jobs_active",
				Help: "Export renders currently holding the engine.",
			},
		),
		PreviewsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_previews_total",
				Help: "Preview requests by kind and outcome.",
			},
			[]string{"kind", "outcome"},
		),
		PreviewDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "render_preview_duration_seconds",
				Help:    "Preview engine invocation time by kind.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"kind"},
		),
		PreviewSessions: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "render_preview_sessions",
				Help: "Preview sessions with a request in flight.",
			},
		),
		CompileWarnings: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "render_compile_warnings_total",
				Help: "Clips skipped or degraded during timeline compilation.",
			},
		),
		SweptFilesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_swept_files_total",
				Help: "Artifacts removed by the retention sweep, by directory.",
			},
			[]string{"dir"},
		),
		SweptBytesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "render_swept_bytes_total",
				Help: "Bytes reclaimed by the retention sweep.",
			},
		),
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "render_http_requests_total",
				Help: "HTTP requests by route and status code.",
			},
			[]string{"route", "code"},
		),
		HTTPRequestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "render_http_request_duration_seconds",
				Help:    "HTTP request latency by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		registry: reg,
	}

	reg.MustRegister(
		m.JobsTotal,
		m.JobDuration,
		m.JobsActive,
		m.PreviewsTotal,
		m.PreviewDuration,
		m.PreviewSessions,
		m.CompileWarnings,
		m.SweptFilesTotal,
		m.SweptBytesTotal,
		m.HTTPRequestsTotal,
		m.HTTPRequestLatency,
	)

	return m
}

// Handler returns an http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordJob counts a job reaching a terminal status.
func (m *Metrics) RecordJob(status string, seconds float64) {
	m.JobsTotal.WithLabelValues(status).Inc()
	m.JobDuration.Observe(seconds)
}

// JobStarted and JobStopped track renders holding an admission slot.
func (m *Metrics) JobStarted() { m.JobsActive.Inc() }

func (m *Metrics) JobStopped() { m.JobsActive.Dec() }

// RecordPreview counts a preview outcome and its engine time.
func (m *Metrics) RecordPreview(kind, outcome string, seconds float64) {
	m.PreviewsTotal.WithLabelValues(kind, outcome).Inc()
	if seconds > 0 {
		m.PreviewDuration.WithLabelValues(kind).Observe(seconds)
	}
}

// SetPreviewSessions sets the in-flight session count.
func (m *Metrics) SetPreviewSessions(n int) {
	m.PreviewSessions.Set(float64(n))
}

// AddCompileWarnings counts compiler warnings.
func (m *Metrics) AddCompileWarnings(n int) {
	m.CompileWarnings.Add(float64(n))
}

// RecordSweep counts files and bytes removed from dir.
func (m *Metrics) RecordSweep(dir string, files int, bytes int64) {
	m.SweptFilesTotal.WithLabelValues(dir).Add(float64(files))
	m.SweptBytesTotal.Add(float64(bytes))
}

// ObserveHTTP records one served request.
func (m *Metrics) ObserveHTTP(route, code string, seconds float64) {
	m.HTTPRequestsTotal.WithLabelValues(route, code).Inc()
	m.HTTPRequestLatency.WithLabelValues(route).Observe(seconds)
}
