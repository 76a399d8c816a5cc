// Package metrics holds the Prometheus collectors for the dispatcher, the
// pipeline stages and the HTTP API.
//
// All methods are safe to call on a nil *Metrics, so components can be built
// without instrumentation in tests.
package metrics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups every collector registered by the service.
type Metrics struct {
	reg *prometheus.Registry

	queueDepth  prometheus.Gauge
	running     prometheus.Gauge
	jobs        *prometheus.CounterVec   // augmenter_jobs_total{outcome}
	jobDuration *prometheus.HistogramVec // augmenter_job_duration_seconds{outcome}

	stageDuration *prometheus.HistogramVec // augmenter_stage_duration_seconds{stage,status}
	pipelines     *prometheus.CounterVec   // augmenter_pipelines_total{stage}
	rowsGenerated *prometheus.CounterVec   // augmenter_rows_generated_total{method}

	httpRequests *prometheus.CounterVec   // augmenter_http_requests_total{route,method,code}
	httpDuration *prometheus.HistogramVec // augmenter_http_request_duration_seconds{route,method}
}

// New creates a Metrics instance on a fresh registry, including the Go runtime
// and process collectors.
func New() (*Metrics, error) {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "augmenter_dispatch_queue_depth",
			Help: "Number of pipeline jobs waiting for a worker.",
		}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "augmenter_dispatch_running_jobs",
			Help: "Number of pipeline jobs currently executing.",
		}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "augmenter_jobs_total",
			Help: "Pipeline jobs finished by the dispatcher, partitioned by outcome.",
		}, []string{"outcome"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "augmenter_job_duration_seconds",
			Help:    "Wall-clock duration of pipeline jobs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
		}, []string{"outcome"}),
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "augmenter_stage_duration_seconds",
			Help:    "Duration of pipeline stages, partitioned by stage and status.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 16),
		}, []string{"stage", "status"}),
		pipelines: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "augmenter_pipelines_total",
			Help: "Pipelines that reached a terminal stage.",
		}, []string{"stage"}),
		rowsGenerated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "augmenter_rows_generated_total",
			Help: "Synthetic rows generated, partitioned by augmentation method.",
		}, []string{"method"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "augmenter_http_requests_total",
			Help: "HTTP requests served, partitioned by route pattern, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "augmenter_http_request_duration_seconds",
			Help:    "HTTP request latency, partitioned by route pattern and method.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}

	collectors := map[string]prometheus.Collector{
		"go":             collectors.NewGoCollector(),
		"process":        collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		"queue depth":    m.queueDepth,
		"running jobs":   m.running,
		"jobs":           m.jobs,
		"job duration":   m.jobDuration,
		"stage duration": m.stageDuration,
		"pipelines":      m.pipelines,
		"rows generated": m.rowsGenerated,
		"http requests":  m.httpRequests,
		"http durations": m.httpDuration,
	}
	for name, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("metrics: register %s: %w", name, err)
		}
	}
	return m, nil
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// SetQueueDepth records the number of queued jobs.
func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

// JobStarted increments the running gauge.
func (m *Metrics) JobStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

// JobFinished decrements the running gauge and records the outcome.
func (m *Metrics) JobFinished(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.running.Dec()
	m.jobs.WithLabelValues(outcome).Inc()
	m.jobDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// ObserveStage records how long a pipeline stage took.
func (m *Metrics) ObserveStage(stage, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(d.Seconds())
}

// PipelineFinished counts a pipeline reaching a terminal stage.
func (m *Metrics) PipelineFinished(stage string) {
	if m == nil {
		return
	}
	m.pipelines.WithLabelValues(stage).Inc()
}

// RowsGenerated adds n synthetic rows for method.
func (m *Metrics) RowsGenerated(method string, n int) {
	if m == nil {
		return
	}
	m.rowsGenerated.WithLabelValues(method).Add(float64(n))
}

// ObserveRequest records one served HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, fmt.Sprint(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(d.Seconds())
}
