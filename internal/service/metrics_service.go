package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the import
// pipeline and the HTTP surface.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	jobsTotal       *prometheus.CounterVec
	jobDuration     *prometheus.HistogramVec
	rowsTotal       *prometheus.CounterVec
	sectionsCreated prometheus.Counter
	rollbacksTotal  prometheus.Counter
	queueDepth      prometheus.Gauge
}

// NewMetricsService registers the pipeline collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	jobsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_jobs_total",
		Help: "Import jobs by kind and terminal status",
	}, []string{"kind", "status"})

	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "import_job_duration_seconds",
		Help:    "Wall-clock duration of import jobs",
		Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
	}, []string{"kind"})

	rowsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "import_rows_total",
		Help: "Processed rows by kind and outcome",
	}, []string{"kind", "outcome"})

	sectionsCreated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "import_sections_created_total",
		Help: "Sections auto-created during allocation",
	})

	rollbacksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "import_rollbacks_total",
		Help: "Completed rollback operations",
	})

	queueDepth := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "import_queue_depth",
		Help: "Jobs waiting in the worker queue",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, jobsTotal, jobDuration, rowsTotal, sectionsCreated, rollbacksTotal, queueDepth, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		jobsTotal:       jobsTotal,
		jobDuration:     jobDuration,
		rowsTotal:       rowsTotal,
		sectionsCreated: sectionsCreated,
		rollbacksTotal:  rollbacksTotal,
		queueDepth:      queueDepth,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveJob records one finished job with its per-row outcomes.
func (m *MetricsService) ObserveJob(kind, status string, successRows, failedRows int, duration time.Duration) {
	if m == nil {
		return
	}
	m.jobsTotal.WithLabelValues(kind, status).Inc()
	m.jobDuration.WithLabelValues(kind).Observe(duration.Seconds())
	m.rowsTotal.WithLabelValues(kind, "created").Add(float64(successRows))
	m.rowsTotal.WithLabelValues(kind, "rejected").Add(float64(failedRows))
}

// ObserveSectionsCreated counts sections opened by the allocator.
func (m *MetricsService) ObserveSectionsCreated(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sectionsCreated.Add(float64(count))
}

// ObserveRollback counts one completed rollback.
func (m *MetricsService) ObserveRollback() {
	if m == nil {
		return
	}
	m.rollbacksTotal.Inc()
}

// SetQueueDepth reports current queue backlog.
func (m *MetricsService) SetQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(depth))
}
