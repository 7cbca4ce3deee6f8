package observability

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the playground
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestSize      *prometheus.HistogramVec
	httpResponseSize     *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge

	// Pipeline metrics
	pipelineRunsTotal       *prometheus.CounterVec
	pipelineStageDuration   *prometheus.HistogramVec
	pipelineStageErrors     *prometheus.CounterVec
	pipelineStaleTotal      *prometheus.CounterVec
	pipelineGeneration      prometheus.Gauge
	pipelineModules         prometheus.Gauge
	pipelineChunks          prometheus.Gauge
	pipelineDiagnostics     prometheus.Gauge
	fragmentWritesTotal     *prometheus.CounterVec
	diagnosticsAppliedTotal *prometheus.CounterVec

	// Realtime metrics
	realtimeConnections      prometheus.Gauge
	realtimeMessagesTotal    *prometheus.CounterVec
	realtimeConnectionErrors *prometheus.CounterVec

	// System metrics
	systemUptime prometheus.Gauge
}

var (
	metricsOnce     sync.Once
	metricsInstance *Metrics
)

// NewMetrics creates and registers all Prometheus metrics. Registration
// happens once per process; later calls return the same instance.
func NewMetrics() *Metrics {
	metricsOnce.Do(func() {
		metricsInstance = newMetrics()
	})
	return metricsInstance
}

func newMetrics() *Metrics {
	return &Metrics{
		// HTTP metrics
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path", "status"},
		),
		httpRequestSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path"},
		),
		httpResponseSize: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: prometheus.ExponentialBuckets(100, 10, 8),
			},
			[]string{"method", "path", "status"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_http_requests_in_flight",
				Help: "Current number of HTTP requests being processed",
			},
		),

		// Pipeline metrics
		pipelineRunsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_pipeline_runs_total",
				Help: "Total number of pipeline runs by outcome",
			},
			[]string{"outcome"},
		),
		pipelineStageDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "playground_pipeline_stage_duration_seconds",
				Help:    "Duration of compile and bundle stages in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"stage", "status"},
		),
		pipelineStageErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_pipeline_stage_errors_total",
				Help: "Total number of failed compile and bundle stages",
			},
			[]string{"stage"},
		),
		pipelineStaleTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_pipeline_stale_results_total",
				Help: "Total number of stage results dropped because a newer run superseded them",
			},
			[]string{"stage"},
		),
		pipelineGeneration: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_pipeline_generation",
				Help: "Latest pipeline run generation",
			},
		),
		pipelineModules: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_pipeline_modules",
				Help: "Number of modules in the displayed output",
			},
		),
		pipelineChunks: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_pipeline_chunks",
				Help: "Number of bundle chunks in the displayed output",
			},
		),
		pipelineDiagnostics: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_pipeline_diagnostics",
				Help: "Number of diagnostics in the displayed output",
			},
		),
		fragmentWritesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_fragment_writes_total",
				Help: "Total number of session fragment writes",
			},
			[]string{"status"},
		),
		diagnosticsAppliedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_diagnostics_applied_total",
				Help: "Total number of marker updates pushed to the editing surface",
			},
			[]string{"result"},
		),

		// Realtime metrics
		realtimeConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_realtime_connections",
				Help: "Current number of WebSocket connections",
			},
		),
		realtimeMessagesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_realtime_messages_total",
				Help: "Total number of realtime messages sent",
			},
			[]string{"message_type"},
		),
		realtimeConnectionErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "playground_realtime_connection_errors_total",
				Help: "Total number of WebSocket connection errors",
			},
			[]string{"error_type"},
		),

		// System metrics
		systemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "playground_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),
	}
}

// MetricsMiddleware returns a Fiber middleware that collects HTTP metrics
func (m *Metrics) MetricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		m.httpRequestsInFlight.Inc()
		defer m.httpRequestsInFlight.Dec()

		requestSize := len(c.Body())
		path := normalizePath(c.Path())
		method := c.Method()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := statusClass(c.Response().StatusCode())
		responseSize := len(c.Response().Body())

		m.httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		m.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
		m.httpResponseSize.WithLabelValues(method, path, status).Observe(float64(responseSize))

		return err
	}
}

// RecordStage records the duration of a compile or bundle stage
func (m *Metrics) RecordStage(stage string, duration time.Duration, err error) {
	status := "success"
	if err != nil {
		status = "error"
		m.pipelineStageErrors.WithLabelValues(stage).Inc()
	}
	m.pipelineStageDuration.WithLabelValues(stage, status).Observe(duration.Seconds())
}

// RecordRun records a finished pipeline run. outcome is one of
// published, compile_failed, bundle_failed or skipped.
func (m *Metrics) RecordRun(outcome string) {
	m.pipelineRunsTotal.WithLabelValues(outcome).Inc()
}

// RecordStale records a stage result discarded by the staleness guard
func (m *Metrics) RecordStale(stage string) {
	m.pipelineStaleTotal.WithLabelValues(stage).Inc()
}

// SetGeneration updates the latest minted generation
func (m *Metrics) SetGeneration(generation uint64) {
	m.pipelineGeneration.Set(float64(generation))
}

// UpdateOutputStats updates the sizes of the displayed output
func (m *Metrics) UpdateOutputStats(modules, chunks, diagnostics int) {
	m.pipelineModules.Set(float64(modules))
	m.pipelineChunks.Set(float64(chunks))
	m.pipelineDiagnostics.Set(float64(diagnostics))
}

// RecordFragmentWrite records a write to the fragment port
func (m *Metrics) RecordFragmentWrite(err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.fragmentWritesTotal.WithLabelValues(status).Inc()
}

// RecordDiagnosticsApplied records a marker update. applied is false when no
// surface was attached.
func (m *Metrics) RecordDiagnosticsApplied(applied bool) {
	result := "applied"
	if !applied {
		result = "skipped"
	}
	m.diagnosticsAppliedTotal.WithLabelValues(result).Inc()
}

// UpdateRealtimeStats updates realtime connection stats
func (m *Metrics) UpdateRealtimeStats(connections int) {
	m.realtimeConnections.Set(float64(connections))
}

// RecordRealtimeMessage records a realtime message sent
func (m *Metrics) RecordRealtimeMessage(messageType string) {
	m.realtimeMessagesTotal.WithLabelValues(messageType).Inc()
}

// RecordRealtimeError records a realtime connection error
func (m *Metrics) RecordRealtimeError(errorType string) {
	m.realtimeConnectionErrors.WithLabelValues(errorType).Inc()
}

// UpdateUptime updates the system uptime metric
func (m *Metrics) UpdateUptime(startTime time.Time) {
	m.systemUptime.Set(time.Since(startTime).Seconds())
}

// Handler returns a Fiber handler that exposes Prometheus metrics
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}

// normalizePath keeps label cardinality bounded
func normalizePath(path string) string {
	if len(path) > 50 {
		return "long_path"
	}
	return path
}

// statusClass returns the HTTP status class (2xx, 3xx, 4xx, 5xx)
func statusClass(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
