package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/yungbote/learnmate-backend/internal/platform/logger"
)

// Metrics holds the prometheus collectors for the curriculum pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry      *prometheus.Registry
	stageDuration *prometheus.HistogramVec
	stageFallback *prometheus.CounterVec
	llmRequests   *prometheus.CounterVec
	llmLatency    *prometheus.HistogramVec
	generations   *prometheus.CounterVec
	apiRequests   *prometheus.CounterVec
	apiLatency    *prometheus.HistogramVec
	apiInflight   prometheus.Gauge
	backendCalls  *prometheus.HistogramVec
}

var (
	initOnce sync.Once
	instance *Metrics
)

func Current() *Metrics {
	return instance
}

// Init builds the process-wide metrics registry once.
func Init(log *logger.Logger) *Metrics {
	initOnce.Do(func() {
		instance = NewMetrics()
		if log != nil {
			log.Info("prometheus metrics initialized")
		}
	})
	return instance
}

// NewMetrics builds an independent registry. Tests use it directly.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		stageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "learnmate",
			Name:      "curriculum_stage_duration_seconds",
			Help:      "Curriculum pipeline stage duration by stage and status.",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"stage", "status"}),
		stageFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnmate",
			Name:      "curriculum_fallback_total",
			Help:      "Deterministic fallbacks taken, by component.",
		}, []string{"component"}),
		llmRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnmate",
			Name:      "llm_requests_total",
			Help:      "Completion service requests by path and status.",
		}, []string{"path", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "learnmate",
			Name:      "llm_request_duration_seconds",
			Help:      "Completion service latency by path.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 90},
		}, []string{"path"}),
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnmate",
			Name:      "curriculum_generations_total",
			Help:      "Curriculum generations by outcome (completed, recovered, fallback).",
		}, []string{"outcome"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "learnmate",
			Name:      "api_requests_total",
			Help:      "HTTP API requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		apiLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "learnmate",
			Name:      "api_request_duration_seconds",
			Help:      "HTTP API latency by method and route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		backendCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "learnmate",
			Name:      "backend_call_duration_seconds",
			Help:      "Calls to optional backends (vector, web, graph) by backend, operation and status.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"backend", "operation", "status"}),
		apiInflight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "learnmate",
			Name:      "api_inflight_requests",
			Help:      "HTTP API requests currently being served.",
		}),
	}
	reg.MustRegister(
		m.stageDuration, m.stageFallback, m.llmRequests, m.llmLatency, m.generations,
		m.apiRequests, m.apiLatency, m.apiInflight, m.backendCalls,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveStage(stage, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(stage, status).Observe(dur.Seconds())
}

func (m *Metrics) IncFallback(component string) {
	if m == nil {
		return
	}
	m.stageFallback.WithLabelValues(component).Inc()
}

func (m *Metrics) ObserveLLMRequest(path, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.llmRequests.WithLabelValues(path, status).Inc()
	m.llmLatency.WithLabelValues(path).Observe(dur.Seconds())
}

func (m *Metrics) IncGeneration(outcome string) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAPI(method, route, status string, dur time.Duration) {
	if m == nil {
		return
	}
	m.apiRequests.WithLabelValues(method, route, status).Inc()
	m.apiLatency.WithLabelValues(method, route).Observe(dur.Seconds())
}

func (m *Metrics) ApiInflightInc() {
	if m == nil {
		return
	}
	m.apiInflight.Inc()
}

func (m *Metrics) ApiInflightDec() {
	if m == nil {
		return
	}
	m.apiInflight.Dec()
}

func (m *Metrics) ObserveBackend(backend, operation string, err error, dur time.Duration) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.backendCalls.WithLabelValues(backend, operation, status).Observe(dur.Seconds())
}
