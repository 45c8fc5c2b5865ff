package metrics

import (
	"bufio"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

const namespace = "cvrag"

// HTTPServerMetrics covers the API surface and the question answering pipeline.
type HTTPServerMetrics struct {
	service  string
	registry *prometheus.Registry

	requestTotal    *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestInFlight prometheus.Gauge

	stageDuration    *prometheus.HistogramVec
	stageTotal       *prometheus.CounterVec
	queriesTotal     *prometheus.CounterVec
	attempts         *prometheus.HistogramVec
	cacheTotal       *prometheus.CounterVec
	guardrailTotal   *prometheus.CounterVec
	degradationTotal *prometheus.CounterVec
	llmTokensTotal   *prometheus.CounterVec
}

func NewHTTPServerMetrics(service string) *HTTPServerMetrics {
	registry := prometheus.NewRegistry()

	requestTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests processed.",
		},
		[]string{"service", "method", "path", "status"},
	)
	requestDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"service", "method", "path"},
	)
	requestInFlight := prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "in_flight_requests",
			Help:      "Number of in-flight HTTP requests.",
			ConstLabels: prometheus.Labels{
				"service": service,
			},
		},
	)
	stageDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_duration_seconds",
			Help:      "Pipeline stage duration in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"service", "stage"},
	)
	stageTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "stage_total",
			Help:      "Pipeline stage executions by status.",
		},
		[]string{"service", "stage", "status"},
	)
	queriesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "queries_total",
			Help:      "Answered questions by query type and final decision.",
		},
		[]string{"service", "query_type", "decision"},
	)
	attempts := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "generation_attempts",
			Help:      "Generation attempts per answered question.",
			Buckets:   []float64{1, 2, 3, 4, 5},
		},
		[]string{"service"},
	)
	cacheTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Semantic cache lookups by result.",
		},
		[]string{"service", "result"},
	)
	guardrailTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "guardrail",
			Name:      "decisions_total",
			Help:      "Guardrail decisions by method and outcome.",
		},
		[]string{"service", "method", "allowed"},
	)
	degradationTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "degradations_total",
			Help:      "Stages that fell back to a degraded path.",
		},
		[]string{"service", "stage", "reason"},
	)
	llmTokensTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "llm",
			Name:      "tokens_total",
			Help:      "Token usage by direction.",
		},
		[]string{"service", "direction"},
	)

	registry.MustRegister(
		requestTotal,
		requestDuration,
		requestInFlight,
		stageDuration,
		stageTotal,
		queriesTotal,
		attempts,
		cacheTotal,
		guardrailTotal,
		degradationTotal,
		llmTokensTotal,
	)

	return &HTTPServerMetrics{
		service:          service,
		registry:         registry,
		requestTotal:     requestTotal,
		requestDuration:  requestDuration,
		requestInFlight:  requestInFlight,
		stageDuration:    stageDuration,
		stageTotal:       stageTotal,
		queriesTotal:     queriesTotal,
		attempts:         attempts,
		cacheTotal:       cacheTotal,
		guardrailTotal:   guardrailTotal,
		degradationTotal: degradationTotal,
		llmTokensTotal:   llmTokensTotal,
	}
}

func (m *HTTPServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *HTTPServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		path := normalizePath(r.URL.Path)
		recorder := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		m.requestInFlight.Inc()
		defer m.requestInFlight.Dec()

		next.ServeHTTP(recorder, r)

		m.requestTotal.WithLabelValues(
			m.service,
			r.Method,
			path,
			strconv.Itoa(recorder.statusCode),
		).Inc()
		m.requestDuration.WithLabelValues(m.service, r.Method, path).Observe(time.Since(start).Seconds())
	})
}

func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, "/v1/runs/"):
		return "/v1/runs/{run_id}"
	default:
		return path
	}
}

func (m *HTTPServerMetrics) RecordStep(step domain.PipelineStep) {
	status := "success"
	if !step.Success {
		status = "error"
	}
	m.stageTotal.WithLabelValues(m.service, step.Name, status).Inc()
	m.stageDuration.WithLabelValues(m.service, step.Name).Observe(step.DurationMS / 1000)
}

func (m *HTTPServerMetrics) RecordOutcome(queryType domain.QueryType, decision domain.Decision, attempts int, cacheHit bool) {
	if queryType == "" {
		queryType = domain.QueryTypeGeneral
	}
	m.queriesTotal.WithLabelValues(m.service, string(queryType), string(decision)).Inc()
	if attempts > 0 {
		m.attempts.WithLabelValues(m.service).Observe(float64(attempts))
	}
	result := "miss"
	if cacheHit {
		result = "hit"
	}
	m.cacheTotal.WithLabelValues(m.service, result).Inc()
}

func (m *HTTPServerMetrics) RecordGuardrail(method string, allowed bool) {
	if method == "" {
		method = "unknown"
	}
	m.guardrailTotal.WithLabelValues(m.service, method, strconv.FormatBool(allowed)).Inc()
}

func (m *HTTPServerMetrics) RecordDegradation(stage, reason string) {
	if reason == "" {
		reason = "unknown"
	}
	m.degradationTotal.WithLabelValues(m.service, stage, reason).Inc()
}

func (m *HTTPServerMetrics) RecordTokenUsage(promptTokens, completionTokens int) {
	if promptTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "in").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.llmTokensTotal.WithLabelValues(m.service, "out").Add(float64(completionTokens))
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

func (w *statusRecorder) Flush() {
	flusher, ok := w.ResponseWriter.(http.Flusher)
	if ok {
		flusher.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not implement http.Hijacker")
	}
	return hijacker.Hijack()
}
