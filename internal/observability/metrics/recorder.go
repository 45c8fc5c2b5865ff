package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

// RecorderMetrics covers the worker that persists query.completed events
// into run history.
type RecorderMetrics struct {
	service  string
	registry *prometheus.Registry

	runs     *prometheus.CounterVec
	duration *prometheus.HistogramVec
	inFlight prometheus.Gauge
	lag      prometheus.Histogram
}

func NewRecorderMetrics(service string) *RecorderMetrics {
	constLabels := prometheus.Labels{"service": service}
	m := &RecorderMetrics{
		service:  service,
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "runs_total",
			Help:      "Query runs handled by the recorder, by pipeline decision and persistence status.",
		}, []string{"service", "decision", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recorder",
			Name:      "persist_duration_seconds",
			Help:      "Time spent writing one run to history.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"service", "status"}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "recorder",
			Name:        "in_flight",
			Help:        "Runs currently being persisted.",
			ConstLabels: constLabels,
		}),
		lag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Subsystem:   "recorder",
			Name:        "event_lag_seconds",
			Help:        "Delay between run completion in the API and the start of persistence.",
			Buckets:     []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
			ConstLabels: constLabels,
		}),
	}
	m.registry.MustRegister(m.runs, m.duration, m.inFlight, m.lag)
	return m
}

func (m *RecorderMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Track marks the start of persisting run and returns the callback that
// closes the observation. The lag is skipped for runs without a timestamp.
func (m *RecorderMetrics) Track(run domain.QueryRun) func(error) {
	started := time.Now()
	m.inFlight.Inc()
	if !run.CreatedAt.IsZero() {
		if lag := started.Sub(run.CreatedAt); lag >= 0 {
			m.lag.Observe(lag.Seconds())
		}
	}

	decision := string(run.Decision)
	if decision == "" {
		decision = "unknown"
	}
	return func(err error) {
		m.inFlight.Dec()
		status := "stored"
		if err != nil {
			status = "failed"
		}
		m.runs.WithLabelValues(m.service, decision, status).Inc()
		m.duration.WithLabelValues(m.service, status).Observe(time.Since(started).Seconds())
	}
}
