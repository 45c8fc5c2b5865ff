package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/core/ports"
	"github.com/kirillkom/candidate-rag/internal/observability/metrics"
)

const maxQueryBodyBytes = 1 << 20

type Router struct {
	cfg       config.Config
	query     ports.QueryRunner
	runs      ports.RunReader
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
	validator *requestValidator
}

// NewRouter builds the public API. httpMetrics and logger may be nil.
func NewRouter(
	cfg config.Config,
	query ports.QueryRunner,
	runs ports.RunReader,
	httpMetrics *metrics.HTTPServerMetrics,
	logger *slog.Logger,
) (*Router, error) {
	if query == nil {
		return nil, errors.New("query runner is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	validator, err := newRequestValidator()
	if err != nil {
		return nil, err
	}
	return &Router{
		cfg:       cfg,
		query:     query,
		runs:      runs,
		metrics:   httpMetrics,
		logger:    logger,
		validator: validator,
	}, nil
}

func (rt *Router) Handler() http.Handler {
	api := http.NewServeMux()
	api.HandleFunc("POST /v1/query", rt.runQuery)
	api.HandleFunc("GET /v1/runs/{run_id}", rt.getRun)

	var apiHandler http.Handler = rt.validator.middleware(api)
	apiHandler = backpressureMiddleware(apiHandler, rt.cfg.APIMaxInFlight, rt.cfg.APIBackpressureWait)
	apiHandler = rateLimitMiddleware(apiHandler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /v1/openapi.yaml", rt.openAPIDocument)
	mux.Handle("/v1/", apiHandler)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(handler, rt.logger)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) openAPIDocument(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) runQuery(w http.ResponseWriter, r *http.Request) {
	var req domain.QueryRequest
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxQueryBodyBytes))
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	result, err := rt.query.RunQuery(r.Context(), req)
	if err != nil {
		rt.writeDomainError(w, r, "query", err)
		return
	}
	noteQueryResult(r.Context(), result)
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) getRun(w http.ResponseWriter, r *http.Request) {
	if rt.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "run history is not configured")
		return
	}
	id := strings.TrimSpace(r.PathValue("run_id"))
	if id == "" {
		writeError(w, http.StatusBadRequest, "run id is required")
		return
	}

	run, err := rt.runs.GetRun(r.Context(), id)
	if err != nil {
		rt.writeDomainError(w, r, "get_run", err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, operation string, err error) {
	status := mapErrorToHTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"operation", operation,
			"status", status,
			"error_kind", domain.KindOf(err),
			"error", err,
		)
		message = fmt.Sprintf("%s failed", operation)
	}
	writeError(w, status, message)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
