package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/config"
	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/observability/metrics"
)

type queryRunnerFake struct {
	result *domain.QueryResult
	err    error
	got    []domain.QueryRequest
}

func (f *queryRunnerFake) RunQuery(_ context.Context, req domain.QueryRequest) (*domain.QueryResult, error) {
	f.got = append(f.got, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type runReaderFake struct {
	runs map[string]*domain.QueryRun
	err  error
}

func (f runReaderFake) GetRun(_ context.Context, id string) (*domain.QueryRun, error) {
	if f.err != nil {
		return nil, f.err
	}
	run, ok := f.runs[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRunNotFound, "get run", errors.New(id))
	}
	return run, nil
}

func newTestHandler(t *testing.T, cfg config.Config, query *queryRunnerFake, runs runReaderFake) http.Handler {
	t.Helper()
	router, err := NewRouter(cfg, query, runs, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	return router.Handler()
}

func postQuery(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}

func TestRunQueryReturnsResult(t *testing.T) {
	query := &queryRunnerFake{result: &domain.QueryResult{
		RunID:     "run-1",
		Answer:    "Maria has 6 years of Go.",
		Decision:  domain.DecisionSend,
		QueryType: domain.QueryTypeSingleCandidate,
	}}
	handler := newTestHandler(t, config.Config{}, query, runReaderFake{})

	res := postQuery(t, handler, map[string]any{
		"question": "What is Maria's experience?",
		"scope":    map[string]any{"session_id": "s-1", "document_ids": []string{"d-1"}},
		"top_k":    7,
	})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}

	var got domain.QueryResult
	if err := json.Unmarshal(res.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.RunID != "run-1" || got.Decision != domain.DecisionSend {
		t.Fatalf("unexpected result: %+v", got)
	}
	if len(query.got) != 1 {
		t.Fatalf("expected one pipeline call, got %d", len(query.got))
	}
	req := query.got[0]
	if req.Scope.SessionID != "s-1" || len(req.Scope.DocumentIDs) != 1 || req.TopK != 7 {
		t.Fatalf("request not decoded: %+v", req)
	}
}

func TestRunQueryRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{name: "missing question", body: map[string]any{"top_k": 3}},
		{name: "unknown structure", body: map[string]any{"question": "who knows go", "structure": "poem"}},
		{name: "threshold above one", body: map[string]any{"question": "who knows go", "score_threshold": 1.5}},
		{name: "bad history role", body: map[string]any{
			"question": "and her?",
			"history":  []map[string]string{{"role": "system", "content": "x"}},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			query := &queryRunnerFake{result: &domain.QueryResult{}}
			handler := newTestHandler(t, config.Config{}, query, runReaderFake{})

			res := postQuery(t, handler, tc.body)
			if res.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", res.Code, res.Body.String())
			}
			if len(query.got) != 0 {
				t.Fatalf("pipeline must not run on invalid input")
			}
		})
	}
}

func TestRunQueryMapsDomainErrors(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{name: "invalid input", err: domain.WrapError(domain.ErrInvalidInput, "run query", errors.New("bad")), status: http.StatusBadRequest},
		{name: "unavailable", err: domain.WrapError(domain.ErrUnavailable, "embed", errors.New("down")), status: http.StatusServiceUnavailable},
		{name: "temporary", err: domain.WrapError(domain.ErrTemporary, "search", errors.New("timeout")), status: http.StatusServiceUnavailable},
		{name: "deadline", err: context.DeadlineExceeded, status: http.StatusGatewayTimeout},
		{name: "unknown", err: errors.New("boom"), status: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			handler := newTestHandler(t, config.Config{}, &queryRunnerFake{err: tc.err}, runReaderFake{})

			res := postQuery(t, handler, map[string]any{"question": "who knows kubernetes?"})
			if res.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, res.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(res.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body["error"] == "" {
				t.Fatalf("expected error message")
			}
			if tc.status == http.StatusInternalServerError && strings.Contains(body["error"], "boom") {
				t.Fatalf("internal error details leaked: %q", body["error"])
			}
		})
	}
}

func TestGetRun(t *testing.T) {
	runs := runReaderFake{runs: map[string]*domain.QueryRun{
		"run-7": {ID: "run-7", Question: "Compare Maria and Ivan", Decision: domain.DecisionSendWithDisclaimer},
	}}
	handler := newTestHandler(t, config.Config{}, &queryRunnerFake{}, runs)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/runs/run-7", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var run domain.QueryRun
	if err := json.Unmarshal(res.Body.Bytes(), &run); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if run.ID != "run-7" || run.Decision != domain.DecisionSendWithDisclaimer {
		t.Fatalf("unexpected run: %+v", run)
	}

	missing := httptest.NewRecorder()
	handler.ServeHTTP(missing, httptest.NewRequest(http.MethodGet, "/v1/runs/run-404", nil))
	if missing.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &queryRunnerFake{}, runReaderFake{})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/query", nil))
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", res.Code)
	}
}

func TestHealthzAndOpenAPIDocument(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &queryRunnerFake{}, runReaderFake{})

	health := httptest.NewRecorder()
	handler.ServeHTTP(health, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if health.Code != http.StatusOK {
		t.Fatalf("healthz expected 200, got %d", health.Code)
	}

	doc := httptest.NewRecorder()
	handler.ServeHTTP(doc, httptest.NewRequest(http.MethodGet, "/v1/openapi.yaml", nil))
	if doc.Code != http.StatusOK {
		t.Fatalf("openapi expected 200, got %d", doc.Code)
	}
	if !strings.Contains(doc.Body.String(), "/v1/query:") {
		t.Fatalf("openapi document does not describe the query route")
	}
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	httpMetrics := metrics.NewHTTPServerMetrics("candidate-rag-test")
	router, err := NewRouter(config.Config{}, &queryRunnerFake{result: &domain.QueryResult{RunID: "r"}}, runReaderFake{}, httpMetrics, nil)
	if err != nil {
		t.Fatalf("new router: %v", err)
	}
	handler := router.Handler()

	postQuery(t, handler, map[string]any{"question": "who knows go?"})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("metrics expected 200, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "/v1/query") {
		t.Fatalf("expected query path in metrics output")
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	handler := newTestHandler(t, config.Config{}, &queryRunnerFake{}, runReaderFake{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(requestIDHeader, "req-42")
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if got := res.Header().Get(requestIDHeader); got != "req-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}
