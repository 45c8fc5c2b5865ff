package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestEndpointCallDecodesReply(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/rerank" || r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected request %s %s", r.URL.Path, r.Header.Get("Content-Type"))
		}
		_, _ = w.Write([]byte(`[{"index":0,"score":0.9}]`))
	}))
	defer server.Close()

	ep := NewEndpoint("tei", server.URL+"/", time.Second)
	var hits []struct {
		Index int     `json:"index"`
		Score float64 `json:"score"`
	}
	if err := ep.Post(context.Background(), "/rerank", map[string]string{"query": "go"}, &hits, "rerank"); err != nil {
		t.Fatalf("Post() error = %v", err)
	}
	if len(hits) != 1 || hits[0].Score != 0.9 {
		t.Fatalf("unexpected hits %+v", hits)
	}
}

func TestEndpointCallReportsStatusAndDecodeErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/broken" {
			_, _ = w.Write([]byte(`{"truncated":`))
			return
		}
		http.Error(w, "model loading", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	ep := NewEndpoint("ollama", server.URL, time.Second)

	err := ep.Post(context.Background(), "/api/embed", nil, &struct{}{}, "embed")
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusServiceUnavailable || statusErr.Service != "ollama" {
		t.Fatalf("expected 503 status error, got %v", err)
	}
	if !ClassifyHTTPError(err).Retryable {
		t.Fatalf("expected 503 to be retryable")
	}

	err = ep.Post(context.Background(), "/broken", nil, &struct{ Truncated string }{}, "chat")
	if !IsDecodeError(err) {
		t.Fatalf("expected decode error, got %v", err)
	}
}
