package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

func TestAskCommandCallsAPI(t *testing.T) {
	var got domain.QueryRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/query" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(domain.QueryResult{
			RunID:     "run-5",
			Answer:    "Ivan knows Kubernetes.",
			Decision:  domain.DecisionSend,
			QueryType: domain.QueryTypeSearch,
		})
	}))
	defer server.Close()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"ask", "--api", server.URL, "-s", "s-1", "-d", "d1,d2", "--structure", "search_results", "who", "knows", "kubernetes?"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if got.Text != "who knows kubernetes?" {
		t.Fatalf("question not joined: %q", got.Text)
	}
	if got.Scope.SessionID != "s-1" || len(got.Scope.DocumentIDs) != 2 || got.Structure != "search_results" {
		t.Fatalf("flags not mapped: %+v", got)
	}
	if !strings.Contains(out.String(), "Ivan knows Kubernetes.") {
		t.Fatalf("answer not rendered:\n%s", out.String())
	}
}

func TestAskCommandSurfacesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"rate limit exceeded"}`))
	}))
	defer server.Close()

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"ask", "--api", server.URL, "anything"})
	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "rate limit exceeded") {
		t.Fatalf("expected api error, got %v", err)
	}
}
