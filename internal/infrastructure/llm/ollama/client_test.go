package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
	"github.com/kirillkom/candidate-rag/internal/infrastructure/resilience"
)

func testExecutor() *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		Retry: resilience.RetryPolicy{
			MaxAttempts:    3,
			InitialBackoff: time.Millisecond,
			MaxBackoff:     time.Millisecond,
			Multiplier:     2,
		},
	})
}

func TestCompletionSendsSystemAndUserMessages(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":" ### Answer\nok "},"prompt_eval_count":120,"eval_count":30}`))
	}))
	defer server.Close()

	completion := NewCompletion(New(server.URL, "gen", "embed", testExecutor()))
	out, err := completion.Generate(context.Background(), domain.CompletionRequest{
		System:      "system rules",
		User:        "question?",
		Temperature: 0.1,
		MaxTokens:   256,
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if out.Text != "### Answer\nok" {
		t.Fatalf("unexpected text %q", out.Text)
	}
	if out.PromptTokens != 120 || out.CompletionTokens != 30 {
		t.Fatalf("unexpected token usage %+v", out)
	}
	messages, _ := captured["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected system and user messages, got %v", captured["messages"])
	}
	options, _ := captured["options"].(map[string]any)
	if options["num_predict"] != float64(256) {
		t.Fatalf("expected num_predict 256, got %v", options["num_predict"])
	}
}

func TestCompletionIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	completion := NewCompletion(New(server.URL, "gen", "embed", testExecutor()))
	_, err := completion.Generate(context.Background(), domain.CompletionRequest{User: "q"})
	if !domain.IsKind(err, domain.ErrUnavailable) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
}

func TestEmbedRetriesAndIncludesHTTPBodyInError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model unavailable", http.StatusBadGateway)
	}))
	defer server.Close()

	embedder := NewEmbedder(New(server.URL, "gen", "embed", testExecutor()))
	_, err := embedder.Embed(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatalf("expected error")
	}
	if !strings.Contains(err.Error(), "model unavailable") {
		t.Fatalf("expected response body in error, got %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls.Load())
	}
}

func TestEntailmentJudgeNormalizesScores(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		_ = json.NewDecoder(r.Body).Decode(&payload)
		prompt, _ := payload["prompt"].(string)
		if !strings.Contains(prompt, "Maria has 5 years of Python") {
			t.Fatalf("hypothesis missing from prompt: %s", prompt)
		}
		_, _ = w.Write([]byte(`{"response":"Sure: {\"entailment\": 0.5, \"neutral\": 0.05, \"contradiction\": 0.05}"}`))
	}))
	defer server.Close()

	judge := NewEntailmentJudge(New(server.URL, "gen", "embed", testExecutor()))
	scores, err := judge.Classify(context.Background(), "Maria Garcia: Python developer, 5 years.", "Maria has 5 years of Python experience")
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if scores.Entailment < 0.83 || scores.Entailment > 0.84 {
		t.Fatalf("expected normalized entailment ~0.833, got %v", scores.Entailment)
	}
}
