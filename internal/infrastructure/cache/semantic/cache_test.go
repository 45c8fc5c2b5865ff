package semantic

import (
	"testing"
	"time"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

func TestLookupMatchesSimilarQueryInSameScope(t *testing.T) {
	cache := New(10, time.Minute, 0.95)
	scope := domain.Scope{SessionID: "s1"}
	cache.Store(scope, "", []float32{1, 0, 0}, &domain.QueryResult{RunID: "r1", Answer: "Maria"})

	hit, ok := cache.Lookup(scope, "", []float32{0.99, 0.05, 0})
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if hit.RunID != "r1" || !hit.CacheHit {
		t.Fatalf("unexpected hit %+v", hit)
	}

	if _, ok := cache.Lookup(scope, "", []float32{0, 1, 0}); ok {
		t.Fatalf("expected miss for dissimilar query")
	}
	if _, ok := cache.Lookup(domain.Scope{SessionID: "s2"}, "", []float32{1, 0, 0}); ok {
		t.Fatalf("expected miss across scopes")
	}
}

func TestStoreDoesNotOverwriteExistingEntry(t *testing.T) {
	cache := New(10, time.Minute, 0.95)
	scope := domain.Scope{SessionID: "s1"}
	cache.Store(scope, "", []float32{1, 0}, &domain.QueryResult{RunID: "first"})
	cache.Store(scope, "", []float32{1, 0}, &domain.QueryResult{RunID: "second"})

	hit, ok := cache.Lookup(scope, "", []float32{1, 0})
	if !ok || hit.RunID != "first" {
		t.Fatalf("expected first entry to be kept, got %+v", hit)
	}
	if cache.Len() != 1 {
		t.Fatalf("expected one entry, got %d", cache.Len())
	}
}

func TestEntriesExpireAfterTTL(t *testing.T) {
	cache := New(10, 20*time.Millisecond, 0.95)
	scope := domain.Scope{SessionID: "s1"}
	cache.Store(scope, "", []float32{1, 0}, &domain.QueryResult{RunID: "r1"})

	time.Sleep(60 * time.Millisecond)
	if _, ok := cache.Lookup(scope, "", []float32{1, 0}); ok {
		t.Fatalf("expected entry to expire")
	}
}

func TestInvalidateScopeRemovesSessionEntries(t *testing.T) {
	cache := New(10, time.Minute, 0.95)
	cache.Store(domain.Scope{SessionID: "s1"}, "", []float32{1, 0}, &domain.QueryResult{RunID: "a"})
	cache.Store(domain.Scope{SessionID: "s1", DocumentIDs: []string{"d1"}}, "", []float32{0, 1}, &domain.QueryResult{RunID: "b"})
	cache.Store(domain.Scope{SessionID: "s2"}, "", []float32{1, 0}, &domain.QueryResult{RunID: "c"})

	if removed := cache.InvalidateScope(domain.Scope{SessionID: "s1"}); removed != 2 {
		t.Fatalf("expected 2 removed, got %d", removed)
	}
	if _, ok := cache.Lookup(domain.Scope{SessionID: "s2"}, "", []float32{1, 0}); !ok {
		t.Fatalf("expected other session to be kept")
	}
}

func TestStructureOverrideIsSeparatePartition(t *testing.T) {
	cache := New(10, time.Minute, 0.95)
	scope := domain.Scope{SessionID: "s1"}
	cache.Store(scope, "", []float32{1, 0}, &domain.QueryResult{
		RunID:      "default",
		Structured: domain.StructuredOutput{Structure: "candidate_profile"},
	})

	if _, ok := cache.Lookup(scope, "risk_view", []float32{1, 0}); ok {
		t.Fatalf("expected miss for a different structure override")
	}
	cache.Store(scope, "risk_view", []float32{1, 0}, &domain.QueryResult{
		RunID:      "risk",
		Structured: domain.StructuredOutput{Structure: "risk_view"},
	})
	hit, ok := cache.Lookup(scope, "risk_view", []float32{1, 0})
	if !ok || hit.Structured.Structure != "risk_view" {
		t.Fatalf("expected risk_view entry, got %+v", hit)
	}
	if hit, ok := cache.Lookup(scope, "", []float32{1, 0}); !ok || hit.RunID != "default" {
		t.Fatalf("expected default entry to survive, got %+v", hit)
	}
	if removed := cache.InvalidateScope(scope); removed != 2 {
		t.Fatalf("expected both partitions dropped, got %d", removed)
	}
}
