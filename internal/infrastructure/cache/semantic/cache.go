package semantic

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/kirillkom/candidate-rag/internal/core/domain"
)

type entry struct {
	scope     domain.Scope
	partition string
	vector    []float32
	result    *domain.QueryResult
}

// Cache returns a stored result when a new query embedding is close enough to
// one already answered in the same scope under the same structure. Entries are only inserted, never
// updated, and expire after the TTL.
type Cache struct {
	threshold float64

	mu  sync.Mutex
	lru *expirable.LRU[[32]byte, *entry]
}

func New(size int, ttl time.Duration, threshold float64) *Cache {
	if size <= 0 {
		size = 1000
	}
	if threshold <= 0 || threshold > 1 {
		threshold = 0.95
	}
	return &Cache{
		threshold: threshold,
		lru:       expirable.NewLRU[[32]byte, *entry](size, nil, ttl),
	}
}

func (c *Cache) Lookup(scope domain.Scope, structure string, vector []float32) (*domain.QueryResult, bool) {
	if len(vector) == 0 {
		return nil, false
	}
	partition := partitionKey(scope, structure)

	var (
		best      *entry
		bestScore float64
	)
	for _, e := range c.lru.Values() {
		if e == nil || e.partition != partition {
			continue
		}
		score := domain.CosineSimilarity(vector, e.vector)
		if score >= c.threshold && score > bestScore {
			best, bestScore = e, score
		}
	}
	if best == nil {
		return nil, false
	}

	hit := *best.result
	hit.CacheHit = true
	return &hit, true
}

func (c *Cache) Store(scope domain.Scope, structure string, vector []float32, result *domain.QueryResult) {
	if len(vector) == 0 || result == nil {
		return
	}
	partition := partitionKey(scope, structure)
	key := entryKey(partition, vector)

	stored := *result
	stored.CacheHit = false
	vec := make([]float32, len(vector))
	copy(vec, vector)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lru.Contains(key) {
		return
	}
	c.lru.Add(key, &entry{scope: scope, partition: partition, vector: vec, result: &stored})
}

// InvalidateScope drops entries of the session named by scope.
func (c *Cache) InvalidateScope(scope domain.Scope) int {
	removed := 0
	for _, key := range c.lru.Keys() {
		e, ok := c.lru.Peek(key)
		if !ok || e.scope.SessionID != scope.SessionID {
			continue
		}
		if c.lru.Remove(key) {
			removed++
		}
	}
	return removed
}

func (c *Cache) Len() int {
	return c.lru.Len()
}

// partitionKey separates answers assembled under an explicit structure from
// the default one chosen by query type.
func partitionKey(scope domain.Scope, structure string) string {
	return scope.Key() + "#" + strings.TrimSpace(structure)
}

func entryKey(partition string, vector []float32) [32]byte {
	h := sha256.New()
	_, _ = h.Write([]byte(partition))
	buf := make([]byte, 4)
	for _, x := range vector {
		binary.LittleEndian.PutUint32(buf, math.Float32bits(x))
		_, _ = h.Write(buf)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}
