package index

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
)

type memoryEntry struct {
	vector   []float32
	metadata map[string]any
}

// Memory is an in-process index using brute-force cosine similarity.
type Memory struct {
	embedder Embedder
	metrics  *metrics.Collector

	mu      sync.RWMutex
	entries map[string]memoryEntry
}

// NewMemory creates an empty in-memory index.
func NewMemory(embedder Embedder, collector *metrics.Collector) *Memory {
	return &Memory{
		embedder: embedder,
		metrics:  collector,
		entries:  make(map[string]memoryEntry),
	}
}

// Upsert implements Index.
func (m *Memory) Upsert(ctx context.Context, id, text string, metadata map[string]any) (string, error) {
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", id, err)
	}

	m.mu.Lock()
	m.entries[id] = memoryEntry{vector: vector, metadata: storedMetadata(text, metadata)}
	m.mu.Unlock()

	slog.Debug("passage indexed", "id", id, "backend", "memory")
	return id, nil
}

// Query implements Index.
func (m *Memory) Query(ctx context.Context, text string, k int) []Match {
	if k <= 0 {
		return []Match{}
	}

	start := time.Now()
	vector, err := m.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("index query failed", "backend", "memory", "error", err)
		return []Match{}
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for id, e := range m.entries {
		matches = append(matches, toMatch(id, cosine(vector, e.vector), e.metadata))
	}
	m.mu.RUnlock()

	slices.SortFunc(matches, func(a, b Match) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if len(matches) > k {
		matches = matches[:k]
	}

	if m.metrics != nil {
		m.metrics.RecordTiming(metrics.OpDBSearch, time.Since(start))
	}
	return matches
}

// Len returns the number of stored passages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// cosine returns the cosine similarity of a and b, or 0 when undefined.
func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
