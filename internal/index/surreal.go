package index

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/raphaelgruber/homework-marker/internal/models"
)

// PassageStore is the persistence needed by Surreal. *db.Client implements it.
type PassageStore interface {
	UpsertPassage(ctx context.Context, collection, id string, embedding []float32, metadata map[string]any) error
	SearchPassages(ctx context.Context, collection string, embedding []float32, k int) ([]models.Passage, error)
}

// Surreal is an index backed by a SurrealDB HNSW vector index.
// Entries are scoped to a collection so several deployments can share a database.
type Surreal struct {
	store      PassageStore
	embedder   Embedder
	collection string
}

// NewSurreal creates an index over store.
func NewSurreal(store PassageStore, embedder Embedder, collection string) *Surreal {
	return &Surreal{store: store, embedder: embedder, collection: collection}
}

// Upsert implements Index.
func (s *Surreal) Upsert(ctx context.Context, id, text string, metadata map[string]any) (string, error) {
	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("upsert %s: %w", id, err)
	}
	if err := s.store.UpsertPassage(ctx, s.collection, id, vector, storedMetadata(text, metadata)); err != nil {
		return "", fmt.Errorf("upsert %s: %w", id, err)
	}
	slog.Debug("passage indexed", "id", id, "backend", "surrealdb", "collection", s.collection)
	return id, nil
}

// Query implements Index.
func (s *Surreal) Query(ctx context.Context, text string, k int) []Match {
	if k <= 0 {
		return []Match{}
	}

	vector, err := s.embedder.Embed(ctx, text)
	if err != nil {
		slog.Warn("index query failed", "backend", "surrealdb", "error", err)
		return []Match{}
	}

	passages, err := s.store.SearchPassages(ctx, s.collection, vector, k)
	if err != nil {
		slog.Warn("index query failed", "backend", "surrealdb", "error", err)
		return []Match{}
	}

	matches := make([]Match, 0, len(passages))
	for _, p := range passages {
		matches = append(matches, toMatch(p.Key, p.Score, p.Metadata))
	}
	return matches
}
