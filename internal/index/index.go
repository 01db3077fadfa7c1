// Package index stores rubric passages as embeddings and answers
// nearest-neighbour queries over them.
package index

import (
	"context"
	"maps"

	"github.com/raphaelgruber/homework-marker/internal/models"
)

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Match is a query hit. Metadata never contains the "text" key; the stored
// text copy is surfaced as Text.
type Match struct {
	ID       string         `json:"id"`
	Score    float64        `json:"score"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
}

// Index is a similarity index over rubric passages.
type Index interface {
	// Upsert embeds text and stores it under id, replacing any previous entry.
	Upsert(ctx context.Context, id, text string, metadata map[string]any) (string, error)

	// Query returns up to k entries by descending cosine similarity.
	// Failures are logged and yield an empty result.
	Query(ctx context.Context, text string, k int) []Match
}

const (
	metaText = "text"
	metaType = "type"
)

// storedMetadata copies metadata and adds the truncated text and a default type.
func storedMetadata(text string, metadata map[string]any) map[string]any {
	out := make(map[string]any, len(metadata)+2)
	maps.Copy(out, metadata)
	out[metaText] = models.Truncate(text, models.MaxPassageText)
	if _, ok := out[metaType]; !ok {
		out[metaType] = models.PassageType
	}
	return out
}

// toMatch splits the stored text out of metadata.
func toMatch(id string, score float64, metadata map[string]any) Match {
	m := Match{ID: id, Score: score, Metadata: make(map[string]any, len(metadata))}
	for k, v := range metadata {
		if k == metaText {
			m.Text, _ = v.(string)
			continue
		}
		m.Metadata[k] = v
	}
	return m
}
