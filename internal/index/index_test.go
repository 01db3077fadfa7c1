package index

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// keywordEmbedder maps text onto a fixed vocabulary so similarity is predictable.
type keywordEmbedder struct {
	vocab []string
	err   error
}

func (e keywordEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float32, len(e.vocab))
	lower := strings.ToLower(text)
	for i, w := range e.vocab {
		v[i] = float32(strings.Count(lower, w))
	}
	return v, nil
}

var vocab = []string{"thesis", "evidence", "grammar", "citation"}

func TestMemoryUpsertAndQuery(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(keywordEmbedder{vocab: vocab}, nil)

	_, err := idx.Upsert(ctx, "criteria_essay", "Thesis is clear. Evidence supports the thesis.", map[string]any{"source": "current_assignment"})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, "criteria_grammar", "Grammar and spelling are correct.", nil)
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, "criteria_refs", "Every citation follows APA.", nil)
	require.NoError(t, err)

	matches := idx.Query(ctx, "my thesis and evidence", 2)
	require.Len(t, matches, 2)
	assert.Equal(t, "criteria_essay", matches[0].ID)
	assert.Equal(t, "Thesis is clear. Evidence supports the thesis.", matches[0].Text)
	assert.Equal(t, "current_assignment", matches[0].Metadata["source"])
	assert.Equal(t, models.PassageType, matches[0].Metadata["type"])
	assert.NotContains(t, matches[0].Metadata, "text")
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
}

func TestMemoryUpsertOverwrites(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(keywordEmbedder{vocab: vocab}, nil)

	_, err := idx.Upsert(ctx, "criteria_unknown", "grammar", nil)
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, "criteria_unknown", "citation", nil)
	require.NoError(t, err)

	assert.Equal(t, 1, idx.Len())
	matches := idx.Query(ctx, "citation", 5)
	require.Len(t, matches, 1)
	assert.Equal(t, "citation", matches[0].Text)
}

func TestMemoryTruncatesStoredText(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(keywordEmbedder{vocab: vocab}, nil)

	long := strings.Repeat("é", models.MaxPassageText+50)
	_, err := idx.Upsert(ctx, "long", long, nil)
	require.NoError(t, err)

	matches := idx.Query(ctx, "anything", 1)
	require.Len(t, matches, 1)
	assert.Equal(t, strings.Repeat("é", models.MaxPassageText), matches[0].Text)
}

func TestMemoryQueryNeverFails(t *testing.T) {
	ctx := context.Background()

	t.Run("embedding outage", func(t *testing.T) {
		idx := NewMemory(keywordEmbedder{vocab: vocab, err: errors.New("connection refused")}, nil)
		matches := idx.Query(ctx, "thesis", 3)
		assert.NotNil(t, matches)
		assert.Empty(t, matches)
	})

	t.Run("empty index", func(t *testing.T) {
		idx := NewMemory(keywordEmbedder{vocab: vocab}, nil)
		assert.Empty(t, idx.Query(ctx, "thesis", 3))
	})

	t.Run("non positive k", func(t *testing.T) {
		idx := NewMemory(keywordEmbedder{vocab: vocab}, nil)
		_, err := idx.Upsert(ctx, "a", "thesis", nil)
		require.NoError(t, err)
		assert.Empty(t, idx.Query(ctx, "thesis", 0))
	})
}

func TestMemoryUpsertEmbeddingError(t *testing.T) {
	idx := NewMemory(keywordEmbedder{err: errors.New("quota exceeded")}, nil)
	_, err := idx.Upsert(context.Background(), "a", "text", nil)
	assert.Error(t, err)
}

func TestMemoryConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(keywordEmbedder{vocab: vocab}, nil)

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				_, _ = idx.Upsert(ctx, "shared", "thesis evidence", nil)
			} else {
				_ = idx.Query(ctx, "thesis", 3)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 1, idx.Len())
}

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1}, []float32{1, 2}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, cosine(tt.a, tt.b), 1e-9)
		})
	}
}

// fakeStore is an in-memory PassageStore.
type fakeStore struct {
	upserts   map[string]map[string]any
	passages  []models.Passage
	searchErr error
}

func (f *fakeStore) UpsertPassage(_ context.Context, collection, id string, _ []float32, metadata map[string]any) error {
	if f.upserts == nil {
		f.upserts = map[string]map[string]any{}
	}
	f.upserts[collection+"/"+id] = metadata
	return nil
}

func (f *fakeStore) SearchPassages(context.Context, string, []float32, int) ([]models.Passage, error) {
	return f.passages, f.searchErr
}

func TestSurrealUpsert(t *testing.T) {
	store := &fakeStore{}
	idx := NewSurreal(store, keywordEmbedder{vocab: vocab}, "homework-marker")

	id, err := idx.Upsert(context.Background(), "criteria_essay", "thesis", map[string]any{"assignment_id": "essay"})
	require.NoError(t, err)
	assert.Equal(t, "criteria_essay", id)

	meta := store.upserts["homework-marker/criteria_essay"]
	require.NotNil(t, meta)
	assert.Equal(t, "thesis", meta["text"])
	assert.Equal(t, models.PassageType, meta["type"])
	assert.Equal(t, "essay", meta["assignment_id"])
}

func TestSurrealQuery(t *testing.T) {
	store := &fakeStore{passages: []models.Passage{{
		ID:       surrealmodels.NewRecordID("passage", "homework-marker/criteria_essay"),
		Key:      "criteria_essay",
		Score:    0.91,
		Metadata: map[string]any{"text": "thesis", "type": models.PassageType},
	}}}
	idx := NewSurreal(store, keywordEmbedder{vocab: vocab}, "homework-marker")

	matches := idx.Query(context.Background(), "thesis", 3)
	require.Len(t, matches, 1)
	assert.Equal(t, Match{
		ID:       "criteria_essay",
		Score:    0.91,
		Text:     "thesis",
		Metadata: map[string]any{"type": models.PassageType},
	}, matches[0])
}

func TestSurrealQueryBackendOutage(t *testing.T) {
	store := &fakeStore{searchErr: errors.New("connection closed")}
	idx := NewSurreal(store, keywordEmbedder{vocab: vocab}, "homework-marker")

	matches := idx.Query(context.Background(), "thesis", 3)
	assert.NotNil(t, matches)
	assert.Empty(t, matches)
}
