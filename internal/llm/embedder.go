package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/config"
	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Embedder wraps langchaingo embeddings with dimension validation.
type Embedder struct {
	model     embeddings.Embedder
	dimension int
	modelName string
	metrics   *metrics.Collector
}

// NewEmbedder creates an embedder based on configuration.
func NewEmbedder(cfg *config.Config, collector *metrics.Collector) (*Embedder, error) {
	var client embeddings.EmbedderClient

	switch cfg.EmbedProvider {
	case config.ProviderOllama:
		llm, err := ollama.New(
			ollama.WithModel(cfg.EmbedModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		client = llm

	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		llm, err := openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithEmbeddingModel(cfg.EmbedModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		client = llm

	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.EmbedProvider)
	}

	model, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("create %s embedder: %w", cfg.EmbedProvider, err)
	}

	return NewEmbedderFrom(model, cfg.EmbedModel, cfg.EmbedDimension, collector), nil
}

// NewEmbedderFrom wraps an existing langchaingo embedder.
// A dimension of zero disables validation.
func NewEmbedderFrom(model embeddings.Embedder, name string, dimension int, collector *metrics.Collector) *Embedder {
	return &Embedder{
		model:     model,
		dimension: dimension,
		modelName: name,
		metrics:   collector,
	}
}

// Embed generates an embedding vector for text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	textLen := len(text)
	slog.Debug("embedding text", "model", e.modelName, "text_len", textLen)

	start := time.Now()
	vector, err := e.model.EmbedQuery(ctx, text)
	duration := time.Since(start)

	if err != nil {
		slog.Warn("embedding failed", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds(), "error", err)
		return nil, fmt.Errorf("embed: %w", wrapFatalError(err))
	}
	if len(vector) == 0 {
		return nil, errors.New("no embedding returned")
	}
	if e.dimension > 0 && len(vector) != e.dimension {
		return nil, fmt.Errorf("dimension mismatch: got %d, want %d", len(vector), e.dimension)
	}

	if e.metrics != nil {
		e.metrics.RecordTiming(metrics.OpEmbedding, duration)
	}
	slog.Debug("embedding complete", "model", e.modelName, "text_len", textLen, "duration_ms", duration.Milliseconds())
	return vector, nil
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.modelName
}

// Dimension returns the expected embedding dimension.
func (e *Embedder) Dimension() int {
	return e.dimension
}
