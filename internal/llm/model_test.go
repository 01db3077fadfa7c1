package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/raphaelgruber/homework-marker/internal/config"
	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"
)

// stubLLM records call options and returns a canned response.
type stubLLM struct {
	content string
	info    map[string]any
	err     error
	opts    llms.CallOptions
	prompt  string
}

func (s *stubLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	for _, o := range options {
		o(&s.opts)
	}
	if len(messages) > 0 && len(messages[0].Parts) > 0 {
		if tc, ok := messages[0].Parts[0].(llms.TextContent); ok {
			s.prompt = tc.Text
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: s.content, GenerationInfo: s.info}}}, nil
}

func (s *stubLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, s, prompt, options...)
}

func TestModelGenerate(t *testing.T) {
	stub := &stubLLM{
		content: "MARK: 85",
		info:    map[string]any{"PromptTokens": 120, "CompletionTokens": 30},
	}
	collector := metrics.NewCollector()
	model := NewModelFromLLM(stub, "gpt-4", 0.2, 1000, collector)

	out, err := model.Generate(context.Background(), "mark this")
	require.NoError(t, err)

	assert.Equal(t, "MARK: 85", out)
	assert.Equal(t, "mark this", stub.prompt)
	assert.InDelta(t, 0.2, stub.opts.Temperature, 1e-9)
	assert.Equal(t, 1000, stub.opts.MaxTokens)

	snap := collector.Snapshot()
	require.NotNil(t, snap.LLMGenerate)
	assert.Equal(t, int64(1), snap.LLMGenerate.Count)
	require.NotNil(t, snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(120), *snap.LLMGenerate.TotalInputTokens)
	assert.Equal(t, int64(30), *snap.LLMGenerate.TotalOutputTokens)
}

func TestModelGenerateErrors(t *testing.T) {
	t.Run("fatal provider error", func(t *testing.T) {
		model := NewModelFromLLM(&stubLLM{err: errors.New("HTTP 401: invalid api key")}, "gpt-4", 0.2, 1000, nil)
		_, err := model.Generate(context.Background(), "p")
		assert.ErrorIs(t, err, ErrFatalAPI)
	})

	t.Run("transient provider error", func(t *testing.T) {
		model := NewModelFromLLM(&stubLLM{err: errors.New("connection reset")}, "gpt-4", 0.2, 1000, nil)
		_, err := model.Generate(context.Background(), "p")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrFatalAPI)
	})
}

func TestNewModelRequiresKeys(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
	}{
		{"openai without key", config.Config{LLMProvider: config.ProviderOpenAI, LLMModel: "gpt-4"}},
		{"anthropic without key", config.Config{LLMProvider: config.ProviderAnthropic, LLMModel: "claude"}},
		{"unknown provider", config.Config{LLMProvider: "mystery"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewModel(context.Background(), &tt.cfg, nil)
			assert.Error(t, err)
		})
	}
}

func TestTokenCount(t *testing.T) {
	tests := []struct {
		name string
		info map[string]any
		want int64
	}{
		{"nil info", nil, 0},
		{"int", map[string]any{"PromptTokens": 12}, 12},
		{"float", map[string]any{"InputTokens": 7.0}, 7},
		{"fallback key", map[string]any{"input_tokens": int64(3)}, 3},
		{"non numeric", map[string]any{"PromptTokens": "12"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tokenCount(tt.info, "PromptTokens", "InputTokens", "input_tokens"))
		})
	}
}

func TestIsFatalAPIError(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		fatal bool
	}{
		{"nil error", nil, false},
		{"generic error", errors.New("connection reset"), false},
		{"credit balance", errors.New("insufficient credit balance"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"quota exceeded", errors.New("quota exceeded for model"), true},
		{"billing issue", errors.New("billing account inactive"), true},
		{"invalid api key", errors.New("Invalid API key"), true},
		{"authentication failed", errors.New("authentication failed"), true},
		{"unauthorized", errors.New("unauthorized request"), true},
		{"401 status", errors.New("HTTP 401: not allowed"), true},
		{"403 status", errors.New("HTTP 403: forbidden"), true},
		{"wrapped error", fmt.Errorf("embed: %w", errors.New("credit balance too low")), true},
		{"404 not fatal", errors.New("HTTP 404: not found"), false},
		{"timeout not fatal", errors.New("context deadline exceeded"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.fatal, isFatalAPIError(tt.err))
		})
	}
}

func TestWrapFatalError(t *testing.T) {
	t.Run("wraps fatal error", func(t *testing.T) {
		wrapped := wrapFatalError(errors.New("invalid api key provided"))
		assert.ErrorIs(t, wrapped, ErrFatalAPI)
	})

	t.Run("passes through non-fatal error", func(t *testing.T) {
		err := errors.New("network timeout")
		assert.Same(t, err, wrapFatalError(err))
	})

	t.Run("nil error", func(t *testing.T) {
		assert.NoError(t, wrapFatalError(nil))
	})
}
