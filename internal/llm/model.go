// Package llm provides language model and embedding services using langchaingo.
package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/raphaelgruber/homework-marker/internal/config"
	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/bedrock"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Model wraps a langchaingo LLM with the configured sampling options.
type Model struct {
	llm         llms.Model
	modelName   string
	temperature float64
	maxTokens   int
	metrics     *metrics.Collector
}

// NewModel creates an LLM model based on configuration.
func NewModel(ctx context.Context, cfg *config.Config, collector *metrics.Collector) (*Model, error) {
	var model llms.Model
	var err error

	switch cfg.LLMProvider {
	case config.ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, errors.New("OpenAI API key required")
		}
		model, err = openai.New(
			openai.WithToken(cfg.OpenAIAPIKey),
			openai.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai model: %w", err)
		}

	case config.ProviderAnthropic:
		if cfg.AnthropicAPIKey == "" {
			return nil, errors.New("Anthropic API key required")
		}
		model, err = anthropic.New(
			anthropic.WithToken(cfg.AnthropicAPIKey),
			anthropic.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create anthropic model: %w", err)
		}

	case config.ProviderOllama:
		model, err = ollama.New(
			ollama.WithModel(cfg.LLMModel),
			ollama.WithServerURL(cfg.OllamaHost),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama model: %w", err)
		}

	case config.ProviderBedrock:
		awsCfg, awsErr := awsconfig.LoadDefaultConfig(ctx)
		if awsErr != nil {
			return nil, fmt.Errorf("load aws config: %w", awsErr)
		}
		model, err = bedrock.New(
			bedrock.WithClient(bedrockruntime.NewFromConfig(awsCfg)),
			bedrock.WithModel(cfg.LLMModel),
		)
		if err != nil {
			return nil, fmt.Errorf("create bedrock model: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.LLMProvider)
	}

	return NewModelFromLLM(model, cfg.LLMModel, cfg.LLMTemperature, cfg.LLMMaxTokens, collector), nil
}

// NewModelFromLLM wraps an already constructed langchaingo model.
func NewModelFromLLM(model llms.Model, name string, temperature float64, maxTokens int, collector *metrics.Collector) *Model {
	return &Model{
		llm:         model,
		modelName:   name,
		temperature: temperature,
		maxTokens:   maxTokens,
		metrics:     collector,
	}
}

// Generate sends a single user prompt and returns the completion text.
func (m *Model) Generate(ctx context.Context, prompt string) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	start := time.Now()
	response, err := m.llm.GenerateContent(ctx, messages,
		llms.WithTemperature(m.temperature),
		llms.WithMaxTokens(m.maxTokens),
	)
	duration := time.Since(start)
	if err != nil {
		slog.Warn("llm generate failed", "model", m.modelName, "duration_ms", duration.Milliseconds(), "error", err)
		return "", fmt.Errorf("generate: %w", wrapFatalError(err))
	}

	if len(response.Choices) == 0 {
		return "", errors.New("generate: no response choices")
	}

	choice := response.Choices[0]
	inputTokens := tokenCount(choice.GenerationInfo, "PromptTokens", "InputTokens", "input_tokens")
	outputTokens := tokenCount(choice.GenerationInfo, "CompletionTokens", "OutputTokens", "output_tokens")
	if m.metrics != nil {
		m.metrics.RecordLLMUsage(metrics.OpLLMGenerate, duration, inputTokens, outputTokens)
	}

	slog.Debug("llm generate complete",
		"model", m.modelName,
		"prompt_len", len(prompt),
		"response_len", len(choice.Content),
		"input_tokens", inputTokens,
		"output_tokens", outputTokens,
		"duration_ms", duration.Milliseconds())

	return choice.Content, nil
}

// Model returns the LLM model name.
func (m *Model) Model() string {
	return m.modelName
}

// tokenCount reads the first numeric value found under keys.
// Providers disagree on the key names.
func tokenCount(info map[string]any, keys ...string) int64 {
	for _, key := range keys {
		switch v := info[key].(type) {
		case int:
			return int64(v)
		case int32:
			return int64(v)
		case int64:
			return v
		case float64:
			return int64(v)
		}
	}
	return 0
}
