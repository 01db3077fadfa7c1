package app

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/homework-marker/internal/config"
	"github.com/raphaelgruber/homework-marker/internal/index"
	"github.com/raphaelgruber/homework-marker/internal/redisstore"
)

func testConfig() *config.Config {
	return &config.Config{
		LLMProvider:    config.ProviderOllama,
		LLMModel:       "llama3",
		EmbedProvider:  config.ProviderOllama,
		EmbedModel:     "nomic-embed-text",
		EmbedDimension: 768,
		OllamaHost:     "http://127.0.0.1:1",
		UploadFolder:   "uploads",
		IndexBackend:   config.BackendMemory,
		JobStore:       config.BackendMemory,
		Workers:        2,
		QueueSize:      4,
	}
}

func TestNewMemoryBackends(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, testConfig(), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	assert.IsType(t, &index.Memory{}, a.Index)
	assert.Nil(t, a.Store)
	assert.NotNil(t, a.Pipeline)
	assert.NotNil(t, a.Metrics)

	m := a.NewJobManager()
	assert.Equal(t, 2, m.Workers())
	assert.NoError(t, a.WipeData(ctx))
}

func TestNewRedisJobStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	cfg := testConfig()
	cfg.JobStore = config.BackendRedis
	cfg.RedisAddr = mr.Addr()

	a, err := New(ctx, cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close(ctx) })

	assert.IsType(t, &redisstore.Store{}, a.Store)
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown index", func(c *config.Config) { c.IndexBackend = "pinecone" }, "unsupported index backend"},
		{"unknown store", func(c *config.Config) { c.JobStore = "etcd" }, "unsupported job store"},
		{"unknown llm", func(c *config.Config) { c.LLMProvider = "palm" }, "init model"},
		{"unknown embedder", func(c *config.Config) { c.EmbedProvider = "palm" }, "init embedder"},
		{"openai without key", func(c *config.Config) { c.LLMProvider = config.ProviderOpenAI }, "OpenAI API key required"},
		{"redis unreachable", func(c *config.Config) {
			c.JobStore = config.BackendRedis
			c.RedisAddr = "127.0.0.1:1"
		}, "connect to redis"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)

			_, err := New(context.Background(), cfg, nil, nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
