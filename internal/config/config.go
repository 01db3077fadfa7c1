// Package config loads runtime settings for the marking service and CLI.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Provider names accepted for the LLM and embedding backends.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderBedrock   = "bedrock"
)

// Backend names for the similarity index and job store.
const (
	BackendMemory    = "memory"
	BackendSurrealDB = "surrealdb"
	BackendRedis     = "redis"
)

// Config holds all configuration values. It is built once by Load and
// passed by reference to the components that need it.
type Config struct {
	// Language model
	LLMProvider     string
	LLMModel        string
	LLMTemperature  float64
	LLMMaxTokens    int
	OpenAIAPIKey    string
	AnthropicAPIKey string
	OllamaHost      string

	// Embeddings
	EmbedProvider  string
	EmbedModel     string
	EmbedDimension int

	// Uploads
	UploadFolder     string
	MaxContentLength int64

	// Similarity index and job persistence
	IndexBackend string
	IndexName    string
	JobStore     string

	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Redis connection
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Worker pool
	Workers   int
	QueueSize int

	// HTTP server
	ServerPort      string
	ShutdownTimeout time.Duration

	// CLI client
	ServerURL     string
	ClientTimeout time.Duration

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from the environment. A .env file in the working
// directory is loaded first when present; real environment variables win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		LLMProvider:     strings.ToLower(getEnv("MARKER_LLM_PROVIDER", ProviderOpenAI)),
		LLMModel:        getEnv("LLM_MODEL", "gpt-4"),
		LLMTemperature:  getEnvFloat("LLM_TEMPERATURE", 0.2),
		LLMMaxTokens:    getEnvInt("LLM_MAX_TOKENS", 1000),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),

		EmbedProvider:  strings.ToLower(getEnv("MARKER_EMBED_PROVIDER", ProviderOpenAI)),
		EmbedModel:     getEnv("MARKER_EMBED_MODEL", "text-embedding-ada-002"),
		EmbedDimension: getEnvInt("MARKER_EMBED_DIMENSION", 1536),

		UploadFolder:     getEnv("UPLOAD_FOLDER", "uploads"),
		MaxContentLength: int64(getEnvInt("MAX_CONTENT_LENGTH", 16*1024*1024)),

		IndexBackend: strings.ToLower(getEnv("MARKER_INDEX_BACKEND", BackendMemory)),
		IndexName:    getEnv("MARKER_INDEX_NAME", "homework-marker"),
		JobStore:     strings.ToLower(getEnv("MARKER_JOB_STORE", BackendMemory)),

		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "marker"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "marker"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		Workers:   getEnvInt("MARKER_WORKERS", 4),
		QueueSize: getEnvInt("MARKER_QUEUE_SIZE", 64),

		ServerPort:      getEnv("MARKER_SERVER_PORT", "8000"),
		ShutdownTimeout: getEnvDuration("MARKER_SHUTDOWN_TIMEOUT", 30*time.Second),

		ServerURL:     getEnv("MARKER_SERVER_URL", "http://localhost:8000"),
		ClientTimeout: getEnvDuration("MARKER_CLIENT_TIMEOUT", 2*time.Minute),

		LogFile:  getEnv("MARKER_LOG_FILE", "/tmp/marker.log"),
		LogLevel: parseLogLevel(getEnv("MARKER_LOG_LEVEL", "INFO")),
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return n
}

func getEnvFloat(key string, defaultVal float64) float64 {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		slog.Warn("invalid float in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", val, "default", defaultVal)
		return defaultVal
	}
	return d
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
