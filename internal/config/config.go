package config

import (
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config is the full environment-driven configuration, loaded once at
// process start.
type Config struct {
	Port      string
	LogLevel  string
	LogFormat string

	GeminiAPIKey   string
	OllamaBaseURL  string
	ImageRelayURL  string
	SearchBaseURL  string
	EmbeddingModel string
	JudgeModel     string

	RedisAddr        string
	QdrantHost       string
	QdrantPort       int
	QdrantCollection string
	CacheThreshold   float64

	RatePerMillionUSD float64

	// Waterfall stage bindings, provider/model per role.
	ArchitectProvider string
	ArchitectModel    string
	ReasonerProvider  string
	ReasonerModel     string
	ExecutorProvider  string
	ExecutorModel     string
	ReviewerProvider  string
	ReviewerModel     string
}

// Load reads .env.dev if present, then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(".env.dev"); err != nil {
		log.Println("Warning: .env.dev file not found, using system environment variables")
	}

	cfg := &Config{
		Port:      envOr("PORT", "8080"),
		LogLevel:  envOr("LOG_LEVEL", "info"),
		LogFormat: envOr("LOG_FORMAT", "console"),

		GeminiAPIKey:   os.Getenv("GEMINI_API_KEY"),
		OllamaBaseURL:  envOr("OLLAMA_BASE_URL", "http://127.0.0.1:11434"),
		ImageRelayURL:  envOr("IMAGE_RELAY_URL", "https://image.pollinations.ai"),
		SearchBaseURL:  os.Getenv("SEARCH_BASE_URL"),
		EmbeddingModel: envOr("EMBEDDING_MODEL", "text-embedding-004"),
		JudgeModel:     envOr("JUDGE_MODEL", "gemini-2.5-flash-lite"),

		RedisAddr:        envOr("REDIS_ADDR", "127.0.0.1:6379"),
		QdrantHost:       os.Getenv("QDRANT_HOST"),
		QdrantCollection: envOr("QDRANT_COLLECTION", "relay_cache"),

		ArchitectProvider: envOr("WATERFALL_ARCHITECT_PROVIDER", "gemini"),
		ArchitectModel:    envOr("WATERFALL_ARCHITECT_MODEL", "gemini-2.5-pro"),
		ReasonerProvider:  envOr("WATERFALL_REASONER_PROVIDER", "gemini"),
		ReasonerModel:     envOr("WATERFALL_REASONER_MODEL", "gemini-2.5-flash"),
		ExecutorProvider:  envOr("WATERFALL_EXECUTOR_PROVIDER", "ollama"),
		ExecutorModel:     envOr("WATERFALL_EXECUTOR_MODEL", "llama3.1"),
		ReviewerProvider:  envOr("WATERFALL_REVIEWER_PROVIDER", "gemini"),
		ReviewerModel:     envOr("WATERFALL_REVIEWER_MODEL", "gemini-2.5-flash"),
	}

	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}

	cfg.QdrantPort, _ = strconv.Atoi(envOr("QDRANT_PORT", "6334"))
	cfg.CacheThreshold, _ = strconv.ParseFloat(envOr("CACHE_THRESHOLD", "0.90"), 64)
	cfg.RatePerMillionUSD, _ = strconv.ParseFloat(envOr("RATE_PER_MILLION_USD", "0.30"), 64)

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
