// Package config provides configuration for the vecmem service. Settings
// come from environment variables with the VECMEM_ prefix, optionally
// overridden by a YAML file pointed to by VECMEM_CONFIG. Every option has a
// sensible default so a bare binary starts against local Ollama + SQLite.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all settings for the vecmem service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Detection DetectionConfig `yaml:"detection"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Host string `yaml:"host"` // default: 127.0.0.1
	Port int    `yaml:"port"` // default: 7171
}

// StorageConfig contains database configuration.
type StorageConfig struct {
	// Engine selects the backend: "sqlite" or "postgres" (default: sqlite).
	Engine string `yaml:"engine"`

	// DataPath is the directory holding the SQLite file (default: ./data).
	DataPath string `yaml:"data_path"`

	// PostgresDSN is the connection string when Engine is "postgres".
	PostgresDSN string `yaml:"postgres_dsn"`
}

// EmbeddingConfig contains embedding generation and cache configuration.
type EmbeddingConfig struct {
	// Provider is "ollama" or "openai" (default: ollama).
	Provider string `yaml:"provider"`

	// Model is the embedding model name (default depends on provider).
	Model string `yaml:"model"`

	// OllamaURL is the Ollama API URL (default: http://localhost:11434).
	OllamaURL string `yaml:"ollama_url"`

	// OpenAIAPIKey authorizes the OpenAI embeddings endpoint.
	OpenAIAPIKey string `yaml:"openai_api_key"`

	// Dimension is the system-wide embedding dimension (default: 768,
	// matching nomic-embed-text). Every stored or cached vector must be
	// exactly this length.
	Dimension int `yaml:"dimension"`

	// RatePerSecond caps outbound embedding requests (default: 20).
	RatePerSecond float64 `yaml:"rate_per_second"`

	// CacheMaxEntries bounds the fast in-memory cache tier (default: 1000).
	CacheMaxEntries int `yaml:"cache_max_entries"`

	// CacheMaxAge bounds durable-tier entry age; older entries are purged
	// on startup (default: 720h = 30 days).
	CacheMaxAge time.Duration `yaml:"cache_max_age"`
}

// LLMConfig contains classification provider configuration.
type LLMConfig struct {
	// Provider is "ollama", "openai", or "anthropic" (default: ollama).
	Provider string `yaml:"provider"`

	OllamaURL       string `yaml:"ollama_url"`
	OllamaModel     string `yaml:"ollama_model"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`
	OpenAIModel     string `yaml:"openai_model"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
}

// DetectionConfig contains contradiction/duplicate detection thresholds.
type DetectionConfig struct {
	// CandidateThreshold is the Phase-1 similarity floor for shortlisting
	// pairs before classification (default: 0.70).
	CandidateThreshold float64 `yaml:"candidate_threshold"`

	// DuplicateThreshold is the similarity at or above which two memories
	// are reported as duplicates without classification (default: 0.85).
	DuplicateThreshold float64 `yaml:"duplicate_threshold"`

	// MaxCandidates bounds the Phase-1 candidate set (default: 10).
	MaxCandidates int `yaml:"max_candidates"`
}

// Load builds the configuration from environment variables, then overlays
// the YAML file named by VECMEM_CONFIG if one is set.
func Load() (*Config, error) {
	cfg := fromEnv()

	if path := os.Getenv("VECMEM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that defaults cannot guarantee.
func (c *Config) Validate() error {
	if c.Embedding.Dimension < 1 {
		return fmt.Errorf("config: embedding dimension must be >= 1, got %d", c.Embedding.Dimension)
	}
	if c.Embedding.CacheMaxEntries < 1 {
		return fmt.Errorf("config: cache_max_entries must be >= 1, got %d", c.Embedding.CacheMaxEntries)
	}
	if c.Storage.Engine != "sqlite" && c.Storage.Engine != "postgres" {
		return fmt.Errorf("config: unsupported storage engine %q", c.Storage.Engine)
	}
	if c.Storage.Engine == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("config: postgres engine requires VECMEM_POSTGRES_DSN")
	}
	if c.Detection.DuplicateThreshold < c.Detection.CandidateThreshold {
		return fmt.Errorf("config: duplicate_threshold (%v) must be >= candidate_threshold (%v)",
			c.Detection.DuplicateThreshold, c.Detection.CandidateThreshold)
	}
	return nil
}

func fromEnv() *Config {
	return &Config{
		Server: ServerConfig{
			Host: getEnv("VECMEM_HOST", "127.0.0.1"),
			Port: getEnvInt("VECMEM_PORT", 7171),
		},
		Storage: StorageConfig{
			Engine:      getEnv("VECMEM_STORAGE_ENGINE", "sqlite"),
			DataPath:    getEnv("VECMEM_DATA_PATH", "./data"),
			PostgresDSN: getEnv("VECMEM_POSTGRES_DSN", ""),
		},
		Embedding: EmbeddingConfig{
			Provider:        getEnv("VECMEM_EMBEDDING_PROVIDER", "ollama"),
			Model:           getEnv("VECMEM_EMBEDDING_MODEL", ""),
			OllamaURL:       getEnv("VECMEM_OLLAMA_URL", "http://localhost:11434"),
			OpenAIAPIKey:    getEnv("VECMEM_OPENAI_API_KEY", ""),
			Dimension:       getEnvInt("VECMEM_EMBEDDING_DIMENSION", 768),
			RatePerSecond:   getEnvFloat("VECMEM_EMBEDDING_RATE", 20),
			CacheMaxEntries: getEnvInt("VECMEM_CACHE_MAX_ENTRIES", 1000),
			CacheMaxAge:     getEnvDuration("VECMEM_CACHE_MAX_AGE", 720*time.Hour),
		},
		LLM: LLMConfig{
			Provider:        getEnv("VECMEM_LLM_PROVIDER", "ollama"),
			OllamaURL:       getEnv("VECMEM_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:     getEnv("VECMEM_OLLAMA_MODEL", "qwen2.5:7b"),
			OpenAIAPIKey:    getEnv("VECMEM_OPENAI_API_KEY", ""),
			OpenAIModel:     getEnv("VECMEM_OPENAI_MODEL", "gpt-4o-mini"),
			OpenAIBaseURL:   getEnv("VECMEM_OPENAI_BASE_URL", ""),
			AnthropicAPIKey: getEnv("VECMEM_ANTHROPIC_API_KEY", ""),
			AnthropicModel:  getEnv("VECMEM_ANTHROPIC_MODEL", ""),
		},
		Detection: DetectionConfig{
			CandidateThreshold: getEnvFloat("VECMEM_CANDIDATE_THRESHOLD", 0.70),
			DuplicateThreshold: getEnvFloat("VECMEM_DUPLICATE_THRESHOLD", 0.85),
			MaxCandidates:      getEnvInt("VECMEM_MAX_CANDIDATES", 10),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable; unparseable values
// fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable; unparseable values
// fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go syntax,
// e.g. "72h"); unparseable values fall back to the default.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
