// Package config loads runtime configuration via viper, binding environment
// variables (CONVORAG_* prefix), an optional config file, and defaults per
// spec.md §6.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// StorageConfig configures the relational vector store connection.
type StorageConfig struct {
	URL      string
	PoolSize int
	Overflow int
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider  string // local | remote
	Model     string
	Dimension int
	APIKey    string
	BaseURL   string
}

// LLMConfig selects and configures the LLM provider.
type LLMConfig struct {
	Provider    string // remote_a | remote_b | local
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
	BaseURL     string
}

// RAGConfig bounds retrieval and prompt assembly for the RAG orchestrator.
type RAGConfig struct {
	TopK            int
	MinScore        float64
	MaxContextChars int
}

// CacheTTLs holds per-namespace cache expirations.
type CacheTTLs struct {
	Embedding time.Duration
	Search    time.Duration
	RAG       time.Duration
}

// CacheConfig configures the advisory cache layer (C6).
type CacheConfig struct {
	Enabled  bool
	Backend  string // memory | distributed
	RedisURL string
	TTL      CacheTTLs
	MaxSize  int
}

// ArchiveConfig configures the transcript-archival side channel.
type ArchiveConfig struct {
	Enabled bool
	Dir     string
}

// Config captures all runtime configuration for the application.
type Config struct {
	Address   string
	Storage   StorageConfig
	Embedding EmbeddingConfig
	LLM       LLMConfig
	RAG       RAGConfig
	Cache     CacheConfig
	Archive   ArchiveConfig
}

// Load builds a Config from environment variables (prefix CONVORAG_, nested
// keys joined with "_", e.g. CONVORAG_STORAGE_URL), an optional config file
// named by configPath, and the spec-mandated defaults. The result is
// validated before being returned.
func Load(configPath string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("convorag")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	cfg := Config{
		Address: v.GetString("server.address"),
		Storage: StorageConfig{
			URL:      v.GetString("storage.url"),
			PoolSize: v.GetInt("storage.pool_size"),
			Overflow: v.GetInt("storage.overflow"),
		},
		Embedding: EmbeddingConfig{
			Provider:  v.GetString("embedding.provider"),
			Model:     v.GetString("embedding.model"),
			Dimension: v.GetInt("embedding.dimension"),
			APIKey:    v.GetString("embedding.api_key"),
			BaseURL:   v.GetString("embedding.base_url"),
		},
		LLM: LLMConfig{
			Provider:    v.GetString("llm.provider"),
			Model:       v.GetString("llm.model"),
			Temperature: v.GetFloat64("llm.temperature"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			APIKey:      v.GetString("llm.api_key"),
			BaseURL:     v.GetString("llm.base_url"),
		},
		RAG: RAGConfig{
			TopK:            v.GetInt("rag.top_k"),
			MinScore:        v.GetFloat64("rag.min_score"),
			MaxContextChars: v.GetInt("rag.max_context_chars"),
		},
		Cache: CacheConfig{
			Enabled:  v.GetBool("cache.enabled"),
			Backend:  v.GetString("cache.backend"),
			RedisURL: v.GetString("cache.redis_url"),
			TTL: CacheTTLs{
				Embedding: v.GetDuration("cache.ttl.embedding"),
				Search:    v.GetDuration("cache.ttl.search"),
				RAG:       v.GetDuration("cache.ttl.rag"),
			},
			MaxSize: v.GetInt("cache.max_size"),
		},
		Archive: ArchiveConfig{
			Enabled: v.GetBool("archive.enabled"),
			Dir:     v.GetString("archive.dir"),
		},
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1:8080")

	v.SetDefault("storage.pool_size", 10)
	v.SetDefault("storage.overflow", 20)

	v.SetDefault("embedding.provider", "local")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.dimension", 1536)
	v.SetDefault("embedding.base_url", "http://localhost:11434")

	v.SetDefault("llm.provider", "remote_a")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.max_tokens", 1024)

	v.SetDefault("rag.top_k", 5)
	v.SetDefault("rag.min_score", 0.7)
	v.SetDefault("rag.max_context_chars", 8000)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.ttl.embedding", 24*time.Hour)
	v.SetDefault("cache.ttl.search", 30*time.Minute)
	v.SetDefault("cache.ttl.rag", time.Hour)
	v.SetDefault("cache.max_size", 10_000)

	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.dir", "./data/transcripts")
}

func validate(cfg Config) error {
	if cfg.Storage.URL == "" {
		return fmt.Errorf("storage.url must not be empty")
	}
	if cfg.Embedding.Provider != "local" && cfg.Embedding.Provider != "remote" {
		return fmt.Errorf("embedding.provider must be one of local/remote, got %q", cfg.Embedding.Provider)
	}
	if cfg.Embedding.Model == "" {
		return fmt.Errorf("embedding.model must not be empty")
	}
	if cfg.Embedding.Dimension <= 0 {
		return fmt.Errorf("embedding.dimension must be positive")
	}
	if cfg.Embedding.Provider == "remote" && cfg.Embedding.APIKey == "" {
		return fmt.Errorf("embedding.api_key is required when embedding.provider=remote")
	}
	switch cfg.LLM.Provider {
	case "remote_a", "remote_b", "local":
	default:
		return fmt.Errorf("llm.provider must be one of remote_a/remote_b/local, got %q", cfg.LLM.Provider)
	}
	if cfg.LLM.Provider != "local" && cfg.LLM.APIKey == "" {
		return fmt.Errorf("llm.api_key is required when llm.provider=%q", cfg.LLM.Provider)
	}
	if cfg.Cache.Backend != "memory" && cfg.Cache.Backend != "distributed" {
		return fmt.Errorf("cache.backend must be one of memory/distributed, got %q", cfg.Cache.Backend)
	}
	if cfg.Cache.Backend == "distributed" && cfg.Cache.RedisURL == "" {
		return fmt.Errorf("cache.redis_url is required when cache.backend=distributed")
	}
	return nil
}
