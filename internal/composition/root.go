// Package composition is the dependency-injection root (C10): it reads
// configuration, constructs every adapter and orchestrator, and exposes a
// single App value the entry points (cmd/server, cmd/mcp) wire into their
// respective transports.
package composition

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/archive"
	"github.com/fabfab/convo-rag/internal/cache"
	"github.com/fabfab/convo-rag/internal/config"
	"github.com/fabfab/convo-rag/internal/embedding"
	"github.com/fabfab/convo-rag/internal/ingest"
	"github.com/fabfab/convo-rag/internal/llm"
	"github.com/fabfab/convo-rag/internal/ports"
	"github.com/fabfab/convo-rag/internal/rag"
	"github.com/fabfab/convo-rag/internal/search"
	"github.com/fabfab/convo-rag/internal/storagepg"
)

// App bundles every orchestrator and the resources their lifecycle owns.
type App struct {
	Config config.Config
	Log    *zap.Logger

	Conversations *storagepg.ConversationStore
	Chunks        *storagepg.ChunkStore
	VectorSearch  *storagepg.VectorSearch
	Embedder      ports.EmbeddingProvider
	LLM           ports.LLMProvider
	Cache         ports.Cache

	Ingest *ingest.Orchestrator
	Search *search.Orchestrator
	RAG    *rag.Orchestrator

	pool *storagepg.Pool
}

// Build wires the whole application graph from cfg. The returned App.Close
// must be called on shutdown to release pooled resources.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*App, error) {
	sugar := log.Sugar()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	pool, err := storagepg.Connect(connectCtx, cfg.Storage.URL, cfg.Storage.PoolSize, cfg.Storage.Overflow, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("connect storage: %w", err)
	}

	embedder, err := embedding.NewFromConfig(embedding.Config{
		Provider:  cfg.Embedding.Provider,
		Model:     cfg.Embedding.Model,
		Dimension: cfg.Embedding.Dimension,
		APIKey:    cfg.Embedding.APIKey,
		Host:      cfg.Embedding.BaseURL,
		Endpoint:  cfg.Embedding.BaseURL,
	}, sugar)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build embedding provider: %w", err)
	}

	llmProvider, err := llm.NewFromConfig(llm.Config{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		Host:     cfg.LLM.BaseURL,
		Endpoint: cfg.LLM.BaseURL,
		APIKey:   cfg.LLM.APIKey,
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("build llm provider: %w", err)
	}

	cacheCfg := cache.Config{
		Enabled: cfg.Cache.Enabled,
		Backend: cfg.Cache.Backend,
		MaxSize: cfg.Cache.MaxSize,
	}
	if cfg.Cache.Backend == "distributed" && cfg.Cache.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.Cache.RedisURL)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("parse cache.redis_url: %w", err)
		}
		cacheCfg.Addr = opts.Addr
		cacheCfg.Password = opts.Password
		cacheCfg.DB = opts.DB
	}

	var cacheLayer ports.Cache
	if cfg.Cache.Enabled {
		cacheLayer, err = cache.NewFromConfig(ctx, cacheCfg, sugar)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("build cache: %w", err)
		}
	} else {
		cacheLayer = cache.NoOp{}
	}

	var archiver ingest.Archiver
	if cfg.Archive.Enabled {
		a, err := archive.New(cfg.Archive.Dir)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("build archiver: %w", err)
		}
		archiver = a
	}

	conversations := storagepg.NewConversationStore(pool)
	chunks := storagepg.NewChunkStore(pool)
	vectorSearch := storagepg.NewVectorSearch(pool)

	ingestOrch := ingest.New(conversations, embedder, cacheLayer, archiver, cfg.Embedding.Dimension, sugar)
	searchOrch := search.New(vectorSearch, embedder, cacheLayer, cfg.Cache.TTL.Search, sugar)
	ragOrch := rag.New(searchOrch, llmProvider, cacheLayer, sugar)

	return &App{
		Config:        cfg,
		Log:           log,
		Conversations: conversations,
		Chunks:        chunks,
		VectorSearch:  vectorSearch,
		Embedder:      embedder,
		LLM:           llmProvider,
		Cache:         cacheLayer,
		Ingest:        ingestOrch,
		Search:        searchOrch,
		RAG:           ragOrch,
		pool:          pool,
	}, nil
}

// Close releases pooled resources. Safe to call once during shutdown.
func (a *App) Close() {
	if a.pool != nil {
		a.pool.Close()
	}
}
