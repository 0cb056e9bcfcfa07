// Package ports declares the abstract contracts (C2) that every adapter
// implements and every orchestrator depends on. None of these interfaces
// leak infrastructure-specific error types; every operation returns a
// *domain.Error (see internal/domain/errors.go) carrying a typed kind.
package ports

import (
	"context"
	"time"

	"github.com/fabfab/convo-rag/internal/domain"
)

// ConversationStore persists and retrieves conversation aggregates.
type ConversationStore interface {
	Save(ctx context.Context, conv domain.Conversation) (domain.Conversation, error)
	GetByID(ctx context.Context, id int64) (*domain.Conversation, error)
	List(ctx context.Context, skip, limit int) ([]domain.Conversation, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Count(ctx context.Context) (int, error)
}

// ChunkStore persists and retrieves chunks independent of their parent
// conversation's lifecycle operations.
type ChunkStore interface {
	SaveChunks(ctx context.Context, chunks []domain.ConversationChunk) ([]domain.ConversationChunk, error)
	GetByConversation(ctx context.Context, conversationID int64) ([]domain.ConversationChunk, error)
	UpdateEmbedding(ctx context.Context, chunkID int64, embedding domain.Embedding) (bool, error)
	GetChunksMissingEmbeddings(ctx context.Context) ([]domain.ConversationChunk, error)
}

// VectorSearch performs approximate nearest-neighbour search over stored
// chunk embeddings.
type VectorSearch interface {
	SimilaritySearch(ctx context.Context, query domain.Embedding, k int) (domain.SearchResults, error)
	SimilaritySearchWithThreshold(ctx context.Context, query domain.Embedding, threshold domain.RelevanceScore, k int) (domain.SearchResults, error)
}

// EmbeddingProvider turns text into vectors, preserving input order for
// batch calls regardless of internal sub-batching or parallelism.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) (domain.Embedding, error)
	EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error)
	Dimension() int
}

// TokenUsage reports LLM token accounting for a single generation.
type TokenUsage struct {
	PromptTokens     int
	CompletionTokens int
}

// GenerateParams controls LLM sampling.
type GenerateParams struct {
	Temperature float64
	MaxTokens   int
}

// GenerateResult is the outcome of a non-streaming LLM call.
type GenerateResult struct {
	Text  string
	Usage TokenUsage
}

// TextDelta is one incremental piece of a streamed LLM response.
type TextDelta struct {
	Text string
	Done bool
	Err  error
}

// LLMProvider generates grounded text completions.
type LLMProvider interface {
	Generate(ctx context.Context, prompt []Message, params GenerateParams) (GenerateResult, error)
	GenerateStream(ctx context.Context, prompt []Message, params GenerateParams) (<-chan TextDelta, error)
}

// Message is one turn of a chat-shaped prompt.
type Message struct {
	Role    string
	Content string
}

// CacheStats reports cumulative counters for a Cache instance.
type CacheStats struct {
	Hits      int64
	Misses    int64
	Size      int
	Evictions int64
}

// Cache is the advisory key/value layer (C6). A miss must always be
// recomputable by the caller; runtime failures of a distributed backend are
// surfaced as misses, never as errors (spec.md §4.6/§7, KindCache).
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) (bool, error)
	DeleteMatching(ctx context.Context, pattern string) (int, error)
	Clear(ctx context.Context) error
	Stats() CacheStats
}
