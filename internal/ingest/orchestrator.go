// Package ingest implements the ingest orchestrator (C7): validate → chunk
// → embed (batched) → persist (transactional) → invalidate search cache.
package ingest

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/cache"
	"github.com/fabfab/convo-rag/internal/chunking"
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ports"
)

// InputMessage is one message of an ingest request.
type InputMessage struct {
	Author    domain.AuthorInfo
	Text      string
	Timestamp *time.Time
}

// Request is the ingest orchestrator's public input.
type Request struct {
	ScenarioTitle *string
	OriginalTitle *string
	URL           *string
	Messages      []InputMessage

	// PartialEmbeddings, when true, allows chunks whose embedding failed to
	// be persisted with a null embedding rather than failing the whole
	// ingest (spec.md §4.7 step 4b).
	PartialEmbeddings bool
}

// Response is the ingest orchestrator's public output.
type Response struct {
	ConversationID  int64
	ChunkCount      int
	EmbeddingCount  int
	DurationMS      int64
	FailedChunkIdxs []int
}

// Archiver is implemented by the optional transcript-archival side channel
// (internal/archive). A nil Archiver disables archival entirely.
type Archiver interface {
	Archive(ctx context.Context, conv domain.Conversation) error
}

// Orchestrator implements C7.
type Orchestrator struct {
	conversations ports.ConversationStore
	embedder      ports.EmbeddingProvider
	cache         ports.Cache
	archiver      Archiver
	dimension     int
	log           *zap.SugaredLogger
}

func New(conversations ports.ConversationStore, embedder ports.EmbeddingProvider, c ports.Cache, archiver Archiver, dimension int, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{
		conversations: conversations,
		embedder:      embedder,
		cache:         c,
		archiver:      archiver,
		dimension:     dimension,
		log:           log,
	}
}

func (o *Orchestrator) Ingest(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	if err := validateRequest(req); err != nil {
		return Response{}, err
	}

	drafts := chunking.Chunk(toChunkingMessages(req.Messages), chunking.DefaultParams())
	if len(drafts) == 0 || len(drafts) > 10_000 {
		return Response{}, domain.Validationf("chunk count %d out of range [1, 10000]", len(drafts))
	}

	chunks := make([]domain.ConversationChunk, len(drafts))
	texts := make([]string, len(drafts))
	for i, d := range drafts {
		c, err := domain.NewConversationChunk(d.OrderIndex, d.Text, d.Author, d.Timestamp)
		if err != nil {
			return Response{}, err
		}
		chunks[i] = c
		texts[i] = d.Text
	}

	embeddings, err := o.embedder.EmbedBatch(ctx, texts)
	failedIdxs := []int{}
	embeddingCount := 0

	if err != nil {
		if !req.PartialEmbeddings {
			return Response{}, domain.Wrap(domain.KindEmbedding, "embed chunks", err)
		}
		// Partial-embeddings mode: individual batch failures cannot be
		// attributed per-text here (the batch failed as a unit), so every
		// chunk is persisted without an embedding and enumerated as failed.
		for i := range chunks {
			failedIdxs = append(failedIdxs, i)
		}
		if o.log != nil {
			o.log.Warnw("embedding batch failed, persisting chunks without embeddings", "error", err)
		}
	} else {
		for i, emb := range embeddings {
			chunks[i] = chunks[i].WithEmbedding(emb)
			embeddingCount++
		}
	}

	conv, err := domain.NewConversation(req.ScenarioTitle, req.OriginalTitle, req.URL, chunks)
	if err != nil {
		return Response{}, err
	}

	saved, err := o.conversations.Save(ctx, conv)
	if err != nil {
		return Response{}, domain.Wrap(domain.KindStorage, "persist conversation", err)
	}

	if o.cache != nil {
		if _, err := o.cache.DeleteMatching(ctx, cache.Pattern(cache.NamespaceSearch)); err != nil {
			if o.log != nil {
				o.log.Warnw("search cache invalidation failed", "error", err)
			}
		}
	}

	if o.archiver != nil {
		if err := o.archiver.Archive(ctx, saved); err != nil && o.log != nil {
			o.log.Warnw("transcript archival failed", "conversation_id", saved.ID, "error", err)
		}
	}

	return Response{
		ConversationID:  saved.ID,
		ChunkCount:      len(chunks),
		EmbeddingCount:  embeddingCount,
		DurationMS:      time.Since(start).Milliseconds(),
		FailedChunkIdxs: failedIdxs,
	}, nil
}

func validateRequest(req Request) error {
	if len(req.Messages) == 0 {
		return domain.Validationf("messages must not be empty")
	}
	for i, m := range req.Messages {
		if strings.TrimSpace(m.Text) == "" {
			return domain.Validationf("message %d text must not be empty after trim", i)
		}
	}
	return nil
}

func toChunkingMessages(messages []InputMessage) []chunking.InputMessage {
	out := make([]chunking.InputMessage, len(messages))
	for i, m := range messages {
		out[i] = chunking.InputMessage{Author: m.Author, Text: m.Text, Timestamp: m.Timestamp}
	}
	return out
}
