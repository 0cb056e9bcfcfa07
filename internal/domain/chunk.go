package domain

import (
	"encoding/json"
	"strings"
	"time"
)

const (
	MinChunkTextLength = 1
	MaxChunkTextLength = 10_000
)

// ChunkText is trimmed, length-bounded chunk body text.
type ChunkText struct {
	value string
}

// NewChunkText trims text and validates it is 1..10_000 characters.
func NewChunkText(text string) (ChunkText, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return ChunkText{}, Validationf("chunk text must not be empty after trimming")
	}
	if len(trimmed) > MaxChunkTextLength {
		return ChunkText{}, Validationf("chunk text length %d exceeds maximum %d", len(trimmed), MaxChunkTextLength)
	}
	return ChunkText{value: trimmed}, nil
}

func (t ChunkText) String() string { return t.value }
func (t ChunkText) Len() int       { return len(t.value) }

func (t ChunkText) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.value)
}

func (t *ChunkText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	t.value = s
	return nil
}

// ConversationChunk is one size-bounded, speaker-aware slice of a
// conversation, carrying at most one embedding.
type ConversationChunk struct {
	ID             int64
	ConversationID int64
	OrderIndex     int
	Text           ChunkText
	Embedding      Embedding // zero value means "not yet embedded"
	Author         AuthorInfo
	Timestamp      *time.Time
}

// NewConversationChunk validates order index, text, and author.
func NewConversationChunk(orderIndex int, text string, author AuthorInfo, timestamp *time.Time) (ConversationChunk, error) {
	if orderIndex < 0 {
		return ConversationChunk{}, Validationf("order_index must be non-negative, got %d", orderIndex)
	}
	chunkText, err := NewChunkText(text)
	if err != nil {
		return ConversationChunk{}, err
	}
	return ConversationChunk{
		OrderIndex: orderIndex,
		Text:       chunkText,
		Author:     author,
		Timestamp:  timestamp,
	}, nil
}

// WithEmbedding returns a copy of the chunk carrying the given embedding.
func (c ConversationChunk) WithEmbedding(e Embedding) ConversationChunk {
	c.Embedding = e
	return c
}

// HasEmbedding reports whether the chunk carries a vector.
func (c ConversationChunk) HasEmbedding() bool { return !c.Embedding.IsZero() }

// IsSearchable reports whether the chunk's embedding matches the configured
// storage dimension D.
func (c ConversationChunk) IsSearchable(dimension int) bool {
	return c.HasEmbedding() && c.Embedding.Dimension() == dimension
}
