package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustChunk(t *testing.T, order int, text string) ConversationChunk {
	t.Helper()
	author, err := NewAuthorInfo("alice", AuthorHuman)
	require.NoError(t, err)
	c, err := NewConversationChunk(order, text, author, nil)
	require.NoError(t, err)
	return c
}

func TestNewConversation_RequiresContiguousOrder(t *testing.T) {
	chunks := []ConversationChunk{mustChunk(t, 0, "a"), mustChunk(t, 2, "b")}
	_, err := NewConversation(nil, nil, nil, chunks)
	require.Error(t, err)
	assert.Equal(t, KindValidation, KindOf(err))
}

func TestNewConversation_RequiresAtLeastOneChunk(t *testing.T) {
	_, err := NewConversation(nil, nil, nil, nil)
	require.Error(t, err)
}

func TestNewConversation_ChunkCount(t *testing.T) {
	chunks := []ConversationChunk{mustChunk(t, 0, "a"), mustChunk(t, 1, "b")}
	conv, err := NewConversation(nil, nil, nil, chunks)
	require.NoError(t, err)
	assert.Equal(t, 2, conv.ChunkCount())
}

func TestConversation_IsSearchable(t *testing.T) {
	chunks := []ConversationChunk{mustChunk(t, 0, "a"), mustChunk(t, 1, "b")}
	conv, err := NewConversation(nil, nil, nil, chunks)
	require.NoError(t, err)
	assert.False(t, conv.IsSearchable(3))

	emb, err := NewEmbedding([]float32{1, 2, 3}, 3)
	require.NoError(t, err)
	conv.Chunks[0] = conv.Chunks[0].WithEmbedding(emb)
	conv.Chunks[1] = conv.Chunks[1].WithEmbedding(emb)
	assert.True(t, conv.IsSearchable(3))
}
