package archive

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/convo-rag/internal/domain"
)

func testConversation(t *testing.T) domain.Conversation {
	t.Helper()
	author, err := domain.NewAuthorInfo("alice", domain.AuthorHuman)
	require.NoError(t, err)
	chunk, err := domain.NewConversationChunk(0, "hello world", author, nil)
	require.NoError(t, err)
	title := "My Scenario"
	conv, err := domain.NewConversation(&title, nil, nil, []domain.ConversationChunk{chunk})
	require.NoError(t, err)
	conv.ID = 42
	return conv
}

func TestNew_CreatesRootDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "archive")
	a, err := New(dir)
	require.NoError(t, err)
	require.NotNil(t, a)

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestArchive_WritesTranscriptFile(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	conv := testConversation(t)
	require.NoError(t, a.Archive(context.Background(), conv))

	loaded, err := a.Load(conv.ID)
	require.NoError(t, err)
	assert.Contains(t, loaded, "conversation_id: 42")
	assert.Contains(t, loaded, "scenario_title: My Scenario")
	assert.Contains(t, loaded, "**alice**")
	assert.Contains(t, loaded, "hello world")
}

func TestArchive_OverwritesPriorTranscript(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	conv := testConversation(t)
	require.NoError(t, a.Archive(context.Background(), conv))

	author, err := domain.NewAuthorInfo("bob", domain.AuthorAssistant)
	require.NoError(t, err)
	chunk, err := domain.NewConversationChunk(0, "updated text", author, nil)
	require.NoError(t, err)
	updated, err := domain.NewConversation(nil, nil, nil, []domain.ConversationChunk{chunk})
	require.NoError(t, err)
	updated.ID = conv.ID

	require.NoError(t, a.Archive(context.Background(), updated))

	loaded, err := a.Load(conv.ID)
	require.NoError(t, err)
	assert.Contains(t, loaded, "updated text")
	assert.NotContains(t, loaded, "hello world")
}

func TestArchive_RejectsCancelledContext(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = a.Archive(ctx, testConversation(t))
	require.Error(t, err)
}

func TestLoad_ReturnsNotExistForMissingConversation(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	_, err = a.Load(9999)
	require.Error(t, err)
	assert.True(t, os.IsNotExist(err))
}

func TestArchive_IncludesTimestampWhenPresent(t *testing.T) {
	a, err := New(t.TempDir())
	require.NoError(t, err)

	author, err := domain.NewAuthorInfo("alice", domain.AuthorHuman)
	require.NoError(t, err)
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	chunk, err := domain.NewConversationChunk(0, "timed message", author, &ts)
	require.NoError(t, err)
	conv, err := domain.NewConversation(nil, nil, nil, []domain.ConversationChunk{chunk})
	require.NoError(t, err)
	conv.ID = 7

	require.NoError(t, a.Archive(context.Background(), conv))
	loaded, err := a.Load(conv.ID)
	require.NoError(t, err)
	assert.Contains(t, loaded, "2026-01-02T03:04:05Z")
}
