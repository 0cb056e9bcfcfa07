package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/convo-rag/internal/cache"
	"github.com/fabfab/convo-rag/internal/domain"
)

var assertErr = errors.New("boom")

type fakeConversationStore struct {
	saved domain.Conversation
	err   error
	nextID int64
}

func (f *fakeConversationStore) Save(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	if f.err != nil {
		return domain.Conversation{}, f.err
	}
	f.nextID++
	conv.ID = f.nextID
	f.saved = conv
	return conv, nil
}
func (f *fakeConversationStore) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	return nil, nil
}
func (f *fakeConversationStore) List(ctx context.Context, skip, limit int) ([]domain.Conversation, error) {
	return nil, nil
}
func (f *fakeConversationStore) Delete(ctx context.Context, id int64) (bool, error) { return false, nil }
func (f *fakeConversationStore) Exists(ctx context.Context, id int64) (bool, error) { return false, nil }
func (f *fakeConversationStore) Count(ctx context.Context) (int, error)             { return 0, nil }

type fakeEmbedder struct {
	dimension int
	err       error
}

func (f *fakeEmbedder) Dimension() int { return f.dimension }
func (f *fakeEmbedder) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return domain.Embedding{}, err
	}
	return vecs[0], nil
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]domain.Embedding, len(texts))
	vec := make([]float32, f.dimension)
	for i := range vec {
		vec[i] = 0.1
	}
	for i := range texts {
		e, err := domain.NewEmbedding(vec, f.dimension)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

func alice(t *testing.T) domain.AuthorInfo {
	t.Helper()
	a, err := domain.NewAuthorInfo("alice", domain.AuthorHuman)
	require.NoError(t, err)
	return a
}

func TestIngest_HappyPath(t *testing.T) {
	store := &fakeConversationStore{}
	embedder := &fakeEmbedder{dimension: 3}
	c, err := cache.NewLRU(10)
	require.NoError(t, err)

	orch := New(store, embedder, c, nil, 3, nil)
	resp, err := orch.Ingest(context.Background(), Request{
		Messages: []InputMessage{{Author: alice(t), Text: "hello there"}},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), resp.ConversationID)
	assert.Equal(t, 1, resp.ChunkCount)
	assert.Equal(t, 1, resp.EmbeddingCount)
	assert.Empty(t, resp.FailedChunkIdxs)
}

func TestIngest_RejectsEmptyMessages(t *testing.T) {
	orch := New(&fakeConversationStore{}, &fakeEmbedder{dimension: 3}, cache.NoOp{}, nil, 3, nil)
	_, err := orch.Ingest(context.Background(), Request{})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestIngest_RejectsBlankMessageText(t *testing.T) {
	orch := New(&fakeConversationStore{}, &fakeEmbedder{dimension: 3}, cache.NoOp{}, nil, 3, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Messages: []InputMessage{{Author: alice(t), Text: "   "}},
	})
	require.Error(t, err)
}

func TestIngest_EmbeddingFailureWithoutPartialFlagFails(t *testing.T) {
	embedder := &fakeEmbedder{dimension: 3, err: assertErr}
	orch := New(&fakeConversationStore{}, embedder, cache.NoOp{}, nil, 3, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Messages: []InputMessage{{Author: alice(t), Text: "hello"}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindEmbedding, domain.KindOf(err))
}

func TestIngest_PartialEmbeddingsPersistsWithoutVectors(t *testing.T) {
	store := &fakeConversationStore{}
	embedder := &fakeEmbedder{dimension: 3, err: assertErr}
	orch := New(store, embedder, cache.NoOp{}, nil, 3, nil)

	resp, err := orch.Ingest(context.Background(), Request{
		Messages:          []InputMessage{{Author: alice(t), Text: "hello"}},
		PartialEmbeddings: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 0, resp.EmbeddingCount)
	assert.Equal(t, []int{0}, resp.FailedChunkIdxs)
}

func TestIngest_StorageFailurePropagates(t *testing.T) {
	store := &fakeConversationStore{err: assertErr}
	embedder := &fakeEmbedder{dimension: 3}
	orch := New(store, embedder, cache.NoOp{}, nil, 3, nil)

	_, err := orch.Ingest(context.Background(), Request{
		Messages: []InputMessage{{Author: alice(t), Text: "hello"}},
	})
	require.Error(t, err)
	assert.Equal(t, domain.KindStorage, domain.KindOf(err))
}

func TestIngest_InvalidatesSearchCache(t *testing.T) {
	store := &fakeConversationStore{}
	embedder := &fakeEmbedder{dimension: 3}
	c, err := cache.NewLRU(10)
	require.NoError(t, err)
	require.NoError(t, c.Set(context.Background(), cache.Key(cache.NamespaceSearch, "stale"), []byte("x"), time.Hour))

	orch := New(store, embedder, c, nil, 3, nil)
	_, err = orch.Ingest(context.Background(), Request{
		Messages: []InputMessage{{Author: alice(t), Text: "hello"}},
	})
	require.NoError(t, err)

	_, ok, _ := c.Get(context.Background(), cache.Key(cache.NamespaceSearch, "stale"))
	assert.False(t, ok)
}

type archiveRecorder struct {
	called bool
	err    error
}

func (a *archiveRecorder) Archive(ctx context.Context, conv domain.Conversation) error {
	a.called = true
	return a.err
}

func TestIngest_CallsArchiverOnSuccess(t *testing.T) {
	store := &fakeConversationStore{}
	embedder := &fakeEmbedder{dimension: 3}
	archiver := &archiveRecorder{}

	orch := New(store, embedder, cache.NoOp{}, archiver, 3, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Messages: []InputMessage{{Author: alice(t), Text: "hello"}},
	})
	require.NoError(t, err)
	assert.True(t, archiver.called)
}

func TestIngest_ArchiverFailureDoesNotFailIngest(t *testing.T) {
	store := &fakeConversationStore{}
	embedder := &fakeEmbedder{dimension: 3}
	archiver := &archiveRecorder{err: assertErr}

	orch := New(store, embedder, cache.NoOp{}, archiver, 3, nil)
	_, err := orch.Ingest(context.Background(), Request{
		Messages: []InputMessage{{Author: alice(t), Text: "hello"}},
	})
	require.NoError(t, err)
}
