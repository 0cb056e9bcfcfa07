package mcp

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/convo-rag/internal/cache"
	"github.com/fabfab/convo-rag/internal/composition"
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ingest"
	"github.com/fabfab/convo-rag/internal/ports"
	"github.com/fabfab/convo-rag/internal/rag"
	"github.com/fabfab/convo-rag/internal/search"
)

type fakeVectorSearch struct{ results domain.SearchResults }

func (f *fakeVectorSearch) SimilaritySearch(ctx context.Context, query domain.Embedding, k int) (domain.SearchResults, error) {
	return f.results, nil
}
func (f *fakeVectorSearch) SimilaritySearchWithThreshold(ctx context.Context, query domain.Embedding, threshold domain.RelevanceScore, k int) (domain.SearchResults, error) {
	return f.results, nil
}

type fakeEmbedder struct{ dimension int }

func (f *fakeEmbedder) Dimension() int { return f.dimension }
func (f *fakeEmbedder) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	vec := make([]float32, f.dimension)
	return domain.NewEmbedding(vec, f.dimension)
}
func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	out := make([]domain.Embedding, len(texts))
	for i := range texts {
		e, err := f.Embed(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

type fakeLLM struct{ text string }

func (f *fakeLLM) Generate(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (ports.GenerateResult, error) {
	return ports.GenerateResult{Text: f.text}, nil
}
func (f *fakeLLM) GenerateStream(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (<-chan ports.TextDelta, error) {
	ch := make(chan ports.TextDelta, 1)
	ch <- ports.TextDelta{Done: true}
	close(ch)
	return ch, nil
}

type fakeConversationStore struct{ nextID int64 }

func (f *fakeConversationStore) Save(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	f.nextID++
	conv.ID = f.nextID
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

func newTestApp(t *testing.T, results domain.SearchResults, llmText string) *composition.App {
	t.Helper()
	embedder := &fakeEmbedder{dimension: 3}
	searchOrch := search.New(&fakeVectorSearch{results: results}, embedder, cache.NoOp{}, 0, nil)
	ragOrch := rag.New(searchOrch, &fakeLLM{text: llmText}, cache.NoOp{}, nil)
	ingestOrch := ingest.New(&fakeConversationStore{}, embedder, cache.NoOp{}, nil, 3, nil)
	return &composition.App{Search: searchOrch, RAG: ragOrch, Ingest: ingestOrch}
}

func mustResult(t *testing.T, score float64) domain.SearchResult {
	t.Helper()
	author, err := domain.NewAuthorInfo("alice", domain.AuthorHuman)
	require.NoError(t, err)
	chunk, err := domain.NewConversationChunk(0, "chunk text", author, nil)
	require.NoError(t, err)
	rel, err := domain.NewRelevanceScore(score)
	require.NoError(t, err)
	return domain.SearchResult{Chunk: chunk, Score: rel}
}

func toolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func textOf(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	return tc.Text
}

func TestHandleSearch_RejectsMissingQuery(t *testing.T) {
	app := newTestApp(t, nil, "")
	result, err := handleSearch(app)(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleSearch_ReturnsEncodedResponse(t *testing.T) {
	app := newTestApp(t, domain.SearchResults{mustResult(t, 0.9)}, "")
	result, err := handleSearch(app)(context.Background(), toolRequest(map[string]any{
		"query": "hello",
		"top_k": float64(3),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &resp))
	assert.Len(t, resp.Results, 1)
}

func TestHandleSearch_AppliesMinScoreFilter(t *testing.T) {
	app := newTestApp(t, domain.SearchResults{mustResult(t, 0.5)}, "")
	result, err := handleSearch(app)(context.Background(), toolRequest(map[string]any{
		"query":     "hello",
		"min_score": float64(0.9),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var resp search.Response
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &resp))
	assert.Empty(t, resp.Results)
}

func TestHandleIngest_RejectsMissingMessages(t *testing.T) {
	app := newTestApp(t, nil, "")
	result, err := handleIngest(app)(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleIngest_RejectsInvalidAuthorType(t *testing.T) {
	app := newTestApp(t, nil, "")
	result, err := handleIngest(app)(context.Background(), toolRequest(map[string]any{
		"messages": []any{
			map[string]any{"author_name": "bob", "author_type": "bogus", "text": "hi"},
		},
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleIngest_HappyPath(t *testing.T) {
	app := newTestApp(t, nil, "")
	result, err := handleIngest(app)(context.Background(), toolRequest(map[string]any{
		"messages": []any{
			map[string]any{"author_name": "bob", "author_type": "human", "text": "hello there, this is a test message"},
		},
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Contains(t, textOf(t, result), "ConversationID")
}

func TestHandleGetConversation_RejectsMissingID(t *testing.T) {
	app := newTestApp(t, nil, "")
	result, err := handleGetConversation(app)(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleDeleteConversation_RejectsMissingID(t *testing.T) {
	app := newTestApp(t, nil, "")
	result, err := handleDeleteConversation(app)(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRAGAsk_RejectsMissingQuery(t *testing.T) {
	app := newTestApp(t, nil, "")
	result, err := handleRAGAsk(app)(context.Background(), toolRequest(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestHandleRAGAsk_ReturnsEncodedAnswer(t *testing.T) {
	app := newTestApp(t, domain.SearchResults{mustResult(t, 0.9)}, "The answer [Source 1].")
	result, err := handleRAGAsk(app)(context.Background(), toolRequest(map[string]any{
		"query": "what is it?",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var answer rag.Answer
	require.NoError(t, json.Unmarshal([]byte(textOf(t, result)), &answer))
	assert.Contains(t, answer.Text, "Source 1")
}

func TestIntArg_FallsBackWhenMissingOrWrongType(t *testing.T) {
	assert.Equal(t, 5, intArg(map[string]any{}, "top_k", 5))
	assert.Equal(t, 5, intArg(map[string]any{"top_k": "not a number"}, "top_k", 5))
	assert.Equal(t, 3, intArg(map[string]any{"top_k": float64(3)}, "top_k", 5))
}

func TestNew_RegistersServerWithoutPanicking(t *testing.T) {
	app := newTestApp(t, nil, "")
	srv := New(app)
	assert.NotNil(t, srv)
}
