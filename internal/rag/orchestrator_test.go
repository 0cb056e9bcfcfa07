package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabfab/convo-rag/internal/cache"
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ports"
	"github.com/fabfab/convo-rag/internal/search"
)

type fakeVectorSearch struct {
	results domain.SearchResults
}

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

type fakeLLM struct {
	text    string
	err     error
	stream  []ports.TextDelta
}

func (f *fakeLLM) Generate(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (ports.GenerateResult, error) {
	if f.err != nil {
		return ports.GenerateResult{}, f.err
	}
	return ports.GenerateResult{Text: f.text}, nil
}
func (f *fakeLLM) GenerateStream(ctx context.Context, prompt []ports.Message, params ports.GenerateParams) (<-chan ports.TextDelta, error) {
	if f.err != nil {
		return nil, f.err
	}
	ch := make(chan ports.TextDelta, len(f.stream))
	for _, d := range f.stream {
		ch <- d
	}
	close(ch)
	return ch, nil
}

func makeSearchOrch(results domain.SearchResults) *search.Orchestrator {
	return search.New(&fakeVectorSearch{results: results}, &fakeEmbedder{dimension: 3}, cache.NoOp{}, 0, nil)
}

func mustResult(t *testing.T, convID, chunkID int64, text string, score float64) domain.SearchResult {
	t.Helper()
	author, err := domain.NewAuthorInfo("alice", domain.AuthorHuman)
	require.NoError(t, err)
	chunk, err := domain.NewConversationChunk(0, text, author, nil)
	require.NoError(t, err)
	chunk.ConversationID = convID
	chunk.ID = chunkID
	rel, err := domain.NewRelevanceScore(score)
	require.NoError(t, err)
	return domain.SearchResult{Chunk: chunk, Score: rel}
}

func TestAsk_NoResultsReturnsNoSufficientContextMessage(t *testing.T) {
	orch := New(makeSearchOrch(nil), &fakeLLM{}, cache.NoOp{}, nil)
	answer, err := orch.Ask(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)
	assert.Equal(t, noSufficientContextMessage, answer.Text)
	assert.Equal(t, 0.0, answer.Confidence)
}

func TestAsk_RejectsEmptyQuery(t *testing.T) {
	orch := New(makeSearchOrch(nil), &fakeLLM{}, cache.NoOp{}, nil)
	_, err := orch.Ask(context.Background(), Request{Query: "  "})
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestAsk_HappyPathExtractsCitationsAndConfidence(t *testing.T) {
	results := domain.SearchResults{mustResult(t, 1, 10, "fact one", 0.9)}
	llm := &fakeLLM{text: "The answer is X [Source 1]."}
	orch := New(makeSearchOrch(results), llm, cache.NoOp{}, nil)

	answer, err := orch.Ask(context.Background(), Request{Query: "what is X?"})
	require.NoError(t, err)
	assert.Contains(t, answer.Text, "[Source 1]")
	require.Len(t, answer.Sources, 1)
	assert.Equal(t, int64(10), answer.Sources[0].ChunkID)
	assert.InDelta(t, 0.9, answer.Confidence, 1e-9)
}

func TestAsk_EmptyLLMResponseFallsBackToSourceSummary(t *testing.T) {
	results := domain.SearchResults{mustResult(t, 1, 10, "fact one", 0.9)}
	llm := &fakeLLM{text: ""}
	orch := New(makeSearchOrch(results), llm, cache.NoOp{}, nil)

	answer, err := orch.Ask(context.Background(), Request{Query: "what is X?"})
	require.NoError(t, err)
	assert.Equal(t, "fact one", answer.Text)
	assert.Equal(t, 0.3, answer.Confidence)
}

func TestAsk_LLMFailurePropagatesAsLLMKind(t *testing.T) {
	results := domain.SearchResults{mustResult(t, 1, 10, "fact one", 0.9)}
	llm := &fakeLLM{err: errors.New("upstream down")}
	orch := New(makeSearchOrch(results), llm, cache.NoOp{}, nil)

	_, err := orch.Ask(context.Background(), Request{Query: "what is X?"})
	require.Error(t, err)
	assert.Equal(t, domain.KindLLM, domain.KindOf(err))
}

func TestAsk_CachesHighConfidenceAnswers(t *testing.T) {
	results := domain.SearchResults{mustResult(t, 1, 10, "fact one", 0.9)}
	llm := &fakeLLM{text: "The answer is X [Source 1]."}
	c, err := cache.NewLRU(10)
	require.NoError(t, err)
	orch := New(makeSearchOrch(results), llm, c, nil)

	first, err := orch.Ask(context.Background(), Request{Query: "what is X?"})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)

	second, err := orch.Ask(context.Background(), Request{Query: "what is X?"})
	require.NoError(t, err)
	assert.True(t, second.CacheHit)
}

func TestAsk_HistoryBypassesCache(t *testing.T) {
	results := domain.SearchResults{mustResult(t, 1, 10, "fact one", 0.9)}
	llm := &fakeLLM{text: "The answer is X [Source 1]."}
	c, err := cache.NewLRU(10)
	require.NoError(t, err)
	orch := New(makeSearchOrch(results), llm, c, nil)

	history := []ports.Message{{Role: "user", Content: "earlier"}}
	first, err := orch.Ask(context.Background(), Request{Query: "what is X?", History: history})
	require.NoError(t, err)
	second, err := orch.Ask(context.Background(), Request{Query: "what is X?", History: history})
	require.NoError(t, err)
	assert.False(t, first.CacheHit)
	assert.False(t, second.CacheHit)
}

func TestAskStream_EmitsDeltasThenFinalAnswer(t *testing.T) {
	results := domain.SearchResults{mustResult(t, 1, 10, "fact one", 0.9)}
	llm := &fakeLLM{stream: []ports.TextDelta{
		{Text: "The "},
		{Text: "answer is X [Source 1]."},
		{Done: true},
	}}
	orch := New(makeSearchOrch(results), llm, cache.NoOp{}, nil)

	ch, err := orch.AskStream(context.Background(), Request{Query: "what is X?"})
	require.NoError(t, err)

	var deltas []ports.TextDelta
	for d := range ch {
		deltas = append(deltas, d)
	}
	require.NotEmpty(t, deltas)
	last := deltas[len(deltas)-1]
	assert.True(t, last.Done)
	assert.Contains(t, last.Text, "Source")
}

func TestAskStream_NoResultsEmitsNoSufficientContextFinal(t *testing.T) {
	orch := New(makeSearchOrch(nil), &fakeLLM{}, cache.NoOp{}, nil)
	ch, err := orch.AskStream(context.Background(), Request{Query: "anything"})
	require.NoError(t, err)

	var last ports.TextDelta
	for d := range ch {
		last = d
	}
	assert.True(t, last.Done)
	assert.Contains(t, last.Text, noSufficientContextMessage)
}
