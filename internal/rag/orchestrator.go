// Package rag implements the RAG orchestrator (C9): search → prompt
// assembly → LLM call → citation extraction → confidence scoring.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/cache"
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ports"
	"github.com/fabfab/convo-rag/internal/search"
)

const (
	defaultTopK            = 5
	defaultMinScore        = domain.RelevanceScore(0.7)
	defaultMaxContextChars = 8000
	defaultTemperature     = 0.7
	defaultMaxTokens       = 1024
	defaultAnswerTTL       = 1 * time.Hour
	ragModelVersion        = "v1"

	noSufficientContextMessage = "I don't have enough information in the available sources to answer that question."
)

// Params controls retrieval, prompt assembly, and LLM sampling for one ask.
type Params struct {
	TopK            int
	MinScore        domain.RelevanceScore
	MaxContextChars int
	Temperature     float64
	MaxTokens       int
	ConversationID  *int64
}

// WithDefaults fills unset fields with spec-mandated defaults.
func (p Params) WithDefaults() Params {
	if p.TopK <= 0 {
		p.TopK = defaultTopK
	}
	if p.MinScore == 0 {
		p.MinScore = defaultMinScore
	}
	if p.MaxContextChars <= 0 {
		p.MaxContextChars = defaultMaxContextChars
	}
	if p.Temperature == 0 {
		p.Temperature = defaultTemperature
	}
	if p.MaxTokens <= 0 {
		p.MaxTokens = defaultMaxTokens
	}
	return p
}

// AnswerSource is one citation-resolved source in a returned Answer.
type AnswerSource struct {
	ConversationID int64   `json:"conversation_id"`
	ChunkID        int64   `json:"chunk_id"`
	Snippet        string  `json:"snippet"`
	Score          float64 `json:"score"`
	CitationIndex  int     `json:"citation_index"`
}

// Answer is the RAG orchestrator's public output.
type Answer struct {
	Text       string         `json:"text"`
	Sources    []AnswerSource `json:"sources"`
	Confidence float64        `json:"confidence"`
	TokensIn   int            `json:"tokens_in"`
	TokensOut  int            `json:"tokens_out"`
	DurationMS int64          `json:"duration_ms"`
	CacheHit   bool           `json:"cache_hit"`
}

// Request is the RAG orchestrator's public input.
type Request struct {
	Query   string
	Params  Params
	History []ports.Message // prior turns for ConversationID, if any
}

// Orchestrator implements C9.
type Orchestrator struct {
	search *search.Orchestrator
	llm    ports.LLMProvider
	cache  ports.Cache
	log    *zap.SugaredLogger
}

func New(searchOrch *search.Orchestrator, llm ports.LLMProvider, c ports.Cache, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{search: searchOrch, llm: llm, cache: c, log: log}
}

// Ask implements the non-streaming `ask` operation.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Answer, error) {
	start := time.Now()
	params := req.Params.WithDefaults()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return Answer{}, domain.Validationf("query must not be empty")
	}

	hasHistory := len(req.History) > 0
	cacheKey := askCacheKey(query, params, req.History)

	if !hasHistory && o.cache != nil {
		if raw, ok, err := o.cache.Get(ctx, cacheKey); err == nil && ok {
			var cached Answer
			if json.Unmarshal(raw, &cached) == nil {
				cached.CacheHit = true
				return cached, nil
			}
		}
	}

	searchResp, err := o.search.Search(ctx, search.Request{
		Query:   query,
		TopK:    params.TopK,
		Filters: search.Filters{MinScore: &params.MinScore},
	})
	if err != nil {
		return Answer{}, err
	}

	if len(searchResp.Results) == 0 {
		return Answer{
			Text:       noSufficientContextMessage,
			Sources:    []AnswerSource{},
			Confidence: 0.0,
			DurationMS: time.Since(start).Milliseconds(),
		}, nil
	}

	sources := sourcesFromResults(searchResp.Results)
	kept, sourceBlock := buildSourceBlock(sources, params.MaxContextChars)
	prompt := assemblePrompt(kept, sourceBlock, req.History, query)

	result, err := o.llm.Generate(ctx, prompt, ports.GenerateParams{
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return Answer{}, domain.Wrap(domain.KindLLM, "generate answer", err)
	}

	text := result.Text
	conf := 0.0
	var answerSources []AnswerSource

	if strings.TrimSpace(text) == "" {
		text = fallbackSummary(kept)
		conf = 0.3
	} else {
		cleaned, cited := extractCitations(text, kept, o.log)
		text = cleaned
		answerSources = toAnswerSources(cited)
		conf = confidence(text, cited, kept)
	}

	answer := Answer{
		Text:       strings.TrimSpace(text),
		Sources:    answerSources,
		Confidence: conf,
		TokensIn:   result.Usage.PromptTokens,
		TokensOut:  result.Usage.CompletionTokens,
		DurationMS: time.Since(start).Milliseconds(),
	}
	if answer.Sources == nil {
		answer.Sources = []AnswerSource{}
	}

	if conf >= 0.5 && !hasHistory && o.cache != nil {
		if encoded, err := json.Marshal(answer); err == nil {
			if err := o.cache.Set(ctx, cacheKey, encoded, defaultAnswerTTL); err != nil && o.log != nil {
				o.log.Warnw("rag answer cache write failed", "error", err)
			}
		}
	}

	return answer, nil
}

// AskStream implements the streaming `ask_stream` operation: it emits text
// deltas as they arrive, then a final delta carrying the assembled Answer
// encoded as JSON with Done=true.
func (o *Orchestrator) AskStream(ctx context.Context, req Request) (<-chan ports.TextDelta, error) {
	start := time.Now()
	params := req.Params.WithDefaults()
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.Validationf("query must not be empty")
	}

	searchResp, err := o.search.Search(ctx, search.Request{
		Query:   query,
		TopK:    params.TopK,
		Filters: search.Filters{MinScore: &params.MinScore},
	})
	if err != nil {
		return nil, err
	}

	out := make(chan ports.TextDelta)

	if len(searchResp.Results) == 0 {
		go func() {
			defer close(out)
			answer := Answer{
				Text:       noSufficientContextMessage,
				Sources:    []AnswerSource{},
				Confidence: 0.0,
				DurationMS: time.Since(start).Milliseconds(),
			}
			emitFinal(out, answer)
		}()
		return out, nil
	}

	sources := sourcesFromResults(searchResp.Results)
	kept, sourceBlock := buildSourceBlock(sources, params.MaxContextChars)
	prompt := assemblePrompt(kept, sourceBlock, req.History, query)

	deltas, err := o.llm.GenerateStream(ctx, prompt, ports.GenerateParams{
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindLLM, "generate answer stream", err)
	}

	go func() {
		defer close(out)
		var b strings.Builder
		for d := range deltas {
			if d.Err != nil {
				out <- ports.TextDelta{Err: domain.Wrap(domain.KindLLM, "stream answer", d.Err)}
				return
			}
			if d.Text != "" {
				b.WriteString(d.Text)
				out <- ports.TextDelta{Text: d.Text}
			}
			if d.Done {
				break
			}
		}

		text := b.String()
		conf := 0.0
		var answerSources []AnswerSource

		if strings.TrimSpace(text) == "" {
			text = fallbackSummary(kept)
			conf = 0.3
		} else {
			cleaned, cited := extractCitations(text, kept, o.log)
			text = cleaned
			answerSources = toAnswerSources(cited)
			conf = confidence(text, cited, kept)
		}

		answer := Answer{
			Text:       strings.TrimSpace(text),
			Sources:    answerSources,
			Confidence: conf,
			DurationMS: time.Since(start).Milliseconds(),
		}
		if answer.Sources == nil {
			answer.Sources = []AnswerSource{}
		}

		if conf >= 0.5 && len(req.History) == 0 && o.cache != nil {
			cacheKey := askCacheKey(query, params, req.History)
			if encoded, err := json.Marshal(answer); err == nil {
				_ = o.cache.Set(ctx, cacheKey, encoded, defaultAnswerTTL)
			}
		}

		emitFinal(out, answer)
	}()

	return out, nil
}

func emitFinal(out chan<- ports.TextDelta, answer Answer) {
	encoded, err := json.Marshal(answer)
	if err != nil {
		out <- ports.TextDelta{Done: true, Err: err}
		return
	}
	out <- ports.TextDelta{Text: string(encoded), Done: true}
}

func toAnswerSources(cited []CitedSource) []AnswerSource {
	out := make([]AnswerSource, len(cited))
	for i, c := range cited {
		out[i] = AnswerSource{
			ConversationID: c.ConversationID,
			ChunkID:        c.ChunkID,
			Snippet:        c.Snippet,
			Score:          c.Score,
			CitationIndex:  c.CitationIndex,
		}
	}
	return out
}

// fallbackSummary concatenates the top source snippets when the LLM returns
// an empty response (spec.md §4.9 guardrails).
func fallbackSummary(sources []Source) string {
	var b strings.Builder
	limit := len(sources)
	if limit > 3 {
		limit = 3
	}
	for i := 0; i < limit; i++ {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(sources[i].Text)
	}
	return b.String()
}

func askCacheKey(query string, params Params, history []ports.Message) string {
	parts := []string{
		query,
		fmt.Sprintf("%d", params.TopK),
		fmt.Sprintf("%f", params.MinScore),
		ragModelVersion,
		fmt.Sprintf("%f", params.Temperature),
	}
	if len(history) > 0 {
		parts = append(parts, historyHash(history))
	}
	return cache.Key(cache.NamespaceRAG, strings.Join(parts, "|"))
}

func historyHash(history []ports.Message) string {
	h := sha256.New()
	for _, m := range history {
		h.Write([]byte(m.Role))
		h.Write([]byte{0})
		h.Write([]byte(m.Content))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
