// Package search implements the search orchestrator (C8): query → embed →
// ANN search → threshold/rank → hydrate, with two-tier caching.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fabfab/convo-rag/internal/cache"
	"github.com/fabfab/convo-rag/internal/domain"
	"github.com/fabfab/convo-rag/internal/ports"
)

// Filters narrows a search beyond relevance score.
type Filters struct {
	MinScore     *domain.RelevanceScore
	AuthorName   *string
	AuthorType   *domain.AuthorType
	DateFrom     *time.Time
	DateTo       *time.Time
}

// Request is the search orchestrator's public input.
type Request struct {
	Query       string
	TopK        int
	Filters     Filters
	CacheBypass bool
}

// Response is the search orchestrator's public output.
type Response struct {
	Results    domain.SearchResults
	CacheHit   bool
	DurationMS int64
}

const defaultSearchTTL = 30 * time.Minute
const embeddingTTL = 24 * time.Hour
const modelVersion = "v1"

type Orchestrator struct {
	vectorSearch ports.VectorSearch
	embedder     ports.EmbeddingProvider
	cache        ports.Cache
	searchTTL    time.Duration
	log          *zap.SugaredLogger
}

func New(vectorSearch ports.VectorSearch, embedder ports.EmbeddingProvider, c ports.Cache, searchTTL time.Duration, log *zap.SugaredLogger) *Orchestrator {
	if searchTTL <= 0 {
		searchTTL = defaultSearchTTL
	}
	return &Orchestrator{vectorSearch: vectorSearch, embedder: embedder, cache: c, searchTTL: searchTTL, log: log}
}

func (o *Orchestrator) Search(ctx context.Context, req Request) (Response, error) {
	start := time.Now()

	query := strings.TrimSpace(req.Query)
	if query == "" || len(query) > 1000 {
		return Response{}, domain.Validationf("query must be 1..1000 characters")
	}
	if req.TopK <= 0 || req.TopK > 50 {
		return Response{}, domain.Validationf("top_k must be in [1, 50]")
	}

	cacheKey := searchCacheKey(query, req.TopK, req.Filters, modelVersion)

	if !req.CacheBypass && o.cache != nil {
		if raw, ok, err := o.cache.Get(ctx, cacheKey); err == nil && ok {
			var results domain.SearchResults
			if json.Unmarshal(raw, &results) == nil {
				return Response{Results: results, CacheHit: true, DurationMS: time.Since(start).Milliseconds()}, nil
			}
		}
	}

	embedding, err := o.embedQuery(ctx, query)
	if err != nil {
		return Response{}, err
	}

	threshold := domain.DefaultThreshold
	if req.Filters.MinScore != nil {
		threshold = *req.Filters.MinScore
	}

	fetchK := req.TopK
	hasFilters := req.Filters.AuthorName != nil || req.Filters.AuthorType != nil || req.Filters.DateFrom != nil || req.Filters.DateTo != nil
	if hasFilters {
		fetchK = req.TopK * 2
		if fetchK < req.TopK+10 {
			fetchK = req.TopK + 10
		}
	}

	raw, err := o.vectorSearch.SimilaritySearch(ctx, embedding, fetchK)
	if err != nil {
		return Response{}, domain.Wrap(domain.KindStorage, "vector search", err)
	}

	filtered := applyFilters(raw, req.Filters, threshold)
	filtered.Sort()
	results := filtered.Truncate(req.TopK)

	if !req.CacheBypass && o.cache != nil {
		if encoded, err := json.Marshal(results); err == nil {
			if err := o.cache.Set(ctx, cacheKey, encoded, o.searchTTL); err != nil && o.log != nil {
				o.log.Warnw("search cache write failed", "error", err)
			}
		}
	}

	return Response{Results: results, CacheHit: false, DurationMS: time.Since(start).Milliseconds()}, nil
}

// embedQuery computes (and caches) the query embedding.
func (o *Orchestrator) embedQuery(ctx context.Context, query string) (domain.Embedding, error) {
	key := cache.Key(cache.NamespaceEmbedding, fmt.Sprintf("%s|%s", modelVersion, query))

	if o.cache != nil {
		if raw, ok, err := o.cache.Get(ctx, key); err == nil && ok {
			var values []float32
			if json.Unmarshal(raw, &values) == nil {
				if emb, err := domain.NewEmbedding(values, o.embedder.Dimension()); err == nil {
					return emb, nil
				}
			}
		}
	}

	emb, err := o.embedder.Embed(ctx, query)
	if err != nil {
		return domain.Embedding{}, domain.Wrap(domain.KindEmbedding, "embed query", err)
	}

	if o.cache != nil {
		if encoded, err := json.Marshal(emb.Values()); err == nil {
			_ = o.cache.Set(ctx, key, encoded, embeddingTTL)
		}
	}

	return emb, nil
}

func applyFilters(results domain.SearchResults, f Filters, threshold domain.RelevanceScore) domain.SearchResults {
	out := make(domain.SearchResults, 0, len(results))
	for _, r := range results {
		if !r.IsRelevant(threshold) {
			continue
		}
		if f.AuthorName != nil && r.Chunk.Author.Name != *f.AuthorName {
			continue
		}
		if f.AuthorType != nil && r.Chunk.Author.Type != *f.AuthorType {
			continue
		}
		if f.DateFrom != nil && r.Chunk.Timestamp != nil && r.Chunk.Timestamp.Before(*f.DateFrom) {
			continue
		}
		if f.DateTo != nil && r.Chunk.Timestamp != nil && r.Chunk.Timestamp.After(*f.DateTo) {
			continue
		}
		out = append(out, r)
	}
	return out
}

func searchCacheKey(query string, topK int, f Filters, modelVersion string) string {
	parts := []string{query, fmt.Sprintf("%d", topK), modelVersion}
	if f.MinScore != nil {
		parts = append(parts, fmt.Sprintf("min=%f", *f.MinScore))
	}
	if f.AuthorName != nil {
		parts = append(parts, "author="+*f.AuthorName)
	}
	if f.AuthorType != nil {
		parts = append(parts, "type="+string(*f.AuthorType))
	}
	if f.DateFrom != nil {
		parts = append(parts, "from="+f.DateFrom.UTC().Format(time.RFC3339))
	}
	if f.DateTo != nil {
		parts = append(parts, "to="+f.DateTo.UTC().Format(time.RFC3339))
	}
	sort.Strings(parts[3:])
	return cache.Key(cache.NamespaceSearch, strings.Join(parts, "|"))
}
