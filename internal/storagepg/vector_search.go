package storagepg

import (
	"context"

	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/convo-rag/internal/domain"
)

// VectorSearch implements ports.VectorSearch using pgvector's L2 distance
// operator (<->), matching spec.md §4.5/§6's ANN query shape. Raw distances
// are converted to relevance scores uniformly via
// domain.RelevanceScoreFromDistance.
type VectorSearch struct {
	pool *Pool
}

func NewVectorSearch(pool *Pool) *VectorSearch {
	return &VectorSearch{pool: pool}
}

func (s *VectorSearch) SimilaritySearch(ctx context.Context, query domain.Embedding, k int) (domain.SearchResults, error) {
	return s.search(ctx, query, k)
}

// SimilaritySearchWithThreshold pushes the distance threshold down to SQL
// (distance <= 1/threshold - 1) when the caller already knows the cutoff,
// matching spec.md §4.5's "pushed down as ... when top_k is large" option.
func (s *VectorSearch) SimilaritySearchWithThreshold(ctx context.Context, query domain.Embedding, threshold domain.RelevanceScore, k int) (domain.SearchResults, error) {
	if threshold <= 0 {
		return s.search(ctx, query, k)
	}
	maxDistance := 1.0/float64(threshold) - 1.0

	vec := pgvector.NewVector(query.Values())
	rows, err := s.pool.pool.Query(ctx, `
		SELECT id, conversation_id, order_index, chunk_text, embedding, author_name, author_type, timestamp,
		       embedding <-> $1 AS distance
		FROM conversation_chunks
		WHERE embedding IS NOT NULL AND (embedding <-> $1) <= $2
		ORDER BY embedding <-> $1
		LIMIT $3`, vec, maxDistance, k)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "similarity search with threshold", err)
	}
	return scanSearchResults(rows)
}

func (s *VectorSearch) search(ctx context.Context, query domain.Embedding, k int) (domain.SearchResults, error) {
	vec := pgvector.NewVector(query.Values())
	rows, err := s.pool.pool.Query(ctx, `
		SELECT id, conversation_id, order_index, chunk_text, embedding, author_name, author_type, timestamp,
		       embedding <-> $1 AS distance
		FROM conversation_chunks
		WHERE embedding IS NOT NULL
		ORDER BY embedding <-> $1
		LIMIT $2`, vec, k)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "similarity search", err)
	}
	return scanSearchResults(rows)
}

func scanSearchResults(rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}) (domain.SearchResults, error) {
	defer rows.Close()

	var out domain.SearchResults
	for rows.Next() {
		var (
			c          domain.ConversationChunk
			text       string
			authorName *string
			authorType *string
			vec        *pgvector.Vector
			distance   float64
		)
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.OrderIndex, &text, &vec, &authorName, &authorType, &c.Timestamp, &distance); err != nil {
			return nil, domain.Wrap(domain.KindStorage, "scan search result", err)
		}

		chunkText, err := domain.NewChunkText(text)
		if err != nil {
			return nil, err
		}
		c.Text = chunkText
		if authorName != nil {
			c.Author.Name = *authorName
		}
		if authorType != nil {
			c.Author.Type = domain.AuthorType(*authorType)
		}
		if vec != nil {
			values := vec.Slice()
			emb, err := domain.NewEmbedding(values, len(values))
			if err != nil {
				return nil, err
			}
			c.Embedding = emb
		}

		out = append(out, domain.SearchResult{
			Chunk: c,
			Score: domain.RelevanceScoreFromDistance(distance),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "iterate search results", err)
	}

	out.Sort()
	return out, nil
}
