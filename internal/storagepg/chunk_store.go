package storagepg

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/convo-rag/internal/domain"
)

// ChunkStore implements ports.ChunkStore.
type ChunkStore struct {
	pool *Pool
}

func NewChunkStore(pool *Pool) *ChunkStore {
	return &ChunkStore{pool: pool}
}

// SaveChunks inserts chunks that already belong to a persisted conversation,
// under each chunk's ConversationID, and fills in the generated chunk IDs.
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []domain.ConversationChunk) ([]domain.ConversationChunk, error) {
	for i, chunk := range chunks {
		var vec *pgvector.Vector
		if chunk.HasEmbedding() {
			v := pgvector.NewVector(chunk.Embedding.Values())
			vec = &v
		}
		var id int64
		err := s.pool.pool.QueryRow(ctx,
			`INSERT INTO conversation_chunks
				(conversation_id, order_index, chunk_text, embedding, author_name, author_type, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
			chunk.ConversationID, chunk.OrderIndex, chunk.Text.String(), vec, chunk.Author.Name, string(chunk.Author.Type), chunk.Timestamp,
		).Scan(&id)
		if err != nil {
			return nil, domain.Wrap(domain.KindStorage, "insert chunk", err)
		}
		chunks[i].ID = id
	}
	return chunks, nil
}

func (s *ChunkStore) GetByConversation(ctx context.Context, conversationID int64) ([]domain.ConversationChunk, error) {
	return scanChunks(ctx, s.pool.pool, `
		SELECT id, conversation_id, order_index, chunk_text, embedding, author_name, author_type, timestamp
		FROM conversation_chunks WHERE conversation_id = $1 ORDER BY order_index`, conversationID)
}

// UpdateEmbedding fills in a chunk's embedding in place, supporting retry of
// previously failed embeddings (spec.md §3 Lifecycle).
func (s *ChunkStore) UpdateEmbedding(ctx context.Context, chunkID int64, embedding domain.Embedding) (bool, error) {
	vec := pgvector.NewVector(embedding.Values())
	tag, err := s.pool.pool.Exec(ctx, `UPDATE conversation_chunks SET embedding = $1 WHERE id = $2`, vec, chunkID)
	if err != nil {
		return false, domain.Wrap(domain.KindStorage, "update chunk embedding", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ChunkStore) GetChunksMissingEmbeddings(ctx context.Context) ([]domain.ConversationChunk, error) {
	return scanChunks(ctx, s.pool.pool, `
		SELECT id, conversation_id, order_index, chunk_text, embedding, author_name, author_type, timestamp
		FROM conversation_chunks WHERE embedding IS NULL ORDER BY conversation_id, order_index`)
}

// querier is satisfied by *pgxpool.Pool and pgx.Tx, letting scanChunks be
// reused from both a transaction and the ambient pool.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanChunks(ctx context.Context, q querier, sql string, args ...any) ([]domain.ConversationChunk, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "query chunks", err)
	}
	defer rows.Close()

	var out []domain.ConversationChunk
	for rows.Next() {
		var (
			c           domain.ConversationChunk
			text        string
			authorName  *string
			authorType  *string
			vec         *pgvector.Vector
		)
		if err := rows.Scan(&c.ID, &c.ConversationID, &c.OrderIndex, &text, &vec, &authorName, &authorType, &c.Timestamp); err != nil {
			return nil, domain.Wrap(domain.KindStorage, "scan chunk", err)
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

		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "iterate chunks", err)
	}
	return out, nil
}
