package storagepg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/fabfab/convo-rag/internal/domain"
)

// ConversationStore implements ports.ConversationStore.
type ConversationStore struct {
	pool *Pool
}

func NewConversationStore(pool *Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

// Save persists a conversation and its chunks in one transaction. Partial
// success is impossible: any error aborts the transaction and the
// conversation does not appear in subsequent reads (spec.md §4.5).
func (s *ConversationStore) Save(ctx context.Context, conv domain.Conversation) (domain.Conversation, error) {
	tx, err := s.pool.pool.Begin(ctx)
	if err != nil {
		return domain.Conversation{}, domain.Wrap(domain.KindStorage, "begin transaction", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO conversations (scenario_title, original_title, url) VALUES ($1, $2, $3) RETURNING id`,
		conv.ScenarioTitle, conv.OriginalTitle, conv.URL,
	).Scan(&id)
	if err != nil {
		return domain.Conversation{}, domain.Wrap(domain.KindStorage, "insert conversation", err)
	}

	batch := &pgx.Batch{}
	for _, chunk := range conv.Chunks {
		var vec *pgvector.Vector
		if chunk.HasEmbedding() {
			v := pgvector.NewVector(chunk.Embedding.Values())
			vec = &v
		}
		batch.Queue(
			`INSERT INTO conversation_chunks
				(conversation_id, order_index, chunk_text, embedding, author_name, author_type, timestamp)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, chunk.OrderIndex, chunk.Text.String(), vec, chunk.Author.Name, string(chunk.Author.Type), chunk.Timestamp,
		)
	}

	br := tx.SendBatch(ctx, batch)
	for range conv.Chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return domain.Conversation{}, domain.Wrap(domain.KindStorage, "insert chunk", err)
		}
	}
	if err := br.Close(); err != nil {
		return domain.Conversation{}, domain.Wrap(domain.KindStorage, "close chunk batch", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Conversation{}, domain.Wrap(domain.KindStorage, "commit transaction", err)
	}

	conv.ID = id
	conv.CreatedAt = time.Now().UTC()
	for i := range conv.Chunks {
		conv.Chunks[i].ConversationID = id
	}
	return conv, nil
}

// GetByID eagerly loads chunks in one additional round trip (not N+1).
func (s *ConversationStore) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	var conv domain.Conversation
	conv.ID = id

	err := s.pool.pool.QueryRow(ctx,
		`SELECT scenario_title, original_title, url, created_at FROM conversations WHERE id = $1`, id,
	).Scan(&conv.ScenarioTitle, &conv.OriginalTitle, &conv.URL, &conv.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, domain.Wrap(domain.KindStorage, "get conversation", err)
	}

	chunks, err := scanChunks(ctx, s.pool.pool, `
		SELECT id, conversation_id, order_index, chunk_text, embedding, author_name, author_type, timestamp
		FROM conversation_chunks WHERE conversation_id = $1 ORDER BY order_index`, id)
	if err != nil {
		return nil, err
	}
	conv.Chunks = chunks

	return &conv, nil
}

// List orders by created_at descending and paginates by (skip, limit),
// with limit capped at 1000.
func (s *ConversationStore) List(ctx context.Context, skip, limit int) ([]domain.Conversation, error) {
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := s.pool.pool.Query(ctx,
		`SELECT id, scenario_title, original_title, url, created_at FROM conversations
		 ORDER BY created_at DESC OFFSET $1 LIMIT $2`, skip, limit)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "list conversations", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.ScenarioTitle, &c.OriginalTitle, &c.URL, &c.CreatedAt); err != nil {
			return nil, domain.Wrap(domain.KindStorage, "scan conversation", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.Wrap(domain.KindStorage, "iterate conversations", err)
	}
	return out, nil
}

// Delete cascade-deletes chunks via the foreign key.
func (s *ConversationStore) Delete(ctx context.Context, id int64) (bool, error) {
	tag, err := s.pool.pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return false, domain.Wrap(domain.KindStorage, "delete conversation", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *ConversationStore) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.pool.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, id).Scan(&exists)
	if err != nil {
		return false, domain.Wrap(domain.KindStorage, "check conversation existence", err)
	}
	return exists, nil
}

func (s *ConversationStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.pool.pool.QueryRow(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	if err != nil {
		return 0, domain.Wrap(domain.KindStorage, "count conversations", err)
	}
	return count, nil
}
