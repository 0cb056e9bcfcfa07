// Package storagepg implements the storage adapters (C5): conversation and
// chunk persistence plus ANN vector search, backed by Postgres + pgvector.
// Adapted from the teacher's internal/vectorstore/postgres.go, generalized
// from a single document_chunks table to the conversations/
// conversation_chunks schema of spec.md §6.
package storagepg

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fabfab/convo-rag/internal/domain"
)

// Pool wraps the shared connection pool used by every adapter in this
// package, so ConversationStore/ChunkStore/VectorSearch can all be backed
// by the same process-wide pool (spec.md §5 shared-resource policy).
type Pool struct {
	pool      *pgxpool.Pool
	dimension int
}

// Connect opens the pool and ensures the bit-exact schema of spec.md §6
// exists, including the IVFFlat ANN index.
func Connect(ctx context.Context, dsn string, maxConns, overflow, dimension int) (*Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "parse database URL", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns + overflow)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, domain.Wrap(domain.KindStorage, "connect database", err)
	}

	p := &Pool{pool: pool, dimension: dimension}
	if err := p.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Pool) Close() { p.pool.Close() }

// Ping exercises store connectivity with a round-trip query, for C10's
// health check.
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return domain.Wrap(domain.KindStorage, "ping database", err)
	}
	return nil
}

func (p *Pool) ensureSchema(ctx context.Context) error {
	const statements = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS conversations (
	id              SERIAL PRIMARY KEY,
	scenario_title  TEXT,
	original_title  TEXT,
	url             TEXT,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS conversation_chunks (
	id              SERIAL PRIMARY KEY,
	conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
	order_index     INT NOT NULL,
	chunk_text      TEXT NOT NULL,
	embedding       vector(%[1]d),
	author_name     TEXT,
	author_type     VARCHAR(16),
	timestamp       TIMESTAMPTZ,
	UNIQUE(conversation_id, order_index)
);

CREATE INDEX IF NOT EXISTS ix_chunks_conversation_id ON conversation_chunks(conversation_id);
CREATE INDEX IF NOT EXISTS ix_conversations_created ON conversations(created_at);

DO $$
BEGIN
	IF NOT EXISTS (
		SELECT 1 FROM pg_indexes
		WHERE schemaname = current_schema() AND indexname = 'ix_chunks_embedding'
	) THEN
		EXECUTE 'CREATE INDEX ix_chunks_embedding ON conversation_chunks USING ivfflat (embedding vector_l2_ops) WITH (lists = 100);';
	END IF;
END
$$;
`
	_, err := p.pool.Exec(ctx, fmt.Sprintf(statements, p.dimension))
	if err != nil && strings.Contains(err.Error(), "ivfflat") {
		// IVFFlat requires enough rows to train; tolerate its absence on an
		// empty table and continue, same as the teacher's ensureSchema.
		return nil
	}
	if err != nil {
		return domain.Wrap(domain.KindStorage, "ensure schema", err)
	}
	return nil
}
