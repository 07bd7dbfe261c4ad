// Package postgres provides a PostgreSQL-backed implementation of
// store.Store, using a single universal_nodes table with a pgvector HNSW
// index for approximate nearest-neighbour search over node embeddings.
//
// Usage:
//
//	s, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer s.Close()
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// ddlNodes returns the universal_nodes DDL with the embedding dimension
// substituted. The vector dimension is baked into the column type at schema
// creation time.
func ddlNodes(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS universal_nodes (
    id             TEXT         PRIMARY KEY,
    kind           TEXT         NOT NULL,
    parent_id      TEXT         NOT NULL DEFAULT '',
    root_id        TEXT         NOT NULL DEFAULT '',
    before_sibling TEXT         NOT NULL DEFAULT '',
    content        TEXT         NOT NULL DEFAULT '',
    metadata       JSONB        NOT NULL DEFAULT '{}',
    embedding      vector(%d),
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_universal_nodes_parent_id
    ON universal_nodes (parent_id);

CREATE INDEX IF NOT EXISTS idx_universal_nodes_root_id
    ON universal_nodes (root_id);

CREATE INDEX IF NOT EXISTS idx_universal_nodes_kind
    ON universal_nodes (kind);

CREATE INDEX IF NOT EXISTS idx_universal_nodes_embedding
    ON universal_nodes USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates or ensures the universal_nodes table and its indexes
// exist. It is idempotent and safe to call on every application start.
//
// embeddingDimensions must match the vector model configured for your
// deployment (e.g., 1536 for OpenAI text-embedding-3-small, 768 for
// nomic-embed-text). Changing this value after the first migration requires
// a manual schema update.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if _, err := pool.Exec(ctx, ddlNodes(embeddingDimensions)); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
