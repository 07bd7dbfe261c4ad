package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
)

// Upsert implements store.Store.
func (s *Store) Upsert(ctx context.Context, n node.Node) error {
	const q = `
		INSERT INTO universal_nodes
		    (id, kind, parent_id, root_id, before_sibling, content, metadata, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
		    kind           = EXCLUDED.kind,
		    parent_id      = EXCLUDED.parent_id,
		    root_id        = EXCLUDED.root_id,
		    before_sibling = EXCLUDED.before_sibling,
		    content        = EXCLUDED.content,
		    metadata       = EXCLUDED.metadata,
		    embedding      = EXCLUDED.embedding,
		    updated_at     = EXCLUDED.updated_at`

	metaJSON, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("postgres store: marshal metadata: %w", err)
	}

	_, err = s.pool.Exec(ctx, q,
		n.ID,
		string(n.Kind),
		n.ParentID,
		n.RootID,
		n.BeforeSibling,
		n.Content,
		metaJSON,
		embeddingArg(n.Embedding),
		n.CreatedAt,
		n.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: upsert %q: %w", n.ID, err)
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, id string) (node.Node, error) {
	const q = `
		SELECT id, kind, parent_id, root_id, before_sibling, content, metadata, embedding, created_at, updated_at
		FROM   universal_nodes
		WHERE  id = $1`

	row := s.pool.QueryRow(ctx, q, id)
	n, err := scanNode(row)
	if err != nil {
		if isNoRows(err) {
			return node.Node{}, node.ErrNotFound
		}
		return node.Node{}, fmt.Errorf("postgres store: get %q: %w", id, err)
	}
	return n, nil
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, id string) error {
	const q = `DELETE FROM universal_nodes WHERE id = $1`
	if _, err := s.pool.Exec(ctx, q, id); err != nil {
		return fmt.Errorf("postgres store: delete %q: %w", id, err)
	}
	return nil
}

// Query implements store.Store.
func (s *Store) Query(ctx context.Context, pred store.Predicate) ([]node.Node, error) {
	var args []any
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var conditions []string
	if pred.Kind != "" {
		conditions = append(conditions, "kind = "+next(string(pred.Kind)))
	}
	if pred.ParentID != "" {
		conditions = append(conditions, "parent_id = "+next(pred.ParentID))
	}
	if pred.RootID != "" {
		conditions = append(conditions, "root_id = "+next(pred.RootID))
	}
	if pred.HasEmbedding != nil {
		if *pred.HasEmbedding {
			conditions = append(conditions, "embedding IS NOT NULL")
		} else {
			conditions = append(conditions, "embedding IS NULL")
		}
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, "\n  AND ")
	}

	limitClause := ""
	if pred.Limit > 0 {
		args = append(args, pred.Limit)
		limitClause = fmt.Sprintf("LIMIT $%d", len(args))
	}

	q := fmt.Sprintf(`
		SELECT id, kind, parent_id, root_id, before_sibling, content, metadata, embedding, created_at, updated_at
		FROM   universal_nodes
		%s
		ORDER  BY created_at, id
		%s`, whereClause, limitClause)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: query: %w", err)
	}
	defer rows.Close()

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (node.Node, error) {
		return scanNode(row)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if results == nil {
		results = []node.Node{}
	}
	return results, nil
}

// KNN implements store.Store.
func (s *Store) KNN(ctx context.Context, vector []float32, k int, pred *store.Predicate) ([]store.KNNResult, error) {
	queryVec := pgvector.NewVector(vector)

	args := []any{queryVec} // $1 = query vector
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	conditions := []string{"embedding IS NOT NULL"}
	if pred != nil {
		if pred.Kind != "" {
			conditions = append(conditions, "kind = "+next(string(pred.Kind)))
		}
		if pred.ParentID != "" {
			conditions = append(conditions, "parent_id = "+next(pred.ParentID))
		}
		if pred.RootID != "" {
			conditions = append(conditions, "root_id = "+next(pred.RootID))
		}
	}
	whereClause := "WHERE " + strings.Join(conditions, "\n  AND ")

	args = append(args, k)
	limitArg := fmt.Sprintf("$%d", len(args))

	q := fmt.Sprintf(`
		SELECT id, kind, parent_id, root_id, before_sibling, content, metadata, embedding, created_at, updated_at,
		       embedding <=> $1 AS distance
		FROM   universal_nodes
		%s
		ORDER  BY distance
		LIMIT  %s`, whereClause, limitArg)

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: knn: %w", err)
	}
	defer rows.Close()

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.KNNResult, error) {
		n, distance, err := scanNodeWithDistance(row)
		if err != nil {
			return store.KNNResult{}, err
		}
		return store.KNNResult{Node: n, Distance: distance}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: knn scan rows: %w", err)
	}
	if results == nil {
		results = []store.KNNResult{}
	}
	return results, nil
}

// embeddingArg converts a node's embedding slice into a driver value
// suitable for binding to the nullable vector(D) column: nil when absent
// (invariant I6 permits embedding-less nodes while an embed provider is
// down), a pgvector.Vector otherwise.
func embeddingArg(embedding []float32) any {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}

// scanNode scans a single row (without the extra distance column) into a node.Node.
func scanNode(row pgx.Row) (node.Node, error) {
	var (
		n        node.Node
		kind     string
		metaJSON []byte
		vec      sql.Null[pgvector.Vector]
	)
	if err := row.Scan(
		&n.ID, &kind, &n.ParentID, &n.RootID, &n.BeforeSibling, &n.Content,
		&metaJSON, &vec, &n.CreatedAt, &n.UpdatedAt,
	); err != nil {
		return node.Node{}, err
	}
	n.Kind = node.Kind(kind)
	if vec.Valid {
		n.Embedding = vec.V.Slice()
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &n.Metadata); err != nil {
			return node.Node{}, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if n.Metadata == nil {
		n.Metadata = node.Metadata{}
	}
	return n, nil
}

// scanNodeWithDistance scans a row that has the extra `distance` column
// appended by the KNN query.
func scanNodeWithDistance(row pgx.CollectableRow) (node.Node, float32, error) {
	var (
		n        node.Node
		kind     string
		metaJSON []byte
		vec      sql.Null[pgvector.Vector]
		distance float32
	)
	if err := row.Scan(
		&n.ID, &kind, &n.ParentID, &n.RootID, &n.BeforeSibling, &n.Content,
		&metaJSON, &vec, &n.CreatedAt, &n.UpdatedAt, &distance,
	); err != nil {
		return node.Node{}, 0, err
	}
	n.Kind = node.Kind(kind)
	if vec.Valid {
		n.Embedding = vec.V.Slice()
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &n.Metadata); err != nil {
			return node.Node{}, 0, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	if n.Metadata == nil {
		n.Metadata = node.Metadata{}
	}
	return n, distance, nil
}

// isNoRows reports whether err is pgx.ErrNoRows, possibly wrapped.
func isNoRows(err error) bool {
	return err != nil && (err == pgx.ErrNoRows || strings.Contains(err.Error(), "no rows"))
}
