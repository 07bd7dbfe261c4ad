package postgres_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
	"github.com/nodespace/corelogic/pkg/store/postgres"
)

const testEmbeddingDim = 4

// testDSN returns the test database DSN from the environment, or skips the
// test if NODESPACE_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("NODESPACE_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("NODESPACE_TEST_POSTGRES_DSN not set — skipping PostgreSQL integration tests")
	}
	return dsn
}

// newTestStore creates a fresh postgres.Store with a clean schema. It calls
// t.Cleanup to close the store when the test finishes.
func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	cleanPool := mustPool(t, ctx, dsn)
	t.Cleanup(cleanPool.Close)
	dropSchema(t, ctx, cleanPool)

	s, err := postgres.NewStore(ctx, dsn, testEmbeddingDim)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func mustPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_ = pgxvec.RegisterTypes(ctx, conn)
		return nil
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	return pool
}

func dropSchema(t *testing.T, ctx context.Context, pool *pgxpool.Pool) {
	t.Helper()
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS universal_nodes CASCADE"); err != nil {
		t.Fatalf("dropSchema: %v", err)
	}
}

func TestStoreUpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n := node.Node{
		ID:        "2026-08-01",
		Kind:      node.KindDate,
		Content:   "",
		Metadata:  node.Metadata{},
		CreatedAt: time.Now().UTC().Truncate(time.Microsecond),
		UpdatedAt: time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != n.ID || got.Kind != n.Kind {
		t.Errorf("Get = %+v, want id/kind matching %+v", got, n)
	}

	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, n.ID); err != node.ErrNotFound {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
}

func TestStoreUpsertWithoutEmbedding(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	n := node.Node{ID: "n1", Kind: node.KindText, ParentID: "2026-08-01", RootID: "2026-08-01"}
	if err := s.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got, err := s.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Embedding != nil {
		t.Errorf("Embedding = %v, want nil", got.Embedding)
	}
}

func TestStoreQueryByParent(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	root := "2026-08-01"
	for i, id := range []string{"a", "b", "c"} {
		n := node.Node{
			ID:        id,
			Kind:      node.KindText,
			ParentID:  root,
			RootID:    root,
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		if err := s.Upsert(ctx, n); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	got, err := s.Query(ctx, store.Predicate{ParentID: root})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("Query returned %d nodes, want 3", len(got))
	}
}

func TestStoreKNN(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	vectors := map[string][]float32{
		"close":  {1, 0, 0, 0},
		"far":    {0, 1, 0, 0},
		"closer": {0.9, 0.1, 0, 0},
	}
	for id, v := range vectors {
		n := node.Node{ID: id, Kind: node.KindText, Embedding: v, CreatedAt: time.Now()}
		if err := s.Upsert(ctx, n); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}

	results, err := s.KNN(ctx, []float32{1, 0, 0, 0}, 2, nil)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("KNN returned %d results, want 2", len(results))
	}
	if results[0].Node.ID != "close" {
		t.Errorf("closest match = %q, want \"close\"", results[0].Node.ID)
	}
}
