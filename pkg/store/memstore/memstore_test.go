package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
)

func TestUpsertGetDelete(t *testing.T) {
	ctx := context.Background()
	s := New()

	n := node.Node{ID: "2026-08-01", Kind: node.KindDate, CreatedAt: time.Now()}
	if err := s.Upsert(ctx, n); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, n.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != n.ID {
		t.Errorf("Get returned id %q, want %q", got.ID, n.ID)
	}

	if err := s.Delete(ctx, n.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, n.ID); err != node.ErrNotFound {
		t.Errorf("Get after Delete = %v, want ErrNotFound", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := New()
	if _, err := s.Get(context.Background(), "missing"); err != node.ErrNotFound {
		t.Fatalf("Get(missing) = %v, want ErrNotFound", err)
	}
}

func TestQueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := New()

	base := time.Now()
	nodes := []node.Node{
		{ID: "c1", Kind: node.KindText, ParentID: "p", CreatedAt: base.Add(2 * time.Second)},
		{ID: "c2", Kind: node.KindText, ParentID: "p", CreatedAt: base},
		{ID: "c3", Kind: node.KindAIChat, ParentID: "p", CreatedAt: base.Add(time.Second)},
		{ID: "other", Kind: node.KindText, ParentID: "q", CreatedAt: base},
	}
	for _, n := range nodes {
		if err := s.Upsert(ctx, n); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	got, err := s.Query(ctx, store.Predicate{ParentID: "p", Kind: node.KindText})
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Query returned %d nodes, want 2", len(got))
	}
	if got[0].ID != "c2" || got[1].ID != "c1" {
		t.Errorf("Query order = [%s %s], want [c2 c1]", got[0].ID, got[1].ID)
	}
}

func TestKNNOrdersByDistance(t *testing.T) {
	ctx := context.Background()
	s := New()

	now := time.Now()
	_ = s.Upsert(ctx, node.Node{ID: "a", Embedding: []float32{1, 0}, CreatedAt: now})
	_ = s.Upsert(ctx, node.Node{ID: "b", Embedding: []float32{0, 1}, CreatedAt: now})
	_ = s.Upsert(ctx, node.Node{ID: "c", Embedding: []float32{0.9, 0.1}, CreatedAt: now})
	_ = s.Upsert(ctx, node.Node{ID: "no-embedding", CreatedAt: now})

	results, err := s.KNN(ctx, []float32{1, 0}, 2, nil)
	if err != nil {
		t.Fatalf("KNN: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("KNN returned %d results, want 2", len(results))
	}
	if results[0].Node.ID != "a" {
		t.Errorf("closest match = %q, want \"a\"", results[0].Node.ID)
	}
	if results[1].Node.ID != "c" {
		t.Errorf("second match = %q, want \"c\"", results[1].Node.ID)
	}
}
