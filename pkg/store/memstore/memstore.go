// Package memstore provides an in-memory implementation of store.Store.
//
// It is a genuine (if unoptimized) backend: kNN search is a linear scan
// scored by cosine distance. It backs unit tests for the hierarchy,
// embedding pipeline, and RAG engine, and the nodespace-demo command, where
// standing up PostgreSQL is unnecessary overhead.
package memstore

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
)

// Store is an in-memory, map-backed store.Store implementation. It is safe
// for concurrent use.
type Store struct {
	mu    sync.RWMutex
	nodes map[string]node.Node
}

// New returns an empty Store.
func New() *Store {
	return &Store{nodes: make(map[string]node.Node)}
}

// Upsert implements store.Store.
func (s *Store) Upsert(_ context.Context, n node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
	return nil
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, id string) (node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return node.Node{}, node.ErrNotFound
	}
	return n, nil
}

// Delete implements store.Store.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.nodes, id)
	return nil
}

// Query implements store.Store.
func (s *Store) Query(_ context.Context, pred store.Predicate) ([]node.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []node.Node
	for _, n := range s.nodes {
		if matches(n, pred) {
			matched = append(matched, n)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if pred.Limit > 0 && len(matched) > pred.Limit {
		matched = matched[:pred.Limit]
	}
	return matched, nil
}

// KNN implements store.Store via a full linear scan scored by cosine distance.
func (s *Store) KNN(_ context.Context, vector []float32, k int, pred *store.Predicate) ([]store.KNNResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []store.KNNResult
	for _, n := range s.nodes {
		if len(n.Embedding) == 0 {
			continue
		}
		if pred != nil && !matches(n, *pred) {
			continue
		}
		candidates = append(candidates, store.KNNResult{
			Node:     n,
			Distance: cosineDistance(vector, n.Embedding),
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Distance == candidates[j].Distance {
			return candidates[i].Node.CreatedAt.Before(candidates[j].Node.CreatedAt)
		}
		return candidates[i].Distance < candidates[j].Distance
	})
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// matches reports whether n satisfies every non-zero field of pred.
func matches(n node.Node, pred store.Predicate) bool {
	if pred.Kind != "" && n.Kind != pred.Kind {
		return false
	}
	if pred.ParentID != "" && n.ParentID != pred.ParentID {
		return false
	}
	if pred.RootID != "" && n.RootID != pred.RootID {
		return false
	}
	if pred.HasEmbedding != nil && (len(n.Embedding) > 0) != *pred.HasEmbedding {
		return false
	}
	return true
}

// cosineDistance returns 1 - cosine_similarity(a, b), matching pgvector's
// `<=>` operator semantics. Mismatched or zero-length vectors yield the
// maximum distance of 2.
func cosineDistance(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	similarity := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return float32(1 - similarity)
}

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)
