// Package mock provides a test double for the store.Store interface.
//
// Use Store to return pre-canned results without a live backend and to
// verify which calls were made against it.
//
// Example:
//
//	s := &mock.Store{GetResult: someNode}
//	n, _ := s.Get(ctx, "some-id")
package mock

import (
	"context"
	"sync"

	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
)

// Call records a single method invocation for later inspection.
type Call struct {
	// Method is the name of the Store method invoked (e.g. "Upsert").
	Method string
	// Args holds the method's arguments in declaration order.
	Args []any
}

// Store is a mock implementation of store.Store.
type Store struct {
	mu sync.Mutex

	// --- Configurable responses ---

	UpsertErr error

	GetResult node.Node
	GetErr    error

	DeleteErr error

	QueryResult []node.Node
	QueryErr    error

	KNNResult []store.KNNResult
	KNNErr    error

	// --- Call records ---

	calls []Call
}

// Upsert records the call and returns UpsertErr.
func (s *Store) Upsert(ctx context.Context, n node.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Upsert", Args: []any{n}})
	return s.UpsertErr
}

// Get records the call and returns GetResult, GetErr.
func (s *Store) Get(ctx context.Context, id string) (node.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Get", Args: []any{id}})
	return s.GetResult, s.GetErr
}

// Delete records the call and returns DeleteErr.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Delete", Args: []any{id}})
	return s.DeleteErr
}

// Query records the call and returns QueryResult, QueryErr.
func (s *Store) Query(ctx context.Context, pred store.Predicate) ([]node.Node, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "Query", Args: []any{pred}})
	if s.QueryErr != nil {
		return nil, s.QueryErr
	}
	return s.QueryResult, nil
}

// KNN records the call and returns KNNResult, KNNErr.
func (s *Store) KNN(ctx context.Context, vector []float32, k int, pred *store.Predicate) ([]store.KNNResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Method: "KNN", Args: []any{vector, k, pred}})
	if s.KNNErr != nil {
		return nil, s.KNNErr
	}
	return s.KNNResult, nil
}

// Calls returns a copy of every call recorded so far.
func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Call, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns how many times method was invoked.
func (s *Store) CallCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Reset clears all recorded calls. Thread-safe.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = nil
}

// Ensure Store implements store.Store at compile time.
var _ store.Store = (*Store)(nil)
