// Package store defines the Store Adapter contract: the boundary between the
// hierarchy/embedding/RAG engines and a columnar vector store. Concrete
// backends live in subpackages (postgres, memstore); mock is a test double.
package store

import (
	"context"

	"github.com/nodespace/corelogic/pkg/node"
)

// Predicate filters nodes returned by [Store.Query]. All non-zero fields are
// ANDed together; a zero-value Predicate matches every node.
type Predicate struct {
	// Kind restricts results to nodes of this kind. Empty means any kind.
	Kind node.Kind

	// ParentID restricts results to direct children of this node id. Empty
	// means no parent filter.
	ParentID string

	// RootID restricts results to nodes whose RootID equals this date-node
	// id. Empty means no root filter.
	RootID string

	// HasEmbedding, when non-nil, restricts results to nodes whose Embedding
	// is present (*HasEmbedding == true) or absent (*HasEmbedding == false).
	HasEmbedding *bool

	// Limit caps the number of returned nodes. Zero means unlimited.
	Limit int
}

// KNNResult is a single match from a [Store.KNN] nearest-neighbour search.
type KNNResult struct {
	// Node is the matched node, including its stored embedding.
	Node node.Node

	// Distance is the backend's native distance metric (cosine distance for
	// both the postgres and memstore backends: 0 means identical direction,
	// 2 means opposite). Callers typically convert this to a similarity
	// score via 1 - Distance.
	Distance float32
}

// Store is the Store Adapter contract: node CRUD plus k-nearest-neighbour
// search over node embeddings. Implementations must be safe for concurrent
// use and must serialize writes to the same node id so that concurrent
// upserts never interleave at the field level.
//
// All methods accept a context.Context and must return promptly after it is
// cancelled or its deadline expires.
type Store interface {
	// Upsert creates or replaces the node with the given id. Implementations
	// must perform this atomically with respect to other Upsert/Delete calls
	// on the same id.
	Upsert(ctx context.Context, n node.Node) error

	// Get returns the node with the given id, or [node.ErrNotFound] if it
	// does not exist.
	Get(ctx context.Context, id string) (node.Node, error)

	// Delete removes the node with the given id. Deleting a node that does
	// not exist is not an error.
	Delete(ctx context.Context, id string) error

	// Query returns all nodes matching pred, in an unspecified but stable
	// order (implementations order by CreatedAt to make pagination and tests
	// deterministic).
	Query(ctx context.Context, pred Predicate) ([]node.Node, error)

	// KNN returns the k nodes whose embeddings are closest to vector, by
	// ascending distance. If pred is non-nil, only nodes matching it are
	// considered. Nodes with no embedding are never returned.
	KNN(ctx context.Context, vector []float32, k int, pred *Predicate) ([]KNNResult, error)
}
