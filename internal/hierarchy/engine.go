// Package hierarchy maintains the parent/child and sibling-order invariants
// over node identifiers: ordered-children retrieval, date-anchored
// descendant traversal, and hierarchical path reconstruction.
//
// The hierarchy is a forest of trees with a sibling linked list at each
// level, represented as ids-with-lookup rather than in-memory pointers —
// every traversal fetches from the underlying store lazily, so no
// in-process tree cache is required for correctness.
package hierarchy

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nodespace/corelogic/internal/embedpipeline"
	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
)

// Engine implements the hierarchy operations over a Store, delegating
// content-creating and content-mutating writes to an embedpipeline.Pipeline
// so every mutation carries a freshly computed contextual embedding.
type Engine struct {
	store    store.Store
	pipeline *embedpipeline.Pipeline
}

// NewEngine constructs an Engine backed by s for reads and by pipeline for
// writes.
func NewEngine(s store.Store, pipeline *embedpipeline.Pipeline) *Engine {
	return &Engine{store: s, pipeline: pipeline}
}

// UpsertParams carries the fields of a single upsert_node call.
type UpsertParams struct {
	ID            string
	Date          string
	Content       string
	ParentID      string
	BeforeSibling string
	Kind          node.Kind
	Metadata      node.Metadata
}

// EnsureDateNode returns the date node for date, creating it if absent.
// Idempotent: calling it twice for the same date returns the same node.
func (e *Engine) EnsureDateNode(ctx context.Context, date string) (node.Node, error) {
	existing, err := e.store.Get(ctx, date)
	if err == nil {
		return existing, nil
	}
	if err != node.ErrNotFound {
		return node.Node{}, fmt.Errorf("hierarchy: ensure date node %q: %w", date, err)
	}

	now := time.Now().UTC()
	n := node.Node{
		ID:        date,
		Kind:      node.KindDate,
		Content:   formatDateHeader(date),
		RootID:    date,
		Metadata:  node.Metadata{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	persisted, err := e.pipeline.Upsert(ctx, n)
	if err != nil {
		return node.Node{}, fmt.Errorf("hierarchy: create date node %q: %w", date, err)
	}
	return persisted, nil
}

// UpsertNode is the unified write path: ensures the date node exists,
// validates the hierarchy, splices the node into its sibling chain (a new
// node with no before_sibling is appended after the last child),
// computes root_id, and persists via the embedding pipeline.
func (e *Engine) UpsertNode(ctx context.Context, p UpsertParams) (node.Node, error) {
	if p.ID == "" {
		return node.Node{}, fmt.Errorf("hierarchy: upsert: %w: id must not be empty", node.ErrInvalidInput)
	}
	if !p.Kind.Valid() {
		return node.Node{}, fmt.Errorf("hierarchy: upsert: %w: invalid kind %q", node.ErrInvalidInput, p.Kind)
	}

	if p.Kind == node.KindDate {
		return e.EnsureDateNode(ctx, p.ID)
	}

	if p.Date == "" {
		return node.Node{}, fmt.Errorf("hierarchy: upsert: %w: date must not be empty", node.ErrInvalidInput)
	}
	dateNode, err := e.EnsureDateNode(ctx, p.Date)
	if err != nil {
		return node.Node{}, err
	}

	parentID := p.ParentID
	if parentID == "" {
		parentID = dateNode.ID
	}
	parent, err := e.store.Get(ctx, parentID)
	if err != nil {
		if err == node.ErrNotFound {
			return node.Node{}, fmt.Errorf("hierarchy: upsert %q: %w: parent %q does not exist", p.ID, node.ErrInvalidHierarchy, parentID)
		}
		return node.Node{}, fmt.Errorf("hierarchy: upsert %q: fetch parent: %w", p.ID, err)
	}

	if p.BeforeSibling != "" {
		sibling, err := e.store.Get(ctx, p.BeforeSibling)
		if err != nil || sibling.ParentID != parentID {
			return node.Node{}, fmt.Errorf("hierarchy: upsert %q: %w: before_sibling %q is not a child of %q", p.ID, node.ErrInvalidHierarchy, p.BeforeSibling, parentID)
		}
	}

	rootID, err := e.rootFor(ctx, parent)
	if err != nil {
		return node.Node{}, fmt.Errorf("hierarchy: upsert %q: resolve root: %w", p.ID, err)
	}

	beforeSibling := p.BeforeSibling
	now := time.Now().UTC()
	createdAt := now
	if existing, err := e.store.Get(ctx, p.ID); err == nil {
		createdAt = existing.CreatedAt
	} else if err != node.ErrNotFound {
		return node.Node{}, fmt.Errorf("hierarchy: upsert %q: fetch existing: %w", p.ID, err)
	} else if beforeSibling == "" {
		// A new node with no explicit predecessor goes after the parent's
		// current last child.
		children, _, err := e.GetOrderedChildren(ctx, parentID)
		if err != nil {
			return node.Node{}, fmt.Errorf("hierarchy: upsert %q: order siblings: %w", p.ID, err)
		}
		if len(children) > 0 {
			beforeSibling = children[len(children)-1].ID
		}
	}

	metadata := p.Metadata
	if metadata == nil {
		metadata = node.Metadata{}
	}

	n := node.Node{
		ID:            p.ID,
		Kind:          p.Kind,
		ParentID:      parentID,
		RootID:        rootID,
		BeforeSibling: beforeSibling,
		Content:       p.Content,
		Metadata:      metadata,
		CreatedAt:     createdAt,
		UpdatedAt:     now,
	}

	// Splice n into the sibling chain: any other child of parentID that
	// currently points to the same predecessor must now point to n instead,
	// so the chain stays a single list rather than forking at the insertion
	// point.
	if err := e.spliceSibling(ctx, n); err != nil {
		return node.Node{}, fmt.Errorf("hierarchy: upsert %q: splice sibling: %w", p.ID, err)
	}

	persisted, err := e.pipeline.Upsert(ctx, n)
	if err != nil {
		return node.Node{}, fmt.Errorf("hierarchy: upsert %q: %w", p.ID, err)
	}
	return persisted, nil
}

// spliceSibling re-links the existing child of n's parent that currently
// claims n.BeforeSibling as its own predecessor, so it now follows n.
func (e *Engine) spliceSibling(ctx context.Context, n node.Node) error {
	siblings, err := e.store.Query(ctx, store.Predicate{ParentID: n.ParentID})
	if err != nil {
		return err
	}
	for _, s := range siblings {
		if s.ID == n.ID {
			continue
		}
		if s.BeforeSibling == n.BeforeSibling {
			s.BeforeSibling = n.ID
			if _, err := e.pipeline.Upsert(ctx, s); err != nil {
				return fmt.Errorf("relink %q: %w", s.ID, err)
			}
			break
		}
	}
	return nil
}

// rootFor computes the root_id for a node whose parent is parent: the
// parent's own root_id if it is a content node, or the parent's id if the
// parent is itself the date node.
func (e *Engine) rootFor(ctx context.Context, parent node.Node) (string, error) {
	if parent.Kind == node.KindDate {
		return parent.ID, nil
	}
	if parent.RootID != "" {
		return parent.RootID, nil
	}
	// Defensive fallback: walk ancestors until a date node is found. Only
	// reached if a stored node's root_id was never populated.
	current := parent
	for depth := 0; depth < maxAncestorDepth; depth++ {
		if current.Kind == node.KindDate {
			return current.ID, nil
		}
		if current.ParentID == "" {
			return "", fmt.Errorf("%w: %q has no parent and is not a date node", node.ErrInvalidHierarchy, current.ID)
		}
		next, err := e.store.Get(ctx, current.ParentID)
		if err != nil {
			return "", err
		}
		current = next
	}
	return "", fmt.Errorf("%w: ancestor chain exceeds depth %d, possible cycle", node.ErrInvalidHierarchy, maxAncestorDepth)
}

// maxAncestorDepth bounds ancestor walks to guard against cycles that
// invariant I2 should prevent but that corrupted data could still produce.
const maxAncestorDepth = 10_000

// GetOrderedChildren reconstructs the sibling chain under parentID. If the
// chain is malformed (cycle, multiple heads, orphaned nodes), it returns
// what can be recovered in head-first order along with repair warnings
// rather than failing the read.
func (e *Engine) GetOrderedChildren(ctx context.Context, parentID string) ([]node.Node, []string, error) {
	children, err := e.store.Query(ctx, store.Predicate{ParentID: parentID})
	if err != nil {
		return nil, nil, fmt.Errorf("hierarchy: get ordered children %q: %w", parentID, err)
	}
	ordered, warnings := orderChildren(children)
	return ordered, warnings, nil
}

// orderChildren is the pure sibling-chain reconstruction algorithm shared by
// GetOrderedChildren and GetNodesForDate. It tolerates duplicate heads,
// cycles, and orphans, recovering a best-effort order and describing what it
// had to repair.
func orderChildren(children []node.Node) ([]node.Node, []string) {
	if len(children) == 0 {
		return nil, nil
	}

	byPredecessor := make(map[string][]node.Node)
	for _, c := range children {
		byPredecessor[c.BeforeSibling] = append(byPredecessor[c.BeforeSibling], c)
	}
	for pred := range byPredecessor {
		sortByCreatedAt(byPredecessor[pred])
		_ = pred
	}

	var warnings []string
	heads := byPredecessor[""]
	var head node.Node
	var extraHeads []node.Node
	switch {
	case len(heads) == 0:
		// Orphan chain: no node claims to be first. Fall back to created_at
		// order and flag it.
		warnings = append(warnings, fmt.Sprintf("no sibling head found among %d children; falling back to created_at order", len(children)))
		sorted := append([]node.Node(nil), children...)
		sortByCreatedAt(sorted)
		return sorted, warnings
	case len(heads) == 1:
		head = heads[0]
	default:
		head = heads[0]
		extraHeads = heads[1:]
		warnings = append(warnings, fmt.Sprintf("%d children claim no predecessor; %q kept as head by earliest created_at, rest appended to tail", len(heads), head.ID))
	}

	visited := map[string]bool{head.ID: true}
	result := []node.Node{head}
	current := head
	for {
		candidates := byPredecessor[current.ID]
		if len(candidates) == 0 {
			break
		}
		next := candidates[0]
		if len(candidates) > 1 {
			warnings = append(warnings, fmt.Sprintf("%d children claim predecessor %q; %q kept by earliest created_at, rest appended to tail", len(candidates), current.ID, next.ID))
			extraHeads = append(extraHeads, candidates[1:]...)
		}
		if visited[next.ID] {
			warnings = append(warnings, fmt.Sprintf("cycle detected in sibling chain at %q", next.ID))
			break
		}
		visited[next.ID] = true
		result = append(result, next)
		current = next
	}

	// Anything never reached (orphans, extra heads, and their own chains) is
	// appended in created_at order.
	var leftover []node.Node
	for _, c := range children {
		if !visited[c.ID] {
			leftover = append(leftover, c)
		}
	}
	if len(leftover) > 0 {
		sortByCreatedAt(leftover)
		warnings = append(warnings, fmt.Sprintf("%d orphaned children appended to tail in created_at order", len(leftover)))
		result = append(result, leftover...)
	}
	_ = extraHeads

	return result, warnings
}

func sortByCreatedAt(nodes []node.Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].CreatedAt.Equal(nodes[j].CreatedAt) {
			return nodes[i].ID < nodes[j].ID
		}
		return nodes[i].CreatedAt.Before(nodes[j].CreatedAt)
	})
}

// GetNodesForDate returns all descendants of the date node (not the date
// node itself), ordered depth-first with siblings in chain order.
func (e *Engine) GetNodesForDate(ctx context.Context, date string) ([]node.Node, error) {
	all, err := e.store.Query(ctx, store.Predicate{RootID: date})
	if err != nil {
		return nil, fmt.Errorf("hierarchy: get nodes for date %q: %w", date, err)
	}

	byParent := make(map[string][]node.Node)
	for _, n := range all {
		byParent[n.ParentID] = append(byParent[n.ParentID], n)
	}

	var result []node.Node
	var walk func(parentID string)
	walk = func(parentID string) {
		ordered, _ := orderChildren(byParent[parentID])
		for _, n := range ordered {
			result = append(result, n)
			walk(n.ID)
		}
	}
	walk(date)
	return result, nil
}

// AddChild attaches childID as the new last sibling under parentID,
// re-embedding it to reflect its new ancestry.
func (e *Engine) AddChild(ctx context.Context, parentID, childID string) error {
	parent, err := e.store.Get(ctx, parentID)
	if err != nil {
		return fmt.Errorf("hierarchy: add child: %w", err)
	}
	child, err := e.store.Get(ctx, childID)
	if err != nil {
		return fmt.Errorf("hierarchy: add child: %w", err)
	}

	ordered, _, err := e.GetOrderedChildren(ctx, parentID)
	if err != nil {
		return fmt.Errorf("hierarchy: add child: %w", err)
	}
	tailID := ""
	for _, n := range ordered {
		if n.ID != childID {
			tailID = n.ID
		}
	}

	rootID, err := e.rootFor(ctx, parent)
	if err != nil {
		return fmt.Errorf("hierarchy: add child: %w", err)
	}

	child.ParentID = parentID
	child.BeforeSibling = tailID
	child.RootID = rootID
	child.UpdatedAt = time.Now().UTC()

	if _, err := e.pipeline.Upsert(ctx, child); err != nil {
		return fmt.Errorf("hierarchy: add child: %w", err)
	}
	return nil
}

// MakeSiblings places b immediately after a in a's sibling chain, adopting
// a's parent.
func (e *Engine) MakeSiblings(ctx context.Context, a, b string) error {
	aNode, err := e.store.Get(ctx, a)
	if err != nil {
		return fmt.Errorf("hierarchy: make siblings: %w", err)
	}
	bNode, err := e.store.Get(ctx, b)
	if err != nil {
		return fmt.Errorf("hierarchy: make siblings: %w", err)
	}

	bNode.ParentID = aNode.ParentID
	bNode.RootID = aNode.RootID
	bNode.BeforeSibling = aNode.ID
	bNode.UpdatedAt = time.Now().UTC()

	if err := e.spliceSibling(ctx, bNode); err != nil {
		return fmt.Errorf("hierarchy: make siblings: %w", err)
	}
	if _, err := e.pipeline.Upsert(ctx, bNode); err != nil {
		return fmt.Errorf("hierarchy: make siblings: %w", err)
	}
	return nil
}

// GetHierarchicalPath returns the sequence of nodes from the root date node
// down to id, inclusive.
func (e *Engine) GetHierarchicalPath(ctx context.Context, id string) ([]node.Node, error) {
	var path []node.Node
	current, err := e.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("hierarchy: get hierarchical path %q: %w", id, err)
	}
	path = append(path, current)

	for depth := 0; depth < maxAncestorDepth && current.ParentID != ""; depth++ {
		parent, err := e.store.Get(ctx, current.ParentID)
		if err != nil {
			return nil, fmt.Errorf("hierarchy: get hierarchical path %q: %w", id, err)
		}
		path = append(path, parent)
		current = parent
	}

	// Reverse into root-to-leaf order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// DeleteNode removes id and re-links the successor (the child whose
// before_sibling is id) to adopt id's before_sibling, preserving the
// sibling chain. Date nodes are deleted only when explicitly requested;
// deleting a content node with children is rejected, since orphaning them
// would violate invariant I1.
func (e *Engine) DeleteNode(ctx context.Context, id string) error {
	n, err := e.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("hierarchy: delete %q: %w", id, err)
	}

	children, err := e.store.Query(ctx, store.Predicate{ParentID: id})
	if err != nil {
		return fmt.Errorf("hierarchy: delete %q: %w", id, err)
	}
	if len(children) > 0 {
		return fmt.Errorf("hierarchy: delete %q: %w: node has %d children", id, node.ErrInvalidHierarchy, len(children))
	}

	if n.ParentID != "" {
		siblings, err := e.store.Query(ctx, store.Predicate{ParentID: n.ParentID})
		if err != nil {
			return fmt.Errorf("hierarchy: delete %q: %w", id, err)
		}
		for _, s := range siblings {
			if s.BeforeSibling == id {
				s.BeforeSibling = n.BeforeSibling
				if _, err := e.pipeline.Upsert(ctx, s); err != nil {
					return fmt.Errorf("hierarchy: delete %q: relink successor: %w", id, err)
				}
				break
			}
		}
	}

	if err := e.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("hierarchy: delete %q: %w", id, err)
	}
	return nil
}

// Repair walks the sibling chain under parentID and re-persists any
// children whose before_sibling pointer orderChildren had to override to
// recover a valid chain, returning the warnings it fixed.
func (e *Engine) Repair(ctx context.Context, parentID string) ([]node.Node, []string, error) {
	ordered, warnings, err := e.GetOrderedChildren(ctx, parentID)
	if err != nil {
		return nil, nil, err
	}
	if len(warnings) == 0 {
		return ordered, nil, nil
	}

	prev := ""
	for _, n := range ordered {
		if n.BeforeSibling != prev {
			n.BeforeSibling = prev
			if _, err := e.pipeline.Upsert(ctx, n); err != nil {
				return nil, warnings, fmt.Errorf("hierarchy: repair %q: %w", parentID, err)
			}
		}
		prev = n.ID
	}
	return ordered, warnings, nil
}

// ListDates returns the ids of every date node currently in the store.
func (e *Engine) ListDates(ctx context.Context) ([]string, error) {
	nodes, err := e.store.Query(ctx, store.Predicate{Kind: node.KindDate})
	if err != nil {
		return nil, fmt.Errorf("hierarchy: list dates: %w", err)
	}
	dates := make([]string, 0, len(nodes))
	for _, n := range nodes {
		dates = append(dates, n.ID)
	}
	sort.Strings(dates)
	return dates, nil
}

func formatDateHeader(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return "# " + t.Format("January 2, 2006")
}
