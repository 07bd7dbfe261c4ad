// Package node defines the core data model of the node graph: a hierarchy of
// date, text, and ai-chat nodes connected by parent/child and sibling-chain
// relationships, each optionally carrying a content-addressed embedding.
package node

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what a Node represents. The zero value is not a valid Kind.
type Kind string

const (
	// KindDate is a root container for everything created on a given calendar
	// day. Exactly one date node exists per distinct date.
	KindDate Kind = "date"

	// KindText is a free-form content node: a paragraph, heading, list item,
	// or similar block created or edited by the user.
	KindText Kind = "text"

	// KindAIChat is a node capturing one turn of an AI conversation anchored
	// to the surrounding hierarchy.
	KindAIChat Kind = "ai-chat"
)

// NewID generates an opaque identifier suitable for a non-date node. Callers
// that don't need a deterministic or content-derived id (e.g. an interactive
// client creating a new text block) can use this instead of inventing their
// own scheme.
func NewID() string {
	return uuid.NewString()
}

// Valid reports whether k is one of the recognised node kinds.
func (k Kind) Valid() bool {
	switch k {
	case KindDate, KindText, KindAIChat:
		return true
	default:
		return false
	}
}

// Node is a single entry in the node graph.
type Node struct {
	// ID uniquely identifies this node. For date nodes this is a canonical
	// "YYYY-MM-DD" string; for all other kinds it is an opaque identifier
	// (see NewID).
	ID string

	// Kind classifies this node (see the Kind constants).
	Kind Kind

	// ParentID is the id of the containing node. Every non-root node must
	// have a parent (invariant I1). Date nodes have no parent.
	ParentID string

	// RootID is the id of the date node at the root of this node's
	// hierarchy. It lets a node be traced back to its day without walking
	// the full ancestor chain (invariant I3).
	RootID string

	// BeforeSibling is the id of the sibling that immediately precedes this
	// node in its parent's child order, or "" if this node is the first
	// child (the head of the sibling chain).
	BeforeSibling string

	// Content is the node's raw, user-authored text.
	Content string

	// Metadata holds free-form, JSON-serializable properties. Recognized
	// keys are exposed through typed accessors below rather than a rigid
	// schema, since node metadata varies by Kind and evolves over time.
	Metadata Metadata

	// Embedding is the contextual-text embedding vector for this node, or
	// nil if embedding has not yet succeeded (invariant I6: when present, it
	// represents the ancestry-qualified text, not Content in isolation).
	Embedding []float32

	// CreatedAt is when this node was first created. Used as the tie-break
	// key when ordering nodes with otherwise-equal relevance.
	CreatedAt time.Time

	// UpdatedAt is when this node's Content, Metadata, or Embedding was last
	// modified.
	UpdatedAt time.Time
}

// Metadata is a free-form property bag attached to a Node.
type Metadata map[string]any

// AIChatRole returns the "role" metadata key used by ai-chat nodes
// ("user" or "assistant"), and whether it was present.
func (m Metadata) AIChatRole() (string, bool) {
	v, ok := m["role"].(string)
	return v, ok
}

// WithAIChatRole returns a copy of m with the ai-chat "role" key set.
func (m Metadata) WithAIChatRole(role string) Metadata {
	out := m.clone()
	out["role"] = role
	return out
}

// clone returns a shallow copy of m, allocating a fresh map if m is nil.
func (m Metadata) clone() Metadata {
	out := make(Metadata, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
