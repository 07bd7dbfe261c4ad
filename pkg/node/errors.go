package node

import "errors"

// Sentinel errors forming the error taxonomy shared by every layer of the
// core: hierarchy engine, embedding pipeline, store adapters, model
// adapters, and the RAG engine. Callers should match with [errors.Is];
// call sites wrap these with additional context via fmt.Errorf("%w: ...").
var (
	// ErrNotFound indicates a requested node id does not exist in the store.
	ErrNotFound = errors.New("node: not found")

	// ErrInvalidHierarchy indicates an operation would violate one of the
	// node graph's structural invariants (I1-I5): a missing parent, a
	// broken or cyclic sibling chain, a root_id that does not resolve to a
	// date node, or a kind/parent mismatch.
	ErrInvalidHierarchy = errors.New("node: invalid hierarchy")

	// ErrInvalidInput indicates malformed caller input: an empty id, an
	// unrecognised Kind, or a date string that does not parse.
	ErrInvalidInput = errors.New("node: invalid input")

	// ErrStoreUnavailable indicates the backing store could not be reached
	// (connection failure, timeout dialing, pool exhaustion).
	ErrStoreUnavailable = errors.New("node: store unavailable")

	// ErrStoreCorrupt indicates the store returned data that could not be
	// interpreted as a valid Node (e.g. a malformed metadata blob).
	ErrStoreCorrupt = errors.New("node: store returned corrupt data")

	// ErrModelUnavailable indicates every configured embed or generate
	// provider (including fallbacks) failed to respond.
	ErrModelUnavailable = errors.New("node: model unavailable")

	// ErrModelTimeout indicates a model call exceeded its deadline.
	ErrModelTimeout = errors.New("node: model timeout")

	// ErrEmbedFailure indicates an embed call returned an error other than
	// unavailability or timeout (e.g. the provider rejected the input).
	ErrEmbedFailure = errors.New("node: embed failed")

	// ErrGenerateFailure indicates a generate call returned an error other
	// than unavailability or timeout.
	ErrGenerateFailure = errors.New("node: generate failed")

	// ErrQueryFailure indicates a retrieval or RAG operation failed for a
	// reason not covered by the more specific sentinels above.
	ErrQueryFailure = errors.New("node: query failed")

	// ErrCancelled indicates the caller's context was cancelled or expired
	// before the operation completed.
	ErrCancelled = errors.New("node: operation cancelled")
)
