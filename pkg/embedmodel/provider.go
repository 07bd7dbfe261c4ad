// Package embedmodel defines the embed half of the Model Adapter contract:
// mapping contextual text to a dense float32 vector.
//
// A Provider wraps a concrete embedding backend (a hosted API, a local
// Ollama server, or a test double). All vectors returned by a single
// Provider instance share the same dimensionality, reported by Dimensions.
// The embedding pipeline never embeds raw node content directly — it embeds
// the ancestor-prefixed contextual text assembled by internal/embedpipeline
// — but the Provider itself is agnostic to that policy and simply embeds
// whatever text it is given.
//
// Implementations must be safe for concurrent use.
package embedmodel

import "context"

// Provider is the abstraction over any text-embedding backend.
type Provider interface {
	// Embed computes the embedding vector for a single text string. Returns a
	// float32 slice of length Dimensions() or an error if the request fails or
	// ctx is cancelled.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for a slice of text strings in a
	// single provider call. The returned slice has the same length as texts
	// and the i-th element corresponds to texts[i].
	//
	// Returns an error if any single embedding fails or if ctx is cancelled.
	// On error the entire slice is nil — partial results are not returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every embedding vector produced
	// by this provider. Constant for the lifetime of the Provider instance.
	Dimensions() int

	// ModelID returns the provider-specific model identifier (e.g.
	// "text-embedding-3-small", "nomic-embed-text").
	ModelID() string
}
