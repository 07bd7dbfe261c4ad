package resilience

import (
	"context"

	"github.com/nodespace/corelogic/pkg/embedmodel"
)

// EmbedFallback implements [embedmodel.Provider] with automatic failover
// across multiple embedding backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type EmbedFallback struct {
	group *FallbackGroup[embedmodel.Provider]
}

// Compile-time interface assertion.
var _ embedmodel.Provider = (*EmbedFallback)(nil)

// NewEmbedFallback creates an [EmbedFallback] with primary as the preferred backend.
func NewEmbedFallback(primary embedmodel.Provider, primaryName string, cfg FallbackConfig) *EmbedFallback {
	return &EmbedFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional embedding provider as a fallback.
func (f *EmbedFallback) AddFallback(name string, provider embedmodel.Provider) {
	f.group.AddFallback(name, provider)
}

// Embed sends text to the first healthy provider and returns its embedding.
func (f *EmbedFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return ExecuteWithResult(f.group, func(p embedmodel.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// EmbedBatch sends texts to the first healthy provider and returns their embeddings.
func (f *EmbedFallback) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return ExecuteWithResult(f.group, func(p embedmodel.Provider) ([][]float32, error) {
		return p.EmbedBatch(ctx, texts)
	})
}

// Dimensions returns the primary provider's embedding dimension. Fallbacks
// must share the same dimensionality as the primary for the store's
// embedding column to remain consistent.
func (f *EmbedFallback) Dimensions() int {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Dimensions()
	}
	return 0
}

// ModelID returns the primary provider's model identifier.
func (f *EmbedFallback) ModelID() string {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.ModelID()
	}
	return ""
}
