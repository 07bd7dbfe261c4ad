package resilience

import (
	"context"

	"github.com/nodespace/corelogic/pkg/genmodel"
)

// GenerateFallback implements [genmodel.Provider] with automatic failover
// across multiple generation backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type GenerateFallback struct {
	group *FallbackGroup[genmodel.Provider]
}

// Compile-time interface assertion.
var _ genmodel.Provider = (*GenerateFallback)(nil)

// NewGenerateFallback creates a [GenerateFallback] with primary as the preferred backend.
func NewGenerateFallback(primary genmodel.Provider, primaryName string, cfg FallbackConfig) *GenerateFallback {
	return &GenerateFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional generation provider as a fallback.
func (f *GenerateFallback) AddFallback(name string, provider genmodel.Provider) {
	f.group.AddFallback(name, provider)
}

// Generate sends the prompt to the first healthy provider and returns its response.
func (f *GenerateFallback) Generate(ctx context.Context, prompt string, params genmodel.GenParams) (string, genmodel.Usage, error) {
	type result struct {
		text  string
		usage genmodel.Usage
	}
	r, err := ExecuteWithResult(f.group, func(p genmodel.Provider) (result, error) {
		text, usage, err := p.Generate(ctx, prompt, params)
		return result{text: text, usage: usage}, err
	})
	return r.text, r.usage, err
}

// CountTokens delegates to the first healthy provider's token counter.
func (f *GenerateFallback) CountTokens(text string) (int, error) {
	return ExecuteWithResult(f.group, func(p genmodel.Provider) (int, error) {
		return p.CountTokens(text)
	})
}

// Capabilities returns the capabilities of the first entry (the primary).
// This does not participate in failover because capabilities are static metadata.
func (f *GenerateFallback) Capabilities() genmodel.Capabilities {
	if len(f.group.entries) > 0 {
		return f.group.entries[0].value.Capabilities()
	}
	return genmodel.Capabilities{}
}
