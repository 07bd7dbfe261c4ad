// Package mock provides a test double for the genmodel.Provider interface.
//
// Example:
//
//	p := &mock.Provider{GenerateResult: "Hello!"}
//	text, _, _ := p.Generate(ctx, "hi", genmodel.GenParams{})
package mock

import (
	"context"
	"sync"

	"github.com/nodespace/corelogic/pkg/genmodel"
)

// GenerateCall records a single invocation of Generate.
type GenerateCall struct {
	Ctx    context.Context
	Prompt string
	Params genmodel.GenParams
}

// CountTokensCall records a single invocation of CountTokens.
type CountTokensCall struct {
	Text string
}

// Provider is a mock implementation of genmodel.Provider.
type Provider struct {
	mu sync.Mutex

	GenerateResult string
	GenerateUsage  genmodel.Usage
	GenerateErr    error

	TokenCount     int
	CountTokensErr error

	CapabilitiesValue genmodel.Capabilities

	GenerateCalls    []GenerateCall
	CountTokensCalls []CountTokensCall

	CapabilitiesCallCount int
}

// Generate records the call and returns GenerateResult, GenerateUsage, GenerateErr.
func (p *Provider) Generate(ctx context.Context, prompt string, params genmodel.GenParams) (string, genmodel.Usage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = append(p.GenerateCalls, GenerateCall{Ctx: ctx, Prompt: prompt, Params: params})
	return p.GenerateResult, p.GenerateUsage, p.GenerateErr
}

// CountTokens records the call and returns TokenCount, CountTokensErr.
func (p *Provider) CountTokens(text string) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CountTokensCalls = append(p.CountTokensCalls, CountTokensCall{Text: text})
	return p.TokenCount, p.CountTokensErr
}

// Capabilities records the call and returns CapabilitiesValue.
func (p *Provider) Capabilities() genmodel.Capabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CapabilitiesCallCount++
	return p.CapabilitiesValue
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = nil
	p.CountTokensCalls = nil
	p.CapabilitiesCallCount = 0
}

// Ensure Provider implements genmodel.Provider at compile time.
var _ genmodel.Provider = (*Provider)(nil)
