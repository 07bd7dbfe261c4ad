package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nodespace/corelogic/pkg/embedmodel"
	"github.com/nodespace/corelogic/pkg/genmodel"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	embeddings map[string]func(ProviderEntry) (embedmodel.Provider, error)
	generate   map[string]func(ProviderEntry) (genmodel.Provider, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		embeddings: make(map[string]func(ProviderEntry) (embedmodel.Provider, error)),
		generate:   make(map[string]func(ProviderEntry) (genmodel.Provider, error)),
	}
}

// RegisterEmbeddings registers an embedding provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterEmbeddings(name string, factory func(ProviderEntry) (embedmodel.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.embeddings[name] = factory
}

// RegisterGenerate registers a generation provider factory under name.
func (r *Registry) RegisterGenerate(name string, factory func(ProviderEntry) (genmodel.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generate[name] = factory
}

// CreateEmbeddings instantiates an embedding provider using the factory
// registered under entry.Name. Returns [ErrProviderNotRegistered] if no
// factory has been registered for that name.
func (r *Registry) CreateEmbeddings(entry ProviderEntry) (embedmodel.Provider, error) {
	r.mu.RLock()
	factory, ok := r.embeddings[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: embeddings/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateGenerate instantiates a generation provider using the factory
// registered under entry.Name.
func (r *Registry) CreateGenerate(entry ProviderEntry) (genmodel.Provider, error) {
	r.mu.RLock()
	factory, ok := r.generate[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: generate/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
