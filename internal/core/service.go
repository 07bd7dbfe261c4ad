// Package core wires the store adapter, model adapters, hierarchy engine,
// embedding pipeline, and RAG engine into a single running Service. It is
// the entry point every cmd/ binary and external caller uses.
//
// For testing, inject a store via WithStore and pass test-double model
// adapters in Providers. When no store is injected, Initialize creates a
// PostgreSQL-backed one from the config.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nodespace/corelogic/internal/config"
	"github.com/nodespace/corelogic/internal/embedpipeline"
	"github.com/nodespace/corelogic/internal/hierarchy"
	"github.com/nodespace/corelogic/internal/observe"
	"github.com/nodespace/corelogic/internal/rag"
	"github.com/nodespace/corelogic/pkg/embedmodel"
	"github.com/nodespace/corelogic/pkg/genmodel"
	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
	"github.com/nodespace/corelogic/pkg/store/postgres"
)

const defaultEmbeddingDimensions = 1536

// Providers holds the model adapters the Service wires into its engines.
// Populated by main.go via the config registry.
type Providers struct {
	Embeddings embedmodel.Provider
	Generate   genmodel.Provider
}

// Service owns every subsystem's lifetime and exposes the public operations
// of the core: hierarchy mutation and traversal, embedding maintenance, and
// semantic search / question answering.
type Service struct {
	// cfgMu guards cfg, which Reconfigure may replace while requests are in
	// flight (a config watcher is the intended caller).
	cfgMu     sync.RWMutex
	cfg       *config.Config
	providers *Providers

	store     store.Store
	hierarchy *hierarchy.Engine
	pipeline  *embedpipeline.Pipeline
	rag       *rag.Engine
	metrics   *observe.Metrics

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*Service)

// WithStore injects a node store instead of creating a Postgres-backed one
// from config.
func WithStore(s store.Store) Option {
	return func(svc *Service) { svc.store = s }
}

// WithMetrics records pipeline and RAG latency into m instead of the
// package-level default metrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(svc *Service) { svc.metrics = m }
}

// New constructs a Service from cfg and providers but does not connect to
// any backing store yet — call Initialize to do that.
func New(cfg *config.Config, providers *Providers, opts ...Option) *Service {
	svc := &Service{cfg: cfg, providers: providers}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

// Initialize connects the node store (unless injected via WithStore) and
// wires the hierarchy engine, embedding pipeline, and RAG engine on top of
// it. It is safe to call Initialize exactly once per Service.
func (svc *Service) Initialize(ctx context.Context) error {
	if err := svc.initStore(ctx); err != nil {
		return fmt.Errorf("core: init store: %w", err)
	}

	if svc.metrics == nil {
		svc.metrics = observe.DefaultMetrics()
	}

	svc.pipeline = embedpipeline.New(svc.store, svc.providers.Embeddings, embedpipeline.WithMetrics(svc.metrics))
	svc.hierarchy = hierarchy.NewEngine(svc.store, svc.pipeline)

	ragOpts := []rag.Option{rag.WithMetrics(svc.metrics)}
	if svc.cfg.RAG.PromptPreamble != "" {
		ragOpts = append(ragOpts, rag.WithPromptPreamble(svc.cfg.RAG.PromptPreamble))
	}
	if svc.cfg.RAG.Temperature != 0 {
		ragOpts = append(ragOpts, rag.WithTemperature(svc.cfg.RAG.Temperature))
	}
	if svc.cfg.RAG.TopP != 0 {
		ragOpts = append(ragOpts, rag.WithTopP(svc.cfg.RAG.TopP))
	}
	if svc.cfg.RAG.MaxTokens != 0 {
		ragOpts = append(ragOpts, rag.WithMaxTokens(svc.cfg.RAG.MaxTokens))
	}
	svc.rag = rag.New(svc.store, svc.hierarchy, svc.providers.Embeddings, svc.providers.Generate, ragOpts...)

	return nil
}

// initStore connects to PostgreSQL using cfg.Store unless a store was
// already injected via WithStore.
func (svc *Service) initStore(ctx context.Context) error {
	if svc.store != nil {
		return nil
	}

	dsn := svc.cfg.Store.PostgresDSN
	if dsn == "" {
		return fmt.Errorf("store.postgres_dsn is required when a store is not injected")
	}

	dims := svc.cfg.Store.EmbeddingDimensions
	if dims == 0 {
		dims = defaultEmbeddingDimensions
	}

	pgStore, err := postgres.NewStore(ctx, dsn, dims)
	if err != nil {
		return err
	}
	svc.store = pgStore
	svc.closers = append(svc.closers, func() error {
		pgStore.Close()
		return nil
	})
	return nil
}

// Store returns the underlying node store, primarily for health checks.
func (svc *Service) Store() store.Store { return svc.store }

// defaultK returns the configured default result count for a query that did
// not request a specific k.
func (svc *Service) defaultK() int {
	svc.cfgMu.RLock()
	defer svc.cfgMu.RUnlock()
	if svc.cfg.RAG.DefaultK > 0 {
		return svc.cfg.RAG.DefaultK
	}
	return 10
}

// Reconfigure applies a freshly loaded config to the running service: the
// RAG generation knobs (temperature, top_p, max_tokens, prompt preamble) and
// default_k take effect immediately; changes to providers or the store
// require a restart. A zero-valued generation knob or an empty preamble in
// newCfg leaves the engine's current value in place. Intended as the
// callback passed to
// [config.NewWatcher].
func (svc *Service) Reconfigure(newCfg *config.Config) {
	svc.cfgMu.Lock()
	svc.cfg = newCfg
	svc.cfgMu.Unlock()

	if svc.rag == nil {
		return
	}
	svc.rag.UpdateGenParams(genmodel.GenParams{
		Temperature: newCfg.RAG.Temperature,
		TopP:        newCfg.RAG.TopP,
		MaxTokens:   newCfg.RAG.MaxTokens,
	})
	svc.rag.UpdatePromptPreamble(newCfg.RAG.PromptPreamble)
}

// ─── Hierarchy operations ───────────────────────────────────────────────────

// UpsertNode creates or updates a node and re-embeds its contextual text.
func (svc *Service) UpsertNode(ctx context.Context, p hierarchy.UpsertParams) (node.Node, error) {
	return svc.hierarchy.UpsertNode(ctx, p)
}

// DeleteNode removes a leaf node and relinks its sibling chain.
func (svc *Service) DeleteNode(ctx context.Context, id string) error {
	return svc.hierarchy.DeleteNode(ctx, id)
}

// AddChild reparents childID under parentID, appending it to the end of the
// parent's sibling chain.
func (svc *Service) AddChild(ctx context.Context, parentID, childID string) error {
	return svc.hierarchy.AddChild(ctx, parentID, childID)
}

// MakeSiblings links b to follow a in a's sibling chain.
func (svc *Service) MakeSiblings(ctx context.Context, a, b string) error {
	return svc.hierarchy.MakeSiblings(ctx, a, b)
}

// GetNode fetches a single node by id.
func (svc *Service) GetNode(ctx context.Context, id string) (node.Node, error) {
	return svc.store.Get(ctx, id)
}

// GetNodesForDate returns every node under the given date, depth-first.
func (svc *Service) GetNodesForDate(ctx context.Context, date string) ([]node.Node, error) {
	return svc.hierarchy.GetNodesForDate(ctx, date)
}

// GetOrderedChildren returns parentID's children in sibling-chain order,
// alongside any repair warnings produced while resolving the chain.
func (svc *Service) GetOrderedChildren(ctx context.Context, parentID string) ([]node.Node, []string, error) {
	return svc.hierarchy.GetOrderedChildren(ctx, parentID)
}

// GetHierarchicalPath returns the root-to-leaf ancestor chain ending at id.
func (svc *Service) GetHierarchicalPath(ctx context.Context, id string) ([]node.Node, error) {
	return svc.hierarchy.GetHierarchicalPath(ctx, id)
}

// ─── Retrieval operations ───────────────────────────────────────────────────

// SemanticSearch embeds queryText and returns the top-k most similar nodes.
// If k <= 0, the configured RAG default is used.
func (svc *Service) SemanticSearch(ctx context.Context, queryText string, k int, opts ...rag.SearchOption) ([]rag.Scored, error) {
	if k <= 0 {
		k = svc.defaultK()
	}
	return svc.rag.SemanticSearch(ctx, queryText, k, opts...)
}

// ProcessQuery runs the full retrieve-then-generate pipeline for a user
// question and returns a generated answer with its cited sources.
func (svc *Service) ProcessQuery(ctx context.Context, userQuestion string, opts ...rag.SearchOption) (rag.Answer, error) {
	return svc.rag.ProcessQuery(ctx, userQuestion, opts...)
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown runs the registered closers in the order they were added. It respects the
// context deadline: if ctx expires before all closers finish, remaining
// closers are skipped and the context error is returned.
func (svc *Service) Shutdown(ctx context.Context) error {
	var shutdownErr error
	svc.stopOnce.Do(func() {
		slog.Info("core: shutting down", "closers", len(svc.closers))
		for i, closer := range svc.closers {
			select {
			case <-ctx.Done():
				slog.Warn("core: shutdown deadline exceeded", "remaining", len(svc.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("core: closer error", "index", i, "err", err)
			}
		}
		slog.Info("core: shutdown complete")
	})
	return shutdownErr
}
