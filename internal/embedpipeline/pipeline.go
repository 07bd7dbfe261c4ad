// Package embedpipeline computes and attaches contextual embeddings to
// nodes before they reach the store.
//
// A node's embedding must represent its content in context, not in
// isolation (invariant I6): the pipeline walks the node's ancestors from the
// date node down to its immediate parent, concatenates their content with
// the node's own content, and embeds that combined text. For ai-chat nodes
// only the node's own content (its question title) is embedded — the full
// conversation transcript kept in metadata is never sent to the embedding
// model.
package embedpipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nodespace/corelogic/internal/observe"
	"github.com/nodespace/corelogic/pkg/embedmodel"
	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
)

// maxAncestorDepth bounds the ancestor walk so a corrupted cyclic chain
// cannot hang a write.
const maxAncestorDepth = 10_000

// Pipeline assembles contextual text and attaches an embedding to a node
// before persisting it.
type Pipeline struct {
	store   store.Store
	embed   embedmodel.Provider
	metrics *observe.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics overrides the metrics instance used to record embed latency
// and errors. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New constructs a Pipeline backed by s for ancestor lookups and by embed
// for computing vectors.
func New(s store.Store, embed embedmodel.Provider, opts ...Option) *Pipeline {
	p := &Pipeline{store: s, embed: embed}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Upsert assembles n's contextual text, embeds it, and persists the result.
// Embedding failures are swallowed to a nil Embedding rather than failing
// the write — a node with stale or missing embedding is still readable and
// editable, just absent from semantic search until the next successful
// embed. Such failures are logged as a warning and counted as a provider
// error in the metrics; they are not returned to the caller. Upsert returns
// an error only when context assembly or the store write fails.
func (p *Pipeline) Upsert(ctx context.Context, n node.Node) (node.Node, error) {
	ctx, span := observe.StartSpan(ctx, "embedpipeline.Upsert")
	defer span.End()

	if n.Kind == node.KindDate {
		if err := p.store.Upsert(ctx, n); err != nil {
			return node.Node{}, fmt.Errorf("embedpipeline: upsert date node %q: %w", n.ID, err)
		}
		return n, nil
	}

	text, err := p.contextualText(ctx, n)
	if err != nil {
		return node.Node{}, fmt.Errorf("embedpipeline: assemble context for %q: %w", n.ID, err)
	}

	start := time.Now()
	vec, err := p.embed.Embed(ctx, text)
	duration := time.Since(start)
	if p.metrics != nil && p.metrics.EmbedDuration != nil {
		p.metrics.EmbedDuration.Record(ctx, duration.Seconds())
	}
	if err != nil {
		observe.Logger(ctx).Warn("embedpipeline: embed failed, persisting without embedding",
			"node_id", n.ID, "error", err)
		if p.metrics != nil {
			p.metrics.RecordProviderError(ctx, p.embed.ModelID(), "embed")
		}
		n.Embedding = nil
	} else {
		n.Embedding = vec
		if p.metrics != nil {
			p.metrics.RecordProviderRequest(ctx, p.embed.ModelID(), "embed", "ok")
		}
	}

	if err := p.store.Upsert(ctx, n); err != nil {
		return node.Node{}, fmt.Errorf("embedpipeline: persist %q: %w", n.ID, err)
	}
	return n, nil
}

// contextualText builds the text that should be embedded for n: the
// ancestry prefix followed by n's own content, except for ai-chat nodes
// where only n's own content is embedded.
func (p *Pipeline) contextualText(ctx context.Context, n node.Node) (string, error) {
	if n.Kind == node.KindAIChat {
		return n.Content, nil
	}

	prefix, err := p.ancestryPrefix(ctx, n.ParentID)
	if err != nil {
		return "", err
	}
	if prefix == "" {
		return n.Content, nil
	}
	return prefix + "\n" + n.Content, nil
}

// ancestryPrefix walks ancestors from parentID up to (and including) the
// date node, collecting their content, then returns it oldest-first
// (date node first, immediate parent last) joined by newlines. The date
// node's content is skipped when empty; date nodes created by the hierarchy
// engine carry a date header, so it is normally included.
func (p *Pipeline) ancestryPrefix(ctx context.Context, parentID string) (string, error) {
	if parentID == "" {
		return "", nil
	}

	var chain []node.Node
	current := parentID
	for depth := 0; depth < maxAncestorDepth; depth++ {
		n, err := p.store.Get(ctx, current)
		if err != nil {
			return "", fmt.Errorf("ancestor %q: %w", current, err)
		}
		chain = append(chain, n)
		if n.Kind == node.KindDate {
			break
		}
		if n.ParentID == "" {
			return "", fmt.Errorf("%w: %q has no parent and is not a date node", node.ErrInvalidHierarchy, n.ID)
		}
		current = n.ParentID
	}

	var b strings.Builder
	for i := len(chain) - 1; i >= 0; i-- {
		n := chain[i]
		if n.Kind == node.KindDate && n.Content == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(n.Content)
	}
	return b.String(), nil
}

// Reembed recomputes and persists the embedding for the node with the given
// id, useful after a provider swap or model upgrade.
func (p *Pipeline) Reembed(ctx context.Context, id string) (node.Node, error) {
	n, err := p.store.Get(ctx, id)
	if err != nil {
		return node.Node{}, fmt.Errorf("embedpipeline: reembed %q: %w", id, err)
	}
	return p.Upsert(ctx, n)
}

// ReembedStale recomputes embeddings for every non-date node under rootID
// currently missing one and returns the ids it processed. If any upsert
// returns a hard error, it returns nil ids and that error.
func (p *Pipeline) ReembedStale(ctx context.Context, rootID string) ([]string, error) {
	missing := false
	nodes, err := p.store.Query(ctx, store.Predicate{RootID: rootID, HasEmbedding: &missing})
	if err != nil {
		return nil, fmt.Errorf("embedpipeline: reembed stale under %q: %w", rootID, err)
	}

	var ids []string
	eg, egCtx := errgroup.WithContext(ctx)
	resultCh := make(chan string, len(nodes))
	for _, n := range nodes {
		if n.Kind == node.KindDate {
			continue
		}
		n := n
		eg.Go(func() error {
			if _, err := p.Upsert(egCtx, n); err != nil {
				return err
			}
			resultCh <- n.ID
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("embedpipeline: reembed stale under %q: %w", rootID, err)
	}
	close(resultCh)
	for id := range resultCh {
		ids = append(ids, id)
	}
	return ids, nil
}
