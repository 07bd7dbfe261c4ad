// Package rag implements semantic search and retrieval-augmented question
// answering over the node graph: embed the query, retrieve nearby nodes,
// assemble a prompt from their hierarchical context, and call the
// generation model.
package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nodespace/corelogic/internal/hierarchy"
	"github.com/nodespace/corelogic/internal/observe"
	"github.com/nodespace/corelogic/pkg/embedmodel"
	"github.com/nodespace/corelogic/pkg/genmodel"
	"github.com/nodespace/corelogic/pkg/node"
	"github.com/nodespace/corelogic/pkg/store"
)

// state names the phases of a process_query call, threaded through the
// logger so each transition shows up in structured logs and traces.
type state string

const (
	stateEmbeddingQuery   state = "embedding_query"
	stateRetrieving       state = "retrieving"
	stateAssemblingPrompt state = "assembling_prompt"
	stateGenerating       state = "generating"
	stateDone             state = "done"
)

// oversampleFloor is the minimum candidate pool size semantic_search
// requests from the store before truncating to the caller's k, so that a
// small requested k still gets a representative ranked set.
const oversampleFloor = 10

// confidenceSourceCount is how many of the top scores are considered when
// computing confidence.
const confidenceSourceCount = 3

// confidenceScoreThreshold is the similarity score a source must clear to
// count toward source_count_factor.
const confidenceScoreThreshold = 0.5

// Scored pairs a node with its semantic_search similarity score.
type Scored struct {
	Node  node.Node
	Score float32
}

// Answer is the structured result of ProcessQuery.
type Answer struct {
	Text             string
	Sources          []string
	Confidence       float64
	GenerationTimeMS int64
}

// SearchOption configures a single SemanticSearch call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	rawContent bool
}

// WithoutHierarchicalContext makes SemanticSearch embed and compare against
// each candidate's raw content instead of its stored contextual embedding,
// to demonstrate or regression-test the quality gain contextual embedding
// provides. It is slower (every candidate is re-embedded on the fly) and is
// intended for diagnostics, not the default query path.
func WithoutHierarchicalContext() SearchOption {
	return func(c *searchConfig) { c.rawContent = true }
}

// Engine implements semantic_search and process_query.
type Engine struct {
	store     store.Store
	hierarchy *hierarchy.Engine
	embed     embedmodel.Provider
	generate  genmodel.Provider
	metrics   *observe.Metrics

	// paramsMu guards promptPreamble and genParams, which UpdateGenParams and
	// UpdatePromptPreamble may rewrite while a config watcher is live.
	paramsMu       sync.RWMutex
	promptPreamble string
	genParams      genmodel.GenParams
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics overrides the metrics instance. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithPromptPreamble overrides the fixed instruction preamble prepended to
// every assembled prompt.
func WithPromptPreamble(s string) Option {
	return func(e *Engine) { e.promptPreamble = s }
}

// WithTemperature overrides the generation temperature. Defaults to
// defaultTemperature.
func WithTemperature(t float64) Option {
	return func(e *Engine) { e.genParams.Temperature = t }
}

// WithTopP overrides the nucleus-sampling mass passed to the generation
// model. Defaults to defaultTopP.
func WithTopP(p float64) Option {
	return func(e *Engine) { e.genParams.TopP = p }
}

// WithMaxTokens overrides the completion token cap for generated answers.
// Defaults to defaultMaxTokens.
func WithMaxTokens(n int) Option {
	return func(e *Engine) { e.genParams.MaxTokens = n }
}

const defaultPreamble = "Answer the user's question using only the information in the numbered sources below. If the sources do not contain the answer, say so plainly."

// defaultTemperature, defaultTopP, and defaultMaxTokens are the generation
// knobs used when the caller doesn't configure rag.* values explicitly. The
// team settled on top_p 0.9 over a higher-diversity value after disagreeing
// on how much nucleus-sampling spread the answer prompt should tolerate.
const (
	defaultTemperature = 1.0
	defaultTopP        = 0.9
	defaultMaxTokens   = 200
)

// New constructs an Engine.
func New(s store.Store, h *hierarchy.Engine, embed embedmodel.Provider, generate genmodel.Provider, opts ...Option) *Engine {
	e := &Engine{
		store: s, hierarchy: h, embed: embed, generate: generate,
		promptPreamble: defaultPreamble,
		genParams: genmodel.GenParams{
			Temperature: defaultTemperature,
			TopP:        defaultTopP,
			MaxTokens:   defaultMaxTokens,
		},
	}
	for _, o := range opts {
		o(e)
	}
	if e.metrics == nil {
		e.metrics = observe.DefaultMetrics()
	}
	return e
}

// UpdateGenParams atomically replaces the generation knobs used by
// ProcessQuery. Zero-valued fields in p are ignored so a caller only needs
// to pass the values it wants changed. Safe to call while queries are in
// flight — a config watcher is the intended caller.
func (e *Engine) UpdateGenParams(p genmodel.GenParams) {
	e.paramsMu.Lock()
	defer e.paramsMu.Unlock()
	if p.Temperature != 0 {
		e.genParams.Temperature = p.Temperature
	}
	if p.TopP != 0 {
		e.genParams.TopP = p.TopP
	}
	if p.MaxTokens != 0 {
		e.genParams.MaxTokens = p.MaxTokens
	}
}

// UpdatePromptPreamble atomically replaces the instruction preamble prepended
// to every assembled prompt. A no-op if s is empty.
func (e *Engine) UpdatePromptPreamble(s string) {
	if s == "" {
		return
	}
	e.paramsMu.Lock()
	defer e.paramsMu.Unlock()
	e.promptPreamble = s
}

func (e *Engine) currentGenParams() genmodel.GenParams {
	e.paramsMu.RLock()
	defer e.paramsMu.RUnlock()
	return e.genParams
}

func (e *Engine) currentPromptPreamble() string {
	e.paramsMu.RLock()
	defer e.paramsMu.RUnlock()
	return e.promptPreamble
}

// SemanticSearch embeds queryText, retrieves an oversampled candidate pool
// from the store, and returns the top k matches by cosine similarity,
// ties broken by earlier created_at. Returns an empty slice, not an error,
// when the store holds no embedded nodes.
func (e *Engine) SemanticSearch(ctx context.Context, queryText string, k int, opts ...SearchOption) ([]Scored, error) {
	start := time.Now()
	defer func() {
		if e.metrics != nil && e.metrics.SearchDuration != nil {
			e.metrics.SearchDuration.Record(ctx, time.Since(start).Seconds())
		}
	}()

	cfg := &searchConfig{}
	for _, o := range opts {
		o(cfg)
	}

	q, err := e.embed.Embed(ctx, queryText)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", node.ErrEmbedFailure, err)
	}

	kPrime := k
	if kPrime < oversampleFloor {
		kPrime = oversampleFloor
	}

	var scored []Scored
	if cfg.rawContent {
		scored, err = e.searchRawContent(ctx, q, kPrime)
	} else {
		scored, err = e.searchContextual(ctx, q, kPrime)
	}
	if err != nil {
		return nil, err
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score == scored[j].Score {
			return scored[i].Node.CreatedAt.Before(scored[j].Node.CreatedAt)
		}
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

// searchContextual is the default path: ask the store for its k-nearest
// neighbors by the distance metric it natively supports.
func (e *Engine) searchContextual(ctx context.Context, q []float32, kPrime int) ([]Scored, error) {
	has := true
	results, err := e.store.KNN(ctx, q, kPrime, &store.Predicate{HasEmbedding: &has})
	if err != nil {
		return nil, fmt.Errorf("%w: knn: %v", node.ErrQueryFailure, err)
	}
	scored := make([]Scored, 0, len(results))
	for _, r := range results {
		scored = append(scored, Scored{Node: r.Node, Score: 1 - r.Distance})
	}
	return scored, nil
}

// searchRawContent re-embeds every candidate's raw content on the fly and
// scores it locally against q, bypassing the store's own vector index. This
// backs [WithoutHierarchicalContext] and is O(n) in the candidate count, so
// it is meant for diagnostics over modest node counts, not production query
// volume.
func (e *Engine) searchRawContent(ctx context.Context, q []float32, kPrime int) ([]Scored, error) {
	has := true
	candidates, err := e.store.Query(ctx, store.Predicate{HasEmbedding: &has})
	if err != nil {
		return nil, fmt.Errorf("%w: query candidates: %v", node.ErrQueryFailure, err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Content
	}
	vectors, err := e.embed.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("%w: embed raw content: %v", node.ErrEmbedFailure, err)
	}

	scored := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		scored = append(scored, Scored{Node: c, Score: cosineSimilarity(q, vectors[i])})
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })
	if len(scored) > kPrime {
		scored = scored[:kPrime]
	}
	return scored, nil
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return -1
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return -1
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// snippet is a retrieved node's contextual text ready to drop into a prompt.
type snippet struct {
	nodeID string
	text   string
	score  float32
}

// ProcessQuery retrieves context for userQuestion, assembles a prompt, calls
// the generation model, and returns a structured Answer.
func (e *Engine) ProcessQuery(ctx context.Context, userQuestion string, opts ...SearchOption) (Answer, error) {
	start := time.Now()
	if e.metrics != nil && e.metrics.ActiveQueries != nil {
		e.metrics.ActiveQueries.Add(ctx, 1)
		defer e.metrics.ActiveQueries.Add(ctx, -1)
	}

	logState(ctx, stateEmbeddingQuery, userQuestion)
	const defaultK = 10
	results, err := e.SemanticSearch(ctx, userQuestion, defaultK, opts...)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: semantic search: %v", node.ErrQueryFailure, err)
	}

	logState(ctx, stateRetrieving, userQuestion)
	snippets, err := e.buildSnippets(ctx, results)
	if err != nil {
		return Answer{}, fmt.Errorf("%w: build snippets: %v", node.ErrQueryFailure, err)
	}

	logState(ctx, stateAssemblingPrompt, userQuestion)
	prompt := e.assemblePrompt(snippets, userQuestion)

	logState(ctx, stateGenerating, userQuestion)
	genStart := time.Now()
	text, _, err := e.generate.Generate(ctx, prompt, e.currentGenParams())
	genDuration := time.Since(genStart)
	if e.metrics != nil && e.metrics.GenerateDuration != nil {
		e.metrics.GenerateDuration.Record(ctx, genDuration.Seconds())
	}
	if err != nil {
		if e.metrics != nil {
			e.metrics.RecordProviderError(ctx, "generate", "generate")
		}
		return Answer{}, fmt.Errorf("%w: generate: %v", node.ErrGenerateFailure, err)
	}

	sources := make([]string, len(snippets))
	scores := make([]float32, len(snippets))
	for i, s := range snippets {
		sources[i] = s.nodeID
		scores[i] = s.score
	}

	logState(ctx, stateDone, userQuestion)
	return Answer{
		Text:             text,
		Sources:          sources,
		Confidence:       confidence(scores),
		GenerationTimeMS: time.Since(start).Milliseconds(),
	}, nil
}

// buildSnippets fans out hierarchical-path reconstruction for each result
// concurrently via errgroup and formats each as "<ancestry> // <content>".
func (e *Engine) buildSnippets(ctx context.Context, results []Scored) ([]snippet, error) {
	snippets := make([]snippet, len(results))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, r := range results {
		i, r := i, r
		eg.Go(func() error {
			path, err := e.hierarchy.GetHierarchicalPath(egCtx, r.Node.ID)
			if err != nil {
				return fmt.Errorf("hierarchical path for %q: %w", r.Node.ID, err)
			}
			var ancestry []string
			for _, n := range path[:len(path)-1] {
				if n.Content != "" {
					ancestry = append(ancestry, n.Content)
				}
			}
			text := r.Node.Content
			if len(ancestry) > 0 {
				text = strings.Join(ancestry, " > ") + " // " + r.Node.Content
			}
			snippets[i] = snippet{nodeID: r.Node.ID, text: text, score: r.Score}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return snippets, nil
}

// assemblePrompt assembles the fixed preamble, numbered source snippets, and
// the user question into a single prompt string, respecting a character-based
// token-budget approximation when the generation model exposes no tokenizer.
func (e *Engine) assemblePrompt(snippets []snippet, userQuestion string) string {
	const approxCharsPerToken = 4
	const tokenBudget = 3000

	var b strings.Builder
	b.WriteString(e.currentPromptPreamble())
	b.WriteString("\n\n")

	budget := tokenBudget * approxCharsPerToken
	budget -= b.Len() + len(userQuestion) + 64

	for i, s := range snippets {
		line := fmt.Sprintf("[%d] %s\n", i+1, s.text)
		count, err := e.generate.CountTokens(line)
		cost := len(line)
		if err == nil {
			cost = count * approxCharsPerToken
		}
		if cost > budget {
			break
		}
		b.WriteString(line)
		budget -= cost
	}

	b.WriteString("\nQuestion: ")
	b.WriteString(userQuestion)
	return b.String()
}

// confidence computes clamp(mean(top-3 scores) * source_count_factor, 0, 1),
// where source_count_factor is 1.0 when at least 3 sources cleared
// confidenceScoreThreshold and scales down otherwise. A query with no
// sources yields 0.
func confidence(scores []float32) float64 {
	if len(scores) == 0 {
		return 0
	}
	n := len(scores)
	if n > confidenceSourceCount {
		n = confidenceSourceCount
	}
	var sum float64
	cleared := 0
	for i := 0; i < n; i++ {
		sum += float64(scores[i])
		if scores[i] >= confidenceScoreThreshold {
			cleared++
		}
	}
	mean := sum / float64(n)
	factor := float64(cleared) / float64(confidenceSourceCount)
	if cleared >= confidenceSourceCount {
		factor = 1.0
	}
	return clamp(mean*factor, 0, 1)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func logState(ctx context.Context, s state, question string) {
	observe.Logger(ctx).Debug("rag state transition", "state", string(s), "question", question)
}
