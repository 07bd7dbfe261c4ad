// Package genmodel defines the generate half of the Model Adapter contract:
// mapping an assembled prompt to generated text.
//
// Unlike a general-purpose chat/completion API, this core's RAG pipeline
// issues exactly one generate call per query and never needs streaming
// output or tool calling — process_query assembles a single prompt and
// waits for the full response (spec §4.5: one-shot per query). Provider is
// therefore a deliberately narrow interface compared to a full chat LLM
// SDK surface.
//
// Implementations must be safe for concurrent use.
package genmodel

import "context"

// GenParams controls a single generate call.
type GenParams struct {
	// Temperature controls output randomness in the range [0.0, 2.0]. Lower
	// values produce more deterministic output. Zero requests the provider
	// default, not necessarily greedy decoding — use MaxTokens/Temperature
	// together with intent.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// TopP is the nucleus-sampling mass in the range (0.0, 1.0]. Zero
	// requests the provider default rather than disabling nucleus sampling.
	TopP float64

	// Stop lists sequences that, if generated, end the completion before
	// MaxTokens is reached. Nil means no provider-side stop sequences.
	Stop []string

	// SystemPrompt is an optional high-priority instruction prepended ahead
	// of the main prompt. Providers that lack a dedicated system role
	// prepend it as plain text.
	SystemPrompt string
}

// Usage holds token accounting for a single generate call.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Capabilities describes static metadata about a generate model.
type Capabilities struct {
	// ContextWindow is the maximum token count for prompt + completion.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one call.
	MaxOutputTokens int
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Generate sends prompt to the model and returns the full generated
	// text along with token usage accounting. Returns an error if the
	// request fails or ctx is cancelled.
	Generate(ctx context.Context, prompt string, params GenParams) (string, Usage, error)

	// CountTokens estimates how many tokens text would consume in this
	// model's context window. Used to enforce the prompt token budget
	// before issuing a Generate call. The result need not be exact but must
	// not undercount.
	CountTokens(text string) (int, error)

	// Capabilities returns static metadata about the underlying model.
	// Assumed constant for the lifetime of the Provider instance.
	Capabilities() Capabilities
}
