// Package openai provides a genmodel.Provider backed by the OpenAI chat
// completions API, trimmed to a single-shot Generate call — no streaming,
// no tool calling.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/nodespace/corelogic/pkg/genmodel"
)

// Ensure Provider implements genmodel.Provider.
var _ genmodel.Provider = (*Provider)(nil)

// Provider implements genmodel.Provider using the OpenAI API.
type Provider struct {
	client oai.Client
	model  string
}

type config struct {
	baseURL      string
	organization string
	timeout      time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) { c.baseURL = url }
}

// WithOrganization sets the OpenAI organization ID on all requests.
func WithOrganization(org string) Option {
	return func(c *config) { c.organization = org }
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// New constructs a new OpenAI generate Provider.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai genmodel: apiKey must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("openai genmodel: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.organization != "" {
		reqOpts = append(reqOpts, option.WithOrganization(cfg.organization))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	client := oai.NewClient(reqOpts...)
	return &Provider{client: client, model: model}, nil
}

// Generate implements genmodel.Provider.
func (p *Provider) Generate(ctx context.Context, prompt string, params genmodel.GenParams) (string, genmodel.Usage, error) {
	var messages []oai.ChatCompletionMessageParamUnion
	if params.SystemPrompt != "" {
		messages = append(messages, oai.SystemMessage(params.SystemPrompt))
	}
	messages = append(messages, oai.UserMessage(prompt))

	req := oai.ChatCompletionNewParams{
		Model:    shared.ChatModel(p.model),
		Messages: messages,
	}
	if params.Temperature != 0 {
		req.Temperature = param.NewOpt(params.Temperature)
	}
	if params.MaxTokens > 0 {
		req.MaxCompletionTokens = param.NewOpt(int64(params.MaxTokens))
	}
	if params.TopP != 0 {
		req.TopP = param.NewOpt(params.TopP)
	}
	if len(params.Stop) > 0 {
		req.Stop = oai.ChatCompletionNewParamsStopUnion{OfStringArray: params.Stop}
	}

	resp, err := p.client.Chat.Completions.New(ctx, req)
	if err != nil {
		return "", genmodel.Usage{}, fmt.Errorf("openai genmodel: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", genmodel.Usage{}, fmt.Errorf("openai genmodel: empty choices in response")
	}

	usage := genmodel.Usage{
		PromptTokens:     int(resp.Usage.PromptTokens),
		CompletionTokens: int(resp.Usage.CompletionTokens),
		TotalTokens:      int(resp.Usage.TotalTokens),
	}
	return resp.Choices[0].Message.Content, usage, nil
}

// CountTokens implements genmodel.Provider.
// TODO: replace with tiktoken-go for accurate per-model token counting.
func (p *Provider) CountTokens(text string) (int, error) {
	// ~4 chars per token is a rough GPT-series approximation.
	return (len(text) + 3) / 4, nil
}

// Capabilities implements genmodel.Provider.
func (p *Provider) Capabilities() genmodel.Capabilities {
	return modelCapabilities(p.model)
}

// modelCapabilities returns Capabilities for known OpenAI model names.
func modelCapabilities(model string) genmodel.Capabilities {
	caps := genmodel.Capabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}

	lower := strings.ToLower(model)
	switch {
	case strings.HasPrefix(lower, "gpt-4o-mini"), strings.HasPrefix(lower, "gpt-4o"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(lower, "gpt-4-turbo"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 4_096
	case strings.HasPrefix(lower, "gpt-4"):
		caps.ContextWindow = 8_192
		caps.MaxOutputTokens = 4_096
	case strings.HasPrefix(lower, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
		caps.MaxOutputTokens = 4_096
	case strings.HasPrefix(lower, "o1-mini"):
		caps.ContextWindow = 128_000
		caps.MaxOutputTokens = 65_536
	case strings.HasPrefix(lower, "o1"), strings.HasPrefix(lower, "o3"):
		caps.ContextWindow = 200_000
		caps.MaxOutputTokens = 100_000
	}
	return caps
}
