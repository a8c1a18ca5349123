// Package openai provides a generator adapter using the OpenAI chat API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/custodia-labs/lectern/internal/core/domain"
	"github.com/custodia-labs/lectern/internal/core/ports/driven"
)

// Ensure Generator implements the interfaces.
var (
	_ driven.Generator        = (*Generator)(nil)
	_ driven.PromptStoreAware = (*Generator)(nil)
)

// Default configuration values.
const (
	DefaultBaseURL    = "https://api.openai.com/v1"
	DefaultLLMModel   = goopenai.GPT4oMini
	DefaultLLMTimeout = 120 * time.Second
)

// defaultSystemPrompt is the fallback prompt when no PromptStore is configured.
const defaultSystemPrompt = `You are a study assistant for a school. Answer the student's question
using only the numbered material excerpts below. Cite excerpts as [n].
If the excerpts do not contain the answer, say that the material does not cover it.

Material excerpts:
%s`

// defaultNoContextPrompt is the fallback when a turn has no excerpts.
const defaultNoContextPrompt = "(no excerpts were found for this question)"

// LLMConfig holds configuration for the OpenAI generator.
type LLMConfig struct {
	// APIKey is the OpenAI API key (required).
	APIKey string

	// BaseURL is the API base URL (default: https://api.openai.com/v1).
	// Can be changed for Azure OpenAI or compatible APIs.
	BaseURL string

	// Model is the chat model to use (default: gpt-4o-mini).
	Model string

	// Timeout is the HTTP client timeout (default: 120s).
	Timeout time.Duration
}

// Generator answers chat turns using the OpenAI chat completions API.
type Generator struct {
	client      *goopenai.Client
	model       string
	promptStore driven.PromptStore
}

// NewGenerator creates a new OpenAI generator.
func NewGenerator(cfg LLMConfig) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultLLMModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultLLMTimeout
	}

	clientCfg := goopenai.DefaultConfig(cfg.APIKey)
	clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	return &Generator{
		client: goopenai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
	}, nil
}

// Generate answers the user's turn grounded on the request context.
func (g *Generator) Generate(ctx context.Context, req driven.GenerationRequest) (*driven.GenerationResult, error) {
	chatReq := goopenai.ChatCompletionRequest{
		Model:    g.model,
		Messages: g.messages(req),
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = float32(req.Temperature)
	}

	resp, err := g.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: no response choices returned")
	}

	return &driven.GenerationResult{
		Text:       strings.TrimSpace(resp.Choices[0].Message.Content),
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}

// messages lays out the system prompt with excerpts, prior turns and the
// current question.
func (g *Generator) messages(req driven.GenerationRequest) []goopenai.ChatCompletionMessage {
	excerpts := formatExcerpts(req.Context)
	if excerpts == "" {
		excerpts = g.loadPrompt(driven.PromptNoContext, defaultNoContextPrompt)
	}
	system := g.loadPrompt(driven.PromptTutorSystem, defaultSystemPrompt)

	msgs := make([]goopenai.ChatCompletionMessage, 0, len(req.History)+2)
	msgs = append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleSystem,
		Content: fmt.Sprintf(system, excerpts),
	})
	for _, m := range req.History {
		role := goopenai.ChatMessageRoleUser
		if m.Role == domain.RoleAssistant {
			role = goopenai.ChatMessageRoleAssistant
		}
		msgs = append(msgs, goopenai.ChatCompletionMessage{Role: role, Content: m.Content})
	}
	return append(msgs, goopenai.ChatCompletionMessage{
		Role:    goopenai.ChatMessageRoleUser,
		Content: req.UserText,
	})
}

// formatExcerpts numbers the context chunks from 1 and labels each with
// its page and section when known.
func formatExcerpts(w domain.ContextWindow) string {
	var b strings.Builder
	for i, c := range w.Chunks {
		fmt.Fprintf(&b, "[%d]", i+1)
		if c.Metadata.PageNumber != nil {
			fmt.Fprintf(&b, " (page %d)", *c.Metadata.PageNumber)
		}
		if c.Metadata.SectionTitle != "" {
			fmt.Fprintf(&b, " %s:", c.Metadata.SectionTitle)
		}
		b.WriteString("\n")
		b.WriteString(strings.TrimSpace(c.Metadata.Content))
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// loadPrompt loads a prompt from the store, falling back to the default if unavailable.
func (g *Generator) loadPrompt(name, fallback string) string {
	if g.promptStore == nil {
		return fallback
	}
	prompt, err := g.promptStore.Load(name)
	if err != nil {
		return fallback
	}
	return prompt
}

// ModelName returns the name of the chat model being used.
func (g *Generator) ModelName() string {
	return g.model
}

// SetPromptStore sets the prompt store for loading customisable prompts.
// If not set, the generator uses hardcoded default prompts.
func (g *Generator) SetPromptStore(store driven.PromptStore) {
	g.promptStore = store
}

// Ping validates the service is reachable by listing models.
func (g *Generator) Ping(ctx context.Context) error {
	if _, err := g.client.ListModels(ctx); err != nil {
		return fmt.Errorf("openai: ping failed: %w", classify(err))
	}
	return nil
}

// Close releases resources.
func (g *Generator) Close() error {
	return nil
}

// classify marks 429 responses as rate limited.
func classify(err error) error {
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &driven.RateLimitedError{Err: err}
	}
	var reqErr *goopenai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &driven.RateLimitedError{Err: err}
	}
	return fmt.Errorf("openai: %w", err)
}
