package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"

	openai "github.com/sashabaranov/go-openai"
)

// ErrMissingAPIKey is returned before any network call when no credential
// could be resolved for a turn.
var ErrMissingAPIKey = errors.New("missing API key")

// UpstreamError carries a provider failure. Its message is the provider's
// own error text, unchanged.
type UpstreamError struct {
	Provider string
	Err      error
}

func (e *UpstreamError) Error() string { return e.Err.Error() }
func (e *UpstreamError) Unwrap() error { return e.Err }

// Completion is one request to a text-generation provider.
type Completion struct {
	Model    string
	APIKey   string
	Segments []prompts.Segment
}

// Provider sends segments to a language model and returns its raw text.
type Provider interface {
	Name() string
	Complete(ctx context.Context, c Completion) (string, error)
}

// OpenAI talks to any OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	baseURL string
}

// NewOpenAI creates a provider for the given base URL. An empty URL means
// the public OpenAI API.
func NewOpenAI(baseURL string) *OpenAI {
	return &OpenAI{baseURL: baseURL}
}

func (o *OpenAI) Name() string { return "openai" }

// Complete runs one chat completion. The client is built per call because
// the credential can differ between requests.
func (o *OpenAI) Complete(ctx context.Context, c Completion) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	config := openai.DefaultConfig(c.APIKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	api := openai.NewClientWithConfig(config)

	chatMsgs := make([]openai.ChatCompletionMessage, 0, len(c.Segments))
	for _, s := range c.Segments {
		chatMsgs = append(chatMsgs, openai.ChatCompletionMessage{
			Role:    openAIRole(s.Role),
			Content: s.Content,
		})
	}

	resp, err := api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.Model,
		Messages:    chatMsgs,
		Temperature: 0.4,
	})
	if err != nil {
		return "", &UpstreamError{Provider: o.Name(), Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &UpstreamError{Provider: o.Name(), Err: errors.New("LLM returned no choices")}
	}

	raw := resp.Choices[0].Message.Content
	slog.Debug("LLM response", "provider", o.Name(), "model", c.Model, "raw", raw)
	return raw, nil
}

func openAIRole(r model.Role) string {
	switch r {
	case model.RoleSystem:
		return openai.ChatMessageRoleSystem
	case model.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}

// Router picks a provider by model name: "gemini*" models go to Gemini,
// everything else to the OpenAI-compatible backend.
type Router struct {
	openAI Provider
	gemini Provider
}

// NewRouter creates a router. gemini may be nil, in which case every model
// goes to the OpenAI-compatible provider.
func NewRouter(openAI, gemini Provider) *Router {
	return &Router{openAI: openAI, gemini: gemini}
}

// IsGeminiModel reports whether a model name belongs to the Gemini family.
func IsGeminiModel(name string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(name)), "gemini")
}

// For returns the provider that serves the given model.
func (r *Router) For(modelName string) Provider {
	if r.gemini != nil && IsGeminiModel(modelName) {
		return r.gemini
	}
	return r.openAI
}

// Turn is everything the tutor needs to answer one chat turn.
type Turn struct {
	Model   string
	APIKey  string
	Context prompts.Input
}

// Tutor builds the context, calls the provider and normalizes its answer.
type Tutor struct {
	router *Router
}

// NewTutor creates a tutor over a provider router.
func NewTutor(r *Router) *Tutor {
	return &Tutor{router: r}
}

// Respond runs one turn. Missing credentials and provider failures are
// returned as errors; malformed model output never is.
func (t *Tutor) Respond(ctx context.Context, turn Turn) (Result, error) {
	if strings.TrimSpace(turn.APIKey) == "" {
		return Result{}, ErrMissingAPIKey
	}
	p := t.router.For(turn.Model)
	raw, err := p.Complete(ctx, Completion{
		Model:    turn.Model,
		APIKey:   turn.APIKey,
		Segments: prompts.Build(turn.Context),
	})
	if err != nil {
		return Result{}, fmt.Errorf("%s completion: %w", p.Name(), err)
	}
	return Normalize(raw), nil
}
