package llm

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
)

// openingNudge stands in for a user turn Gemini requires but the
// conversation does not have.
const openingNudge = "Comienza."

// Gemini talks to Google's Gemini models.
type Gemini struct{}

// NewGemini creates a Gemini provider.
func NewGemini() *Gemini { return &Gemini{} }

func (g *Gemini) Name() string { return "gemini" }

// Complete sends system segments as the system instruction and the rest as
// chat history, answering the trailing user message.
func (g *Gemini) Complete(ctx context.Context, c Completion) (string, error) {
	if strings.TrimSpace(c.APIKey) == "" {
		return "", ErrMissingAPIKey
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(strings.TrimSpace(c.APIKey)))
	if err != nil {
		return "", &UpstreamError{Provider: g.Name(), Err: err}
	}
	defer cl.Close()

	m := cl.GenerativeModel(strings.TrimSpace(c.Model))
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0.4),
	}

	system, history, last := splitForGemini(c.Segments)
	if len(system) > 0 {
		m.SystemInstruction = &genai.Content{Parts: system}
	}
	cs := m.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", &UpstreamError{Provider: g.Name(), Err: err}
	}
	raw := firstText(resp)
	if raw == "" {
		return "", &UpstreamError{Provider: g.Name(), Err: errors.New("gemini: empty response")}
	}
	slog.Debug("LLM response", "provider", g.Name(), "model", c.Model, "raw", raw)
	return raw, nil
}

// splitForGemini separates the built instructions from the chat history and
// pops the trailing user message to send. System messages inside the history
// keep their place as user turns, and a history that opens with a model turn
// gets the opening nudge in front so it starts with the user.
func splitForGemini(segs []prompts.Segment) ([]genai.Part, []*genai.Content, string) {
	var system []genai.Part
	var history []*genai.Content
	for _, s := range segs {
		switch {
		case s.Role == model.RoleSystem && !s.History:
			system = append(system, genai.Text(s.Content))
		case s.Role == model.RoleAssistant:
			history = append(history, geminiTurn("model", s.Content))
		default:
			history = append(history, geminiTurn("user", s.Content))
		}
	}

	last := openingNudge
	if n := len(history); n > 0 && history[n-1].Role == "user" {
		if t, ok := history[n-1].Parts[0].(genai.Text); ok {
			last = string(t)
		}
		history = history[:n-1]
	}
	if len(history) > 0 && history[0].Role == "model" {
		history = append([]*genai.Content{geminiTurn("user", openingNudge)}, history...)
	}
	return system, history, last
}

func geminiTurn(role, text string) *genai.Content {
	return &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}}
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
