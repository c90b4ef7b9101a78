package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/tutor/internal/i18n"
	"github.com/pavelanni/tutor/internal/llm"
	"github.com/pavelanni/tutor/internal/llm/prompts"
	"github.com/pavelanni/tutor/internal/model"
)

// Responder answers one tutor turn.
type Responder interface {
	Respond(ctx context.Context, turn llm.Turn) (llm.Result, error)
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	tutor  Responder
	config model.ServerConfig
}

// New creates a new Handler.
func New(t Responder, cfg model.ServerConfig) *Handler {
	return &Handler{tutor: t, config: cfg}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Post("/api/chat", h.handleChat)
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	if h.config.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.config.MaxBodyBytes)
	}

	var req model.TutorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}

	modelName := strings.TrimSpace(req.Model)
	if modelName == "" {
		modelName = h.config.DefaultModel
	}

	apiKey := h.resolveKey(modelName, req.APIKey)
	if apiKey == "" {
		slog.Warn("chat turn rejected: no API key", "model", modelName)
		writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "MissingAPIKey"))
		return
	}

	ctx := r.Context()
	if h.config.LLMTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.config.LLMTimeout)
		defer cancel()
	}

	res, err := h.tutor.Respond(ctx, llm.Turn{
		Model:  modelName,
		APIKey: apiKey,
		Context: prompts.Input{
			Task:         req.TaskConfig,
			Student:      req.Student,
			SystemPrompt: req.SystemPrompt,
			Start:        req.Start,
			History:      req.Messages,
		},
	})
	if err != nil {
		var ue *llm.UpstreamError
		switch {
		case errors.Is(err, llm.ErrMissingAPIKey):
			writeError(w, http.StatusBadRequest, appI18n.T(r.Context(), "MissingAPIKey"))
		case errors.As(err, &ue):
			slog.Error("LLM call failed", "provider", ue.Provider, "model", modelName, "error", ue.Err)
			writeError(w, http.StatusInternalServerError, ue.Error())
		default:
			slog.Error("chat turn failed", "model", modelName, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	slog.Debug("chat turn answered", "model", modelName, "has_evaluation", res.Evaluation != nil)
	writeJSON(w, http.StatusOK, model.TurnResponse{Text: res.Reply, Evaluation: res.Evaluation})
}

// resolveKey prefers the server-configured credential for the model's
// provider over the one supplied in the request.
func (h *Handler) resolveKey(modelName, requestKey string) string {
	server := h.config.APIKey
	if llm.IsGeminiModel(modelName) {
		server = h.config.GeminiKey
	}
	if k := strings.TrimSpace(server); k != "" {
		return k
	}
	return strings.TrimSpace(requestKey)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, model.ErrorResponse{Error: msg})
}
