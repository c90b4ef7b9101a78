// Package session runs chat turns on the client side: it keeps the
// conversation and evaluation in local state and applies each server
// answer to them.
package session

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/pavelanni/tutor/internal/model"
	"github.com/pavelanni/tutor/internal/store"
)

var (
	// ErrBusy is returned when a turn is started while another is in flight.
	ErrBusy = errors.New("a message is already being sent")
	// ErrEmptyMessage is returned for blank user input.
	ErrEmptyMessage = errors.New("message is empty")
)

// Tutor answers one chat turn.
type Tutor interface {
	Chat(ctx context.Context, req model.TutorRequest) (model.TurnResponse, error)
}

// Session applies turns to the persisted client state.
type Session struct {
	state  *store.State
	tutor  Tutor
	apiKey string

	mu      sync.Mutex
	sending bool
}

// New creates a session. apiKey is sent with every request and only used by
// servers that have no credential of their own.
func New(st *store.State, t Tutor, apiKey string) *Session {
	return &Session{state: st, tutor: t, apiKey: apiKey}
}

// Messages returns the conversation so far.
func (s *Session) Messages() []model.ChatMessage {
	return s.state.Messages.Load()
}

// Evaluation returns the latest evaluation, or nil.
func (s *Session) Evaluation() *model.Evaluation {
	return s.state.Evaluation.Load()
}

// Sending reports whether a turn is in flight.
func (s *Session) Sending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sending
}

// Start asks the tutor to open the conversation with its first question.
func (s *Session) Start(ctx context.Context) (model.ChatMessage, error) {
	if !s.acquire() {
		return model.ChatMessage{}, ErrBusy
	}
	defer s.release()

	return s.turn(ctx, s.state.Messages.Load(), true)
}

// Send appends the user's message, then asks the tutor for an answer. The
// user message stays in the history even when the tutor fails.
func (s *Session) Send(ctx context.Context, text string) (model.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return model.ChatMessage{}, ErrEmptyMessage
	}
	if !s.acquire() {
		return model.ChatMessage{}, ErrBusy
	}
	defer s.release()

	history := append(s.state.Messages.Load(), model.NewMessage(model.RoleUser, text))
	if err := s.state.Messages.Save(history); err != nil {
		return model.ChatMessage{}, err
	}
	return s.turn(ctx, history, false)
}

// Reset clears the conversation and the evaluation together.
func (s *Session) Reset() error {
	if err := s.state.Messages.Clear(); err != nil {
		return err
	}
	return s.state.Evaluation.Clear()
}

func (s *Session) turn(ctx context.Context, history []model.ChatMessage, start bool) (model.ChatMessage, error) {
	task := s.state.Task.Load()
	student := s.state.Student.Load()
	prefs := s.state.Prefs.Load()

	resp, err := s.tutor.Chat(ctx, model.TutorRequest{
		Messages:     model.Wire(history),
		SystemPrompt: s.state.SystemPrompt.Load(),
		Model:        prefs.Model,
		APIKey:       s.apiKey,
		TaskConfig:   &task,
		Student:      &student,
		Start:        start,
	})
	if err != nil {
		return model.ChatMessage{}, err
	}

	reply := model.NewMessage(model.RoleAssistant, resp.Text)
	if err := s.state.Messages.Save(append(history, reply)); err != nil {
		return model.ChatMessage{}, err
	}
	if resp.Evaluation != nil {
		if err := s.state.Evaluation.Save(resp.Evaluation); err != nil {
			return model.ChatMessage{}, err
		}
	} else {
		slog.Debug("turn carried no evaluation, keeping previous one")
	}
	return reply, nil
}

func (s *Session) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sending {
		return false
	}
	s.sending = true
	return true
}

func (s *Session) release() {
	s.mu.Lock()
	s.sending = false
	s.mu.Unlock()
}
