package store

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pavelanni/tutor/internal/model"
)

// Keys of the persisted client state.
const (
	KeyTaskConfig   = "taskConfig"
	KeyStudent      = "student"
	KeySystemPrompt = "systemPrompt"
	KeyMessages     = "messages"
	KeyEvaluation   = "evaluation"
	KeyUIPrefs      = "uiPrefs"
)

// Cell is one independently persisted value with a built-in default.
type Cell[T any] struct {
	store *Store
	key   string
	def   func() T
}

// NewCell binds a key and its default to a store.
func NewCell[T any](s *Store, key string, def func() T) *Cell[T] {
	return &Cell[T]{store: s, key: key, def: def}
}

// Key returns the storage key.
func (c *Cell[T]) Key() string { return c.key }

// Load returns the stored value, or the default when the key is missing,
// unreadable or holds corrupt JSON.
func (c *Cell[T]) Load() T {
	raw, ok, err := c.store.Get(c.key)
	if err != nil {
		slog.Warn("read local state failed, using default", "key", c.key, "error", err)
		return c.def()
	}
	if !ok {
		return c.def()
	}
	var v T
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		slog.Warn("corrupt local state, using default", "key", c.key, "error", err)
		return c.def()
	}
	return v
}

// Save stores v under the cell's key.
func (c *Cell[T]) Save(v T) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", c.key, err)
	}
	if err := c.store.Set(c.key, string(data)); err != nil {
		return fmt.Errorf("save %s: %w", c.key, err)
	}
	return nil
}

// Clear removes the stored value so the next Load returns the default.
func (c *Cell[T]) Clear() error {
	if err := c.store.Delete(c.key); err != nil {
		return fmt.Errorf("clear %s: %w", c.key, err)
	}
	return nil
}

// State groups the cells the tutor client persists.
type State struct {
	Task         *Cell[model.TaskConfig]
	Student      *Cell[model.StudentProfile]
	SystemPrompt *Cell[string]
	Messages     *Cell[[]model.ChatMessage]
	Evaluation   *Cell[*model.Evaluation]
	Prefs        *Cell[model.UIPrefs]
}

// NewState binds every client cell to s with its default.
func NewState(s *Store) *State {
	return &State{
		Task:         NewCell(s, KeyTaskConfig, model.DefaultTaskConfig),
		Student:      NewCell(s, KeyStudent, model.DefaultStudentProfile),
		SystemPrompt: NewCell(s, KeySystemPrompt, func() string { return model.DefaultSystemPrompt }),
		Messages:     NewCell(s, KeyMessages, func() []model.ChatMessage { return nil }),
		Evaluation:   NewCell(s, KeyEvaluation, func() *model.Evaluation { return nil }),
		Prefs:        NewCell(s, KeyUIPrefs, func() model.UIPrefs { return model.UIPrefs{} }),
	}
}
