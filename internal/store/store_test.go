package store

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pavelanni/tutor/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKeyValueCRUD(t *testing.T) {
	s := newTestStore(t)

	// Missing key.
	_, ok, err := s.Get("nope")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected missing key")
	}

	if err := s.Set("a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("a")
	if err != nil || !ok || v != "1" {
		t.Fatalf("Get(a) = %q, %v, %v", v, ok, err)
	}

	// Upsert overwrites.
	if err := s.Set("a", "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, _, _ = s.Get("a")
	if v != "2" {
		t.Errorf("expected overwritten value 2, got %q", v)
	}

	if err := s.Set("b", "x"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"a", "b"}) {
		t.Errorf("Keys = %v", keys)
	}

	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete("a"); err != nil {
		t.Fatalf("Delete missing key: %v", err)
	}
	_, ok, _ = s.Get("a")
	if ok {
		t.Error("expected key a to be deleted")
	}
}

func TestCellDefaults(t *testing.T) {
	s := newTestStore(t)
	st := NewState(s)

	if got := st.Task.Load(); got != model.DefaultTaskConfig() {
		t.Errorf("Task default = %+v", got)
	}
	if got := st.SystemPrompt.Load(); got != model.DefaultSystemPrompt {
		t.Errorf("SystemPrompt default = %q", got)
	}
	if got := st.Messages.Load(); len(got) != 0 {
		t.Errorf("Messages default = %v", got)
	}
	if got := st.Evaluation.Load(); got != nil {
		t.Errorf("Evaluation default = %+v", got)
	}
}

func TestCellRoundTrip(t *testing.T) {
	s := newTestStore(t)
	st := NewState(s)

	task := model.TaskConfig{Topic: "Fracciones", Grade: "4°"}
	if err := st.Task.Save(task); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := st.Task.Load(); got != task {
		t.Errorf("Task = %+v, want %+v", got, task)
	}

	summary := "va bien"
	eval := &model.Evaluation{Status: model.StatusApproved, Score: 90, WeakConcepts: []string{}, NextActions: []string{"repasar"}, Summary: &summary}
	if err := st.Evaluation.Save(eval); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if got := st.Evaluation.Load(); !reflect.DeepEqual(got, eval) {
		t.Errorf("Evaluation = %+v, want %+v", got, eval)
	}

	// A nil evaluation is stored as null and reads back as nil.
	if err := st.Evaluation.Save(nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}
	if got := st.Evaluation.Load(); got != nil {
		t.Errorf("Evaluation after reset = %+v, want nil", got)
	}
}

func TestCellCorruptFallsBackToDefault(t *testing.T) {
	s := newTestStore(t)
	st := NewState(s)

	if err := s.Set(KeyStudent, "{not json"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := st.Student.Load(); got != model.DefaultStudentProfile() {
		t.Errorf("Student = %+v, want default", got)
	}

	if err := s.Set(KeyMessages, `{"wrong":"shape"}`); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := st.Messages.Load(); got != nil {
		t.Errorf("Messages = %v, want default nil", got)
	}
}

func TestCellsAreIndependent(t *testing.T) {
	s := newTestStore(t)
	st := NewState(s)

	if err := st.SystemPrompt.Save("otra"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Set(KeyTaskConfig, "garbage"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := st.SystemPrompt.Load(); got != "otra" {
		t.Errorf("SystemPrompt = %q, corrupt neighbour should not affect it", got)
	}
}

func TestCellClear(t *testing.T) {
	s := newTestStore(t)
	st := NewState(s)

	if err := st.Messages.Save([]model.ChatMessage{model.NewMessage(model.RoleUser, "hola")}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.SystemPrompt.Save("propio"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := st.Messages.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := st.Evaluation.Clear(); err != nil {
		t.Fatalf("Clear never-saved cell: %v", err)
	}

	if got := st.Messages.Load(); got != nil {
		t.Errorf("Messages = %v, want default after clear", got)
	}
	keys, err := s.Keys()
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != KeySystemPrompt {
		t.Errorf("Keys = %v, want only %s", keys, KeySystemPrompt)
	}
}

func TestNewUnopenablePath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "dir", "state.db")
	s, err := New(path)
	if err == nil {
		s.Close()
		t.Fatal("expected an error for a path in a missing directory")
	}
	if s != nil {
		t.Errorf("store = %v, want nil on error", s)
	}
}
