package model

import (
	"time"

	"github.com/google/uuid"
)

// Role represents a chat message role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// EvalStatus is the pass state of a student's work.
type EvalStatus string

const (
	StatusApproved   EvalStatus = "Aprobado"
	StatusInProgress EvalStatus = "En progreso"
)

// TaskConfig describes the homework the tutor is reviewing.
type TaskConfig struct {
	Topic       string `json:"topic,omitempty"`
	Objective   string `json:"objective,omitempty"`
	Subject     string `json:"subject,omitempty"`
	Grade       string `json:"grade,omitempty"`
	DurationMin string `json:"durationMin,omitempty"`
}

// StudentProfile is teacher-authored context about the student.
type StudentProfile struct {
	Name       string `json:"name,omitempty"`
	Age        string `json:"age,omitempty"`
	Course     string `json:"course,omitempty"`
	Strengths  string `json:"strengths,omitempty"`
	Challenges string `json:"challenges,omitempty"`
}

// ChatMessage is one entry of the conversation history.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage stamps a message with a fresh ID and the current time.
func NewMessage(role Role, content string) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// WireMessage is a chat message reduced to what the model sees.
type WireMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Wire strips identifiers and timestamps from a history.
func Wire(messages []ChatMessage) []WireMessage {
	out := make([]WireMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, WireMessage{Role: m.Role, Content: m.Content})
	}
	return out
}

// Evaluation is the diagnostic record derived from a turn.
type Evaluation struct {
	Status       EvalStatus `json:"status"`
	Score        int        `json:"score"`
	WeakConcepts []string   `json:"weakConcepts"`
	NextActions  []string   `json:"nextActions"`
	Summary      *string    `json:"summary,omitempty"`
}

// TutorRequest is the body of a chat turn request.
type TutorRequest struct {
	Messages     []WireMessage   `json:"messages,omitempty"`
	SystemPrompt string          `json:"systemPrompt,omitempty"`
	Model        string          `json:"model,omitempty"`
	APIKey       string          `json:"apiKey,omitempty"`
	TaskConfig   *TaskConfig     `json:"taskConfig,omitempty"`
	Student      *StudentProfile `json:"student,omitempty"`
	Start        bool            `json:"start,omitempty"`
}

// TurnResponse is the body of a successful chat turn.
type TurnResponse struct {
	Text       string      `json:"text"`
	Evaluation *Evaluation `json:"evaluation"`
}

// ErrorResponse is the body of a failed chat turn.
type ErrorResponse struct {
	Error string `json:"error"`
}

// UIPrefs holds client-side preferences.
type UIPrefs struct {
	ServerURL string `json:"serverUrl,omitempty"`
	Model     string `json:"model,omitempty"`
	Lang      string `json:"lang,omitempty"`
}

// ServerConfig holds runtime server parameters set via CLI flags.
type ServerConfig struct {
	APIKey       string        // OpenAI-compatible credential; wins over request keys
	GeminiKey    string        // Gemini credential; wins over request keys
	DefaultModel string        // used when the request names no model
	LLMTimeout   time.Duration // 0 disables the deadline
	MaxBodyBytes int64
}

// DefaultTaskConfig is the placeholder task shown on first start.
func DefaultTaskConfig() TaskConfig {
	return TaskConfig{
		Topic:       "El ciclo del agua",
		Objective:   "Explicar evaporación, condensación y precipitación",
		Subject:     "Ciencias Naturales",
		Grade:       "5° básico",
		DurationMin: "20",
	}
}

// DefaultStudentProfile is the placeholder student shown on first start.
func DefaultStudentProfile() StudentProfile {
	return StudentProfile{
		Name:       "Estudiante",
		Age:        "10",
		Course:     "5° básico",
		Strengths:  "Curiosidad, buena memoria",
		Challenges: "Explicar procesos con sus palabras",
	}
}

// DefaultSystemPrompt is the placeholder teacher instruction.
const DefaultSystemPrompt = "Eres un tutor paciente que revisa tareas escolares. " +
	"Haz preguntas cortas, guía sin dar la respuesta y adapta el lenguaje a la edad del estudiante."
