package prompts

import (
	"strings"

	"github.com/pavelanni/tutor/internal/model"
)

// Placeholder stands in for any task or student field left blank.
const Placeholder = "N/D"

// StartInstruction asks the model to open the conversation.
const StartInstruction = "Inicia la conversación con tu primera pregunta al estudiante sobre la tarea."

// FormatInstruction fixes the shape of every model answer.
const FormatInstruction = `Responde SOLO con JSON válido, sin texto adicional, con esta forma exacta:
{"reply": "<mensaje para el estudiante>", "evaluation": {"status": "Aprobado" | "En progreso", "score": <entero 0-100>, "weakConcepts": ["<concepto>"], "nextActions": ["<acción>"], "summary": "<resumen breve>"}}
Reglas para "reply":
- Usa como máximo un signo "?".
- Si haces una pregunta, debe ser la última oración.
- No incluyas resúmenes ni próximos pasos; eso va en evaluation.summary y evaluation.nextActions.`

// Segment is one role-tagged block of text sent to the model. History marks
// conversation messages as opposed to built instructions.
type Segment struct {
	Role    model.Role
	Content string
	History bool
}

// Input holds everything the tutor context is built from.
type Input struct {
	Task         *model.TaskConfig
	Student      *model.StudentProfile
	SystemPrompt string
	Start        bool
	History      []model.WireMessage
}

// Build assembles the ordered segments for one turn. Identical input
// always produces identical output.
func Build(in Input) []Segment {
	segs := make([]Segment, 0, len(in.History)+4)

	if sp := strings.TrimSpace(in.SystemPrompt); sp != "" {
		segs = append(segs, Segment{Role: model.RoleSystem, Content: sp})
	}

	segs = append(segs, Segment{Role: model.RoleSystem, Content: contextBlock(in.Task, in.Student)})

	if in.Start {
		segs = append(segs, Segment{Role: model.RoleSystem, Content: StartInstruction})
	}

	segs = append(segs, Segment{Role: model.RoleSystem, Content: FormatInstruction})

	for _, m := range in.History {
		segs = append(segs, Segment{Role: m.Role, Content: m.Content, History: true})
	}
	return segs
}

func contextBlock(task *model.TaskConfig, student *model.StudentProfile) string {
	var t model.TaskConfig
	if task != nil {
		t = *task
	}
	var s model.StudentProfile
	if student != nil {
		s = *student
	}

	var sb strings.Builder
	sb.WriteString("CONTEXTO DE LA TAREA\n")
	writeField(&sb, "Tema", t.Topic)
	writeField(&sb, "Objetivo", t.Objective)
	writeField(&sb, "Asignatura", t.Subject)
	writeField(&sb, "Curso", t.Grade)
	writeField(&sb, "Duración (min)", t.DurationMin)
	sb.WriteString("\nPERFIL DEL ESTUDIANTE\n")
	writeField(&sb, "Nombre", s.Name)
	writeField(&sb, "Edad", s.Age)
	writeField(&sb, "Curso", s.Course)
	writeField(&sb, "Fortalezas", s.Strengths)
	writeField(&sb, "Dificultades", s.Challenges)
	return strings.TrimRight(sb.String(), "\n")
}

func writeField(sb *strings.Builder, label, value string) {
	v := strings.TrimSpace(value)
	if v == "" {
		v = Placeholder
	}
	sb.WriteString("- " + label + ": " + v + "\n")
}
