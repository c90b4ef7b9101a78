package llm

import (
	"encoding/json"
	"math"
	"reflect"
	"strings"
	"testing"

	"github.com/pavelanni/tutor/internal/model"
)

func TestNormalizeScenarioEmbeddedJSON(t *testing.T) {
	raw := `Muy bien, ¿qué pasa si el agua se congela? {"reply":"¿Qué pasa si el agua se congela?","evaluation":{"status":"Aprobado","score":145,"weakConcepts":["evaporación"],"nextActions":[],"summary":"Buen avance"}}`

	got := Normalize(raw)
	if got.Reply != "¿Qué pasa si el agua se congela?" {
		t.Errorf("Reply = %q", got.Reply)
	}
	if got.Evaluation == nil {
		t.Fatal("expected an evaluation")
	}
	e := got.Evaluation
	if e.Status != model.StatusApproved {
		t.Errorf("Status = %q, want %q", e.Status, model.StatusApproved)
	}
	if e.Score != 100 {
		t.Errorf("Score = %d, want 100", e.Score)
	}
	if !reflect.DeepEqual(e.WeakConcepts, []string{"evaporación"}) {
		t.Errorf("WeakConcepts = %v", e.WeakConcepts)
	}
	if len(e.NextActions) != 0 || e.NextActions == nil {
		t.Errorf("NextActions = %#v, want empty non-nil list", e.NextActions)
	}
	if e.Summary == nil || *e.Summary != "Buen avance" {
		t.Errorf("Summary = %v, want 'Buen avance'", e.Summary)
	}
}

func TestNormalizeNoBraces(t *testing.T) {
	got := Normalize("  No tengo una respuesta clara.  ")
	if got.Reply != "No tengo una respuesta clara." {
		t.Errorf("Reply = %q", got.Reply)
	}
	if got.Evaluation != nil {
		t.Errorf("Evaluation = %+v, want nil", got.Evaluation)
	}
}

func TestNormalizeFallbacks(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantReply string
		wantEval  bool
	}{
		{"invalid json", `hola {reply: sin comillas}`, `hola {reply: sin comillas}`, false},
		{"only opening brace", `abre { y no cierra`, `abre { y no cierra`, false},
		{"closing before opening", `} al revés {`, `} al revés {`, false},
		{"invalid json with questions", `¿uno? ¿dos? {roto`, `¿uno?`, false},
		{"reply not a string", `{"reply": 42, "evaluation": {"score": 10}}`, `{"reply": 42, "evaluation": {"score": 10}}`, true},
		{"missing reply", `{"evaluation": {}}`, `{"evaluation": {}}`, true},
		{"evaluation not an object", `{"reply": "ok", "evaluation": "bien"}`, "ok", false},
		{"evaluation null", `{"reply": "ok", "evaluation": null}`, "ok", false},
		{"evaluation array", `{"reply": "ok", "evaluation": [1,2]}`, "ok", false},
		{"empty object", `{} `, `{}`, false},
		{"code fences", "```json\n{\"reply\": \"Listo.\"}\n```", "Listo.", false},
		{"empty reply string", `{"reply": "", "evaluation": {}}`, "", true},
		{"score beyond float range", `{"reply":"¿Listo?","evaluation":{"status":"Aprobado","score":1e400}}`, "¿Listo?", true},
		{"trailing second object", `{"reply":"a"} {"reply":"b"}`, `{"reply":"a"} {"reply":"b"}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Normalize(tt.raw)
			if got.Reply != tt.wantReply {
				t.Errorf("Reply = %q, want %q", got.Reply, tt.wantReply)
			}
			if (got.Evaluation != nil) != tt.wantEval {
				t.Errorf("Evaluation = %+v, want present=%v", got.Evaluation, tt.wantEval)
			}
		})
	}
}

func TestSingleQuestion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"no question", "  Bien hecho.  ", "Bien hecho."},
		{"one question", " ¿Qué es la evaporación? ", "¿Qué es la evaporación?"},
		{"one question mid text", "¿Listo? Sigamos.", "¿Listo? Sigamos."},
		{"two questions", "¿Qué es? ¿Y la lluvia?", "¿Qué es?"},
		{"three questions", "a? b? c?", "a?"},
		{"leading text then two", "  Muy bien. ¿Por qué? ¿Cómo?  ", "Muy bien. ¿Por qué?"},
		{"adjacent marks", "¿En serio??", "¿En serio?"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SingleQuestion(tt.in)
			if got != tt.want {
				t.Errorf("SingleQuestion(%q) = %q, want %q", tt.in, got, tt.want)
			}
			if strings.Count(got, "?") > 1 {
				t.Errorf("result %q has more than one question mark", got)
			}
		})
	}
}

func TestNormalizeEvaluationStatus(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want model.EvalStatus
	}{
		{"approved literal", "Aprobado", model.StatusApproved},
		{"in progress literal", "En progreso", model.StatusInProgress},
		{"lowercase approved", "aprobado", model.StatusInProgress},
		{"english", "Approved", model.StatusInProgress},
		{"padded", " Aprobado", model.StatusInProgress},
		{"number", 1.0, model.StatusInProgress},
		{"absent", nil, model.StatusInProgress},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := map[string]any{}
			if tt.in != nil {
				obj["status"] = tt.in
			}
			got := NormalizeEvaluation(obj)
			if got.Status != tt.want {
				t.Errorf("Status = %q, want %q", got.Status, tt.want)
			}
		})
	}
}

func TestNormalizeEvaluationScore(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want int
	}{
		{"in range", 73.0, 73},
		{"round down", 72.4, 72},
		{"round half up", 72.5, 73},
		{"negative", -5.0, 0},
		{"above max", 137.0, 100},
		{"boundary high", 100.0, 100},
		{"boundary low", 0.0, 0},
		{"string number", "80", 0},
		{"bool", true, 0},
		{"NaN", math.NaN(), 0},
		{"Inf", math.Inf(1), 0},
		{"absent", nil, 0},
		{"json number", json.Number("64.5"), 65},
		{"json number overflow", json.Number("1e400"), 0},
		{"json number negative overflow", json.Number("-1e400"), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj := map[string]any{}
			if tt.in != nil {
				obj["score"] = tt.in
			}
			got := NormalizeEvaluation(obj)
			if got.Score != tt.want {
				t.Errorf("Score = %d, want %d", got.Score, tt.want)
			}
		})
	}
}

func TestNormalizeOverflowingScore(t *testing.T) {
	got := Normalize(`{"reply":"¿Listo?","evaluation":{"status":"Aprobado","score":1e400,"weakConcepts":["x",1e400],"nextActions":[]}}`)
	if got.Reply != "¿Listo?" {
		t.Errorf("Reply = %q, want the parsed reply", got.Reply)
	}
	if got.Evaluation == nil {
		t.Fatal("Evaluation = nil, want a record")
	}
	if got.Evaluation.Score != 0 || got.Evaluation.Status != model.StatusApproved {
		t.Errorf("Evaluation = %+v, want approved with score 0", got.Evaluation)
	}
	if !reflect.DeepEqual(got.Evaluation.WeakConcepts, []string{"x"}) {
		t.Errorf("WeakConcepts = %v, want only strings", got.Evaluation.WeakConcepts)
	}
}

func TestNormalizeEvaluationLists(t *testing.T) {
	got := NormalizeEvaluation(map[string]any{
		"weakConcepts": []any{"a", 1.0, "b", nil, map[string]any{}, "c"},
		"nextActions":  "leer el capítulo",
	})
	if !reflect.DeepEqual(got.WeakConcepts, []string{"a", "b", "c"}) {
		t.Errorf("WeakConcepts = %v", got.WeakConcepts)
	}
	if got.NextActions == nil || len(got.NextActions) != 0 {
		t.Errorf("NextActions = %#v, want empty list", got.NextActions)
	}
}

func TestNormalizeEvaluationSummary(t *testing.T) {
	if got := NormalizeEvaluation(map[string]any{"summary": 5.0}); got.Summary != nil {
		t.Errorf("non-string summary should be omitted, got %q", *got.Summary)
	}
	if got := NormalizeEvaluation(map[string]any{}); got.Summary != nil {
		t.Error("absent summary should be omitted")
	}
	got := NormalizeEvaluation(map[string]any{"summary": ""})
	if got.Summary == nil || *got.Summary != "" {
		t.Error("empty string summary should pass through")
	}
}

func TestNormalizeEvaluationNonObject(t *testing.T) {
	for _, v := range []any{nil, "x", 3.0, []any{}, true} {
		if got := NormalizeEvaluation(v); got != nil {
			t.Errorf("NormalizeEvaluation(%#v) = %+v, want nil", v, got)
		}
	}
}
