package llm

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/pavelanni/tutor/internal/model"
)

// Result is a model answer after normalization.
type Result struct {
	Reply      string
	Evaluation *model.Evaluation
}

// Normalize turns raw model output into a reply and an optional evaluation.
// It never fails: anything it cannot read falls back to the raw text with no
// evaluation.
func Normalize(raw string) Result {
	reply := raw
	var eval *model.Evaluation

	if obj, ok := extractObject(raw); ok {
		if s, ok := obj["reply"].(string); ok {
			reply = s
		}
		eval = NormalizeEvaluation(obj["evaluation"])
	}

	return Result{Reply: SingleQuestion(reply), Evaluation: eval}
}

// extractObject decodes the span between the first '{' and the last '}'.
// Braces inside the surrounding prose can spoil the span; that case is
// reported as a failed extraction.
func extractObject(raw string) (map[string]any, bool) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return nil, false
	}
	// Numbers stay json.Number so a literal outside float64 range does not
	// fail the whole document.
	dec := json.NewDecoder(strings.NewReader(raw[start : end+1]))
	dec.UseNumber()
	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, false
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, false
	}
	if obj == nil {
		return nil, false
	}
	return obj, true
}

// SingleQuestion cuts a reply right after its first '?' when a second one
// follows, then trims surrounding whitespace.
func SingleQuestion(reply string) string {
	first := strings.Index(reply, "?")
	if first >= 0 && strings.Contains(reply[first+1:], "?") {
		reply = reply[:first+1]
	}
	return strings.TrimSpace(reply)
}

// NormalizeEvaluation coerces an untrusted decoded value into an evaluation.
// Non-object input yields nil.
func NormalizeEvaluation(v any) *model.Evaluation {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}

	eval := &model.Evaluation{
		Status:       model.StatusInProgress,
		WeakConcepts: stringList(obj["weakConcepts"]),
		NextActions:  stringList(obj["nextActions"]),
	}
	if s, ok := obj["status"].(string); ok && s == string(model.StatusApproved) {
		eval.Status = model.StatusApproved
	}
	if n, ok := scoreValue(obj["score"]); ok {
		eval.Score = clampScore(n)
	}
	if s, ok := obj["summary"].(string); ok {
		eval.Summary = &s
	}
	return eval
}

// scoreValue reads a finite number. Out-of-range literals count as missing.
func scoreValue(v any) (float64, bool) {
	var n float64
	switch x := v.(type) {
	case float64:
		n = x
	case json.Number:
		f, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

func clampScore(n float64) int {
	r := math.Floor(n + 0.5)
	switch {
	case r < 0:
		return 0
	case r > 100:
		return 100
	}
	return int(r)
}

func stringList(v any) []string {
	out := []string{}
	items, ok := v.([]any)
	if !ok {
		return out
	}
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
