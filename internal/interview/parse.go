package interview

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ParseError is the single failure mode of the backend output boundary.
// Callers branch on it instead of inspecting raw text.
type ParseError struct {
	Shape string // "question plan" or "evaluation"
	Raw   string // backend output, truncated
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("interview: parse %s: %v", e.Shape, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(shape, raw string, err error) *ParseError {
	return &ParseError{Shape: shape, Raw: head(raw, 500), Err: err}
}

// QuestionPlan is the structured result of a next-question generation.
type QuestionPlan struct {
	Question       string      `json:"question" validate:"required"`
	CoverageUpdate CoverageMap `json:"coverage_update"`
	ShouldEnd      bool        `json:"should_end"`
}

// EvidenceItem is one quote supporting a category score.
type EvidenceItem struct {
	Category  string `json:"category" validate:"required"`
	Quote     string `json:"quote" validate:"required"`
	Timestamp string `json:"timestamp,omitempty"`
	Source    string `json:"source,omitempty"`
}

// EvaluationReport is the structured final evaluation. Scores may be null
// for categories without evidence.
type EvaluationReport struct {
	CandidateID    string          `json:"candidate_id"`
	Scores         map[string]*int `json:"scores" validate:"required"`
	Evidence       []EvidenceItem  `json:"evidence" validate:"dive"`
	Strengths      []string        `json:"strengths"`
	Concerns       []string        `json:"concerns"`
	Recommendation string          `json:"recommendation" validate:"required"`
	Confidence     string          `json:"confidence" validate:"required"`
	BiasSafetyNote string          `json:"bias_safety_note,omitempty"`
}

// ParseQuestionPlan extracts and validates a QuestionPlan from raw backend
// output.
func ParseQuestionPlan(raw string) (*QuestionPlan, error) {
	var plan QuestionPlan
	if _, err := decodeJSON(raw, &plan); err != nil {
		return nil, newParseError("question plan", raw, err)
	}
	plan.Question = strings.TrimSpace(plan.Question)
	if err := validate.Struct(&plan); err != nil {
		return nil, newParseError("question plan", raw, err)
	}
	return &plan, nil
}

// ParseEvaluation extracts and validates an EvaluationReport. The compact
// JSON document it was decoded from is returned for storage.
func ParseEvaluation(raw string) (*EvaluationReport, []byte, error) {
	var report EvaluationReport
	doc, err := decodeJSON(raw, &report)
	if err != nil {
		return nil, nil, newParseError("evaluation", raw, err)
	}
	if err := validate.Struct(&report); err != nil {
		return nil, nil, newParseError("evaluation", raw, err)
	}
	return &report, doc, nil
}

func decodeJSON(raw string, v any) ([]byte, error) {
	doc, ok := extractJSON(raw)
	if !ok {
		return nil, fmt.Errorf("no JSON object found in output")
	}
	if err := json.Unmarshal(doc, v); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extractJSON finds a JSON object in model output: the whole text, then
// each fenced code block, then the outermost braces.
func extractJSON(raw string) ([]byte, bool) {
	raw = strings.TrimSpace(raw)
	if isObject(raw) {
		return []byte(raw), true
	}
	if strings.Contains(raw, "```") {
		for _, part := range strings.Split(raw, "```") {
			part = strings.TrimSpace(part)
			part = strings.TrimSpace(strings.TrimPrefix(part, "json"))
			if isObject(part) {
				return []byte(part), true
			}
		}
	}
	start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}")
	if start >= 0 && end > start && isObject(raw[start:end+1]) {
		return []byte(raw[start : end+1]), true
	}
	return nil, false
}

func isObject(s string) bool {
	return strings.HasPrefix(s, "{") && json.Valid([]byte(s))
}
