package interview

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validPlan = `{
  "question": "  Which course changed how you think?  ",
  "coverage_update": {
    "motivation_purpose": {"covered": true, "evidence_count": 2}
  },
  "should_end": false
}`

func TestParseQuestionPlan_RawJSON(t *testing.T) {
	plan, err := ParseQuestionPlan(validPlan)
	require.NoError(t, err)
	assert.Equal(t, "Which course changed how you think?", plan.Question)
	assert.Equal(t, CategoryCoverage{Covered: true, EvidenceCount: 2}, plan.CoverageUpdate[MotivationPurpose])
	assert.False(t, plan.ShouldEnd)
}

func TestParseQuestionPlan_CodeFence(t *testing.T) {
	raw := "Here is the next step:\n```json\n" + validPlan + "\n```\nGood luck!"
	plan, err := ParseQuestionPlan(raw)
	require.NoError(t, err)
	assert.Equal(t, "Which course changed how you think?", plan.Question)
}

func TestParseQuestionPlan_EmbeddedInProse(t *testing.T) {
	raw := `Sure. {"question": "Who inspires you?", "should_end": true} Let me know.`
	plan, err := ParseQuestionPlan(raw)
	require.NoError(t, err)
	assert.Equal(t, "Who inspires you?", plan.Question)
	assert.True(t, plan.ShouldEnd)
	assert.Nil(t, plan.CoverageUpdate)
}

func TestParseQuestionPlan_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no json", "I think you should ask about leadership."},
		{"empty question", `{"question": "   ", "coverage_update": {}}`},
		{"missing question", `{"coverage_update": {}}`},
		{"wrong types", `{"question": "Why?", "coverage_update": {"motivation_purpose": {"covered": "yes"}}}`},
		{"truncated", `{"question": "Why`},
		{"array", `["Why?"]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParseQuestionPlan(tt.raw)
			require.Error(t, err)
			assert.Nil(t, plan)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), "error %v is not a *ParseError", err)
			assert.Equal(t, "question plan", pe.Shape)
		})
	}
}

const validEvaluation = `{
  "candidate_id": "ETHANLAM",
  "scores": {
    "communication_clarity": 4,
    "motivation_purpose": 5,
    "self_awareness_reflection": 3,
    "academic_program_fit": 4,
    "leadership_initiative": 4,
    "integrity_professionalism": 5,
    "resilience_adaptability": null
  },
  "evidence": [
    {"category": "motivation_purpose", "quote": "I want to build tools for rural clinics.", "source": "interview_transcript"}
  ],
  "strengths": ["clear goals"],
  "concerns": [],
  "recommendation": "Admit",
  "confidence": "Medium",
  "bias_safety_note": "Evaluation excludes protected-attribute inference and requires human review."
}`

func TestParseEvaluation(t *testing.T) {
	report, doc, err := ParseEvaluation("```json\n" + validEvaluation + "\n```")
	require.NoError(t, err)
	assert.Equal(t, "ETHANLAM", report.CandidateID)
	assert.Equal(t, "Admit", report.Recommendation)
	require.NotNil(t, report.Scores[MotivationPurpose])
	assert.Equal(t, 5, *report.Scores[MotivationPurpose])
	assert.Nil(t, report.Scores["resilience_adaptability"])
	require.Len(t, report.Evidence, 1)
	assert.NotContains(t, string(doc), "\n", "stored document is compacted")
}

func TestParseEvaluation_Failures(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", "The candidate seems great."},
		{"missing recommendation", `{"scores": {}, "confidence": "Low"}`},
		{"missing scores", `{"recommendation": "Reject", "confidence": "Low"}`},
		{"evidence without quote", `{"scores": {}, "recommendation": "Reject", "confidence": "Low", "evidence": [{"category": "x"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ParseEvaluation(tt.raw)
			var pe *ParseError
			require.True(t, errors.As(err, &pe), "error %v is not a *ParseError", err)
			assert.Equal(t, "evaluation", pe.Shape)
		})
	}
}

func TestExtractJSON(t *testing.T) {
	doc, ok := extractJSON("```\n{\"a\": 1}\n```")
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, string(doc))

	_, ok = extractJSON("nothing here")
	assert.False(t, ok)
}

func TestParseError_Truncates(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'x'
	}
	_, err := ParseQuestionPlan(string(long))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.Len(t, pe.Raw, 500)
	assert.Contains(t, pe.Error(), "interview: parse question plan")
}

func TestParseError_TruncatesOnRuneBoundary(t *testing.T) {
	_, err := ParseQuestionPlan(strings.Repeat("回答", 400))
	var pe *ParseError
	require.True(t, errors.As(err, &pe))
	assert.True(t, utf8.ValidString(pe.Raw))
	assert.Equal(t, 500, utf8.RuneCountInString(pe.Raw))
}
