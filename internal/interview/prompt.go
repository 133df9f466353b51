package interview

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/zulandar/interviewer/internal/config"
)

// Prompt size bounds, in runes.
const (
	questionDocLimit       = 12000
	evaluationDocLimit     = 15000
	questionTranscriptTail = 12000
	evaluationTranscript   = 18000
	resumeLimit            = 12000
)

// OpeningQuestion is recorded as the first interviewer message of every
// session.
const OpeningQuestion = "Thanks for joining today. To start, tell me about yourself and why you're interested in this program."

type questionPromptInput struct {
	profile    config.Profile
	turnCount  int
	maxTurns   int
	coverage   CoverageMap
	recent     []string
	transcript string
	latest     string
}

func buildQuestionPrompt(in questionPromptInput) string {
	var b strings.Builder
	b.WriteString("You are an adaptive college admissions interviewer.\n\n")
	writePolicyDocs(&b, in.profile, questionDocLimit)

	cov, _ := json.Marshal(in.coverage)
	fmt.Fprintf(&b, "Current interview state:\n- turn_count: %d\n- max_turns: %d\n- coverage_json: %s\n\n",
		in.turnCount, in.maxTurns, cov)

	if len(in.recent) > 0 {
		b.WriteString("Questions already asked (do not repeat or paraphrase these):\n")
		for _, q := range in.recent {
			fmt.Fprintf(&b, "- %s\n", q)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Transcript:\n%s\n\n", tail(in.transcript, questionTranscriptTail))
	fmt.Fprintf(&b, "Latest candidate answer:\n%s\n\n", in.latest)

	b.WriteString(`Task:
1) Update coverage based on transcript evidence.
2) Ask exactly ONE high-value next question.
3) Prioritize uncovered or weak categories.
4) If the candidate made vague or inflated claims, ask for concrete verification.
5) Keep the question concise and natural.

Return STRICT JSON only:
{
  "question": "string",
  "coverage_update": {
`)
	for i, c := range Categories {
		sep := ","
		if i == len(Categories)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    %q: {\"covered\": false, \"evidence_count\": 0}%s\n", c, sep)
	}
	b.WriteString("  },\n  \"should_end\": false\n}\n")
	return b.String()
}

func buildAnswerPrompt(profile config.Profile, transcript, question string, maxWords int) string {
	var b strings.Builder
	b.WriteString("You are a college admissions interviewer. The candidate has asked you a question during the interview.\n\n")
	writePolicyDocs(&b, profile, questionDocLimit)
	fmt.Fprintf(&b, "Transcript:\n%s\n\n", tail(transcript, questionTranscriptTail))
	fmt.Fprintf(&b, "Candidate question:\n%s\n\n", question)
	fmt.Fprintf(&b, "Answer briefly and factually in at most %d words. "+
		"If the policy documents do not cover it, say the admissions team will follow up. "+
		"Do not ask a new interview question. Return plain text only.\n", maxWords)
	return b.String()
}

func buildEvaluationPrompt(profile config.Profile, candidateID, resume, transcript string) string {
	var b strings.Builder
	b.WriteString("You are a college admissions evaluator.\n\n")
	writePolicyDocs(&b, profile, evaluationDocLimit)
	fmt.Fprintf(&b, "Candidate ID: %s\n\n", candidateID)
	fmt.Fprintf(&b, "Resume:\n%s\n\n", head(resume, resumeLimit))
	fmt.Fprintf(&b, "Interview Transcript:\n%s\n\n", head(transcript, evaluationTranscript))

	b.WriteString("Return STRICT JSON only with this schema:\n{\n")
	fmt.Fprintf(&b, "  \"candidate_id\": %q,\n  \"scores\": {\n", candidateID)
	for _, c := range Categories {
		fmt.Fprintf(&b, "    %q: 0,\n", c)
	}
	b.WriteString(`    "resilience_adaptability": null
  },
  "evidence": [
    {"category": "motivation_purpose", "quote": "direct quote", "timestamp": "optional", "source": "interview_transcript|resume|notes"}
  ],
  "strengths": [],
  "concerns": [],
  "recommendation": "Admit|Borderline|Reject|Insufficient Data",
  "confidence": "High|Medium|Low",
  "bias_safety_note": "Evaluation excludes protected-attribute inference and requires human review."
}
Rules:
- Evidence-based only.
- At least one evidence item per scored category.
- No protected-attribute inference.
`)
	return b.String()
}

func writePolicyDocs(b *strings.Builder, p config.Profile, limit int) {
	b.WriteString("Use these policy docs:\n")
	fmt.Fprintf(b, "--- SKILL.md ---\n%s\n", head(p.Skill, limit))
	fmt.Fprintf(b, "--- rubric.md ---\n%s\n\n", head(p.Rubric, limit))
}

func head(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[len(r)-n:])
}
