package interview

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsQuestionTurn(t *testing.T) {
	longAnswer := "When I started the robotics club at my school we had no funding, no mentors, " +
		"and only three members, so I spent the summer writing grant letters and recruiting " +
		"younger students, and honestly I still wonder whether I pushed everyone too hard, you know?"
	require.Greater(t, len(strings.Fields(longAnswer)), questionMarkMaxWords)

	tests := []struct {
		name string
		text string
		want bool
	}{
		{"explicit marker", "question: what is the deadline?", true},
		{"marker mid sentence", "Sorry, I have a question about housing before we continue", true},
		{"quick question marker", "Quick question, is the program part-time friendly", true},
		{"long narrative ending in question mark", longAnswer, false},
		{"short interrogative", "How do I apply?", true},
		{"interrogative without question mark", "Can you tell me more about the scholarship options", true},
		{"contracted interrogative", "What's the class size for first-year seminars", true},
		{"plain answer", "I think my approach was fine.", false},
		{"short statement ending in question mark", "I led the team, right?", true},
		{"empty", "   ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsQuestionTurn(tt.text))
		})
	}
}

func TestIsQuestionTurn_InterrogativeLengthGate(t *testing.T) {
	words := strings.Repeat("really ", interrogativeMaxWords)
	text := "Did " + words + "matter"
	assert.False(t, IsQuestionTurn(text), "interrogative start above the length gate is an answer")
}

func TestSimilar(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"contraction and punctuation", "What's your biggest weakness?", "what is your biggest weakness", true},
		{"unrelated", "Tell me about leadership", "Describe your favorite course", false},
		{"empty vs anything", "", "Tell me about leadership", false},
		{"anything vs empty", "Tell me about leadership", "", false},
		{"both empty", "", "", false},
		{"punctuation only", "?!", "...", false},
		{"substring", "Tell me about a time you led a team.", "Can you tell me about a time you led a team in school?", true},
		{"paraphrase above threshold", "Why do you want to join this program", "Why do you want to join our program", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Similar(tt.a, tt.b, DefaultSimilarityRatio))
		})
	}
}

func TestIsSimilar_Window(t *testing.T) {
	recent := []string{
		"Which course changed how you think?",
		"What's your biggest weakness?",
	}
	assert.True(t, IsSimilar("what is your biggest weakness", recent, DefaultSimilarityRatio))
	assert.False(t, IsSimilar("Where do you picture yourself after graduating?", recent, DefaultSimilarityRatio))
	assert.False(t, IsSimilar("", recent, DefaultSimilarityRatio))
	assert.False(t, IsSimilar("anything", nil, DefaultSimilarityRatio))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "what is your biggest weakness", normalize("  What’s   your BIGGEST weakness?! "))
	assert.Equal(t, "i do not know", normalize("I don't know."))
	assert.Equal(t, "", normalize("--"))
}

func TestJaccard(t *testing.T) {
	assert.InDelta(t, 0.5, jaccard([]string{"a", "b", "c"}, []string{"b", "c", "d"}), 1e-9)
	assert.InDelta(t, 1.0, jaccard([]string{"a", "a"}, []string{"a"}), 1e-9)
	assert.Zero(t, jaccard(nil, nil))
}
