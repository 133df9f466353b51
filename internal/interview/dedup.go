package interview

import (
	"strings"
	"unicode"
)

// Word-count gates for question-turn detection. Long answers that happen
// to contain a question mark are not questions.
const (
	questionMarkMaxWords   = 28
	interrogativeMaxWords  = 24
	DefaultSimilarityRatio = 0.65
)

var questionMarkers = []string{
	"question:",
	"i have a question",
	"quick question",
}

var interrogatives = map[string]bool{
	"what": true, "why": true, "how": true, "when": true, "where": true,
	"who": true, "whom": true, "whose": true, "which": true,
	"can": true, "could": true, "would": true, "will": true, "should": true,
	"shall": true, "may": true, "might": true, "must": true,
	"is": true, "are": true, "am": true, "was": true, "were": true,
	"do": true, "does": true, "did": true, "have": true, "has": true, "had": true,
}

// IsQuestionTurn reports whether a candidate message is a question aimed
// at the interviewer rather than an answer.
func IsQuestionTurn(text string) bool {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return false
	}
	for _, m := range questionMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}

	words := strings.Fields(lower)
	if strings.HasSuffix(lower, "?") && len(words) <= questionMarkMaxWords {
		return true
	}

	first := strings.TrimFunc(words[0], func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	if i := strings.IndexAny(first, "'’"); i > 0 {
		first = first[:i]
	}
	return interrogatives[first] && len(words) <= interrogativeMaxWords
}

// IsSimilar reports whether candidate duplicates or paraphrases any of the
// recent questions. An empty candidate is never similar.
func IsSimilar(candidate string, recent []string, threshold float64) bool {
	for _, q := range recent {
		if Similar(candidate, q, threshold) {
			return true
		}
	}
	return false
}

// Similar compares two questions after normalization: one containing the
// other, or token-set Jaccard overlap at or above threshold, is a match.
func Similar(a, b string, threshold float64) bool {
	na, nb := normalize(a), normalize(b)
	if na == "" || nb == "" {
		return false
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return true
	}
	return jaccard(strings.Fields(na), strings.Fields(nb)) >= threshold
}

// contractions are expanded before punctuation is stripped so that
// "what's" and "what is" normalize to the same tokens.
var contractions = strings.NewReplacer(
	"won't", "will not",
	"can't", "cannot",
	"n't", " not",
	"'re", " are",
	"'ve", " have",
	"'ll", " will",
	"'m", " am",
	"'d", " would",
	"'s", " is",
)

func normalize(s string) string {
	s = strings.ReplaceAll(strings.ToLower(s), "’", "'")
	s = contractions.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(s), " ")
}

func jaccard(a, b []string) float64 {
	set := make(map[string]uint8, len(a)+len(b))
	for _, t := range a {
		set[t] |= 1
	}
	for _, t := range b {
		set[t] |= 2
	}
	if len(set) == 0 {
		return 0
	}
	inter := 0
	for _, v := range set {
		if v == 3 {
			inter++
		}
	}
	return float64(inter) / float64(len(set))
}
