// Package interview implements the adaptive interview dialogue: coverage
// tracking, question deduplication, deterministic fallback questions and
// the per-session controller that ties them to the store and the
// generative backend.
package interview

// Evaluation categories tracked during an interview.
const (
	CommunicationClarity     = "communication_clarity"
	MotivationPurpose        = "motivation_purpose"
	SelfAwarenessReflection  = "self_awareness_reflection"
	AcademicProgramFit       = "academic_program_fit"
	LeadershipInitiative     = "leadership_initiative"
	IntegrityProfessionalism = "integrity_professionalism"
)

// Categories is the fixed category set, in reporting order.
var Categories = []string{
	CommunicationClarity,
	MotivationPurpose,
	SelfAwarenessReflection,
	AcademicProgramFit,
	LeadershipInitiative,
	IntegrityProfessionalism,
}

// CategoryCoverage is the completion state of one category.
type CategoryCoverage struct {
	Covered       bool `json:"covered"`
	EvidenceCount int  `json:"evidence_count"`
}

// CoverageMap maps each category to its coverage. Maps produced by this
// package always hold exactly the keys in Categories.
type CoverageMap map[string]CategoryCoverage

// DefaultCoverage returns every category uncovered with no evidence.
func DefaultCoverage() CoverageMap {
	cov := make(CoverageMap, len(Categories))
	for _, c := range Categories {
		cov[c] = CategoryCoverage{}
	}
	return cov
}

// IsSufficient reports whether at least threshold categories are covered.
func IsSufficient(cov CoverageMap, threshold int) bool {
	return cov.CoveredCount() >= threshold
}

// CoveredCount returns the number of fixed categories marked covered.
func (c CoverageMap) CoveredCount() int {
	n := 0
	for _, cat := range Categories {
		if c[cat].Covered {
			n++
		}
	}
	return n
}

// CoveredCategories lists covered categories in reporting order.
func (c CoverageMap) CoveredCategories() []string {
	var out []string
	for _, cat := range Categories {
		if c[cat].Covered {
			out = append(out, cat)
		}
	}
	return out
}

// Normalize returns a copy holding exactly the fixed categories. Missing
// keys are filled with zero coverage, unknown keys are dropped and
// negative evidence counts are clamped to zero.
func (c CoverageMap) Normalize() CoverageMap {
	out := DefaultCoverage()
	for _, cat := range Categories {
		if v, ok := c[cat]; ok {
			out[cat] = clampCoverage(v)
		}
	}
	return out
}

// Apply merges a backend coverage update into c and returns the result.
// Categories absent from the update keep their current value. Monotonicity
// is not enforced: the update is trusted.
func (c CoverageMap) Apply(update CoverageMap) CoverageMap {
	out := c.Normalize()
	for _, cat := range Categories {
		if v, ok := update[cat]; ok {
			out[cat] = clampCoverage(v)
		}
	}
	return out
}

func clampCoverage(v CategoryCoverage) CategoryCoverage {
	if v.EvidenceCount < 0 {
		v.EvidenceCount = 0
	}
	return v
}
