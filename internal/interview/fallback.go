package interview

// fallbackQuestions lists canned questions in gap-priority order.
var fallbackQuestions = []struct {
	category string
	question string
}{
	{MotivationPurpose, "What is drawing you to this program right now, and what do you hope to do with it afterward?"},
	{AcademicProgramFit, "Which parts of this program's curriculum or learning style fit how you work best, and why?"},
	{LeadershipInitiative, "Tell me about a time you took the initiative to lead something. What was your exact role, what did you do, and what changed as a result?"},
	{SelfAwarenessReflection, "Describe a setback or piece of critical feedback you received. What did you learn about yourself, and what did you do differently afterward?"},
	{IntegrityProfessionalism, "Tell me about a situation where doing the right thing was inconvenient. How did you handle it?"},
	{CommunicationClarity, "Walk me through a project you are proud of, explained as you would to someone outside your field."},
}

// ClosingQuestion is asked when every category is already covered.
const ClosingQuestion = "Before we wrap up, is there anything else you would like the admissions committee to know about you?"

// FallbackQuestion picks the canned question for the first uncovered
// category in priority order. It never calls the backend and never
// returns an empty string.
func FallbackQuestion(cov CoverageMap) string {
	for _, fq := range fallbackQuestions {
		if !cov[fq.category].Covered {
			return fq.question
		}
	}
	return ClosingQuestion
}
