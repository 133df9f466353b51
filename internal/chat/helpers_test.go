package chat

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/db"
	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/store"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testEvaluation = `{
  "candidate_id": "ETHANLAM",
  "scores": {"communication_clarity": 4, "motivation_purpose": 5, "self_awareness_reflection": 3,
             "academic_program_fit": 4, "leadership_initiative": 4, "integrity_professionalism": 5,
             "resilience_adaptability": null},
  "evidence": [{"category": "motivation_purpose", "quote": "I want to build tools for rural clinics."}],
  "strengths": ["clear goals"],
  "concerns": [],
  "recommendation": "Admit",
  "confidence": "medium"
}`

// promptBackend answers prompts by kind: evaluations, candidate questions
// and next-question plans.
type promptBackend struct {
	mu         sync.Mutex
	evaluation string
	evalErr    error
	question   string
	prompts    []string
}

func newPromptBackend() *promptBackend {
	return &promptBackend{evaluation: testEvaluation, question: "Describe a project you led."}
}

func (b *promptBackend) Generate(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	switch {
	case strings.Contains(prompt, "admissions evaluator"):
		return b.evaluation, b.evalErr
	case strings.Contains(prompt, "has asked you a question"):
		return "We look for curiosity and follow-through.", nil
	}
	plan, _ := json.Marshal(interview.QuestionPlan{
		Question: b.question,
		CoverageUpdate: interview.CoverageMap{
			interview.LeadershipInitiative: {Covered: true, EvidenceCount: 1},
		},
	})
	return string(plan), nil
}

func (b *promptBackend) setEvaluation(text string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.evaluation, b.evalErr = text, err
}

// newTestInterviewer builds a real controller over an in-memory sqlite store.
func newTestInterviewer(t *testing.T, backend interview.Backend) (*interview.Controller, *store.Store) {
	t.Helper()
	gdb, err := db.Connect(config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"}, "")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	s, err := store.New(gdb)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctrl, err := interview.NewController(interview.ControllerOpts{
		Store:   s,
		Backend: backend,
		Profiles: map[string]config.Profile{
			"default":  {Name: "default", Skill: "skill doc", Rubric: "rubric doc"},
			"graduate": {Name: "graduate", Skill: "grad skill doc", Rubric: "grad rubric doc"},
		},
		Settings: config.InterviewConfig{DefaultProfile: "default"},
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return ctrl, s
}

func setupCommandHandler(t *testing.T, createThreads bool) (*CommandHandler, *MockAdapter, *interview.Controller, *store.Store) {
	t.Helper()
	ctrl, s := newTestInterviewer(t, newPromptBackend())
	adapter := NewMockAdapter()
	adapter.Connect(context.Background())
	t.Cleanup(func() { adapter.Close() })
	ch, err := NewCommandHandler(CommandHandlerOpts{
		Interviewer:   ctrl,
		Adapter:       adapter,
		CreateThreads: createThreads,
	})
	if err != nil {
		t.Fatalf("new command handler: %v", err)
	}
	return ch, adapter, ctrl, s
}

func inbound(channelID, userID, text string) InboundMessage {
	return InboundMessage{Platform: "mock", ChannelID: channelID, UserID: userID, UserName: userID, Text: text}
}
