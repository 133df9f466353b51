package interview

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/models"
)

// memStore is an in-memory Store for controller tests.
type memStore struct {
	mu          sync.Mutex
	nextID      uint
	sessions    map[uint]*models.Session
	messages    map[uint][]models.Message
	states      map[uint]State
	evaluations []models.Evaluation
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[uint]*models.Session),
		messages: make(map[uint][]models.Message),
		states:   make(map[uint]State),
	}
}

func (s *memStore) CreateSession(sess *models.Session, cov CoverageMap, opening string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.sessions {
		if existing.ChannelID == sess.ChannelID && existing.Status == models.StatusActive {
			return ErrSessionActive
		}
	}
	s.nextID++
	sess.ID = s.nextID
	cp := *sess
	s.sessions[sess.ID] = &cp
	s.states[sess.ID] = State{SessionID: sess.ID, Coverage: cov.Normalize()}
	s.messages[sess.ID] = []models.Message{{
		SessionID: sess.ID, Sequence: 1, Role: models.RoleInterviewer,
		Kind: models.KindOpening, Content: opening, CreatedAt: time.Now(),
	}}
	return nil
}

func (s *memStore) GetSession(id uint) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNoSession
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) GetActiveSession(channelID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ChannelID == channelID && sess.Status == models.StatusActive {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) GetLastSession(channelID string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last *models.Session
	for _, sess := range s.sessions {
		if sess.ChannelID == channelID && (last == nil || sess.ID > last.ID) {
			last = sess
		}
	}
	if last == nil {
		return nil, nil
	}
	cp := *last
	return &cp, nil
}

func (s *memStore) EndSession(id uint, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.Status != models.StatusActive {
		return ErrNoActiveSession
	}
	sess.Status = models.StatusEnded
	sess.EndedAt = &at
	return nil
}

func (s *memStore) ListSessions(status string) ([]models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Session
	for _, sess := range s.sessions {
		if status == "" || sess.Status == status {
			out = append(out, *sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memStore) AppendMessage(m *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.Sequence = len(s.messages[m.SessionID]) + 1
	m.CreatedAt = time.Now()
	s.messages[m.SessionID] = append(s.messages[m.SessionID], *m)
	return nil
}

func (s *memStore) GetTranscript(sessionID uint) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Message, len(s.messages[sessionID]))
	copy(out, s.messages[sessionID])
	return out, nil
}

func (s *memStore) GetOrCreateState(sessionID uint) (*State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[sessionID]
	if !ok {
		st = State{SessionID: sessionID, Coverage: DefaultCoverage()}
		s.states[sessionID] = st
	}
	st.Coverage = st.Coverage.Normalize()
	return &st, nil
}

func (s *memStore) SaveState(sessionID uint, resumeText string, turnCount int, cov CoverageMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = State{SessionID: sessionID, ResumeText: resumeText, TurnCount: turnCount, Coverage: cov.Normalize()}
	return nil
}

func (s *memStore) RecordTurn(sessionID uint, resumeText string, turnCount int, cov CoverageMap, question *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[sessionID] = State{SessionID: sessionID, ResumeText: resumeText, TurnCount: turnCount, Coverage: cov.Normalize()}
	question.Sequence = len(s.messages[sessionID]) + 1
	question.CreatedAt = time.Now()
	s.messages[sessionID] = append(s.messages[sessionID], *question)
	return nil
}

// failingTurnStore rejects every RecordTurn, leaving state and transcript
// untouched.
type failingTurnStore struct {
	*memStore
	err error
}

func (s *failingTurnStore) RecordTurn(uint, string, int, CoverageMap, *models.Message) error {
	return s.err
}

// endingStore, once armed, ends a session on its next GetSession, as if an
// end command had taken the session lock first.
type endingStore struct {
	*memStore
	armed bool
}

func (s *endingStore) GetSession(id uint) (*models.Session, error) {
	if s.armed {
		s.armed = false
		s.memStore.EndSession(id, time.Now())
	}
	return s.memStore.GetSession(id)
}

func (s *memStore) AppendEvaluation(sessionID uint, resultText string, resultJSON []byte) (*models.Evaluation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev := models.Evaluation{
		ID: uint(len(s.evaluations) + 1), SessionID: sessionID,
		ResultText: resultText, ResultJSON: resultJSON, CreatedAt: time.Now(),
	}
	s.evaluations = append(s.evaluations, ev)
	return &ev, nil
}

func (s *memStore) transcript(sessionID uint) []models.Message {
	out, _ := s.GetTranscript(sessionID)
	return out
}

// scriptedBackend returns queued responses in order; once the queue is
// drained it repeats the fallback response.
type scriptedBackend struct {
	mu        sync.Mutex
	responses []scriptedResponse
	fallback  scriptedResponse
	prompts   []string
}

type scriptedResponse struct {
	text string
	err  error
}

func (b *scriptedBackend) push(text string, err error) *scriptedBackend {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, scriptedResponse{text: text, err: err})
	return b
}

func (b *scriptedBackend) Generate(ctx context.Context, prompt string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.prompts = append(b.prompts, prompt)
	r := b.fallback
	if len(b.responses) > 0 {
		r = b.responses[0]
		b.responses = b.responses[1:]
	}
	return r.text, r.err
}

func (b *scriptedBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.prompts)
}

// blockingBackend waits for the context to expire.
type blockingBackend struct{}

func (blockingBackend) Generate(ctx context.Context, prompt string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

var errBackendDown = errors.New("backend unavailable")

var testProfiles = map[string]config.Profile{
	"default": {Name: "default", Skill: "Ask one question at a time.", Rubric: "Score each category 1-5."},
	"grad":    {Name: "grad", Skill: "Graduate program interview.", Rubric: "Research fit matters."},
}

func newTestController(store Store, backend Backend, mutate ...func(*ControllerOpts)) *Controller {
	opts := ControllerOpts{
		Store:    store,
		Backend:  backend,
		Profiles: testProfiles,
		Settings: config.InterviewConfig{
			MaxTurns:            10,
			CoverageThreshold:   5,
			SimilarityWindow:    8,
			SimilarityThreshold: 0.65,
			AnswerMaxWords:      80,
			GenerateTimeout:     time.Second,
			DefaultProfile:      "default",
		},
	}
	for _, m := range mutate {
		m(&opts)
	}
	c, err := NewController(opts)
	if err != nil {
		panic(err)
	}
	return c
}
