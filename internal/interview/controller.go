package interview

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zulandar/interviewer/internal/config"
	"github.com/zulandar/interviewer/internal/logger"
	"github.com/zulandar/interviewer/internal/models"
	"go.uber.org/zap"
)

// Outcome records how a next question was produced.
type Outcome string

const (
	OutcomeGenerated     Outcome = "generated"
	OutcomeBackendFailed Outcome = "backend_failed"
	OutcomeParseFailed   Outcome = "parse_failed"
	OutcomeDuplicate     Outcome = "duplicate"
)

// DefaultReadyMessage tells the operator the interview can be closed.
const DefaultReadyMessage = "Thanks, we now have enough evidence. Please end the interview, then run the evaluation."

// DeferralAnswer is sent when a candidate question cannot be answered.
const DeferralAnswer = "That's a good question. The admissions team will follow up with details after the interview."

// Controller drives interview sessions. All operations on one session are
// serialized; different sessions proceed in parallel.
type Controller struct {
	store        Store
	backend      Backend
	profiles     map[string]config.Profile
	cfg          config.InterviewConfig
	readyMessage string
	log          *zap.Logger
	now          func() time.Time

	sessionLocks keyedMutex
	channelLocks keyedMutex
}

// ControllerOpts holds parameters for creating a Controller.
type ControllerOpts struct {
	Store        Store
	Backend      Backend
	Profiles     map[string]config.Profile
	Settings     config.InterviewConfig
	ReadyMessage string      // defaults to DefaultReadyMessage
	Logger       *zap.Logger // defaults to a no-op logger
	Now          func() time.Time
}

// NewController creates a Controller.
func NewController(opts ControllerOpts) (*Controller, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("interview: controller: store is required")
	}
	if opts.Backend == nil {
		return nil, fmt.Errorf("interview: controller: backend is required")
	}
	if len(opts.Profiles) == 0 {
		return nil, fmt.Errorf("interview: controller: at least one profile is required")
	}
	cfg := opts.Settings
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = 10
	}
	if cfg.CoverageThreshold <= 0 {
		cfg.CoverageThreshold = 5
	}
	if cfg.SimilarityWindow <= 0 {
		cfg.SimilarityWindow = 8
	}
	if cfg.SimilarityThreshold <= 0 {
		cfg.SimilarityThreshold = DefaultSimilarityRatio
	}
	if cfg.AnswerMaxWords <= 0 {
		cfg.AnswerMaxWords = 80
	}
	if cfg.DefaultProfile == "" && len(opts.Profiles) == 1 {
		for name := range opts.Profiles {
			cfg.DefaultProfile = name
		}
	}
	ready := opts.ReadyMessage
	if ready == "" {
		ready = DefaultReadyMessage
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		store:        opts.Store,
		backend:      opts.Backend,
		profiles:     opts.Profiles,
		cfg:          cfg,
		readyMessage: ready,
		log:          logger.OrNop(opts.Logger),
		now:          now,
	}, nil
}

// StartRequest describes a new interview.
type StartRequest struct {
	CandidateID     string
	ChannelID       string // where the interview runs
	ParentChannelID string // where it was requested, if different
	Profile         string // empty selects the default profile
}

// StartResult is the created session and the opening question to post.
type StartResult struct {
	Session *models.Session
	Opening string
}

// Start creates a session in the request's channel and records the opening
// question. It fails with ErrSessionActive if the channel is mid-interview.
func (c *Controller) Start(ctx context.Context, req StartRequest) (*StartResult, error) {
	req.CandidateID = strings.TrimSpace(req.CandidateID)
	if req.CandidateID == "" {
		return nil, fmt.Errorf("interview: start: candidate id is required")
	}
	if req.ChannelID == "" {
		return nil, fmt.Errorf("interview: start: channel is required")
	}
	profile, err := c.profileName(req.Profile)
	if err != nil {
		return nil, err
	}

	unlock := c.channelLocks.Lock(req.ChannelID)
	defer unlock()

	active, err := c.store.GetActiveSession(req.ChannelID)
	if err != nil {
		return nil, fmt.Errorf("interview: start: %w", err)
	}
	if active != nil {
		return nil, ErrSessionActive
	}

	sess := &models.Session{
		CandidateID:     req.CandidateID,
		ChannelID:       req.ChannelID,
		ParentChannelID: req.ParentChannelID,
		Profile:         profile,
		Status:          models.StatusActive,
		StartedAt:       c.now(),
	}
	if err := c.store.CreateSession(sess, DefaultCoverage(), OpeningQuestion); err != nil {
		if errors.Is(err, ErrSessionActive) {
			return nil, ErrSessionActive
		}
		return nil, fmt.Errorf("interview: start: %w", err)
	}

	c.log.Info("interview started",
		zap.Uint(logger.FieldSessionID, sess.ID),
		zap.String(logger.FieldChannel, sess.ChannelID),
		zap.String(logger.FieldCandidateID, sess.CandidateID),
		zap.String("profile", profile))
	return &StartResult{Session: sess, Opening: OpeningQuestion}, nil
}

// TurnResult is everything emitted in response to one candidate message.
type TurnResult struct {
	SessionID  uint
	Replies    []string // in emission order
	Answered   bool     // a candidate question was answered
	ReadyToEnd bool
	Outcome    Outcome // empty when no question was generated
	Turn       int
}

// HandleMessage routes a chat message to the channel's active session.
// Channels without an active session are ignored and return nil.
func (c *Controller) HandleMessage(ctx context.Context, channelID, authorID, text string) (*TurnResult, error) {
	sess, err := c.store.GetActiveSession(channelID)
	if err != nil {
		return nil, fmt.Errorf("interview: handle message: %w", err)
	}
	if sess == nil {
		return nil, nil
	}
	return c.OnCandidateMessage(ctx, sess.ID, authorID, text)
}

// OnCandidateMessage records a candidate message and advances the
// interview. Messages for sessions that are not active are ignored and
// return nil.
func (c *Controller) OnCandidateMessage(ctx context.Context, sessionID uint, authorID, text string) (*TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, nil
	}

	unlock := c.sessionLocks.Lock(sessionKey(sessionID))
	defer unlock()

	sess, err := c.store.GetSession(sessionID)
	if err != nil {
		if errors.Is(err, ErrNoSession) {
			return nil, nil
		}
		return nil, fmt.Errorf("interview: candidate message: %w", err)
	}
	if sess.Status != models.StatusActive {
		return nil, nil
	}
	log := c.log.With(zap.Uint(logger.FieldSessionID, sess.ID), zap.String(logger.FieldChannel, sess.ChannelID))

	if err := c.store.AppendMessage(&models.Message{
		SessionID: sess.ID,
		Role:      models.RoleCandidate,
		Kind:      models.KindMessage,
		AuthorID:  authorID,
		Content:   text,
	}); err != nil {
		return nil, fmt.Errorf("interview: record candidate message: %w", err)
	}

	profile, err := c.profile(sess)
	if err != nil {
		return nil, err
	}
	state, err := c.store.GetOrCreateState(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("interview: load state: %w", err)
	}
	transcript, err := c.store.GetTranscript(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("interview: load transcript: %w", err)
	}

	res := &TurnResult{SessionID: sess.ID, Turn: state.TurnCount}

	if IsQuestionTurn(text) {
		answer := c.answerQuestion(ctx, log, profile, transcript, text)
		msg := &models.Message{
			SessionID: sess.ID,
			Role:      models.RoleInterviewer,
			Kind:      models.KindAnswer,
			Content:   answer,
		}
		if err := c.store.AppendMessage(msg); err != nil {
			return nil, fmt.Errorf("interview: record answer: %w", err)
		}
		transcript = append(transcript, *msg)
		res.Replies = append(res.Replies, answer)
		res.Answered = true
	}

	cov := state.Coverage.Normalize()
	if state.TurnCount >= c.cfg.MaxTurns || IsSufficient(cov, c.cfg.CoverageThreshold) {
		log.Info("interview ready to end",
			zap.Int(logger.FieldTurn, state.TurnCount),
			zap.Int("covered", cov.CoveredCount()))
		res.ReadyToEnd = true
		res.Replies = append(res.Replies, c.readyMessage)
		return res, nil
	}

	recent := recentQuestions(transcript, c.cfg.SimilarityWindow)
	question, cov, outcome := c.nextQuestion(ctx, log, questionPromptInput{
		profile:    profile,
		turnCount:  state.TurnCount,
		maxTurns:   c.cfg.MaxTurns,
		coverage:   cov,
		recent:     recent,
		transcript: RenderTranscript(transcript),
		latest:     text,
	})

	turn := state.TurnCount + 1
	if err := c.store.RecordTurn(sess.ID, state.ResumeText, turn, cov, &models.Message{
		SessionID: sess.ID,
		Role:      models.RoleInterviewer,
		Kind:      models.KindQuestion,
		Content:   question,
	}); err != nil {
		return nil, fmt.Errorf("interview: record turn: %w", err)
	}

	log.Info("question emitted",
		zap.Int(logger.FieldTurn, turn),
		zap.String(logger.FieldOutcome, string(outcome)),
		zap.Int("covered", cov.CoveredCount()))

	res.Replies = append(res.Replies, question)
	res.Outcome = outcome
	res.Turn = turn
	return res, nil
}

// nextQuestion asks the backend for the next question and falls back to
// the deterministic selector on failure or duplication. The returned
// coverage includes the backend update unless generation failed.
func (c *Controller) nextQuestion(ctx context.Context, log *zap.Logger, in questionPromptInput) (string, CoverageMap, Outcome) {
	raw, err := c.generate(ctx, buildQuestionPrompt(in))
	if err != nil {
		log.Warn("question generation failed", zap.Error(err))
		return FallbackQuestion(in.coverage), in.coverage, OutcomeBackendFailed
	}

	plan, err := ParseQuestionPlan(raw)
	if err != nil {
		log.Warn("question plan rejected", zap.Error(err), zap.String("raw", logger.Truncate(raw, 200)))
		return FallbackQuestion(in.coverage), in.coverage, OutcomeParseFailed
	}

	cov := in.coverage.Apply(plan.CoverageUpdate)
	if plan.ShouldEnd {
		log.Info("backend suggested ending the interview", zap.Int(logger.FieldTurn, in.turnCount))
	}
	if IsSimilar(plan.Question, in.recent, c.cfg.SimilarityThreshold) {
		log.Info("generated question repeats recent history",
			zap.String("question", logger.Truncate(plan.Question, 120)))
		return FallbackQuestion(cov), cov, OutcomeDuplicate
	}
	return plan.Question, cov, OutcomeGenerated
}

func (c *Controller) answerQuestion(ctx context.Context, log *zap.Logger, profile config.Profile, transcript []models.Message, question string) string {
	prompt := buildAnswerPrompt(profile, RenderTranscript(transcript), question, c.cfg.AnswerMaxWords)
	answer, err := c.generate(ctx, prompt)
	if err != nil {
		log.Warn("candidate question answer failed", zap.Error(err))
		return DeferralAnswer
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return DeferralAnswer
	}
	return limitWords(answer, c.cfg.AnswerMaxWords)
}

// generate calls the backend under the configured timeout.
func (c *Controller) generate(ctx context.Context, prompt string) (string, error) {
	if c.cfg.GenerateTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.GenerateTimeout)
		defer cancel()
	}
	out, err := c.backend.Generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return out, nil
}

// End closes the active session in channelID.
func (c *Controller) End(ctx context.Context, channelID string) (*models.Session, error) {
	sess, err := c.store.GetActiveSession(channelID)
	if err != nil {
		return nil, fmt.Errorf("interview: end: %w", err)
	}
	if sess == nil {
		return nil, ErrNoActiveSession
	}
	return c.EndSession(ctx, sess.ID)
}

// EndSession closes an active session. Ending a session that is not
// active fails with ErrNoActiveSession and changes nothing.
func (c *Controller) EndSession(ctx context.Context, sessionID uint) (*models.Session, error) {
	unlock := c.sessionLocks.Lock(sessionKey(sessionID))
	defer unlock()

	at := c.now()
	if err := c.store.EndSession(sessionID, at); err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			return nil, ErrNoActiveSession
		}
		return nil, fmt.Errorf("interview: end: %w", err)
	}
	sess, err := c.store.GetSession(sessionID)
	if err != nil {
		return nil, fmt.Errorf("interview: end: %w", err)
	}
	c.log.Info("interview ended",
		zap.Uint(logger.FieldSessionID, sess.ID),
		zap.String(logger.FieldChannel, sess.ChannelID))
	return sess, nil
}

// EvaluationResult is a stored evaluation plus its renderings.
type EvaluationResult struct {
	EvaluationID uint
	Session      *models.Session
	Report       *EvaluationReport
	Summary      string // short markdown headline
	JSON         string // indented report
}

// EvaluateChannel evaluates the channel's active session, or its last
// session when none is active.
func (c *Controller) EvaluateChannel(ctx context.Context, channelID string) (*EvaluationResult, error) {
	sess, err := c.CurrentOrLast(channelID)
	if err != nil {
		return nil, err
	}
	return c.Evaluate(ctx, sess.ID)
}

// Evaluate scores a session, active or ended, and appends the result.
// Backend and parse failures are returned; nothing is stored for them.
func (c *Controller) Evaluate(ctx context.Context, sessionID uint) (*EvaluationResult, error) {
	unlock := c.sessionLocks.Lock(sessionKey(sessionID))
	defer unlock()

	sess, err := c.store.GetSession(sessionID)
	if err != nil {
		return nil, err
	}
	profile, err := c.profile(sess)
	if err != nil {
		return nil, err
	}
	state, err := c.store.GetOrCreateState(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("interview: evaluate: load state: %w", err)
	}
	transcript, err := c.store.GetTranscript(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("interview: evaluate: load transcript: %w", err)
	}

	prompt := buildEvaluationPrompt(profile, sess.CandidateID, state.ResumeText, RenderTranscript(transcript))
	raw, err := c.generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("interview: evaluate session %d: %w", sess.ID, err)
	}
	report, doc, err := ParseEvaluation(raw)
	if err != nil {
		return nil, fmt.Errorf("interview: evaluate session %d: %w", sess.ID, err)
	}
	if report.CandidateID == "" {
		report.CandidateID = sess.CandidateID
	}

	pretty, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("interview: evaluate: render: %w", err)
	}
	summary := fmt.Sprintf("**Evaluation for %s**\n- Recommendation: **%s**\n- Confidence: **%s**",
		sess.CandidateID, report.Recommendation, report.Confidence)
	resultText := summary + "\n\n```json\n" + string(pretty) + "\n```"

	ev, err := c.store.AppendEvaluation(sess.ID, resultText, doc)
	if err != nil {
		return nil, fmt.Errorf("interview: evaluate: %w", err)
	}
	c.log.Info("evaluation stored",
		zap.Uint(logger.FieldSessionID, sess.ID),
		zap.String(logger.FieldCandidateID, sess.CandidateID),
		zap.String("recommendation", report.Recommendation))

	return &EvaluationResult{
		EvaluationID: ev.ID,
		Session:      sess,
		Report:       report,
		Summary:      summary,
		JSON:         string(pretty),
	}, nil
}

// SetResume stores resume text on the channel's active session.
// It returns ErrSessionEnded when the session is ended while waiting for
// the session lock.
func (c *Controller) SetResume(ctx context.Context, channelID, resume string) (*models.Session, error) {
	active, err := c.ActiveSession(channelID)
	if err != nil {
		return nil, err
	}

	unlock := c.sessionLocks.Lock(sessionKey(active.ID))
	defer unlock()

	sess, err := c.store.GetSession(active.ID)
	if err != nil {
		return nil, fmt.Errorf("interview: set resume: %w", err)
	}
	if sess.Status != models.StatusActive {
		return nil, ErrSessionEnded
	}

	state, err := c.store.GetOrCreateState(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("interview: set resume: %w", err)
	}
	if err := c.store.SaveState(sess.ID, strings.TrimSpace(resume), state.TurnCount, state.Coverage.Normalize()); err != nil {
		return nil, fmt.Errorf("interview: set resume: %w", err)
	}
	return sess, nil
}

// Transcript renders the transcript of the channel's active or last
// session.
func (c *Controller) Transcript(ctx context.Context, channelID string) (*models.Session, string, error) {
	sess, err := c.CurrentOrLast(channelID)
	if err != nil {
		return nil, "", err
	}
	msgs, err := c.store.GetTranscript(sess.ID)
	if err != nil {
		return nil, "", fmt.Errorf("interview: transcript: %w", err)
	}
	return sess, RenderTranscript(msgs), nil
}

// SessionStatus summarizes an active session's progress.
type SessionStatus struct {
	Session    models.Session
	TurnCount  int
	MaxTurns   int
	Covered    []string
	Sufficient bool
}

// Status reports progress of the channel's active session.
func (c *Controller) Status(ctx context.Context, channelID string) (*SessionStatus, error) {
	sess, err := c.ActiveSession(channelID)
	if err != nil {
		return nil, err
	}
	return c.status(*sess)
}

// ActiveStatuses reports progress of every active session.
func (c *Controller) ActiveStatuses(ctx context.Context) ([]SessionStatus, error) {
	sessions, err := c.store.ListSessions(models.StatusActive)
	if err != nil {
		return nil, fmt.Errorf("interview: list active sessions: %w", err)
	}
	out := make([]SessionStatus, 0, len(sessions))
	for _, s := range sessions {
		st, err := c.status(s)
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (c *Controller) status(sess models.Session) (*SessionStatus, error) {
	state, err := c.store.GetOrCreateState(sess.ID)
	if err != nil {
		return nil, fmt.Errorf("interview: status: %w", err)
	}
	cov := state.Coverage.Normalize()
	return &SessionStatus{
		Session:    sess,
		TurnCount:  state.TurnCount,
		MaxTurns:   c.cfg.MaxTurns,
		Covered:    cov.CoveredCategories(),
		Sufficient: state.TurnCount >= c.cfg.MaxTurns || IsSufficient(cov, c.cfg.CoverageThreshold),
	}, nil
}

// ActiveSession returns the channel's active session or ErrNoActiveSession.
func (c *Controller) ActiveSession(channelID string) (*models.Session, error) {
	sess, err := c.store.GetActiveSession(channelID)
	if err != nil {
		return nil, fmt.Errorf("interview: active session: %w", err)
	}
	if sess == nil {
		return nil, ErrNoActiveSession
	}
	return sess, nil
}

// CurrentOrLast returns the channel's active session, else its most recent
// one, else ErrNoSession.
func (c *Controller) CurrentOrLast(channelID string) (*models.Session, error) {
	sess, err := c.store.GetActiveSession(channelID)
	if err != nil {
		return nil, fmt.Errorf("interview: active session: %w", err)
	}
	if sess != nil {
		return sess, nil
	}
	sess, err = c.store.GetLastSession(channelID)
	if err != nil {
		return nil, fmt.Errorf("interview: last session: %w", err)
	}
	if sess == nil {
		return nil, ErrNoSession
	}
	return sess, nil
}

func (c *Controller) profileName(name string) (string, error) {
	if name == "" {
		name = c.cfg.DefaultProfile
	}
	if _, ok := c.profiles[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	return name, nil
}

func (c *Controller) profile(sess *models.Session) (config.Profile, error) {
	name, err := c.profileName(sess.Profile)
	if err != nil {
		return config.Profile{}, err
	}
	return c.profiles[name], nil
}

// recentQuestions returns up to n of the latest interviewer questions,
// oldest first. Answers to candidate questions are not included.
func recentQuestions(msgs []models.Message, n int) []string {
	var out []string
	for i := len(msgs) - 1; i >= 0 && len(out) < n; i-- {
		m := msgs[i]
		if m.Role != models.RoleInterviewer {
			continue
		}
		if m.Kind != models.KindQuestion && m.Kind != models.KindOpening {
			continue
		}
		out = append(out, m.Content)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// RenderTranscript formats messages one per line as
// "[<RFC3339>] ROLE: content".
func RenderTranscript(msgs []models.Message) string {
	lines := make([]string, 0, len(msgs))
	for _, m := range msgs {
		lines = append(lines, fmt.Sprintf("[%s] %s: %s",
			m.CreatedAt.UTC().Format(time.RFC3339), strings.ToUpper(m.Role), m.Content))
	}
	return strings.Join(lines, "\n")
}

func limitWords(s string, n int) string {
	words := strings.Fields(s)
	if n <= 0 || len(words) <= n {
		return s
	}
	return strings.Join(words[:n], " ") + "..."
}

func sessionKey(id uint) string { return strconv.FormatUint(uint64(id), 10) }
