package interview

import (
	"context"
	"errors"
	"time"

	"github.com/zulandar/interviewer/internal/models"
)

// Invariant violations surfaced to callers as user-visible rejections.
var (
	ErrSessionActive   = errors.New("interview: an active interview already exists in this channel")
	ErrNoActiveSession = errors.New("interview: no active interview in this channel")
	ErrNoSession       = errors.New("interview: no session found")
	ErrSessionEnded    = errors.New("interview: session has ended")
	ErrUnknownProfile  = errors.New("interview: unknown profile")
)

// State is the controller's per-session state.
type State struct {
	SessionID  uint
	ResumeText string
	TurnCount  int
	Coverage   CoverageMap
}

// Store is the persistence the controller depends on. Every method is a
// single atomic write or a read; failures abort the current operation.
type Store interface {
	// CreateSession inserts sess, its initial state and the opening
	// interviewer message together. It returns ErrSessionActive when the
	// channel already has an active session.
	CreateSession(sess *models.Session, coverage CoverageMap, opening string) error
	// GetSession returns ErrNoSession when id does not exist.
	GetSession(id uint) (*models.Session, error)
	// GetActiveSession returns nil when the channel has no active session.
	GetActiveSession(channelID string) (*models.Session, error)
	// GetLastSession returns the most recently started session in the
	// channel regardless of status, or nil.
	GetLastSession(channelID string) (*models.Session, error)
	// EndSession flips an active session to ended. It returns
	// ErrNoActiveSession when the session is not active.
	EndSession(id uint, at time.Time) error
	ListSessions(status string) ([]models.Session, error)

	// AppendMessage assigns the next sequence number and stores m.
	AppendMessage(m *models.Message) error
	GetTranscript(sessionID uint) ([]models.Message, error)

	GetOrCreateState(sessionID uint) (*State, error)
	SaveState(sessionID uint, resumeText string, turnCount int, coverage CoverageMap) error
	// RecordTurn saves the state and appends the turn's question together;
	// on failure neither is written.
	RecordTurn(sessionID uint, resumeText string, turnCount int, coverage CoverageMap, question *models.Message) error

	AppendEvaluation(sessionID uint, resultText string, resultJSON []byte) (*models.Evaluation, error)
}

// Backend is the generative text service: prompt in, text out.
type Backend interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
