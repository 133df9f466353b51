// Package store persists interview sessions, transcripts, controller state
// and evaluations through GORM.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var _ interview.Store = (*Store)(nil)

// Store is the GORM-backed interview.Store.
type Store struct {
	db *gorm.DB
}

// New creates a Store over an already-migrated database.
func New(db *gorm.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("store: db is required")
	}
	return &Store{db: db}, nil
}

// CreateSession inserts the session, its initial state and the opening
// message in one transaction. The active-session check runs inside the same
// transaction so at most one session per channel is ever active.
func (s *Store) CreateSession(sess *models.Session, coverage interview.CoverageMap, opening string) error {
	covJSON, err := encodeCoverage(coverage)
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Session
		result := tx.Where("channel_id = ? AND status = ?", sess.ChannelID, models.StatusActive).First(&existing)
		if result.Error == nil {
			return interview.ErrSessionActive
		}
		if !errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return fmt.Errorf("check existing session: %w", result.Error)
		}

		if sess.Status == "" {
			sess.Status = models.StatusActive
		}
		if sess.StartedAt.IsZero() {
			sess.StartedAt = time.Now()
		}
		if err := tx.Create(sess).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		state := models.SessionState{SessionID: sess.ID, Coverage: covJSON}
		if err := tx.Create(&state).Error; err != nil {
			return fmt.Errorf("create state: %w", err)
		}
		msg := models.Message{
			SessionID: sess.ID,
			Sequence:  1,
			Role:      models.RoleInterviewer,
			Kind:      models.KindOpening,
			Content:   opening,
		}
		if err := tx.Create(&msg).Error; err != nil {
			return fmt.Errorf("create opening message: %w", err)
		}
		return nil
	})
	if errors.Is(err, interview.ErrSessionActive) {
		return interview.ErrSessionActive
	}
	if err != nil {
		return fmt.Errorf("store: create session: %w", err)
	}
	return nil
}

// GetSession returns the session with id or interview.ErrNoSession.
func (s *Store) GetSession(id uint) (*models.Session, error) {
	var sess models.Session
	if err := s.db.First(&sess, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, interview.ErrNoSession
		}
		return nil, fmt.Errorf("store: get session %d: %w", id, err)
	}
	return &sess, nil
}

// GetActiveSession returns the channel's active session, or nil.
func (s *Store) GetActiveSession(channelID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.Where("channel_id = ? AND status = ?", channelID, models.StatusActive).First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: active session: %w", err)
	}
	return &sess, nil
}

// GetLastSession returns the channel's most recently started session, or nil.
func (s *Store) GetLastSession(channelID string) (*models.Session, error) {
	var sess models.Session
	err := s.db.Where("channel_id = ?", channelID).
		Order("started_at DESC").Order("id DESC").
		First(&sess).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: last session: %w", err)
	}
	return &sess, nil
}

// EndSession marks an active session ended.
func (s *Store) EndSession(id uint, at time.Time) error {
	result := s.db.Model(&models.Session{}).
		Where("id = ? AND status = ?", id, models.StatusActive).
		Updates(map[string]interface{}{
			"status":   models.StatusEnded,
			"ended_at": at,
		})
	if result.Error != nil {
		return fmt.Errorf("store: end session: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return interview.ErrNoActiveSession
	}
	return nil
}

// ListSessions returns sessions with the given status, or all sessions when
// status is empty, oldest first.
func (s *Store) ListSessions(status string) ([]models.Session, error) {
	var sessions []models.Session
	q := s.db.Order("id")
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	return sessions, nil
}

// AppendMessage assigns the next sequence number and inserts m.
func (s *Store) AppendMessage(m *models.Message) error {
	if m.Kind == "" {
		m.Kind = models.KindMessage
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		seq, err := nextSequence(tx, m.SessionID)
		if err != nil {
			return err
		}
		m.Sequence = seq
		return tx.Create(m).Error
	})
	if err != nil {
		return fmt.Errorf("store: append message: %w", err)
	}
	return nil
}

// GetTranscript returns a session's messages ordered by sequence.
func (s *Store) GetTranscript(sessionID uint) ([]models.Message, error) {
	var msgs []models.Message
	if err := s.db.Where("session_id = ?", sessionID).Order("sequence").Find(&msgs).Error; err != nil {
		return nil, fmt.Errorf("store: transcript: %w", err)
	}
	return msgs, nil
}

// GetOrCreateState loads the session's controller state, creating the
// default state when none exists. Undecodable coverage reads as default.
func (s *Store) GetOrCreateState(sessionID uint) (*interview.State, error) {
	var row models.SessionState
	err := s.db.First(&row, "session_id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		covJSON, encErr := encodeCoverage(interview.DefaultCoverage())
		if encErr != nil {
			return nil, fmt.Errorf("store: create state: %w", encErr)
		}
		row = models.SessionState{SessionID: sessionID, Coverage: covJSON}
		if err := s.db.Create(&row).Error; err != nil {
			return nil, fmt.Errorf("store: create state: %w", err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("store: load state: %w", err)
	}

	return &interview.State{
		SessionID:  row.SessionID,
		ResumeText: row.ResumeText,
		TurnCount:  row.TurnCount,
		Coverage:   decodeCoverage(row.Coverage),
	}, nil
}

// SaveState replaces the session's controller state.
func (s *Store) SaveState(sessionID uint, resumeText string, turnCount int, coverage interview.CoverageMap) error {
	if err := saveState(s.db, sessionID, resumeText, turnCount, coverage); err != nil {
		return fmt.Errorf("store: save state: %w", err)
	}
	return nil
}

// RecordTurn saves the state and appends the turn's question in one
// transaction.
func (s *Store) RecordTurn(sessionID uint, resumeText string, turnCount int, coverage interview.CoverageMap, question *models.Message) error {
	if question.Kind == "" {
		question.Kind = models.KindQuestion
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := saveState(tx, sessionID, resumeText, turnCount, coverage); err != nil {
			return err
		}
		seq, err := nextSequence(tx, sessionID)
		if err != nil {
			return err
		}
		question.SessionID = sessionID
		question.Sequence = seq
		if err := tx.Create(question).Error; err != nil {
			return fmt.Errorf("append question: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: record turn: %w", err)
	}
	return nil
}

func saveState(tx *gorm.DB, sessionID uint, resumeText string, turnCount int, coverage interview.CoverageMap) error {
	covJSON, err := encodeCoverage(coverage)
	if err != nil {
		return err
	}
	row := models.SessionState{
		SessionID:  sessionID,
		ResumeText: resumeText,
		TurnCount:  turnCount,
		Coverage:   covJSON,
		UpdatedAt:  time.Now(),
	}
	if err := tx.Save(&row).Error; err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}

// AppendEvaluation stores a new evaluation. Earlier evaluations are kept.
func (s *Store) AppendEvaluation(sessionID uint, resultText string, resultJSON []byte) (*models.Evaluation, error) {
	ev := models.Evaluation{
		SessionID:  sessionID,
		ResultText: resultText,
		ResultJSON: datatypes.JSON(resultJSON),
	}
	if err := s.db.Create(&ev).Error; err != nil {
		return nil, fmt.Errorf("store: append evaluation: %w", err)
	}
	return &ev, nil
}

// ListEvaluations returns a session's evaluations, oldest first.
func (s *Store) ListEvaluations(sessionID uint) ([]models.Evaluation, error) {
	var evs []models.Evaluation
	if err := s.db.Where("session_id = ?", sessionID).Order("id").Find(&evs).Error; err != nil {
		return nil, fmt.Errorf("store: list evaluations: %w", err)
	}
	return evs, nil
}

// nextSequence returns the next transcript sequence number for a session.
func nextSequence(tx *gorm.DB, sessionID uint) (int, error) {
	var maxSeq int
	result := tx.Model(&models.Message{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(sequence), 0)").Scan(&maxSeq)
	if result.Error != nil {
		return 0, fmt.Errorf("next sequence: %w", result.Error)
	}
	return maxSeq + 1, nil
}

func encodeCoverage(cov interview.CoverageMap) (datatypes.JSON, error) {
	data, err := json.Marshal(cov.Normalize())
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(data), nil
}

func decodeCoverage(raw datatypes.JSON) interview.CoverageMap {
	var cov interview.CoverageMap
	if len(raw) == 0 || json.Unmarshal(raw, &cov) != nil {
		return interview.DefaultCoverage()
	}
	return cov.Normalize()
}
