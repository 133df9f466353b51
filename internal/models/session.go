// Package models defines the gorm models persisted by the interviewer.
package models

import (
	"time"

	"gorm.io/datatypes"
)

// Session status values.
const (
	StatusActive = "active"
	StatusEnded  = "ended"
)

// Message roles.
const (
	RoleInterviewer = "interviewer"
	RoleCandidate   = "candidate"
	RoleSystem      = "system"
)

// Message kinds distinguish interviewer questions from other interviewer
// output when building the recent-questions window.
const (
	KindOpening  = "opening"
	KindQuestion = "question"
	KindAnswer   = "answer"
	KindMessage  = "message"
)

// Session is one interview instance. ChannelID is the location key the
// interview runs in (a thread when one was created), ParentChannelID the
// channel the start command came from.
type Session struct {
	ID              uint       `gorm:"primaryKey;autoIncrement" json:"id"`
	CandidateID     string     `gorm:"size:128;not null;index" json:"candidate_id"`
	ChannelID       string     `gorm:"size:128;not null;index:idx_channel_status" json:"channel_id"`
	ParentChannelID string     `gorm:"size:128" json:"parent_channel_id,omitempty"`
	Profile         string     `gorm:"size:64" json:"profile"`
	Status          string     `gorm:"size:16;default:active;index:idx_channel_status" json:"status"`
	StartedAt       time.Time  `gorm:"not null" json:"started_at"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
}

// Message is one transcript entry. Sequence is monotonic per session and
// is the transcript's ordering key.
type Message struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"-"`
	SessionID uint      `gorm:"not null;index:idx_session_sequence" json:"session_id"`
	Sequence  int       `gorm:"not null;index:idx_session_sequence" json:"sequence"`
	Role      string    `gorm:"size:16;not null" json:"role"`
	Kind      string    `gorm:"size:16;default:message" json:"kind"`
	AuthorID  string    `gorm:"size:128" json:"author_id,omitempty"`
	Content   string    `gorm:"type:mediumtext;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// SessionState is the controller's mutable per-session state, one row per
// session.
type SessionState struct {
	SessionID  uint           `gorm:"primaryKey" json:"session_id"`
	ResumeText string         `gorm:"type:mediumtext" json:"resume_text"`
	TurnCount  int            `gorm:"not null;default:0" json:"turn_count"`
	Coverage   datatypes.JSON `json:"coverage"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// TableName keeps the table name singular-per-session.
func (SessionState) TableName() string { return "session_state" }

// Evaluation is an append-only scored result for a session.
type Evaluation struct {
	ID         uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  uint           `gorm:"not null;index" json:"session_id"`
	ResultText string         `gorm:"type:mediumtext" json:"result_text"`
	ResultJSON datatypes.JSON `json:"result_json"`
	CreatedAt  time.Time      `json:"created_at"`
}
