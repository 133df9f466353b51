package dashboard

import (
	"context"

	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/models"
)

// SessionReader is the read side of the session store.
type SessionReader interface {
	ListSessions(status string) ([]models.Session, error)
	GetSession(id uint) (*models.Session, error)
	GetTranscript(sessionID uint) ([]models.Message, error)
	ListEvaluations(sessionID uint) ([]models.Evaluation, error)
}

// StatusSource reports progress of active interviews.
type StatusSource interface {
	ActiveStatuses(ctx context.Context) ([]interview.SessionStatus, error)
}

// activeView is the JSON shape of one active interview.
type activeView struct {
	SessionID   uint     `json:"session_id"`
	CandidateID string   `json:"candidate_id"`
	ChannelID   string   `json:"channel_id"`
	Profile     string   `json:"profile"`
	TurnCount   int      `json:"turn_count"`
	MaxTurns    int      `json:"max_turns"`
	Covered     []string `json:"covered"`
	Sufficient  bool     `json:"sufficient"`
}

func toActiveViews(statuses []interview.SessionStatus) []activeView {
	out := make([]activeView, 0, len(statuses))
	for _, st := range statuses {
		covered := st.Covered
		if covered == nil {
			covered = []string{}
		}
		out = append(out, activeView{
			SessionID:   st.Session.ID,
			CandidateID: st.Session.CandidateID,
			ChannelID:   st.Session.ChannelID,
			Profile:     st.Session.Profile,
			TurnCount:   st.TurnCount,
			MaxTurns:    st.MaxTurns,
			Covered:     covered,
			Sufficient:  st.Sufficient,
		})
	}
	return out
}

// transcriptView pairs the stored messages with the rendered text form.
type transcriptView struct {
	SessionID uint             `json:"session_id"`
	Messages  []models.Message `json:"messages"`
	Text      string           `json:"text"`
}
