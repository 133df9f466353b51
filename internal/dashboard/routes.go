package dashboard

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/interviewer/internal/interview"
	"github.com/zulandar/interviewer/internal/models"
	"go.uber.org/zap"
)

// registerRoutes sets up all dashboard routes.
func registerRoutes(router *gin.Engine, sessions SessionReader, statuses StatusSource, log *zap.Logger) {
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	api.GET("/sessions", func(c *gin.Context) {
		status := c.Query("status")
		switch status {
		case "", models.StatusActive, models.StatusEnded:
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or ended"})
			return
		}
		list, err := sessions.ListSessions(status)
		if err != nil {
			serverError(c, log, err)
			return
		}
		if list == nil {
			list = []models.Session{}
		}
		c.JSON(http.StatusOK, gin.H{"sessions": list})
	})

	api.GET("/sessions/:id", func(c *gin.Context) {
		sess, ok := lookupSession(c, sessions, log)
		if !ok {
			return
		}
		c.JSON(http.StatusOK, sess)
	})

	api.GET("/sessions/:id/transcript", func(c *gin.Context) {
		sess, ok := lookupSession(c, sessions, log)
		if !ok {
			return
		}
		msgs, err := sessions.GetTranscript(sess.ID)
		if err != nil {
			serverError(c, log, err)
			return
		}
		if msgs == nil {
			msgs = []models.Message{}
		}
		c.JSON(http.StatusOK, transcriptView{
			SessionID: sess.ID,
			Messages:  msgs,
			Text:      interview.RenderTranscript(msgs),
		})
	})

	api.GET("/sessions/:id/evaluations", func(c *gin.Context) {
		sess, ok := lookupSession(c, sessions, log)
		if !ok {
			return
		}
		evs, err := sessions.ListEvaluations(sess.ID)
		if err != nil {
			serverError(c, log, err)
			return
		}
		if evs == nil {
			evs = []models.Evaluation{}
		}
		c.JSON(http.StatusOK, gin.H{"evaluations": evs})
	})

	if statuses == nil {
		return
	}
	api.GET("/active", func(c *gin.Context) {
		list, err := statuses.ActiveStatuses(c.Request.Context())
		if err != nil {
			serverError(c, log, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"active": toActiveViews(list)})
	})
	api.GET("/events", handleSSE(statuses, log, defaultPollInterval, defaultHeartbeat))
}

// lookupSession resolves the :id path parameter, writing a 400 or 404
// response when it cannot.
func lookupSession(c *gin.Context, sessions SessionReader, log *zap.Logger) (*models.Session, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session id"})
		return nil, false
	}
	sess, err := sessions.GetSession(uint(id))
	if errors.Is(err, interview.ErrNoSession) {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return nil, false
	}
	if err != nil {
		serverError(c, log, err)
		return nil, false
	}
	return sess, true
}

func serverError(c *gin.Context, log *zap.Logger, err error) {
	log.Error("dashboard query failed", zap.String("path", c.FullPath()), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
