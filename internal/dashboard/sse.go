package dashboard

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultHeartbeat    = 15 * time.Second
)

// handleSSE streams the active-interview list. A snapshot is sent on
// connect and again whenever a poll sees it change.
func handleSSE(statuses StatusSource, log *zap.Logger, poll, heartbeatEvery time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")

		ctx := c.Request.Context()
		writeSSE(c.Writer, "connected", map[string]string{"type": "connected"})

		var last []activeView
		sendIfChanged := func() {
			list, err := statuses.ActiveStatuses(ctx)
			if err != nil {
				log.Warn("dashboard: active poll failed", zap.Error(err))
				return
			}
			views := toActiveViews(list)
			if last != nil && slices.EqualFunc(last, views, sameActive) {
				return
			}
			last = views
			writeSSE(c.Writer, "active", views)
		}
		sendIfChanged()
		c.Writer.Flush()

		ticker := time.NewTicker(poll)
		heartbeat := time.NewTicker(heartbeatEvery)
		defer ticker.Stop()
		defer heartbeat.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-heartbeat.C:
				writeSSE(c.Writer, "heartbeat", map[string]string{
					"timestamp": time.Now().UTC().Format(time.RFC3339),
				})
				c.Writer.Flush()
			case <-ticker.C:
				sendIfChanged()
				c.Writer.Flush()
			}
		}
	}
}

func sameActive(a, b activeView) bool {
	return a.SessionID == b.SessionID && a.TurnCount == b.TurnCount &&
		a.Sufficient == b.Sufficient && slices.Equal(a.Covered, b.Covered)
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
