// Package dashboard serves a read-only JSON API over interview sessions,
// transcripts and evaluations.
package dashboard

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/interviewer/internal/logger"
	"go.uber.org/zap"
)

const defaultPort = 8080

// StartOpts holds configuration for the dashboard server.
type StartOpts struct {
	Sessions SessionReader
	Statuses StatusSource // optional; enables /api/active and /api/events
	Port     int
	Logger   *zap.Logger
}

// Start launches the dashboard HTTP server. It blocks until ctx is cancelled,
// then shuts down gracefully.
func Start(ctx context.Context, opts StartOpts) error {
	if opts.Sessions == nil {
		return fmt.Errorf("dashboard: session reader is required")
	}
	if opts.Port <= 0 {
		opts.Port = defaultPort
	}
	log := logger.OrNop(opts.Logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           newRouter(opts.Sessions, opts.Statuses, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info("dashboard listening", zap.Int("port", opts.Port))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("dashboard: %w", err)
	}
	return nil
}

func newRouter(sessions SessionReader, statuses StatusSource, log *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(log))
	registerRoutes(router, sessions, statuses, log)
	return router
}

// requestLogger logs each request at debug level.
func requestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug("dashboard request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	}
}
