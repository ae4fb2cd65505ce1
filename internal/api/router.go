// Package api exposes the pipeline's operational HTTP surface: health,
// readiness, queue status, and Prometheus metrics. Product CRUD lives in a
// separate service; this process only runs the background pipeline.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/promptops/insight-pipeline/internal/logger"
	"github.com/promptops/insight-pipeline/internal/queue"
	"github.com/promptops/insight-pipeline/internal/telemetry"
)

// Pinger is a readiness check against a backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingerFunc adapts a function to the Pinger interface.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) Ping(ctx context.Context) error { return f(ctx) }

// Deps are the collaborators the router needs.
type Deps struct {
	DB      Pinger
	Redis   Pinger
	Queue   queue.Queue
	Metrics *telemetry.Metrics
	Log     logger.Logger
}

func NewRouter(deps Deps) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(deps.Log))
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/ready", func(c *gin.Context) {
		if err := deps.DB.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "database": err.Error()})
			return
		}
		if err := deps.Redis.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	router.GET("/status", func(c *gin.Context) {
		stats, err := deps.Queue.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"queue": stats})
	})

	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(
		deps.Metrics.Registry(),
		promhttp.HandlerOpts{},
	)))

	return router
}

func ginLogger(log logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		log.Info("HTTP request",
			logger.String("method", method),
			logger.String("path", path),
			logger.Int("status_code", c.Writer.Status()),
			logger.String("client_ip", c.ClientIP()),
			logger.Duration("duration", time.Since(start)),
		)
	}
}
