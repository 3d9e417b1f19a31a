package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/webrecorder/autobrowser/api/handler"
	"github.com/webrecorder/autobrowser/api/middleware"
	"github.com/webrecorder/autobrowser/behavior"
	"github.com/webrecorder/autobrowser/browser"
	"github.com/webrecorder/autobrowser/cache"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/snapshot"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health endpoint is intentionally outside auth so monitoring probes always work.
func NewRouter(b *browser.Browser, reg *behavior.Registry, rend *snapshot.Renderer, cc *cache.Cache, st *handler.SessionStore, cfg *config.Config, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	v1 := r.Group("/api/v1")

	// Health endpoint stays unauthenticated.
	v1.GET("/health", handler.Health(b, st, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	// One-shot behavior runs.
	protected.GET("/behaviors", handler.Behaviors(reg))
	protected.POST("/behaviors/run", handler.Run(b, reg, rend, cc, cfg))

	// Step sessions: the externally driven iterator protocol.
	protected.POST("/sessions", handler.PostSession(b, reg, cfg, st))
	protected.POST("/sessions/:id/step", handler.StepSession(st))
	protected.GET("/sessions/:id/outlinks", handler.GetOutlinks(st))
	protected.DELETE("/sessions/:id/outlinks", handler.ClearOutlinks(st))
	protected.POST("/sessions/:id/pause", handler.PauseSession(st))
	protected.POST("/sessions/:id/resume", handler.ResumeSession(st))
	protected.DELETE("/sessions/:id", handler.DeleteSession(st))

	return r
}
