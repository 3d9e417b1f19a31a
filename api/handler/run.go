package handler

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/webrecorder/autobrowser/behavior"
	"github.com/webrecorder/autobrowser/browser"
	"github.com/webrecorder/autobrowser/cache"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/outlinks"
	"github.com/webrecorder/autobrowser/snapshot"
)

// Run returns a handler for POST /api/v1/behaviors/run: navigate, drive the
// resolved behavior to completion or budget expiry, and report what was
// collected. Budget expiry is partial success, not an error.
func Run(b *browser.Browser, reg *behavior.Registry, rend *snapshot.Renderer, cc *cache.Cache, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.RunRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.RunResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: err.Error(),
				},
			})
			return
		}
		req.Defaults()

		target, err := url.Parse(req.URL)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.RunResponse{
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidInput,
					Message: "invalid url",
				},
			})
			return
		}

		name, build, resolveErr := resolveBehavior(reg, req.Behavior, target)
		if resolveErr != nil {
			c.JSON(http.StatusBadRequest, models.RunResponse{Error: resolveErr})
			return
		}

		cacheKey := cache.Key(req.URL, name, req.Snapshot)
		if cached, hit := cc.Get(cacheKey, req.CacheMaxAgeMs); hit {
			slog.Info("behavior run served from cache", "url", req.URL, "behavior", name)
			c.JSON(http.StatusOK, cached)
			return
		}

		start := time.Now()

		// ── 1. Open a page session ───────────────────────────────────
		sess, err := b.OpenSession(c.Request.Context(), browser.SessionOptions{
			URL:           req.URL,
			Stealth:       req.Stealth,
			DebugOutlines: cfg.Behavior.DebugOutlines,
			Headers:       req.Headers,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		defer sess.Close()
		navMs := time.Since(start).Milliseconds()

		// ── 2. Drive the behavior within its budget ──────────────────
		collector := outlinks.NewCollector()
		bh := behavior.New(name, sess.Page(), cfg.Behavior, build, collector, *req.CollectOutlinks)

		budget := time.Duration(req.MaxRunTime) * time.Second
		result, err := behavior.Run(c.Request.Context(), bh, budget, req.MaxSteps)
		if err != nil {
			writeError(c, err)
			return
		}

		resp := models.RunResponse{
			Success:  true,
			Done:     result.Done,
			Behavior: name,
			Steps:    result.Steps,
			Outlinks: collector.Links(),
			FinalURL: sess.FinalURL(),
			Timing: models.TimingInfo{
				NavigationMs: navMs,
				BehaviorMs:   result.Elapsed.Milliseconds(),
			},
		}

		// ── 3. Optional snapshot of the fully loaded page ────────────
		if req.Snapshot != "" {
			rawHTML, htmlErr := sess.Page().HTML()
			if htmlErr != nil {
				writeError(c, models.NewBehaviorError(models.ErrCodeBrowserCrash,
					"failed to extract page HTML", htmlErr))
				return
			}
			snap, snapErr := rend.Take(rawHTML, resp.FinalURL, req.Snapshot)
			if snapErr != nil {
				writeError(c, snapErr)
				return
			}
			resp.Snapshot = snap
		}

		resp.Timing.TotalMs = time.Since(start).Milliseconds()

		// Partial runs are never cached: they reflect the budget, not the
		// page.
		if resp.Done {
			cc.Set(cacheKey, &resp)
		}

		slog.Info("behavior run finished",
			"url", req.URL, "behavior", name,
			"steps", resp.Steps, "done", resp.Done,
			"outlinks", len(resp.Outlinks), "totalMs", resp.Timing.TotalMs,
		)
		c.JSON(http.StatusOK, resp)
	}
}

// Behaviors returns a handler for GET /api/v1/behaviors, listing registered
// behavior names.
func Behaviors(reg *behavior.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"behaviors": reg.Names()})
	}
}

// resolveBehavior picks the behavior by pinned name or URL match.
func resolveBehavior(reg *behavior.Registry, pinned string, target *url.URL) (string, behavior.Builder, *models.ErrorDetail) {
	if pinned == "" {
		name, build := reg.Resolve(target)
		return name, build, nil
	}
	build, ok := reg.ResolveByName(pinned)
	if !ok {
		return "", nil, &models.ErrorDetail{
			Code:    models.ErrCodeInvalidInput,
			Message: "unknown behavior: " + pinned,
		}
	}
	return pinned, build, nil
}

// writeError maps internal errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var be *models.BehaviorError
	if !errors.As(err, &be) {
		be = models.NewBehaviorError(models.ErrCodeInternal, err.Error(), err)
	}

	status := http.StatusInternalServerError
	switch be.Code {
	case models.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case models.ErrCodeNavigation, models.ErrCodeStructuralMismatch:
		status = http.StatusBadGateway
	case models.ErrCodeTimeout:
		status = http.StatusGatewayTimeout
	}

	slog.Error("request failed", "code", be.Code, "error", be)
	c.JSON(status, models.RunResponse{Error: be.ToDetail()})
}

// randomID generates a short random hex string for session ids.
func randomID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
