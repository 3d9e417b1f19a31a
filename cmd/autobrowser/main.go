package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/webrecorder/autobrowser/api"
	"github.com/webrecorder/autobrowser/api/handler"
	"github.com/webrecorder/autobrowser/behavior"
	"github.com/webrecorder/autobrowser/browser"
	"github.com/webrecorder/autobrowser/cache"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/snapshot"
)

func main() {
	// ── 1. Load configuration ───────────────────────────────────────
	cfg := config.Load()

	// ── 2. Initialise structured logging ────────────────────────────
	initLogger(cfg.Log)
	slog.Info("autobrowser starting",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"mode", cfg.Server.Mode,
		"maxPages", cfg.Browser.MaxPages,
	)

	// ── 3. Launch browser and page pool ─────────────────────────────
	b, err := browser.New(cfg.Browser)
	if err != nil {
		slog.Error("failed to initialise browser", "error", err)
		os.Exit(1)
	}
	defer b.Close()

	// ── 4. Behavior registry ────────────────────────────────────────
	reg := behavior.NewRegistry()
	registerBuiltins(reg)

	// ── 5. Snapshot renderer and session store ──────────────────────
	rend := snapshot.NewRenderer()
	cc := cache.New(cfg.Cache.MaxEntries)
	store := handler.NewSessionStore(cfg.Session)
	defer store.CloseAll()

	// ── 6. Setup router ─────────────────────────────────────────────
	startTime := time.Now()
	router := api.NewRouter(b, reg, rend, cc, store, cfg, startTime)

	// ── 7. Start HTTP server ────────────────────────────────────────
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// ── 8. Graceful shutdown ────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	slog.Info("shutdown signal received", "signal", sig.String())

	// Give in-flight requests 5 seconds to complete.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("HTTP server forced shutdown", "error", err)
	} else {
		slog.Info("HTTP server drained gracefully")
	}

	// store.CloseAll() and b.Close() run via defer: sessions released,
	// page pool drained, Chrome killed.
	slog.Info("autobrowser stopped")
}

// registerBuiltins installs the stock feed rules. Sites not listed here get
// the autoscroll fallback.
func registerBuiltins(reg *behavior.Registry) {
	// Generic timeline markup used by several federated platforms.
	reg.Register(behavior.MustFeedRule("timeline", "mastodon.social", "", behavior.FeedSpec{
		ItemSelector: "article[data-id]",
	}))
	reg.Register(behavior.MustFeedRule("hn-front", "news.ycombinator.com", "", behavior.FeedSpec{
		ItemSelector: "tr.athing",
	}))
	reg.Register(behavior.MustFeedRule("thread-feed", "old.reddit.com", "", behavior.FeedSpec{
		ItemSelector:   "div.thing.link",
		DetailSelector: "div.expando",
		NeedsWait:      true,
	}))
}

// initLogger configures slog based on the LogConfig.
func initLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(handler))
}
