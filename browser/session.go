package browser

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/traverse"
	"github.com/ysmood/gson"
)

// SessionOptions configures one page session.
type SessionOptions struct {
	URL           string
	Stealth       bool
	DebugOutlines bool

	// Headers are extra HTTP headers applied to every request the page
	// makes, on top of whatever Chromium sends by default.
	Headers map[string]string
}

// Session is one borrowed, navigated page held for the duration of a
// behavior run. Unlike a one-shot fetch, the page stays live across many
// step calls; Close returns it to the pool.
type Session struct {
	browser *Browser
	page    *rod.Page
	closed  bool
}

// OpenSession borrows a page, prepares it and navigates to the target URL.
//
// Lifecycle (numbered steps match the inline comments):
//
//  1. Timeout guard   – hard deadline on navigation and stabilisation
//  2. Acquire page    – borrow a tab from the pool (or create one)
//  3. Stealth         – mask navigator.webdriver etc. (before navigation!)
//  4. Extra headers   – per-session HTTP headers, if any
//  5. Navigate        – triggers page load
//  6. Wait            – DOM stable
//  7. Style injection – smooth scroll + optional visited outlines
//
// Step 3 must happen before step 4: stealth JS only takes effect for
// navigations that happen after it is installed.
func (b *Browser) OpenSession(ctx context.Context, opts SessionOptions) (*Session, error) {
	// ── 1. Timeout guard ──────────────────────────────────────────────
	navCtx, cancel := context.WithTimeout(ctx, b.cfg.NavigationTimeout)
	defer cancel()

	// ── 2. Acquire page from pool ─────────────────────────────────────
	b.activePages.Add(1)
	page, acquireErr := b.pagePool.Get(func() (*rod.Page, error) {
		return b.browser.Page(proto.TargetCreateTarget{})
	})
	if acquireErr != nil {
		b.activePages.Add(-1)
		return nil, models.NewBehaviorError(
			models.ErrCodeBrowserCrash,
			"failed to acquire page from pool",
			acquireErr,
		)
	}

	s := &Session{browser: b, page: page}

	// ── 3. Stealth injection ──────────────────────────────────────────
	if opts.Stealth {
		if _, evalErr := page.EvalOnNewDocument(stealth.JS); evalErr != nil {
			slog.Warn("stealth injection failed, proceeding without stealth",
				"error", evalErr,
			)
		}
	}

	p := page.Context(navCtx)

	// ── 4. Extra headers ──────────────────────────────────────────────
	if len(opts.Headers) > 0 {
		setHeaders := &proto.NetworkSetExtraHTTPHeaders{Headers: toHeadersMap(opts.Headers)}
		if hdrErr := setHeaders.Call(p); hdrErr != nil {
			slog.Warn("failed to set extra headers", "error", hdrErr)
		}
	}

	// ── 5. Navigate ───────────────────────────────────────────────────
	if navErr := p.Navigate(opts.URL); navErr != nil {
		s.Close()
		return nil, categorizeError(navErr, "navigation to target URL failed")
	}

	// ── 6. Wait for DOM to stabilise ──────────────────────────────────
	if stableErr := p.WaitDOMStable(300*time.Millisecond, 0.1); stableErr != nil {
		slog.Debug("WaitDOMStable did not converge, proceeding with current DOM",
			"url", opts.URL, "error", stableErr,
		)
	}

	// ── 7. Style injection ────────────────────────────────────────────
	if _, styleErr := traverse.InjectStyle(navCtx, page, opts.DebugOutlines); styleErr != nil {
		slog.Warn("style injection failed", "url", opts.URL, "error", styleErr)
	}

	slog.Info("session opened", "url", opts.URL, "stealth", opts.Stealth)
	return s, nil
}

// Page returns the live page for behavior driving.
func (s *Session) Page() *rod.Page { return s.page }

// FinalURL reports the page's URL after navigation and any redirects.
func (s *Session) FinalURL() string {
	info, err := s.page.Info()
	if err != nil {
		return ""
	}
	return info.URL
}

// Close parks the page on about:blank and returns it to the pool. The
// about:blank hop uses the original page reference so cleanup succeeds even
// after a request context has expired. Idempotent.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true
	if navErr := s.page.Navigate("about:blank"); navErr != nil {
		slog.Warn("cleanup: failed to navigate to about:blank", "error", navErr)
	}
	s.browser.pagePool.Put(s.page)
	s.browser.activePages.Add(-1)
}

// toHeadersMap converts a plain string map to the proto.NetworkHeaders type
// (map[string]gson.JSON) required by NetworkSetExtraHTTPHeaders.
func toHeadersMap(headers map[string]string) proto.NetworkHeaders {
	m := make(proto.NetworkHeaders, len(headers))
	for k, v := range headers {
		m[k] = gson.New(v)
	}
	return m
}

// categorizeError maps rod navigation failures onto the error taxonomy.
func categorizeError(err error, msg string) *models.BehaviorError {
	text := err.Error()
	switch {
	case strings.Contains(text, "net::ERR_NAME_NOT_RESOLVED"),
		strings.Contains(text, "net::ERR_CONNECTION"),
		strings.Contains(text, "net::ERR_ABORTED"),
		strings.Contains(text, "net::ERR_TIMED_OUT"):
		return models.NewBehaviorError(models.ErrCodeNavigation, msg, err)
	case strings.Contains(text, "context deadline exceeded"):
		return models.NewBehaviorError(models.ErrCodeTimeout, msg, err)
	default:
		return models.NewBehaviorError(models.ErrCodeBrowserCrash, msg, err)
	}
}
