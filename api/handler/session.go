package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/webrecorder/autobrowser/behavior"
	"github.com/webrecorder/autobrowser/browser"
	"github.com/webrecorder/autobrowser/config"
	"github.com/webrecorder/autobrowser/models"
	"github.com/webrecorder/autobrowser/outlinks"
)

// liveSession is one driver-held behavior session: a borrowed page plus the
// behavior bound to it. The driver owns the stepping cadence; the server
// only holds state between calls.
type liveSession struct {
	id       string
	session  *browser.Session
	behavior *behavior.Behavior

	mu       sync.Mutex
	lastUsed time.Time
}

func (s *liveSession) touch() {
	s.mu.Lock()
	s.lastUsed = time.Now()
	s.mu.Unlock()
}

func (s *liveSession) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsed
}

// SessionStore holds all live step sessions and expires idle ones. Expiry
// matters more here than for ordinary jobs: every idle session pins a
// browser tab.
type SessionStore struct {
	cfg      config.SessionConfig
	mu       sync.Mutex
	sessions map[string]*liveSession
}

// NewSessionStore creates the store and starts the idle eviction loop.
func NewSessionStore(cfg config.SessionConfig) *SessionStore {
	st := &SessionStore{
		cfg:      cfg,
		sessions: make(map[string]*liveSession),
	}
	go st.evictLoop()
	return st
}

// Count reports the number of live sessions.
func (st *SessionStore) Count() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

func (st *SessionStore) add(s *liveSession) bool {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.cfg.MaxSessions > 0 && len(st.sessions) >= st.cfg.MaxSessions {
		return false
	}
	st.sessions[s.id] = s
	return true
}

func (st *SessionStore) get(id string) (*liveSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	return s, ok
}

func (st *SessionStore) remove(id string) (*liveSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	s, ok := st.sessions[id]
	if ok {
		delete(st.sessions, id)
	}
	return s, ok
}

func (st *SessionStore) evictLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-st.cfg.IdleTTL)
		st.mu.Lock()
		var expired []*liveSession
		for id, s := range st.sessions {
			if s.idleSince().Before(cutoff) {
				expired = append(expired, s)
				delete(st.sessions, id)
			}
		}
		st.mu.Unlock()

		for _, s := range expired {
			slog.Info("session expired", "id", s.id, "behavior", s.behavior.Name())
			s.session.Close()
		}
	}
}

// CloseAll tears down every live session, for graceful shutdown.
func (st *SessionStore) CloseAll() {
	st.mu.Lock()
	sessions := make([]*liveSession, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.sessions = make(map[string]*liveSession)
	st.mu.Unlock()

	for _, s := range sessions {
		s.session.Close()
	}
}

// PostSession returns a handler for POST /api/v1/sessions: the setup call of
// the step protocol. It navigates and binds a behavior without advancing it;
// initialization stays lazy until the first step.
func PostSession(b *browser.Browser, reg *behavior.Registry, cfg *config.Config, st *SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req models.SessionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: err.Error(),
			}})
			return
		}
		req.Defaults()

		target, err := url.Parse(req.URL)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": models.ErrorDetail{
				Code:    models.ErrCodeInvalidInput,
				Message: "invalid url",
			}})
			return
		}

		name, build, resolveErr := resolveBehavior(reg, req.Behavior, target)
		if resolveErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": resolveErr})
			return
		}

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

		live := &liveSession{
			id:       "session-" + randomID(),
			session:  sess,
			behavior: behavior.New(name, sess.Page(), cfg.Behavior, build, outlinks.NewCollector(), *req.CollectOutlinks),
			lastUsed: time.Now(),
		}
		if !st.add(live) {
			sess.Close()
			c.JSON(http.StatusTooManyRequests, gin.H{"error": models.ErrorDetail{
				Code:    models.ErrCodeRateLimited,
				Message: "session limit reached, delete an existing session first",
			}})
			return
		}

		slog.Info("session created", "id", live.id, "url", req.URL, "behavior", name)
		c.JSON(http.StatusOK, models.SessionResponse{
			ID:       live.id,
			Behavior: name,
			FinalURL: sess.FinalURL(),
		})
	}
}

// StepSession returns a handler for POST /api/v1/sessions/:id/step: one
// advance call, one resumption of the traversal. A terminal error leaves the
// session dead; the driver is expected to delete it rather than retry.
func StepSession(st *SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, ok := st.get(c.Param("id"))
		if !ok {
			sessionNotFound(c)
			return
		}
		live.touch()

		res, err := live.behavior.Advance(c.Request.Context())
		if err != nil {
			var be *models.BehaviorError
			if !errors.As(err, &be) {
				be = models.NewBehaviorError(models.ErrCodeInternal, err.Error(), err)
			}
			c.JSON(http.StatusOK, models.StepResponse{
				Steps: live.behavior.StepCount(),
				Error: be.ToDetail(),
			})
			return
		}

		c.JSON(http.StatusOK, models.StepResponse{
			Done:  res.Done,
			Wait:  res.Wait,
			Steps: live.behavior.StepCount(),
		})
	}
}

// GetOutlinks returns a handler for GET /api/v1/sessions/:id/outlinks.
func GetOutlinks(st *SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, ok := st.get(c.Param("id"))
		if !ok {
			sessionNotFound(c)
			return
		}
		live.touch()
		links := live.behavior.Outlinks().Links()
		c.JSON(http.StatusOK, models.OutlinksResponse{
			Outlinks: links,
			Total:    len(links),
		})
	}
}

// ClearOutlinks returns a handler for DELETE /api/v1/sessions/:id/outlinks.
// The collector lifecycle is driver-managed: drained between runs so each
// behavior's harvest is attributable.
func ClearOutlinks(st *SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, ok := st.get(c.Param("id"))
		if !ok {
			sessionNotFound(c)
			return
		}
		live.touch()
		live.behavior.Outlinks().Clear()
		c.JSON(http.StatusOK, models.OutlinksResponse{Outlinks: []string{}, Total: 0})
	}
}

// PauseSession returns a handler for POST /api/v1/sessions/:id/pause.
func PauseSession(st *SessionStore) gin.HandlerFunc {
	return setPaused(st, true)
}

// ResumeSession returns a handler for POST /api/v1/sessions/:id/resume.
func ResumeSession(st *SessionStore) gin.HandlerFunc {
	return setPaused(st, false)
}

func setPaused(st *SessionStore, paused bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, ok := st.get(c.Param("id"))
		if !ok {
			sessionNotFound(c)
			return
		}
		live.touch()
		live.behavior.SetPaused(c.Request.Context(), paused)
		c.JSON(http.StatusOK, gin.H{"id": live.id, "paused": paused})
	}
}

// DeleteSession returns a handler for DELETE /api/v1/sessions/:id.
func DeleteSession(st *SessionStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		live, ok := st.remove(c.Param("id"))
		if !ok {
			sessionNotFound(c)
			return
		}
		live.session.Close()
		slog.Info("session deleted", "id", live.id, "steps", live.behavior.StepCount())
		c.Status(http.StatusNoContent)
	}
}

func sessionNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": models.ErrorDetail{
		Code:    models.ErrCodeInvalidInput,
		Message: "session not found",
	}})
}
