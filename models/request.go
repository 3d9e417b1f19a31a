package models

// RunRequest is the payload for POST /api/v1/behaviors/run: a one-shot
// behavior run that navigates, drives the traversal to completion (or until
// the budget expires), and returns the collected results.
type RunRequest struct {
	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// Behavior forces a registered behavior by name instead of matching the
	// URL against the rule table. Empty means "match, fall back to autoscroll".
	Behavior string `json:"behavior,omitempty"`

	// MaxRunTime is the behavior run budget in seconds. Expiry is not an
	// error: the run reports the steps taken so far with done=false.
	// Default: 60. Max: 600.
	MaxRunTime int `json:"max_run_time,omitempty" binding:"omitempty,min=1,max=600"`

	// MaxSteps caps the number of advance calls. 0 means unlimited
	// (bounded only by MaxRunTime).
	MaxSteps int `json:"max_steps,omitempty" binding:"omitempty,min=0"`

	// CollectOutlinks enables outbound-link harvesting after every step.
	// Default: true.
	CollectOutlinks *bool `json:"collect_outlinks,omitempty"`

	// Stealth enables anti-bot-detection evasions before navigation.
	Stealth bool `json:"stealth,omitempty"`

	// Headers are extra HTTP headers sent with every request the page makes.
	Headers map[string]string `json:"headers,omitempty"`

	// Snapshot requests a content capture of the completed page.
	// Allowed: "" (none), "html", "markdown", "text".
	Snapshot string `json:"snapshot,omitempty" binding:"omitempty,oneof=html markdown text"`

	// CacheMaxAgeMs accepts a previously completed run for the same URL,
	// behavior and snapshot format if it is younger than this. 0 disables
	// the cache lookup; only fully completed runs are ever served from it.
	CacheMaxAgeMs int `json:"cache_max_age_ms,omitempty" binding:"omitempty,min=0"`
}

// Defaults applies default values to unset fields.
func (r *RunRequest) Defaults() {
	if r.MaxRunTime == 0 {
		r.MaxRunTime = 60
	}
	if r.CollectOutlinks == nil {
		t := true
		r.CollectOutlinks = &t
	}
}

// SessionRequest is the payload for POST /api/v1/sessions: the setup call of
// the step protocol. It binds a live behavior to a handle id; the driver then
// steps it explicitly.
type SessionRequest struct {
	// URL is the target page. Required.
	URL string `json:"url" binding:"required,url"`

	// Behavior forces a registered behavior by name (see RunRequest.Behavior).
	Behavior string `json:"behavior,omitempty"`

	// CollectOutlinks enables outbound-link harvesting per step. Default: true.
	CollectOutlinks *bool `json:"collect_outlinks,omitempty"`

	// Stealth enables anti-bot-detection evasions before navigation.
	Stealth bool `json:"stealth,omitempty"`

	// Headers are extra HTTP headers sent with every request the page makes.
	Headers map[string]string `json:"headers,omitempty"`
}

// Defaults applies default values to unset fields.
func (r *SessionRequest) Defaults() {
	if r.CollectOutlinks == nil {
		t := true
		r.CollectOutlinks = &t
	}
}
