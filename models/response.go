package models

// RunResponse is the response for POST /api/v1/behaviors/run.
type RunResponse struct {
	// Success indicates whether the run completed without a terminal error.
	// A run stopped by the time budget is still a success (Done=false).
	Success bool `json:"success"`

	// Done is true when the traversal exhausted the page before the budget
	// expired.
	Done bool `json:"done"`

	// Behavior is the name of the behavior that ran ("autoscroll" when no
	// rule matched).
	Behavior string `json:"behavior"`

	// Steps is the number of advance calls performed.
	Steps int `json:"steps"`

	// Outlinks is the deduplicated set of outbound links discovered during
	// the run, in sorted order.
	Outlinks []string `json:"outlinks,omitempty"`

	// FinalURL is the URL after following all redirects.
	FinalURL string `json:"final_url"`

	// Snapshot is the captured page content in the requested format.
	// Empty unless a snapshot was requested.
	Snapshot *SnapshotResult `json:"snapshot,omitempty"`

	// Timing provides duration breakdowns for the operation.
	Timing TimingInfo `json:"timing"`

	// Error is populated only when Success is false.
	Error *ErrorDetail `json:"error,omitempty"`
}

// SnapshotResult is the captured content of a completed page.
type SnapshotResult struct {
	// Format is the requested output format: "html", "markdown", or "text".
	Format string `json:"format"`

	// Content is the captured page content in Format.
	Content string `json:"content"`

	// Metadata contains extracted page metadata.
	Metadata Metadata `json:"metadata"`
}

// Metadata holds page-level information extracted during capture.
type Metadata struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	Author      string `json:"author,omitempty"`
	Language    string `json:"language,omitempty"`
	SourceURL   string `json:"source_url"`
}

// TimingInfo breaks down the time spent in each phase.
type TimingInfo struct {
	// TotalMs is the end-to-end duration in milliseconds.
	TotalMs int64 `json:"total_ms"`

	// NavigationMs is the time spent navigating and rendering the page.
	NavigationMs int64 `json:"navigation_ms"`

	// BehaviorMs is the time spent stepping the traversal.
	BehaviorMs int64 `json:"behavior_ms"`
}

// SessionResponse is the response for POST /api/v1/sessions.
type SessionResponse struct {
	ID       string `json:"id"`
	Behavior string `json:"behavior"`
	FinalURL string `json:"final_url"`
}

// StepResponse is the response for POST /api/v1/sessions/:id/step.
type StepResponse struct {
	// Done and Wait mirror the iterator protocol: Done signals exhaustion,
	// Wait asks the driver to insert extra delay before the next step.
	Done bool `json:"done"`
	Wait bool `json:"wait,omitempty"`

	// Steps is the total number of advance calls performed so far.
	Steps int `json:"steps"`

	// Error is populated when the step failed terminally. The session is
	// unusable afterwards and should be deleted.
	Error *ErrorDetail `json:"error,omitempty"`
}

// OutlinksResponse is the response for GET /api/v1/sessions/:id/outlinks.
type OutlinksResponse struct {
	Outlinks []string `json:"outlinks"`
	Total    int      `json:"total"`
}

// HealthResponse is the response for GET /api/v1/health.
type HealthResponse struct {
	Status    string    `json:"status"` // "healthy" or "degraded"
	Uptime    string    `json:"uptime"`
	PoolStats PoolStats `json:"pool_stats"`
	Sessions  int       `json:"sessions"`
	Version   string    `json:"version"`
}

// PoolStats reports the state of the browser page pool.
type PoolStats struct {
	MaxPages    int `json:"max_pages"`
	ActivePages int `json:"active_pages"`
}
