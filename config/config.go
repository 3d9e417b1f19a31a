package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Browser   BrowserConfig
	Behavior  BehaviorConfig
	Session   SessionConfig
	Cache     CacheConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
}

// ServerConfig controls the HTTP server.
type ServerConfig struct {
	Host string // default: "0.0.0.0"
	Port int    // default: 8080
	Mode string // "debug", "release", "test"; default: "release"
}

// BrowserConfig controls the Rod browser instance.
type BrowserConfig struct {
	// Headless controls whether the browser runs headless.
	Headless bool // default: true

	// MaxPages is the page pool capacity (max concurrent tabs).
	MaxPages int // default: 10

	// DefaultProxy is the default proxy URL for all requests.
	DefaultProxy string

	// NoSandbox disables Chrome's sandbox (needed in Docker).
	NoSandbox bool // default: false

	// BrowserBin overrides the Chromium binary path.
	BrowserBin string

	// NavigationTimeout is the max time for navigate + initial render.
	NavigationTimeout time.Duration // default: 30s
}

// BehaviorConfig controls the traversal engine's timing knobs.
type BehaviorConfig struct {
	// SettleDelay is the fixed wait after bringing a candidate into view,
	// letting asynchronous rendering catch up before the next query.
	SettleDelay time.Duration // default: 500ms

	// LoadWait is the single "wait for more content" delay used when a
	// re-query comes back empty before declaring exhaustion.
	LoadWait time.Duration // default: 3s

	// StopPollInterval is the cadence at which stop predicates are polled
	// while a mutation wait is suspended.
	StopPollInterval time.Duration // default: 1.5s

	// ScrollInterval is the pause between autoscroll increments.
	ScrollInterval time.Duration // default: 200ms

	// MaxRunTime is the default behavior run budget.
	MaxRunTime time.Duration // default: 60s

	// DebugOutlines injects outline styles on visited nodes, making runs
	// observable in a headful browser.
	DebugOutlines bool // default: false
}

// SessionConfig controls driver step-sessions.
type SessionConfig struct {
	// IdleTTL is how long an unstepped session is kept before expiry.
	IdleTTL time.Duration // default: 5m

	// MaxSessions caps concurrently live sessions.
	MaxSessions int // default: 20
}

// AuthConfig controls API key authentication.
type AuthConfig struct {
	// Enabled toggles API key authentication.
	Enabled bool // default: false

	// APIKeys is the list of valid API keys.
	APIKeys []string
}

// CacheConfig controls the completed-run response cache.
type CacheConfig struct {
	// MaxEntries caps the number of cached runs.
	MaxEntries int // default: 128
}

// RateLimitConfig controls per-key rate limiting.
type RateLimitConfig struct {
	// RequestsPerSecond is the sustained rate per API key.
	RequestsPerSecond float64 // default: 5

	// Burst is the maximum burst size per API key.
	Burst int // default: 10
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string // default: "info"
	Format string // "json" or "text"; default: "json"
}

// Load reads configuration from environment variables with sane defaults.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Host: envOr("AUTOBROWSER_HOST", "0.0.0.0"),
			Port: envIntOr("AUTOBROWSER_PORT", 8080),
			Mode: envOr("AUTOBROWSER_MODE", "release"),
		},
		Browser: BrowserConfig{
			Headless:          envBoolOr("AUTOBROWSER_HEADLESS", true),
			MaxPages:          envIntOr("AUTOBROWSER_MAX_PAGES", 10),
			DefaultProxy:      os.Getenv("AUTOBROWSER_PROXY"),
			NoSandbox:         envBoolOr("AUTOBROWSER_NO_SANDBOX", false),
			BrowserBin:        os.Getenv("AUTOBROWSER_BROWSER_BIN"),
			NavigationTimeout: envDurationOr("AUTOBROWSER_NAV_TIMEOUT", 30*time.Second),
		},
		Behavior: BehaviorConfig{
			SettleDelay:      envDurationOr("AUTOBROWSER_SETTLE_DELAY", 500*time.Millisecond),
			LoadWait:         envDurationOr("AUTOBROWSER_LOAD_WAIT", 3*time.Second),
			StopPollInterval: envDurationOr("AUTOBROWSER_STOP_POLL", 1500*time.Millisecond),
			ScrollInterval:   envDurationOr("AUTOBROWSER_SCROLL_INTERVAL", 200*time.Millisecond),
			MaxRunTime:       envDurationOr("AUTOBROWSER_MAX_RUN_TIME", 60*time.Second),
			DebugOutlines:    envBoolOr("AUTOBROWSER_DEBUG_OUTLINES", false),
		},
		Session: SessionConfig{
			IdleTTL:     envDurationOr("AUTOBROWSER_SESSION_TTL", 5*time.Minute),
			MaxSessions: envIntOr("AUTOBROWSER_MAX_SESSIONS", 20),
		},
		Cache: CacheConfig{
			MaxEntries: envIntOr("AUTOBROWSER_CACHE_MAX_ENTRIES", 128),
		},
		Auth: AuthConfig{
			Enabled: envBoolOr("AUTOBROWSER_AUTH_ENABLED", false),
			APIKeys: envSliceOr("AUTOBROWSER_API_KEYS", nil),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: envFloatOr("AUTOBROWSER_RATE_RPS", 5.0),
			Burst:             envIntOr("AUTOBROWSER_RATE_BURST", 10),
		},
		Log: LogConfig{
			Level:  envOr("AUTOBROWSER_LOG_LEVEL", "info"),
			Format: envOr("AUTOBROWSER_LOG_FORMAT", "json"),
		},
	}
}

// --- helper functions ---

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBoolOr(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envFloatOr(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func envSliceOr(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		return result
	}
	return fallback
}
