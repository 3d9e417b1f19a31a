// Package outlinks maintains the deduplicating registry of outbound links
// discovered while a behavior traverses a page.
//
// The collector is shared state with an externally managed lifecycle: the
// driver reads it between steps and clears it between behavior runs. No
// single traversal owns it.
package outlinks

import (
	"net/url"
	"sort"
	"strings"
	"sync"
)

// ignorePrefixes lists URL prefixes that are excluded before any parsing.
// The prefix check runs first because it is cheap: links like javascript:
// or mailto: never pay the URL-parse cost.
var ignorePrefixes = []string{
	"about:",
	"data:",
	"mailto:",
	"javascript:",
	"tel:",
	"ftp:",
	"blob:",
	"file:",
}

// allowedSchemes is the scheme allow-list applied after parsing.
var allowedSchemes = map[string]bool{
	"http":  true,
	"https": true,
}

// Collector is an append-only, deduplicating set of outbound links keyed by
// normalized absolute URL. It is safe for concurrent use.
type Collector struct {
	mu   sync.RWMutex
	seen map[string]struct{}
}

// NewCollector creates an empty Collector.
func NewCollector() *Collector {
	return &Collector{seen: make(map[string]struct{})}
}

// Add inserts a single raw href into the set.
//
// Filtering order is deliberate: the prefix ignore-list is checked before the
// URL is parsed, and a parse failure counts as "ignore": a malformed link is
// recoverable noise, never an error. Returns true when a new entry was added.
func (c *Collector) Add(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}

	lower := strings.ToLower(raw)
	for _, prefix := range ignorePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if !allowedSchemes[u.Scheme] || u.Host == "" {
		return false
	}
	normalized := u.String()

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[normalized]; ok {
		return false
	}
	c.seen[normalized] = struct{}{}
	return true
}

// AddAll inserts every href in hrefs and returns the number of new entries.
func (c *Collector) AddAll(hrefs []string) int {
	added := 0
	for _, h := range hrefs {
		if c.Add(h) {
			added++
		}
	}
	return added
}

// Links returns a sorted copy of the collected set. Insertion order is not
// meaningful; sorting keeps the driver-facing view stable.
func (c *Collector) Links() []string {
	c.mu.RLock()
	out := make([]string, 0, len(c.seen))
	for link := range c.seen {
		out = append(out, link)
	}
	c.mu.RUnlock()

	sort.Strings(out)
	return out
}

// Len reports the current size of the set.
func (c *Collector) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.seen)
}

// Clear empties the set. Called by the driver between behavior runs.
func (c *Collector) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = make(map[string]struct{})
}
