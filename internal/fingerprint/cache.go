package fingerprint

import (
	"sync"
	"time"

	"golang.org/x/mod/semver"
)

type cacheEntry struct {
	mu       sync.RWMutex
	template *Template
}

// Cache is a concurrent map of origin (host:port) to its calibrated
// Template, guarded by fine-grained per-origin locks so concurrent probes
// of different origins never contend on a single mutex.
type Cache struct {
	entries sync.Map // host:port -> *cacheEntry
}

// NewCache returns an empty Cache.
func NewCache() *Cache { return &Cache{} }

func (c *Cache) entryFor(hostPort string) *cacheEntry {
	v, _ := c.entries.LoadOrStore(hostPort, &cacheEntry{})
	return v.(*cacheEntry)
}

// Load returns the cached Template for hostPort if present, unexpired and
// stamped with a schema version this build understands.
func (c *Cache) Load(hostPort string) (*Template, bool) {
	e := c.entryFor(hostPort)
	e.mu.RLock()
	defer e.mu.RUnlock()

	t := e.template
	if t == nil {
		return nil, false
	}
	if time.Since(t.CapturedAt) > TTL {
		return nil, false
	}
	if !semver.IsValid("v" + trimV(t.TemplateSchema)) {
		return nil, false
	}
	if semver.Compare("v"+trimV(t.TemplateSchema), "v"+trimV(TemplateSchema)) != 0 {
		return nil, false
	}
	return t, true
}

// Store installs t as the current Template for hostPort.
func (c *Cache) Store(hostPort string, t *Template) {
	e := c.entryFor(hostPort)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.template = t
}

// Invalidate clears any cached Template for hostPort.
func (c *Cache) Invalidate(hostPort string) {
	e := c.entryFor(hostPort)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.template = nil
}

func trimV(s string) string {
	if len(s) > 0 && s[0] == 'v' {
		return s[1:]
	}
	return s
}
