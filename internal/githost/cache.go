package githost

import "sync"

// statusCache is a bounded cache for build statuses keyed by (sha, key).
// Only SUCCESSFUL statuses are cached: a successful build for a given commit
// never changes, while anything else may still flip. The cache is owned by a
// client instance, never shared process-wide, so tests get independent caches.
type statusCache struct {
	mu      sync.Mutex
	limit   int
	entries map[string]BuildStatus
	order   []string
}

func newStatusCache(limit int) *statusCache {
	return &statusCache{
		limit:   limit,
		entries: make(map[string]BuildStatus),
	}
}

func (c *statusCache) get(sha, key string) (BuildStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.entries[sha+"/"+key]
	return status, ok
}

func (c *statusCache) put(sha, key string, status BuildStatus) {
	if status != BuildSuccessful {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	k := sha + "/" + key
	if _, ok := c.entries[k]; ok {
		return
	}
	if len(c.order) >= c.limit {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}
	c.entries[k] = status
	c.order = append(c.order, k)
}
