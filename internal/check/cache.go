package check

import (
	"sync"

	"imagehealth/pkg/types"
)

// Memo memoizes check results per absolute URL for the lifetime of one run.
// Implementations must guarantee the compute function runs at most once per
// key, even under concurrent callers.
type Memo interface {
	Do(key string, compute func() types.CheckResult) types.CheckResult
	Len() int
}

// RunCache is the in-memory Memo used for a single run. No TTL, no
// invalidation: results are immutable until the run ends.
type RunCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once   sync.Once
	result types.CheckResult
}

// NewRunCache creates an empty run-scoped cache.
func NewRunCache() *RunCache {
	return &RunCache{entries: make(map[string]*cacheEntry)}
}

// Do returns the cached result for key, computing it first if absent. The
// check-then-insert step is atomic per key: concurrent callers for the same
// key all receive the single computed result.
func (c *RunCache) Do(key string, compute func() types.CheckResult) types.CheckResult {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if !ok {
		entry = &cacheEntry{}
		c.entries[key] = entry
	}
	c.mu.Unlock()

	entry.once.Do(func() {
		entry.result = compute()
	})
	return entry.result
}

// Len reports how many unique URLs have been checked.
func (c *RunCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
