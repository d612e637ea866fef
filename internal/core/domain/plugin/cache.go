package plugin

import (
	"sync"
	"time"
)

// CacheEntry is the per-plugin runtime bookkeeping created when a plugin is
// loaded. The dispatch layer mutates the counters on every request; the
// loader only creates entries (and recreates them on reload).
type CacheEntry struct {
	mu           sync.Mutex
	loadedAt     time.Time
	requestCount int64
	errorCount   int64
	lastUsed     time.Time
}

// NewCacheEntry creates a cache entry stamped with the load time.
func NewCacheEntry() *CacheEntry {
	return &CacheEntry{loadedAt: time.Now()}
}

// RecordRequest increments the request counter and refreshes last-used.
func (c *CacheEntry) RecordRequest() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requestCount++
	c.lastUsed = time.Now()
}

// RecordError increments the error counter.
func (c *CacheEntry) RecordError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount++
}

// CacheStats is a point-in-time snapshot of a cache entry.
type CacheStats struct {
	LoadedAt     time.Time `json:"loaded_at"`
	RequestCount int64     `json:"request_count"`
	ErrorCount   int64     `json:"error_count"`
	LastUsed     time.Time `json:"last_used"`
}

// Stats returns a consistent snapshot of the counters.
func (c *CacheEntry) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		LoadedAt:     c.loadedAt,
		RequestCount: c.requestCount,
		ErrorCount:   c.errorCount,
		LastUsed:     c.lastUsed,
	}
}

// SetErrorCount sets the error counter directly. Dispatch code should use
// RecordError; this exists for restoring counters and for tests.
func (c *CacheEntry) SetErrorCount(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errorCount = n
}
