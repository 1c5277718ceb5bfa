package api

import (
	"os"
	"strconv"
	"sync"

	"github.com/donorscope/donorscope/pkg/scoring"
)

// ReportCache is a thread-safe LRU cache for reports of completed batches.
// Completed reports never change, so entries are never invalidated.
type ReportCache struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*scoring.Report
	order   []string // oldest first
}

// NewReportCache creates a cache with the given maximum number of entries.
// If maxSize <= 0, it defaults to 20.
func NewReportCache(maxSize int) *ReportCache {
	if maxSize <= 0 {
		maxSize = 20
	}
	return &ReportCache{
		maxSize: maxSize,
		entries: make(map[string]*scoring.Report),
	}
}

// NewReportCacheFromEnv creates a cache with size from REPORT_CACHE_SIZE env var.
func NewReportCacheFromEnv() *ReportCache {
	size := 20
	if v := os.Getenv("REPORT_CACHE_SIZE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			size = parsed
		}
	}
	return NewReportCache(size)
}

// Get retrieves a report from the cache, or nil if not found.
func (c *ReportCache) Get(batchID string) *scoring.Report {
	c.mu.Lock()
	defer c.mu.Unlock()

	report, ok := c.entries[batchID]
	if !ok {
		return nil
	}
	c.moveToEnd(batchID)
	return report
}

// Put adds a report to the cache, evicting the oldest if full.
func (c *ReportCache) Put(batchID string, report *scoring.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[batchID]; ok {
		c.entries[batchID] = report
		c.moveToEnd(batchID)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[batchID] = report
	c.order = append(c.order, batchID)
}

func (c *ReportCache) moveToEnd(batchID string) {
	for i, k := range c.order {
		if k == batchID {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, batchID)
			return
		}
	}
}
