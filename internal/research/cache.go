package research

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/spaolacci/murmur3"

	"github.com/donorscope/donorscope/pkg/donor"
)

// CachedSummarizer is a thread-safe LRU cache in front of a Summarizer. Entries
// are keyed by donor id and a fingerprint of the record, so an updated record
// misses. Errors are not cached.
type CachedSummarizer struct {
	next Summarizer

	mu      sync.Mutex
	maxSize int
	entries map[string]*Summary
	order   []string // oldest first
}

// NewCachedSummarizer wraps next. If maxSize <= 0, it defaults to 256.
func NewCachedSummarizer(next Summarizer, maxSize int) *CachedSummarizer {
	if maxSize <= 0 {
		maxSize = 256
	}
	return &CachedSummarizer{
		next:    next,
		maxSize: maxSize,
		entries: make(map[string]*Summary),
	}
}

func cacheKey(rec donor.Record) (string, error) {
	raw, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("fingerprint donor %s: %w", rec.ID, err)
	}
	return fmt.Sprintf("%s:%016x", rec.ID, murmur3.Sum64(raw)), nil
}

func (c *CachedSummarizer) GenerateSummary(ctx context.Context, rec donor.Record) (*Summary, error) {
	key, err := cacheKey(rec)
	if err != nil {
		return nil, err
	}
	if s := c.get(key); s != nil {
		return s.clone(), nil
	}

	s, err := c.next.GenerateSummary(ctx, rec)
	if err != nil {
		return nil, err
	}
	c.put(key, s.clone())
	return s, nil
}

// Len returns the number of cached summaries.
func (c *CachedSummarizer) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *CachedSummarizer) get(key string) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.entries[key]
	if !ok {
		return nil
	}
	c.moveToEnd(key)
	return s
}

func (c *CachedSummarizer) put(key string, s *Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; ok {
		c.entries[key] = s
		c.moveToEnd(key)
		return
	}

	for len(c.entries) >= c.maxSize && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = s
	c.order = append(c.order, key)
}

func (c *CachedSummarizer) moveToEnd(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			c.order = append(c.order, key)
			return
		}
	}
}
