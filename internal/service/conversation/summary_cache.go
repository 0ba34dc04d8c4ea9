package conversation

import (
	"context"
	"sync"
	"time"

	"dispatch-copilot-service/internal/observability/metrics"
)

// DefaultSummaryTTL is the freshness window used when none is configured.
const DefaultSummaryTTL = 2 * time.Second

// SummaryCache is a read-through cache with a fixed freshness window.
// Concurrent misses each fetch; there is no coalescing.
type SummaryCache struct {
	ttl     time.Duration
	fetch   func(ctx context.Context) (string, error)
	metrics *metrics.Metrics
	now     func() time.Time

	mu        sync.Mutex
	value     string
	fetchedAt time.Time
	valid     bool
}

// NewSummaryCache creates a cache that refetches through fetch once a value
// is older than ttl.
func NewSummaryCache(ttl time.Duration, fetch func(ctx context.Context) (string, error), m *metrics.Metrics) *SummaryCache {
	if ttl <= 0 {
		ttl = DefaultSummaryTTL
	}
	return &SummaryCache{ttl: ttl, fetch: fetch, metrics: m, now: time.Now}
}

// Get serves a fresh cached value or refetches synchronously. A failed
// refetch returns the previous value alongside the error.
func (c *SummaryCache) Get(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.valid && c.now().Sub(c.fetchedAt) < c.ttl {
		v := c.value
		c.mu.Unlock()
		c.metrics.RecordSummaryRead(true)
		return v, nil
	}
	stale := c.value
	c.mu.Unlock()

	c.metrics.RecordSummaryRead(false)
	v, err := c.fetch(ctx)
	if err != nil {
		return stale, err
	}
	c.Set(v)
	return v, nil
}

// Set stores v as fresh.
func (c *SummaryCache) Set(v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.fetchedAt = c.now()
	c.valid = true
}
