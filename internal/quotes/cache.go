package quotes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"MarketHarvest/internal/model"
)

// Purpose selects the cache TTL for a lookup.
type Purpose string

const (
	PurposeIntraday Purpose = "intraday"
	PurposeDaily    Purpose = "daily"
	PurposeHistory  Purpose = "history"
)

// TTL bounds accepted for any purpose.
const (
	MinTTL = 5 * time.Minute
	MaxTTL = 15 * time.Minute
)

// DefaultTTLs returns the per-purpose TTLs.
func DefaultTTLs() map[Purpose]time.Duration {
	return map[Purpose]time.Duration{
		PurposeIntraday: 5 * time.Minute,
		PurposeDaily:    10 * time.Minute,
		PurposeHistory:  15 * time.Minute,
	}
}

// CacheKey is the key of a cached series. The date range is not part of it.
func CacheKey(code string, market model.Market, purpose Purpose) string {
	return fmt.Sprintf("quotes:%s:%s:%s", market, strings.ToUpper(code), purpose)
}

// Cache stores price series by key.
type Cache interface {
	Get(ctx context.Context, key string) (*model.PriceSeries, bool)
	Set(ctx context.Context, key string, s *model.PriceSeries, ttl time.Duration) error
}

type entry struct {
	expiresAt time.Time
	series    *model.PriceSeries
}

// MemoryCache is an in-process TTL cache capped at MaxItems.
type MemoryCache struct {
	MaxItems int

	mu    sync.RWMutex
	items map[string]entry
	now   func() time.Time
}

// NewMemoryCache creates a MemoryCache. maxItems <= 0 disables the cap.
func NewMemoryCache(maxItems int) *MemoryCache {
	return &MemoryCache{MaxItems: maxItems, items: make(map[string]entry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, key string) (*model.PriceSeries, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || !c.now().Before(e.expiresAt) {
		return nil, false
	}
	return e.series.Clone(), true
}

func (c *MemoryCache) Set(_ context.Context, key string, s *model.PriceSeries, ttl time.Duration) error {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[key] = entry{expiresAt: now.Add(ttl), series: s.Clone()}

	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return nil
	}
	// expired first, then arbitrary
	for k, v := range c.items {
		if len(c.items) <= c.MaxItems {
			break
		}
		if !now.Before(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			break
		}
		if k != key {
			delete(c.items, k)
		}
	}
	return nil
}

// Len returns the number of stored entries, expired ones included.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
