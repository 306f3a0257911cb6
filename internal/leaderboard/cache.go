package leaderboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Cache holds rendered leaderboards keyed by period and limit
type Cache struct {
	lru *expirable.LRU[string, *Response]
}

// NewCache creates a cache holding up to size leaderboards for ttl
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		size = 64
	}
	return &Cache{lru: expirable.NewLRU[string, *Response](size, nil, ttl)}
}

func cacheKey(period string, limit int) string {
	return fmt.Sprintf("leaderboard:%s:%d", period, limit)
}

// Get returns a cached leaderboard
func (c *Cache) Get(period string, limit int) (*Response, bool) {
	return c.lru.Get(cacheKey(period, limit))
}

// Set stores a leaderboard
func (c *Cache) Set(period string, limit int, resp *Response) {
	c.lru.Add(cacheKey(period, limit), resp)
}

// Purge drops every cached leaderboard
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len is the number of cached leaderboards
func (c *Cache) Len() int {
	return c.lru.Len()
}

// WarmCache pre-populates the common leaderboard pages
func (s *Service) WarmCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.cache.Purge()
	for _, period := range []string{PeriodDaily, PeriodWeekly, PeriodMonthly, PeriodAllTime} {
		if _, err := s.GetLeaderboard(ctx, period, DefaultLimit); err != nil {
			s.logger.Error("Failed to warm leaderboard cache", "error", err, "period", period)
		}
	}
	slog.Debug("Leaderboard cache warmed", "entries", s.cache.Len())
}

// AutoRefresh re-warms the cache every interval until ctx is done
func (s *Service) AutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.WarmCache(ctx)
		}
	}
}
