package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"golang.org/x/time/rate"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
)

// Config holds rate limiter configuration
type Config struct {
	// PerMinute is the request budget per client IP; zero disables limiting
	PerMinute int
	// IdleTTL drops in-memory buckets not used for this long
	IdleTTL time.Duration
}

// DefaultConfig returns default rate limiting configuration
func DefaultConfig() Config {
	return Config{PerMinute: 60, IdleTTL: time.Hour}
}

// Rate is a budget of Limit requests per Period
type Rate struct {
	Limit  int
	Period time.Duration
}

// Result represents the result of a rate limit check
type Result struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter checks budgets in Redis when available and in process
// otherwise. A Redis error falls back to the in-process bucket for that call.
type RateLimiter struct {
	redisLimiter *redis_rate.Limiter
	redisClient  *RedisClient
	config       Config
	logger       *monitoring.Logger
	metrics      *monitoring.Metrics

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a rate limiter. redisClient may be nil.
func NewRateLimiter(redisClient *RedisClient, config Config, logger *monitoring.Logger, metrics *monitoring.Metrics) *RateLimiter {
	if config.IdleTTL <= 0 {
		config.IdleTTL = time.Hour
	}
	if logger == nil {
		logger = monitoring.NewLogger("info")
	}
	rl := &RateLimiter{
		redisClient: redisClient,
		config:      config,
		logger:      logger,
		metrics:     metrics,
		buckets:     make(map[string]*bucket),
	}
	if redisClient.IsEnabled() {
		rl.redisLimiter = redis_rate.NewLimiter(redisClient.GetClient())
		logger.Info("Redis rate limiter initialized")
	} else {
		logger.Info("Using in-memory rate limiting")
	}
	return rl
}

// AllowIP checks the per-minute budget of a client IP
func (rl *RateLimiter) AllowIP(ctx context.Context, ip string) (*Result, error) {
	return rl.Allow(ctx, fmt.Sprintf("ratelimit:ip:%s", ip), Rate{Limit: rl.config.PerMinute, Period: time.Minute})
}

// Allow consumes one request from key's budget
func (rl *RateLimiter) Allow(ctx context.Context, key string, r Rate) (*Result, error) {
	if r.Limit <= 0 || r.Period <= 0 {
		return &Result{Allowed: true}, nil
	}
	if rl.redisLimiter != nil {
		res, err := rl.allowRedis(ctx, key, r)
		if err == nil {
			return res, nil
		}
		rl.logger.Warn("Redis rate limit check failed, using fallback", "key", key, "error", err)
	}
	return rl.allowFallback(key, r), nil
}

func (rl *RateLimiter) allowRedis(ctx context.Context, key string, r Rate) (*Result, error) {
	res, err := rl.redisLimiter.Allow(ctx, key, redis_rate.Limit{Rate: r.Limit, Burst: r.Limit, Period: r.Period})
	if err != nil {
		return nil, fmt.Errorf("redis rate limit check failed: %w", err)
	}
	return &Result{
		Allowed:    res.Allowed > 0,
		Limit:      res.Limit.Rate,
		Remaining:  res.Remaining,
		ResetAt:    time.Now().Add(res.ResetAfter),
		RetryAfter: res.RetryAfter,
	}, nil
}

func (rl *RateLimiter) allowFallback(key string, r Rate) *Result {
	now := time.Now()

	rl.mu.Lock()
	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(rate.Limit(float64(r.Limit)/r.Period.Seconds()), r.Limit)}
		rl.buckets[key] = b
	}
	b.lastSeen = now
	rl.mu.Unlock()

	res := &Result{Limit: r.Limit}
	reservation := b.limiter.ReserveN(now, 1)
	delay := reservation.DelayFrom(now)
	if !reservation.OK() || delay > 0 {
		reservation.CancelAt(now)
		res.RetryAfter = delay
		if res.RetryAfter <= 0 {
			res.RetryAfter = r.Period
		}
		res.ResetAt = now.Add(res.RetryAfter)
		return res
	}

	res.Allowed = true
	remaining := int(b.limiter.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	res.Remaining = remaining
	// time for the bucket to refill completely
	missing := float64(r.Limit - remaining)
	res.ResetAt = now.Add(time.Duration(missing / float64(r.Limit) * float64(r.Period)))
	return res
}

// Cleanup drops in-memory buckets idle for longer than IdleTTL
func (rl *RateLimiter) Cleanup() int {
	cutoff := time.Now().Add(-rl.config.IdleTTL)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	removed := 0
	for k, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, k)
			removed++
		}
	}
	return removed
}

// Run calls Cleanup every interval until ctx is done
func (rl *RateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := rl.Cleanup(); n > 0 {
				rl.logger.Debug("Dropped idle rate limit buckets", "count", n)
			}
		}
	}
}

// GetStats returns rate limiter statistics
func (rl *RateLimiter) GetStats() map[string]interface{} {
	rl.mu.Lock()
	n := len(rl.buckets)
	rl.mu.Unlock()

	return map[string]interface{}{
		"redis_enabled":     rl.redisClient.IsEnabled(),
		"fallback_limiters": n,
		"per_minute":        rl.config.PerMinute,
		"redis_pool":        rl.redisClient.GetPoolStats(),
	}
}

func (rl *RateLimiter) backend() string {
	if rl.redisLimiter != nil {
		return "redis"
	}
	return "memory"
}
