package ratelimit

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
)

func newMemoryLimiter(perMinute int) *RateLimiter {
	return NewRateLimiter(nil, Config{PerMinute: perMinute}, monitoring.NewLoggerWithWriter(io.Discard, "error"), monitoring.NewMetrics())
}

func TestRateLimiterFallbackMode(t *testing.T) {
	limiter := newMemoryLimiter(60)
	ctx := context.Background()
	r := Rate{Limit: 5, Period: time.Minute}

	for i := 0; i < 5; i++ {
		result, err := limiter.Allow(ctx, "test:key", r)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
		assert.Equal(t, 5, result.Limit)
		assert.Equal(t, 4-i, result.Remaining)
	}

	result, err := limiter.Allow(ctx, "test:key", r)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, result.RetryAfter, 13*time.Second)
}

func TestRateLimiterMultipleKeys(t *testing.T) {
	limiter := newMemoryLimiter(1)
	ctx := context.Background()

	a, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	b, err := limiter.AllowIP(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)

	again, err := limiter.AllowIP(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, again.Allowed)
}

func TestRateLimiterDisabled(t *testing.T) {
	limiter := newMemoryLimiter(0)
	for i := 0; i < 100; i++ {
		res, err := limiter.AllowIP(context.Background(), "1.1.1.1")
		require.NoError(t, err)
		require.True(t, res.Allowed)
	}
	assert.Equal(t, 0, limiter.GetStats()["fallback_limiters"])
}

func TestRateLimiterCleanup(t *testing.T) {
	limiter := NewRateLimiter(nil, Config{PerMinute: 10, IdleTTL: time.Millisecond}, monitoring.NewLoggerWithWriter(io.Discard, "error"), nil)
	for i := 0; i < 3; i++ {
		_, _ = limiter.AllowIP(context.Background(), fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Equal(t, 3, limiter.GetStats()["fallback_limiters"])

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 3, limiter.Cleanup())
	assert.Equal(t, 0, limiter.GetStats()["fallback_limiters"])
}

func TestRateLimiterConcurrency(t *testing.T) {
	limiter := newMemoryLimiter(60)
	r := Rate{Limit: 20, Period: time.Hour}

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := limiter.Allow(context.Background(), "shared", r)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(20), allowed.Load())
}

func TestIPRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := newMemoryLimiter(2)

	router := gin.New()
	router.Use(limiter.IPRateLimitMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	codes := make([]int, 3)
	var last *httptest.ResponseRecorder
	for i := range codes {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.RemoteAddr = "192.0.2.1:1234"
		router.ServeHTTP(w, req)
		codes[i] = w.Code
		last = w
	}

	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.Contains(t, last.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestEndpointRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	limiter := newMemoryLimiter(100)

	router := gin.New()
	router.POST("/scan", limiter.EndpointRateLimitMiddleware("scan", 1), func(c *gin.Context) { c.Status(http.StatusAccepted) })

	first := httptest.NewRecorder()
	router.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/scan", nil))
	second := httptest.NewRecorder()
	router.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/scan", nil))

	assert.Equal(t, http.StatusAccepted, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Endpoint-Limit"))
}
