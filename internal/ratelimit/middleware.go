package ratelimit

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
)

// IPRateLimitMiddleware enforces the per-IP budget on every request
func (rl *RateLimiter) IPRateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := rl.AllowIP(c.Request.Context(), c.ClientIP())
		rl.handle(c, result, err, "X-RateLimit")
	}
}

// EndpointRateLimitMiddleware applies a separate per-IP budget to one route
// group, for expensive operations like scans and batch runs
func (rl *RateLimiter) EndpointRateLimitMiddleware(endpoint string, perMinute int) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := fmt.Sprintf("ratelimit:endpoint:%s:%s", endpoint, c.ClientIP())
		result, err := rl.Allow(c.Request.Context(), key, Rate{Limit: perMinute, Period: time.Minute})
		rl.handle(c, result, err, "X-RateLimit-Endpoint")
	}
}

func (rl *RateLimiter) handle(c *gin.Context, result *Result, err error, headerPrefix string) {
	if err != nil {
		rl.logger.Error("Rate limit check failed", "ip", c.ClientIP(), "error", err)
		c.Next()
		return
	}
	if result.Limit == 0 {
		c.Next()
		return
	}

	c.Header(headerPrefix+"-Limit", strconv.Itoa(result.Limit))
	c.Header(headerPrefix+"-Remaining", strconv.Itoa(result.Remaining))
	c.Header(headerPrefix+"-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

	if result.Allowed {
		c.Next()
		return
	}

	rl.metrics.RecordRateLimitBlock(rl.backend())
	retry := int(math.Ceil(result.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	c.Header("Retry-After", strconv.Itoa(retry))

	appErr := apperrors.NewRateLimitError(fmt.Sprintf("%ds", retry))
	appErr.RequestID = c.GetHeader("X-Request-ID")
	c.AbortWithStatusJSON(appErr.HTTPStatus, apperrors.Response(appErr))
}
