package cache

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
)

type cachedResponse struct {
	contentType string
	body        []byte
}

// ResponseCache keeps rendered GET responses in a bounded, expiring LRU.
type ResponseCache struct {
	lru *expirable.LRU[string, cachedResponse]
}

// NewResponseCache creates a response cache holding at most size entries
func NewResponseCache(size int, ttl time.Duration) *ResponseCache {
	if size <= 0 {
		size = 256
	}
	return &ResponseCache{lru: expirable.NewLRU[string, cachedResponse](size, nil, ttl)}
}

// Purge drops every cached response, e.g. after a write changes the data
func (r *ResponseCache) Purge() {
	r.lru.Purge()
}

// Len returns the number of cached responses
func (r *ResponseCache) Len() int {
	return r.lru.Len()
}

// Middleware serves cached GET responses keyed by the full request URI and
// stores successful ones.
func (r *ResponseCache) Middleware(metrics *monitoring.Metrics, logger *monitoring.Logger) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		if ctx.Request.Method != http.MethodGet {
			ctx.Next()
			return
		}

		key := ctx.Request.URL.RequestURI()
		if hit, ok := r.lru.Get(key); ok {
			logger.CacheLogger("response_get", key, true)
			metrics.RecordCache("response", "hit")
			ctx.Header("X-Cache", "HIT")
			ctx.Data(http.StatusOK, hit.contentType, hit.body)
			ctx.Abort()
			return
		}

		logger.CacheLogger("response_get", key, false)
		metrics.RecordCache("response", "miss")

		wrapper := &responseWriter{ResponseWriter: ctx.Writer, body: &bytes.Buffer{}}
		ctx.Writer = wrapper
		ctx.Header("X-Cache", "MISS")
		ctx.Next()

		if len(ctx.Errors) == 0 && wrapper.Written() && wrapper.Status() == http.StatusOK {
			r.lru.Add(key, cachedResponse{
				contentType: wrapper.Header().Get("Content-Type"),
				body:        append([]byte(nil), wrapper.body.Bytes()...),
			})
		}
	}
}

// responseWriter wraps gin.ResponseWriter to capture response body
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(data []byte) (int, error) {
	w.body.Write(data)
	return w.ResponseWriter.Write(data)
}

func (w *responseWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}
