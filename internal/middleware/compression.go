package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

// CompressionConfig holds configuration for response compression
type CompressionConfig struct {
	MinSize          int      // Minimum response size to compress (bytes)
	CompressionLevel int      // Gzip compression level (1-9, 9 is best compression)
	ContentTypes     []string // Content types to compress
}

// DefaultCompressionConfig returns the default compression configuration
func DefaultCompressionConfig() CompressionConfig {
	return CompressionConfig{
		MinSize:          1024,
		CompressionLevel: gzip.DefaultCompression,
		ContentTypes: []string{
			"application/json",
			"text/markdown",
			"text/plain",
			"text/html",
		},
	}
}

// CompressionMiddleware gzips report and API responses once they grow past
// MinSize. Smaller bodies are sent as-is.
type CompressionMiddleware struct {
	config CompressionConfig
	stats  *CompressionStats
	pool   sync.Pool
}

// NewCompressionMiddleware creates a new compression middleware
func NewCompressionMiddleware(config CompressionConfig) *CompressionMiddleware {
	if config.MinSize < 0 {
		config.MinSize = 0
	}
	level := config.CompressionLevel
	if level == gzip.NoCompression || level < gzip.HuffmanOnly || level > gzip.BestCompression {
		level = gzip.DefaultCompression
	}
	return &CompressionMiddleware{
		config: config,
		stats:  &CompressionStats{},
		pool: sync.Pool{
			New: func() interface{} {
				gz, _ := gzip.NewWriterLevel(io.Discard, level)
				return gz
			},
		},
	}
}

// Handler returns the gin middleware
func (cm *CompressionMiddleware) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method == http.MethodHead ||
			!strings.Contains(c.GetHeader("Accept-Encoding"), "gzip") ||
			strings.EqualFold(c.GetHeader("Connection"), "upgrade") {
			c.Next()
			return
		}

		w := &gzipResponseWriter{ResponseWriter: c.Writer, cm: cm}
		c.Writer = w
		defer func() {
			w.finish()
			c.Writer = w.ResponseWriter
		}()

		c.Next()
	}
}

func (cm *CompressionMiddleware) shouldCompress(contentType string) bool {
	contentType = strings.ToLower(contentType)
	for _, ct := range cm.config.ContentTypes {
		if strings.HasPrefix(contentType, ct) {
			return true
		}
	}
	return false
}

// GetStats returns compression statistics
func (cm *CompressionMiddleware) GetStats() map[string]interface{} {
	return cm.stats.GetStats()
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// gzipResponseWriter buffers the head of the body until it knows whether
// the response qualifies for compression.
type gzipResponseWriter struct {
	gin.ResponseWriter
	cm *CompressionMiddleware

	buf     bytes.Buffer
	gz      *gzip.Writer
	out     *countingWriter
	decided bool
	raw     int64
}

func (w *gzipResponseWriter) Write(data []byte) (int, error) {
	w.raw += int64(len(data))
	if w.gz != nil {
		return w.gz.Write(data)
	}
	if w.decided {
		return w.ResponseWriter.Write(data)
	}

	w.buf.Write(data)
	if w.buf.Len() >= w.cm.config.MinSize {
		if err := w.decide(); err != nil {
			return 0, err
		}
	}
	return len(data), nil
}

func (w *gzipResponseWriter) WriteString(s string) (int, error) {
	return w.Write([]byte(s))
}

func (w *gzipResponseWriter) decide() error {
	w.decided = true
	status := w.ResponseWriter.Status()
	if status == http.StatusNoContent || status == http.StatusNotModified ||
		w.Header().Get("Content-Encoding") != "" ||
		!w.cm.shouldCompress(w.Header().Get("Content-Type")) {
		return w.flushRaw()
	}

	h := w.Header()
	h.Del("Content-Length")
	h.Set("Content-Encoding", "gzip")
	h.Add("Vary", "Accept-Encoding")

	w.out = &countingWriter{w: w.ResponseWriter}
	w.gz = w.cm.pool.Get().(*gzip.Writer)
	w.gz.Reset(w.out)
	_, err := w.gz.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

func (w *gzipResponseWriter) flushRaw() error {
	if w.buf.Len() == 0 {
		return nil
	}
	_, err := w.ResponseWriter.Write(w.buf.Bytes())
	w.buf.Reset()
	return err
}

// Flush commits to the current decision; an undecided body goes out raw.
func (w *gzipResponseWriter) Flush() {
	if !w.decided {
		w.decided = true
		_ = w.flushRaw()
	}
	if w.gz != nil {
		_ = w.gz.Flush()
	}
	w.ResponseWriter.Flush()
}

func (w *gzipResponseWriter) finish() {
	if w.gz != nil {
		_ = w.gz.Close()
		w.gz.Reset(io.Discard)
		w.cm.pool.Put(w.gz)
		w.gz = nil
		w.cm.stats.RecordRequest(w.raw, w.out.n, true)
		return
	}
	_ = w.flushRaw()
	w.cm.stats.RecordRequest(w.raw, w.raw, false)
}

// CompressionStats tracks compression statistics
type CompressionStats struct {
	TotalRequests      atomic.Int64
	CompressedRequests atomic.Int64
	TotalBytes         atomic.Int64
	CompressedBytes    atomic.Int64
}

// RecordRequest records a request's compression stats
func (cs *CompressionStats) RecordRequest(originalSize, compressedSize int64, compressed bool) {
	cs.TotalRequests.Add(1)
	if compressed {
		cs.CompressedRequests.Add(1)
		cs.TotalBytes.Add(originalSize)
		cs.CompressedBytes.Add(compressedSize)
	}
}

// GetStats returns current compression statistics
func (cs *CompressionStats) GetStats() map[string]interface{} {
	total := cs.TotalBytes.Load()
	compressed := cs.CompressedBytes.Load()

	ratio := float64(0)
	if total > 0 {
		ratio = float64(compressed) / float64(total)
	}
	return map[string]interface{}{
		"total_requests":      cs.TotalRequests.Load(),
		"compressed_requests": cs.CompressedRequests.Load(),
		"total_bytes":         total,
		"compressed_bytes":    compressed,
		"compression_ratio":   ratio,
	}
}
