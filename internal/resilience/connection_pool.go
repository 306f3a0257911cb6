package resilience

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"
)

// ConnectionPool shares one transport between callers, caps in-flight
// requests and routes every request through a circuit breaker
type ConnectionPool struct {
	maxIdle     int
	maxActive   int
	idleTimeout time.Duration

	circuitBreaker *CircuitBreaker
	client         *http.Client
	transport      *http.Transport
	slots          chan struct{}

	active   atomic.Int64
	requests atomic.Int64
	failures atomic.Int64
}

// NewConnectionPool creates a new connection pool with circuit breaker
func NewConnectionPool(maxIdle, maxActive int, idleTimeout time.Duration, cb *CircuitBreaker) *ConnectionPool {
	if maxActive <= 0 {
		maxActive = 1
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          maxIdle,
		MaxConnsPerHost:       maxActive,
		MaxIdleConnsPerHost:   maxIdle,
		IdleConnTimeout:       idleTimeout,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}
	if cb == nil {
		cb = NewCircuitBreaker(CircuitBreakerConfig{})
	}

	return &ConnectionPool{
		maxIdle:        maxIdle,
		maxActive:      maxActive,
		idleTimeout:    idleTimeout,
		circuitBreaker: cb,
		transport:      transport,
		client:         &http.Client{Transport: transport, Timeout: 30 * time.Second},
		slots:          make(chan struct{}, maxActive),
	}
}

// DoRequest executes a GET-style request with circuit breaker protection.
// Non-2xx responses are drained, closed and returned as *HTTPError so the
// breaker and retry logic see them as failures.
func (cp *ConnectionPool) DoRequest(ctx context.Context, method, url string, headers map[string]string) (*http.Response, error) {
	select {
	case cp.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for a connection slot: %w", ctx.Err())
	}
	cp.active.Add(1)
	defer func() {
		cp.active.Add(-1)
		<-cp.slots
	}()
	cp.requests.Add(1)

	var resp *http.Response
	err := cp.circuitBreaker.Call(func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, nil)
		if err != nil {
			return err
		}
		for key, value := range headers {
			req.Header.Set(key, value)
		}

		start := time.Now()
		r, err := cp.client.Do(req)
		duration := time.Since(start)
		if err != nil {
			slog.Warn("Request failed", "url", url, "error", err, "duration_ms", duration.Milliseconds())
			return err
		}

		slog.Debug("Request completed", "url", url, "status", r.StatusCode, "duration_ms", duration.Milliseconds())
		if r.StatusCode < 200 || r.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 1024))
			r.Body.Close()
			return &HTTPError{StatusCode: r.StatusCode, Status: r.Status, Message: fmt.Sprintf("%s: %s", r.Status, body)}
		}
		resp = r
		return nil
	})
	if err != nil {
		cp.failures.Add(1)
		return nil, err
	}
	return resp, nil
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"active_requests":       cp.active.Load(),
		"total_requests":        cp.requests.Load(),
		"failed_requests":       cp.failures.Load(),
		"max_idle":              cp.maxIdle,
		"max_active":            cp.maxActive,
		"idle_timeout_ms":       cp.idleTimeout.Milliseconds(),
		"circuit_breaker_state": cp.circuitBreaker.State().String(),
	}
}

// Close releases idle connections
func (cp *ConnectionPool) Close() error {
	cp.transport.CloseIdleConnections()
	return nil
}
