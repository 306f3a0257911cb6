package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
)

func TestCircuitBreakerTransitions(t *testing.T) {
	var transitions []CircuitBreakerState
	cb := NewCircuitBreaker(CircuitBreakerConfig{
		Name:             "test",
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		SuccessThreshold: 1,
		OnStateChange: func(_ string, to CircuitBreakerState) {
			transitions = append(transitions, to)
		},
	})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cb.now = func() time.Time { return now }

	boom := errors.New("boom")
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, boom, cb.Call(func() error { return boom }))
	assert.Equal(t, StateOpen, cb.State())

	called := false
	err := cb.Call(func() error { called = true; return nil })
	var cbErr *CircuitBreakerError
	require.ErrorAs(t, err, &cbErr)
	assert.False(t, called)

	now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Call(func() error { return nil }))
	assert.Equal(t, StateClosed, cb.State())

	assert.Equal(t, []CircuitBreakerState{StateOpen, StateHalfOpen, StateClosed}, transitions)
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Millisecond})
	_ = cb.Call(func() error { return errors.New("x") })
	time.Sleep(5 * time.Millisecond)
	_ = cb.Call(func() error { return errors.New("still down") })
	assert.Equal(t, StateOpen, cb.State())

	cb.Reset()
	assert.Equal(t, StateClosed, cb.State())
	assert.Zero(t, cb.Failures())
}

func TestRetryWithConfig(t *testing.T) {
	fast := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}

	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
	}{
		{"succeeds first time", []error{nil}, 1, false},
		{"recovers from network error", []error{apperrors.NewNetworkError("x", nil), nil}, 2, false},
		{"gives up after max attempts", []error{context.DeadlineExceeded, context.DeadlineExceeded, context.DeadlineExceeded}, 3, true},
		{"does not retry validation", []error{apperrors.NewValidationError("bad")}, 1, true},
		{"retries 503", []error{NewHTTPError(503, "503 Service Unavailable"), nil}, 2, false},
		{"does not retry 404", []error{NewHTTPError(404, "404 Not Found")}, 1, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := RetryWithConfig(context.Background(), fast, func() error {
				e := tt.errs[calls]
				calls++
				return e
			})
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantErr, err != nil)
		})
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Retry(ctx, func() error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConnectionPoolDoRequest(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path == "/missing" {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		assert.Equal(t, "yes", r.Header.Get("X-Test"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pool := NewConnectionPool(2, 2, time.Second, NewCircuitBreaker(CircuitBreakerConfig{FailureThreshold: 1, RecoveryTimeout: time.Hour}))
	defer pool.Close()

	resp, err := pool.DoRequest(context.Background(), http.MethodGet, srv.URL+"/ok", map[string]string{"X-Test": "yes"})
	require.NoError(t, err)
	resp.Body.Close()

	_, err = pool.DoRequest(context.Background(), http.MethodGet, srv.URL+"/missing", nil)
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)

	// breaker is now open
	_, err = pool.DoRequest(context.Background(), http.MethodGet, srv.URL+"/ok", nil)
	var cbErr *CircuitBreakerError
	assert.ErrorAs(t, err, &cbErr)
	assert.Equal(t, int32(2), hits.Load())

	stats := pool.GetStats()
	assert.Equal(t, int64(3), stats["total_requests"])
	assert.Equal(t, "open", stats["circuit_breaker_state"])
}
