package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		category ErrorCategory
		status   int
		prefix   string
	}{
		{"validation", NewValidationError("bad path"), CategoryValidation, http.StatusBadRequest, "[VALIDATION_ERROR]"},
		{"not found", NewNotFoundError("assessment", "abc"), CategoryNotFound, http.StatusNotFound, "[NOT_FOUND]"},
		{"network", NewNetworkError("github down", nil), CategoryNetwork, http.StatusBadGateway, "[NETWORK_ERROR]"},
		{"timeout", NewTimeoutError("slow", nil), CategoryTimeout, http.StatusGatewayTimeout, "[TIMEOUT_ERROR]"},
		{"rate limit", NewRateLimitError("30s"), CategoryRateLimit, http.StatusTooManyRequests, "[RATE_LIMIT_EXCEEDED]"},
		{"filesystem", NewFilesystemError("/nope", fs.ErrNotExist), CategoryFilesystem, http.StatusUnprocessableEntity, "[FILESYSTEM_ERROR]"},
		{"internal", NewInternalError("boom", nil), CategoryInternal, http.StatusInternalServerError, "[INTERNAL_ERROR]"},
		{"configuration", NewConfigurationError("bad weights", nil, nil), CategoryConfiguration, http.StatusInternalServerError, "[CONFIGURATION_ERROR]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, tt.err.Category)
			assert.Equal(t, tt.status, tt.err.HTTPStatus)
			assert.Contains(t, tt.err.Error(), tt.prefix)
			assert.False(t, tt.err.Timestamp.IsZero())
		})
	}
}

func TestFieldsAndUnwrap(t *testing.T) {
	err := NewValidationErrorWithMap(map[string]string{
		"weights.readme": "must be between 0 and 1",
		"thresholds":     "must be descending",
	})
	fields := err.Fields()
	assert.Len(t, fields, 2)
	assert.Equal(t, "must be descending", fields["thresholds"])

	cause := fs.ErrNotExist
	fsErr := NewFilesystemError("/tmp/x", cause)
	assert.ErrorIs(t, fsErr, fs.ErrNotExist)
	assert.Equal(t, "/tmp/x", fsErr.Fields()["path"])
}

func TestToAppError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		category ErrorCategory
	}{
		{"passthrough", NewNotFoundError("assessment", "1"), CategoryNotFound},
		{"wrapped app error", fmt.Errorf("outer: %w", NewValidationError("x")), CategoryValidation},
		{"missing file", fmt.Errorf("open: %w", fs.ErrNotExist), CategoryFilesystem},
		{"deadline", context.DeadlineExceeded, CategoryTimeout},
		{"cancelled", context.Canceled, CategoryTimeout},
		{"refused", errors.New("dial tcp: connection refused"), CategoryNetwork},
		{"plain", errors.New("something odd"), CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.category, ToAppError(tt.err).Category)
		})
	}

	assert.Nil(t, ToAppError(nil))
}

func TestRetryHelpers(t *testing.T) {
	assert.True(t, IsRetryableError(NewNetworkError("x", nil)))
	assert.True(t, IsRetryableError(context.DeadlineExceeded))
	assert.False(t, IsRetryableError(NewValidationError("x")))
	assert.False(t, IsRetryableError(nil))

	assert.Equal(t, 4*time.Second, GetRetryDelay(NewRateLimitError("1s"), 2))
	assert.Equal(t, 800*time.Millisecond, GetRetryDelay(NewNetworkError("x", nil), 2))
	assert.Equal(t, 200*time.Millisecond, GetRetryDelay(NewValidationError("x"), 2))
}

func TestErrorHandlerRendersLastError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/missing", func(c *gin.Context) {
		_ = c.Error(NewNotFoundError("assessment", "42"))
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/missing", nil)
	req.Header.Set("X-Request-ID", "req-1")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["category"])
	assert.Equal(t, "req-1", body["request_id"])
	assert.Equal(t, map[string]interface{}{"id": "42"}, body["details"])
}

func TestRecoveryHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RecoveryHandler())
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

type closeRecorder struct {
	closed bool
	err    error
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return c.err
}

func TestSafeClose(t *testing.T) {
	c := &closeRecorder{err: errors.New("already closed")}
	SafeClose(c, "test")
	assert.True(t, c.closed)
	SafeClose(nil, "nil")
}
