package security

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// Context keys set by the request validators
const (
	RepoPathKey  = "repo_path"
	RepoPathsKey = "repo_paths"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxPathLength  int           `json:"max_path_length"`
	MaxBatchSize   int           `json:"max_batch_size"`
	AllowedRoots   []string      `json:"allowed_roots"`
	RequestTimeout time.Duration `json:"request_timeout"`
	EnableHSTS     bool          `json:"enable_hsts"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxPathLength:  4096,
		MaxBatchSize:   500,
		RequestTimeout: 60 * time.Second,
	}
}

// SecurityMiddleware validates repository paths and hardens responses
type SecurityMiddleware struct {
	config SecurityConfig
	roots  []string
}

// NewSecurityMiddleware creates a new security middleware instance. Allowed
// roots are resolved once, here.
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	if config.MaxPathLength <= 0 {
		config.MaxPathLength = 4096
	}
	if config.MaxBatchSize <= 0 {
		config.MaxBatchSize = 500
	}
	sm := &SecurityMiddleware{config: config}
	for _, root := range config.AllowedRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		if resolved, err := resolve(root); err == nil {
			sm.roots = append(sm.roots, resolved)
		}
	}
	return sm
}

func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

// ValidateRepositoryPath returns the resolved absolute path of an existing
// directory under one of the allowed roots. Symlinks are resolved before
// the root check, so a link cannot point outside the roots.
func (sm *SecurityMiddleware) ValidateRepositoryPath(input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", apperrors.NewValidationError("path is required")
	}
	if len(input) > sm.config.MaxPathLength {
		return "", apperrors.NewValidationError(fmt.Sprintf("path exceeds maximum length of %d characters", sm.config.MaxPathLength))
	}
	if strings.ContainsRune(input, 0) || !utf8.ValidString(input) {
		return "", apperrors.NewValidationError("path contains invalid characters")
	}

	abs, err := filepath.Abs(filepath.Clean(input))
	if err != nil {
		return "", apperrors.NewValidationError("path cannot be resolved", err.Error())
	}
	real, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", apperrors.NewFilesystemError(input, err)
	}
	info, err := os.Stat(real)
	if err != nil {
		return "", apperrors.NewFilesystemError(input, err)
	}
	if !info.IsDir() {
		return "", apperrors.NewFilesystemError(input, fmt.Errorf("not a directory"))
	}
	if !sm.underRoot(real) {
		return "", apperrors.NewValidationError("path is outside the allowed roots")
	}
	return real, nil
}

func (sm *SecurityMiddleware) underRoot(path string) bool {
	if len(sm.roots) == 0 {
		return true
	}
	for _, root := range sm.roots {
		rel, err := filepath.Rel(root, path)
		if err != nil {
			continue
		}
		if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
			return true
		}
	}
	return false
}

// SecurityHeaders adds security headers to responses
func (sm *SecurityMiddleware) SecurityHeaders(c *gin.Context) {
	c.Header("X-Content-Type-Options", "nosniff")
	c.Header("X-Frame-Options", "DENY")
	c.Header("Referrer-Policy", "no-referrer")
	c.Header("Permissions-Policy", "geolocation=(), microphone=(), camera=()")
	if sm.config.EnableHSTS || c.Request.TLS != nil {
		c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
	}
	c.Next()
}

// ValidateContentType rejects bodies that are not JSON
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	if c.Request.ContentLength == 0 {
		c.Next()
		return
	}
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
		appErr := apperrors.NewValidationError("unsupported content type", contentType)
		c.AbortWithStatusJSON(415, apperrors.Response(appErr))
		return
	}
	c.Next()
}

// RequestTimeout bounds the request context
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	if sm.config.RequestTimeout <= 0 {
		c.Next()
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))
	c.Next()
}

// ValidateAssessRequest binds an AssessRequest and stores the validated
// path under RepoPathKey
func (sm *SecurityMiddleware) ValidateAssessRequest(c *gin.Context) {
	var req types.AssessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}
	path, err := sm.ValidateRepositoryPath(req.Path)
	if err != nil {
		abort(c, apperrors.ToAppError(err))
		return
	}
	c.Set(RepoPathKey, path)
	c.Next()
}

// ValidateBenchmarkRequest binds a BenchmarkRequest and stores the
// validated paths under RepoPathsKey. Every path must pass.
func (sm *SecurityMiddleware) ValidateBenchmarkRequest(c *gin.Context) {
	var req types.BenchmarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if len(req.Paths) > sm.config.MaxBatchSize {
		abort(c, apperrors.NewValidationError(fmt.Sprintf("at most %d paths per batch", sm.config.MaxBatchSize)))
		return
	}

	paths := make([]string, 0, len(req.Paths))
	fields := map[string]string{}
	for i, p := range req.Paths {
		resolved, err := sm.ValidateRepositoryPath(p)
		if err != nil {
			fields[fmt.Sprintf("paths[%d]", i)] = apperrors.ToAppError(err).ErrBuilder.Msg
			continue
		}
		paths = append(paths, resolved)
	}
	if len(fields) > 0 {
		abort(c, apperrors.NewValidationErrorWithMap(fields))
		return
	}
	c.Set(RepoPathsKey, paths)
	c.Next()
}

func abort(c *gin.Context, appErr *apperrors.AppError) {
	appErr.RequestID = c.GetHeader("X-Request-ID")
	apperrors.LogError(c, appErr)
	c.AbortWithStatusJSON(appErr.HTTPStatus, apperrors.Response(appErr))
}
