package security

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
)

func TestValidateRepositoryPath(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	require.NoError(t, os.Mkdir(repo, 0o755))
	file := filepath.Join(root, "file.txt")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))
	outside := t.TempDir()

	realRoot, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)

	sm := NewSecurityMiddleware(SecurityConfig{AllowedRoots: []string{root}})

	tests := []struct {
		name     string
		input    string
		want     string
		category apperrors.ErrorCategory
	}{
		{"valid repo", repo, filepath.Join(realRoot, "repo"), ""},
		{"root itself", root, realRoot, ""},
		{"traversal cleaned", filepath.Join(repo, "..", "repo"), filepath.Join(realRoot, "repo"), ""},
		{"empty", "  ", "", apperrors.CategoryValidation},
		{"null byte", repo + "\x00", "", apperrors.CategoryValidation},
		{"missing", filepath.Join(root, "nope"), "", apperrors.CategoryFilesystem},
		{"file not dir", file, "", apperrors.CategoryFilesystem},
		{"outside roots", outside, "", apperrors.CategoryValidation},
		{"too long", "/" + strings.Repeat("a", 5000), "", apperrors.CategoryValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := sm.ValidateRepositoryPath(tt.input)
			if tt.category == "" {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.category, apperrors.ToAppError(err).Category)
		})
	}
}

func TestValidateRepositoryPathSymlinkEscape(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}
	root := t.TempDir()
	outside := t.TempDir()
	link := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(outside, link))

	sm := NewSecurityMiddleware(SecurityConfig{AllowedRoots: []string{root}})
	_, err := sm.ValidateRepositoryPath(link)
	require.Error(t, err)
	assert.Equal(t, apperrors.CategoryValidation, apperrors.ToAppError(err).Category)
}

func TestNoRootsAllowsAnyDirectory(t *testing.T) {
	sm := NewSecurityMiddleware(DefaultSecurityConfig())
	_, err := sm.ValidateRepositoryPath(t.TempDir())
	assert.NoError(t, err)
}

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", handlers...)
	return r
}

func TestValidateAssessRequest(t *testing.T) {
	root := t.TempDir()
	sm := NewSecurityMiddleware(SecurityConfig{AllowedRoots: []string{root}})

	var seen string
	router := newRouter(sm.ValidateContentType, sm.ValidateAssessRequest, func(c *gin.Context) {
		seen = c.GetString(RepoPathKey)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name        string
		body        string
		contentType string
		status      int
	}{
		{"valid", `{"path":"` + root + `"}`, "application/json", http.StatusOK},
		{"missing path", `{}`, "application/json", http.StatusBadRequest},
		{"bad json", `{"path":`, "application/json", http.StatusBadRequest},
		{"outside root", `{"path":"` + t.TempDir() + `"}`, "application/json", http.StatusBadRequest},
		{"missing dir", `{"path":"` + filepath.Join(root, "gone") + `"}`, "application/json", http.StatusUnprocessableEntity},
		{"wrong content type", `path=x`, "text/plain", http.StatusUnsupportedMediaType},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = ""
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			router.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.NotEmpty(t, seen)
			}
		})
	}
}

func TestValidateBenchmarkRequest(t *testing.T) {
	root := t.TempDir()
	a := filepath.Join(root, "a")
	require.NoError(t, os.Mkdir(a, 0o755))
	sm := NewSecurityMiddleware(SecurityConfig{AllowedRoots: []string{root}, MaxBatchSize: 2})

	var seen []string
	router := newRouter(sm.ValidateBenchmarkRequest, func(c *gin.Context) {
		seen = c.MustGet(RepoPathsKey).([]string)
		c.Status(http.StatusOK)
	})

	send := func(body string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(w, req)
		return w
	}

	ok := send(`{"paths":["` + a + `"]}`)
	assert.Equal(t, http.StatusOK, ok.Code)
	assert.Len(t, seen, 1)

	bad := send(`{"paths":["` + a + `","` + filepath.Join(root, "missing") + `"]}`)
	assert.Equal(t, http.StatusBadRequest, bad.Code)
	assert.Contains(t, bad.Body.String(), "paths[1]")

	assert.Equal(t, http.StatusBadRequest, send(`{"paths":[]}`).Code)
	assert.Equal(t, http.StatusBadRequest, send(`{"paths":["a","b","c"]}`).Code)
}

func TestSecurityHeadersAndTimeout(t *testing.T) {
	sm := NewSecurityMiddleware(SecurityConfig{RequestTimeout: 2 * time.Second, EnableHSTS: true})

	var hasDeadline bool
	router := newRouter(sm.SecurityHeaders, sm.RequestTimeout, func(c *gin.Context) {
		_, hasDeadline = c.Request.Context().Deadline()
		c.Status(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	assert.True(t, hasDeadline)
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Strict-Transport-Security"))
	assert.Equal(t, "2", w.Header().Get("X-Timeout"))
}

func TestCSPMiddleware(t *testing.T) {
	var nonce string
	router := newRouter(CSPMiddleware(), func(c *gin.Context) {
		nonce = GetNonce(c)
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

	require.NotEmpty(t, nonce)
	assert.Contains(t, w.Header().Get("Content-Security-Policy"), "'nonce-"+nonce+"'")
}
