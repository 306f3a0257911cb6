package main

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/app"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/config"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/database"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/events"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/leaderboard"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/ratelimit"
)

// setupRouter builds the full router over a temp database. Repositories
// must live under the returned root.
func setupRouter(t *testing.T, perMinute int) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	root := t.TempDir()
	t.Setenv("READINESS_DATA_DIR", filepath.Join(t.TempDir(), "data"))
	t.Setenv("READINESS_CACHE_DIR", filepath.Join(t.TempDir(), "cache"))
	t.Setenv("READINESS_ALLOWED_ROOTS", root)
	cfg, err := config.Load()
	require.NoError(t, err)

	logger := monitoring.NewLoggerWithWriter(io.Discard, "error")
	metrics := monitoring.NewMetrics()

	components, err := app.Build(cfg, logger, metrics)
	require.NoError(t, err)
	t.Cleanup(components.Close)

	db, err := database.NewDB(cfg.DataDir)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	repo := database.NewRepository(db)

	s := newServer(serverDeps{
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		components:  components,
		db:          db,
		repo:        repo,
		leaderboard: leaderboard.NewService(repo, leaderboard.NewCache(8, time.Minute), logger, metrics),
		publisher:   events.NewPublisher(nil, cfg.NATSSubject, logger, metrics),
		limiter:     ratelimit.NewRateLimiter(nil, ratelimit.Config{PerMinute: perMinute, IdleTTL: time.Hour}, logger, metrics),
	})
	return s.routes(), root
}

func makeRepo(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"),
		[]byte("# "+name+"\n\n## Installation\n\n## Usage\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.go"), []byte("package main\n"), 0o644))
	return dir
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func TestHealthEndpoint(t *testing.T) {
	r, _ := setupRouter(t, 100)

	tests := []struct {
		name           string
		method         string
		expectedStatus int
	}{
		{"GET /health returns OK status", http.MethodGet, http.StatusOK},
		{"POST /health not routed", http.MethodPost, http.StatusNotFound},
		{"DELETE /health not routed", http.MethodDelete, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.method, "/health", nil)
			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedStatus == http.StatusOK {
				body := decode(t, w)
				assert.Equal(t, "ok", body["status"])
				assert.Contains(t, body["checks"], "database")
				assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := setupRouter(t, 100)
	do(r, http.MethodGet, "/health", nil)

	w := do(r, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "# TYPE")
}

func TestAssessmentLifecycle(t *testing.T) {
	r, root := setupRouter(t, 100)
	repo := makeRepo(t, root, "alpha")

	w := do(r, http.MethodPost, "/api/v1/assessments", map[string]string{"path": repo})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	id, _ := created["id"].(string)
	require.NotEmpty(t, id)
	assert.Contains(t, []interface{}{"Platinum", "Gold", "Silver", "Needs Improvement"}, created["certification_level"])

	t.Run("get by id", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/assessments/"+id, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, id, decode(t, w)["id"])
	})

	t.Run("list", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/assessments?limit=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode(t, w)["assessments"].([]interface{})
		assert.Len(t, list, 1)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/assessments/does-not-exist", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decode(t, w)["category"])
	})

	t.Run("markdown report", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/assessments/"+id+"/report?format=markdown", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
		assert.Contains(t, w.Body.String(), "# Readiness report: alpha")
	})

	t.Run("html report carries nonce", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/assessments/"+id+"/report?format=html", nil)
		require.Equal(t, http.StatusOK, w.Code)
		csp := w.Header().Get("Content-Security-Policy")
		require.Contains(t, csp, "'nonce-")
		assert.Contains(t, w.Body.String(), `<style nonce="`)
	})

	t.Run("bad report format", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/assessments/"+id+"/report?format=pdf", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("leaderboard", func(t *testing.T) {
		w := do(r, http.MethodGet, "/api/v1/leaderboard?period=weekly", nil)
		require.Equal(t, http.StatusOK, w.Code)
		entries := decode(t, w)["entries"].([]interface{})
		require.Len(t, entries, 1)
		assert.EqualValues(t, 1, entries[0].(map[string]interface{})["rank"])
	})
}

func TestAssessmentRejectsBadPaths(t *testing.T) {
	r, root := setupRouter(t, 100)

	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"missing path", map[string]string{}, http.StatusBadRequest},
		{"outside allowed roots", map[string]string{"path": t.TempDir()}, http.StatusBadRequest},
		{"not a directory", map[string]string{"path": filepath.Join(root, "nope")}, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, http.MethodPost, "/api/v1/assessments", tt.body)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestLeaderboardRejectsUnknownPeriod(t *testing.T) {
	r, _ := setupRouter(t, 100)
	w := do(r, http.MethodGet, "/api/v1/leaderboard?period=hourly", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodGet, "/api/v1/leaderboard?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBenchmarkEndpoint(t *testing.T) {
	r, root := setupRouter(t, 100)
	a := makeRepo(t, root, "a")
	b := makeRepo(t, root, "b")

	w := do(r, http.MethodPost, "/api/v1/benchmarks", map[string][]string{"paths": {a, b}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.EqualValues(t, 2, body["requested"])
	assert.EqualValues(t, 2, body["succeeded"])
	assert.NotEmpty(t, body["batch_id"])

	w = do(r, http.MethodPost, "/api/v1/benchmarks", map[string][]string{"paths": {a, filepath.Join(root, "missing")}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeltaEndpoints(t *testing.T) {
	r, _ := setupRouter(t, 100)

	w := do(r, http.MethodPost, "/api/v1/deltas", map[string]interface{}{
		"deltas": []map[string]interface{}{
			{"assessor_id": "readme", "delta_score": 0.10, "repository": "a"},
			{"assessor_id": "readme", "delta_score": 0.20, "repository": "b"},
			{"assessor_id": "license", "delta_score": 0.01, "repository": "a"},
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/deltas/aggregate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	impacts := decode(t, w)["impacts"].([]interface{})
	require.Len(t, impacts, 2)
	first := impacts[0].(map[string]interface{})
	assert.Equal(t, "readme", first["assessor_id"])
	assert.InDelta(t, 0.15, first["mean_delta"], 1e-9)

	w = do(r, http.MethodGet, "/api/v1/deltas/aggregate?assessor_id=license", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["impacts"], 1)

	t.Run("invalid deltas", func(t *testing.T) {
		w := do(r, http.MethodPost, "/api/v1/deltas", map[string]interface{}{
			"deltas": []map[string]interface{}{{"assessor_id": "", "delta_score": 3}},
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		details := decode(t, w)["details"].(map[string]interface{})
		assert.Contains(t, details, "deltas[0].assessor_id")
		assert.Contains(t, details, "deltas[0].delta_score")
	})
}

func TestRateLimitedAPI(t *testing.T) {
	r, _ := setupRouter(t, 2)

	for i := 0; i < 2; i++ {
		w := do(r, http.MethodGet, "/api/v1/deltas/aggregate?n="+string(rune('a'+i)), nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := do(r, http.MethodGet, "/api/v1/deltas/aggregate?n=c", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	// health sits outside the limited group
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/health", nil).Code)
}

func TestCORSPreflight(t *testing.T) {
	r, _ := setupRouter(t, 100)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/assessments", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
