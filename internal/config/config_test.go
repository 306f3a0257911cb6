package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 4, cfg.BatchConcurrency)
	assert.Equal(t, time.Hour, cfg.BatchTimeout)
	assert.Equal(t, 168*time.Hour, cfg.CacheTTL)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, filepath.Join("./data", "readiness.db"), cfg.DatabasePath())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("READINESS_PORT", "9090")
	t.Setenv("READINESS_BATCH_CONCURRENCY", "8")
	t.Setenv("READINESS_BENCHMARK_COMMAND", "tbench run --quiet")
	t.Setenv("READINESS_ALLOWED_ROOTS", "/srv/repos,/tmp")
	t.Setenv("READINESS_ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, 8, cfg.BatchConcurrency)
	assert.Equal(t, []string{"tbench", "run", "--quiet"}, cfg.BenchmarkCommand)
	assert.Equal(t, []string{"/srv/repos", "/tmp"}, cfg.AllowedRoots)
	assert.True(t, cfg.IsProduction())
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("READINESS_PORT", "70000")
	t.Setenv("READINESS_LOG_LEVEL", "chatty")

	_, err := Load()
	require.Error(t, err)
	appErr := apperrors.ToAppError(err)
	assert.Equal(t, apperrors.CategoryConfiguration, appErr.Category)
	assert.Contains(t, appErr.Fields(), "READINESS_PORT")
	assert.Contains(t, appErr.Fields(), "READINESS_LOG_LEVEL")
}

func TestLoadScoringFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
weights:
  readme: 0.5
  ci_config: 0.3
thresholds:
  platinum: 95
  gold: 80
  silver: 50
fallback_weight: 0.1
disabled: [license]
`), 0o644))

	s, err := LoadScoring(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"license"}, s.Disabled)

	sc := s.ScorerConfig()
	assert.Equal(t, map[string]float64{"readme": 0.5, "ci_config": 0.3}, sc.Weights)
	assert.Equal(t, 80.0, sc.Thresholds.Gold)
	assert.Equal(t, 0.1, sc.FallbackWeight)
}

func TestLoadScoringEmptyPathUsesDefaults(t *testing.T) {
	s, err := LoadScoring("")
	require.NoError(t, err)
	sc := s.ScorerConfig()
	assert.Len(t, sc.Weights, 10)
	assert.Equal(t, 90.0, sc.Thresholds.Platinum)
}

func TestParseScoringMessages(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
		want  string
	}{
		{"unknown key", "colour: red\n", "(root)", "unknown top-level key"},
		{"weight above one", "weights:\n  readme: 2\n", "weights.readme", "is above the maximum"},
		{"negative weight", "weights:\n  readme: -0.1\n", "weights.readme", "is below the minimum"},
		{"weight wrong type", "weights:\n  readme: lots\n", "weights.readme", "has the wrong type"},
		{"missing tier", "thresholds:\n  platinum: 90\n  gold: 70\n", "thresholds", "platinum, gold and silver"},
		{"zero fallback", "fallback_weight: 0\n", "fallback_weight", "greater than 0"},
		{"duplicate disabled", "disabled: [readme, readme]\n", "disabled", "more than once"},
		{"unordered thresholds", "thresholds:\n  platinum: 70\n  gold: 80\n  silver: 60\n", "thresholds", "platinum > gold > silver"},
		{"weights overflow", "weights:\n  readme: 0.7\n  ci_config: 0.6\n", "weights", "at most 1.0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScoring([]byte(tt.yaml))
			require.Error(t, err)
			appErr := apperrors.ToAppError(err)
			assert.Equal(t, apperrors.CategoryConfiguration, appErr.Category)
			require.Contains(t, appErr.Fields(), tt.field)
			assert.Contains(t, appErr.Fields()[tt.field], tt.want)
		})
	}
}

func TestParseScoringRejectsBadYAML(t *testing.T) {
	_, err := ParseScoring([]byte("weights: [unclosed"))
	assert.Error(t, err)

	s, err := ParseScoring([]byte(""))
	require.NoError(t, err)
	assert.Nil(t, s.Weights)
}
