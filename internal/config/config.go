package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
)

// Config is the process configuration, read from READINESS_* variables
type Config struct {
	Environment string `env:"READINESS_ENV" envDefault:"development"`
	Port        int    `env:"READINESS_PORT" envDefault:"8080"`
	LogLevel    string `env:"READINESS_LOG_LEVEL" envDefault:"info"`

	DataDir       string        `env:"READINESS_DATA_DIR" envDefault:"./data"`
	RetentionDays int           `env:"READINESS_RETENTION_DAYS" envDefault:"90"`
	CacheDir      string        `env:"READINESS_CACHE_DIR" envDefault:".readiness/cache"`
	CacheTTL      time.Duration `env:"READINESS_CACHE_TTL" envDefault:"168h"`

	ResponseCacheSize int           `env:"READINESS_RESPONSE_CACHE_SIZE" envDefault:"256"`
	ResponseCacheTTL  time.Duration `env:"READINESS_RESPONSE_CACHE_TTL" envDefault:"30s"`

	ScoringFile string `env:"READINESS_SCORING_FILE"`

	GitHubToken   string `env:"READINESS_GITHUB_TOKEN"`
	GitHubBaseURL string `env:"READINESS_GITHUB_BASE_URL" envDefault:"https://api.github.com"`

	RedisURL    string `env:"READINESS_REDIS_URL"`
	NATSURL     string `env:"READINESS_NATS_URL"`
	NATSSubject string `env:"READINESS_NATS_SUBJECT" envDefault:"readiness"`

	OTelEndpoint string `env:"READINESS_OTEL_ENDPOINT"`

	BatchConcurrency int           `env:"READINESS_BATCH_CONCURRENCY" envDefault:"4"`
	BatchTimeout     time.Duration `env:"READINESS_BATCH_TIMEOUT" envDefault:"1h"`
	// BenchmarkCommand is split on spaces. Empty means score in-process.
	BenchmarkCommand []string `env:"READINESS_BENCHMARK_COMMAND" envSeparator:" "`

	RateLimitPerMinute int      `env:"READINESS_RATE_LIMIT" envDefault:"60"`
	AllowedRoots       []string `env:"READINESS_ALLOWED_ROOTS" envSeparator:","`
	CORSOrigins        []string `env:"READINESS_CORS_ORIGINS" envSeparator:"," envDefault:"*"`
}

// Load parses the environment and validates the result
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, apperrors.NewConfigurationError("Invalid environment", fmt.Errorf("parse env: %w", err), nil)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks ranges the env tags cannot express
func (c Config) Validate() error {
	fields := map[string]string{}
	if c.Port <= 0 || c.Port > 65535 {
		fields["READINESS_PORT"] = "must be between 1 and 65535"
	}
	if c.BatchConcurrency < 1 {
		fields["READINESS_BATCH_CONCURRENCY"] = "must be at least 1"
	}
	if c.BatchTimeout <= 0 {
		fields["READINESS_BATCH_TIMEOUT"] = "must be positive"
	}
	if c.CacheTTL < 0 {
		fields["READINESS_CACHE_TTL"] = "must not be negative"
	}
	if c.RateLimitPerMinute < 0 {
		fields["READINESS_RATE_LIMIT"] = "must not be negative"
	}
	if c.RetentionDays < 0 {
		fields["READINESS_RETENTION_DAYS"] = "must not be negative"
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		fields["READINESS_LOG_LEVEL"] = "must be one of debug, info, warn, error"
	}
	if len(fields) > 0 {
		return apperrors.NewConfigurationError("Invalid configuration", nil, fields)
	}
	return nil
}

// IsProduction reports whether the server should run gin in release mode
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// DatabasePath is the sqlite file under DataDir
func (c Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "readiness.db")
}

// Retention is RetentionDays as a duration; zero disables purging
func (c Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}
