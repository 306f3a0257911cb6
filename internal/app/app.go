// Package app assembles the scoring pipeline shared by the server and CLI.
package app

import (
	"fmt"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/adapters"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/assessors"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/benchmark"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/config"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/enrich"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
)

const defaultGitHubBaseURL = "https://api.github.com"

// Components are the long-lived pieces built from a Config
type Components struct {
	Config   config.Config
	Scoring  config.Scoring
	Logger   *monitoring.Logger
	Metrics  *monitoring.Metrics
	Analyzer *analysis.Analyzer
	// GitHub is nil unless a token or a non-default base URL is set
	GitHub   *adapters.GitHubAdapter
	Files    *cache.FileCache
	Enricher *enrich.Enricher
	Runner   *benchmark.Runner
}

// Build loads the scoring profile and wires the analyzer, skill cache and
// batch runner.
func Build(cfg config.Config, logger *monitoring.Logger, metrics *monitoring.Metrics) (*Components, error) {
	scoring, err := config.LoadScoring(cfg.ScoringFile)
	if err != nil {
		return nil, err
	}

	c := &Components{
		Config:  cfg,
		Scoring: scoring,
		Logger:  logger,
		Metrics: metrics,
	}

	opts := []analysis.Option{
		analysis.WithAssessors(assessors.Filter(assessors.Default(), scoring.Disabled)),
		analysis.WithLogger(logger),
		analysis.WithMetrics(metrics),
	}
	if GitHubEnabled(cfg) {
		c.GitHub = adapters.NewGitHubAdapter(cfg.GitHubToken, cfg.GitHubBaseURL, logger, metrics)
		opts = append(opts, analysis.WithRepositoryEnricher(c.GitHub))
	}
	c.Analyzer = analysis.NewAnalyzer(analysis.NewScorer(scoring.ScorerConfig()), opts...)

	files, err := cache.NewFileCache(cfg.CacheDir, cfg.CacheTTL, logger, cache.WithMetrics(metrics))
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("open skill cache: %w", err)
	}
	c.Files = files
	c.Enricher = enrich.NewEnricher(enrich.TemplateGenerator{}, files, logger)

	c.Runner = benchmark.NewRunner(BenchmarkFunc(cfg, c.Analyzer),
		benchmark.WithConcurrency(cfg.BatchConcurrency),
		benchmark.WithJobTimeout(cfg.BatchTimeout),
		benchmark.WithLogger(logger),
		benchmark.WithMetrics(metrics),
	)
	return c, nil
}

// GitHubEnabled reports whether repository metadata should be fetched
func GitHubEnabled(cfg config.Config) bool {
	return cfg.GitHubToken != "" || (cfg.GitHubBaseURL != "" && cfg.GitHubBaseURL != defaultGitHubBaseURL)
}

// BenchmarkFunc runs the configured external command, or scores in-process
// when none is set.
func BenchmarkFunc(cfg config.Config, analyzer *analysis.Analyzer) benchmark.Func {
	if len(cfg.BenchmarkCommand) > 0 {
		return benchmark.CommandBenchmark(cfg.BenchmarkCommand[0], cfg.BenchmarkCommand[1:]...)
	}
	return benchmark.AssessmentBenchmark(analyzer)
}

// Close releases the GitHub connection pool
func (c *Components) Close() {
	if c.GitHub != nil {
		_ = c.GitHub.Close()
	}
}
