package database

import (
	"context"
	"log/slog"
	"time"
)

// RetentionService periodically purges rows older than its retention age
type RetentionService struct {
	repo   *Repository
	maxAge time.Duration
	logger *slog.Logger
}

// NewRetentionService creates a retention service. A non-positive maxAge
// makes Cleanup a no-op.
func NewRetentionService(repo *Repository, maxAge time.Duration, logger *slog.Logger) *RetentionService {
	if logger == nil {
		logger = slog.Default()
	}
	return &RetentionService{repo: repo, maxAge: maxAge, logger: logger}
}

// Cleanup runs one purge pass
func (s *RetentionService) Cleanup(ctx context.Context) (PurgeStats, error) {
	stats, err := s.repo.PurgeOlderThan(ctx, s.maxAge)
	if err != nil {
		s.logger.Error("Data cleanup failed", "error", err)
		return stats, err
	}
	s.logger.Info("Data cleanup completed",
		"max_age", s.maxAge,
		"assessments_deleted", stats.Assessments,
		"benchmark_results_deleted", stats.BenchmarkResults,
		"deltas_deleted", stats.Deltas)
	return stats, nil
}

// Run purges once immediately and then every interval until ctx is done
func (s *RetentionService) Run(ctx context.Context, interval time.Duration) {
	if s.maxAge <= 0 || interval <= 0 {
		return
	}
	_, _ = s.Cleanup(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = s.Cleanup(ctx)
		}
	}
}
