// Command server exposes repository assessments over HTTP.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/app"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/config"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/database"
	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/events"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/leaderboard"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/ratelimit"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		monitoring.NewLogger("info").Error("Failed to load configuration", "error", err, "fields", apperrors.ToAppError(err).Fields())
		os.Exit(1)
	}

	logger := monitoring.NewLogger(cfg.LogLevel)
	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *monitoring.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := monitoring.SetupTracing(ctx, "readiness-o-meter", cfg.OTelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(tctx)
	}()

	metrics := monitoring.NewMetrics()

	components, err := app.Build(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer components.Close()

	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer apperrors.SafeClose(db, "database")
	repo := database.NewRepository(db)

	var redisClient *ratelimit.RedisClient
	if cfg.RedisURL != "" {
		redisClient, err = ratelimit.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			// in-memory buckets take over
			logger.Warn("Redis unavailable, using in-process rate limiting", "error", err)
			redisClient = nil
		} else {
			defer apperrors.SafeClose(redisClient, "redis")
		}
	}

	publisher, err := events.Connect(ctx, cfg.NATSURL, cfg.NATSSubject, logger, metrics)
	if err != nil {
		logger.Warn("NATS unavailable, events disabled", "error", err)
		publisher = events.NewPublisher(nil, cfg.NATSSubject, logger, metrics)
	}
	defer apperrors.SafeClose(publisher, "event publisher")

	board := leaderboard.NewService(repo, leaderboard.NewCache(64, 5*time.Minute), logger, metrics)
	go func() {
		board.WarmCache(ctx)
		board.AutoRefresh(ctx, 10*time.Minute)
	}()

	if retention := cfg.Retention(); retention > 0 {
		go database.NewRetentionService(repo, retention, logger.Logger).Run(ctx, 24*time.Hour)
	}

	limiter := ratelimit.NewRateLimiter(redisClient, ratelimit.Config{
		PerMinute: cfg.RateLimitPerMinute,
		IdleTTL:   time.Hour,
	}, logger, metrics)
	go limiter.Run(ctx, 10*time.Minute)

	s := newServer(serverDeps{
		config:      cfg,
		logger:      logger,
		metrics:     metrics,
		components:  components,
		db:          db,
		repo:        repo,
		leaderboard: board,
		publisher:   publisher,
		limiter:     limiter,
		redis:       redisClient,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "port", cfg.Port, "environment", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logger.Info("Server exited")
	return nil
}
