package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/readiness-o-meter/docs"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/analysis"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/app"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/cache"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/config"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/database"
	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/events"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/leaderboard"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/middleware"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/ratelimit"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/report"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/security"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

type serverDeps struct {
	config      config.Config
	logger      *monitoring.Logger
	metrics     *monitoring.Metrics
	components  *app.Components
	db          *database.DB
	repo        *database.Repository
	leaderboard *leaderboard.Service
	publisher   *events.Publisher
	limiter     *ratelimit.RateLimiter
	redis       *ratelimit.RedisClient
}

type server struct {
	serverDeps
	security    *security.SecurityMiddleware
	compression *middleware.CompressionMiddleware
	responses   *cache.ResponseCache
	started     time.Time
}

func newServer(deps serverDeps) *server {
	secCfg := security.DefaultSecurityConfig()
	secCfg.AllowedRoots = deps.config.AllowedRoots
	secCfg.RequestTimeout = deps.config.BatchTimeout + time.Minute
	secCfg.EnableHSTS = deps.config.IsProduction()

	return &server{
		serverDeps:  deps,
		security:    security.NewSecurityMiddleware(secCfg),
		compression: middleware.NewCompressionMiddleware(middleware.DefaultCompressionConfig()),
		responses:   cache.NewResponseCache(deps.config.ResponseCacheSize, deps.config.ResponseCacheTTL),
		started:     time.Now(),
	}
}

func (s *server) routes() *gin.Engine {
	r := gin.New()

	r.Use(monitoring.MonitoringMiddleware(s.metrics, s.logger))
	r.Use(monitoring.TracingMiddleware())
	r.Use(monitoring.SecurityMonitoringMiddleware(s.logger))
	r.Use(apperrors.RecoveryHandler())
	r.Use(apperrors.ErrorHandler())
	r.Use(cors.New(corsConfig(s.config.CORSOrigins)))
	r.Use(s.compression.Handler())
	r.Use(s.security.SecurityHeaders)
	r.Use(s.security.RequestTimeout)

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	cached := s.responses.Middleware(s.metrics, s.logger)

	v1 := r.Group("/api/v1")
	v1.Use(s.limiter.IPRateLimitMiddleware())
	v1.Use(s.security.ValidateContentType)
	{
		v1.POST("/assessments", s.security.ValidateAssessRequest, s.createAssessment)
		v1.GET("/assessments", cached, s.listAssessments)
		v1.GET("/assessments/:id", cached, s.getAssessment)
		v1.GET("/assessments/:id/report", security.CSPMiddleware(), s.getReport)

		v1.GET("/leaderboard", cached, s.getLeaderboard)

		v1.POST("/benchmarks",
			s.limiter.EndpointRateLimitMiddleware("benchmarks", 6),
			s.security.ValidateBenchmarkRequest,
			s.runBenchmarks)

		v1.POST("/deltas", s.recordDeltas)
		v1.GET("/deltas/aggregate", cached, s.aggregateDeltas)
	}

	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders: []string{"X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowAllOrigins = true
			return cfg
		}
	}
	cfg.AllowOrigins = origins
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	}
	return cfg
}

// health godoc
// @Summary Service health
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (s *server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := gin.H{}

	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			status = http.StatusServiceUnavailable
			checks["database"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			checks["database"] = gin.H{"status": "up", "pool": s.db.GetPoolStats()}
		}
	}
	if s.redis.IsEnabled() {
		if err := s.redis.HealthCheck(ctx); err != nil {
			checks["redis"] = gin.H{"status": "down", "error": err.Error()}
		} else {
			checks["redis"] = gin.H{"status": "up", "pool": s.redis.GetPoolStats()}
		}
	}
	checks["events"] = gin.H{"enabled": s.publisher.Enabled()}
	if s.components.GitHub != nil {
		checks["github"] = s.components.GitHub.GetPoolStats()
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{
		"status":      state,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"checks":      checks,
		"rate_limit":  s.limiter.GetStats(),
		"compression": s.compression.GetStats(),
		"cached":      s.responses.Len(),
	})
}

// createAssessment godoc
// @Summary Assess a local repository
// @Tags assessments
// @Accept json
// @Produce json
// @Param request body types.AssessRequest true "Repository path"
// @Success 201 {object} types.Assessment
// @Router /api/v1/assessments [post]
func (s *server) createAssessment(c *gin.Context) {
	path := c.GetString(security.RepoPathKey)

	assessment, err := s.components.Analyzer.Assess(c.Request.Context(), path)
	if err != nil {
		_ = c.Error(apperrors.ToAppError(err))
		return
	}
	if err := s.repo.SaveAssessment(c.Request.Context(), assessment); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to store assessment", err))
		return
	}

	s.leaderboard.Invalidate()
	s.responses.Purge()
	if err := s.publisher.PublishAssessment(assessment); err != nil {
		s.logger.Warn("Assessment event dropped", "assessment_id", assessment.ID, "error", err)
	}

	c.JSON(http.StatusCreated, assessment)
}

func (s *server) listAssessments(c *gin.Context) {
	limit, offset, err := pagination(c)
	if err != nil {
		_ = c.Error(err)
		return
	}
	list, err := s.repo.ListAssessments(c.Request.Context(), limit, offset)
	if err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to list assessments", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"assessments": list, "limit": limit, "offset": offset})
}

func (s *server) loadAssessment(c *gin.Context) (types.Assessment, bool) {
	id := c.Param("id")
	a, err := s.repo.GetAssessment(c.Request.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		_ = c.Error(apperrors.NewNotFoundError("assessment", id))
		return a, false
	}
	if err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to load assessment", err))
		return a, false
	}
	return a, true
}

func (s *server) getAssessment(c *gin.Context) {
	if a, ok := s.loadAssessment(c); ok {
		c.JSON(http.StatusOK, a)
	}
}

// getReport godoc
// @Summary Render an assessment report
// @Tags assessments
// @Produce json,text/markdown,text/html
// @Param id path string true "Assessment ID"
// @Param format query string false "json, markdown or html"
// @Router /api/v1/assessments/{id}/report [get]
func (s *server) getReport(c *gin.Context) {
	format, err := report.ParseFormat(c.Query("format"))
	if err != nil {
		_ = c.Error(apperrors.NewValidationError(err.Error()))
		return
	}
	a, ok := s.loadAssessment(c)
	if !ok {
		return
	}

	doc := report.NewDocument(a, s.components.Enricher.Enrich(c.Request.Context(), a))
	var buf bytes.Buffer
	if err := report.Render(&buf, doc, format, report.Options{Nonce: security.GetNonce(c)}); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to render report", err))
		return
	}

	c.Header("Cache-Control", "no-store")
	if format != report.FormatHTML {
		c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s%s"`, a.ID, format.Extension()))
	}
	c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
}

func (s *server) getLeaderboard(c *gin.Context) {
	period := c.DefaultQuery("period", leaderboard.PeriodAllTime)
	if !leaderboard.ValidPeriod(period) {
		_ = c.Error(apperrors.NewValidationError("unknown period", period))
		return
	}
	limit, _, err := pagination(c)
	if err != nil {
		_ = c.Error(err)
		return
	}

	resp, err := s.leaderboard.GetLeaderboard(c.Request.Context(), period, limit)
	if err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to build leaderboard", err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

// runBenchmarks godoc
// @Summary Run a benchmark batch
// @Tags benchmarks
// @Accept json
// @Produce json
// @Param request body types.BenchmarkRequest true "Repository paths"
// @Router /api/v1/benchmarks [post]
func (s *server) runBenchmarks(c *gin.Context) {
	paths := c.MustGet(security.RepoPathsKey).([]string)
	batchID := database.NewBatchID()

	results := s.components.Runner.RunBatch(c.Request.Context(), paths)
	if err := s.repo.SaveBenchmarkResults(c.Request.Context(), batchID, results); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to store benchmark results", err))
		return
	}
	if err := s.publisher.PublishBatch(batchID, len(paths), results); err != nil {
		s.logger.Warn("Batch event dropped", "batch_id", batchID, "error", err)
	}

	c.JSON(http.StatusOK, gin.H{
		"batch_id":  batchID,
		"requested": len(paths),
		"succeeded": len(results),
		"results":   results,
	})
}

func (s *server) recordDeltas(c *gin.Context) {
	var req types.DeltaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if fields := validateDeltas(req.Deltas); len(fields) > 0 {
		_ = c.Error(apperrors.NewValidationErrorWithMap(fields))
		return
	}
	if err := s.repo.SaveDeltas(c.Request.Context(), req.Deltas); err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to store deltas", err))
		return
	}
	s.responses.Purge()
	c.JSON(http.StatusCreated, gin.H{"stored": len(req.Deltas)})
}

func (s *server) aggregateDeltas(c *gin.Context) {
	deltas, err := s.repo.ListDeltas(c.Request.Context(), c.Query("assessor_id"))
	if err != nil {
		_ = c.Error(apperrors.NewInternalError("failed to load deltas", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"impacts": analysis.Aggregate(deltas)})
}

// validateDeltas checks ids are present and deltas lie on the 0-1 score
// scale
func validateDeltas(deltas []types.DeltaResult) map[string]string {
	fields := map[string]string{}
	for i, d := range deltas {
		if d.AssessorID == "" {
			fields[fmt.Sprintf("deltas[%d].assessor_id", i)] = "is required"
		}
		if math.IsNaN(d.DeltaScore) || d.DeltaScore < -1 || d.DeltaScore > 1 {
			fields[fmt.Sprintf("deltas[%d].delta_score", i)] = "must be between -1 and 1"
		}
	}
	return fields
}

func pagination(c *gin.Context) (limit, offset int, err error) {
	limit, offset = defaultPageSize, 0
	if v := c.Query("limit"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 1 || n > maxPageSize {
			return 0, 0, apperrors.NewValidationErrorWithMap(map[string]string{
				"limit": fmt.Sprintf("must be an integer between 1 and %d", maxPageSize),
			})
		}
		limit = n
	}
	if v := c.Query("offset"); v != "" {
		n, convErr := strconv.Atoi(v)
		if convErr != nil || n < 0 {
			return 0, 0, apperrors.NewValidationErrorWithMap(map[string]string{"offset": "must be a non-negative integer"})
		}
		offset = n
	}
	return limit, offset, nil
}
