package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/assessors"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// RepositoryEnricher adds upstream metadata to a scanned repository
type RepositoryEnricher interface {
	EnrichRepository(ctx context.Context, repo *types.Repository) error
}

// Analyzer orchestrates the full assessment pipeline:
// scan -> assessors -> findings -> results -> score -> assessment.
type Analyzer struct {
	assessors []assessors.Assessor
	scorer    *Scorer
	enricher  RepositoryEnricher
	logger    *monitoring.Logger
	metrics   *monitoring.Metrics
	now       func() time.Time
}

// Option configures an Analyzer
type Option func(*Analyzer)

// WithAssessors replaces the default assessor set
func WithAssessors(list []assessors.Assessor) Option {
	return func(a *Analyzer) { a.assessors = list }
}

// WithRepositoryEnricher enables upstream metadata enrichment
func WithRepositoryEnricher(e RepositoryEnricher) Option {
	return func(a *Analyzer) { a.enricher = e }
}

// WithLogger sets the logger
func WithLogger(l *monitoring.Logger) Option {
	return func(a *Analyzer) { a.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *monitoring.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(a *Analyzer) { a.now = now }
}

// NewAnalyzer creates a new analyzer around scorer
func NewAnalyzer(scorer *Scorer, opts ...Option) *Analyzer {
	a := &Analyzer{
		assessors: assessors.Default(),
		scorer:    scorer,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = &monitoring.Logger{Logger: slog.Default()}
	}
	return a
}

// Scorer returns the scorer used by the analyzer
func (a *Analyzer) Scorer() *Scorer {
	return a.scorer
}

// Assess scans the repository at path and scores it. The only errors are
// those that prevent building the Repository itself; assessor failures end
// up as error findings.
func (a *Analyzer) Assess(ctx context.Context, path string) (types.Assessment, error) {
	ctx, span := monitoring.Tracer().Start(ctx, "analysis.Assess")
	span.SetAttributes(attribute.String("repository.path", path))

	repo, err := assessors.ScanRepository(ctx, path)
	if err != nil {
		monitoring.EndSpan(span, err)
		return types.Assessment{}, fmt.Errorf("scan repository: %w", err)
	}

	if a.enricher != nil {
		if err := a.enricher.EnrichRepository(ctx, &repo); err != nil {
			a.logger.Warn("repository enrichment failed", "repository", repo.Name, "error", err)
		}
	}

	assessment := a.AssessRepository(ctx, repo)
	if err := ctx.Err(); err != nil {
		monitoring.EndSpan(span, err)
		return types.Assessment{}, fmt.Errorf("assess repository: %w", err)
	}
	span.SetAttributes(
		attribute.Float64("assessment.overall_score", assessment.OverallScore),
		attribute.String("assessment.tier", string(assessment.CertificationLevel)),
	)
	monitoring.EndSpan(span, nil)
	return assessment, nil
}

// AssessRepository runs every assessor sequentially against repo.
func (a *Analyzer) AssessRepository(ctx context.Context, repo types.Repository) types.Assessment {
	start := a.now()
	id := uuid.NewString()

	findings := make([]types.Finding, 0, len(a.assessors))
	results := make([]types.AssessorResult, 0, len(a.assessors))
	for _, as := range a.assessors {
		_, span := monitoring.Tracer().Start(ctx, "assessor."+as.ID())
		began := time.Now()

		f := assessors.RunContext(ctx, as, repo)
		elapsed := time.Since(began)

		span.SetAttributes(
			attribute.String("assessor.status", string(f.Status)),
			attribute.Float64("assessor.score", f.Score),
		)
		span.End()

		a.logger.AssessorLogger(f.AttributeID, string(f.Status), f.Score, elapsed)
		a.metrics.RecordAssessorRun(f.AttributeID, string(f.Status))

		findings = append(findings, f)
		results = append(results, toResult(id, f, elapsed, a.now()))
	}

	scored := a.scorer.Score(results)
	duration := a.now().Sub(start)

	assessment := types.Assessment{
		ID:                 id,
		Repository:         repo,
		Findings:           findings,
		OverallScore:       scored.Overall,
		AttributesTotal:    len(findings),
		CertificationLevel: scored.Tier,
		Breakdown:          scored.Contributions,
		AssessedAt:         start.UTC(),
		DurationMs:         duration.Milliseconds(),
	}
	for _, f := range findings {
		switch f.Status {
		case types.StatusSuccess:
			assessment.AttributesAssessed++
		case types.StatusSkipped:
			assessment.AttributesSkipped++
		case types.StatusError:
			assessment.AttributesErrored++
		}
	}

	a.logger.AssessmentLogger(repo.Name, assessment.OverallScore, string(assessment.CertificationLevel),
		assessment.AttributesAssessed, assessment.AttributesTotal, duration)
	a.metrics.RecordAssessment(string(assessment.CertificationLevel), assessment.OverallScore, duration)
	return assessment
}

// ToResults converts findings into scorer input
func ToResults(assessmentID string, findings []types.Finding, executedAt time.Time) []types.AssessorResult {
	out := make([]types.AssessorResult, 0, len(findings))
	for _, f := range findings {
		out = append(out, toResult(assessmentID, f, 0, executedAt))
	}
	return out
}

func toResult(assessmentID string, f types.Finding, elapsed time.Duration, executedAt time.Time) types.AssessorResult {
	return types.AssessorResult{
		AssessmentID: assessmentID,
		AssessorName: f.AttributeID,
		Score:        f.Score,
		Status:       f.Status,
		ExecutedAt:   executedAt.UTC(),
		Metrics: map[string]float64{
			"evidence_count": float64(len(f.Evidence)),
			"duration_ms":    float64(elapsed.Milliseconds()),
		},
	}
}
