package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// ErrNotFound is returned when a lookup matches no row
var ErrNotFound = errors.New("not found")

// Repository handles database operations
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) stmt(ctx context.Context, tx *sql.Tx, name string) (*sql.Stmt, error) {
	s, err := r.db.GetPreparedStatement(name)
	if err != nil {
		return nil, err
	}
	if tx != nil {
		return tx.StmtContext(ctx, s), nil
	}
	return s, nil
}

func toJSON(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// SaveAssessment stores an assessment and its findings in one transaction
func (r *Repository) SaveAssessment(ctx context.Context, a types.Assessment) error {
	repoJSON, err := toJSON(a.Repository)
	if err != nil {
		return fmt.Errorf("encode repository: %w", err)
	}
	breakdownJSON, err := toJSON(a.Breakdown)
	if err != nil {
		return fmt.Errorf("encode breakdown: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ins, err := r.stmt(ctx, tx, "insert_assessment")
	if err != nil {
		return err
	}
	_, err = ins.ExecContext(ctx,
		a.ID, a.Repository.Name, a.Repository.Path, a.Repository.URL, a.Repository.PrimaryLanguage, repoJSON,
		a.OverallScore, string(a.CertificationLevel), a.AttributesTotal, a.AttributesAssessed,
		a.AttributesSkipped, a.AttributesErrored, breakdownJSON, a.DurationMs, a.AssessedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}

	insFinding, err := r.stmt(ctx, tx, "insert_finding")
	if err != nil {
		return err
	}
	for i, f := range a.Findings {
		evidence, err := toJSON(f.Evidence)
		if err != nil {
			return fmt.Errorf("encode evidence: %w", err)
		}
		if _, err := insFinding.ExecContext(ctx,
			a.ID, i, f.AttributeID, f.Name, f.Category, f.Score, string(f.Status), evidence, f.Remediation,
		); err != nil {
			return fmt.Errorf("failed to insert finding %s: %w", f.AttributeID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit assessment: %w", err)
	}
	return nil
}

// GetAssessment loads an assessment with its findings
func (r *Repository) GetAssessment(ctx context.Context, id string) (types.Assessment, error) {
	get, err := r.stmt(ctx, nil, "get_assessment")
	if err != nil {
		return types.Assessment{}, err
	}

	var (
		a         types.Assessment
		repoJSON  string
		breakdown sql.NullString
		tier      string
	)
	err = get.QueryRowContext(ctx, id).Scan(
		&a.ID, &repoJSON, &a.OverallScore, &tier,
		&a.AttributesTotal, &a.AttributesAssessed, &a.AttributesSkipped, &a.AttributesErrored,
		&breakdown, &a.DurationMs, &a.AssessedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Assessment{}, fmt.Errorf("assessment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return types.Assessment{}, fmt.Errorf("failed to query assessment: %w", err)
	}
	a.CertificationLevel = types.Tier(tier)

	if err := json.Unmarshal([]byte(repoJSON), &a.Repository); err != nil {
		return types.Assessment{}, fmt.Errorf("decode repository: %w", err)
	}
	if breakdown.Valid && breakdown.String != "" {
		if err := json.Unmarshal([]byte(breakdown.String), &a.Breakdown); err != nil {
			return types.Assessment{}, fmt.Errorf("decode breakdown: %w", err)
		}
	}

	findings, err := r.stmt(ctx, nil, "get_findings")
	if err != nil {
		return types.Assessment{}, err
	}
	rows, err := findings.QueryContext(ctx, id)
	if err != nil {
		return types.Assessment{}, fmt.Errorf("failed to query findings: %w", err)
	}
	defer rows.Close()

	a.Findings = []types.Finding{}
	for rows.Next() {
		var (
			f                     types.Finding
			category, remediation sql.NullString
			evidence              sql.NullString
			status                string
		)
		if err := rows.Scan(&f.AttributeID, &f.Name, &category, &f.Score, &status, &evidence, &remediation); err != nil {
			return types.Assessment{}, fmt.Errorf("failed to scan finding: %w", err)
		}
		f.Category = category.String
		f.Remediation = remediation.String
		f.Status = types.Status(status)
		f.Evidence = []string{}
		if evidence.Valid && evidence.String != "" {
			if err := json.Unmarshal([]byte(evidence.String), &f.Evidence); err != nil {
				return types.Assessment{}, fmt.Errorf("decode evidence: %w", err)
			}
		}
		a.Findings = append(a.Findings, f)
	}
	if err := rows.Err(); err != nil {
		return types.Assessment{}, fmt.Errorf("failed to read findings: %w", err)
	}
	return a, nil
}

// ListAssessments returns summaries, newest first
func (r *Repository) ListAssessments(ctx context.Context, limit, offset int) ([]AssessmentSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, repo_name, repo_path, repo_url, primary_language, overall_score, certification_level, assessed_at
		FROM assessments
		ORDER BY assessed_at DESC, id ASC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list assessments: %w", err)
	}
	defer rows.Close()

	out := []AssessmentSummary{}
	for rows.Next() {
		var (
			s         AssessmentSummary
			url, lang sql.NullString
			tier      string
		)
		if err := rows.Scan(&s.ID, &s.RepoName, &s.RepoPath, &url, &lang, &s.OverallScore, &tier, &s.AssessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assessment: %w", err)
		}
		s.RepoURL = url.String
		s.PrimaryLanguage = lang.String
		s.CertificationLevel = types.Tier(tier)
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestScores returns the newest assessment of every repository path
// assessed at or after since, best score first. A zero since means all time.
func (r *Repository) LatestScores(ctx context.Context, since time.Time, limit int) ([]LatestScore, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT a.id, a.repo_name, a.repo_path, a.repo_url, a.primary_language,
			a.overall_score, a.certification_level, a.assessed_at
		FROM assessments a
		WHERE a.assessed_at >= ?
			AND a.id = (
				SELECT b.id FROM assessments b
				WHERE b.repo_path = a.repo_path
				ORDER BY b.assessed_at DESC, b.id DESC
				LIMIT 1
			)
		ORDER BY a.overall_score DESC, a.repo_name ASC
		LIMIT ?
	`, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query latest scores: %w", err)
	}
	defer rows.Close()

	out := []LatestScore{}
	for rows.Next() {
		var (
			s         LatestScore
			url, lang sql.NullString
			tier      string
		)
		if err := rows.Scan(&s.AssessmentID, &s.RepoName, &s.RepoPath, &url, &lang, &s.OverallScore, &tier, &s.AssessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan latest score: %w", err)
		}
		s.RepoURL = url.String
		s.PrimaryLanguage = lang.String
		s.CertificationLevel = types.Tier(tier)
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveBenchmarkResults stores the results of one batch run
func (r *Repository) SaveBenchmarkResults(ctx context.Context, batchID string, results []types.TbenchResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ins, err := r.stmt(ctx, tx, "insert_benchmark_result")
	if err != nil {
		return err
	}
	for _, res := range results {
		meta, err := toJSON(res.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		if _, err := ins.ExecContext(ctx, uuid.New().String(), batchID, res.Repository, res.Score, meta, res.CompletedAt.UTC()); err != nil {
			return fmt.Errorf("failed to insert benchmark result: %w", err)
		}
	}
	return tx.Commit()
}

// ListBenchmarkResults returns the results of a batch in completion order
func (r *Repository) ListBenchmarkResults(ctx context.Context, batchID string) ([]BenchmarkRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, batch_id, repository, score, metadata, completed_at
		FROM benchmark_results WHERE batch_id = ?
		ORDER BY completed_at ASC, id ASC
	`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to list benchmark results: %w", err)
	}
	defer rows.Close()

	out := []BenchmarkRecord{}
	for rows.Next() {
		var (
			rec  BenchmarkRecord
			meta sql.NullString
		)
		if err := rows.Scan(&rec.ID, &rec.BatchID, &rec.Repository, &rec.Score, &meta, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("failed to scan benchmark result: %w", err)
		}
		if meta.Valid && meta.String != "" && meta.String != "null" {
			if err := json.Unmarshal([]byte(meta.String), &rec.Metadata); err != nil {
				return nil, fmt.Errorf("decode metadata: %w", err)
			}
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SaveDeltas appends delta observations
func (r *Repository) SaveDeltas(ctx context.Context, deltas []types.DeltaResult) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	ins, err := r.stmt(ctx, tx, "insert_delta")
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, d := range deltas {
		if _, err := ins.ExecContext(ctx, d.AssessorID, d.Repository, d.DeltaScore, now); err != nil {
			return fmt.Errorf("failed to insert delta: %w", err)
		}
	}
	return tx.Commit()
}

// ListDeltas returns stored deltas in insertion order. An empty assessorID
// returns all of them.
func (r *Repository) ListDeltas(ctx context.Context, assessorID string) ([]types.DeltaResult, error) {
	query := `SELECT assessor_id, repository, delta_score FROM deltas`
	args := []interface{}{}
	if assessorID != "" {
		query += ` WHERE assessor_id = ?`
		args = append(args, assessorID)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list deltas: %w", err)
	}
	defer rows.Close()

	out := []types.DeltaResult{}
	for rows.Next() {
		var (
			d    types.DeltaResult
			repo sql.NullString
		)
		if err := rows.Scan(&d.AssessorID, &repo, &d.DeltaScore); err != nil {
			return nil, fmt.Errorf("failed to scan delta: %w", err)
		}
		d.Repository = repo.String
		out = append(out, d)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes assessments, benchmark results and deltas recorded
// before now minus age. Findings go with their assessment.
func (r *Repository) PurgeOlderThan(ctx context.Context, age time.Duration) (PurgeStats, error) {
	var stats PurgeStats
	if age <= 0 {
		return stats, nil
	}
	cutoff := time.Now().Add(-age).UTC()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	targets := []struct {
		query string
		count *int64
	}{
		{`DELETE FROM assessments WHERE assessed_at < ?`, &stats.Assessments},
		{`DELETE FROM benchmark_results WHERE completed_at < ?`, &stats.BenchmarkResults},
		{`DELETE FROM deltas WHERE created_at < ?`, &stats.Deltas},
	}
	for _, t := range targets {
		res, err := tx.ExecContext(ctx, t.query, cutoff)
		if err != nil {
			return PurgeStats{}, fmt.Errorf("failed to purge: %w", err)
		}
		*t.count, _ = res.RowsAffected()
	}

	if err := tx.Commit(); err != nil {
		return PurgeStats{}, fmt.Errorf("failed to commit purge: %w", err)
	}
	return stats, nil
}
