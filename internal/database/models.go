package database

import (
	"time"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// AssessmentSummary is one row of the assessment listing
type AssessmentSummary struct {
	ID                 string     `json:"id" db:"id"`
	RepoName           string     `json:"repo_name" db:"repo_name"`
	RepoPath           string     `json:"repo_path" db:"repo_path"`
	RepoURL            string     `json:"repo_url,omitempty" db:"repo_url"`
	PrimaryLanguage    string     `json:"primary_language,omitempty" db:"primary_language"`
	OverallScore       float64    `json:"overall_score" db:"overall_score"`
	CertificationLevel types.Tier `json:"certification_level" db:"certification_level"`
	AssessedAt         time.Time  `json:"assessed_at" db:"assessed_at"`
}

// LatestScore is the most recent assessment of a repository path
type LatestScore struct {
	AssessmentID       string     `json:"assessment_id"`
	RepoName           string     `json:"repo_name"`
	RepoPath           string     `json:"repo_path"`
	RepoURL            string     `json:"repo_url,omitempty"`
	PrimaryLanguage    string     `json:"primary_language,omitempty"`
	OverallScore       float64    `json:"overall_score"`
	CertificationLevel types.Tier `json:"certification_level"`
	AssessedAt         time.Time  `json:"assessed_at"`
}

// BenchmarkRecord is a stored batch result
type BenchmarkRecord struct {
	ID      string `json:"id" db:"id"`
	BatchID string `json:"batch_id" db:"batch_id"`
	types.TbenchResult
}

// PurgeStats counts rows removed by a retention pass
type PurgeStats struct {
	Assessments      int64 `json:"assessments"`
	BenchmarkResults int64 `json:"benchmark_results"`
	Deltas           int64 `json:"deltas"`
}

// Total is the sum over all tables
func (p PurgeStats) Total() int64 {
	return p.Assessments + p.BenchmarkResults + p.Deltas
}

// NewBatchID returns an identifier shared by the results of one batch run
func NewBatchID() string {
	return uuid.New().String()
}
