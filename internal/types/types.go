package types

import (
	"encoding/json"
	"time"
)

// Status is the outcome of a single assessor run
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusSkipped Status = "skipped"
)

// Included reports whether a result with this status takes part in scoring
func (s Status) Included() bool {
	return s == StatusSuccess
}

// Tier is a named performance bucket derived from an overall score
type Tier string

const (
	TierPlatinum         Tier = "Platinum"
	TierGold             Tier = "Gold"
	TierSilver           Tier = "Silver"
	TierNeedsImprovement Tier = "Needs Improvement"
)

// Rank orders tiers from lowest (0) to highest (3)
func (t Tier) Rank() int {
	switch t {
	case TierPlatinum:
		return 3
	case TierGold:
		return 2
	case TierSilver:
		return 1
	default:
		return 0
	}
}

// Label is the performance name used alongside the certification name
func (t Tier) Label() string {
	switch t {
	case TierPlatinum:
		return "Elite"
	case TierGold:
		return "High"
	case TierSilver:
		return "Medium"
	default:
		return "Low"
	}
}

// Repository describes the scanned source tree. Built once per scan.
type Repository struct {
	URL             string            `json:"url,omitempty"`
	Path            string            `json:"path"`
	Name            string            `json:"name"`
	PrimaryLanguage string            `json:"primary_language,omitempty"`
	Languages       []string          `json:"languages"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Finding is one assessor's scored verdict for a repository attribute
type Finding struct {
	AttributeID string   `json:"attribute_id"`
	Name        string   `json:"name"`
	Category    string   `json:"category,omitempty"`
	Score       float64  `json:"score"`
	Evidence    []string `json:"evidence"`
	Status      Status   `json:"status"`
	Remediation string   `json:"remediation,omitempty"`
}

// AssessorResult is the scorer's input unit, one per assessor per assessment
type AssessorResult struct {
	AssessmentID string             `json:"assessment_id"`
	AssessorName string             `json:"assessor_name"`
	Score        float64            `json:"score"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
	Status       Status             `json:"status"`
	ExecutedAt   time.Time          `json:"executed_at"`
}

// Contribution is the share one assessor had in an overall score
type Contribution struct {
	AssessorName     string  `json:"assessor_name"`
	Weight           float64 `json:"weight"`
	NormalizedWeight float64 `json:"normalized_weight"`
	Score            float64 `json:"score"`
	Contribution     float64 `json:"contribution"`
}

// Assessment is the full set of findings plus the derived score and tier
type Assessment struct {
	ID                 string         `json:"id"`
	Repository         Repository     `json:"repository"`
	Findings           []Finding      `json:"findings"`
	OverallScore       float64        `json:"overall_score"`
	AttributesTotal    int            `json:"attributes_total"`
	AttributesAssessed int            `json:"attributes_assessed"`
	AttributesSkipped  int            `json:"attributes_skipped"`
	AttributesErrored  int            `json:"attributes_errored"`
	CertificationLevel Tier           `json:"certification_level"`
	Breakdown          []Contribution `json:"breakdown"`
	AssessedAt         time.Time      `json:"assessed_at"`
	DurationMs         int64          `json:"duration_ms"`
}

// CacheEntry is the on-disk record of the file cache
type CacheEntry struct {
	CachedAt time.Time       `json:"cached_at"`
	Skill    json.RawMessage `json:"skill"`
}

// TbenchResult is produced by the batch runner for each successful job
type TbenchResult struct {
	Repository  string                 `json:"repository"`
	Score       float64                `json:"score"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
	CompletedAt time.Time              `json:"completed_at"`
}

// DeltaResult is the score change attributed to one assessor on one repository
type DeltaResult struct {
	AssessorID string  `json:"assessor_id"`
	DeltaScore float64 `json:"delta_score"`
	Repository string  `json:"repository,omitempty"`
}

// AssessorImpact summarizes the deltas of one assessor across repositories
type AssessorImpact struct {
	AssessorID  string  `json:"assessor_id"`
	MeanDelta   float64 `json:"mean_delta"`
	MedianDelta float64 `json:"median_delta"`
	StdDelta    float64 `json:"std_delta"`
	SampleSize  int     `json:"sample_size"`
	Significant bool    `json:"significant"`
}

// AssessRequest is the body of POST /api/v1/assessments
type AssessRequest struct {
	Path string `json:"path" binding:"required"`
}

// BenchmarkRequest is the body of POST /api/v1/benchmarks
type BenchmarkRequest struct {
	Paths []string `json:"paths" binding:"required,min=1"`
}

// DeltaRequest is the body of POST /api/v1/deltas
type DeltaRequest struct {
	Deltas []DeltaResult `json:"deltas" binding:"required,min=1"`
}
