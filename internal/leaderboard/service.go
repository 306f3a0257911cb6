package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/database"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/monitoring"
	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

// Period names accepted by GetLeaderboard
const (
	PeriodDaily   = "daily"
	PeriodWeekly  = "weekly"
	PeriodMonthly = "monthly"
	PeriodAllTime = "all_time"
)

// DefaultLimit is used when the caller asks for zero entries
const DefaultLimit = 50

// MaxLimit caps a single leaderboard page
const MaxLimit = 500

var periodWindows = map[string]time.Duration{
	PeriodDaily:   24 * time.Hour,
	PeriodWeekly:  7 * 24 * time.Hour,
	PeriodMonthly: 30 * 24 * time.Hour,
	PeriodAllTime: 0,
}

// Entry is one ranked repository
type Entry struct {
	Rank               int        `json:"rank"`
	AssessmentID       string     `json:"assessment_id"`
	RepoName           string     `json:"repo_name"`
	RepoPath           string     `json:"repo_path"`
	RepoURL            string     `json:"repo_url,omitempty"`
	PrimaryLanguage    string     `json:"primary_language,omitempty"`
	Score              float64    `json:"score"`
	CertificationLevel types.Tier `json:"certification_level"`
	Performance        string     `json:"performance"`
	AssessedAt         time.Time  `json:"assessed_at"`
}

// Response represents the response for leaderboard queries
type Response struct {
	Entries     []Entry   `json:"entries"`
	Total       int       `json:"total"`
	Period      string    `json:"period"`
	PeriodStart time.Time `json:"period_start,omitempty"`
	PeriodEnd   time.Time `json:"period_end"`
}

// Store is the read side the leaderboard ranks from
type Store interface {
	LatestScores(ctx context.Context, since time.Time, limit int) ([]database.LatestScore, error)
}

// Service handles leaderboard operations
type Service struct {
	store   Store
	cache   *Cache
	logger  *monitoring.Logger
	metrics *monitoring.Metrics
	now     func() time.Time
}

// NewService creates a leaderboard service. cache may be nil.
func NewService(store Store, cache *Cache, logger *monitoring.Logger, metrics *monitoring.Metrics) *Service {
	if logger == nil {
		logger = monitoring.NewLogger("info")
	}
	return &Service{store: store, cache: cache, logger: logger, metrics: metrics, now: time.Now}
}

// ValidPeriod reports whether period is a known leaderboard window
func ValidPeriod(period string) bool {
	_, ok := periodWindows[period]
	return ok
}

// GetLeaderboard ranks repositories by their latest overall score within
// period. Equal scores share a rank.
func (s *Service) GetLeaderboard(ctx context.Context, period string, limit int) (*Response, error) {
	window, ok := periodWindows[period]
	if !ok {
		return nil, fmt.Errorf("unknown leaderboard period %q", period)
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	if s.cache != nil {
		if resp, hit := s.cache.Get(period, limit); hit {
			s.metrics.RecordCache("leaderboard", "hit")
			return resp, nil
		}
		s.metrics.RecordCache("leaderboard", "miss")
	}

	end := s.now().UTC()
	var start time.Time
	if window > 0 {
		start = end.Add(-window)
	}

	scores, err := s.store.LatestScores(ctx, start, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load scores: %w", err)
	}

	resp := &Response{
		Entries:     rank(scores),
		Total:       len(scores),
		Period:      period,
		PeriodStart: start,
		PeriodEnd:   end,
	}
	if s.cache != nil {
		s.cache.Set(period, limit, resp)
	}
	return resp, nil
}

// Invalidate drops cached rankings, typically after a new assessment is saved
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// rank assigns standard competition ranks (1, 1, 3) to scores already
// sorted best first
func rank(scores []database.LatestScore) []Entry {
	entries := make([]Entry, len(scores))
	for i, sc := range scores {
		r := i + 1
		if i > 0 && sc.OverallScore == scores[i-1].OverallScore {
			r = entries[i-1].Rank
		}
		entries[i] = Entry{
			Rank:               r,
			AssessmentID:       sc.AssessmentID,
			RepoName:           sc.RepoName,
			RepoPath:           sc.RepoPath,
			RepoURL:            sc.RepoURL,
			PrimaryLanguage:    sc.PrimaryLanguage,
			Score:              sc.OverallScore,
			CertificationLevel: sc.CertificationLevel,
			Performance:        sc.CertificationLevel.Label(),
			AssessedAt:         sc.AssessedAt,
		}
	}
	return entries
}
