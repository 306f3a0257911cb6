package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	db, err := NewDB(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRepository(db)
}

func sampleAssessment(id, path string, score float64, at time.Time) types.Assessment {
	return types.Assessment{
		ID: id,
		Repository: types.Repository{
			Path:            path,
			Name:            path,
			PrimaryLanguage: "Go",
			Languages:       []string{"Go"},
			Metadata:        map[string]string{"file_count": "12"},
		},
		Findings: []types.Finding{
			{AttributeID: "readme", Name: "README", Score: 100, Status: types.StatusSuccess, Evidence: []string{"README.md found"}},
			{AttributeID: "lock_file", Name: "Lock file", Score: 0, Status: types.StatusSkipped, Evidence: []string{}},
		},
		OverallScore:       score,
		AttributesTotal:    2,
		AttributesAssessed: 1,
		AttributesSkipped:  1,
		CertificationLevel: types.TierGold,
		Breakdown:          []types.Contribution{{AssessorName: "readme", Weight: 0.15, NormalizedWeight: 1, Score: 100, Contribution: 100}},
		AssessedAt:         at,
		DurationMs:         42,
	}
}

func TestSaveAndGetAssessment(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	want := sampleAssessment("a1", "/srv/alpha", 87.5, at)
	require.NoError(t, repo.SaveAssessment(ctx, want))

	got, err := repo.GetAssessment(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, want.Repository, got.Repository)
	assert.Equal(t, want.Findings, got.Findings)
	assert.Equal(t, want.Breakdown, got.Breakdown)
	assert.Equal(t, types.TierGold, got.CertificationLevel)
	assert.True(t, at.Equal(got.AssessedAt))

	_, err = repo.GetAssessment(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestListAssessmentsNewestFirst(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		a := sampleAssessment(fmt.Sprintf("a%d", i), fmt.Sprintf("/r%d", i), float64(50+i), base.Add(time.Duration(i)*time.Hour))
		require.NoError(t, repo.SaveAssessment(ctx, a))
	}

	list, err := repo.ListAssessments(ctx, 2, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a2", list[0].ID)
	assert.Equal(t, "a1", list[1].ID)

	rest, err := repo.ListAssessments(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, "a0", rest[0].ID)
}

func TestLatestScoresKeepsNewestPerPath(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Now().UTC().Add(-time.Hour)

	require.NoError(t, repo.SaveAssessment(ctx, sampleAssessment("old", "/alpha", 95, base)))
	require.NoError(t, repo.SaveAssessment(ctx, sampleAssessment("new", "/alpha", 40, base.Add(time.Minute))))
	require.NoError(t, repo.SaveAssessment(ctx, sampleAssessment("beta", "/beta", 70, base)))

	scores, err := repo.LatestScores(ctx, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, scores, 2)
	assert.Equal(t, "beta", scores[0].AssessmentID)
	assert.Equal(t, "new", scores[1].AssessmentID)

	recent, err := repo.LatestScores(ctx, time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestBenchmarkResultsAndDeltas(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	batch := NewBatchID()

	results := []types.TbenchResult{
		{Repository: "/a", Score: 60, CompletedAt: time.Now().UTC()},
		{Repository: "/b", Score: 70, Metadata: map[string]interface{}{"tasks": float64(3)}, CompletedAt: time.Now().UTC().Add(time.Second)},
	}
	require.NoError(t, repo.SaveBenchmarkResults(ctx, batch, results))

	stored, err := repo.ListBenchmarkResults(ctx, batch)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "/a", stored[0].Repository)
	assert.Equal(t, float64(3), stored[1].Metadata["tasks"])

	deltas := []types.DeltaResult{
		{AssessorID: "readme", DeltaScore: 0.1, Repository: "/a"},
		{AssessorID: "license", DeltaScore: -0.02},
		{AssessorID: "readme", DeltaScore: 0.2, Repository: "/b"},
	}
	require.NoError(t, repo.SaveDeltas(ctx, deltas))

	all, err := repo.ListDeltas(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, deltas, all)

	readme, err := repo.ListDeltas(ctx, "readme")
	require.NoError(t, err)
	assert.Len(t, readme, 2)
}

func TestPurgeOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.SaveAssessment(ctx, sampleAssessment("stale", "/a", 50, now.Add(-48*time.Hour))))
	require.NoError(t, repo.SaveAssessment(ctx, sampleAssessment("fresh", "/b", 50, now)))
	require.NoError(t, repo.SaveBenchmarkResults(ctx, "b1", []types.TbenchResult{
		{Repository: "/a", Score: 1, CompletedAt: now.Add(-72 * time.Hour)},
	}))

	stats, err := repo.PurgeOlderThan(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Assessments)
	assert.Equal(t, int64(1), stats.BenchmarkResults)
	assert.Equal(t, int64(2), stats.Total())

	_, err = repo.GetAssessment(ctx, "stale")
	assert.ErrorIs(t, err, ErrNotFound)

	var orphans int
	require.NoError(t, repo.db.QueryRow(`SELECT COUNT(*) FROM findings WHERE assessment_id = 'stale'`).Scan(&orphans))
	assert.Zero(t, orphans)

	noop, err := repo.PurgeOlderThan(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, noop.Total())
}

func TestRetentionServiceCleanup(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	require.NoError(t, repo.SaveAssessment(ctx, sampleAssessment("old", "/a", 10, time.Now().Add(-100*24*time.Hour))))

	svc := NewRetentionService(repo, 90*24*time.Hour, nil)
	stats, err := svc.Cleanup(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Assessments)
}
