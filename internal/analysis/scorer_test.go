package analysis

import (
	"math"
	"testing"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func result(name string, score float64, status types.Status) types.AssessorResult {
	return types.AssessorResult{AssessorName: name, Score: score, Status: status}
}

func TestDefaultWeightsSumToOne(t *testing.T) {
	sum := 0.0
	for _, w := range DefaultWeights() {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestCalculateOverallScore(t *testing.T) {
	tests := []struct {
		name     string
		weights  map[string]float64
		fallback float64
		results  []types.AssessorResult
		expected float64
	}{
		{
			name:    "equal weights",
			weights: map[string]float64{"assessor1": 0.5, "assessor2": 0.5},
			results: []types.AssessorResult{
				result("assessor1", 85, types.StatusSuccess),
				result("assessor2", 90, types.StatusSuccess),
			},
			expected: 87.5,
		},
		{
			name:    "uneven weights",
			weights: map[string]float64{"a": 0.75, "b": 0.25},
			results: []types.AssessorResult{
				result("a", 100, types.StatusSuccess),
				result("b", 0, types.StatusSuccess),
			},
			expected: 75,
		},
		{
			name:    "error result excluded and weights renormalized",
			weights: map[string]float64{"a": 0.5, "b": 0.25, "c": 0.25},
			results: []types.AssessorResult{
				result("a", 80, types.StatusSuccess),
				result("b", 40, types.StatusSuccess),
				result("c", 100, types.StatusError),
			},
			// (0.5*80 + 0.25*40) / 0.75
			expected: 66.66666666666667,
		},
		{
			name:    "skipped result excluded",
			weights: map[string]float64{"a": 0.5, "b": 0.5},
			results: []types.AssessorResult{
				result("a", 60, types.StatusSuccess),
				result("b", 0, types.StatusSkipped),
			},
			expected: 60,
		},
		{
			name:    "unlisted assessor gets equal share of remainder",
			weights: map[string]float64{"a": 0.6},
			results: []types.AssessorResult{
				result("a", 100, types.StatusSuccess),
				result("x", 0, types.StatusSuccess),
				result("y", 0, types.StatusSuccess),
			},
			// x and y get 0.2 each
			expected: 60,
		},
		{
			name:     "unlisted assessor uses fallback when table is full",
			weights:  map[string]float64{"a": 0.5, "b": 0.5},
			fallback: 1.0,
			results: []types.AssessorResult{
				result("a", 100, types.StatusSuccess),
				result("b", 100, types.StatusSuccess),
				result("x", 0, types.StatusSuccess),
			},
			expected: 50,
		},
		{
			name:    "scores clamped",
			weights: map[string]float64{"a": 1},
			results: []types.AssessorResult{
				result("a", 150, types.StatusSuccess),
			},
			expected: 100,
		},
		{
			name:    "all errored",
			weights: map[string]float64{"a": 0.5, "b": 0.5},
			results: []types.AssessorResult{
				result("a", 90, types.StatusError),
				result("b", 90, types.StatusError),
			},
			expected: 0,
		},
		{
			name:     "empty input",
			weights:  DefaultWeights(),
			results:  nil,
			expected: 0,
		},
		{
			name:    "only zero weights",
			weights: map[string]float64{"a": 0},
			results: []types.AssessorResult{
				result("a", 90, types.StatusSuccess),
			},
			expected: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScorer(ScorerConfig{Weights: tt.weights, FallbackWeight: tt.fallback})
			assert.InDelta(t, tt.expected, s.CalculateOverallScore(tt.results), 1e-9)
		})
	}
}

func TestScoreExampleTier(t *testing.T) {
	s := NewScorer(ScorerConfig{Weights: map[string]float64{"assessor1": 0.5, "assessor2": 0.5}})
	got := s.Score([]types.AssessorResult{
		result("assessor1", 85, types.StatusSuccess),
		result("assessor2", 90, types.StatusSuccess),
	})

	assert.Equal(t, 87.5, got.Overall)
	assert.Equal(t, types.TierGold, got.Tier)
	assert.Equal(t, "High", got.Tier.Label())
	assert.Equal(t, 2, got.Included)
	assert.Equal(t, 0, got.Excluded)
	require.Len(t, got.Contributions, 2)
	assert.Equal(t, "assessor2", got.Contributions[0].AssessorName)
	assert.InDelta(t, 0.5, got.Contributions[0].NormalizedWeight, 1e-9)
}

func TestScoreAllExcludedFallsToLowestTier(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())
	got := s.Score([]types.AssessorResult{result("readme", 100, types.StatusError)})

	assert.Equal(t, 0.0, got.Overall)
	assert.Equal(t, types.TierNeedsImprovement, got.Tier)
	assert.Equal(t, 1, got.Excluded)
	assert.NotNil(t, got.Contributions)
	assert.Empty(t, got.Contributions)
}

func TestGetPerformanceTier(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	tests := []struct {
		score float64
		tier  types.Tier
	}{
		{100, types.TierPlatinum},
		{90, types.TierPlatinum},
		{89.99, types.TierGold},
		{75, types.TierGold},
		{74.99, types.TierSilver},
		{60, types.TierSilver},
		{59.99, types.TierNeedsImprovement},
		{0, types.TierNeedsImprovement},
		{math.NaN(), types.TierNeedsImprovement},
	}

	for _, tt := range tests {
		t.Run(string(tt.tier), func(t *testing.T) {
			assert.Equal(t, tt.tier, s.GetPerformanceTier(tt.score), "score %v", tt.score)
		})
	}
}

func TestGetPerformanceTierMonotonic(t *testing.T) {
	s := NewScorer(DefaultScorerConfig())

	prev := -1
	for i := 0; i <= 10000; i++ {
		rank := s.GetPerformanceTier(float64(i) / 100).Rank()
		require.GreaterOrEqual(t, rank, prev, "tier rank decreased at score %.2f", float64(i)/100)
		prev = rank
	}
}

func TestCustomThresholds(t *testing.T) {
	s := NewScorer(ScorerConfig{
		Weights:    DefaultWeights(),
		Thresholds: TierThresholds{Platinum: 95, Gold: 80, Silver: 50},
	})

	assert.Equal(t, types.TierGold, s.GetPerformanceTier(94))
	assert.Equal(t, types.TierSilver, s.GetPerformanceTier(55))
	assert.Equal(t, TierThresholds{Platinum: 95, Gold: 80, Silver: 50}, s.Thresholds())
}

func TestNewScorerCopiesWeights(t *testing.T) {
	weights := map[string]float64{"a": 1}
	s := NewScorer(ScorerConfig{Weights: weights})
	weights["a"] = 0

	assert.Equal(t, 1.0, s.Weights()["a"])
	assert.Equal(t, DefaultTierThresholds(), s.Thresholds())
}
