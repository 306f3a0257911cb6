package analysis

import (
	"math"
	"sort"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/types"
)

const (
	platinumThreshold = 90.0
	goldThreshold     = 75.0
	silverThreshold   = 60.0

	// weightEpsilon treats a floating remainder this small as nothing left
	weightEpsilon = 1e-9
)

// DefaultWeights returns the built-in weight table. It sums to 1.0.
func DefaultWeights() map[string]float64 {
	return map[string]float64{
		"readme":        0.15,
		"agent_context": 0.10,
		"pre_commit":    0.10,
		"ci_config":     0.15,
		"lock_file":     0.10,
		"test_ratio":    0.15,
		"doc_ratio":     0.10,
		"gitignore":     0.05,
		"license":       0.05,
		"contributing":  0.05,
	}
}

// DefaultTierThresholds returns the stock tier breakpoints
func DefaultTierThresholds() TierThresholds {
	return TierThresholds{Platinum: platinumThreshold, Gold: goldThreshold, Silver: silverThreshold}
}

// DefaultScorerConfig returns the default weights and thresholds
func DefaultScorerConfig() ScorerConfig {
	return ScorerConfig{Weights: DefaultWeights(), Thresholds: DefaultTierThresholds()}
}

// Scorer combines assessor results into a weighted overall score and tier
type Scorer struct {
	weights    map[string]float64
	tableSum   float64
	fallback   float64
	thresholds TierThresholds
}

// NewScorer copies cfg so later changes to the caller's map do not leak in.
func NewScorer(cfg ScorerConfig) *Scorer {
	s := &Scorer{
		weights:    make(map[string]float64, len(cfg.Weights)),
		thresholds: cfg.Thresholds,
		fallback:   cfg.FallbackWeight,
	}
	for k, v := range cfg.Weights {
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		s.weights[k] = v
		s.tableSum += v
	}
	if s.thresholds == (TierThresholds{}) {
		s.thresholds = DefaultTierThresholds()
	}
	if s.fallback <= 0 {
		if len(s.weights) > 0 && s.tableSum > 0 {
			s.fallback = s.tableSum / float64(len(s.weights))
		} else {
			s.fallback = 1
		}
	}
	return s
}

// Weights returns a copy of the configured weight table
func (s *Scorer) Weights() map[string]float64 {
	out := make(map[string]float64, len(s.weights))
	for k, v := range s.weights {
		out[k] = v
	}
	return out
}

// Thresholds returns the tier breakpoints in use
func (s *Scorer) Thresholds() TierThresholds {
	return s.thresholds
}

// CalculateOverallScore returns the weighted average of the included results.
func (s *Scorer) CalculateOverallScore(results []types.AssessorResult) float64 {
	return s.Score(results).Overall
}

// Score computes the overall score together with its per-assessor breakdown.
//
// Results whose status is error or skipped are excluded and the weights of
// the remaining results are renormalized to sum to 1. When nothing remains
// (or every remaining weight is zero) the overall score is 0 and the tier is
// the lowest one.
func (s *Scorer) Score(results []types.AssessorResult) ScoreResult {
	included := make([]types.AssessorResult, 0, len(results))
	for _, r := range results {
		if r.Status.Included() {
			included = append(included, r)
		}
	}

	out := ScoreResult{
		Included:      len(included),
		Excluded:      len(results) - len(included),
		Contributions: []types.Contribution{},
	}

	implicit := s.implicitWeight(included)
	weights := make([]float64, len(included))
	for i, r := range included {
		if w, ok := s.weights[r.AssessorName]; ok {
			weights[i] = w
		} else {
			weights[i] = implicit
		}
		out.TotalWeight += weights[i]
	}

	if len(included) == 0 || out.TotalWeight <= weightEpsilon {
		out.TotalWeight = 0
		out.Tier = s.GetPerformanceTier(0)
		return out
	}

	sum := 0.0
	for i, r := range included {
		score := clip(r.Score, 0, 100)
		norm := weights[i] / out.TotalWeight
		sum += norm * score
		out.Contributions = append(out.Contributions, types.Contribution{
			AssessorName:     r.AssessorName,
			Weight:           weights[i],
			NormalizedWeight: norm,
			Score:            score,
			Contribution:     norm * score,
		})
	}
	sort.SliceStable(out.Contributions, func(i, j int) bool {
		return out.Contributions[i].Contribution > out.Contributions[j].Contribution
	})

	out.Overall = clip(sum, 0, 100)
	out.Tier = s.GetPerformanceTier(out.Overall)
	return out
}

// implicitWeight is the weight given to each included assessor missing from
// the table: an equal share of what the table leaves of 1.0, or the fallback
// weight once the table is already full.
func (s *Scorer) implicitWeight(included []types.AssessorResult) float64 {
	unlisted := 0
	for _, r := range included {
		if _, ok := s.weights[r.AssessorName]; !ok {
			unlisted++
		}
	}
	if unlisted == 0 {
		return 0
	}
	remainder := 1 - s.tableSum
	if remainder <= weightEpsilon {
		return s.fallback
	}
	return remainder / float64(unlisted)
}

// GetPerformanceTier maps a score onto a tier. Lower bounds are inclusive.
func (s *Scorer) GetPerformanceTier(score float64) types.Tier {
	switch {
	case math.IsNaN(score):
		return types.TierNeedsImprovement
	case score >= s.thresholds.Platinum:
		return types.TierPlatinum
	case score >= s.thresholds.Gold:
		return types.TierGold
	case score >= s.thresholds.Silver:
		return types.TierSilver
	default:
		return types.TierNeedsImprovement
	}
}
