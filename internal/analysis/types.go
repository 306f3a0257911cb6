package analysis

import "github.com/ZanzyTHEbar/readiness-o-meter/internal/types"

// ScoreResult is the full outcome of one scoring pass
type ScoreResult struct {
	Overall       float64              `json:"overall_score"`
	Tier          types.Tier           `json:"tier"`
	Included      int                  `json:"included"`
	Excluded      int                  `json:"excluded"`
	TotalWeight   float64              `json:"total_weight"`
	Contributions []types.Contribution `json:"contributions"`
}

// TierThresholds are the inclusive lower bounds of each tier
type TierThresholds struct {
	Platinum float64 `json:"platinum" yaml:"platinum"`
	Gold     float64 `json:"gold" yaml:"gold"`
	Silver   float64 `json:"silver" yaml:"silver"`
}

// ScorerConfig is injected into the Scorer at construction
type ScorerConfig struct {
	// Weights maps assessor IDs to their weight. Missing assessors share
	// whatever is left of 1.0, or get FallbackWeight when nothing is left.
	Weights        map[string]float64
	Thresholds     TierThresholds
	FallbackWeight float64
}
