package config

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ZanzyTHEbar/readiness-o-meter/internal/analysis"
	apperrors "github.com/ZanzyTHEbar/readiness-o-meter/internal/errors"
)

// Scoring is a scoring profile as written in YAML
type Scoring struct {
	Weights        map[string]float64       `yaml:"weights" json:"weights,omitempty"`
	Thresholds     *analysis.TierThresholds `yaml:"thresholds" json:"thresholds,omitempty"`
	FallbackWeight *float64                 `yaml:"fallback_weight" json:"fallback_weight,omitempty"`
	Disabled       []string                 `yaml:"disabled" json:"disabled,omitempty"`
}

// LoadScoring reads and validates a profile. An empty path yields the
// zero profile, which maps to the built-in defaults.
func LoadScoring(path string) (Scoring, error) {
	if path == "" {
		return Scoring{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Scoring{}, apperrors.NewConfigurationError("Cannot read scoring profile", err, map[string]string{"path": path})
	}
	return ParseScoring(data)
}

// ParseScoring validates raw YAML against the profile schema and decodes it
func ParseScoring(data []byte) (Scoring, error) {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Scoring{}, apperrors.NewConfigurationError("Scoring profile is not valid YAML", err, nil)
	}
	if doc == nil {
		return Scoring{}, nil
	}

	// the schema validator only takes JSON
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return Scoring{}, apperrors.NewConfigurationError("Scoring profile cannot be converted to JSON", err, nil)
	}
	if fields, err := validateSchema(asJSON); err != nil {
		return Scoring{}, apperrors.NewConfigurationError("Scoring profile schema failed to load", err, nil)
	} else if len(fields) > 0 {
		return Scoring{}, apperrors.NewConfigurationError("Scoring profile is invalid", nil, fields)
	}

	var s Scoring
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scoring{}, apperrors.NewConfigurationError("Scoring profile is invalid", err, nil)
	}
	if fields := s.check(); len(fields) > 0 {
		return Scoring{}, apperrors.NewConfigurationError("Scoring profile is invalid", nil, fields)
	}
	return s, nil
}

func (s Scoring) check() map[string]string {
	fields := map[string]string{}
	if t := s.Thresholds; t != nil {
		if !(t.Platinum > t.Gold && t.Gold > t.Silver) {
			fields["thresholds"] = "must satisfy platinum > gold > silver"
		}
	}
	sum := 0.0
	for _, w := range s.Weights {
		sum += w
	}
	if sum > 1.0+1e-9 {
		fields["weights"] = fmt.Sprintf("must sum to at most 1.0, got %.4f", sum)
	}
	return fields
}

// ScorerConfig turns the profile into scorer settings. Profile weights
// replace the default table when any are given.
func (s Scoring) ScorerConfig() analysis.ScorerConfig {
	cfg := analysis.DefaultScorerConfig()
	if len(s.Weights) > 0 {
		cfg.Weights = make(map[string]float64, len(s.Weights))
		for k, v := range s.Weights {
			cfg.Weights[k] = v
		}
	}
	if s.Thresholds != nil {
		cfg.Thresholds = *s.Thresholds
	}
	if s.FallbackWeight != nil {
		cfg.FallbackWeight = *s.FallbackWeight
	}
	return cfg
}
