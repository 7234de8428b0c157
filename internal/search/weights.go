package search

import (
	"fmt"
	"math"
)

// Weights controls how graph structure adjusts a similarity score.
type Weights struct {
	// DepthDecay discounts functions far from an entry point:
	// depthWeight(d) = 1 / (1 + DepthDecay*d).
	DepthDecay float64 `json:"depth_decay" mapstructure:"depth_decay"`
	// DependentBoost rewards heavily called functions:
	// boost(n) = min(MaxBoost, 1 + DependentBoost*ln(1+n)).
	DependentBoost float64 `json:"dependent_boost" mapstructure:"dependent_boost"`
	// MaxBoost caps the relationship boost.
	MaxBoost float64 `json:"max_boost" mapstructure:"max_boost"`
}

// DefaultWeights returns the weights used when none are configured.
func DefaultWeights() Weights {
	return Weights{
		DepthDecay:     0.25,
		DependentBoost: 0.15,
		MaxBoost:       2.0,
	}
}

// Validate rejects weights that would break monotonicity.
func (w Weights) Validate() error {
	if !(w.DepthDecay >= 0) || math.IsInf(w.DepthDecay, 1) {
		return fmt.Errorf("depth_decay must be >= 0, got %v", w.DepthDecay)
	}
	if !(w.DependentBoost >= 0) || math.IsInf(w.DependentBoost, 1) {
		return fmt.Errorf("dependent_boost must be >= 0, got %v", w.DependentBoost)
	}
	if !(w.MaxBoost >= 1) {
		return fmt.Errorf("max_boost must be >= 1, got %v", w.MaxBoost)
	}
	return nil
}

// DepthWeight is 1 at depth 0 and non-increasing in depth.
func (w Weights) DepthWeight(depth int) float64 {
	if depth <= 0 {
		return 1
	}
	return 1 / (1 + w.DepthDecay*float64(depth))
}

// RelationshipBoost is 1 with no dependents and non-decreasing in their count.
func (w Weights) RelationshipBoost(dependents int) float64 {
	if dependents <= 0 {
		return 1
	}
	return math.Min(w.MaxBoost, 1+w.DependentBoost*math.Log1p(float64(dependents)))
}
