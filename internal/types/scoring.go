package types

import (
	"fmt"
	"math"
)

// Score component names used by WeightConfig and ScoreBreakdown.
const (
	ComponentPrice        = "price"
	ComponentSpeed        = "speed"
	ComponentAvailability = "availability"
	ComponentMargin       = "margin"
	ComponentReliability  = "reliability"
)

// ScoreComponents lists the five scoring components in canonical order.
var ScoreComponents = []string{
	ComponentPrice,
	ComponentSpeed,
	ComponentAvailability,
	ComponentMargin,
	ComponentReliability,
}

// weightSumTolerance is the floating tolerance for the weight-sum invariant.
const weightSumTolerance = 1e-6

// WeightConfig is a named preset mapping the five score components to
// non-negative weights that sum to 1.0.
type WeightConfig struct {
	Name    string             `json:"name" yaml:"name"`
	Weights map[string]float64 `json:"weights" yaml:"weights"`
}

// Validate enforces the weight invariants: every component present,
// non-negative, summing to 1.0 within tolerance.
func (w WeightConfig) Validate() error {
	sum := 0.0
	for _, component := range ScoreComponents {
		weight, ok := w.Weights[component]
		if !ok {
			return NewValidationError(fmt.Sprintf("weight preset %q missing component %q", w.Name, component))
		}
		if weight < 0 {
			return NewValidationError(fmt.Sprintf("weight preset %q has negative weight for %q", w.Name, component))
		}
		sum += weight
	}
	if len(w.Weights) != len(ScoreComponents) {
		return NewValidationError(fmt.Sprintf("weight preset %q has unknown components", w.Name))
	}
	if math.Abs(sum-1.0) > weightSumTolerance {
		return NewValidationError(fmt.Sprintf("weight preset %q weights sum to %v, want 1.0", w.Name, sum))
	}
	return nil
}

// ScoreBreakdown is one provider's scored result for a routing decision:
// per-component scores in [0,100], the weighted total, and a short
// explanation. Immutable once produced, persisted for audit.
type ScoreBreakdown struct {
	ProviderID    string             `json:"provider_id"`
	Components    map[string]float64 `json:"components"`
	WeightedTotal float64            `json:"weighted_total"`
	Explanation   string             `json:"explanation,omitempty"`
	Quote         *Quote             `json:"quote,omitempty"`
}
