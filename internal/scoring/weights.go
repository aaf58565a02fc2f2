package scoring

import (
	"fmt"

	"github.com/mealcart/commerce-router/internal/types"
)

// Built-in weight preset names.
const (
	PresetBalanced        = "balanced"
	PresetPriceOptimized  = "price-optimized"
	PresetSpeedOptimized  = "speed-optimized"
	PresetMarginOptimized = "margin-optimized"
)

// builtinPresets are the weight configurations shipped with the router.
// Each preset's five weights sum to 1.0.
var builtinPresets = map[string]types.WeightConfig{
	PresetBalanced: {
		Name: PresetBalanced,
		Weights: map[string]float64{
			types.ComponentPrice:        0.30,
			types.ComponentSpeed:        0.15,
			types.ComponentAvailability: 0.25,
			types.ComponentMargin:       0.20,
			types.ComponentReliability:  0.10,
		},
	},
	PresetPriceOptimized: {
		Name: PresetPriceOptimized,
		Weights: map[string]float64{
			types.ComponentPrice:        0.55,
			types.ComponentSpeed:        0.10,
			types.ComponentAvailability: 0.20,
			types.ComponentMargin:       0.05,
			types.ComponentReliability:  0.10,
		},
	},
	PresetSpeedOptimized: {
		Name: PresetSpeedOptimized,
		Weights: map[string]float64{
			types.ComponentPrice:        0.15,
			types.ComponentSpeed:        0.45,
			types.ComponentAvailability: 0.20,
			types.ComponentMargin:       0.05,
			types.ComponentReliability:  0.15,
		},
	},
	PresetMarginOptimized: {
		Name: PresetMarginOptimized,
		Weights: map[string]float64{
			types.ComponentPrice:        0.15,
			types.ComponentSpeed:        0.10,
			types.ComponentAvailability: 0.20,
			types.ComponentMargin:       0.45,
			types.ComponentReliability:  0.10,
		},
	},
}

// DefaultPreset is used when a cart names no preset.
const DefaultPreset = PresetBalanced

// LookupPreset returns a built-in weight preset by name.
func LookupPreset(name string) (types.WeightConfig, error) {
	if name == "" {
		name = DefaultPreset
	}
	preset, ok := builtinPresets[name]
	if !ok {
		return types.WeightConfig{}, types.NewValidationError(fmt.Sprintf("unknown weight preset %q", name))
	}
	return preset, nil
}

// PresetNames lists the built-in preset names.
func PresetNames() []string {
	return []string{PresetBalanced, PresetPriceOptimized, PresetSpeedOptimized, PresetMarginOptimized}
}
