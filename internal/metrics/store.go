package metrics

import (
	"context"

	"github.com/mealcart/commerce-router/internal/types"
)

// Store is the durable record of score breakdowns, order outcomes, and
// weight presets. The routing core only depends on this interface;
// persistence technology is a deployment choice.
type Store interface {
	// SaveScoreBreakdown persists one provider's breakdown for a routing
	// decision, for audit.
	SaveScoreBreakdown(ctx context.Context, orderID string, breakdown types.ScoreBreakdown) error

	// SaveOutcome persists an order outcome. Saving the same
	// (orderID, providerID) pair twice is a no-op, never a double count.
	SaveOutcome(ctx context.Context, outcome types.OrderOutcome) error

	// LoadOutcomes returns the stored outcomes for a provider, newest
	// first, used to warm the reliability learner at startup.
	LoadOutcomes(ctx context.Context, providerID string) ([]types.OrderOutcome, error)

	// LoadReliability returns the stored reliability record for a
	// provider, if any.
	LoadReliability(ctx context.Context, providerID string) (*types.ProviderReliabilityRecord, bool, error)

	// SaveReliability persists a provider's current reliability record.
	SaveReliability(ctx context.Context, record types.ProviderReliabilityRecord) error

	// LoadWeightConfig returns a stored weight preset override by name.
	LoadWeightConfig(ctx context.Context, name string) (*types.WeightConfig, bool, error)

	// SaveWeightConfig stores a weight preset override.
	SaveWeightConfig(ctx context.Context, config types.WeightConfig) error
}
