package providers

import (
	"context"

	"github.com/mealcart/commerce-router/internal/types"
)

// FulfillmentProvider is the uniform capability every fulfillment gateway
// implements. Provider-specific authentication, retries, and API shape
// live entirely behind this interface.
type FulfillmentProvider interface {
	GetProviderName() string
	GetQuote(ctx context.Context, cart *types.CartRequest) (*types.Quote, error)
	HealthCheck(ctx context.Context) error
}

// FallbackQuoter is implemented by providers that can produce a synthetic
// best-effort quote when the real call fails. The aggregator only consults
// it for providers configured with the mock-fallback flag.
type FallbackQuoter interface {
	FallbackQuote(cart *types.CartRequest) *types.Quote
}
