package mock

import (
	"context"
	"hash/fnv"
	"time"

	"github.com/mealcart/commerce-router/internal/types"
)

// MockProvider generates deterministic synthetic quotes. It backs local
// development, tests, and the aggregator's mock-fallback flag.
type MockProvider struct {
	Name    string
	Latency time.Duration
	Err     error

	// CommissionRate applied to synthetic quotes.
	CommissionRate float64
}

// NewMockProvider creates a mock provider with the given name
func NewMockProvider(name string) *MockProvider {
	return &MockProvider{Name: name, CommissionRate: 0.10}
}

// GetProviderName returns the provider name
func (p *MockProvider) GetProviderName() string {
	return p.Name
}

// GetQuote returns a deterministic synthetic quote for the cart, after the
// configured latency. A configured Err is returned instead, which lets
// tests exercise timeout and failure paths.
func (p *MockProvider) GetQuote(ctx context.Context, cart *types.CartRequest) (*types.Quote, error) {
	if p.Latency > 0 {
		select {
		case <-time.After(p.Latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.Err != nil {
		return nil, p.Err
	}
	return p.synthesize(cart, false), nil
}

// FallbackQuote produces a synthetic quote when the real call failed.
func (p *MockProvider) FallbackQuote(cart *types.CartRequest) *types.Quote {
	return p.synthesize(cart, true)
}

// HealthCheck always succeeds unless a failure is configured
func (p *MockProvider) HealthCheck(ctx context.Context) error {
	return p.Err
}

// synthesize derives stable prices from the provider name and cart items
// so repeated calls for identical inputs produce identical quotes.
func (p *MockProvider) synthesize(cart *types.CartRequest, synthetic bool) *types.Quote {
	h := fnv.New32a()
	h.Write([]byte(p.Name))
	for _, item := range cart.Items {
		h.Write([]byte(item.Name))
	}
	seed := int64(h.Sum32())

	items := cart.ItemsRequested()
	subtotal := int64(items)*399 + seed%500
	fee := 399 + seed%300
	tax := subtotal / 12

	return &types.Quote{
		ProviderID:       p.Name,
		SubtotalCents:    subtotal,
		DeliveryFeeCents: fee,
		TaxCents:         tax,
		TotalCents:       subtotal + fee + tax,
		DeliveryEstimate: types.DeliveryEstimate{
			MinMinutes: int(30 + seed%20),
			MaxMinutes: int(50 + seed%30),
		},
		ItemsFound:     items,
		CommissionRate: p.CommissionRate,
		RetrievedAt:    time.Now(),
		Synthetic:      synthetic,
	}
}
