package mock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mealcart/commerce-router/internal/types"
)

func sampleCart() *types.CartRequest {
	return &types.CartRequest{
		Items: []types.LineItem{
			{Name: "milk", Quantity: 2},
			{Name: "eggs", Quantity: 1},
		},
		Location: types.Location{PostalCode: "01101"},
	}
}

func TestQuoteIsDeterministic(t *testing.T) {
	p := NewMockProvider("instacart")
	ctx := context.Background()

	first, err := p.GetQuote(ctx, sampleCart())
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}
	second, err := p.GetQuote(ctx, sampleCart())
	if err != nil {
		t.Fatalf("GetQuote failed: %v", err)
	}

	if first.TotalCents != second.TotalCents {
		t.Errorf("TotalCents differs across calls: %d vs %d", first.TotalCents, second.TotalCents)
	}
	if first.DeliveryEstimate != second.DeliveryEstimate {
		t.Errorf("DeliveryEstimate differs across calls")
	}
	if first.ItemsFound != 3 {
		t.Errorf("ItemsFound = %d, want 3", first.ItemsFound)
	}
	if first.TotalCents != first.SubtotalCents+first.DeliveryFeeCents+first.TaxCents {
		t.Error("TotalCents is not the sum of its parts")
	}
	if first.Synthetic {
		t.Error("Direct quote marked synthetic")
	}
}

func TestQuotesVaryByProviderName(t *testing.T) {
	ctx := context.Background()
	a, _ := NewMockProvider("alpha").GetQuote(ctx, sampleCart())
	b, _ := NewMockProvider("beta").GetQuote(ctx, sampleCart())

	if a.TotalCents == b.TotalCents && a.DeliveryEstimate == b.DeliveryEstimate {
		t.Error("Different providers produced identical quotes")
	}
}

func TestConfiguredErrorSurfaces(t *testing.T) {
	p := NewMockProvider("instacart")
	p.Err = errors.New("connection refused")

	if _, err := p.GetQuote(context.Background(), sampleCart()); err == nil {
		t.Error("GetQuote succeeded despite configured error")
	}
	if err := p.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck succeeded despite configured error")
	}
}

func TestLatencyHonorsCancellation(t *testing.T) {
	p := NewMockProvider("instacart")
	p.Latency = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := p.GetQuote(ctx, sampleCart())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Got %v, want context.DeadlineExceeded", err)
	}
	if time.Since(start) > 500*time.Millisecond {
		t.Error("GetQuote did not return promptly on cancellation")
	}
}

func TestFallbackQuoteMarkedSynthetic(t *testing.T) {
	p := NewMockProvider("instacart")
	p.Err = errors.New("upstream down")

	quote := p.FallbackQuote(sampleCart())
	if !quote.Synthetic {
		t.Error("Fallback quote not marked synthetic")
	}
	if quote.ProviderID != "instacart" {
		t.Errorf("ProviderID = %s, want instacart", quote.ProviderID)
	}
}
