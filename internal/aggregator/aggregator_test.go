package aggregator

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/providers/mock"
	"github.com/mealcart/commerce-router/internal/types"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	return logger
}

func testCart() *types.CartRequest {
	return &types.CartRequest{
		Items: []types.LineItem{
			{Name: "milk", Quantity: 2},
			{Name: "bread", Quantity: 1},
		},
		Location: types.Location{PostalCode: "12345"},
	}
}

func TestAggregateCollectsAllProviders(t *testing.T) {
	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("gamma")})
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("alpha")})
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("beta")})

	quotes, errs, err := agg.Aggregate(context.Background(), testCart())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("Expected no provider errors, got %v", errs)
	}

	// Quotes come back sorted by provider id regardless of completion order.
	got := make([]string, len(quotes))
	for i, q := range quotes {
		got[i] = q.ProviderID
	}
	if !reflect.DeepEqual(got, []string{"alpha", "beta", "gamma"}) {
		t.Errorf("Quote order = %v, want [alpha beta gamma]", got)
	}
}

func TestAggregateToleratesPartialFailure(t *testing.T) {
	failing := mock.NewMockProvider("failing")
	failing.Err = errors.New("gateway exploded")

	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("healthy")})
	agg.RegisterProvider(ProviderEntry{Provider: failing})

	quotes, errs, err := agg.Aggregate(context.Background(), testCart())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(quotes) != 1 || quotes[0].ProviderID != "healthy" {
		t.Errorf("Expected a single healthy quote, got %v", quotes)
	}

	failErr, ok := errs["failing"]
	if !ok {
		t.Fatalf("Expected error entry for failing provider, got %v", errs)
	}
	if !errors.Is(failErr, types.ErrProviderUnavailable) {
		t.Errorf("Expected provider_unavailable, got %v", failErr)
	}
}

func TestAggregateAllFail(t *testing.T) {
	a := mock.NewMockProvider("a")
	a.Err = errors.New("down")
	b := mock.NewMockProvider("b")
	b.Err = errors.New("also down")

	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: a})
	agg.RegisterProvider(ProviderEntry{Provider: b})

	quotes, errs, err := agg.Aggregate(context.Background(), testCart())
	if quotes != nil {
		t.Errorf("Expected no quotes, got %v", quotes)
	}
	if len(errs) != 2 {
		t.Errorf("Expected two error entries, got %v", errs)
	}

	var noProviders *types.NoProvidersError
	if !errors.As(err, &noProviders) {
		t.Fatalf("Expected NoProvidersError, got %v", err)
	}
	if len(noProviders.ProviderErrors) != 2 {
		t.Errorf("Expected error map with two entries, got %v", noProviders.ProviderErrors)
	}
}

func TestAggregateNoProvidersRegistered(t *testing.T) {
	agg := NewAggregator(testLogger())

	_, _, err := agg.Aggregate(context.Background(), testCart())
	var noProviders *types.NoProvidersError
	if !errors.As(err, &noProviders) {
		t.Fatalf("Expected NoProvidersError, got %v", err)
	}
}

func TestAggregateProviderTimeout(t *testing.T) {
	slow := mock.NewMockProvider("slow")
	slow.Latency = 200 * time.Millisecond

	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("fast")})
	agg.RegisterProvider(ProviderEntry{Provider: slow, Timeout: 20 * time.Millisecond})

	quotes, errs, err := agg.Aggregate(context.Background(), testCart())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	if len(quotes) != 1 || quotes[0].ProviderID != "fast" {
		t.Errorf("Expected only the fast quote, got %v", quotes)
	}

	slowErr, ok := errs["slow"]
	if !ok {
		t.Fatalf("Expected timeout entry for slow provider, got %v", errs)
	}
	if !errors.Is(slowErr, types.ErrProviderTimeout) {
		t.Errorf("Expected provider_timeout, got %v", slowErr)
	}
}

func TestAggregateMockFallback(t *testing.T) {
	failing := mock.NewMockProvider("flaky")
	failing.Err = errors.New("upstream 500")

	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: failing, MockFallback: true})

	quotes, errs, err := agg.Aggregate(context.Background(), testCart())
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}
	if len(errs) != 0 {
		t.Errorf("Fallback quote should clear the provider error, got %v", errs)
	}

	if len(quotes) != 1 {
		t.Fatalf("Expected one fallback quote, got %d", len(quotes))
	}
	if !quotes[0].Synthetic {
		t.Error("Fallback quote should be marked synthetic")
	}
}

func TestAggregateCallerCancellation(t *testing.T) {
	slow := mock.NewMockProvider("slow")
	slow.Latency = time.Second

	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: slow})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, _, err := agg.Aggregate(ctx, testCart())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("Aggregate did not return promptly after cancellation: %v", elapsed)
	}
}

func TestAggregateDeterministicQuotes(t *testing.T) {
	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("a")})
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("b")})

	cart := testCart()
	first, _, err := agg.Aggregate(context.Background(), cart)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	second, _, err := agg.Aggregate(context.Background(), cart)
	if err != nil {
		t.Fatalf("Aggregate failed: %v", err)
	}

	for i := range first {
		if first[i].TotalCents != second[i].TotalCents {
			t.Errorf("Provider %s quote changed between identical calls", first[i].ProviderID)
		}
	}
}

func TestListAndGetProvider(t *testing.T) {
	agg := NewAggregator(testLogger())
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("b")})
	agg.RegisterProvider(ProviderEntry{Provider: mock.NewMockProvider("a")})

	if got := agg.ListProviders(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("ListProviders = %v, want [a b]", got)
	}

	if _, ok := agg.GetProvider("a"); !ok {
		t.Error("Expected provider a to be registered")
	}
	if _, ok := agg.GetProvider("missing"); ok {
		t.Error("Expected missing provider lookup to fail")
	}
}
