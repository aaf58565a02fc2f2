package aggregator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/providers"
	"github.com/mealcart/commerce-router/internal/types"
)

// DefaultProviderTimeout bounds each provider call when no override is
// configured.
const DefaultProviderTimeout = 10 * time.Second

// ProviderEntry is one registered provider plus its aggregation policy.
type ProviderEntry struct {
	Provider providers.FulfillmentProvider

	// Timeout overrides the aggregator default for this provider.
	Timeout time.Duration

	// MockFallback substitutes a synthetic quote when the real call
	// fails, so routing can still proceed. Off by default.
	MockFallback bool
}

// Aggregator fans a cart request out to all enabled providers
// concurrently and collects whichever quotes come back in time.
type Aggregator struct {
	mu             sync.RWMutex
	entries        map[string]ProviderEntry
	defaultTimeout time.Duration
	logger         *logrus.Logger
}

// NewAggregator creates a new aggregator instance
func NewAggregator(logger *logrus.Logger) *Aggregator {
	return &Aggregator{
		entries:        make(map[string]ProviderEntry),
		defaultTimeout: DefaultProviderTimeout,
		logger:         logger,
	}
}

// SetDefaultTimeout overrides the per-provider timeout default.
func (a *Aggregator) SetDefaultTimeout(d time.Duration) {
	if d > 0 {
		a.defaultTimeout = d
	}
}

// RegisterProvider adds a provider to the aggregation set
func (a *Aggregator) RegisterProvider(entry ProviderEntry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	name := entry.Provider.GetProviderName()
	a.entries[name] = entry
	a.logger.WithFields(logrus.Fields{
		"provider":      name,
		"mock_fallback": entry.MockFallback,
	}).Info("Provider registered")
}

// ListProviders returns all registered provider names, sorted.
func (a *Aggregator) ListProviders() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.entries))
	for name := range a.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetProvider returns a registered provider by name.
func (a *Aggregator) GetProvider(name string) (providers.FulfillmentProvider, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	entry, ok := a.entries[name]
	if !ok {
		return nil, false
	}
	return entry.Provider, true
}

type providerResult struct {
	providerID string
	quote      *types.Quote
	err        error
}

// Aggregate issues one quote request per enabled provider concurrently,
// each bounded by its timeout. A provider that errors or times out is
// excluded, not fatal: it contributes an entry to the returned error map.
// The quote list is sorted by provider id so output is deterministic
// regardless of completion order. When every provider fails the call
// returns a NoProvidersError carrying the full error map.
func (a *Aggregator) Aggregate(ctx context.Context, cart *types.CartRequest) ([]types.Quote, map[string]error, error) {
	a.mu.RLock()
	entries := make(map[string]ProviderEntry, len(a.entries))
	for name, entry := range a.entries {
		entries[name] = entry
	}
	defaultTimeout := a.defaultTimeout
	a.mu.RUnlock()

	if len(entries) == 0 {
		return nil, nil, &types.NoProvidersError{ProviderErrors: map[string]error{}}
	}

	results := make(chan providerResult, len(entries))
	var wg sync.WaitGroup

	for name, entry := range entries {
		wg.Add(1)
		go func(name string, entry ProviderEntry) {
			defer wg.Done()

			timeout := entry.Timeout
			if timeout == 0 {
				timeout = defaultTimeout
			}
			callCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			start := time.Now()
			quote, err := entry.Provider.GetQuote(callCtx, cart)
			elapsed := time.Since(start)

			if err != nil {
				err = classifyProviderError(name, err, callCtx)
				a.logger.WithError(err).WithFields(logrus.Fields{
					"provider":    name,
					"duration_ms": elapsed.Milliseconds(),
				}).Warn("Provider quote failed")

				if entry.MockFallback {
					if fb, ok := entry.Provider.(providers.FallbackQuoter); ok {
						a.logger.WithField("provider", name).Info("Substituting mock fallback quote")
						results <- providerResult{providerID: name, quote: fb.FallbackQuote(cart)}
						return
					}
				}
				results <- providerResult{providerID: name, err: err}
				return
			}

			a.logger.WithFields(logrus.Fields{
				"provider":    name,
				"total_cents": quote.TotalCents,
				"duration_ms": elapsed.Milliseconds(),
			}).Debug("Provider quote collected")
			results <- providerResult{providerID: name, quote: quote}
		}(name, entry)
	}

	// Close the results channel once every provider call has returned or
	// been abandoned at its deadline. The buffered channel means no
	// goroutine blocks past cancellation.
	go func() {
		wg.Wait()
		close(results)
	}()

	quotes := make([]types.Quote, 0, len(entries))
	errs := make(map[string]error)
collect:
	for {
		select {
		case result, ok := <-results:
			if !ok {
				break collect
			}
			if result.err != nil {
				errs[result.providerID] = result.err
				continue
			}
			quotes = append(quotes, *result.quote)
		case <-ctx.Done():
			// Caller cancelled the whole aggregation. Outstanding provider
			// calls drain into the buffered channel and are discarded.
			return nil, errs, ctx.Err()
		}
	}

	sort.Slice(quotes, func(i, j int) bool {
		return quotes[i].ProviderID < quotes[j].ProviderID
	})

	if len(quotes) == 0 {
		return nil, errs, &types.NoProvidersError{ProviderErrors: errs}
	}
	return quotes, errs, nil
}

// classifyProviderError maps raw gateway failures onto the routing error
// taxonomy, distinguishing deadline misses from outright failures.
func classifyProviderError(providerID string, err error, callCtx context.Context) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return types.NewProviderTimeoutError(providerID, err)
	}
	return types.NewProviderUnavailableError(providerID, err)
}
