package metrics

import (
	"context"
	"sync"

	"github.com/mealcart/commerce-router/internal/types"
)

// MemoryStore is an in-memory Store used in tests and single-node
// development deployments.
type MemoryStore struct {
	mu          sync.RWMutex
	breakdowns  map[string][]types.ScoreBreakdown
	outcomes    map[string]types.OrderOutcome // keyed orderID|providerID
	byProvider  map[string][]string
	reliability map[string]types.ProviderReliabilityRecord
	weights     map[string]types.WeightConfig
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		breakdowns:  make(map[string][]types.ScoreBreakdown),
		outcomes:    make(map[string]types.OrderOutcome),
		byProvider:  make(map[string][]string),
		reliability: make(map[string]types.ProviderReliabilityRecord),
		weights:     make(map[string]types.WeightConfig),
	}
}

func outcomeKey(orderID, providerID string) string {
	return orderID + "|" + providerID
}

func (s *MemoryStore) SaveScoreBreakdown(ctx context.Context, orderID string, breakdown types.ScoreBreakdown) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.breakdowns[orderID] = append(s.breakdowns[orderID], breakdown)
	return nil
}

// Breakdowns returns the persisted breakdowns for an order.
func (s *MemoryStore) Breakdowns(orderID string) []types.ScoreBreakdown {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.ScoreBreakdown, len(s.breakdowns[orderID]))
	copy(out, s.breakdowns[orderID])
	return out
}

func (s *MemoryStore) SaveOutcome(ctx context.Context, outcome types.OrderOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := outcomeKey(outcome.OrderID, outcome.ProviderID)
	if _, exists := s.outcomes[key]; exists {
		return nil
	}
	s.outcomes[key] = outcome
	s.byProvider[outcome.ProviderID] = append(s.byProvider[outcome.ProviderID], key)
	return nil
}

func (s *MemoryStore) LoadOutcomes(ctx context.Context, providerID string) ([]types.OrderOutcome, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := s.byProvider[providerID]
	outcomes := make([]types.OrderOutcome, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		outcomes = append(outcomes, s.outcomes[keys[i]])
	}
	return outcomes, nil
}

func (s *MemoryStore) LoadReliability(ctx context.Context, providerID string) (*types.ProviderReliabilityRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.reliability[providerID]
	if !ok {
		return nil, false, nil
	}
	return &record, true, nil
}

func (s *MemoryStore) SaveReliability(ctx context.Context, record types.ProviderReliabilityRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reliability[record.ProviderID] = record
	return nil
}

func (s *MemoryStore) LoadWeightConfig(ctx context.Context, name string) (*types.WeightConfig, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	config, ok := s.weights[name]
	if !ok {
		return nil, false, nil
	}
	return &config, true, nil
}

func (s *MemoryStore) SaveWeightConfig(ctx context.Context, config types.WeightConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.weights[config.Name] = config
	return nil
}
