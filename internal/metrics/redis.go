package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mealcart/commerce-router/internal/types"
)

// RedisStore is a Redis-backed Store for deployments that run without
// Postgres. Breakdowns and outcomes are kept as JSON values under
// namespaced keys; outcome dedup uses SETNX semantics.
type RedisStore struct {
	client *redis.Client

	// BreakdownTTL bounds how long audit breakdowns are retained.
	BreakdownTTL time.Duration
}

// NewRedisStore creates a Redis-backed store
func NewRedisStore(opt *redis.Options) *RedisStore {
	return &RedisStore{
		client:       redis.NewClient(opt),
		BreakdownTTL: 90 * 24 * time.Hour,
	}
}

// Ping verifies connectivity to Redis.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func breakdownRedisKey(orderID string) string {
	return "router:breakdowns:" + orderID
}

func outcomeRedisKey(orderID, providerID string) string {
	return fmt.Sprintf("router:outcome:%s:%s", orderID, providerID)
}

func outcomeIndexKey(providerID string) string {
	return "router:outcomes:" + providerID
}

func reliabilityRedisKey(providerID string) string {
	return "router:reliability:" + providerID
}

func weightsRedisKey(name string) string {
	return "router:weights:" + name
}

func (s *RedisStore) SaveScoreBreakdown(ctx context.Context, orderID string, breakdown types.ScoreBreakdown) error {
	payload, err := json.Marshal(breakdown)
	if err != nil {
		return fmt.Errorf("marshal breakdown: %w", err)
	}
	key := breakdownRedisKey(orderID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.BreakdownTTL)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SaveOutcome(ctx context.Context, outcome types.OrderOutcome) error {
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("marshal outcome: %w", err)
	}

	// SETNX provides the dedup guarantee: the first writer wins, repeats
	// are silent no-ops.
	set, err := s.client.SetNX(ctx, outcomeRedisKey(outcome.OrderID, outcome.ProviderID), payload, 0).Result()
	if err != nil {
		return err
	}
	if !set {
		return nil
	}
	return s.client.RPush(ctx, outcomeIndexKey(outcome.ProviderID), outcomeRedisKey(outcome.OrderID, outcome.ProviderID)).Err()
}

func (s *RedisStore) LoadOutcomes(ctx context.Context, providerID string) ([]types.OrderOutcome, error) {
	keys, err := s.client.LRange(ctx, outcomeIndexKey(providerID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	outcomes := make([]types.OrderOutcome, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		payload, err := s.client.Get(ctx, keys[i]).Bytes()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, err
		}
		var outcome types.OrderOutcome
		if err := json.Unmarshal(payload, &outcome); err != nil {
			return nil, fmt.Errorf("unmarshal outcome %s: %w", keys[i], err)
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, nil
}

func (s *RedisStore) LoadReliability(ctx context.Context, providerID string) (*types.ProviderReliabilityRecord, bool, error) {
	payload, err := s.client.Get(ctx, reliabilityRedisKey(providerID)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var record types.ProviderReliabilityRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, false, fmt.Errorf("unmarshal reliability record: %w", err)
	}
	return &record, true, nil
}

func (s *RedisStore) SaveReliability(ctx context.Context, record types.ProviderReliabilityRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal reliability record: %w", err)
	}
	return s.client.Set(ctx, reliabilityRedisKey(record.ProviderID), payload, 0).Err()
}

func (s *RedisStore) LoadWeightConfig(ctx context.Context, name string) (*types.WeightConfig, bool, error) {
	payload, err := s.client.Get(ctx, weightsRedisKey(name)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	config := types.WeightConfig{Name: name}
	if err := json.Unmarshal(payload, &config.Weights); err != nil {
		return nil, false, fmt.Errorf("unmarshal weight preset %q: %w", name, err)
	}
	return &config, true, nil
}

func (s *RedisStore) SaveWeightConfig(ctx context.Context, config types.WeightConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(config.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}
	return s.client.Set(ctx, weightsRedisKey(config.Name), payload, 0).Err()
}
