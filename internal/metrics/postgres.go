package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/mealcart/commerce-router/internal/types"
)

// PGStore persists routing metrics into Postgres.
//
// Expected schema:
//
//	score_breakdowns(order_id, provider_id, components JSONB, weighted_total, explanation, created_at)
//	order_outcomes(order_id, provider_id, was_successful, actual_delivery_minutes,
//	               items_delivered, items_ordered, user_rating, issue_tags, recorded_at,
//	               PRIMARY KEY (order_id, provider_id))
//	provider_reliability(provider_id PRIMARY KEY, reliability_score, outcome_count,
//	                     success_rate, avg_delivery_minutes, window_start, last_outcome_recorded)
//	weight_configs(name PRIMARY KEY, weights JSONB)
type PGStore struct {
	db *sql.DB
}

// NewPGStore constructs a Postgres-backed store.
func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// Ping verifies connectivity to Postgres.
func (p *PGStore) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PGStore) SaveScoreBreakdown(ctx context.Context, orderID string, breakdown types.ScoreBreakdown) error {
	componentsJSON, err := json.Marshal(breakdown.Components)
	if err != nil {
		return fmt.Errorf("marshal components: %w", err)
	}

	q := `
		INSERT INTO score_breakdowns (order_id, provider_id, components, weighted_total, explanation, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = p.db.ExecContext(ctx, q,
		orderID,
		breakdown.ProviderID,
		componentsJSON,
		breakdown.WeightedTotal,
		breakdown.Explanation,
		time.Now().UTC(),
	)
	return err
}

// SaveOutcome inserts an outcome row. The (order_id, provider_id) primary
// key plus ON CONFLICT DO NOTHING makes repeated saves a no-op.
func (p *PGStore) SaveOutcome(ctx context.Context, outcome types.OrderOutcome) error {
	recordedAt := outcome.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}

	q := `
		INSERT INTO order_outcomes
		  (order_id, provider_id, was_successful, actual_delivery_minutes,
		   items_delivered, items_ordered, user_rating, issue_tags, recorded_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (order_id, provider_id) DO NOTHING
	`
	_, err := p.db.ExecContext(ctx, q,
		outcome.OrderID,
		outcome.ProviderID,
		outcome.WasSuccessful,
		nullableInt(outcome.ActualDeliveryMinutes),
		outcome.ItemsDelivered,
		outcome.ItemsOrdered,
		nullableInt(outcome.UserRating),
		pq.Array(outcome.IssueTags),
		recordedAt,
	)
	return err
}

func (p *PGStore) LoadOutcomes(ctx context.Context, providerID string) ([]types.OrderOutcome, error) {
	q := `
		SELECT order_id, provider_id, was_successful, actual_delivery_minutes,
		       items_delivered, items_ordered, user_rating, issue_tags, recorded_at
		FROM order_outcomes
		WHERE provider_id = $1
		ORDER BY recorded_at DESC
	`
	rows, err := p.db.QueryContext(ctx, q, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var outcomes []types.OrderOutcome
	for rows.Next() {
		var (
			outcome  types.OrderOutcome
			delivery sql.NullInt64
			rating   sql.NullInt64
			tags     pq.StringArray
		)
		if err := rows.Scan(
			&outcome.OrderID,
			&outcome.ProviderID,
			&outcome.WasSuccessful,
			&delivery,
			&outcome.ItemsDelivered,
			&outcome.ItemsOrdered,
			&rating,
			&tags,
			&outcome.RecordedAt,
		); err != nil {
			return nil, err
		}
		if delivery.Valid {
			v := int(delivery.Int64)
			outcome.ActualDeliveryMinutes = &v
		}
		if rating.Valid {
			v := int(rating.Int64)
			outcome.UserRating = &v
		}
		outcome.IssueTags = tags
		outcomes = append(outcomes, outcome)
	}
	return outcomes, rows.Err()
}

func (p *PGStore) LoadReliability(ctx context.Context, providerID string) (*types.ProviderReliabilityRecord, bool, error) {
	q := `
		SELECT provider_id, reliability_score, outcome_count, success_rate,
		       avg_delivery_minutes, window_start, last_outcome_recorded
		FROM provider_reliability
		WHERE provider_id = $1
	`
	var record types.ProviderReliabilityRecord
	err := p.db.QueryRowContext(ctx, q, providerID).Scan(
		&record.ProviderID,
		&record.ReliabilityScore,
		&record.OutcomeCount,
		&record.SuccessRate,
		&record.AvgDeliveryMinutes,
		&record.WindowStart,
		&record.LastOutcomeRecorded,
	)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &record, true, nil
}

func (p *PGStore) SaveReliability(ctx context.Context, record types.ProviderReliabilityRecord) error {
	q := `
		INSERT INTO provider_reliability
		  (provider_id, reliability_score, outcome_count, success_rate,
		   avg_delivery_minutes, window_start, last_outcome_recorded)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (provider_id) DO UPDATE SET
		  reliability_score = EXCLUDED.reliability_score,
		  outcome_count = EXCLUDED.outcome_count,
		  success_rate = EXCLUDED.success_rate,
		  avg_delivery_minutes = EXCLUDED.avg_delivery_minutes,
		  window_start = EXCLUDED.window_start,
		  last_outcome_recorded = EXCLUDED.last_outcome_recorded
	`
	_, err := p.db.ExecContext(ctx, q,
		record.ProviderID,
		record.ReliabilityScore,
		record.OutcomeCount,
		record.SuccessRate,
		record.AvgDeliveryMinutes,
		record.WindowStart,
		record.LastOutcomeRecorded,
	)
	return err
}

func (p *PGStore) LoadWeightConfig(ctx context.Context, name string) (*types.WeightConfig, bool, error) {
	var weightsJSON []byte
	err := p.db.QueryRowContext(ctx, `SELECT weights FROM weight_configs WHERE name = $1`, name).Scan(&weightsJSON)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	config := types.WeightConfig{Name: name}
	if err := json.Unmarshal(weightsJSON, &config.Weights); err != nil {
		return nil, false, fmt.Errorf("unmarshal weights for preset %q: %w", name, err)
	}
	return &config, true, nil
}

func (p *PGStore) SaveWeightConfig(ctx context.Context, config types.WeightConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}
	weightsJSON, err := json.Marshal(config.Weights)
	if err != nil {
		return fmt.Errorf("marshal weights: %w", err)
	}

	q := `
		INSERT INTO weight_configs (name, weights)
		VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET weights = EXCLUDED.weights
	`
	_, err = p.db.ExecContext(ctx, q, config.Name, weightsJSON)
	return err
}

func nullableInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
