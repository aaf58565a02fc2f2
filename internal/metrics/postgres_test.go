package metrics

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/mealcart/commerce-router/internal/types"
)

func newMockStore(t *testing.T) (*PGStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewPGStore(db), mock
}

func TestPGSaveScoreBreakdown(t *testing.T) {
	store, mock := newMockStore(t)

	breakdown := types.ScoreBreakdown{
		ProviderID:    "instacart",
		Components:    map[string]float64{types.ComponentPrice: 80},
		WeightedTotal: 72.5,
		Explanation:   "selected for competitive pricing",
	}
	componentsJSON, _ := json.Marshal(breakdown.Components)

	mock.ExpectExec("INSERT INTO score_breakdowns").
		WithArgs("order-1", "instacart", componentsJSON, 72.5, breakdown.Explanation, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveScoreBreakdown(context.Background(), "order-1", breakdown); err != nil {
		t.Fatalf("SaveScoreBreakdown failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGSaveOutcome(t *testing.T) {
	store, mock := newMockStore(t)

	minutes := 42
	recordedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	outcome := types.OrderOutcome{
		OrderID:               "order-1",
		ProviderID:            "instacart",
		WasSuccessful:         true,
		ActualDeliveryMinutes: &minutes,
		ItemsDelivered:        7,
		ItemsOrdered:          8,
		IssueTags:             []string{"substitution"},
		RecordedAt:            recordedAt,
	}

	mock.ExpectExec("INSERT INTO order_outcomes").
		WithArgs("order-1", "instacart", true, 42, 7, 8, nil, pq.Array(outcome.IssueTags), recordedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveOutcome(context.Background(), outcome); err != nil {
		t.Fatalf("SaveOutcome failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGLoadOutcomes(t *testing.T) {
	store, mock := newMockStore(t)

	recordedAt := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{
		"order_id", "provider_id", "was_successful", "actual_delivery_minutes",
		"items_delivered", "items_ordered", "user_rating", "issue_tags", "recorded_at",
	}).
		AddRow("order-2", "instacart", false, nil, 0, 8, nil, "{late}", recordedAt).
		AddRow("order-1", "instacart", true, 42, 8, 8, 5, "{}", recordedAt.Add(-time.Hour))

	mock.ExpectQuery("SELECT order_id, provider_id, was_successful").
		WithArgs("instacart").
		WillReturnRows(rows)

	outcomes, err := store.LoadOutcomes(context.Background(), "instacart")
	if err != nil {
		t.Fatalf("LoadOutcomes failed: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("LoadOutcomes = %d, want 2", len(outcomes))
	}
	if outcomes[0].ActualDeliveryMinutes != nil {
		t.Error("NULL delivery minutes should stay nil")
	}
	if outcomes[1].ActualDeliveryMinutes == nil || *outcomes[1].ActualDeliveryMinutes != 42 {
		t.Error("Delivery minutes not scanned")
	}
	if outcomes[1].UserRating == nil || *outcomes[1].UserRating != 5 {
		t.Error("User rating not scanned")
	}
	if len(outcomes[0].IssueTags) != 1 || outcomes[0].IssueTags[0] != "late" {
		t.Errorf("IssueTags = %v, want [late]", outcomes[0].IssueTags)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGLoadReliability(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	rows := sqlmock.NewRows([]string{
		"provider_id", "reliability_score", "outcome_count", "success_rate",
		"avg_delivery_minutes", "window_start", "last_outcome_recorded",
	}).AddRow("instacart", 87.5, 12, 0.9, 45.0, now.Add(-30*24*time.Hour), now)

	mock.ExpectQuery("SELECT provider_id, reliability_score").
		WithArgs("instacart").
		WillReturnRows(rows)

	record, ok, err := store.LoadReliability(context.Background(), "instacart")
	if err != nil || !ok {
		t.Fatalf("LoadReliability = (%v, %v), want a record", ok, err)
	}
	if record.ReliabilityScore != 87.5 || record.OutcomeCount != 12 {
		t.Errorf("Record = %+v, want the row values", record)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGLoadReliabilityNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT provider_id, reliability_score").
		WithArgs("unknown").
		WillReturnRows(sqlmock.NewRows([]string{
			"provider_id", "reliability_score", "outcome_count", "success_rate",
			"avg_delivery_minutes", "window_start", "last_outcome_recorded",
		}))

	record, ok, err := store.LoadReliability(context.Background(), "unknown")
	if err != nil {
		t.Fatalf("LoadReliability failed: %v", err)
	}
	if ok || record != nil {
		t.Errorf("LoadReliability = (%+v, %v), want (nil, false)", record, ok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGSaveReliabilityUpsert(t *testing.T) {
	store, mock := newMockStore(t)

	record := types.ProviderReliabilityRecord{
		ProviderID:       "instacart",
		ReliabilityScore: 87.5,
		OutcomeCount:     12,
		SuccessRate:      0.9,
	}

	mock.ExpectExec("INSERT INTO provider_reliability").
		WithArgs("instacart", 87.5, 12, 0.9, 0.0, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveReliability(context.Background(), record); err != nil {
		t.Fatalf("SaveReliability failed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestPGWeightConfigRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)

	config := types.WeightConfig{
		Name: "custom",
		Weights: map[string]float64{
			types.ComponentPrice:        0.4,
			types.ComponentSpeed:        0.2,
			types.ComponentAvailability: 0.2,
			types.ComponentMargin:       0.1,
			types.ComponentReliability:  0.1,
		},
	}
	weightsJSON, _ := json.Marshal(config.Weights)

	mock.ExpectExec("INSERT INTO weight_configs").
		WithArgs("custom", weightsJSON).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := store.SaveWeightConfig(context.Background(), config); err != nil {
		t.Fatalf("SaveWeightConfig failed: %v", err)
	}

	mock.ExpectQuery("SELECT weights FROM weight_configs").
		WithArgs("custom").
		WillReturnRows(sqlmock.NewRows([]string{"weights"}).AddRow(weightsJSON))

	loaded, ok, err := store.LoadWeightConfig(context.Background(), "custom")
	if err != nil || !ok {
		t.Fatalf("LoadWeightConfig = (%v, %v), want a config", ok, err)
	}
	if loaded.Weights[types.ComponentPrice] != 0.4 {
		t.Errorf("Price weight = %v, want 0.4", loaded.Weights[types.ComponentPrice])
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}
