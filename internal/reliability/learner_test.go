package reliability

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/types"
)

func newTestLearner(now time.Time) *Learner {
	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel)
	l := NewLearner(logger)
	l.now = func() time.Time { return now }
	return l
}

func outcome(orderID, providerID string, successful bool, recordedAt time.Time) types.OrderOutcome {
	return types.OrderOutcome{
		OrderID:       orderID,
		ProviderID:    providerID,
		WasSuccessful: successful,
		RecordedAt:    recordedAt,
	}
}

func TestNeutralScoreWithoutHistory(t *testing.T) {
	l := newTestLearner(time.Now())

	if got := l.GetReliability("instacart"); got != NeutralScore {
		t.Errorf("GetReliability = %v, want %v", got, NeutralScore)
	}
}

func TestAllSuccessesScoreFull(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	for i := 0; i < 5; i++ {
		err := l.RecordOutcome(outcome(fmt.Sprintf("order-%d", i), "instacart", true, now.Add(-time.Duration(i)*time.Hour)))
		if err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	if got := l.GetReliability("instacart"); math.Abs(got-100) > 1e-9 {
		t.Errorf("GetReliability = %v, want 100", got)
	}
}

func TestAllFailuresScoreZero(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	for i := 0; i < 5; i++ {
		if err := l.RecordOutcome(outcome(fmt.Sprintf("order-%d", i), "doordash", false, now.Add(-time.Hour))); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	if got := l.GetReliability("doordash"); got != 0 {
		t.Errorf("GetReliability = %v, want 0", got)
	}
}

func TestRecencyDecayFavorsFresherOutcomes(t *testing.T) {
	now := time.Now()

	// One fresh failure against one 28-day-old success: the failure's
	// weight dominates and drags the score under 50.
	l := newTestLearner(now)
	if err := l.RecordOutcome(outcome("old-success", "p", true, now.Add(-28*24*time.Hour))); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := l.RecordOutcome(outcome("fresh-failure", "p", false, now.Add(-time.Hour))); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	lowScore := l.GetReliability("p")
	if lowScore >= 50 {
		t.Errorf("Fresh failure should dominate: score = %v", lowScore)
	}

	// The mirror image: a fresh success against an old failure.
	l = newTestLearner(now)
	if err := l.RecordOutcome(outcome("old-failure", "p", false, now.Add(-28*24*time.Hour))); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := l.RecordOutcome(outcome("fresh-success", "p", true, now.Add(-time.Hour))); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if highScore := l.GetReliability("p"); highScore <= 50 {
		t.Errorf("Fresh success should dominate: score = %v", highScore)
	}
}

func TestHalfLifeWeighting(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	// A success exactly one half-life old (weight 0.5) against a fresh
	// failure (weight 1.0): expected score 100*0.5/1.5.
	if err := l.RecordOutcome(outcome("aged", "p", true, now.Add(-DecayHalfLife))); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := l.RecordOutcome(outcome("fresh", "p", false, now)); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	want := 100 * 0.5 / 1.5
	if got := l.GetReliability("p"); math.Abs(got-want) > 1e-6 {
		t.Errorf("GetReliability = %v, want %v", got, want)
	}
}

func TestOutcomesOutsideWindowIgnored(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	if err := l.RecordOutcome(outcome("ancient", "p", false, now.Add(-40*24*time.Hour))); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := l.RecordOutcome(outcome("recent", "p", true, now.Add(-time.Hour))); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	if got := l.GetReliability("p"); math.Abs(got-100) > 1e-9 {
		t.Errorf("GetReliability = %v, want 100 (old failure pruned)", got)
	}

	record := l.Record("p")
	if record.OutcomeCount != 1 {
		t.Errorf("OutcomeCount = %d, want 1 after pruning", record.OutcomeCount)
	}
}

func TestDuplicateOutcomeRejected(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	first := outcome("order-1", "p", true, now)
	if err := l.RecordOutcome(first); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	// Same order id, flipped result: must be rejected and leave the
	// aggregates untouched.
	dup := outcome("order-1", "p", false, now)
	if err := l.RecordOutcome(dup); !errors.Is(err, types.ErrOutcomeAlreadyRecorded) {
		t.Fatalf("Expected ErrOutcomeAlreadyRecorded, got %v", err)
	}

	if got := l.GetReliability("p"); math.Abs(got-100) > 1e-9 {
		t.Errorf("Duplicate changed the score: %v", got)
	}
	if record := l.Record("p"); record.OutcomeCount != 1 {
		t.Errorf("Duplicate changed the outcome count: %d", record.OutcomeCount)
	}
}

func TestSameOrderDifferentProvidersBothCount(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	if err := l.RecordOutcome(outcome("order-1", "a", true, now)); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := l.RecordOutcome(outcome("order-1", "b", false, now)); err != nil {
		t.Fatalf("RecordOutcome for second provider failed: %v", err)
	}

	if got := l.Providers(); !reflect.DeepEqual(got, []string{"a", "b"}) {
		t.Errorf("Providers = %v, want [a b]", got)
	}
}

func TestRecordAggregates(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	minutes := func(m int) *int { return &m }

	outcomes := []types.OrderOutcome{
		{OrderID: "o1", ProviderID: "p", WasSuccessful: true, ActualDeliveryMinutes: minutes(40), RecordedAt: now.Add(-time.Hour)},
		{OrderID: "o2", ProviderID: "p", WasSuccessful: true, ActualDeliveryMinutes: minutes(60), RecordedAt: now.Add(-2 * time.Hour)},
		{OrderID: "o3", ProviderID: "p", WasSuccessful: false, RecordedAt: now.Add(-3 * time.Hour)},
	}
	for _, o := range outcomes {
		if err := l.RecordOutcome(o); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}

	record := l.Record("p")
	if record.OutcomeCount != 3 {
		t.Errorf("OutcomeCount = %d, want 3", record.OutcomeCount)
	}
	if math.Abs(record.SuccessRate-2.0/3.0) > 1e-9 {
		t.Errorf("SuccessRate = %v, want 2/3", record.SuccessRate)
	}
	if math.Abs(record.AvgDeliveryMinutes-50) > 1e-9 {
		t.Errorf("AvgDeliveryMinutes = %v, want 50", record.AvgDeliveryMinutes)
	}
	if !record.LastOutcomeRecorded.Equal(now.Add(-time.Hour)) {
		t.Errorf("LastOutcomeRecorded = %v, want %v", record.LastOutcomeRecorded, now.Add(-time.Hour))
	}
}

func TestSnapshotCoversAllProviders(t *testing.T) {
	now := time.Now()
	l := newTestLearner(now)

	if err := l.RecordOutcome(outcome("o1", "a", true, now)); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := l.RecordOutcome(outcome("o2", "b", false, now)); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	snapshot := l.Snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("Snapshot size = %d, want 2", len(snapshot))
	}
	if snapshot["a"] != 100 || snapshot["b"] != 0 {
		t.Errorf("Snapshot = %v, want a:100 b:0", snapshot)
	}
}

func TestRecordOutcomeValidation(t *testing.T) {
	l := newTestLearner(time.Now())

	if err := l.RecordOutcome(types.OrderOutcome{ProviderID: "p"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("Expected validation error for missing order id, got %v", err)
	}
	if err := l.RecordOutcome(types.OrderOutcome{OrderID: "o"}); !errors.Is(err, types.ErrValidation) {
		t.Errorf("Expected validation error for missing provider id, got %v", err)
	}
}
