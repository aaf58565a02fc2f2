package reliability

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/types"
)

const (
	// NeutralScore is reported for providers with no recorded history.
	NeutralScore = 50.0

	// WindowDuration bounds the outcome history considered per provider.
	WindowDuration = 30 * 24 * time.Hour

	// DecayHalfLife controls the exponential recency weighting: an
	// outcome half this old counts twice as much. Seven days keeps the
	// score responsive to the last week without letting a single bad
	// day erase a month of history.
	DecayHalfLife = 7 * 24 * time.Hour
)

// providerHistory is one provider's rolling outcome window plus
// incrementally maintained aggregates.
type providerHistory struct {
	outcomes []types.OrderOutcome
	seen     map[string]struct{} // order ids already counted

	successCount  int
	deliverySum   float64
	deliveryCount int
	lastRecorded  time.Time
}

// Learner consumes recorded order outcomes and reduces each provider's
// rolling window into a single reliability score with recency-weighted
// decay.
type Learner struct {
	mu      sync.RWMutex
	history map[string]*providerHistory
	logger  *logrus.Logger

	// now is swappable for tests.
	now func() time.Time
}

// NewLearner creates a reliability learner
func NewLearner(logger *logrus.Logger) *Learner {
	return &Learner{
		history: make(map[string]*providerHistory),
		logger:  logger,
		now:     time.Now,
	}
}

// RecordOutcome folds one order outcome into the provider's history.
// Recording the same (orderId, providerId) pair twice is idempotent: the
// second call returns ErrOutcomeAlreadyRecorded and changes nothing.
func (l *Learner) RecordOutcome(outcome types.OrderOutcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = l.now()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.history[outcome.ProviderID]
	if !ok {
		h = &providerHistory{seen: make(map[string]struct{})}
		l.history[outcome.ProviderID] = h
	}

	if _, dup := h.seen[outcome.OrderID]; dup {
		return types.ErrOutcomeAlreadyRecorded
	}
	h.seen[outcome.OrderID] = struct{}{}

	h.outcomes = append(h.outcomes, outcome)
	if outcome.WasSuccessful {
		h.successCount++
	}
	if outcome.ActualDeliveryMinutes != nil {
		h.deliverySum += float64(*outcome.ActualDeliveryMinutes)
		h.deliveryCount++
	}
	if outcome.RecordedAt.After(h.lastRecorded) {
		h.lastRecorded = outcome.RecordedAt
	}

	l.pruneLocked(outcome.ProviderID, h)

	l.logger.WithFields(logrus.Fields{
		"provider":   outcome.ProviderID,
		"order_id":   outcome.OrderID,
		"successful": outcome.WasSuccessful,
		"outcomes":   len(h.outcomes),
	}).Debug("Outcome recorded")

	return nil
}

// GetReliability returns the provider's current reliability score in
// [0,100], or the neutral default when no history exists.
func (l *Learner) GetReliability(providerID string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h, ok := l.history[providerID]
	if !ok || len(h.outcomes) == 0 {
		return NeutralScore
	}
	return l.decayedScoreLocked(h)
}

// Snapshot returns reliability scores for every provider the learner has
// seen, for feeding the scorer in one call.
func (l *Learner) Snapshot() map[string]float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	scores := make(map[string]float64, len(l.history))
	for providerID, h := range l.history {
		if len(h.outcomes) == 0 {
			scores[providerID] = NeutralScore
			continue
		}
		scores[providerID] = l.decayedScoreLocked(h)
	}
	return scores
}

// Record returns the full reliability record for one provider.
func (l *Learner) Record(providerID string) types.ProviderReliabilityRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	record := types.ProviderReliabilityRecord{
		ProviderID:       providerID,
		ReliabilityScore: NeutralScore,
		WindowStart:      l.now().Add(-WindowDuration),
	}

	h, ok := l.history[providerID]
	if !ok || len(h.outcomes) == 0 {
		return record
	}

	record.ReliabilityScore = l.decayedScoreLocked(h)
	record.OutcomeCount = len(h.outcomes)
	record.SuccessRate = float64(h.successCount) / float64(len(h.outcomes))
	if h.deliveryCount > 0 {
		record.AvgDeliveryMinutes = h.deliverySum / float64(h.deliveryCount)
	}
	record.LastOutcomeRecorded = h.lastRecorded
	return record
}

// Providers lists provider ids with recorded history, sorted.
func (l *Learner) Providers() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]string, 0, len(l.history))
	for id := range l.history {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// decayedScoreLocked reduces the outcome window to [0,100] with
// exponential recency decay. Each outcome contributes its success value
// (100 or 0) weighted by 0.5^(age/halfLife).
func (l *Learner) decayedScoreLocked(h *providerHistory) float64 {
	now := l.now()
	var weightSum, scoreSum float64

	for _, outcome := range h.outcomes {
		age := now.Sub(outcome.RecordedAt)
		if age < 0 {
			age = 0
		}
		if age > WindowDuration {
			continue
		}
		weight := math.Pow(0.5, age.Hours()/DecayHalfLife.Hours())
		value := 0.0
		if outcome.WasSuccessful {
			value = 100.0
		}
		weightSum += weight
		scoreSum += weight * value
	}

	if weightSum == 0 {
		return NeutralScore
	}
	return scoreSum / weightSum
}

// pruneLocked drops outcomes older than the rolling window, rebuilding
// the incremental aggregates only when something actually fell out.
func (l *Learner) pruneLocked(providerID string, h *providerHistory) {
	cutoff := l.now().Add(-WindowDuration)

	kept := h.outcomes[:0]
	dropped := 0
	for _, outcome := range h.outcomes {
		if outcome.RecordedAt.Before(cutoff) {
			dropped++
			continue
		}
		kept = append(kept, outcome)
	}
	if dropped == 0 {
		return
	}
	h.outcomes = kept

	h.successCount = 0
	h.deliverySum = 0
	h.deliveryCount = 0
	for _, outcome := range h.outcomes {
		if outcome.WasSuccessful {
			h.successCount++
		}
		if outcome.ActualDeliveryMinutes != nil {
			h.deliverySum += float64(*outcome.ActualDeliveryMinutes)
			h.deliveryCount++
		}
	}

	l.logger.WithFields(logrus.Fields{
		"provider": providerID,
		"dropped":  dropped,
	}).Debug("Pruned outcomes outside rolling window")
}
