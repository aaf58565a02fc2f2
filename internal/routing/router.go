package routing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/aggregator"
	"github.com/mealcart/commerce-router/internal/metrics"
	"github.com/mealcart/commerce-router/internal/reliability"
	"github.com/mealcart/commerce-router/internal/scoring"
	"github.com/mealcart/commerce-router/internal/types"
)

// storeRetryAttempts bounds best-effort metrics store writes. Store
// failures are logged, never surfaced on the order path.
const storeRetryAttempts = 3

// Router drives a cart request through quote aggregation, scoring, and
// the order lifecycle, and feeds recorded outcomes back into the
// reliability learner.
type Router struct {
	aggregator *aggregator.Aggregator
	learner    *reliability.Learner
	tokens     *TokenStore
	store      metrics.Store
	logger     *logrus.Logger
}

// RouteResult is returned from a successful routing call.
type RouteResult struct {
	OrderID        string                  `json:"order_id"`
	Provider       string                  `json:"provider"`
	Quote          *types.Quote            `json:"quote"`
	ScoreBreakdown types.ScoreBreakdown    `json:"score_breakdown"`
	Alternatives   []types.ScoreBreakdown  `json:"alternatives"`
	Token          types.ConfirmationToken `json:"confirmation_token"`
	ProviderErrors map[string]string       `json:"provider_errors,omitempty"`
}

// ConfirmResult is returned from a successful confirmation.
type ConfirmResult struct {
	OrderID      string `json:"order_id"`
	Provider     string `json:"provider"`
	TrackingInfo string `json:"provider_tracking_info"`
}

// NewRouter creates the routing engine.
func NewRouter(agg *aggregator.Aggregator, learner *reliability.Learner, store metrics.Store, tokenTTL time.Duration, logger *logrus.Logger) *Router {
	return &Router{
		aggregator: agg,
		learner:    learner,
		tokens:     NewTokenStore(tokenTTL),
		store:      store,
		logger:     logger,
	}
}

// Aggregator exposes the underlying provider set for management endpoints.
func (r *Router) Aggregator() *aggregator.Aggregator {
	return r.aggregator
}

// Learner exposes the reliability learner for inspection endpoints.
func (r *Router) Learner() *reliability.Learner {
	return r.learner
}

// RouteOrder fans the cart out to every enabled provider, scores the
// quotes that came back, and mints a time-limited confirmation token for
// the winner. Individual provider failures are reported alongside the
// result; the call only fails when no provider produced a quote.
func (r *Router) RouteOrder(ctx context.Context, cart *types.CartRequest) (*RouteResult, error) {
	start := time.Now()

	if err := cart.Validate(); err != nil {
		return nil, err
	}
	if cart.ID == "" {
		cart.ID = uuid.NewString()
	}
	if cart.Timestamp.IsZero() {
		cart.Timestamp = time.Now()
	}

	weights, err := r.resolveWeights(ctx, cart.WeightPreset)
	if err != nil {
		return nil, err
	}

	quotes, providerErrs, err := r.aggregator.Aggregate(ctx, cart)
	if err != nil {
		return nil, err
	}

	breakdowns, winnerID, err := scoring.Score(quotes, weights, r.learner.Snapshot())
	if err != nil {
		return nil, err
	}

	orderID := uuid.NewString()
	route := &types.OrderRoute{
		OrderID:     orderID,
		Cart:        *cart,
		Breakdowns:  breakdowns,
		ProviderID:  winnerID,
		CreatedAt:   time.Now(),
		WeightsUsed: weights,
	}
	token := r.tokens.Issue(route)

	for _, breakdown := range breakdowns {
		breakdown := breakdown
		r.saveWithRetry(ctx, "score breakdown", func(ctx context.Context) error {
			return r.store.SaveScoreBreakdown(ctx, orderID, breakdown)
		})
	}

	result := &RouteResult{
		OrderID:        orderID,
		Provider:       winnerID,
		Quote:          breakdowns[0].Quote,
		ScoreBreakdown: breakdowns[0],
		Alternatives:   breakdowns[1:],
		Token:          token,
		ProviderErrors: stringifyErrors(providerErrs),
	}

	r.logger.WithFields(logrus.Fields{
		"order_id":         orderID,
		"provider":         winnerID,
		"candidates":       len(quotes),
		"failed_providers": len(providerErrs),
		"weight_preset":    weights.Name,
		"total_cents":      result.Quote.TotalCents,
		"duration_ms":      time.Since(start).Milliseconds(),
	}).Info("Order routed")

	return result, nil
}

// Confirm transitions the token QUOTED -> CONFIRMED. Exactly one of two
// concurrent confirms can succeed; the loser sees TokenAlreadyUsed.
func (r *Router) Confirm(ctx context.Context, tokenValue string) (*ConfirmResult, error) {
	route, err := r.tokens.Confirm(tokenValue)
	if err != nil {
		return nil, err
	}

	r.logger.WithFields(logrus.Fields{
		"order_id": route.OrderID,
		"provider": route.ProviderID,
	}).Info("Order confirmed")

	return &ConfirmResult{
		OrderID:      route.OrderID,
		Provider:     route.ProviderID,
		TrackingInfo: route.ProviderID + ":" + route.OrderID,
	}, nil
}

// Cancel transitions the token to CANCELLED from QUOTED or CONFIRMED.
func (r *Router) Cancel(ctx context.Context, tokenValue string) error {
	route, err := r.tokens.Cancel(tokenValue)
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"order_id": route.OrderID,
		"provider": route.ProviderID,
	}).Info("Order cancelled")
	return nil
}

// Complete closes out a CONFIRMED order.
func (r *Router) Complete(ctx context.Context, tokenValue string) error {
	route, err := r.tokens.Complete(tokenValue)
	if err != nil {
		return err
	}

	r.logger.WithFields(logrus.Fields{
		"order_id": route.OrderID,
		"provider": route.ProviderID,
	}).Info("Order completed")
	return nil
}

// RecordOutcome feeds an order outcome into the reliability learner and
// persists it. Recording the same (orderId, providerId) twice is a
// successful no-op. Store failures never fail the call: reliability
// learning is best-effort.
func (r *Router) RecordOutcome(ctx context.Context, outcome types.OrderOutcome) error {
	if err := outcome.Validate(); err != nil {
		return err
	}
	if outcome.RecordedAt.IsZero() {
		outcome.RecordedAt = time.Now()
	}

	err := r.learner.RecordOutcome(outcome)
	if errors.Is(err, types.ErrOutcomeAlreadyRecorded) {
		r.logger.WithFields(logrus.Fields{
			"order_id": outcome.OrderID,
			"provider": outcome.ProviderID,
		}).Debug("Duplicate outcome ignored")
		return nil
	}
	if err != nil {
		return err
	}

	r.saveWithRetry(ctx, "order outcome", func(ctx context.Context) error {
		return r.store.SaveOutcome(ctx, outcome)
	})
	r.saveWithRetry(ctx, "reliability record", func(ctx context.Context) error {
		return r.store.SaveReliability(ctx, r.learner.Record(outcome.ProviderID))
	})

	r.logger.WithFields(logrus.Fields{
		"order_id":   outcome.OrderID,
		"provider":   outcome.ProviderID,
		"successful": outcome.WasSuccessful,
	}).Info("Outcome recorded")
	return nil
}

// WarmFromStore reloads stored outcomes into the learner, typically at
// startup so reliability survives restarts.
func (r *Router) WarmFromStore(ctx context.Context, providerIDs []string) {
	for _, providerID := range providerIDs {
		outcomes, err := r.store.LoadOutcomes(ctx, providerID)
		if err != nil {
			r.logger.WithError(err).WithField("provider", providerID).Warn("Failed to load stored outcomes")
			continue
		}
		loaded := 0
		for _, outcome := range outcomes {
			if err := r.learner.RecordOutcome(outcome); err == nil {
				loaded++
			}
		}
		if loaded > 0 {
			r.logger.WithFields(logrus.Fields{
				"provider": providerID,
				"outcomes": loaded,
			}).Info("Reliability history warmed from store")
		}
	}
}

// resolveWeights prefers a store override for the preset name and falls
// back to the built-in presets.
func (r *Router) resolveWeights(ctx context.Context, presetName string) (types.WeightConfig, error) {
	if presetName == "" {
		presetName = scoring.DefaultPreset
	}

	if override, ok, err := r.store.LoadWeightConfig(ctx, presetName); err != nil {
		r.logger.WithError(err).WithField("preset", presetName).Warn("Weight preset lookup failed, using built-in")
	} else if ok {
		if err := override.Validate(); err != nil {
			return types.WeightConfig{}, err
		}
		return *override, nil
	}

	return scoring.LookupPreset(presetName)
}

// saveWithRetry runs a store write with bounded retries. Failures are
// logged and swallowed; metrics persistence never blocks the order path.
func (r *Router) saveWithRetry(ctx context.Context, what string, save func(context.Context) error) {
	var err error
	for attempt := 1; attempt <= storeRetryAttempts; attempt++ {
		if err = save(ctx); err == nil {
			return
		}
		select {
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		case <-ctx.Done():
			r.logger.WithError(ctx.Err()).Warnf("Gave up persisting %s", what)
			return
		}
	}
	r.logger.WithError(err).Warnf("Failed to persist %s after %d attempts", what, storeRetryAttempts)
}

func stringifyErrors(errs map[string]error) map[string]string {
	if len(errs) == 0 {
		return nil
	}
	out := make(map[string]string, len(errs))
	for providerID, err := range errs {
		out[providerID] = err.Error()
	}
	return out
}
