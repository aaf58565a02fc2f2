package types

import "time"

// TokenState is the lifecycle state of a confirmation token.
type TokenState string

const (
	TokenStateQuoted    TokenState = "QUOTED"
	TokenStateConfirmed TokenState = "CONFIRMED"
	TokenStateCancelled TokenState = "CANCELLED"
	TokenStateExpired   TokenState = "EXPIRED"
	TokenStateCompleted TokenState = "COMPLETED"
)

// Terminal reports whether no further transitions are allowed from this
// state. CONFIRMED is live: it may still move to CANCELLED or COMPLETED.
func (s TokenState) Terminal() bool {
	switch s {
	case TokenStateCancelled, TokenStateExpired, TokenStateCompleted:
		return true
	}
	return false
}

// ConfirmationToken is a single-use, time-limited handle binding a caller
// to a routing decision until confirmed or cancelled.
type ConfirmationToken struct {
	Value     string     `json:"value"`
	OrderID   string     `json:"order_id"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	State     TokenState `json:"state"`
}

// OrderRoute is the result of one routing decision.
type OrderRoute struct {
	OrderID     string            `json:"order_id"`
	Cart        CartRequest       `json:"cart"`
	Breakdowns  []ScoreBreakdown  `json:"breakdowns"`
	ProviderID  string            `json:"provider_id"`
	Token       ConfirmationToken `json:"confirmation_token"`
	CreatedAt   time.Time         `json:"created_at"`
	WeightsUsed WeightConfig      `json:"weights_used"`
}

// OrderOutcome records how a concluded order actually went. At most one
// outcome is counted per (OrderID, ProviderID) pair.
type OrderOutcome struct {
	OrderID               string    `json:"order_id"`
	ProviderID            string    `json:"provider_id"`
	WasSuccessful         bool      `json:"was_successful"`
	ActualDeliveryMinutes *int      `json:"actual_delivery_minutes,omitempty"`
	ItemsDelivered        int       `json:"items_delivered"`
	ItemsOrdered          int       `json:"items_ordered"`
	UserRating            *int      `json:"user_rating,omitempty"` // 1-5
	IssueTags             []string  `json:"issue_tags,omitempty"`
	RecordedAt            time.Time `json:"recorded_at"`
}

// Validate checks outcome fields before recording.
func (o *OrderOutcome) Validate() error {
	if o.OrderID == "" {
		return NewValidationError("outcome requires an order id")
	}
	if o.ProviderID == "" {
		return NewValidationError("outcome requires a provider id")
	}
	if o.UserRating != nil && (*o.UserRating < 1 || *o.UserRating > 5) {
		return NewValidationError("user rating must be between 1 and 5")
	}
	return nil
}

// ProviderReliabilityRecord is a provider's rolling outcome window reduced
// to a single reliability score in [0,100].
type ProviderReliabilityRecord struct {
	ProviderID          string    `json:"provider_id"`
	ReliabilityScore    float64   `json:"reliability_score"`
	OutcomeCount        int       `json:"outcome_count"`
	SuccessRate         float64   `json:"success_rate"`
	AvgDeliveryMinutes  float64   `json:"avg_delivery_minutes"`
	WindowStart         time.Time `json:"window_start"`
	LastOutcomeRecorded time.Time `json:"last_outcome_recorded"`
}
