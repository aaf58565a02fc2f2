package types

import "time"

// DeliveryEstimate is a provider's estimated delivery window in minutes.
type DeliveryEstimate struct {
	MinMinutes int `json:"min_minutes"`
	MaxMinutes int `json:"max_minutes"`
}

// Midpoint returns the center of the delivery window, used for speed scoring.
func (d DeliveryEstimate) Midpoint() float64 {
	return float64(d.MinMinutes+d.MaxMinutes) / 2
}

// Quote is one provider's priced, timed offer for a cart. All monetary
// amounts are integer minor currency units (cents), never floating point.
type Quote struct {
	ProviderID       string           `json:"provider_id"`
	SubtotalCents    int64            `json:"subtotal_cents"`
	DeliveryFeeCents int64            `json:"delivery_fee_cents"`
	TaxCents         int64            `json:"tax_cents"`
	TotalCents       int64            `json:"total_cents"`
	DeliveryEstimate DeliveryEstimate `json:"delivery_estimate"`
	ItemsFound       int              `json:"items_found"`
	ItemsSubstituted int              `json:"items_substituted"`
	ItemsUnavailable int              `json:"items_unavailable"`
	CommissionRate   float64          `json:"commission_rate"`
	RetrievedAt      time.Time        `json:"retrieved_at"`

	// Synthetic marks a best-effort fallback quote produced when the
	// provider's real call failed.
	Synthetic bool `json:"synthetic,omitempty"`
}

// ItemsRequested returns the item count the provider was asked for.
func (q *Quote) ItemsRequested() int {
	return q.ItemsFound + q.ItemsSubstituted + q.ItemsUnavailable
}

// ProviderRevenueCents returns the provider's commission revenue on this
// quote, used for margin scoring.
func (q *Quote) ProviderRevenueCents() float64 {
	return float64(q.TotalCents) * q.CommissionRate
}
