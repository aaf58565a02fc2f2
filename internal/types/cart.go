package types

import (
	"fmt"
	"strings"
	"time"
)

// LineItem is a single requested item in a cart.
type LineItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Location is the delivery destination for a cart.
type Location struct {
	AddressLine string  `json:"address_line"`
	City        string  `json:"city"`
	PostalCode  string  `json:"postal_code"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// CartRequest is one routing request: the items to fulfill, where to
// deliver them, and an optional weight preset name. Immutable once
// submitted.
type CartRequest struct {
	ID           string     `json:"id"`
	Items        []LineItem `json:"items"`
	Location     Location   `json:"location"`
	WeightPreset string     `json:"weight_preset,omitempty"`

	UserID    string    `json:"user_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ItemsRequested returns the total quantity of items in the cart.
func (c *CartRequest) ItemsRequested() int {
	total := 0
	for _, item := range c.Items {
		total += item.Quantity
	}
	return total
}

// Validate checks that the cart is well formed before routing.
func (c *CartRequest) Validate() error {
	if len(c.Items) == 0 {
		return NewValidationError("cart must contain at least one item")
	}
	for i, item := range c.Items {
		if strings.TrimSpace(item.Name) == "" {
			return NewValidationError(fmt.Sprintf("item %d has an empty name", i))
		}
		if item.Quantity <= 0 {
			return NewValidationError(fmt.Sprintf("item %q has non-positive quantity %d", item.Name, item.Quantity))
		}
	}
	if strings.TrimSpace(c.Location.PostalCode) == "" {
		return NewValidationError("delivery location requires a postal code")
	}
	return nil
}
