package instacart

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mealcart/commerce-router/internal/types"
)

// InstacartProvider implements the FulfillmentProvider interface against
// the Instacart Connect cart-quote API.
type InstacartProvider struct {
	client *http.Client
	config *InstacartConfig
	logger *logrus.Logger
}

// InstacartConfig holds Instacart-specific configuration
type InstacartConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	RetailerID     string        `yaml:"retailer_id"`
	CommissionRate float64       `yaml:"commission_rate"`
	Timeout        time.Duration `yaml:"timeout"`
	MockFallback   bool          `yaml:"mock_fallback"`
}

// NewInstacartProvider creates a new Instacart provider instance
func NewInstacartProvider(config *InstacartConfig, logger *logrus.Logger) *InstacartProvider {
	if config.BaseURL == "" {
		config.BaseURL = "https://connect.instacart.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &InstacartProvider{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger,
	}
}

// GetProviderName returns the provider name
func (p *InstacartProvider) GetProviderName() string {
	return "instacart"
}

// quoteRequest is the wire shape of a cart quote request.
type quoteRequest struct {
	RetailerID string          `json:"retailer_id"`
	Items      []quoteItem     `json:"items"`
	Delivery   deliveryAddress `json:"delivery_address"`
}

type quoteItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type deliveryAddress struct {
	AddressLine string `json:"address_line_1"`
	City        string `json:"city"`
	PostalCode  string `json:"zip_code"`
}

// quoteResponse mirrors the subset of the Connect response the router uses.
type quoteResponse struct {
	Subtotal       int64 `json:"subtotal_cents"`
	DeliveryFee    int64 `json:"delivery_fee_cents"`
	Tax            int64 `json:"tax_cents"`
	Total          int64 `json:"total_cents"`
	EtaMinutesMin  int   `json:"eta_minutes_min"`
	EtaMinutesMax  int   `json:"eta_minutes_max"`
	FoundCount     int   `json:"found_count"`
	ReplacedCount  int   `json:"replaced_count"`
	OutOfStock     int   `json:"out_of_stock_count"`
}

// GetQuote requests a priced cart quote from Instacart
func (p *InstacartProvider) GetQuote(ctx context.Context, cart *types.CartRequest) (*types.Quote, error) {
	reqBody := quoteRequest{
		RetailerID: p.config.RetailerID,
		Delivery: deliveryAddress{
			AddressLine: cart.Location.AddressLine,
			City:        cart.Location.City,
			PostalCode:  cart.Location.PostalCode,
		},
	}
	for _, item := range cart.Items {
		reqBody.Items = append(reqBody.Items, quoteItem{Name: item.Name, Quantity: item.Quantity})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote request: %w", err)
	}

	url := p.config.BaseURL + "/v2/fulfillment/carts/quote"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("instacart quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("instacart quote returned status %d", resp.StatusCode)
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode instacart quote: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"provider":    "instacart",
		"total_cents": body.Total,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Quote retrieved")

	return &types.Quote{
		ProviderID:       p.GetProviderName(),
		SubtotalCents:    body.Subtotal,
		DeliveryFeeCents: body.DeliveryFee,
		TaxCents:         body.Tax,
		TotalCents:       body.Total,
		DeliveryEstimate: types.DeliveryEstimate{
			MinMinutes: body.EtaMinutesMin,
			MaxMinutes: body.EtaMinutesMax,
		},
		ItemsFound:       body.FoundCount,
		ItemsSubstituted: body.ReplacedCount,
		ItemsUnavailable: body.OutOfStock,
		CommissionRate:   p.config.CommissionRate,
		RetrievedAt:      time.Now(),
	}, nil
}

// HealthCheck verifies the Instacart API is reachable
func (p *InstacartProvider) HealthCheck(ctx context.Context) error {
	url := p.config.BaseURL + "/v2/fulfillment/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("instacart health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("instacart health check returned status %d", resp.StatusCode)
	}
	return nil
}
