package doordash

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

// DoorDashProvider implements the FulfillmentProvider interface against
// the DoorDash Drive quote API.
type DoorDashProvider struct {
	client *http.Client
	config *DoorDashConfig
	logger *logrus.Logger
}

// DoorDashConfig holds DoorDash-specific configuration
type DoorDashConfig struct {
	DeveloperID    string        `yaml:"developer_id"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	CommissionRate float64       `yaml:"commission_rate"`
	Timeout        time.Duration `yaml:"timeout"`
	MockFallback   bool          `yaml:"mock_fallback"`
}

// NewDoorDashProvider creates a new DoorDash provider instance
func NewDoorDashProvider(config *DoorDashConfig, logger *logrus.Logger) *DoorDashProvider {
	if config.BaseURL == "" {
		config.BaseURL = "https://openapi.doordash.com"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	return &DoorDashProvider{
		client: &http.Client{Timeout: config.Timeout},
		config: config,
		logger: logger,
	}
}

// GetProviderName returns the provider name
func (p *DoorDashProvider) GetProviderName() string {
	return "doordash"
}

type driveQuoteRequest struct {
	ExternalID  string           `json:"external_delivery_id"`
	Items       []driveQuoteItem `json:"items"`
	DropoffAddr string           `json:"dropoff_address"`
	DropoffZip  string           `json:"dropoff_zip_code"`
}

type driveQuoteItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
}

type driveQuoteResponse struct {
	ItemsSubtotal    int64  `json:"items_subtotal"`
	Fee              int64  `json:"fee"`
	Tax              int64  `json:"tax"`
	OrderValue       int64  `json:"order_value"`
	PickupTime       string `json:"pickup_time_estimated"`
	DeliveryMinLower int    `json:"delivery_minutes_lower"`
	DeliveryMinUpper int    `json:"delivery_minutes_upper"`
	ItemsQuoted      int    `json:"items_quoted"`
	ItemsSubstituted int    `json:"items_substituted"`
	ItemsDropped     int    `json:"items_dropped"`
}

// GetQuote requests a priced delivery quote from DoorDash Drive
func (p *DoorDashProvider) GetQuote(ctx context.Context, cart *types.CartRequest) (*types.Quote, error) {
	reqBody := driveQuoteRequest{
		ExternalID:  cart.ID,
		DropoffAddr: cart.Location.AddressLine + ", " + cart.Location.City,
		DropoffZip:  cart.Location.PostalCode,
	}
	for _, item := range cart.Items {
		reqBody.Items = append(reqBody.Items, driveQuoteItem{Description: item.Name, Quantity: item.Quantity})
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal quote request: %w", err)
	}

	url := p.config.BaseURL + "/drive/v2/quotes"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build quote request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	httpReq.Header.Set("DD-Developer-Id", p.config.DeveloperID)

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("doordash quote request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, fmt.Errorf("doordash quote returned status %d", resp.StatusCode)
	}

	var body driveQuoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode doordash quote: %w", err)
	}

	p.logger.WithFields(logrus.Fields{
		"provider":    "doordash",
		"total_cents": body.OrderValue,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Debug("Quote retrieved")

	return &types.Quote{
		ProviderID:       p.GetProviderName(),
		SubtotalCents:    body.ItemsSubtotal,
		DeliveryFeeCents: body.Fee,
		TaxCents:         body.Tax,
		TotalCents:       body.OrderValue,
		DeliveryEstimate: types.DeliveryEstimate{
			MinMinutes: body.DeliveryMinLower,
			MaxMinutes: body.DeliveryMinUpper,
		},
		ItemsFound:       body.ItemsQuoted,
		ItemsSubstituted: body.ItemsSubstituted,
		ItemsUnavailable: body.ItemsDropped,
		CommissionRate:   p.config.CommissionRate,
		RetrievedAt:      time.Now(),
	}, nil
}

// HealthCheck verifies the DoorDash API is reachable
func (p *DoorDashProvider) HealthCheck(ctx context.Context) error {
	url := p.config.BaseURL + "/drive/v2/status"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+p.config.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("doordash health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("doordash health check returned status %d", resp.StatusCode)
	}
	return nil
}
