package prodigi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taletoprint-backend/internal/retry"
)

// Client submits print jobs to the Prodigi fulfillment API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type OrderRequest struct {
	MerchantReference string    `json:"merchantReference"`
	ShippingMethod    string    `json:"shippingMethod"`
	Recipient         Recipient `json:"recipient"`
	Items             []Item    `json:"items"`
}

type Recipient struct {
	Name    string  `json:"name"`
	Email   string  `json:"email,omitempty"`
	Address Address `json:"address"`
}

type Address struct {
	Line1           string `json:"line1"`
	Line2           string `json:"line2,omitempty"`
	TownOrCity      string `json:"townOrCity"`
	PostalOrZipCode string `json:"postalOrZipCode"`
	CountryCode     string `json:"countryCode"`
}

type Item struct {
	SKU    string  `json:"sku"`
	Copies int     `json:"copies"`
	Sizing string  `json:"sizing"` // "fillPrintArea" keeps the bordered asset uncropped
	Assets []Asset `json:"assets"`
}

type Asset struct {
	PrintArea string `json:"printArea"`
	URL       string `json:"url"`
}

type orderResponse struct {
	Outcome string `json:"outcome"`
	Order   struct {
		ID     string `json:"id"`
		Status struct {
			Stage string `json:"stage"`
		} `json:"status"`
	} `json:"order"`
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// CreateOrder submits a print job and returns Prodigi's order id. Errors
// carry the HTTP status and body for operator diagnostics.
func (c *Client) CreateOrder(ctx context.Context, orderReq OrderRequest) (string, error) {
	jsonData, err := json.Marshal(orderReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := strings.TrimSuffix(c.baseURL, "/") + "/Orders"

	var result orderResponse
	err = retry.Do(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("X-API-Key", c.apiKey)
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Transient(fmt.Errorf("failed to execute request: %w", err), 0)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError {
			return retry.Transient(fmt.Errorf("prodigi order submission failed: status %d, body: %s", resp.StatusCode, string(body)), 0)
		}
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("prodigi order submission failed: status %d, body: %s", resp.StatusCode, string(body))
		}

		if err := json.Unmarshal(body, &result); err != nil {
			return fmt.Errorf("failed to decode response: %w, body: %s", err, string(body))
		}
		return nil
	}, 3)
	if err != nil {
		return "", err
	}

	if result.Order.ID == "" {
		return "", fmt.Errorf("prodigi response has no order id, outcome: %s", result.Outcome)
	}

	return result.Order.ID, nil
}

// GetOrderStatus fetches the partner-side status, used by the operator
// console to check where a submitted job stands.
func (c *Client) GetOrderStatus(ctx context.Context, partnerOrderID string) (string, error) {
	endpoint := strings.TrimSuffix(c.baseURL, "/") + "/Orders/" + partnerOrderID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-API-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get prodigi order: status %d, body: %s", resp.StatusCode, string(body))
	}

	var result orderResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}

	return result.Order.Status.Stage, nil
}
