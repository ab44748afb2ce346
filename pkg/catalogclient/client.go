/**
 * @description
 * This package provides a client for the content catalog service. The payment service
 * consumes exactly one contract from the catalog: resolving a content item's current
 * owner, price, and currency at order-creation time, so the revenue snapshot can be
 * frozen onto the order.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: ContentSaleInfo model.
 */
package catalogclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fanvault/payment-service/internal/domain"
)

// ErrContentNotFound is returned when the catalog does not know the content item.
var ErrContentNotFound = errors.New("content not found")

// Client is a client for the content catalog's internal API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new catalog client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ResolveContentSale fetches the sale terms for one content item.
func (c *Client) ResolveContentSale(ctx context.Context, contentID string) (*domain.ContentSaleInfo, error) {
	url := fmt.Sprintf("%s/internal/contents/%s/sale", c.BaseURL, contentID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Internal-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrContentNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog returned status %d for content %s", resp.StatusCode, contentID)
	}

	var info domain.ContentSaleInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, err
	}
	return &info, nil
}
