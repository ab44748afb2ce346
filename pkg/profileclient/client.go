/**
 * @description
 * This package provides a client for the profile service's internal API. Two contracts
 * are consumed: looking up a creator's sharing-ratio override, and incrementing a
 * creator's lifetime-earnings counter after a sale is fulfilled.
 *
 * @dependencies
 * - context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - github.com/google/uuid: Identifier handling.
 */
package profileclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// ErrRatioNotSet is returned when the creator has no sharing-ratio override; the
// caller falls back to the configured default ratio.
var ErrRatioNotSet = errors.New("creator sharing ratio not set")

// Client is a client for the profile service's internal API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new profile client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SharingRatioBps returns the creator's sharing ratio in basis points.
func (c *Client) SharingRatioBps(ctx context.Context, creatorID uuid.UUID) (int32, error) {
	url := fmt.Sprintf("%s/internal/creators/%s/sharing-ratio", c.BaseURL, creatorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("X-Internal-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, ErrRatioNotSet
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("profile returned status %d for creator %s", resp.StatusCode, creatorID)
	}

	var body struct {
		SharingRatioBps int32 `json:"sharing_ratio_bps"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if body.SharingRatioBps <= 0 {
		return 0, ErrRatioNotSet
	}
	return body.SharingRatioBps, nil
}

// IncrementLifetimeEarnings adds amount (minor units) to the creator's lifetime
// earnings counter on their profile.
func (c *Client) IncrementLifetimeEarnings(ctx context.Context, creatorID uuid.UUID, amount int64) error {
	payload, err := json.Marshal(map[string]int64{"amount": amount})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/internal/users/%s/lifetime-earnings", c.BaseURL, creatorID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Internal-API-Key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("profile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("profile returned status %d incrementing earnings for %s", resp.StatusCode, creatorID)
	}
	return nil
}
