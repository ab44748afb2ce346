/**
 * @description
 * Gateway adapter for the card network processor. The processor hosts the checkout
 * page; we return a signed checkout reference and it posts JSON webhook events signed
 * with a base64 HMAC-SHA1 digest of the raw body in the X-Cardgate-Signature header.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha1, encoding/base64: Webhook signature validation.
 * - internal/domain: Order and notification models.
 */

package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fanvault/payment-service/internal/domain"
)

const cardSignatureHeader = "X-Cardgate-Signature"

// CardConfig carries the card processor credentials.
type CardConfig struct {
	PublicKey     string
	WebhookSecret string
	BaseURL       string
	CheckoutURL   string
}

// CardAdapter implements the Adapter contract for the card processor.
type CardAdapter struct {
	cfg        CardConfig
	httpClient *http.Client
}

// NewCardAdapter creates the card processor adapter.
func NewCardAdapter(cfg CardConfig, httpClient *http.Client) *CardAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &CardAdapter{cfg: cfg, httpClient: httpClient}
}

func (c *CardAdapter) Method() string { return domain.PaymentMethodCard }

func (c *CardAdapter) configured() bool {
	return strings.TrimSpace(c.cfg.PublicKey) != "" && strings.TrimSpace(c.cfg.WebhookSecret) != ""
}

// BuildPaymentParams returns the hosted-checkout parameters for the client SDK.
func (c *CardAdapter) BuildPaymentParams(_ context.Context, order *domain.Order) (PaymentParams, error) {
	if !c.configured() {
		return nil, ErrGatewayUnavailable
	}
	return PaymentParams{
		"provider":     "cardgate",
		"public_key":   c.cfg.PublicKey,
		"checkout_url": c.cfg.CheckoutURL,
		"reference":    order.OrderNo,
		"amount":       fmt.Sprintf("%d", order.Amount),
		"currency":     order.Currency,
	}, nil
}

type cardWebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		ID            string `json:"id"`
		Reference     string `json:"reference"`
		FailureReason string `json:"failure_reason"`
	} `json:"data"`
}

// VerifyAndParseCallback validates the base64 HMAC-SHA1 signature over the raw body.
func (c *CardAdapter) VerifyAndParseCallback(raw []byte, header http.Header) (*domain.PaymentNotification, error) {
	if !c.configured() {
		return nil, ErrGatewayUnavailable
	}

	provided := strings.TrimSpace(header.Get(cardSignatureHeader))
	if provided == "" {
		return nil, ErrInvalidSignature
	}
	providedBytes, err := base64.StdEncoding.DecodeString(provided)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	mac := hmac.New(sha1.New, []byte(c.cfg.WebhookSecret))
	mac.Write(raw)
	if !hmac.Equal(providedBytes, mac.Sum(nil)) {
		return nil, ErrInvalidSignature
	}

	var event cardWebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, fmt.Errorf("malformed cardgate event: %w", err)
	}

	result := &domain.PaymentNotification{
		OrderNo:      event.Data.Reference,
		ProviderTxID: event.Data.ID,
	}
	switch event.Event {
	case "charge.succeeded":
		result.Succeeded = true
	case "charge.failed":
		result.TerminalFailure = true
		result.FailureReason = event.Data.FailureReason
	}
	// charge.pending and unknown event types are ambiguous; the order stays pending.
	return result, nil
}

func (c *CardAdapter) SuccessAck() Ack {
	return Ack{ContentType: "application/json", Body: `{"status":"ok"}`}
}

func (c *CardAdapter) FailureAck() Ack {
	return Ack{ContentType: "application/json", Body: `{"status":"error"}`}
}

// Refund forwards a refund instruction to the processor API.
func (c *CardAdapter) Refund(ctx context.Context, order *domain.Order, amount int64, reason string) error {
	if !c.configured() || strings.TrimSpace(c.cfg.BaseURL) == "" {
		return ErrGatewayUnavailable
	}

	payload, err := json.Marshal(map[string]interface{}{
		"reference": order.OrderNo,
		"amount":    amount,
		"reason":    reason,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/refunds", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.PublicKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("cardgate refund returned status %d", resp.StatusCode)
	}
	return nil
}
