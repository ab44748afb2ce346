/**
 * @description
 * Gateway adapter for the Astra wallet (domestic wallet A). Astra is a prepay-style
 * gateway: we create a prepay session against its API at order time, the client
 * completes payment in the wallet app, and Astra posts a JSON notification signed with
 * an HMAC-SHA256 hex digest of the raw body in the X-Astra-Signature header.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256, encoding/hex: Callback signature validation.
 * - net/http: Prepay API call and callback headers.
 * - internal/domain: Order and notification models.
 */

package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fanvault/payment-service/internal/domain"
)

const walletASignatureHeader = "X-Astra-Signature"

// WalletAConfig carries the Astra credentials and endpoints.
type WalletAConfig struct {
	AppID     string
	Secret    string
	BaseURL   string
	NotifyURL string
}

// WalletAAdapter implements the Adapter contract for Astra.
type WalletAAdapter struct {
	cfg        WalletAConfig
	httpClient *http.Client
}

// NewWalletAAdapter creates the Astra adapter. A nil httpClient gets a default with a
// bounded timeout.
func NewWalletAAdapter(cfg WalletAConfig, httpClient *http.Client) *WalletAAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &WalletAAdapter{cfg: cfg, httpClient: httpClient}
}

func (a *WalletAAdapter) Method() string { return domain.PaymentMethodWalletA }

func (a *WalletAAdapter) configured() bool {
	return strings.TrimSpace(a.cfg.AppID) != "" && strings.TrimSpace(a.cfg.Secret) != "" && strings.TrimSpace(a.cfg.BaseURL) != ""
}

type walletAPrepayRequest struct {
	AppID       string `json:"app_id"`
	OutTradeNo  string `json:"out_trade_no"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Description string `json:"description"`
	NotifyURL   string `json:"notify_url"`
}

type walletAPrepayResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	PrepayID  string `json:"prepay_id"`
	ExpiresIn int64  `json:"expires_in"`
}

// BuildPaymentParams creates a prepay session with Astra and returns the parameters
// the wallet SDK needs to launch the payment sheet.
func (a *WalletAAdapter) BuildPaymentParams(ctx context.Context, order *domain.Order) (PaymentParams, error) {
	if !a.configured() {
		return nil, ErrGatewayUnavailable
	}

	payload, err := json.Marshal(walletAPrepayRequest{
		AppID:       a.cfg.AppID,
		OutTradeNo:  order.OrderNo,
		Amount:      order.Amount,
		Currency:    order.Currency,
		Description: order.Description,
		NotifyURL:   a.cfg.NotifyURL,
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/prepay", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(walletASignatureHeader, a.sign(payload))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: prepay returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var prepay walletAPrepayResponse
	if err := json.NewDecoder(resp.Body).Decode(&prepay); err != nil {
		return nil, err
	}
	if prepay.Code != "OK" || prepay.PrepayID == "" {
		return nil, fmt.Errorf("%w: prepay rejected: %s", ErrGatewayUnavailable, prepay.Message)
	}

	return PaymentParams{
		"provider":  "astra",
		"app_id":    a.cfg.AppID,
		"prepay_id": prepay.PrepayID,
		"order_no":  order.OrderNo,
	}, nil
}

type walletANotification struct {
	OutTradeNo    string `json:"out_trade_no"`
	TransactionID string `json:"transaction_id"`
	TradeStatus   string `json:"trade_status"`
	FailReason    string `json:"fail_reason"`
}

// VerifyAndParseCallback checks the HMAC header against the raw body before anything
// else; an unverified payload is never inspected further.
func (a *WalletAAdapter) VerifyAndParseCallback(raw []byte, header http.Header) (*domain.PaymentNotification, error) {
	if !a.configured() {
		return nil, ErrGatewayUnavailable
	}

	provided := strings.TrimSpace(header.Get(walletASignatureHeader))
	if provided == "" {
		return nil, ErrInvalidSignature
	}
	providedBytes, err := hex.DecodeString(provided)
	if err != nil {
		return nil, ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(a.cfg.Secret))
	mac.Write(raw)
	if !hmac.Equal(providedBytes, mac.Sum(nil)) {
		return nil, ErrInvalidSignature
	}

	var n walletANotification
	if err := json.Unmarshal(raw, &n); err != nil {
		return nil, fmt.Errorf("malformed astra notification: %w", err)
	}

	result := &domain.PaymentNotification{
		OrderNo:      n.OutTradeNo,
		ProviderTxID: n.TransactionID,
	}
	switch n.TradeStatus {
	case "SUCCESS":
		result.Succeeded = true
	case "FAILED", "CLOSED":
		result.TerminalFailure = true
		result.FailureReason = n.FailReason
	}
	// Any other status (USERPAYING, PENDING, ...) is ambiguous; the order stays pending.
	return result, nil
}

func (a *WalletAAdapter) SuccessAck() Ack {
	return Ack{ContentType: "application/json", Body: `{"code":"SUCCESS"}`}
}

func (a *WalletAAdapter) FailureAck() Ack {
	return Ack{ContentType: "application/json", Body: `{"code":"FAIL"}`}
}

// Refund forwards a refund instruction to Astra.
func (a *WalletAAdapter) Refund(ctx context.Context, order *domain.Order, amount int64, reason string) error {
	if !a.configured() {
		return ErrGatewayUnavailable
	}

	payload, err := json.Marshal(map[string]interface{}{
		"app_id":        a.cfg.AppID,
		"out_trade_no":  order.OrderNo,
		"refund_amount": amount,
		"reason":        reason,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.BaseURL+"/v1/refund", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(walletASignatureHeader, a.sign(payload))

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("astra refund returned status %d", resp.StatusCode)
	}
	return nil
}

func (a *WalletAAdapter) sign(payload []byte) string {
	mac := hmac.New(sha256.New, []byte(a.cfg.Secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
