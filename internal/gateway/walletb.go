/**
 * @description
 * Gateway adapter for the Bolt wallet (domestic wallet B). Bolt is a redirect-style
 * gateway: the client is handed a signed parameter set to open the cashier page, and
 * Bolt posts form-encoded notifications carrying an embedded `sign` field computed
 * over the sorted key=value string. Bolt expects a literal "success" body as the ack;
 * anything else makes it retry.
 *
 * @dependencies
 * - crypto/hmac, crypto/sha256: Parameter signing.
 * - net/url: Form-encoded notification parsing.
 * - internal/domain: Order and notification models.
 */

package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fanvault/payment-service/internal/domain"
)

// WalletBConfig carries the Bolt merchant credentials.
type WalletBConfig struct {
	MerchantID string
	Secret     string
	GatewayURL string
	NotifyURL  string
}

// WalletBAdapter implements the Adapter contract for Bolt.
type WalletBAdapter struct {
	cfg        WalletBConfig
	httpClient *http.Client
}

// NewWalletBAdapter creates the Bolt adapter.
func NewWalletBAdapter(cfg WalletBConfig, httpClient *http.Client) *WalletBAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &WalletBAdapter{cfg: cfg, httpClient: httpClient}
}

func (b *WalletBAdapter) Method() string { return domain.PaymentMethodWalletB }

func (b *WalletBAdapter) configured() bool {
	return strings.TrimSpace(b.cfg.MerchantID) != "" && strings.TrimSpace(b.cfg.Secret) != ""
}

// BuildPaymentParams returns the signed cashier parameters. Bolt needs no server-side
// session; the signature authorizes the client redirect.
func (b *WalletBAdapter) BuildPaymentParams(_ context.Context, order *domain.Order) (PaymentParams, error) {
	if !b.configured() {
		return nil, ErrGatewayUnavailable
	}

	params := map[string]string{
		"merchant_id":  b.cfg.MerchantID,
		"out_trade_no": order.OrderNo,
		"total_amount": strconv.FormatInt(order.Amount, 10),
		"currency":     order.Currency,
		"subject":      order.Description,
		"notify_url":   b.cfg.NotifyURL,
		"timestamp":    strconv.FormatInt(time.Now().Unix(), 10),
	}
	params["sign"] = b.signParams(params)
	params["gateway_url"] = b.cfg.GatewayURL
	params["provider"] = "bolt"
	return params, nil
}

// VerifyAndParseCallback recomputes the signature over the sorted parameters, excluding
// the sign field itself, and compares in constant time.
func (b *WalletBAdapter) VerifyAndParseCallback(raw []byte, _ http.Header) (*domain.PaymentNotification, error) {
	if !b.configured() {
		return nil, ErrGatewayUnavailable
	}

	values, err := url.ParseQuery(string(raw))
	if err != nil {
		return nil, fmt.Errorf("malformed bolt notification: %w", err)
	}

	provided := values.Get("sign")
	if provided == "" {
		return nil, ErrInvalidSignature
	}
	params := make(map[string]string, len(values))
	for key := range values {
		if key == "sign" {
			continue
		}
		params[key] = values.Get(key)
	}
	expected := b.signParams(params)
	if !hmac.Equal([]byte(strings.ToUpper(provided)), []byte(expected)) {
		return nil, ErrInvalidSignature
	}

	result := &domain.PaymentNotification{
		OrderNo:      values.Get("out_trade_no"),
		ProviderTxID: values.Get("trade_no"),
	}
	switch values.Get("trade_status") {
	case "TRADE_SUCCESS", "TRADE_FINISHED":
		result.Succeeded = true
	case "TRADE_CLOSED":
		result.TerminalFailure = true
		result.FailureReason = values.Get("close_reason")
	}
	// WAIT_BUYER_PAY and anything unrecognized is ambiguous; the order stays pending.
	return result, nil
}

func (b *WalletBAdapter) SuccessAck() Ack {
	return Ack{ContentType: "text/plain", Body: "success"}
}

func (b *WalletBAdapter) FailureAck() Ack {
	return Ack{ContentType: "text/plain", Body: "fail"}
}

// Refund forwards a refund instruction to the Bolt gateway.
func (b *WalletBAdapter) Refund(ctx context.Context, order *domain.Order, amount int64, reason string) error {
	if !b.configured() || strings.TrimSpace(b.cfg.GatewayURL) == "" {
		return ErrGatewayUnavailable
	}

	params := map[string]string{
		"merchant_id":   b.cfg.MerchantID,
		"out_trade_no":  order.OrderNo,
		"refund_amount": strconv.FormatInt(amount, 10),
		"reason":        reason,
		"timestamp":     strconv.FormatInt(time.Now().Unix(), 10),
	}
	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	form.Set("sign", b.signParams(params))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cfg.GatewayURL+"/refund", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bolt refund returned status %d", resp.StatusCode)
	}
	return nil
}

// signParams computes the uppercase hex HMAC-SHA256 over "k1=v1&k2=v2&..." with keys
// sorted ascending, empty values skipped. This matches Bolt's documented convention.
func (b *WalletBAdapter) signParams(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for i, key := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(key)
		sb.WriteByte('=')
		sb.WriteString(params[key])
	}

	mac := hmac.New(sha256.New, []byte(b.cfg.Secret))
	mac.Write([]byte(sb.String()))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}
