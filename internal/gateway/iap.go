/**
 * @description
 * Gateway adapter for in-app purchases. IAP is receipt-based rather than
 * webhook-based: the client pays inside the store, then submits the store receipt to
 * our callback endpoint. Authenticity comes from validating the receipt against the
 * store's verification API, not from a MAC on the payload. A receipt that validates
 * but contains no transaction for the expected product is treated as unverified.
 *
 * @notes
 * - The store returns a dedicated status code when a sandbox receipt is sent to the
 *   production endpoint; the adapter retries against the sandbox URL in that case.
 *
 * @dependencies
 * - net/http: Store verification API calls.
 * - internal/domain: Order and notification models.
 */

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/fanvault/payment-service/internal/domain"
)

// The store's verification status codes we branch on.
const (
	iapStatusValid          = 0
	iapStatusSandboxReceipt = 21007
)

// IAPConfig carries the store verification endpoints and shared secret.
type IAPConfig struct {
	ProductionURL string
	SandboxURL    string
	SharedSecret  string
	BundleID      string
}

// IAPAdapter implements the Adapter contract for store in-app purchases.
type IAPAdapter struct {
	cfg        IAPConfig
	httpClient *http.Client
}

// NewIAPAdapter creates the IAP adapter.
func NewIAPAdapter(cfg IAPConfig, httpClient *http.Client) *IAPAdapter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &IAPAdapter{cfg: cfg, httpClient: httpClient}
}

func (a *IAPAdapter) Method() string { return domain.PaymentMethodIAP }

func (a *IAPAdapter) configured() bool {
	return strings.TrimSpace(a.cfg.ProductionURL) != "" && strings.TrimSpace(a.cfg.SharedSecret) != ""
}

// BuildPaymentParams tells the client which store product to purchase. The purchase
// itself happens natively inside the store.
func (a *IAPAdapter) BuildPaymentParams(_ context.Context, order *domain.Order) (PaymentParams, error) {
	if !a.configured() {
		return nil, ErrGatewayUnavailable
	}
	productID := order.Metadata["external_product_id"]
	if productID == "" {
		return nil, fmt.Errorf("%w: order %s has no store product to purchase", ErrGatewayUnavailable, order.OrderNo)
	}
	return PaymentParams{
		"provider":   "store_iap",
		"product_id": productID,
		"order_no":   order.OrderNo,
	}, nil
}

// iapSubmission is what the client posts to our callback endpoint after a store purchase.
type iapSubmission struct {
	OrderNo     string `json:"order_no"`
	ReceiptData string `json:"receipt_data"`
	ProductID   string `json:"product_id"`
}

type iapVerifyResponse struct {
	Status  int `json:"status"`
	Receipt struct {
		BundleID string `json:"bundle_id"`
		InApp    []struct {
			TransactionID string `json:"transaction_id"`
			ProductID     string `json:"product_id"`
		} `json:"in_app"`
	} `json:"receipt"`
}

// VerifyAndParseCallback validates the submitted receipt with the store. Any
// validation failure is reported as ErrInvalidSignature because the submission's
// authenticity could not be established.
func (a *IAPAdapter) VerifyAndParseCallback(raw []byte, _ http.Header) (*domain.PaymentNotification, error) {
	if !a.configured() {
		return nil, ErrGatewayUnavailable
	}

	var submission iapSubmission
	if err := json.Unmarshal(raw, &submission); err != nil {
		return nil, fmt.Errorf("malformed iap submission: %w", err)
	}
	if submission.OrderNo == "" || submission.ReceiptData == "" {
		return nil, ErrInvalidSignature
	}

	verified, err := a.verifyReceipt(submission.ReceiptData, a.cfg.ProductionURL)
	if err != nil {
		return nil, err
	}
	if verified.Status == iapStatusSandboxReceipt && strings.TrimSpace(a.cfg.SandboxURL) != "" {
		verified, err = a.verifyReceipt(submission.ReceiptData, a.cfg.SandboxURL)
		if err != nil {
			return nil, err
		}
	}
	if verified.Status != iapStatusValid {
		return nil, ErrInvalidSignature
	}
	if a.cfg.BundleID != "" && verified.Receipt.BundleID != "" && verified.Receipt.BundleID != a.cfg.BundleID {
		return nil, ErrInvalidSignature
	}

	transactionID := ""
	matchedProduct := ""
	for _, line := range verified.Receipt.InApp {
		if submission.ProductID == "" || line.ProductID == submission.ProductID {
			transactionID = line.TransactionID
			matchedProduct = line.ProductID
			break
		}
	}
	if transactionID == "" {
		return nil, ErrInvalidSignature
	}

	// A validated receipt is definitionally a captured payment; there is no ambiguous
	// or terminal-failure path for IAP. The orchestrator checks the matched product
	// against the product the order actually sells.
	return &domain.PaymentNotification{
		OrderNo:      submission.OrderNo,
		ProviderTxID: transactionID,
		ProductID:    matchedProduct,
		Succeeded:    true,
	}, nil
}

func (a *IAPAdapter) verifyReceipt(receiptData, verifyURL string) (*iapVerifyResponse, error) {
	payload, err := json.Marshal(map[string]string{
		"receipt-data": receiptData,
		"password":     a.cfg.SharedSecret,
	})
	if err != nil {
		return nil, err
	}

	resp, err := a.httpClient.Post(verifyURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: receipt verification returned status %d", ErrGatewayUnavailable, resp.StatusCode)
	}

	var verified iapVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&verified); err != nil {
		return nil, err
	}
	return &verified, nil
}

func (a *IAPAdapter) SuccessAck() Ack {
	return Ack{ContentType: "application/json", Body: `{"status":"ok"}`}
}

func (a *IAPAdapter) FailureAck() Ack {
	return Ack{ContentType: "application/json", Body: `{"status":"invalid"}`}
}

// Refund is store-managed for in-app purchases; there is no merchant-initiated refund
// API on this rail.
func (a *IAPAdapter) Refund(_ context.Context, order *domain.Order, _ int64, _ string) error {
	return fmt.Errorf("iap refunds for order %s are managed by the store", order.OrderNo)
}
