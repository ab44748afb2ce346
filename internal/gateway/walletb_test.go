package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"testing"

	"github.com/fanvault/payment-service/internal/domain"
)

func walletBTestAdapter() *WalletBAdapter {
	return NewWalletBAdapter(WalletBConfig{
		MerchantID: "bolt-merchant",
		Secret:     "bolt-secret",
		GatewayURL: "https://bolt.test",
		NotifyURL:  "https://api.fanvault.test/payments/callback/wallet_b",
	}, nil)
}

// signBoltParams mirrors the documented convention: uppercase hex HMAC-SHA256 over the
// sorted key=value string with empty values skipped.
func signBoltParams(secret string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for key, value := range params {
		if value == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, key := range keys {
		pairs = append(pairs, key+"="+params[key])
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strings.Join(pairs, "&")))
	return strings.ToUpper(hex.EncodeToString(mac.Sum(nil)))
}

func boltNotification(secret string, params map[string]string) []byte {
	form := url.Values{}
	for key, value := range params {
		form.Set(key, value)
	}
	form.Set("sign", signBoltParams(secret, params))
	return []byte(form.Encode())
}

func TestWalletB_VerifyAndParseCallback_Success(t *testing.T) {
	adapter := walletBTestAdapter()
	raw := boltNotification("bolt-secret", map[string]string{
		"out_trade_no": "PAY-20260315-abc123",
		"trade_no":     "bolt_tx_9",
		"trade_status": "TRADE_SUCCESS",
	})

	notif, err := adapter.VerifyAndParseCallback(raw, nil)
	if err != nil {
		t.Fatalf("VerifyAndParseCallback returned error: %v", err)
	}
	if notif.OrderNo != "PAY-20260315-abc123" || notif.ProviderTxID != "bolt_tx_9" {
		t.Fatalf("unexpected notification: %+v", notif)
	}
	if !notif.Succeeded {
		t.Fatal("TRADE_SUCCESS must map to a captured payment")
	}
}

func TestWalletB_VerifyAndParseCallback_WrongSecretRejected(t *testing.T) {
	adapter := walletBTestAdapter()
	raw := boltNotification("not-the-secret", map[string]string{
		"out_trade_no": "PAY-20260315-abc123",
		"trade_status": "TRADE_SUCCESS",
	})

	if _, err := adapter.VerifyAndParseCallback(raw, nil); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestWalletB_VerifyAndParseCallback_TamperedParamRejected(t *testing.T) {
	adapter := walletBTestAdapter()
	params := map[string]string{
		"out_trade_no": "PAY-20260315-abc123",
		"total_amount": "1000",
		"trade_status": "TRADE_SUCCESS",
	}
	raw := string(boltNotification("bolt-secret", params))
	tampered := strings.Replace(raw, "total_amount=1000", "total_amount=1", 1)

	if _, err := adapter.VerifyAndParseCallback([]byte(tampered), nil); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestWalletB_VerifyAndParseCallback_ClosedIsTerminal(t *testing.T) {
	adapter := walletBTestAdapter()
	raw := boltNotification("bolt-secret", map[string]string{
		"out_trade_no": "PAY-20260315-abc123",
		"trade_status": "TRADE_CLOSED",
		"close_reason": "buyer cancelled",
	})

	notif, err := adapter.VerifyAndParseCallback(raw, nil)
	if err != nil {
		t.Fatalf("VerifyAndParseCallback returned error: %v", err)
	}
	if !notif.TerminalFailure || notif.FailureReason != "buyer cancelled" {
		t.Fatalf("expected terminal failure with reason, got %+v", notif)
	}
}

func TestWalletB_VerifyAndParseCallback_WaitingIsAmbiguous(t *testing.T) {
	adapter := walletBTestAdapter()
	raw := boltNotification("bolt-secret", map[string]string{
		"out_trade_no": "PAY-20260315-abc123",
		"trade_status": "WAIT_BUYER_PAY",
	})

	notif, err := adapter.VerifyAndParseCallback(raw, nil)
	if err != nil {
		t.Fatalf("VerifyAndParseCallback returned error: %v", err)
	}
	if notif.Succeeded || notif.TerminalFailure {
		t.Fatal("WAIT_BUYER_PAY must stay ambiguous")
	}
}

func TestWalletB_BuildPaymentParams_SignsCashierParams(t *testing.T) {
	adapter := walletBTestAdapter()
	order := &domain.Order{OrderNo: "PAY-20260315-abc123", Amount: 2500, Currency: "USD", Description: "tip"}

	params, err := adapter.BuildPaymentParams(context.Background(), order)
	if err != nil {
		t.Fatalf("BuildPaymentParams returned error: %v", err)
	}
	if params["sign"] == "" {
		t.Fatal("cashier params must carry a signature")
	}
	if params["total_amount"] != "2500" {
		t.Fatalf("expected amount 2500, got %q", params["total_amount"])
	}
}

func TestWalletB_UnconfiguredCallbackIsUnavailable(t *testing.T) {
	adapter := NewWalletBAdapter(WalletBConfig{}, &http.Client{})

	_, err := adapter.VerifyAndParseCallback([]byte("sign=abc"), nil)
	if !errors.Is(err, ErrGatewayUnavailable) {
		t.Fatalf("expected ErrGatewayUnavailable, got %v", err)
	}
}
