/**
 * @description
 * This file defines the uniform Gateway Adapter contract. Every external payment
 * provider is wrapped by one Adapter; the orchestrator only ever talks to this
 * interface and never branches on a provider outside this package.
 *
 * Key features:
 * - BuildPaymentParams renders provider-specific payment parameters for a pending order.
 * - VerifyAndParseCallback authenticates an asynchronous provider notification and
 *   normalizes it into a provider-agnostic PaymentNotification.
 * - Refund forwards a refund instruction to the provider. Its failure never rolls back
 *   local state; reconciliation is a follow-up concern.
 *
 * @dependencies
 * - net/http: Callback headers.
 * - internal/domain: Order and notification models.
 */

package gateway

import (
	"context"
	"errors"
	"net/http"

	"github.com/fanvault/payment-service/internal/domain"
)

var (
	// ErrGatewayUnavailable means the provider is unconfigured or unreachable. Handlers
	// surface it as "payment method temporarily unavailable", never as a generic 500.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
	// ErrInvalidSignature means callback authenticity could not be established.
	ErrInvalidSignature = errors.New("invalid callback signature")
	// ErrUnknownMethod means no adapter is registered for the payment method.
	ErrUnknownMethod = errors.New("unknown payment method")
)

// PaymentParams is the provider-specific opaque parameter set handed back to the
// client so it can complete the payment with the external provider.
type PaymentParams map[string]string

// Ack is the provider-expected acknowledgement body for a callback response.
type Ack struct {
	ContentType string
	Body        string
}

// Adapter is the boundary between the uniform order model and one provider.
type Adapter interface {
	// Method returns the payment method this adapter serves.
	Method() string
	// BuildPaymentParams renders the provider-specific payment parameters for a pending
	// order. Fails with ErrGatewayUnavailable when the provider is not configured.
	BuildPaymentParams(ctx context.Context, order *domain.Order) (PaymentParams, error)
	// VerifyAndParseCallback authenticates the raw notification payload and extracts
	// the normalized result. Fails with ErrInvalidSignature when authenticity cannot
	// be established; no state may change on that path.
	VerifyAndParseCallback(raw []byte, header http.Header) (*domain.PaymentNotification, error)
	// SuccessAck and FailureAck return the acknowledgement shape the provider expects.
	// A failure ack tells the provider to retry where its protocol supports that.
	SuccessAck() Ack
	FailureAck() Ack
	// Refund forwards a refund for an already-captured payment to the provider.
	Refund(ctx context.Context, order *domain.Order, amount int64, reason string) error
}

// Registry resolves payment methods to their adapters. Adapters are constructed once
// at process start and injected; there is no package-level provider state.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds a registry from the given adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	m := make(map[string]Adapter, len(adapters))
	for _, a := range adapters {
		m[a.Method()] = a
	}
	return &Registry{adapters: m}
}

// Adapter returns the adapter for a payment method.
func (r *Registry) Adapter(method string) (Adapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, ErrUnknownMethod
	}
	return a, nil
}

// Methods lists the registered payment methods.
func (r *Registry) Methods() []string {
	methods := make([]string, 0, len(r.adapters))
	for m := range r.adapters {
		methods = append(methods, m)
	}
	return methods
}
