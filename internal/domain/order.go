/**
 * @description
 * This file defines the Order domain model and its request/response DTOs. An Order is
 * the durable record of a single payment intent: who is paying, what for, through which
 * gateway, and where it sits in its lifecycle.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (minor units), which
 *   avoids floating-point inaccuracies with financial data.
 * - Sharing ratios are stored as int32 basis points (7000 = 70%) so the revenue split
 *   is exact integer arithmetic.
 * - The revenue snapshot fields are frozen at order-creation time; a later change to a
 *   creator's sharing ratio never retroactively alters a settled order.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order types distinguish what a payment buys.
const (
	OrderTypeSubscription = "subscription"
	OrderTypeContent      = "content"
	OrderTypeTip          = "tip"
)

// Payment methods name the external gateway an order is routed through.
const (
	PaymentMethodWalletA = "wallet_a"
	PaymentMethodWalletB = "wallet_b"
	PaymentMethodCard    = "card"
	PaymentMethodIAP     = "iap"
)

// Order lifecycle states. Legal transitions: pending -> {paid, failed, expired},
// paid -> refunded. Everything else is a consistency fault.
const (
	OrderStatusPending  = "pending"
	OrderStatusPaid     = "paid"
	OrderStatusFailed   = "failed"
	OrderStatusRefunded = "refunded"
	OrderStatusExpired  = "expired"
)

// RatioDenominatorBps is the denominator for basis-point ratios.
const RatioDenominatorBps = int64(10000)

// Order is the central record for one payment intent. It maps directly to the
// `orders` table.
type Order struct {
	ID            uuid.UUID         `json:"id"`
	OrderNo       string            `json:"order_no"`
	UserID        uuid.UUID         `json:"user_id"`
	OrderType     string            `json:"order_type"`
	RelatedID     string            `json:"related_id"` // plan id / content id / creator id depending on type
	Amount        int64             `json:"amount"`     // in minor units
	Currency      string            `json:"currency"`
	PaymentMethod string            `json:"payment_method"`
	PaymentStatus string            `json:"payment_status"`
	ProviderTxID  *string           `json:"provider_tx_id,omitempty"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata,omitempty"`

	// Revenue snapshot, populated only for content orders.
	CreatorID       *uuid.UUID `json:"creator_id,omitempty"`
	CreatorAmount   int64      `json:"creator_amount"`
	PlatformAmount  int64      `json:"platform_amount"`
	SharingRatioBps int32      `json:"sharing_ratio_bps"`

	ExpiredAt time.Time  `json:"expired_at"`
	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// ApplyRevenueSnapshot freezes the creator split onto the order. The platform share is
// derived from the creator share so that CreatorAmount + PlatformAmount == Amount holds
// by construction.
func (o *Order) ApplyRevenueSnapshot(creatorID uuid.UUID, ratioBps int32) {
	creatorAmount := o.Amount * int64(ratioBps) / RatioDenominatorBps
	o.CreatorID = &creatorID
	o.CreatorAmount = creatorAmount
	o.PlatformAmount = o.Amount - creatorAmount
	o.SharingRatioBps = ratioBps
}

// CreateOrderRequest is the DTO for incoming purchase requests.
type CreateOrderRequest struct {
	OrderType     string            `json:"order_type"`
	RelatedID     string            `json:"related_id"`
	Amount        int64             `json:"amount"` // in minor units; ignored for subscription orders (plan price wins)
	PaymentMethod string            `json:"payment_method"`
	Description   string            `json:"description"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

// RefundRequest is the DTO for refund requests against a paid order.
type RefundRequest struct {
	OrderNo string `json:"order_no"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason"`
}

// PaymentNotification is the provider-agnostic result of verifying and parsing a
// gateway callback. Succeeded and TerminalFailure are mutually exclusive; when both are
// false the provider status was ambiguous and the order must stay pending.
type PaymentNotification struct {
	OrderNo      string
	ProviderTxID string
	// ProductID is the store product the money actually bought, on rails where the
	// notification names one (receipt validation). MAC-verified rails leave it empty.
	ProductID       string
	Succeeded       bool
	TerminalFailure bool
	FailureReason   string
}

// ContentSaleInfo is what the content catalog collaborator resolves for a purchasable
// content item at order-creation time.
type ContentSaleInfo struct {
	ContentID string    `json:"content_id"`
	CreatorID uuid.UUID `json:"creator_id"`
	Price     int64     `json:"price"` // in minor units
	Currency  string    `json:"currency"`
	Title     string    `json:"title"`
}

// Plan describes one entry of the subscription plan catalog.
type Plan struct {
	ID                string `json:"id"`
	Price             int64  `json:"price"` // in minor units
	Currency          string `json:"currency"`
	DurationDays      int    `json:"duration_days"`
	ExternalProductID string `json:"external_product_id"` // store product id for IAP
}

// OrderPaidEvent is the message published to the payment_events exchange once an order
// reaches paid.
type OrderPaidEvent struct {
	OrderNo       string    `json:"order_no"`
	OrderType     string    `json:"order_type"`
	UserID        uuid.UUID `json:"user_id"`
	Amount        int64     `json:"amount"`
	PaymentMethod string    `json:"payment_method"`
	ProviderTxID  string    `json:"provider_tx_id"`
	PaidAt        time.Time `json:"paid_at"`
}

// FulfillmentIncidentEvent reports a post-payment side effect that failed after the
// money had already moved. Consumers treat it as a reconciliation work item.
type FulfillmentIncidentEvent struct {
	OrderNo   string    `json:"order_no"`
	OrderType string    `json:"order_type"`
	Stage     string    `json:"stage"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}
