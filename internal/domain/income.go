/**
 * @description
 * This file defines the CreatorIncome domain model: one immutable earnings line per
 * completed monetizing order, plus its withdrawal sub-state-machine.
 *
 * @notes
 * - NetAmount is always derived as TotalAmount - PlatformFee; the three fields are
 *   never computed independently, so `total = fee + net` holds exactly.
 * - Withdrawal lifecycle: pending -> withdrawable -> processing -> {withdrawn, failed}.
 *   A withdrawn record never mutates again.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Income sources.
const (
	IncomeSourceContentSale       = "content_sale"
	IncomeSourceTip               = "tip"
	IncomeSourceSubscriptionShare = "subscription_share"
)

// Withdrawal states for a CreatorIncome record.
const (
	WithdrawStatusPending      = "pending"
	WithdrawStatusWithdrawable = "withdrawable"
	WithdrawStatusProcessing   = "processing"
	WithdrawStatusWithdrawn    = "withdrawn"
	WithdrawStatusFailed       = "failed"
)

// SettlementPeriod attributes an earnings record to a calendar month for reporting and
// withdrawal batching.
type SettlementPeriod struct {
	Year      int       `json:"year"`
	Month     int       `json:"month"`
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// SettlementPeriodFor derives the calendar-month period covering t.
func SettlementPeriodFor(t time.Time) SettlementPeriod {
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return SettlementPeriod{
		Year:      t.Year(),
		Month:     int(t.Month()),
		StartDate: start,
		EndDate:   start.AddDate(0, 1, 0),
	}
}

// Withdrawal is populated once a payout has been requested for the record.
type Withdrawal struct {
	RequestedAt *time.Time `json:"requested_at,omitempty"`
	Method      *string    `json:"method,omitempty"`
	Account     *string    `json:"account,omitempty"`
	BatchID     *uuid.UUID `json:"batch_id,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// CreatorIncome maps to the `creator_incomes` table. OrderID is unique: exactly one
// earnings line per originating order.
type CreatorIncome struct {
	ID              uuid.UUID        `json:"id"`
	CreatorID       uuid.UUID        `json:"creator_id"`
	Source          string           `json:"source"`
	OrderID         uuid.UUID        `json:"order_id"`
	TotalAmount     int64            `json:"total_amount"` // in minor units
	PlatformFee     int64            `json:"platform_fee"`
	NetAmount       int64            `json:"net_amount"`
	SharingRatioBps int32            `json:"sharing_ratio_bps"`
	WithdrawStatus  string           `json:"withdraw_status"`
	Period          SettlementPeriod `json:"settlement_period"`
	Withdrawal      Withdrawal       `json:"withdrawal"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}

// NewCreatorIncome builds a pending earnings line, deriving the net amount from the
// total and fee and stamping the settlement period from the creation instant.
func NewCreatorIncome(creatorID uuid.UUID, source string, orderID uuid.UUID, totalAmount, platformFee int64, ratioBps int32, now time.Time) *CreatorIncome {
	return &CreatorIncome{
		ID:              uuid.New(),
		CreatorID:       creatorID,
		Source:          source,
		OrderID:         orderID,
		TotalAmount:     totalAmount,
		PlatformFee:     platformFee,
		NetAmount:       totalAmount - platformFee,
		SharingRatioBps: ratioBps,
		WithdrawStatus:  WithdrawStatusPending,
		Period:          SettlementPeriodFor(now),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// WithdrawalRequest is the DTO for a creator-initiated payout request.
type WithdrawalRequest struct {
	Method  string `json:"method"`
	Account string `json:"account"`
}

// WithdrawalBatch summarizes one payout sweep over a creator's withdrawable records.
type WithdrawalBatch struct {
	BatchID     uuid.UUID `json:"batch_id"`
	CreatorID   uuid.UUID `json:"creator_id"`
	RecordCount int       `json:"record_count"`
	NetAmount   int64     `json:"net_amount"`
	Method      string    `json:"method"`
	Account     string    `json:"account"`
	RequestedAt time.Time `json:"requested_at"`
}

// SettlementSummary aggregates a creator's earnings for one settlement period.
type SettlementSummary struct {
	Year        int   `json:"year"`
	Month       int   `json:"month"`
	TotalAmount int64 `json:"total_amount"`
	PlatformFee int64 `json:"platform_fee"`
	NetAmount   int64 `json:"net_amount"`
	RecordCount int   `json:"record_count"`
}
