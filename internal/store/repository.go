/**
 * @description
 * This file defines the `Repository` interface: the contract for all data access the
 * payment service needs. Keeping the interface in front of the PostgreSQL
 * implementation decouples the orchestration logic from storage and lets tests run
 * against hand-rolled stubs.
 *
 * @notes
 * - Every lifecycle transition is expressed as a conditional write that names the
 *   required current state and reports whether it won. Callers never read-then-write
 *   a status; the returned bool is the race guard.
 * - Multi-row fulfillment effects (income insert, subscription renew + history) are
 *   single methods so the implementation can run them in one database transaction.
 */

package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fanvault/payment-service/internal/domain"
)

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Order methods
	CreateOrder(ctx context.Context, order *domain.Order) error
	FindOrderByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error)
	ListOrdersByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Order, error)
	// MarkOrderPaid transitions pending -> paid and stamps the provider transaction id.
	// Returns false when the order was not pending (lost race or replay).
	MarkOrderPaid(ctx context.Context, orderNo, providerTxID string, paidAt time.Time) (bool, error)
	// MarkOrderFailed transitions pending -> failed on an explicit terminal provider code.
	MarkOrderFailed(ctx context.Context, orderNo, reason string) (bool, error)
	// MarkOrderRefunded transitions paid -> refunded.
	MarkOrderRefunded(ctx context.Context, orderNo, reason string) (bool, error)
	// ExpireOverdueOrders sweeps pending orders whose deadline has passed to expired.
	ExpireOverdueOrders(ctx context.Context, now time.Time) (int64, error)

	// Subscription methods
	// FindCurrentSubscriptionByUserID returns the user's active-or-expired subscription,
	// or ErrSubscriptionNotFound when the user never subscribed.
	FindCurrentSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error)
	CreateSubscription(ctx context.Context, sub *domain.Subscription, entry *domain.SubscriptionHistoryEntry) error
	RenewSubscription(ctx context.Context, params RenewSubscriptionParams) error
	ListSubscriptionHistory(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionHistoryEntry, error)

	// Creator income / ledger methods
	CreateCreatorIncome(ctx context.Context, income *domain.CreatorIncome) error
	FindCreatorIncomeByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.CreatorIncome, error)
	FindCreatorIncomeByID(ctx context.Context, incomeID uuid.UUID) (*domain.CreatorIncome, error)
	// PromoteMaturedIncome moves pending records created before maturedBefore to
	// withdrawable and returns how many rows were promoted.
	PromoteMaturedIncome(ctx context.Context, maturedBefore time.Time) (int64, error)
	WithdrawableBalance(ctx context.Context, creatorID uuid.UUID) (int64, error)
	// MarkIncomeProcessing transitions one withdrawable record to processing and stamps
	// the withdrawal request fields. Returns false when the record was not withdrawable.
	MarkIncomeProcessing(ctx context.Context, incomeID uuid.UUID, stamp WithdrawalStamp) (bool, error)
	// SweepWithdrawableIncome moves all of a creator's withdrawable records into one
	// processing batch, returning the row count and summed net amount.
	SweepWithdrawableIncome(ctx context.Context, creatorID uuid.UUID, stamp WithdrawalStamp) (int64, int64, error)
	// MarkIncomeWithdrawn transitions one processing record of the given batch to
	// withdrawn. Returns false when the record was not processing under that batch.
	MarkIncomeWithdrawn(ctx context.Context, incomeID uuid.UUID, batchID uuid.UUID, processedAt time.Time) (bool, error)
	// CompleteWithdrawalBatch finalizes every processing record of a batch.
	CompleteWithdrawalBatch(ctx context.Context, batchID uuid.UUID, processedAt time.Time) (int64, error)
	ListCreatorIncome(ctx context.Context, creatorID uuid.UUID, status string, limit, offset int) ([]domain.CreatorIncome, error)
	SettlementSummaries(ctx context.Context, creatorID uuid.UUID, months int) ([]domain.SettlementSummary, error)
}

// RenewSubscriptionParams carries one subscription renewal plus its history entry so
// the store can apply both in a single transaction.
type RenewSubscriptionParams struct {
	SubscriptionID uuid.UUID
	PlanID         string
	PlanPrice      int64
	DurationDays   int
	NewEndDate     time.Time
	StartDate      time.Time
	LastOrderID    uuid.UUID
	History        domain.SubscriptionHistoryEntry
}

// WithdrawalStamp carries the request-time fields written onto income records entering
// the processing state.
type WithdrawalStamp struct {
	BatchID     uuid.UUID
	Method      string
	Account     string
	RequestedAt time.Time
}
