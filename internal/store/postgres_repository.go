/**
 * @description
 * PostgreSQL implementation of the Repository interface using a pgx connection pool.
 * All status transitions are single conditional UPDATE statements guarded by the
 * expected current status; the RowsAffected count is the source of truth for who won a
 * race. Fulfillment writes that span multiple rows run inside one database transaction.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5, pgxpool: PostgreSQL driver and pool.
 * - github.com/google/uuid: Identifier handling.
 * - internal/domain: Domain models.
 */

package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fanvault/payment-service/internal/domain"
)

var (
	ErrOrderNotFound        = errors.New("order not found")
	ErrSubscriptionNotFound = errors.New("subscription not found")
	ErrIncomeNotFound       = errors.New("creator income not found")
	ErrDuplicateIncome      = errors.New("creator income already recorded for order")
	ErrStaleRenewal         = errors.New("subscription end date moved past the proposed renewal")
)

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const orderColumns = `
	id, order_no, user_id, order_type, related_id, amount, currency, payment_method,
	payment_status, provider_tx_id, description, metadata,
	creator_id, creator_amount, platform_amount, sharing_ratio_bps,
	expired_at, paid_at, created_at, updated_at
`

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	var metadata []byte
	err := row.Scan(
		&o.ID, &o.OrderNo, &o.UserID, &o.OrderType, &o.RelatedID, &o.Amount, &o.Currency,
		&o.PaymentMethod, &o.PaymentStatus, &o.ProviderTxID, &o.Description, &metadata,
		&o.CreatorID, &o.CreatorAmount, &o.PlatformAmount, &o.SharingRatioBps,
		&o.ExpiredAt, &o.PaidAt, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &o.Metadata); err != nil {
			return nil, err
		}
	}
	return &o, nil
}

// CreateOrder persists a new pending order together with its frozen revenue snapshot.
func (r *PostgresRepository) CreateOrder(ctx context.Context, order *domain.Order) error {
	metadata, err := json.Marshal(order.Metadata)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO orders (
			id, order_no, user_id, order_type, related_id, amount, currency, payment_method,
			payment_status, description, metadata,
			creator_id, creator_amount, platform_amount, sharing_ratio_bps,
			expired_at, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, NOW(), NOW())
	`
	_, err = r.db.Exec(ctx, query,
		order.ID, order.OrderNo, order.UserID, order.OrderType, order.RelatedID,
		order.Amount, order.Currency, order.PaymentMethod, order.PaymentStatus,
		order.Description, metadata,
		order.CreatorID, order.CreatorAmount, order.PlatformAmount, order.SharingRatioBps,
		order.ExpiredAt,
	)
	return err
}

func (r *PostgresRepository) FindOrderByOrderNo(ctx context.Context, orderNo string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE order_no = $1`
	order, err := scanOrder(r.db.QueryRow(ctx, query, orderNo))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return order, nil
}

func (r *PostgresRepository) ListOrdersByUserID(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *order)
	}
	return orders, rows.Err()
}

// MarkOrderPaid is the idempotency guard for callback handling: only a pending order
// may be marked paid, and the conditional update decides the race against duplicate
// callbacks and the expiry sweep.
func (r *PostgresRepository) MarkOrderPaid(ctx context.Context, orderNo, providerTxID string, paidAt time.Time) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'paid', provider_tx_id = $2, paid_at = $3, updated_at = NOW()
		WHERE order_no = $1 AND payment_status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, orderNo, providerTxID, paidAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) MarkOrderFailed(ctx context.Context, orderNo, reason string) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'failed',
			metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('failure_reason', $2::text),
			updated_at = NOW()
		WHERE order_no = $1 AND payment_status = 'pending'
	`
	tag, err := r.db.Exec(ctx, query, orderNo, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) MarkOrderRefunded(ctx context.Context, orderNo, reason string) (bool, error) {
	query := `
		UPDATE orders
		SET payment_status = 'refunded',
			metadata = COALESCE(metadata, '{}'::jsonb) || jsonb_build_object('refund_reason', $2::text),
			updated_at = NOW()
		WHERE order_no = $1 AND payment_status = 'paid'
	`
	tag, err := r.db.Exec(ctx, query, orderNo, reason)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

// ExpireOverdueOrders uses the same pending-only guard as MarkOrderPaid, so a late
// callback and the sweep can never both win the same order.
func (r *PostgresRepository) ExpireOverdueOrders(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE orders
		SET payment_status = 'expired', updated_at = NOW()
		WHERE payment_status = 'pending' AND expired_at < $1
	`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const subscriptionColumns = `
	id, user_id, plan_id, plan_price, plan_duration_days, status,
	start_date, end_date, auto_renew, last_order_id, created_at, updated_at
`

func scanSubscription(row pgx.Row) (*domain.Subscription, error) {
	var s domain.Subscription
	err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &s.PlanPrice, &s.PlanDurationDays, &s.Status,
		&s.StartDate, &s.EndDate, &s.AutoRenew, &s.LastOrderID, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// FindCurrentSubscriptionByUserID returns the newest active-or-expired subscription.
// Cancelled rows are history and never renewed in place.
func (r *PostgresRepository) FindCurrentSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	query := `
		SELECT ` + subscriptionColumns + `
		FROM subscriptions
		WHERE user_id = $1 AND status IN ('active', 'expired')
		ORDER BY end_date DESC
		LIMIT 1
	`
	sub, err := scanSubscription(r.db.QueryRow(ctx, query, userID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return sub, nil
}

func (r *PostgresRepository) CreateSubscription(ctx context.Context, sub *domain.Subscription, entry *domain.SubscriptionHistoryEntry) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	subQuery := `
		INSERT INTO subscriptions (
			id, user_id, plan_id, plan_price, plan_duration_days, status,
			start_date, end_date, auto_renew, last_order_id, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
	`
	if _, err := tx.Exec(ctx, subQuery,
		sub.ID, sub.UserID, sub.PlanID, sub.PlanPrice, sub.PlanDurationDays, sub.Status,
		sub.StartDate, sub.EndDate, sub.AutoRenew, sub.LastOrderID,
	); err != nil {
		return err
	}

	if err := insertSubscriptionHistory(ctx, tx, entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// RenewSubscription applies the renewal and its history entry in one transaction. The
// end-date guard keeps the entitlement window monotonic even under concurrent renewals;
// losing it is reported as ErrStaleRenewal so the caller can recompute from the fresh row.
func (r *PostgresRepository) RenewSubscription(ctx context.Context, params RenewSubscriptionParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE subscriptions
		SET plan_id = $2, plan_price = $3, plan_duration_days = $4, status = 'active',
			start_date = LEAST(start_date, $5), end_date = $6, last_order_id = $7, updated_at = NOW()
		WHERE id = $1 AND end_date <= $6
	`
	tag, err := tx.Exec(ctx, query,
		params.SubscriptionID, params.PlanID, params.PlanPrice, params.DurationDays,
		params.StartDate, params.NewEndDate, params.LastOrderID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrStaleRenewal
	}

	entry := params.History
	if err := insertSubscriptionHistory(ctx, tx, &entry); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertSubscriptionHistory(ctx context.Context, tx pgx.Tx, entry *domain.SubscriptionHistoryEntry) error {
	query := `
		INSERT INTO subscription_history (
			id, subscription_id, event, order_id, plan_id, old_end_date, new_end_date, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
	`
	_, err := tx.Exec(ctx, query,
		entry.ID, entry.SubscriptionID, entry.Event, entry.OrderID, entry.PlanID,
		entry.OldEndDate, entry.NewEndDate,
	)
	return err
}

func (r *PostgresRepository) ListSubscriptionHistory(ctx context.Context, subscriptionID uuid.UUID) ([]domain.SubscriptionHistoryEntry, error) {
	query := `
		SELECT id, subscription_id, event, order_id, plan_id, old_end_date, new_end_date, created_at
		FROM subscription_history
		WHERE subscription_id = $1
		ORDER BY created_at ASC
	`
	rows, err := r.db.Query(ctx, query, subscriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.SubscriptionHistoryEntry
	for rows.Next() {
		var e domain.SubscriptionHistoryEntry
		if err := rows.Scan(&e.ID, &e.SubscriptionID, &e.Event, &e.OrderID, &e.PlanID, &e.OldEndDate, &e.NewEndDate, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

const incomeColumns = `
	id, creator_id, source, order_id, total_amount, platform_fee, net_amount, sharing_ratio_bps,
	withdraw_status, period_year, period_month, period_start, period_end,
	withdrawal_requested_at, withdrawal_method, withdrawal_account, withdrawal_batch_id,
	withdrawal_processed_at, created_at, updated_at
`

func scanIncome(row pgx.Row) (*domain.CreatorIncome, error) {
	var in domain.CreatorIncome
	err := row.Scan(
		&in.ID, &in.CreatorID, &in.Source, &in.OrderID, &in.TotalAmount, &in.PlatformFee,
		&in.NetAmount, &in.SharingRatioBps, &in.WithdrawStatus,
		&in.Period.Year, &in.Period.Month, &in.Period.StartDate, &in.Period.EndDate,
		&in.Withdrawal.RequestedAt, &in.Withdrawal.Method, &in.Withdrawal.Account,
		&in.Withdrawal.BatchID, &in.Withdrawal.ProcessedAt,
		&in.CreatedAt, &in.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// CreateCreatorIncome inserts one earnings line. The unique order_id index turns a
// double-fulfillment attempt into ErrDuplicateIncome instead of a second row.
func (r *PostgresRepository) CreateCreatorIncome(ctx context.Context, income *domain.CreatorIncome) error {
	query := `
		INSERT INTO creator_incomes (
			id, creator_id, source, order_id, total_amount, platform_fee, net_amount,
			sharing_ratio_bps, withdraw_status, period_year, period_month, period_start, period_end,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, NOW(), NOW())
		ON CONFLICT (order_id) DO NOTHING
	`
	tag, err := r.db.Exec(ctx, query,
		income.ID, income.CreatorID, income.Source, income.OrderID,
		income.TotalAmount, income.PlatformFee, income.NetAmount, income.SharingRatioBps,
		income.WithdrawStatus,
		income.Period.Year, income.Period.Month, income.Period.StartDate, income.Period.EndDate,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateIncome
	}
	return nil
}

func (r *PostgresRepository) FindCreatorIncomeByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.CreatorIncome, error) {
	query := `SELECT ` + incomeColumns + ` FROM creator_incomes WHERE order_id = $1`
	income, err := scanIncome(r.db.QueryRow(ctx, query, orderID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIncomeNotFound
		}
		return nil, err
	}
	return income, nil
}

func (r *PostgresRepository) FindCreatorIncomeByID(ctx context.Context, incomeID uuid.UUID) (*domain.CreatorIncome, error) {
	query := `SELECT ` + incomeColumns + ` FROM creator_incomes WHERE id = $1`
	income, err := scanIncome(r.db.QueryRow(ctx, query, incomeID))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrIncomeNotFound
		}
		return nil, err
	}
	return income, nil
}

func (r *PostgresRepository) PromoteMaturedIncome(ctx context.Context, maturedBefore time.Time) (int64, error) {
	query := `
		UPDATE creator_incomes
		SET withdraw_status = 'withdrawable', updated_at = NOW()
		WHERE withdraw_status = 'pending' AND created_at < $1
	`
	tag, err := r.db.Exec(ctx, query, maturedBefore)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) WithdrawableBalance(ctx context.Context, creatorID uuid.UUID) (int64, error) {
	var balance int64
	query := `
		SELECT COALESCE(SUM(net_amount), 0)
		FROM creator_incomes
		WHERE creator_id = $1 AND withdraw_status = 'withdrawable'
	`
	if err := r.db.QueryRow(ctx, query, creatorID).Scan(&balance); err != nil {
		return 0, err
	}
	return balance, nil
}

func (r *PostgresRepository) MarkIncomeProcessing(ctx context.Context, incomeID uuid.UUID, stamp WithdrawalStamp) (bool, error) {
	query := `
		UPDATE creator_incomes
		SET withdraw_status = 'processing', withdrawal_requested_at = $2, withdrawal_method = $3,
			withdrawal_account = $4, withdrawal_batch_id = $5, updated_at = NOW()
		WHERE id = $1 AND withdraw_status = 'withdrawable'
	`
	tag, err := r.db.Exec(ctx, query, incomeID, stamp.RequestedAt, stamp.Method, stamp.Account, stamp.BatchID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) SweepWithdrawableIncome(ctx context.Context, creatorID uuid.UUID, stamp WithdrawalStamp) (int64, int64, error) {
	query := `
		WITH swept AS (
			UPDATE creator_incomes
			SET withdraw_status = 'processing', withdrawal_requested_at = $2, withdrawal_method = $3,
				withdrawal_account = $4, withdrawal_batch_id = $5, updated_at = NOW()
			WHERE creator_id = $1 AND withdraw_status = 'withdrawable'
			RETURNING net_amount
		)
		SELECT COUNT(*), COALESCE(SUM(net_amount), 0) FROM swept
	`
	var count, net int64
	err := r.db.QueryRow(ctx, query, creatorID, stamp.RequestedAt, stamp.Method, stamp.Account, stamp.BatchID).Scan(&count, &net)
	if err != nil {
		return 0, 0, err
	}
	return count, net, nil
}

func (r *PostgresRepository) MarkIncomeWithdrawn(ctx context.Context, incomeID uuid.UUID, batchID uuid.UUID, processedAt time.Time) (bool, error) {
	query := `
		UPDATE creator_incomes
		SET withdraw_status = 'withdrawn', withdrawal_processed_at = $3, updated_at = NOW()
		WHERE id = $1 AND withdraw_status = 'processing' AND withdrawal_batch_id = $2
	`
	tag, err := r.db.Exec(ctx, query, incomeID, batchID, processedAt)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) CompleteWithdrawalBatch(ctx context.Context, batchID uuid.UUID, processedAt time.Time) (int64, error) {
	query := `
		UPDATE creator_incomes
		SET withdraw_status = 'withdrawn', withdrawal_processed_at = $2, updated_at = NOW()
		WHERE withdrawal_batch_id = $1 AND withdraw_status = 'processing'
	`
	tag, err := r.db.Exec(ctx, query, batchID, processedAt)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListCreatorIncome(ctx context.Context, creatorID uuid.UUID, status string, limit, offset int) ([]domain.CreatorIncome, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	query := `
		SELECT ` + incomeColumns + `
		FROM creator_incomes
		WHERE creator_id = $1 AND ($2 = '' OR withdraw_status = $2)
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4
	`
	rows, err := r.db.Query(ctx, query, creatorID, status, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var incomes []domain.CreatorIncome
	for rows.Next() {
		income, err := scanIncome(rows)
		if err != nil {
			return nil, err
		}
		incomes = append(incomes, *income)
	}
	return incomes, rows.Err()
}

func (r *PostgresRepository) SettlementSummaries(ctx context.Context, creatorID uuid.UUID, months int) ([]domain.SettlementSummary, error) {
	if months <= 0 || months > 36 {
		months = 12
	}
	query := `
		SELECT period_year, period_month,
			COALESCE(SUM(total_amount), 0),
			COALESCE(SUM(platform_fee), 0),
			COALESCE(SUM(net_amount), 0),
			COUNT(*)
		FROM creator_incomes
		WHERE creator_id = $1
		GROUP BY period_year, period_month
		ORDER BY period_year DESC, period_month DESC
		LIMIT $2
	`
	rows, err := r.db.Query(ctx, query, creatorID, months)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []domain.SettlementSummary
	for rows.Next() {
		var s domain.SettlementSummary
		if err := rows.Scan(&s.Year, &s.Month, &s.TotalAmount, &s.PlatformFee, &s.NetAmount, &s.RecordCount); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}
