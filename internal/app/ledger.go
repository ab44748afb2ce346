/**
 * @description
 * This file contains the creator earnings ledger: balances, the withdrawal state
 * machine, and settlement reporting. Income lines are immutable in their monetary
 * fields; the ledger only ever advances their withdrawal status through conditional
 * updates.
 *
 * Key features:
 * - Record-level withdrawal requests and batch sweeps share the same processing
 *   semantics: a uuid batch id groups the records of one payout run.
 * - Every transition is a compare-and-set in the store; a concurrent duplicate request
 *   loses the race and gets ErrInvalidState instead of double-paying.
 *
 * @dependencies
 * - internal/store: Repository interface and withdrawal stamp params.
 * - internal/domain: Income and batch models.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/fanvault/payment-service/internal/domain"
	"github.com/fanvault/payment-service/internal/store"
)

// ErrBelowWithdrawalMinimum means the creator's withdrawable balance does not meet the
// configured payout floor.
var ErrBelowWithdrawalMinimum = errors.New("withdrawable balance below the minimum payout amount")

// Ledger provides the creator earnings and withdrawal logic.
type Ledger struct {
	repo     store.Repository
	settings Settings
	now      func() time.Time
}

// NewLedger creates a new earnings ledger.
func NewLedger(repo store.Repository, settings Settings) *Ledger {
	return &Ledger{repo: repo, settings: settings, now: time.Now}
}

// WithdrawableBalance returns the sum of the creator's withdrawable net amounts.
func (l *Ledger) WithdrawableBalance(ctx context.Context, creatorID uuid.UUID) (int64, error) {
	return l.repo.WithdrawableBalance(ctx, creatorID)
}

// ListIncome returns a page of the creator's earnings lines, optionally filtered by
// withdrawal status.
func (l *Ledger) ListIncome(ctx context.Context, creatorID uuid.UUID, status string, limit, offset int) ([]domain.CreatorIncome, error) {
	switch status {
	case "", domain.WithdrawStatusPending, domain.WithdrawStatusWithdrawable,
		domain.WithdrawStatusProcessing, domain.WithdrawStatusWithdrawn, domain.WithdrawStatusFailed:
	default:
		return nil, fmt.Errorf("%w: unknown withdraw status %q", ErrValidation, status)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return l.repo.ListCreatorIncome(ctx, creatorID, status, limit, offset)
}

// RequestWithdrawal moves one withdrawable income record into processing, stamped with
// the payout method and destination account.
func (l *Ledger) RequestWithdrawal(ctx context.Context, creatorID, incomeID uuid.UUID, req *domain.WithdrawalRequest) (*domain.CreatorIncome, error) {
	if req.Method == "" || req.Account == "" {
		return nil, fmt.Errorf("%w: withdrawal method and account are required", ErrValidation)
	}

	income, err := l.repo.FindCreatorIncomeByID(ctx, incomeID)
	if err != nil {
		return nil, err
	}
	if income.CreatorID != creatorID {
		return nil, store.ErrIncomeNotFound
	}

	stamp := store.WithdrawalStamp{
		BatchID:     uuid.New(),
		Method:      req.Method,
		Account:     req.Account,
		RequestedAt: l.now(),
	}
	won, err := l.repo.MarkIncomeProcessing(ctx, incomeID, stamp)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("%w: income %s is %s, only withdrawable records can be requested", ErrInvalidState, incomeID, income.WithdrawStatus)
	}

	log.Printf("level=info component=ledger msg=\"withdrawal requested\" income_id=%s creator_id=%s batch_id=%s net=%d", incomeID, creatorID, stamp.BatchID, income.NetAmount)

	income.WithdrawStatus = domain.WithdrawStatusProcessing
	income.Withdrawal = domain.Withdrawal{
		RequestedAt: &stamp.RequestedAt,
		Method:      &stamp.Method,
		Account:     &stamp.Account,
		BatchID:     &stamp.BatchID,
	}
	return income, nil
}

// CreateWithdrawalBatch sweeps all of the creator's withdrawable records into one
// processing batch after validating the payout floor.
func (l *Ledger) CreateWithdrawalBatch(ctx context.Context, creatorID uuid.UUID, req *domain.WithdrawalRequest) (*domain.WithdrawalBatch, error) {
	if req.Method == "" || req.Account == "" {
		return nil, fmt.Errorf("%w: withdrawal method and account are required", ErrValidation)
	}

	balance, err := l.repo.WithdrawableBalance(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	if balance < l.settings.MinWithdrawalAmount {
		return nil, fmt.Errorf("%w: balance %d is below minimum %d", ErrBelowWithdrawalMinimum, balance, l.settings.MinWithdrawalAmount)
	}

	stamp := store.WithdrawalStamp{
		BatchID:     uuid.New(),
		Method:      req.Method,
		Account:     req.Account,
		RequestedAt: l.now(),
	}
	count, net, err := l.repo.SweepWithdrawableIncome(ctx, creatorID, stamp)
	if err != nil {
		return nil, err
	}
	if count == 0 {
		// A concurrent sweep emptied the balance between the check and the sweep.
		return nil, fmt.Errorf("%w: no withdrawable records left for creator %s", ErrInvalidState, creatorID)
	}

	log.Printf("level=info component=ledger msg=\"withdrawal batch created\" batch_id=%s creator_id=%s records=%d net=%d", stamp.BatchID, creatorID, count, net)

	return &domain.WithdrawalBatch{
		BatchID:     stamp.BatchID,
		CreatorID:   creatorID,
		RecordCount: int(count),
		NetAmount:   net,
		Method:      req.Method,
		Account:     req.Account,
		RequestedAt: stamp.RequestedAt,
	}, nil
}

// CompleteWithdrawal finalizes one processing record of a batch after the payout
// provider confirms the transfer.
func (l *Ledger) CompleteWithdrawal(ctx context.Context, incomeID, batchID uuid.UUID) error {
	won, err := l.repo.MarkIncomeWithdrawn(ctx, incomeID, batchID, l.now())
	if err != nil {
		return err
	}
	if !won {
		return fmt.Errorf("%w: income %s is not processing under batch %s", ErrInvalidState, incomeID, batchID)
	}
	log.Printf("level=info component=ledger msg=\"withdrawal completed\" income_id=%s batch_id=%s", incomeID, batchID)
	return nil
}

// CompleteWithdrawalBatch finalizes every processing record of a batch.
func (l *Ledger) CompleteWithdrawalBatch(ctx context.Context, batchID uuid.UUID) (int64, error) {
	count, err := l.repo.CompleteWithdrawalBatch(ctx, batchID, l.now())
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, fmt.Errorf("%w: batch %s has no processing records", ErrInvalidState, batchID)
	}
	log.Printf("level=info component=ledger msg=\"withdrawal batch completed\" batch_id=%s records=%d", batchID, count)
	return count, nil
}

// SettlementSummaries returns per-month earnings aggregates for the creator dashboard.
func (l *Ledger) SettlementSummaries(ctx context.Context, creatorID uuid.UUID, months int) ([]domain.SettlementSummary, error) {
	if months <= 0 || months > 24 {
		months = 12
	}
	return l.repo.SettlementSummaries(ctx, creatorID, months)
}
