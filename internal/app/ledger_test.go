package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fanvault/payment-service/internal/domain"
	"github.com/fanvault/payment-service/internal/store"
)

type ledgerRepoStub struct {
	store.Repository

	income        *domain.CreatorIncome
	balance       int64
	processingWon bool
	stamp         *store.WithdrawalStamp

	sweepCount int64
	sweepNet   int64
	sweepStamp *store.WithdrawalStamp

	withdrawnWon   bool
	completedBatch int64
}

func (s *ledgerRepoStub) FindCreatorIncomeByID(ctx context.Context, incomeID uuid.UUID) (*domain.CreatorIncome, error) {
	if s.income == nil || s.income.ID != incomeID {
		return nil, store.ErrIncomeNotFound
	}
	copied := *s.income
	return &copied, nil
}

func (s *ledgerRepoStub) WithdrawableBalance(ctx context.Context, creatorID uuid.UUID) (int64, error) {
	return s.balance, nil
}

func (s *ledgerRepoStub) MarkIncomeProcessing(ctx context.Context, incomeID uuid.UUID, stamp store.WithdrawalStamp) (bool, error) {
	s.stamp = &stamp
	return s.processingWon, nil
}

func (s *ledgerRepoStub) SweepWithdrawableIncome(ctx context.Context, creatorID uuid.UUID, stamp store.WithdrawalStamp) (int64, int64, error) {
	s.sweepStamp = &stamp
	return s.sweepCount, s.sweepNet, nil
}

func (s *ledgerRepoStub) MarkIncomeWithdrawn(ctx context.Context, incomeID uuid.UUID, batchID uuid.UUID, processedAt time.Time) (bool, error) {
	return s.withdrawnWon, nil
}

func (s *ledgerRepoStub) CompleteWithdrawalBatch(ctx context.Context, batchID uuid.UUID, processedAt time.Time) (int64, error) {
	return s.completedBatch, nil
}

func newTestLedger(repo *ledgerRepoStub) *Ledger {
	l := NewLedger(repo, testSettings())
	l.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return l
}

func withdrawableIncome(creatorID uuid.UUID) *domain.CreatorIncome {
	return &domain.CreatorIncome{
		ID:             uuid.New(),
		CreatorID:      creatorID,
		Source:         domain.IncomeSourceContentSale,
		OrderID:        uuid.New(),
		TotalAmount:    1000,
		PlatformFee:    300,
		NetAmount:      700,
		WithdrawStatus: domain.WithdrawStatusWithdrawable,
	}
}

func TestRequestWithdrawal_MovesRecordToProcessing(t *testing.T) {
	creatorID := uuid.New()
	repo := &ledgerRepoStub{income: withdrawableIncome(creatorID), processingWon: true}
	ledger := newTestLedger(repo)

	income, err := ledger.RequestWithdrawal(context.Background(), creatorID, repo.income.ID, &domain.WithdrawalRequest{
		Method:  "bank_transfer",
		Account: "acct_123",
	})
	if err != nil {
		t.Fatalf("RequestWithdrawal returned error: %v", err)
	}
	if income.WithdrawStatus != domain.WithdrawStatusProcessing {
		t.Fatalf("expected processing status, got %q", income.WithdrawStatus)
	}
	if repo.stamp == nil || repo.stamp.Method != "bank_transfer" || repo.stamp.Account != "acct_123" {
		t.Fatalf("expected the request fields stamped, got %+v", repo.stamp)
	}
	if income.Withdrawal.BatchID == nil {
		t.Fatal("expected a batch id on the record")
	}
}

func TestRequestWithdrawal_WrongCreatorLooksLikeMissing(t *testing.T) {
	repo := &ledgerRepoStub{income: withdrawableIncome(uuid.New()), processingWon: true}
	ledger := newTestLedger(repo)

	_, err := ledger.RequestWithdrawal(context.Background(), uuid.New(), repo.income.ID, &domain.WithdrawalRequest{
		Method:  "bank_transfer",
		Account: "acct_123",
	})
	if !errors.Is(err, store.ErrIncomeNotFound) {
		t.Fatalf("expected ErrIncomeNotFound, got %v", err)
	}
}

func TestRequestWithdrawal_LostRaceIsInvalidState(t *testing.T) {
	creatorID := uuid.New()
	repo := &ledgerRepoStub{income: withdrawableIncome(creatorID), processingWon: false}
	ledger := newTestLedger(repo)

	_, err := ledger.RequestWithdrawal(context.Background(), creatorID, repo.income.ID, &domain.WithdrawalRequest{
		Method:  "bank_transfer",
		Account: "acct_123",
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for a lost race, got %v", err)
	}
}

func TestRequestWithdrawal_RequiresMethodAndAccount(t *testing.T) {
	ledger := newTestLedger(&ledgerRepoStub{})

	_, err := ledger.RequestWithdrawal(context.Background(), uuid.New(), uuid.New(), &domain.WithdrawalRequest{})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestCreateWithdrawalBatch_SweepsFullBalance(t *testing.T) {
	creatorID := uuid.New()
	repo := &ledgerRepoStub{balance: 12000, sweepCount: 3, sweepNet: 12000}
	ledger := newTestLedger(repo)

	batch, err := ledger.CreateWithdrawalBatch(context.Background(), creatorID, &domain.WithdrawalRequest{
		Method:  "bank_transfer",
		Account: "acct_123",
	})
	if err != nil {
		t.Fatalf("CreateWithdrawalBatch returned error: %v", err)
	}
	if batch.RecordCount != 3 || batch.NetAmount != 12000 {
		t.Fatalf("unexpected batch summary: %+v", batch)
	}
	if repo.sweepStamp == nil || repo.sweepStamp.BatchID != batch.BatchID {
		t.Fatal("the sweep stamp must carry the batch id")
	}
}

func TestCreateWithdrawalBatch_BelowMinimumRejected(t *testing.T) {
	repo := &ledgerRepoStub{balance: 4999}
	ledger := newTestLedger(repo)

	_, err := ledger.CreateWithdrawalBatch(context.Background(), uuid.New(), &domain.WithdrawalRequest{
		Method:  "bank_transfer",
		Account: "acct_123",
	})
	if !errors.Is(err, ErrBelowWithdrawalMinimum) {
		t.Fatalf("expected ErrBelowWithdrawalMinimum, got %v", err)
	}
	if repo.sweepStamp != nil {
		t.Fatal("no sweep may run below the payout floor")
	}
}

func TestCreateWithdrawalBatch_EmptySweepIsInvalidState(t *testing.T) {
	// A concurrent sweep can drain the balance between the check and the sweep.
	repo := &ledgerRepoStub{balance: 12000, sweepCount: 0}
	ledger := newTestLedger(repo)

	_, err := ledger.CreateWithdrawalBatch(context.Background(), uuid.New(), &domain.WithdrawalRequest{
		Method:  "bank_transfer",
		Account: "acct_123",
	})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCompleteWithdrawal_LostRaceIsInvalidState(t *testing.T) {
	ledger := newTestLedger(&ledgerRepoStub{withdrawnWon: false})

	err := ledger.CompleteWithdrawal(context.Background(), uuid.New(), uuid.New())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCompleteWithdrawalBatch_EmptyBatchIsInvalidState(t *testing.T) {
	ledger := newTestLedger(&ledgerRepoStub{completedBatch: 0})

	_, err := ledger.CompleteWithdrawalBatch(context.Background(), uuid.New())
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestCompleteWithdrawalBatch_ReturnsFinalizedCount(t *testing.T) {
	ledger := newTestLedger(&ledgerRepoStub{completedBatch: 4})

	count, err := ledger.CompleteWithdrawalBatch(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("CompleteWithdrawalBatch returned error: %v", err)
	}
	if count != 4 {
		t.Fatalf("expected 4 finalized records, got %d", count)
	}
}
