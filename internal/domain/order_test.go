package domain

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestApplyRevenueSnapshot_SplitReconcilesExactly(t *testing.T) {
	cases := []struct {
		amount   int64
		ratioBps int32
	}{
		{1000, 7000},
		{999, 7000},
		{1, 9999},
		{333, 8000},
		{1500, 10000},
	}
	for _, tc := range cases {
		order := &Order{Amount: tc.amount}
		order.ApplyRevenueSnapshot(uuid.New(), tc.ratioBps)

		if order.CreatorAmount+order.PlatformAmount != tc.amount {
			t.Fatalf("amount=%d ratio=%d: split %d+%d does not reconcile", tc.amount, tc.ratioBps, order.CreatorAmount, order.PlatformAmount)
		}
		want := tc.amount * int64(tc.ratioBps) / RatioDenominatorBps
		if order.CreatorAmount != want {
			t.Fatalf("amount=%d ratio=%d: creator share %d, want %d", tc.amount, tc.ratioBps, order.CreatorAmount, want)
		}
	}
}

func TestNewCreatorIncome_DerivesNetAndPeriod(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	income := NewCreatorIncome(uuid.New(), IncomeSourceContentSale, uuid.New(), 1500, 300, 8000, now)

	if income.NetAmount != 1200 {
		t.Fatalf("expected net 1200, got %d", income.NetAmount)
	}
	if income.TotalAmount != income.PlatformFee+income.NetAmount {
		t.Fatal("total must equal fee plus net")
	}
	if income.WithdrawStatus != WithdrawStatusPending {
		t.Fatalf("new income must be pending, got %q", income.WithdrawStatus)
	}
	if income.Period.Year != 2026 || income.Period.Month != 3 {
		t.Fatalf("unexpected settlement period %+v", income.Period)
	}
}

func TestSettlementPeriodFor_CoversCalendarMonth(t *testing.T) {
	period := SettlementPeriodFor(time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC))

	if !period.StartDate.Equal(time.Date(2026, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period start %s", period.StartDate)
	}
	if !period.EndDate.Equal(time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected period end %s", period.EndDate)
	}
}

func TestSubscriptionIsCurrent(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)

	active := &Subscription{Status: SubscriptionStatusActive, EndDate: now.Add(time.Hour)}
	if !active.IsCurrent(now) {
		t.Fatal("an active subscription ending in the future is current")
	}

	lapsed := &Subscription{Status: SubscriptionStatusActive, EndDate: now.Add(-time.Hour)}
	if lapsed.IsCurrent(now) {
		t.Fatal("a past end date is never current")
	}

	cancelled := &Subscription{Status: SubscriptionStatusCancelled, EndDate: now.Add(time.Hour)}
	if cancelled.IsCurrent(now) {
		t.Fatal("a cancelled subscription is never current")
	}
}
