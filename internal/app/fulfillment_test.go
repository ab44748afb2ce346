package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fanvault/payment-service/internal/domain"
	"github.com/fanvault/payment-service/internal/gateway"
	"github.com/fanvault/payment-service/internal/store"
)

type fulfillmentRepoStub struct {
	store.Repository

	currentSub *domain.Subscription
	// refreshedSub is the subscription view returned by reads after the first, for
	// scenarios where a concurrent renewal lands between read and update.
	refreshedSub *domain.Subscription
	findCalls    int

	createdSub   *domain.Subscription
	createdEntry *domain.SubscriptionHistoryEntry
	renewParams  *store.RenewSubscriptionParams
	// renewStaleTimes makes the first N renewal attempts lose the end-date guard.
	renewStaleTimes int
	renewCalls      int

	income    *domain.CreatorIncome
	incomeErr error
}

func (s *fulfillmentRepoStub) FindCurrentSubscriptionByUserID(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	s.findCalls++
	sub := s.currentSub
	if s.findCalls > 1 && s.refreshedSub != nil {
		sub = s.refreshedSub
	}
	if sub == nil {
		return nil, store.ErrSubscriptionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (s *fulfillmentRepoStub) CreateSubscription(ctx context.Context, sub *domain.Subscription, entry *domain.SubscriptionHistoryEntry) error {
	s.createdSub = sub
	s.createdEntry = entry
	return nil
}

func (s *fulfillmentRepoStub) RenewSubscription(ctx context.Context, params store.RenewSubscriptionParams) error {
	s.renewCalls++
	if s.renewCalls <= s.renewStaleTimes {
		return store.ErrStaleRenewal
	}
	s.renewParams = &params
	return nil
}

func (s *fulfillmentRepoStub) CreateCreatorIncome(ctx context.Context, income *domain.CreatorIncome) error {
	if s.incomeErr != nil {
		return s.incomeErr
	}
	s.income = income
	return nil
}

func newFulfillmentTestService(repo *fulfillmentRepoStub, profiles *profileStub, publisher *publisherStub) *Service {
	svc := NewService(repo, gateway.NewRegistry(&adapterStub{}), &catalogStub{}, profiles, publisher, nil, testSettings())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func paidSubscriptionOrder() *domain.Order {
	return &domain.Order{
		ID:            uuid.New(),
		OrderNo:       "PAY-20260315-sub001",
		UserID:        uuid.New(),
		OrderType:     domain.OrderTypeSubscription,
		RelatedID:     "monthly",
		Amount:        999,
		Currency:      "USD",
		PaymentMethod: domain.PaymentMethodCard,
		PaymentStatus: domain.OrderStatusPaid,
	}
}

func TestFulfill_FirstSubscriptionCreatesEntitlement(t *testing.T) {
	repo := &fulfillmentRepoStub{}
	svc := newFulfillmentTestService(repo, &profileStub{}, &publisherStub{})
	order := paidSubscriptionOrder()

	if err := svc.fulfill(context.Background(), order); err != nil {
		t.Fatalf("fulfill returned error: %v", err)
	}
	if repo.createdSub == nil {
		t.Fatal("expected a subscription to be created")
	}
	wantEnd := svc.now().Add(30 * 24 * time.Hour)
	if !repo.createdSub.EndDate.Equal(wantEnd) {
		t.Fatalf("expected end date %s, got %s", wantEnd, repo.createdSub.EndDate)
	}
	if repo.createdSub.Status != domain.SubscriptionStatusActive {
		t.Fatalf("expected active subscription, got %q", repo.createdSub.Status)
	}
	if repo.createdEntry == nil || repo.createdEntry.Event != domain.SubscriptionEventCreated {
		t.Fatal("expected a created history entry bound to the order")
	}
	if repo.createdEntry.OrderID == nil || *repo.createdEntry.OrderID != order.ID {
		t.Fatal("history entry must reference the paying order")
	}
}

func TestFulfill_RenewalFromActiveStacksOnEndDate(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	oldEnd := now.Add(10 * 24 * time.Hour)
	repo := &fulfillmentRepoStub{currentSub: &domain.Subscription{
		ID:      uuid.New(),
		Status:  domain.SubscriptionStatusActive,
		EndDate: oldEnd,
	}}
	svc := newFulfillmentTestService(repo, &profileStub{}, &publisherStub{})

	if err := svc.fulfill(context.Background(), paidSubscriptionOrder()); err != nil {
		t.Fatalf("fulfill returned error: %v", err)
	}
	if repo.renewParams == nil {
		t.Fatal("expected a renewal")
	}
	wantEnd := oldEnd.Add(30 * 24 * time.Hour)
	if !repo.renewParams.NewEndDate.Equal(wantEnd) {
		t.Fatalf("an active renewal must stack: want %s, got %s", wantEnd, repo.renewParams.NewEndDate)
	}
	if repo.renewParams.History.Event != domain.SubscriptionEventRenewed {
		t.Fatalf("expected renewed history event, got %q", repo.renewParams.History.Event)
	}
	if repo.renewParams.History.OldEndDate == nil || !repo.renewParams.History.OldEndDate.Equal(oldEnd) {
		t.Fatal("history must carry the previous end date")
	}
}

func TestFulfill_RenewalFromLapsedRestartsFromNow(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := &fulfillmentRepoStub{currentSub: &domain.Subscription{
		ID:      uuid.New(),
		Status:  domain.SubscriptionStatusExpired,
		EndDate: now.Add(-5 * 24 * time.Hour),
	}}
	svc := newFulfillmentTestService(repo, &profileStub{}, &publisherStub{})

	if err := svc.fulfill(context.Background(), paidSubscriptionOrder()); err != nil {
		t.Fatalf("fulfill returned error: %v", err)
	}
	wantEnd := now.Add(30 * 24 * time.Hour)
	if !repo.renewParams.NewEndDate.Equal(wantEnd) {
		t.Fatalf("a lapsed renewal must restart from now: want %s, got %s", wantEnd, repo.renewParams.NewEndDate)
	}
}

func TestFulfill_RenewalRecomputesAfterConcurrentExtension(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	subID := uuid.New()
	concurrentEnd := now.Add(40 * 24 * time.Hour)
	repo := &fulfillmentRepoStub{
		currentSub: &domain.Subscription{
			ID:      subID,
			Status:  domain.SubscriptionStatusActive,
			EndDate: now.Add(10 * 24 * time.Hour),
		},
		refreshedSub: &domain.Subscription{
			ID:      subID,
			Status:  domain.SubscriptionStatusActive,
			EndDate: concurrentEnd,
		},
		renewStaleTimes: 1,
	}
	svc := newFulfillmentTestService(repo, &profileStub{}, &publisherStub{})

	if err := svc.fulfill(context.Background(), paidSubscriptionOrder()); err != nil {
		t.Fatalf("a single lost renewal race must be retried, got %v", err)
	}
	if repo.renewCalls != 2 {
		t.Fatalf("expected one retry after the stale loss, got %d attempts", repo.renewCalls)
	}
	wantEnd := concurrentEnd.Add(30 * 24 * time.Hour)
	if repo.renewParams == nil || !repo.renewParams.NewEndDate.Equal(wantEnd) {
		t.Fatalf("the retry must stack on the concurrently extended end date %s, got %+v", wantEnd, repo.renewParams)
	}
}

func TestFulfill_RenewalStillStaleAfterRetrySurfacesConflict(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	repo := &fulfillmentRepoStub{
		currentSub: &domain.Subscription{
			ID:      uuid.New(),
			Status:  domain.SubscriptionStatusActive,
			EndDate: now.Add(10 * 24 * time.Hour),
		},
		renewStaleTimes: 2,
	}
	svc := newFulfillmentTestService(repo, &profileStub{}, &publisherStub{})

	err := svc.fulfill(context.Background(), paidSubscriptionOrder())
	if !errors.Is(err, store.ErrStaleRenewal) {
		t.Fatalf("a renewal that keeps losing must surface the conflict sentinel, got %v", err)
	}
}

func TestFulfill_ContentRecordsIncomeAndLifetimeEarnings(t *testing.T) {
	creatorID := uuid.New()
	order := &domain.Order{
		ID:            uuid.New(),
		OrderNo:       "PAY-20260315-cnt001",
		UserID:        uuid.New(),
		OrderType:     domain.OrderTypeContent,
		RelatedID:     "content-1",
		Amount:        1500,
		PaymentStatus: domain.OrderStatusPaid,
	}
	order.ApplyRevenueSnapshot(creatorID, 8000)

	repo := &fulfillmentRepoStub{}
	profiles := &profileStub{}
	svc := newFulfillmentTestService(repo, profiles, &publisherStub{})

	if err := svc.fulfill(context.Background(), order); err != nil {
		t.Fatalf("fulfill returned error: %v", err)
	}
	if repo.income == nil {
		t.Fatal("expected a content sale income line")
	}
	if repo.income.Source != domain.IncomeSourceContentSale {
		t.Fatalf("expected content_sale source, got %q", repo.income.Source)
	}
	if repo.income.TotalAmount != 1500 || repo.income.PlatformFee != 300 || repo.income.NetAmount != 1200 {
		t.Fatalf("unexpected income amounts: total=%d fee=%d net=%d", repo.income.TotalAmount, repo.income.PlatformFee, repo.income.NetAmount)
	}
	if repo.income.WithdrawStatus != domain.WithdrawStatusPending {
		t.Fatalf("new income must start pending, got %q", repo.income.WithdrawStatus)
	}
	if len(profiles.incremented) != 1 || profiles.incremented[0] != 1200 {
		t.Fatalf("expected one lifetime earnings increment of 1200, got %v", profiles.incremented)
	}
}

func TestFulfill_LifetimeEarningsFailureIsIncidentNotError(t *testing.T) {
	creatorID := uuid.New()
	order := &domain.Order{
		ID:            uuid.New(),
		OrderNo:       "PAY-20260315-cnt002",
		OrderType:     domain.OrderTypeContent,
		Amount:        1000,
		PaymentStatus: domain.OrderStatusPaid,
	}
	order.ApplyRevenueSnapshot(creatorID, 7000)

	repo := &fulfillmentRepoStub{}
	publisher := &publisherStub{}
	svc := newFulfillmentTestService(repo, &profileStub{incrementErr: context.DeadlineExceeded}, publisher)

	if err := svc.fulfill(context.Background(), order); err != nil {
		t.Fatalf("a profile counter failure must not fail fulfillment: %v", err)
	}
	if repo.income == nil {
		t.Fatal("the income line must still be recorded")
	}
	found := false
	for _, key := range publisher.routingKeys {
		if key == "fulfillment.incident" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an incident event, got %v", publisher.routingKeys)
	}
}

func TestFulfill_DuplicateIncomeIsNoOp(t *testing.T) {
	creatorID := uuid.New()
	order := &domain.Order{
		ID:            uuid.New(),
		OrderNo:       "PAY-20260315-tip001",
		OrderType:     domain.OrderTypeTip,
		Amount:        500,
		PaymentStatus: domain.OrderStatusPaid,
	}
	order.ApplyRevenueSnapshot(creatorID, 9000)

	repo := &fulfillmentRepoStub{incomeErr: store.ErrDuplicateIncome}
	svc := newFulfillmentTestService(repo, &profileStub{}, &publisherStub{})

	if err := svc.fulfill(context.Background(), order); err != nil {
		t.Fatalf("a duplicate income line must be a no-op, got %v", err)
	}
}
