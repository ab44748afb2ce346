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
	"github.com/fanvault/payment-service/pkg/profileclient"
)

type createOrderRepoStub struct {
	store.Repository

	created *domain.Order
}

func (s *createOrderRepoStub) CreateOrder(ctx context.Context, order *domain.Order) error {
	s.created = order
	return nil
}

func newCreateTestService(repo *createOrderRepoStub, catalog *catalogStub, profiles *profileStub) *Service {
	svc := NewService(repo, gateway.NewRegistry(&adapterStub{}), catalog, profiles, &publisherStub{}, nil, testSettings())
	svc.now = func() time.Time { return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC) }
	return svc
}

func TestCreateOrder_ContentFreezesRevenueSnapshot(t *testing.T) {
	creatorID := uuid.New()
	repo := &createOrderRepoStub{}
	catalog := &catalogStub{sale: &domain.ContentSaleInfo{
		ContentID: "content-1",
		CreatorID: creatorID,
		Price:     1500,
		Currency:  "USD",
		Title:     "Backstage cut",
	}}
	svc := newCreateTestService(repo, catalog, &profileStub{ratio: 8000})

	order, params, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeContent,
		RelatedID:     "content-1",
		Amount:        1, // the catalog price must win
		PaymentMethod: domain.PaymentMethodWalletA,
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if params == nil {
		t.Fatal("expected payment params")
	}
	if order.Amount != 1500 {
		t.Fatalf("expected the catalog price 1500, got %d", order.Amount)
	}
	if order.CreatorID == nil || *order.CreatorID != creatorID {
		t.Fatal("expected the catalog owner frozen onto the order")
	}
	if order.SharingRatioBps != 8000 {
		t.Fatalf("expected the profile ratio 8000, got %d", order.SharingRatioBps)
	}
	if order.CreatorAmount != 1200 || order.PlatformAmount != 300 {
		t.Fatalf("unexpected split: creator=%d platform=%d", order.CreatorAmount, order.PlatformAmount)
	}
	if order.CreatorAmount+order.PlatformAmount != order.Amount {
		t.Fatal("split must reconcile exactly with the order amount")
	}
	if order.ExpiredAt != svc.now().Add(30*time.Minute) {
		t.Fatalf("unexpected expiry %s", order.ExpiredAt)
	}
	if repo.created == nil {
		t.Fatal("expected the order to be persisted")
	}
}

func TestCreateOrder_ContentFallsBackToDefaultRatio(t *testing.T) {
	repo := &createOrderRepoStub{}
	catalog := &catalogStub{sale: &domain.ContentSaleInfo{
		CreatorID: uuid.New(),
		Price:     1000,
		Currency:  "USD",
	}}
	svc := newCreateTestService(repo, catalog, &profileStub{ratioErr: profileclient.ErrRatioNotSet})

	order, _, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeContent,
		RelatedID:     "content-1",
		PaymentMethod: domain.PaymentMethodWalletA,
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if order.SharingRatioBps != 7000 {
		t.Fatalf("expected the configured default ratio 7000, got %d", order.SharingRatioBps)
	}
}

func TestCreateOrder_SubscriptionUsesPlanCatalogPrice(t *testing.T) {
	repo := &createOrderRepoStub{}
	svc := newCreateTestService(repo, &catalogStub{}, &profileStub{})

	order, _, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeSubscription,
		RelatedID:     "monthly",
		Amount:        1, // client-supplied amounts are ignored for plans
		PaymentMethod: domain.PaymentMethodWalletA,
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	if order.Amount != 999 {
		t.Fatalf("expected the plan price 999, got %d", order.Amount)
	}
	if order.Metadata["external_product_id"] != "com.fanvault.sub.monthly" {
		t.Fatalf("expected the store product id on the order, got %q", order.Metadata["external_product_id"])
	}
	if order.CreatorID != nil {
		t.Fatal("an unattributed subscription carries no revenue snapshot")
	}
}

func TestCreateOrder_UnknownPlanRejected(t *testing.T) {
	svc := newCreateTestService(&createOrderRepoStub{}, &catalogStub{}, &profileStub{})

	_, _, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeSubscription,
		RelatedID:     "lifetime",
		PaymentMethod: domain.PaymentMethodWalletA,
	})
	if !errors.Is(err, ErrUnknownPlan) {
		t.Fatalf("expected ErrUnknownPlan, got %v", err)
	}
}

func TestCreateOrder_TipAppliesPlatformFee(t *testing.T) {
	repo := &createOrderRepoStub{}
	svc := newCreateTestService(repo, &catalogStub{}, &profileStub{})
	creatorID := uuid.New()

	order, _, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeTip,
		RelatedID:     creatorID.String(),
		Amount:        1000,
		PaymentMethod: domain.PaymentMethodWalletA,
	})
	if err != nil {
		t.Fatalf("CreateOrder returned error: %v", err)
	}
	// 10% platform fee -> 9000 bps to the creator.
	if order.SharingRatioBps != 9000 {
		t.Fatalf("expected ratio 9000, got %d", order.SharingRatioBps)
	}
	if order.CreatorAmount != 900 || order.PlatformAmount != 100 {
		t.Fatalf("unexpected tip split: creator=%d platform=%d", order.CreatorAmount, order.PlatformAmount)
	}
}

func TestCreateOrder_TipRequiresPositiveAmount(t *testing.T) {
	svc := newCreateTestService(&createOrderRepoStub{}, &catalogStub{}, &profileStub{})

	_, _, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeTip,
		RelatedID:     uuid.NewString(),
		Amount:        0,
		PaymentMethod: domain.PaymentMethodWalletA,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

type storeAdapterStub struct {
	adapterStub
}

func (a *storeAdapterStub) Method() string { return domain.PaymentMethodIAP }

func TestCreateOrder_IAPRequiresStoreProduct(t *testing.T) {
	repo := &createOrderRepoStub{}
	catalog := &catalogStub{sale: &domain.ContentSaleInfo{
		CreatorID: uuid.New(),
		Price:     1000,
		Currency:  "USD",
	}}
	svc := NewService(repo, gateway.NewRegistry(&storeAdapterStub{}), catalog, &profileStub{ratio: 7000}, &publisherStub{}, nil, testSettings())

	_, _, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeContent,
		RelatedID:     "content-1",
		PaymentMethod: domain.PaymentMethodIAP,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation for a content order on the store rail, got %v", err)
	}
	if repo.created != nil {
		t.Fatal("no order may be persisted without a store product to sell")
	}
}

func TestCreateOrder_UnsupportedMethodRejected(t *testing.T) {
	svc := newCreateTestService(&createOrderRepoStub{}, &catalogStub{}, &profileStub{})

	_, _, err := svc.CreateOrder(context.Background(), uuid.New(), &domain.CreateOrderRequest{
		OrderType:     domain.OrderTypeTip,
		RelatedID:     uuid.NewString(),
		Amount:        1000,
		PaymentMethod: "carrier_billing",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}
