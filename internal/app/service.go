/**
 * @description
 * This file contains the payment orchestrator: order creation with the frozen revenue
 * snapshot, the asynchronous callback pipeline, and refunds. The orchestrator is the
 * only component that advances an order through its lifecycle; it talks to providers
 * exclusively through the gateway registry and to storage exclusively through the
 * repository interface.
 *
 * Key features:
 * - CreateOrder resolves authoritative pricing (plan catalog, content catalog) and
 *   freezes the creator revenue split onto the order before any money moves.
 * - HandleCallback is idempotent: the pending->paid transition is a single conditional
 *   update, and a replayed success callback acknowledges without re-running fulfillment.
 * - Fulfillment errors after a captured payment never surface into the provider ack;
 *   they are logged and published as incident events for reconciliation.
 *
 * @dependencies
 * - internal/store: Repository interface and sentinel errors.
 * - internal/gateway: Adapter registry.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/fanvault/payment-service/internal/domain"
	"github.com/fanvault/payment-service/internal/gateway"
	"github.com/fanvault/payment-service/internal/store"
	"github.com/fanvault/payment-service/pkg/catalogclient"
	"github.com/fanvault/payment-service/pkg/profileclient"
	"github.com/fanvault/payment-service/pkg/rabbitmq"
)

var (
	// ErrValidation means the request was well-formed JSON but semantically invalid.
	ErrValidation = errors.New("invalid request")
	// ErrInvalidState means the target record exists but is not in a state that permits
	// the requested transition.
	ErrInvalidState = errors.New("record not in a valid state for this operation")
	// ErrUnknownPlan means the requested subscription plan is not in the catalog.
	ErrUnknownPlan = errors.New("unknown subscription plan")
)

// Event routing keys on the payment_events exchange.
const (
	routingKeyOrderPaidPrefix    = "order.paid."
	routingKeyOrderRefunded      = "order.refunded"
	routingKeyFulfillmentProblem = "fulfillment.incident"
)

// ContentCatalog resolves sale terms for purchasable content.
type ContentCatalog interface {
	ResolveContentSale(ctx context.Context, contentID string) (*domain.ContentSaleInfo, error)
}

// CreatorProfile resolves per-creator settlement configuration and receives
// post-sale profile updates.
type CreatorProfile interface {
	SharingRatioBps(ctx context.Context, creatorID uuid.UUID) (int32, error)
	IncrementLifetimeEarnings(ctx context.Context, creatorID uuid.UUID, amount int64) error
}

// ReplayGuard is a best-effort short-TTL duplicate detector in front of the database
// idempotency guard. FirstSeen reports whether the key is new within the TTL window.
type ReplayGuard interface {
	FirstSeen(ctx context.Context, key string) bool
}

// Settings is the subset of service configuration the orchestrator needs.
type Settings struct {
	Currency               string
	DefaultSharingRatioBps int32
	TipPlatformFeeBps      int32
	MinWithdrawalAmount    int64
	EarningsMaturityDays   int
	OrderExpiry            time.Duration
	Plans                  []domain.Plan
}

// PlanByID resolves one plan from the catalog.
func (s *Settings) PlanByID(planID string) (*domain.Plan, bool) {
	for i := range s.Plans {
		if s.Plans[i].ID == planID {
			return &s.Plans[i], true
		}
	}
	return nil, false
}

// Service provides the payment orchestration logic.
type Service struct {
	repo      store.Repository
	gateways  *gateway.Registry
	catalog   ContentCatalog
	profiles  CreatorProfile
	publisher rabbitmq.Publisher
	replay    ReplayGuard
	settings  Settings
	now       func() time.Time
}

// NewService creates a new payment service.
func NewService(repo store.Repository, gateways *gateway.Registry, catalog ContentCatalog, profiles CreatorProfile, publisher rabbitmq.Publisher, replay ReplayGuard, settings Settings) *Service {
	return &Service{
		repo:      repo,
		gateways:  gateways,
		catalog:   catalog,
		profiles:  profiles,
		publisher: publisher,
		replay:    replay,
		settings:  settings,
		now:       time.Now,
	}
}

// newOrderNo produces a human-traceable order number: PAY-<yyyymmdd>-<short id>.
func newOrderNo(now time.Time) string {
	short := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return fmt.Sprintf("PAY-%s-%s", now.UTC().Format("20060102"), short)
}

// CreateOrder validates a purchase request, freezes authoritative pricing and the
// creator revenue snapshot, persists the pending order, and returns the
// provider-specific payment parameters the client needs to complete the payment.
func (s *Service) CreateOrder(ctx context.Context, userID uuid.UUID, req *domain.CreateOrderRequest) (*domain.Order, gateway.PaymentParams, error) {
	adapter, err := s.gateways.Adapter(req.PaymentMethod)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: unsupported payment method %q", ErrValidation, req.PaymentMethod)
	}
	if req.RelatedID == "" {
		return nil, nil, fmt.Errorf("%w: related_id is required", ErrValidation)
	}

	now := s.now()
	order := &domain.Order{
		ID:            uuid.New(),
		OrderNo:       newOrderNo(now),
		UserID:        userID,
		OrderType:     req.OrderType,
		RelatedID:     req.RelatedID,
		Currency:      s.settings.Currency,
		PaymentMethod: req.PaymentMethod,
		PaymentStatus: domain.OrderStatusPending,
		Description:   req.Description,
		Metadata:      map[string]string{},
		ExpiredAt:     now.Add(s.settings.OrderExpiry),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	for k, v := range req.Metadata {
		order.Metadata[k] = v
	}

	switch req.OrderType {
	case domain.OrderTypeSubscription:
		plan, ok := s.settings.PlanByID(req.RelatedID)
		if !ok {
			return nil, nil, ErrUnknownPlan
		}
		// The catalog price is authoritative; a client-supplied amount is ignored.
		order.Amount = plan.Price
		if plan.Currency != "" {
			order.Currency = plan.Currency
		}
		order.Metadata["external_product_id"] = plan.ExternalProductID
		if order.Description == "" {
			order.Description = fmt.Sprintf("Subscription plan %s", plan.ID)
		}
		// Optional creator attribution for subscription revenue sharing.
		if rawCreator := req.Metadata["creator_id"]; rawCreator != "" {
			creatorID, parseErr := uuid.Parse(rawCreator)
			if parseErr != nil {
				return nil, nil, fmt.Errorf("%w: malformed creator_id", ErrValidation)
			}
			order.ApplyRevenueSnapshot(creatorID, s.resolveSharingRatio(ctx, creatorID))
		}

	case domain.OrderTypeContent:
		sale, resolveErr := s.catalog.ResolveContentSale(ctx, req.RelatedID)
		if resolveErr != nil {
			if errors.Is(resolveErr, catalogclient.ErrContentNotFound) {
				return nil, nil, fmt.Errorf("%w: content %s not found", ErrValidation, req.RelatedID)
			}
			return nil, nil, resolveErr
		}
		order.Amount = sale.Price
		if sale.Currency != "" {
			order.Currency = sale.Currency
		}
		if order.Description == "" {
			order.Description = sale.Title
		}
		order.ApplyRevenueSnapshot(sale.CreatorID, s.resolveSharingRatio(ctx, sale.CreatorID))

	case domain.OrderTypeTip:
		creatorID, parseErr := uuid.Parse(req.RelatedID)
		if parseErr != nil {
			return nil, nil, fmt.Errorf("%w: tip related_id must be a creator id", ErrValidation)
		}
		if req.Amount <= 0 {
			return nil, nil, fmt.Errorf("%w: tip amount must be positive", ErrValidation)
		}
		order.Amount = req.Amount
		// The platform fee is the creator's only deduction on tips.
		order.ApplyRevenueSnapshot(creatorID, int32(domain.RatioDenominatorBps)-s.settings.TipPlatformFeeBps)

	default:
		return nil, nil, fmt.Errorf("%w: unsupported order type %q", ErrValidation, req.OrderType)
	}

	// IAP settlement is bound to a store product; orders that sell nothing from the
	// store catalog cannot be paid on that rail.
	if req.PaymentMethod == domain.PaymentMethodIAP && order.Metadata["external_product_id"] == "" {
		return nil, nil, fmt.Errorf("%w: only store products can be paid by in-app purchase", ErrValidation)
	}

	if order.Amount <= 0 {
		return nil, nil, fmt.Errorf("%w: order amount must be positive", ErrValidation)
	}

	// The revenue snapshot is frozen before any money moves. Amounts derived above must
	// reconcile exactly.
	if order.CreatorID != nil && order.CreatorAmount+order.PlatformAmount != order.Amount {
		return nil, nil, fmt.Errorf("revenue snapshot does not reconcile for order %s", order.OrderNo)
	}

	if err := s.repo.CreateOrder(ctx, order); err != nil {
		return nil, nil, err
	}

	params, err := adapter.BuildPaymentParams(ctx, order)
	if err != nil {
		// The pending order stands; it expires on its own if the client never retries.
		log.Printf("level=error component=payment_service msg=\"failed to build payment params\" order_no=%s method=%s err=%v", order.OrderNo, order.PaymentMethod, err)
		return nil, nil, err
	}

	log.Printf("level=info component=payment_service msg=\"order created\" order_no=%s type=%s method=%s amount=%d user_id=%s", order.OrderNo, order.OrderType, order.PaymentMethod, order.Amount, userID)
	return order, params, nil
}

// resolveSharingRatio looks up the creator's profile ratio, falling back to the
// configured platform default when the creator has no override.
func (s *Service) resolveSharingRatio(ctx context.Context, creatorID uuid.UUID) int32 {
	ratio, err := s.profiles.SharingRatioBps(ctx, creatorID)
	if err != nil {
		if !errors.Is(err, profileclient.ErrRatioNotSet) {
			log.Printf("level=warn component=payment_service msg=\"sharing ratio lookup failed; using default\" creator_id=%s err=%v", creatorID, err)
		}
		return s.settings.DefaultSharingRatioBps
	}
	return ratio
}

// HandleCallback processes one asynchronous provider notification. The returned Ack is
// the body the provider expects; the error drives the HTTP status.
func (s *Service) HandleCallback(ctx context.Context, method string, raw []byte, header http.Header) (gateway.Ack, error) {
	adapter, err := s.gateways.Adapter(method)
	if err != nil {
		return gateway.Ack{}, err
	}

	notif, err := adapter.VerifyAndParseCallback(raw, header)
	if err != nil {
		log.Printf("level=warn component=payment_service msg=\"callback rejected\" method=%s err=%v", method, err)
		return adapter.FailureAck(), err
	}

	// Best-effort short-circuit on fast duplicate deliveries. The database guard below
	// is the authoritative idempotency barrier; this only saves work.
	if s.replay != nil && notif.ProviderTxID != "" {
		key := fmt.Sprintf("%s:%s:%s", method, notif.OrderNo, notif.ProviderTxID)
		if !s.replay.FirstSeen(ctx, key) {
			if order, findErr := s.repo.FindOrderByOrderNo(ctx, notif.OrderNo); findErr == nil && order.PaymentStatus == domain.OrderStatusPaid {
				log.Printf("level=info component=payment_service msg=\"duplicate callback acknowledged\" order_no=%s method=%s", notif.OrderNo, method)
				return adapter.SuccessAck(), nil
			}
		}
	}

	order, err := s.repo.FindOrderByOrderNo(ctx, notif.OrderNo)
	if err != nil {
		log.Printf("level=warn component=payment_service msg=\"callback for unknown order\" order_no=%s method=%s err=%v", notif.OrderNo, method, err)
		return adapter.FailureAck(), err
	}

	// Replayed success for an already-settled order: acknowledge, never re-fulfill.
	if order.PaymentStatus == domain.OrderStatusPaid {
		return adapter.SuccessAck(), nil
	}

	switch {
	case notif.Succeeded:
		// Receipt-validated rails report which product the money bought; a receipt for
		// a different product must not settle this order.
		if notif.ProductID != "" && notif.ProductID != order.Metadata["external_product_id"] {
			log.Printf("level=warn component=payment_service msg=\"receipt product does not match order\" order_no=%s method=%s receipt_product=%s order_product=%s", order.OrderNo, method, notif.ProductID, order.Metadata["external_product_id"])
			return adapter.FailureAck(), gateway.ErrInvalidSignature
		}
		return s.settleSuccess(ctx, adapter, order, notif)

	case notif.TerminalFailure:
		won, markErr := s.repo.MarkOrderFailed(ctx, order.OrderNo, notif.FailureReason)
		if markErr != nil {
			return adapter.FailureAck(), markErr
		}
		if won {
			log.Printf("level=info component=payment_service msg=\"order failed\" order_no=%s reason=%q", order.OrderNo, notif.FailureReason)
		}
		return adapter.SuccessAck(), nil

	default:
		// Ambiguous provider status. The order stays pending until a definitive
		// notification or the expiry sweep resolves it.
		log.Printf("level=info component=payment_service msg=\"ambiguous callback; order stays pending\" order_no=%s method=%s", order.OrderNo, method)
		return adapter.SuccessAck(), nil
	}
}

// settleSuccess applies the pending->paid transition and runs fulfillment. The
// conditional update is the race verdict: whichever delivery wins runs fulfillment
// exactly once.
func (s *Service) settleSuccess(ctx context.Context, adapter gateway.Adapter, order *domain.Order, notif *domain.PaymentNotification) (gateway.Ack, error) {
	paidAt := s.now()
	won, err := s.repo.MarkOrderPaid(ctx, order.OrderNo, notif.ProviderTxID, paidAt)
	if err != nil {
		return adapter.FailureAck(), err
	}
	if !won {
		refreshed, findErr := s.repo.FindOrderByOrderNo(ctx, order.OrderNo)
		if findErr == nil && refreshed.PaymentStatus == domain.OrderStatusPaid {
			// Lost the race to a concurrent delivery of the same result.
			return adapter.SuccessAck(), nil
		}
		// The provider captured money for an order that already reached a terminal
		// local state (expired or failed). Acknowledge so the provider stops retrying
		// and hand the conflict to reconciliation.
		status := "unknown"
		if findErr == nil {
			status = refreshed.PaymentStatus
		}
		log.Printf("level=error component=payment_service msg=\"capture conflicts with terminal order state\" order_no=%s status=%s provider_tx_id=%s", order.OrderNo, status, notif.ProviderTxID)
		s.publishIncident(order, "settlement", fmt.Sprintf("provider capture %s arrived with order in state %s", notif.ProviderTxID, status))
		return adapter.SuccessAck(), nil
	}

	order.PaymentStatus = domain.OrderStatusPaid
	order.ProviderTxID = &notif.ProviderTxID
	order.PaidAt = &paidAt
	log.Printf("level=info component=payment_service msg=\"order paid\" order_no=%s type=%s amount=%d provider_tx_id=%s", order.OrderNo, order.OrderType, order.Amount, notif.ProviderTxID)

	s.publishEvent(routingKeyOrderPaidPrefix+order.OrderType, domain.OrderPaidEvent{
		OrderNo:       order.OrderNo,
		OrderType:     order.OrderType,
		UserID:        order.UserID,
		Amount:        order.Amount,
		PaymentMethod: order.PaymentMethod,
		ProviderTxID:  notif.ProviderTxID,
		PaidAt:        paidAt,
	})

	// The payment is settled; fulfillment problems must not surface into the ack or
	// tempt the provider into redelivering.
	if err := s.fulfill(ctx, order); err != nil {
		log.Printf("level=error component=payment_service msg=\"fulfillment failed after capture\" order_no=%s type=%s err=%v", order.OrderNo, order.OrderType, err)
		s.publishIncident(order, "fulfillment", err.Error())
	}

	return adapter.SuccessAck(), nil
}

// RequestRefund moves a paid order to refunded and forwards the refund to the provider.
// The local transition is authoritative; the provider call is fire-and-forget.
func (s *Service) RequestRefund(ctx context.Context, userID uuid.UUID, req *domain.RefundRequest) (*domain.Order, error) {
	order, err := s.repo.FindOrderByOrderNo(ctx, req.OrderNo)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, store.ErrOrderNotFound
	}

	amount := req.Amount
	if amount <= 0 || amount > order.Amount {
		amount = order.Amount
	}

	won, err := s.repo.MarkOrderRefunded(ctx, order.OrderNo, req.Reason)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, fmt.Errorf("%w: order %s is %s, only paid orders can be refunded", ErrInvalidState, order.OrderNo, order.PaymentStatus)
	}
	order.PaymentStatus = domain.OrderStatusRefunded
	log.Printf("level=info component=payment_service msg=\"order refunded\" order_no=%s amount=%d reason=%q", order.OrderNo, amount, req.Reason)

	s.publishEvent(routingKeyOrderRefunded, map[string]interface{}{
		"order_no":  order.OrderNo,
		"user_id":   order.UserID,
		"amount":    amount,
		"reason":    req.Reason,
		"timestamp": s.now(),
	})

	adapter, adapterErr := s.gateways.Adapter(order.PaymentMethod)
	if adapterErr != nil {
		log.Printf("level=error component=payment_service msg=\"no adapter for refund forwarding\" order_no=%s method=%s", order.OrderNo, order.PaymentMethod)
		return order, nil
	}
	reason := req.Reason
	go func() {
		refundCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if refundErr := adapter.Refund(refundCtx, order, amount, reason); refundErr != nil {
			log.Printf("level=error component=payment_service msg=\"provider refund failed; needs reconciliation\" order_no=%s method=%s err=%v", order.OrderNo, order.PaymentMethod, refundErr)
			s.publishIncident(order, "refund", refundErr.Error())
		}
	}()

	return order, nil
}

// GetOrder returns one of the user's orders.
func (s *Service) GetOrder(ctx context.Context, userID uuid.UUID, orderNo string) (*domain.Order, error) {
	order, err := s.repo.FindOrderByOrderNo(ctx, orderNo)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, store.ErrOrderNotFound
	}
	return order, nil
}

// ListOrders returns a page of the user's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, userID uuid.UUID, limit, offset int) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListOrdersByUserID(ctx, userID, limit, offset)
}

// CurrentSubscription returns the user's current subscription record.
func (s *Service) CurrentSubscription(ctx context.Context, userID uuid.UUID) (*domain.Subscription, error) {
	return s.repo.FindCurrentSubscriptionByUserID(ctx, userID)
}

func (s *Service) publishEvent(routingKey string, body interface{}) {
	if s.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.publisher.Publish(ctx, rabbitmq.PaymentEventsExchange, routingKey, body); err != nil {
		log.Printf("level=warn component=payment_service msg=\"event publish failed\" routing_key=%s err=%v", routingKey, err)
	}
}

func (s *Service) publishIncident(order *domain.Order, stage, reason string) {
	s.publishEvent(routingKeyFulfillmentProblem, domain.FulfillmentIncidentEvent{
		OrderNo:   order.OrderNo,
		OrderType: order.OrderType,
		Stage:     stage,
		Reason:    reason,
		Timestamp: s.now(),
	})
}
