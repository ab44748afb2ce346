/**
 * @description
 * This file contains the fulfillment router: the post-payment side effects that turn a
 * paid order into what the user actually bought. Fulfillment runs exactly once per
 * order, on the callback delivery that won the pending->paid transition.
 *
 * Key features:
 * - Subscription orders create or extend the user's entitlement; the end date only
 *   ever moves forward.
 * - Monetizing orders write one immutable CreatorIncome line from the revenue snapshot
 *   frozen at order creation. The order-id uniqueness constraint makes a second
 *   attempt a no-op.
 *
 * @dependencies
 * - internal/store: Repository interface, renewal params.
 * - internal/domain: Order, subscription and income models.
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

// fulfill routes a freshly paid order to its type-specific side effects.
func (s *Service) fulfill(ctx context.Context, order *domain.Order) error {
	switch order.OrderType {
	case domain.OrderTypeSubscription:
		if err := s.fulfillSubscription(ctx, order); err != nil {
			return err
		}
		// Optional creator attribution recorded at order creation.
		if order.CreatorID != nil {
			return s.recordCreatorIncome(ctx, order, domain.IncomeSourceSubscriptionShare)
		}
		return nil

	case domain.OrderTypeContent:
		if err := s.recordCreatorIncome(ctx, order, domain.IncomeSourceContentSale); err != nil {
			return err
		}
		// The earnings line is durable; the profile counter is a derived projection.
		// Its failure is an incident, never a rollback.
		if err := s.profiles.IncrementLifetimeEarnings(ctx, *order.CreatorID, order.CreatorAmount); err != nil {
			log.Printf("level=error component=fulfillment msg=\"lifetime earnings update failed\" order_no=%s creator_id=%s err=%v", order.OrderNo, order.CreatorID, err)
			s.publishIncident(order, "lifetime_earnings", err.Error())
		}
		return nil

	case domain.OrderTypeTip:
		return s.recordCreatorIncome(ctx, order, domain.IncomeSourceTip)

	default:
		return fmt.Errorf("no fulfillment route for order type %q", order.OrderType)
	}
}

// fulfillSubscription creates the user's subscription or extends the existing one.
// Renewal from a still-active subscription stacks on the current end date; renewal
// from a lapsed one restarts from now.
func (s *Service) fulfillSubscription(ctx context.Context, order *domain.Order) error {
	plan, ok := s.settings.PlanByID(order.RelatedID)
	if !ok {
		return fmt.Errorf("paid order %s references unknown plan %q", order.OrderNo, order.RelatedID)
	}

	now := s.now()
	duration := time.Duration(plan.DurationDays) * 24 * time.Hour

	current, err := s.repo.FindCurrentSubscriptionByUserID(ctx, order.UserID)
	if err != nil {
		if !errors.Is(err, store.ErrSubscriptionNotFound) {
			return err
		}
		sub := &domain.Subscription{
			ID:               uuid.New(),
			UserID:           order.UserID,
			PlanID:           plan.ID,
			PlanPrice:        plan.Price,
			PlanDurationDays: plan.DurationDays,
			Status:           domain.SubscriptionStatusActive,
			StartDate:        now,
			EndDate:          now.Add(duration),
			AutoRenew:        false,
			LastOrderID:      &order.ID,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		entry := &domain.SubscriptionHistoryEntry{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			Event:          domain.SubscriptionEventCreated,
			OrderID:        &order.ID,
			PlanID:         plan.ID,
			NewEndDate:     sub.EndDate,
			CreatedAt:      now,
		}
		if err := s.repo.CreateSubscription(ctx, sub, entry); err != nil {
			return err
		}
		log.Printf("level=info component=fulfillment msg=\"subscription created\" order_no=%s user_id=%s plan=%s end_date=%s", order.OrderNo, order.UserID, plan.ID, sub.EndDate.Format(time.RFC3339))
		return nil
	}

	if err := s.renewSubscription(ctx, order, plan, current, now, duration); err != nil {
		if !errors.Is(err, store.ErrStaleRenewal) {
			return err
		}
		// A concurrent renewal moved the end date between our read and the update.
		// Recompute from the fresh row so this payment still extends the window.
		refreshed, findErr := s.repo.FindCurrentSubscriptionByUserID(ctx, order.UserID)
		if findErr != nil {
			return findErr
		}
		return s.renewSubscription(ctx, order, plan, refreshed, now, duration)
	}
	return nil
}

// renewSubscription proposes one renewal on top of the given subscription view. The
// end date stacks on a still-active subscription and restarts from now on a lapsed one.
func (s *Service) renewSubscription(ctx context.Context, order *domain.Order, plan *domain.Plan, current *domain.Subscription, now time.Time, duration time.Duration) error {
	base := now
	if current.EndDate.After(now) {
		base = current.EndDate
	}
	newEnd := base.Add(duration)
	oldEnd := current.EndDate

	params := store.RenewSubscriptionParams{
		SubscriptionID: current.ID,
		PlanID:         plan.ID,
		PlanPrice:      plan.Price,
		DurationDays:   plan.DurationDays,
		NewEndDate:     newEnd,
		StartDate:      current.StartDate,
		LastOrderID:    order.ID,
		History: domain.SubscriptionHistoryEntry{
			ID:             uuid.New(),
			SubscriptionID: current.ID,
			Event:          domain.SubscriptionEventRenewed,
			OrderID:        &order.ID,
			PlanID:         plan.ID,
			OldEndDate:     &oldEnd,
			NewEndDate:     newEnd,
			CreatedAt:      now,
		},
	}
	if err := s.repo.RenewSubscription(ctx, params); err != nil {
		return err
	}
	log.Printf("level=info component=fulfillment msg=\"subscription renewed\" order_no=%s user_id=%s plan=%s old_end=%s new_end=%s", order.OrderNo, order.UserID, plan.ID, oldEnd.Format(time.RFC3339), newEnd.Format(time.RFC3339))
	return nil
}

// recordCreatorIncome writes the immutable earnings line for a monetizing order using
// the revenue snapshot frozen at order creation.
func (s *Service) recordCreatorIncome(ctx context.Context, order *domain.Order, source string) error {
	if order.CreatorID == nil {
		return fmt.Errorf("paid order %s has no creator snapshot for %s income", order.OrderNo, source)
	}

	income := domain.NewCreatorIncome(*order.CreatorID, source, order.ID, order.Amount, order.PlatformAmount, order.SharingRatioBps, s.now())
	if err := s.repo.CreateCreatorIncome(ctx, income); err != nil {
		if errors.Is(err, store.ErrDuplicateIncome) {
			// A previous fulfillment attempt already landed the line.
			log.Printf("level=info component=fulfillment msg=\"income line already recorded\" order_no=%s source=%s", order.OrderNo, source)
			return nil
		}
		return err
	}
	log.Printf("level=info component=fulfillment msg=\"creator income recorded\" order_no=%s source=%s creator_id=%s net=%d", order.OrderNo, source, income.CreatorID, income.NetAmount)
	return nil
}
