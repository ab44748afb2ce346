/**
 * @description
 * This file defines the Subscription domain model: a user's recurring-access
 * entitlement derived from a sequence of paid subscription orders.
 *
 * @notes
 * - At most one active-or-expired subscription is meaningfully current per user;
 *   older rows are history.
 * - EndDate only ever moves forward. Renewal from an active subscription extends the
 *   existing EndDate; renewal from an expired one restarts from now.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Subscription lifecycle states.
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPaused    = "paused"
	SubscriptionStatusCancelled = "cancelled"
	SubscriptionStatusExpired   = "expired"
)

// Subscription history event names.
const (
	SubscriptionEventCreated = "created"
	SubscriptionEventRenewed = "renewed"
)

// Subscription maps to the `subscriptions` table.
type Subscription struct {
	ID               uuid.UUID  `json:"id"`
	UserID           uuid.UUID  `json:"user_id"`
	PlanID           string     `json:"plan_id"`
	PlanPrice        int64      `json:"plan_price"` // in minor units
	PlanDurationDays int        `json:"plan_duration_days"`
	Status           string     `json:"status"`
	StartDate        time.Time  `json:"start_date"`
	EndDate          time.Time  `json:"end_date"`
	AutoRenew        bool       `json:"auto_renew"`
	LastOrderID      *uuid.UUID `json:"last_order_id,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// IsCurrent reports whether the entitlement window covers the given instant.
func (s *Subscription) IsCurrent(at time.Time) bool {
	return s.Status == SubscriptionStatusActive && s.EndDate.After(at)
}

// SubscriptionHistoryEntry is one append-only lifecycle event, bound to the order (if
// any) that caused it.
type SubscriptionHistoryEntry struct {
	ID             uuid.UUID  `json:"id"`
	SubscriptionID uuid.UUID  `json:"subscription_id"`
	Event          string     `json:"event"`
	OrderID        *uuid.UUID `json:"order_id,omitempty"`
	PlanID         string     `json:"plan_id"`
	OldEndDate     *time.Time `json:"old_end_date,omitempty"`
	NewEndDate     time.Time  `json:"new_end_date"`
	CreatedAt      time.Time  `json:"created_at"`
}
