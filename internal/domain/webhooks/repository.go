package webhooks

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// SubscriptionRepository is the storage contract for partner endpoints.
type SubscriptionRepository interface {
	CreateSubscription(ctx context.Context, params CreateSubscriptionParams) (*Subscription, error)
	GetSubscription(ctx context.Context, id uuid.UUID) (*Subscription, error)
	ListSubscriptionsByOrg(ctx context.Context, orgID uuid.UUID) ([]*Subscription, error)

	// ListActiveMatching returns the org's ACTIVE subscriptions whose event
	// type set contains eventType. This is the enqueue-time fan-out query.
	ListActiveMatching(ctx context.Context, orgID uuid.UUID, eventType string) ([]*Subscription, error)

	SetSubscriptionStatus(ctx context.Context, id uuid.UUID, status SubscriptionStatus, at time.Time) error
	UpdateSigningSecret(ctx context.Context, id uuid.UUID, ciphertext string) error
	UpdateEventTypes(ctx context.Context, id uuid.UUID, eventTypes []string) error
}

// DeliveryFilter narrows ledger queries.
type DeliveryFilter struct {
	SubscriptionID *uuid.UUID
	Status         *DeliveryStatus
}

// DeliveryPage is one page of ledger rows plus the cursor for the next.
type DeliveryPage struct {
	Items      []*Delivery
	NextCursor string
}

// DeliveryRepository is the storage contract for the delivery ledger. Only
// the dispatcher writes delivery rows.
type DeliveryRepository interface {
	// CreateDeliveries inserts PENDING rows, skipping any that collide on
	// the (subscription_id, event_id) unique index. Returns the rows
	// actually inserted.
	CreateDeliveries(ctx context.Context, deliveries []*Delivery) ([]*Delivery, error)

	GetDelivery(ctx context.Context, id uuid.UUID) (*Delivery, error)

	// GetDeliveryForOrg joins through the owning subscription so delivery
	// rows inherit its organization scope.
	GetDeliveryForOrg(ctx context.Context, id, orgID uuid.UUID) (*Delivery, error)

	// UpdateDelivery persists the delivery's mutable outcome fields after a
	// state transition.
	UpdateDelivery(ctx context.Context, d *Delivery) error

	ListDeliveries(ctx context.Context, orgID uuid.UUID, filter DeliveryFilter, limit int, cursor string) (DeliveryPage, error)

	// ListStalePending returns PENDING deliveries whose next_retry_at
	// elapsed before the cutoff. Used by the sweep to recover work lost to
	// a worker crash.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error)
}

// DeliveryQueue hands delivery work to the durable job queue. Implemented
// in internal/jobs on top of river.
type DeliveryQueue interface {
	// EnqueueDeliveries schedules first attempts for freshly created rows.
	EnqueueDeliveries(ctx context.Context, ids []uuid.UUID) error

	// EnqueueManualRetry schedules exactly one immediate attempt for a
	// reopened delivery.
	EnqueueManualRetry(ctx context.Context, id uuid.UUID) error
}
