package jobs

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/riverqueue/river"
)

// RiverEnqueuer implements the dispatcher's queue port on a River client.
type RiverEnqueuer struct {
	client *river.Client[pgx.Tx]
}

func NewRiverEnqueuer(client *river.Client[pgx.Tx]) *RiverEnqueuer {
	return &RiverEnqueuer{client: client}
}

// Bind attaches the client after construction. The dispatcher and the worker
// pool reference each other through the queue, so the enqueuer is created
// first and bound once the client exists.
func (e *RiverEnqueuer) Bind(client *river.Client[pgx.Tx]) {
	e.client = client
}

// EnqueueDeliveries inserts one delivery job per ledger row. The unique-by-
// args option keeps at most one live job per delivery, so a sweep racing a
// fresh enqueue cannot double-attempt a row.
func (e *RiverEnqueuer) EnqueueDeliveries(ctx context.Context, deliveryIDs []uuid.UUID) error {
	if e.client == nil {
		return fmt.Errorf("enqueuer not bound to a client")
	}
	if len(deliveryIDs) == 0 {
		return nil
	}
	params := make([]river.InsertManyParams, 0, len(deliveryIDs))
	for _, id := range deliveryIDs {
		params = append(params, river.InsertManyParams{
			Args: DeliveryArgs{DeliveryID: id},
		})
	}
	if _, err := e.client.InsertMany(ctx, params); err != nil {
		return fmt.Errorf("insert delivery jobs: %w", err)
	}
	return nil
}

// EnqueueManualRetry inserts a single-attempt job for a reopened delivery.
// The ledger's lifetime cap, not River, bounds how often this can happen.
func (e *RiverEnqueuer) EnqueueManualRetry(ctx context.Context, deliveryID uuid.UUID) error {
	if e.client == nil {
		return fmt.Errorf("enqueuer not bound to a client")
	}
	_, err := e.client.Insert(ctx, DeliveryArgs{DeliveryID: deliveryID, Manual: true}, &river.InsertOpts{
		MaxAttempts: 1,
	})
	if err != nil {
		return fmt.Errorf("insert manual retry job: %w", err)
	}
	return nil
}
