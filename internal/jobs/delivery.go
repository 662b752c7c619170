package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
)

// Deliverer is the slice of the dispatcher the workers need.
type Deliverer interface {
	Deliver(ctx context.Context, deliveryID uuid.UUID) (webhooks.Outcome, error)
	SweepStale(ctx context.Context, grace time.Duration, limit int) (int, error)
}

// DeliveryArgs identifies one ledger row to attempt. Manual marks
// operator-requested retries, which run as single-attempt jobs.
type DeliveryArgs struct {
	DeliveryID uuid.UUID `json:"delivery_id"`
	Manual     bool      `json:"manual,omitempty"`
}

func (DeliveryArgs) Kind() string { return JobKindDelivery }

func (DeliveryArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		MaxAttempts: DeliveryMaxAttempts,
		UniqueOpts:  river.UniqueOpts{ByArgs: true},
	}
}

// DeliveryWorker runs one delivery attempt and translates the ledger
// outcome into River semantics: retry-scheduled surfaces the attempt error
// so River reschedules, exhausted cancels the job, terminal rows complete
// silently.
type DeliveryWorker struct {
	river.WorkerDefaults[DeliveryArgs]
	Dispatcher Deliverer
}

func (DeliveryWorker) Kind() string { return JobKindDelivery }

func (w DeliveryWorker) Work(ctx context.Context, job *river.Job[DeliveryArgs]) error {
	if w.Dispatcher == nil {
		return fmt.Errorf("dispatcher not configured")
	}

	outcome, err := w.Dispatcher.Deliver(ctx, job.Args.DeliveryID)
	switch outcome {
	case webhooks.OutcomeSuccess:
		return nil
	case webhooks.OutcomeSkipped:
		if err != nil {
			// Missing row, missing subscription, undecryptable secret.
			// Retrying cannot fix any of these.
			return river.JobCancel(err)
		}
		return nil
	case webhooks.OutcomeExhausted:
		return river.JobCancel(err)
	case webhooks.OutcomeRetryScheduled:
		if err == nil {
			err = errors.New("delivery attempt failed")
		}
		return err
	default:
		return fmt.Errorf("unexpected delivery outcome %d", outcome)
	}
}

// SweepArgs is the periodic stale-delivery sweep.
type SweepArgs struct{}

func (SweepArgs) Kind() string { return JobKindSweep }

// SweepWorker re-enqueues PENDING deliveries whose scheduled retry elapsed
// with no live job.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]
	Dispatcher Deliverer
	Grace      time.Duration
	Limit      int
}

func (SweepWorker) Kind() string { return JobKindSweep }

func (w SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	if w.Dispatcher == nil {
		return fmt.Errorf("dispatcher not configured")
	}
	grace := w.Grace
	if grace <= 0 {
		grace = 10 * time.Minute
	}
	limit := w.Limit
	if limit <= 0 {
		limit = 500
	}
	_, err := w.Dispatcher.SweepStale(ctx, grace, limit)
	return err
}

// NewWorkers registers the delivery and sweep workers.
func NewWorkers(dispatcher Deliverer, sweepGrace time.Duration, sweepLimit int) *river.Workers {
	workers := river.NewWorkers()
	river.AddWorker[DeliveryArgs](workers, DeliveryWorker{Dispatcher: dispatcher})
	river.AddWorker[SweepArgs](workers, SweepWorker{Dispatcher: dispatcher, Grace: sweepGrace, Limit: sweepLimit})
	return workers
}
