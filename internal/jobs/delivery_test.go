package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/google/uuid"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

type fakeDispatcher struct {
	deliverFunc func(ctx context.Context, id uuid.UUID) (webhooks.Outcome, error)
	sweepFunc   func(ctx context.Context, grace time.Duration, limit int) (int, error)
}

func (f *fakeDispatcher) Deliver(ctx context.Context, id uuid.UUID) (webhooks.Outcome, error) {
	return f.deliverFunc(ctx, id)
}

func (f *fakeDispatcher) SweepStale(ctx context.Context, grace time.Duration, limit int) (int, error) {
	return f.sweepFunc(ctx, grace, limit)
}

func deliveryJob(args DeliveryArgs) *river.Job[DeliveryArgs] {
	return &river.Job[DeliveryArgs]{
		JobRow: &rivertype.JobRow{ID: 1, Kind: JobKindDelivery, Attempt: 1},
		Args:   args,
	}
}

func TestDeliveryWorkerOutcomeMapping(t *testing.T) {
	attemptErr := errors.New("endpoint returned 500")

	tests := []struct {
		name       string
		outcome    webhooks.Outcome
		deliverErr error
		wantErr    bool
		wantCause  error
	}{
		{name: "success completes", outcome: webhooks.OutcomeSuccess},
		{name: "terminal row completes", outcome: webhooks.OutcomeSkipped},
		{name: "retry surfaces error", outcome: webhooks.OutcomeRetryScheduled, deliverErr: attemptErr, wantErr: true, wantCause: attemptErr},
		{name: "exhausted errors with cause", outcome: webhooks.OutcomeExhausted, deliverErr: attemptErr, wantErr: true, wantCause: attemptErr},
		{name: "missing row errors", outcome: webhooks.OutcomeSkipped, deliverErr: webhooks.ErrDeliveryNotFound, wantErr: true, wantCause: webhooks.ErrDeliveryNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker := DeliveryWorker{Dispatcher: &fakeDispatcher{
				deliverFunc: func(context.Context, uuid.UUID) (webhooks.Outcome, error) {
					return tt.outcome, tt.deliverErr
				},
			}}

			err := worker.Work(context.Background(), deliveryJob(DeliveryArgs{DeliveryID: uuid.New()}))
			if tt.wantErr && err == nil {
				t.Fatal("Work() returned nil, want error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Work() error: %v", err)
			}
			if tt.wantCause != nil && !errors.Is(err, tt.wantCause) {
				t.Errorf("Work() error = %v, want cause %v", err, tt.wantCause)
			}
		})
	}
}

func TestDeliveryWorkerPassesDeliveryID(t *testing.T) {
	want := uuid.New()
	var got uuid.UUID
	worker := DeliveryWorker{Dispatcher: &fakeDispatcher{
		deliverFunc: func(_ context.Context, id uuid.UUID) (webhooks.Outcome, error) {
			got = id
			return webhooks.OutcomeSuccess, nil
		},
	}}

	if err := worker.Work(context.Background(), deliveryJob(DeliveryArgs{DeliveryID: want})); err != nil {
		t.Fatalf("Work() error: %v", err)
	}
	if got != want {
		t.Errorf("dispatched delivery = %s, want %s", got, want)
	}
}

func TestSweepWorkerDefaults(t *testing.T) {
	var gotGrace time.Duration
	var gotLimit int
	worker := SweepWorker{Dispatcher: &fakeDispatcher{
		sweepFunc: func(_ context.Context, grace time.Duration, limit int) (int, error) {
			gotGrace, gotLimit = grace, limit
			return 0, nil
		},
	}}

	job := &river.Job[SweepArgs]{JobRow: &rivertype.JobRow{ID: 2, Kind: JobKindSweep}}
	if err := worker.Work(context.Background(), job); err != nil {
		t.Fatalf("Work() error: %v", err)
	}
	if gotGrace != 10*time.Minute {
		t.Errorf("grace = %v, want 10m default", gotGrace)
	}
	if gotLimit != 500 {
		t.Errorf("limit = %d, want 500 default", gotLimit)
	}
}

func TestDeliveryArgsInsertOpts(t *testing.T) {
	opts := DeliveryArgs{}.InsertOpts()
	if opts.MaxAttempts != DeliveryMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", opts.MaxAttempts, DeliveryMaxAttempts)
	}
	if !opts.UniqueOpts.ByArgs {
		t.Error("UniqueOpts.ByArgs = false, want true")
	}
}
