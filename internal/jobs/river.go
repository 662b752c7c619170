// Package jobs wires webhook delivery onto the River job queue. Jobs carry
// only delivery IDs; the delivery ledger in Postgres remains the source of
// truth for attempt counts and status.
package jobs

import (
	"log/slog"
	"time"

	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivertype"
)

const (
	JobKindDelivery = "webhook_delivery"
	JobKindSweep    = "delivery_sweep"
)

// DeliveryMaxAttempts bounds automatic attempts per delivery job. Manual
// retries are inserted as separate single-attempt jobs.
const DeliveryMaxAttempts = 3

const SweepMaxAttempts = 2

// RetryPolicy schedules delivery retries on the fixed backoff ladder the
// ledger uses, so River's scheduled_at agrees with the row's next_retry_at.
type RetryPolicy struct {
	Schedule []time.Duration
}

// NewRetryPolicy returns the policy for the default backoff schedule.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{Schedule: webhooks.DefaultBackoffSchedule}
}

// NextRetry returns when a failed job should run again. job.Attempt is the
// attempt that just failed, so the delay for attempt N is Schedule[N],
// clamped to the last rung.
func (p *RetryPolicy) NextRetry(job *rivertype.JobRow) time.Time {
	if job.Kind != JobKindDelivery || len(p.Schedule) == 0 {
		return time.Now()
	}

	idx := job.Attempt
	if idx >= len(p.Schedule) {
		idx = len(p.Schedule) - 1
	}
	if idx < 0 {
		idx = 0
	}

	if job.AttemptedAt != nil {
		return job.AttemptedAt.Add(p.Schedule[idx])
	}
	return time.Now().Add(p.Schedule[idx])
}

// NewClientConfig builds the River client configuration. notify, when
// non-nil, receives every job failure for out-of-band alerting.
func NewClientConfig(workers *river.Workers, logger *slog.Logger, notify AlertFunc, periodicJobs []*river.PeriodicJob, maxWorkers int) *river.Config {
	if maxWorkers <= 0 {
		maxWorkers = 20
	}
	config := &river.Config{
		Workers:      workers,
		RetryPolicy:  NewRetryPolicy(),
		MaxAttempts:  DeliveryMaxAttempts,
		PeriodicJobs: periodicJobs,
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
	}
	if logger != nil {
		config.Logger = logger
	}
	if logger != nil || notify != nil {
		config.ErrorHandler = NewAlertingErrorHandler(logger, notify)
	}
	return config
}

// NewClient creates a River client on the pgx v5 driver.
func NewClient(pool *pgxpool.Pool, workers *river.Workers, logger *slog.Logger, notify AlertFunc, periodicJobs []*river.PeriodicJob, maxWorkers int) (*river.Client[pgx.Tx], error) {
	return river.NewClient(riverpgxv5.New(pool), NewClientConfig(workers, logger, notify, periodicJobs, maxWorkers))
}

// NewPeriodicJobs schedules the sweep that re-enqueues PENDING deliveries
// whose queue job was lost, e.g. when the process died between the ledger
// insert and the job insert.
func NewPeriodicJobs(interval time.Duration) []*river.PeriodicJob {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return []*river.PeriodicJob{
		river.NewPeriodicJob(
			river.PeriodicInterval(interval),
			func() (river.JobArgs, *river.InsertOpts) {
				return SweepArgs{}, &river.InsertOpts{MaxAttempts: SweepMaxAttempts}
			},
			&river.PeriodicJobOpts{RunOnStart: true},
		),
	}
}
