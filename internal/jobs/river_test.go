package jobs

import (
	"testing"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"
)

func TestRetryPolicyFollowsBackoffLadder(t *testing.T) {
	policy := NewRetryPolicy()
	attemptedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		attempt   int
		wantDelay time.Duration
	}{
		{name: "after first attempt", attempt: 1, wantDelay: time.Minute},
		{name: "after second attempt", attempt: 2, wantDelay: 5 * time.Minute},
		{name: "clamped beyond schedule", attempt: 7, wantDelay: 5 * time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := &rivertype.JobRow{
				Kind:        JobKindDelivery,
				Attempt:     tt.attempt,
				AttemptedAt: &attemptedAt,
			}
			got := policy.NextRetry(job)
			want := attemptedAt.Add(tt.wantDelay)
			if !got.Equal(want) {
				t.Errorf("NextRetry() = %v, want %v", got, want)
			}
		})
	}
}

func TestRetryPolicyOtherKindsRetryImmediately(t *testing.T) {
	policy := NewRetryPolicy()
	job := &rivertype.JobRow{Kind: JobKindSweep, Attempt: 1}

	before := time.Now()
	got := policy.NextRetry(job)
	if got.Before(before) || got.After(time.Now().Add(time.Second)) {
		t.Errorf("NextRetry() = %v, want approximately now", got)
	}
}

func TestNewClientConfig(t *testing.T) {
	config := NewClientConfig(nil, nil, nil, nil, 0)

	if config.MaxAttempts != DeliveryMaxAttempts {
		t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, DeliveryMaxAttempts)
	}
	if config.Queues[river.QueueDefault].MaxWorkers != 20 {
		t.Errorf("default queue MaxWorkers = %d, want 20", config.Queues[river.QueueDefault].MaxWorkers)
	}
	if _, ok := config.RetryPolicy.(*RetryPolicy); !ok {
		t.Errorf("RetryPolicy = %T, want *RetryPolicy", config.RetryPolicy)
	}
}
