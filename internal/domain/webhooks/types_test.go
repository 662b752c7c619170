package webhooks

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func pendingDelivery() *Delivery {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	return &Delivery{
		ID:             uuid.New(),
		SubscriptionID: uuid.New(),
		EventID:        "01JABCDEF0123456789ABCDEFG",
		EventType:      "order.created",
		Payload:        json.RawMessage(`{"orderId":42}`),
		Status:         DeliveryPending,
		CreatedAt:      now,
	}
}

func TestMarkSuccessTerminal(t *testing.T) {
	d := pendingDelivery()
	now := time.Now().UTC()

	if err := d.MarkSuccess(200, 120, now); err != nil {
		t.Fatalf("MarkSuccess() error: %v", err)
	}
	if d.Status != DeliverySuccess {
		t.Errorf("Status = %s, want SUCCESS", d.Status)
	}
	if d.AttemptCount != 1 {
		t.Errorf("AttemptCount = %d, want 1", d.AttemptCount)
	}
	if d.LastResponse == nil || *d.LastResponse != 200 {
		t.Error("LastResponse not recorded")
	}
	if d.NextRetryAt != nil {
		t.Error("NextRetryAt set on a terminal delivery")
	}

	// SUCCESS is terminal: no further transitions.
	if err := d.MarkSuccess(200, 1, now); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("second MarkSuccess() error = %v, want ErrNotRetryable", err)
	}
	if err := d.RecordFailure(nil, 1, "x", DefaultBackoffSchedule, 3, now); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("RecordFailure() on SUCCESS error = %v, want ErrNotRetryable", err)
	}
	if err := d.Reopen(6, now); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Reopen() on SUCCESS error = %v, want ErrNotRetryable", err)
	}
}

func TestRecordFailureFollowsBackoffSchedule(t *testing.T) {
	d := pendingDelivery()
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	code := 500

	// Attempt 1 fails: next retry after 60s.
	if err := d.RecordFailure(&code, 30, "endpoint returned 500", DefaultBackoffSchedule, 3, now); err != nil {
		t.Fatalf("RecordFailure() #1 error: %v", err)
	}
	if d.Status != DeliveryPending {
		t.Fatalf("Status after attempt 1 = %s, want PENDING", d.Status)
	}
	if want := now.Add(time.Minute); !d.NextRetryAt.Equal(want) {
		t.Errorf("NextRetryAt after attempt 1 = %v, want %v", d.NextRetryAt, want)
	}

	// Attempt 2 fails: next retry after a further 300s.
	if err := d.RecordFailure(&code, 30, "endpoint returned 500", DefaultBackoffSchedule, 3, now); err != nil {
		t.Fatalf("RecordFailure() #2 error: %v", err)
	}
	if d.Status != DeliveryPending {
		t.Fatalf("Status after attempt 2 = %s, want PENDING", d.Status)
	}
	if want := now.Add(5 * time.Minute); !d.NextRetryAt.Equal(want) {
		t.Errorf("NextRetryAt after attempt 2 = %v, want %v", d.NextRetryAt, want)
	}

	// Attempt 3 fails: budget exhausted, terminal.
	if err := d.RecordFailure(&code, 30, "endpoint returned 500", DefaultBackoffSchedule, 3, now); err != nil {
		t.Fatalf("RecordFailure() #3 error: %v", err)
	}
	if d.Status != DeliveryFailed {
		t.Errorf("Status after attempt 3 = %s, want FAILED", d.Status)
	}
	if d.AttemptCount != 3 {
		t.Errorf("AttemptCount = %d, want 3", d.AttemptCount)
	}
	if d.NextRetryAt != nil {
		t.Error("NextRetryAt set on FAILED delivery")
	}
}

func TestReopenBoundedByLifetimeCap(t *testing.T) {
	d := pendingDelivery()
	now := time.Now().UTC()
	code := 503

	for i := 0; i < 3; i++ {
		if err := d.RecordFailure(&code, 10, "endpoint returned 503", DefaultBackoffSchedule, 3, now); err != nil {
			t.Fatalf("RecordFailure() error: %v", err)
		}
	}
	if d.Status != DeliveryFailed {
		t.Fatalf("Status = %s, want FAILED", d.Status)
	}

	// Manual retries up to the lifetime cap of 6 attempts.
	for attempt := 3; attempt < 6; attempt++ {
		if err := d.Reopen(6, now); err != nil {
			t.Fatalf("Reopen() at attempt %d error: %v", attempt, err)
		}
		if d.Status != DeliveryPending {
			t.Fatalf("Status after Reopen = %s, want PENDING", d.Status)
		}
		if err := d.RecordFailure(&code, 10, "endpoint returned 503", DefaultBackoffSchedule, 1, now); err != nil {
			t.Fatalf("RecordFailure() error: %v", err)
		}
	}

	if d.AttemptCount != 6 {
		t.Fatalf("AttemptCount = %d, want 6", d.AttemptCount)
	}
	if err := d.Reopen(6, now); !errors.Is(err, ErrRetryBudgetExceeded) {
		t.Errorf("Reopen() past cap error = %v, want ErrRetryBudgetExceeded", err)
	}
}

func TestReopenOnlyFromFailed(t *testing.T) {
	d := pendingDelivery()
	if err := d.Reopen(6, time.Now()); !errors.Is(err, ErrNotRetryable) {
		t.Errorf("Reopen() on PENDING error = %v, want ErrNotRetryable", err)
	}
}

func TestStatusTerminal(t *testing.T) {
	cases := []struct {
		status   DeliveryStatus
		terminal bool
	}{
		{DeliveryPending, false},
		{DeliverySuccess, true},
		{DeliveryFailed, true},
	}
	for _, tc := range cases {
		if got := tc.status.Terminal(); got != tc.terminal {
			t.Errorf("%s.Terminal() = %v, want %v", tc.status, got, tc.terminal)
		}
	}
}

func TestEncodeEventBody(t *testing.T) {
	d := pendingDelivery()
	body, err := EncodeEventBody(d)
	if err != nil {
		t.Fatalf("EncodeEventBody() error: %v", err)
	}

	var decoded struct {
		ID        string          `json:"id"`
		Type      string          `json:"type"`
		CreatedAt string          `json:"createdAt"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded.ID != d.EventID {
		t.Errorf("id = %q, want %q", decoded.ID, d.EventID)
	}
	if decoded.Type != "order.created" {
		t.Errorf("type = %q, want order.created", decoded.Type)
	}
	if decoded.CreatedAt != "2026-08-30T12:00:00Z" {
		t.Errorf("createdAt = %q, want RFC3339 UTC", decoded.CreatedAt)
	}
	if string(decoded.Data) != `{"orderId":42}` {
		t.Errorf("data = %s, want original payload", decoded.Data)
	}

	// Retries resend the identical body.
	again, err := EncodeEventBody(d)
	if err != nil {
		t.Fatalf("EncodeEventBody() error: %v", err)
	}
	if string(body) != string(again) {
		t.Error("two encodings of the same delivery differ")
	}
}

func TestEncodeEventBodyNilPayload(t *testing.T) {
	d := pendingDelivery()
	d.Payload = nil
	body, err := EncodeEventBody(d)
	if err != nil {
		t.Fatalf("EncodeEventBody() error: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("body is not valid JSON: %v", err)
	}
	if decoded["data"] != nil {
		t.Errorf("data = %v, want null", decoded["data"])
	}
}

func TestSubscriptionMatches(t *testing.T) {
	sub := &Subscription{EventTypes: []string{"order.created", "order.cancelled"}}
	if !sub.Matches("order.created") {
		t.Error("Matches(order.created) = false")
	}
	if sub.Matches("inventory.low") {
		t.Error("Matches(inventory.low) = true")
	}
}
