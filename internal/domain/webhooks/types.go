package webhooks

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubscriptionStatus gates whether new deliveries are created for a
// subscription. Disabling never discards history.
type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionDisabled SubscriptionStatus = "DISABLED"
)

// Subscription is a partner-registered endpoint. The signing secret is held
// encrypted at rest; unlike API key secrets it must be recoverable, because
// the dispatcher reuses it to sign every delivery.
type Subscription struct {
	ID               uuid.UUID
	OrgID            uuid.UUID
	TargetURL        string
	SecretCiphertext string
	EventTypes       []string
	Status           SubscriptionStatus
	CreatedAt        time.Time
	DisabledAt       *time.Time
}

// Matches reports whether the subscription wants the event type.
func (s *Subscription) Matches(eventType string) bool {
	for _, t := range s.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// CreateSubscriptionParams are the storage-level inputs for a new
// subscription.
type CreateSubscriptionParams struct {
	OrgID            uuid.UUID
	TargetURL        string
	SecretCiphertext string
	EventTypes       []string
}

// DeliveryStatus is a closed variant: PENDING, SUCCESS, or FAILED. All
// transitions go through the methods on Delivery so the retry and terminal
// logic stays in one place.
type DeliveryStatus string

const (
	DeliveryPending DeliveryStatus = "PENDING"
	DeliverySuccess DeliveryStatus = "SUCCESS"
	DeliveryFailed  DeliveryStatus = "FAILED"
)

// Terminal reports whether no automatic transition leaves this status.
func (s DeliveryStatus) Terminal() bool {
	switch s {
	case DeliverySuccess, DeliveryFailed:
		return true
	case DeliveryPending:
		return false
	}
	return false
}

// Valid reports whether the status is one of the three known values.
func (s DeliveryStatus) Valid() bool {
	switch s {
	case DeliveryPending, DeliverySuccess, DeliveryFailed:
		return true
	}
	return false
}

// Transition errors.
var (
	ErrNotRetryable        = errors.New("delivery is not in a retryable state")
	ErrRetryBudgetExceeded = errors.New("delivery retry budget exhausted")
)

// Delivery is one ledger row: a single event bound for a single
// subscription. Exactly one exists per (subscription, event) pair.
type Delivery struct {
	ID             uuid.UUID
	SubscriptionID uuid.UUID
	EventID        string
	EventType      string
	Payload        json.RawMessage
	Status         DeliveryStatus
	AttemptCount   int
	LastResponse   *int
	LastLatencyMs  *int64
	LastError      *string
	NextRetryAt    *time.Time
	CreatedAt      time.Time
}

// MarkSuccess records a 2xx outcome. PENDING -> SUCCESS (terminal).
func (d *Delivery) MarkSuccess(responseCode int, latencyMs int64, now time.Time) error {
	if d.Status != DeliveryPending {
		return fmt.Errorf("mark success from %s: %w", d.Status, ErrNotRetryable)
	}
	d.Status = DeliverySuccess
	d.AttemptCount++
	d.LastResponse = &responseCode
	d.LastLatencyMs = &latencyMs
	d.LastError = nil
	d.NextRetryAt = nil
	return nil
}

// RecordFailure records a failed attempt. While attempts remain under
// maxAuto the delivery stays PENDING with NextRetryAt advanced per the
// backoff schedule; once exhausted it becomes FAILED (terminal until a
// manual retry). responseCode is nil for timeouts and transport errors.
func (d *Delivery) RecordFailure(responseCode *int, latencyMs int64, cause string, backoff []time.Duration, maxAuto int, now time.Time) error {
	if d.Status != DeliveryPending {
		return fmt.Errorf("record failure from %s: %w", d.Status, ErrNotRetryable)
	}
	d.AttemptCount++
	d.LastResponse = responseCode
	d.LastLatencyMs = &latencyMs
	d.LastError = &cause

	if d.AttemptCount < maxAuto {
		next := now.Add(backoffDelay(backoff, d.AttemptCount))
		d.NextRetryAt = &next
		return nil
	}

	d.Status = DeliveryFailed
	d.NextRetryAt = nil
	return nil
}

// Reopen moves a FAILED delivery back to PENDING for one manual retry.
// Bounded by the absolute lifetime attempt cap so a permanently broken
// endpoint cannot consume unbounded resources.
func (d *Delivery) Reopen(maxLifetime int, now time.Time) error {
	if d.Status != DeliveryFailed {
		return ErrNotRetryable
	}
	if d.AttemptCount >= maxLifetime {
		return ErrRetryBudgetExceeded
	}
	d.Status = DeliveryPending
	d.NextRetryAt = &now
	return nil
}

// backoffDelay returns the wait before the next attempt, given that attempt
// number attemptsSoFar just failed. The schedule's first entry is the delay
// before attempt 1 and is normally zero.
func backoffDelay(schedule []time.Duration, attemptsSoFar int) time.Duration {
	if len(schedule) == 0 {
		return 0
	}
	if attemptsSoFar >= len(schedule) {
		return schedule[len(schedule)-1]
	}
	return schedule[attemptsSoFar]
}

// DefaultBackoffSchedule realizes the fixed retry timing: attempt 1 is
// immediate, attempt 2 follows after 60s, attempt 3 after a further 300s.
var DefaultBackoffSchedule = []time.Duration{0, time.Minute, 5 * time.Minute}

// Event is the wire body posted to a partner endpoint.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	CreatedAt string          `json:"createdAt"`
	Data      json.RawMessage `json:"data"`
}

// EncodeEventBody builds the canonical JSON body for a delivery. The same
// logical event is resent byte-for-byte on retries; only the signature
// timestamp changes.
func EncodeEventBody(d *Delivery) ([]byte, error) {
	data := d.Payload
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return json.Marshal(Event{
		ID:        d.EventID,
		Type:      d.EventType,
		CreatedAt: d.CreatedAt.UTC().Format(time.RFC3339),
		Data:      data,
	})
}

// Delivery wire headers.
const (
	HeaderSignature      = "X-Signature"
	HeaderTimestamp      = "X-Timestamp"
	HeaderEventType      = "X-Event-Type"
	HeaderEventID        = "X-Event-Id"
	HeaderIdempotencyKey = "X-Idempotency-Key"
)
