package webhooks

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bistroline/gateway/internal/metrics"
	"github.com/bistroline/gateway/internal/secrets"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

var (
	ErrDeliveryNotFound = errors.New("delivery not found")
	ErrInvalidPayload   = errors.New("event payload is not valid JSON")
	ErrInvalidEventType = errors.New("event type cannot be empty")
)

// Outcome summarizes one Deliver call for the job layer.
type Outcome int

const (
	// OutcomeSuccess: 2xx recorded, delivery terminal.
	OutcomeSuccess Outcome = iota
	// OutcomeRetryScheduled: attempt failed, NextRetryAt advanced, the job
	// layer should retry per the backoff schedule.
	OutcomeRetryScheduled
	// OutcomeExhausted: attempt budget spent, delivery FAILED.
	OutcomeExhausted
	// OutcomeSkipped: the row was already terminal; nothing was sent.
	OutcomeSkipped
)

// DispatcherConfig carries the delivery protocol parameters.
type DispatcherConfig struct {
	Timeout             time.Duration
	MaxAutoAttempts     int
	MaxLifetimeAttempts int
	PerSubscriptionCap  int
	Backoff             []time.Duration
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxAutoAttempts <= 0 {
		c.MaxAutoAttempts = 3
	}
	if c.MaxLifetimeAttempts <= 0 {
		c.MaxLifetimeAttempts = 6
	}
	if c.PerSubscriptionCap <= 0 {
		c.PerSubscriptionCap = 2
	}
	if len(c.Backoff) == 0 {
		c.Backoff = DefaultBackoffSchedule
	}
}

// Dispatcher matches domain events to subscriptions, maintains the delivery
// ledger, and performs the signed HTTP delivery itself. EnqueueEvent runs on
// request-handling goroutines and does bounded database work only; Deliver
// runs on the job queue's worker pool and is the only place that performs
// network I/O.
type Dispatcher struct {
	subs       SubscriptionRepository
	deliveries DeliveryRepository
	queue      DeliveryQueue
	registry   *Registry
	client     *http.Client
	limiter    *subscriptionLimiter
	cfg        DispatcherConfig
	logger     zerolog.Logger
}

// NewDispatcher wires the dispatcher. queue may be nil in tests that drive
// Deliver directly.
func NewDispatcher(subs SubscriptionRepository, deliveries DeliveryRepository, queue DeliveryQueue, registry *Registry, logger zerolog.Logger, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		subs:       subs,
		deliveries: deliveries,
		queue:      queue,
		registry:   registry,
		client:     &http.Client{Timeout: cfg.Timeout},
		limiter:    newSubscriptionLimiter(cfg.PerSubscriptionCap),
		cfg:        cfg,
		logger:     logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Config exposes the effective protocol parameters (after defaulting).
func (d *Dispatcher) Config() DispatcherConfig { return d.cfg }

// EnqueueEvent fans a domain event out to every ACTIVE subscription of the
// organization that subscribes to the event type: one PENDING ledger row per
// match, then one queue job per row. The unique (subscription_id, event_id)
// index makes the fan-out idempotent. Returns the minted event ID and the
// number of deliveries created. Disabled subscriptions produce none.
func (d *Dispatcher) EnqueueEvent(ctx context.Context, orgID uuid.UUID, eventType string, payload json.RawMessage) (string, int, error) {
	if eventType == "" {
		return "", 0, ErrInvalidEventType
	}
	if len(payload) > 0 && !json.Valid(payload) {
		return "", 0, ErrInvalidPayload
	}

	subs, err := d.subs.ListActiveMatching(ctx, orgID, eventType)
	if err != nil {
		return "", 0, fmt.Errorf("enqueue event: %w", err)
	}

	eventID := ulid.MustNew(ulid.Now(), rand.Reader).String()
	if len(subs) == 0 {
		return eventID, 0, nil
	}

	now := time.Now().UTC()
	rows := make([]*Delivery, 0, len(subs))
	for _, sub := range subs {
		next := now
		rows = append(rows, &Delivery{
			ID:             uuid.New(),
			SubscriptionID: sub.ID,
			EventID:        eventID,
			EventType:      eventType,
			Payload:        payload,
			Status:         DeliveryPending,
			NextRetryAt:    &next,
			CreatedAt:      now,
		})
	}

	inserted, err := d.deliveries.CreateDeliveries(ctx, rows)
	if err != nil {
		return "", 0, fmt.Errorf("enqueue event: %w", err)
	}

	ids := make([]uuid.UUID, 0, len(inserted))
	for _, row := range inserted {
		ids = append(ids, row.ID)
	}
	if d.queue != nil && len(ids) > 0 {
		// A failed queue insert is not fatal: the rows are durable and the
		// periodic sweep re-enqueues due PENDING deliveries.
		if err := d.queue.EnqueueDeliveries(ctx, ids); err != nil {
			d.logger.Warn().Err(err).Int("count", len(ids)).Msg("queue insert failed; sweep will recover")
		}
	}

	metrics.EventsEnqueued.Inc()
	metrics.DeliveriesCreated.Add(float64(len(inserted)))

	return eventID, len(inserted), nil
}

// Deliver performs one signed delivery attempt and records the outcome in
// the ledger. It holds no lock across the HTTP call beyond the
// per-subscription concurrency slot.
func (d *Dispatcher) Deliver(ctx context.Context, deliveryID uuid.UUID) (Outcome, error) {
	delivery, err := d.deliveries.GetDelivery(ctx, deliveryID)
	if err != nil || delivery == nil {
		return OutcomeSkipped, ErrDeliveryNotFound
	}
	if delivery.Status != DeliveryPending {
		// Replayed job for a terminal row.
		return OutcomeSkipped, nil
	}

	sub, err := d.subs.GetSubscription(ctx, delivery.SubscriptionID)
	if err != nil || sub == nil {
		return OutcomeSkipped, fmt.Errorf("deliver %s: %w", deliveryID, ErrSubscriptionNotFound)
	}

	secret, err := d.registry.DecryptSecret(sub)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("deliver %s: decrypt secret: %w", deliveryID, err)
	}

	body, err := EncodeEventBody(delivery)
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("deliver %s: encode body: %w", deliveryID, err)
	}

	release, err := d.limiter.Acquire(ctx, sub.ID)
	if err != nil {
		return OutcomeRetryScheduled, fmt.Errorf("deliver %s: %w", deliveryID, err)
	}
	code, latency, attemptErr := d.post(ctx, sub.TargetURL, delivery, secret, body)
	release()

	now := time.Now().UTC()
	if attemptErr == nil {
		if err := delivery.MarkSuccess(code, latency, now); err != nil {
			return OutcomeSkipped, err
		}
		if err := d.deliveries.UpdateDelivery(ctx, delivery); err != nil {
			return OutcomeRetryScheduled, fmt.Errorf("deliver %s: record success: %w", deliveryID, err)
		}
		metrics.DeliveryAttempts.WithLabelValues("success").Inc()
		metrics.DeliveryLatency.Observe(float64(latency) / 1000)
		d.logger.Info().
			Str("delivery_id", deliveryID.String()).
			Str("subscription_id", sub.ID.String()).
			Int("status", code).
			Int64("latency_ms", latency).
			Int("attempt", delivery.AttemptCount).
			Msg("delivery succeeded")
		return OutcomeSuccess, nil
	}

	var responseCode *int
	if code > 0 {
		responseCode = &code
	}
	if err := delivery.RecordFailure(responseCode, latency, attemptErr.Error(), d.cfg.Backoff, d.cfg.MaxAutoAttempts, now); err != nil {
		return OutcomeSkipped, err
	}
	if err := d.deliveries.UpdateDelivery(ctx, delivery); err != nil {
		return OutcomeRetryScheduled, fmt.Errorf("deliver %s: record failure: %w", deliveryID, err)
	}

	event := d.logger.Warn().
		Str("delivery_id", deliveryID.String()).
		Str("subscription_id", sub.ID.String()).
		Int("attempt", delivery.AttemptCount).
		Err(attemptErr)

	if delivery.Status == DeliveryFailed {
		metrics.DeliveryAttempts.WithLabelValues("exhausted").Inc()
		event.Msg("delivery failed terminally")
		return OutcomeExhausted, attemptErr
	}
	metrics.DeliveryAttempts.WithLabelValues("retry").Inc()
	event.Time("next_retry_at", *delivery.NextRetryAt).Msg("delivery attempt failed")
	return OutcomeRetryScheduled, attemptErr
}

// post sends the signed request. Returns the response code (0 when none),
// the attempt latency in milliseconds, and nil only for 2xx responses.
func (d *Dispatcher) post(ctx context.Context, targetURL string, delivery *Delivery, secret string, body []byte) (int, int64, error) {
	reqCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	ts := time.Now().Unix()
	signature := secrets.Sign([]byte(secret), ts, body)

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return 0, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderSignature, signature)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderEventType, delivery.EventType)
	req.Header.Set(HeaderEventID, delivery.EventID)
	req.Header.Set(HeaderIdempotencyKey, delivery.ID.String())

	start := time.Now()
	resp, err := d.client.Do(req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		if isTimeout(err) {
			return 0, latency, fmt.Errorf("timeout after %s", d.cfg.Timeout)
		}
		return 0, latency, fmt.Errorf("transport: %w", err)
	}
	defer resp.Body.Close()
	// Drain so the connection can be reused; the response body itself is
	// not part of the protocol.
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp.StatusCode, latency, nil
	}
	return resp.StatusCode, latency, fmt.Errorf("endpoint returned %d", resp.StatusCode)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr) && urlErr.Timeout()
}

// RetryDelivery reopens a FAILED delivery for one manual attempt, bounded
// by the lifetime attempt cap. Permitted transitions only: FAILED -> PENDING.
func (d *Dispatcher) RetryDelivery(ctx context.Context, deliveryID, orgID uuid.UUID) error {
	delivery, err := d.deliveries.GetDeliveryForOrg(ctx, deliveryID, orgID)
	if err != nil || delivery == nil {
		return ErrDeliveryNotFound
	}

	if err := delivery.Reopen(d.cfg.MaxLifetimeAttempts, time.Now().UTC()); err != nil {
		return err
	}
	if err := d.deliveries.UpdateDelivery(ctx, delivery); err != nil {
		return fmt.Errorf("retry delivery: %w", err)
	}
	if d.queue != nil {
		if err := d.queue.EnqueueManualRetry(ctx, deliveryID); err != nil {
			return fmt.Errorf("retry delivery: %w", err)
		}
	}

	metrics.ManualRetries.Inc()
	d.logger.Info().
		Str("delivery_id", deliveryID.String()).
		Int("attempt_count", delivery.AttemptCount).
		Msg("manual retry scheduled")
	return nil
}

// ListDeliveries returns an org-scoped page of the ledger.
func (d *Dispatcher) ListDeliveries(ctx context.Context, orgID uuid.UUID, filter DeliveryFilter, limit int, cursor string) (DeliveryPage, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	page, err := d.deliveries.ListDeliveries(ctx, orgID, filter, limit, cursor)
	if err != nil {
		return DeliveryPage{}, fmt.Errorf("list deliveries: %w", err)
	}
	return page, nil
}

// SweepStale re-enqueues PENDING deliveries whose scheduled retry elapsed
// without a live queue job, e.g. after a worker crash. Called by the
// periodic sweep job.
func (d *Dispatcher) SweepStale(ctx context.Context, grace time.Duration, limit int) (int, error) {
	cutoff := time.Now().UTC().Add(-grace)
	ids, err := d.deliveries.ListStalePending(ctx, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("sweep stale: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if d.queue != nil {
		if err := d.queue.EnqueueDeliveries(ctx, ids); err != nil {
			return 0, fmt.Errorf("sweep stale: %w", err)
		}
	}
	metrics.SweepRequeued.Add(float64(len(ids)))
	d.logger.Info().Int("count", len(ids)).Msg("stale pending deliveries requeued")
	return len(ids), nil
}
