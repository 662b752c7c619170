package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SubscriptionRepository implements webhooks.SubscriptionRepository.
type SubscriptionRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ webhooks.SubscriptionRepository = (*SubscriptionRepository)(nil)

func (r *SubscriptionRepository) queryer() querier {
	return queryerFor(r.pool, r.tx)
}

const subscriptionColumns = `id, org_id, target_url, secret_ciphertext, event_types, status, created_at, disabled_at`

func (r *SubscriptionRepository) CreateSubscription(ctx context.Context, params webhooks.CreateSubscriptionParams) (*webhooks.Subscription, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO webhook_subscriptions (id, org_id, target_url, secret_ciphertext, event_types, status, created_at)
VALUES ($1, $2, $3, $4, $5, 'ACTIVE', now())
RETURNING `+subscriptionColumns, uuid.New(), params.OrgID, params.TargetURL, params.SecretCiphertext, params.EventTypes)

	sub, err := scanSubscription(row)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) GetSubscription(ctx context.Context, id uuid.UUID) (*webhooks.Subscription, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+subscriptionColumns+`
  FROM webhook_subscriptions
 WHERE id = $1`, id)

	sub, err := scanSubscription(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	return sub, nil
}

func (r *SubscriptionRepository) ListSubscriptionsByOrg(ctx context.Context, orgID uuid.UUID) ([]*webhooks.Subscription, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+subscriptionColumns+`
  FROM webhook_subscriptions
 WHERE org_id = $1
 ORDER BY created_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

// ListActiveMatching is the enqueue-time fan-out query. The event_types
// array membership test uses the GIN index.
func (r *SubscriptionRepository) ListActiveMatching(ctx context.Context, orgID uuid.UUID, eventType string) ([]*webhooks.Subscription, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+subscriptionColumns+`
  FROM webhook_subscriptions
 WHERE org_id = $1
   AND status = 'ACTIVE'
   AND event_types @> ARRAY[$2]::text[]`, orgID, eventType)
	if err != nil {
		return nil, fmt.Errorf("list matching subscriptions: %w", err)
	}
	defer rows.Close()
	return collectSubscriptions(rows)
}

func (r *SubscriptionRepository) SetSubscriptionStatus(ctx context.Context, id uuid.UUID, status webhooks.SubscriptionStatus, at time.Time) error {
	var disabledAt *time.Time
	if status == webhooks.SubscriptionDisabled {
		disabledAt = &at
	}
	_, err := r.queryer().Exec(ctx, `
UPDATE webhook_subscriptions
   SET status = $2, disabled_at = $3
 WHERE id = $1`, id, string(status), disabledAt)
	if err != nil {
		return fmt.Errorf("set subscription status: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) UpdateSigningSecret(ctx context.Context, id uuid.UUID, ciphertext string) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE webhook_subscriptions
   SET secret_ciphertext = $2
 WHERE id = $1`, id, ciphertext)
	if err != nil {
		return fmt.Errorf("update signing secret: %w", err)
	}
	return nil
}

func (r *SubscriptionRepository) UpdateEventTypes(ctx context.Context, id uuid.UUID, eventTypes []string) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE webhook_subscriptions
   SET event_types = $2
 WHERE id = $1`, id, eventTypes)
	if err != nil {
		return fmt.Errorf("update event types: %w", err)
	}
	return nil
}

func scanSubscription(row pgx.Row) (*webhooks.Subscription, error) {
	var (
		sub    webhooks.Subscription
		status string
	)
	if err := row.Scan(
		&sub.ID,
		&sub.OrgID,
		&sub.TargetURL,
		&sub.SecretCiphertext,
		&sub.EventTypes,
		&status,
		&sub.CreatedAt,
		&sub.DisabledAt,
	); err != nil {
		return nil, err
	}
	sub.Status = webhooks.SubscriptionStatus(status)
	return &sub, nil
}

func collectSubscriptions(rows pgx.Rows) ([]*webhooks.Subscription, error) {
	var subs []*webhooks.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
