package postgres

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bistroline/gateway/internal/domain/webhooks"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryRepository implements webhooks.DeliveryRepository. Delivery rows
// carry a unique (subscription_id, event_id) index so enqueue and sweep can
// race without producing duplicates.
type DeliveryRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ webhooks.DeliveryRepository = (*DeliveryRepository)(nil)

func (r *DeliveryRepository) queryer() querier {
	return queryerFor(r.pool, r.tx)
}

const deliveryColumns = `id, subscription_id, event_id, event_type, payload, status, attempt_count, last_response, last_latency_ms, last_error, next_retry_at, created_at`

func (r *DeliveryRepository) CreateDeliveries(ctx context.Context, deliveries []*webhooks.Delivery) ([]*webhooks.Delivery, error) {
	var inserted []*webhooks.Delivery
	for _, d := range deliveries {
		tag, err := r.queryer().Exec(ctx, `
INSERT INTO webhook_deliveries (id, subscription_id, event_id, event_type, payload, status, attempt_count, next_retry_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (subscription_id, event_id) DO NOTHING`,
			d.ID, d.SubscriptionID, d.EventID, d.EventType, []byte(d.Payload), string(d.Status), d.AttemptCount, d.NextRetryAt, d.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("create delivery: %w", err)
		}
		if tag.RowsAffected() > 0 {
			inserted = append(inserted, d)
		}
	}
	return inserted, nil
}

func (r *DeliveryRepository) GetDelivery(ctx context.Context, id uuid.UUID) (*webhooks.Delivery, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+deliveryColumns+`
  FROM webhook_deliveries
 WHERE id = $1`, id)

	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepository) GetDeliveryForOrg(ctx context.Context, id, orgID uuid.UUID) (*webhooks.Delivery, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+prefixColumns("d")+`
  FROM webhook_deliveries d
  JOIN webhook_subscriptions s ON s.id = d.subscription_id
 WHERE d.id = $1 AND s.org_id = $2`, id, orgID)

	d, err := scanDelivery(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get delivery for org: %w", err)
	}
	return d, nil
}

func (r *DeliveryRepository) UpdateDelivery(ctx context.Context, d *webhooks.Delivery) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE webhook_deliveries
   SET status = $2,
       attempt_count = $3,
       last_response = $4,
       last_latency_ms = $5,
       last_error = $6,
       next_retry_at = $7
 WHERE id = $1`,
		d.ID, string(d.Status), d.AttemptCount, d.LastResponse, d.LastLatencyMs, d.LastError, d.NextRetryAt)
	if err != nil {
		return fmt.Errorf("update delivery: %w", err)
	}
	return nil
}

func (r *DeliveryRepository) ListDeliveries(ctx context.Context, orgID uuid.UUID, filter webhooks.DeliveryFilter, limit int, cursor string) (webhooks.DeliveryPage, error) {
	query := strings.Builder{}
	query.WriteString(`
SELECT ` + prefixColumns("d") + `
  FROM webhook_deliveries d
  JOIN webhook_subscriptions s ON s.id = d.subscription_id
 WHERE s.org_id = $1`)
	args := []any{orgID}

	if filter.SubscriptionID != nil {
		args = append(args, *filter.SubscriptionID)
		fmt.Fprintf(&query, " AND d.subscription_id = $%d", len(args))
	}
	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		fmt.Fprintf(&query, " AND d.status = $%d", len(args))
	}
	if cursor != "" {
		createdAt, id, err := decodeDeliveryCursor(cursor)
		if err != nil {
			return webhooks.DeliveryPage{}, err
		}
		args = append(args, createdAt, id)
		fmt.Fprintf(&query, " AND (d.created_at, d.id) < ($%d, $%d)", len(args)-1, len(args))
	}

	// Fetch one extra row to learn whether a next page exists.
	args = append(args, limit+1)
	fmt.Fprintf(&query, " ORDER BY d.created_at DESC, d.id DESC LIMIT $%d", len(args))

	rows, err := r.queryer().Query(ctx, query.String(), args...)
	if err != nil {
		return webhooks.DeliveryPage{}, fmt.Errorf("list deliveries: %w", err)
	}
	defer rows.Close()

	var items []*webhooks.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return webhooks.DeliveryPage{}, fmt.Errorf("scan delivery: %w", err)
		}
		items = append(items, d)
	}
	if err := rows.Err(); err != nil {
		return webhooks.DeliveryPage{}, err
	}

	page := webhooks.DeliveryPage{Items: items}
	if len(items) > limit {
		page.Items = items[:limit]
		last := page.Items[limit-1]
		page.NextCursor = encodeDeliveryCursor(last.CreatedAt, last.ID)
	}
	return page, nil
}

func (r *DeliveryRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]uuid.UUID, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT id
  FROM webhook_deliveries
 WHERE status = 'PENDING' AND next_retry_at IS NOT NULL AND next_retry_at < $1
 ORDER BY next_retry_at
 LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale pending: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func scanDelivery(row pgx.Row) (*webhooks.Delivery, error) {
	var (
		d       webhooks.Delivery
		status  string
		payload []byte
	)
	if err := row.Scan(
		&d.ID,
		&d.SubscriptionID,
		&d.EventID,
		&d.EventType,
		&payload,
		&status,
		&d.AttemptCount,
		&d.LastResponse,
		&d.LastLatencyMs,
		&d.LastError,
		&d.NextRetryAt,
		&d.CreatedAt,
	); err != nil {
		return nil, err
	}
	d.Status = webhooks.DeliveryStatus(status)
	d.Payload = payload
	return &d, nil
}

func prefixColumns(alias string) string {
	cols := strings.Split(deliveryColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// Delivery cursors are keyset positions: created_at nanoseconds plus the
// row ID as tiebreaker, base64url encoded.
func encodeDeliveryCursor(createdAt time.Time, id uuid.UUID) string {
	raw := strconv.FormatInt(createdAt.UTC().UnixNano(), 10) + "|" + id.String()
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

var errInvalidCursor = errors.New("invalid pagination cursor")

func decodeDeliveryCursor(cursor string) (time.Time, uuid.UUID, error) {
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, uuid.Nil, errInvalidCursor
	}
	parts := strings.SplitN(string(raw), "|", 2)
	if len(parts) != 2 {
		return time.Time{}, uuid.Nil, errInvalidCursor
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, uuid.Nil, errInvalidCursor
	}
	id, err := uuid.Parse(parts[1])
	if err != nil {
		return time.Time{}, uuid.Nil, errInvalidCursor
	}
	return time.Unix(0, nanos).UTC(), id, nil
}
