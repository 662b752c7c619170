package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bistroline/gateway/internal/domain/apikeys"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// KeyRepository implements apikeys.Repository.
type KeyRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ apikeys.Repository = (*KeyRepository)(nil)

func (r *KeyRepository) queryer() querier {
	return queryerFor(r.pool, r.tx)
}

const keyColumns = `id, org_id, name, environment, prefix, secret_hash, status, issued_at, revoked_at, usage_count, last_used_at`

func (r *KeyRepository) CreateKey(ctx context.Context, params apikeys.CreateKeyParams) (*apikeys.Key, error) {
	row := r.queryer().QueryRow(ctx, `
INSERT INTO api_keys (id, org_id, name, environment, prefix, secret_hash, status, issued_at)
VALUES ($1, $2, $3, $4, $5, $6, 'ACTIVE', now())
RETURNING `+keyColumns, uuid.New(), params.OrgID, params.Name, string(params.Environment), params.Prefix, params.SecretHash)

	key, err := scanKey(row)
	if err != nil {
		return nil, fmt.Errorf("create api key: %w", err)
	}
	return key, nil
}

func (r *KeyRepository) GetKeyByID(ctx context.Context, id uuid.UUID) (*apikeys.Key, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+keyColumns+`
  FROM api_keys
 WHERE id = $1`, id)

	key, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get api key: %w", err)
	}
	return key, nil
}

func (r *KeyRepository) LookupByPrefix(ctx context.Context, prefix string) (*apikeys.Key, error) {
	row := r.queryer().QueryRow(ctx, `
SELECT `+keyColumns+`
  FROM api_keys
 WHERE prefix = $1
 LIMIT 1`, prefix)

	key, err := scanKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup api key: %w", err)
	}
	return key, nil
}

func (r *KeyRepository) ListKeysByOrg(ctx context.Context, orgID uuid.UUID) ([]*apikeys.Key, error) {
	rows, err := r.queryer().Query(ctx, `
SELECT `+keyColumns+`
  FROM api_keys
 WHERE org_id = $1
 ORDER BY issued_at DESC`, orgID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*apikeys.Key
	for rows.Next() {
		key, err := scanKey(rows)
		if err != nil {
			return nil, fmt.Errorf("list api keys: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// RevokeKey is idempotent: the WHERE clause skips rows already revoked so
// the original revoked_at survives repeated calls.
func (r *KeyRepository) RevokeKey(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE api_keys
   SET status = 'REVOKED', revoked_at = $2
 WHERE id = $1 AND status <> 'REVOKED'`, id, at)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	return nil
}

func (r *KeyRepository) RecordUsage(ctx context.Context, id uuid.UUID, delta int64, lastUsed time.Time) error {
	_, err := r.queryer().Exec(ctx, `
UPDATE api_keys
   SET usage_count = usage_count + $2,
       last_used_at = GREATEST(COALESCE(last_used_at, $3), $3)
 WHERE id = $1`, id, delta, lastUsed)
	if err != nil {
		return fmt.Errorf("record api key usage: %w", err)
	}
	return nil
}

func scanKey(row pgx.Row) (*apikeys.Key, error) {
	var (
		key         apikeys.Key
		environment string
		status      string
	)
	if err := row.Scan(
		&key.ID,
		&key.OrgID,
		&key.Name,
		&environment,
		&key.Prefix,
		&key.SecretHash,
		&status,
		&key.IssuedAt,
		&key.RevokedAt,
		&key.UsageCount,
		&key.LastUsedAt,
	); err != nil {
		return nil, err
	}
	key.Environment = apikeys.Environment(environment)
	key.Status = apikeys.Status(status)
	return &key, nil
}
