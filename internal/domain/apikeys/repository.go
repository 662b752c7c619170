package apikeys

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository is the storage contract for issued keys. The postgres
// implementation lives in internal/storage/postgres; only this service
// writes key rows.
type Repository interface {
	CreateKey(ctx context.Context, params CreateKeyParams) (*Key, error)
	GetKeyByID(ctx context.Context, id uuid.UUID) (*Key, error)

	// LookupByPrefix returns the key whose public prefix matches exactly.
	// Prefixes carry 8 base64url characters on top of the environment tag,
	// so collisions are not a practical concern; the unique index enforces
	// it regardless.
	LookupByPrefix(ctx context.Context, prefix string) (*Key, error)

	ListKeysByOrg(ctx context.Context, orgID uuid.UUID) ([]*Key, error)

	// RevokeKey marks the key revoked. Implementations must be idempotent:
	// revoking an already-revoked key is a successful no-op that preserves
	// the original RevokedAt.
	RevokeKey(ctx context.Context, id uuid.UUID, at time.Time) error

	// RecordUsage adds delta to the key's usage count and advances
	// last_used_at. Called from the async usage recorder, never from the
	// verify hot path.
	RecordUsage(ctx context.Context, id uuid.UUID, delta int64, lastUsed time.Time) error
}
