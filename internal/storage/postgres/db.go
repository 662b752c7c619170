// Package postgres implements the domain storage contracts on pgx v5. Each
// repository runs against the pool directly or against an enclosing
// transaction when created through WithTx.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is the subset of pgx shared by pools and transactions.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store bundles the gateway repositories over one pool.
type Store struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

func NewStore(pool *pgxpool.Pool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("postgres store: pool is nil")
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Keys() *KeyRepository {
	return &KeyRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Subscriptions() *SubscriptionRepository {
	return &SubscriptionRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Deliveries() *DeliveryRepository {
	return &DeliveryRepository{pool: s.pool, tx: s.tx}
}

func (s *Store) Audit() *AuditRepository {
	return &AuditRepository{pool: s.pool, tx: s.tx}
}

// WithTx runs fn inside a transaction; repositories obtained from the store
// it passes share that transaction. Nested calls reuse the outer tx.
func (s *Store) WithTx(ctx context.Context, fn func(context.Context, *Store) error) error {
	if s.tx != nil {
		return fn(ctx, s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	wrapped := &Store{pool: s.pool, tx: tx}
	if err := fn(ctx, wrapped); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func queryerFor(pool *pgxpool.Pool, tx pgx.Tx) querier {
	if tx != nil {
		return tx
	}
	return pool
}
