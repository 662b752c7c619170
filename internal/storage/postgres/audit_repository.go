package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/bistroline/gateway/internal/audit"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository persists operator audit entries.
type AuditRepository struct {
	pool *pgxpool.Pool
	tx   pgx.Tx
}

var _ audit.Recorder = (*AuditRepository)(nil)

func (r *AuditRepository) queryer() querier {
	return queryerFor(r.pool, r.tx)
}

func (r *AuditRepository) InsertAuditEntry(ctx context.Context, entry audit.Entry) error {
	var details []byte
	if len(entry.Details) > 0 {
		var err error
		details, err = json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
	}

	_, err := r.queryer().Exec(ctx, `
INSERT INTO audit_log (occurred_at, action, actor, resource_type, resource_id, ip_address, status, details)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), $7, $8)`,
		entry.Timestamp, entry.Action, entry.Actor, entry.ResourceType, entry.ResourceID, entry.IPAddress, entry.Status, details)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}
