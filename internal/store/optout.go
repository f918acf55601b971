package store

import (
	"context"
	"database/sql"

	"github.com/leafline/messaging-core/internal/model"
)

// InsertOptOutLogEntry appends an immutable audit row. Opt-in/opt-out
// history is never updated or deleted, only appended to.
func (s *Store) InsertOptOutLogEntry(ctx context.Context, e *model.OptOutLogEntry) error {
	return s.WithTenant(ctx, e.TenantID, func(tx *sql.Tx) error {
		query := `
			INSERT INTO opt_out_log (id, tenant_id, contact_id, channel, address, action, method, source_message_id, created_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
			RETURNING id, created_at
		`
		row := tx.QueryRowContext(ctx, query, e.ID, e.TenantID, e.ContactID, e.Channel, e.Address, e.Action, e.Method, e.SourceMessageID)
		return row.Scan(&e.ID, &e.CreatedAt)
	})
}

// GlobalOptOutExists satisfies compliance.Store. The global list is
// cross-tenant by nature (one STOP anywhere must suppress sends from
// every tenant to that phone), so it lives outside a tenant schema and
// is read admin-scoped.
func (s *Store) GlobalOptOutExists(ctx context.Context, phone string) (bool, error) {
	var exists bool
	err := s.WithAdmin(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM global_opt_outs WHERE phone=$1)`, phone).Scan(&exists)
	})
	return exists, err
}

// InsertGlobalOptOut records a STOP. Idempotent: a phone number already
// on the list is left untouched rather than erroring.
func (s *Store) InsertGlobalOptOut(ctx context.Context, phone, sourceTenantID string) error {
	return s.WithAdmin(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO global_opt_outs (phone, source_tenant_id, opted_out_at)
			VALUES ($1,$2,NOW())
			ON CONFLICT (phone) DO NOTHING
		`, phone, sourceTenantID)
		return err
	})
}

// DeleteGlobalOptOut removes a phone number from the global suppression
// list unconditionally — a START from any tenant lifts it for all of
// them, since the original STOP is no longer attributable to one.
func (s *Store) DeleteGlobalOptOut(ctx context.Context, phone string) error {
	return s.WithAdmin(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM global_opt_outs WHERE phone=$1`, phone)
		return err
	})
}
