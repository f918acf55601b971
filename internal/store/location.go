package store

import (
	"context"
	"database/sql"

	"github.com/leafline/messaging-core/internal/model"
)

const locationColumns = `id, tenant_id, state_code, timezone, sms_phone_number, created_at`

func scanLocation(row *sql.Row) (*model.Location, error) {
	var l model.Location
	err := row.Scan(&l.ID, &l.TenantID, &l.StateCode, &l.Timezone, &l.SMSPhoneNumber, &l.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// GetLocation satisfies compliance.Store.
func (s *Store) GetLocation(ctx context.Context, tenantID, locationID string) (*model.Location, error) {
	var loc *model.Location
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `SELECT ` + locationColumns + ` FROM locations WHERE id=$1 AND tenant_id=$2`
		l, err := scanLocation(tx.QueryRowContext(ctx, query, locationID, tenantID))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		loc = l
		return nil
	})
	return loc, err
}

// FindLocationBySMSNumber resolves which tenant+location owns a carrier
// destination number, used by the inbound webhook path before any
// tenant id is known. Runs admin-scoped since the tenant is the thing
// being discovered.
func (s *Store) FindLocationBySMSNumber(ctx context.Context, number string) (*model.Location, error) {
	var loc *model.Location
	err := s.WithAdmin(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + locationColumns + ` FROM locations WHERE sms_phone_number=$1`
		l, err := scanLocation(tx.QueryRowContext(ctx, query, number))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		loc = l
		return nil
	})
	return loc, err
}
