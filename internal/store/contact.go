package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	appErrors "github.com/leafline/messaging-core/internal/errors"
	"github.com/leafline/messaging-core/internal/model"
)

func scanContact(row interface{ Scan(...interface{}) error }) (*model.Contact, error) {
	var c model.Contact
	var tags pq.StringArray
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Phone, &c.PrimaryLocationID,
		&c.SMSConsent, &c.SMSConsentAt, &c.SMSConsentMethod,
		&c.EmailConsent, &c.EmailConsentAt,
		&c.SMSOptedOut, &c.SMSOptedOutAt,
		&c.AgeVerified, &c.DOB,
		&tags, &c.Timezone,
		&c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Tags = []string(tags)
	return &c, nil
}

const contactColumns = `id, tenant_id, phone, primary_location_id,
	sms_consent, sms_consent_at, sms_consent_method,
	email_consent, email_consent_at,
	sms_opted_out, sms_opted_out_at,
	age_verified, dob,
	tags, timezone,
	created_at, updated_at`

// GetContact satisfies compliance.Store: scoped by tenant, returns nil
// (not an error) when the contact doesn't exist within that tenant.
func (s *Store) GetContact(ctx context.Context, tenantID, contactID string) (*model.Contact, error) {
	var contact *model.Contact
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `SELECT ` + contactColumns + ` FROM contacts WHERE id=$1 AND tenant_id=$2`
		row := tx.QueryRowContext(ctx, query, contactID, tenantID)
		c, err := scanContact(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		contact = c
		return nil
	})
	return contact, err
}

// FindContactByPhone looks a contact up by normalized phone number within
// a tenant. Used by the inbound reconciler to attribute a reply.
func (s *Store) FindContactByPhone(ctx context.Context, tenantID, phone string) (*model.Contact, error) {
	var contact *model.Contact
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `SELECT ` + contactColumns + ` FROM contacts WHERE phone=$1 AND tenant_id=$2`
		row := tx.QueryRowContext(ctx, query, phone, tenantID)
		c, err := scanContact(row)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		contact = c
		return nil
	})
	return contact, err
}

// UpsertContact inserts a new contact or updates the consent/opt-out
// columns of an existing one, keyed on (tenant_id, phone).
func (s *Store) UpsertContact(ctx context.Context, c *model.Contact) error {
	return s.WithTenant(ctx, c.TenantID, func(tx *sql.Tx) error {
		query := `
			INSERT INTO contacts (
				id, tenant_id, phone, primary_location_id,
				sms_consent, sms_consent_at, sms_consent_method,
				email_consent, email_consent_at,
				sms_opted_out, sms_opted_out_at,
				age_verified, dob, tags, timezone,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,NOW(),NOW())
			ON CONFLICT (tenant_id, phone) DO UPDATE SET
				primary_location_id=EXCLUDED.primary_location_id,
				sms_consent=EXCLUDED.sms_consent,
				sms_consent_at=EXCLUDED.sms_consent_at,
				sms_consent_method=EXCLUDED.sms_consent_method,
				email_consent=EXCLUDED.email_consent,
				email_consent_at=EXCLUDED.email_consent_at,
				sms_opted_out=EXCLUDED.sms_opted_out,
				sms_opted_out_at=EXCLUDED.sms_opted_out_at,
				age_verified=EXCLUDED.age_verified,
				dob=EXCLUDED.dob,
				tags=EXCLUDED.tags,
				timezone=EXCLUDED.timezone,
				updated_at=NOW()
			RETURNING id, created_at, updated_at
		`
		row := tx.QueryRowContext(ctx, query,
			c.ID, c.TenantID, c.Phone, c.PrimaryLocationID,
			c.SMSConsent, c.SMSConsentAt, c.SMSConsentMethod,
			c.EmailConsent, c.EmailConsentAt,
			c.SMSOptedOut, c.SMSOptedOutAt,
			c.AgeVerified, c.DOB, pq.StringArray(c.Tags), c.Timezone,
		)
		return row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	})
}

// SetSMSOptOut flips the opted-out flag for a contact in place. Used by
// the STOP/START keyword handler.
func (s *Store) SetSMSOptOut(ctx context.Context, tenantID, contactID string, optedOut bool) error {
	return s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `UPDATE contacts SET sms_opted_out=$1, sms_opted_out_at=NOW(), updated_at=NOW() WHERE id=$2 AND tenant_id=$3`
		res, err := tx.ExecContext(ctx, query, optedOut, contactID, tenantID)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return appErrors.NewContactNotFound(contactID)
		}
		return nil
	})
}

// FindCampaignRecipients resolves the contact ids a campaign's targeting
// rules select: age-verified always, consented and not opted out only
// when kind touches SMS, filtered by location and/or tag when those are
// set.
func (s *Store) FindCampaignRecipients(ctx context.Context, tenantID string, targeting model.Targeting, kind model.CampaignKind) ([]string, error) {
	var ids []string
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := strings.Builder{}
		query.WriteString(`SELECT id FROM contacts WHERE tenant_id=$1 AND age_verified=true`)
		if kind == model.CampaignKindSMS || kind == model.CampaignKindBoth {
			query.WriteString(` AND sms_consent=true AND sms_opted_out=false`)
		}
		args := []interface{}{tenantID}
		argPos := 2

		if len(targeting.LocationIDs) > 0 {
			query.WriteString(fmt.Sprintf(" AND primary_location_id = ANY($%d)", argPos))
			args = append(args, pq.StringArray(targeting.LocationIDs))
			argPos++
		}
		if len(targeting.Tags) > 0 {
			query.WriteString(fmt.Sprintf(" AND tags && $%d", argPos))
			args = append(args, pq.StringArray(targeting.Tags))
			argPos++
		}

		rows, err := tx.QueryContext(ctx, query.String(), args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	return ids, err
}
