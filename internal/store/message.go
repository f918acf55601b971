package store

import (
	"context"
	"database/sql"

	appErrors "github.com/leafline/messaging-core/internal/errors"
	"github.com/leafline/messaging-core/internal/model"
)

const messageColumns = `id, tenant_id, contact_id, campaign_id, kind, direction, status,
	to_address, from_address, content, segments, provider_message_id, cost_cents, attempts,
	consent_verified_at, quiet_hours_checked_at, COALESCE(provider_status, ''), COALESCE(error, ''),
	status_updated_at, delivered_at, created_at, updated_at`

func scanMessage(row *sql.Row) (*model.Message, error) {
	var m model.Message
	err := row.Scan(
		&m.ID, &m.TenantID, &m.ContactID, &m.CampaignID, &m.Kind, &m.Direction, &m.Status,
		&m.ToAddress, &m.FromAddress, &m.Content, &m.Segments, &m.ProviderMessageID, &m.CostCents, &m.Attempts,
		&m.ConsentVerifiedAt, &m.QuietHoursCheckedAt, &m.ProviderStatus, &m.Error,
		&m.StatusUpdatedAt, &m.DeliveredAt, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMessage inserts a new outbound or inbound message row.
func (s *Store) CreateMessage(ctx context.Context, m *model.Message) error {
	return s.WithTenant(ctx, m.TenantID, func(tx *sql.Tx) error {
		if m.Status == "" {
			m.Status = model.StatusQueued
		}
		query := `
			INSERT INTO messages (
				id, tenant_id, contact_id, campaign_id, kind, direction, status,
				to_address, from_address, content, segments, provider_message_id, cost_cents, attempts,
				consent_verified_at, quiet_hours_checked_at,
				status_updated_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,NOW(),NOW(),NOW())
			RETURNING id, status_updated_at, created_at, updated_at
		`
		row := tx.QueryRowContext(ctx, query,
			m.ID, m.TenantID, m.ContactID, m.CampaignID, m.Kind, m.Direction, m.Status,
			m.ToAddress, m.FromAddress, m.Content, m.Segments, m.ProviderMessageID, m.CostCents, m.Attempts,
			m.ConsentVerifiedAt, m.QuietHoursCheckedAt,
		)
		return row.Scan(&m.ID, &m.StatusUpdatedAt, &m.CreatedAt, &m.UpdatedAt)
	})
}

// GetMessage fetches a message by id within a tenant.
func (s *Store) GetMessage(ctx context.Context, tenantID, messageID string) (*model.Message, error) {
	var msg *model.Message
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `SELECT ` + messageColumns + ` FROM messages WHERE id=$1 AND tenant_id=$2`
		m, err := scanMessage(tx.QueryRowContext(ctx, query, messageID, tenantID))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	return msg, err
}

// FindMessageByProviderID resolves a provider's delivery-status callback
// back to the message it concerns. Admin-scoped: the webhook hasn't told
// us a tenant, only a provider id.
func (s *Store) FindMessageByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error) {
	var msg *model.Message
	err := s.WithAdmin(ctx, func(tx *sql.Tx) error {
		query := `SELECT ` + messageColumns + ` FROM messages WHERE provider_message_id=$1`
		m, err := scanMessage(tx.QueryRowContext(ctx, query, providerMessageID))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		msg = m
		return nil
	})
	return msg, err
}

// UpdateMessageStatus transitions a message's status, refusing to move a
// message that is already in a terminal status (delivered, failed,
// bounced, complained) to anything else — a late or duplicate provider
// callback must not resurrect a message the pipeline already closed out.
// providerStatus and errText are the carrier's raw status text and error
// detail, if any; both are optional and only overwrite the stored value
// when non-nil. The returned bool reports whether the status actually
// changed, so a replayed callback that repeats the current status
// (current == new) can be told apart from a genuine transition — callers
// that drive counters off this update must only fire on a real transition.
func (s *Store) UpdateMessageStatus(ctx context.Context, tenantID, messageID string, newStatus model.MessageStatus, providerMessageID, providerStatus, errText *string) (bool, error) {
	changed := false
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		var current model.MessageStatus
		err := tx.QueryRowContext(ctx, `SELECT status FROM messages WHERE id=$1 AND tenant_id=$2`, messageID, tenantID).Scan(&current)
		if err == sql.ErrNoRows {
			return appErrors.NewMessageNotFound(messageID)
		}
		if err != nil {
			return err
		}
		if current == newStatus {
			return nil
		}
		if model.IsTerminal(current) {
			return appErrors.NewStatusRegression(messageID, string(current), string(newStatus))
		}

		query := `UPDATE messages SET status=$1, provider_message_id=COALESCE($2, provider_message_id),
			provider_status=COALESCE($3, provider_status), error=COALESCE($4, error),
			status_updated_at=NOW(), updated_at=NOW() WHERE id=$5 AND tenant_id=$6`
		if newStatus == model.StatusDelivered {
			query = `UPDATE messages SET status=$1, delivered_at=NOW(), provider_message_id=COALESCE($2, provider_message_id),
				provider_status=COALESCE($3, provider_status), error=COALESCE($4, error),
				status_updated_at=NOW(), updated_at=NOW() WHERE id=$5 AND tenant_id=$6`
		}
		if _, err := tx.ExecContext(ctx, query, newStatus, providerMessageID, providerStatus, errText, messageID, tenantID); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

// UpdateMessageSent stamps a message sent with its provider id, segment
// count, and computed cost in one statement — the worker's success path
// needs all three to land atomically with the status transition.
func (s *Store) UpdateMessageSent(ctx context.Context, tenantID, messageID, providerMessageID string, segmentCount, costCents int) error {
	return s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `UPDATE messages SET status=$1, provider_message_id=$2, segments=$3, cost_cents=$4, status_updated_at=NOW(), updated_at=NOW() WHERE id=$5 AND tenant_id=$6`
		_, err := tx.ExecContext(ctx, query, model.StatusSent, providerMessageID, segmentCount, costCents, messageID, tenantID)
		return err
	})
}

// MostRecentOutboundCampaignID finds the campaign, if any, that the
// contact's most recent outbound message was sent for — used to
// attribute an opt-out reply back to the campaign that prompted it.
func (s *Store) MostRecentOutboundCampaignID(ctx context.Context, tenantID, contactID string) (*string, error) {
	var campaignID *string
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `
			SELECT campaign_id FROM messages
			WHERE tenant_id=$1 AND contact_id=$2 AND direction=$3 AND campaign_id IS NOT NULL
			ORDER BY created_at DESC LIMIT 1
		`
		err := tx.QueryRowContext(ctx, query, tenantID, contactID, model.DirectionOutbound).Scan(&campaignID)
		if err == sql.ErrNoRows {
			return nil
		}
		return err
	})
	return campaignID, err
}

// IncrementAttempts bumps the worker retry counter on a message in place.
func (s *Store) IncrementAttempts(ctx context.Context, tenantID, messageID string) error {
	return s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE messages SET attempts = attempts + 1, updated_at=NOW() WHERE id=$1 AND tenant_id=$2`, messageID, tenantID)
		return err
	})
}

// CountOutboundLast24h satisfies compliance.Store: counts outbound
// messages of kind sent to a contact within the trailing 24 hours,
// including ones still queued or sending (they reserve rate-limit
// budget the moment they're accepted, not once delivered).
func (s *Store) CountOutboundLast24h(ctx context.Context, tenantID, contactID string, kind model.MessageKind) (int, error) {
	var count int
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `
			SELECT COUNT(*) FROM messages
			WHERE tenant_id=$1 AND contact_id=$2 AND kind=$3 AND direction=$4
			AND created_at > NOW() - INTERVAL '24 hours'
		`
		return tx.QueryRowContext(ctx, query, tenantID, contactID, kind, model.DirectionOutbound).Scan(&count)
	})
	return count, err
}
