package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	appErrors "github.com/leafline/messaging-core/internal/errors"
	"github.com/leafline/messaging-core/internal/model"
)

const campaignColumns = `id, tenant_id, name, kind, content_sms, content_email,
	location_ids, tags, status,
	total_recipients, sent_count, delivered_count, failed_count,
	opened_count, clicked_count, opted_out_count,
	scheduled_at, started_at, completed_at, created_at, updated_at`

func scanCampaign(row *sql.Row) (*model.Campaign, error) {
	var c model.Campaign
	var locationIDs, tags pq.StringArray
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.Kind, &c.ContentSMS, &c.ContentEmail,
		&locationIDs, &tags, &c.Status,
		&c.TotalRecipients, &c.SentCount, &c.DeliveredCount, &c.FailedCount,
		&c.OpenedCount, &c.ClickedCount, &c.OptedOutCount,
		&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.Targeting = model.Targeting{LocationIDs: []string(locationIDs), Tags: []string(tags)}
	return &c, nil
}

// CreateCampaign inserts a new campaign in draft status.
func (s *Store) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	return s.WithTenant(ctx, c.TenantID, func(tx *sql.Tx) error {
		if c.Status == "" {
			c.Status = model.CampaignStatusDraft
		}
		query := `
			INSERT INTO campaigns (
				id, tenant_id, name, kind, content_sms, content_email,
				location_ids, tags, status, scheduled_at, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NOW(),NOW())
			RETURNING id, created_at, updated_at
		`
		row := tx.QueryRowContext(ctx, query,
			c.ID, c.TenantID, c.Name, c.Kind, c.ContentSMS, c.ContentEmail,
			pq.StringArray(c.Targeting.LocationIDs), pq.StringArray(c.Targeting.Tags),
			c.Status, c.ScheduledAt,
		)
		return row.Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	})
}

// GetCampaign returns appErrors.ErrCampaignNotFound when no row matches,
// rather than a bare nil — campaigns are addressed directly by callers
// (the send API, the expander) that need a typed not-found to map to
// a 404.
func (s *Store) GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error) {
	var campaign *model.Campaign
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1 AND tenant_id=$2`
		c, err := scanCampaign(tx.QueryRowContext(ctx, query, campaignID, tenantID))
		if err == sql.ErrNoRows {
			return appErrors.NewCampaignNotFound(campaignID)
		}
		if err != nil {
			return err
		}
		campaign = c
		return nil
	})
	return campaign, err
}

// MarkCampaignSending stamps the campaign as actively sending with the
// recipient count the expander resolved.
func (s *Store) MarkCampaignSending(ctx context.Context, tenantID, campaignID string, totalRecipients int) error {
	return s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `UPDATE campaigns SET status=$1, total_recipients=$2, started_at=NOW(), updated_at=NOW() WHERE id=$3 AND tenant_id=$4`
		_, err := tx.ExecContext(ctx, query, model.CampaignStatusSending, totalRecipients, campaignID, tenantID)
		return err
	})
}

// MarkCampaignSent stamps completion once every recipient has been
// handed to the delivery queue.
func (s *Store) MarkCampaignSent(ctx context.Context, tenantID, campaignID string) error {
	return s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `UPDATE campaigns SET status=$1, completed_at=NOW(), updated_at=NOW() WHERE id=$2 AND tenant_id=$3`
		_, err := tx.ExecContext(ctx, query, model.CampaignStatusSent, campaignID, tenantID)
		return err
	})
}

// CampaignCounter names the column IncrementCampaignCounter may touch,
// keeping callers from passing an arbitrary column name into SQL.
type CampaignCounter string

const (
	CounterSent      CampaignCounter = "sent_count"
	CounterDelivered CampaignCounter = "delivered_count"
	CounterFailed    CampaignCounter = "failed_count"
	CounterOpened    CampaignCounter = "opened_count"
	CounterClicked   CampaignCounter = "clicked_count"
	CounterOptedOut  CampaignCounter = "opted_out_count"
)

var validCounters = map[CampaignCounter]bool{
	CounterSent: true, CounterDelivered: true, CounterFailed: true,
	CounterOpened: true, CounterClicked: true, CounterOptedOut: true,
}

// IncrementCampaignCounter does `column = column + delta` in a single
// statement, avoiding the read-modify-write race a SELECT-then-UPDATE
// pair would have under concurrent worker delivery.
func (s *Store) IncrementCampaignCounter(ctx context.Context, tenantID, campaignID string, counter CampaignCounter, delta int) error {
	if !validCounters[counter] {
		return fmt.Errorf("store: invalid campaign counter %q", counter)
	}
	return s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := fmt.Sprintf(`UPDATE campaigns SET %s = %s + $1, updated_at=NOW() WHERE id=$2 AND tenant_id=$3`, counter, counter)
		_, err := tx.ExecContext(ctx, query, delta, campaignID, tenantID)
		return err
	})
}

// ListCampaigns paginates campaigns for a tenant, optionally filtered by
// status, newest first.
func (s *Store) ListCampaigns(ctx context.Context, tenantID, status string, offset, limit int) ([]*model.Campaign, int, error) {
	var campaigns []*model.Campaign
	var total int
	err := s.WithTenant(ctx, tenantID, func(tx *sql.Tx) error {
		query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE tenant_id=$1`
		countQuery := `SELECT COUNT(*) FROM campaigns WHERE tenant_id=$1`
		args := []interface{}{tenantID}
		if status != "" {
			query += " AND status=$2"
			countQuery += " AND status=$2"
			args = append(args, status)
		}
		query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", limit, offset)

		rows, err := tx.QueryContext(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var c model.Campaign
			var locationIDs, tags pq.StringArray
			if err := rows.Scan(
				&c.ID, &c.TenantID, &c.Name, &c.Kind, &c.ContentSMS, &c.ContentEmail,
				&locationIDs, &tags, &c.Status,
				&c.TotalRecipients, &c.SentCount, &c.DeliveredCount, &c.FailedCount,
				&c.OpenedCount, &c.ClickedCount, &c.OptedOutCount,
				&c.ScheduledAt, &c.StartedAt, &c.CompletedAt, &c.CreatedAt, &c.UpdatedAt,
			); err != nil {
				return err
			}
			c.Targeting = model.Targeting{LocationIDs: []string(locationIDs), Tags: []string(tags)}
			campaigns = append(campaigns, &c)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx, countQuery, args...).Scan(&total)
	})
	return campaigns, total, err
}
