// Package campaign implements the Campaign Expander: it turns one
// campaign row into one delivery job per matching recipient.
package campaign

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/leafline/messaging-core/internal/compliance"
	"github.com/leafline/messaging-core/internal/delivery"
	appErrors "github.com/leafline/messaging-core/internal/errors"
	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/queue"
)

// QueueKind is the queue.Kind campaign-expansion jobs are dispatched
// under — a durable job rather than an in-process goroutine, so expansion
// survives a worker restart mid-campaign.
const QueueKind = "campaign"

// Store is the subset of persistence the expander needs.
type Store interface {
	GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error)
	FindCampaignRecipients(ctx context.Context, tenantID string, targeting model.Targeting, kind model.CampaignKind) ([]string, error)
	GetContact(ctx context.Context, tenantID, contactID string) (*model.Contact, error)
	MarkCampaignSending(ctx context.Context, tenantID, campaignID string, totalRecipients int) error
	MarkCampaignSent(ctx context.Context, tenantID, campaignID string) error
}

// Submitter is the subset of *delivery.Submitter the expander needs.
type Submitter interface {
	Submit(ctx context.Context, tenantID, contactID string, payload model.DeliveryJobPayload) (*delivery.SubmitResult, error)
}

// ExpandResult summarizes one campaign expansion. Blocked counts
// recipients the Compliance Gate blocked at submit time — no job was
// enqueued for them, so they must not be counted as Enqueued.
type ExpandResult struct {
	TotalRecipients int
	Enqueued        int
	Blocked         int
	Skipped         int
}

// Expander loads a campaign, resolves its recipients, renders content per
// recipient, and submits one delivery job per recipient through the same
// DEFER-aware path the single-send API uses.
type Expander struct {
	Store     Store
	Submitter Submitter
}

// renderTemplate does mechanical `{token}` substitution against a flat
// field map — generalized from a first_name/last_name/location template
// engine into `{contact.<field>}` tokens. contactFields supplies only
// `{contact.phone}` and `{contact.location_id}`; any other token is left
// in the content unchanged.
func renderTemplate(template string, fields map[string]string) string {
	result := template
	for k, v := range fields {
		result = strings.ReplaceAll(result, "{"+k+"}", v)
	}
	return result
}

func contactFields(c *model.Contact) map[string]string {
	fields := map[string]string{
		"contact.phone": c.Phone,
	}
	if c.PrimaryLocationID != nil {
		fields["contact.location_id"] = *c.PrimaryLocationID
	}
	return fields
}

// Expand runs the five-step expansion: load, resolve recipients, stamp
// sending, enqueue per recipient, stamp sent.
func (e *Expander) Expand(ctx context.Context, tenantID, campaignID string) (*ExpandResult, error) {
	camp, err := e.Store.GetCampaign(ctx, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	if camp == nil {
		return nil, appErrors.NewCampaignNotFound(campaignID)
	}

	contactIDs, err := e.Store.FindCampaignRecipients(ctx, tenantID, camp.Targeting, camp.Kind)
	if err != nil {
		return nil, fmt.Errorf("campaign: resolve recipients: %w", err)
	}

	if err := e.Store.MarkCampaignSending(ctx, tenantID, campaignID, len(contactIDs)); err != nil {
		return nil, fmt.Errorf("campaign: mark sending: %w", err)
	}

	result := &ExpandResult{TotalRecipients: len(contactIDs)}
	for _, contactID := range contactIDs {
		contact, err := e.Store.GetContact(ctx, tenantID, contactID)
		if err != nil || contact == nil {
			result.Skipped++
			continue
		}

		content := renderTemplate(camp.ContentSMS, contactFields(contact))
		payload := model.DeliveryJobPayload{
			TenantID:   tenantID,
			ContactID:  contactID,
			Content:    content,
			CampaignID: &camp.ID,
		}
		if contact.PrimaryLocationID != nil {
			payload.LocationID = contact.PrimaryLocationID
		}

		submitResult, err := e.Submitter.Submit(ctx, tenantID, contactID, payload)
		if err != nil {
			result.Skipped++
			continue
		}
		if submitResult.Decision == compliance.Block {
			result.Blocked++
			continue
		}
		result.Enqueued++
	}

	if err := e.Store.MarkCampaignSent(ctx, tenantID, campaignID); err != nil {
		return result, fmt.Errorf("campaign: mark sent: %w", err)
	}
	return result, nil
}

// Worker adapts Expander onto the queue.Handler contract, run by a bounded
// pool of its own (queue.campaign_concurrency) independent of the SMS
// worker pool — a campaign can have thousands of recipients and must not
// starve single-send dispatch.
type Worker struct {
	Expander *Expander
	Logger   *zap.Logger
}

// HandleJob implements queue.Handler for the "campaign" queue kind.
func (w *Worker) HandleJob(ctx context.Context, raw json.RawMessage) (queue.Result, error) {
	var payload model.CampaignJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return queue.Result{}, fmt.Errorf("campaign: decode job payload: %w", err)
	}

	result, err := w.Expander.Expand(ctx, payload.TenantID, payload.CampaignID)
	if err != nil {
		return queue.Result{}, fmt.Errorf("campaign: expand: %w", err)
	}

	w.Logger.Info("campaign expansion complete",
		zap.String("tenant_id", payload.TenantID),
		zap.String("campaign_id", payload.CampaignID),
		zap.Int("total_recipients", result.TotalRecipients),
		zap.Int("enqueued", result.Enqueued),
		zap.Int("skipped", result.Skipped),
		zap.Int("blocked", result.Blocked),
	)
	return queue.Result{}, nil
}
