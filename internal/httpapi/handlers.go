// Package httpapi wires the send pipeline onto HTTP: the single-send and
// campaign-send endpoints, and the carrier webhook intake. Tenant id and
// auth are assumed already validated by middleware layered outside this
// package — these handlers only read the header.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/leafline/messaging-core/internal/compliance"
	"github.com/leafline/messaging-core/internal/delivery"
	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/reconcile"
)

// TenantIDHeader is the header an upstream auth layer is expected to set.
const TenantIDHeader = "X-Tenant-Id"

// Submitter is the subset of *delivery.Submitter the send handler needs.
type Submitter interface {
	Submit(ctx context.Context, tenantID, contactID string, payload model.DeliveryJobPayload) (*delivery.SubmitResult, error)
}

// Enqueuer is the subset of *queue.Queue the campaign-send handler needs
// to hand a campaign off to the campaign worker pool instead of expanding
// it inline on the request goroutine.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload interface{}, delay time.Duration) (string, error)
}

// StatusReconciler is the subset of *reconcile.Reconciler the webhook
// handler needs for delivery-status callbacks.
type StatusReconciler interface {
	OnStatus(ctx context.Context, providerMessageID, providerStatus string, errText *string) error
}

// InboundReconciler is the subset of *reconcile.Reconciler the webhook
// handler needs for inbound text.
type InboundReconciler interface {
	OnInbound(ctx context.Context, from, to, text, providerMessageID string) (*reconcile.InboundResult, error)
}

// CampaignReader is the subset of *store.Store the campaign list/detail
// handlers need — read-only, no send-path dependency.
type CampaignReader interface {
	ListCampaigns(ctx context.Context, tenantID, status string, offset, limit int) ([]*model.Campaign, int, error)
	GetCampaign(ctx context.Context, tenantID, campaignID string) (*model.Campaign, error)
}

// SignatureVerifier is the subset of *provider.Client the webhook handler
// needs to authenticate a carrier callback before parsing it.
type SignatureVerifier interface {
	VerifyWebhookSignature(rawBody []byte, timestamp string, signature []byte, now time.Time) error
}

// Handlers holds the dependencies every route in this package needs,
// following the teacher's own *Handler-struct-with-injected-deps shape.
type Handlers struct {
	Submitter     Submitter
	CampaignQueue Enqueuer
	Status        StatusReconciler
	Inbound       InboundReconciler
	Verifier      SignatureVerifier
	Campaigns     CampaignReader
	Logger        *zap.Logger
	Now           func() time.Time
}

// New constructs Handlers with time.Now as the clock.
func New(submitter Submitter, campaignQueue Enqueuer, reconciler *reconcile.Reconciler, verifier SignatureVerifier, campaigns CampaignReader, logger *zap.Logger) *Handlers {
	return &Handlers{
		Submitter:     submitter,
		CampaignQueue: campaignQueue,
		Status:        reconciler,
		Inbound:       reconciler,
		Verifier:      verifier,
		Campaigns:     campaigns,
		Logger:        logger,
		Now:           time.Now,
	}
}

// decisionHTTPStatus maps a compliance.Decision to its HTTP status:
// BLOCK is the only non-200 outcome.
func decisionHTTPStatus(d compliance.Decision) int {
	if d == compliance.Block {
		return http.StatusUnprocessableEntity
	}
	return http.StatusOK
}
