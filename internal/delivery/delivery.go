// Package delivery is the shared "submit a send" path used by both the
// single-send API and the Campaign Expander, and the SMS worker body
// that the queue dispatches jobs into.
package delivery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/leafline/messaging-core/internal/compliance"
	appErrors "github.com/leafline/messaging-core/internal/errors"
	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/provider"
	"github.com/leafline/messaging-core/internal/queue"
)

// logScanIssues logs the advisory content scanner's findings without
// blocking the send — the scanner never vetoes a message, it only leaves
// a trail for compliance to review after the fact.
func logScanIssues(logger *zap.Logger, tenantID, contactID string, issues []string) {
	if logger == nil || len(issues) == 0 {
		return
	}
	logger.Warn("compliance: content scan flagged issues",
		zap.String("tenant_id", tenantID),
		zap.String("contact_id", contactID),
		zap.Strings("issues", issues),
	)
}

// Store is the subset of persistence the delivery path needs beyond
// compliance.Store.
type Store interface {
	compliance.Store
	CreateMessage(ctx context.Context, m *model.Message) error
	UpdateMessageStatus(ctx context.Context, tenantID, messageID string, status model.MessageStatus, providerMessageID, providerStatus, errText *string) (bool, error)
	UpdateMessageSent(ctx context.Context, tenantID, messageID, providerMessageID string, segmentCount, costCents int) error
}

// SMSQueueKind is the queue.Kind SMS jobs are dispatched under.
const SMSQueueKind = "sms"

// Enqueuer is the subset of *queue.Queue the delivery path needs.
// Satisfied by *queue.Queue in production and a fake in tests.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind string, payload interface{}, delay time.Duration) (string, error)
}

// Submitter wraps enqueue of a single SMS send through the Compliance
// Gate, shared by the public API and the Campaign Expander so that
// per-recipient DEFER behaves identically from both callers.
type Submitter struct {
	Gate   *compliance.Gate
	Queue  Enqueuer
	Logger *zap.Logger
}

// SubmitResult tells the caller what happened to the request without it
// having to know queue internals.
type SubmitResult struct {
	Decision compliance.Decision
	Reasons  []string
	JobID    string
}

// Submit evaluates the Compliance Gate for contactID and, on ALLOW,
// enqueues an SMS job immediately; on DEFER, enqueues it delayed until
// RetryAfter; on BLOCK, enqueues nothing.
func (s *Submitter) Submit(ctx context.Context, tenantID, contactID string, payload model.DeliveryJobPayload) (*SubmitResult, error) {
	logScanIssues(s.Logger, tenantID, contactID, compliance.ScanContent(payload.Content, nil).Issues)

	result, err := s.Gate.Evaluate(ctx, tenantID, contactID, model.MessageKindSMS)
	if err != nil {
		return nil, fmt.Errorf("delivery: evaluate: %w", err)
	}

	switch result.Decision {
	case compliance.Block:
		return &SubmitResult{Decision: compliance.Block, Reasons: result.Reasons}, nil
	case compliance.Defer:
		delay := time.Until(*result.RetryAfter)
		jobID, err := s.Queue.Enqueue(ctx, SMSQueueKind, payload, delay)
		if err != nil {
			return nil, fmt.Errorf("delivery: enqueue deferred job: %w", err)
		}
		return &SubmitResult{Decision: compliance.Defer, Reasons: result.Reasons, JobID: jobID}, nil
	default:
		jobID, err := s.Queue.Enqueue(ctx, SMSQueueKind, payload, 0)
		if err != nil {
			return nil, fmt.Errorf("delivery: enqueue job: %w", err)
		}
		return &SubmitResult{Decision: compliance.Allow, JobID: jobID}, nil
	}
}

// Sender is the subset of the Provider Adapter the worker needs. Satisfied
// by *provider.Client in production and a fake in tests.
type Sender interface {
	Send(ctx context.Context, to, from, content string) (*provider.SendResult, error)
	CostCents(segmentCount int) int
	FromFallback() string
}

// Worker runs the SMS worker body: re-evaluate compliance at dispatch
// time, resolve from_number, write the messages row, invoke the
// Provider Adapter, and update status.
type Worker struct {
	Store     Store
	Gate      *compliance.Gate
	Provider  Sender
	Submitter *Submitter
	Logger    *zap.Logger
}

// HandleJob implements queue.Handler for the "sms" queue kind.
func (w *Worker) HandleJob(ctx context.Context, raw json.RawMessage) (queue.Result, error) {
	var payload model.DeliveryJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return queue.Result{}, fmt.Errorf("delivery: decode job payload: %w", err)
	}

	logScanIssues(w.Logger, payload.TenantID, payload.ContactID, compliance.ScanContent(payload.Content, nil).Issues)

	result, err := w.Gate.Evaluate(ctx, payload.TenantID, payload.ContactID, model.MessageKindSMS)
	if err != nil {
		return queue.Result{}, fmt.Errorf("delivery: re-evaluate at dispatch: %w", err)
	}

	switch result.Decision {
	case compliance.Block:
		return queue.Result{Blocked: true, Reasons: result.Reasons}, nil
	case compliance.Defer:
		// The clock crossed into quiet hours between enqueue and
		// dispatch. Re-enqueue with the new delay and report success —
		// the job loop must not treat this as a retry.
		delay := time.Until(*result.RetryAfter)
		if _, err := w.Submitter.Queue.Enqueue(ctx, SMSQueueKind, payload, delay); err != nil {
			return queue.Result{}, fmt.Errorf("delivery: re-enqueue deferred job: %w", err)
		}
		return queue.Result{}, nil
	}

	contact, err := w.Store.GetContact(ctx, payload.TenantID, payload.ContactID)
	if err != nil {
		return queue.Result{}, fmt.Errorf("delivery: load contact: %w", err)
	}
	if contact == nil {
		return queue.Result{}, appErrors.NewContactNotFound(payload.ContactID)
	}

	from, err := w.resolveFromNumber(ctx, payload)
	if err != nil {
		return queue.Result{}, err
	}

	now := time.Now()
	msg := &model.Message{
		ID:                  uuid.NewString(),
		TenantID:            payload.TenantID,
		ContactID:           payload.ContactID,
		CampaignID:          payload.CampaignID,
		Kind:                model.MessageKindSMS,
		Direction:           model.DirectionOutbound,
		Status:              model.StatusQueued,
		ToAddress:           contact.Phone,
		FromAddress:         from,
		Content:             payload.Content,
		ConsentVerifiedAt:   timePtr(now),
		QuietHoursCheckedAt: timePtr(now),
	}
	if err := w.Store.CreateMessage(ctx, msg); err != nil {
		return queue.Result{}, fmt.Errorf("delivery: create message row: %w", err)
	}

	sendResult, err := w.Provider.Send(ctx, contact.Phone, from, payload.Content)
	if err != nil {
		errText := err.Error()
		_, _ = w.Store.UpdateMessageStatus(ctx, payload.TenantID, msg.ID, model.StatusFailed, nil, nil, &errText)
		return queue.Result{}, fmt.Errorf("delivery: provider send: %w", err)
	}

	costCents := w.Provider.CostCents(sendResult.SegmentCount)
	if err := w.Store.UpdateMessageSent(ctx, payload.TenantID, msg.ID, sendResult.ProviderMessageID, sendResult.SegmentCount, costCents); err != nil {
		return queue.Result{}, fmt.Errorf("delivery: update message status: %w", err)
	}

	return queue.Result{}, nil
}

// resolveFromNumber picks the location's dedicated SMS number when one is
// set, and otherwise falls back to the carrier's configured messaging
// profile id, so a tenant can mix dedicated numbers and a shared profile
// across locations.
func (w *Worker) resolveFromNumber(ctx context.Context, payload model.DeliveryJobPayload) (string, error) {
	if payload.LocationID != nil {
		loc, err := w.Store.GetLocation(ctx, payload.TenantID, *payload.LocationID)
		if err != nil {
			return "", fmt.Errorf("delivery: resolve location: %w", err)
		}
		if loc != nil && loc.SMSPhoneNumber != nil {
			return *loc.SMSPhoneNumber, nil
		}
	}
	if profile := w.Provider.FromFallback(); profile != "" {
		return profile, nil
	}
	return "", appErrors.ErrNoFromNumber{LocationID: payload.LocationID}
}

func timePtr(t time.Time) *time.Time { return &t }
