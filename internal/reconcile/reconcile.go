// Package reconcile processes inbound carrier traffic: delivery-status
// callbacks and inbound SMS text, including STOP/START keyword handling.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/leafline/messaging-core/internal/errors"
	"github.com/leafline/messaging-core/internal/model"
	"github.com/leafline/messaging-core/internal/phone"
	"github.com/leafline/messaging-core/internal/provider"
	"github.com/leafline/messaging-core/internal/store"
)

var defaultOptOutKeywords = []string{"STOP", "UNSUBSCRIBE", "CANCEL", "END", "QUIT"}
var defaultOptInKeywords = []string{"START", "YES", "SUBSCRIBE", "UNSTOP"}

// providerStatusMap translates a carrier's status vocabulary to ours.
// Unknown values pass through untranslated.
var providerStatusMap = map[string]model.MessageStatus{
	"queued":               model.StatusQueued,
	"sending":              model.StatusSending,
	"sent":                 model.StatusSent,
	"delivered":            model.StatusDelivered,
	"delivery_failed":      model.StatusFailed,
	"delivery_unconfirmed": model.StatusSent,
}

// Store is the subset of persistence the reconciler needs.
type Store interface {
	FindMessageByProviderID(ctx context.Context, providerMessageID string) (*model.Message, error)
	UpdateMessageStatus(ctx context.Context, tenantID, messageID string, status model.MessageStatus, providerMessageID, providerStatus, errText *string) (bool, error)
	IncrementCampaignCounter(ctx context.Context, tenantID, campaignID string, counter store.CampaignCounter, delta int) error
	FindLocationBySMSNumber(ctx context.Context, number string) (*model.Location, error)
	FindContactByPhone(ctx context.Context, tenantID, phone string) (*model.Contact, error)
	CreateMessage(ctx context.Context, m *model.Message) error
	SetSMSOptOut(ctx context.Context, tenantID, contactID string, optedOut bool) error
	UpsertContact(ctx context.Context, c *model.Contact) error
	InsertOptOutLogEntry(ctx context.Context, e *model.OptOutLogEntry) error
	InsertGlobalOptOut(ctx context.Context, phoneNumber, sourceTenantID string) error
	DeleteGlobalOptOut(ctx context.Context, phoneNumber string) error
	MostRecentOutboundCampaignID(ctx context.Context, tenantID, contactID string) (*string, error)
}

// Sender is the subset of the Provider Adapter the reconciler needs to
// send opt-out/opt-in confirmations.
type Sender interface {
	Send(ctx context.Context, to, from, content string) (*provider.SendResult, error)
}

// Reconciler processes status callbacks and inbound text.
type Reconciler struct {
	Store            Store
	Provider         Sender
	OptOutKeywords   []string
	OptInKeywords    []string
	OptOutConfirmMsg string
	OptInConfirmMsg  string
}

// New constructs a Reconciler with the default keyword lists and
// confirmation copy; callers can override OptOutKeywords/OptInKeywords
// from configured lists afterward.
func New(s Store, p Sender) *Reconciler {
	return &Reconciler{
		Store:            s,
		Provider:         p,
		OptOutKeywords:   defaultOptOutKeywords,
		OptInKeywords:    defaultOptInKeywords,
		OptOutConfirmMsg: "You have been unsubscribed and will not receive further messages. Reply START to resubscribe.",
		OptInConfirmMsg:  "You're resubscribed. Reply STOP at any time to opt out.",
	}
}

// OnStatus maps a carrier status callback to an internal status update
// and, for a campaign message, increments the matching counter.
func (r *Reconciler) OnStatus(ctx context.Context, providerMessageID, providerStatus string, errText *string) error {
	msg, err := r.Store.FindMessageByProviderID(ctx, providerMessageID)
	if err != nil {
		return fmt.Errorf("reconcile: lookup message: %w", err)
	}
	if msg == nil {
		return nil // unknown provider id: nothing to reconcile
	}

	newStatus, ok := providerStatusMap[providerStatus]
	if !ok {
		newStatus = model.MessageStatus(providerStatus) // pass through untranslated
	}

	changed, err := r.Store.UpdateMessageStatus(ctx, msg.TenantID, msg.ID, newStatus, &providerMessageID, &providerStatus, errText)
	if err != nil {
		var regression *appErrors.ErrStatusRegression
		if errors.As(err, &regression) {
			return nil // a stale or out-of-order callback has nothing further to do
		}
		return fmt.Errorf("reconcile: update status: %w", err)
	}

	// A replayed callback that repeats the message's current status isn't
	// a transition — incrementing the campaign counter again here would
	// double-count it and break the sent+failed+opted_out reconciliation.
	if changed && msg.CampaignID != nil {
		counter, ok := counterFor(newStatus)
		if ok {
			if err := r.Store.IncrementCampaignCounter(ctx, msg.TenantID, *msg.CampaignID, counter, 1); err != nil {
				return fmt.Errorf("reconcile: increment campaign counter: %w", err)
			}
		}
	}
	return nil
}

func counterFor(status model.MessageStatus) (store.CampaignCounter, bool) {
	switch status {
	case model.StatusSent:
		return store.CounterSent, true
	case model.StatusDelivered:
		return store.CounterDelivered, true
	case model.StatusFailed:
		return store.CounterFailed, true
	}
	return "", false
}

// InboundResult reports what OnInbound did.
type InboundResult struct {
	Action string // "dropped_unknown_destination", "opted_out", "opted_in", "received"
}

// OnInbound processes one inbound SMS: resolve tenant/location by
// destination number, find the contact, record the inbound message, and
// handle STOP/START keywords.
func (r *Reconciler) OnInbound(ctx context.Context, from, to, text, providerMessageID string) (*InboundResult, error) {
	fromNorm := phone.Normalize(from)
	toNorm := phone.Normalize(to)

	loc, err := r.Store.FindLocationBySMSNumber(ctx, toNorm)
	if err != nil {
		return nil, fmt.Errorf("reconcile: resolve destination: %w", err)
	}
	if loc == nil {
		return &InboundResult{Action: "dropped_unknown_destination"}, nil
	}

	contact, err := r.Store.FindContactByPhone(ctx, loc.TenantID, fromNorm)
	if err != nil {
		return nil, fmt.Errorf("reconcile: find contact: %w", err)
	}

	inbound := &model.Message{
		ID:        uuid.NewString(),
		TenantID:  loc.TenantID,
		Kind:      model.MessageKindSMS,
		Direction: model.DirectionInbound,
		ToAddress: toNorm,
		Content:   text,
		Status:    model.StatusDelivered,
	}
	if contact != nil {
		inbound.ContactID = contact.ID
	}
	if err := r.Store.CreateMessage(ctx, inbound); err != nil {
		return nil, fmt.Errorf("reconcile: insert inbound message: %w", err)
	}

	normalizedText := strings.ToUpper(strings.TrimSpace(text))

	if contact != nil && containsKeyword(normalizedText, r.OptOutKeywords) {
		return r.handleOptOut(ctx, loc, contact, fromNorm, inbound.ID)
	}
	if contact != nil && containsKeyword(normalizedText, r.OptInKeywords) {
		return r.handleOptIn(ctx, loc, contact, fromNorm, inbound.ID)
	}
	return &InboundResult{Action: "received"}, nil
}

func containsKeyword(text string, keywords []string) bool {
	for _, k := range keywords {
		if text == k {
			return true
		}
	}
	return false
}

func (r *Reconciler) handleOptOut(ctx context.Context, loc *model.Location, contact *model.Contact, fromNorm, sourceMessageID string) (*InboundResult, error) {
	if err := r.Store.SetSMSOptOut(ctx, loc.TenantID, contact.ID, true); err != nil {
		return nil, fmt.Errorf("reconcile: set opt-out: %w", err)
	}
	if err := r.Store.InsertOptOutLogEntry(ctx, &model.OptOutLogEntry{
		ID: uuid.NewString(), TenantID: loc.TenantID, ContactID: &contact.ID,
		Channel: string(model.MessageKindSMS), Address: fromNorm,
		Action: model.ActionOptOut, Method: model.ConsentMethodKeywordReply,
		SourceMessageID: &sourceMessageID,
	}); err != nil {
		return nil, fmt.Errorf("reconcile: log opt-out: %w", err)
	}
	if err := r.Store.InsertGlobalOptOut(ctx, fromNorm, loc.TenantID); err != nil {
		return nil, fmt.Errorf("reconcile: global opt-out: %w", err)
	}

	campaignID, err := r.Store.MostRecentOutboundCampaignID(ctx, loc.TenantID, contact.ID)
	if err != nil {
		return nil, fmt.Errorf("reconcile: attribute opt-out to campaign: %w", err)
	}
	if campaignID != nil {
		if err := r.Store.IncrementCampaignCounter(ctx, loc.TenantID, *campaignID, store.CounterOptedOut, 1); err != nil {
			return nil, fmt.Errorf("reconcile: increment opted_out_count: %w", err)
		}
	}

	if loc.SMSPhoneNumber != nil {
		r.sendConfirmation(ctx, loc, contact.ID, fromNorm, r.OptOutConfirmMsg) //nolint:errcheck
	}
	return &InboundResult{Action: "opted_out"}, nil
}

func (r *Reconciler) handleOptIn(ctx context.Context, loc *model.Location, contact *model.Contact, fromNorm, sourceMessageID string) (*InboundResult, error) {
	contact.SMSOptedOut = false
	contact.SMSConsent = true
	now := time.Now()
	contact.SMSConsentAt = &now
	contact.SMSConsentMethod = model.ConsentMethodKeywordReply
	if err := r.Store.UpsertContact(ctx, contact); err != nil {
		return nil, fmt.Errorf("reconcile: upsert contact: %w", err)
	}
	if err := r.Store.InsertOptOutLogEntry(ctx, &model.OptOutLogEntry{
		ID: uuid.NewString(), TenantID: loc.TenantID, ContactID: &contact.ID,
		Channel: string(model.MessageKindSMS), Address: fromNorm,
		Action: model.ActionOptIn, Method: model.ConsentMethodKeywordReply,
		SourceMessageID: &sourceMessageID,
	}); err != nil {
		return nil, fmt.Errorf("reconcile: log opt-in: %w", err)
	}
	if err := r.Store.DeleteGlobalOptOut(ctx, fromNorm); err != nil {
		return nil, fmt.Errorf("reconcile: clear global opt-out: %w", err)
	}
	if loc.SMSPhoneNumber != nil {
		r.sendConfirmation(ctx, loc, contact.ID, fromNorm, r.OptInConfirmMsg) //nolint:errcheck
	}
	return &InboundResult{Action: "opted_in"}, nil
}

// sendConfirmation sends a STOP/START confirmation SMS and records it as
// an outbound messages row addressed to the phone number directly — a
// consent-bypass path, since the contact has just opted out (or is
// opting back in) and the usual consent check doesn't apply here.
func (r *Reconciler) sendConfirmation(ctx context.Context, loc *model.Location, contactID, to, text string) error {
	sendResult, sendErr := r.Provider.Send(ctx, to, *loc.SMSPhoneNumber, text)

	msg := &model.Message{
		ID:          uuid.NewString(),
		TenantID:    loc.TenantID,
		ContactID:   contactID,
		Kind:        model.MessageKindSMS,
		Direction:   model.DirectionOutbound,
		ToAddress:   to,
		FromAddress: *loc.SMSPhoneNumber,
		Content:     text,
		Status:      model.StatusSent,
	}
	if sendErr != nil {
		msg.Status = model.StatusFailed
		msg.Error = sendErr.Error()
	} else if sendResult != nil {
		msg.ProviderMessageID = &sendResult.ProviderMessageID
		msg.Segments = sendResult.SegmentCount
	}
	if createErr := r.Store.CreateMessage(ctx, msg); createErr != nil {
		return fmt.Errorf("reconcile: record confirmation message: %w", createErr)
	}
	return sendErr
}
