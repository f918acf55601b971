package httpapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// SignatureHeader and TimestampHeader follow the carrier's Ed25519
// webhook-signing convention: the signature is base64 over
// "<timestamp>.<rawBody>".
const (
	SignatureHeader = "Webhook-Signature-Ed25519"
	TimestampHeader = "Webhook-Timestamp"
)

// webhookEnvelope is the outer shape every carrier callback shares:
// `{data: {event_type, payload}}`.
type webhookEnvelope struct {
	Data struct {
		EventType string          `json:"event_type"`
		Payload   json.RawMessage `json:"payload"`
	} `json:"data"`
}

// outboundEventPayload covers message.sent/finalized/delivered/failed/
// delivery_failed.
type outboundEventPayload struct {
	ID string `json:"id"`
	To []struct {
		Status string `json:"status"`
	} `json:"to"`
	Errors []struct {
		Code   string `json:"code"`
		Title  string `json:"title"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

// inboundEventPayload covers message.received.
type inboundEventPayload struct {
	ID   string `json:"id"`
	Text string `json:"text"`
	From struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"from"`
	To []struct {
		PhoneNumber string `json:"phone_number"`
	} `json:"to"`
}

var statusEventTypes = map[string]bool{
	"message.sent":            true,
	"message.finalized":       true,
	"message.delivered":       true,
	"message.failed":          true,
	"message.delivery_failed": true,
}

// Webhook handles POST /webhooks/{carrier}. It verifies the Ed25519
// signature over the raw body before parsing anything, then acknowledges
// with 200 immediately and does the actual reconciliation on a background
// goroutine so a slow store or provider call never delays the carrier's
// own retry timer.
func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	carrier := chi.URLParam(r, "carrier")
	logger := h.Logger.With(zap.String("carrier", carrier))

	rawBody, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	timestamp := r.Header.Get(TimestampHeader)
	sig, err := base64.StdEncoding.DecodeString(r.Header.Get(SignatureHeader))
	if err != nil {
		logger.Warn("webhook signature not base64", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}
	if err := h.Verifier.VerifyWebhookSignature(rawBody, timestamp, sig, h.Now()); err != nil {
		logger.Warn("webhook signature rejected", zap.Error(err))
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	w.WriteHeader(http.StatusOK)

	go h.processWebhook(context.WithoutCancel(r.Context()), logger, rawBody)
}

func (h *Handlers) processWebhook(ctx context.Context, logger *zap.Logger, rawBody []byte) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		logger.Error("failed to decode webhook envelope", zap.Error(err))
		return
	}

	switch {
	case statusEventTypes[envelope.Data.EventType]:
		h.processStatusEvent(ctx, logger, envelope.Data.EventType, envelope.Data.Payload)
	case envelope.Data.EventType == "message.received":
		h.processInboundEvent(ctx, logger, envelope.Data.Payload)
	default:
		logger.Info("unhandled webhook event_type", zap.String("event_type", envelope.Data.EventType))
	}
}

func (h *Handlers) processStatusEvent(ctx context.Context, logger *zap.Logger, eventType string, raw json.RawMessage) {
	var p outboundEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Error("failed to decode status payload", zap.String("event_type", eventType), zap.Error(err))
		return
	}

	var status string
	if len(p.To) > 0 {
		status = p.To[0].Status
	}

	var errText *string
	if len(p.Errors) > 0 {
		e := p.Errors[0]
		text := e.Code + ": " + e.Title + " - " + e.Detail
		errText = &text
	}

	if err := h.Status.OnStatus(ctx, p.ID, status, errText); err != nil {
		logger.Error("status reconciliation failed", zap.String("provider_message_id", p.ID), zap.Error(err))
	}
}

func (h *Handlers) processInboundEvent(ctx context.Context, logger *zap.Logger, raw json.RawMessage) {
	var p inboundEventPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		logger.Error("failed to decode inbound payload", zap.Error(err))
		return
	}
	if len(p.To) == 0 {
		logger.Warn("inbound webhook missing destination number")
		return
	}

	result, err := h.Inbound.OnInbound(ctx, p.From.PhoneNumber, p.To[0].PhoneNumber, p.Text, p.ID)
	if err != nil {
		logger.Error("inbound reconciliation failed", zap.Error(err))
		return
	}
	if result.Action == "dropped_unknown_destination" {
		logger.Warn("inbound webhook to unknown destination", zap.String("to", p.To[0].PhoneNumber))
	}
}
