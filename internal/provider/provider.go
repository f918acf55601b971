// Package provider talks to the outbound SMS carrier and verifies
// inbound webhook signatures from it.
package provider

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// SendResult is what a successful carrier send returns.
type SendResult struct {
	ProviderMessageID string
	SegmentCount      int
}

// Client is the SMS carrier adapter. Config fields map directly to the
// provider.* configuration options.
type Client struct {
	HTTPClient         *http.Client
	BaseURL            string
	APIKey             string
	CostPerSegmentCts  int
	WebhookPublicKey   ed25519.PublicKey
	MessagingProfileID string
}

// Config constructs a Client with sane HTTP timeouts, mirroring the
// teacher's preference for an explicit constructor over a bare struct
// literal at call sites.
type Config struct {
	BaseURL            string
	APIKey             string
	CostPerSegmentCts  int
	WebhookPublicKey   ed25519.PublicKey
	MessagingProfileID string
}

func New(cfg Config) *Client {
	return &Client{
		HTTPClient:         &http.Client{Timeout: 10 * time.Second},
		BaseURL:            cfg.BaseURL,
		APIKey:             cfg.APIKey,
		CostPerSegmentCts:  cfg.CostPerSegmentCts,
		WebhookPublicKey:   cfg.WebhookPublicKey,
		MessagingProfileID: cfg.MessagingProfileID,
	}
}

type sendRequest struct {
	To   string `json:"to"`
	From string `json:"from"`
	Body string `json:"body"`
}

type sendResponse struct {
	ID           string `json:"id"`
	SegmentCount int    `json:"segment_count"`
}

type sendErrorResponse struct {
	Error string `json:"error"`
}

// Send submits one message to the carrier's HTTP API. The cost in cents
// is derived from the returned segment count times CostPerSegmentCts,
// resolving what a single static per-message price could not: carriers
// bill per SMS segment, and a 320-character message is two segments.
func (c *Client) Send(ctx context.Context, to, from, content string) (*SendResult, error) {
	body, err := json.Marshal(sendRequest{To: to, From: from, Body: content})
	if err != nil {
		return nil, fmt.Errorf("provider: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: send: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		var errBody sendErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		if errBody.Error != "" {
			return nil, fmt.Errorf("provider: carrier rejected send: %s", errBody.Error)
		}
		return nil, fmt.Errorf("provider: carrier returned status %d", resp.StatusCode)
	}

	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("provider: decode response: %w", err)
	}
	if out.SegmentCount <= 0 {
		out.SegmentCount = 1
	}

	return &SendResult{ProviderMessageID: out.ID, SegmentCount: out.SegmentCount}, nil
}

// CostCents computes the billed cost for a send of the given segment
// count under the configured per-segment price.
func (c *Client) CostCents(segmentCount int) int {
	return segmentCount * c.CostPerSegmentCts
}

// FromFallback returns the messaging-profile id to send from when a
// recipient has no location with a dedicated SMS number.
func (c *Client) FromFallback() string {
	return c.MessagingProfileID
}

var errStaleSignature = errors.New("provider: webhook timestamp outside freshness window")
var errBadSignature = errors.New("provider: webhook signature verification failed")

// VerifyWebhookSignature checks an Ed25519 signature over
// "<timestamp>.<rawBody>" against the configured carrier public key, and
// rejects timestamps more than five minutes old or in the future — a
// captured, replayed webhook body fails even with a valid signature.
func (c *Client) VerifyWebhookSignature(rawBody []byte, timestamp string, signature []byte, now time.Time) error {
	ts, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return fmt.Errorf("provider: invalid webhook timestamp: %w", err)
	}
	if now.Sub(ts) > 5*time.Minute || ts.Sub(now) > 5*time.Minute {
		return errStaleSignature
	}

	signed := append([]byte(timestamp+"."), rawBody...)
	if !ed25519.Verify(c.WebhookPublicKey, signed, signature) {
		return errBadSignature
	}
	return nil
}
