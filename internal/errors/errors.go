// Package appErrors holds sentinel error types shared across the send
// pipeline, so callers can distinguish "not found" or "stale webhook" from
// a genuine store failure without string-matching error text.
package appErrors

import "fmt"

// ErrCampaignNotFound is returned when a campaign id has no matching row.
type ErrCampaignNotFound struct {
	CampaignID string
}

func (e *ErrCampaignNotFound) Error() string {
	return fmt.Sprintf("campaign %s not found", e.CampaignID)
}

// NewCampaignNotFound constructs an ErrCampaignNotFound.
func NewCampaignNotFound(id string) error {
	return &ErrCampaignNotFound{CampaignID: id}
}

// ErrContactNotFound is returned when a contact id has no matching row.
type ErrContactNotFound struct {
	ContactID string
}

func (e *ErrContactNotFound) Error() string {
	return fmt.Sprintf("contact %s not found", e.ContactID)
}

// NewContactNotFound constructs an ErrContactNotFound.
func NewContactNotFound(id string) error {
	return &ErrContactNotFound{ContactID: id}
}

// ErrMessageNotFound is returned when a message id has no matching row.
type ErrMessageNotFound struct {
	MessageID string
}

func (e *ErrMessageNotFound) Error() string {
	return fmt.Sprintf("message %s not found", e.MessageID)
}

// NewMessageNotFound constructs an ErrMessageNotFound.
func NewMessageNotFound(id string) error {
	return &ErrMessageNotFound{MessageID: id}
}

// ErrStatusRegression is returned when a status update would move a
// message row out of a terminal status. Callers should treat this as a
// no-op, not a failure: the webhook or re-evaluation that produced the
// stale update has nothing further to do.
type ErrStatusRegression struct {
	MessageID string
	From      string
	To        string
}

func (e *ErrStatusRegression) Error() string {
	return fmt.Sprintf("message %s: refusing to move status %s -> %s", e.MessageID, e.From, e.To)
}

// NewStatusRegression constructs an ErrStatusRegression.
func NewStatusRegression(messageID, from, to string) error {
	return &ErrStatusRegression{MessageID: messageID, From: from, To: to}
}

// ErrTenantScopeMissing is returned by the store when a caller invokes a
// tenant-scoped operation without supplying a tenant id. This should never
// happen in practice — the type system requires the parameter — but the
// store asserts it defensively since a blank tenant id passed through by
// mistake must fail loudly rather than silently scope to "".
type ErrTenantScopeMissing struct{}

func (e ErrTenantScopeMissing) Error() string {
	return "tenant scope is required but was empty"
}

// ErrNoFromNumber is returned when a send has neither a location-assigned
// SMS number nor a configured messaging-profile id to originate from.
type ErrNoFromNumber struct {
	LocationID *string
}

func (e ErrNoFromNumber) Error() string {
	if e.LocationID != nil {
		return fmt.Sprintf("no sms_phone_number for location %s and no messaging_profile_id configured", *e.LocationID)
	}
	return "no location on job payload and no messaging_profile_id configured"
}
