package model

import "time"

// OptOutAction is which direction an OptOutLogEntry recorded.
type OptOutAction string

const (
	ActionOptIn  OptOutAction = "opt_in"
	ActionOptOut OptOutAction = "opt_out"
)

// OptOutLogEntry is an immutable audit record of a single opt-in/opt-out.
type OptOutLogEntry struct {
	ID              string
	TenantID        string
	ContactID       *string
	Channel         string // "sms" or "email"
	Address         string
	Action          OptOutAction
	Method          ConsentMethod
	SourceMessageID *string
	CreatedAt       time.Time
}

// GlobalOptOut is the cross-tenant phone blacklist. SourceTenantID records
// who first recorded the opt-out; it is informational only, not a scoping
// key — every tenant is blocked from sending to a globally opted-out
// number regardless of who recorded it.
type GlobalOptOut struct {
	Phone          string
	SourceTenantID string
	OptedOutAt     time.Time
}
