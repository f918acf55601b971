package model

import "time"

// CampaignKind is the channel mix a campaign targets.
type CampaignKind string

const (
	CampaignKindSMS   CampaignKind = "sms"
	CampaignKindEmail CampaignKind = "email"
	CampaignKindBoth  CampaignKind = "both"
)

// CampaignStatus tracks a campaign through its lifecycle. draft ->
// scheduled -> sending -> sent is the happy path; cancelled and paused are
// reachable from any non-terminal status.
type CampaignStatus string

const (
	CampaignStatusDraft     CampaignStatus = "draft"
	CampaignStatusScheduled CampaignStatus = "scheduled"
	CampaignStatusSending   CampaignStatus = "sending"
	CampaignStatusSent      CampaignStatus = "sent"
	CampaignStatusPaused    CampaignStatus = "paused"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// Targeting selects a campaign's recipient set. Both slices empty means
// "all contacts" (subject to consent/age/opt-out filters applied
// elsewhere).
type Targeting struct {
	LocationIDs []string
	Tags        []string
}

// Campaign is a one-time broadcast with aggregate delivery counters.
type Campaign struct {
	ID              string
	TenantID        string
	Name            string
	Kind            CampaignKind
	ContentSMS      string
	ContentEmail    string
	Targeting       Targeting
	Status          CampaignStatus
	TotalRecipients int
	SentCount       int
	DeliveredCount  int
	FailedCount     int
	OpenedCount     int
	ClickedCount    int
	OptedOutCount   int
	ScheduledAt     *time.Time
	StartedAt       *time.Time
	CompletedAt     *time.Time
	CreatedAt       time.Time
	UpdatedAt       *time.Time
}

// IsTerminal reports whether the campaign can no longer transition.
func (c *Campaign) IsTerminal() bool {
	return c.Status == CampaignStatusSent || c.Status == CampaignStatusCancelled
}

// TouchesSMS reports whether this campaign's kind sends SMS.
func (c *Campaign) TouchesSMS() bool {
	return c.Kind == CampaignKindSMS || c.Kind == CampaignKindBoth
}

// TouchesEmail reports whether this campaign's kind sends email.
func (c *Campaign) TouchesEmail() bool {
	return c.Kind == CampaignKindEmail || c.Kind == CampaignKindBoth
}
