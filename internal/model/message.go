package model

import "time"

// MessageKind is the channel a message was sent (or received) over.
type MessageKind string

const (
	MessageKindSMS   MessageKind = "sms"
	MessageKindEmail MessageKind = "email"
)

// MessageDirection distinguishes our sends from carrier-delivered replies.
type MessageDirection string

const (
	DirectionOutbound MessageDirection = "outbound"
	DirectionInbound  MessageDirection = "inbound"
)

// MessageStatus is the lifecycle of a single send/receive audit row.
type MessageStatus string

const (
	StatusQueued     MessageStatus = "queued"
	StatusSending    MessageStatus = "sending"
	StatusSent       MessageStatus = "sent"
	StatusDelivered  MessageStatus = "delivered"
	StatusFailed     MessageStatus = "failed"
	StatusBounced    MessageStatus = "bounced"
	StatusComplained MessageStatus = "complained"
	StatusOpened     MessageStatus = "opened"
	StatusClicked    MessageStatus = "clicked"
)

// terminalStatuses are statuses a message may never transition out of.
// The store's status-update guard consults this set.
var terminalStatuses = map[MessageStatus]bool{
	StatusDelivered:  true,
	StatusFailed:     true,
	StatusBounced:    true,
	StatusComplained: true,
}

// IsTerminal reports whether status is one a message can't leave.
func IsTerminal(status MessageStatus) bool {
	return terminalStatuses[status]
}

// Message is the per-send (or per-receive) audit row keyed by
// (tenant, id). Outbound rows carry ConsentVerifiedAt/QuietHoursCheckedAt
// stamped at dispatch time; inbound rows leave both nil.
type Message struct {
	ID                  string
	TenantID            string
	ContactID           string
	Kind                MessageKind
	Direction           MessageDirection
	ToAddress           string
	FromAddress         string
	Content             string
	Segments            int
	ProviderMessageID   *string
	Status              MessageStatus
	Attempts            int
	ProviderStatus      string
	Error               string
	ConsentVerifiedAt   *time.Time
	QuietHoursCheckedAt *time.Time
	CampaignID          *string
	CostCents           *int
	CreatedAt           time.Time
	UpdatedAt           time.Time
	StatusUpdatedAt     time.Time
	DeliveredAt         *time.Time
}
