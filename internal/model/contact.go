package model

import "time"

// ConsentMethod records how a contact's consent or opt-in/opt-out was
// captured.
type ConsentMethod string

const (
	ConsentMethodKeywordReply ConsentMethod = "keyword_reply"
	ConsentMethodLinkClick    ConsentMethod = "link_click"
	ConsentMethodManual       ConsentMethod = "manual"
	ConsentMethodImport       ConsentMethod = "import"
)

// Contact is keyed by (tenant, id). (tenant, phone) is unique.
type Contact struct {
	ID                string
	TenantID          string
	Phone             string
	PrimaryLocationID *string
	SMSConsent        bool
	SMSConsentAt      *time.Time
	SMSConsentMethod  ConsentMethod
	EmailConsent      bool
	EmailConsentAt    *time.Time
	SMSOptedOut       bool
	SMSOptedOutAt     *time.Time
	AgeVerified       bool
	DOB               *time.Time
	Tags              []string
	Timezone          *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasTag reports whether the contact carries the given tag.
func (c *Contact) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// AnyTag reports whether the contact carries any of the given tags. An
// empty tag set matches everything (no filtering requested).
func (c *Contact) AnyTag(tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if c.HasTag(t) {
			return true
		}
	}
	return false
}
