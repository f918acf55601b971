package model

import "time"

// Location is a tenant's physical site. SMSPhoneNumber is nil when the
// tenant sends from a shared messaging profile instead of a dedicated
// number.
type Location struct {
	ID             string    `db:"id" json:"id"`
	TenantID       string    `db:"tenant_id" json:"tenant_id"`
	StateCode      string    `db:"state_code" json:"state_code"`
	Timezone       string    `db:"timezone" json:"timezone"`
	SMSPhoneNumber *string   `db:"sms_phone_number" json:"sms_phone_number,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
