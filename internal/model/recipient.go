// internal/model/recipient.go
package model

import "time"

type RecipientStatus string

const (
	RecipientPending RecipientStatus = "PENDING"
	// RecipientSending marks a recipient claimed by one batch invocation for an in-flight send.
	RecipientSending RecipientStatus = "SENDING"
	RecipientSent    RecipientStatus = "SENT"
	RecipientFailed  RecipientStatus = "FAILED"
)

func (s RecipientStatus) String() string { return string(s) }

type Recipient struct {
	ID         int             `db:"id" json:"id"`
	CampaignID int             `db:"campaign_id" json:"campaign_id"`
	Phone      string          `db:"phone" json:"phone"`
	Status     RecipientStatus `db:"status" json:"status"`
	Attempts   int             `db:"attempts" json:"attempts"`
	MessageID  *string         `db:"message_id" json:"message_id,omitempty"`
	ErrorCode  *string         `db:"error_code" json:"error_code,omitempty"`
	Variables  []string        `db:"variables" json:"variables,omitempty"` // body parameters, in order
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time       `db:"updated_at" json:"updated_at"`
}

// RecipientOutcome is what the store decided when a retryable failure was recorded.
type RecipientOutcome struct {
	Status   RecipientStatus
	Attempts int
}
