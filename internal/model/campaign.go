// internal/model/campaign.go
package model

import "time"

type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "DRAFT"
	CampaignRunning   CampaignStatus = "RUNNING"
	CampaignPaused    CampaignStatus = "PAUSED"
	CampaignCompleted CampaignStatus = "COMPLETED"
)

func (s CampaignStatus) String() string { return string(s) }

// CanTransitionTo reports whether the lifecycle allows moving from s to next.
// PAUSED -> RUNNING is an external resume; COMPLETED is terminal.
func (s CampaignStatus) CanTransitionTo(next CampaignStatus) bool {
	switch s {
	case CampaignDraft:
		return next == CampaignRunning
	case CampaignRunning:
		return next == CampaignPaused || next == CampaignCompleted
	case CampaignPaused:
		return next == CampaignRunning
	}
	return false
}

type Campaign struct {
	ID              int            `db:"id" json:"id"`
	Name            string         `db:"name" json:"name"`
	TemplateName    string         `db:"template_name" json:"template_name"`
	LanguageCode    string         `db:"language_code" json:"language_code"`
	Status          CampaignStatus `db:"status" json:"status"`
	TotalRecipients int            `db:"total_recipients" json:"total_recipients"`
	SentCount       int            `db:"sent_count" json:"sent_count"`
	FailedCount     int            `db:"failed_count" json:"failed_count"`
	PausedReason    *string        `db:"paused_reason" json:"paused_reason,omitempty"`
	CreatedAt       time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt       *time.Time     `db:"updated_at" json:"updated_at,omitempty"`
}
