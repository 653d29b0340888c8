// internal/model/conversation.go
package model

import "time"

// ConversationWindowTTL is the provider's business-initiated conversation window.
const ConversationWindowTTL = 24 * time.Hour

type WindowStatus string

const (
	WindowOpen   WindowStatus = "open"
	WindowClosed WindowStatus = "closed"
)

type ConversationWindow struct {
	Phone                 string       `db:"phone" json:"phone"`
	ConversationStartedAt time.Time    `db:"conversation_started_at" json:"conversation_started_at"`
	LastMessageAt         time.Time    `db:"last_message_at" json:"last_message_at"`
	Status                WindowStatus `db:"status" json:"status"`
	MessageCount          int          `db:"message_count" json:"message_count"`
}

// IsActive reports whether a send at now stays inside the window without opening a new conversation.
func (w *ConversationWindow) IsActive(now time.Time) bool {
	if w == nil || w.Status != WindowOpen {
		return false
	}
	return now.Sub(w.LastMessageAt) < ConversationWindowTTL
}

// DailyCounter is the process-wide tally of newly opened conversations for one calendar day.
type DailyCounter struct {
	Day   string `db:"day" json:"day"` // YYYY-MM-DD in the quota timezone
	Count int    `db:"count" json:"count"`
}
