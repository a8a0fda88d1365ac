package domain

import "time"

// ConversationSummary is one row of the user's inbox: who the counterparty
// is and a preview of where the thread left off.
type ConversationSummary struct {
	CounterpartyID   string    `json:"counterparty_id"`
	CounterpartyName string    `json:"counterparty_name"`
	LastMessage      string    `json:"last_message,omitempty"`
	LastMessageAt    time.Time `json:"last_message_at,omitempty"`
	UnreadCount      int       `json:"unread_count"`
}
