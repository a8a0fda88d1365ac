package domain

import (
	"sort"
	"time"
)

// SenderRole says which side of the thread a message came from. It is
// derived by comparing the server-reported sender id to the authenticated
// user's id, never from any other signal.
type SenderRole string

const (
	SenderSelf         SenderRole = "self"
	SenderCounterparty SenderRole = "counterparty"
)

// DeliveryState tracks an outgoing message through the optimistic send
// pipeline. Fetched messages are always Confirmed.
type DeliveryState string

const (
	DeliveryPending   DeliveryState = "pending"
	DeliveryConfirmed DeliveryState = "confirmed"
	DeliveryFailed    DeliveryState = "failed"
)

type Message struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	SenderRole    SenderRole    `json:"sender_role"`
	SentAt        time.Time     `json:"sent_at"`
	DeliveryState DeliveryState `json:"delivery_state"`
	Read          bool          `json:"read"`
}

func (m Message) Pending() bool {
	return m.DeliveryState == DeliveryPending
}

// SortBySentAt orders a thread ascending by timestamp. The sort is stable so
// messages sharing a timestamp keep their incoming order.
func SortBySentAt(messages []Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].SentAt.Before(messages[j].SentAt)
	})
}
