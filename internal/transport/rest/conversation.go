package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gigline/gigchat/internal/domain"
	"github.com/gigline/gigchat/pkg/validator"
)

// Wire shapes of the conversation endpoints. The backend wraps everything
// in a {status, data} envelope; data is a pointer so a missing field can be
// told apart from an empty one.

type threadEnvelope struct {
	Status bool           `json:"status"`
	Data   *[]wireMessage `json:"data"`
}

type wireMessage struct {
	ID        json.Number `json:"id"`
	Message   string      `json:"message"`
	SenderID  json.Number `json:"sender_id"`
	CreatedAt string      `json:"created_at"`
	IsRead    bool        `json:"is_read"`
}

type sendEnvelope struct {
	Status bool `json:"status"`
	Data   *struct {
		ID        json.Number `json:"id"`
		CreatedAt string      `json:"created_at"`
		IsRead    bool        `json:"is_read"`
	} `json:"data"`
}

type conversationsEnvelope struct {
	Status bool `json:"status"`
	Data   *[]struct {
		UserID        json.Number `json:"user_id"`
		Name          string      `json:"name"`
		LastMessage   string      `json:"last_message"`
		LastMessageAt string      `json:"last_message_at"`
		UnreadCount   int         `json:"unread_count"`
	} `json:"data"`
}

// FetchThread reads the full thread with one counterparty. The result is
// sorted ascending by server timestamp regardless of the order the backend
// returned it in.
func (c *Client) FetchThread(ctx context.Context, counterpartyID string) ([]domain.Message, error) {
	counterpartyID = validator.NormalizeRecipientID(counterpartyID)
	if counterpartyID == "" {
		return nil, &ValidationError{Field: "recipient_id", Reason: "a valid recipient is required"}
	}

	var envelope threadEnvelope
	if err := c.do(ctx, http.MethodGet, "/conversation/"+url.PathEscape(counterpartyID), nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, &ProtocolError{Reason: "conversation response has no data array"}
	}

	messages := make([]domain.Message, 0, len(*envelope.Data))
	for _, wm := range *envelope.Data {
		sentAt, err := parseServerTime(wm.CreatedAt)
		if err != nil {
			return nil, &ProtocolError{Reason: "bad created_at in message " + wm.ID.String()}
		}

		role := domain.SenderCounterparty
		if wm.SenderID.String() == c.userID {
			role = domain.SenderSelf
		}

		messages = append(messages, domain.Message{
			ID:            wm.ID.String(),
			Text:          wm.Message,
			SenderRole:    role,
			SentAt:        sentAt,
			DeliveryState: domain.DeliveryConfirmed,
			Read:          wm.IsRead,
		})
	}

	domain.SortBySentAt(messages)
	return messages, nil
}

// SendMessage appends one message to the thread and returns the confirmed
// record. Empty text and invalid recipients fail locally without touching
// the network.
func (c *Client) SendMessage(ctx context.Context, counterpartyID, text string) (domain.Message, error) {
	counterpartyID = validator.NormalizeRecipientID(counterpartyID)
	if counterpartyID == "" {
		return domain.Message{}, &ValidationError{Field: "recipient_id", Reason: "a valid recipient is required"}
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Message{}, &ValidationError{Field: "message", Reason: "message text is required"}
	}

	body := map[string]string{
		"receiver_id": counterpartyID,
		"message":     text,
	}

	var envelope sendEnvelope
	if err := c.do(ctx, http.MethodPost, "/send", body, &envelope); err != nil {
		return domain.Message{}, err
	}
	if envelope.Data == nil {
		return domain.Message{}, &ProtocolError{Reason: "send response has no data object"}
	}

	sentAt, err := parseServerTime(envelope.Data.CreatedAt)
	if err != nil {
		return domain.Message{}, &ProtocolError{Reason: "bad created_at in send response"}
	}

	return domain.Message{
		ID:            envelope.Data.ID.String(),
		Text:          text,
		SenderRole:    domain.SenderSelf,
		SentAt:        sentAt,
		DeliveryState: domain.DeliveryConfirmed,
		Read:          envelope.Data.IsRead,
	}, nil
}

// ListConversations reads the user's inbox so a counterparty can be picked.
func (c *Client) ListConversations(ctx context.Context) ([]domain.ConversationSummary, error) {
	var envelope conversationsEnvelope
	if err := c.do(ctx, http.MethodGet, "/conversations", nil, &envelope); err != nil {
		return nil, err
	}
	if envelope.Data == nil {
		return nil, &ProtocolError{Reason: "conversations response has no data array"}
	}

	summaries := make([]domain.ConversationSummary, 0, len(*envelope.Data))
	for _, row := range *envelope.Data {
		summary := domain.ConversationSummary{
			CounterpartyID:   row.UserID.String(),
			CounterpartyName: row.Name,
			LastMessage:      row.LastMessage,
			UnreadCount:      row.UnreadCount,
		}
		if row.LastMessageAt != "" {
			if at, err := parseServerTime(row.LastMessageAt); err == nil {
				summary.LastMessageAt = at
			}
		}
		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// MarkThreadRead tells the backend the thread with this counterparty has
// been opened. The action endpoints take base64-encoded ids in the path.
func (c *Client) MarkThreadRead(ctx context.Context, counterpartyID string) error {
	counterpartyID = validator.NormalizeRecipientID(counterpartyID)
	if counterpartyID == "" {
		return &ValidationError{Field: "recipient_id", Reason: "a valid recipient is required"}
	}

	return c.do(ctx, http.MethodPost, "/conversation/"+url.PathEscape(ObfuscateID(counterpartyID))+"/read", nil, nil)
}

// parseServerTime accepts the two timestamp layouts the backend emits.
func parseServerTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}
