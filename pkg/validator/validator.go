package validator

import "strings"

// MaxMessageLength is the longest message body the backend accepts.
const MaxMessageLength = 5000

type ValidationErrors map[string]string

func (v ValidationErrors) HasErrors() bool {
	return len(v) > 0
}

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

// NormalizeRecipientID trims an externally supplied counterparty id.
// Upstream callers sometimes stringify absent values, so the literal
// "null"/"undefined" are treated as empty.
func NormalizeRecipientID(raw string) string {
	id := strings.TrimSpace(raw)
	switch strings.ToLower(id) {
	case "null", "undefined":
		return ""
	}
	return id
}

func ValidateRecipient(recipientID string) ValidationErrors {
	errs := make(ValidationErrors)

	if NormalizeRecipientID(recipientID) == "" {
		errs.Add("recipient_id", "A valid recipient is required")
	}

	return errs
}

func ValidateOutgoingMessage(recipientID, text string) ValidationErrors {
	errs := ValidateRecipient(recipientID)

	if strings.TrimSpace(text) == "" {
		errs.Add("message", "Message text is required")
	} else if len(text) > MaxMessageLength {
		errs.Add("message", "Message is too long")
	}

	return errs
}
