package service

import "github.com/gigline/gigchat/internal/domain"

// Pure transitions over the thread slice. Each returns a new slice and
// leaves its input alone, so every pipeline step is unit-testable on its
// own and snapshots handed to notifiers are never mutated underneath them.

// replaceThread swaps in a freshly fetched thread. Local sends still waiting
// on the server are carried over so a poll landing mid-send cannot make the
// user's message flicker out of the view.
func replaceThread(current, fetched []domain.Message) []domain.Message {
	next := make([]domain.Message, 0, len(fetched)+1)
	next = append(next, fetched...)

	for _, m := range current {
		if m.Pending() {
			next = append(next, m)
		}
	}

	domain.SortBySentAt(next)
	return next
}

func appendMessage(current []domain.Message, msg domain.Message) []domain.Message {
	next := make([]domain.Message, 0, len(current)+1)
	next = append(next, current...)
	return append(next, msg)
}

// confirmPending replaces the pending record in place with the confirmed
// one. If a poll already delivered the server copy, the pending record is
// simply dropped so the message never appears twice.
func confirmPending(current []domain.Message, pendingID string, confirmed domain.Message) []domain.Message {
	for _, m := range current {
		if m.ID == confirmed.ID {
			return removeByID(current, pendingID)
		}
	}

	next := make([]domain.Message, 0, len(current))
	for _, m := range current {
		if m.ID == pendingID {
			next = append(next, confirmed)
			continue
		}
		next = append(next, m)
	}

	domain.SortBySentAt(next)
	return next
}

func removeByID(current []domain.Message, id string) []domain.Message {
	next := make([]domain.Message, 0, len(current))
	for _, m := range current {
		if m.ID == id {
			continue
		}
		next = append(next, m)
	}
	return next
}
