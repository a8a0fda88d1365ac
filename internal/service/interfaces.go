package service

import (
	"context"
	"time"

	"github.com/gigline/gigchat/internal/domain"
)

// ThreadClient is the remote side of a conversation: one read, one write.
// Both are single-attempt; the sync engine owns all recovery decisions.
type ThreadClient interface {
	FetchThread(ctx context.Context, counterpartyID string) ([]domain.Message, error)
	SendMessage(ctx context.Context, counterpartyID, text string) (domain.Message, error)
}

// Scheduler abstracts the repeating timer so tests can drive ticks manually.
type Scheduler interface {
	Schedule(interval time.Duration, fn func()) (cancel func())
}

// Clock supplies the timestamps stamped onto pending messages.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
func SystemClock() Clock { return systemClock{} }

// Notifier receives engine events. Calls arrive from engine goroutines;
// implementations must be safe for that.
type Notifier interface {
	// ThreadUpdated delivers a fresh snapshot of the thread after any
	// store change: a poll result, an optimistic insert, a confirmation,
	// or a rollback.
	ThreadUpdated(messages []domain.Message)
	// SendFailed reports a rolled-back send. The original text is handed
	// back so the caller can offer a one-click resend.
	SendFailed(text string, err error)
}
