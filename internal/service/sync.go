package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gigline/gigchat/internal/auth"
	"github.com/gigline/gigchat/internal/domain"
	"github.com/gigline/gigchat/pkg/validator"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrInvalidRecipient = errors.New("no valid recipient")
	ErrEmptyMessage     = errors.New("message text is empty")
	ErrMessageTooLong   = errors.New("message text is too long")
	ErrNotStarted       = errors.New("conversation is not open")
)

// DefaultPollInterval matches the cadence the web client polls at.
const DefaultPollInterval = 5 * time.Second

// ConversationSync keeps one two-party thread eventually consistent with
// the server's message log by polling, and gives sends immediate optimistic
// feedback. The server is the source of truth; the local thread is rebuilt
// from every successful fetch and is always disposable.
type ConversationSync struct {
	client   ThreadClient
	sched    Scheduler
	clock    Clock
	log      *zap.SugaredLogger
	authCtx  auth.Context
	interval time.Duration

	mu        sync.Mutex
	started   bool
	recipient string
	messages  []domain.Message
	// issued/applied order fetch results by issuance: a result tagged with
	// a sequence number at or below applied lost the race and is dropped.
	issued  uint64
	applied uint64
	// epoch bumps on every Start/Stop so in-flight work from a previous
	// conversation can never leak into the current one.
	epoch    uint64
	cancel   func()
	notifier Notifier
}

type Options struct {
	PollInterval time.Duration
	Clock        Clock
	Logger       *zap.SugaredLogger
}

func NewConversationSync(client ThreadClient, sched Scheduler, authCtx auth.Context, opts Options) *ConversationSync {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	return &ConversationSync{
		client:   client,
		sched:    sched,
		clock:    opts.Clock,
		log:      opts.Logger,
		authCtx:  authCtx,
		interval: opts.PollInterval,
	}
}

func (s *ConversationSync) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

// Start opens the conversation with the given counterparty: one eager fetch
// right away, then a fetch every poll interval until Stop. Calling Start
// while a conversation is open switches to the new counterparty and discards
// everything in flight for the old one.
func (s *ConversationSync) Start(counterpartyID string) error {
	recipient := validator.NormalizeRecipientID(counterpartyID)
	if recipient == "" {
		return ErrInvalidRecipient
	}
	if !s.authCtx.Valid() {
		return ErrNotAuthenticated
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.epoch++
	epoch := s.epoch
	s.started = true
	s.recipient = recipient
	s.messages = nil
	s.issued = 0
	s.applied = 0
	s.mu.Unlock()

	s.pollTick()

	cancel := s.sched.Schedule(s.interval, s.pollTick)

	s.mu.Lock()
	if !s.started || s.epoch != epoch {
		// Stopped (or restarted) while the schedule was being set up.
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.cancel = cancel
	s.mu.Unlock()

	return nil
}

// Stop tears the conversation down: the timer is cancelled and results from
// any still-running fetch or send are discarded when they land.
func (s *ConversationSync) Stop() {
	s.mu.Lock()
	s.started = false
	s.epoch++
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Snapshot returns a copy of the current thread, ascending by timestamp.
func (s *ConversationSync) Snapshot() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Send runs the optimistic pipeline for one outgoing message: a pending
// record is appended to the thread immediately and the returned id names it;
// confirmation or rollback follows when the server call settles. The guards
// run before any state change, so a rejected send leaves no trace.
func (s *ConversationSync) Send(text string) (string, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return "", ErrEmptyMessage
	}
	if len(trimmed) > validator.MaxMessageLength {
		return "", ErrMessageTooLong
	}
	if !s.authCtx.Valid() {
		return "", ErrNotAuthenticated
	}

	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return "", ErrNotStarted
	}

	pending := domain.Message{
		ID:            "pending-" + uuid.NewString(),
		Text:          trimmed,
		SenderRole:    domain.SenderSelf,
		SentAt:        s.clock.Now(),
		DeliveryState: domain.DeliveryPending,
	}
	s.messages = appendMessage(s.messages, pending)

	epoch := s.epoch
	recipient := s.recipient
	notifier := s.notifier
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if notifier != nil {
		notifier.ThreadUpdated(snapshot)
	}

	go s.resolveSend(epoch, pending.ID, recipient, trimmed)

	return pending.ID, nil
}

func (s *ConversationSync) resolveSend(epoch uint64, pendingID, recipient, text string) {
	confirmed, err := s.client.SendMessage(context.Background(), recipient, text)

	s.mu.Lock()
	if epoch != s.epoch {
		// Conversation was closed or switched mid-send. The pending
		// record went with it; nothing left to reconcile.
		s.mu.Unlock()
		return
	}

	if err != nil {
		s.messages = removeByID(s.messages, pendingID)
		notifier := s.notifier
		snapshot := s.snapshotLocked()
		s.mu.Unlock()

		s.log.Warnw("send failed, rolled back", "recipient", recipient, "error", err)
		if notifier != nil {
			notifier.ThreadUpdated(snapshot)
			notifier.SendFailed(text, err)
		}
		return
	}

	s.messages = confirmPending(s.messages, pendingID, confirmed)
	notifier := s.notifier
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if notifier != nil {
		notifier.ThreadUpdated(snapshot)
	}
}

// pollTick issues one fetch. Ticks never wait for earlier fetches; the
// sequence numbers sort out whichever order the responses land in.
func (s *ConversationSync) pollTick() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.issued++
	seq := s.issued
	epoch := s.epoch
	recipient := s.recipient
	s.mu.Unlock()

	go s.fetch(epoch, seq, recipient)
}

func (s *ConversationSync) fetch(epoch, seq uint64, recipient string) {
	messages, err := s.client.FetchThread(context.Background(), recipient)
	if err != nil {
		// A missed poll is invisible to the user; the next tick retries.
		s.log.Debugw("poll fetch failed, skipping tick", "recipient", recipient, "error", err)
		return
	}

	s.applyThread(epoch, seq, messages)
}

func (s *ConversationSync) applyThread(epoch, seq uint64, fetched []domain.Message) {
	s.mu.Lock()
	if epoch != s.epoch {
		s.mu.Unlock()
		s.log.Debugw("dropping fetch result from a closed conversation")
		return
	}
	if seq <= s.applied {
		s.mu.Unlock()
		s.log.Debugw("dropping superseded fetch result", "seq", seq)
		return
	}
	s.applied = seq
	s.messages = replaceThread(s.messages, fetched)
	notifier := s.notifier
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	if notifier != nil {
		notifier.ThreadUpdated(snapshot)
	}
}

func (s *ConversationSync) snapshotLocked() []domain.Message {
	snapshot := make([]domain.Message, len(s.messages))
	copy(snapshot, s.messages)
	return snapshot
}
