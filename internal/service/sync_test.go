package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gigline/gigchat/internal/auth"
	"github.com/gigline/gigchat/internal/domain"
	"github.com/gigline/gigchat/internal/transport/rest"
	"github.com/gigline/gigchat/pkg/validator"
)

// fakeClient hands every call to the test as a message on a channel so the
// test controls exactly when, and in what order, network calls resolve.

type fetchResult struct {
	messages []domain.Message
	err      error
}

type fetchCall struct {
	recipient string
	reply     chan fetchResult
}

type sendResult struct {
	message domain.Message
	err     error
}

type sendCall struct {
	recipient string
	text      string
	reply     chan sendResult
}

type fakeClient struct {
	fetches    chan fetchCall
	sends      chan sendCall
	fetchCount atomic.Int64
	sendCount  atomic.Int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		fetches: make(chan fetchCall, 16),
		sends:   make(chan sendCall, 16),
	}
}

func (f *fakeClient) FetchThread(_ context.Context, counterpartyID string) ([]domain.Message, error) {
	f.fetchCount.Add(1)
	call := fetchCall{recipient: counterpartyID, reply: make(chan fetchResult)}
	f.fetches <- call
	result := <-call.reply
	return result.messages, result.err
}

func (f *fakeClient) SendMessage(_ context.Context, counterpartyID, text string) (domain.Message, error) {
	f.sendCount.Add(1)
	call := sendCall{recipient: counterpartyID, text: text, reply: make(chan sendResult)}
	f.sends <- call
	result := <-call.reply
	return result.message, result.err
}

// fakeScheduler fires only when the test says so.
type fakeScheduler struct {
	mu        sync.Mutex
	fn        func()
	interval  time.Duration
	cancelled bool
}

func (s *fakeScheduler) Schedule(interval time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fn = fn
	s.interval = interval
	s.cancelled = false
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cancelled = true
	}
}

// tick behaves like a well-behaved timer: no callback after cancel.
func (s *fakeScheduler) tick() {
	s.mu.Lock()
	fn, cancelled := s.fn, s.cancelled
	s.mu.Unlock()
	if fn != nil && !cancelled {
		fn()
	}
}

// fire ignores cancellation, standing in for a timer callback that was
// already in flight when the conversation closed.
func (s *fakeScheduler) fire() {
	s.mu.Lock()
	fn := s.fn
	s.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (s *fakeScheduler) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

type sendFailure struct {
	text string
	err  error
}

type recordingNotifier struct {
	updates  chan []domain.Message
	failures chan sendFailure
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{
		updates:  make(chan []domain.Message, 64),
		failures: make(chan sendFailure, 16),
	}
}

func (n *recordingNotifier) ThreadUpdated(messages []domain.Message) {
	n.updates <- messages
}

func (n *recordingNotifier) SendFailed(text string, err error) {
	n.failures <- sendFailure{text: text, err: err}
}

type engineFixture struct {
	engine   *ConversationSync
	client   *fakeClient
	sched    *fakeScheduler
	clock    *fakeClock
	notifier *recordingNotifier
}

func newFixture(t *testing.T) *engineFixture {
	t.Helper()

	f := &engineFixture{
		client:   newFakeClient(),
		sched:    &fakeScheduler{},
		clock:    &fakeClock{now: time.Date(2024, 1, 1, 10, 10, 0, 0, time.UTC)},
		notifier: newRecordingNotifier(),
	}

	authCtx := auth.Context{UserID: "1", Token: "test-token", Authenticated: true}
	f.engine = NewConversationSync(f.client, f.sched, authCtx, Options{
		PollInterval: 5 * time.Second,
		Clock:        f.clock,
	})
	f.engine.SetNotifier(f.notifier)
	t.Cleanup(f.engine.Stop)

	return f
}

func (f *engineFixture) awaitFetch(t *testing.T) fetchCall {
	t.Helper()
	select {
	case call := <-f.client.fetches:
		return call
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a fetch")
		return fetchCall{}
	}
}

func (f *engineFixture) awaitSend(t *testing.T) sendCall {
	t.Helper()
	select {
	case call := <-f.client.sends:
		return call
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a send")
		return sendCall{}
	}
}

func (f *engineFixture) awaitUpdate(t *testing.T) []domain.Message {
	t.Helper()
	select {
	case messages := <-f.notifier.updates:
		return messages
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a thread update")
		return nil
	}
}

func (f *engineFixture) awaitFailure(t *testing.T) sendFailure {
	t.Helper()
	select {
	case failure := <-f.notifier.failures:
		return failure
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a send failure")
		return sendFailure{}
	}
}

// open starts the conversation and settles the eager first fetch.
func (f *engineFixture) open(t *testing.T, recipient string, thread []domain.Message) {
	t.Helper()
	require.NoError(t, f.engine.Start(recipient))
	call := f.awaitFetch(t)
	require.Equal(t, recipient, call.recipient)
	call.reply <- fetchResult{messages: thread}
	f.awaitUpdate(t)
}

func textsOf(messages []domain.Message) []string {
	texts := make([]string, len(messages))
	for i, m := range messages {
		texts[i] = m.Text
	}
	return texts
}

func TestStartFetchesEagerly(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Start("77"))

	// The first fetch fires on Start itself, not on the first tick.
	call := f.awaitFetch(t)
	assert.Equal(t, "77", call.recipient)
	call.reply <- fetchResult{messages: []domain.Message{
		confirmed("1", "hi", at(t, "2024-01-01T10:00:00Z")),
	}}

	messages := f.awaitUpdate(t)
	require.Len(t, messages, 1)
	assert.Equal(t, "hi", messages[0].Text)
	assert.Equal(t, int64(1), f.client.fetchCount.Load())
}

func TestStartGuards(t *testing.T) {
	f := newFixture(t)

	assert.ErrorIs(t, f.engine.Start(""), ErrInvalidRecipient)
	assert.ErrorIs(t, f.engine.Start("null"), ErrInvalidRecipient)
	assert.ErrorIs(t, f.engine.Start("undefined"), ErrInvalidRecipient)
	assert.Zero(t, f.client.fetchCount.Load())

	unauthenticated := NewConversationSync(f.client, f.sched, auth.Context{}, Options{Clock: f.clock})
	assert.ErrorIs(t, unauthenticated.Start("77"), ErrNotAuthenticated)
	assert.Zero(t, f.client.fetchCount.Load())
}

func TestPollTickFetches(t *testing.T) {
	f := newFixture(t)
	f.open(t, "77", nil)

	f.sched.tick()
	call := f.awaitFetch(t)
	call.reply <- fetchResult{messages: []domain.Message{
		confirmed("1", "new message", at(t, "2024-01-01T10:00:00Z")),
	}}

	messages := f.awaitUpdate(t)
	assert.Equal(t, []string{"new message"}, textsOf(messages))
	assert.Equal(t, 5*time.Second, f.sched.interval)
}

func TestPollErrorSkipsTick(t *testing.T) {
	f := newFixture(t)
	f.open(t, "77", []domain.Message{confirmed("1", "hi", at(t, "2024-01-01T10:00:00Z"))})

	f.sched.tick()
	call := f.awaitFetch(t)
	call.reply <- fetchResult{err: &rest.TransportError{Status: 502}}

	// No update, no user-visible damage; the thread stays as it was.
	assert.Never(t, func() bool { return len(f.notifier.updates) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"hi"}, textsOf(f.engine.Snapshot()))
}

func TestOptimisticSendThenConfirm(t *testing.T) {
	f := newFixture(t)
	f.open(t, "77", nil)

	pendingID, err := f.engine.Send("hello")
	require.NoError(t, err)
	require.NotEmpty(t, pendingID)

	// The pending record is visible before the network call resolves.
	inserted := f.awaitUpdate(t)
	require.Len(t, inserted, 1)
	assert.Equal(t, "hello", inserted[0].Text)
	assert.Equal(t, domain.DeliveryPending, inserted[0].DeliveryState)
	assert.Equal(t, pendingID, inserted[0].ID)
	assert.Equal(t, f.clock.Now(), inserted[0].SentAt)

	call := f.awaitSend(t)
	assert.Equal(t, "77", call.recipient)
	assert.Equal(t, "hello", call.text)
	call.reply <- sendResult{message: confirmed("42", "hello", at(t, "2024-01-01T10:10:02Z"))}

	reconciled := f.awaitUpdate(t)
	require.Len(t, reconciled, 1, "confirmation must replace the pending record, not append")
	assert.Equal(t, "42", reconciled[0].ID)
	assert.Equal(t, domain.DeliveryConfirmed, reconciled[0].DeliveryState)
}

func TestSendRollbackOnFailure(t *testing.T) {
	f := newFixture(t)
	f.open(t, "77", nil)

	_, err := f.engine.Send("fail me")
	require.NoError(t, err)
	f.awaitUpdate(t) // pending insert

	call := f.awaitSend(t)
	call.reply <- sendResult{err: &rest.TransportError{Status: 500}}

	rolledBack := f.awaitUpdate(t)
	assert.Empty(t, rolledBack, "the pending record is removed, not left behind")
	assert.NotContains(t, textsOf(f.engine.Snapshot()), "fail me")

	// The text comes back so the caller can offer a one-click resend.
	failure := f.awaitFailure(t)
	assert.Equal(t, "fail me", failure.text)
	var terr *rest.TransportError
	assert.ErrorAs(t, failure.err, &terr)
}

func TestSendGuards(t *testing.T) {
	f := newFixture(t)

	// Before the conversation is open.
	_, err := f.engine.Send("hello")
	assert.ErrorIs(t, err, ErrNotStarted)

	f.open(t, "77", nil)

	_, err = f.engine.Send("")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = f.engine.Send("   \n\t ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	_, err = f.engine.Send(strings.Repeat("x", validator.MaxMessageLength+1))
	assert.ErrorIs(t, err, ErrMessageTooLong)

	unauthenticated := NewConversationSync(f.client, f.sched, auth.Context{}, Options{Clock: f.clock})
	_, err = unauthenticated.Send("hello")
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	assert.Zero(t, f.client.sendCount.Load(), "guards must run before any network call")
}

func TestStaleFetchDiscarded(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Start("77"))
	slow := f.awaitFetch(t) // eager fetch, held open

	f.sched.tick()
	fast := f.awaitFetch(t)

	// The later fetch resolves first and wins.
	fast.reply <- fetchResult{messages: []domain.Message{
		confirmed("2", "fresh", at(t, "2024-01-01T10:05:00Z")),
	}}
	assert.Equal(t, []string{"fresh"}, textsOf(f.awaitUpdate(t)))

	// The earlier fetch resolves late; its result must never be applied.
	slow.reply <- fetchResult{messages: []domain.Message{
		confirmed("1", "stale", at(t, "2024-01-01T10:00:00Z")),
	}}

	assert.Never(t, func() bool {
		for _, text := range textsOf(f.engine.Snapshot()) {
			if text == "stale" {
				return true
			}
		}
		return false
	}, 200*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, []string{"fresh"}, textsOf(f.engine.Snapshot()))
}

func TestStopHaltsPolling(t *testing.T) {
	f := newFixture(t)
	f.open(t, "77", nil)
	before := f.client.fetchCount.Load()

	f.engine.Stop()
	assert.True(t, f.sched.isCancelled())

	// Even a timer callback already in flight when Stop ran must not reach
	// the network.
	f.sched.fire()
	f.sched.fire()
	f.sched.fire()

	assert.Equal(t, before, f.client.fetchCount.Load())
}

func TestSwitchingConversationDiscardsOldFetch(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.engine.Start("77"))
	old := f.awaitFetch(t)

	require.NoError(t, f.engine.Start("88"))
	current := f.awaitFetch(t)
	require.Equal(t, "88", current.recipient)
	current.reply <- fetchResult{messages: []domain.Message{
		confirmed("5", "from 88", at(t, "2024-01-01T10:00:00Z")),
	}}
	f.awaitUpdate(t)

	// The old conversation's fetch lands after the switch; it must not
	// leak into the new thread.
	old.reply <- fetchResult{messages: []domain.Message{
		confirmed("9", "from 77", at(t, "2024-01-01T09:00:00Z")),
	}}

	assert.Never(t, func() bool {
		for _, text := range textsOf(f.engine.Snapshot()) {
			if text == "from 77" {
				return true
			}
		}
		return false
	}, 200*time.Millisecond, 10*time.Millisecond)
}

func TestSendDuringPollKeepsPendingVisible(t *testing.T) {
	f := newFixture(t)
	f.open(t, "77", nil)

	_, err := f.engine.Send("on its way")
	require.NoError(t, err)
	f.awaitUpdate(t) // pending insert
	pendingSend := f.awaitSend(t)

	// A poll lands while the send is still in flight.
	f.sched.tick()
	poll := f.awaitFetch(t)
	poll.reply <- fetchResult{messages: []domain.Message{
		confirmed("1", "earlier", at(t, "2024-01-01T10:00:00Z")),
	}}

	messages := f.awaitUpdate(t)
	assert.Equal(t, []string{"earlier", "on its way"}, textsOf(messages))

	pendingSend.reply <- sendResult{message: confirmed("2", "on its way", at(t, "2024-01-01T10:10:02Z"))}
	reconciled := f.awaitUpdate(t)
	require.Len(t, reconciled, 2)
	assert.Equal(t, domain.DeliveryConfirmed, reconciled[1].DeliveryState)
}

// The end-to-end walkthrough: open a thread with history, send a reply,
// confirm it, and check the final shape of the store and its day grouping.
func TestConversationScenario(t *testing.T) {
	f := newFixture(t)

	f.open(t, "77", []domain.Message{
		{ID: "9", Text: "how did the job go?", SenderRole: domain.SenderCounterparty,
			SentAt: at(t, "2024-01-01T10:00:00Z"), DeliveryState: domain.DeliveryConfirmed},
		{ID: "1", Text: "all done, invoice sent", SenderRole: domain.SenderSelf,
			SentAt: at(t, "2024-01-01T10:05:00Z"), DeliveryState: domain.DeliveryConfirmed},
	})

	_, err := f.engine.Send("thanks")
	require.NoError(t, err)
	f.awaitUpdate(t)

	call := f.awaitSend(t)
	call.reply <- sendResult{message: domain.Message{
		ID: "2", Text: "thanks", SenderRole: domain.SenderSelf,
		SentAt: at(t, "2024-01-01T10:10:02Z"), DeliveryState: domain.DeliveryConfirmed,
	}}
	final := f.awaitUpdate(t)

	require.Len(t, final, 3)
	assert.Equal(t, []string{"9", "1", "2"}, []string{final[0].ID, final[1].ID, final[2].ID})
	for _, m := range final {
		assert.Equal(t, domain.DeliveryConfirmed, m.DeliveryState)
	}
	assert.True(t, final[0].SentAt.Before(final[1].SentAt))
	assert.True(t, final[1].SentAt.Before(final[2].SentAt))

	groups := domain.GroupByDay(final)
	require.Len(t, groups, 1)
	assert.Equal(t, "2024-01-01", groups[0].Key)
}
