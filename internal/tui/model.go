package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/gigline/gigchat/internal/domain"
	"github.com/gigline/gigchat/internal/service"
	"github.com/gigline/gigchat/internal/transport/rest"
	"github.com/gigline/gigchat/pkg/validator"
)

// Options configure the chat UI.
type Options struct {
	Client       *rest.Client
	Sync         *service.ConversationSync
	Counterparty string // empty: show the conversation picker first
	Clock        service.Clock
	Logger       *zap.SugaredLogger
}

// Run starts the chat UI and blocks until it exits. The sync engine is
// always stopped on the way out so no poll outlives the view.
func Run(opts Options) error {
	if opts.Clock == nil {
		opts.Clock = service.SystemClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}

	model := newModel(opts)
	program := tea.NewProgram(model, tea.WithAltScreen())
	opts.Sync.SetNotifier(&programNotifier{program: program})
	defer opts.Sync.Stop()

	_, err := program.Run()
	return err
}

// programNotifier forwards engine events into the bubbletea event loop.
type programNotifier struct {
	program *tea.Program
}

func (n *programNotifier) ThreadUpdated(messages []domain.Message) {
	n.program.Send(threadMsg{messages: messages})
}

func (n *programNotifier) SendFailed(text string, err error) {
	n.program.Send(sendFailedMsg{text: text, err: err})
}

type threadMsg struct{ messages []domain.Message }

type sendFailedMsg struct {
	text string
	err  error
}

type conversationsMsg struct{ items []domain.ConversationSummary }

type openedMsg struct{ recipient string }

type errMsg struct{ err error }

type mode int

const (
	modePick mode = iota
	modeChat
)

type Model struct {
	opts Options

	mode   mode
	width  int
	height int

	// picker state
	items  []domain.ConversationSummary
	cursor int

	// chat state
	vp        viewport.Model
	input     textarea.Model
	messages  []domain.Message
	recipient string
	status    string
	loading   bool
}

func newModel(opts Options) *Model {
	input := textarea.New()
	input.Placeholder = "Write a message..."
	input.CharLimit = 0
	input.ShowLineNumbers = false
	input.SetHeight(inputHeight)
	input.Prompt = "› "
	input.Focus()

	m := &Model{
		opts:      opts,
		mode:      modePick,
		vp:        viewport.New(0, 0),
		input:     input,
		recipient: opts.Counterparty,
		loading:   true,
	}
	if opts.Counterparty != "" {
		m.mode = modeChat
	}
	return m
}

func (m *Model) Init() tea.Cmd {
	if m.mode == modeChat {
		return m.openConversation(m.recipient)
	}
	return m.loadConversations()
}

func (m *Model) loadConversations() tea.Cmd {
	return func() tea.Msg {
		items, err := m.opts.Client.ListConversations(context.Background())
		if err != nil {
			return errMsg{err: err}
		}
		return conversationsMsg{items: items}
	}
}

// openConversation starts polling the thread and tells the backend it has
// been opened. A failed mark-read is not worth interrupting the view for.
func (m *Model) openConversation(recipient string) tea.Cmd {
	return func() tea.Msg {
		if err := m.opts.Sync.Start(recipient); err != nil {
			return errMsg{err: err}
		}
		if err := m.opts.Client.MarkThreadRead(context.Background(), recipient); err != nil {
			m.opts.Logger.Debugw("mark read failed", "recipient", recipient, "error", err)
		}
		return openedMsg{recipient: recipient}
	}
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.vp.Width = msg.Width
		m.vp.Height = msg.Height - inputHeight - chromeHeight
		m.input.SetWidth(msg.Width - 2)
		m.refreshTimeline()
		return m, nil

	case conversationsMsg:
		m.items = msg.items
		m.loading = false
		return m, nil

	case openedMsg:
		m.mode = modeChat
		m.recipient = msg.recipient
		m.loading = true
		return m, nil

	case threadMsg:
		m.messages = msg.messages
		m.loading = false
		m.refreshTimeline()
		m.vp.GotoBottom()
		return m, nil

	case sendFailedMsg:
		// The rolled-back text comes home so one keypress resends it.
		m.input.SetValue(msg.text)
		m.status = fmt.Sprintf("Send failed (%v) — press enter to retry", msg.err)
		return m, nil

	case errMsg:
		m.status = msg.err.Error()
		m.loading = false
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	}

	if m.mode == modePick {
		return m.handlePickerKey(msg)
	}
	return m.handleChatKey(msg)
}

func (m *Model) handlePickerKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyUp:
		if m.cursor > 0 {
			m.cursor--
		}
	case tea.KeyDown:
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case tea.KeyEnter:
		if m.cursor < len(m.items) {
			return m, m.openConversation(m.items[m.cursor].CounterpartyID)
		}
	case tea.KeyRunes:
		if string(msg.Runes) == "q" {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *Model) handleChatKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.submit()
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.vp, cmd = m.vp.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit() {
	text := m.input.Value()
	if strings.TrimSpace(text) == "" {
		return
	}

	if errs := validator.ValidateOutgoingMessage(m.recipient, text); errs.HasErrors() {
		m.status = validationHint(errs)
		return
	}

	if _, err := m.opts.Sync.Send(text); err != nil {
		switch {
		case errors.Is(err, service.ErrNotAuthenticated):
			m.status = "Authentication required"
		case errors.Is(err, service.ErrNotStarted), errors.Is(err, service.ErrInvalidRecipient):
			m.status = "No valid recipient"
		case errors.Is(err, service.ErrMessageTooLong):
			m.status = "Message is too long"
		default:
			m.status = err.Error()
		}
		return
	}

	// The engine owns the pending record now; clear the composer.
	m.input.Reset()
	m.status = ""
	m.messages = m.opts.Sync.Snapshot()
	m.refreshTimeline()
	m.vp.GotoBottom()
}

// validationHint flattens field errors into the single status line, worst
// problem first.
func validationHint(errs validator.ValidationErrors) string {
	for _, field := range []string{"recipient_id", "message"} {
		if hint, ok := errs[field]; ok {
			return hint
		}
	}
	for _, hint := range errs {
		return hint
	}
	return ""
}
