package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/gigline/gigchat/internal/domain"
)

const (
	inputHeight  = 3
	chromeHeight = 2 // title bar + status line
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("255"))
	dayStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Bold(true)
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
	otherStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("249"))
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	pendingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Italic(true)
	statusStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	cursorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	unreadStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
)

func (m *Model) View() string {
	if m.mode == modePick {
		return m.pickerView()
	}
	return m.chatView()
}

func (m *Model) pickerView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Conversations"))
	b.WriteString("\n\n")

	switch {
	case m.loading:
		b.WriteString("Loading...\n")
	case len(m.items) == 0:
		b.WriteString("No conversations yet.\n")
	}

	for i, item := range m.items {
		marker := "  "
		if i == m.cursor {
			marker = cursorStyle.Render("> ")
		}

		line := item.CounterpartyName
		if item.UnreadCount > 0 {
			line += unreadStyle.Render(fmt.Sprintf(" (%d unread)", item.UnreadCount))
		}
		if item.LastMessage != "" {
			line += timeStyle.Render("  " + truncate(item.LastMessage, 40))
		}

		b.WriteString(marker + line + "\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(timeStyle.Render("↑/↓ select · enter open · q quit"))
	return b.String()
}

func (m *Model) chatView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Chat with " + m.recipient))
	b.WriteString("\n")
	b.WriteString(m.vp.View())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(statusStyle.Render(m.status))
	}
	return b.String()
}

func (m *Model) refreshTimeline() {
	m.vp.SetContent(renderThread(m.messages, m.opts.Clock.Now(), m.vp.Width))
}

// renderThread lays the thread out grouped by calendar day with a label
// header per group. Grouping happens here at render time only; the engine's
// flat sorted thread stays canonical.
func renderThread(messages []domain.Message, now time.Time, width int) string {
	if len(messages) == 0 {
		return timeStyle.Render("No messages yet. Say hello!")
	}

	var b strings.Builder
	for _, group := range domain.GroupByDay(messages) {
		b.WriteString(dayStyle.Render("── " + domain.DayLabel(group.Day, now) + " ──"))
		b.WriteString("\n")

		for _, msg := range group.Messages {
			b.WriteString(renderMessage(msg, width))
			b.WriteString("\n")
		}
	}

	return b.String()
}

func renderMessage(msg domain.Message, width int) string {
	stamp := timeStyle.Render(msg.SentAt.Format("15:04"))

	who := otherStyle.Render("them")
	if msg.SenderRole == domain.SenderSelf {
		who = selfStyle.Render("you")
	}

	line := fmt.Sprintf("%s %s  %s", stamp, who, msg.Text)
	if msg.Pending() {
		line += pendingStyle.Render("  (sending…)")
	}

	if width > 0 {
		return lipgloss.NewStyle().Width(width).Render(line)
	}
	return line
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
