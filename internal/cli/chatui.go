package cli

import (
	"context"
	"fmt"
	"strings"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/phuchau23/fibochat-go/internal/chat"
	"github.com/phuchau23/fibochat-go/internal/models"
)

// Theme holds the color scheme for the chat display.
type Theme struct {
	User      lipgloss.Color
	Assistant lipgloss.Color
	Success   lipgloss.Color
	Warn      lipgloss.Color
	Error     lipgloss.Color
	Hint      lipgloss.Color
}

// defaultTheme provides default colors.
var defaultTheme = Theme{
	User:      lipgloss.Color("#5FAFD7"), // light blue
	Assistant: lipgloss.Color("#D7AF5F"), // amber
	Success:   lipgloss.Color("#00D787"), // green
	Warn:      lipgloss.Color("#FFAF00"), // orange
	Error:     lipgloss.Color("#FF005F"), // red
	Hint:      lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) userStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.User).Bold(true)
}

func (t Theme) assistantStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Assistant).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// chatUpdateMsg carries a client notification into the UI loop.
type chatUpdateMsg chat.Update

// askErrMsg reports a failed send.
type askErrMsg struct{ err error }

// chatModel is the bubbletea model for the interactive session.
type chatModel struct {
	client   *chat.Client
	input    textinput.Model
	theme    Theme
	width    int
	messages []models.ChatMessage
	status   models.ConnectionStatus
	waiting  bool
	sendErr  error
	quitting bool
}

// newChatModel creates a new chat model.
func newChatModel(client *chat.Client) chatModel {
	ti := textinput.New()
	ti.Placeholder = "Ask the chatbot anything about your class"
	ti.Focus()

	return chatModel{
		client: client,
		input:  ti,
		theme:  defaultTheme,
		width:  80,
		status: client.Status(),
	}
}

// Init returns the initial command (start listening for client updates).
func (m chatModel) Init() tea.Cmd {
	return waitForUpdate(m.client)
}

// Update handles messages and returns the updated model.
func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "ctrl+l":
			m.client.ClearMessages()
			m.messages = nil
			m.waiting = false
			return m, nil
		case "enter":
			return m.submit()
		}

	case chatUpdateMsg:
		m.messages = m.client.Messages()
		m.status = m.client.Status()
		if msg.Kind == chat.UpdateMessage && msg.Message != nil && msg.Message.Role == models.RoleAssistant {
			m.waiting = false
		}
		return m, waitForUpdate(m.client)

	case askErrMsg:
		m.sendErr = msg.err
		m.waiting = false
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit echoes the prompt locally and fires the ask off the UI loop.
func (m chatModel) submit() (tea.Model, tea.Cmd) {
	content := strings.TrimSpace(m.input.Value())
	if content == "" {
		return m, nil
	}

	m.client.AppendUserMessage(content)
	m.messages = m.client.Messages()
	m.input.SetValue("")
	m.waiting = true
	m.sendErr = nil

	client := m.client
	conversationID := client.ConversationID()
	return m, func() tea.Msg {
		if err := client.Ask(context.Background(), content, conversationID); err != nil {
			return askErrMsg{err: err}
		}
		return nil
	}
}

// View renders the chat display.
func (m chatModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m chatModel) renderContent() string {
	var b strings.Builder

	b.WriteString(m.renderStatus())
	b.WriteString("\n\n")

	wrap := lipgloss.NewStyle().Width(max(20, m.width-8))
	for _, msg := range m.messages {
		switch msg.Role {
		case models.RoleUser:
			b.WriteString(m.theme.userStyle().Render("you ›"))
		default:
			b.WriteString(m.theme.assistantStyle().Render("bot ›"))
		}
		b.WriteString(" ")
		b.WriteString(wrap.Render(msg.Content))
		b.WriteString("\n")
	}

	if m.waiting {
		b.WriteString(m.theme.hintStyle().Render("thinking…"))
		b.WriteString("\n")
	}
	if m.sendErr != nil {
		b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("send failed: %v", m.sendErr)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.theme.hintStyle().Render("enter send • ctrl+l clear • esc quit"))
	b.WriteString("  ")
	b.WriteString(m.theme.hintStyle().Render(m.renderStats()))
	b.WriteString("\n")

	return b.String()
}

func (m chatModel) renderStatus() string {
	switch m.status {
	case models.StatusConnected:
		return lipgloss.NewStyle().Foreground(m.theme.Success).Render("● connected")
	case models.StatusConnecting:
		return lipgloss.NewStyle().Foreground(m.theme.Warn).Render("◌ connecting…")
	default:
		return m.theme.errorStyle().Render("○ disconnected")
	}
}

func (m chatModel) renderStats() string {
	s := m.client.Stats()
	return fmt.Sprintf("replies %d • dups %d • reconnects %d", s.EventsReceived, s.DuplicatesDropped, s.Reconnects)
}

// waitForUpdate blocks on the client's update channel off the UI loop.
func waitForUpdate(client *chat.Client) tea.Cmd {
	return func() tea.Msg {
		return chatUpdateMsg(<-client.Updates())
	}
}

// runChatUI runs the interactive chat session until the user quits.
func runChatUI(client *chat.Client) error {
	p := tea.NewProgram(newChatModel(client))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("chat UI error: %w", err)
	}
	return nil
}
