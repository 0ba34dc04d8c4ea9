// Package console is the dispatcher's terminal view of the hub: live advice,
// the consolidated call summary and the processed dialogue.
package console

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"dispatch-copilot-service/internal/models"
)

const maxAdvice = 5

// Sender writes an event to the hub.
type Sender interface {
	SendEvent(event string, data any) error
}

type adviceEntry struct {
	at    time.Time
	level string
	text  string
}

// Model is the bubbletea model for the console.
type Model struct {
	sender  Sender
	inbound <-chan tea.Msg
	now     func() time.Time

	input    textinput.Model
	dialogue viewport.Model
	spinner  spinner.Model
	theme    theme

	width, height int

	clientID  string
	connected bool
	latest    *models.SuggestionsData
	advice    []adviceEntry
	lines     []string
	status    string
	lastErr   string
}

// New creates a console model reading hub messages from inbound.
func New(sender Sender, inbound <-chan tea.Msg) Model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 500
	input.Placeholder = "message the room, or /status <text>"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		sender:   sender,
		inbound:  inbound,
		now:      time.Now,
		input:    input,
		dialogue: viewport.New(80, 8),
		spinner:  sp,
		theme:    newTheme(),
		status:   "connecting...",
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitMsg(m.inbound))
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.dialogue.Width = max(20, msg.Width-6)
		m.dialogue.Height = max(4, msg.Height/3)
		m.input.Width = max(20, msg.Width-6)
		m.renderDialogue()

	case spinner.TickMsg:
		if m.latest == nil {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			if text == "/quit" {
				return m, tea.Quit
			}
			return m, m.submit(text)
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.dialogue, cmd = m.dialogue.Update(msg)
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)

	case connectedMsg:
		m.clientID = msg.clientID
		m.connected = true
		m.status = "connected as " + msg.clientID
		cmds = append(cmds, waitMsg(m.inbound))

	case suggestionsMsg:
		m.applySuggestions(msg.data)
		cmds = append(cmds, waitMsg(m.inbound))

	case peerMsg:
		m.lines = append(m.lines, m.theme.muted.Render(fmt.Sprintf("[%s %s] %s", msg.kind, msg.from, msg.text)))
		m.renderDialogue()
		cmds = append(cmds, waitMsg(m.inbound))

	case hubErrorMsg:
		m.lastErr = "hub: " + msg.text
		cmds = append(cmds, waitMsg(m.inbound))

	case disconnectedMsg:
		m.connected = false
		m.status = "disconnected"
		if msg.err != nil {
			m.lastErr = msg.err.Error()
		}

	case sentMsg:
		if msg.err != nil {
			m.lastErr = "send: " + msg.err.Error()
		} else {
			m.lastErr = ""
		}
	}

	return m, tea.Batch(cmds...)
}

// submit turns input into a hub event. "/status <text>" posts a status update;
// anything else is relayed as a client message.
func (m Model) submit(text string) tea.Cmd {
	if text == "" || m.sender == nil {
		return nil
	}
	event, data := models.EventClientMessage, any(map[string]string{"message": text})
	if rest, ok := strings.CutPrefix(text, "/status"); ok {
		status := strings.TrimSpace(rest)
		if status == "" {
			return nil
		}
		event, data = models.EventStatusUpdate, map[string]string{"status": status}
	}
	sender := m.sender
	return func() tea.Msg {
		return sentMsg{err: sender.SendEvent(event, data)}
	}
}

func (m *Model) applySuggestions(d models.SuggestionsData) {
	m.latest = &d
	if strings.TrimSpace(d.Advice) != "" {
		m.advice = append(m.advice, adviceEntry{at: m.now(), level: d.CriticalityLevel, text: d.Advice})
		if len(m.advice) > maxAdvice {
			m.advice = m.advice[len(m.advice)-maxAdvice:]
		}
	}
	for _, turn := range d.ProcessedDialogue {
		role, text := turn[0], turn[1]
		m.lines = append(m.lines, m.theme.speakerStyle(role).Render(role+":")+" "+text)
	}
	m.renderDialogue()
}

func (m *Model) renderDialogue() {
	m.dialogue.SetContent(strings.Join(m.lines, "\n"))
	m.dialogue.GotoBottom()
}

func (m Model) View() string {
	header := m.theme.header.Render("Dispatch Copilot")
	status := m.theme.status.Render(m.status)
	if !m.connected {
		status = m.theme.errStatus.Render(m.status)
	}

	sections := []string{
		lipgloss.JoinHorizontal(lipgloss.Center, header, " ", status),
		m.panel("Advice", m.renderAdvice()),
		m.panel("Summary", m.renderSummary()),
		m.panel("Dialogue", m.dialogue.View()),
		m.input.View(),
	}
	if m.lastErr != "" {
		sections = append(sections, m.theme.errStatus.Render(m.lastErr))
	}
	sections = append(sections, m.theme.muted.Render("enter send · /status <text> · pgup/pgdown scroll · esc quit"))

	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m Model) panel(title, body string) string {
	style := m.theme.panel
	if m.width > 0 {
		style = style.Width(max(20, m.width-4))
	}
	return style.Render(m.theme.panelTitle.Render(title) + "\n" + body)
}

func (m Model) renderAdvice() string {
	if m.latest == nil {
		return m.spinner.View() + " waiting for the first batch"
	}

	var b strings.Builder
	level := m.latest.CriticalityLevel
	b.WriteString(m.theme.levelStyle(level).Render(strings.ToUpper(level)))
	if m.latest.PatientAge != nil {
		fmt.Fprintf(&b, "  patient age %d", *m.latest.PatientAge)
	}
	for i := len(m.advice) - 1; i >= 0; i-- {
		a := m.advice[i]
		b.WriteString("\n")
		b.WriteString(m.theme.muted.Render(a.at.Format("15:04:05")) + " " + a.text)
	}
	if len(m.advice) == 0 {
		b.WriteString("\n" + m.theme.muted.Render("no advice yet"))
	}
	return b.String()
}

func (m Model) renderSummary() string {
	if m.latest == nil || len(m.latest.Summary) == 0 {
		return m.theme.muted.Render("no facts yet")
	}
	lines := make([]string, 0, len(m.latest.Summary))
	for _, s := range m.latest.Summary {
		s = strings.TrimSpace(s)
		if !strings.HasPrefix(s, "•") {
			s = "• " + s
		}
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n")
}
