package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"

	"storefront/internal/config"
	"storefront/internal/inbox"
	"storefront/internal/model"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Background(lipgloss.Color("62")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	alertStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	selfStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

type sessionReadyMsg struct {
	session *inbox.Session
}

type sessionFailedMsg struct {
	err error
}

type sendResultMsg struct {
	err error
}

type alertMsg inbox.Alert

type tickMsg time.Time

type appModel struct {
	cfg    config.Config
	token  string
	alerts *inbox.AlertCenter
	events chan inbox.Alert

	session      *inbox.Session
	counterparts []string
	selected     int

	spin   spinner.Model
	input  textinput.Model
	pane   viewport.Model
	status string
	width  int
	height int
	ready  bool
}

func newAppModel(cfg config.Config, token string) appModel {
	alerts := inbox.NewAlertCenter()
	events := make(chan inbox.Alert, 64)
	alerts.OnAlert(func(a inbox.Alert) {
		select {
		case events <- a:
		default:
		}
	})

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "message selected conversation, or @user <message>"
	ti.CharLimit = 512
	ti.Focus()

	return appModel{
		cfg:    cfg,
		token:  token,
		alerts: alerts,
		events: events,
		spin:   sp,
		input:  ti,
		status: "connecting...",
	}
}

func (m appModel) Init() tea.Cmd {
	return tea.Batch(m.spin.Tick, m.openSessionCmd(), waitAlert(m.events), tickEvery())
}

func (m appModel) openSessionCmd() tea.Cmd {
	cfg, token, alerts := m.cfg, m.token, m.alerts
	return func() tea.Msg {
		session, err := inbox.OpenSession(context.Background(), cfg, token, alerts)
		if err != nil {
			return sessionFailedMsg{err: err}
		}
		return sessionReadyMsg{session: session}
	}
}

func (m appModel) sendCmd(draft model.Draft) tea.Cmd {
	session := m.session
	return func() tea.Msg {
		return sendResultMsg{err: session.Send(context.Background(), draft)}
	}
}

func waitAlert(ch <-chan inbox.Alert) tea.Cmd {
	return func() tea.Msg {
		return alertMsg(<-ch)
	}
}

func tickEvery() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m appModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.pane = viewport.New(msg.Width-32, msg.Height-6)
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			if m.session != nil {
				m.session.Close()
			}
			return m, tea.Quit
		case "tab":
			if len(m.counterparts) > 0 {
				m.selected = (m.selected + 1) % len(m.counterparts)
				m.refresh()
			}
			return m, nil
		case "shift+tab":
			if len(m.counterparts) > 0 {
				m.selected = (m.selected + len(m.counterparts) - 1) % len(m.counterparts)
				m.refresh()
			}
			return m, nil
		case "enter":
			draft, ok := m.draftFromInput()
			if !ok {
				return m, nil
			}
			m.input.Reset()
			m.status = fmt.Sprintf("sending to %s...", draft.Recipient)
			return m, m.sendCmd(draft)
		}

	case sessionReadyMsg:
		m.session = msg.session
		m.status = fmt.Sprintf("signed in as %s", msg.session.Identity())
		m.refresh()
		return m, nil

	case sessionFailedMsg:
		m.status = "could not open inbox: " + msg.err.Error()
		return m, nil

	case sendResultMsg:
		if msg.err != nil {
			m.status = "send failed: " + msg.err.Error()
		} else {
			m.status = "sent"
			m.refresh()
		}
		return m, nil

	case alertMsg:
		m.status = alertStyle.Render(fmt.Sprintf("%s: %s", msg.Sender, msg.Body))
		m.alerts.Dismiss(msg.ID)
		m.refresh()
		return m, waitAlert(m.events)

	case tickMsg:
		m.refresh()
		return m, tickEvery()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// draftFromInput turns the compose line into a draft. "@user hello" opens a
// new conversation; anything else goes to the selected counterpart.
func (m *appModel) draftFromInput() (model.Draft, bool) {
	text := strings.TrimSpace(m.input.Value())
	if m.session == nil || text == "" {
		return model.Draft{}, false
	}

	if strings.HasPrefix(text, "@") {
		parts := strings.SplitN(strings.TrimPrefix(text, "@"), " ", 2)
		if len(parts) != 2 || parts[0] == "" || strings.TrimSpace(parts[1]) == "" {
			m.status = "usage: @user <message>"
			return model.Draft{}, false
		}
		return model.Draft{Recipient: parts[0], Subject: "New message", Body: strings.TrimSpace(parts[1])}, true
	}

	if len(m.counterparts) == 0 {
		m.status = "no conversation selected; use @user <message>"
		return model.Draft{}, false
	}
	return model.Draft{Recipient: m.counterparts[m.selected], Subject: "New message", Body: text}, true
}

// refresh re-reads the session's store into the view state.
func (m *appModel) refresh() {
	if m.session == nil || !m.ready {
		return
	}
	store := m.session.Store()
	m.counterparts = store.Counterparts()
	if m.selected >= len(m.counterparts) {
		m.selected = 0
	}
	if len(m.counterparts) == 0 {
		m.pane.SetContent(dimStyle.Render("No messages yet."))
		return
	}

	identity := m.session.Identity()
	var b strings.Builder
	for _, msg := range store.Conversation(m.counterparts[m.selected]) {
		sender := msg.Sender
		line := fmt.Sprintf("[%s] %s: %s", msg.Timestamp.Local().Format("15:04"), sender, msg.Body)
		if msg.State == model.StatePending {
			line += dimStyle.Render(" (sending)")
		}
		if sender == identity {
			line = selfStyle.Render(line)
		}
		b.WriteString(line + "\n")
	}
	m.pane.SetContent(b.String())
	m.pane.GotoBottom()
}

func (m appModel) View() string {
	if !m.ready {
		return ""
	}

	title := titleStyle.Render(" Inbox ")
	if m.session == nil {
		return fmt.Sprintf("%s\n\n %s %s\n", title, m.spin.View(), m.status)
	}

	var list strings.Builder
	for i, counterpart := range m.counterparts {
		entry := fmt.Sprintf("%s\n  %s", counterpart, dimStyle.Render(m.session.Store().Preview(counterpart)))
		if i == m.selected {
			entry = selectedStyle.Render(entry)
		}
		list.WriteString(entry + "\n")
	}
	if list.Len() == 0 {
		list.WriteString(dimStyle.Render("(empty)"))
	}

	left := lipgloss.NewStyle().Width(28).Render(list.String())
	body := lipgloss.JoinHorizontal(lipgloss.Top, left, m.pane.View())

	connState := dimStyle.Render(fmt.Sprintf("connection: %s", m.session.ConnectionState()))
	return fmt.Sprintf("%s  %s\n\n%s\n\n%s\n%s\n", title, connState, body, m.status, m.input.View())
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  .env file not found, using default values: %v", err)
	}

	token := flag.String("token", os.Getenv("INBOX_TOKEN"), "bearer credential for the relay")
	flag.Parse()
	if *token == "" {
		fmt.Fprintln(os.Stderr, "inbox: set -token or INBOX_TOKEN")
		os.Exit(1)
	}

	cfg := config.Load()

	p := tea.NewProgram(newAppModel(cfg, *token), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Fatalf("❌ inbox UI error: %v", err)
	}
}
