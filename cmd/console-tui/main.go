package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/agentstream"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/config"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/effort"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/events"
	"github.com/Keyring-Network/keyring-gavryn/research-console/internal/session"
)

// conversation is the part of session.Session the model drives.
type conversation interface {
	ID() string
	Submit(ctx context.Context, in session.SubmitInput) error
	Cancel(ctx context.Context) error
	Snapshot() session.Snapshot
}

type snapshotMsg struct {
	snapshot session.Snapshot
}

type submitDoneMsg struct {
	err error
}

type cancelDoneMsg struct {
	err error
}

type uiTheme struct {
	root        lipgloss.Style
	header      lipgloss.Style
	panel       lipgloss.Style
	inputPanel  lipgloss.Style
	footer      lipgloss.Style
	human       lipgloss.Style
	agent       lipgloss.Style
	entryTitle  lipgloss.Style
	entryBody   lipgloss.Style
	status      lipgloss.Style
	errorStatus lipgloss.Style
	helpText    lipgloss.Style
}

func newTheme() uiTheme {
	pink := lipgloss.Color("#ff71ce")
	blue := lipgloss.Color("#01cdfe")
	mint := lipgloss.Color("#05ffa1")
	panelBg := lipgloss.Color("#1b0f35")
	text := lipgloss.Color("#f3f3ff")
	muted := lipgloss.Color("#9ca3d8")

	return uiTheme{
		root: lipgloss.NewStyle().
			Foreground(text).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Background(panelBg).
			Foreground(text).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		panel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(blue).
			Padding(0, 1),
		inputPanel: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(mint).
			Padding(0, 1),
		footer: lipgloss.NewStyle().
			Foreground(muted).
			Padding(0, 1),
		human:       lipgloss.NewStyle().Foreground(blue).Bold(true),
		agent:       lipgloss.NewStyle().Foreground(mint).Bold(true),
		entryTitle:  lipgloss.NewStyle().Foreground(pink),
		entryBody:   lipgloss.NewStyle().Foreground(muted),
		status:      lipgloss.NewStyle().Foreground(blue).Bold(true),
		errorStatus: lipgloss.NewStyle().Foreground(pink).Bold(true),
		helpText:    lipgloss.NewStyle().Foreground(muted),
	}
}

type model struct {
	sess      conversation
	updates   <-chan events.SessionEvent
	effort    effort.Level
	reasoning string

	snapshot   session.Snapshot
	statusLine string
	inflight   bool

	width  int
	height int

	input    textinput.Model
	timeline viewport.Model
	spinner  spinner.Model

	theme uiTheme
}

func newModel(sess conversation, updates <-chan events.SessionEvent, level effort.Level, reasoning string) model {
	input := textinput.New()
	input.Prompt = "❯ "
	input.CharLimit = 4000
	input.Placeholder = "Ask a research question"
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#05ffa1"))

	timeline := viewport.New(0, 0)
	timeline.MouseWheelEnabled = true
	timeline.MouseWheelDelta = 4

	return model{
		sess:       sess,
		updates:    updates,
		effort:     level,
		reasoning:  reasoning,
		snapshot:   sess.Snapshot(),
		statusLine: "ready",
		input:      input,
		timeline:   timeline,
		spinner:    sp,
		theme:      newTheme(),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, waitSnapshot(m.updates))
}

func waitSnapshot(ch <-chan events.SessionEvent) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		for event := range ch {
			if snapshot, ok := event.Payload.(session.Snapshot); ok {
				return snapshotMsg{snapshot: snapshot}
			}
		}
		return nil
	}
}

func (m model) submitCmd(text string) tea.Cmd {
	sess := m.sess
	in := session.SubmitInput{Text: text, Effort: string(m.effort), ReasoningModel: m.reasoning}
	return func() tea.Msg {
		return submitDoneMsg{err: sess.Submit(context.Background(), in)}
	}
}

func (m model) cancelCmd() tea.Cmd {
	sess := m.sess
	return func() tea.Msg {
		return cancelDoneMsg{err: sess.Cancel(context.Background())}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		m.renderTimeline()
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "ctrl+e":
			m.effort = m.effort.Next()
			m.statusLine = "effort set to " + string(m.effort)
			return m, nil
		case "esc":
			if m.snapshot.Loading || m.inflight {
				m.statusLine = "cancelling..."
				return m, m.cancelCmd()
			}
			return m, nil
		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text == "" || m.inflight || m.snapshot.Loading {
				return m, nil
			}
			m.input.SetValue("")
			m.inflight = true
			m.statusLine = "researching..."
			return m, m.submitCmd(text)
		}
	case snapshotMsg:
		m.snapshot = msg.snapshot
		m.renderTimeline()
		cmds = append(cmds, waitSnapshot(m.updates))
	case submitDoneMsg:
		m.inflight = false
		if msg.err != nil {
			m.statusLine = "submit failed: " + msg.err.Error()
		}
	case cancelDoneMsg:
		m.inflight = false
		m.statusLine = "cancelled"
		if msg.err != nil {
			m.statusLine = "cancelled with error: " + msg.err.Error()
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.timeline, cmd = m.timeline.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) resize() {
	contentWidth := maxInt(20, m.width-6)
	m.input.Width = maxInt(10, contentWidth-4)
	m.timeline.Width = contentWidth
	m.timeline.Height = maxInt(3, m.height-11)
}

func (m *model) renderTimeline() {
	atBottom := m.timeline.AtBottom()
	m.timeline.SetContent(renderConversation(m.snapshot, m.theme, maxInt(20, m.timeline.Width)))
	if atBottom {
		m.timeline.GotoBottom()
	}
}

func (m model) View() string {
	header := m.theme.header.Width(maxInt(20, m.width-4)).Render(m.renderHeader())
	content := m.theme.panel.Width(maxInt(20, m.width-4)).Render(m.timeline.View())
	input := m.theme.inputPanel.Width(maxInt(20, m.width-4)).Render(m.input.View())
	footer := m.theme.footer.Render("enter send · ctrl+e effort · esc cancel · ctrl+c quit")
	return m.theme.root.Render(lipgloss.JoinVertical(lipgloss.Left, header, content, input, footer))
}

func (m model) renderHeader() string {
	budget, _ := m.effort.Budget()
	status := m.theme.status.Render(m.statusLine)
	if m.snapshot.Loading {
		status = m.spinner.View() + " " + status
	}
	if m.snapshot.Error != "" {
		status = m.theme.errorStatus.Render("error: " + m.snapshot.Error)
	}
	return fmt.Sprintf("Research console · effort %s (%d queries, %d loops) · %s\n%s",
		m.effort, budget.SearchQueryCount, budget.MaxResearchLoops, m.reasoning, status)
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func main() {
	altScreen := flag.Bool("alt-screen", true, "render in the terminal's alternate screen")
	effortFlag := flag.String("effort", "", "initial effort level (low, medium, high)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "console-tui: %v\n", err)
		os.Exit(1)
	}
	level, err := effort.Parse(firstNonEmpty(*effortFlag, cfg.DefaultEffort))
	if err != nil {
		fmt.Fprintf(os.Stderr, "console-tui: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	broker := events.NewBroker(cfg.SessionEventBuffer)
	client := agentstream.NewClient(agentstream.Config{
		BaseURL:        cfg.AgentURL,
		AssistantID:    cfg.AgentAssistantID,
		ConnectTimeout: cfg.AgentConnectTimeout(),
	})
	sess := session.New(uuid.NewString(), client, broker, session.Options{
		DefaultEffort:         level,
		DefaultReasoningModel: cfg.DefaultReasoningModel,
	})
	updates := broker.Subscribe(ctx, sess.ID())

	opts := []tea.ProgramOption{tea.WithMouseCellMotion()}
	if *altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	p := tea.NewProgram(newModel(sess, updates, level, cfg.DefaultReasoningModel), opts...)
	_, runErr := p.Run()
	_ = sess.Cancel(context.Background())
	if runErr != nil {
		fmt.Fprintf(os.Stderr, "console-tui fatal error: %v\n", runErr)
		os.Exit(1)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
