package main

import (
	"context"
	"errors"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/tavernkeep/gamemaster/pkg/scenario"
	"github.com/tavernkeep/gamemaster/pkg/turn"
)

const (
	narratorName    = "Narrator"
	placeholderText = "What do you do?"
)

var (
	narrativeStyle = lipgloss.NewStyle().
			Padding(1, 2)

	playerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("12")).
			Bold(true)

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("8")).
			Italic(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9"))
)

// gameUI is the Bubble Tea model running the player I/O boundary. The
// orchestrator is strictly sequential, so the UI sends one turn at a
// time and blocks input while a turn is in flight.
type gameUI struct {
	orch *turn.Orchestrator
	scen *scenario.Scenario

	viewport viewport.Model
	textarea textarea.Model
	ready    bool
	width    int
	height   int

	transcript []string
	loading    bool
	fatal      error
	cancelTurn context.CancelFunc
}

type turnDoneMsg struct {
	record *turn.TurnRecord
	err    error
}

func newGameUI(orch *turn.Orchestrator, scen *scenario.Scenario, opening string) *gameUI {
	ta := textarea.New()
	ta.Placeholder = placeholderText
	ta.Focus()
	ta.SetHeight(2)
	ta.ShowLineNumbers = false

	ui := &gameUI{
		orch:     orch,
		scen:     scen,
		textarea: ta,
	}
	if opening != "" {
		ui.transcript = append(ui.transcript, narratorName+": "+opening)
	}
	return ui
}

func (m *gameUI) Init() tea.Cmd {
	return textarea.Blink
}

func (m *gameUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var taCmd, vpCmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.viewport = viewport.New(msg.Width-4, msg.Height-7)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 4
			m.viewport.Height = msg.Height - 7
		}
		m.textarea.SetWidth(msg.Width - 6)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.cancelTurn != nil {
				m.cancelTurn()
			}
			m.orch.End()
			return m, tea.Quit
		case tea.KeyCtrlY:
			_ = clipboard.WriteAll(strings.Join(m.transcript, "\n\n"))
			return m, nil
		case tea.KeyEnter:
			if m.loading || m.fatal != nil {
				return m, nil
			}
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()
			m.loading = true
			m.transcript = append(m.transcript, playerStyle.Render("You: ")+input)
			m.refresh()
			return m, m.playTurn(input)
		}

	case turnDoneMsg:
		m.loading = false
		m.cancelTurn = nil
		m.handleTurn(msg)
		m.refresh()
		if m.fatal != nil {
			return m, nil // leave the explanation on screen until quit
		}
	}

	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

// playTurn runs one orchestrator turn off the UI goroutine.
func (m *gameUI) playTurn(input string) tea.Cmd {
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTurn = cancel
	return func() tea.Msg {
		record, err := m.orch.PlayTurn(ctx, input)
		return turnDoneMsg{record: record, err: err}
	}
}

func (m *gameUI) handleTurn(msg turnDoneMsg) {
	switch {
	case msg.err == nil:
		m.transcript = append(m.transcript, narratorName+": "+msg.record.Narrative)
	case errors.Is(msg.err, turn.ErrTurnAborted):
		// Non-fatal: the turn's mutations were abandoned. Re-prompt.
		if msg.record != nil && msg.record.Narrative != "" {
			m.transcript = append(m.transcript, narratorName+": "+msg.record.Narrative)
		}
		m.transcript = append(m.transcript, systemStyle.Render("(The threads of fate tangle; try that again.)"))
	case errors.Is(msg.err, turn.ErrSessionFailed):
		m.fatal = msg.err
		m.transcript = append(m.transcript, errorStyle.Render("The connection to the storyteller was lost. The session has ended."))
	default:
		m.fatal = msg.err
		m.transcript = append(m.transcript, errorStyle.Render("Something went wrong and the session cannot continue."))
	}
}

func (m *gameUI) refresh() {
	if !m.ready {
		return
	}
	var sb strings.Builder
	for i, entry := range m.transcript {
		if i > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(wordwrap.String(entry, m.viewport.Width))
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *gameUI) View() string {
	if !m.ready {
		return "Loading..."
	}

	status := m.scen.Name
	if m.loading {
		status += " · the narrator is thinking..."
	}
	if m.fatal != nil {
		status += " · session ended"
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		systemStyle.Render(status),
		narrativeStyle.Render(m.viewport.View()),
		m.textarea.View(),
		systemStyle.Render("enter: act · ctrl+y: copy transcript · esc: quit"),
	)
}
